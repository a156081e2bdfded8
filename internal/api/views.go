package api

import (
	"time"

	"github.com/btouchard/sprintdesk/internal/store"
)

type userView struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Role    string `json:"role"`
	ClassID string `json:"classId,omitempty"`
}

func newUserView(u store.User) userView {
	return userView{ID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role, ClassID: u.ClassID}
}

type classView struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
}

func newClassView(c store.Class) classView {
	return classView{ID: c.ID, Name: c.Name, Description: c.Description, CreatedAt: c.CreatedAt}
}

type classRequestView struct {
	ID        string    `json:"id"`
	ClassID   string    `json:"classId"`
	UserID    string    `json:"userId"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

func newClassRequestView(r store.ClassRequest) classRequestView {
	return classRequestView{ID: r.ID, ClassID: r.ClassID, UserID: r.UserID, Status: r.Status, CreatedAt: r.CreatedAt}
}

type projectView struct {
	ID              string `json:"id"`
	TeamID          string `json:"teamId"`
	Name            string `json:"name"`
	Description     string `json:"description"`
	RepositoryURL   string `json:"repositoryUrl,omitempty"`
	RepositoryOwner string `json:"repositoryOwner,omitempty"`
	RepositoryName  string `json:"repositoryName,omitempty"`
}

func newProjectView(p *store.Project) *projectView {
	if p == nil {
		return nil
	}
	return &projectView{
		ID:              p.ID,
		TeamID:          p.TeamID,
		Name:            p.Name,
		Description:     p.Description,
		RepositoryURL:   p.RepositoryURL,
		RepositoryOwner: p.RepositoryOwner,
		RepositoryName:  p.RepositoryName,
	}
}

type teamView struct {
	ID          string       `json:"id"`
	ClassID     string       `json:"classId"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	CreatedAt   time.Time    `json:"createdAt"`
	Project     *projectView `json:"project"`
}

func newTeamView(t store.Team, p *store.Project) teamView {
	return teamView{ID: t.ID, ClassID: t.ClassID, Name: t.Name, Description: t.Description,
		CreatedAt: t.CreatedAt, Project: newProjectView(p)}
}

type sprintView struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"projectId"`
	Name      string    `json:"name"`
	Goal      string    `json:"goal"`
	StartDate time.Time `json:"startDate"`
	EndDate   time.Time `json:"endDate"`
	Status    string    `json:"status"`
}

func newSprintView(s store.Sprint) sprintView {
	return sprintView{ID: s.ID, ProjectID: s.ProjectID, Name: s.Name, Goal: s.Goal,
		StartDate: s.StartDate, EndDate: s.EndDate, Status: s.Status}
}

type issueView struct {
	ID              string           `json:"id"`
	ProjectID       string           `json:"projectId"`
	SprintID        *string          `json:"sprintId"`
	IssueNumber     int              `json:"issueNumber"`
	Title           string           `json:"title"`
	Body            *string          `json:"body"`
	State           string           `json:"state"`
	Status          string           `json:"status"`
	Labels          []store.Label    `json:"labels"`
	Assignees       []store.Assignee `json:"assignees"`
	HTMLURL         string           `json:"htmlUrl"`
	GitHubCreatedAt time.Time        `json:"githubCreatedAt"`
	GitHubUpdatedAt time.Time        `json:"githubUpdatedAt"`
	CreatedAt       time.Time        `json:"createdAt"`
	UpdatedAt       time.Time        `json:"updatedAt"`
}

func newIssueView(i *store.Issue) *issueView {
	if i == nil {
		return nil
	}
	v := &issueView{
		ID:              i.ID,
		ProjectID:       i.ProjectID,
		SprintID:        i.SprintID,
		IssueNumber:     i.IssueNumber,
		Title:           i.Title,
		Body:            i.Body,
		State:           i.State,
		Status:          i.Status,
		Labels:          i.Labels,
		Assignees:       i.Assignees,
		HTMLURL:         i.HTMLURL,
		GitHubCreatedAt: i.GitHubCreatedAt,
		GitHubUpdatedAt: i.GitHubUpdatedAt,
		CreatedAt:       i.CreatedAt,
		UpdatedAt:       i.UpdatedAt,
	}
	if v.Labels == nil {
		v.Labels = []store.Label{}
	}
	if v.Assignees == nil {
		v.Assignees = []store.Assignee{}
	}
	return v
}

func newIssueViews(issues []store.Issue) []*issueView {
	out := make([]*issueView, 0, len(issues))
	for i := range issues {
		out = append(out, newIssueView(&issues[i]))
	}
	return out
}

type standupView struct {
	ID        string    `json:"id"`
	SprintID  string    `json:"sprintId"`
	UserID    string    `json:"userId"`
	Date      time.Time `json:"date"`
	Yesterday string    `json:"yesterday"`
	Today     string    `json:"today"`
	Blockers  string    `json:"blockers,omitempty"`
}

func newStandupView(s store.Standup) standupView {
	return standupView{ID: s.ID, SprintID: s.SprintID, UserID: s.UserID, Date: s.Date,
		Yesterday: s.Yesterday, Today: s.Today, Blockers: s.Blockers}
}

type retroView struct {
	ID             string    `json:"id"`
	SprintID       string    `json:"sprintId"`
	UserID         string    `json:"userId"`
	WhatWentWell   string    `json:"whatWentWell"`
	WhatCanImprove string    `json:"whatCanImprove"`
	ActionItems    string    `json:"actionItems,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

func newRetroView(r store.Retrospective) retroView {
	return retroView{ID: r.ID, SprintID: r.SprintID, UserID: r.UserID, WhatWentWell: r.WhatWentWell,
		WhatCanImprove: r.WhatCanImprove, ActionItems: r.ActionItems, CreatedAt: r.CreatedAt}
}
