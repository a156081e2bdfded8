package api

import (
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/btouchard/sprintdesk/internal/store"
)

type refView struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	ParentID string `json:"parentId,omitempty"`
}

type standupContext struct {
	Class   refView    `json:"class"`
	Team    refView    `json:"team"`
	Project refView    `json:"project"`
	Sprint  sprintView `json:"sprint"`
}

type standupEntry struct {
	standupView
	User    *userView      `json:"user"`
	Context standupContext `json:"context"`
}

type standupFilters struct {
	Classes  []refView `json:"classes"`
	Teams    []refView `json:"teams"`
	Projects []refView `json:"projects"`
	Sprints  []refView `json:"sprints"`
}

// standupQuery holds the optional filters of the teacher standup overview.
type standupQuery struct {
	classID, teamID, projectID, sprintID, userID string
	from, to                                     time.Time
}

func parseStandupQuery(r *http.Request) (standupQuery, error) {
	q := r.URL.Query()
	sq := standupQuery{
		classID:   q.Get("classId"),
		teamID:    q.Get("teamId"),
		projectID: q.Get("projectId"),
		sprintID:  q.Get("sprintId"),
		userID:    q.Get("userId"),
	}
	if s := q.Get("startDate"); s != "" {
		t, err := parseDate("startDate", s)
		if err != nil {
			return sq, err
		}
		sq.from = t
	}
	if s := q.Get("endDate"); s != "" {
		t, err := parseDate("endDate", s)
		if err != nil {
			return sq, err
		}
		// A plain date covers the whole day.
		if len(s) == len(time.DateOnly) {
			t = t.Add(24*time.Hour - time.Nanosecond)
		}
		sq.to = t
	}
	return sq, nil
}

func (q standupQuery) keep(su store.Standup) bool {
	if q.userID != "" && su.UserID != q.userID {
		return false
	}
	if !q.from.IsZero() && su.Date.Before(q.from) {
		return false
	}
	if !q.to.IsZero() && su.Date.After(q.to) {
		return false
	}
	return true
}

// teacherStandups lists the standups of every sprint in the caller's classes,
// newest first, each with its class, team, project and sprint.
func (h *handlers) teacherStandups(w http.ResponseWriter, r *http.Request) {
	q, err := parseStandupQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	classes, err := h.Store.ListClassesForTeacher(principal(r).UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	entries := []standupEntry{}
	filters := standupFilters{Classes: []refView{}, Teams: []refView{}, Projects: []refView{}, Sprints: []refView{}}
	users := make(map[string]*userView)

	for _, c := range classes {
		if q.classID != "" && c.ID != q.classID {
			continue
		}
		filters.Classes = append(filters.Classes, refView{ID: c.ID, Name: c.Name})

		teams, err := h.Store.ListTeamsByClass(c.ID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		projects, err := h.Store.ListProjectsByClass(c.ID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		for _, t := range teams {
			if q.teamID != "" && t.ID != q.teamID {
				continue
			}
			filters.Teams = append(filters.Teams, refView{ID: t.ID, Name: t.Name, ParentID: c.ID})

			for _, p := range projects {
				if p.TeamID != t.ID || (q.projectID != "" && p.ID != q.projectID) {
					continue
				}
				filters.Projects = append(filters.Projects, refView{ID: p.ID, Name: p.Name, ParentID: t.ID})

				sprints, err := h.Store.ListSprintsByProject(p.ID)
				if err != nil {
					writeError(w, r, err)
					return
				}
				for _, sp := range sprints {
					if q.sprintID != "" && sp.ID != q.sprintID {
						continue
					}
					filters.Sprints = append(filters.Sprints, refView{ID: sp.ID, Name: sp.Name, ParentID: p.ID})

					standups, err := h.Store.ListStandups(sp.ID)
					if err != nil {
						writeError(w, r, err)
						return
					}
					where := standupContext{
						Class:   refView{ID: c.ID, Name: c.Name},
						Team:    refView{ID: t.ID, Name: t.Name},
						Project: refView{ID: p.ID, Name: p.Name},
						Sprint:  newSprintView(sp),
					}
					for _, su := range standups {
						if !q.keep(su) {
							continue
						}
						u, ok := users[su.UserID]
						if !ok {
							if found, err := h.Store.GetUser(su.UserID); err == nil {
								v := newUserView(*found)
								u = &v
							}
							users[su.UserID] = u
						}
						entries = append(entries, standupEntry{standupView: newStandupView(su), User: u, Context: where})
					}
				}
			}
		}
	}

	slices.SortStableFunc(entries, func(a, b standupEntry) int { return b.Date.Compare(a.Date) })
	writeJSON(w, http.StatusOK, map[string]any{
		"standups": entries,
		"count":    len(entries),
		"filters":  filters,
	})
}

type studentSprintView struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Status      string `json:"status"`
	TeamName    string `json:"teamName"`
	ProjectName string `json:"projectName"`
}

type studentIssueView struct {
	issueView
	SprintName          string `json:"sprintName"`
	TeamName            string `json:"teamName"`
	ProjectName         string `json:"projectName"`
	IsAssignedToStudent bool   `json:"isAssignedToStudent"`
}

type membershipView struct {
	TeamID   string `json:"teamId"`
	TeamName string `json:"teamName"`
	Role     string `json:"role"`
}

type studentIssuesView struct {
	userView
	Sprints         []studentSprintView `json:"sprints"`
	Issues          []studentIssueView  `json:"issues"`
	TeamMemberships []membershipView    `json:"teamMemberships"`
}

// assignedTo reports whether one of the issue's assignees looks like the
// student. Only the e-mail address is known locally, so a login contained in
// it counts as a match.
func assignedTo(issue store.Issue, u store.User) bool {
	email := strings.ToLower(u.Email)
	if email == "" {
		return false
	}
	for _, a := range issue.Assignees {
		if a.Login != "" && strings.Contains(email, strings.ToLower(a.Login)) {
			return true
		}
	}
	return false
}

// studentsIssues syncs every linked project of the class, then lists for each
// student the issues of their team's current sprint (or ?sprintId=).
func (h *handlers) studentsIssues(w http.ResponseWriter, r *http.Request) {
	classID := chi.URLParam(r, "classID")
	sprintID := r.URL.Query().Get("sprintId")
	if _, err := h.requireClass(r, classID); err != nil {
		writeError(w, r, err)
		return
	}

	projects, err := h.Store.ListProjectsByClass(classID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	token, err := h.token(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	results, err := h.Engine.SyncClass(r.Context(), classID, projects, token)
	if err != nil {
		writeError(w, r, err)
		return
	}

	students, err := h.Store.ListClassStudents(classID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	projectsByTeam := make(map[string][]store.Project)
	for _, p := range projects {
		projectsByTeam[p.TeamID] = append(projectsByTeam[p.TeamID], p)
	}
	roles := make(map[string]map[string]string) // team → user → role
	sprintIssues := make(map[string][]store.Issue)

	out := make([]studentIssuesView, 0, len(students))
	for _, s := range students {
		view := studentIssuesView{
			userView:        newUserView(s),
			Sprints:         []studentSprintView{},
			Issues:          []studentIssueView{},
			TeamMemberships: []membershipView{},
		}
		teams, err := h.Store.ListTeamsForUser(s.ID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		for _, t := range teams {
			if t.ClassID != classID {
				continue
			}
			if _, ok := roles[t.ID]; !ok {
				members, err := h.Store.ListTeamMembers(t.ID)
				if err != nil {
					writeError(w, r, err)
					return
				}
				roles[t.ID] = make(map[string]string, len(members))
				for _, m := range members {
					roles[t.ID][m.ID] = m.TeamRole
				}
			}
			view.TeamMemberships = append(view.TeamMemberships,
				membershipView{TeamID: t.ID, TeamName: t.Name, Role: roles[t.ID][s.ID]})

			for _, p := range projectsByTeam[t.ID] {
				sprints, err := h.Store.ListSprintsByProject(p.ID)
				if err != nil {
					writeError(w, r, err)
					return
				}
				for _, sp := range sprints {
					if (sprintID != "" && sp.ID != sprintID) || (sprintID == "" && sp.Status != store.SprintActive) {
						continue
					}
					view.Sprints = append(view.Sprints, studentSprintView{ID: sp.ID, Name: sp.Name,
						Status: sp.Status, TeamName: t.Name, ProjectName: p.Name})

					issues, ok := sprintIssues[sp.ID]
					if !ok {
						if issues, err = h.Store.ListSprintIssues(sp.ID); err != nil {
							writeError(w, r, err)
							return
						}
						sprintIssues[sp.ID] = issues
					}
					for i := range issues {
						view.Issues = append(view.Issues, studentIssueView{
							issueView:           *newIssueView(&issues[i]),
							SprintName:          sp.Name,
							TeamName:            t.Name,
							ProjectName:         p.Name,
							IsAssignedToStudent: assignedTo(issues[i], s),
						})
					}
				}
			}
		}
		out = append(out, view)
	}

	writeJSON(w, http.StatusOK, map[string]any{"students": out, "results": results})
}
