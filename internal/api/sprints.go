package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/btouchard/sprintdesk/internal/auth"
	"github.com/btouchard/sprintdesk/internal/store"
	"github.com/btouchard/sprintdesk/internal/sync"
)

// listSprints returns the sprints of the caller's classes (teachers) or
// teams (students), ordered by start date.
func (h *handlers) listSprints(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	projects := map[string]bool{}

	if p.IsTeacher() {
		classes, err := h.Store.ListClassesForTeacher(p.UserID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		for _, c := range classes {
			ids, err := h.classProjectIDs(c.ID)
			if err != nil {
				writeError(w, r, err)
				return
			}
			for _, id := range ids {
				projects[id] = true
			}
		}
	} else {
		teams, err := h.Store.ListTeamsForUser(p.UserID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		for _, t := range teams {
			project, err := h.Store.GetProjectByTeam(t.ID)
			if err != nil {
				continue
			}
			projects[project.ID] = true
		}
	}

	all, err := h.Store.ListAllSprints()
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := []sprintView{}
	for _, sp := range all {
		if projects[sp.ProjectID] {
			out = append(out, newSprintView(sp))
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) createSprint(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProjectID string `json:"projectId"`
		Name      string `json:"name"`
		Goal      string `json:"goal"`
		StartDate string `json:"startDate"`
		EndDate   string `json:"endDate"`
		Status    string `json:"status"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.ProjectID == "" || req.Name == "" || req.StartDate == "" || req.EndDate == "" {
		writeError(w, r, invalid("projectId, name, startDate and endDate are required"))
		return
	}
	start, err := parseDate("startDate", req.StartDate)
	if err != nil {
		writeError(w, r, err)
		return
	}
	end, err := parseDate("endDate", req.EndDate)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !end.After(start) {
		writeError(w, r, invalid("endDate must be after startDate"))
		return
	}
	switch req.Status {
	case "":
		req.Status = store.SprintPlanned
	case store.SprintPlanned, store.SprintActive, store.SprintCompleted:
	default:
		writeError(w, r, invalid("status must be planned, active or completed"))
		return
	}

	project, err := h.Store.GetProject(req.ProjectID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	team, err := h.Store.GetTeam(project.TeamID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.Access.RequireClassTeacher(principal(r), team.ClassID); err != nil {
		writeError(w, r, err)
		return
	}

	sp := &store.Sprint{ProjectID: project.ID, Name: req.Name, Goal: req.Goal,
		StartDate: start, EndDate: end, Status: req.Status}
	if err := h.Store.CreateSprint(sp); err != nil {
		writeError(w, r, err)
		return
	}
	slog.Info("sprint created", "sprint_id", sp.ID, "project_id", sp.ProjectID)
	writeJSON(w, http.StatusCreated, newSprintView(*sp))
}

func (h *handlers) getSprint(w http.ResponseWriter, r *http.Request) {
	sp, project, team, err := h.Access.RequireSprint(principal(r), chi.URLParam(r, "sprintID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		sprintView
		Project *projectView `json:"project"`
		Team    teamView     `json:"team"`
	}{newSprintView(*sp), newProjectView(project), newTeamView(*team, nil)})
}

// sprintBoard syncs the sprint's repository, then returns the board. A failed
// sync is reported in syncError and the board is served from the mirror.
func (h *handlers) sprintBoard(w http.ResponseWriter, r *http.Request) {
	sp, project, _, err := h.Access.RequireSprint(principal(r), chi.URLParam(r, "sprintID"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	var syncError string
	if project.HasRepository() {
		token, err := h.token(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		res, err := h.Engine.SyncProject(r.Context(), project.ID, project.RepositoryOwner, project.RepositoryName, token)
		if err != nil {
			writeError(w, r, err)
			return
		}
		syncError = res.Error
	}

	b, err := h.Board.Board(sp)
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := map[string]any{
		"sprintIssues":  newIssueViews(b.SprintIssues),
		"backlogIssues": newIssueViews(b.BacklogIssues),
		"allIssues":     newIssueViews(b.AllIssues),
		"syncError":     nil,
	}
	if syncError != "" {
		resp["syncError"] = syncError
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) assignIssue(w http.ResponseWriter, r *http.Request) {
	sprintID := chi.URLParam(r, "sprintID")
	var req struct {
		IssueID string `json:"issueId"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if _, _, _, err := h.Access.RequireSprint(principal(r), sprintID); err != nil {
		writeError(w, r, err)
		return
	}

	issue, err := h.Board.AssignToSprint(req.IssueID, sprintID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newIssueView(issue))
}

// sprintIssue loads issueID and checks it belongs to the sprint's project.
func (h *handlers) sprintIssue(r *http.Request, sprintID, issueID string) (*store.Issue, error) {
	_, project, _, err := h.Access.RequireSprint(principal(r), sprintID)
	if err != nil {
		return nil, err
	}
	if issueID == "" {
		return nil, invalid("issueId is required")
	}
	issue, err := h.Store.GetIssue(issueID)
	if err != nil {
		return nil, err
	}
	if issue.ProjectID != project.ID {
		return nil, invalid("issue #%d does not belong to this sprint's project", issue.IssueNumber)
	}
	return issue, nil
}

func (h *handlers) updateIssueStatus(w http.ResponseWriter, r *http.Request) {
	sprintID := chi.URLParam(r, "sprintID")
	var req struct {
		IssueID string `json:"issueId"`
		Status  string `json:"status"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if _, err := h.sprintIssue(r, sprintID, req.IssueID); err != nil {
		writeError(w, r, err)
		return
	}

	issue, err := h.Board.SetStatus(req.IssueID, req.Status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newIssueView(issue))
}

func (h *handlers) unassignIssue(w http.ResponseWriter, r *http.Request) {
	sprintID := chi.URLParam(r, "sprintID")
	issueID := chi.URLParam(r, "issueID")
	issue, err := h.sprintIssue(r, sprintID, issueID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if issue.SprintID == nil || *issue.SprintID != sprintID {
		writeError(w, r, invalid("issue #%d is not in this sprint", issue.IssueNumber))
		return
	}

	issue, err = h.Board.Unassign(issueID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newIssueView(issue))
}

// closeIssue closes the issue on GitHub when possible and always locally.
func (h *handlers) closeIssue(w http.ResponseWriter, r *http.Request) {
	sprintID := chi.URLParam(r, "sprintID")
	issueID := chi.URLParam(r, "issueID")
	if _, err := h.sprintIssue(r, sprintID, issueID); err != nil {
		writeError(w, r, err)
		return
	}
	token, err := h.token(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	out, err := h.Board.CloseIssue(r.Context(), issueID, token)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, outcomeView{Issue: newIssueView(out.Issue), Warning: out.Warning})
}

// closedIssues lists issues the caller closed upstream since yesterday. Every
// degraded case answers 200 with an empty list and an explanatory message.
func (h *handlers) closedIssues(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	_, project, team, err := h.Access.RequireSprint(p, chi.URLParam(r, "sprintID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	member, err := h.Access.IsTeamMember(p, team.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !member {
		writeError(w, r, &auth.ForbiddenError{Reason: "not a member of this team"})
		return
	}

	empty := func(msg string) {
		writeJSON(w, http.StatusOK, map[string]any{"closedIssues": []sync.ClosedIssue{}, "message": msg})
	}
	if !project.HasRepository() {
		empty("no GitHub repository is linked to this project")
		return
	}
	token, err := h.token(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if token == "" {
		empty("connect your GitHub account to see the issues you closed")
		return
	}
	username := h.Tokens.Username(r.Context(), p.UserID)
	if username == "" {
		empty("your GitHub username could not be determined")
		return
	}

	closed := h.Engine.ClosedBy(r.Context(), project.RepositoryOwner, project.RepositoryName,
		token, username, sync.YesterdayStartUTC(h.Now()))
	writeJSON(w, http.StatusOK, map[string]any{
		"closedIssues":   closed,
		"githubUsername": username,
		"repository":     project.RepositoryOwner + "/" + project.RepositoryName,
	})
}
