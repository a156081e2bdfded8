package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/btouchard/sprintdesk/internal/store"
)

func (h *handlers) classProjectIDs(classID string) ([]string, error) {
	projects, err := h.Store.ListProjectsByClass(classID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(projects))
	for _, p := range projects {
		ids = append(ids, p.ID)
	}
	return ids, nil
}

func (h *handlers) listBacklog(w http.ResponseWriter, r *http.Request) {
	classID := chi.URLParam(r, "classID")
	if _, err := h.requireClass(r, classID); err != nil {
		writeError(w, r, err)
		return
	}
	ids, err := h.classProjectIDs(classID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	issues, err := h.Board.Backlog(ids)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"issues": newIssueViews(issues)})
}

// classProject returns projectID if it belongs to classID and the caller may
// use it. An empty projectID picks the class's first project.
func (h *handlers) classProject(r *http.Request, classID, projectID string) (*store.Project, error) {
	if projectID == "" {
		projects, err := h.Store.ListProjectsByClass(classID)
		if err != nil {
			return nil, err
		}
		if len(projects) == 0 {
			return nil, invalid("no project found for this class")
		}
		projectID = projects[0].ID
	}
	project, team, err := h.Access.RequireProject(principal(r), projectID)
	if err != nil {
		return nil, err
	}
	if team.ClassID != classID {
		return nil, invalid("project does not belong to this class")
	}
	return project, nil
}

// classIssue loads issueID and checks it belongs to a project of classID.
func (h *handlers) classIssue(r *http.Request, classID, issueID string) (*store.Issue, error) {
	issue, err := h.Store.GetIssue(issueID)
	if err != nil {
		return nil, err
	}
	if _, err := h.classProject(r, classID, issue.ProjectID); err != nil {
		return nil, err
	}
	return issue, nil
}

// backlogIssue is classIssue restricted to issues not planned in a sprint.
func (h *handlers) backlogIssue(r *http.Request, classID, issueID string) (*store.Issue, error) {
	issue, err := h.classIssue(r, classID, issueID)
	if err != nil {
		return nil, err
	}
	if issue.SprintID != nil {
		return nil, invalid("issue #%d is planned in a sprint", issue.IssueNumber)
	}
	return issue, nil
}

func (h *handlers) createBacklogIssue(w http.ResponseWriter, r *http.Request) {
	classID := chi.URLParam(r, "classID")
	var req struct {
		ProjectID string  `json:"projectId"`
		Title     string  `json:"title"`
		Body      *string `json:"body"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Body != nil && *req.Body == "" {
		req.Body = nil
	}

	project, err := h.classProject(r, classID, req.ProjectID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	token, err := h.token(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	out, err := h.Board.CreateIssue(r.Context(), project, req.Title, req.Body, token)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, outcomeView{Issue: newIssueView(out.Issue), Warning: out.Warning})
}

func (h *handlers) editBacklogIssue(w http.ResponseWriter, r *http.Request) {
	classID := chi.URLParam(r, "classID")
	issueID := chi.URLParam(r, "issueID")
	var req struct {
		Title *string `json:"title"`
		Body  *string `json:"body"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if _, err := h.backlogIssue(r, classID, issueID); err != nil {
		writeError(w, r, err)
		return
	}

	issue, err := h.Board.EditIssue(issueID, req.Title, req.Body)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newIssueView(issue))
}

// deleteBacklogIssue removes an issue of the class, detaching it from its
// sprint first; ?closeUpstream=true also closes it on GitHub.
func (h *handlers) deleteBacklogIssue(w http.ResponseWriter, r *http.Request) {
	classID := chi.URLParam(r, "classID")
	issueID := chi.URLParam(r, "issueID")
	closeUpstream, _ := strconv.ParseBool(r.URL.Query().Get("closeUpstream"))

	if _, err := h.classIssue(r, classID, issueID); err != nil {
		writeError(w, r, err)
		return
	}
	token, err := h.token(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	out, err := h.Board.DeleteIssue(r.Context(), issueID, token, closeUpstream)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "warning": out.Warning})
}

type outcomeView struct {
	Issue   *issueView `json:"issue,omitempty"`
	Warning string     `json:"warning,omitempty"`
}
