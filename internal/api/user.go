package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/btouchard/sprintdesk/internal/store"
)

// activeSprint returns the running sprint of the student's first team.
func (h *handlers) activeSprint(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	none := map[string]any{"activeSprint": nil}
	if p.IsTeacher() {
		writeJSON(w, http.StatusOK, none)
		return
	}

	teams, err := h.Store.ListTeamsForUser(p.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if len(teams) == 0 {
		writeJSON(w, http.StatusOK, none)
		return
	}
	project, err := h.Store.GetProjectByTeam(teams[0].ID)
	if errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusOK, none)
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	sprints, err := h.Store.ListSprintsByProject(project.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	now := h.Now()
	// Sprints come ordered by start date; the latest matching start wins.
	for i := len(sprints) - 1; i >= 0; i-- {
		sp := sprints[i]
		if sp.Status != store.SprintActive || now.Before(sp.StartDate) || now.After(sp.EndDate) {
			continue
		}
		writeJSON(w, http.StatusOK, map[string]any{"activeSprint": struct {
			sprintView
			Project *projectView `json:"project"`
			Team    teamView     `json:"team"`
		}{newSprintView(sp), newProjectView(project), newTeamView(teams[0], nil)}})
		return
	}
	writeJSON(w, http.StatusOK, none)
}

// githubConnection reports whether the caller has a usable GitHub grant.
func (h *handlers) githubConnection(w http.ResponseWriter, r *http.Request) {
	userID := principal(r).UserID
	cred, err := h.Store.GetCredential(userID, store.ProviderGitHub)
	if errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusOK, map[string]any{"connected": false})
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	token, err := h.token(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := map[string]any{
		"connected": token != "",
		"scope":     cred.Scope,
		"username":  "",
	}
	if token != "" {
		resp["username"] = h.Tokens.Username(r.Context(), userID)
	}
	if cred.ExpiresAt != nil {
		resp["expiresAt"] = *cred.ExpiresAt
	}
	writeJSON(w, http.StatusOK, resp)
}

// disconnectGitHub forgets the caller's GitHub grant.
func (h *handlers) disconnectGitHub(w http.ResponseWriter, r *http.Request) {
	userID := principal(r).UserID
	n, err := h.Store.DeleteCredentials(userID, store.ProviderGitHub)
	if err != nil {
		writeError(w, r, err)
		return
	}
	slog.Info("github credentials removed", "user_id", userID, "count", n)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "removed": n})
}
