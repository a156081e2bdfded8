package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/btouchard/sprintdesk/internal/auth"
	"github.com/btouchard/sprintdesk/internal/store"
)

const defaultMemberRole = "developer"

// Teachers see every team of the classes they teach; students see their own teams.
func (h *handlers) listTeams(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	var teams []store.Team
	if p.IsTeacher() {
		classes, err := h.Store.ListClassesForTeacher(p.UserID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		for _, c := range classes {
			ts, err := h.Store.ListTeamsByClass(c.ID)
			if err != nil {
				writeError(w, r, err)
				return
			}
			teams = append(teams, ts...)
		}
	} else {
		var err error
		if teams, err = h.Store.ListTeamsForUser(p.UserID); err != nil {
			writeError(w, r, err)
			return
		}
	}

	out := make([]teamView, 0, len(teams))
	for _, t := range teams {
		project, err := h.Store.GetProjectByTeam(t.ID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			writeError(w, r, err)
			return
		}
		out = append(out, newTeamView(t, project))
	}
	writeJSON(w, http.StatusOK, out)
}

// createTeam creates a team in a class the caller teaches, with its project.
func (h *handlers) createTeam(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		ClassID     string `json:"classId"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || req.ClassID == "" {
		writeError(w, r, invalid("name and classId are required"))
		return
	}
	if _, err := h.Store.GetClass(req.ClassID); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.Access.RequireClassTeacher(principal(r), req.ClassID); err != nil {
		writeError(w, r, err)
		return
	}

	team := &store.Team{ClassID: req.ClassID, Name: req.Name, Description: req.Description}
	project := &store.Project{Name: req.Name + " Project", Description: req.Description}
	if err := h.Store.CreateTeamWithProject(team, project); err != nil {
		if errors.Is(err, store.ErrConflict) {
			writeError(w, r, invalid("a team with this name already exists in this class"))
			return
		}
		writeError(w, r, err)
		return
	}
	slog.Info("team created", "team_id", team.ID, "class_id", team.ClassID, "project_id", project.ID)
	writeJSON(w, http.StatusCreated, newTeamView(*team, project))
}

func (h *handlers) addTeamMember(w http.ResponseWriter, r *http.Request) {
	teamID := chi.URLParam(r, "teamID")
	var req struct {
		UserID string `json:"userId"`
		Role   string `json:"role"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.UserID == "" {
		writeError(w, r, invalid("userId is required"))
		return
	}
	if req.Role == "" {
		req.Role = defaultMemberRole
	}

	team, err := h.Store.GetTeam(teamID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.Access.RequireClassTeacher(principal(r), team.ClassID); err != nil {
		writeError(w, r, err)
		return
	}
	student, err := h.Store.GetUser(req.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if student.ClassID != team.ClassID {
		writeError(w, r, invalid("student is not in the team's class"))
		return
	}
	current, err := h.Store.ListTeamsForUser(student.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	for _, t := range current {
		switch {
		case t.ID == teamID:
			writeError(w, r, invalid("student is already a member of this team"))
			return
		case t.ClassID == team.ClassID:
			writeError(w, r, invalid("student is already in team %q", t.Name))
			return
		}
	}

	m := &store.TeamMember{TeamID: teamID, UserID: req.UserID, Role: req.Role}
	if err := h.Store.AddTeamMember(m); err != nil {
		if errors.Is(err, store.ErrConflict) {
			writeError(w, r, invalid("student is already a member of this team"))
			return
		}
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"teamId": m.TeamID, "userId": m.UserID, "role": m.Role})
}

// linkRepository points the team's project at an upstream repository.
func (h *handlers) linkRepository(w http.ResponseWriter, r *http.Request) {
	teamID := chi.URLParam(r, "teamID")
	var req struct {
		URL   string `json:"url"`
		Owner string `json:"owner"`
		Name  string `json:"name"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.URL == "" || req.Owner == "" || req.Name == "" {
		writeError(w, r, invalid("url, owner and name are required"))
		return
	}

	p := principal(r)
	if _, err := h.Store.GetTeam(teamID); err != nil {
		writeError(w, r, err)
		return
	}
	member, err := h.Access.IsTeamMember(p, teamID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !member {
		writeMessage(w, http.StatusForbidden, "only team members can link a repository")
		return
	}
	project, err := h.Store.GetProjectByTeam(teamID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.Store.UpdateProjectRepository(project.ID, req.URL, req.Owner, req.Name); err != nil {
		writeError(w, r, err)
		return
	}
	project.RepositoryURL, project.RepositoryOwner, project.RepositoryName = req.URL, req.Owner, req.Name
	slog.Info("repository linked", "project_id", project.ID, "repo", req.Owner+"/"+req.Name)
	writeJSON(w, http.StatusOK, newProjectView(project))
}

type memberView struct {
	userView
	TeamRole string `json:"teamRole"`
}

// getTeam shows a team with its project and members to its class's teachers
// and to its members.
func (h *handlers) getTeam(w http.ResponseWriter, r *http.Request) {
	teamID := chi.URLParam(r, "teamID")
	team, err := h.Access.RequireTeam(principal(r), teamID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	project, err := h.Store.GetProjectByTeam(teamID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		writeError(w, r, err)
		return
	}
	members, err := h.Store.ListTeamMembers(teamID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := struct {
		teamView
		Members []memberView `json:"members"`
	}{teamView: newTeamView(*team, project), Members: make([]memberView, 0, len(members))}
	for _, m := range members {
		resp.Members = append(resp.Members, memberView{userView: newUserView(m.User), TeamRole: m.TeamRole})
	}
	writeJSON(w, http.StatusOK, resp)
}

// teamForTeacher loads teamID and checks the caller teaches its class.
func (h *handlers) teamForTeacher(r *http.Request, teamID string) (*store.Team, error) {
	team, err := h.Store.GetTeam(teamID)
	if err != nil {
		return nil, err
	}
	if err := h.Access.RequireClassTeacher(principal(r), team.ClassID); err != nil {
		if auth.IsForbidden(err) {
			return nil, &auth.ForbiddenError{Reason: "you can only manage teams of your own classes"}
		}
		return nil, err
	}
	return team, nil
}

func (h *handlers) updateTeam(w http.ResponseWriter, r *http.Request) {
	teamID := chi.URLParam(r, "teamID")
	var req struct {
		Name        *string `json:"name"`
		Description *string `json:"description"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if len(name) < 2 {
			writeError(w, r, invalid("team name must be at least 2 characters"))
			return
		}
		req.Name = &name
	}
	if _, err := h.teamForTeacher(r, teamID); err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.Store.UpdateTeam(teamID, store.TeamFields{Name: req.Name, Description: req.Description}); err != nil {
		if errors.Is(err, store.ErrConflict) {
			writeError(w, r, invalid("a team with this name already exists in this class"))
			return
		}
		writeError(w, r, err)
		return
	}
	team, err := h.Store.GetTeam(teamID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	project, err := h.Store.GetProjectByTeam(teamID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newTeamView(*team, project))
}

func (h *handlers) deleteTeam(w http.ResponseWriter, r *http.Request) {
	teamID := chi.URLParam(r, "teamID")
	team, err := h.teamForTeacher(r, teamID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.Store.DeleteTeam(teamID); err != nil {
		writeError(w, r, err)
		return
	}
	slog.Info("team deleted", "team_id", teamID, "class_id", team.ClassID)
	writeJSON(w, http.StatusOK, map[string]string{"message": "team deleted"})
}

// removeTeamMember drops ?userId= from the team.
func (h *handlers) removeTeamMember(w http.ResponseWriter, r *http.Request) {
	teamID := chi.URLParam(r, "teamID")
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		writeError(w, r, invalid("userId is required"))
		return
	}
	if _, err := h.teamForTeacher(r, teamID); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.Store.RemoveTeamMember(teamID, userID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "member removed"})
}
