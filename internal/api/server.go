// Package api serves the sprintdesk JSON API.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/btouchard/sprintdesk/internal/auth"
	"github.com/btouchard/sprintdesk/internal/board"
	"github.com/btouchard/sprintdesk/internal/store"
	"github.com/btouchard/sprintdesk/internal/sync"
)

// TokenSource hands out upstream tokens for users.
type TokenSource interface {
	ValidToken(ctx context.Context, userID string) (string, error)
	Username(ctx context.Context, userID string) string
}

// Deps holds what the handlers need.
type Deps struct {
	Store    store.Store
	Sessions *auth.Sessions
	Access   *auth.Access
	Tokens   TokenSource
	Engine   *sync.Engine
	Board    *board.Service
	// MCP is mounted at /mcp behind the same bearer auth when non-nil.
	MCP http.Handler
	Now func() time.Time
}

type handlers struct {
	Deps
}

// NewRouter builds the HTTP handler for the whole API.
func NewRouter(d Deps) http.Handler {
	if d.Now == nil {
		d.Now = time.Now
	}
	h := &handlers{Deps: d}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(RequestLogger)
	r.Use(SecurityHeaders)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(d.Sessions))

		if d.MCP != nil {
			r.Handle("/mcp", d.MCP)
		}

		r.Route("/api/classes", func(r chi.Router) {
			r.Get("/", h.listClasses)
			r.With(RequireTeacher).Post("/", h.createClass)
			r.Get("/available", h.availableClasses)
			r.Post("/request", h.requestJoin)
			r.Route("/{classID}", func(r chi.Router) {
				r.Get("/", h.getClass)
				r.Patch("/", h.updateClass)
				r.With(RequireTeacher).Post("/link-teacher", h.linkTeacher)
				r.Delete("/students/{studentID}", h.removeStudent)
				r.Get("/students-issues", h.studentsIssues)
				r.Patch("/requests/{requestID}", h.answerJoinRequest)
				r.Post("/requests/{requestID}", h.answerJoinRequest)
				r.Get("/backlog", h.listBacklog)
				r.Post("/backlog", h.createBacklogIssue)
				r.Patch("/backlog/{issueID}", h.editBacklogIssue)
				r.Delete("/backlog/{issueID}", h.deleteBacklogIssue)
				r.Post("/sync", h.syncClass)
			})
		})

		r.Route("/api/teams", func(r chi.Router) {
			r.Get("/", h.listTeams)
			r.With(RequireTeacher).Post("/", h.createTeam)
			r.Route("/{teamID}", func(r chi.Router) {
				r.Get("/", h.getTeam)
				r.With(RequireTeacher).Patch("/", h.updateTeam)
				r.With(RequireTeacher).Delete("/", h.deleteTeam)
				r.With(RequireTeacher).Post("/members", h.addTeamMember)
				r.With(RequireTeacher).Delete("/members", h.removeTeamMember)
				r.Patch("/repository", h.linkRepository)
			})
		})

		r.With(RequireTeacher).Get("/api/teacher/standups", h.teacherStandups)

		r.Route("/api/sprints", func(r chi.Router) {
			r.Get("/", h.listSprints)
			r.With(RequireTeacher).Post("/", h.createSprint)
			r.Route("/{sprintID}", func(r chi.Router) {
				r.Get("/", h.getSprint)
				r.Get("/issues", h.sprintBoard)
				r.Post("/issues", h.assignIssue)
				r.Patch("/issues", h.updateIssueStatus)
				r.Delete("/issues/{issueID}", h.unassignIssue)
				r.Post("/issues/{issueID}/close", h.closeIssue)
				r.Get("/closed-issues", h.closedIssues)
				r.Get("/standups", h.listStandups)
				r.Post("/standups", h.createStandup)
				r.Get("/retrospectives", h.listRetrospectives)
				r.Post("/retrospectives", h.createRetrospective)
			})
		})

		r.Route("/api/user", func(r chi.Router) {
			r.Get("/active-sprint", h.activeSprint)
			r.Get("/github", h.githubConnection)
			r.Delete("/github", h.disconnectGitHub)
		})
	})

	return r
}

// token returns the caller's upstream token, or "" when not connected.
func (h *handlers) token(r *http.Request) (string, error) {
	return h.Tokens.ValidToken(r.Context(), principal(r).UserID)
}
