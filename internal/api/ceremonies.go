package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/btouchard/sprintdesk/internal/auth"
	"github.com/btouchard/sprintdesk/internal/store"
)

// requireSprintMember passes only for members of the sprint's team.
func (h *handlers) requireSprintMember(r *http.Request, sprintID string) (*store.Sprint, error) {
	p := principal(r)
	sp, _, team, err := h.Access.RequireSprint(p, sprintID)
	if err != nil {
		return nil, err
	}
	member, err := h.Access.IsTeamMember(p, team.ID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, &auth.ForbiddenError{Reason: "only team members can do this"}
	}
	return sp, nil
}

func (h *handlers) listStandups(w http.ResponseWriter, r *http.Request) {
	sprintID := chi.URLParam(r, "sprintID")
	if _, _, _, err := h.Access.RequireSprint(principal(r), sprintID); err != nil {
		writeError(w, r, err)
		return
	}
	standups, err := h.Store.ListStandups(sprintID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]standupView, 0, len(standups))
	for _, s := range standups {
		out = append(out, newStandupView(s))
	}
	writeJSON(w, http.StatusOK, out)
}

// createStandup records the caller's standup; one per UTC day per sprint.
func (h *handlers) createStandup(w http.ResponseWriter, r *http.Request) {
	sprintID := chi.URLParam(r, "sprintID")
	var req struct {
		Yesterday string `json:"yesterday"`
		Today     string `json:"today"`
		Blockers  string `json:"blockers"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Yesterday) == "" || strings.TrimSpace(req.Today) == "" {
		writeError(w, r, invalid("yesterday and today are required"))
		return
	}
	if _, err := h.requireSprintMember(r, sprintID); err != nil {
		writeError(w, r, err)
		return
	}

	userID := principal(r).UserID
	now := h.Now()
	_, err := h.Store.FindStandupSince(sprintID, userID, startOfDayUTC(now))
	switch {
	case err == nil:
		writeError(w, r, invalid("you already submitted a standup today"))
		return
	case !errors.Is(err, store.ErrNotFound):
		writeError(w, r, err)
		return
	}

	su := &store.Standup{SprintID: sprintID, UserID: userID, Date: now,
		Yesterday: req.Yesterday, Today: req.Today, Blockers: req.Blockers}
	if err := h.Store.CreateStandup(su); err != nil {
		if errors.Is(err, store.ErrConflict) {
			writeError(w, r, invalid("you already submitted a standup today"))
			return
		}
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newStandupView(*su))
}

func (h *handlers) listRetrospectives(w http.ResponseWriter, r *http.Request) {
	sprintID := chi.URLParam(r, "sprintID")
	if _, _, _, err := h.Access.RequireSprint(principal(r), sprintID); err != nil {
		writeError(w, r, err)
		return
	}
	retros, err := h.Store.ListRetrospectives(sprintID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]retroView, 0, len(retros))
	for _, rt := range retros {
		out = append(out, newRetroView(rt))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) createRetrospective(w http.ResponseWriter, r *http.Request) {
	sprintID := chi.URLParam(r, "sprintID")
	var req struct {
		WhatWentWell   string `json:"whatWentWell"`
		WhatCanImprove string `json:"whatCanImprove"`
		ActionItems    string `json:"actionItems"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.WhatWentWell) == "" || strings.TrimSpace(req.WhatCanImprove) == "" {
		writeError(w, r, invalid("whatWentWell and whatCanImprove are required"))
		return
	}
	if _, err := h.requireSprintMember(r, sprintID); err != nil {
		writeError(w, r, err)
		return
	}

	rt := &store.Retrospective{SprintID: sprintID, UserID: principal(r).UserID, CreatedAt: h.Now(),
		WhatWentWell: req.WhatWentWell, WhatCanImprove: req.WhatCanImprove, ActionItems: req.ActionItems}
	if err := h.Store.CreateRetrospective(rt); err != nil {
		if errors.Is(err, store.ErrConflict) {
			writeError(w, r, invalid("you already submitted a retrospective for this sprint"))
			return
		}
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newRetroView(*rt))
}
