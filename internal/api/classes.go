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

// requireClass fails unless the caller teaches classID or is a student in it.
func (h *handlers) requireClass(r *http.Request, classID string) (*store.Class, error) {
	c, err := h.Store.GetClass(classID)
	if err != nil {
		return nil, err
	}
	p := principal(r)
	if p.IsTeacher() {
		return c, h.Access.RequireClassTeacher(p, classID)
	}
	u, err := h.Store.GetUser(p.UserID)
	if err != nil {
		return nil, err
	}
	if u.ClassID != classID {
		return nil, &auth.ForbiddenError{Reason: "not a member of this class"}
	}
	return c, nil
}

// Teachers see the classes they teach; students see every class they could join.
func (h *handlers) listClasses(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	var (
		classes []store.Class
		err     error
	)
	if p.IsTeacher() {
		classes, err = h.Store.ListClassesForTeacher(p.UserID)
	} else {
		classes, err = h.Store.ListClasses()
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := make([]classView, 0, len(classes))
	for _, c := range classes {
		out = append(out, newClassView(c))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) createClass(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, r, invalid("class name is required"))
		return
	}

	c := &store.Class{Name: strings.TrimSpace(req.Name), Description: req.Description}
	if err := h.Store.CreateClass(c); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.Store.LinkTeacher(c.ID, principal(r).UserID); err != nil {
		writeError(w, r, err)
		return
	}
	slog.Info("class created", "class_id", c.ID, "teacher_id", principal(r).UserID)
	writeJSON(w, http.StatusCreated, newClassView(*c))
}

func (h *handlers) getClass(w http.ResponseWriter, r *http.Request) {
	classID := chi.URLParam(r, "classID")
	c, err := h.requireClass(r, classID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	students, err := h.Store.ListClassStudents(classID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	teams, err := h.Store.ListTeamsByClass(classID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := struct {
		classView
		Students []userView         `json:"students"`
		Teams    []teamView         `json:"teams"`
		Requests []classRequestView `json:"requests"`
	}{classView: newClassView(*c), Students: []userView{}, Teams: []teamView{}, Requests: []classRequestView{}}

	for _, s := range students {
		resp.Students = append(resp.Students, newUserView(s))
	}
	for _, t := range teams {
		resp.Teams = append(resp.Teams, newTeamView(t, nil))
	}
	if principal(r).IsTeacher() {
		reqs, err := h.Store.ListClassRequests(classID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		for _, cr := range reqs {
			resp.Requests = append(resp.Requests, newClassRequestView(cr))
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// requestJoin files a pending join request for a student without a class.
func (h *handlers) requestJoin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ClassID string `json:"classId"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.ClassID == "" {
		writeError(w, r, invalid("classId is required"))
		return
	}

	p := principal(r)
	if p.Role != auth.RoleStudent {
		writeError(w, r, &auth.ForbiddenError{Reason: "only students can request to join classes"})
		return
	}
	u, err := h.Store.GetUser(p.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if u.ClassID != "" {
		writeError(w, r, invalid("you are already in a class"))
		return
	}
	if _, err := h.Store.GetClass(req.ClassID); err != nil {
		writeError(w, r, err)
		return
	}

	cr := &store.ClassRequest{ClassID: req.ClassID, UserID: p.UserID}
	if err := h.Store.CreateClassRequest(cr); err != nil {
		if errors.Is(err, store.ErrConflict) {
			writeError(w, r, invalid("you already have a pending request for this class"))
			return
		}
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newClassRequestView(*cr))
}

func (h *handlers) answerJoinRequest(w http.ResponseWriter, r *http.Request) {
	classID := chi.URLParam(r, "classID")
	requestID := chi.URLParam(r, "requestID")

	var req struct {
		Action string `json:"action"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	switch req.Action {
	case "approve":
		req.Action = "accept"
	case "decline":
		req.Action = "reject"
	}
	if req.Action != "accept" && req.Action != "reject" {
		writeError(w, r, invalid("action must be accept or reject"))
		return
	}

	if _, err := h.Store.GetClass(classID); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.Access.RequireClassTeacher(principal(r), classID); err != nil {
		writeError(w, r, err)
		return
	}
	cr, err := h.Store.GetClassRequest(requestID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if cr.ClassID != classID {
		writeMessage(w, http.StatusNotFound, "request not found")
		return
	}

	if req.Action == "accept" {
		err = h.Store.AcceptClassRequest(requestID)
	} else {
		err = h.Store.DeleteClassRequest(requestID)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	slog.Info("class request answered", "class_id", classID, "user_id", cr.UserID, "action", req.Action)
	if req.Action == "accept" {
		writeJSON(w, http.StatusOK, map[string]string{"message": "student accepted"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "student rejected"})
}

// syncClass runs a sync pass over every linked project of the class.
func (h *handlers) syncClass(w http.ResponseWriter, r *http.Request) {
	classID := chi.URLParam(r, "classID")
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
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

// availableClasses lists the classes a student could still ask to join.
func (h *handlers) availableClasses(w http.ResponseWriter, r *http.Request) {
	classes, err := h.Store.ListJoinableClasses(principal(r).UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]classView, 0, len(classes))
	for _, c := range classes {
		out = append(out, newClassView(c))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) updateClass(w http.ResponseWriter, r *http.Request) {
	classID := chi.URLParam(r, "classID")
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
		if name == "" {
			writeError(w, r, invalid("class name cannot be empty"))
			return
		}
		req.Name = &name
	}
	if _, err := h.Store.GetClass(classID); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.Access.RequireClassTeacher(principal(r), classID); err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.Store.UpdateClass(classID, store.ClassFields{Name: req.Name, Description: req.Description}); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := h.Store.GetClass(classID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newClassView(*c))
}

// removeStudent takes a student out of the class and its teams.
func (h *handlers) removeStudent(w http.ResponseWriter, r *http.Request) {
	classID := chi.URLParam(r, "classID")
	studentID := chi.URLParam(r, "studentID")
	if _, err := h.Store.GetClass(classID); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.Access.RequireClassTeacher(principal(r), classID); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.Store.RemoveClassStudent(classID, studentID); err != nil {
		writeError(w, r, err)
		return
	}
	slog.Info("student removed from class", "class_id", classID, "user_id", studentID)
	writeJSON(w, http.StatusOK, map[string]string{"message": "student removed from class"})
}

// linkTeacher adds a co-teacher to a class. A teacher of the class may link
// any teacher; a class nobody teaches may be claimed by the caller.
func (h *handlers) linkTeacher(w http.ResponseWriter, r *http.Request) {
	classID := chi.URLParam(r, "classID")
	var req struct {
		TeacherID string `json:"teacherId"`
	}
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}
	}
	p := principal(r)
	if req.TeacherID == "" {
		req.TeacherID = p.UserID
	}

	if _, err := h.Store.GetClass(classID); err != nil {
		writeError(w, r, err)
		return
	}
	teaches, err := h.Access.IsClassTeacher(p, classID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !teaches {
		n, err := h.Store.CountClassTeachers(classID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if n > 0 || !p.IsTeacher() || req.TeacherID != p.UserID {
			writeError(w, r, &auth.ForbiddenError{Reason: "only a teacher of this class can link teachers"})
			return
		}
	}

	target, err := h.Store.GetUser(req.TeacherID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if target.Role != store.RoleTeacher {
		writeError(w, r, invalid("user %s is not a teacher", target.ID))
		return
	}
	already, err := h.Store.IsClassTeacher(classID, target.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if already {
		writeJSON(w, http.StatusOK, map[string]string{"message": "already linked"})
		return
	}
	if err := h.Store.LinkTeacher(classID, target.ID); err != nil {
		writeError(w, r, err)
		return
	}
	slog.Info("teacher linked", "class_id", classID, "teacher_id", target.ID, "by", p.UserID)
	writeJSON(w, http.StatusCreated, map[string]string{"message": "linked as teacher", "teacherId": target.ID})
}
