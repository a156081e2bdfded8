package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/btouchard/sprintdesk/internal/auth"
	"github.com/btouchard/sprintdesk/internal/board"
	"github.com/btouchard/sprintdesk/internal/store"
)

const maxBodyBytes = 1 << 20

// badRequest is a handler-level validation failure.
type badRequest string

func (e badRequest) Error() string { return string(e) }

func invalid(format string, args ...any) error {
	return badRequest(fmt.Sprintf(format, args...))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeError maps domain errors onto HTTP statuses. Unexpected errors are
// logged and answered with a generic 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		bad      badRequest
		upstream *board.UpstreamError
	)
	switch {
	case errors.As(err, &bad):
		writeMessage(w, http.StatusBadRequest, bad.Error())
	case board.IsValidation(err):
		writeMessage(w, http.StatusBadRequest, err.Error())
	case auth.IsForbidden(err):
		writeMessage(w, http.StatusForbidden, err.Error())
	case errors.Is(err, store.ErrNotFound):
		writeMessage(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrConflict):
		writeMessage(w, http.StatusConflict, "already exists")
	case errors.As(err, &upstream):
		writeMessage(w, http.StatusBadGateway, upstream.Msg)
	default:
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeMessage(w, http.StatusInternalServerError, "internal server error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return invalid("invalid JSON body")
	}
	return nil
}

// parseDate accepts RFC 3339 timestamps and plain YYYY-MM-DD dates.
func parseDate(field, s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Time{}, invalid("%s must be a date (YYYY-MM-DD or RFC 3339)", field)
}

func startOfDayUTC(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
