// Package service exposes the workflow to the transport layer: one
// request-style HTTP operation per transition, read endpoints for the
// dashboards, and the websocket stream for notifications.
package service

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/keza/ikimina/internal/middleware"
	"github.com/keza/ikimina/internal/models"
	"github.com/keza/ikimina/internal/storage"
	"github.com/keza/ikimina/internal/workflow"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		if err := json.NewEncoder(w).Encode(body); err != nil {
			slog.Error("response encode failed", "error", err)
		}
	}
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
}

// writeError maps the domain error taxonomy onto HTTP statuses. State
// errors carry the current state so clients can resync.
func writeError(w http.ResponseWriter, err error) {
	var (
		invalid *workflow.InvalidTransitionError
		already *workflow.AlreadyInStateError
		payload *workflow.InvalidPayloadError
	)

	switch {
	case errors.As(err, &invalid):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":         err.Error(),
			"current_state": invalid.Current,
		})
	case errors.As(err, &already):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":         err.Error(),
			"current_state": already.Status,
		})
	case errors.As(err, &payload):
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "invalid payload",
			"fields": payload.Fields,
		})
	case errors.Is(err, workflow.ErrUnauthorized):
		writeJSON(w, http.StatusForbidden, map[string]string{"error": err.Error()})
	case errors.Is(err, workflow.ErrStaleVersion):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, workflow.ErrTimeout):
		writeJSON(w, http.StatusGatewayTimeout, map[string]string{"error": err.Error()})
	case errors.Is(err, storage.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	case errors.Is(err, storage.ErrDuplicate):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	default:
		slog.Error("internal error", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

// callerIdentity pulls the authenticated identity set by the auth
// middleware; a missing identity is a 401, not a panic.
func callerIdentity(w http.ResponseWriter, r *http.Request) (models.Identity, bool) {
	id, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "authentication required"})
		return models.Identity{}, false
	}
	return id, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		badRequest(w, "invalid request body")
		return false
	}
	return true
}
