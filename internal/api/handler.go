// Package api provides HTTP handlers for the Foundersync API.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/ashureev/foundersync/internal/agent"
	"github.com/ashureev/foundersync/internal/domain"
	"github.com/ashureev/foundersync/internal/identity"
	"github.com/ashureev/foundersync/internal/store"
)

// maxBodyBytes caps JSON request bodies on the plain REST endpoints.
const maxBodyBytes = 1 << 20

// Handler provides common handler utilities.
type Handler struct {
	repo     store.Repository
	mockMode bool
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(repo store.Repository, mockMode bool) *Handler {
	return &Handler{repo: repo, mockMode: mockMode}
}

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", "error", err)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, ErrorBody{Error: message})
}

// ErrorDetails writes a JSON error response carrying err's text.
func ErrorDetails(w http.ResponseWriter, status int, message string, err error) {
	body := ErrorBody{Error: message}
	if err != nil {
		body.Details = err.Error()
	}
	JSON(w, status, body)
}

// userID returns the caller or writes 401.
func (h *Handler) userID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := identity.UserIDFromContext(r.Context())
	if id == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return "", false
	}
	return id, true
}

// ownedSimulation resolves the simulation addressed by id and checks ownership.
func (h *Handler) ownedSimulation(w http.ResponseWriter, r *http.Request, id string) (*domain.Simulation, bool) {
	userID, ok := h.userID(w, r)
	if !ok {
		return nil, false
	}
	sim, err := store.GetOwnedSimulation(r.Context(), h.repo, id, userID)
	if err != nil {
		writeStoreError(w, err)
		return nil, false
	}
	return sim, true
}

func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		Error(w, http.StatusNotFound, "Simulation not found")
	case errors.Is(err, store.ErrForbidden):
		Error(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, store.ErrVersionConflict):
		ErrorDetails(w, http.StatusConflict, "version conflict", err)
	default:
		slog.Error("Store operation failed", "error", err)
		ErrorDetails(w, http.StatusInternalServerError, "Internal server error", err)
	}
}

// decode reads a JSON body into dst and validates its struct tags.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			Error(w, http.StatusRequestEntityTooLarge, "request body too large")
		case errors.Is(err, io.EOF):
			Error(w, http.StatusBadRequest, "request body is required")
		default:
			ErrorDetails(w, http.StatusBadRequest, "invalid request body", err)
		}
		return false
	}
	if err := agent.Validate(dst); err != nil {
		ErrorDetails(w, http.StatusBadRequest, "missing required fields", err)
		return false
	}
	return true
}
