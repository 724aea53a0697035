package api

import (
	"log/slog"
	"net/http"

	"github.com/ashureev/foundersync/internal/agent"
	"github.com/ashureev/foundersync/internal/domain"
	"github.com/ashureev/foundersync/internal/identity"
	"github.com/go-chi/chi/v5"
)

// SimulationHandler handles simulation, agent output and identity endpoints.
type SimulationHandler struct {
	*Handler
}

// NewSimulationHandler creates a new simulation handler.
func NewSimulationHandler(base *Handler) *SimulationHandler {
	return &SimulationHandler{Handler: base}
}

// RegisterRoutes registers simulation routes.
func (h *SimulationHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/me", h.GetMe)
	r.Get("/api/config", h.GetConfig)
	r.Post("/api/simulations", h.Create)
	r.Get("/api/simulations", h.List)
	r.Get("/api/simulations/{id}", h.Get)
	r.Put("/api/simulations/{id}/agents/{agentName}", h.UpdateAgentOutput)
	r.Get("/api/simulations/{id}/changes", h.ListChanges)
}

// GetMe returns the current user's information.
func (h *SimulationHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	user, err := h.repo.GetUser(r.Context(), userID)
	if err != nil || user == nil {
		Error(w, http.StatusUnauthorized, "user not found")
		return
	}

	JSON(w, http.StatusOK, map[string]any{
		"user_id":      user.UserID,
		"email":        user.Email,
		"last_seen_at": user.LastSeenAt,
	})
}

// GetConfig returns the server configuration for the frontend.
func (h *SimulationHandler) GetConfig(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, map[string]any{
		"agents":     agent.Roles,
		"mock_model": h.mockMode,
	})
}

type createSimulationRequest struct {
	StartupName string `json:"startupName" validate:"required"`
	Description string `json:"description" validate:"required"`
	Industry    string `json:"industry" validate:"required"`
}

// Create starts a new simulation for the caller.
func (h *SimulationHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	var req createSimulationRequest
	if !decode(w, r, &req) {
		return
	}

	sim := &domain.Simulation{
		UserID:      userID,
		StartupName: req.StartupName,
		Description: req.Description,
		Industry:    req.Industry,
	}
	if err := h.repo.CreateSimulation(r.Context(), sim); err != nil {
		slog.Error("Failed to create simulation", "error", err, "user_id", userID)
		ErrorDetails(w, http.StatusInternalServerError, "Failed to create simulation", err)
		return
	}

	slog.Info("Simulation created", "user_id", userID, "simulation_id", sim.ID, "industry", sim.Industry)
	JSON(w, http.StatusCreated, map[string]string{
		"simulationId": sim.ID,
		"message":      "Simulation created successfully",
	})
}

// List returns the caller's simulations, newest first.
func (h *SimulationHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	sims, err := h.repo.ListSimulations(r.Context(), userID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if sims == nil {
		sims = []*domain.Simulation{}
	}
	JSON(w, http.StatusOK, map[string]any{"simulations": sims})
}

// Get returns one simulation with its agents' current outputs.
func (h *SimulationHandler) Get(w http.ResponseWriter, r *http.Request) {
	sim, ok := h.ownedSimulation(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	outputs, err := h.repo.ListAgentOutputs(r.Context(), sim.ID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if outputs == nil {
		outputs = []*domain.AgentOutput{}
	}
	JSON(w, http.StatusOK, map[string]any{"simulation": sim, "outputs": outputs})
}

type updateOutputRequest struct {
	Field   string            `json:"field" validate:"required"`
	Value   string            `json:"value"`
	Type    domain.ChangeType `json:"type"`
	Version int               `json:"version" validate:"gte=0"`
}

// UpdateAgentOutput replaces an agent's output and records the change.
func (h *SimulationHandler) UpdateAgentOutput(w http.ResponseWriter, r *http.Request) {
	sim, ok := h.ownedSimulation(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	role, err := agent.ParseRole(chi.URLParam(r, "agentName"))
	if err != nil {
		ErrorDetails(w, http.StatusBadRequest, "unknown agent", err)
		return
	}

	var req updateOutputRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Type == "" {
		req.Type = domain.ChangeManual
	}
	if !req.Type.Valid() {
		Error(w, http.StatusBadRequest, "invalid change type")
		return
	}

	userID := identity.UserIDFromContext(r.Context())
	output, change, err := h.repo.UpdateAgentOutput(r.Context(), domain.AgentOutputUpdate{
		SimulationID:    sim.ID,
		AgentName:       string(role),
		Field:           req.Field,
		Value:           req.Value,
		ModifiedBy:      userID,
		Type:            req.Type,
		ExpectedVersion: req.Version,
	})
	if err != nil {
		slog.Warn("Agent output update failed", "simulation_id", sim.ID, "agent", role, "error", err)
		writeStoreError(w, err)
		return
	}

	slog.Info("Agent output updated",
		"simulation_id", sim.ID,
		"agent", role,
		"version", output.Version,
		"type", change.Type,
	)
	JSON(w, http.StatusOK, map[string]any{"output": output, "change": change})
}

// ListChanges returns the change log of a simulation, newest first.
func (h *SimulationHandler) ListChanges(w http.ResponseWriter, r *http.Request) {
	sim, ok := h.ownedSimulation(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	agentName := r.URL.Query().Get("agent")
	if agentName != "" {
		role, err := agent.ParseRole(agentName)
		if err != nil {
			ErrorDetails(w, http.StatusBadRequest, "unknown agent", err)
			return
		}
		agentName = string(role)
	}

	logs, err := h.repo.ListChangeLogs(r.Context(), sim.ID, agentName)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if logs == nil {
		logs = []*domain.ChangeLog{}
	}
	JSON(w, http.StatusOK, map[string]any{"changes": logs})
}
