package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/ashureev/foundersync/internal/domain"
	"github.com/ashureev/foundersync/internal/identity"
	"github.com/ashureev/foundersync/internal/store"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// RateLimiter implements a per-user sliding-window rate limiter.
type RateLimiter struct {
	mu       sync.Mutex
	requests map[string][]time.Time
	limit    int
	window   time.Duration
	done     chan struct{}
	once     sync.Once
}

// NewRateLimiter creates a new rate limiter and starts the background eviction goroutine.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
		done:     make(chan struct{}),
	}
	rl.startEviction()
	return rl
}

// Allow checks if a request is allowed for the given key.
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	recent := r.fresh(r.requests[key], now.Add(-r.window))

	if len(recent) >= r.limit {
		r.requests[key] = recent
		return false
	}

	r.requests[key] = append(recent, now)
	return true
}

// Stop ends the eviction goroutine.
func (r *RateLimiter) Stop() {
	r.once.Do(func() { close(r.done) })
}

func (r *RateLimiter) fresh(times []time.Time, cutoff time.Time) []time.Time {
	var out []time.Time
	for _, t := range times {
		if t.After(cutoff) {
			out = append(out, t)
		}
	}
	return out
}

// startEviction periodically drops keys with no requests inside the window.
func (r *RateLimiter) startEviction() {
	go func() {
		ticker := time.NewTicker(r.window)
		defer ticker.Stop()
		for {
			select {
			case <-r.done:
				return
			case <-ticker.C:
			}
			r.mu.Lock()
			cutoff := time.Now().Add(-r.window)
			for key, times := range r.requests {
				if fresh := r.fresh(times, cutoff); len(fresh) == 0 {
					delete(r.requests, key)
				} else {
					r.requests[key] = fresh
				}
			}
			r.mu.Unlock()
		}
	}()
}

// Handler serves agent chat over HTTP, SSE and WebSocket.
type Handler struct {
	agent          *Service
	repo           store.Repository
	rateLimiter    *RateLimiter
	sessions       *ChatSessions
	cfg            Config
	originPatterns []string
}

// NewHandler creates a new agent handler.
func NewHandler(svc *Service, repo store.Repository, originPatterns []string) *Handler {
	cfg := svc.Config()
	if cfg.RateLimitRequests <= 0 {
		cfg.RateLimitRequests = DefaultConfig().RateLimitRequests
	}
	if cfg.RateLimitWindow <= 0 {
		cfg.RateLimitWindow = DefaultConfig().RateLimitWindow
	}
	if cfg.MaxRequestBodySize <= 0 {
		cfg.MaxRequestBodySize = DefaultConfig().MaxRequestBodySize
	}
	return &Handler{
		agent:          svc,
		repo:           repo,
		rateLimiter:    NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow),
		sessions:       NewChatSessions(),
		cfg:            cfg,
		originPatterns: originPatterns,
	}
}

// RegisterRoutes registers agent routes (requires authentication).
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/api/simulations/{id}/conversations", h.HandleListConversations)
	r.Post("/api/simulations/{id}/conversations", h.HandleChat)
	r.Post("/api/simulations/{id}/conversations/stream", h.HandleChatStream)
	r.Post("/api/ask-agent", h.HandleAsk)
	r.Get("/ws/simulations/{id}/chat", h.HandleWebSocket)
}

// Close stops the rate limiter and closes open WebSocket chats.
func (h *Handler) Close() {
	h.rateLimiter.Stop()
	h.sessions.CloseAll("server shutting down")
}

type errorBody struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string, err error) {
	body := errorBody{Error: msg}
	if err != nil {
		body.Details = err.Error()
	}
	writeJSON(w, status, body)
}

// writeStoreError maps repository sentinels to HTTP statuses.
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "Simulation not found", nil)
	case errors.Is(err, store.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", nil)
	default:
		writeError(w, http.StatusInternalServerError, "Internal server error", err)
	}
}

// authorize resolves the caller and the simulation they address.
func (h *Handler) authorize(w http.ResponseWriter, r *http.Request, simulationID string) (string, *domain.Simulation, bool) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "Unauthorized", nil)
		return "", nil, false
	}
	sim, err := store.GetOwnedSimulation(r.Context(), h.repo, simulationID, userID)
	if err != nil {
		writeStoreError(w, err)
		return "", nil, false
	}
	return userID, sim, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large", nil)
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return false
	}
	if err := Validate(dst); err != nil {
		writeError(w, http.StatusBadRequest, "missing required fields", err)
		return false
	}
	return true
}

// loadContext builds the reply context from the most recent conversations.
func (h *Handler) loadContext(ctx context.Context, sim *domain.Simulation) (ConversationContext, error) {
	convs, err := h.repo.RecentConversations(ctx, sim.ID, h.cfg.HistoryLimit)
	if err != nil {
		return ConversationContext{}, fmt.Errorf("load conversation history: %w", err)
	}
	return BuildContext(sim, convs), nil
}

// chatCall is a validated chat request ready for the model.
type chatCall struct {
	userID  string
	sim     *domain.Simulation
	role    Role
	message string
	cc      ConversationContext
}

func (h *Handler) prepareChat(w http.ResponseWriter, r *http.Request) (*chatCall, bool) {
	userID, sim, ok := h.authorize(w, r, chi.URLParam(r, "id"))
	if !ok {
		return nil, false
	}

	if !h.rateLimiter.Allow(userID) {
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded", nil)
		return nil, false
	}

	var req ChatRequest
	if !h.decode(w, r, &req) {
		return nil, false
	}
	role, err := ParseRole(req.AgentName)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unknown agent", err)
		return nil, false
	}

	cc, err := h.loadContext(r.Context(), sim)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load conversation history", err)
		return nil, false
	}

	slog.Info("Agent chat request",
		"user_id", userID,
		"simulation_id", sim.ID,
		"agent", role,
		"history", len(cc.History),
		"message_length", len(req.Message),
		"request_id", chiMiddleware.GetReqID(r.Context()),
	)
	return &chatCall{userID: userID, sim: sim, role: role, message: req.Message, cc: cc}, true
}

func (h *Handler) saveConversation(ctx context.Context, call *chatCall, reply domain.AgentReply) error {
	return h.repo.SaveConversation(ctx, &domain.Conversation{
		SimulationID:  call.sim.ID,
		AgentName:     string(call.role),
		UserMessage:   call.message,
		AgentResponse: reply,
	})
}

// HandleListConversations handles GET /api/simulations/{id}/conversations?agent=.
func (h *Handler) HandleListConversations(w http.ResponseWriter, r *http.Request) {
	agentName := r.URL.Query().Get("agent")
	if agentName == "" {
		writeError(w, http.StatusBadRequest, "Agent name is required", nil)
		return
	}
	role, err := ParseRole(agentName)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unknown agent", err)
		return
	}

	_, sim, ok := h.authorize(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	convs, err := h.repo.ListConversations(r.Context(), sim.ID, string(role))
	if err != nil {
		slog.Error("Failed to list conversations", "simulation_id", sim.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to load conversations", err)
		return
	}
	if convs == nil {
		convs = []*domain.Conversation{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": convs, "simulation": sim})
}

// HandleChat handles POST /api/simulations/{id}/conversations.
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	call, ok := h.prepareChat(w, r)
	if !ok {
		return
	}

	reply, err := h.agent.Respond(r.Context(), call.role, call.message, call.cc)
	if err != nil {
		slog.Error("AI generation failed", "simulation_id", call.sim.ID, "agent", call.role, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to generate AI response", err)
		return
	}

	if err := h.saveConversation(r.Context(), call, reply); err != nil {
		slog.Error("Failed to save conversation", "simulation_id", call.sim.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to save conversation", err)
		return
	}

	writeJSON(w, http.StatusOK, ChatResponse{Response: reply})
}

// HandleChatStream handles POST /api/simulations/{id}/conversations/stream.
// The reply message is sent as chunk events followed by one reply event.
func (h *Handler) HandleChatStream(w http.ResponseWriter, r *http.Request) {
	call, ok := h.prepareChat(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported", nil)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sink := func(chunk string) error {
		data, err := json.Marshal(chunk)
		if err != nil {
			return err
		}
		if err := writeSSE(w, EventChunk, string(data)); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	reply, err := h.agent.GenerateAgentResponseStream(r.Context(), call.role, call.message, call.cc, sink)
	if err != nil {
		slog.Error("AI generation failed", "simulation_id", call.sim.ID, "agent", call.role, "error", err)
		h.writeSSEError(w, flusher, "Failed to generate AI response", err)
		return
	}

	if err := h.saveConversation(r.Context(), call, reply); err != nil {
		slog.Error("Failed to save conversation", "simulation_id", call.sim.ID, "error", err)
		h.writeSSEError(w, flusher, "Failed to save conversation", err)
		return
	}

	data, err := json.Marshal(ChatResponse{Response: reply})
	if err != nil {
		h.writeSSEError(w, flusher, "failed to serialize response", err)
		return
	}
	if err := writeSSE(w, EventReply, string(data)); err != nil {
		slog.Warn("failed to write SSE reply event", "error", err)
		return
	}
	flusher.Flush()
}

func (h *Handler) writeSSEError(w io.Writer, flusher http.Flusher, msg string, err error) {
	data, mErr := json.Marshal(errorBody{Error: msg, Details: err.Error()})
	if mErr != nil {
		data = []byte(`{"error":"internal error"}`)
	}
	if wErr := writeSSE(w, EventError, string(data)); wErr != nil {
		slog.Warn("failed to write SSE error event", "error", wErr)
		return
	}
	flusher.Flush()
}

// HandleAsk handles POST /api/ask-agent.
func (h *Handler) HandleAsk(w http.ResponseWriter, r *http.Request) {
	var req AskRequest
	if !h.decode(w, r, &req) {
		return
	}
	role, err := ParseRole(req.Agent)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unknown agent", err)
		return
	}

	userID, sim, ok := h.authorize(w, r, req.ContextID)
	if !ok {
		return
	}
	if !h.rateLimiter.Allow(userID) {
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded", nil)
		return
	}

	outputs, err := h.repo.ListAgentOutputs(r.Context(), sim.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load agent outputs", err)
		return
	}

	answer, err := h.agent.Ask(r.Context(), role, sim, req.Question, outputs)
	if err != nil {
		slog.Error("Ask agent failed", "simulation_id", sim.ID, "agent", role, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal Server Error", err)
		return
	}

	if err := h.repo.SaveChatInteraction(r.Context(), &domain.ChatInteraction{
		SimulationID: sim.ID,
		AgentName:    string(role),
		Question:     req.Question,
		Answer:       answer,
	}); err != nil {
		slog.Error("Error saving chat interaction", "simulation_id", sim.ID, "error", err)
	}

	writeJSON(w, http.StatusOK, AskResponse{Answer: answer, Agent: string(role)})
}

func writeSSE(w io.Writer, event, data string) error {
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}
