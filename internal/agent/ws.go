package agent

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ashureev/foundersync/internal/domain"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
)

// HandleWebSocket handles GET /ws/simulations/{id}/chat.
//
// Each client message is a ChatRequest. The server answers with chunk
// frames followed by a reply frame, or a single error frame.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID, sim, ok := h.authorize(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	origins := h.originPatterns
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: origins})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "user_id", userID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "chat ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "user_id", userID)
		}
	}()
	ws.SetReadLimit(h.cfg.MaxRequestBodySize)

	h.sessions.Register(userID, sim.ID, ws)
	defer h.sessions.Unregister(userID, sim.ID, ws)

	slog.Info("WebSocket chat connected", "user_id", userID, "simulation_id", sim.ID)

	ctx := r.Context()
	for {
		var req ChatRequest
		if err := wsjson.Read(ctx, ws, &req); err != nil {
			if websocket.CloseStatus(err) != -1 || errors.Is(err, context.Canceled) {
				slog.Debug("WebSocket closed by client", "user_id", userID)
			} else {
				slog.Warn("WebSocket read error", "error", err, "user_id", userID)
			}
			return
		}

		if err := h.serveFrame(ctx, ws, userID, sim, req); err != nil {
			slog.Warn("WebSocket write error", "error", err, "user_id", userID)
			return
		}
	}
}

// serveFrame answers one chat request. It returns an error only when the
// connection can no longer be written to.
func (h *Handler) serveFrame(ctx context.Context, ws *websocket.Conn, userID string, sim *domain.Simulation, req ChatRequest) error {
	fail := func(msg string, err error) error {
		f := Frame{Type: EventError, Error: msg}
		if err != nil {
			f.Details = err.Error()
		}
		return wsjson.Write(ctx, ws, f)
	}

	if err := Validate(req); err != nil {
		return fail("missing required fields", err)
	}
	role, err := ParseRole(req.AgentName)
	if err != nil {
		return fail("unknown agent", err)
	}
	if !h.rateLimiter.Allow(userID) {
		return fail("rate limit exceeded", nil)
	}

	cc, err := h.loadContext(ctx, sim)
	if err != nil {
		return fail("Failed to load conversation history", err)
	}

	var writeErr error
	sink := func(chunk string) error {
		writeErr = wsjson.Write(ctx, ws, Frame{Type: EventChunk, Chunk: chunk})
		return writeErr
	}

	call := &chatCall{userID: userID, sim: sim, role: role, message: req.Message, cc: cc}
	reply, err := h.agent.GenerateAgentResponseStream(ctx, role, req.Message, cc, sink)
	if err != nil {
		slog.Error("AI generation failed", "simulation_id", sim.ID, "agent", role, "error", err)
		return fail("Failed to generate AI response", err)
	}

	if err := h.saveConversation(ctx, call, reply); err != nil {
		slog.Error("Failed to save conversation", "simulation_id", sim.ID, "error", err)
		if writeErr != nil {
			return writeErr
		}
		return fail("Failed to save conversation", err)
	}
	if writeErr != nil {
		return writeErr
	}

	return wsjson.Write(ctx, ws, Frame{Type: EventReply, Reply: &reply})
}
