package agent

import (
	"log/slog"
	"sync"

	"github.com/coder/websocket"
)

// ChatSessions tracks open WebSocket chats. Each user holds at most one
// connection per simulation; a newer connection replaces the older one.
type ChatSessions struct {
	mu     sync.Mutex
	active map[string]map[string]*websocket.Conn
}

// NewChatSessions creates an empty session registry.
func NewChatSessions() *ChatSessions {
	return &ChatSessions{active: make(map[string]map[string]*websocket.Conn)}
}

// Active returns the open connection for a user and simulation.
func (s *ChatSessions) Active(userID, simulationID string) *websocket.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active[userID][simulationID]
}

// Register records conn, closing any previous connection for the same chat.
func (s *ChatSessions) Register(userID, simulationID string, conn *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sims, ok := s.active[userID]
	if !ok {
		sims = make(map[string]*websocket.Conn)
		s.active[userID] = sims
	}
	if prev := sims[simulationID]; prev != nil && prev != conn {
		// Close blocks on the peer's close frame.
		go func() { _ = prev.Close(websocket.StatusPolicyViolation, "chat opened elsewhere") }()
	}
	sims[simulationID] = conn
	slog.Debug("Chat session registered", "user_id", userID, "simulation_id", simulationID)
}

// Unregister forgets conn if it is still the current connection.
func (s *ChatSessions) Unregister(userID, simulationID string, conn *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sims, ok := s.active[userID]
	if !ok || sims[simulationID] != conn {
		return
	}
	delete(sims, simulationID)
	if len(sims) == 0 {
		delete(s.active, userID)
	}
}

// Len returns the number of open chats.
func (s *ChatSessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, sims := range s.active {
		n += len(sims)
	}
	return n
}

// CloseAll closes every open chat and waits for the close handshakes.
func (s *ChatSessions) CloseAll(reason string) {
	s.mu.Lock()
	var conns []*websocket.Conn
	for userID, sims := range s.active {
		for _, conn := range sims {
			conns = append(conns, conn)
		}
		delete(s.active, userID)
	}
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, conn := range conns {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = conn.Close(websocket.StatusGoingAway, reason)
		}()
	}
	wg.Wait()
}
