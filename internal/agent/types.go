// Package agent implements the founder-team agent personas: prompt assembly,
// the reply contract, and the chat transports built on them.
package agent

import (
	"time"

	"github.com/ashureev/foundersync/internal/domain"
)

// ConversationContext is the startup and history a reply is generated against.
type ConversationContext struct {
	StartupName string
	Description string
	Industry    string
	History     []HistoryEntry
}

// HistoryEntry is one prior exchange, oldest first in ConversationContext.History.
type HistoryEntry struct {
	AgentName    string
	UserMessage  string
	AgentMessage string
	Timestamp    string
}

// ChatRequest is the body of an interactive chat request.
type ChatRequest struct {
	Message   string `json:"message" validate:"required"`
	AgentName string `json:"agentName" validate:"required"`
}

// ChatResponse wraps a reply for the HTTP API.
type ChatResponse struct {
	Response domain.AgentReply `json:"response"`
}

// AskRequest is the body of a free-form question to an agent.
type AskRequest struct {
	Agent     string `json:"agent" validate:"required"`
	Question  string `json:"question" validate:"required"`
	ContextID string `json:"contextId" validate:"required"`
}

// AskResponse is the answer to an AskRequest.
type AskResponse struct {
	Answer string `json:"answer"`
	Agent  string `json:"agent"`
}

// Frame is a message sent to WebSocket chat clients.
type Frame struct {
	Type    string             `json:"type"`
	Chunk   string             `json:"chunk,omitempty"`
	Reply   *domain.AgentReply `json:"reply,omitempty"`
	Error   string             `json:"error,omitempty"`
	Details string             `json:"details,omitempty"`
}

// Frame and SSE event types.
const (
	EventChunk = "chunk"
	EventReply = "reply"
	EventError = "error"
)

// Config holds agent configuration.
type Config struct {
	ChunkDelay         time.Duration
	HistoryLimit       int
	MaxRequestBodySize int64
	RateLimitRequests  int
	RateLimitWindow    time.Duration
}

// DefaultConfig returns default agent configuration.
func DefaultConfig() Config {
	return Config{
		ChunkDelay:         100 * time.Millisecond,
		HistoryLimit:       15,
		MaxRequestBodySize: 1 << 20,
		RateLimitRequests:  20,
		RateLimitWindow:    time.Minute,
	}
}
