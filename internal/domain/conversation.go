package domain

import (
	"time"
)

// AgentReply is the structured reply contract every model answer must satisfy.
type AgentReply struct {
	Message string `json:"message" validate:"required"`
	Tone    string `json:"tone" validate:"required"`
	Emotion string `json:"emotion" validate:"required"`
}

// Conversation is one persisted user message and the agent's reply.
type Conversation struct {
	ID            string     `json:"id"`
	SimulationID  string     `json:"simulation_id"`
	AgentName     string     `json:"agent_name"`
	UserMessage   string     `json:"user_message"`
	AgentResponse AgentReply `json:"agent_response"`
	CreatedAt     time.Time  `json:"created_at"`
}

// ChatInteraction is a free-form question answered by an agent.
type ChatInteraction struct {
	ID           string    `json:"id"`
	SimulationID string    `json:"simulation_id"`
	AgentName    string    `json:"agent_name"`
	Question     string    `json:"question"`
	Answer       string    `json:"answer"`
	CreatedAt    time.Time `json:"created_at"`
}
