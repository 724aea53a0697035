package domain

import (
	"time"
)

// DocContext captures the startup facts a document was generated from.
type DocContext struct {
	StartupName string `json:"startup_name"`
	Industry    string `json:"industry"`
	Description string `json:"description"`
}

// DocMetadata is stored alongside generated documentation.
type DocMetadata struct {
	Tone    string     `json:"tone"`
	Emotion string     `json:"emotion"`
	Context DocContext `json:"context"`
}

// Documentation is a generated multi-section document.
type Documentation struct {
	ID           string      `json:"id"`
	SimulationID string      `json:"simulation_id"`
	Content      string      `json:"content"`
	Metadata     DocMetadata `json:"metadata"`
	GeneratedAt  time.Time   `json:"generated_at"`
}
