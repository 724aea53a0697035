package domain

import (
	"time"
)

// Simulation is one described startup idea owned by a user.
type Simulation struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	StartupName string    `json:"startup_name"`
	Description string    `json:"description"`
	Industry    string    `json:"industry"`
	Version     int       `json:"version"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// OwnedBy reports whether the simulation belongs to userID.
func (s *Simulation) OwnedBy(userID string) bool {
	return s != nil && userID != "" && s.UserID == userID
}

// AgentOutput is the current long-form output of one agent for a simulation.
type AgentOutput struct {
	SimulationID string    `json:"simulation_id"`
	AgentName    string    `json:"agent_name"`
	Output       string    `json:"output"`
	Context      string    `json:"context"`
	Version      int       `json:"version"`
	LastUpdated  time.Time `json:"last_updated"`
}

// ChangeType categorizes how an agent output changed.
type ChangeType string

const (
	// ChangeManual is an edit typed by the user.
	ChangeManual ChangeType = "manual"
	// ChangeRegenerated is an output regenerated by the model.
	ChangeRegenerated ChangeType = "regenerated"
	// ChangeAppliedFromChat is an output copied from a chat reply.
	ChangeAppliedFromChat ChangeType = "applied_from_chat"
)

// Valid reports whether t is one of the known change types.
func (t ChangeType) Valid() bool {
	switch t {
	case ChangeManual, ChangeRegenerated, ChangeAppliedFromChat:
		return true
	default:
		return false
	}
}

// ChangeLog records one modification of an agent output.
type ChangeLog struct {
	ID           string     `json:"id"`
	SimulationID string     `json:"simulation_id"`
	AgentName    string     `json:"agent_name"`
	Field        string     `json:"field"`
	OldValue     string     `json:"old_value"`
	NewValue     string     `json:"new_value"`
	ModifiedBy   string     `json:"modified_by"`
	Type         ChangeType `json:"type"`
	ModifiedAt   time.Time  `json:"modified_at"`
}

// AgentOutputUpdate describes an edit applied to an agent output.
// ExpectedVersion of zero skips the optimistic version check.
type AgentOutputUpdate struct {
	SimulationID    string
	AgentName       string
	Field           string
	Value           string
	ModifiedBy      string
	Type            ChangeType
	ExpectedVersion int
}
