// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ashureev/foundersync/internal/domain"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrVersionConflict is returned when an optimistic version check fails.
	ErrVersionConflict = errors.New("version conflict")

	// ErrForbidden is returned when a record belongs to another user.
	ErrForbidden = errors.New("forbidden")
)

// Repository defines the interface for persisting Foundersync data.
type Repository interface {
	// GetUser retrieves a user by their user ID. It returns nil, nil when absent.
	GetUser(ctx context.Context, userID string) (*domain.User, error)

	// UpsertUser creates or updates a user record.
	UpsertUser(ctx context.Context, user *domain.User) error

	// UpdateLastSeen updates the last_seen_at timestamp for a user.
	UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error

	// CreateSimulation stores a new simulation, assigning ID and timestamps when unset.
	CreateSimulation(ctx context.Context, sim *domain.Simulation) error

	// GetSimulation returns ErrNotFound when the simulation does not exist.
	GetSimulation(ctx context.Context, id string) (*domain.Simulation, error)

	// ListSimulations returns the user's simulations, newest first.
	ListSimulations(ctx context.Context, userID string) ([]*domain.Simulation, error)

	// SaveConversation appends one exchange to a simulation.
	SaveConversation(ctx context.Context, conv *domain.Conversation) error

	// ListConversations returns one agent's conversations in chronological order.
	ListConversations(ctx context.Context, simulationID, agentName string) ([]*domain.Conversation, error)

	// RecentConversations returns the most recent limit conversations across
	// all agents of a simulation, in chronological order.
	RecentConversations(ctx context.Context, simulationID string, limit int) ([]*domain.Conversation, error)

	// ListAgentOutputs returns the current output of every agent of a simulation.
	ListAgentOutputs(ctx context.Context, simulationID string) ([]*domain.AgentOutput, error)

	// UpdateAgentOutput writes the new output and its change log in one
	// transaction. A non-zero ExpectedVersion that does not match the stored
	// version returns ErrVersionConflict.
	UpdateAgentOutput(ctx context.Context, update domain.AgentOutputUpdate) (*domain.AgentOutput, *domain.ChangeLog, error)

	// ListChangeLogs returns change logs, newest first. An empty agentName lists all agents.
	ListChangeLogs(ctx context.Context, simulationID, agentName string) ([]*domain.ChangeLog, error)

	// SaveDocumentation stores a generated document.
	SaveDocumentation(ctx context.Context, doc *domain.Documentation) error

	// ListDocumentation returns a simulation's documents, newest first.
	ListDocumentation(ctx context.Context, simulationID string) ([]*domain.Documentation, error)

	// SaveChatInteraction stores a free-form question and answer.
	SaveChatInteraction(ctx context.Context, chat *domain.ChatInteraction) error

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}

// GetOwnedSimulation loads a simulation and checks that userID owns it.
func GetOwnedSimulation(ctx context.Context, repo Repository, id, userID string) (*domain.Simulation, error) {
	sim, err := repo.GetSimulation(ctx, id)
	if err != nil {
		return nil, err
	}
	if !sim.OwnedBy(userID) {
		return nil, fmt.Errorf("simulation %s: %w", id, ErrForbidden)
	}
	return sim, nil
}
