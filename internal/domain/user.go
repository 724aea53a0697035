// Package domain contains core domain types for the Foundersync application.
package domain

import (
	"time"
)

// User represents an authenticated founder.
type User struct {
	UserID     string    `json:"user_id"`
	Email      string    `json:"email,omitempty"`
	LastSeenAt time.Time `json:"last_seen_at"`
	CreatedAt  time.Time `json:"created_at"`
}
