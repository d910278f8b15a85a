// Package models defines the domain entities shared across ReactorMon.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Reactor represents one monitored bioreactor.
type Reactor struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Location    string `json:"location,omitempty"`
	Description string `json:"description,omitempty"`

	// RetentionDays is this reactor's telemetry retention window. Zero
	// means the global default applies.
	RetentionDays int `json:"retention_days,omitempty"`

	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewReactor creates an active reactor with a fresh ID.
func NewReactor(name, location, description string) *Reactor {
	now := time.Now()
	return &Reactor{
		ID:          uuid.New().String(),
		Name:        name,
		Location:    location,
		Description: description,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
