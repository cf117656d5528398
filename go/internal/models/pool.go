package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PoolStatus defines the lifecycle phase of a pool.
type PoolStatus string

const (
	PoolStatusDraft      PoolStatus = "DRAFT"
	PoolStatusOpen       PoolStatus = "OPEN"
	PoolStatusLive       PoolStatus = "LIVE"        // auction running
	PoolStatusInProgress PoolStatus = "IN_PROGRESS" // auction done, tournament underway
	PoolStatusCompleted  PoolStatus = "COMPLETED"
	PoolStatusCancelled  PoolStatus = "CANCELLED"
)

// PoolSettings holds JSONB configuration for pools.
type PoolSettings struct {
	BudgetEnabled   bool             `json:"budget_enabled"`
	BudgetPerMember *decimal.Decimal `json:"budget_per_member,omitempty"`
}

// Pool represents one Calcutta pool attached to a tournament.
type Pool struct {
	ID           uuid.UUID       `json:"id"`
	TournamentID uuid.UUID       `json:"tournament_id"`
	Name         string          `json:"name"`
	Status       PoolStatus      `json:"status"`
	Settings     PoolSettings    `json:"settings"`
	TotalPot     decimal.Decimal `json:"total_pot"`

	// Countdown persistence for the active item. ClosesAt is the deadline of
	// the in-flight soft-close window; PausedRemaining captures the unexpired
	// portion of the window while the auction is paused.
	ClosesAt        *time.Time     `json:"closes_at,omitempty"`
	Paused          bool           `json:"paused"`
	PausedRemaining *time.Duration `json:"paused_remaining,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
