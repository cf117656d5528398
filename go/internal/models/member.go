package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PoolMember is a user's membership in one pool. RemainingBudget is nil for
// unlimited budgets; when non-nil it never goes negative and is decremented
// exactly once per item the member wins.
type PoolMember struct {
	ID              uuid.UUID        `json:"id"`
	PoolID          uuid.UUID        `json:"pool_id"`
	UserID          uuid.UUID        `json:"user_id"`
	RemainingBudget *decimal.Decimal `json:"remaining_budget,omitempty"`
	TotalSpent      decimal.Decimal  `json:"total_spent"`
	TotalWinnings   decimal.Decimal  `json:"total_winnings"`
	IsCommissioner  bool             `json:"is_commissioner"`
	JoinedAt        time.Time        `json:"joined_at"`
}
