package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ItemStatus defines the auction lifecycle of a single item.
type ItemStatus string

const (
	ItemStatusPending ItemStatus = "PENDING"
	ItemStatusActive  ItemStatus = "ACTIVE"
	ItemStatusSold    ItemStatus = "SOLD"
	ItemStatusUnsold  ItemStatus = "UNSOLD"
)

// AuctionItem is one team up for bidding within one pool.
// At most one item per pool is ACTIVE at any time; CurrentBid, once set,
// never decreases over the item's lifetime.
type AuctionItem struct {
	ID              uuid.UUID        `json:"id"`
	PoolID          uuid.UUID        `json:"pool_id"`
	TeamID          uuid.UUID        `json:"team_id"`
	Status          ItemStatus       `json:"status"`
	Order           int              `json:"order"` // queue position, ascending
	StartingBid     decimal.Decimal  `json:"starting_bid"`
	CurrentBid      *decimal.Decimal `json:"current_bid,omitempty"`
	CurrentBidderID *uuid.UUID       `json:"current_bidder_id,omitempty"`
	WinningBid      *decimal.Decimal `json:"winning_bid,omitempty"`
	WinnerID        *uuid.UUID       `json:"winner_id,omitempty"`
	ActivatedAt     *time.Time       `json:"activated_at,omitempty"`
	FinalizedAt     *time.Time       `json:"finalized_at,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
}
