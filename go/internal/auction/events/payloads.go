// Package events defines the broadcast event payloads shared between the
// engine, the orchestrator and the gateway.
package events

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event type names as stored in the outbox and published on the bus.
const (
	TypeAuctionStarted   = "AuctionStarted"
	TypeAuctionPaused    = "AuctionPaused"
	TypeAuctionResumed   = "AuctionResumed"
	TypeAuctionCompleted = "AuctionCompleted"
	TypeItemActivated    = "ItemActivated"
	TypeNewBid           = "NewBid"
	TypeItemSold         = "ItemSold"
	TypeItemUnsold       = "ItemUnsold"
	TypeQueueReordered   = "QueueReordered"
	TypePayoutPosted     = "PayoutPosted"
	TypeBalanceUpdated   = "BalanceUpdated"
	TypeTimerTick        = "TimerTick"
)

// AuctionStartedPayload is emitted when a pool's auction goes live.
type AuctionStartedPayload struct {
	PoolID     string    `json:"pool_id"`
	StartedAt  time.Time `json:"started_at"`
	TotalItems int       `json:"total_items"`
}

// ItemActivatedPayload is emitted when an item opens for bidding. TimeoutAt
// is the authoritative server deadline; clients count down from
// BidWindowSec for display only.
type ItemActivatedPayload struct {
	ItemID       string          `json:"item_id"`
	TeamID       string          `json:"team_id"`
	Order        int             `json:"order"`
	StartingBid  decimal.Decimal `json:"starting_bid"`
	ActivatedAt  time.Time       `json:"activated_at"`
	TimeoutAt    time.Time       `json:"timeout_at"`
	BidWindowSec int             `json:"bid_window_sec"`
}

// NewBidPayload is emitted on every accepted bid. Each accepted bid resets
// the soft-close window, so TimeoutAt moves forward with every event.
type NewBidPayload struct {
	ItemID     string          `json:"item_id"`
	BidderID   string          `json:"bidder_id"`
	Amount     decimal.Decimal `json:"amount"`
	MinNextBid decimal.Decimal `json:"min_next_bid"`
	BidAt      time.Time       `json:"bid_at"`
	TimeoutAt  time.Time       `json:"timeout_at"`
}

// ItemSoldPayload is emitted when settlement completes a sale.
type ItemSoldPayload struct {
	ItemID     string          `json:"item_id"`
	TeamID     string          `json:"team_id"`
	WinnerID   string          `json:"winner_id"`
	WinningBid decimal.Decimal `json:"winning_bid"`
	TotalPot   decimal.Decimal `json:"total_pot"`
	SoldAt     time.Time       `json:"sold_at"`
}

// ItemUnsoldPayload is emitted when the window closes with no bids.
type ItemUnsoldPayload struct {
	ItemID   string    `json:"item_id"`
	TeamID   string    `json:"team_id"`
	ClosedAt time.Time `json:"closed_at"`
}

// AuctionPausedPayload is emitted when the commissioner pauses the auction.
type AuctionPausedPayload struct {
	PoolID       string    `json:"pool_id"`
	PausedAt     time.Time `json:"paused_at"`
	RemainingSec int       `json:"remaining_sec"`
	Reason       string    `json:"reason"`
}

// AuctionResumedPayload is emitted on resume. The countdown restarts with
// the remaining window, not a full one.
type AuctionResumedPayload struct {
	PoolID    string    `json:"pool_id"`
	ResumedAt time.Time `json:"resumed_at"`
	TimeoutAt time.Time `json:"timeout_at"`
}

// AuctionCompletedPayload is emitted when the item queue is exhausted.
type AuctionCompletedPayload struct {
	PoolID      string          `json:"pool_id"`
	CompletedAt time.Time       `json:"completed_at"`
	TotalPot    decimal.Decimal `json:"total_pot"`
	ItemsSold   int             `json:"items_sold"`
	ItemsUnsold int             `json:"items_unsold"`
}

// QueueReorderedPayload is emitted after a commissioner reorders the
// pending queue.
type QueueReorderedPayload struct {
	PoolID  string   `json:"pool_id"`
	ItemIDs []string `json:"item_ids"`
}

// PayoutPostedPayload is the pool-wide announcement of one rule firing.
type PayoutPostedPayload struct {
	PoolID     string          `json:"pool_id"`
	GameID     string          `json:"game_id"`
	ItemID     string          `json:"item_id"`
	Trigger    string          `json:"trigger"`
	Amount     decimal.Decimal `json:"amount"`
	Recipients int             `json:"recipients"`
	PostedAt   time.Time       `json:"posted_at"`
}

// TimerTickPayload is a periodic countdown sync for connected clients.
type TimerTickPayload struct {
	PoolID       string    `json:"pool_id"`
	ItemID       string    `json:"item_id"`
	RemainingSec int       `json:"remaining_sec"`
	TimeoutAt    time.Time `json:"timeout_at"`
}

// BalanceUpdatedPayload is a user-scoped event carrying one owner's credit.
type BalanceUpdatedPayload struct {
	UserID        string          `json:"user_id"`
	PoolID        string          `json:"pool_id"`
	Amount        decimal.Decimal `json:"amount"`
	TotalWinnings decimal.Decimal `json:"total_winnings"`
	CreditedAt    time.Time       `json:"credited_at"`
}
