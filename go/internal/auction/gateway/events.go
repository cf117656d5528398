package gateway

import (
	"encoding/json"
	"time"
)

// AuctionEvent is the wire frame sent to websocket clients.
type AuctionEvent struct {
	ID        string          `json:"id"`        // Event UUID
	PoolID    string          `json:"pool_id"`   // Pool UUID
	Type      EventType       `json:"type"`      // Event type
	Timestamp time.Time       `json:"timestamp"` // Event creation time
	Data      json.RawMessage `json:"data"`      // Event-specific payload
}

// EventType represents the type of auction event
type EventType string

const (
	EventTypeAuctionStarted   EventType = "AuctionStarted"
	EventTypeAuctionPaused    EventType = "AuctionPaused"
	EventTypeAuctionResumed   EventType = "AuctionResumed"
	EventTypeAuctionCompleted EventType = "AuctionCompleted"
	EventTypeItemActivated    EventType = "ItemActivated"
	EventTypeNewBid           EventType = "NewBid"
	EventTypeItemSold         EventType = "ItemSold"
	EventTypeItemUnsold       EventType = "ItemUnsold"
	EventTypeQueueReordered   EventType = "QueueReordered"
	EventTypePayoutPosted     EventType = "PayoutPosted"
	EventTypeBalanceUpdated   EventType = "BalanceUpdated"
	EventTypeTimerTick        EventType = "TimerTick"
)

// knownEventTypes maps bus event type names to websocket event types.
var knownEventTypes = map[string]EventType{
	"AuctionStarted":   EventTypeAuctionStarted,
	"AuctionPaused":    EventTypeAuctionPaused,
	"AuctionResumed":   EventTypeAuctionResumed,
	"AuctionCompleted": EventTypeAuctionCompleted,
	"ItemActivated":    EventTypeItemActivated,
	"NewBid":           EventTypeNewBid,
	"ItemSold":         EventTypeItemSold,
	"ItemUnsold":       EventTypeItemUnsold,
	"QueueReordered":   EventTypeQueueReordered,
	"PayoutPosted":     EventTypePayoutPosted,
	"BalanceUpdated":   EventTypeBalanceUpdated,
	"TimerTick":        EventTypeTimerTick,
}
