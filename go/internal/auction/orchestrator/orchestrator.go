// Package orchestrator turns auction events into countdown timers and timer
// expiries into engine calls. It holds at most one timer per pool; every
// accepted bid replaces the pool's timer with a later one.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/brackethq/calcutta/go/internal/auction/engine"
)

const (
	consumerName           = "auction-orchestrator"
	eventChannelBufferSize = 1024

	natsMaxReconnects = 10
	natsReconnectWait = 2 * time.Second

	consumerMaxDeliver    = 5
	consumerAckWait       = 30 * time.Second
	consumerMaxAckPending = 1024
)

// AuctionEngine defines what the orchestrator needs from the engine.
type AuctionEngine interface {
	AdvanceAuction(ctx context.Context, poolID uuid.UUID) (*engine.AdvanceResult, error)
}

// Orchestrator consumes auction events from JetStream and manages per-pool
// countdown timers. Durable truth is the pool's closes_at column; the
// in-memory timer map is rebuilt by event replay on restart.
type Orchestrator struct {
	engine     AuctionEngine
	nc         *nats.Conn
	js         jetstream.JetStream
	consumer   jetstream.Consumer
	clock      clockwork.Clock
	instanceID string // unique ID for this orchestrator instance

	// Worker pool configuration
	numWorkers int
	workCh     chan uuid.UUID

	// Track in-flight work to prevent duplicate processing
	inFlight   map[uuid.UUID]bool
	inFlightMu sync.Mutex

	// One countdown timer per pool
	activeTimers   map[uuid.UUID]clockwork.Timer
	activeTimersMu sync.Mutex

	// Deadline idempotency guard so replayed events do not re-arm timers
	lastScheduled   map[uuid.UUID]time.Time
	lastScheduledMu sync.Mutex
}

// New creates an orchestrator connected to NATS.
func New(natsURL string, eng AuctionEngine, clock clockwork.Clock) (*Orchestrator, error) {
	nc, js, err := setupNATSConnection(natsURL)
	if err != nil {
		return nil, err
	}

	numWorkers := 10
	return &Orchestrator{
		engine:     eng,
		nc:         nc,
		js:         js,
		clock:      clock,
		instanceID: uuid.New().String()[:8], // short ID for logging

		numWorkers: numWorkers,
		workCh:     make(chan uuid.UUID, numWorkers*2), // Buffer to prevent blocking

		inFlight:      make(map[uuid.UUID]bool),
		activeTimers:  make(map[uuid.UUID]clockwork.Timer),
		lastScheduled: make(map[uuid.UUID]time.Time),
	}, nil
}

// Close gracefully closes the orchestrator.
func (o *Orchestrator) Close() error {
	if o.nc != nil {
		o.nc.Close()
	}
	return nil
}
