package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// EventPublisher delivers outbox events to the message bus.
type EventPublisher interface {
	Publish(ctx context.Context, event OutboxEvent) error
}

// StreamName is the JetStream stream holding all auction events.
const StreamName = "AUCTION_EVENTS"

// SubjectPrefix is the subject root for auction events. Full subjects are
// auction.events.<pool_id>.<event_type>.
const SubjectPrefix = "auction.events"

// envelope is the wire format published to the bus.
type envelope struct {
	EventID   string          `json:"eventId"`
	EventType string          `json:"eventType"`
	PoolID    string          `json:"poolId"`
	UserID    string          `json:"userId,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// NATSPublisher publishes events to NATS JetStream.
type NATSPublisher struct {
	js     nats.JetStreamContext
	logger *slog.Logger
}

// NewNATSPublisher creates a publisher over an existing NATS connection and
// ensures the auction event stream exists.
func NewNATSPublisher(nc *nats.Conn, logger *slog.Logger) (*NATSPublisher, error) {
	js, err := nc.JetStream()
	if err != nil {
		return nil, fmt.Errorf("outbox: jetstream context: %w", err)
	}

	_, err = js.StreamInfo(StreamName)
	if err != nil {
		_, err = js.AddStream(&nats.StreamConfig{
			Name:      StreamName,
			Subjects:  []string{SubjectPrefix + ".>"},
			Retention: nats.LimitsPolicy,
			MaxAge:    24 * time.Hour,
			Storage:   nats.FileStorage,
		})
		if err != nil {
			return nil, fmt.Errorf("outbox: create stream: %w", err)
		}
		logger.Info("created jetstream stream", slog.String("stream", StreamName))
	}

	return &NATSPublisher{js: js, logger: logger}, nil
}

// Publish sends one event, keyed by pool so consumers replay a single
// pool's history in order.
func (p *NATSPublisher) Publish(ctx context.Context, event OutboxEvent) error {
	env := envelope{
		EventID:   event.ID.String(),
		EventType: event.EventType,
		PoolID:    event.PoolID.String(),
		Timestamp: event.CreatedAt,
		Payload:   event.Payload,
	}
	if event.UserID != nil {
		env.UserID = event.UserID.String()
	}

	messageBytes, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	subject := fmt.Sprintf("%s.%s.%s", SubjectPrefix, env.PoolID, event.EventType)

	// MsgId gives JetStream server-side dedup if the worker and listener
	// race on the same row.
	_, err = p.js.Publish(subject, messageBytes,
		nats.MsgId(env.EventID), nats.Context(ctx))
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}

	p.logger.Debug("published event",
		slog.String("subject", subject),
		slog.String("event_id", env.EventID),
		slog.Int("size", len(messageBytes)))

	return nil
}

// MockPublisher is a simple in-memory publisher for development/testing.
type MockPublisher struct {
	logger *slog.Logger
}

func NewMockPublisher(logger *slog.Logger) *MockPublisher {
	return &MockPublisher{logger: logger}
}

func (p *MockPublisher) Publish(ctx context.Context, event OutboxEvent) error {
	p.logger.Info("publishing event",
		slog.String("event_id", event.ID.String()),
		slog.String("event_type", event.EventType),
		slog.String("pool_id", event.PoolID.String()))
	return nil
}
