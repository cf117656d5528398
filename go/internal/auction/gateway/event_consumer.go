package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/brackethq/calcutta/go/internal/auction/outbox"
)

// JetStreamConsumerConfig tunes the gateway's durable consumer on the
// auction event stream.
type JetStreamConsumerConfig struct {
	URL           string
	StreamName    string
	ConsumerName  string
	SubjectFilter string
	MaxDeliver    int
	AckWait       time.Duration
	MaxAckPending int
	MaxReconnects int
	ReconnectWait time.Duration
}

func DefaultJetStreamConsumerConfig() JetStreamConsumerConfig {
	return JetStreamConsumerConfig{
		URL:           nats.DefaultURL,
		StreamName:    outbox.StreamName,
		ConsumerName:  "auction-gateway",
		SubjectFilter: outbox.SubjectPrefix + ".>",
		MaxDeliver:    5,
		AckWait:       30 * time.Second,
		MaxAckPending: 100,
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
	}
}

// EventConsumer bridges the outbox stream to connected websocket clients.
// DeliverLastPerSubject means a restarted gateway catches up on the latest
// event per pool and type without replaying the whole auction.
type EventConsumer struct {
	connectionManager *ConnectionManager
	deadlines         *deadlineTracker
	nc                *nats.Conn
	consumer          jetstream.Consumer
	config            JetStreamConsumerConfig
}

func NewEventConsumer(cm *ConnectionManager, config JetStreamConsumerConfig) (*EventConsumer, error) {
	nc, err := nats.Connect(config.URL,
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Error().Err(err).Msg("gateway nats disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("gateway nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("gateway: connect nats: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("gateway: jetstream context: %w", err)
	}

	consumer, err := ensureGatewayConsumer(context.Background(), js, config)
	if err != nil {
		nc.Close()
		return nil, err
	}

	return &EventConsumer{
		connectionManager: cm,
		deadlines:         newDeadlineTracker(),
		nc:                nc,
		consumer:          consumer,
		config:            config,
	}, nil
}

func ensureGatewayConsumer(ctx context.Context, js jetstream.JetStream, config JetStreamConsumerConfig) (jetstream.Consumer, error) {
	stream, err := js.Stream(ctx, config.StreamName)
	if err != nil {
		return nil, fmt.Errorf("gateway: get stream %s: %w", config.StreamName, err)
	}

	consumer, err := stream.Consumer(ctx, config.ConsumerName)
	if err == nil {
		return consumer, nil
	}

	consumer, err = stream.CreateConsumer(ctx, jetstream.ConsumerConfig{
		Name:          config.ConsumerName,
		Durable:       config.ConsumerName,
		Description:   "auction gateway websocket fanout",
		FilterSubject: config.SubjectFilter,
		DeliverPolicy: jetstream.DeliverLastPerSubjectPolicy,
		AckPolicy:     jetstream.AckExplicitPolicy,
		MaxDeliver:    config.MaxDeliver,
		AckWait:       config.AckWait,
		MaxAckPending: config.MaxAckPending,
		ReplayPolicy:  jetstream.ReplayInstantPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("gateway: create consumer %s: %w", config.ConsumerName, err)
	}

	log.Info().
		Str("consumer", config.ConsumerName).
		Str("stream", config.StreamName).
		Msg("created gateway consumer")
	return consumer, nil
}

// Start consumes auction events and broadcasts them until the context is
// cancelled.
func (ec *EventConsumer) Start(ctx context.Context) error {
	log.Info().
		Str("consumer", ec.config.ConsumerName).
		Str("stream", ec.config.StreamName).
		Msg("gateway event consumer starting")

	cc, err := ec.consumer.Consume(func(msg jetstream.Msg) {
		if err := ec.handleMessage(msg); err != nil {
			log.Error().Err(err).Str("subject", msg.Subject()).Msg("failed to handle auction event")
			if err := msg.Nak(); err != nil {
				log.Error().Err(err).Msg("nak failed")
			}
			return
		}
		if err := msg.Ack(); err != nil {
			log.Error().Err(err).Msg("ack failed")
		}
	})
	if err != nil {
		return fmt.Errorf("gateway: start consume: %w", err)
	}
	defer cc.Stop()

	go ec.runTimerSync(ctx)

	<-ctx.Done()
	log.Info().Msg("gateway event consumer shutting down")
	return nil
}

// handleMessage routes one outbox envelope to the right websocket audience.
func (ec *EventConsumer) handleMessage(msg jetstream.Msg) error {
	var envelope struct {
		EventID   string          `json:"eventId"`
		EventType string          `json:"eventType"`
		PoolID    string          `json:"poolId"`
		UserID    string          `json:"userId,omitempty"`
		Timestamp time.Time       `json:"timestamp"`
		Payload   json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(msg.Data(), &envelope); err != nil {
		return fmt.Errorf("unmarshal envelope: %w", err)
	}

	poolID, err := uuid.Parse(envelope.PoolID)
	if err != nil {
		return fmt.Errorf("parse pool id %q: %w", envelope.PoolID, err)
	}

	wsType, ok := knownEventTypes[envelope.EventType]
	if !ok {
		return fmt.Errorf("unknown event type %q", envelope.EventType)
	}

	event := &AuctionEvent{
		ID:        envelope.EventID,
		PoolID:    envelope.PoolID,
		Type:      wsType,
		Timestamp: time.Now(),
		Data:      envelope.Payload,
	}

	ec.deadlines.observe(poolID, wsType, envelope.Payload)

	if envelope.UserID != "" {
		ec.connectionManager.BroadcastToUser(poolID, envelope.UserID, event)
	} else {
		ec.connectionManager.BroadcastToPool(poolID, event)
	}
	return nil
}

// Stop closes the NATS connection.
func (ec *EventConsumer) Stop() error {
	if ec.nc != nil {
		ec.nc.Close()
	}
	return nil
}
