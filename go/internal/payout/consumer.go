package payout

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

const (
	// ScoreStreamName is the JetStream stream the external score feed
	// publishes to.
	ScoreStreamName = "SCORE_EVENTS"

	// ScoreSubjectPrefix scopes score-feed subjects; game-finalized facts
	// arrive on scores.game.finalized.
	ScoreSubjectPrefix = "scores"

	consumerName       = "calcutta-payout"
	consumerMaxDeliver = 5
	consumerAckWait    = 30 * time.Second
	natsMaxReconnects  = 10
	natsReconnectWait  = 2 * time.Second
)

// Consumer ingests game-finalized facts from the score feed and hands them to
// the waterfall. Redeliveries are safe: the waterfall's log row makes
// processing each game exactly-once.
type Consumer struct {
	natsURL string
	app     *App

	nc       *nats.Conn
	js       jetstream.JetStream
	consumer jetstream.Consumer
}

func NewConsumer(natsURL string, app *App) *Consumer {
	return &Consumer{natsURL: natsURL, app: app}
}

func (c *Consumer) connect(ctx context.Context) error {
	opts := []nats.Option{
		nats.MaxReconnects(natsMaxReconnects),
		nats.ReconnectWait(natsReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("score feed NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("score feed NATS reconnected")
		}),
	}

	nc, err := nats.Connect(c.natsURL, opts...)
	if err != nil {
		return fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return fmt.Errorf("create JetStream context: %w", err)
	}

	// The feed normally owns the stream; create it if we start first.
	if _, err := js.Stream(ctx, ScoreStreamName); err != nil {
		if _, err := js.CreateStream(ctx, jetstream.StreamConfig{
			Name:      ScoreStreamName,
			Subjects:  []string{ScoreSubjectPrefix + ".>"},
			Retention: jetstream.LimitsPolicy,
			MaxAge:    7 * 24 * time.Hour,
			Storage:   jetstream.FileStorage,
		}); err != nil {
			nc.Close()
			return fmt.Errorf("create score stream: %w", err)
		}
		log.Info().Str("stream", ScoreStreamName).Msg("created score stream")
	}

	c.nc = nc
	c.js = js
	return nil
}

func (c *Consumer) ensureConsumer(ctx context.Context) error {
	stream, err := c.js.Stream(ctx, ScoreStreamName)
	if err != nil {
		return fmt.Errorf("get score stream: %w", err)
	}

	cfg := jetstream.ConsumerConfig{
		Name:          consumerName,
		Durable:       consumerName,
		Description:   "Payout waterfall score-feed consumer",
		FilterSubject: ScoreSubjectPrefix + ".game.finalized",
		DeliverPolicy: jetstream.DeliverAllPolicy,
		AckPolicy:     jetstream.AckExplicitPolicy,
		MaxDeliver:    consumerMaxDeliver,
		AckWait:       consumerAckWait,
		ReplayPolicy:  jetstream.ReplayInstantPolicy,
	}

	consumer, err := stream.Consumer(ctx, consumerName)
	if err != nil {
		consumer, err = stream.CreateConsumer(ctx, cfg)
		if err != nil {
			return fmt.Errorf("create score consumer: %w", err)
		}
		log.Info().Msg("created JetStream consumer for payouts")
	}

	c.consumer = consumer
	return nil
}

// Run consumes the score feed until the context is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	if c.nc == nil {
		if err := c.connect(ctx); err != nil {
			return err
		}
	}
	if c.consumer == nil {
		if err := c.ensureConsumer(ctx); err != nil {
			return err
		}
	}

	cc, err := c.consumer.Consume(func(msg jetstream.Msg) {
		if err := c.processMessage(ctx, msg); err != nil {
			log.Error().Err(err).Str("subject", msg.Subject()).Msg("failed to process score event")
			if nakErr := msg.Nak(); nakErr != nil {
				log.Error().Err(nakErr).Msg("failed to nak score event")
			}
			return
		}
		if err := msg.Ack(); err != nil {
			log.Error().Err(err).Msg("failed to ack score event")
		}
	})
	if err != nil {
		return fmt.Errorf("start score consumer: %w", err)
	}

	log.Info().Str("stream", ScoreStreamName).Msg("payout consumer started")

	<-ctx.Done()
	cc.Stop()
	c.nc.Close()
	log.Info().Msg("payout consumer stopped")
	return nil
}

func (c *Consumer) processMessage(ctx context.Context, msg jetstream.Msg) error {
	var fact GameFinalizedFact
	if err := json.Unmarshal(msg.Data(), &fact); err != nil {
		return fmt.Errorf("unmarshal game fact: %w", err)
	}

	processed, err := c.app.OnGameFinalized(ctx, fact)
	if err != nil {
		return err
	}
	if processed {
		log.Info().
			Str("game_id", fact.GameID.String()).
			Int("round", fact.Round).
			Str("winner_id", fact.WinnerID.String()).
			Msg("processed game finalization")
	}
	return nil
}
