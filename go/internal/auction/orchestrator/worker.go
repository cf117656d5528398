package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// Run runs the event-driven orchestrator as a JetStream consumer. Recovery
// happens automatically through event replay with DeliverAllPolicy: stale
// deadlines enqueue immediately and the engine sorts out what is due.
func (o *Orchestrator) Run(ctx context.Context) error {
	log.Info().
		Str("instance", o.instanceID).
		Int("workers", o.numWorkers).
		Msg("orchestrator started as JetStream consumer")

	if o.consumer == nil {
		if err := o.EnsureConsumer(ctx); err != nil {
			return err
		}
	}

	eventCh := make(chan jetstream.Msg, eventChannelBufferSize)

	consumeCtx, err := o.consumer.Consume(func(msg jetstream.Msg) {
		select {
		case eventCh <- msg:
		case <-ctx.Done():
			msg.Nak()
		}
	})
	if err != nil {
		return fmt.Errorf("start JetStream consumer: %w", err)
	}
	defer consumeCtx.Stop()

	// Start worker pool
	var wg sync.WaitGroup
	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()

	for i := 0; i < o.numWorkers; i++ {
		wg.Add(1)
		go o.worker(workerCtx, &wg, i)
	}

	defer func() {
		log.Info().Str("instance", o.instanceID).Msg("shutting down workers")
		cancelWorkers()
		close(o.workCh)
		wg.Wait()
		log.Info().Str("instance", o.instanceID).Msg("all workers shut down")
	}()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("instance", o.instanceID).Msg("orchestrator shutdown requested")

			o.activeTimersMu.Lock()
			for poolID, timer := range o.activeTimers {
				stopAndDrainTimer(timer)
				log.Debug().Str("pool_id", poolID.String()).Msg("cancelled timer on shutdown")
			}
			o.activeTimers = make(map[uuid.UUID]clockwork.Timer)
			o.activeTimersMu.Unlock()

			return nil
		case msg := <-eventCh:
			if err := o.processEvent(ctx, msg); err != nil {
				log.Error().Err(err).Msg("failed to process event")
				msg.Nak()
			} else {
				msg.Ack()
			}
		}
	}
}

// worker processes pool expiries from the work channel.
func (o *Orchestrator) worker(ctx context.Context, wg *sync.WaitGroup, workerID int) {
	defer wg.Done()

	log.Info().
		Str("instance", o.instanceID).
		Int("worker_id", workerID).
		Msg("worker started")

	for {
		select {
		case <-ctx.Done():
			log.Info().
				Str("instance", o.instanceID).
				Int("worker_id", workerID).
				Msg("worker shutting down")
			return
		case poolID, ok := <-o.workCh:
			if !ok {
				log.Info().
					Str("instance", o.instanceID).
					Int("worker_id", workerID).
					Msg("work channel closed, worker shutting down")
				return
			}

			log.Info().
				Str("pool_id", poolID.String()).
				Str("instance", o.instanceID).
				Int("worker_id", workerID).
				Msg("worker handling expiry")

			if err := o.handleTimeout(ctx, poolID); err != nil {
				log.Error().
					Err(err).
					Str("pool_id", poolID.String()).
					Str("instance", o.instanceID).
					Int("worker_id", workerID).
					Msg("worker expiry handling failed")
			}

			// Clean up in-flight tracking regardless of success/failure
			o.inFlightMu.Lock()
			delete(o.inFlight, poolID)
			o.inFlightMu.Unlock()
		}
	}
}
