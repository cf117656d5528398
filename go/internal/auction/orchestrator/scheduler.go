package orchestrator

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// scheduleDeadline arms (or re-arms) the pool's countdown timer for the
// given deadline. Replayed events carrying an already-scheduled deadline
// are dropped by the idempotency guard.
func (o *Orchestrator) scheduleDeadline(ctx context.Context, poolID uuid.UUID, deadline time.Time) error {
	o.lastScheduledMu.Lock()
	if last, exists := o.lastScheduled[poolID]; exists && last.Equal(deadline) {
		o.lastScheduledMu.Unlock()
		log.Debug().
			Str("pool_id", poolID.String()).
			Time("deadline", deadline).
			Msg("skipping duplicate schedule for same deadline")
		return nil
	}
	o.lastScheduled[poolID] = deadline
	o.lastScheduledMu.Unlock()

	duration := deadline.Sub(o.clock.Now())
	if duration <= 0 {
		// Deadline already in the past (startup replay). Enqueue now; the
		// engine decides whether anything is actually due.
		o.enqueue(poolID)
		return nil
	}

	timer := o.clock.NewTimer(duration)
	o.replaceTimer(poolID, timer)

	go func(id uuid.UUID, t clockwork.Timer) {
		select {
		case <-t.Chan():
			o.removeTimer(id)

			o.lastScheduledMu.Lock()
			delete(o.lastScheduled, id)
			o.lastScheduledMu.Unlock()

			o.enqueue(id)
		case <-ctx.Done():
			stopAndDrainTimer(t)
			o.removeTimer(id)

			o.lastScheduledMu.Lock()
			delete(o.lastScheduled, id)
			o.lastScheduledMu.Unlock()

			log.Debug().Str("pool_id", id.String()).Msg("timer cancelled due to context cancellation")
		}
	}(poolID, timer)

	log.Debug().
		Str("pool_id", poolID.String()).
		Time("deadline", deadline).
		Dur("duration", duration).
		Msg("scheduled countdown timer")

	return nil
}

// enqueue hands a due pool to the worker pool, deduplicating pools already
// being processed.
func (o *Orchestrator) enqueue(poolID uuid.UUID) {
	o.inFlightMu.Lock()
	if o.inFlight[poolID] {
		o.inFlightMu.Unlock()
		log.Debug().Str("pool_id", poolID.String()).Msg("skipping pool already in flight")
		return
	}
	o.inFlight[poolID] = true
	o.inFlightMu.Unlock()

	select {
	case o.workCh <- poolID:
		log.Debug().Str("pool_id", poolID.String()).Msg("enqueued expiry for worker")
	default:
		o.inFlightMu.Lock()
		delete(o.inFlight, poolID)
		o.inFlightMu.Unlock()
		log.Warn().Str("pool_id", poolID.String()).Msg("work channel full, dropping expiry")
	}
}

// replaceTimer atomically replaces a timer for a pool, cancelling any
// existing timer first so a new timer cannot slip in between Stop() and
// delete().
func (o *Orchestrator) replaceTimer(poolID uuid.UUID, newTimer clockwork.Timer) {
	o.activeTimersMu.Lock()
	defer o.activeTimersMu.Unlock()

	if existing, exists := o.activeTimers[poolID]; exists {
		stopAndDrainTimer(existing)
		log.Debug().Str("pool_id", poolID.String()).Msg("replaced existing timer")
	}

	o.activeTimers[poolID] = newTimer
}

// stopAndDrainTimer safely stops a timer and drains its channel, following
// the pattern from the time.Timer.Stop() documentation.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}

// cancelTimer cancels and removes an active timer for a pool.
func (o *Orchestrator) cancelTimer(poolID uuid.UUID) {
	o.activeTimersMu.Lock()
	defer o.activeTimersMu.Unlock()

	if timer, exists := o.activeTimers[poolID]; exists {
		stopAndDrainTimer(timer)
		delete(o.activeTimers, poolID)

		o.lastScheduledMu.Lock()
		delete(o.lastScheduled, poolID)
		o.lastScheduledMu.Unlock()

		log.Debug().Str("pool_id", poolID.String()).Msg("cancelled existing timer")
	}
}

// removeTimer removes a timer from the active timers map (called when the
// timer fires).
func (o *Orchestrator) removeTimer(poolID uuid.UUID) {
	o.activeTimersMu.Lock()
	defer o.activeTimersMu.Unlock()
	delete(o.activeTimers, poolID)
}
