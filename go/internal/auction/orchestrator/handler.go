package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/brackethq/calcutta/go/internal/auction/events"
)

// HandleAuctionEvent routes incoming auction events to the timer logic.
// Events that do not move a deadline are ignored; the engine has already
// done its work by the time they reach the bus.
func (o *Orchestrator) HandleAuctionEvent(ctx context.Context, eventType string, poolID uuid.UUID, payload []byte) error {
	log.Debug().
		Str("event_type", eventType).
		Str("pool_id", poolID.String()).
		Msg("handling auction event")

	switch eventType {
	case events.TypeItemActivated:
		var p events.ItemActivatedPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return fmt.Errorf("failed to unmarshal ItemActivated payload: %w", err)
		}
		return o.scheduleDeadline(ctx, poolID, p.TimeoutAt)

	case events.TypeNewBid:
		var p events.NewBidPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return fmt.Errorf("failed to unmarshal NewBid payload: %w", err)
		}
		return o.scheduleDeadline(ctx, poolID, p.TimeoutAt)

	case events.TypeAuctionResumed:
		var p events.AuctionResumedPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return fmt.Errorf("failed to unmarshal AuctionResumed payload: %w", err)
		}
		return o.scheduleDeadline(ctx, poolID, p.TimeoutAt)

	case events.TypeAuctionPaused:
		log.Info().
			Str("pool_id", poolID.String()).
			Msg("handling AuctionPaused event")
		o.cancelTimer(poolID)
		return nil

	case events.TypeAuctionCompleted:
		log.Info().
			Str("pool_id", poolID.String()).
			Msg("auction completed - cleaning up tracking maps")
		o.cancelTimer(poolID)
		return nil

	case events.TypeItemSold, events.TypeItemUnsold, events.TypeAuctionStarted,
		events.TypeQueueReordered, events.TypePayoutPosted, events.TypeBalanceUpdated:
		// No timer action. ItemActivated carries the next deadline.
		return nil

	default:
		log.Warn().
			Str("event_type", eventType).
			Str("pool_id", poolID.String()).
			Msg("unknown event type - ignoring")
		return nil
	}
}

// handleTimeout closes out the expired item through the engine. The engine
// re-checks the durable deadline under the pool lock, so a stale timer
// firing after a late bid or pause is harmless.
func (o *Orchestrator) handleTimeout(ctx context.Context, poolID uuid.UUID) error {
	log.Info().Str("pool_id", poolID.String()).Msg("bid window expired, advancing auction")

	result, err := o.engine.AdvanceAuction(ctx, poolID)
	if err != nil {
		return fmt.Errorf("advance auction: %w", err)
	}

	switch {
	case result.Completed:
		log.Info().Str("pool_id", poolID.String()).Msg("auction queue exhausted")
	case result.Sold != nil:
		log.Info().
			Str("pool_id", poolID.String()).
			Str("item_id", result.Sold.ID.String()).
			Msg("item sold on timeout")
	case result.Unsold != nil:
		log.Info().
			Str("pool_id", poolID.String()).
			Str("item_id", result.Unsold.ID.String()).
			Msg("item passed unsold")
	}
	return nil
}
