package outbox

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/brackethq/calcutta/go/internal/store"
)

// Repository handles outbox persistence.
type Repository struct {
	q store.Querier
}

// NewRepository creates an outbox Repository over the given querier.
func NewRepository(q store.Querier) *Repository {
	return &Repository{q: q}
}

// WithTx returns a copy of the repository bound to the given transaction.
// Events inserted through the transactional copy commit atomically with the
// state change that produced them.
func (r *Repository) WithTx(tx store.Querier) *Repository {
	return &Repository{q: tx}
}

// InsertEvent appends one event row.
func (r *Repository) InsertEvent(ctx context.Context, poolID uuid.UUID, userID *uuid.UUID, eventType string, payload []byte) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO auction_outbox (id, pool_id, user_id, event_type, payload)
		VALUES ($1, $2, $3, $4, $5)`,
		uuid.New(), poolID, userID, eventType, payload)
	if err != nil {
		return fmt.Errorf("outbox: insert event: %w", err)
	}
	return nil
}

const eventColumns = `id, pool_id, user_id, event_type, payload, created_at, sent_at`

// FetchUnsentOutbox returns unsent events oldest first, locked so that
// concurrent pollers do not double-publish.
func (r *Repository) FetchUnsentOutbox(ctx context.Context, limit int32) ([]OutboxEvent, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+eventColumns+` FROM auction_outbox
		WHERE sent_at IS NULL
		ORDER BY created_at
		LIMIT $1
		FOR UPDATE SKIP LOCKED`, limit)
	if err != nil {
		return nil, fmt.Errorf("outbox: fetch unsent: %w", err)
	}
	defer rows.Close()

	var events []OutboxEvent
	for rows.Next() {
		var ev OutboxEvent
		if err := rows.Scan(&ev.ID, &ev.PoolID, &ev.UserID, &ev.EventType,
			&ev.Payload, &ev.CreatedAt, &ev.SentAt); err != nil {
			return nil, fmt.Errorf("outbox: fetch unsent: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// FetchOutboxByID returns one event by id.
func (r *Repository) FetchOutboxByID(ctx context.Context, id uuid.UUID) (*OutboxEvent, error) {
	var ev OutboxEvent
	err := r.q.QueryRow(ctx, `
		SELECT `+eventColumns+` FROM auction_outbox WHERE id = $1`, id).
		Scan(&ev.ID, &ev.PoolID, &ev.UserID, &ev.EventType,
			&ev.Payload, &ev.CreatedAt, &ev.SentAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("outbox: fetch by id: %w", err)
	}
	return &ev, nil
}

// MarkOutboxSent stamps one event as published.
func (r *Repository) MarkOutboxSent(ctx context.Context, id uuid.UUID) error {
	_, err := r.q.Exec(ctx, `
		UPDATE auction_outbox SET sent_at = NOW() WHERE id = $1 AND sent_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("outbox: mark sent: %w", err)
	}
	return nil
}
