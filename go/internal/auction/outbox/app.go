package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/brackethq/calcutta/go/internal/store"
)

// App handles outbox business logic. It holds the concrete repository so
// WithTx can rebind event inserts to the caller's transaction.
type App struct {
	repo *Repository
}

// NewApp creates a new outbox App.
func NewApp(repo *Repository) *App {
	return &App{repo: repo}
}

// WithTx returns a copy of the app bound to the given transaction.
func (a *App) WithTx(tx store.Querier) *App {
	return &App{repo: a.repo.WithTx(tx)}
}

// InsertPoolEvent inserts a pool-wide event into the outbox.
func (a *App) InsertPoolEvent(ctx context.Context, poolID uuid.UUID, eventType string, payload any) error {
	return a.insert(ctx, poolID, nil, eventType, payload)
}

// InsertUserEvent inserts an event delivered to a single user.
func (a *App) InsertUserEvent(ctx context.Context, poolID, userID uuid.UUID, eventType string, payload any) error {
	return a.insert(ctx, poolID, &userID, eventType, payload)
}

func (a *App) insert(ctx context.Context, poolID uuid.UUID, userID *uuid.UUID, eventType string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("invalid %s payload: %w", eventType, err)
	}

	if err := a.repo.InsertEvent(ctx, poolID, userID, eventType, raw); err != nil {
		return fmt.Errorf("failed to insert %s event: %w", eventType, err)
	}

	log.Debug().
		Str("pool_id", poolID.String()).
		Str("event_type", eventType).
		Msg("outbox event inserted")

	return nil
}
