package market

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/brackethq/calcutta/go/internal/models"
	"github.com/brackethq/calcutta/go/internal/store"
)

// ErrInsufficientStake is returned when a transfer asks for more than the
// sender holds.
var ErrInsufficientStake = errors.New("market: insufficient stake")

// TransferRequest moves part of one user's stake in an item to another.
type TransferRequest struct {
	ItemID     uuid.UUID       `json:"item_id"`
	FromUserID uuid.UUID       `json:"from_user_id"`
	ToUserID   uuid.UUID       `json:"to_user_id"`
	Percentage decimal.Decimal `json:"percentage"`
}

// App handles ownership business logic.
type App struct {
	repo   *Repository
	runner store.Runner
}

// NewApp creates a new market App.
func NewApp(repo *Repository, runner store.Runner) *App {
	return &App{repo: repo, runner: runner}
}

// GetItemOwners returns all stakes in one item.
func (a *App) GetItemOwners(ctx context.Context, itemID uuid.UUID) ([]models.Ownership, error) {
	return a.repo.ListByItem(ctx, itemID)
}

// GetUserPortfolio returns one user's stakes across a pool.
func (a *App) GetUserPortfolio(ctx context.Context, poolID, userID uuid.UUID) ([]models.Ownership, error) {
	return a.repo.ListByUser(ctx, poolID, userID)
}

// splitStake computes what remains of a stake after transferring part of it
// away. The remainder plus the transferred share always equals the original
// holding, so an item's total stake never moves.
func splitStake(held, transfer decimal.Decimal) (decimal.Decimal, error) {
	if transfer.Sign() <= 0 {
		return decimal.Decimal{}, fmt.Errorf("market: transfer percentage must be positive")
	}
	if held.LessThan(transfer) {
		return decimal.Decimal{}, ErrInsufficientStake
	}
	return held.Sub(transfer), nil
}

// Transfer moves a share of one stake to another member in a single
// transaction. The sender's row shrinks by exactly what the receiver
// gains, so the item's total never exceeds 100 percent.
func (a *App) Transfer(ctx context.Context, req TransferRequest) error {
	if req.Percentage.Sign() <= 0 {
		return fmt.Errorf("market: transfer percentage must be positive")
	}
	if req.FromUserID == req.ToUserID {
		return fmt.Errorf("market: cannot transfer to self")
	}

	err := a.runner.RunTx(ctx, func(tx store.Querier) error {
		repo := a.repo.WithTx(tx)

		stake, err := repo.GetStakeForUpdate(ctx, req.ItemID, req.FromUserID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrInsufficientStake
			}
			return err
		}

		remaining, err := splitStake(stake.Percentage, req.Percentage)
		if err != nil {
			return err
		}
		if remaining.Sign() == 0 {
			if err := repo.DeleteStake(ctx, stake.ID); err != nil {
				return err
			}
		} else {
			if err := repo.UpdatePercentage(ctx, stake.ID, remaining); err != nil {
				return err
			}
		}

		_, err = repo.CreateOwnership(ctx, models.Ownership{
			ItemID:        req.ItemID,
			UserID:        req.ToUserID,
			Percentage:    req.Percentage,
			PurchasePrice: decimal.Zero,
			Source:        models.OwnershipSourceTransfer,
		})
		return err
	})
	if err != nil {
		return err
	}

	log.Info().
		Str("item_id", req.ItemID.String()).
		Str("from", req.FromUserID.String()).
		Str("to", req.ToUserID.String()).
		Str("percentage", req.Percentage.String()).
		Msg("transferred ownership stake")

	return nil
}
