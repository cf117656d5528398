package payout

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/brackethq/calcutta/go/internal/auction/events"
	"github.com/brackethq/calcutta/go/internal/auction/outbox"
	"github.com/brackethq/calcutta/go/internal/auction/pool"
	"github.com/brackethq/calcutta/go/internal/ledger"
	"github.com/brackethq/calcutta/go/internal/market"
	"github.com/brackethq/calcutta/go/internal/models"
	"github.com/brackethq/calcutta/go/internal/store"
)

var hundred = decimal.NewFromInt(100)

// rulePayout is the slice of the pot a rule releases when its trigger fires.
func rulePayout(pot, pct decimal.Decimal) decimal.Decimal {
	return pot.Mul(pct).Div(hundred).Truncate(2)
}

// ownerShare is one owner's cut of a rule payout, pro-rata by stake.
// Truncation means fractional cents stay in the pot rather than
// over-distributing.
func ownerShare(payout, pct decimal.Decimal) decimal.Decimal {
	return payout.Mul(pct).Div(hundred).Truncate(2)
}

// GameFinalizedFact is an external score-feed fact: one tournament game has
// finished with a winner.
type GameFinalizedFact struct {
	GameID       uuid.UUID `json:"game_id"`
	TournamentID uuid.UUID `json:"tournament_id"`
	Round        int       `json:"round"`
	HomeTeamID   uuid.UUID `json:"home_team_id"`
	AwayTeamID   uuid.UUID `json:"away_team_id"`
	WinnerID     uuid.UUID `json:"winner_id"`
	PlayedAt     time.Time `json:"played_at"`
}

// App runs the payout waterfall and manages payout rules.
type App struct {
	runner     store.Runner
	repo       *Repository
	poolRepo   *pool.Repository
	marketRepo *market.Repository
	ledgerRepo *ledger.Repository
	outboxApp  *outbox.App
}

func NewApp(runner store.Runner, repo *Repository, poolRepo *pool.Repository, marketRepo *market.Repository, ledgerRepo *ledger.Repository, outboxApp *outbox.App) *App {
	return &App{
		runner:     runner,
		repo:       repo,
		poolRepo:   poolRepo,
		marketRepo: marketRepo,
		ledgerRepo: ledgerRepo,
		outboxApp:  outboxApp,
	}
}

// CreateRule adds a payout rule to a pool. Rules are only editable before the
// auction goes live; once members have committed money the split is fixed.
func (a *App) CreateRule(ctx context.Context, req CreateRuleRequest) (*models.PayoutRule, error) {
	if req.PoolID == uuid.Nil {
		return nil, fmt.Errorf("pool ID is required")
	}
	if req.Percentage.LessThanOrEqual(decimal.Zero) || req.Percentage.GreaterThan(hundred) {
		return nil, fmt.Errorf("percentage must be in (0, 100], got %s", req.Percentage)
	}

	p, err := a.poolRepo.GetPool(ctx, req.PoolID)
	if err != nil {
		return nil, err
	}
	if p.Status != models.PoolStatusDraft && p.Status != models.PoolStatusOpen {
		return nil, fmt.Errorf("payout rules are locked once the auction starts (pool is %s)", p.Status)
	}

	existing, err := a.repo.ListRules(ctx, req.PoolID)
	if err != nil {
		return nil, err
	}
	total := req.Percentage
	for _, r := range existing {
		total = total.Add(r.Percentage)
	}
	if total.GreaterThan(hundred) {
		return nil, fmt.Errorf("payout rules would total %s%%, exceeding the pot", total)
	}

	rule, err := a.repo.CreateRule(ctx, req)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("pool_id", req.PoolID.String()).
		Str("trigger", string(req.Trigger)).
		Str("percentage", req.Percentage.String()).
		Msg("created payout rule")

	return rule, nil
}

// ListRules returns a pool's payout rules.
func (a *App) ListRules(ctx context.Context, poolID uuid.UUID) ([]models.PayoutRule, error) {
	return a.repo.ListRules(ctx, poolID)
}

// ListPoolPayouts returns a pool's distributions.
func (a *App) ListPoolPayouts(ctx context.Context, poolID uuid.UUID) ([]models.Payout, error) {
	return a.repo.ListPayoutsByPool(ctx, poolID)
}

// ListUserPayouts returns one member's distributions.
func (a *App) ListUserPayouts(ctx context.Context, poolID, userID uuid.UUID) ([]models.Payout, error) {
	return a.repo.ListPayoutsByUser(ctx, poolID, userID)
}

// OnGameFinalized runs the payout waterfall for one finished game. The whole
// run is a single transaction: the idempotency log row, the game fact, the
// loser's elimination, and every credited share commit together or not at
// all. Returns false without touching anything when the game was already
// processed.
func (a *App) OnGameFinalized(ctx context.Context, fact GameFinalizedFact) (bool, error) {
	if fact.WinnerID != fact.HomeTeamID && fact.WinnerID != fact.AwayTeamID {
		return false, fmt.Errorf("winner %s played in neither side of game %s", fact.WinnerID, fact.GameID)
	}

	processed := false
	err := a.runner.RunTx(ctx, func(tx store.Querier) error {
		repo := a.repo.WithTx(tx)

		inserted, err := repo.InsertLog(ctx, fact.GameID)
		if err != nil {
			return err
		}
		if !inserted {
			return nil
		}
		processed = true

		playedAt := fact.PlayedAt
		winnerID := fact.WinnerID
		if err := repo.UpsertGame(ctx, models.Game{
			ID:           fact.GameID,
			TournamentID: fact.TournamentID,
			Round:        fact.Round,
			HomeTeamID:   fact.HomeTeamID,
			AwayTeamID:   fact.AwayTeamID,
			Status:       models.GameStatusFinal,
			WinnerID:     &winnerID,
			PlayedAt:     &playedAt,
		}); err != nil {
			return err
		}

		loserID := fact.HomeTeamID
		if fact.WinnerID == fact.HomeTeamID {
			loserID = fact.AwayTeamID
		}
		if err := repo.MarkTeamEliminated(ctx, loserID, fact.Round); err != nil {
			return err
		}

		tournament, err := repo.GetTournament(ctx, fact.TournamentID)
		if err != nil {
			return err
		}
		trigger, ok := TriggerForRound(tournament.Sport, fact.Round)
		if !ok {
			// Round nobody pays out on. The facts are still recorded.
			return nil
		}

		items, err := repo.ListSoldItemsForTeam(ctx, fact.WinnerID)
		if err != nil {
			return err
		}
		for _, item := range items {
			if err := a.distribute(ctx, tx, fact, trigger, item); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("payout: game %s: %w", fact.GameID, err)
	}

	if !processed {
		log.Debug().
			Str("game_id", fact.GameID.String()).
			Msg("game already processed, skipping")
	}
	return processed, nil
}

// distribute pays every matching rule in one pool for one winning item.
func (a *App) distribute(ctx context.Context, tx store.Querier, fact GameFinalizedFact, trigger models.PayoutTrigger, item models.AuctionItem) error {
	repo := a.repo.WithTx(tx)
	poolRepo := a.poolRepo.WithTx(tx)
	marketRepo := a.marketRepo.WithTx(tx)
	ledgerRepo := a.ledgerRepo.WithTx(tx)
	outboxApp := a.outboxApp.WithTx(tx)

	// Lock the pool row so the pot can't move under the waterfall.
	p, err := poolRepo.GetPoolForUpdate(ctx, item.PoolID)
	if err != nil {
		return err
	}

	rules, err := repo.ListRulesByTrigger(ctx, p.ID, trigger)
	if err != nil {
		return err
	}
	if len(rules) == 0 {
		return nil
	}

	owners, err := marketRepo.ListByItem(ctx, item.ID)
	if err != nil {
		return err
	}

	for _, rule := range rules {
		payout := rulePayout(p.TotalPot, rule.Percentage)
		if payout.IsZero() {
			continue
		}

		recipients := 0
		for _, o := range owners {
			share := ownerShare(payout, o.Percentage)
			if share.IsZero() {
				continue
			}

			if _, err := repo.CreatePayout(ctx, models.Payout{
				PoolID: p.ID,
				RuleID: rule.ID,
				ItemID: item.ID,
				UserID: o.UserID,
				GameID: fact.GameID,
				Amount: share,
			}); err != nil {
				return err
			}

			total, err := poolRepo.CreditWinnings(ctx, p.ID, o.UserID, share)
			if err != nil {
				return err
			}

			itemID := item.ID
			if _, err := ledgerRepo.CreateTransaction(ctx, ledger.CreateTransactionRequest{
				UserID: o.UserID,
				PoolID: p.ID,
				ItemID: &itemID,
				Type:   models.TransactionTypeCredit,
				Amount: share,
			}, models.TransactionStatusCompleted); err != nil {
				return err
			}

			if err := outboxApp.InsertUserEvent(ctx, p.ID, o.UserID, events.TypeBalanceUpdated, events.BalanceUpdatedPayload{
				UserID:        o.UserID.String(),
				PoolID:        p.ID.String(),
				Amount:        share,
				TotalWinnings: total,
				CreditedAt:    fact.PlayedAt,
			}); err != nil {
				return err
			}
			recipients++
		}

		if err := outboxApp.InsertPoolEvent(ctx, p.ID, events.TypePayoutPosted, events.PayoutPostedPayload{
			PoolID:     p.ID.String(),
			GameID:     fact.GameID.String(),
			ItemID:     item.ID.String(),
			Trigger:    string(rule.Trigger),
			Amount:     payout,
			Recipients: recipients,
			PostedAt:   fact.PlayedAt,
		}); err != nil {
			return err
		}

		log.Info().
			Str("pool_id", p.ID.String()).
			Str("item_id", item.ID.String()).
			Str("trigger", string(rule.Trigger)).
			Str("amount", payout.String()).
			Int("recipients", recipients).
			Msg("posted payout")
	}
	return nil
}
