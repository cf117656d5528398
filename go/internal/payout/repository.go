package payout

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/brackethq/calcutta/go/internal/models"
	"github.com/brackethq/calcutta/go/internal/store"
)

// CreateRuleRequest creates one payout rule for a pool.
type CreateRuleRequest struct {
	PoolID     uuid.UUID            `json:"pool_id"`
	Trigger    models.PayoutTrigger `json:"trigger"`
	Percentage decimal.Decimal      `json:"percentage"`
	Order      int                  `json:"order"`
}

// Repository handles payout rules, logs, distributions, and the tournament
// facts (games, teams) the waterfall reads.
type Repository struct {
	q store.Querier
}

func NewRepository(q store.Querier) *Repository {
	return &Repository{q: q}
}

// WithTx returns a copy of the repository bound to the given transaction.
func (r *Repository) WithTx(tx store.Querier) *Repository {
	return &Repository{q: tx}
}

const ruleColumns = `id, pool_id, trigger, percentage::text, rule_order, created_at`

func scanRule(row pgx.Row) (*models.PayoutRule, error) {
	var (
		rule models.PayoutRule
		pct  string
	)
	if err := row.Scan(&rule.ID, &rule.PoolID, &rule.Trigger, &pct, &rule.Order, &rule.CreatedAt); err != nil {
		return nil, err
	}
	var err error
	if rule.Percentage, err = decimal.NewFromString(pct); err != nil {
		return nil, fmt.Errorf("parse percentage: %w", err)
	}
	return &rule, nil
}

// CreateRule inserts a payout rule.
func (r *Repository) CreateRule(ctx context.Context, req CreateRuleRequest) (*models.PayoutRule, error) {
	query := `
		INSERT INTO payout_rules (id, pool_id, trigger, percentage, rule_order)
		VALUES ($1, $2, $3, $4::numeric, $5)
		RETURNING ` + ruleColumns

	rule, err := scanRule(r.q.QueryRow(ctx, query,
		uuid.New(), req.PoolID, req.Trigger, req.Percentage.String(), req.Order))
	if err != nil {
		return nil, fmt.Errorf("payout: create rule: %w", err)
	}
	return rule, nil
}

// ListRules returns a pool's payout rules in rule order.
func (r *Repository) ListRules(ctx context.Context, poolID uuid.UUID) ([]models.PayoutRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM payout_rules WHERE pool_id = $1 ORDER BY rule_order, created_at`

	rows, err := r.q.Query(ctx, query, poolID)
	if err != nil {
		return nil, fmt.Errorf("payout: list rules: %w", err)
	}
	defer rows.Close()

	var rules []models.PayoutRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("payout: scan rule: %w", err)
		}
		rules = append(rules, *rule)
	}
	return rules, rows.Err()
}

// ListRulesByTrigger returns a pool's rules for one trigger. Usually zero or
// one rule, but nothing stops a commissioner splitting a round across rules.
func (r *Repository) ListRulesByTrigger(ctx context.Context, poolID uuid.UUID, trigger models.PayoutTrigger) ([]models.PayoutRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM payout_rules WHERE pool_id = $1 AND trigger = $2 ORDER BY rule_order`

	rows, err := r.q.Query(ctx, query, poolID, trigger)
	if err != nil {
		return nil, fmt.Errorf("payout: list rules by trigger: %w", err)
	}
	defer rows.Close()

	var rules []models.PayoutRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("payout: scan rule: %w", err)
		}
		rules = append(rules, *rule)
	}
	return rules, rows.Err()
}

// InsertLog records a game as processed. Returns false when a log row already
// exists, which makes re-delivered finalization events no-ops.
func (r *Repository) InsertLog(ctx context.Context, gameID uuid.UUID) (bool, error) {
	query := `INSERT INTO payout_logs (game_id) VALUES ($1) ON CONFLICT (game_id) DO NOTHING`

	ct, err := r.q.Exec(ctx, query, gameID)
	if err != nil {
		return false, fmt.Errorf("payout: insert log: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}

// CreatePayout inserts one credited distribution row.
func (r *Repository) CreatePayout(ctx context.Context, p models.Payout) (*models.Payout, error) {
	query := `
		INSERT INTO payouts (id, pool_id, rule_id, item_id, user_id, game_id, amount)
		VALUES ($1, $2, $3, $4, $5, $6, $7::numeric)
		RETURNING created_at`

	p.ID = uuid.New()
	err := r.q.QueryRow(ctx, query,
		p.ID, p.PoolID, p.RuleID, p.ItemID, p.UserID, p.GameID, p.Amount.String()).
		Scan(&p.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("payout: create payout: %w", err)
	}
	return &p, nil
}

// ListPayoutsByPool returns all distributions a pool has made, newest first.
func (r *Repository) ListPayoutsByPool(ctx context.Context, poolID uuid.UUID) ([]models.Payout, error) {
	query := `
		SELECT id, pool_id, rule_id, item_id, user_id, game_id, amount::text, created_at
		FROM payouts WHERE pool_id = $1 ORDER BY created_at DESC`

	return r.listPayouts(ctx, query, poolID)
}

// ListPayoutsByUser returns one member's distributions, newest first.
func (r *Repository) ListPayoutsByUser(ctx context.Context, poolID, userID uuid.UUID) ([]models.Payout, error) {
	query := `
		SELECT id, pool_id, rule_id, item_id, user_id, game_id, amount::text, created_at
		FROM payouts WHERE pool_id = $1 AND user_id = $2 ORDER BY created_at DESC`

	return r.listPayouts(ctx, query, poolID, userID)
}

func (r *Repository) listPayouts(ctx context.Context, query string, args ...any) ([]models.Payout, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("payout: list payouts: %w", err)
	}
	defer rows.Close()

	var payouts []models.Payout
	for rows.Next() {
		var (
			p   models.Payout
			amt string
		)
		if err := rows.Scan(&p.ID, &p.PoolID, &p.RuleID, &p.ItemID, &p.UserID, &p.GameID, &amt, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("payout: scan payout: %w", err)
		}
		if p.Amount, err = decimal.NewFromString(amt); err != nil {
			return nil, fmt.Errorf("payout: parse amount: %w", err)
		}
		payouts = append(payouts, p)
	}
	return payouts, rows.Err()
}

// GetTournament returns the tournament, which carries the sport used for
// trigger mapping.
func (r *Repository) GetTournament(ctx context.Context, id uuid.UUID) (*models.Tournament, error) {
	query := `SELECT id, name, sport, year FROM tournaments WHERE id = $1`

	var t models.Tournament
	err := r.q.QueryRow(ctx, query, id).Scan(&t.ID, &t.Name, &t.Sport, &t.Year)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("payout: get tournament: %w", err)
	}
	return &t, nil
}

// UpsertGame records a tournament game fact, updating status, winner, and
// played time on re-delivery.
func (r *Repository) UpsertGame(ctx context.Context, g models.Game) error {
	query := `
		INSERT INTO games (id, tournament_id, round, home_team_id, away_team_id, status, winner_id, played_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status, winner_id = EXCLUDED.winner_id, played_at = EXCLUDED.played_at`

	_, err := r.q.Exec(ctx, query,
		g.ID, g.TournamentID, g.Round, g.HomeTeamID, g.AwayTeamID, g.Status, g.WinnerID, g.PlayedAt)
	if err != nil {
		return fmt.Errorf("payout: upsert game: %w", err)
	}
	return nil
}

// GetGame returns one game.
func (r *Repository) GetGame(ctx context.Context, id uuid.UUID) (*models.Game, error) {
	query := `
		SELECT id, tournament_id, round, home_team_id, away_team_id, status, winner_id, played_at
		FROM games WHERE id = $1`

	var g models.Game
	err := r.q.QueryRow(ctx, query, id).
		Scan(&g.ID, &g.TournamentID, &g.Round, &g.HomeTeamID, &g.AwayTeamID, &g.Status, &g.WinnerID, &g.PlayedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("payout: get game: %w", err)
	}
	return &g, nil
}

// MarkTeamEliminated flags the losing team. Keeps the earliest elimination
// round if the fact is re-delivered.
func (r *Repository) MarkTeamEliminated(ctx context.Context, teamID uuid.UUID, round int) error {
	query := `
		UPDATE teams
		SET is_eliminated = TRUE, eliminated_round = COALESCE(eliminated_round, $2)
		WHERE id = $1`

	if _, err := r.q.Exec(ctx, query, teamID, round); err != nil {
		return fmt.Errorf("payout: mark team eliminated: %w", err)
	}
	return nil
}

// GetTeam returns one team.
func (r *Repository) GetTeam(ctx context.Context, id uuid.UUID) (*models.Team, error) {
	query := `
		SELECT id, tournament_id, name, seed, is_eliminated, eliminated_round
		FROM teams WHERE id = $1`

	var t models.Team
	err := r.q.QueryRow(ctx, query, id).
		Scan(&t.ID, &t.TournamentID, &t.Name, &t.Seed, &t.IsEliminated, &t.EliminatedRound)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("payout: get team: %w", err)
	}
	return &t, nil
}

// ListSoldItemsForTeam returns the sold auction item for the team in every
// pool still playing out its tournament. Pools where the team went unsold
// pay nobody, and completed or cancelled pools take no further payouts.
func (r *Repository) ListSoldItemsForTeam(ctx context.Context, teamID uuid.UUID) ([]models.AuctionItem, error) {
	query := `
		SELECT i.id, i.pool_id, i.team_id, i.winning_bid::text, i.winner_id
		FROM auction_items i
		JOIN pools p ON p.id = i.pool_id
		WHERE i.team_id = $1 AND i.status = 'SOLD'
		  AND p.status IN ('LIVE', 'IN_PROGRESS')`

	rows, err := r.q.Query(ctx, query, teamID)
	if err != nil {
		return nil, fmt.Errorf("payout: list sold items: %w", err)
	}
	defer rows.Close()

	var items []models.AuctionItem
	for rows.Next() {
		var (
			it  models.AuctionItem
			bid *string
		)
		if err := rows.Scan(&it.ID, &it.PoolID, &it.TeamID, &bid, &it.WinnerID); err != nil {
			return nil, fmt.Errorf("payout: scan sold item: %w", err)
		}
		it.Status = models.ItemStatusSold
		if bid != nil {
			d, err := decimal.NewFromString(*bid)
			if err != nil {
				return nil, fmt.Errorf("payout: parse winning bid: %w", err)
			}
			it.WinningBid = &d
		}
		items = append(items, it)
	}
	return items, rows.Err()
}
