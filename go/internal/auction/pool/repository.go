package pool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/brackethq/calcutta/go/internal/models"
	"github.com/brackethq/calcutta/go/internal/store"
)

// CreatePoolRequest carries the fields needed to create a pool.
type CreatePoolRequest struct {
	TournamentID uuid.UUID           `json:"tournament_id"`
	Name         string              `json:"name"`
	Settings     models.PoolSettings `json:"settings"`
}

// AddMemberRequest carries the fields needed to join a pool.
type AddMemberRequest struct {
	PoolID         uuid.UUID `json:"pool_id"`
	UserID         uuid.UUID `json:"user_id"`
	IsCommissioner bool      `json:"is_commissioner"`
}

// Repository handles pool and pool member persistence.
type Repository struct {
	q store.Querier
}

// NewRepository creates a pool Repository over the given querier.
func NewRepository(q store.Querier) *Repository {
	return &Repository{q: q}
}

// WithTx returns a copy of the repository bound to the given transaction.
func (r *Repository) WithTx(tx store.Querier) *Repository {
	return &Repository{q: tx}
}

const poolColumns = `id, tournament_id, name, status, settings, total_pot::text,
       closes_at, paused, paused_remaining_ms, created_at, updated_at`

func scanPool(row pgx.Row) (*models.Pool, error) {
	var (
		p        models.Pool
		settings []byte
		pot      string
		ms       *int64
	)
	err := row.Scan(&p.ID, &p.TournamentID, &p.Name, &p.Status, &settings, &pot,
		&p.ClosesAt, &p.Paused, &ms, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(settings, &p.Settings); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}
	if p.TotalPot, err = store.FromNumeric(pot); err != nil {
		return nil, err
	}
	p.PausedRemaining = store.FromMillisPtr(ms)
	return &p, nil
}

// CreatePool inserts a new pool in DRAFT status.
func (r *Repository) CreatePool(ctx context.Context, req CreatePoolRequest) (*models.Pool, error) {
	settings, err := json.Marshal(req.Settings)
	if err != nil {
		return nil, fmt.Errorf("pool: marshal settings: %w", err)
	}
	row := r.q.QueryRow(ctx, `
		INSERT INTO pools (id, tournament_id, name, status, settings)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+poolColumns,
		uuid.New(), req.TournamentID, req.Name, models.PoolStatusDraft, settings)
	p, err := scanPool(row)
	if err != nil {
		return nil, fmt.Errorf("pool: create pool: %w", err)
	}
	return p, nil
}

// GetPool fetches a pool by id.
func (r *Repository) GetPool(ctx context.Context, id uuid.UUID) (*models.Pool, error) {
	row := r.q.QueryRow(ctx, `SELECT `+poolColumns+` FROM pools WHERE id = $1`, id)
	p, err := scanPool(row)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("pool: get pool: %w", err)
	}
	return p, nil
}

// GetPoolForUpdate fetches a pool by id with a row lock, serializing
// concurrent engine operations on the same pool.
func (r *Repository) GetPoolForUpdate(ctx context.Context, id uuid.UUID) (*models.Pool, error) {
	row := r.q.QueryRow(ctx, `SELECT `+poolColumns+` FROM pools WHERE id = $1 FOR UPDATE`, id)
	p, err := scanPool(row)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("pool: get pool for update: %w", err)
	}
	return p, nil
}

// UpdatePoolStatus moves a pool to a new status.
func (r *Repository) UpdatePoolStatus(ctx context.Context, id uuid.UUID, status models.PoolStatus) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE pools SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("pool: update pool status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// SetClosesAt stores the deadline of the active item's bid window.
func (r *Repository) SetClosesAt(ctx context.Context, id uuid.UUID, closesAt time.Time) error {
	_, err := r.q.Exec(ctx, `
		UPDATE pools SET closes_at = $2, paused = FALSE, paused_remaining_ms = NULL,
		       updated_at = NOW()
		WHERE id = $1`, id, closesAt)
	if err != nil {
		return fmt.Errorf("pool: set closes_at: %w", err)
	}
	return nil
}

// ClearClosesAt clears the countdown once no item is on the block.
func (r *Repository) ClearClosesAt(ctx context.Context, id uuid.UUID) error {
	_, err := r.q.Exec(ctx, `
		UPDATE pools SET closes_at = NULL, paused_remaining_ms = NULL, updated_at = NOW()
		WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("pool: clear closes_at: %w", err)
	}
	return nil
}

// MarkPaused freezes the countdown, banking the remaining window.
func (r *Repository) MarkPaused(ctx context.Context, id uuid.UUID, remaining time.Duration) error {
	_, err := r.q.Exec(ctx, `
		UPDATE pools SET paused = TRUE, closes_at = NULL, paused_remaining_ms = $2,
		       updated_at = NOW()
		WHERE id = $1`, id, remaining.Milliseconds())
	if err != nil {
		return fmt.Errorf("pool: mark paused: %w", err)
	}
	return nil
}

// AddToPot increments the pool's total pot by the given amount.
func (r *Repository) AddToPot(ctx context.Context, id uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error) {
	var pot string
	err := r.q.QueryRow(ctx, `
		UPDATE pools SET total_pot = total_pot + $2::numeric, updated_at = NOW()
		WHERE id = $1
		RETURNING total_pot::text`, id, store.ToNumeric(amount)).Scan(&pot)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Decimal{}, store.ErrNotFound
	}
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("pool: add to pot: %w", err)
	}
	return store.FromNumeric(pot)
}

const memberColumns = `id, pool_id, user_id, remaining_budget::text, total_spent::text,
       total_winnings::text, is_commissioner, joined_at`

func scanMember(row pgx.Row) (*models.PoolMember, error) {
	var (
		m         models.PoolMember
		budget    *string
		spent     string
		winnings  string
	)
	err := row.Scan(&m.ID, &m.PoolID, &m.UserID, &budget, &spent, &winnings,
		&m.IsCommissioner, &m.JoinedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if m.RemainingBudget, err = store.FromNumericPtr(budget); err != nil {
		return nil, err
	}
	if m.TotalSpent, err = store.FromNumeric(spent); err != nil {
		return nil, err
	}
	if m.TotalWinnings, err = store.FromNumeric(winnings); err != nil {
		return nil, err
	}
	return &m, nil
}

// AddMember inserts a membership row. The starting budget comes from the
// pool settings; nil means unlimited.
func (r *Repository) AddMember(ctx context.Context, req AddMemberRequest, budget *decimal.Decimal) (*models.PoolMember, error) {
	row := r.q.QueryRow(ctx, `
		INSERT INTO pool_members (id, pool_id, user_id, remaining_budget, is_commissioner)
		VALUES ($1, $2, $3, $4::numeric, $5)
		RETURNING `+memberColumns,
		uuid.New(), req.PoolID, req.UserID, store.ToNumericPtr(budget), req.IsCommissioner)
	m, err := scanMember(row)
	if err != nil {
		return nil, fmt.Errorf("pool: add member: %w", err)
	}
	return m, nil
}

// GetMember fetches one member by pool and user.
func (r *Repository) GetMember(ctx context.Context, poolID, userID uuid.UUID) (*models.PoolMember, error) {
	row := r.q.QueryRow(ctx, `
		SELECT `+memberColumns+` FROM pool_members
		WHERE pool_id = $1 AND user_id = $2`, poolID, userID)
	m, err := scanMember(row)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("pool: get member: %w", err)
	}
	return m, nil
}

// GetMemberForUpdate fetches one member with a row lock for settlement.
func (r *Repository) GetMemberForUpdate(ctx context.Context, poolID, userID uuid.UUID) (*models.PoolMember, error) {
	row := r.q.QueryRow(ctx, `
		SELECT `+memberColumns+` FROM pool_members
		WHERE pool_id = $1 AND user_id = $2 FOR UPDATE`, poolID, userID)
	m, err := scanMember(row)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("pool: get member for update: %w", err)
	}
	return m, nil
}

// ListMembers returns all members of a pool.
func (r *Repository) ListMembers(ctx context.Context, poolID uuid.UUID) ([]models.PoolMember, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+memberColumns+` FROM pool_members
		WHERE pool_id = $1 ORDER BY joined_at`, poolID)
	if err != nil {
		return nil, fmt.Errorf("pool: list members: %w", err)
	}
	defer rows.Close()

	var members []models.PoolMember
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("pool: list members: %w", err)
		}
		members = append(members, *m)
	}
	return members, rows.Err()
}

// GetCommissioner returns the commissioner member of a pool.
func (r *Repository) GetCommissioner(ctx context.Context, poolID uuid.UUID) (*models.PoolMember, error) {
	row := r.q.QueryRow(ctx, `
		SELECT `+memberColumns+` FROM pool_members
		WHERE pool_id = $1 AND is_commissioner ORDER BY joined_at LIMIT 1`, poolID)
	m, err := scanMember(row)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("pool: get commissioner: %w", err)
	}
	return m, nil
}

// ApplyPurchase records a settled sale against the winner's membership.
// When requireBudget is set the decrement is guarded so the budget never
// goes negative; zero rows affected means the guard rejected the charge.
// A NULL remaining_budget means unlimited and always passes the guard.
func (r *Repository) ApplyPurchase(ctx context.Context, poolID, userID uuid.UUID, price decimal.Decimal, requireBudget bool) error {
	amount := store.ToNumeric(price)
	if requireBudget {
		ct, err := r.q.Exec(ctx, `
			UPDATE pool_members
			SET remaining_budget = remaining_budget - $3::numeric,
			    total_spent = total_spent + $3::numeric
			WHERE pool_id = $1 AND user_id = $2
			  AND (remaining_budget IS NULL OR remaining_budget >= $3::numeric)`, poolID, userID, amount)
		if err != nil {
			return fmt.Errorf("pool: apply purchase: %w", err)
		}
		if ct.RowsAffected() == 0 {
			return ErrBudgetExceeded
		}
		return nil
	}
	ct, err := r.q.Exec(ctx, `
		UPDATE pool_members SET total_spent = total_spent + $3::numeric
		WHERE pool_id = $1 AND user_id = $2`, poolID, userID, amount)
	if err != nil {
		return fmt.Errorf("pool: apply purchase: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// CreditWinnings adds a payout share to the member's running winnings and
// returns the updated total.
func (r *Repository) CreditWinnings(ctx context.Context, poolID, userID uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error) {
	var total string
	err := r.q.QueryRow(ctx, `
		UPDATE pool_members SET total_winnings = total_winnings + $3::numeric
		WHERE pool_id = $1 AND user_id = $2
		RETURNING total_winnings::text`, poolID, userID, store.ToNumeric(amount)).Scan(&total)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Decimal{}, store.ErrNotFound
	}
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("pool: credit winnings: %w", err)
	}
	return store.FromNumeric(total)
}
