package repo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"server/internal/domain"
)

// BalanceRepositoryPG implements domain.BalanceRepository.
type BalanceRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewBalanceRepository creates a new credit balance repository backed by
// PostgreSQL.
func NewBalanceRepository(pool *pgxpool.Pool) *BalanceRepositoryPG {
	return &BalanceRepositoryPG{pool: pool}
}

// GetOrCreate reads the balance row for a user, lazily inserting a zero row
// on first use.
func (r *BalanceRepositoryPG) GetOrCreate(ctx context.Context, userID string) (*domain.CreditBalance, error) {
	insert := `
INSERT INTO credit_balances (user_id, free_used, credits)
VALUES ($1, 0, 0)
ON CONFLICT (user_id) DO NOTHING;
`
	if _, err := r.pool.Exec(ctx, insert, userID); err != nil {
		return nil, fmt.Errorf("ensure balance row: %w", err)
	}

	query := `
SELECT user_id, free_used, credits::float8, created_at, updated_at
FROM credit_balances
WHERE user_id = $1;
`
	row := r.pool.QueryRow(ctx, query, userID)
	var balance domain.CreditBalance
	if err := row.Scan(
		&balance.UserID,
		&balance.FreeUsed,
		&balance.Credits,
		&balance.CreatedAt,
		&balance.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &balance, nil
}

// SettleJobCompleted debits the balance and marks the job completed inside
// one transaction. The balance update is conditional on the paid portion
// still being covered, so two concurrent settlements cannot both spend the
// same credits off a stale preview; free_used is clamped at the lifetime
// allowance and credits at zero.
func (r *BalanceRepositoryPG) SettleJobCompleted(ctx context.Context, jobID, userID string, split domain.CreditSplit, archiveKey string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin settle: %w", err)
	}
	defer tx.Rollback(ctx)

	debit := `
UPDATE credit_balances
SET free_used = LEAST(free_used + $2, $4),
    credits = GREATEST(credits - $3, 0),
    updated_at = NOW()
WHERE user_id = $1
  AND credits >= $3;
`
	tag, err := tx.Exec(ctx, debit, userID, split.FreeApplied, split.PaidApplied, domain.FreeTrialAllowance)
	if err != nil {
		return fmt.Errorf("debit balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		balance, balErr := r.GetOrCreate(ctx, userID)
		if balErr != nil {
			return fmt.Errorf("settle rejected and balance unreadable: %w", balErr)
		}
		return &domain.InsufficientCreditsError{
			Shortfall: float64(split.PaidApplied) - balance.Credits,
			Balance:   balance.Credits,
		}
	}

	complete := `
UPDATE jobs
SET status = 'completed',
    archive_key = $2,
    updated_at = NOW()
WHERE id = $1
  AND status = 'processing';
`
	tag, err = tx.Exec(ctx, complete, jobID, archiveKey)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("job %s is not processing: %w", jobID, domain.ErrNotFound)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit settle: %w", err)
	}
	return nil
}
