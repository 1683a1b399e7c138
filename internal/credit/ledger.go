// Package credit implements the hybrid free-trial/paid-credit ledger. The
// split computation is pure; settlement goes through the balance repository
// as one atomic operation together with the job's terminal state update.
package credit

import (
	"context"
	"fmt"

	"server/internal/domain"
)

// Split computes how many of the requested items the free trial covers and
// how many must be paid. It fails with InsufficientCreditsError when the
// paid portion exceeds the available balance; nothing is debited here.
func Split(freeUsed int, credits float64, requested int) (domain.CreditSplit, error) {
	freeRemainder := domain.FreeTrialAllowance - freeUsed
	if freeRemainder < 0 {
		freeRemainder = 0
	}
	freeApplied := requested
	if freeApplied > freeRemainder {
		freeApplied = freeRemainder
	}
	paidApplied := requested - freeApplied
	if float64(paidApplied) > credits {
		return domain.CreditSplit{}, &domain.InsufficientCreditsError{
			Shortfall: float64(paidApplied) - credits,
			Balance:   credits,
		}
	}
	return domain.CreditSplit{FreeApplied: freeApplied, PaidApplied: paidApplied}, nil
}

// Ledger exposes preview and commit over a user's credit balance.
type Ledger struct {
	balances domain.BalanceRepository
}

func NewLedger(balances domain.BalanceRepository) *Ledger {
	return &Ledger{balances: balances}
}

// Preview reads the current balance (creating the row on first use) and
// returns the free/paid split for the requested item count. It has no side
// effects on the balance itself.
func (l *Ledger) Preview(ctx context.Context, userID string, requested int) (domain.CreditSplit, error) {
	balance, err := l.balances.GetOrCreate(ctx, userID)
	if err != nil {
		return domain.CreditSplit{}, fmt.Errorf("%w: read balance: %v", domain.ErrPersistence, err)
	}
	return Split(balance.FreeUsed, balance.Credits, requested)
}

// Commit settles a previewed split together with the job's completion. The
// repository applies both in a single transaction so no observable state has
// the balance debited while the job is still processing, or vice versa.
func (l *Ledger) Commit(ctx context.Context, jobID, userID string, split domain.CreditSplit, archiveKey string) error {
	if err := l.balances.SettleJobCompleted(ctx, jobID, userID, split, archiveKey); err != nil {
		if _, ok := domain.IsInsufficientCredits(err); ok {
			// A concurrent settlement spent the previewed credits first.
			return err
		}
		return fmt.Errorf("%w: settle credits: %v", domain.ErrPersistence, err)
	}
	return nil
}

// Balance returns the current ledger record for a user.
func (l *Ledger) Balance(ctx context.Context, userID string) (*domain.CreditBalance, error) {
	balance, err := l.balances.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: read balance: %v", domain.ErrPersistence, err)
	}
	return balance, nil
}
