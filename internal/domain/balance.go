package domain

import "time"

// FreeTrialAllowance is the lifetime number of items a user may enhance
// before paid credits are debited.
const FreeTrialAllowance = 3

// CostPerItem is the reported monetary cost of enhancing one source image.
const CostPerItem = 0.35

// CreditBalance is the per-user ledger record. FreeUsed never exceeds
// FreeTrialAllowance; Credits never goes negative. Rows are created lazily
// on first use and mutated only through atomic settlement.
type CreditBalance struct {
	UserID    string
	FreeUsed  int
	Credits   float64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// FreeRemainder returns how many free-trial items are still available.
func (b CreditBalance) FreeRemainder() int {
	remainder := FreeTrialAllowance - b.FreeUsed
	if remainder < 0 {
		return 0
	}
	return remainder
}

// CreditSplit is the outcome of a ledger preview: how many of the requested
// items the free trial covers and how many paid credits must cover.
type CreditSplit struct {
	FreeApplied int
	PaidApplied int
}
