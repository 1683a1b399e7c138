package domain

import "context"

// JobRepository defines persistence for job lifecycle records.
type JobRepository interface {
	Create(ctx context.Context, job *Job) error
	UpdateStatus(ctx context.Context, jobID string, status JobStatus, errMsg *string) error
	// Complete marks a job completed with its archive key. Used for
	// anonymous jobs where no ledger settlement is involved.
	Complete(ctx context.Context, jobID, archiveKey string) error
	GetByID(ctx context.Context, jobID string) (*Job, error)
}

// BalanceRepository defines persistence for per-user credit balances.
type BalanceRepository interface {
	// GetOrCreate reads the balance row, inserting a zero row on first use.
	GetOrCreate(ctx context.Context, userID string) (*CreditBalance, error)
	// SettleJobCompleted applies the credit debit and marks the job
	// completed with its archive key as one all-or-nothing operation.
	// FreeUsed is clamped at the lifetime allowance and Credits at zero
	// even under concurrent settlements.
	SettleJobCompleted(ctx context.Context, jobID, userID string, split CreditSplit, archiveKey string) error
}
