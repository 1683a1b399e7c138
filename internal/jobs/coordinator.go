// Package jobs sequences one enhancement batch end to end: validate, price,
// generate, archive, settle. Each job runs as a single serial flow; many
// jobs may be in flight concurrently across users.
package jobs

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"server/internal/credit"
	"server/internal/domain"
	"server/internal/refcheck"
	"server/pkg/zip"
)

// Generator produces transformed outputs for a batch of source references.
type Generator interface {
	Generate(ctx context.Context, refs []string, instruction string) ([]domain.GeneratedOutput, error)
}

// ArchiveStore is the object-storage collaborator: it accepts a byte buffer
// under a key and serves it back at a retrievable location.
type ArchiveStore interface {
	Write(ctx context.Context, key string, data []byte) (string, error)
	PublicURL(key string) string
}

// Request is one accepted batch-enhancement submission. UserID is nil for
// anonymous demo runs.
type Request struct {
	UserID      *string
	References  []string
	Instruction string
	Label       string
}

// Coordinator owns the job state machine: pending -> processing ->
// completed | failed, with the ledger debit committed atomically alongside
// the completed transition.
type Coordinator struct {
	jobs   domain.JobRepository
	ledger *credit.Ledger
	gen    Generator
	store  ArchiveStore
	logger zerolog.Logger
}

func NewCoordinator(jobs domain.JobRepository, ledger *credit.Ledger, gen Generator, store ArchiveStore, logger zerolog.Logger) *Coordinator {
	return &Coordinator{jobs: jobs, ledger: ledger, gen: gen, store: store, logger: logger}
}

// Run drives a request to a terminal state and returns its summary. Any
// failure after job creation marks the job failed and leaves the ledger
// untouched; the job is never retried automatically.
func (c *Coordinator) Run(ctx context.Context, req Request) (*domain.Summary, error) {
	instruction := strings.TrimSpace(req.Instruction)
	if instruction == "" {
		return nil, fmt.Errorf("%w: instruction is required", domain.ErrValidation)
	}
	if err := refcheck.CheckAll(req.References); err != nil {
		return nil, err
	}

	itemCount := len(req.References)
	split, err := c.previewCredits(ctx, req.UserID, itemCount)
	if err != nil {
		return nil, err
	}

	job := &domain.Job{
		ID:          uuid.NewString(),
		UserID:      req.UserID,
		Instruction: instruction,
		ItemCount:   itemCount,
		Cost:        domain.CostPerItem * float64(itemCount),
		Status:      domain.JobStatusPending,
		Label:       strings.TrimSpace(req.Label),
	}
	if err := c.jobs.Create(ctx, job); err != nil {
		c.logger.Error().Err(err).Msg("jobs: create failed")
		return nil, fmt.Errorf("%w: create job", domain.ErrPersistence)
	}
	if err := c.jobs.UpdateStatus(ctx, job.ID, domain.JobStatusProcessing, nil); err != nil {
		c.logger.Error().Err(err).Str("job_id", job.ID).Msg("jobs: transition to processing failed")
		return nil, fmt.Errorf("%w: update job", domain.ErrPersistence)
	}

	outputs, err := c.gen.Generate(ctx, req.References, instruction)
	if err != nil {
		c.fail(ctx, job.ID, err)
		return nil, err
	}

	assets := make([]zip.Asset, 0, len(outputs))
	for _, out := range outputs {
		assets = append(assets, zip.Asset{Filename: out.Name, MIME: out.MIME, Data: out.Data})
	}
	blob := zip.ArchiveAssets(assets)

	key := fmt.Sprintf("archives/%s.zip", job.ID)
	storedKey, err := c.store.Write(ctx, key, blob)
	if err != nil {
		c.logger.Error().Err(err).Str("job_id", job.ID).Msg("jobs: archive store failed")
		storeErr := fmt.Errorf("%w: store archive", domain.ErrPersistence)
		c.fail(ctx, job.ID, storeErr)
		return nil, storeErr
	}

	if err := c.settle(ctx, job.ID, req.UserID, split, storedKey); err != nil {
		c.logger.Error().Err(err).Str("job_id", job.ID).Msg("jobs: settlement failed")
		if _, ok := domain.IsInsufficientCredits(err); ok {
			c.fail(ctx, job.ID, err)
			return nil, err
		}
		// The stored record and the response carry a generic message; the
		// repository detail stays in the log above.
		settleErr := fmt.Errorf("%w: settle job", domain.ErrPersistence)
		c.fail(ctx, job.ID, settleErr)
		return nil, settleErr
	}

	c.logger.Info().
		Str("job_id", job.ID).
		Int("items", itemCount).
		Int("outputs", len(outputs)).
		Int("free_applied", split.FreeApplied).
		Int("paid_applied", split.PaidApplied).
		Msg("jobs: completed")

	return &domain.Summary{
		JobID:       job.ID,
		Status:      string(domain.JobStatusCompleted),
		ItemCount:   itemCount,
		Cost:        job.Cost,
		FreeApplied: split.FreeApplied,
		PaidApplied: split.PaidApplied,
		ArchiveURL:  c.store.PublicURL(storedKey),
		Label:       job.Label,
	}, nil
}

// previewCredits computes the free/paid split before any paid external work
// happens. Anonymous runs never touch the ledger and are capped at the
// free-trial allowance per request.
func (c *Coordinator) previewCredits(ctx context.Context, userID *string, itemCount int) (domain.CreditSplit, error) {
	if userID == nil {
		if itemCount > domain.FreeTrialAllowance {
			return domain.CreditSplit{}, fmt.Errorf("%w: anonymous runs are limited to %d items", domain.ErrValidation, domain.FreeTrialAllowance)
		}
		return domain.CreditSplit{FreeApplied: itemCount}, nil
	}
	return c.ledger.Preview(ctx, *userID, itemCount)
}

// settle commits the terminal success state. For identified users the job
// completion and the ledger debit land in the same transaction; anonymous
// jobs only flip their status.
func (c *Coordinator) settle(ctx context.Context, jobID string, userID *string, split domain.CreditSplit, archiveKey string) error {
	if userID == nil {
		if err := c.jobs.Complete(ctx, jobID, archiveKey); err != nil {
			return fmt.Errorf("%w: complete job", domain.ErrPersistence)
		}
		return nil
	}
	return c.ledger.Commit(ctx, jobID, *userID, split, archiveKey)
}

func (c *Coordinator) fail(ctx context.Context, jobID string, cause error) {
	msg := cause.Error()
	if err := c.jobs.UpdateStatus(ctx, jobID, domain.JobStatusFailed, &msg); err != nil {
		c.logger.Error().Err(err).Str("job_id", jobID).Msg("jobs: failed-state update failed")
	}
}
