package repo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"server/internal/domain"
)

// JobRepositoryPG implements domain.JobRepository.
type JobRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewJobRepository creates a new job repository backed by PostgreSQL.
func NewJobRepository(pool *pgxpool.Pool) *JobRepositoryPG {
	return &JobRepositoryPG{pool: pool}
}

// Create inserts a new job record.
func (r *JobRepositoryPG) Create(ctx context.Context, job *domain.Job) error {
	query := `
INSERT INTO jobs (id, user_id, instruction, item_count, cost, status, archive_key, label, error_message)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9);
`
	_, err := r.pool.Exec(ctx, query,
		job.ID,
		job.UserID,
		job.Instruction,
		job.ItemCount,
		job.Cost,
		job.Status,
		job.ArchiveKey,
		job.Label,
		job.ErrorMessage,
	)
	return err
}

// UpdateStatus moves a job to the given status. Terminal states are sticky:
// a completed or failed job never transitions again.
func (r *JobRepositoryPG) UpdateStatus(ctx context.Context, jobID string, status domain.JobStatus, errMsg *string) error {
	query := `
UPDATE jobs
SET status = $2,
    updated_at = NOW(),
    error_message = COALESCE($3, error_message)
WHERE id = $1
  AND status NOT IN ('completed', 'failed');
`
	tag, err := r.pool.Exec(ctx, query, jobID, status, errMsg)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Complete marks a job completed with its archive key. Only used for
// anonymous jobs; settled user jobs go through the balance repository.
func (r *JobRepositoryPG) Complete(ctx context.Context, jobID, archiveKey string) error {
	query := `
UPDATE jobs
SET status = 'completed',
    archive_key = $2,
    updated_at = NOW()
WHERE id = $1
  AND status = 'processing';
`
	tag, err := r.pool.Exec(ctx, query, jobID, archiveKey)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetByID fetches a job by its identifier.
func (r *JobRepositoryPG) GetByID(ctx context.Context, jobID string) (*domain.Job, error) {
	query := `
SELECT id, user_id, instruction, item_count, cost::float8, status, archive_key, label, error_message, created_at, updated_at
FROM jobs
WHERE id = $1;
`
	row := r.pool.QueryRow(ctx, query, jobID)
	var job domain.Job
	if err := row.Scan(
		&job.ID,
		&job.UserID,
		&job.Instruction,
		&job.ItemCount,
		&job.Cost,
		&job.Status,
		&job.ArchiveKey,
		&job.Label,
		&job.ErrorMessage,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &job, nil
}
