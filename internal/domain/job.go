package domain

import "time"

// JobStatus enumerates job lifecycle states. Transitions are monotonic:
// pending -> processing -> completed | failed, never backwards.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether the status permits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Job encapsulates the lifecycle of one batch enhancement request. UserID is
// nil for anonymous demo runs. ItemCount is fixed at creation.
type Job struct {
	ID           string
	UserID       *string
	Instruction  string
	ItemCount    int
	Cost         float64
	Status       JobStatus
	ArchiveKey   *string
	Label        string
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// GeneratedOutput is one transformed image produced for a source reference.
// Outputs live only for the duration of a job run; the archive consumes them.
type GeneratedOutput struct {
	Name string
	MIME string
	Data []byte
}

// Summary is the coordinator's answer to the caller once a job reaches a
// terminal state.
type Summary struct {
	JobID       string  `json:"job_id"`
	Status      string  `json:"status"`
	ItemCount   int     `json:"item_count"`
	Cost        float64 `json:"cost"`
	FreeApplied int     `json:"free_applied"`
	PaidApplied int     `json:"paid_applied"`
	ArchiveURL  string  `json:"archive_url,omitempty"`
	Label       string  `json:"label,omitempty"`
}
