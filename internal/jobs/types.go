package jobs

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/fortuna/tipster/internal/pipeline"
	"github.com/google/uuid"
)

// ErrJobNotFound is returned when a job id does not exist
var ErrJobNotFound = errors.New("job not found")

// ErrJobNotProcessing is returned when finishing a job the caller does not hold
var ErrJobNotProcessing = errors.New("job is not processing")

// JobStatus represents the lifecycle state for a job.
// PENDING -> PROCESSING -> COMPLETED | FAILED, never backwards.
type JobStatus string

const (
	StatusPending    JobStatus = "PENDING"
	StatusProcessing JobStatus = "PROCESSING"
	StatusCompleted  JobStatus = "COMPLETED"
	StatusFailed     JobStatus = "FAILED"
)

// Terminal reports whether no further transition is possible
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Payload is what the enqueuer asked for. A nil Date means today.
type Payload struct {
	Date *string `json:"date,omitempty"`
}

// DateOrToday returns the selector to scrape
func (p Payload) DateOrToday() string {
	if p.Date == nil {
		return ""
	}
	return *p.Date
}

// Job models the database representation of a scrape job.
type Job struct {
	ID        uuid.UUID       `json:"id"`
	Status    JobStatus       `json:"status"`
	Payload   Payload         `json:"payload"`
	Result    json.RawMessage `json:"result,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// successResult is the stored result of a completed job
type successResult struct {
	Added      int    `json:"added"`
	Updated    int    `json:"updated"`
	Skipped    int    `json:"skipped"`
	Diagnostic string `json:"diagnostic,omitempty"`
}

type failureResult struct {
	Error string `json:"error"`
}

func encodeSummary(s *pipeline.Summary) json.RawMessage {
	if s == nil {
		s = &pipeline.Summary{}
	}
	data, _ := json.Marshal(successResult{
		Added:      s.Added,
		Updated:    s.Updated,
		Skipped:    s.Skipped,
		Diagnostic: s.Diagnostic,
	})
	return data
}

func encodeError(err error) json.RawMessage {
	data, _ := json.Marshal(failureResult{Error: err.Error()})
	return data
}

// Event is published on every job status transition
type Event struct {
	JobID     string          `json:"job_id"`
	Status    JobStatus       `json:"status"`
	Date      string          `json:"date,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// StatusSummary is returned to API callers.
type StatusSummary struct {
	Running bool   `json:"worker_running"`
	History []*Job `json:"recent_jobs"`
}
