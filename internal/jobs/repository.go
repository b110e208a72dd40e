package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fortuna/tipster/internal/store"
	"github.com/google/uuid"
)

const jobColumns = `id, status, payload, result, created_at, updated_at`

// Repository handles persistence for scrape jobs.
type Repository struct {
	db *store.Database
}

// NewRepository constructs a Repository.
func NewRepository(db *store.Database) *Repository {
	return &Repository{db: db}
}

// CreateJob inserts a new PENDING job and returns the stored record.
func (r *Repository) CreateJob(ctx context.Context, payload Payload) (*Job, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}

	query := `
		INSERT INTO scrape_jobs (id, status, payload)
		VALUES ($1, 'PENDING', $2)
		RETURNING ` + jobColumns

	row := r.db.DB().QueryRowContext(ctx, query, uuid.New(), data)
	job, err := scanJob(row)
	if err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	return job, nil
}

// ClaimNextJob atomically moves the oldest PENDING job to PROCESSING.
// Rows locked by another worker are skipped, not waited on. Returns nil
// when nothing is claimable.
func (r *Repository) ClaimNextJob(ctx context.Context) (*Job, error) {
	query := `
		WITH next_job AS (
			SELECT id
			FROM scrape_jobs
			WHERE status = 'PENDING'
			ORDER BY created_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE scrape_jobs
		SET status = 'PROCESSING',
			updated_at = NOW()
		FROM next_job
		WHERE scrape_jobs.id = next_job.id
		RETURNING scrape_jobs.id, scrape_jobs.status, scrape_jobs.payload,
			scrape_jobs.result, scrape_jobs.created_at, scrape_jobs.updated_at
	`

	row := r.db.DB().QueryRowContext(ctx, query)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	return job, nil
}

// CompleteJob stores the result of a successful run
func (r *Repository) CompleteJob(ctx context.Context, id uuid.UUID, result json.RawMessage) error {
	return r.finish(ctx, id, StatusCompleted, result)
}

// FailJob stores the error of a failed run
func (r *Repository) FailJob(ctx context.Context, id uuid.UUID, result json.RawMessage) error {
	return r.finish(ctx, id, StatusFailed, result)
}

// finish only moves jobs out of PROCESSING so a terminal state is never rewritten
func (r *Repository) finish(ctx context.Context, id uuid.UUID, status JobStatus, result json.RawMessage) error {
	query := `
		UPDATE scrape_jobs
		SET status = $2,
			result = $3,
			updated_at = NOW()
		WHERE id = $1 AND status = 'PROCESSING'
	`

	res, err := r.db.DB().ExecContext(ctx, query, id, string(status), []byte(result))
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("job %s: %w", id, ErrJobNotProcessing)
	}
	return nil
}

// GetJob returns a single job
func (r *Repository) GetJob(ctx context.Context, id uuid.UUID) (*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM scrape_jobs WHERE id = $1`

	job, err := scanJob(r.db.DB().QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// ListRecentJobs returns the most recently created jobs.
func (r *Repository) ListRecentJobs(ctx context.Context, limit int) ([]*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM scrape_jobs ORDER BY created_at DESC LIMIT $1`

	rows, err := r.db.DB().QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}

	return jobs, rows.Err()
}

func scanJob(scanner interface {
	Scan(dest ...interface{}) error
}) (*Job, error) {
	job := &Job{}
	var status string
	var payload, result []byte
	err := scanner.Scan(
		&job.ID,
		&status,
		&payload,
		&result,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	job.Status = JobStatus(status)
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &job.Payload); err != nil {
			return nil, fmt.Errorf("decode payload of job %s: %w", job.ID, err)
		}
	}
	if len(result) > 0 {
		job.Result = json.RawMessage(result)
	}
	return job, nil
}
