package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fortuna/tipster/internal/ingest/predictz"
	"github.com/fortuna/tipster/internal/pipeline"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

const (
	DefaultIdleBackoff  = 15 * time.Second
	DefaultErrorBackoff = 30 * time.Second
)

// Queue is the durable job store the worker consumes
type Queue interface {
	CreateJob(ctx context.Context, payload Payload) (*Job, error)
	ClaimNextJob(ctx context.Context) (*Job, error)
	CompleteJob(ctx context.Context, id uuid.UUID, result json.RawMessage) error
	FailJob(ctx context.Context, id uuid.UUID, result json.RawMessage) error
	GetJob(ctx context.Context, id uuid.UUID) (*Job, error)
	ListRecentJobs(ctx context.Context, limit int) ([]*Job, error)
}

// Runner executes the scrape for one date selector
type Runner interface {
	Run(ctx context.Context, date string) (*pipeline.Summary, error)
}

// Notifier receives job lifecycle events
type Notifier interface {
	PublishJobEvent(ctx context.Context, event interface{}) error
}

// Config tunes the worker loop
type Config struct {
	IdleBackoff  time.Duration
	ErrorBackoff time.Duration
	HistoryLimit int
}

// Service coordinates job persistence, execution, and status reporting.
type Service struct {
	queue    Queue
	runner   Runner
	notifier Notifier
	clock    clockwork.Clock
	cfg      Config

	running atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewService constructs a Service. Call Start to launch the worker.
// notifier may be nil.
func NewService(queue Queue, runner Runner, notifier Notifier, clock clockwork.Clock, cfg Config) *Service {
	if cfg.IdleBackoff <= 0 {
		cfg.IdleBackoff = DefaultIdleBackoff
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = DefaultErrorBackoff
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 10
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		queue:    queue,
		runner:   runner,
		notifier: notifier,
		clock:    clock,
		cfg:      cfg,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches the background worker loop.
func (s *Service) Start() {
	s.wg.Add(1)
	s.running.Store(true)
	go s.worker()
}

// Shutdown stops claiming new jobs and waits for the in-flight one.
func (s *Service) Shutdown(ctx context.Context) error {
	s.cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.wg.Wait()
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// Enqueue validates the date and creates a PENDING job. Accepts
// YYYY-MM-DD, YYYYMMDD, today, tomorrow or empty for today.
func (s *Service) Enqueue(ctx context.Context, date string) (*Job, error) {
	normalized := predictz.NormalizeDateInput(date)
	if _, err := predictz.ParseSelector(normalized, s.clock.Now()); err != nil {
		return nil, err
	}

	var payload Payload
	if normalized != "" {
		payload.Date = &normalized
	}

	job, err := s.queue.CreateJob(ctx, payload)
	if err != nil {
		return nil, err
	}

	log.Info().Str("job_id", job.ID.String()).Str("date", normalized).Msg("job queued")
	s.notify(ctx, job)
	return job, nil
}

// EnqueueRange creates one job per day from daysBack before today to
// daysAhead after it, oldest first.
func (s *Service) EnqueueRange(ctx context.Context, daysBack, daysAhead int) ([]*Job, error) {
	today := s.clock.Now()
	var jobs []*Job
	for offset := -daysBack; offset <= daysAhead; offset++ {
		date := today.AddDate(0, 0, offset).Format("20060102")
		job, err := s.Enqueue(ctx, date)
		if err != nil {
			return jobs, fmt.Errorf("enqueue %s: %w", date, err)
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// GetJob returns one job by id
func (s *Service) GetJob(ctx context.Context, id uuid.UUID) (*Job, error) {
	return s.queue.GetJob(ctx, id)
}

// GetStatus returns worker state plus recent history.
func (s *Service) GetStatus(ctx context.Context) (*StatusSummary, error) {
	history, err := s.queue.ListRecentJobs(ctx, s.cfg.HistoryLimit)
	if err != nil {
		return nil, err
	}
	return &StatusSummary{Running: s.running.Load(), History: history}, nil
}

func (s *Service) worker() {
	defer s.wg.Done()
	defer s.running.Store(false)

	log.Info().Msg("job worker started")
	for {
		if s.ctx.Err() != nil {
			log.Info().Msg("job worker stopped")
			return
		}

		wait := s.RunOnce(s.ctx)
		if wait <= 0 {
			continue
		}

		select {
		case <-s.ctx.Done():
			log.Info().Msg("job worker stopped")
			return
		case <-s.clock.After(wait):
		}
	}
}

// RunOnce claims and processes at most one job and returns how long the
// worker should wait before the next claim.
func (s *Service) RunOnce(ctx context.Context) time.Duration {
	job, err := s.queue.ClaimNextJob(ctx)
	if err != nil {
		if ctx.Err() == nil {
			log.Error().Err(err).Msg("claim job failed")
		}
		return s.cfg.ErrorBackoff
	}
	if job == nil {
		return s.cfg.IdleBackoff
	}

	if err := s.process(ctx, job); err != nil {
		log.Error().Err(err).Str("job_id", job.ID.String()).Msg("recording job outcome failed")
		return s.cfg.ErrorBackoff
	}
	return 0
}

// process runs a claimed job to completion. Shutdown does not cancel it.
func (s *Service) process(ctx context.Context, job *Job) error {
	runCtx := context.WithoutCancel(ctx)
	logger := log.With().Str("job_id", job.ID.String()).Str("date", job.Payload.DateOrToday()).Logger()

	logger.Info().Msg("job started")
	s.notify(runCtx, job)

	start := s.clock.Now()
	summary, runErr := s.execute(runCtx, job)

	if runErr != nil {
		result := encodeError(runErr)
		if err := s.queue.FailJob(runCtx, job.ID, result); err != nil {
			return err
		}
		job.Status = StatusFailed
		job.Result = result
		logger.Error().Err(runErr).Msg("job failed")
		s.notify(runCtx, job)
		return nil
	}

	result := encodeSummary(summary)
	if err := s.queue.CompleteJob(runCtx, job.ID, result); err != nil {
		return err
	}
	job.Status = StatusCompleted
	job.Result = result
	logger.Info().
		Int("added", summary.Added).
		Int("updated", summary.Updated).
		Int("skipped", summary.Skipped).
		Dur("took", s.clock.Since(start)).
		Msg("job completed")
	s.notify(runCtx, job)
	return nil
}

func (s *Service) execute(ctx context.Context, job *Job) (summary *pipeline.Summary, err error) {
	defer func() {
		if r := recover(); r != nil {
			summary = nil
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	summary, err = s.runner.Run(ctx, job.Payload.DateOrToday())
	if err == nil && summary == nil {
		summary = &pipeline.Summary{}
	}
	return summary, err
}

func (s *Service) notify(ctx context.Context, job *Job) {
	if s.notifier == nil {
		return
	}
	event := Event{
		JobID:     job.ID.String(),
		Status:    job.Status,
		Date:      job.Payload.DateOrToday(),
		Result:    job.Result,
		Timestamp: s.clock.Now(),
	}
	if err := s.notifier.PublishJobEvent(ctx, event); err != nil {
		log.Warn().Err(err).Str("job_id", event.JobID).Msg("publish job event failed")
	}
}
