package scheduler

import (
	"context"
	"time"

	"github.com/fortuna/tipster/internal/jobs"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Enqueuer creates scrape jobs
type Enqueuer interface {
	Enqueue(ctx context.Context, date string) (*jobs.Job, error)
}

// Config holds scheduler configuration
type Config struct {
	DailyHour int // local hour the daily scrape is queued, default 3
	DaysBack  int // past days re-scraped to pick up final results, default 1
	DaysAhead int // upcoming days scraped for predictions, default 1
}

// DefaultConfig returns default scheduler configuration
func DefaultConfig() Config {
	return Config{DailyHour: 3, DaysBack: 1, DaysAhead: 1}
}

// Scheduler queues a window of scrape jobs once a day
type Scheduler struct {
	jobs   Enqueuer
	clock  clockwork.Clock
	config Config
}

// New creates a scheduler
func New(enqueuer Enqueuer, clock clockwork.Clock, config Config) *Scheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if config.DailyHour < 0 || config.DailyHour > 23 {
		config.DailyHour = DefaultConfig().DailyHour
	}
	return &Scheduler{jobs: enqueuer, clock: clock, config: config}
}

// Run blocks until ctx is done, queueing the window at the daily hour
func (s *Scheduler) Run(ctx context.Context) {
	log.Info().Int("hour", s.config.DailyHour).Msg("daily scrape scheduler started")

	for {
		now := s.clock.Now()
		next := NextRun(now, s.config.DailyHour)
		log.Debug().Time("next_run", next).Msg("next daily scrape scheduled")

		select {
		case <-ctx.Done():
			log.Info().Msg("daily scrape scheduler stopped")
			return
		case <-s.clock.After(next.Sub(now)):
			s.EnqueueWindow(ctx)
		}
	}
}

// EnqueueWindow queues one job per day in the configured window
func (s *Scheduler) EnqueueWindow(ctx context.Context) int {
	today := s.clock.Now()
	queued := 0
	for offset := -s.config.DaysBack; offset <= s.config.DaysAhead; offset++ {
		date := today.AddDate(0, 0, offset).Format("20060102")
		if _, err := s.jobs.Enqueue(ctx, date); err != nil {
			log.Error().Err(err).Str("date", date).Msg("failed to queue daily scrape")
			continue
		}
		queued++
	}
	log.Info().Int("queued", queued).Msg("daily scrape queued")
	return queued
}

// NextRun is the first occurrence of hour:00 strictly after now
func NextRun(now time.Time, hour int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
