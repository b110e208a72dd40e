package reconciliation

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fortuna/tipster/internal/ingest/predictz"
	"github.com/fortuna/tipster/internal/store"
	"github.com/rs/zerolog/log"
)

// LeagueStore resolves leagues by name
type LeagueStore interface {
	GetOrCreateLeague(ctx context.Context, name string) (*store.League, error)
}

// TeamStore resolves teams by name
type TeamStore interface {
	GetOrCreateTeam(ctx context.Context, name string) (*store.Team, error)
}

// MatchStore inserts or updates matches by natural key
type MatchStore interface {
	UpsertMatch(ctx context.Context, match *store.Match) (inserted bool, err error)
}

// Engine writes scraped matches into the store
type Engine struct {
	leagues LeagueStore
	teams   TeamStore
	matches MatchStore

	mu      sync.Mutex
	metrics Metrics
}

// Metrics accumulates counters across runs
type Metrics struct {
	TotalReconciliations int
	Added                int
	Updated              int
	Failed               int
	LastReconciliation   time.Time
}

// Summary counts the outcome of one run
type Summary struct {
	Added   int `json:"added"`
	Updated int `json:"updated"`
	Failed  int `json:"failed"`
}

// NewEngine creates a new reconciliation engine
func NewEngine(leagues LeagueStore, teams TeamStore, matches MatchStore) *Engine {
	return &Engine{leagues: leagues, teams: teams, matches: matches}
}

// Apply resolves the league and both teams, then upserts the match.
// It reports whether the match row was newly inserted. Rows listed before
// any league header are kept under the league with the empty name.
func (e *Engine) Apply(ctx context.Context, m predictz.EnrichedMatch) (bool, error) {
	leagueName := strings.TrimSpace(m.League)
	league, err := e.leagues.GetOrCreateLeague(ctx, leagueName)
	if err != nil {
		return false, fmt.Errorf("league %q: %w", leagueName, err)
	}
	home, err := e.teams.GetOrCreateTeam(ctx, m.HomeTeam)
	if err != nil {
		return false, fmt.Errorf("home team %q: %w", m.HomeTeam, err)
	}
	away, err := e.teams.GetOrCreateTeam(ctx, m.AwayTeam)
	if err != nil {
		return false, fmt.Errorf("away team %q: %w", m.AwayTeam, err)
	}

	match := &store.Match{
		LeagueID:          league.ID,
		HomeTeamID:        home.ID,
		AwayTeamID:        away.ID,
		MatchDate:         m.Date,
		Status:            m.Status,
		PredictzHomeScore: valueOrZero(m.PredictedHome),
		PredictzAwayScore: valueOrZero(m.PredictedAway),
		ActualHomeScore:   m.ActualHome,
		ActualAwayScore:   m.ActualAway,
	}
	if m.DetailLink != "" {
		link := m.DetailLink
		match.MatchLink = &link
	}

	inserted, err := e.matches.UpsertMatch(ctx, match)
	if err != nil {
		return false, fmt.Errorf("upsert %s v %s: %w", m.HomeTeam, m.AwayTeam, err)
	}

	e.record(func(mt *Metrics) {
		if inserted {
			mt.Added++
		} else {
			mt.Updated++
		}
	})
	return inserted, nil
}

// Reconcile applies every match in order. A failing match is logged and
// counted but never stops the run.
func (e *Engine) Reconcile(ctx context.Context, matches []predictz.EnrichedMatch) Summary {
	var summary Summary
	for _, m := range matches {
		inserted, err := e.Apply(ctx, m)
		if err != nil {
			summary.Failed++
			e.record(func(mt *Metrics) { mt.Failed++ })
			log.Warn().Err(err).
				Str("league", m.League).
				Str("home", m.HomeTeam).
				Str("away", m.AwayTeam).
				Msg("skipping match")
			continue
		}
		if inserted {
			summary.Added++
		} else {
			summary.Updated++
		}
	}

	e.record(func(mt *Metrics) {
		mt.TotalReconciliations++
		mt.LastReconciliation = time.Now()
	})

	log.Info().
		Int("added", summary.Added).
		Int("updated", summary.Updated).
		Int("failed", summary.Failed).
		Msg("reconciled matches")
	return summary
}

// GetMetrics returns a snapshot of the accumulated counters
func (e *Engine) GetMetrics() Metrics {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.metrics
}

// ResetMetrics clears the accumulated counters
func (e *Engine) ResetMetrics() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.metrics = Metrics{}
}

func (e *Engine) record(fn func(*Metrics)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(&e.metrics)
}

func valueOrZero(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}
