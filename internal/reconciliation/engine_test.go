package reconciliation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fortuna/tipster/internal/ingest/predictz"
	"github.com/fortuna/tipster/internal/store"
	"github.com/go-playground/assert/v2"
)

type matchKey struct {
	home, away int64
	date       time.Time
}

// memStore applies the same conflict rules as the matches upsert statement
type memStore struct {
	leagues map[string]int64
	teams   map[string]int64
	rows    map[matchKey]*store.Match
	nextID  int64
	failFor string
}

func newMemStore() *memStore {
	return &memStore{
		leagues: map[string]int64{},
		teams:   map[string]int64{},
		rows:    map[matchKey]*store.Match{},
	}
}

func (s *memStore) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *memStore) GetOrCreateLeague(_ context.Context, name string) (*store.League, error) {
	if _, ok := s.leagues[name]; !ok {
		s.leagues[name] = s.id()
	}
	return &store.League{ID: s.leagues[name], Name: name}, nil
}

func (s *memStore) GetOrCreateTeam(_ context.Context, name string) (*store.Team, error) {
	if name == s.failFor {
		return nil, errors.New("connection refused")
	}
	if _, ok := s.teams[name]; !ok {
		s.teams[name] = s.id()
	}
	return &store.Team{ID: s.teams[name], Name: name}, nil
}

func (s *memStore) UpsertMatch(_ context.Context, m *store.Match) (bool, error) {
	key := matchKey{m.HomeTeamID, m.AwayTeamID, m.MatchDate}
	existing, ok := s.rows[key]
	if !ok {
		cpy := *m
		cpy.ID = s.id()
		s.rows[key] = &cpy
		m.ID = cpy.ID
		return true, nil
	}

	existing.LeagueID = m.LeagueID
	existing.PredictzHomeScore = m.PredictzHomeScore
	existing.PredictzAwayScore = m.PredictzAwayScore
	if m.MatchLink != nil {
		existing.MatchLink = m.MatchLink
	}
	if m.ActualHomeScore != nil {
		existing.ActualHomeScore = m.ActualHomeScore
	}
	if m.ActualAwayScore != nil {
		existing.ActualAwayScore = m.ActualAwayScore
	}
	existing.Status = store.Advance(existing.Status, m.Status)
	m.ID = existing.ID
	return false, nil
}

func (s *memStore) only(t *testing.T) *store.Match {
	t.Helper()
	assert.Equal(t, len(s.rows), 1)
	for _, m := range s.rows {
		return m
	}
	return nil
}

var day = time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC)

func enriched(league, home, away string, ph, pa *int, status store.MatchStatus) predictz.EnrichedMatch {
	return predictz.EnrichedMatch{
		RawMatch: predictz.RawMatch{
			League:        league,
			HomeTeam:      home,
			AwayTeam:      away,
			PredictedHome: ph,
			PredictedAway: pa,
			Date:          day,
		},
		Status: status,
	}
}

func sample() []predictz.EnrichedMatch {
	return []predictz.EnrichedMatch{
		enriched("Premier League", "Team A", "Team B", store.IntPtr(2), store.IntPtr(1), store.StatusScheduled),
		enriched("Premier League", "Team C", "Team D", store.IntPtr(0), store.IntPtr(0), store.StatusScheduled),
		enriched("FA Cup", "Team E", "Team F", nil, nil, store.StatusScheduled),
	}
}

func TestReconcile_IsIdempotent(t *testing.T) {
	s := newMemStore()
	engine := NewEngine(s, s, s)

	first := engine.Reconcile(context.Background(), sample())
	assert.Equal(t, first, Summary{Added: 3})

	second := engine.Reconcile(context.Background(), sample())
	assert.Equal(t, second, Summary{Updated: 3})
	assert.Equal(t, len(s.rows), 3)

	metrics := engine.GetMetrics()
	assert.Equal(t, metrics.TotalReconciliations, 2)
	assert.Equal(t, metrics.Added, 3)
	assert.Equal(t, metrics.Updated, 3)

	engine.ResetMetrics()
	assert.Equal(t, engine.GetMetrics().TotalReconciliations, 0)
}

func TestReconcile_NilPredictionStoredAsZero(t *testing.T) {
	s := newMemStore()
	NewEngine(s, s, s).Reconcile(context.Background(), sample()[2:])

	row := s.only(t)
	assert.Equal(t, row.PredictzHomeScore, 0)
	assert.Equal(t, row.PredictzAwayScore, 0)
	assert.Equal(t, row.MatchLink, (*string)(nil))
}

func TestReconcile_PreservesUserPrediction(t *testing.T) {
	s := newMemStore()
	engine := NewEngine(s, s, s)
	engine.Reconcile(context.Background(), sample()[:1])

	row := s.only(t)
	row.UserPredictedHomeScore = store.IntPtr(2)
	row.UserPredictedAwayScore = store.IntPtr(1)

	rescrape := sample()[:1]
	rescrape[0].PredictedHome = store.IntPtr(3)
	engine.Reconcile(context.Background(), rescrape)

	assert.Equal(t, *row.UserPredictedHomeScore, 2)
	assert.Equal(t, *row.UserPredictedAwayScore, 1)
	assert.Equal(t, row.PredictzHomeScore, 3)
}

func TestReconcile_FinishedIsNeverReverted(t *testing.T) {
	s := newMemStore()
	engine := NewEngine(s, s, s)

	finished := enriched("Premier League", "Team A", "Team B", store.IntPtr(2), store.IntPtr(1), store.StatusFinished)
	finished.ActualHome = store.IntPtr(3)
	finished.ActualAway = store.IntPtr(1)
	engine.Reconcile(context.Background(), []predictz.EnrichedMatch{finished})

	stale := enriched("Premier League", "Team A", "Team B", store.IntPtr(2), store.IntPtr(1), store.StatusScheduled)
	summary := engine.Reconcile(context.Background(), []predictz.EnrichedMatch{stale})
	assert.Equal(t, summary.Updated, 1)

	row := s.only(t)
	assert.Equal(t, row.Status, store.StatusFinished)
	assert.Equal(t, *row.ActualHomeScore, 3)
	assert.Equal(t, *row.ActualAwayScore, 1)
}

func TestReconcile_InProgressIsNotDowngraded(t *testing.T) {
	s := newMemStore()
	engine := NewEngine(s, s, s)

	live := enriched("Premier League", "Team A", "Team B", store.IntPtr(2), store.IntPtr(1), store.StatusInProgress)
	engine.Reconcile(context.Background(), []predictz.EnrichedMatch{live})

	// next day's scrape of the same date has no result yet
	noResult := enriched("Premier League", "Team A", "Team B", store.IntPtr(2), store.IntPtr(1), store.StatusScheduled)
	engine.Reconcile(context.Background(), []predictz.EnrichedMatch{noResult})
	assert.Equal(t, s.only(t).Status, store.StatusInProgress)

	done := enriched("Premier League", "Team A", "Team B", store.IntPtr(2), store.IntPtr(1), store.StatusFinished)
	done.ActualHome, done.ActualAway = store.IntPtr(1), store.IntPtr(1)
	engine.Reconcile(context.Background(), []predictz.EnrichedMatch{done})
	assert.Equal(t, s.only(t).Status, store.StatusFinished)
}

func TestReconcile_LeagueChangeOverwritesLeague(t *testing.T) {
	s := newMemStore()
	engine := NewEngine(s, s, s)
	engine.Reconcile(context.Background(), sample()[:1])

	moved := sample()[:1]
	moved[0].League = "Championship"
	summary := engine.Reconcile(context.Background(), moved)

	assert.Equal(t, summary.Updated, 1)
	assert.Equal(t, s.only(t).LeagueID, s.leagues["Championship"])
}

func TestReconcile_FailingMatchIsIsolated(t *testing.T) {
	s := newMemStore()
	s.failFor = "Team C"
	batch := append(sample(), enriched("", "Team G", "Team H", nil, nil, store.StatusScheduled))

	summary := NewEngine(s, s, s).Reconcile(context.Background(), batch)
	assert.Equal(t, summary, Summary{Added: 3, Failed: 1})
}

func TestApply_RowWithoutLeagueUsesEmptyLeague(t *testing.T) {
	s := newMemStore()
	engine := NewEngine(s, s, s)

	created, err := engine.Apply(context.Background(), enriched(" ", "A", "B", nil, nil, store.StatusScheduled))
	assert.Equal(t, err, nil)
	assert.Equal(t, created, true)

	leagueID, ok := s.leagues[""]
	assert.Equal(t, ok, true)
	assert.Equal(t, s.only(t).LeagueID, leagueID)

	created, err = engine.Apply(context.Background(), enriched("", "A", "B", nil, nil, store.StatusScheduled))
	assert.Equal(t, err, nil)
	assert.Equal(t, created, false)
	assert.Equal(t, len(s.leagues), 1)
}
