package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fortuna/tipster/internal/store"
	"github.com/fortuna/tipster/internal/store/repository"
)

// ErrInvalidScore is returned for a negative score or a half-filled pair
var ErrInvalidScore = errors.New("invalid score: give both sides as non-negative integers, or neither")

// MatchView is a match plus its derived outcomes, as served by the API
type MatchView struct {
	*store.Match
	PredictzOutcome        store.Outcome `json:"predictz_outcome"`
	UserOutcome            store.Outcome `json:"user_outcome,omitempty"`
	ActualOutcome          store.Outcome `json:"actual_outcome,omitempty"`
	PredictzOutcomeCorrect *bool         `json:"predictz_outcome_correct"`
	PredictzScoreCorrect   *bool         `json:"predictz_score_correct"`
	UserOutcomeCorrect     *bool         `json:"user_outcome_correct"`
	UserScoreCorrect       *bool         `json:"user_score_correct"`
}

// NewMatchView derives the outcome fields of m
func NewMatchView(m *store.Match) *MatchView {
	return &MatchView{
		Match:                  m,
		PredictzOutcome:        m.PredictzOutcome(),
		UserOutcome:            m.UserOutcome(),
		ActualOutcome:          m.ActualOutcome(),
		PredictzOutcomeCorrect: m.PredictzOutcomeCorrect(),
		PredictzScoreCorrect:   m.PredictzScoreCorrect(),
		UserOutcomeCorrect:     m.UserOutcomeCorrect(),
		UserScoreCorrect:       m.UserScoreCorrect(),
	}
}

// MatchService handles match-related business logic
type MatchService struct {
	matchRepo  *repository.MatchRepository
	leagueRepo *repository.LeagueRepository
	teamRepo   *repository.TeamRepository
}

// NewMatchService creates a new match service
func NewMatchService(db *store.Database) *MatchService {
	return &MatchService{
		matchRepo:  repository.NewMatchRepository(db),
		leagueRepo: repository.NewLeagueRepository(db),
		teamRepo:   repository.NewTeamRepository(db),
	}
}

// ListByDate returns every match on the calendar day of date
func (s *MatchService) ListByDate(ctx context.Context, date time.Time) ([]*MatchView, error) {
	matches, err := s.matchRepo.ListByDate(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("fetching matches: %w", err)
	}
	return NewMatchViews(matches), nil
}

// Results returns finished matches with their outcome and correctness flags
func (s *MatchService) Results(ctx context.Context, filter repository.ResultFilter) ([]*MatchView, error) {
	matches, err := s.matchRepo.ListResults(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("fetching results: %w", err)
	}
	return NewMatchViews(matches), nil
}

// TeamRecords returns every team's record, optionally narrowed by filter
func (s *MatchService) TeamRecords(ctx context.Context, filter repository.TeamFilter) ([]*store.TeamRecord, error) {
	return s.teamRepo.ListRecords(ctx, filter)
}

// TeamMatches returns a team and its match history, newest first
func (s *MatchService) TeamMatches(ctx context.Context, teamID int64) (*store.Team, []*MatchView, error) {
	team, err := s.teamRepo.GetByID(ctx, teamID)
	if err != nil {
		return nil, nil, err
	}
	matches, err := s.matchRepo.ListByTeam(ctx, teamID)
	if err != nil {
		return nil, nil, fmt.Errorf("fetching matches of team %d: %w", teamID, err)
	}
	return team, NewMatchViews(matches), nil
}

// NewMatchViews wraps each match in a view
func NewMatchViews(matches []*store.Match) []*MatchView {
	views := make([]*MatchView, 0, len(matches))
	for _, m := range matches {
		views = append(views, NewMatchView(m))
	}
	return views
}

// GetMatch returns one match by id
func (s *MatchService) GetMatch(ctx context.Context, id int64) (*MatchView, error) {
	m, err := s.matchRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return NewMatchView(m), nil
}

// UpdateUserPrediction sets or clears the user's predicted score
func (s *MatchService) UpdateUserPrediction(ctx context.Context, id int64, home, away *int) (*MatchView, error) {
	if err := ValidateScore(home, away); err != nil {
		return nil, err
	}
	if err := s.matchRepo.SaveUserPrediction(ctx, id, home, away); err != nil {
		return nil, err
	}
	return s.GetMatch(ctx, id)
}

// UpdateActualScore records a final score entered by hand
func (s *MatchService) UpdateActualScore(ctx context.Context, id int64, home, away *int) (*MatchView, error) {
	if err := ValidateScore(home, away); err != nil {
		return nil, err
	}
	if err := s.matchRepo.SaveActualScore(ctx, id, home, away); err != nil {
		return nil, err
	}
	return s.GetMatch(ctx, id)
}

// Leagues lists every known league
func (s *MatchService) Leagues(ctx context.Context) ([]*store.League, error) {
	return s.leagueRepo.GetAll(ctx)
}

// DeleteAll removes all scraped data
func (s *MatchService) DeleteAll(ctx context.Context) error {
	return s.matchRepo.DeleteAll(ctx)
}

// ValidateScore accepts a complete non-negative pair or no score at all
func ValidateScore(home, away *int) error {
	if (home == nil) != (away == nil) {
		return ErrInvalidScore
	}
	if home != nil && (*home < 0 || *away < 0) {
		return ErrInvalidScore
	}
	return nil
}
