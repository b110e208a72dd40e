package service

import (
	"context"
	"fmt"

	"github.com/fortuna/tipster/internal/store"
	"github.com/fortuna/tipster/internal/store/repository"
)

// Stats compares predictions with final results
type Stats struct {
	Total               int     `json:"total"`
	UserTotal           int     `json:"user_total"`
	UserOutcomeHits     int     `json:"user_outcome_hits"`
	UserScoreHits       int     `json:"user_score_hits"`
	PredictzOutcomeHits int     `json:"predictz_outcome_hits"`
	PredictzScoreHits   int     `json:"predictz_score_hits"`
	UserOutcomeRate     float64 `json:"user_outcome_rate"`
	PredictzOutcomeRate float64 `json:"predictz_outcome_rate"`
}

// StatsService handles statistics-related business logic
type StatsService struct {
	matchRepo *repository.MatchRepository
}

// NewStatsService creates a new stats service
func NewStatsService(db *store.Database) *StatsService {
	return &StatsService{matchRepo: repository.NewMatchRepository(db)}
}

// Summary computes the stats over every finished match
func (s *StatsService) Summary(ctx context.Context) (*Stats, error) {
	matches, err := s.matchRepo.ListFinished(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching finished matches: %w", err)
	}
	stats := Summarize(matches)
	return &stats, nil
}

// Summarize counts hits over finished matches. Every match counts towards
// the totals; one whose final score was cleared can never be a hit.
func Summarize(matches []*store.Match) Stats {
	var st Stats
	for _, m := range matches {
		st.Total++

		if hit(m.PredictzOutcomeCorrect()) {
			st.PredictzOutcomeHits++
		}
		if hit(m.PredictzScoreCorrect()) {
			st.PredictzScoreHits++
		}

		if m.UserOutcome() == store.OutcomeUndefined {
			continue
		}
		st.UserTotal++
		if hit(m.UserOutcomeCorrect()) {
			st.UserOutcomeHits++
		}
		if hit(m.UserScoreCorrect()) {
			st.UserScoreHits++
		}
	}

	if st.Total > 0 {
		st.PredictzOutcomeRate = float64(st.PredictzOutcomeHits) / float64(st.Total)
	}
	if st.UserTotal > 0 {
		st.UserOutcomeRate = float64(st.UserOutcomeHits) / float64(st.UserTotal)
	}
	return st
}

func hit(b *bool) bool {
	return b != nil && *b
}
