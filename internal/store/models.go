package store

import (
	"errors"
	"time"
)

// ErrMatchNotFound is returned when a match id does not exist
var ErrMatchNotFound = errors.New("match not found")

// ErrTeamNotFound is returned when a team id does not exist
var ErrTeamNotFound = errors.New("team not found")

// MatchStatus is the forward-only lifecycle of a match
type MatchStatus string

const (
	StatusScheduled  MatchStatus = "SCHEDULED"
	StatusInProgress MatchStatus = "IN_PROGRESS"
	StatusFinished   MatchStatus = "FINISHED"
)

// rank orders statuses along the lifecycle
func (s MatchStatus) rank() int {
	switch s {
	case StatusInProgress:
		return 1
	case StatusFinished:
		return 2
	default:
		return 0
	}
}

// Advance returns the status a stored match moves to when a scrape reports
// scraped. A match never moves backwards; the upsert statement applies the
// same rule in SQL.
func Advance(stored, scraped MatchStatus) MatchStatus {
	if stored.rank() > scraped.rank() {
		return stored
	}
	return scraped
}

// League is identified by its name
type League struct {
	ID   int64  `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
}

// Team is identified by its name
type Team struct {
	ID   int64  `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
}

// TeamRecord is a team with its results across every stored match.
// Matches without a final score count towards NumMatches only.
type TeamRecord struct {
	Team
	NumMatches int      `json:"num_matches"`
	Wins       int      `json:"wins"`
	Draws      int      `json:"draws"`
	Losses     int      `json:"losses"`
	Leagues    []string `json:"leagues"`
}

// Match is keyed by (home team, away team, match date).
// User predicted scores are only written through UpdateUserPrediction.
type Match struct {
	ID                     int64       `json:"id" db:"id"`
	LeagueID               int64       `json:"league_id" db:"league_id"`
	HomeTeamID             int64       `json:"home_team_id" db:"home_team_id"`
	AwayTeamID             int64       `json:"away_team_id" db:"away_team_id"`
	MatchDate              time.Time   `json:"match_date" db:"match_date"`
	MatchLink              *string     `json:"match_link,omitempty" db:"match_link"`
	Status                 MatchStatus `json:"status" db:"status"`
	PredictzHomeScore      int         `json:"predictz_home_score" db:"predictz_home_score"`
	PredictzAwayScore      int         `json:"predictz_away_score" db:"predictz_away_score"`
	UserPredictedHomeScore *int        `json:"user_predicted_home_score" db:"user_predicted_home_score"`
	UserPredictedAwayScore *int        `json:"user_predicted_away_score" db:"user_predicted_away_score"`
	ActualHomeScore        *int        `json:"actual_home_score" db:"actual_home_score"`
	ActualAwayScore        *int        `json:"actual_away_score" db:"actual_away_score"`
	CreatedAt              time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt              time.Time   `json:"updated_at" db:"updated_at"`

	// Populated by joins for API responses
	LeagueName   string `json:"league_name,omitempty" db:"-"`
	HomeTeamName string `json:"home_team_name,omitempty" db:"-"`
	AwayTeamName string `json:"away_team_name,omitempty" db:"-"`
}

// PredictzOutcome is the outcome of the external predictor's score
func (m *Match) PredictzOutcome() Outcome {
	home, away := m.PredictzHomeScore, m.PredictzAwayScore
	return OutcomeOf(&home, &away)
}

// UserOutcome is the outcome of the user's prediction, if any
func (m *Match) UserOutcome() Outcome {
	return OutcomeOf(m.UserPredictedHomeScore, m.UserPredictedAwayScore)
}

// ActualOutcome is the outcome of the final score, if known
func (m *Match) ActualOutcome() Outcome {
	return OutcomeOf(m.ActualHomeScore, m.ActualAwayScore)
}

// PredictzOutcomeCorrect is nil until the final score is known
func (m *Match) PredictzOutcomeCorrect() *bool {
	return outcomeCorrect(m.PredictzOutcome(), m.ActualOutcome())
}

// UserOutcomeCorrect is nil unless both the user prediction and final score exist
func (m *Match) UserOutcomeCorrect() *bool {
	return outcomeCorrect(m.UserOutcome(), m.ActualOutcome())
}

// PredictzScoreCorrect reports an exact-score hit for the external predictor
func (m *Match) PredictzScoreCorrect() *bool {
	home, away := m.PredictzHomeScore, m.PredictzAwayScore
	return scoreCorrect(&home, &away, m.ActualHomeScore, m.ActualAwayScore)
}

// UserScoreCorrect reports an exact-score hit for the user
func (m *Match) UserScoreCorrect() *bool {
	return scoreCorrect(m.UserPredictedHomeScore, m.UserPredictedAwayScore, m.ActualHomeScore, m.ActualAwayScore)
}

func outcomeCorrect(predicted, actual Outcome) *bool {
	if predicted == OutcomeUndefined || actual == OutcomeUndefined {
		return nil
	}
	ok := predicted == actual
	return &ok
}

func scoreCorrect(predHome, predAway, actHome, actAway *int) *bool {
	if predHome == nil || predAway == nil || actHome == nil || actAway == nil {
		return nil
	}
	ok := *predHome == *actHome && *predAway == *actAway
	return &ok
}

// IntPtr is a small helper for optional scores
func IntPtr(v int) *int {
	return &v
}
