package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fortuna/tipster/internal/store"
)

const matchColumns = `
	m.id, m.league_id, m.home_team_id, m.away_team_id, m.match_date, m.match_link,
	m.status, m.predictz_home_score, m.predictz_away_score,
	m.user_predicted_home_score, m.user_predicted_away_score,
	m.actual_home_score, m.actual_away_score, m.created_at, m.updated_at,
	l.name, ht.name, at.name
`

const matchJoins = `
	FROM matches m
	JOIN leagues l ON l.id = m.league_id
	JOIN teams ht ON ht.id = m.home_team_id
	JOIN teams at ON at.id = m.away_team_id
`

const upsertMatchQuery = `
	INSERT INTO matches (
		league_id, home_team_id, away_team_id, match_date, match_link, status,
		predictz_home_score, predictz_away_score, actual_home_score, actual_away_score
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	ON CONFLICT (home_team_id, away_team_id, match_date) DO UPDATE SET
		league_id = EXCLUDED.league_id,
		predictz_home_score = EXCLUDED.predictz_home_score,
		predictz_away_score = EXCLUDED.predictz_away_score,
		match_link = COALESCE(EXCLUDED.match_link, matches.match_link),
		actual_home_score = COALESCE(EXCLUDED.actual_home_score, matches.actual_home_score),
		actual_away_score = COALESCE(EXCLUDED.actual_away_score, matches.actual_away_score),
		status = CASE
			WHEN matches.status = 'FINISHED' THEN matches.status
			WHEN matches.status = 'IN_PROGRESS' AND EXCLUDED.status = 'SCHEDULED' THEN matches.status
			ELSE EXCLUDED.status
		END,
		updated_at = NOW()
	RETURNING id, (xmax = 0) AS inserted
`

// ResultFilter narrows the finished-match listing. From and To are
// inclusive calendar days.
type ResultFilter struct {
	LeagueID *int64
	From     *time.Time
	To       *time.Time
}

// MatchRepository handles match data access
type MatchRepository struct {
	db *store.Database
}

// NewMatchRepository creates a new match repository
func NewMatchRepository(db *store.Database) *MatchRepository {
	return &MatchRepository{db: db}
}

// UpsertMatch inserts or updates a match by its natural key
// (home_team_id, away_team_id, match_date) and reports whether a row was created.
//
// On update the scraped columns are overwritten except that the status only
// moves forward (see store.Advance), and known actual scores or links are
// never replaced by NULL.
// User predicted scores are not touched.
func (r *MatchRepository) UpsertMatch(ctx context.Context, match *store.Match) (bool, error) {
	var inserted bool
	err := r.db.DB().QueryRowContext(ctx, upsertMatchQuery,
		match.LeagueID, match.HomeTeamID, match.AwayTeamID, match.MatchDate, match.MatchLink,
		string(match.Status), match.PredictzHomeScore, match.PredictzAwayScore,
		match.ActualHomeScore, match.ActualAwayScore,
	).Scan(&match.ID, &inserted)
	if err != nil {
		return false, fmt.Errorf("upserting match: %w", err)
	}

	return inserted, nil
}

// GetByID returns a single match with league and team names
func (r *MatchRepository) GetByID(ctx context.Context, id int64) (*store.Match, error) {
	query := `SELECT ` + matchColumns + matchJoins + ` WHERE m.id = $1`

	match, err := scanMatch(r.db.DB().QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrMatchNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying match %d: %w", id, err)
	}
	return match, nil
}

// ListByDate returns the matches whose match_date falls on the given day
func (r *MatchRepository) ListByDate(ctx context.Context, day time.Time) ([]*store.Match, error) {
	start := startOfDay(day)
	end := start.AddDate(0, 0, 1)

	query := `SELECT ` + matchColumns + matchJoins + `
		WHERE m.match_date >= $1 AND m.match_date < $2
		ORDER BY l.name, ht.name
	`
	return r.list(ctx, query, start, end)
}

// ListFinished returns every FINISHED match, the population stats run over
func (r *MatchRepository) ListFinished(ctx context.Context) ([]*store.Match, error) {
	query := `SELECT ` + matchColumns + matchJoins + `
		WHERE m.status = 'FINISHED'
		ORDER BY m.match_date DESC
	`
	return r.list(ctx, query)
}

// ListResults returns finished matches matching filter, newest first
func (r *MatchRepository) ListResults(ctx context.Context, filter ResultFilter) ([]*store.Match, error) {
	var leagueID, from, to interface{}
	if filter.LeagueID != nil {
		leagueID = *filter.LeagueID
	}
	if filter.From != nil {
		from = startOfDay(*filter.From)
	}
	if filter.To != nil {
		to = startOfDay(*filter.To).AddDate(0, 0, 1)
	}

	query := `SELECT ` + matchColumns + matchJoins + `
		WHERE m.status = 'FINISHED'
			AND ($1::bigint IS NULL OR m.league_id = $1)
			AND ($2::timestamptz IS NULL OR m.match_date >= $2)
			AND ($3::timestamptz IS NULL OR m.match_date < $3)
		ORDER BY m.match_date DESC
	`
	return r.list(ctx, query, leagueID, from, to)
}

// ListByTeam returns every match a team played on either side, newest first
func (r *MatchRepository) ListByTeam(ctx context.Context, teamID int64) ([]*store.Match, error) {
	query := `SELECT ` + matchColumns + matchJoins + `
		WHERE m.home_team_id = $1 OR m.away_team_id = $1
		ORDER BY m.match_date DESC
	`
	return r.list(ctx, query, teamID)
}

// SaveUserPrediction writes the user's predicted score. This is the only
// writer of the user_predicted_* columns.
func (r *MatchRepository) SaveUserPrediction(ctx context.Context, id int64, home, away *int) error {
	res, err := r.db.DB().ExecContext(ctx, `
		UPDATE matches
		SET user_predicted_home_score = $2,
			user_predicted_away_score = $3,
			updated_at = NOW()
		WHERE id = $1
	`, id, home, away)
	if err != nil {
		return fmt.Errorf("updating user prediction: %w", err)
	}
	return expectOneRow(res)
}

// SaveActualScore records a manually entered result. A complete score
// moves the match to FINISHED.
func (r *MatchRepository) SaveActualScore(ctx context.Context, id int64, home, away *int) error {
	res, err := r.db.DB().ExecContext(ctx, `
		UPDATE matches
		SET actual_home_score = $2,
			actual_away_score = $3,
			status = CASE
				WHEN $2::int IS NOT NULL AND $3::int IS NOT NULL THEN 'FINISHED'
				ELSE status
			END,
			updated_at = NOW()
		WHERE id = $1
	`, id, home, away)
	if err != nil {
		return fmt.Errorf("updating actual score: %w", err)
	}
	return expectOneRow(res)
}

// DeleteAll removes every match, team and league in one transaction
func (r *MatchRepository) DeleteAll(ctx context.Context) error {
	tx, err := r.db.DB().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"matches", "teams", "leagues"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("deleting %s: %w", table, err)
		}
	}

	return tx.Commit()
}

func (r *MatchRepository) list(ctx context.Context, query string, args ...interface{}) ([]*store.Match, error) {
	rows, err := r.db.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying matches: %w", err)
	}
	defer rows.Close()

	var matches []*store.Match
	for rows.Next() {
		match, err := scanMatch(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning match: %w", err)
		}
		matches = append(matches, match)
	}

	return matches, rows.Err()
}

func scanMatch(scanner interface {
	Scan(dest ...interface{}) error
}) (*store.Match, error) {
	match := &store.Match{}
	var status string
	err := scanner.Scan(
		&match.ID,
		&match.LeagueID,
		&match.HomeTeamID,
		&match.AwayTeamID,
		&match.MatchDate,
		&match.MatchLink,
		&status,
		&match.PredictzHomeScore,
		&match.PredictzAwayScore,
		&match.UserPredictedHomeScore,
		&match.UserPredictedAwayScore,
		&match.ActualHomeScore,
		&match.ActualAwayScore,
		&match.CreatedAt,
		&match.UpdatedAt,
		&match.LeagueName,
		&match.HomeTeamName,
		&match.AwayTeamName,
	)
	if err != nil {
		return nil, err
	}
	match.Status = store.MatchStatus(status)
	return match, nil
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrMatchNotFound
	}
	return nil
}
