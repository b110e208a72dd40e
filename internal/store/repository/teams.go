package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/fortuna/tipster/internal/store"
	"github.com/lib/pq"
)

// teamRecordsQuery aggregates each team's appearances on either side.
// $1 restricts to teams that played in a league, $2 is a name substring.
const teamRecordsQuery = `
	WITH appearances AS (
		SELECT home_team_id AS team_id, league_id,
			actual_home_score AS scored, actual_away_score AS conceded
		FROM matches
		UNION ALL
		SELECT away_team_id, league_id, actual_away_score, actual_home_score
		FROM matches
	)
	SELECT t.id, t.name,
		COUNT(a.team_id) AS num_matches,
		COUNT(*) FILTER (WHERE a.scored > a.conceded) AS wins,
		COUNT(*) FILTER (WHERE a.scored = a.conceded) AS draws,
		COUNT(*) FILTER (WHERE a.scored < a.conceded) AS losses,
		COALESCE(array_agg(DISTINCT l.name ORDER BY l.name) FILTER (WHERE l.name IS NOT NULL), '{}') AS leagues
	FROM teams t
	LEFT JOIN appearances a ON a.team_id = t.id
	LEFT JOIN leagues l ON l.id = a.league_id
	WHERE ($1::bigint IS NULL OR EXISTS (
			SELECT 1 FROM appearances x WHERE x.team_id = t.id AND x.league_id = $1
		))
		AND ($2 = '' OR t.name ILIKE '%' || $2 || '%')
	GROUP BY t.id, t.name
	ORDER BY t.name
`

// TeamFilter narrows the team listing
type TeamFilter struct {
	LeagueID *int64
	Name     string
}

// TeamRepository handles team data access
type TeamRepository struct {
	db *store.Database
}

// NewTeamRepository creates a new team repository
func NewTeamRepository(db *store.Database) *TeamRepository {
	return &TeamRepository{db: db}
}

// GetOrCreateTeam resolves a team by name, inserting it on first sighting.
// The no-op update makes RETURNING yield the id for existing rows too, so
// concurrent workers converge on one row.
func (r *TeamRepository) GetOrCreateTeam(ctx context.Context, name string) (*store.Team, error) {
	query := `
		INSERT INTO teams (name)
		VALUES ($1)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id, name
	`

	team := &store.Team{}
	err := r.db.DB().QueryRowContext(ctx, query, strings.TrimSpace(name)).Scan(&team.ID, &team.Name)
	if err != nil {
		return nil, fmt.Errorf("upserting team %q: %w", name, err)
	}
	return team, nil
}

// GetByID returns a single team
func (r *TeamRepository) GetByID(ctx context.Context, id int64) (*store.Team, error) {
	team := &store.Team{}
	err := r.db.DB().QueryRowContext(ctx, `SELECT id, name FROM teams WHERE id = $1`, id).
		Scan(&team.ID, &team.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrTeamNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying team %d: %w", id, err)
	}
	return team, nil
}

// ListRecords returns win/draw/loss records for every team matching filter,
// ordered by name
func (r *TeamRepository) ListRecords(ctx context.Context, filter TeamFilter) ([]*store.TeamRecord, error) {
	var leagueID interface{}
	if filter.LeagueID != nil {
		leagueID = *filter.LeagueID
	}

	rows, err := r.db.DB().QueryContext(ctx, teamRecordsQuery, leagueID, strings.TrimSpace(filter.Name))
	if err != nil {
		return nil, fmt.Errorf("querying team records: %w", err)
	}
	defer rows.Close()

	var records []*store.TeamRecord
	for rows.Next() {
		rec := &store.TeamRecord{}
		err := rows.Scan(&rec.ID, &rec.Name, &rec.NumMatches, &rec.Wins, &rec.Draws, &rec.Losses,
			pq.Array(&rec.Leagues))
		if err != nil {
			return nil, fmt.Errorf("scanning team record: %w", err)
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}
