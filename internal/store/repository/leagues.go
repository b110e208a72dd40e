package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/fortuna/tipster/internal/store"
)

// LeagueRepository handles league data access
type LeagueRepository struct {
	db *store.Database
}

// NewLeagueRepository creates a new league repository
func NewLeagueRepository(db *store.Database) *LeagueRepository {
	return &LeagueRepository{db: db}
}

// GetOrCreateLeague resolves a league by name, inserting it on first sighting
func (r *LeagueRepository) GetOrCreateLeague(ctx context.Context, name string) (*store.League, error) {
	query := `
		INSERT INTO leagues (name)
		VALUES ($1)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id, name
	`

	league := &store.League{}
	err := r.db.DB().QueryRowContext(ctx, query, strings.TrimSpace(name)).Scan(&league.ID, &league.Name)
	if err != nil {
		return nil, fmt.Errorf("upserting league %q: %w", name, err)
	}
	return league, nil
}

// GetAll returns every league ordered by name
func (r *LeagueRepository) GetAll(ctx context.Context) ([]*store.League, error) {
	rows, err := r.db.DB().QueryContext(ctx, `SELECT id, name FROM leagues ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("querying leagues: %w", err)
	}
	defer rows.Close()

	var leagues []*store.League
	for rows.Next() {
		league := &store.League{}
		if err := rows.Scan(&league.ID, &league.Name); err != nil {
			return nil, fmt.Errorf("scanning league: %w", err)
		}
		leagues = append(leagues, league)
	}

	return leagues, rows.Err()
}
