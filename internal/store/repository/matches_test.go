package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-playground/assert/v2"

	"github.com/fortuna/tipster/internal/store"
)

func newMockDB(t *testing.T) (*store.Database, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return store.NewDatabaseFromDB(conn), mock
}

func TestUpsertMatch_InsertAndUpdate(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMatchRepository(db)

	date := time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC)
	link := "https://example.com/match/1"
	match := &store.Match{
		LeagueID:          1,
		HomeTeamID:        10,
		AwayTeamID:        11,
		MatchDate:         date,
		MatchLink:         &link,
		Status:            store.StatusScheduled,
		PredictzHomeScore: 2,
		PredictzAwayScore: 1,
	}

	upsert := regexp.QuoteMeta("ON CONFLICT (home_team_id, away_team_id, match_date) DO UPDATE SET")

	mock.ExpectQuery(upsert).
		WithArgs(int64(1), int64(10), int64(11), date, link, "SCHEDULED", 2, 1, nil, nil).
		WillReturnRows(sqlmock.NewRows([]string{"id", "inserted"}).AddRow(int64(42), true))
	mock.ExpectQuery(upsert).
		WithArgs(int64(1), int64(10), int64(11), date, link, "SCHEDULED", 2, 1, nil, nil).
		WillReturnRows(sqlmock.NewRows([]string{"id", "inserted"}).AddRow(int64(42), false))

	created, err := repo.UpsertMatch(context.Background(), match)
	assert.Equal(t, err, nil)
	assert.Equal(t, created, true)
	assert.Equal(t, match.ID, int64(42))

	created, err = repo.UpsertMatch(context.Background(), match)
	assert.Equal(t, err, nil)
	assert.Equal(t, created, false)

	assert.Equal(t, mock.ExpectationsWereMet(), nil)
}

func TestUpsertMatch_DoesNotWriteUserPredictionColumns(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMatchRepository(db)

	mock.ExpectQuery(`INSERT INTO matches`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "inserted"}).AddRow(int64(1), false))

	_, err := repo.UpsertMatch(context.Background(), &store.Match{Status: store.StatusScheduled})
	assert.Equal(t, err, nil)
	assert.Equal(t, mock.ExpectationsWereMet(), nil)

	// the upsert statement must never name the user columns
	assert.Equal(t, regexp.MustCompile(`user_predicted`).MatchString(upsertMatchQuery), false)
}

func TestUpsertMatch_StatusOnlyMovesForward(t *testing.T) {
	guards := []string{
		`WHEN matches.status = 'FINISHED' THEN matches.status`,
		`WHEN matches.status = 'IN_PROGRESS' AND EXCLUDED.status = 'SCHEDULED' THEN matches.status`,
	}
	for _, guard := range guards {
		assert.Equal(t, regexp.MustCompile(regexp.QuoteMeta(guard)).MatchString(upsertMatchQuery), true)
	}
}

func TestSaveUserPrediction_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMatchRepository(db)

	mock.ExpectExec(`UPDATE matches`).
		WithArgs(int64(7), 2, 1).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SaveUserPrediction(context.Background(), 7, store.IntPtr(2), store.IntPtr(1))
	assert.Equal(t, errors.Is(err, store.ErrMatchNotFound), true)
	assert.Equal(t, mock.ExpectationsWereMet(), nil)
}

func TestGetOrCreateTeam_TrimsName(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTeamRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("ON CONFLICT (name)")).
		WithArgs("Arsenal").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(3), "Arsenal"))

	team, err := repo.GetOrCreateTeam(context.Background(), "  Arsenal ")
	assert.Equal(t, err, nil)
	assert.Equal(t, team.ID, int64(3))
	assert.Equal(t, mock.ExpectationsWereMet(), nil)
}

func TestGetOrCreateLeague_EmptyName(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewLeagueRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO leagues")).
		WithArgs("").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(5), ""))

	league, err := repo.GetOrCreateLeague(context.Background(), "   ")
	assert.Equal(t, err, nil)
	assert.Equal(t, league.ID, int64(5))
	assert.Equal(t, league.Name, "")
	assert.Equal(t, mock.ExpectationsWereMet(), nil)
}

var matchCols = []string{
	"id", "league_id", "home_team_id", "away_team_id", "match_date", "match_link",
	"status", "predictz_home_score", "predictz_away_score",
	"user_predicted_home_score", "user_predicted_away_score",
	"actual_home_score", "actual_away_score", "created_at", "updated_at",
	"league", "home", "away",
}

func TestListResults_Filters(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMatchRepository(db)

	played := time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC)
	from := time.Date(2024, 3, 1, 18, 30, 0, 0, time.UTC)
	to := time.Date(2024, 3, 9, 7, 0, 0, 0, time.UTC)
	league := int64(3)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE m.status = 'FINISHED'")).
		WithArgs(league, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)).
		WillReturnRows(sqlmock.NewRows(matchCols).AddRow(
			int64(1), league, int64(10), int64(11), played, nil,
			"FINISHED", 2, 1, nil, nil, 2, 1, played, played,
			"Premier League", "Team A", "Team B",
		))

	matches, err := repo.ListResults(context.Background(), ResultFilter{LeagueID: &league, From: &from, To: &to})
	assert.Equal(t, err, nil)
	assert.Equal(t, len(matches), 1)
	assert.Equal(t, matches[0].Status, store.StatusFinished)
	assert.Equal(t, *matches[0].ActualHomeScore, 2)
	assert.Equal(t, mock.ExpectationsWereMet(), nil)
}

func TestListResults_NoFilters(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMatchRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE m.status = 'FINISHED'")).
		WithArgs(nil, nil, nil).
		WillReturnRows(sqlmock.NewRows(matchCols))

	matches, err := repo.ListResults(context.Background(), ResultFilter{})
	assert.Equal(t, err, nil)
	assert.Equal(t, len(matches), 0)
	assert.Equal(t, mock.ExpectationsWereMet(), nil)
}

func TestListByTeam(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMatchRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE m.home_team_id = $1 OR m.away_team_id = $1")).
		WithArgs(int64(10)).
		WillReturnRows(sqlmock.NewRows(matchCols))

	_, err := repo.ListByTeam(context.Background(), 10)
	assert.Equal(t, err, nil)
	assert.Equal(t, mock.ExpectationsWereMet(), nil)
}
