package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/fortuna/tipster/internal/service"
	"github.com/fortuna/tipster/internal/store"
	"github.com/fortuna/tipster/internal/store/repository"
	"github.com/gorilla/mux"
)

// MatchAPI is the match functionality the handlers expose
type MatchAPI interface {
	ListByDate(ctx context.Context, date time.Time) ([]*service.MatchView, error)
	GetMatch(ctx context.Context, id int64) (*service.MatchView, error)
	UpdateUserPrediction(ctx context.Context, id int64, home, away *int) (*service.MatchView, error)
	UpdateActualScore(ctx context.Context, id int64, home, away *int) (*service.MatchView, error)
	Results(ctx context.Context, filter repository.ResultFilter) ([]*service.MatchView, error)
	Leagues(ctx context.Context) ([]*store.League, error)
	TeamRecords(ctx context.Context, filter repository.TeamFilter) ([]*store.TeamRecord, error)
	TeamMatches(ctx context.Context, teamID int64) (*store.Team, []*service.MatchView, error)
	DeleteAll(ctx context.Context) error
}

// StatsAPI computes prediction accuracy
type StatsAPI interface {
	Summary(ctx context.Context) (*service.Stats, error)
}

// Pinger reports storage health
type Pinger interface {
	HealthCheck() error
}

// CachePinger reports score cache health
type CachePinger interface {
	HealthCheck(ctx context.Context) error
}

// Handler contains dependencies for HTTP handlers
type Handler struct {
	db      Pinger
	cache   CachePinger
	matches MatchAPI
	stats   StatsAPI
	now     func() time.Time
}

// NewHandler creates a new handler
func NewHandler(db Pinger, matches MatchAPI, stats StatsAPI) *Handler {
	return &Handler{db: db, matches: matches, stats: stats, now: time.Now}
}

// WithCache adds the score cache to the health report
func (h *Handler) WithCache(cache CachePinger) *Handler {
	h.cache = cache
	return h
}

// HealthCheck handles health check requests. A cache outage degrades
// the report but scraping still works without it.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		if err := h.db.HealthCheck(); err != nil {
			respondError(w, http.StatusServiceUnavailable, "Database unavailable", err)
			return
		}
	}

	body := map[string]string{
		"status":  "healthy",
		"service": "tipster",
	}
	if h.cache != nil {
		body["cache"] = "ok"
		if err := h.cache.HealthCheck(r.Context()); err != nil {
			body["status"] = "degraded"
			body["cache"] = err.Error()
		}
	}
	respondJSON(w, http.StatusOK, body)
}

// GetMatchesByDate returns all matches on a date, default today
func (h *Handler) GetMatchesByDate(w http.ResponseWriter, r *http.Request) {
	dateStr := r.URL.Query().Get("date")
	if dateStr == "" {
		dateStr = h.now().Format("2006-01-02")
	}

	date, err := time.ParseInLocation("2006-01-02", dateStr, h.now().Location())
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid date format (YYYY-MM-DD)", err)
		return
	}

	matches, err := h.matches.ListByDate(r.Context(), date)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to fetch matches", err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"date":    dateStr,
		"matches": matches,
	})
}

// GetMatch returns a single match
func (h *Handler) GetMatch(w http.ResponseWriter, r *http.Request) {
	id, ok := matchID(w, r)
	if !ok {
		return
	}

	match, err := h.matches.GetMatch(r.Context(), id)
	if err != nil {
		respondServiceError(w, "Failed to fetch match", err)
		return
	}
	respondJSON(w, http.StatusOK, match)
}

type scoreRequest struct {
	Home *int `json:"home"`
	Away *int `json:"away"`
}

// UpdateUserPrediction sets the user's predicted score
func (h *Handler) UpdateUserPrediction(w http.ResponseWriter, r *http.Request) {
	h.updateScore(w, r, h.matches.UpdateUserPrediction)
}

// UpdateActualScore records a final score by hand
func (h *Handler) UpdateActualScore(w http.ResponseWriter, r *http.Request) {
	h.updateScore(w, r, h.matches.UpdateActualScore)
}

func (h *Handler) updateScore(w http.ResponseWriter, r *http.Request,
	update func(context.Context, int64, *int, *int) (*service.MatchView, error)) {
	id, ok := matchID(w, r)
	if !ok {
		return
	}

	var req scoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	match, err := update(r.Context(), id, req.Home, req.Away)
	if err != nil {
		respondServiceError(w, "Failed to update match", err)
		return
	}
	respondJSON(w, http.StatusOK, match)
}

// GetStats returns prediction accuracy over finished matches
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.stats.Summary(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to compute stats", err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

// GetStatsResults returns finished matches with per-match correctness.
// Optional filters: league_id, start_date and end_date (YYYY-MM-DD, inclusive).
func (h *Handler) GetStatsResults(w http.ResponseWriter, r *http.Request) {
	var filter repository.ResultFilter
	var err error
	q := r.URL.Query()

	if filter.LeagueID, err = optionalID(q.Get("league_id")); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid league_id", err)
		return
	}
	if filter.From, err = h.optionalDate(q.Get("start_date")); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid start_date (YYYY-MM-DD)", err)
		return
	}
	if filter.To, err = h.optionalDate(q.Get("end_date")); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid end_date (YYYY-MM-DD)", err)
		return
	}

	results, err := h.matches.Results(r.Context(), filter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to fetch results", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":   len(results),
		"results": results,
	})
}

// GetLeagues returns every league
func (h *Handler) GetLeagues(w http.ResponseWriter, r *http.Request) {
	leagues, err := h.matches.Leagues(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to fetch leagues", err)
		return
	}
	respondJSON(w, http.StatusOK, leagues)
}

// GetTeams returns every team with its win/draw/loss record.
// Optional filters: league_id and name (substring, case-insensitive).
func (h *Handler) GetTeams(w http.ResponseWriter, r *http.Request) {
	leagueID, err := optionalID(r.URL.Query().Get("league_id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid league_id", err)
		return
	}

	teams, err := h.matches.TeamRecords(r.Context(), repository.TeamFilter{
		LeagueID: leagueID,
		Name:     r.URL.Query().Get("name"),
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to fetch teams", err)
		return
	}
	if teams == nil {
		teams = []*store.TeamRecord{}
	}
	respondJSON(w, http.StatusOK, teams)
}

// GetTeamMatches returns a team's match history, newest first
func (h *Handler) GetTeamMatches(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["teamID"], 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, "Invalid team ID", err)
		return
	}

	team, matches, err := h.matches.TeamMatches(r.Context(), id)
	if err != nil {
		respondServiceError(w, "Failed to fetch team matches", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"team":    team,
		"count":   len(matches),
		"matches": matches,
	})
}

// DeleteAllData removes matches, teams and leagues. Requires ?confirm=true.
func (h *Handler) DeleteAllData(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("confirm") != "true" {
		respondError(w, http.StatusBadRequest, "Pass confirm=true to delete all data", nil)
		return
	}
	if err := h.matches.DeleteAll(r.Context()); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to delete data", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "All matches, teams and leagues deleted"})
}

func matchID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := mux.Vars(r)["matchID"]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, "Invalid match ID", err)
		return 0, false
	}
	return id, true
}

func optionalID(raw string) (*int64, error) {
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func (h *Handler) optionalDate(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	date, err := time.ParseInLocation("2006-01-02", raw, h.now().Location())
	if err != nil {
		return nil, err
	}
	return &date, nil
}

// respondServiceError maps domain errors to status codes
func respondServiceError(w http.ResponseWriter, message string, err error) {
	switch {
	case errors.Is(err, store.ErrMatchNotFound):
		respondError(w, http.StatusNotFound, "Match not found", err)
	case errors.Is(err, store.ErrTeamNotFound):
		respondError(w, http.StatusNotFound, "Team not found", err)
	case errors.Is(err, service.ErrInvalidScore):
		respondError(w, http.StatusBadRequest, message, err)
	default:
		respondError(w, http.StatusInternalServerError, message, err)
	}
}

// respondJSON writes a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError writes an error response
func respondError(w http.ResponseWriter, status int, message string, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	response := map[string]interface{}{
		"error":  message,
		"status": status,
	}

	if err != nil {
		response["details"] = err.Error()
	}

	json.NewEncoder(w).Encode(response)
}
