package predictz

import (
	"context"
	"errors"
	"time"

	"github.com/fortuna/tipster/internal/store"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// EnrichedMatch is a listing tuple plus whatever the detail page told us
type EnrichedMatch struct {
	RawMatch
	ActualHome *int
	ActualAway *int
	Status     store.MatchStatus
}

// DetailFetcher retrieves the raw HTML of a detail page
type DetailFetcher interface {
	FetchDetail(ctx context.Context, url string) (string, error)
}

// ScoreCache remembers final scores by detail link
type ScoreCache interface {
	GetScore(ctx context.Context, link string) (home, away int, ok bool, err error)
	SetScore(ctx context.Context, link string, home, away int) error
}

// Enricher attaches final results to matches from past dates
type Enricher struct {
	fetcher DetailFetcher
	cache   ScoreCache
	clock   clockwork.Clock
}

// NewEnricher creates an enricher. cache may be nil.
func NewEnricher(fetcher DetailFetcher, cache ScoreCache, clock clockwork.Clock) *Enricher {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Enricher{fetcher: fetcher, cache: cache, clock: clock}
}

// StatusFor gives the status a match on date has before any result is known
func StatusFor(date, now time.Time) store.MatchStatus {
	if sameDay(date, now) {
		return store.StatusInProgress
	}
	return store.StatusScheduled
}

// Enrich never fails: a detail page that cannot be fetched or parsed leaves
// the match without a result.
func (e *Enricher) Enrich(ctx context.Context, m RawMatch) EnrichedMatch {
	now := e.clock.Now()
	out := EnrichedMatch{RawMatch: m, Status: StatusFor(m.Date, now)}

	if m.DetailLink == "" || !beforeDay(m.Date, now) {
		return out
	}

	score, err := e.lookup(ctx, m.DetailLink)
	if err != nil {
		if errors.Is(err, ErrNoResult) {
			log.Debug().Str("link", m.DetailLink).Msg("no result on detail page")
		} else {
			log.Warn().Err(err).Str("link", m.DetailLink).
				Str("home", m.HomeTeam).Str("away", m.AwayTeam).
				Msg("detail lookup failed")
		}
		return out
	}

	home, away := score.Home, score.Away
	out.ActualHome = &home
	out.ActualAway = &away
	out.Status = store.StatusFinished
	return out
}

func (e *Enricher) lookup(ctx context.Context, link string) (*Score, error) {
	if e.cache != nil {
		home, away, ok, err := e.cache.GetScore(ctx, link)
		if err != nil {
			log.Warn().Err(err).Str("link", link).Msg("score cache read failed")
		} else if ok {
			return &Score{Home: home, Away: away}, nil
		}
	}

	body, err := e.fetcher.FetchDetail(ctx, link)
	if err != nil {
		return nil, err
	}
	score, err := ParseDetail(body)
	if err != nil {
		return nil, err
	}

	if e.cache != nil {
		if err := e.cache.SetScore(ctx, link, score.Home, score.Away); err != nil {
			log.Warn().Err(err).Str("link", link).Msg("score cache write failed")
		}
	}
	return score, nil
}

// sameDay compares calendar days in now's location
func sameDay(a, b time.Time) bool {
	ay, am, ad := a.In(b.Location()).Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func beforeDay(date, now time.Time) bool {
	return midnight(date.In(now.Location())).Before(midnight(now))
}
