package predictz

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fortuna/tipster/internal/store"
	"github.com/go-playground/assert/v2"
	"github.com/jonboulle/clockwork"
)

type stubFetcher struct {
	pages map[string]string
	err   error
	calls int
}

func (s *stubFetcher) FetchDetail(_ context.Context, url string) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return s.pages[url], nil
}

type memoryScores map[string][2]int

func (m memoryScores) GetScore(_ context.Context, link string) (int, int, bool, error) {
	s, ok := m[link]
	return s[0], s[1], ok, nil
}

func (m memoryScores) SetScore(_ context.Context, link string, home, away int) error {
	m[link] = [2]int{home, away}
	return nil
}

var enrichNow = time.Date(2024, 3, 10, 14, 30, 0, 0, time.UTC)

func rawOn(date time.Time, link string) RawMatch {
	return RawMatch{League: "Premier League", HomeTeam: "Team A", AwayTeam: "Team B", DetailLink: link, Date: date}
}

func TestEnrich_PastMatchWithResult(t *testing.T) {
	link := "https://www.predictz.com/predictions/a-v-b/"
	fetcher := &stubFetcher{pages: map[string]string{link: detailWithResult}}
	e := NewEnricher(fetcher, nil, clockwork.NewFakeClockAt(enrichNow))

	got := e.Enrich(context.Background(), rawOn(time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC), link))
	assert.Equal(t, *got.ActualHome, 3)
	assert.Equal(t, *got.ActualAway, 1)
	assert.Equal(t, got.Status, store.StatusFinished)
}

func TestEnrich_PastMatchWithoutResult(t *testing.T) {
	link := "https://www.predictz.com/predictions/a-v-b/"
	fetcher := &stubFetcher{pages: map[string]string{link: detailWithoutResult}}
	e := NewEnricher(fetcher, nil, clockwork.NewFakeClockAt(enrichNow))

	got := e.Enrich(context.Background(), rawOn(time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC), link))
	assert.Equal(t, got.ActualHome, (*int)(nil))
	assert.Equal(t, got.ActualAway, (*int)(nil))
	assert.Equal(t, got.Status, store.StatusScheduled)
}

func TestEnrich_FetchFailureIsDowngraded(t *testing.T) {
	fetcher := &stubFetcher{err: errors.New("connection reset")}
	e := NewEnricher(fetcher, nil, clockwork.NewFakeClockAt(enrichNow))

	got := e.Enrich(context.Background(), rawOn(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), "https://x/"))
	assert.Equal(t, got.ActualHome, (*int)(nil))
	assert.Equal(t, got.Status, store.StatusScheduled)
	assert.Equal(t, fetcher.calls, 1)
}

func TestEnrich_TodayAndFutureSkipDetailFetch(t *testing.T) {
	fetcher := &stubFetcher{pages: map[string]string{}}
	e := NewEnricher(fetcher, nil, clockwork.NewFakeClockAt(enrichNow))

	today := e.Enrich(context.Background(), rawOn(time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC), "https://x/"))
	assert.Equal(t, today.Status, store.StatusInProgress)

	future := e.Enrich(context.Background(), rawOn(time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC), "https://x/"))
	assert.Equal(t, future.Status, store.StatusScheduled)

	assert.Equal(t, fetcher.calls, 0)
}

func TestEnrich_PastMatchWithoutLinkSkipsFetch(t *testing.T) {
	fetcher := &stubFetcher{}
	e := NewEnricher(fetcher, nil, clockwork.NewFakeClockAt(enrichNow))

	got := e.Enrich(context.Background(), rawOn(time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC), ""))
	assert.Equal(t, got.Status, store.StatusScheduled)
	assert.Equal(t, fetcher.calls, 0)
}

func TestEnrich_UsesScoreCache(t *testing.T) {
	link := "https://www.predictz.com/predictions/a-v-b/"
	fetcher := &stubFetcher{pages: map[string]string{link: detailWithResult}}
	scores := memoryScores{}
	e := NewEnricher(fetcher, scores, clockwork.NewFakeClockAt(enrichNow))
	past := rawOn(time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC), link)

	first := e.Enrich(context.Background(), past)
	second := e.Enrich(context.Background(), past)

	assert.Equal(t, fetcher.calls, 1)
	assert.Equal(t, scores[link], [2]int{3, 1})
	assert.Equal(t, *second.ActualHome, *first.ActualHome)
	assert.Equal(t, second.Status, store.StatusFinished)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, StatusFor(time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC), enrichNow), store.StatusInProgress)
	assert.Equal(t, StatusFor(time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC), enrichNow), store.StatusScheduled)
	assert.Equal(t, StatusFor(time.Date(2024, 3, 12, 0, 0, 0, 0, time.UTC), enrichNow), store.StatusScheduled)
}
