package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/fortuna/tipster/internal/ingest/predictz"
	"github.com/fortuna/tipster/internal/reconciliation"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// PageFetcher renders a listing page
type PageFetcher interface {
	RenderedHTML(ctx context.Context, url string) (string, error)
}

// Enricher attaches final results to listing tuples
type Enricher interface {
	Enrich(ctx context.Context, m predictz.RawMatch) predictz.EnrichedMatch
}

// Reconciler persists enriched matches
type Reconciler interface {
	Reconcile(ctx context.Context, matches []predictz.EnrichedMatch) reconciliation.Summary
}

// Summary is what one scrape of one listing date produced
type Summary struct {
	Date       string `json:"date"`
	Added      int    `json:"added"`
	Updated    int    `json:"updated"`
	Skipped    int    `json:"skipped"`
	Diagnostic string `json:"diagnostic,omitempty"`
}

// Pipeline runs fetch, parse, enrich and reconcile for a single date
type Pipeline struct {
	baseURL    string
	fetcher    PageFetcher
	enricher   Enricher
	reconciler Reconciler
	clock      clockwork.Clock
}

// New creates a pipeline. An empty baseURL uses the public listing root.
func New(baseURL string, fetcher PageFetcher, enricher Enricher, reconciler Reconciler, clock clockwork.Clock) *Pipeline {
	if baseURL == "" {
		baseURL = predictz.BaseURL
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Pipeline{
		baseURL:    baseURL,
		fetcher:    fetcher,
		enricher:   enricher,
		reconciler: reconciler,
		clock:      clock,
	}
}

// Run scrapes the listing for the given date selector. An invalid selector
// or a failed page fetch is returned as an error. A page without a listing
// container is not an error: the summary has zero counts and a diagnostic.
func (p *Pipeline) Run(ctx context.Context, date string) (*Summary, error) {
	sel, err := predictz.ParseSelector(date, p.clock.Now())
	if err != nil {
		return nil, err
	}

	logger := log.With().Str("date", sel.String()).Logger()
	url := sel.URL(p.baseURL)
	summary := &Summary{Date: sel.Date.Format("2006-01-02")}

	html, err := p.fetcher.RenderedHTML(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("fetching listing %s: %w", url, err)
	}

	report, err := predictz.ParseListing(html, sel.Date)
	if errors.Is(err, predictz.ErrListingNotFound) {
		summary.Diagnostic = fmt.Sprintf("no listing container found at %s", url)
		logger.Warn().Str("url", url).Msg("listing container not found")
		return summary, nil
	}
	if err != nil {
		return nil, fmt.Errorf("parsing listing: %w", err)
	}

	for _, skip := range report.Skipped {
		logger.Warn().
			Str("league", skip.League).
			Bool("nested", skip.Nested).
			Str("reason", skip.Reason).
			Msg("skipped malformed row")
	}
	logger.Info().
		Int("matches", len(report.Matches)).
		Int("skipped", len(report.Skipped)).
		Msg("parsed listing")

	enriched := make([]predictz.EnrichedMatch, 0, len(report.Matches))
	for _, raw := range report.Matches {
		enriched = append(enriched, p.enricher.Enrich(ctx, raw))
	}

	result := p.reconciler.Reconcile(ctx, enriched)
	summary.Added = result.Added
	summary.Updated = result.Updated
	summary.Skipped = len(report.Skipped) + result.Failed

	logger.Info().
		Int("added", summary.Added).
		Int("updated", summary.Updated).
		Int("skipped", summary.Skipped).
		Msg("scrape finished")
	return summary, nil
}
