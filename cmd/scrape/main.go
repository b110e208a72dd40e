package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/fortuna/tipster/internal/cache"
	"github.com/fortuna/tipster/internal/config"
	"github.com/fortuna/tipster/internal/ingest/predictz"
	"github.com/fortuna/tipster/internal/pipeline"
	"github.com/fortuna/tipster/internal/reconciliation"
	"github.com/fortuna/tipster/internal/store"
	"github.com/fortuna/tipster/internal/store/repository"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

const (
	appName    = "tipster-scrape"
	appVersion = "1.0.0"
)

func main() {
	cfg := config.Load()

	var (
		date    = flag.String("date", "", "Listing to scrape: today, tomorrow, YYYYMMDD or YYYY-MM-DD (default today)")
		dsn     = flag.String("dsn", cfg.DatabaseURL, "Postgres DSN")
		baseURL = flag.String("base-url", cfg.PredictzBaseURL, "Listing base URL")
		noCache = flag.Bool("no-cache", false, "Do not use the Redis score cache")
		flush   = flag.Bool("flush-cache", false, "Drop cached detail-page scores before scraping")
		dryRun  = flag.Bool("dry-run", false, "Parse and print matches without writing to the database")
		verbose = flag.Bool("v", false, "Debug logging")
	)
	flag.Parse()

	cfg.LogPretty = true
	if *verbose {
		cfg.LogLevel = "debug"
	}
	cfg.SetupLogging()
	log.Info().Str("app", appName).Str("version", appVersion).Msg("starting")

	clock := clockwork.NewRealClock()
	selector := predictz.NormalizeDateInput(*date)
	browser := predictz.NewBrowser(cfg.Browser)

	var scoreCache predictz.ScoreCache
	if !*noCache {
		if redisCache, err := cache.NewRedisCache(cfg.RedisURL, cfg.DetailCacheTTL); err != nil {
			log.Warn().Err(err).Msg("Redis unavailable, scraping without score cache")
		} else {
			defer redisCache.Close()
			if *flush {
				if err := redisCache.FlushScores(context.Background()); err != nil {
					log.Fatal().Err(err).Msg("flush score cache")
				}
				log.Info().Msg("score cache flushed")
			}
			scoreCache = redisCache
		}
	}
	enricher := predictz.NewEnricher(predictz.NewDetailClient(cfg.DetailTimeout).WithBrowserFallback(browser), scoreCache, clock)

	ctx := context.Background()
	if *dryRun {
		if err := printListing(ctx, browser, enricher, *baseURL, selector, clock.Now()); err != nil {
			log.Fatal().Err(err).Msg("dry run failed")
		}
		return
	}

	db, err := store.NewDatabase(*dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("connect database")
	}
	defer db.Close()

	if err := db.RunMigrations(); err != nil {
		log.Fatal().Err(err).Msg("run migrations")
	}

	engine := reconciliation.NewEngine(
		repository.NewLeagueRepository(db),
		repository.NewTeamRepository(db),
		repository.NewMatchRepository(db),
	)

	start := time.Now()
	summary, err := pipeline.New(*baseURL, browser, enricher, engine, clock).Run(ctx, selector)
	if err != nil {
		log.Fatal().Err(err).Msg("scrape failed")
	}

	if summary.Diagnostic != "" {
		log.Warn().Str("diagnostic", summary.Diagnostic).Msg("nothing scraped")
	}
	log.Info().
		Str("date", summary.Date).
		Int("added", summary.Added).
		Int("updated", summary.Updated).
		Int("skipped", summary.Skipped).
		Dur("took", time.Since(start)).
		Msg("scrape completed")
}

func printListing(ctx context.Context, browser *predictz.Browser, enricher *predictz.Enricher, baseURL, selector string, now time.Time) error {
	sel, err := predictz.ParseSelector(selector, now)
	if err != nil {
		return err
	}

	html, err := browser.RenderedHTML(ctx, sel.URL(baseURL))
	if err != nil {
		return err
	}

	report, err := predictz.ParseListing(html, sel.Date)
	if err != nil {
		return err
	}

	for _, raw := range report.Matches {
		m := enricher.Enrich(ctx, raw)
		fmt.Fprintf(os.Stdout, "%-30s %-25s %-25s %-7s %-7s %s\n",
			m.League, m.HomeTeam, m.AwayTeam, score(m.PredictedHome, m.PredictedAway), score(m.ActualHome, m.ActualAway), m.Status)
	}
	for _, s := range report.Skipped {
		fmt.Fprintf(os.Stdout, "skipped (%s): %s\n", s.League, s.Reason)
	}
	return nil
}

func score(home, away *int) string {
	if home == nil || away == nil {
		return "-"
	}
	return fmt.Sprintf("%d-%d", *home, *away)
}
