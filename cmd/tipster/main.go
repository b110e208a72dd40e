package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fortuna/tipster/internal/api/rest"
	"github.com/fortuna/tipster/internal/api/websocket"
	"github.com/fortuna/tipster/internal/cache"
	"github.com/fortuna/tipster/internal/config"
	"github.com/fortuna/tipster/internal/ingest/predictz"
	"github.com/fortuna/tipster/internal/jobs"
	"github.com/fortuna/tipster/internal/pipeline"
	"github.com/fortuna/tipster/internal/publisher"
	"github.com/fortuna/tipster/internal/reconciliation"
	"github.com/fortuna/tipster/internal/scheduler"
	"github.com/fortuna/tipster/internal/service"
	"github.com/fortuna/tipster/internal/store"
	"github.com/fortuna/tipster/internal/store/repository"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

const (
	serviceName    = "tipster"
	serviceVersion = "1.0.0"

	redisRetryDelay = 2 * time.Second
)

func main() {
	cfg := config.Load()
	cfg.SetupLogging()

	log.Info().Str("service", serviceName).Str("version", serviceVersion).Msg("starting")

	db, err := store.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	if err := db.RunMigrations(); err != nil {
		log.Fatal().Err(err).Msg("failed to run database migrations")
	}
	log.Info().Msg("database migrations applied")

	extras := newRedisExtras(connectRedis(cfg))
	defer extras.Close()

	clock := clockwork.NewRealClock()
	browser := predictz.NewBrowser(cfg.Browser)
	detail := predictz.NewDetailClient(cfg.DetailTimeout).WithBrowserFallback(browser)
	enricher := predictz.NewEnricher(detail, extras.scores, clock)
	engine := reconciliation.NewEngine(
		repository.NewLeagueRepository(db),
		repository.NewTeamRepository(db),
		repository.NewMatchRepository(db),
	)
	scraper := pipeline.New(cfg.PredictzBaseURL, browser, enricher, engine, clock)

	jobService := jobs.NewService(jobs.NewRepository(db), scraper, extras.notifier, clock, jobs.Config{
		IdleBackoff:  cfg.IdleBackoff,
		ErrorBackoff: cfg.ErrorBackoff,
	})
	if cfg.EnableWorker {
		jobService.Start()
		log.Info().Dur("idle_backoff", cfg.IdleBackoff).Msg("job worker started")
	}

	schedCtx, stopScheduler := context.WithCancel(context.Background())
	defer stopScheduler()
	if cfg.EnableDailyScrape {
		sched := scheduler.New(jobService, clock, scheduler.Config{
			DailyHour: cfg.DailyScrapeHour,
			DaysBack:  1,
			DaysAhead: 1,
		})
		go sched.Run(schedCtx)
	}

	handler := rest.NewHandler(db, service.NewMatchService(db), service.NewStatsService(db))
	if extras.health != nil {
		handler = handler.WithCache(extras.health)
	}
	restServer := rest.NewServer(cfg.RESTPort, handler, rest.NewJobHandler(jobService))
	go func() {
		log.Info().Str("port", cfg.RESTPort).Msg("starting REST API server")
		if err := restServer.Start(); err != nil {
			log.Error().Err(err).Msg("REST server stopped")
		}
	}()

	wsServer := websocket.NewServer(extras.events)
	go func() {
		if err := wsServer.Start(cfg.WSPort); err != nil {
			log.Error().Err(err).Msg("websocket server stopped")
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("shutting down")
	stopScheduler()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := restServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("REST API server shutdown error")
	}
	if err := wsServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("websocket server shutdown error")
	}
	if err := jobService.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("in-flight job did not finish before shutdown deadline")
	}

	log.Info().Msg("tipster stopped")
}

// redisExtras holds the Redis backed pieces. Every field is a nil
// interface when Redis is unavailable so callers can skip them.
type redisExtras struct {
	scores   predictz.ScoreCache
	notifier jobs.Notifier
	events   websocket.EventSource
	health   rest.CachePinger
	close    func() error
}

func newRedisExtras(rc *cache.RedisCache) redisExtras {
	if rc == nil {
		log.Warn().Msg("running without Redis: score cache and job event stream disabled")
		return redisExtras{}
	}
	events := publisher.NewRedisPublisher(rc.Client())
	return redisExtras{
		scores:   rc,
		notifier: events,
		events:   events,
		health:   rc,
		close:    rc.Close,
	}
}

func (r redisExtras) Close() error {
	if r.close == nil {
		return nil
	}
	return r.close()
}

// connectRedis retries while Redis comes up alongside the service. It
// returns nil once the retries are spent.
func connectRedis(cfg config.Config) *cache.RedisCache {
	for i := 0; i < cfg.RedisRetries; i++ {
		redisCache, err := cache.NewRedisCache(cfg.RedisURL, cfg.DetailCacheTTL)
		if err == nil {
			log.Info().Msg("connected to Redis")
			return redisCache
		}
		log.Warn().Err(err).Int("attempt", i+1).Dur("retry_in", redisRetryDelay).Msg("Redis connection failed")
		if i < cfg.RedisRetries-1 {
			time.Sleep(redisRetryDelay)
		}
	}
	return nil
}
