// Package app wires the process: cache, provider gateway, token store, feed
// subscriber, lifecycle controller, scheduler, publication generator, and the
// HTTP surface. Everything is constructed explicitly and passed by reference;
// the only process-global is the shutdown signal handled by the caller.
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tokenscout/tokenscout/internal/cache"
	"github.com/tokenscout/tokenscout/internal/config"
	"github.com/tokenscout/tokenscout/internal/feed"
	"github.com/tokenscout/tokenscout/internal/httpapi"
	"github.com/tokenscout/tokenscout/internal/lifecycle"
	"github.com/tokenscout/tokenscout/internal/metrics"
	"github.com/tokenscout/tokenscout/internal/provider"
	"github.com/tokenscout/tokenscout/internal/publish"
	"github.com/tokenscout/tokenscout/internal/scheduler"
	"github.com/tokenscout/tokenscout/internal/scoring"
	"github.com/tokenscout/tokenscout/internal/store"
	"github.com/tokenscout/tokenscout/internal/store/memory"
	"github.com/tokenscout/tokenscout/internal/store/postgres"
)

// App owns the assembled services for one process.
type App struct {
	CfgStore  *config.Store
	Repo      store.TokenRepo
	Gateway   *provider.Client
	Feed      *feed.Subscriber
	Scheduler *scheduler.Scheduler
	Generator *publish.Generator
	Server    *httpapi.Server
	Metrics   *metrics.Registry

	payloadCache cache.Cache
}

// New constructs every service from the configuration snapshot. Only an
// unusable store is fatal; the feed and provider recover at runtime.
func New(ctx context.Context, cfgStore *config.Store) (*App, error) {
	cfg := cfgStore.Current()
	reg := metrics.New()

	payloadCache, err := buildCache(ctx, cfg)
	if err != nil {
		return nil, err
	}

	repo, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	gateway := provider.NewClient(provider.Config{
		BaseURL:      cfg.ProviderBaseURL,
		APIKey:       cfg.ProviderAPIKey,
		RateLimitRPS: cfg.ProviderRPS,
	}, payloadCache, cfgStore, reg)

	sub := feed.NewSubscriber(cfg.FeedURL, cfg.FeedChannel, repo, reg)
	ctrl := lifecycle.NewController(repo, gateway, scoring.NewRegistry(), reg)
	sched := scheduler.New(repo, ctrl, cfgStore, reg)
	gen := publish.NewGenerator(repo, cfgStore, reg)
	server := httpapi.NewServer(cfg.ListenAddr, repo, gen, cfgStore, reg)

	return &App{
		CfgStore:     cfgStore,
		Repo:         repo,
		Gateway:      gateway,
		Feed:         sub,
		Scheduler:    sched,
		Generator:    gen,
		Server:       server,
		Metrics:      reg,
		payloadCache: payloadCache,
	}, nil
}

func buildCache(ctx context.Context, cfg config.Snapshot) (cache.Cache, error) {
	switch cfg.CacheBackend {
	case "redis":
		r := cache.NewRedis(cfg.RedisAddr, cfg.RedisDB)
		if err := r.Ping(ctx); err != nil {
			// The gateway degrades to uncached requests on cache errors, so a
			// cold redis is not fatal.
			log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unreachable at startup")
		}
		return r, nil
	default:
		return cache.NewMemory(), nil
	}
}

func buildStore(ctx context.Context, cfg config.Snapshot) (store.TokenRepo, error) {
	if cfg.DatabaseDSN == "" {
		log.Warn().Msg("no database configured, token state is in-memory only")
		return memory.New(), nil
	}

	db, err := postgres.Open(ctx, cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return postgres.NewTokensRepo(db, 5*time.Second), nil
}

// Run starts the HTTP server, feed, and scheduler and blocks until ctx is
// cancelled. Shutdown order: feed first, then scheduler, then the gateway
// drain window, then the HTTP server and store.
func (a *App) Run(ctx context.Context) error {
	feedCtx, stopFeed := context.WithCancel(context.Background())
	schedCtx, stopSched := context.WithCancel(context.Background())
	defer stopFeed()
	defer stopSched()

	var wg sync.WaitGroup

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- a.Server.Start()
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := a.Feed.Run(feedCtx); err != nil && feedCtx.Err() == nil {
			log.Error().Err(err).Msg("feed subscriber exited")
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := a.Scheduler.Run(schedCtx); err != nil && schedCtx.Err() == nil {
			log.Error().Err(err).Msg("scheduler exited")
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown requested")
	case err := <-serverErr:
		if err != nil {
			log.Error().Err(err).Msg("http server failed")
		}
	}

	a.shutdown(&wg, stopFeed, stopSched)
	return nil
}

func (a *App) shutdown(wg *sync.WaitGroup, stopFeed, stopSched context.CancelFunc) {
	stopFeed()
	stopSched()
	wg.Wait()

	// Give gateway in-flight upstream calls a moment to finish before the
	// cache and store go away.
	drain := time.Duration(a.CfgStore.Current().ShutdownDrainSec) * time.Second
	a.Gateway.Drain(drain)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown failed")
	}

	if closer, ok := a.payloadCache.(interface{ Close() error }); ok {
		_ = closer.Close()
	}
	if err := a.Repo.Close(); err != nil {
		log.Error().Err(err).Msg("store close failed")
	}
	log.Info().Msg("shutdown complete")
}
