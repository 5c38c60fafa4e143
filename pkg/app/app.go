package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/robfig/cron/v3"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/collab/pkg/api"
	"github.com/platinummonkey/collab/pkg/config"
	"github.com/platinummonkey/collab/pkg/dependencies"
	"github.com/platinummonkey/collab/pkg/fixtures"
	"github.com/platinummonkey/collab/pkg/middleware"
	"github.com/platinummonkey/collab/pkg/observability"
	"github.com/platinummonkey/collab/pkg/storage"
	"github.com/platinummonkey/collab/pkg/storage/cache"
	"github.com/platinummonkey/collab/pkg/storage/memory"
	"github.com/platinummonkey/collab/pkg/storage/sqlstore"
	"github.com/platinummonkey/collab/pkg/swagger"
	"github.com/platinummonkey/collab/pkg/versions"
)

// Version is reported by the health endpoint
var Version = "dev"

// App holds every long lived component of a collab process
type App struct {
	Config   *config.Config
	Logger   *observability.Logger
	Registry *prometheus.Registry
	Metrics  *observability.Metrics

	Repo     storage.Repository
	Cache    *cache.VersionCache
	Resolver *dependencies.Resolver
	Versions *versions.Store
	API      *api.Server
	Limiter  middleware.Limiter

	redis     *redis.Client
	tracer    *sdktrace.TracerProvider
	scheduler *cron.Cron

	closeOnce sync.Once
	closeErr  error
}

// New builds an App from cfg. The caller must call Close; Run does so on
// shutdown.
func New(ctx context.Context, cfg *config.Config, logger *observability.Logger) (*App, error) {
	if logger == nil {
		logger = observability.NewLogger(cfg.Observability.LogLevel, nil)
	}

	a := &App{
		Config:   cfg,
		Logger:   logger,
		Registry: prometheus.NewRegistry(),
	}
	if cfg.Observability.MetricsEnabled {
		a.Registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		a.Metrics = observability.NewMetrics(a.Registry)
	}

	direction, err := storage.ParseDirection(cfg.Hierarchy.Direction)
	if err != nil {
		return nil, err
	}

	tp, err := observability.InitTracing(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
		SampleRatio:    cfg.Observability.OTelSampleRatio,
	}, logger)
	if err != nil {
		return nil, err
	}
	a.tracer = tp

	repo, err := OpenRepository(ctx, cfg.Storage, logger)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	a.Repo = repo

	if cfg.Storage.RedisURL != "" && (cfg.Storage.CacheEnabled || cfg.RateLimit.Enabled) {
		client, err := cache.NewRedisClient(cfg.Storage)
		if err != nil {
			a.Close(ctx)
			return nil, err
		}
		a.redis = client
	}

	// a nil *VersionCache must not reach the store as a non-nil interface
	var versionCache versions.Cache
	if cfg.Storage.CacheEnabled {
		a.Cache = cache.New(cfg.Storage.L1CacheSize, cfg.Storage.CacheTTL, a.redis)
		versionCache = a.Cache
	}

	a.Resolver = dependencies.NewResolver(repo, a.Metrics,
		dependencies.WithDirection(direction),
		dependencies.WithMaxNodes(cfg.Hierarchy.MaxNodes),
	)
	a.Versions = versions.NewStore(repo, versionCache, a.Metrics, versions.Config{
		MaxAttempts:  cfg.Versions.MaxAttempts,
		RetryBackoff: cfg.Versions.RetryBackoff,
	})
	a.API = api.NewServer(logger, a.Metrics,
		dependencies.NewHandlers(a.Resolver),
		versions.NewHandlers(a.Versions),
		swagger.NewHandlers(),
	)
	if cfg.RateLimit.Enabled {
		a.Limiter = newLimiter(cfg.RateLimit, a.redis)
		a.API.Use(middleware.RateLimit(a.Limiter, a.Metrics))
	}

	logger.WithFields(map[string]interface{}{
		"storage":   cfg.Storage.Type,
		"cache":     cfg.Storage.CacheEnabled,
		"redis":     a.redis != nil,
		"direction": direction.String(),
		"ratelimit": cfg.RateLimit.Enabled,
	}).Info("collab initialized")

	return a, nil
}

func newLimiter(cfg config.RateLimitConfig, client *redis.Client) middleware.Limiter {
	rl := middleware.RateLimitConfig{
		RequestsPerWindow: cfg.Requests,
		WindowDuration:    cfg.Window,
		BurstSize:         cfg.Burst,
	}
	if client != nil {
		return middleware.NewDistributedRateLimiter(client, rl, "")
	}
	return middleware.NewRateLimiter(rl)
}

// OpenRepository opens the backend named by cfg.Type
func OpenRepository(ctx context.Context, cfg storage.Config, logger *observability.Logger) (storage.Repository, error) {
	switch cfg.Type {
	case "", "memory":
		return memory.New(), nil
	case "sqlite", "postgres":
		return sqlstore.Open(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

// HealthHandler serves the probes and, when metrics are enabled, /metrics
func (a *App) HealthHandler() http.Handler {
	router := mux.NewRouter()
	observability.RegisterHealthRoutes(router, observability.NewHealthChecker(a.Repo, a.redis, Version))
	if a.Metrics != nil {
		observability.RegisterMetricsEndpoint(router, a.Registry)
	}
	return router
}

// LoadFixtures imports the configured fixture file, if any
func (a *App) LoadFixtures(ctx context.Context) error {
	path := a.Config.Fixtures.Path
	if path == "" {
		return nil
	}
	res, err := fixtures.LoadFile(ctx, path, a.Repo)
	if err != nil {
		return fmt.Errorf("failed to import fixtures: %w", err)
	}
	a.Logger.WithFields(map[string]interface{}{
		"path":              path,
		"files":             res.Files,
		"edges_inserted":    res.EdgesInserted,
		"versions_inserted": res.VersionsInserted,
	}).Info("Fixtures imported")
	return nil
}

// Run serves the API and health endpoints until ctx is done, a signal
// arrives or a server fails, then shuts everything down and closes a.
func (a *App) Run(ctx context.Context) error {
	cfg := a.Config.Server

	apiServer := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      a.API,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	healthServer := &http.Server{
		Addr:         cfg.HealthAddr(),
		Handler:      a.HealthHandler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	sm := observability.NewShutdownManager(a.Logger, cfg.ShutdownTimeout, apiServer, healthServer)
	sm.RegisterShutdownFunc(a.Close)

	if err := a.LoadFixtures(ctx); err != nil {
		a.Close(ctx)
		return err
	}
	if err := a.StartStats(); err != nil {
		a.Close(ctx)
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	for _, srv := range []*http.Server{apiServer, healthServer} {
		srv := srv
		g.Go(func() error {
			a.Logger.WithField("addr", srv.Addr).Info("Starting HTTP server")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server %s failed: %w", srv.Addr, err)
			}
			return nil
		})
	}

	if rl, ok := a.Limiter.(*middleware.RateLimiter); ok {
		rl.StartCleanup(gctx)
	}

	if a.Config.Fixtures.Path != "" && a.Config.Fixtures.Watch {
		watcher := fixtures.NewWatcher(a.Config.Fixtures.Path, a.Repo, a.Logger, 0)
		g.Go(func() error {
			return watcher.Run(gctx)
		})
	}

	g.Go(func() error {
		defer cancel()
		return sm.WaitForShutdown(gctx)
	})

	return g.Wait()
}

// Close releases every resource. It is safe to call more than once.
func (a *App) Close(ctx context.Context) error {
	a.closeOnce.Do(func() {
		var errs []error
		if a.scheduler != nil {
			<-a.scheduler.Stop().Done()
		}
		switch {
		case a.Cache != nil:
			// closes the redis client too
			if err := a.Cache.Close(); err != nil {
				errs = append(errs, fmt.Errorf("cache: %w", err))
			}
		case a.redis != nil:
			if err := a.redis.Close(); err != nil {
				errs = append(errs, fmt.Errorf("redis: %w", err))
			}
		}
		if a.Repo != nil {
			if err := a.Repo.Close(); err != nil {
				errs = append(errs, fmt.Errorf("storage: %w", err))
			}
		}
		if err := observability.ShutdownTracing(ctx, a.tracer, a.Logger); err != nil {
			errs = append(errs, err)
		}
		a.closeErr = errors.Join(errs...)
	})
	return a.closeErr
}
