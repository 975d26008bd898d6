package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/learnward/metron/internal/adapters/cache"
	"github.com/learnward/metron/internal/adapters/store/postgres"
	app "github.com/learnward/metron/internal/app"
	"github.com/learnward/metron/internal/config"
	"github.com/learnward/metron/pkg/logger"
	"github.com/learnward/metron/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 10 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 30 * time.Second
)

func main() {
	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return
	}
	log := logger.Get()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		return
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	opts := []app.Option{
		app.WithLogger(log),
		app.WithWorkerCount(cfg.WorkerCount),
		app.WithQueueSize(cfg.QueueSize),
		app.WithCoalesceDelay(time.Duration(cfg.CoalesceDelayMS) * time.Millisecond),
		app.WithDependencyTimeout(time.Duration(cfg.DependencyTimeoutMS) * time.Millisecond),
		app.WithStoreRetry(cfg.StoreRetryAttempts, time.Duration(cfg.StoreRetryDelayMS)*time.Millisecond),
		app.WithMissingTagWeight(cfg.MissingTagWeight),
		app.WithAbsentAsZero(cfg.AbsentAsZero),
	}

	if cfg.PostgresDSN != "" {
		pool, err := postgres.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			log.Error(ctx, "postgres connect failed", logger.Error(err))
			return
		}
		defer pool.Close()
		if err := postgres.Migrate(ctx, pool); err != nil {
			log.Error(ctx, "postgres migrate failed", logger.Error(err))
			return
		}
		opts = append(opts,
			app.WithCatalog(postgres.NewCatalog(pool)),
			app.WithSubmissionFeed(postgres.NewFeed(pool)),
			app.WithMetricStore(postgres.NewMetricStore(pool)),
			app.WithScoreStore(postgres.NewScoreStore(pool)),
		)
		log.Info(ctx, "using postgres stores")
	} else {
		log.Info(ctx, "using in-memory stores")
	}

	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer client.Close()
		opts = append(opts, app.WithCoverageCache(cache.NewRedis(client,
			cache.WithTTL(time.Duration(cfg.CoverageCacheTTLMS)*time.Millisecond),
		)))
		log.Info(ctx, "using redis coverage cache", logger.String("addr", cfg.RedisAddr))
	} else {
		opts = append(opts, app.WithCoverageCache(cache.NewMemory()))
	}

	svc := app.New(opts...)
	if err := svc.Start(ctx); err != nil {
		log.Error(ctx, "failed to start service", logger.Error(err))
		return
	}
	defer svc.Stop()

	// Observability endpoint only; the engine has no business transport.
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	go func() {
		log.Info(ctx, "serving metrics", logger.String("addr", cfg.MetricsAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			os.Stderr.WriteString("metrics server failed: " + err.Error() + "\n")
		}
	}()

	<-ctx.Done()
	log.Info(ctx, "shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "metrics server shutdown failed", logger.Error(err))
	}
	log.Info(ctx, "stopped")
}
