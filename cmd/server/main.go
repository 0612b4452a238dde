// Command server starts the sentiment pipeline HTTP API and push gateway.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/sentiment-pipeline/internal/adapter/cache"
	"github.com/fairyhunter13/sentiment-pipeline/internal/adapter/httpserver"
	"github.com/fairyhunter13/sentiment-pipeline/internal/adapter/observability"
	"github.com/fairyhunter13/sentiment-pipeline/internal/adapter/redisstream"
	"github.com/fairyhunter13/sentiment-pipeline/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/sentiment-pipeline/internal/app"
	"github.com/fairyhunter13/sentiment-pipeline/internal/config"
	"github.com/fairyhunter13/sentiment-pipeline/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	// Register all Prometheus metrics once per process so that /metrics
	// exposes HTTP, pipeline, and push instrumentation.
	observability.InitMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	// Infra: DB pool
	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	if err != nil {
		slog.Error("db connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()
	store := postgres.NewStore(pool)

	// Infra: Redis for pub/sub and the aggregate cache
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer func() { _ = rdb.Close() }()
	bus := redisstream.New(rdb, cfg.StreamName, cfg.ConsumerGroup)
	agcache := cache.New(rdb, cfg.CachePrefix)

	// Usecases
	querySvc := usecase.NewQueryService(store, agcache)
	aggSvc := usecase.NewAggregateService(store, agcache, cfg.CacheTTL)

	// HTTP server and push gateway
	srv := httpserver.NewServer(cfg, querySvc, aggSvc)
	gw := httpserver.NewGateway(bus, aggSvc, cfg.UpdatesChannel, cfg.MetricsInterval)
	handler := app.BuildRouter(cfg, srv, gw)

	srvHTTP := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", slog.Int("port", cfg.Port))
		errCh <- srvHTTP.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	_ = srvHTTP.Shutdown(shutdownCtx)
}
