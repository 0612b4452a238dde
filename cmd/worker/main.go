// Command worker consumes the post stream, classifies sentiment, persists
// results, and runs the alert monitor.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/sentiment-pipeline/internal/adapter/classifier"
	"github.com/fairyhunter13/sentiment-pipeline/internal/adapter/observability"
	"github.com/fairyhunter13/sentiment-pipeline/internal/adapter/redisstream"
	"github.com/fairyhunter13/sentiment-pipeline/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/sentiment-pipeline/internal/adapter/worker"
	"github.com/fairyhunter13/sentiment-pipeline/internal/config"
	"github.com/fairyhunter13/sentiment-pipeline/internal/domain"
	"github.com/fairyhunter13/sentiment-pipeline/internal/usecase"
)

// buildClassifier wires the configured primary with the other implementation
// as fallback. Without an external API URL the lexicon runs alone.
func buildClassifier(cfg config.Config) domain.Classifier {
	local := classifier.NewKeyword(cfg.ClassifierModel)
	if cfg.ExternalAPIURL == "" {
		return local
	}
	external := classifier.NewExternal(cfg.ExternalAPIURL, cfg.ExternalAPIKey, cfg.ExternalModel, cfg.ClassifierTimeout)
	if cfg.ClassifierMode == config.ClassifierExternal {
		return classifier.NewFallback(external, local)
	}
	return classifier.NewFallback(local, external)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	// Register Prometheus metrics in the worker process and expose them on a
	// dedicated /metrics endpoint so the scraper reaches pipeline counters.
	observability.InitMetrics()
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(":9090", mux); err != nil { //nolint:gosec // Internal metrics listener.
			slog.Error("worker metrics server error", slog.Any("error", err))
		}
	}()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	slog.Info("starting worker", slog.String("env", cfg.AppEnv))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	if err != nil {
		slog.Error("database connection failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()
	store := postgres.NewStore(pool)

	// Schema is applied by whichever worker wins the race; statements are
	// idempotent.
	if err := store.EnsureSchema(ctx); err != nil {
		slog.Error("schema setup failed", slog.Any("error", err))
		os.Exit(1)
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer func() { _ = rdb.Close() }()
	stream := redisstream.New(rdb, cfg.StreamName, cfg.ConsumerGroup)

	procSvc := usecase.NewProcessService(store, buildClassifier(cfg), stream, cfg.UpdatesChannel)

	consumer := worker.New(stream, procSvc, int64(cfg.WorkerBatchSize), cfg.ReadBlock)
	consumer.BackoffInitial = cfg.BackoffInitial
	consumer.BackoffMax = cfg.BackoffMax
	consumer.PendingInterval = cfg.PendingCheckInterval

	// Alert monitor runs alongside the consumer in the same process.
	alertSvc := usecase.NewAlertService(store, stream, cfg.AlertThreshold, cfg.AlertWindow(), cfg.AlertMinPosts, cfg.AlertsChannel)
	go alertSvc.Run(ctx, cfg.AlertCheckInterval)

	errCh := make(chan error, 1)
	go func() { errCh <- consumer.Run(ctx) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("signal received, shutting down", slog.String("signal", sig.String()))
		cancel()
		<-errCh
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("consumer error", slog.Any("error", err))
			os.Exit(1)
		}
	}

	processed, failed := consumer.Stats()
	slog.Info("worker stopped",
		slog.Int64("processed", processed),
		slog.Int64("failed", failed))
}
