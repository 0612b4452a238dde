// Command ingester publishes synthetic social media posts onto the stream.
// It substitutes for real platform connectors in development.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/sentiment-pipeline/internal/adapter/observability"
	"github.com/fairyhunter13/sentiment-pipeline/internal/adapter/redisstream"
	"github.com/fairyhunter13/sentiment-pipeline/internal/config"
	"github.com/fairyhunter13/sentiment-pipeline/internal/ingest"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer func() { _ = rdb.Close() }()
	stream := redisstream.New(rdb, cfg.StreamName, cfg.ConsumerGroup)

	producer := ingest.NewProducer(stream, ingest.NewGenerator(0), cfg.IngestPostsPerMinute)
	slog.Info("ingester starting",
		slog.String("stream", cfg.StreamName),
		slog.Int("posts_per_minute", cfg.IngestPostsPerMinute))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		sig := <-sigCh
		slog.Info("signal received, shutting down", slog.String("signal", sig.String()))
		cancel()
	}()

	if err := producer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("ingester error", slog.Any("error", err))
		os.Exit(1)
	}
}
