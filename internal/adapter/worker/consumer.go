// Package worker runs the stream consumer pump: it reads batches from the
// post stream, dispatches entries to the processing service in parallel, and
// settles each entry according to its outcome.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/fairyhunter13/sentiment-pipeline/internal/domain"
	obsctx "github.com/fairyhunter13/sentiment-pipeline/internal/observability"
	"github.com/fairyhunter13/sentiment-pipeline/internal/usecase"
)

// Consumer drives one worker process against the consumer group.
type Consumer struct {
	Log  domain.StreamLog
	Proc usecase.ProcessService

	BatchSize      int64
	Block          time.Duration
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	// PendingInterval is how often the consumer re-reads its pending list so
	// retry-nacked entries are redelivered.
	PendingInterval time.Duration

	name string

	mu        sync.Mutex
	processed int64
	failed    int64
}

// New constructs a Consumer. The consumer name must survive restarts so the
// pending list of a crashed process is reclaimed: it derives from the
// hostname (one consumer per container), with a random fallback.
func New(log domain.StreamLog, proc usecase.ProcessService, batchSize int64, block time.Duration) *Consumer {
	if batchSize <= 0 {
		batchSize = 10
	}
	if block <= 0 {
		block = 5 * time.Second
	}
	return &Consumer{
		Log:             log,
		Proc:            proc,
		BatchSize:       batchSize,
		Block:           block,
		BackoffInitial:  time.Second,
		BackoffMax:      30 * time.Second,
		PendingInterval: 5 * time.Second,
		name:            consumerName(),
	}
}

func consumerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "worker-" + uuid.NewString()
	}
	return "worker-" + host
}

// Name returns the consumer's name inside the group.
func (c *Consumer) Name() string { return c.name }

// Run consumes until ctx is cancelled. The pending list is drained at
// startup (crash recovery) and re-read every PendingInterval so retry-nacked
// entries get another attempt. Read errors back off exponentially; the
// blocking read bounds how long shutdown takes to observe.
func (c *Consumer) Run(ctx context.Context) error {
	if err := c.ensureGroup(ctx); err != nil {
		return err
	}
	// Per-entry logs inherit the consumer name through the context logger.
	ctx = obsctx.ContextWithLogger(ctx, slog.Default().With(slog.String("consumer", c.name)))
	slog.Info("worker consuming",
		slog.String("consumer", c.name),
		slog.Int64("batch_size", c.BatchSize))

	wait := c.BackoffInitial
	nextPending := time.Now()
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if time.Now().After(nextPending) {
			if err := c.drainPending(ctx); err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				slog.Warn("pending read failed", slog.Any("error", err))
			}
			nextPending = time.Now().Add(c.PendingInterval)
		}

		entries, err := c.Log.ReadGroup(ctx, c.name, c.BatchSize, c.Block)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			slog.Warn("stream read failed, backing off",
				slog.Duration("wait", wait),
				slog.Any("error", err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
			wait *= 2
			if wait > c.BackoffMax {
				wait = c.BackoffMax
			}
			continue
		}
		wait = c.BackoffInitial

		if len(entries) == 0 {
			continue
		}
		c.dispatch(ctx, entries)
	}
}

// drainPending re-dispatches everything in this consumer's pending list.
// Entries that fail transiently again stay pending for the next pass.
func (c *Consumer) drainPending(ctx context.Context) error {
	for {
		entries, err := c.Log.ReadPending(ctx, c.name, c.BatchSize)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			return nil
		}
		acked := c.dispatch(ctx, entries)
		// A full pass without a single settle means every pending entry is
		// still failing transiently; stop until the next interval.
		if acked == 0 {
			return nil
		}
	}
}

// ensureGroup creates the consumer group, retrying while Redis is coming up.
func (c *Consumer) ensureGroup(ctx context.Context) error {
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = c.BackoffInitial
	expo.MaxInterval = c.BackoffMax
	expo.MaxElapsedTime = 2 * time.Minute
	op := func() error { return c.Log.EnsureGroup(ctx) }
	if err := backoff.Retry(op, backoff.WithContext(expo, ctx)); err != nil {
		return err
	}
	return nil
}

// dispatch processes one batch in parallel, acks the settled entries, and
// returns how many settled. Tasks join before the next read, which bounds
// in-flight work to BatchSize.
func (c *Consumer) dispatch(ctx context.Context, entries []domain.StreamEntry) int {
	outcomes := make([]usecase.Outcome, len(entries))
	var wg sync.WaitGroup
	for i, entry := range entries {
		wg.Add(1)
		go func(i int, entry domain.StreamEntry) {
			defer wg.Done()
			outcomes[i] = c.Proc.ProcessEntry(ctx, entry)
		}(i, entry)
	}
	wg.Wait()

	ackIDs := make([]string, 0, len(entries))
	var processed, failed int64
	for i, out := range outcomes {
		switch out {
		case usecase.OutcomeProcessed:
			ackIDs = append(ackIDs, entries[i].ID)
			processed++
		case usecase.OutcomePoison:
			ackIDs = append(ackIDs, entries[i].ID)
			failed++
		case usecase.OutcomeRetry:
			failed++
		}
	}
	if len(ackIDs) > 0 {
		if err := c.Log.Ack(ctx, ackIDs...); err != nil {
			// Unacked entries are redelivered; the upsert makes that safe.
			slog.Warn("ack failed", slog.Any("error", err))
		}
	}
	c.recordStats(processed, failed)
	return len(ackIDs)
}

// recordStats keeps running totals and logs a progress line roughly every 50
// processed entries.
func (c *Consumer) recordStats(processed, failed int64) {
	c.mu.Lock()
	before := c.processed
	c.processed += processed
	c.failed += failed
	totalProcessed, totalFailed := c.processed, c.failed
	c.mu.Unlock()

	if before/50 != totalProcessed/50 {
		slog.Info("worker progress",
			slog.String("consumer", c.name),
			slog.Int64("processed", totalProcessed),
			slog.Int64("failed", totalFailed))
	}
}

// Stats returns the running processed/failed totals.
func (c *Consumer) Stats() (processed, failed int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.processed, c.failed
}
