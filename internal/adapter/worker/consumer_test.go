package worker_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/sentiment-pipeline/internal/adapter/worker"
	"github.com/fairyhunter13/sentiment-pipeline/internal/domain"
	"github.com/fairyhunter13/sentiment-pipeline/internal/usecase"
)

// scriptedLog serves pre-scripted batches and mimics consumer-group
// bookkeeping: delivered entries sit in a pending list until acked.
type scriptedLog struct {
	mu      sync.Mutex
	batches [][]domain.StreamEntry
	readErr []error
	acked   []string
	pending []domain.StreamEntry

	ensureCalls int
	ensureErrs  []error
}

func (l *scriptedLog) Append(domain.Context, map[string]string) (string, error) {
	return "", errors.New("not used")
}

func (l *scriptedLog) EnsureGroup(domain.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ensureCalls++
	if len(l.ensureErrs) > 0 {
		err := l.ensureErrs[0]
		l.ensureErrs = l.ensureErrs[1:]
		return err
	}
	return nil
}

func (l *scriptedLog) ReadGroup(ctx domain.Context, _ string, _ int64, block time.Duration) ([]domain.StreamEntry, error) {
	l.mu.Lock()
	if len(l.readErr) > 0 {
		err := l.readErr[0]
		l.readErr = l.readErr[1:]
		l.mu.Unlock()
		return nil, err
	}
	if len(l.batches) > 0 {
		b := l.batches[0]
		l.batches = l.batches[1:]
		l.pending = append(l.pending, b...)
		l.mu.Unlock()
		return b, nil
	}
	l.mu.Unlock()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(block):
		return nil, nil
	}
}

func (l *scriptedLog) ReadPending(domain.Context, string, int64) ([]domain.StreamEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.pending) == 0 {
		return nil, nil
	}
	return append([]domain.StreamEntry(nil), l.pending...), nil
}

func (l *scriptedLog) Ack(_ domain.Context, ids ...string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.acked = append(l.acked, ids...)
	for _, id := range ids {
		for i, e := range l.pending {
			if e.ID == id {
				l.pending = append(l.pending[:i], l.pending[i+1:]...)
				break
			}
		}
	}
	return nil
}

func (l *scriptedLog) ackedIDs() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.acked...)
}

// recordingStore counts upserts, or fails with a fixed error.
type recordingStore struct {
	mu        sync.Mutex
	upserts   int
	upsertErr error
}

func (s *recordingStore) UpsertPostAndAnalysis(domain.Context, domain.Post, domain.Analysis) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.upsertErr != nil {
		return s.upsertErr
	}
	s.upserts++
	return nil
}

func (s *recordingStore) upsertCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upserts
}
func (s *recordingStore) CountByBucket(domain.Context, domain.Period, time.Time, time.Time, string) ([]domain.BucketCount, error) {
	return nil, nil
}
func (s *recordingStore) Distribution(domain.Context, time.Time, string) (domain.DistributionCounts, error) {
	return domain.DistributionCounts{}, nil
}
func (s *recordingStore) WindowCounts(domain.Context, time.Time, time.Time) (domain.WindowCounts, error) {
	return domain.WindowCounts{}, nil
}
func (s *recordingStore) SaveAlert(domain.Context, domain.Alert) (int64, error) { return 0, nil }
func (s *recordingStore) ListPosts(domain.Context, domain.PostFilter) ([]domain.PostWithSentiment, int64, error) {
	return nil, 0, nil
}
func (s *recordingStore) HealthStats(domain.Context) (domain.HealthStats, error) {
	return domain.HealthStats{}, nil
}
func (s *recordingStore) Ping(domain.Context) error { return nil }

type fixedClassifier struct{ err error }

func (c fixedClassifier) Sentiment(domain.Context, string) (domain.SentimentResult, error) {
	if c.err != nil {
		return domain.SentimentResult{}, c.err
	}
	return domain.SentimentResult{Label: domain.SentimentNeutral, Confidence: 0.6, ModelName: "keyword-v1"}, nil
}
func (c fixedClassifier) Emotion(domain.Context, string) (domain.EmotionResult, error) {
	return domain.EmotionResult{Emotion: domain.EmotionNeutral, Confidence: 0.6, ModelName: "keyword-v1"}, nil
}
func (c fixedClassifier) BatchSentiment(domain.Context, []string) ([]domain.SentimentResult, error) {
	return nil, errors.New("not used")
}

// flakyClassifier fails the first fail Sentiment calls, then behaves.
type flakyClassifier struct {
	mu   sync.Mutex
	fail int
}

func (c *flakyClassifier) Sentiment(domain.Context, string) (domain.SentimentResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail > 0 {
		c.fail--
		return domain.SentimentResult{}, domain.ErrTransient
	}
	return domain.SentimentResult{Label: domain.SentimentPositive, Confidence: 0.9, ModelName: "keyword-v1"}, nil
}
func (c *flakyClassifier) Emotion(domain.Context, string) (domain.EmotionResult, error) {
	return domain.EmotionResult{Emotion: domain.EmotionNeutral, Confidence: 0.6, ModelName: "keyword-v1"}, nil
}
func (c *flakyClassifier) BatchSentiment(domain.Context, []string) ([]domain.SentimentResult, error) {
	return nil, errors.New("not used")
}

func entry(id, postID string) domain.StreamEntry {
	return domain.StreamEntry{
		ID: id,
		Fields: map[string]string{
			"post_id":    postID,
			"source":     "twitter",
			"content":    "ok",
			"author":     "a",
			"created_at": "2026-08-24T10:00:00Z",
		},
	}
}

func runConsumer(t *testing.T, c *worker.Consumer) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = c.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("consumer did not stop")
		}
	})
	return cancel
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached")
}

func TestRun_AcksProcessedBatch(t *testing.T) {
	log := &scriptedLog{batches: [][]domain.StreamEntry{
		{entry("1-0", "p1"), entry("1-1", "p2")},
	}}
	proc := usecase.NewProcessService(&recordingStore{}, fixedClassifier{}, nil, "sentiment_updates")
	c := worker.New(log, proc, 10, 50*time.Millisecond)

	runConsumer(t, c)
	waitFor(t, func() bool { return len(log.ackedIDs()) == 2 })
	assert.ElementsMatch(t, []string{"1-0", "1-1"}, log.ackedIDs())

	processed, failed := c.Stats()
	assert.Equal(t, int64(2), processed)
	assert.Zero(t, failed)
}

func TestRun_PoisonAckedWithoutPersisting(t *testing.T) {
	bad := entry("2-0", "p1")
	delete(bad.Fields, "content")
	log := &scriptedLog{batches: [][]domain.StreamEntry{{bad}}}
	proc := usecase.NewProcessService(&recordingStore{}, fixedClassifier{}, nil, "sentiment_updates")
	c := worker.New(log, proc, 10, 50*time.Millisecond)

	runConsumer(t, c)
	waitFor(t, func() bool { return len(log.ackedIDs()) == 1 })

	_, failed := c.Stats()
	assert.Equal(t, int64(1), failed)
}

func TestRun_RetryableEntryNotAcked(t *testing.T) {
	log := &scriptedLog{batches: [][]domain.StreamEntry{
		{entry("3-0", "p1"), entry("3-1", "p2")},
	}}
	// Classifier down: both entries stay pending for redelivery.
	proc := usecase.NewProcessService(&recordingStore{}, fixedClassifier{err: domain.ErrTransient}, nil, "sentiment_updates")
	c := worker.New(log, proc, 10, 50*time.Millisecond)

	runConsumer(t, c)
	waitFor(t, func() bool {
		_, failed := c.Stats()
		return failed == 2
	})
	assert.Empty(t, log.ackedIDs())
}

func TestRun_MixedBatchAcksOnlySettled(t *testing.T) {
	bad := entry("4-1", "p2")
	bad.Fields["created_at"] = "not-a-time"
	log := &scriptedLog{batches: [][]domain.StreamEntry{
		{entry("4-0", "p1"), bad},
	}}
	store := &recordingStore{}
	proc := usecase.NewProcessService(store, fixedClassifier{}, nil, "sentiment_updates")
	c := worker.New(log, proc, 10, 50*time.Millisecond)

	runConsumer(t, c)
	waitFor(t, func() bool { return len(log.ackedIDs()) == 2 })
	// Both the processed entry and the poison entry are acked.
	assert.ElementsMatch(t, []string{"4-0", "4-1"}, log.ackedIDs())
}

func TestRun_ReadErrorBacksOffThenRecovers(t *testing.T) {
	log := &scriptedLog{
		readErr: []error{errors.New("conn reset")},
		batches: [][]domain.StreamEntry{{entry("5-0", "p1")}},
	}
	proc := usecase.NewProcessService(&recordingStore{}, fixedClassifier{}, nil, "sentiment_updates")
	c := worker.New(log, proc, 10, 50*time.Millisecond)
	c.BackoffInitial = 10 * time.Millisecond

	runConsumer(t, c)
	waitFor(t, func() bool { return len(log.ackedIDs()) == 1 })
}

func TestRun_EnsureGroupRetries(t *testing.T) {
	log := &scriptedLog{
		ensureErrs: []error{errors.New("redis starting"), errors.New("still starting")},
	}
	proc := usecase.NewProcessService(&recordingStore{}, fixedClassifier{}, nil, "sentiment_updates")
	c := worker.New(log, proc, 10, 50*time.Millisecond)
	c.BackoffInitial = time.Millisecond

	runConsumer(t, c)
	waitFor(t, func() bool {
		log.mu.Lock()
		defer log.mu.Unlock()
		return log.ensureCalls >= 3
	})
}

func TestRun_TransientFailureRedeliveredThenProcessedOnce(t *testing.T) {
	log := &scriptedLog{batches: [][]domain.StreamEntry{{entry("6-0", "p1")}}}
	store := &recordingStore{}
	proc := usecase.NewProcessService(store, &flakyClassifier{fail: 1}, nil, "sentiment_updates")
	c := worker.New(log, proc, 10, 50*time.Millisecond)
	c.PendingInterval = 10 * time.Millisecond

	runConsumer(t, c)
	// First delivery fails transiently and stays pending; the pending re-read
	// redelivers it and the second attempt settles it.
	waitFor(t, func() bool { return len(log.ackedIDs()) == 1 })
	assert.Equal(t, []string{"6-0"}, log.ackedIDs())
	assert.Equal(t, 1, store.upsertCount())

	processed, failed := c.Stats()
	assert.Equal(t, int64(1), processed)
	assert.Equal(t, int64(1), failed)
}

func TestNew_StableConsumerName(t *testing.T) {
	proc := usecase.NewProcessService(&recordingStore{}, fixedClassifier{}, nil, "sentiment_updates")
	a := worker.New(&scriptedLog{}, proc, 10, time.Second)
	b := worker.New(&scriptedLog{}, proc, 10, time.Second)
	// Same host means same name, so a restarted worker reclaims its pending list.
	require.Equal(t, a.Name(), b.Name())
	assert.True(t, strings.HasPrefix(a.Name(), "worker-"))
}
