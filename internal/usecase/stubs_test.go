package usecase_test

import (
	"sync"
	"time"

	"github.com/fairyhunter13/sentiment-pipeline/internal/domain"
)

// stubStore implements domain.Store via optional function fields.
type stubStore struct {
	upsertFn       func(p domain.Post, a domain.Analysis) error
	countByBucket  func(period domain.Period, start, end time.Time, source string) ([]domain.BucketCount, error)
	distributionFn func(since time.Time, source string) (domain.DistributionCounts, error)
	windowCounts   func(since, until time.Time) (domain.WindowCounts, error)
	saveAlertFn    func(a domain.Alert) (int64, error)
	listPostsFn    func(f domain.PostFilter) ([]domain.PostWithSentiment, int64, error)
	healthStatsFn  func() (domain.HealthStats, error)
	pingErr        error

	mu      sync.Mutex
	upserts []domain.Post
	alerts  []domain.Alert
}

func (s *stubStore) UpsertPostAndAnalysis(_ domain.Context, p domain.Post, a domain.Analysis) error {
	s.mu.Lock()
	s.upserts = append(s.upserts, p)
	s.mu.Unlock()
	if s.upsertFn != nil {
		return s.upsertFn(p, a)
	}
	return nil
}

func (s *stubStore) CountByBucket(_ domain.Context, period domain.Period, start, end time.Time, source string) ([]domain.BucketCount, error) {
	if s.countByBucket != nil {
		return s.countByBucket(period, start, end, source)
	}
	return nil, nil
}

func (s *stubStore) Distribution(_ domain.Context, since time.Time, source string) (domain.DistributionCounts, error) {
	if s.distributionFn != nil {
		return s.distributionFn(since, source)
	}
	return domain.DistributionCounts{Emotions: map[string]int64{}}, nil
}

func (s *stubStore) WindowCounts(_ domain.Context, since, until time.Time) (domain.WindowCounts, error) {
	if s.windowCounts != nil {
		return s.windowCounts(since, until)
	}
	return domain.WindowCounts{}, nil
}

func (s *stubStore) SaveAlert(_ domain.Context, a domain.Alert) (int64, error) {
	s.mu.Lock()
	s.alerts = append(s.alerts, a)
	s.mu.Unlock()
	if s.saveAlertFn != nil {
		return s.saveAlertFn(a)
	}
	return int64(len(s.alerts)), nil
}

func (s *stubStore) ListPosts(_ domain.Context, f domain.PostFilter) ([]domain.PostWithSentiment, int64, error) {
	if s.listPostsFn != nil {
		return s.listPostsFn(f)
	}
	return nil, 0, nil
}

func (s *stubStore) HealthStats(domain.Context) (domain.HealthStats, error) {
	if s.healthStatsFn != nil {
		return s.healthStatsFn()
	}
	return domain.HealthStats{}, nil
}

func (s *stubStore) Ping(domain.Context) error { return s.pingErr }

// stubBus records published payloads per channel.
type stubBus struct {
	mu        sync.Mutex
	published map[string][][]byte
	pubErr    error
}

func (b *stubBus) Publish(_ domain.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.published == nil {
		b.published = map[string][][]byte{}
	}
	b.published[channel] = append(b.published[channel], payload)
	return b.pubErr
}

func (b *stubBus) Subscribe(domain.Context, string) (domain.Subscription, error) {
	return nil, nil
}

func (b *stubBus) messages(channel string) [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.published[channel]
}

// stubCache is an in-memory domain.Cache without TTL expiry.
type stubCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	getErr  error
	setErr  error
	pingErr error
	sets    int
}

func (c *stubCache) Get(_ domain.Context, key string) ([]byte, bool, error) {
	if c.getErr != nil {
		return nil, false, c.getErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.entries[key]
	return b, ok, nil
}

func (c *stubCache) SetEx(_ domain.Context, key string, _ time.Duration, val []byte) error {
	if c.setErr != nil {
		return c.setErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entries == nil {
		c.entries = map[string][]byte{}
	}
	c.entries[key] = val
	c.sets++
	return nil
}

func (c *stubCache) Ping(domain.Context) error { return c.pingErr }

// stubClassifier returns fixed verdicts or errors.
type stubClassifier struct {
	sentiment    domain.SentimentResult
	sentimentErr error
	emotion      domain.EmotionResult
	emotionErr   error
}

func (s *stubClassifier) Sentiment(domain.Context, string) (domain.SentimentResult, error) {
	return s.sentiment, s.sentimentErr
}

func (s *stubClassifier) Emotion(domain.Context, string) (domain.EmotionResult, error) {
	return s.emotion, s.emotionErr
}

func (s *stubClassifier) BatchSentiment(_ domain.Context, texts []string) ([]domain.SentimentResult, error) {
	if s.sentimentErr != nil {
		return nil, s.sentimentErr
	}
	out := make([]domain.SentimentResult, len(texts))
	for i := range texts {
		out[i] = s.sentiment
	}
	return out, nil
}
