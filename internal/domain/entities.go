package domain

import (
	"context"
	"errors"
	"time"
)

// Error taxonomy (sentinels)
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	// ErrTransient marks failures that should be retried via stream redelivery
	// (connection errors, classifier timeouts).
	ErrTransient = errors.New("transient failure")
	// ErrPoison marks entries that can never be processed and must be
	// acknowledged without persisting anything.
	ErrPoison      = errors.New("poison message")
	ErrUnavailable = errors.New("service unavailable")
	ErrInternal    = errors.New("internal error")
)

// Sentiment labels
const (
	SentimentPositive = "positive"
	SentimentNegative = "negative"
	SentimentNeutral  = "neutral"
)

// Emotion labels; EmotionNeutral doubles as the fallback when detection fails.
const (
	EmotionJoy      = "joy"
	EmotionSadness  = "sadness"
	EmotionAnger    = "anger"
	EmotionFear     = "fear"
	EmotionSurprise = "surprise"
	EmotionNeutral  = "neutral"
)

// ValidSentiment reports whether label is one of the three sentiment classes.
func ValidSentiment(label string) bool {
	return label == SentimentPositive || label == SentimentNegative || label == SentimentNeutral
}

// ValidEmotion reports whether label is a known emotion class.
func ValidEmotion(label string) bool {
	switch label {
	case EmotionJoy, EmotionSadness, EmotionAnger, EmotionFear, EmotionSurprise, EmotionNeutral:
		return true
	}
	return false
}

// Post is a social-media item ingested from the stream.
// Invariants: PostID unique; Content UTF-8, <= 10000 bytes; timestamps UTC.
type Post struct {
	PostID     string
	Source     string
	Content    string
	Author     string
	CreatedAt  time.Time
	IngestedAt time.Time
}

// Analysis is the sentiment+emotion enrichment attached to a Post (1:1 by
// PostID). An Analysis exists only if its Post exists.
type Analysis struct {
	PostID          string
	ModelName       string
	SentimentLabel  string
	ConfidenceScore float64
	Emotion         string // empty when absent
	AnalyzedAt      time.Time
}

// Alert is an append-only record of a windowed metric crossing a threshold.
type Alert struct {
	ID             int64
	AlertType      string
	ThresholdValue float64
	ActualValue    float64
	WindowStart    time.Time
	WindowEnd      time.Time
	PostCount      int64
	TriggeredAt    time.Time
	Details        map[string]any
}

// SentimentResult is a classifier verdict for one text.
type SentimentResult struct {
	Label      string
	Confidence float64
	ModelName  string
}

// EmotionResult is an emotion-detector verdict for one text.
type EmotionResult struct {
	Emotion    string
	Confidence float64
	ModelName  string
}

// Period is a bucket granularity for aggregation.
type Period string

const (
	PeriodMinute Period = "minute"
	PeriodHour   Period = "hour"
	PeriodDay    Period = "day"
)

// ValidPeriod reports whether p is an accepted bucket granularity.
func ValidPeriod(p Period) bool {
	return p == PeriodMinute || p == PeriodHour || p == PeriodDay
}

// BucketCount is one aggregation bucket (zero-row buckets are never emitted).
type BucketCount struct {
	Bucket        time.Time
	Positive      int64
	Negative      int64
	Neutral       int64
	Total         int64
	AvgConfidence float64
}

// WindowCounts are sentiment counts over a half-open time window.
type WindowCounts struct {
	Positive int64
	Negative int64
	Neutral  int64
	Total    int64
}

// DistributionCounts is a single aggregate since a point in time, including
// per-emotion counts for analyses that carry one.
type DistributionCounts struct {
	WindowCounts
	Emotions map[string]int64
}

// PostFilter narrows and pages the post listing.
type PostFilter struct {
	Limit     int
	Offset    int
	Source    string
	Sentiment string
	Start     *time.Time
	End       *time.Time
}

// PostWithSentiment joins a Post with its Analysis (nil when not yet analyzed).
type PostWithSentiment struct {
	Post     Post
	Analysis *Analysis
}

// HealthStats are the basic counters surfaced by the health endpoint.
type HealthStats struct {
	TotalPosts    int64
	TotalAnalyses int64
	RecentPosts1h int64
}

// StreamEntry is one delivered entry from the post stream.
type StreamEntry struct {
	ID     string
	Fields map[string]string
}

// Ports

// Store exclusively owns durable state.
//
// UpsertPostAndAnalysis is atomic: an existing post only has its ingested_at
// refreshed, and an existing analysis row is left untouched.
type Store interface {
	UpsertPostAndAnalysis(ctx Context, p Post, a Analysis) error
	CountByBucket(ctx Context, period Period, start, end time.Time, source string) ([]BucketCount, error)
	Distribution(ctx Context, since time.Time, source string) (DistributionCounts, error)
	WindowCounts(ctx Context, since, until time.Time) (WindowCounts, error)
	SaveAlert(ctx Context, a Alert) (int64, error)
	ListPosts(ctx Context, f PostFilter) ([]PostWithSentiment, int64, error)
	HealthStats(ctx Context) (HealthStats, error)
	Ping(ctx Context) error
}

// StreamLog is the durable append-only log with consumer-group delivery.
// Delivery is at-least-once per group; unacked entries are redelivered.
type StreamLog interface {
	Append(ctx Context, fields map[string]string) (string, error)
	EnsureGroup(ctx Context) error
	ReadGroup(ctx Context, consumer string, count int64, block time.Duration) ([]StreamEntry, error)
	// ReadPending redelivers unacked entries from the consumer's pending list;
	// ReadGroup alone never returns an entry twice.
	ReadPending(ctx Context, consumer string, count int64) ([]StreamEntry, error)
	Ack(ctx Context, ids ...string) error
}

// Subscription is a live pub/sub feed; Close tears it down.
type Subscription interface {
	Messages() <-chan []byte
	Close() error
}

// Bus is best-effort pub/sub with no persistence.
type Bus interface {
	Publish(ctx Context, channel string, payload []byte) error
	Subscribe(ctx Context, channel string) (Subscription, error)
}

// Cache is advisory key/value with TTL; every cached blob must be
// reproducible from the Store.
type Cache interface {
	Get(ctx Context, key string) ([]byte, bool, error)
	SetEx(ctx Context, key string, ttl time.Duration, val []byte) error
	Ping(ctx Context) error
}

// Classifier is the opaque sentiment/emotion capability.
type Classifier interface {
	Sentiment(ctx Context, text string) (SentimentResult, error)
	Emotion(ctx Context, text string) (EmotionResult, error)
	BatchSentiment(ctx Context, texts []string) ([]SentimentResult, error)
}

// Context is an alias so the domain package stays decoupled from call sites;
// adapters pass context.Context through.
type Context = context.Context
