package usecase

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/fairyhunter13/sentiment-pipeline/internal/adapter/observability"
	"github.com/fairyhunter13/sentiment-pipeline/internal/domain"
)

// AggregateService answers the bucketed and distribution queries with a
// short-TTL write-through cache in front of the store.
type AggregateService struct {
	Store domain.Store
	Cache domain.Cache
	TTL   time.Duration
}

// NewAggregateService constructs an AggregateService. ttl is the cache TTL
// for both query families.
func NewAggregateService(store domain.Store, cache domain.Cache, ttl time.Duration) AggregateService {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return AggregateService{Store: store, Cache: cache, TTL: ttl}
}

// AggregateBucket is one time bucket in an aggregate response.
type AggregateBucket struct {
	Timestamp     string  `json:"timestamp"`
	PositiveCount int64   `json:"positive_count"`
	NegativeCount int64   `json:"negative_count"`
	NeutralCount  int64   `json:"neutral_count"`
	TotalCount    int64   `json:"total_count"`
	PositivePct   float64 `json:"positive_pct"`
	NegativePct   float64 `json:"negative_pct"`
	NeutralPct    float64 `json:"neutral_pct"`
	AvgConfidence float64 `json:"average_confidence"`
}

// AggregateSummary carries totals over the whole queried range.
type AggregateSummary struct {
	PositiveCount int64   `json:"positive_count"`
	NegativeCount int64   `json:"negative_count"`
	NeutralCount  int64   `json:"neutral_count"`
	TotalCount    int64   `json:"total_count"`
	PositivePct   float64 `json:"positive_pct"`
	NegativePct   float64 `json:"negative_pct"`
	NeutralPct    float64 `json:"neutral_pct"`
}

// AggregateResponse is the payload of GET /api/sentiment/aggregate.
type AggregateResponse struct {
	Period  string            `json:"period"`
	Start   string            `json:"start"`
	End     string            `json:"end"`
	Source  string            `json:"source"`
	Data    []AggregateBucket `json:"data"`
	Summary AggregateSummary  `json:"summary"`
}

// SentimentCounts is the three-way split inside a distribution response.
type SentimentCounts struct {
	Positive int64 `json:"positive"`
	Negative int64 `json:"negative"`
	Neutral  int64 `json:"neutral"`
}

// SentimentPercentages mirrors SentimentCounts as percentages.
type SentimentPercentages struct {
	Positive float64 `json:"positive"`
	Negative float64 `json:"negative"`
	Neutral  float64 `json:"neutral"`
}

// DistributionResponse is the payload of GET /api/sentiment/distribution.
type DistributionResponse struct {
	TimeframeHours int                  `json:"timeframe_hours"`
	Source         string               `json:"source"`
	Distribution   SentimentCounts      `json:"distribution"`
	Total          int64                `json:"total"`
	Percentages    SentimentPercentages `json:"percentages"`
	TopEmotions    map[string]int64     `json:"top_emotions"`
	Cached         bool                 `json:"cached"`
	CachedAt       string               `json:"cached_at"`
}

// Aggregate buckets analyzed posts between start and end. A zero end means
// now; a zero start means end minus 24h. source "" means all sources.
func (s AggregateService) Aggregate(ctx domain.Context, period domain.Period, start, end time.Time, source string) (AggregateResponse, error) {
	if !domain.ValidPeriod(period) {
		return AggregateResponse{}, fmt.Errorf("op=aggregate: period %q: %w", period, domain.ErrInvalidArgument)
	}
	if end.IsZero() {
		end = time.Now().UTC()
	}
	if start.IsZero() {
		start = end.Add(-24 * time.Hour)
	}
	if !start.Before(end) {
		return AggregateResponse{}, fmt.Errorf("op=aggregate: start must precede end: %w", domain.ErrInvalidArgument)
	}

	key := fmt.Sprintf("aggregate:%s:%s:%s:%s",
		period, start.UTC().Format(time.RFC3339), end.UTC().Format(time.RFC3339), sourceKey(source))
	var out AggregateResponse
	if s.cacheGet(ctx, key, &out) {
		return out, nil
	}

	buckets, err := s.Store.CountByBucket(ctx, period, start, end, source)
	if err != nil {
		return AggregateResponse{}, err
	}

	out = AggregateResponse{
		Period: string(period),
		Start:  start.UTC().Format(time.RFC3339),
		End:    end.UTC().Format(time.RFC3339),
		Source: sourceKey(source),
		Data:   make([]AggregateBucket, 0, len(buckets)),
	}
	for _, b := range buckets {
		out.Data = append(out.Data, AggregateBucket{
			Timestamp:     b.Bucket.UTC().Format(time.RFC3339),
			PositiveCount: b.Positive,
			NegativeCount: b.Negative,
			NeutralCount:  b.Neutral,
			TotalCount:    b.Total,
			PositivePct:   pct(b.Positive, b.Total),
			NegativePct:   pct(b.Negative, b.Total),
			NeutralPct:    pct(b.Neutral, b.Total),
			AvgConfidence: b.AvgConfidence,
		})
		out.Summary.PositiveCount += b.Positive
		out.Summary.NegativeCount += b.Negative
		out.Summary.NeutralCount += b.Neutral
		out.Summary.TotalCount += b.Total
	}
	out.Summary.PositivePct = pct(out.Summary.PositiveCount, out.Summary.TotalCount)
	out.Summary.NegativePct = pct(out.Summary.NegativeCount, out.Summary.TotalCount)
	out.Summary.NeutralPct = pct(out.Summary.NeutralCount, out.Summary.TotalCount)

	s.cacheSet(ctx, key, out)
	return out, nil
}

// Distribution returns the overall sentiment split over the last `hours`
// hours plus the top five emotions by count.
func (s AggregateService) Distribution(ctx domain.Context, hours int, source string) (DistributionResponse, error) {
	if hours < 1 || hours > 168 {
		return DistributionResponse{}, fmt.Errorf("op=distribution: hours %d out of [1,168]: %w", hours, domain.ErrInvalidArgument)
	}

	key := fmt.Sprintf("distribution:%d:%s", hours, sourceKey(source))
	var out DistributionResponse
	if s.cacheGet(ctx, key, &out) {
		out.Cached = true
		return out, nil
	}

	since := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)
	counts, err := s.Store.Distribution(ctx, since, source)
	if err != nil {
		return DistributionResponse{}, err
	}

	out = DistributionResponse{
		TimeframeHours: hours,
		Source:         sourceKey(source),
		Distribution: SentimentCounts{
			Positive: counts.Positive,
			Negative: counts.Negative,
			Neutral:  counts.Neutral,
		},
		Total: counts.Total,
		Percentages: SentimentPercentages{
			Positive: pct(counts.Positive, counts.Total),
			Negative: pct(counts.Negative, counts.Total),
			Neutral:  pct(counts.Neutral, counts.Total),
		},
		TopEmotions: topEmotions(counts.Emotions, 5),
		Cached:      false,
		CachedAt:    time.Now().UTC().Format(time.RFC3339),
	}
	s.cacheSet(ctx, key, out)
	return out, nil
}

// MetricsSnapshot computes the three windows pushed to live subscribers.
func (s AggregateService) MetricsSnapshot(ctx domain.Context) (domain.MetricsFrame, error) {
	now := time.Now().UTC()
	var frame domain.MetricsFrame
	for _, w := range []struct {
		dur  time.Duration
		dest *domain.MetricsWindow
	}{
		{time.Minute, &frame.LastMinute},
		{time.Hour, &frame.LastHour},
		{24 * time.Hour, &frame.Last24h},
	} {
		counts, err := s.Store.WindowCounts(ctx, now.Add(-w.dur), now)
		if err != nil {
			return domain.MetricsFrame{}, err
		}
		*w.dest = domain.MetricsWindow{
			Positive: counts.Positive,
			Negative: counts.Negative,
			Neutral:  counts.Neutral,
			Total:    counts.Total,
		}
	}
	return frame, nil
}

// cacheGet decodes a cached payload into dest. Cache errors count as misses.
func (s AggregateService) cacheGet(ctx domain.Context, key string, dest any) bool {
	if s.Cache == nil {
		return false
	}
	b, ok, err := s.Cache.Get(ctx, key)
	if err != nil {
		observability.CacheHitsTotal.WithLabelValues("error").Inc()
		slog.Debug("cache read failed", slog.String("key", key), slog.Any("error", err))
		return false
	}
	if !ok {
		observability.CacheHitsTotal.WithLabelValues("miss").Inc()
		return false
	}
	if err := json.Unmarshal(b, dest); err != nil {
		observability.CacheHitsTotal.WithLabelValues("error").Inc()
		return false
	}
	observability.CacheHitsTotal.WithLabelValues("hit").Inc()
	return true
}

// cacheSet writes through with the service TTL. Failures are advisory.
func (s AggregateService) cacheSet(ctx domain.Context, key string, val any) {
	if s.Cache == nil {
		return
	}
	b, err := json.Marshal(val)
	if err != nil {
		return
	}
	if err := s.Cache.SetEx(ctx, key, s.TTL, b); err != nil {
		slog.Debug("cache write failed", slog.String("key", key), slog.Any("error", err))
	}
}

// pct is floating-point percentage with the zero-total rule: exactly 0.0.
func pct(part, total int64) float64 {
	if total == 0 {
		return 0.0
	}
	return float64(part) / float64(total) * 100.0
}

func sourceKey(source string) string {
	if source == "" {
		return "all"
	}
	return source
}

// topEmotions keeps the n largest counts; ties break alphabetically so the
// result is deterministic.
func topEmotions(counts map[string]int64, n int) map[string]int64 {
	if len(counts) <= n {
		out := make(map[string]int64, len(counts))
		for k, v := range counts {
			out[k] = v
		}
		return out
	}
	type kv struct {
		emotion string
		count   int64
	}
	sorted := make([]kv, 0, len(counts))
	for k, v := range counts {
		sorted = append(sorted, kv{k, v})
	}
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].count != sorted[j].count {
			return sorted[i].count > sorted[j].count
		}
		return sorted[i].emotion < sorted[j].emotion
	})
	out := make(map[string]int64, n)
	for _, e := range sorted[:n] {
		out[e.emotion] = e.count
	}
	return out
}
