package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/sentiment-pipeline/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/sentiment-pipeline/internal/domain"
)

func TestCountByBucket_RejectsUnknownPeriod(t *testing.T) {
	t.Parallel()
	store := postgres.NewStore(&poolStub{})

	_, err := store.CountByBucket(context.Background(), domain.Period("week"), time.Now(), time.Now(), "")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestCountByBucket_ScansBuckets(t *testing.T) {
	t.Parallel()
	b1 := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	b2 := b1.Add(time.Hour)
	pool := &poolStub{rows: &rowsStub{rows: [][]any{
		{b1, int64(3), int64(1), int64(2), int64(6), 0.81},
		{b2, int64(0), int64(4), int64(0), int64(4), 0.66},
	}}}
	store := postgres.NewStore(pool)

	out, err := store.CountByBucket(context.Background(), domain.PeriodHour, b1, b2.Add(time.Hour), "")
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, domain.BucketCount{Bucket: b1, Positive: 3, Negative: 1, Neutral: 2, Total: 6, AvgConfidence: 0.81}, out[0])
	assert.Equal(t, int64(4), out[1].Negative)

	require.Len(t, pool.queries, 1)
	assert.Contains(t, pool.queries[0], "date_trunc('hour', a.analyzed_at)")
	assert.Contains(t, pool.queries[0], "a.analyzed_at >= $1 AND a.analyzed_at < $2")
	assert.NotContains(t, pool.queries[0], "p.created_at")
	assert.NotContains(t, pool.queries[0], "p.source")
}

func TestCountByBucket_SourceFilter(t *testing.T) {
	t.Parallel()
	pool := &poolStub{}
	store := postgres.NewStore(pool)

	start := time.Date(2026, 8, 23, 0, 0, 0, 0, time.UTC)
	_, err := store.CountByBucket(context.Background(), domain.PeriodDay, start, start.AddDate(0, 0, 1), "reddit")
	require.NoError(t, err)
	require.Len(t, pool.args, 1)
	assert.Equal(t, []any{start, start.AddDate(0, 0, 1), "reddit"}, pool.args[0])
	assert.Contains(t, pool.queries[0], "AND p.source = $3")
}

func TestDistribution_CountsAndEmotions(t *testing.T) {
	t.Parallel()
	pool := &poolStub{
		rowQueue: []rowStub{{scan: func(dest ...any) error {
			*(dest[0].(*int64)) = 10
			*(dest[1].(*int64)) = 5
			*(dest[2].(*int64)) = 15
			*(dest[3].(*int64)) = 30
			return nil
		}}},
		rows: &rowsStub{rows: [][]any{
			{"joy", int64(8)},
			{"anger", int64(4)},
		}},
	}
	store := postgres.NewStore(pool)

	d, err := store.Distribution(context.Background(), time.Now().Add(-24*time.Hour), "")
	require.NoError(t, err)
	assert.Equal(t, int64(10), d.Positive)
	assert.Equal(t, int64(30), d.Total)
	assert.Equal(t, map[string]int64{"joy": 8, "anger": 4}, d.Emotions)

	// Both the counts query and the emotions query window on analysis time.
	require.Len(t, pool.queries, 2)
	for _, q := range pool.queries {
		assert.Contains(t, q, "a.analyzed_at >= $1")
		assert.NotContains(t, q, "p.created_at")
	}
}

func TestDistribution_EmptyWindow(t *testing.T) {
	t.Parallel()
	pool := &poolStub{
		rowQueue: []rowStub{{scan: func(dest ...any) error {
			for _, d := range dest {
				*(d.(*int64)) = 0
			}
			return nil
		}}},
	}
	store := postgres.NewStore(pool)

	d, err := store.Distribution(context.Background(), time.Now(), "bluesky")
	require.NoError(t, err)
	assert.Zero(t, d.Total)
	assert.Empty(t, d.Emotions)
	assert.NotNil(t, d.Emotions)
}

func TestWindowCounts(t *testing.T) {
	t.Parallel()
	pool := &poolStub{
		rowQueue: []rowStub{{scan: func(dest ...any) error {
			*(dest[0].(*int64)) = 1
			*(dest[1].(*int64)) = 9
			*(dest[2].(*int64)) = 2
			*(dest[3].(*int64)) = 12
			return nil
		}}},
	}
	store := postgres.NewStore(pool)

	until := time.Date(2026, 8, 24, 12, 5, 0, 0, time.UTC)
	w, err := store.WindowCounts(context.Background(), until.Add(-5*time.Minute), until)
	require.NoError(t, err)
	assert.Equal(t, domain.WindowCounts{Positive: 1, Negative: 9, Neutral: 2, Total: 12}, w)
	require.Len(t, pool.args, 1)
	assert.Equal(t, []any{until.Add(-5 * time.Minute), until}, pool.args[0])
	assert.Contains(t, pool.queries[0], "a.analyzed_at >= $1 AND a.analyzed_at < $2")
	assert.NotContains(t, pool.queries[0], "p.created_at")
}

func TestWindowCounts_DBErrorIsTransient(t *testing.T) {
	t.Parallel()
	pool := &poolStub{rowQueue: []rowStub{{scan: func(...any) error { return assert.AnError }}}}
	store := postgres.NewStore(pool)

	_, err := store.WindowCounts(context.Background(), time.Now().Add(-time.Minute), time.Now())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrTransient)
}
