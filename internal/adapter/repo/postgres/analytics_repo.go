package postgres

import (
	"fmt"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/sentiment-pipeline/internal/domain"
)

// CountByBucket groups analyzed posts into minute/hour/day buckets between
// start and end. Buckets with no rows are simply absent from the result.
func (s *Store) CountByBucket(ctx domain.Context, period domain.Period, start, end time.Time, source string) ([]domain.BucketCount, error) {
	tracer := otel.Tracer("repo.analytics")
	ctx, span := tracer.Start(ctx, "analytics.CountByBucket")
	defer span.End()

	if !domain.ValidPeriod(period) {
		return nil, fmt.Errorf("op=analytics.count_by_bucket: period %q: %w", period, domain.ErrInvalidArgument)
	}

	// period is validated above; date_trunc only ever sees one of the three
	// literals, never caller input.
	// Buckets key on analysis time, not event time: late-arriving posts count
	// toward the window they were analyzed in.
	q := fmt.Sprintf(`SELECT date_trunc('%s', a.analyzed_at) AS bucket,
			COUNT(*) FILTER (WHERE a.sentiment_label = 'positive'),
			COUNT(*) FILTER (WHERE a.sentiment_label = 'negative'),
			COUNT(*) FILTER (WHERE a.sentiment_label = 'neutral'),
			COUNT(*),
			COALESCE(AVG(a.confidence_score), 0)
		FROM sentiment_analysis a
		JOIN social_media_posts p ON p.post_id = a.post_id
		WHERE a.analyzed_at >= $1 AND a.analyzed_at < $2`, period)
	args := []any{start.UTC(), end.UTC()}
	if source != "" {
		q += " AND p.source = $3"
		args = append(args, source)
	}
	q += " GROUP BY bucket ORDER BY bucket ASC"

	rows, err := s.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, wrapDBErr("analytics.count_by_bucket", err)
	}
	defer rows.Close()

	var out []domain.BucketCount
	for rows.Next() {
		var b domain.BucketCount
		if err := rows.Scan(&b.Bucket, &b.Positive, &b.Negative, &b.Neutral, &b.Total, &b.AvgConfidence); err != nil {
			return nil, wrapDBErr("analytics.count_by_bucket.scan", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr("analytics.count_by_bucket.rows", err)
	}
	return out, nil
}

// Distribution returns overall sentiment counts since a point in time plus
// per-emotion counts for analyses that carry an emotion.
func (s *Store) Distribution(ctx domain.Context, since time.Time, source string) (domain.DistributionCounts, error) {
	tracer := otel.Tracer("repo.analytics")
	ctx, span := tracer.Start(ctx, "analytics.Distribution")
	defer span.End()

	var d domain.DistributionCounts
	d.Emotions = map[string]int64{}

	q := `SELECT
			COUNT(*) FILTER (WHERE a.sentiment_label = 'positive'),
			COUNT(*) FILTER (WHERE a.sentiment_label = 'negative'),
			COUNT(*) FILTER (WHERE a.sentiment_label = 'neutral'),
			COUNT(*)
		FROM sentiment_analysis a
		JOIN social_media_posts p ON p.post_id = a.post_id
		WHERE a.analyzed_at >= $1`
	args := []any{since.UTC()}
	if source != "" {
		q += " AND p.source = $2"
		args = append(args, source)
	}
	if err := s.Pool.QueryRow(ctx, q, args...).Scan(&d.Positive, &d.Negative, &d.Neutral, &d.Total); err != nil {
		return domain.DistributionCounts{}, wrapDBErr("analytics.distribution", err)
	}

	eq := `SELECT a.emotion, COUNT(*)
		FROM sentiment_analysis a
		JOIN social_media_posts p ON p.post_id = a.post_id
		WHERE a.analyzed_at >= $1 AND a.emotion IS NOT NULL`
	eargs := []any{since.UTC()}
	if source != "" {
		eq += " AND p.source = $2"
		eargs = append(eargs, source)
	}
	eq += " GROUP BY a.emotion"

	rows, err := s.Pool.Query(ctx, eq, eargs...)
	if err != nil {
		return domain.DistributionCounts{}, wrapDBErr("analytics.distribution.emotions", err)
	}
	defer rows.Close()
	for rows.Next() {
		var emotion string
		var n int64
		if err := rows.Scan(&emotion, &n); err != nil {
			return domain.DistributionCounts{}, wrapDBErr("analytics.distribution.scan", err)
		}
		d.Emotions[emotion] = n
	}
	if err := rows.Err(); err != nil {
		return domain.DistributionCounts{}, wrapDBErr("analytics.distribution.rows", err)
	}
	return d, nil
}

// WindowCounts returns sentiment counts over the half-open window
// [since, until). The alert monitor and the push gateway both use it.
func (s *Store) WindowCounts(ctx domain.Context, since, until time.Time) (domain.WindowCounts, error) {
	tracer := otel.Tracer("repo.analytics")
	ctx, span := tracer.Start(ctx, "analytics.WindowCounts")
	defer span.End()

	const q = `SELECT
			COUNT(*) FILTER (WHERE a.sentiment_label = 'positive'),
			COUNT(*) FILTER (WHERE a.sentiment_label = 'negative'),
			COUNT(*) FILTER (WHERE a.sentiment_label = 'neutral'),
			COUNT(*)
		FROM sentiment_analysis a
		WHERE a.analyzed_at >= $1 AND a.analyzed_at < $2`
	var w domain.WindowCounts
	if err := s.Pool.QueryRow(ctx, q, since.UTC(), until.UTC()).Scan(&w.Positive, &w.Negative, &w.Neutral, &w.Total); err != nil {
		return domain.WindowCounts{}, wrapDBErr("analytics.window_counts", err)
	}
	return w, nil
}
