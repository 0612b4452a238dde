package postgres

import (
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/sentiment-pipeline/internal/domain"
)

// Store persists posts, analyses, and alerts using a minimal pgx pool.
type Store struct{ Pool PgxPool }

// NewStore constructs a Store with the given pool.
func NewStore(p PgxPool) *Store { return &Store{Pool: p} }

// UpsertPostAndAnalysis writes the post and its analysis in one transaction.
// An existing post only has its ingested_at refreshed; an existing analysis
// row is left unchanged (no re-analysis).
func (s *Store) UpsertPostAndAnalysis(ctx domain.Context, p domain.Post, a domain.Analysis) error {
	tracer := otel.Tracer("repo.posts")
	ctx, span := tracer.Start(ctx, "posts.UpsertPostAndAnalysis")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "INSERT"),
	)

	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return wrapDBErr("posts.upsert.begin", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ingestedAt := p.IngestedAt
	if ingestedAt.IsZero() {
		ingestedAt = time.Now().UTC()
	}
	const insertPost = `INSERT INTO social_media_posts (post_id, source, content, author, created_at, ingested_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (post_id) DO UPDATE SET ingested_at = EXCLUDED.ingested_at`
	if _, err := tx.Exec(ctx, insertPost, p.PostID, p.Source, p.Content, p.Author, p.CreatedAt.UTC(), ingestedAt); err != nil {
		return wrapDBErr("posts.upsert.post", err)
	}

	analyzedAt := a.AnalyzedAt
	if analyzedAt.IsZero() {
		analyzedAt = time.Now().UTC()
	}
	var emotion *string
	if a.Emotion != "" {
		emotion = &a.Emotion
	}
	const insertAnalysis = `INSERT INTO sentiment_analysis (post_id, model_name, sentiment_label, confidence_score, emotion, analyzed_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (post_id) DO NOTHING`
	if _, err := tx.Exec(ctx, insertAnalysis, p.PostID, a.ModelName, a.SentimentLabel, a.ConfidenceScore, emotion, analyzedAt); err != nil {
		return wrapDBErr("posts.upsert.analysis", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return wrapDBErr("posts.upsert.commit", err)
	}
	return nil
}

// ListPosts returns posts left-joined with their analyses, newest first,
// plus the total row count for the filter.
func (s *Store) ListPosts(ctx domain.Context, f domain.PostFilter) ([]domain.PostWithSentiment, int64, error) {
	tracer := otel.Tracer("repo.posts")
	ctx, span := tracer.Start(ctx, "posts.ListPosts")
	defer span.End()

	where, args := postFilterClause(f)

	var total int64
	countQ := `SELECT COUNT(*) FROM social_media_posts p
		LEFT JOIN sentiment_analysis a ON a.post_id = p.post_id` + where
	if err := s.Pool.QueryRow(ctx, countQ, args...).Scan(&total); err != nil {
		return nil, 0, wrapDBErr("posts.list.count", err)
	}

	q := `SELECT p.post_id, p.source, p.content, p.author, p.created_at, p.ingested_at,
			a.model_name, a.sentiment_label, a.confidence_score, a.emotion, a.analyzed_at
		FROM social_media_posts p
		LEFT JOIN sentiment_analysis a ON a.post_id = p.post_id` + where +
		fmt.Sprintf(` ORDER BY p.created_at DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, f.Limit, f.Offset)

	rows, err := s.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, 0, wrapDBErr("posts.list", err)
	}
	defer rows.Close()

	var out []domain.PostWithSentiment
	for rows.Next() {
		var p domain.Post
		var modelName, label, emotion *string
		var confidence *float64
		var analyzedAt *time.Time
		if err := rows.Scan(&p.PostID, &p.Source, &p.Content, &p.Author, &p.CreatedAt, &p.IngestedAt,
			&modelName, &label, &confidence, &emotion, &analyzedAt); err != nil {
			return nil, 0, wrapDBErr("posts.list.scan", err)
		}
		item := domain.PostWithSentiment{Post: p}
		if label != nil {
			a := domain.Analysis{PostID: p.PostID, SentimentLabel: *label}
			if modelName != nil {
				a.ModelName = *modelName
			}
			if confidence != nil {
				a.ConfidenceScore = *confidence
			}
			if emotion != nil {
				a.Emotion = *emotion
			}
			if analyzedAt != nil {
				a.AnalyzedAt = *analyzedAt
			}
			item.Analysis = &a
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, wrapDBErr("posts.list.rows", err)
	}
	return out, total, nil
}

// postFilterClause builds the WHERE clause shared by the count and page
// queries. Filters are ANDed in a fixed order.
func postFilterClause(f domain.PostFilter) (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.Source != "" {
		add("p.source = $%d", f.Source)
	}
	if f.Sentiment != "" {
		add("a.sentiment_label = $%d", f.Sentiment)
	}
	if f.Start != nil {
		add("p.created_at >= $%d", f.Start.UTC())
	}
	if f.End != nil {
		add("p.created_at <= $%d", f.End.UTC())
	}
	if len(conds) == 0 {
		return "", nil
	}
	where := " WHERE " + conds[0]
	for _, c := range conds[1:] {
		where += " AND " + c
	}
	return where, args
}

// HealthStats returns the counters surfaced by the health endpoint.
func (s *Store) HealthStats(ctx domain.Context) (domain.HealthStats, error) {
	tracer := otel.Tracer("repo.posts")
	ctx, span := tracer.Start(ctx, "posts.HealthStats")
	defer span.End()

	var st domain.HealthStats
	const q = `SELECT
		(SELECT COUNT(*) FROM social_media_posts),
		(SELECT COUNT(*) FROM sentiment_analysis),
		(SELECT COUNT(*) FROM social_media_posts WHERE created_at >= now() - interval '1 hour')`
	if err := s.Pool.QueryRow(ctx, q).Scan(&st.TotalPosts, &st.TotalAnalyses, &st.RecentPosts1h); err != nil {
		return domain.HealthStats{}, wrapDBErr("posts.health_stats", err)
	}
	return st, nil
}

// Ping probes the database connection.
func (s *Store) Ping(ctx domain.Context) error {
	return s.Pool.Ping(ctx)
}
