package postgres

import (
	"fmt"

	"github.com/fairyhunter13/sentiment-pipeline/internal/domain"
)

// schema holds the three tables plus the indexes backing the aggregate and
// listing queries. sentiment_analysis joins social_media_posts on post_id
// (one analysis per post); deleting a post cascades to its analysis.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS social_media_posts (
		id BIGSERIAL PRIMARY KEY,
		post_id VARCHAR(255) UNIQUE NOT NULL,
		source VARCHAR(50) NOT NULL,
		content TEXT NOT NULL,
		author VARCHAR(255) NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		ingested_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS sentiment_analysis (
		id BIGSERIAL PRIMARY KEY,
		post_id VARCHAR(255) UNIQUE NOT NULL REFERENCES social_media_posts(post_id) ON DELETE CASCADE,
		model_name VARCHAR(100) NOT NULL,
		sentiment_label VARCHAR(20) NOT NULL,
		confidence_score DOUBLE PRECISION NOT NULL,
		emotion VARCHAR(50),
		analyzed_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS sentiment_alerts (
		id BIGSERIAL PRIMARY KEY,
		alert_type VARCHAR(50) NOT NULL,
		threshold_value DOUBLE PRECISION NOT NULL,
		actual_value DOUBLE PRECISION NOT NULL,
		window_start TIMESTAMPTZ NOT NULL,
		window_end TIMESTAMPTZ NOT NULL,
		post_count BIGINT NOT NULL,
		triggered_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		details JSONB NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS ix_social_media_posts_source ON social_media_posts (source)`,
	`CREATE INDEX IF NOT EXISTS ix_social_media_posts_created_at ON social_media_posts (created_at)`,
	`CREATE INDEX IF NOT EXISTS ix_sentiment_analysis_analyzed_at ON sentiment_analysis (analyzed_at)`,
	`CREATE INDEX IF NOT EXISTS ix_sentiment_alerts_triggered_at ON sentiment_alerts (triggered_at)`,
}

// EnsureSchema creates tables and indexes if they do not exist. Run by the
// worker at startup; idempotent.
func (s *Store) EnsureSchema(ctx domain.Context) error {
	for _, stmt := range schema {
		if _, err := s.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("op=store.ensure_schema: %w", err)
		}
	}
	return nil
}
