package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/fairyhunter13/sentiment-pipeline/internal/domain"
)

// QueryService backs the read-only API endpoints: post listing and health.
type QueryService struct {
	Store domain.Store
	Cache domain.Cache
}

// NewQueryService constructs a QueryService with its dependencies.
func NewQueryService(store domain.Store, cache domain.Cache) QueryService {
	return QueryService{Store: store, Cache: cache}
}

// ListPosts validates paging bounds and delegates to the store.
// limit defaults to 50 and is capped to [1,100]; offset must be >= 0.
func (s QueryService) ListPosts(ctx domain.Context, f domain.PostFilter) ([]domain.PostWithSentiment, int64, error) {
	if f.Limit == 0 {
		f.Limit = 50
	}
	if f.Limit < 1 || f.Limit > 100 {
		return nil, 0, fmt.Errorf("op=query.list_posts: limit %d out of [1,100]: %w", f.Limit, domain.ErrInvalidArgument)
	}
	if f.Offset < 0 {
		return nil, 0, fmt.Errorf("op=query.list_posts: negative offset: %w", domain.ErrInvalidArgument)
	}
	if f.Sentiment != "" && !domain.ValidSentiment(f.Sentiment) {
		return nil, 0, fmt.Errorf("op=query.list_posts: sentiment %q: %w", f.Sentiment, domain.ErrInvalidArgument)
	}
	if f.Start != nil && f.End != nil && f.End.Before(*f.Start) {
		return nil, 0, fmt.Errorf("op=query.list_posts: end precedes start: %w", domain.ErrInvalidArgument)
	}
	return s.Store.ListPosts(ctx, f)
}

// ServiceHealth reports per-dependency probes plus basic counters.
type ServiceHealth struct {
	Status   string
	Database bool
	Redis    bool
	Stats    domain.HealthStats
}

// Health probes the store and cache. Status is healthy when both respond,
// degraded when one does, unhealthy when neither. Stats are best-effort and
// zero-valued when the store is down.
func (s QueryService) Health(ctx domain.Context) ServiceHealth {
	probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	h := ServiceHealth{
		Database: s.Store.Ping(probeCtx) == nil,
		Redis:    s.Cache.Ping(probeCtx) == nil,
	}
	switch {
	case h.Database && h.Redis:
		h.Status = "healthy"
	case h.Database || h.Redis:
		h.Status = "degraded"
	default:
		h.Status = "unhealthy"
	}
	if h.Database {
		if stats, err := s.Store.HealthStats(probeCtx); err == nil {
			h.Stats = stats
		}
	}
	return h
}
