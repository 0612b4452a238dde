package httpserver

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/fairyhunter13/sentiment-pipeline/internal/config"
	"github.com/fairyhunter13/sentiment-pipeline/internal/domain"
	"github.com/fairyhunter13/sentiment-pipeline/internal/usecase"
)

// Server bundles the read-side handlers with their services.
type Server struct {
	Cfg   config.Config
	Query usecase.QueryService
	Agg   usecase.AggregateService
}

// NewServer constructs an HTTP server with all handlers wired.
func NewServer(cfg config.Config, query usecase.QueryService, agg usecase.AggregateService) *Server {
	return &Server{Cfg: cfg, Query: query, Agg: agg}
}

var (
	vldOnce sync.Once
	vld     *validator.Validate
)

func getValidator() *validator.Validate {
	vldOnce.Do(func() { vld = validator.New() })
	return vld
}

// HealthHandler reports per-service probes and basic counters. Internal
// error details are never exposed, only booleans.
func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h := s.Query.Health(r.Context())
		status := http.StatusOK
		if h.Status != "healthy" {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, map[string]any{
			"status":    h.Status,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"services": map[string]bool{
				"database": h.Database,
				"redis":    h.Redis,
			},
			"stats": map[string]int64{
				"total_posts":     h.Stats.TotalPosts,
				"total_analyses":  h.Stats.TotalAnalyses,
				"recent_posts_1h": h.Stats.RecentPosts1h,
			},
		})
	}
}

// postsQuery carries the validated paging and filter parameters.
type postsQuery struct {
	Limit     int    `validate:"min=1,max=100"`
	Offset    int    `validate:"min=0"`
	Source    string `validate:"omitempty,max=50"`
	Sentiment string `validate:"omitempty,oneof=positive negative neutral"`
}

// PostsHandler lists posts joined with their analyses, newest first.
func (s *Server) PostsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		pq := postsQuery{
			Limit:     50,
			Offset:    0,
			Source:    q.Get("source"),
			Sentiment: q.Get("sentiment"),
		}
		var err error
		if pq.Limit, err = intParam(q.Get("limit"), 50); err != nil {
			writeError(w, r, fmt.Errorf("%w: limit", domain.ErrInvalidArgument), map[string]string{"limit": q.Get("limit")})
			return
		}
		if pq.Offset, err = intParam(q.Get("offset"), 0); err != nil {
			writeError(w, r, fmt.Errorf("%w: offset", domain.ErrInvalidArgument), map[string]string{"offset": q.Get("offset")})
			return
		}
		if err := getValidator().Struct(pq); err != nil {
			writeError(w, r, fmt.Errorf("%w: validation failed", domain.ErrInvalidArgument), validationDetails(err))
			return
		}

		filter := domain.PostFilter{
			Limit:     pq.Limit,
			Offset:    pq.Offset,
			Source:    pq.Source,
			Sentiment: pq.Sentiment,
		}
		if filter.Start, err = timeParam(q.Get("start")); err != nil {
			writeError(w, r, fmt.Errorf("%w: start", domain.ErrInvalidArgument), map[string]string{"start": q.Get("start")})
			return
		}
		if filter.End, err = timeParam(q.Get("end")); err != nil {
			writeError(w, r, fmt.Errorf("%w: end", domain.ErrInvalidArgument), map[string]string{"end": q.Get("end")})
			return
		}

		posts, total, err := s.Query.ListPosts(r.Context(), filter)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}

		items := make([]map[string]any, 0, len(posts))
		for _, p := range posts {
			item := map[string]any{
				"post_id":    p.Post.PostID,
				"source":     p.Post.Source,
				"content":    p.Post.Content,
				"author":     p.Post.Author,
				"created_at": p.Post.CreatedAt.UTC().Format(time.RFC3339),
			}
			if p.Analysis != nil {
				item["sentiment"] = map[string]any{
					"label":      p.Analysis.SentimentLabel,
					"confidence": p.Analysis.ConfidenceScore,
					"emotion":    p.Analysis.Emotion,
					"model_name": p.Analysis.ModelName,
				}
			} else {
				item["sentiment"] = nil
			}
			items = append(items, item)
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"posts":  items,
			"total":  total,
			"limit":  filter.Limit,
			"offset": filter.Offset,
			"filters": map[string]string{
				"source":    filter.Source,
				"sentiment": filter.Sentiment,
				"start":     q.Get("start"),
				"end":       q.Get("end"),
			},
		})
	}
}

// AggregateHandler serves bucketed sentiment counts.
func (s *Server) AggregateHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		period := domain.Period(q.Get("period"))
		if period == "" {
			period = domain.PeriodHour
		}

		var start, end time.Time
		if sp := q.Get("start"); sp != "" {
			t, err := time.Parse(time.RFC3339, sp)
			if err != nil {
				writeError(w, r, fmt.Errorf("%w: start", domain.ErrInvalidArgument), map[string]string{"start": sp})
				return
			}
			start = t
		}
		if ep := q.Get("end"); ep != "" {
			t, err := time.Parse(time.RFC3339, ep)
			if err != nil {
				writeError(w, r, fmt.Errorf("%w: end", domain.ErrInvalidArgument), map[string]string{"end": ep})
				return
			}
			end = t
		}

		out, err := s.Agg.Aggregate(r.Context(), period, start, end, q.Get("source"))
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// DistributionHandler serves the overall sentiment split.
func (s *Server) DistributionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		hours, err := intParam(q.Get("hours"), 24)
		if err != nil {
			writeError(w, r, fmt.Errorf("%w: hours", domain.ErrInvalidArgument), map[string]string{"hours": q.Get("hours")})
			return
		}
		out, err := s.Agg.Distribution(r.Context(), hours, q.Get("source"))
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

func timeParam(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func validationDetails(err error) map[string]string {
	verrs := map[string]string{}
	if ve, ok := err.(validator.ValidationErrors); ok {
		for _, fe := range ve {
			verrs[strings.ToLower(fe.Field())] = fe.Tag()
		}
	}
	return verrs
}
