// Package ingest produces synthetic social media posts onto the stream.
// It stands in for real platform connectors in development and load tests.
package ingest

import (
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/fairyhunter13/sentiment-pipeline/internal/domain"
)

var (
	positiveTemplates = []string{
		"I absolutely love %s!",
		"%s is amazing and exceeded my expectations.",
		"Great experience using %s today.",
	}
	neutralTemplates = []string{
		"Just tried %s for the first time.",
		"Received %s today.",
		"Using %s for the first time.",
	}
	negativeTemplates = []string{
		"Very disappointed with %s.",
		"Terrible experience using %s.",
		"I hate how %s works right now.",
	}

	products = []string{
		"iPhone 16",
		"Tesla Model 3",
		"ChatGPT",
		"Netflix",
		"Amazon Prime",
		"PlayStation 6",
	}

	sources = []string{"reddit", "twitter"}
)

// Generator creates randomized posts with a 40/30/30 positive, neutral,
// negative phrasing mix.
type Generator struct {
	rng *rand.Rand
	now func() time.Time
}

// NewGenerator seeds a Generator. A zero seed uses the current time.
func NewGenerator(seed int64) *Generator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Generator{
		rng: rand.New(rand.NewSource(seed)), //nolint:gosec // Synthetic data, not security sensitive.
		now: time.Now,
	}
}

// Post generates one synthetic post.
func (g *Generator) Post() domain.Post {
	var templates []string
	switch roll := g.rng.Float64(); {
	case roll < 0.4:
		templates = positiveTemplates
	case roll < 0.7:
		templates = neutralTemplates
	default:
		templates = negativeTemplates
	}
	template := templates[g.rng.Intn(len(templates))]
	product := products[g.rng.Intn(len(products))]
	now := g.now().UTC()

	return domain.Post{
		PostID:    fmt.Sprintf("post_%d_%d", now.UnixMilli(), 1000+g.rng.Intn(9000)),
		Source:    sources[g.rng.Intn(len(sources))],
		Content:   fmt.Sprintf(template, product),
		Author:    fmt.Sprintf("user_%d", 1000+g.rng.Intn(9000)),
		CreatedAt: now,
	}
}

// Producer appends generated posts to the stream at a steady rate.
type Producer struct {
	Log            domain.StreamLog
	Gen            *Generator
	PostsPerMinute int
}

// NewProducer constructs a Producer. postsPerMinute <= 0 falls back to one
// post per second.
func NewProducer(log domain.StreamLog, gen *Generator, postsPerMinute int) *Producer {
	return &Producer{Log: log, Gen: gen, PostsPerMinute: postsPerMinute}
}

// Interval returns the delay between posts.
func (p *Producer) Interval() time.Duration {
	if p.PostsPerMinute <= 0 {
		return time.Second
	}
	return time.Minute / time.Duration(p.PostsPerMinute)
}

// Run publishes posts until the context is canceled. Append failures are
// logged and skipped; the stream absorbs them on redelivery of real traffic.
func (p *Producer) Run(ctx domain.Context) error {
	ticker := time.NewTicker(p.Interval())
	defer ticker.Stop()

	var published int64
	for {
		select {
		case <-ctx.Done():
			slog.Info("ingester stopped", slog.Int64("published", published))
			return ctx.Err()
		case <-ticker.C:
			post := p.Gen.Post()
			id, err := p.Log.Append(ctx, post.Fields())
			if err != nil {
				slog.Warn("append failed",
					slog.String("post_id", post.PostID),
					slog.Any("error", err))
				continue
			}
			published++
			if published%100 == 0 {
				slog.Info("ingester progress",
					slog.Int64("published", published),
					slog.String("last_stream_id", id))
			}
		}
	}
}
