// Package usecase contains application business logic services.
package usecase

import (
	"errors"
	"log/slog"
	"time"

	"github.com/fairyhunter13/sentiment-pipeline/internal/adapter/observability"
	"github.com/fairyhunter13/sentiment-pipeline/internal/domain"
	obsctx "github.com/fairyhunter13/sentiment-pipeline/internal/observability"
	"github.com/fairyhunter13/sentiment-pipeline/pkg/textx"
)

// Outcome is the terminal state of one stream entry.
type Outcome int

const (
	// OutcomeProcessed means the entry was persisted and must be acked.
	OutcomeProcessed Outcome = iota
	// OutcomePoison means the entry can never succeed and must be acked
	// without persisting.
	OutcomePoison
	// OutcomeRetry means the entry hit a transient failure and must NOT be
	// acked, so redelivery retries it.
	OutcomeRetry
)

// ProcessService runs the per-entry worker protocol: decode, classify,
// persist, announce.
type ProcessService struct {
	Store      domain.Store
	Classifier domain.Classifier
	Bus        domain.Bus
	// UpdatesChannel is the pub/sub channel post events are announced on.
	UpdatesChannel string
}

// NewProcessService constructs a ProcessService with its dependencies.
func NewProcessService(store domain.Store, cls domain.Classifier, bus domain.Bus, updatesChannel string) ProcessService {
	return ProcessService{Store: store, Classifier: cls, Bus: bus, UpdatesChannel: updatesChannel}
}

// ProcessEntry handles one delivered stream entry and reports how the caller
// must settle it. Publish failures are advisory and never affect the outcome.
func (s ProcessService) ProcessEntry(ctx domain.Context, entry domain.StreamEntry) Outcome {
	log := obsctx.LoggerFromContext(ctx).With(slog.String("entry_id", entry.ID))

	post, err := domain.PostFromFields(entry.Fields)
	if err != nil {
		log.Warn("poison entry", slog.Any("error", err))
		observability.MessagesFailedTotal.WithLabelValues("poison").Inc()
		return OutcomePoison
	}
	log = log.With(slog.String("post_id", post.PostID))

	post.Content = textx.SanitizeText(post.Content)
	sentiment, err := s.Classifier.Sentiment(ctx, post.Content)
	if err != nil {
		log.Warn("classification failed, leaving for redelivery", slog.Any("error", err))
		observability.MessagesRetriedTotal.Inc()
		return OutcomeRetry
	}

	emotion, err := s.Classifier.Emotion(ctx, post.Content)
	if err != nil {
		// Emotion is best-effort; substitute neutral rather than retry.
		emotion = domain.EmotionResult{Emotion: domain.EmotionNeutral, Confidence: 0.5, ModelName: sentiment.ModelName}
	}

	now := time.Now().UTC()
	analysis := domain.Analysis{
		PostID:          post.PostID,
		ModelName:       sentiment.ModelName,
		SentimentLabel:  sentiment.Label,
		ConfidenceScore: sentiment.Confidence,
		Emotion:         emotion.Emotion,
		AnalyzedAt:      now,
	}
	post.IngestedAt = now

	if err := s.Store.UpsertPostAndAnalysis(ctx, post, analysis); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			log.Warn("constraint violation, dropping entry", slog.Any("error", err))
			observability.MessagesFailedTotal.WithLabelValues("conflict").Inc()
			return OutcomePoison
		}
		log.Warn("store write failed, leaving for redelivery", slog.Any("error", err))
		observability.MessagesRetriedTotal.Inc()
		return OutcomeRetry
	}

	s.announce(ctx, post, sentiment, emotion, now)
	observability.MessagesProcessedTotal.Inc()
	return OutcomeProcessed
}

// announce publishes a post event for push subscribers. Best-effort only.
func (s ProcessService) announce(ctx domain.Context, post domain.Post, sentiment domain.SentimentResult, emotion domain.EmotionResult, now time.Time) {
	if s.Bus == nil {
		return
	}
	payload, err := domain.EncodePostEvent(domain.PostEvent{
		PostID:          post.PostID,
		Content:         post.Content,
		Source:          post.Source,
		SentimentLabel:  sentiment.Label,
		ConfidenceScore: sentiment.Confidence,
		Emotion:         emotion.Emotion,
		Timestamp:       now.Format(time.RFC3339),
	})
	if err != nil {
		return
	}
	if err := s.Bus.Publish(ctx, s.UpdatesChannel, payload); err != nil {
		obsctx.LoggerFromContext(ctx).Debug("post event publish failed", slog.Any("error", err))
	}
}
