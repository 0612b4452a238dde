package classifier

import (
	"log/slog"

	"github.com/fairyhunter13/sentiment-pipeline/internal/domain"
)

// Fallback tries the primary classifier and falls back to the secondary when
// the primary fails. Emotion never fails upward: if both implementations
// error, it substitutes a neutral verdict.
type Fallback struct {
	primary   domain.Classifier
	secondary domain.Classifier
}

// NewFallback composes primary over secondary. secondary may be nil, in
// which case primary errors propagate.
func NewFallback(primary, secondary domain.Classifier) *Fallback {
	return &Fallback{primary: primary, secondary: secondary}
}

// Sentiment returns the primary verdict, or the secondary one when the
// primary fails. Both failing is the caller's retryable error.
func (f *Fallback) Sentiment(ctx domain.Context, text string) (domain.SentimentResult, error) {
	res, err := f.primary.Sentiment(ctx, text)
	if err == nil {
		return res, nil
	}
	if f.secondary == nil {
		return domain.SentimentResult{}, err
	}
	slog.Warn("primary classifier failed, falling back", slog.Any("error", err))
	return f.secondary.Sentiment(ctx, text)
}

// Emotion substitutes a neutral verdict when every implementation fails.
func (f *Fallback) Emotion(ctx domain.Context, text string) (domain.EmotionResult, error) {
	res, err := f.primary.Emotion(ctx, text)
	if err == nil {
		return res, nil
	}
	if f.secondary != nil {
		if res, err = f.secondary.Emotion(ctx, text); err == nil {
			return res, nil
		}
	}
	slog.Warn("emotion detection failed, substituting neutral", slog.Any("error", err))
	return domain.EmotionResult{Emotion: domain.EmotionNeutral, Confidence: 0.5, ModelName: "fallback"}, nil
}

// BatchSentiment delegates per batch, not per item: one primary failure
// fails the whole batch over to the secondary.
func (f *Fallback) BatchSentiment(ctx domain.Context, texts []string) ([]domain.SentimentResult, error) {
	out, err := f.primary.BatchSentiment(ctx, texts)
	if err == nil {
		return out, nil
	}
	if f.secondary == nil {
		return nil, err
	}
	slog.Warn("primary classifier batch failed, falling back", slog.Any("error", err))
	return f.secondary.BatchSentiment(ctx, texts)
}
