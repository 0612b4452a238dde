// Package classifier provides the sentiment/emotion implementations: a local
// keyword model, a remote OpenAI-compatible HTTP model, and a composite that
// falls back from primary to secondary.
package classifier

import (
	"strings"
	"time"

	"github.com/fairyhunter13/sentiment-pipeline/internal/adapter/observability"
	"github.com/fairyhunter13/sentiment-pipeline/internal/domain"
)

// Keyword is the local lexicon classifier. It never fails and never blocks,
// which makes it the default primary in dev and the safety net under the
// external model in prod.
type Keyword struct {
	model string
}

// NewKeyword constructs the local classifier. model names the verdicts it
// produces, e.g. "keyword-v1".
func NewKeyword(model string) *Keyword {
	if model == "" {
		model = "keyword-v1"
	}
	return &Keyword{model: model}
}

var positiveWords = []string{
	"love", "loving", "great", "good", "happy", "amazing", "excellent",
	"awesome", "fantastic", "wonderful", "best", "impressed", "perfect",
	"recommend", "delighted", "smooth", "fast",
}

var negativeWords = []string{
	"hate", "bad", "sad", "terrible", "awful", "horrible", "worst",
	"disappointed", "disappointing", "broken", "useless", "slow", "crash",
	"refund", "angry", "frustrating", "bug",
}

// emotionWords maps each emotion class to its trigger words. Scanning order
// is fixed so repeated runs over the same text give the same verdict.
var emotionOrder = []string{
	domain.EmotionJoy, domain.EmotionAnger, domain.EmotionSadness,
	domain.EmotionFear, domain.EmotionSurprise,
}

var emotionWords = map[string][]string{
	domain.EmotionJoy:      {"love", "happy", "delighted", "excited", "great", "joy"},
	domain.EmotionAnger:    {"hate", "angry", "furious", "annoyed", "frustrating"},
	domain.EmotionSadness:  {"sad", "disappointed", "unhappy", "miserable"},
	domain.EmotionFear:     {"afraid", "scared", "worried", "anxious"},
	domain.EmotionSurprise: {"surprised", "unexpected", "wow", "unbelievable"},
}

// Sentiment scores the text by counting lexicon hits on both sides.
func (k *Keyword) Sentiment(_ domain.Context, text string) (domain.SentimentResult, error) {
	start := time.Now()
	defer func() { observability.ObserveClassifier(k.model, "sentiment", time.Since(start)) }()

	lower := strings.ToLower(text)
	pos := countHits(lower, positiveWords)
	neg := countHits(lower, negativeWords)

	switch {
	case pos > neg:
		return domain.SentimentResult{Label: domain.SentimentPositive, Confidence: hitConfidence(pos), ModelName: k.model}, nil
	case neg > pos:
		return domain.SentimentResult{Label: domain.SentimentNegative, Confidence: hitConfidence(neg), ModelName: k.model}, nil
	default:
		return domain.SentimentResult{Label: domain.SentimentNeutral, Confidence: 0.6, ModelName: k.model}, nil
	}
}

// Emotion picks the first emotion class with a lexicon hit, neutral otherwise.
func (k *Keyword) Emotion(_ domain.Context, text string) (domain.EmotionResult, error) {
	start := time.Now()
	defer func() { observability.ObserveClassifier(k.model, "emotion", time.Since(start)) }()

	lower := strings.ToLower(text)
	for _, emotion := range emotionOrder {
		if countHits(lower, emotionWords[emotion]) > 0 {
			return domain.EmotionResult{Emotion: emotion, Confidence: 0.7, ModelName: k.model}, nil
		}
	}
	return domain.EmotionResult{Emotion: domain.EmotionNeutral, Confidence: 0.6, ModelName: k.model}, nil
}

// BatchSentiment scores each text independently.
func (k *Keyword) BatchSentiment(ctx domain.Context, texts []string) ([]domain.SentimentResult, error) {
	out := make([]domain.SentimentResult, 0, len(texts))
	for _, t := range texts {
		r, err := k.Sentiment(ctx, t)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func countHits(lower string, words []string) int {
	n := 0
	for _, w := range words {
		if strings.Contains(lower, w) {
			n++
		}
	}
	return n
}

// hitConfidence grows with the margin of lexicon hits but stays inside [0,1].
func hitConfidence(hits int) float64 {
	c := 0.7 + 0.1*float64(hits)
	if c > 0.95 {
		c = 0.95
	}
	return c
}
