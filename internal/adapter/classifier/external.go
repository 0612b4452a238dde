package classifier

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/fairyhunter13/sentiment-pipeline/internal/adapter/observability"
	"github.com/fairyhunter13/sentiment-pipeline/internal/domain"
)

// External calls an OpenAI-compatible chat completions endpoint and parses
// the model's JSON verdict. All failures map onto ErrTransient so the worker
// protocol can fall back or retry via redelivery.
type External struct {
	baseURL string
	apiKey  string
	model   string
	hc      *http.Client
}

// NewExternal constructs the remote classifier. timeout bounds each request;
// the 15s default comes from config.
func NewExternal(baseURL, apiKey, model string, timeout time.Duration) *External {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &External{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		hc:      &http.Client{Timeout: timeout},
	}
}

const sentimentSystemPrompt = `You are a sentiment classifier. Reply with a single JSON object:
{"label":"positive|negative|neutral","confidence":0.0-1.0}. No other text.`

const emotionSystemPrompt = `You are an emotion classifier. Reply with a single JSON object:
{"emotion":"joy|sadness|anger|fear|surprise|neutral","confidence":0.0-1.0}. No other text.`

// Sentiment asks the remote model for a verdict on one text.
func (e *External) Sentiment(ctx domain.Context, text string) (domain.SentimentResult, error) {
	start := time.Now()
	defer func() { observability.ObserveClassifier(e.model, "sentiment", time.Since(start)) }()

	content, err := e.chat(ctx, sentimentSystemPrompt, text)
	if err != nil {
		return domain.SentimentResult{}, err
	}
	var verdict struct {
		Label      string  `json:"label"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(content), &verdict); err != nil {
		return domain.SentimentResult{}, fmt.Errorf("op=classifier.external.sentiment: decode %q: %v: %w", content, err, domain.ErrTransient)
	}
	if !domain.ValidSentiment(verdict.Label) {
		return domain.SentimentResult{}, fmt.Errorf("op=classifier.external.sentiment: label %q: %w", verdict.Label, domain.ErrTransient)
	}
	return domain.SentimentResult{
		Label:      verdict.Label,
		Confidence: clampConfidence(verdict.Confidence),
		ModelName:  e.model,
	}, nil
}

// Emotion asks the remote model for an emotion verdict on one text.
func (e *External) Emotion(ctx domain.Context, text string) (domain.EmotionResult, error) {
	start := time.Now()
	defer func() { observability.ObserveClassifier(e.model, "emotion", time.Since(start)) }()

	content, err := e.chat(ctx, emotionSystemPrompt, text)
	if err != nil {
		return domain.EmotionResult{}, err
	}
	var verdict struct {
		Emotion    string  `json:"emotion"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(content), &verdict); err != nil {
		return domain.EmotionResult{}, fmt.Errorf("op=classifier.external.emotion: decode %q: %v: %w", content, err, domain.ErrTransient)
	}
	if !domain.ValidEmotion(verdict.Emotion) {
		return domain.EmotionResult{}, fmt.Errorf("op=classifier.external.emotion: emotion %q: %w", verdict.Emotion, domain.ErrTransient)
	}
	return domain.EmotionResult{
		Emotion:    verdict.Emotion,
		Confidence: clampConfidence(verdict.Confidence),
		ModelName:  e.model,
	}, nil
}

// BatchSentiment classifies texts sequentially. The remote API has no batch
// endpoint, so one call per text keeps verdicts independent.
func (e *External) BatchSentiment(ctx domain.Context, texts []string) ([]domain.SentimentResult, error) {
	out := make([]domain.SentimentResult, 0, len(texts))
	for _, t := range texts {
		r, err := e.Sentiment(ctx, t)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// chat performs one chat-completions round trip and returns the first
// choice's message content.
func (e *External) chat(ctx domain.Context, systemPrompt, userPrompt string) (string, error) {
	if e.baseURL == "" {
		return "", fmt.Errorf("op=classifier.external.chat: base URL missing: %w", domain.ErrInvalidArgument)
	}
	body := map[string]any{
		"model": e.model,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": userPrompt},
		},
		"temperature": 0,
		"max_tokens":  64,
	}
	b, _ := json.Marshal(body)

	r, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/chat/completions", bytes.NewReader(b))
	if err != nil {
		return "", fmt.Errorf("op=classifier.external.chat: %w", err)
	}
	if e.apiKey != "" {
		r.Header.Set("Authorization", "Bearer "+e.apiKey)
	}
	r.Header.Set("Content-Type", "application/json")

	resp, err := e.hc.Do(r)
	if err != nil {
		return "", fmt.Errorf("op=classifier.external.chat: %v: %w", err, domain.ErrTransient)
	}
	defer func() { _ = resp.Body.Close() }()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("op=classifier.external.chat: read body: %v: %w", err, domain.ErrTransient)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := string(bodyBytes)
		if len(snippet) > 512 {
			snippet = snippet[:512]
		}
		slog.Warn("external classifier non-2xx",
			slog.Int("status", resp.StatusCode),
			slog.String("model", e.model),
			slog.String("body", snippet))
		return "", fmt.Errorf("op=classifier.external.chat: status %d: %w", resp.StatusCode, domain.ErrTransient)
	}

	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(bodyBytes, &out); err != nil {
		return "", fmt.Errorf("op=classifier.external.chat: decode: %v: %w", err, domain.ErrTransient)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("op=classifier.external.chat: empty choices: %w", domain.ErrTransient)
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}

func clampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
