package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Pub/sub and push-frame payloads. Inputs from the stream and the bus are
// untyped at the wire; these records validate on decode.

// PostEvent is published on the updates channel after each successful
// persistence, and forwarded to push subscribers as a new_post frame.
type PostEvent struct {
	PostID          string  `json:"post_id"`
	Content         string  `json:"content"`
	Source          string  `json:"source"`
	SentimentLabel  string  `json:"sentiment_label"`
	ConfidenceScore float64 `json:"confidence_score"`
	Emotion         string  `json:"emotion,omitempty"`
	Timestamp       string  `json:"timestamp"`
}

// AlertEvent is published on the alerts channel when the monitor fires.
type AlertEvent struct {
	AlertType   string         `json:"alert_type"`
	Threshold   float64        `json:"threshold"`
	ActualValue float64        `json:"actual_value"`
	WindowStart string         `json:"window_start"`
	WindowEnd   string         `json:"window_end"`
	PostCount   int64          `json:"post_count"`
	TriggeredAt string         `json:"triggered_at"`
	Details     map[string]any `json:"details"`
}

// MetricsWindow is one window inside a metrics_update frame.
type MetricsWindow struct {
	Positive int64 `json:"positive"`
	Negative int64 `json:"negative"`
	Neutral  int64 `json:"neutral"`
	Total    int64 `json:"total"`
}

// MetricsFrame is the data payload of a metrics_update push frame.
type MetricsFrame struct {
	LastMinute MetricsWindow `json:"last_minute"`
	LastHour   MetricsWindow `json:"last_hour"`
	Last24h    MetricsWindow `json:"last_24_hours"`
}

// PostFromFields validates and converts raw stream fields into a Post.
// Missing or malformed fields are poison, never retryable.
func PostFromFields(fields map[string]string) (Post, error) {
	for _, k := range []string{"post_id", "source", "content", "author", "created_at"} {
		if fields[k] == "" {
			return Post{}, fmt.Errorf("op=post.decode: field %s missing: %w", k, ErrPoison)
		}
	}
	createdAt, err := time.Parse(time.RFC3339, fields["created_at"])
	if err != nil {
		return Post{}, fmt.Errorf("op=post.decode: created_at %q: %v: %w", fields["created_at"], err, ErrPoison)
	}
	if len(fields["content"]) > 10000 {
		return Post{}, fmt.Errorf("op=post.decode: content exceeds 10000 bytes: %w", ErrPoison)
	}
	return Post{
		PostID:    fields["post_id"],
		Source:    fields["source"],
		Content:   fields["content"],
		Author:    fields["author"],
		CreatedAt: createdAt.UTC(),
	}, nil
}

// Fields renders the Post as flat stream fields for Append.
func (p Post) Fields() map[string]string {
	return map[string]string{
		"post_id":    p.PostID,
		"source":     p.Source,
		"content":    p.Content,
		"author":     p.Author,
		"created_at": p.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// DecodePostEvent parses a bus payload of shape {"type":"post","data":{...}}.
func DecodePostEvent(payload []byte) (PostEvent, error) {
	var env struct {
		Type string    `json:"type"`
		Data PostEvent `json:"data"`
	}
	if err := json.Unmarshal(payload, &env); err != nil {
		return PostEvent{}, fmt.Errorf("op=event.decode: %w", err)
	}
	if env.Type != "post" {
		return PostEvent{}, fmt.Errorf("op=event.decode: unexpected type %q: %w", env.Type, ErrInvalidArgument)
	}
	return env.Data, nil
}

// EncodePostEvent renders the {"type":"post","data":{...}} bus envelope.
func EncodePostEvent(ev PostEvent) ([]byte, error) {
	return json.Marshal(map[string]any{"type": "post", "data": ev})
}
