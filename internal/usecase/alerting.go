package usecase

import (
	"encoding/json"
	"log/slog"
	"math"
	"time"

	"github.com/fairyhunter13/sentiment-pipeline/internal/adapter/observability"
	"github.com/fairyhunter13/sentiment-pipeline/internal/domain"
	obsctx "github.com/fairyhunter13/sentiment-pipeline/internal/observability"
)

// AlertTypeHighNegativeRatio is the only alert type the monitor emits today.
const AlertTypeHighNegativeRatio = "high_negative_ratio"

// AlertService evaluates the negative-ratio rule over a sliding window and
// persists an alert each time the threshold is exceeded. There is no dedup:
// operators keep receiving alerts until the condition clears.
type AlertService struct {
	Store domain.Store
	Bus   domain.Bus

	Threshold     float64
	Window        time.Duration
	MinPosts      int64
	AlertsChannel string
}

// NewAlertService constructs an AlertService with its parameters.
func NewAlertService(store domain.Store, bus domain.Bus, threshold float64, window time.Duration, minPosts int64, alertsChannel string) AlertService {
	return AlertService{
		Store:         store,
		Bus:           bus,
		Threshold:     threshold,
		Window:        window,
		MinPosts:      minPosts,
		AlertsChannel: alertsChannel,
	}
}

// CheckOnce evaluates one window ending now. It returns the persisted alert,
// or nil when no alert fired.
func (s AlertService) CheckOnce(ctx domain.Context) (*domain.Alert, error) {
	windowEnd := time.Now().UTC()
	windowStart := windowEnd.Add(-s.Window)

	counts, err := s.Store.WindowCounts(ctx, windowStart, windowEnd)
	if err != nil {
		return nil, err
	}
	if counts.Total < s.MinPosts {
		return nil, nil
	}

	ratio := negativeRatio(counts.Positive, counts.Negative)
	if ratio <= s.Threshold {
		return nil, nil
	}

	alert := domain.Alert{
		AlertType:      AlertTypeHighNegativeRatio,
		ThresholdValue: s.Threshold,
		ActualValue:    ratio,
		WindowStart:    windowStart,
		WindowEnd:      windowEnd,
		PostCount:      counts.Total,
		TriggeredAt:    windowEnd,
		Details: map[string]any{
			"positive_count": counts.Positive,
			"negative_count": counts.Negative,
			"neutral_count":  counts.Neutral,
			"total_count":    counts.Total,
			"window_minutes": int(s.Window.Minutes()),
		},
	}
	id, err := s.Store.SaveAlert(ctx, alert)
	if err != nil {
		return nil, err
	}
	alert.ID = id
	observability.AlertsFiredTotal.WithLabelValues(alert.AlertType).Inc()
	obsctx.LoggerFromContext(ctx).Warn("alert fired",
		slog.String("alert_type", alert.AlertType),
		slog.Float64("actual_value", ratio),
		slog.Int64("post_count", counts.Total))

	s.publish(ctx, alert)
	return &alert, nil
}

// Run evaluates the rule every interval until ctx is cancelled. Evaluation
// errors are logged and the loop keeps going.
func (s AlertService) Run(ctx domain.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.CheckOnce(ctx); err != nil {
				obsctx.LoggerFromContext(ctx).Warn("alert check failed", slog.Any("error", err))
			}
		}
	}
}

// publish announces the alert on the alerts channel. Best-effort only.
func (s AlertService) publish(ctx domain.Context, alert domain.Alert) {
	if s.Bus == nil {
		return
	}
	// JSON has no +Inf; a zero-positive window publishes the largest finite
	// value instead of losing the event to a marshal error.
	actual := alert.ActualValue
	if math.IsInf(actual, 1) {
		actual = math.MaxFloat64
	}
	ev := domain.AlertEvent{
		AlertType:   alert.AlertType,
		Threshold:   alert.ThresholdValue,
		ActualValue: actual,
		WindowStart: alert.WindowStart.Format(time.RFC3339),
		WindowEnd:   alert.WindowEnd.Format(time.RFC3339),
		PostCount:   alert.PostCount,
		TriggeredAt: alert.TriggeredAt.Format(time.RFC3339),
		Details:     alert.Details,
	}
	payload, err := json.Marshal(map[string]any{"type": "alert", "data": ev})
	if err != nil {
		return
	}
	if err := s.Bus.Publish(ctx, s.AlertsChannel, payload); err != nil {
		obsctx.LoggerFromContext(ctx).Debug("alert publish failed", slog.Any("error", err))
	}
}

// negativeRatio implements the window rule: neg/pos, +Inf when positives are
// absent but negatives exist, 0 when the window is all neutral.
func negativeRatio(positive, negative int64) float64 {
	if positive == 0 {
		if negative > 0 {
			return math.Inf(1)
		}
		return 0.0
	}
	return float64(negative) / float64(positive)
}
