package postgres

import (
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/sentiment-pipeline/internal/domain"
)

// SaveAlert appends one alert row and returns its id. Alerts are never
// updated or deleted.
func (s *Store) SaveAlert(ctx domain.Context, a domain.Alert) (int64, error) {
	tracer := otel.Tracer("repo.alerts")
	ctx, span := tracer.Start(ctx, "alerts.SaveAlert")
	defer span.End()

	details := a.Details
	if details == nil {
		details = map[string]any{}
	}
	blob, err := json.Marshal(details)
	if err != nil {
		return 0, fmt.Errorf("op=alerts.save.marshal: %w", err)
	}
	triggeredAt := a.TriggeredAt
	if triggeredAt.IsZero() {
		triggeredAt = time.Now().UTC()
	}

	const q = `INSERT INTO sentiment_alerts
		(alert_type, threshold_value, actual_value, window_start, window_end, post_count, triggered_at, details)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING id`
	var id int64
	if err := s.Pool.QueryRow(ctx, q,
		a.AlertType, a.ThresholdValue, a.ActualValue,
		a.WindowStart.UTC(), a.WindowEnd.UTC(), a.PostCount, triggeredAt, blob,
	).Scan(&id); err != nil {
		return 0, wrapDBErr("alerts.save", err)
	}
	return id, nil
}
