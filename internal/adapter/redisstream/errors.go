package redisstream

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/fairyhunter13/sentiment-pipeline/internal/domain"
)

// wrapErr classifies a Redis error into the domain taxonomy. Connection and
// timeout failures are transient; everything else surfaces as-is.
func wrapErr(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("op=%s: %v: %w", op, err, domain.ErrTransient)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("op=%s: %v: %w", op, err, domain.ErrTransient)
	}
	return fmt.Errorf("op=%s: %w", op, err)
}
