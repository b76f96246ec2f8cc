package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rickgao/fulltick/internal/metrics"
)

// ErrRetriesExhausted is returned when a policy's attempt ceiling is reached.
var ErrRetriesExhausted = errors.New("retries exhausted")

// RetryPolicy is a fixed-delay retry schedule.
type RetryPolicy struct {
	Delay       time.Duration // Wait between attempts
	MaxAttempts int           // 0 = retry until success or cancellation
}

// Retry runs fn until it succeeds. Each failed attempt is logged and counted
// under op.
func Retry(ctx context.Context, p RetryPolicy, op string, logger *slog.Logger, m *metrics.Metrics, fn func(ctx context.Context) error) error {
	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
			return fmt.Errorf("%s after %d attempts: %w: %w", op, attempt, ErrRetriesExhausted, err)
		}

		m.RPCRetries.WithLabelValues(op).Inc()
		logger.Warn("upstream call failed, retrying",
			"op", op,
			"attempt", attempt,
			"delay", p.Delay,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.Delay):
		}
	}
}
