package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rickgao/fulltick/internal/connection"
	"github.com/rickgao/fulltick/internal/gateway"
	"github.com/rickgao/fulltick/internal/metrics"
	"github.com/rickgao/fulltick/internal/model"
)

// measureOffset samples the gateway clock and keeps the smallest
// local-minus-upstream difference, in whole seconds.
func measureOffset(ctx context.Context, conn gateway.Conn, cfg Config, now func() time.Time, logger *slog.Logger, m *metrics.Metrics) (model.TimestampOffset, error) {
	var best int64
	for i := 0; i < cfg.TimeSyncSamples; i++ {
		var gs gateway.GlobalState
		err := connection.Retry(ctx, cfg.Session.Query, metrics.OpTimeSync, logger, m, func(ctx context.Context) error {
			st, err := conn.GlobalState(ctx)
			if err != nil {
				return err
			}
			gs = st
			return nil
		})
		if err != nil {
			return 0, fmt.Errorf("time sync: %w", err)
		}

		diff := now().Unix() - gs.ServerTime.Unix()
		if i == 0 || diff < best {
			best = diff
		}
	}
	return model.TimestampOffset(best), nil
}
