package aggregator

import (
	"context"
	"errors"
	"log/slog"

	"github.com/rickgao/fulltick/internal/model"
)

// Handler consumes aggregated ticks, one at a time.
type Handler interface {
	HandleTick(ctx context.Context, tick model.Tick) error
}

// HandlerFunc is a function adapter for Handler.
type HandlerFunc func(ctx context.Context, tick model.Tick) error

func (f HandlerFunc) HandleTick(ctx context.Context, tick model.Tick) error {
	return f(ctx, tick)
}

// Multi fans each tick out to every handler in order. All handlers are
// called even when one fails; errors are joined.
func Multi(handlers ...Handler) Handler {
	hs := make([]Handler, 0, len(handlers))
	for _, h := range handlers {
		if h != nil {
			hs = append(hs, h)
		}
	}
	return HandlerFunc(func(ctx context.Context, tick model.Tick) error {
		var errs []error
		for _, h := range hs {
			if err := h.HandleTick(ctx, tick); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})
}

// LogHandler logs every tick at debug level. It is the default handler.
func LogHandler(logger *slog.Logger) Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return HandlerFunc(func(ctx context.Context, tick model.Tick) error {
		logger.DebugContext(ctx, "tick",
			"symbol", tick.Symbol.String(),
			"price", tick.Price.String(),
			"volume", tick.Volume,
			"time", tick.LocalTime,
		)
		return nil
	})
}
