package aggregator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rickgao/fulltick/internal/metrics"
	"github.com/rickgao/fulltick/internal/model"
)

// Config holds Event Aggregator configuration.
type Config struct {
	PollInterval time.Duration // Sleep when the channel is empty
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		PollInterval: 10 * time.Millisecond,
	}
}

// Stats contains runtime statistics.
type Stats struct {
	Delivered     int64
	HandlerErrors int64
	Buffer        BufferStats
}

// Aggregator drains the shared event channel into a handler.
type Aggregator struct {
	cfg     Config
	input   *Buffer[model.Tick]
	handler Handler
	logger  *slog.Logger
	metrics *metrics.Metrics

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	delivered     atomic.Int64
	handlerErrors atomic.Int64
}

// New creates an Aggregator. A nil handler logs ticks at debug level.
func New(cfg Config, input *Buffer[model.Tick], handler Handler, logger *slog.Logger, m *metrics.Metrics) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	if handler == nil {
		handler = LogHandler(logger)
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}
	return &Aggregator{
		cfg:     cfg,
		input:   input,
		handler: handler,
		logger:  logger,
		metrics: metrics.OrNop(m),
	}
}

// Start begins the consumer loop.
func (a *Aggregator) Start(ctx context.Context) error {
	a.ctx, a.cancel = context.WithCancel(ctx)

	a.wg.Add(1)
	go a.consumeLoop()

	a.logger.Info("event aggregator started", "poll_interval", a.cfg.PollInterval)
	return nil
}

// Stop ends the consumer loop and waits for it, bounded by ctx. Once the
// loop has exited no further handler calls are made. If ctx expires first
// the loop is abandoned; it exits after the in-flight handler call returns.
func (a *Aggregator) Stop(ctx context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		a.logger.Info("event aggregator stopped",
			"delivered", a.delivered.Load(),
			"handler_errors", a.handlerErrors.Load(),
		)
		return nil
	case <-ctx.Done():
		a.logger.Warn("event aggregator stop timed out")
		return ctx.Err()
	}
}

// Stats returns current statistics.
func (a *Aggregator) Stats() Stats {
	return Stats{
		Delivered:     a.delivered.Load(),
		HandlerErrors: a.handlerErrors.Load(),
		Buffer:        a.input.Stats(),
	}
}

// consumeLoop polls the channel and delivers ticks until cancelled.
func (a *Aggregator) consumeLoop() {
	defer a.wg.Done()

	for {
		if a.ctx.Err() != nil {
			return
		}

		tick, ok := a.input.TryReceive()
		if !ok {
			select {
			case <-a.ctx.Done():
				return
			case <-time.After(a.cfg.PollInterval):
				continue
			}
		}

		a.deliver(tick)
	}
}

// deliver calls the handler, swallowing errors and panics.
func (a *Aggregator) deliver(tick model.Tick) {
	defer func() {
		if r := recover(); r != nil {
			a.fail(tick, fmt.Errorf("handler panic: %v", r))
		}
	}()

	if err := a.handler.HandleTick(a.ctx, tick); err != nil {
		a.fail(tick, err)
		return
	}
	a.delivered.Add(1)
	a.metrics.EventsDelivered.Inc()
}

func (a *Aggregator) fail(tick model.Tick, err error) {
	a.handlerErrors.Add(1)
	a.metrics.HandlerErrors.Inc()
	a.logger.Debug("handler failed", "symbol", tick.Symbol.String(), "error", err)
}
