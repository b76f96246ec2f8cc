package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/fulltick/internal/aggregator"
	"github.com/rickgao/fulltick/internal/connection"
	"github.com/rickgao/fulltick/internal/gateway"
	"github.com/rickgao/fulltick/internal/ledger"
	"github.com/rickgao/fulltick/internal/metrics"
	"github.com/rickgao/fulltick/internal/model"
	"github.com/rickgao/fulltick/internal/worker"
)

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = logger }
}

// WithMetrics sets the metrics collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// WithClock overrides the local clock used for time sync.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// Stats summarizes the pipeline.
type Stats struct {
	State           string
	TimestampOffset model.TimestampOffset
	Universe        int
	Pending         int
	Subscribed      int
	Units           []worker.Stats
	Aggregator      aggregator.Stats
}

// Coordinator distributes the symbol universe over worker units and
// aggregates their ticks into one handler.
type Coordinator struct {
	cfg     Config
	dialer  gateway.Dialer
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	mu       sync.RWMutex
	state    model.SystemState
	handler  aggregator.Handler
	universe []model.Symbol // caller supplied, nil = discover
	offset   model.TimestampOffset
	ledger   *ledger.Ledger
	events   *aggregator.Buffer[model.Tick]
	agg      *aggregator.Aggregator
	units    []*worker.Unit
	cancels  []context.CancelFunc
	cancel   context.CancelFunc
	stopped  chan struct{} // closed when the current run is back to idle
}

// New creates a Coordinator. Nothing happens until Start.
func New(cfg Config, dialer gateway.Dialer, opts ...Option) *Coordinator {
	c := &Coordinator{
		cfg:    cfg,
		dialer: dialer,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.metrics = metrics.OrNop(c.metrics)
	return c
}

// SetHandler registers the consumer of aggregated ticks. It takes effect on
// the next Start.
func (c *Coordinator) SetHandler(h aggregator.Handler) {
	c.mu.Lock()
	c.handler = h
	c.mu.Unlock()
}

// SetUniverse supplies the symbol universe, skipping discovery.
func (c *Coordinator) SetUniverse(symbols []model.Symbol) {
	c.mu.Lock()
	c.universe = append([]model.Symbol(nil), symbols...)
	c.mu.Unlock()
}

// Start runs the pipeline and returns once every unit that will be used is
// ready and the aggregator is running. It is a no-op unless the coordinator
// is idle. Cancelling ctx aborts a start in progress; with hold set it also
// closes the running pipeline when ctx ends.
func (c *Coordinator) Start(ctx context.Context, hold bool) error {
	c.mu.Lock()
	if c.state != model.SystemIdle {
		c.mu.Unlock()
		return nil
	}
	if err := c.cfg.Validate(); err != nil {
		c.mu.Unlock()
		return err
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancel = cancel
	c.stopped = make(chan struct{})
	c.state = model.SystemStarting
	c.mu.Unlock()

	c.logger.Info("coordinator starting",
		"host", c.cfg.Host,
		"port_begin", c.cfg.PortBegin,
		"port_count", c.cfg.PortCount,
		"ports_per_worker", c.cfg.PortsPerWorker,
	)

	stop := context.AfterFunc(ctx, cancel)
	err := c.run(runCtx)
	stop()

	c.mu.Lock()
	if err == nil && runCtx.Err() != nil {
		// Closed while starting.
		err = runCtx.Err()
	}
	if err == nil {
		c.state = model.SystemRunning
	}
	c.mu.Unlock()

	if err != nil {
		c.shutdown()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("start: %w", ctxErr)
		}
		return err
	}

	st := c.Stats()
	c.logger.Info("coordinator running",
		"units", len(st.Units),
		"subscribed", st.Subscribed,
		"pending", st.Pending,
		"timestamp_offset", int64(st.TimestampOffset),
	)

	if hold {
		go func() {
			select {
			case <-ctx.Done():
				c.Close()
			case <-runCtx.Done():
			}
		}()
	}
	return nil
}

// run performs discovery, time sync and unit spawning.
func (c *Coordinator) run(ctx context.Context) error {
	ref, err := c.openReference(ctx)
	if err != nil {
		return err
	}
	defer ref.Close()

	c.mu.RLock()
	universe := c.universe
	handler := c.handler
	c.mu.RUnlock()

	if universe == nil {
		universe, err = discoverUniverse(ctx, ref, c.cfg, c.logger, c.metrics)
		if err != nil {
			return err
		}
	}
	if len(universe) == 0 {
		return ErrEmptyUniverse
	}

	offset, err := measureOffset(ctx, ref, c.cfg, c.now, c.logger, c.metrics)
	if err != nil {
		return err
	}
	c.metrics.TimestampOffset.Set(float64(offset))
	c.logger.Info("time synchronized", "offset_seconds", int64(offset))

	l := ledger.New(universe)
	events := aggregator.NewBoundedBuffer[model.Tick](c.cfg.BufferSize, c.cfg.MaxBufferSize)

	c.mu.Lock()
	c.offset = offset
	c.ledger = l
	c.events = events
	c.mu.Unlock()
	c.updateLedgerMetrics()

	deps := connection.Deps{
		Dialer:  c.dialer,
		Ledger:  l,
		Events:  events,
		Offset:  offset,
		Logger:  c.logger,
		Metrics: c.metrics,
	}

	if err := c.spawnUnits(ctx, deps); err != nil {
		return err
	}

	agg := aggregator.New(c.cfg.Aggregator, events, handler, c.logger, c.metrics)
	if err := agg.Start(ctx); err != nil {
		return fmt.Errorf("start aggregator: %w", err)
	}
	c.mu.Lock()
	c.agg = agg
	c.mu.Unlock()
	return nil
}

func (c *Coordinator) openReference(ctx context.Context) (gateway.Conn, error) {
	ep := c.cfg.ReferenceEndpoint()
	var conn gateway.Conn
	err := connection.Retry(ctx, c.cfg.Session.Connect, metrics.OpConnect, c.logger.With("endpoint", ep.String()), c.metrics, func(ctx context.Context) error {
		cn, err := c.dialer.Dial(ctx, ep)
		if err != nil {
			return err
		}
		conn = cn
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reference connection %s: %w", ep, err)
	}
	return conn, nil
}

// spawnUnits spawns one unit at a time over contiguous endpoint ranges
// until nothing is pending or the endpoint budget is used up.
func (c *Coordinator) spawnUnits(ctx context.Context, deps connection.Deps) error {
	l := deps.Ledger

	for cursor := 0; cursor < c.cfg.PortCount && l.RemainingCount() > 0; {
		n := min(c.cfg.PortsPerWorker, c.cfg.PortCount-cursor)
		eps := model.EndpointRange(c.cfg.Host, c.cfg.PortBegin, cursor, n)

		snap := l.Snapshot()
		unitCtx, unitCancel := context.WithCancel(ctx)
		u := worker.New(worker.Config{Endpoints: eps, Session: c.cfg.Session}, deps)

		c.mu.Lock()
		c.cancels = append(c.cancels, unitCancel)
		c.mu.Unlock()

		go u.Run(unitCtx)

		ready, err := c.awaitReady(ctx, u)
		if err != nil {
			return err
		}
		if !ready {
			unitCancel()
			select {
			case <-u.Done():
			case <-time.After(c.cfg.JoinTimeout):
				c.logger.Warn("worker unit abandoned", "unit_id", u.ID())
			}
			l.Restore(snap)
			c.updateLedgerMetrics()
			c.metrics.WorkerFailures.Inc()
			c.logger.Error("worker unit failed before ready, stopping spawn",
				"unit_id", u.ID(),
				"first_port", eps[0].Port,
				"error", u.Err(),
				"restored", snap.Len(),
			)
			return nil
		}

		c.mu.Lock()
		c.units = append(c.units, u)
		c.mu.Unlock()
		c.metrics.WorkerUnits.Inc()
		c.updateLedgerMetrics()

		c.logger.Info("worker unit ready",
			"unit_id", u.ID(),
			"first_port", eps[0].Port,
			"endpoints", n,
			"pending", l.RemainingCount(),
		)
		cursor += n
	}
	return nil
}

// awaitReady blocks until u signals readiness, dies, or times out.
func (c *Coordinator) awaitReady(ctx context.Context, u *worker.Unit) (bool, error) {
	var timeout <-chan time.Time
	if c.cfg.ReadyTimeout > 0 {
		timer := time.NewTimer(c.cfg.ReadyTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-u.Ready():
		return true, nil
	case <-u.Done():
		// Ready and Done may both be closed by a unit cancelled right after
		// readiness.
		select {
		case <-u.Ready():
			return true, nil
		default:
		}
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return false, nil
	case <-timeout:
		c.logger.Warn("worker unit ready timeout", "unit_id", u.ID(), "timeout", c.cfg.ReadyTimeout)
		return false, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Close broadcasts shutdown and joins units and the aggregator, each bounded
// by JoinTimeout. It is a no-op when idle. Closing during Start aborts it.
// Every call returns only after the pipeline is back to idle.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	stopped := c.stopped
	switch c.state {
	case model.SystemIdle:
		c.mu.Unlock()
		return nil
	case model.SystemStarting:
		// Start sees the cancellation and shuts down itself.
		c.cancel()
		c.mu.Unlock()
		<-stopped
		return nil
	case model.SystemStopping:
		c.mu.Unlock()
		<-stopped
		return nil
	}
	c.state = model.SystemStopping
	c.mu.Unlock()

	c.shutdown()
	return nil
}

// shutdown cancels every unit and waits for them with a bounded timeout.
func (c *Coordinator) shutdown() {
	c.mu.Lock()
	c.state = model.SystemStopping
	stopped := c.stopped
	cancel := c.cancel
	cancels := c.cancels
	units := c.units
	agg := c.agg
	events := c.events
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	for _, fn := range cancels {
		fn()
	}

	deadline := time.NewTimer(c.cfg.JoinTimeout)
	defer deadline.Stop()

	expired := false
	abandoned := 0
	for _, u := range units {
		if !expired {
			select {
			case <-u.Done():
				continue
			case <-deadline.C:
				expired = true
			}
		}
		select {
		case <-u.Done():
		default:
			abandoned++
			c.logger.Warn("worker unit abandoned", "unit_id", u.ID(), "state", u.State().String())
		}
	}

	if agg != nil {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), c.cfg.JoinTimeout)
		if err := agg.Stop(stopCtx); err != nil {
			c.logger.Warn("aggregator abandoned", "error", err)
		}
		stopCancel()
	}
	if events != nil {
		events.Close()
	}

	c.metrics.WorkerUnits.Set(0)

	c.mu.Lock()
	c.state = model.SystemIdle
	c.units = nil
	c.cancels = nil
	c.agg = nil
	c.cancel = nil
	c.mu.Unlock()
	if stopped != nil {
		close(stopped)
	}

	c.logger.Info("coordinator stopped", "units", len(units), "abandoned", abandoned)
}

func (c *Coordinator) updateLedgerMetrics() {
	c.mu.RLock()
	l := c.ledger
	c.mu.RUnlock()
	if l == nil {
		return
	}
	c.metrics.SymbolsPending.Set(float64(l.RemainingCount()))
	c.metrics.SymbolsSubscribed.Set(float64(l.SubscribedCount()))
}

// State returns the pipeline state.
func (c *Coordinator) State() model.SystemState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// TimestampOffset returns the measured clock offset.
func (c *Coordinator) TimestampOffset() model.TimestampOffset {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.offset
}

// Ledger returns the ledger of the latest start, or nil.
func (c *Coordinator) Ledger() *ledger.Ledger {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ledger
}

// Units returns the ready units.
func (c *Coordinator) Units() []*worker.Unit {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]*worker.Unit(nil), c.units...)
}

// Stats returns a summary of the pipeline.
func (c *Coordinator) Stats() Stats {
	c.mu.RLock()
	st := Stats{
		State:           c.state.String(),
		TimestampOffset: c.offset,
	}
	l := c.ledger
	agg := c.agg
	units := append([]*worker.Unit(nil), c.units...)
	c.mu.RUnlock()

	if l != nil {
		st.Universe = len(l.Universe())
		st.Pending = l.RemainingCount()
		st.Subscribed = l.SubscribedCount()
	}
	for _, u := range units {
		st.Units = append(st.Units, u.Stats())
	}
	if agg != nil {
		st.Aggregator = agg.Stats()
	}
	return st
}
