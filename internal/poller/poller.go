package poller

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rickgao/fulltick/internal/gateway"
	"github.com/rickgao/fulltick/internal/metrics"
	"github.com/rickgao/fulltick/internal/model"
)

// EndpointSource provides the endpoints to poll.
type EndpointSource interface {
	Endpoints() []model.Endpoint
}

// EndpointSourceFunc is a function adapter for EndpointSource.
type EndpointSourceFunc func() []model.Endpoint

func (f EndpointSourceFunc) Endpoints() []model.Endpoint {
	return f()
}

// Sample is one endpoint's quota reading.
type Sample struct {
	Endpoint   model.Endpoint
	Remaining  int
	Used       int
	Subscribed int // Symbols on the TICKER subscription
	At         time.Time
}

// SampleHandler receives quota samples.
type SampleHandler interface {
	HandleSample(s Sample) error
}

// SampleHandlerFunc is a function adapter for SampleHandler.
type SampleHandlerFunc func(Sample) error

func (f SampleHandlerFunc) HandleSample(s Sample) error {
	return f(s)
}

// Config holds poller configuration.
type Config struct {
	Interval    time.Duration // Poll interval (default: 1m)
	Concurrency int           // Max concurrent dials (default: 5)
	Timeout     time.Duration // Per-endpoint timeout (default: 10s)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval:    time.Minute,
		Concurrency: 5,
		Timeout:     10 * time.Second,
	}
}

// Poller periodically samples quota over dedicated gateway connections.
type Poller struct {
	cfg       Config
	dialer    gateway.Dialer
	endpoints EndpointSource
	handler   SampleHandler
	logger    *slog.Logger
	metrics   *metrics.Metrics
	now       func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new Poller. handler and m may be nil.
func New(cfg Config, dialer gateway.Dialer, endpoints EndpointSource, handler SampleHandler, logger *slog.Logger, m *metrics.Metrics) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	return &Poller{
		cfg:       cfg,
		dialer:    dialer,
		endpoints: endpoints,
		handler:   handler,
		logger:    logger.With("component", "quota_poller"),
		metrics:   metrics.OrNop(m),
		now:       time.Now,
	}
}

// Start begins the polling loop.
func (p *Poller) Start(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go p.run()

	p.logger.Info("quota poller started",
		"interval", p.cfg.Interval,
		"concurrency", p.cfg.Concurrency,
	)
	return nil
}

// Stop gracefully shuts down the poller.
func (p *Poller) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("quota poller stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Poller) run() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	p.pollAll()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.pollAll()
		}
	}
}

// pollAll samples every endpoint concurrently.
func (p *Poller) pollAll() {
	start := time.Now()

	eps := p.endpoints.Endpoints()
	if len(eps) == 0 {
		p.logger.Debug("no endpoints to poll")
		return
	}

	sem := make(chan struct{}, p.cfg.Concurrency)
	var wg sync.WaitGroup
	var sampled, failed atomic.Int64

	for _, ep := range eps {
		wg.Add(1)
		go func(ep model.Endpoint) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-p.ctx.Done():
				return
			}

			if err := p.pollEndpoint(ep); err != nil {
				p.logger.Warn("failed to poll quota", "endpoint", ep, "error", err)
				p.metrics.QuotaPolls.WithLabelValues("error").Inc()
				failed.Add(1)
				return
			}
			p.metrics.QuotaPolls.WithLabelValues("ok").Inc()
			sampled.Add(1)
		}(ep)
	}

	wg.Wait()

	p.logger.Debug("quota poll complete",
		"endpoints", len(eps),
		"sampled", sampled.Load(),
		"errors", failed.Load(),
		"duration", time.Since(start),
	)
}

func (p *Poller) pollEndpoint(ep model.Endpoint) error {
	ctx, cancel := context.WithTimeout(p.ctx, p.cfg.Timeout)
	defer cancel()

	conn, err := p.dialer.Dial(ctx, ep)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	state, err := conn.QuerySubscriptions(ctx)
	if err != nil {
		return fmt.Errorf("query subscriptions: %w", err)
	}

	s := Sample{
		Endpoint:   ep,
		Remaining:  state.Remaining,
		Used:       state.Used,
		Subscribed: len(state.Active(model.SubTicker)),
		At:         p.now(),
	}
	label := ep.String()
	p.metrics.QuotaRemaining.WithLabelValues(label).Set(float64(s.Remaining))
	p.metrics.QuotaUsed.WithLabelValues(label).Set(float64(s.Used))

	if p.handler != nil {
		if err := p.handler.HandleSample(s); err != nil {
			return err
		}
	}
	return nil
}
