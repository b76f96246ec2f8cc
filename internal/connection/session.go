package connection

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/fulltick/internal/aggregator"
	"github.com/rickgao/fulltick/internal/gateway"
	"github.com/rickgao/fulltick/internal/ledger"
	"github.com/rickgao/fulltick/internal/metrics"
	"github.com/rickgao/fulltick/internal/model"
	"github.com/rickgao/fulltick/internal/quota"
)

// SessionConfig configures how a session subscribes.
type SessionConfig struct {
	BatchSize  int           // Desired new subscriptions per connection
	Adaptive   bool          // Shrink the batch to the remaining quota
	TickWeight int           // Quota cost per subscription
	SubType    model.SubType // Subscription type requested

	Connect   RetryPolicy
	Query     RetryPolicy
	Subscribe RetryPolicy
}

// DefaultSessionConfig returns sensible defaults.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		BatchSize:  100,
		Adaptive:   true,
		TickWeight: quota.TickWeight,
		SubType:    model.SubTicker,
		Connect:    RetryPolicy{Delay: 1 * time.Second},
		Query:      RetryPolicy{Delay: 100 * time.Millisecond},
		Subscribe:  RetryPolicy{Delay: 1 * time.Second},
	}
}

// Deps are the shared collaborators a session works against.
type Deps struct {
	Dialer  gateway.Dialer
	Ledger  *ledger.Ledger
	Events  *aggregator.Buffer[model.Tick]
	Offset  model.TimestampOffset
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// SessionStats provides statistics about a session's event stream.
type SessionStats struct {
	Received int64
	Dropped  int64
}

// Session owns one open gateway connection.
type Session struct {
	id     string
	ep     model.Endpoint
	conn   gateway.Conn
	logger *slog.Logger
	m      *metrics.Metrics

	events *aggregator.Buffer[model.Tick]
	offset model.TimestampOffset

	reconciled []model.Symbol
	subscribed []model.Symbol

	received atomic.Int64
	dropped  atomic.Int64

	closeOnce sync.Once
}

// Open connects to ep, reconciles existing subscriptions with the ledger and
// subscribes one quota-safe batch. On error every symbol it claimed or
// reconciled has been returned to the ledger and the connection is closed.
func Open(ctx context.Context, cfg SessionConfig, deps Deps, ep model.Endpoint) (*Session, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	m := metrics.OrNop(deps.Metrics)

	s := &Session{
		id:     uuid.NewString(),
		ep:     ep,
		m:      m,
		events: deps.Events,
		offset: deps.Offset,
	}
	s.logger = logger.With("endpoint", ep.String(), "session_id", s.id)

	err := Retry(ctx, cfg.Connect, metrics.OpConnect, s.logger, m, func(ctx context.Context) error {
		conn, err := deps.Dialer.Dial(ctx, ep)
		if err != nil {
			return err
		}
		s.conn = conn
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", ep, err)
	}
	s.conn.OnTick(s.handleTick)
	m.SessionsOpen.Inc()

	if err := s.setup(ctx, cfg, deps.Ledger); err != nil {
		if len(s.reconciled) > 0 {
			deps.Ledger.Unmark(s.reconciled)
			s.reconciled = nil
		}
		s.Close()
		return nil, err
	}

	s.logger.Info("session ready",
		"reconciled", len(s.reconciled),
		"subscribed", len(s.subscribed),
	)
	return s, nil
}

// setup reconciles and subscribes one batch.
func (s *Session) setup(ctx context.Context, cfg SessionConfig, l *ledger.Ledger) error {
	state, err := s.query(ctx, cfg)
	if err != nil {
		return err
	}

	// Symbols already active on this account cost nothing to keep.
	s.reconciled = l.Reconcile(state.Active(cfg.SubType))
	if len(s.reconciled) > 0 {
		s.m.SymbolsReconciled.Add(float64(len(s.reconciled)))
		s.logger.Debug("reconciled active subscriptions", "count", len(s.reconciled))
	}

	want := cfg.BatchSize - len(s.reconciled)
	if want <= 0 {
		return nil
	}

	var n int
	if cfg.Adaptive {
		// Quota is re-measured after reconciliation.
		state, err = s.query(ctx, cfg)
		if err != nil {
			return err
		}
		n = quota.NextBatchSize(state.Remaining, cfg.TickWeight, want, l.RemainingCount())
	} else {
		n = min(want, l.RemainingCount())
	}
	if n <= 0 {
		return nil
	}

	claimed := l.Claim(n)
	if len(claimed) == 0 {
		return nil
	}

	err = Retry(ctx, cfg.Subscribe, metrics.OpSubscribe, s.logger, s.m, func(ctx context.Context) error {
		return s.conn.Subscribe(ctx, claimed, cfg.SubType)
	})
	if err != nil {
		l.Release(claimed)
		return fmt.Errorf("subscribe %d symbols on %s: %w", len(claimed), s.ep, err)
	}

	l.MarkSubscribed(claimed)
	s.subscribed = claimed
	s.m.SubscribeBatch.Observe(float64(len(claimed)))
	return nil
}

func (s *Session) query(ctx context.Context, cfg SessionConfig) (gateway.SubscriptionState, error) {
	var state gateway.SubscriptionState
	err := Retry(ctx, cfg.Query, metrics.OpQuery, s.logger, s.m, func(ctx context.Context) error {
		st, err := s.conn.QuerySubscriptions(ctx)
		if err != nil {
			return err
		}
		state = st
		return nil
	})
	if err != nil {
		return state, fmt.Errorf("query subscriptions on %s: %w", s.ep, err)
	}
	return state, nil
}

// handleTick pushes a tick onto the event buffer without blocking.
func (s *Session) handleTick(tick model.Tick) {
	tick.LocalTime = s.offset.Adjust(tick.Time)
	s.received.Add(1)
	s.m.EventsReceived.Inc()

	if s.events.Send(tick) {
		return
	}

	s.m.EventsDropped.Inc()
	if n := s.dropped.Add(1); n == 1 || n%1000 == 0 {
		s.logger.Warn("event buffer full, dropping tick",
			"symbol", tick.Symbol.String(),
			"dropped", n,
		)
	}
}

// Close closes the connection. When Close returns no further ticks from
// this session reach the event buffer.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.conn.Close()
		s.m.SessionsOpen.Dec()
		s.logger.Debug("session closed",
			"received", s.received.Load(),
			"dropped", s.dropped.Load(),
		)
	})
	return err
}

// ID returns the session's unique id.
func (s *Session) ID() string { return s.id }

// Endpoint returns the endpoint this session is connected to.
func (s *Session) Endpoint() model.Endpoint { return s.ep }

// Reconciled returns the symbols found already active on the connection.
func (s *Session) Reconciled() []model.Symbol {
	return append([]model.Symbol(nil), s.reconciled...)
}

// Subscribed returns the symbols this session subscribed.
func (s *Session) Subscribed() []model.Symbol {
	return append([]model.Symbol(nil), s.subscribed...)
}

// Stats returns event counters.
func (s *Session) Stats() SessionStats {
	return SessionStats{
		Received: s.received.Load(),
		Dropped:  s.dropped.Load(),
	}
}
