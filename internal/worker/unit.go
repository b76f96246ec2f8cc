package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/rickgao/fulltick/internal/connection"
	"github.com/rickgao/fulltick/internal/model"
)

// ErrUnitDied reports a unit that stopped before signalling readiness.
var ErrUnitDied = errors.New("worker unit died")

// Config configures a Unit.
type Config struct {
	Endpoints []model.Endpoint
	Session   connection.SessionConfig
}

// Stats provides statistics about a unit.
type Stats struct {
	ID         string
	State      string
	Endpoints  int
	Sessions   int
	Subscribed int
	Reconciled int
	Received   int64
	Dropped    int64
}

// Unit is one worker over a range of endpoints.
type Unit struct {
	id     string
	cfg    Config
	deps   connection.Deps
	logger *slog.Logger

	state atomic.Int32

	ready     chan struct{}
	readyOnce sync.Once
	done      chan struct{}

	mu       sync.Mutex
	sessions []*connection.Session
	err      error
}

// New creates a unit. Call Run to start it.
func New(cfg Config, deps connection.Deps) *Unit {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	u := &Unit{
		id:    uuid.NewString(),
		cfg:   cfg,
		ready: make(chan struct{}),
		done:  make(chan struct{}),
	}
	u.logger = deps.Logger.With("unit_id", u.id)
	deps.Logger = u.logger
	u.deps = deps
	u.state.Store(int32(model.WorkerSpawned))
	return u
}

// Run subscribes the unit's endpoints, signals readiness, then blocks until
// ctx is cancelled and closes every session. A panic is recovered and
// reported through Err as ErrUnitDied.
func (u *Unit) Run(ctx context.Context) {
	defer close(u.done)
	defer func() {
		if r := recover(); r != nil {
			u.logger.Error("worker unit died", "panic", r)
			u.setErr(fmt.Errorf("%w: %v", ErrUnitDied, r))
			u.closeSessions()
			u.setState(model.WorkerTerminated)
		}
	}()

	u.setState(model.WorkerSubscribing)
	if err := u.subscribe(ctx); err != nil {
		u.logger.Info("worker unit cancelled before ready", "error", err)
		u.setErr(err)
		u.closeSessions()
		u.setState(model.WorkerTerminated)
		return
	}

	u.setState(model.WorkerReady)
	u.readyOnce.Do(func() { close(u.ready) })
	u.setState(model.WorkerRunning)

	<-ctx.Done()

	u.setState(model.WorkerStopping)
	u.closeSessions()
	u.setState(model.WorkerTerminated)
	u.logger.Debug("worker unit terminated")
}

// subscribe opens sessions sequentially over the endpoint range.
func (u *Unit) subscribe(ctx context.Context) error {
	for _, ep := range u.cfg.Endpoints {
		if u.deps.Ledger.RemainingCount() == 0 {
			break
		}

		s, err := connection.Open(ctx, u.cfg.Session, u.deps, ep)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// Retry ceiling reached; the endpoint is skipped.
			u.logger.Warn("endpoint skipped", "endpoint", ep.String(), "error", err)
			continue
		}

		u.mu.Lock()
		u.sessions = append(u.sessions, s)
		u.mu.Unlock()
	}
	return nil
}

func (u *Unit) closeSessions() {
	u.mu.Lock()
	sessions := u.sessions
	u.mu.Unlock()

	for _, s := range sessions {
		if err := s.Close(); err != nil {
			u.logger.Debug("session close error", "session_id", s.ID(), "error", err)
		}
	}
}

func (u *Unit) setState(s model.WorkerState) {
	u.state.Store(int32(s))
}

func (u *Unit) setErr(err error) {
	u.mu.Lock()
	u.err = err
	u.mu.Unlock()
}

// ID returns the unit's unique id.
func (u *Unit) ID() string { return u.id }

// Endpoints returns the unit's endpoint range.
func (u *Unit) Endpoints() []model.Endpoint {
	return append([]model.Endpoint(nil), u.cfg.Endpoints...)
}

// Ready is closed once every endpoint in the range has been attempted.
func (u *Unit) Ready() <-chan struct{} { return u.ready }

// Done is closed when Run returns.
func (u *Unit) Done() <-chan struct{} { return u.done }

// State returns the current lifecycle state.
func (u *Unit) State() model.WorkerState {
	return model.WorkerState(u.state.Load())
}

// Err returns why the unit stopped early, or nil.
func (u *Unit) Err() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.err
}

// Sessions returns the unit's open sessions.
func (u *Unit) Sessions() []*connection.Session {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]*connection.Session(nil), u.sessions...)
}

// Stats returns a summary of the unit.
func (u *Unit) Stats() Stats {
	st := Stats{
		ID:        u.id,
		State:     u.State().String(),
		Endpoints: len(u.cfg.Endpoints),
	}
	for _, s := range u.Sessions() {
		st.Sessions++
		st.Subscribed += len(s.Subscribed())
		st.Reconciled += len(s.Reconciled())
		ss := s.Stats()
		st.Received += ss.Received
		st.Dropped += ss.Dropped
	}
	return st
}
