package connection

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/fulltick/internal/aggregator"
	"github.com/rickgao/fulltick/internal/gateway/gatewaytest"
	"github.com/rickgao/fulltick/internal/ledger"
	"github.com/rickgao/fulltick/internal/model"
)

var testEndpoint = model.Endpoint{Host: "127.0.0.1", Port: 11113}

func symbols(n int) []model.Symbol {
	out := make([]model.Symbol, n)
	for i := range out {
		out[i] = model.Symbol{Market: model.MarketUS, Code: fmt.Sprintf("S%04d", i)}
	}
	return out
}

func fastConfig() SessionConfig {
	cfg := DefaultSessionConfig()
	cfg.Connect.Delay = time.Millisecond
	cfg.Query.Delay = time.Millisecond
	cfg.Subscribe.Delay = time.Millisecond
	return cfg
}

func testDeps(g *gatewaytest.Gateway, l *ledger.Ledger) Deps {
	return Deps{
		Dialer: g,
		Ledger: l,
		Events: aggregator.NewBuffer[model.Tick](16),
	}
}

func TestOpen_SubscribesOneBatch(t *testing.T) {
	g := gatewaytest.New()
	l := ledger.New(symbols(250))

	s, err := Open(context.Background(), fastConfig(), testDeps(g, l), testEndpoint)
	require.NoError(t, err)
	defer s.Close()

	assert.Len(t, s.Subscribed(), 100)
	assert.Empty(t, s.Reconciled())
	assert.Equal(t, 150, l.RemainingCount())
	assert.Equal(t, 100, l.SubscribedCount())
	assert.Equal(t, []int{100}, g.Batches(testEndpoint))
}

func TestOpen_AdaptiveBatchLimitedByQuota(t *testing.T) {
	g := gatewaytest.New()
	g.SetQuota(50) // room for 10 at weight 5
	l := ledger.New(symbols(100))

	cfg := fastConfig()
	cfg.BatchSize = 20

	s, err := Open(context.Background(), cfg, testDeps(g, l), testEndpoint)
	require.NoError(t, err)
	defer s.Close()

	assert.Len(t, s.Subscribed(), 10)
	assert.Equal(t, 90, l.RemainingCount())
}

func TestOpen_NonAdaptiveUsesFixedBatch(t *testing.T) {
	g := gatewaytest.New()
	l := ledger.New(symbols(30))

	cfg := fastConfig()
	cfg.Adaptive = false
	cfg.BatchSize = 20

	s, err := Open(context.Background(), cfg, testDeps(g, l), testEndpoint)
	require.NoError(t, err)
	defer s.Close()

	assert.Len(t, s.Subscribed(), 20)
	assert.Equal(t, 10, l.RemainingCount())
}

func TestOpen_ReconcilesActiveSubscriptions(t *testing.T) {
	g := gatewaytest.New()
	universe := symbols(50)
	l := ledger.New(universe)

	// Five symbols survive from an earlier run on this account.
	g.PreSubscribe(testEndpoint, model.SubTicker, universe[10:15]...)

	cfg := fastConfig()
	cfg.BatchSize = 20

	s, err := Open(context.Background(), cfg, testDeps(g, l), testEndpoint)
	require.NoError(t, err)
	defer s.Close()

	assert.ElementsMatch(t, universe[10:15], s.Reconciled())
	// The batch shrinks by the reconciled count.
	assert.Len(t, s.Subscribed(), 15)
	assert.Equal(t, 20, l.SubscribedCount())
	assert.Equal(t, 30, l.RemainingCount())

	// Reconciled symbols are not subscribed again.
	assert.Equal(t, []int{15}, g.Batches(testEndpoint))
}

func TestOpen_RetriesTransientFailures(t *testing.T) {
	g := gatewaytest.New()
	g.FailDials(testEndpoint, 2)
	g.FailQueries(testEndpoint, 2)
	g.FailSubscribes(testEndpoint, 2)
	l := ledger.New(symbols(10))

	s, err := Open(context.Background(), fastConfig(), testDeps(g, l), testEndpoint)
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, 3, g.Dials(testEndpoint))
	assert.Equal(t, 3, g.SubscribeCalls(testEndpoint))
	assert.Len(t, s.Subscribed(), 10)
	assert.Equal(t, 0, l.RemainingCount())
}

func TestOpen_RetryCeilingReleasesClaims(t *testing.T) {
	g := gatewaytest.New()
	g.FailSubscribes(testEndpoint, 10)
	l := ledger.New(symbols(10))

	cfg := fastConfig()
	cfg.Subscribe.MaxAttempts = 3

	_, err := Open(context.Background(), cfg, testDeps(g, l), testEndpoint)
	require.ErrorIs(t, err, ErrRetriesExhausted)

	assert.Equal(t, 10, l.RemainingCount())
	assert.Equal(t, 0, l.SubscribedCount())
	assert.Equal(t, 0, g.OpenConns())
}

func TestOpen_RetryCeilingReturnsReconciledSymbols(t *testing.T) {
	universe := symbols(50)
	g := gatewaytest.New()
	g.PreSubscribe(testEndpoint, model.SubTicker, universe[10:15]...)
	g.FailSubscribes(testEndpoint, 10)
	l := ledger.New(universe)

	cfg := fastConfig()
	cfg.Subscribe.MaxAttempts = 2

	_, err := Open(context.Background(), cfg, testDeps(g, l), testEndpoint)
	require.ErrorIs(t, err, ErrRetriesExhausted)

	assert.Empty(t, l.Subscribed())
	assert.Equal(t, 50, l.RemainingCount())
	assert.ElementsMatch(t, universe, l.Pending())
	assert.Equal(t, 0, g.OpenConns())
}

func TestOpen_CancelledWhileConnecting(t *testing.T) {
	g := gatewaytest.New()
	g.Down(testEndpoint)
	l := ledger.New(symbols(10))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := Open(ctx, fastConfig(), testDeps(g, l), testEndpoint)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 10, l.RemainingCount())
}

func TestSession_ForwardsTicksAndStopsAfterClose(t *testing.T) {
	g := gatewaytest.New()
	universe := symbols(5)
	l := ledger.New(universe)
	deps := testDeps(g, l)
	deps.Offset = 2

	s, err := Open(context.Background(), fastConfig(), deps, testEndpoint)
	require.NoError(t, err)

	upstream := time.Unix(1700000000, 0)
	require.Equal(t, 1, g.Push(model.Tick{Symbol: universe[0], Time: upstream, Sequence: 1}))

	tick, ok := deps.Events.TryReceive()
	require.True(t, ok)
	assert.Equal(t, universe[0], tick.Symbol)
	assert.Equal(t, testEndpoint, tick.Endpoint)
	assert.Equal(t, upstream.Add(2*time.Second), tick.LocalTime)

	require.NoError(t, s.Close())
	assert.Equal(t, 0, g.Push(model.Tick{Symbol: universe[0], Sequence: 2}))
	assert.Equal(t, 0, deps.Events.Len())
	assert.Equal(t, int64(1), s.Stats().Received)
}

func TestSession_DropsWhenBufferFull(t *testing.T) {
	g := gatewaytest.New()
	universe := symbols(1)
	l := ledger.New(universe)
	deps := testDeps(g, l)
	deps.Events = aggregator.NewBoundedBuffer[model.Tick](2, 2)

	s, err := Open(context.Background(), fastConfig(), deps, testEndpoint)
	require.NoError(t, err)
	defer s.Close()

	for i := 0; i < 5; i++ {
		g.Push(model.Tick{Symbol: universe[0], Sequence: int64(i)})
	}

	stats := s.Stats()
	assert.Equal(t, int64(5), stats.Received)
	assert.Equal(t, int64(3), stats.Dropped)
	assert.Equal(t, 2, deps.Events.Len())
}
