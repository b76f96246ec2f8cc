package ledger

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/fulltick/internal/model"
)

func symbols(n int) []model.Symbol {
	out := make([]model.Symbol, n)
	for i := range out {
		out[i] = model.Symbol{Market: model.MarketUS, Code: fmt.Sprintf("S%04d", i)}
	}
	return out
}

// assertPartition checks subscribed ∪ pending == universe and the two are disjoint.
func assertPartition(t *testing.T, l *Ledger) {
	t.Helper()

	seen := make(map[model.Symbol]string)
	for _, s := range l.Pending() {
		seen[s] = "pending"
	}
	for _, s := range l.Subscribed() {
		prev, dup := seen[s]
		require.False(t, dup, "symbol %s is both subscribed and %s", s, prev)
		seen[s] = "subscribed"
	}
	universe := l.Universe()
	require.Len(t, seen, len(universe))
	for _, s := range universe {
		_, ok := seen[s]
		require.True(t, ok, "symbol %s missing from both sets", s)
	}
}

func TestNew_CollapsesDuplicates(t *testing.T) {
	u := symbols(3)
	l := New(append(u, u[0], u[2]))

	assert.Equal(t, u, l.Universe())
	assert.Equal(t, 3, l.RemainingCount())
	assert.Equal(t, 0, l.SubscribedCount())
}

func TestClaim_InOrder(t *testing.T) {
	u := symbols(10)
	l := New(u)

	assert.Equal(t, u[:4], l.Claim(4))
	assert.Equal(t, u[4:6], l.Claim(2))
	assert.Equal(t, 4, l.RemainingCount())
	assert.Equal(t, u[6:], l.Claim(100))
	assert.Empty(t, l.Claim(1))
	assert.Empty(t, l.Claim(0))
	assert.Empty(t, l.Claim(-5))
}

func TestClaim_ConcurrentUniqueness(t *testing.T) {
	const (
		workers = 16
		total   = 5000
	)
	l := New(symbols(total))

	var (
		mu      sync.Mutex
		claimed []model.Symbol
		wg      sync.WaitGroup
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(batch int) {
			defer wg.Done()
			for {
				got := l.Claim(batch)
				if len(got) == 0 {
					return
				}
				mu.Lock()
				claimed = append(claimed, got...)
				mu.Unlock()
			}
		}(w%7 + 1)
	}
	wg.Wait()

	require.Len(t, claimed, total)
	unique := make(map[model.Symbol]struct{}, total)
	for _, s := range claimed {
		unique[s] = struct{}{}
	}
	assert.Len(t, unique, total, "a symbol was claimed twice")
	assert.Equal(t, 0, l.RemainingCount())
}

func TestMarkSubscribed_Idempotent(t *testing.T) {
	u := symbols(5)
	l := New(u)

	claimed := l.Claim(2)
	l.MarkSubscribed(claimed)
	l.MarkSubscribed(claimed)
	l.MarkSubscribed(claimed[:1])

	assert.Equal(t, 2, l.SubscribedCount())
	assert.Equal(t, claimed, l.Subscribed())
	assertPartition(t, l)
}

func TestMarkSubscribed_RemovesPending(t *testing.T) {
	u := symbols(5)
	l := New(u)

	l.MarkSubscribed([]model.Symbol{u[3]})

	assert.Equal(t, 4, l.RemainingCount())
	assert.NotContains(t, l.Pending(), u[3])
	assertPartition(t, l)
}

func TestReconcile(t *testing.T) {
	u := symbols(6)
	l := New(u)
	l.MarkSubscribed(l.Claim(1)) // u[0] subscribed elsewhere

	outsider := model.Symbol{Market: model.MarketHK, Code: "00700"}
	got := l.Reconcile([]model.Symbol{u[0], u[2], outsider, u[4]})

	assert.Equal(t, []model.Symbol{u[2], u[4]}, got)
	assert.Equal(t, []model.Symbol{u[1], u[3], u[5]}, l.Pending())
	assert.Equal(t, 3, l.SubscribedCount())
	assertPartition(t, l)

	assert.Empty(t, l.Reconcile([]model.Symbol{u[2]}))
}

func TestRelease(t *testing.T) {
	u := symbols(6)
	l := New(u)

	claimed := l.Claim(3)
	l.MarkSubscribed(claimed[:1])
	l.Release(claimed)

	assert.Equal(t, []model.Symbol{u[1], u[2], u[3], u[4], u[5]}, l.Pending())
	assertPartition(t, l)
}

func TestUnmark(t *testing.T) {
	u := symbols(6)
	l := New(u)

	reconciled := l.Reconcile([]model.Symbol{u[2], u[4]})
	require.Equal(t, []model.Symbol{u[2], u[4]}, reconciled)
	claimed := l.Claim(1)
	l.MarkSubscribed(claimed)

	l.Unmark([]model.Symbol{u[2], u[4], u[5]})

	assert.Equal(t, []model.Symbol{u[0]}, l.Subscribed())
	assert.Equal(t, []model.Symbol{u[2], u[4], u[1], u[3], u[5]}, l.Pending())
	assertPartition(t, l)

	// Unmarking again changes nothing.
	l.Unmark(reconciled)
	assert.Equal(t, 5, l.RemainingCount())
	assertPartition(t, l)
}

func TestSnapshotRestore(t *testing.T) {
	u := symbols(10)
	l := New(u)

	l.MarkSubscribed(l.Claim(3))
	snap := l.Snapshot()
	assert.Equal(t, 7, snap.Len())

	// A worker claims and subscribes some, claims more, then dies.
	l.MarkSubscribed(l.Claim(2))
	l.Claim(4)
	assert.Equal(t, 1, l.RemainingCount())

	l.Restore(snap)

	assert.Equal(t, u[3:], l.Pending())
	assert.Equal(t, u[:3], l.Subscribed())
	assertPartition(t, l)
}

func TestPartitionInvariant_ConcurrentWorkers(t *testing.T) {
	u := symbols(2000)
	l := New(u)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; ; i++ {
				if i%3 == 0 {
					l.Reconcile(u[(w*37+i)%len(u) : (w*37+i)%len(u)+1])
				}
				got := l.Claim(25)
				if len(got) == 0 {
					return
				}
				if i%5 == 0 && len(got) > 10 {
					l.Release(got[10:])
					got = got[:10]
				}
				l.MarkSubscribed(got)
			}
		}(w)
	}
	wg.Wait()

	assert.Equal(t, 0, l.RemainingCount())
	assert.Equal(t, len(u), l.SubscribedCount())
	assertPartition(t, l)
}
