package ledger

import (
	"sync"

	"github.com/rickgao/fulltick/internal/model"
)

// Ledger is the shared subscription bookkeeping for one run.
type Ledger struct {
	mu sync.Mutex

	// Full universe in discovery order.
	universe []model.Symbol

	// Symbols still to subscribe, in claim order.
	pending    []model.Symbol
	pendingSet map[model.Symbol]struct{}

	// Symbols subscribed by any worker, in subscription order.
	subscribed    []model.Symbol
	subscribedSet map[model.Symbol]struct{}
}

// Snapshot is a point-in-time copy of the pending set.
type Snapshot struct {
	pending []model.Symbol
}

// Len returns the number of pending symbols captured.
func (s Snapshot) Len() int {
	return len(s.pending)
}

// New creates a ledger with every symbol of universe pending.
// Duplicate symbols collapse to their first occurrence.
func New(universe []model.Symbol) *Ledger {
	l := &Ledger{
		universe:      make([]model.Symbol, 0, len(universe)),
		pending:       make([]model.Symbol, 0, len(universe)),
		pendingSet:    make(map[model.Symbol]struct{}, len(universe)),
		subscribedSet: make(map[model.Symbol]struct{}),
	}
	for _, s := range universe {
		if _, dup := l.pendingSet[s]; dup {
			continue
		}
		l.universe = append(l.universe, s)
		l.pending = append(l.pending, s)
		l.pendingSet[s] = struct{}{}
	}
	return l
}

// Claim atomically removes up to max symbols from the front of the pending
// set and returns them. The caller owns the claimed symbols until it marks
// them subscribed or releases them.
func (l *Ledger) Claim(max int) []model.Symbol {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := min(max, len(l.pending))
	if n <= 0 {
		return nil
	}

	claimed := make([]model.Symbol, n)
	copy(claimed, l.pending[:n])
	l.pending = append(l.pending[:0:0], l.pending[n:]...)
	for _, s := range claimed {
		delete(l.pendingSet, s)
	}
	return claimed
}

// Reconcile moves every symbol of active that is still pending straight to
// the subscribed set and returns those symbols. Symbols not pending (already
// subscribed elsewhere, or outside the universe) are ignored.
func (l *Ledger) Reconcile(active []model.Symbol) []model.Symbol {
	l.mu.Lock()
	defer l.mu.Unlock()

	var reconciled []model.Symbol
	for _, s := range active {
		if _, ok := l.pendingSet[s]; !ok {
			continue
		}
		delete(l.pendingSet, s)
		l.markLocked(s)
		reconciled = append(reconciled, s)
	}
	if len(reconciled) > 0 {
		l.compactLocked()
	}
	return reconciled
}

// MarkSubscribed records symbols as subscribed. Marking a symbol twice is a
// no-op. A symbol that is still pending is removed from the pending set.
func (l *Ledger) MarkSubscribed(symbols []model.Symbol) {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := false
	for _, s := range symbols {
		if _, ok := l.pendingSet[s]; ok {
			delete(l.pendingSet, s)
			removed = true
		}
		l.markLocked(s)
	}
	if removed {
		l.compactLocked()
	}
}

// Release returns claimed symbols that were never subscribed to the front of
// the pending set, preserving their order.
func (l *Ledger) Release(symbols []model.Symbol) {
	l.mu.Lock()
	defer l.mu.Unlock()

	back := make([]model.Symbol, 0, len(symbols))
	for _, s := range symbols {
		if _, ok := l.pendingSet[s]; ok {
			continue
		}
		if _, ok := l.subscribedSet[s]; ok {
			continue
		}
		l.pendingSet[s] = struct{}{}
		back = append(back, s)
	}
	l.pending = append(back, l.pending...)
}

// Unmark undoes MarkSubscribed or Reconcile for symbols no session streams
// any more. They go back to the front of the pending set in order. Symbols
// that are not subscribed are ignored.
func (l *Ledger) Unmark(symbols []model.Symbol) {
	l.mu.Lock()
	defer l.mu.Unlock()

	back := make([]model.Symbol, 0, len(symbols))
	for _, s := range symbols {
		if _, ok := l.subscribedSet[s]; !ok {
			continue
		}
		delete(l.subscribedSet, s)
		l.pendingSet[s] = struct{}{}
		back = append(back, s)
	}
	if len(back) == 0 {
		return
	}
	l.pending = append(back, l.pending...)

	kept := l.subscribed[:0]
	for _, s := range l.subscribed {
		if _, ok := l.subscribedSet[s]; ok {
			kept = append(kept, s)
		}
	}
	l.subscribed = kept
}

// Snapshot captures the pending set so it can be restored if a worker dies
// before reporting readiness.
func (l *Ledger) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	return Snapshot{pending: append([]model.Symbol(nil), l.pending...)}
}

// Restore resets the pending set to snap. Every symbol in snap is removed
// from the subscribed set, so claims made after the snapshot are undone.
func (l *Ledger) Restore(snap Snapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.pending = append([]model.Symbol(nil), snap.pending...)
	l.pendingSet = make(map[model.Symbol]struct{}, len(snap.pending))
	for _, s := range snap.pending {
		l.pendingSet[s] = struct{}{}
		delete(l.subscribedSet, s)
	}

	kept := l.subscribed[:0]
	for _, s := range l.subscribed {
		if _, ok := l.subscribedSet[s]; ok {
			kept = append(kept, s)
		}
	}
	l.subscribed = kept
}

// RemainingCount returns the number of pending symbols. It is a snapshot
// for progress checks; Claim is the only authority on what is available.
func (l *Ledger) RemainingCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

// SubscribedCount returns the number of subscribed symbols.
func (l *Ledger) SubscribedCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.subscribed)
}

// Pending returns a copy of the pending symbols in claim order.
func (l *Ledger) Pending() []model.Symbol {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]model.Symbol(nil), l.pending...)
}

// Subscribed returns a copy of the subscribed symbols in subscription order.
func (l *Ledger) Subscribed() []model.Symbol {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]model.Symbol(nil), l.subscribed...)
}

// Universe returns a copy of the full universe.
func (l *Ledger) Universe() []model.Symbol {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]model.Symbol(nil), l.universe...)
}

// markLocked appends s to the subscribed set (caller must hold mu).
func (l *Ledger) markLocked(s model.Symbol) {
	if _, ok := l.subscribedSet[s]; ok {
		return
	}
	l.subscribedSet[s] = struct{}{}
	l.subscribed = append(l.subscribed, s)
}

// compactLocked drops pending entries no longer in pendingSet (caller must hold mu).
func (l *Ledger) compactLocked() {
	kept := l.pending[:0]
	for _, s := range l.pending {
		if _, ok := l.pendingSet[s]; ok {
			kept = append(kept, s)
		}
	}
	l.pending = kept
}
