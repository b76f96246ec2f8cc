// Package gatewaytest provides an in-memory gateway for tests.
//
// A Gateway simulates a set of gateway processes. Each endpoint owns an
// account with its own quota; subscriptions persist across connections to
// the same endpoint, so a reconnecting session sees what it subscribed
// before. Failures can be injected per endpoint.
package gatewaytest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rickgao/fulltick/internal/gateway"
	"github.com/rickgao/fulltick/internal/model"
	"github.com/rickgao/fulltick/internal/quota"
)

// Injected failures.
var (
	ErrDialFailed      = errors.New("gatewaytest: dial failed")
	ErrQueryFailed     = errors.New("gatewaytest: query failed")
	ErrSubscribeFailed = errors.New("gatewaytest: subscribe failed")
	ErrQuotaExceeded   = errors.New("gatewaytest: quota exceeded")
)

type account struct {
	subscribed map[model.SubType]map[model.Symbol]struct{}
	order      map[model.SubType][]model.Symbol

	dialFailures      int
	queryFailures     int
	subscribeFailures int
	panicOnSubscribe  bool
	down              bool

	dials          int
	subscribeCalls int
	batches        []int
}

// Gateway is an in-memory set of gateway endpoints. It implements
// gateway.Dialer.
type Gateway struct {
	mu sync.Mutex

	quota  int
	weight int
	now    func() time.Time

	accounts map[model.Endpoint]*account
	universe map[model.Market]map[model.SecurityType][]model.Symbol
	conns    map[*Conn]struct{}
}

// New creates a Gateway where every endpoint has the default quota.
func New() *Gateway {
	return &Gateway{
		quota:    quota.DefaultQuota,
		weight:   quota.TickWeight,
		now:      time.Now,
		accounts: make(map[model.Endpoint]*account),
		universe: make(map[model.Market]map[model.SecurityType][]model.Symbol),
		conns:    make(map[*Conn]struct{}),
	}
}

// SetQuota sets the per-endpoint quota.
func (g *Gateway) SetQuota(q int) {
	g.mu.Lock()
	g.quota = q
	g.mu.Unlock()
}

// SetClock sets the gateway's notion of server time.
func (g *Gateway) SetClock(now func() time.Time) {
	g.mu.Lock()
	g.now = now
	g.mu.Unlock()
}

// SetUniverse sets the symbols returned by StockBasicInfo.
func (g *Gateway) SetUniverse(market model.Market, secType model.SecurityType, symbols []model.Symbol) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.universe[market] == nil {
		g.universe[market] = make(map[model.SecurityType][]model.Symbol)
	}
	g.universe[market][secType] = append([]model.Symbol(nil), symbols...)
}

// PreSubscribe marks symbols as already subscribed on ep's account.
func (g *Gateway) PreSubscribe(ep model.Endpoint, subType model.SubType, symbols ...model.Symbol) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.accountLocked(ep).add(subType, symbols)
}

// FailDials makes the next n dials to ep fail.
func (g *Gateway) FailDials(ep model.Endpoint, n int) {
	g.mu.Lock()
	g.accountLocked(ep).dialFailures = n
	g.mu.Unlock()
}

// FailQueries makes the next n QuerySubscriptions calls on ep fail.
func (g *Gateway) FailQueries(ep model.Endpoint, n int) {
	g.mu.Lock()
	g.accountLocked(ep).queryFailures = n
	g.mu.Unlock()
}

// FailSubscribes makes the next n Subscribe calls on ep fail.
func (g *Gateway) FailSubscribes(ep model.Endpoint, n int) {
	g.mu.Lock()
	g.accountLocked(ep).subscribeFailures = n
	g.mu.Unlock()
}

// PanicOnSubscribe makes Subscribe on ep panic.
func (g *Gateway) PanicOnSubscribe(ep model.Endpoint) {
	g.mu.Lock()
	g.accountLocked(ep).panicOnSubscribe = true
	g.mu.Unlock()
}

// Down makes every dial to ep fail until Up is called.
func (g *Gateway) Down(ep model.Endpoint) {
	g.mu.Lock()
	g.accountLocked(ep).down = true
	g.mu.Unlock()
}

// Up reverses Down.
func (g *Gateway) Up(ep model.Endpoint) {
	g.mu.Lock()
	g.accountLocked(ep).down = false
	g.mu.Unlock()
}

// Subscribed returns the symbols subscribed on ep for subType, in
// subscription order.
func (g *Gateway) Subscribed(ep model.Endpoint, subType model.SubType) []model.Symbol {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]model.Symbol(nil), g.accountLocked(ep).order[subType]...)
}

// AllSubscribed returns every symbol subscribed for subType on any endpoint,
// sorted.
func (g *Gateway) AllSubscribed(subType model.SubType) []model.Symbol {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []model.Symbol
	for _, acct := range g.accounts {
		out = append(out, acct.order[subType]...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// Dials returns the number of dial attempts to ep.
func (g *Gateway) Dials(ep model.Endpoint) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.accountLocked(ep).dials
}

// SubscribeCalls returns the number of Subscribe calls made on ep.
func (g *Gateway) SubscribeCalls(ep model.Endpoint) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.accountLocked(ep).subscribeCalls
}

// Batches returns the sizes of successful Subscribe calls on ep.
func (g *Gateway) Batches(ep model.Endpoint) []int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]int(nil), g.accountLocked(ep).batches...)
}

// OpenConns returns the number of connections not yet closed.
func (g *Gateway) OpenConns() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.conns)
}

// Push delivers a tick to every open connection whose account subscribes
// to tick.Symbol. It returns the number of deliveries.
func (g *Gateway) Push(tick model.Tick) int {
	g.mu.Lock()
	var targets []*Conn
	for c := range g.conns {
		if _, ok := g.accountLocked(c.ep).subscribed[model.SubTicker][tick.Symbol]; ok {
			targets = append(targets, c)
		}
	}
	g.mu.Unlock()

	delivered := 0
	for _, c := range targets {
		if c.deliver(tick) {
			delivered++
		}
	}
	return delivered
}

// Dial implements gateway.Dialer.
func (g *Gateway) Dial(ctx context.Context, ep model.Endpoint) (gateway.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	acct := g.accountLocked(ep)
	acct.dials++
	if acct.down {
		return nil, fmt.Errorf("%w: %s down", ErrDialFailed, ep)
	}
	if acct.dialFailures > 0 {
		acct.dialFailures--
		return nil, fmt.Errorf("%w: %s", ErrDialFailed, ep)
	}

	c := &Conn{g: g, ep: ep}
	g.conns[c] = struct{}{}
	return c, nil
}

func (g *Gateway) accountLocked(ep model.Endpoint) *account {
	acct, ok := g.accounts[ep]
	if !ok {
		acct = &account{
			subscribed: make(map[model.SubType]map[model.Symbol]struct{}),
			order:      make(map[model.SubType][]model.Symbol),
		}
		g.accounts[ep] = acct
	}
	return acct
}

func (a *account) used(weight int) int {
	n := 0
	for _, set := range a.subscribed {
		n += len(set)
	}
	return n * weight
}

func (a *account) add(subType model.SubType, symbols []model.Symbol) {
	set := a.subscribed[subType]
	if set == nil {
		set = make(map[model.Symbol]struct{})
		a.subscribed[subType] = set
	}
	for _, s := range symbols {
		if _, ok := set[s]; ok {
			continue
		}
		set[s] = struct{}{}
		a.order[subType] = append(a.order[subType], s)
	}
}

// Conn is one in-memory connection. It implements gateway.Conn.
type Conn struct {
	g  *Gateway
	ep model.Endpoint

	// mu is held for reading while a callback runs so Close can wait for
	// in-flight deliveries.
	mu      sync.RWMutex
	handler gateway.TickHandler
	closed  bool
}

func (c *Conn) OnTick(h gateway.TickHandler) {
	c.mu.Lock()
	c.handler = h
	c.mu.Unlock()
}

func (c *Conn) QuerySubscriptions(ctx context.Context) (gateway.SubscriptionState, error) {
	if err := c.check(ctx); err != nil {
		return gateway.SubscriptionState{}, err
	}

	c.g.mu.Lock()
	defer c.g.mu.Unlock()

	acct := c.g.accountLocked(c.ep)
	if acct.queryFailures > 0 {
		acct.queryFailures--
		return gateway.SubscriptionState{}, ErrQueryFailed
	}

	subs := make(map[model.SubType][]model.Symbol, len(acct.order))
	for st, syms := range acct.order {
		subs[st] = append([]model.Symbol(nil), syms...)
	}
	used := acct.used(c.g.weight)
	return gateway.SubscriptionState{
		Subscriptions: subs,
		Remaining:     c.g.quota - used,
		Used:          used,
	}, nil
}

func (c *Conn) Subscribe(ctx context.Context, symbols []model.Symbol, subType model.SubType) error {
	if err := c.check(ctx); err != nil {
		return err
	}

	c.g.mu.Lock()
	acct := c.g.accountLocked(c.ep)
	acct.subscribeCalls++
	if acct.panicOnSubscribe {
		c.g.mu.Unlock()
		panic(fmt.Sprintf("gatewaytest: subscribe panic on %s", c.ep))
	}
	defer c.g.mu.Unlock()

	if acct.subscribeFailures > 0 {
		acct.subscribeFailures--
		return ErrSubscribeFailed
	}

	fresh := 0
	for _, s := range symbols {
		if _, ok := acct.subscribed[subType][s]; !ok {
			fresh++
		}
	}
	if acct.used(c.g.weight)+fresh*c.g.weight > c.g.quota {
		return ErrQuotaExceeded
	}

	acct.add(subType, symbols)
	acct.batches = append(acct.batches, len(symbols))
	return nil
}

func (c *Conn) GlobalState(ctx context.Context) (gateway.GlobalState, error) {
	if err := c.check(ctx); err != nil {
		return gateway.GlobalState{}, err
	}
	c.g.mu.Lock()
	now := c.g.now()
	c.g.mu.Unlock()
	return gateway.GlobalState{ServerTime: now.Truncate(time.Second), MarketUS: "NORMAL", MarketHK: "NORMAL"}, nil
}

func (c *Conn) StockBasicInfo(ctx context.Context, market model.Market, secType model.SecurityType) ([]model.Symbol, error) {
	if err := c.check(ctx); err != nil {
		return nil, err
	}
	c.g.mu.Lock()
	defer c.g.mu.Unlock()
	return append([]model.Symbol(nil), c.g.universe[market][secType]...), nil
}

// Close waits for in-flight deliveries, then detaches the connection.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.g.mu.Lock()
	delete(c.g.conns, c)
	c.g.mu.Unlock()
	return nil
}

func (c *Conn) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return gateway.ErrNotConnected
	}
	return nil
}

func (c *Conn) deliver(tick model.Tick) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed || c.handler == nil {
		return false
	}
	tick.Endpoint = c.ep
	if tick.ReceivedAt.IsZero() {
		tick.ReceivedAt = time.Now()
	}
	c.handler(tick)
	return true
}
