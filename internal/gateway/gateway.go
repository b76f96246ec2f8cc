package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/rickgao/fulltick/internal/model"
)

// Errors
var (
	ErrNotConnected  = errors.New("not connected")
	ErrTimeout       = errors.New("request timeout")
	ErrAlreadyClosed = errors.New("already closed")
)

// Dialer opens connections to gateway endpoints.
type Dialer interface {
	Dial(ctx context.Context, ep model.Endpoint) (Conn, error)
}

// DialerFunc is a function adapter for Dialer.
type DialerFunc func(ctx context.Context, ep model.Endpoint) (Conn, error)

func (f DialerFunc) Dial(ctx context.Context, ep model.Endpoint) (Conn, error) {
	return f(ctx, ep)
}

// TickHandler receives decoded ticks pushed by a connection.
type TickHandler func(model.Tick)

// Conn is one open connection to a gateway process.
type Conn interface {
	// QuerySubscriptions returns the symbols subscribed on this connection's
	// account per subscription type, and the remaining quota.
	QuerySubscriptions(ctx context.Context) (SubscriptionState, error)

	// Subscribe adds symbols for the given subscription type.
	Subscribe(ctx context.Context, symbols []model.Symbol, subType model.SubType) error

	// GlobalState returns the gateway's clock and market state.
	GlobalState(ctx context.Context) (GlobalState, error)

	// StockBasicInfo lists the symbols of one market and security type.
	StockBasicInfo(ctx context.Context, market model.Market, secType model.SecurityType) ([]model.Symbol, error)

	// OnTick registers the push callback. Must be called before Subscribe.
	OnTick(h TickHandler)

	// Close closes the connection. When Close returns no further callbacks
	// are invoked.
	Close() error
}

// SubscriptionState is the reply to QuerySubscriptions.
type SubscriptionState struct {
	Subscriptions map[model.SubType][]model.Symbol
	Remaining     int // Quota left for this account
	Used          int // Quota consumed by this account
}

// Active returns the symbols subscribed for subType.
func (s SubscriptionState) Active(subType model.SubType) []model.Symbol {
	return s.Subscriptions[subType]
}

// GlobalState is the reply to GlobalState.
type GlobalState struct {
	ServerTime time.Time
	MarketUS   string
	MarketHK   string
}
