package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/puzpuzpuz/xsync/v4"

	"github.com/rickgao/fulltick/internal/model"
)

// ClientConfig configures websocket gateway connections.
type ClientConfig struct {
	Path           string        // URL path served by the gateway (default "/")
	DialTimeout    time.Duration // Websocket handshake timeout
	RequestTimeout time.Duration // Max wait for a command response
	WriteTimeout   time.Duration // Write deadline for sends
	PingInterval   time.Duration // Keepalive ping interval (0 disables)
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Path:           "/",
		DialTimeout:    10 * time.Second,
		RequestTimeout: 10 * time.Second,
		WriteTimeout:   5 * time.Second,
		PingInterval:   30 * time.Second,
	}
}

// RequestError is an "error" response returned by the gateway.
type RequestError struct {
	Cmd     string
	Code    string
	Message string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("gateway %s failed: %s: %s", e.Cmd, e.Code, e.Message)
}

// WSDialer dials gateways over websocket.
type WSDialer struct {
	cfg    ClientConfig
	logger *slog.Logger
}

// NewDialer creates a websocket Dialer.
func NewDialer(cfg ClientConfig, logger *slog.Logger) *WSDialer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Path == "" {
		cfg.Path = "/"
	}
	return &WSDialer{cfg: cfg, logger: logger}
}

// Dial opens a websocket connection to ep.
func (d *WSDialer) Dial(ctx context.Context, ep model.Endpoint) (Conn, error) {
	u := url.URL{Scheme: "ws", Host: ep.Addr(), Path: d.cfg.Path}

	dialer := websocket.Dialer{HandshakeTimeout: d.cfg.DialTimeout}
	ws, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", ep, err)
	}

	c := &wsConn{
		cfg:      d.cfg,
		ep:       ep,
		logger:   d.logger.With("endpoint", ep.String()),
		conn:     ws,
		pending:  xsync.NewMap[int64, chan Response](),
		done:     make(chan struct{}),
		readDone: make(chan struct{}),
	}

	go c.readLoop()
	if c.cfg.PingInterval > 0 {
		go c.heartbeatLoop()
	}

	c.logger.Debug("gateway connected")
	return c, nil
}

// wsConn implements Conn over one websocket.
type wsConn struct {
	cfg    ClientConfig
	ep     model.Endpoint
	logger *slog.Logger

	conn *websocket.Conn

	// Write serialization
	writeMu sync.Mutex

	// Command/response correlation
	pending *xsync.Map[int64, chan Response]
	cmdID   atomic.Int64

	handler atomic.Pointer[TickHandler]

	done      chan struct{}
	readDone  chan struct{}
	closeOnce sync.Once
}

func (c *wsConn) OnTick(h TickHandler) {
	c.handler.Store(&h)
}

func (c *wsConn) QuerySubscriptions(ctx context.Context) (SubscriptionState, error) {
	var wire SubscriptionWire
	if err := c.request(ctx, CmdQuerySubscription, QuerySubscriptionParams{IsAllConn: true}, &wire); err != nil {
		return SubscriptionState{}, err
	}
	if wire.SubList == nil {
		wire.SubList = map[model.SubType][]model.Symbol{}
	}
	return SubscriptionState{
		Subscriptions: wire.SubList,
		Remaining:     wire.Remain,
		Used:          wire.TotalUsed,
	}, nil
}

func (c *wsConn) Subscribe(ctx context.Context, symbols []model.Symbol, subType model.SubType) error {
	params := SubscribeParams{Codes: symbols, SubTypes: []model.SubType{subType}}
	return c.request(ctx, CmdSubscribe, params, nil)
}

func (c *wsConn) GlobalState(ctx context.Context) (GlobalState, error) {
	var wire GlobalStateWire
	if err := c.request(ctx, CmdGlobalState, nil, &wire); err != nil {
		return GlobalState{}, err
	}
	return GlobalState{
		ServerTime: time.Unix(wire.Timestamp, 0),
		MarketUS:   wire.MarketUS,
		MarketHK:   wire.MarketHK,
	}, nil
}

func (c *wsConn) StockBasicInfo(ctx context.Context, market model.Market, secType model.SecurityType) ([]model.Symbol, error) {
	var wire StockBasicInfoWire
	params := StockBasicInfoParams{Market: market, StockType: secType}
	if err := c.request(ctx, CmdStockBasicInfo, params, &wire); err != nil {
		return nil, err
	}
	return wire.Codes, nil
}

// Close closes the websocket and waits for the read loop, so no tick
// callback runs after Close returns.
func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)

		c.writeMu.Lock()
		if werr := c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		); werr != nil {
			c.logger.Debug("gateway close frame not sent", "error", werr)
		}
		c.writeMu.Unlock()

		err = c.conn.Close()
		<-c.readDone
		c.logger.Debug("gateway connection closed")
	})
	return err
}

// request sends a command and waits for its response. out may be nil.
func (c *wsConn) request(ctx context.Context, cmd string, params, out any) error {
	select {
	case <-c.readDone:
		return ErrNotConnected
	default:
	}

	id := c.cmdID.Add(1)
	respCh := make(chan Response, 1)
	c.pending.Store(id, respCh)
	defer c.pending.Delete(id)

	data, err := json.Marshal(Command{ID: id, Cmd: cmd, Params: params})
	if err != nil {
		return fmt.Errorf("marshal %s: %w", cmd, err)
	}
	if err := c.send(data); err != nil {
		return fmt.Errorf("send %s: %w", cmd, err)
	}

	timer := time.NewTimer(c.cfg.RequestTimeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrTimeout
	case <-c.readDone:
		return ErrNotConnected
	case resp := <-respCh:
		if resp.Type == TypeError {
			var errMsg ErrorMsg
			if err := json.Unmarshal(resp.Msg, &errMsg); err != nil {
				c.logger.Debug("malformed error frame", "cmd", cmd, "error", err)
				errMsg = ErrorMsg{Message: string(resp.Msg)}
			}
			return &RequestError{Cmd: cmd, Code: errMsg.Code, Message: errMsg.Message}
		}
		if out == nil || len(resp.Msg) == 0 {
			return nil
		}
		if err := json.Unmarshal(resp.Msg, out); err != nil {
			return fmt.Errorf("decode %s response: %w", cmd, err)
		}
		return nil
	}
}

func (c *wsConn) send(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// readLoop routes command responses to their waiters and ticks to the handler.
func (c *wsConn) readLoop() {
	defer close(c.readDone)

	for {
		_, data, err := c.conn.ReadMessage()
		receivedAt := time.Now()

		if err != nil {
			select {
			case <-c.done:
			default:
				c.logger.Warn("gateway read failed", "error", err)
			}
			return
		}

		var resp Response
		if err := json.Unmarshal(data, &resp); err != nil {
			c.logger.Warn("malformed gateway frame", "error", err)
			continue
		}

		if resp.ID != 0 {
			if ch, ok := c.pending.LoadAndDelete(resp.ID); ok {
				select {
				case ch <- resp:
				default:
				}
			}
			continue
		}

		if resp.Type == TypeTicker {
			c.dispatchTicks(resp.Msg, receivedAt)
		}
	}
}

// dispatchTicks decodes a ticker push (one record or an array) and invokes
// the handler for each record.
func (c *wsConn) dispatchTicks(msg json.RawMessage, receivedAt time.Time) {
	h := c.handler.Load()
	if h == nil || *h == nil {
		return
	}

	var records []TickerWire
	if len(msg) > 0 && msg[0] == '[' {
		if err := json.Unmarshal(msg, &records); err != nil {
			c.logger.Warn("malformed ticker push", "error", err)
			return
		}
	} else {
		var one TickerWire
		if err := json.Unmarshal(msg, &one); err != nil {
			c.logger.Warn("malformed ticker push", "error", err)
			return
		}
		records = []TickerWire{one}
	}

	for _, r := range records {
		(*h)(r.ToTick(c.ep, receivedAt))
	}
}

// heartbeatLoop keeps the connection alive.
func (c *wsConn) heartbeatLoop() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-c.readDone:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.conn.WriteControl(websocket.PingMessage, []byte("keepalive"), time.Now().Add(c.cfg.WriteTimeout))
			c.writeMu.Unlock()
			if err != nil {
				c.logger.Debug("failed to send ping", "error", err)
			}
		}
	}
}
