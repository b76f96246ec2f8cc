package gateway

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rickgao/fulltick/internal/model"
)

// Command names.
const (
	CmdQuerySubscription = "query_subscription"
	CmdSubscribe         = "subscribe"
	CmdGlobalState       = "global_state"
	CmdStockBasicInfo    = "stock_basicinfo"
)

// Frame types.
const (
	TypeOK     = "ok"
	TypeError  = "error"
	TypeTicker = "ticker"
)

// Command is a request sent to the gateway.
type Command struct {
	ID     int64  `json:"id"`
	Cmd    string `json:"cmd"`
	Params any    `json:"params,omitempty"`
}

// Response is either a command response (ID set) or a push frame.
type Response struct {
	ID   int64           `json:"id,omitempty"`
	Type string          `json:"type"`
	Msg  json.RawMessage `json:"msg"`
}

// ErrorMsg is the message content for an "error" response.
type ErrorMsg struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// QuerySubscriptionParams are parameters for query_subscription.
type QuerySubscriptionParams struct {
	IsAllConn bool `json:"is_all_conn"`
}

// SubscriptionWire is the message content of a query_subscription response.
type SubscriptionWire struct {
	SubList   map[model.SubType][]model.Symbol `json:"sub_list"`
	Remain    int                              `json:"remain"`
	TotalUsed int                              `json:"total_used"`
}

// SubscribeParams are parameters for subscribe.
type SubscribeParams struct {
	Codes    []model.Symbol  `json:"codes"`
	SubTypes []model.SubType `json:"sub_types"`
}

// GlobalStateWire is the message content of a global_state response.
type GlobalStateWire struct {
	Timestamp int64  `json:"timestamp"` // Unix seconds
	MarketUS  string `json:"market_us"`
	MarketHK  string `json:"market_hk"`
}

// StockBasicInfoParams are parameters for stock_basicinfo.
type StockBasicInfoParams struct {
	Market    model.Market       `json:"market"`
	StockType model.SecurityType `json:"stock_type"`
}

// StockBasicInfoWire is the message content of a stock_basicinfo response.
type StockBasicInfoWire struct {
	Codes []model.Symbol `json:"codes"`
}

// TickerWire is the message content of a ticker push.
type TickerWire struct {
	Code            model.Symbol    `json:"code"`
	Time            int64           `json:"time"` // Unix milliseconds
	Price           decimal.Decimal `json:"price"`
	Volume          int64           `json:"volume"`
	Turnover        decimal.Decimal `json:"turnover"`
	TickerDirection string          `json:"ticker_direction"`
	Sequence        int64           `json:"sequence"`
	Type            string          `json:"type"`
}

// ToTick converts the wire form to a model.Tick.
func (w TickerWire) ToTick(ep model.Endpoint, receivedAt time.Time) model.Tick {
	var ts time.Time
	if w.Time > 0 {
		ts = time.UnixMilli(w.Time)
	}
	return model.Tick{
		Symbol:     w.Code,
		Time:       ts,
		LocalTime:  ts,
		Price:      w.Price,
		Volume:     w.Volume,
		Turnover:   w.Turnover,
		Direction:  w.TickerDirection,
		Sequence:   w.Sequence,
		Type:       w.Type,
		Endpoint:   ep,
		ReceivedAt: receivedAt,
	}
}
