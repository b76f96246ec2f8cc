package model

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// -----------------------------------------------------------------------------
// Identifiers
// -----------------------------------------------------------------------------

// Market identifies an exchange region.
type Market string

const (
	MarketHK Market = "HK"
	MarketUS Market = "US"
	MarketSH Market = "SH"
	MarketSZ Market = "SZ"
)

// SecurityType filters the universe by instrument kind.
type SecurityType string

const (
	SecurityStock   SecurityType = "STOCK"
	SecurityETF     SecurityType = "ETF"
	SecurityWarrant SecurityType = "WARRANT"
	SecurityBond    SecurityType = "BOND"
	SecurityIdx     SecurityType = "IDX"
)

// SubType is an upstream subscription type. Each active subscription consumes
// quota at the type's weight.
type SubType string

const (
	SubTicker SubType = "TICKER"
	SubQuote  SubType = "QUOTE"
)

// ErrInvalidSymbol is returned by ParseSymbol for malformed input.
var ErrInvalidSymbol = errors.New("invalid symbol")

// Symbol is one tradable security. It is comparable and used as a map key.
type Symbol struct {
	Market Market
	Code   string
}

// String renders the symbol in gateway form, e.g. "US.AAPL".
func (s Symbol) String() string {
	return string(s.Market) + "." + s.Code
}

// ParseSymbol parses "MARKET.CODE". Codes may themselves contain dots.
func ParseSymbol(s string) (Symbol, error) {
	market, code, ok := strings.Cut(s, ".")
	if !ok || market == "" || code == "" {
		return Symbol{}, fmt.Errorf("%w: %q", ErrInvalidSymbol, s)
	}
	return Symbol{Market: Market(market), Code: code}, nil
}

// MarshalText implements encoding.TextMarshaler.
func (s Symbol) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Symbol) UnmarshalText(b []byte) error {
	parsed, err := ParseSymbol(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Endpoint is one upstream gateway process.
type Endpoint struct {
	Host string
	Port int
}

// Addr returns host:port.
func (e Endpoint) Addr() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

func (e Endpoint) String() string {
	return e.Addr()
}

// EndpointRange returns n consecutive endpoints starting at basePort+offset.
func EndpointRange(host string, basePort, offset, n int) []Endpoint {
	if n < 0 {
		n = 0
	}
	eps := make([]Endpoint, n)
	for i := range eps {
		eps[i] = Endpoint{Host: host, Port: basePort + offset + i}
	}
	return eps
}

// -----------------------------------------------------------------------------
// Time
// -----------------------------------------------------------------------------

// TimestampOffset is the measured skew between the local clock and the
// upstream clock in whole seconds (local - upstream).
type TimestampOffset int64

// Adjust maps an upstream-reported time onto the local clock.
func (o TimestampOffset) Adjust(upstream time.Time) time.Time {
	if upstream.IsZero() {
		return upstream
	}
	return upstream.Add(time.Duration(o) * time.Second)
}

// Duration returns the offset as a time.Duration.
func (o TimestampOffset) Duration() time.Duration {
	return time.Duration(o) * time.Second
}

// -----------------------------------------------------------------------------
// Events
// -----------------------------------------------------------------------------

// Tick is one trade print streamed by a gateway connection.
type Tick struct {
	Symbol    Symbol
	Time      time.Time       // Upstream trade time
	LocalTime time.Time       // Time adjusted by the measured clock offset
	Price     decimal.Decimal // Trade price
	Volume    int64           // Shares/contracts
	Turnover  decimal.Decimal // Price * volume as reported upstream
	Direction string          // "BUY", "SELL" or "NEUTRAL"
	Sequence  int64           // Upstream per-symbol sequence
	Type      string          // Upstream tick type, e.g. "AUTO_MATCH"

	Endpoint   Endpoint  // Gateway the tick arrived on
	ReceivedAt time.Time // Local timestamp when the frame was read
}
