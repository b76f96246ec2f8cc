package publish

import (
	"encoding/json"
	"strings"

	"github.com/rickgao/fulltick/internal/model"
)

// Payload is the wire form of a tick on every message system.
type Payload struct {
	Symbol     string `json:"symbol"`
	Price      string `json:"price"`
	Volume     int64  `json:"volume"`
	Turnover   string `json:"turnover"`
	Direction  string `json:"direction,omitempty"`
	Sequence   int64  `json:"sequence"`
	Type       string `json:"type,omitempty"`
	Time       int64  `json:"time"`       // Exchange time, Unix ms
	LocalTime  int64  `json:"local_time"` // Exchange time on the local clock, Unix ms
	ReceivedAt int64  `json:"received_at"`
	Endpoint   string `json:"endpoint"`
}

// Encode renders a tick as a JSON Payload.
func Encode(tick model.Tick) ([]byte, error) {
	p := Payload{
		Symbol:    tick.Symbol.String(),
		Price:     tick.Price.String(),
		Volume:    tick.Volume,
		Turnover:  tick.Turnover.String(),
		Direction: tick.Direction,
		Sequence:  tick.Sequence,
		Type:      tick.Type,
		Endpoint:  tick.Endpoint.String(),
	}
	if !tick.Time.IsZero() {
		p.Time = tick.Time.UnixMilli()
	}
	if !tick.LocalTime.IsZero() {
		p.LocalTime = tick.LocalTime.UnixMilli()
	}
	if !tick.ReceivedAt.IsZero() {
		p.ReceivedAt = tick.ReceivedAt.UnixMilli()
	}
	return json.Marshal(p)
}

// subjectToken makes a symbol code safe as a single NATS subject token.
func subjectToken(s string) string {
	return strings.NewReplacer(".", "_", " ", "_", "*", "_", ">", "_").Replace(s)
}
