package publish

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/rickgao/fulltick/internal/model"
)

// NATSPublisher publishes each tick on <prefix>.<market>.<code>.
type NATSPublisher struct {
	nc     *nats.Conn
	prefix string
	owned  bool
	logger *slog.Logger
}

// NewNATSPublisher connects to url. The connection reconnects forever.
func NewNATSPublisher(url, prefix, name string, logger *slog.Logger) (*NATSPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("sink", "nats")

	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}

	p := NewNATSPublisherFromConn(nc, prefix, logger)
	p.owned = true
	return p, nil
}

// NewNATSPublisherFromConn publishes over an existing connection, which
// Close leaves open.
func NewNATSPublisherFromConn(nc *nats.Conn, prefix string, logger *slog.Logger) *NATSPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSPublisher{nc: nc, prefix: prefix, logger: logger}
}

// Subject returns the subject a symbol is published on.
func (p *NATSPublisher) Subject(s model.Symbol) string {
	return p.prefix + "." + subjectToken(string(s.Market)) + "." + subjectToken(s.Code)
}

// HandleTick publishes the tick.
func (p *NATSPublisher) HandleTick(_ context.Context, tick model.Tick) error {
	payload, err := Encode(tick)
	if err != nil {
		return fmt.Errorf("encode tick: %w", err)
	}
	if err := p.nc.Publish(p.Subject(tick.Symbol), payload); err != nil {
		return fmt.Errorf("nats publish %s: %w", tick.Symbol, err)
	}
	return nil
}

// Close drains the connection if the publisher opened it.
func (p *NATSPublisher) Close() error {
	if !p.owned {
		return p.nc.Flush()
	}
	return p.nc.Drain()
}
