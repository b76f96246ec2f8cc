package config

import (
	"errors"
	"fmt"

	"github.com/rickgao/fulltick/internal/model"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if c.Gateway.Host == "" {
		return errors.New("gateway.host is required")
	}
	if c.Gateway.PortBegin < 1 || c.Gateway.PortBegin > 65535 {
		return fmt.Errorf("gateway.port_begin must be between 1 and 65535, got %d", c.Gateway.PortBegin)
	}
	if c.Gateway.PortCount < 1 {
		return errors.New("gateway.port_count must be >= 1")
	}
	if last := c.Gateway.PortBegin + c.Gateway.PortCount - 1; last > 65535 {
		return fmt.Errorf("gateway.port_count runs past port 65535 (last port %d)", last)
	}
	if c.Gateway.PortsPerWorker < 1 {
		return errors.New("gateway.ports_per_worker must be >= 1")
	}

	if c.Subscription.BatchSize < 1 {
		return errors.New("subscription.batch_size must be >= 1")
	}
	if c.Subscription.MaxSymbols < 0 {
		return errors.New("subscription.max_symbols must be >= 0")
	}
	if c.Subscription.TickWeight < 1 {
		return errors.New("subscription.tick_weight must be >= 1")
	}
	if _, err := c.Universe(); err != nil {
		return fmt.Errorf("subscription.symbols: %w", err)
	}

	if c.Retry.MaxAttempts < 0 {
		return errors.New("retry.max_attempts must be >= 0")
	}

	if c.Coordinator.TimeSyncSamples < 1 {
		return errors.New("coordinator.time_sync_samples must be >= 1")
	}
	if c.Coordinator.ReadyTimeout < 0 {
		return errors.New("coordinator.ready_timeout must be >= 0")
	}

	if c.Aggregator.BufferSize < 1 {
		return errors.New("aggregator.buffer_size must be >= 1")
	}
	if c.Aggregator.MaxBufferSize < 0 {
		return errors.New("aggregator.max_buffer_size must be >= 0")
	}

	if c.Sinks.Timescale.Enabled {
		if err := c.Sinks.Timescale.Database.validate("sinks.timescale.database"); err != nil {
			return err
		}
		if c.Sinks.Timescale.Writer.BatchSize < 1 {
			return errors.New("sinks.timescale.writer.batch_size must be >= 1")
		}
	}
	if c.Sinks.Kafka.Enabled && len(c.Sinks.Kafka.Brokers) == 0 {
		return errors.New("sinks.kafka.brokers is required")
	}

	if c.QuotaPoller.Enabled {
		if c.QuotaPoller.Interval <= 0 {
			return errors.New("quota_poller.interval must be > 0")
		}
		if c.QuotaPoller.Concurrency < 1 {
			return errors.New("quota_poller.concurrency must be >= 1")
		}
	}

	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}

	switch c.Logging.Format {
	case "production", "development":
	default:
		return fmt.Errorf("logging.format must be production or development, got %q", c.Logging.Format)
	}

	return nil
}

// Universe parses subscription.symbols. A nil result means discover.
func (c *Config) Universe() ([]model.Symbol, error) {
	if len(c.Subscription.Symbols) == 0 {
		return nil, nil
	}
	out := make([]model.Symbol, 0, len(c.Subscription.Symbols))
	for _, s := range c.Subscription.Symbols {
		sym, err := model.ParseSymbol(s)
		if err != nil {
			return nil, err
		}
		out = append(out, sym)
	}
	return out, nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
