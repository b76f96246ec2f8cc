package config

import (
	"github.com/rickgao/fulltick/internal/aggregator"
	"github.com/rickgao/fulltick/internal/connection"
	"github.com/rickgao/fulltick/internal/coordinator"
	"github.com/rickgao/fulltick/internal/gateway"
	"github.com/rickgao/fulltick/internal/model"
	"github.com/rickgao/fulltick/internal/poller"
	"github.com/rickgao/fulltick/internal/writer"
)

// ToCoordinatorConfig maps the file onto coordinator.Config.
func (c *Config) ToCoordinatorConfig() coordinator.Config {
	markets := make([]model.Market, len(c.Subscription.Markets))
	for i, m := range c.Subscription.Markets {
		markets[i] = model.Market(m)
	}
	secTypes := make([]model.SecurityType, len(c.Subscription.SecurityTypes))
	for i, st := range c.Subscription.SecurityTypes {
		secTypes[i] = model.SecurityType(st)
	}

	adaptive := true
	if c.Subscription.AdaptiveBatch != nil {
		adaptive = *c.Subscription.AdaptiveBatch
	}

	return coordinator.Config{
		Host:           c.Gateway.Host,
		PortBegin:      c.Gateway.PortBegin,
		PortCount:      c.Gateway.PortCount,
		PortsPerWorker: c.Gateway.PortsPerWorker,
		MaxSymbols:     c.Subscription.MaxSymbols,
		Markets:        markets,
		SecurityTypes:  secTypes,
		Session: connection.SessionConfig{
			BatchSize:  c.Subscription.BatchSize,
			Adaptive:   adaptive,
			TickWeight: c.Subscription.TickWeight,
			SubType:    model.SubTicker,
			Connect:    connection.RetryPolicy{Delay: c.Retry.ConnectDelay, MaxAttempts: c.Retry.MaxAttempts},
			Query:      connection.RetryPolicy{Delay: c.Retry.QueryDelay, MaxAttempts: c.Retry.MaxAttempts},
			Subscribe:  connection.RetryPolicy{Delay: c.Retry.SubscribeDelay, MaxAttempts: c.Retry.MaxAttempts},
		},
		TimeSyncSamples: c.Coordinator.TimeSyncSamples,
		ReadyTimeout:    c.Coordinator.ReadyTimeout,
		JoinTimeout:     c.Coordinator.JoinTimeout,
		BufferSize:      c.Aggregator.BufferSize,
		MaxBufferSize:   c.Aggregator.MaxBufferSize,
		Aggregator:      aggregator.Config{PollInterval: c.Aggregator.PollInterval},
	}
}

// ToClientConfig maps the gateway section onto the websocket client config.
func (c *Config) ToClientConfig() gateway.ClientConfig {
	cfg := gateway.DefaultClientConfig()
	cfg.DialTimeout = c.Gateway.DialTimeout
	cfg.RequestTimeout = c.Gateway.RequestTimeout
	cfg.WriteTimeout = c.Gateway.WriteTimeout
	cfg.PingInterval = c.Gateway.PingInterval
	return cfg
}

// ToWriterConfig maps the timescale writer section onto writer.WriterConfig.
func (c *Config) ToWriterConfig() writer.WriterConfig {
	w := c.Sinks.Timescale.Writer
	return writer.WriterConfig{
		BatchSize:     w.BatchSize,
		FlushInterval: w.FlushInterval,
		BufferSize:    w.BufferSize,
	}
}

// ToPollerConfig maps the quota_poller section onto poller.Config.
func (c *Config) ToPollerConfig() poller.Config {
	return poller.Config{
		Interval:    c.QuotaPoller.Interval,
		Concurrency: c.QuotaPoller.Concurrency,
		Timeout:     c.QuotaPoller.Timeout,
	}
}
