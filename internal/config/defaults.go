package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultInstanceID      = "fulltick"
	DefaultGatewayHost     = "127.0.0.1"
	DefaultPortBegin       = 11113
	DefaultPortCount       = 30
	DefaultPortsPerWorker  = 3
	DefaultDialTimeout     = 10 * time.Second
	DefaultRequestTimeout  = 10 * time.Second
	DefaultWriteTimeout    = 5 * time.Second
	DefaultPingInterval    = 30 * time.Second
	DefaultMaxSymbols      = 3000
	DefaultMarket          = "US"
	DefaultSecurityType    = "STOCK"
	DefaultSubBatchSize    = 100
	DefaultTickWeight      = 5
	DefaultConnectDelay    = 1 * time.Second
	DefaultQueryDelay      = 100 * time.Millisecond
	DefaultSubscribeDelay  = 1 * time.Second
	DefaultTimeSyncSamples = 3
	DefaultJoinTimeout     = 10 * time.Second
	DefaultEventBufferSize = 4096
	DefaultPollInterval    = 10 * time.Millisecond
	DefaultDBPort          = 5432
	DefaultDBSSLMode       = "prefer"
	DefaultMaxConns        = 10
	DefaultMinConns        = 2
	DefaultWriteBatchSize  = 1000
	DefaultFlushInterval   = 1 * time.Second
	DefaultWriteBufferSize = 10000
	DefaultKafkaTopic      = "ticks"
	DefaultKafkaBatchSize  = 100
	DefaultKafkaTimeout    = 100 * time.Millisecond
	DefaultRedisAddr       = "localhost:6379"
	DefaultRedisKeyPrefix  = "tick:"
	DefaultRedisChannel    = "ticks"
	DefaultNATSURL         = "nats://127.0.0.1:4222"
	DefaultNATSPrefix      = "ticks"
	DefaultPollerInterval    = time.Minute
	DefaultPollerConcurrency = 5
	DefaultPollerTimeout     = 10 * time.Second

	DefaultMetricsPort     = 9090
	DefaultMetricsPath     = "/metrics"
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "production"
)

func (c *Config) applyDefaults() {
	if c.Instance.ID == "" {
		c.Instance.ID = DefaultInstanceID
	}

	// Gateway defaults
	if c.Gateway.Host == "" {
		c.Gateway.Host = DefaultGatewayHost
	}
	if c.Gateway.PortBegin == 0 {
		c.Gateway.PortBegin = DefaultPortBegin
	}
	if c.Gateway.PortCount == 0 {
		c.Gateway.PortCount = DefaultPortCount
	}
	if c.Gateway.PortsPerWorker == 0 {
		c.Gateway.PortsPerWorker = DefaultPortsPerWorker
	}
	if c.Gateway.DialTimeout == 0 {
		c.Gateway.DialTimeout = DefaultDialTimeout
	}
	if c.Gateway.RequestTimeout == 0 {
		c.Gateway.RequestTimeout = DefaultRequestTimeout
	}
	if c.Gateway.WriteTimeout == 0 {
		c.Gateway.WriteTimeout = DefaultWriteTimeout
	}
	if c.Gateway.PingInterval == 0 {
		c.Gateway.PingInterval = DefaultPingInterval
	}

	// Subscription defaults
	if c.Subscription.MaxSymbols == 0 {
		c.Subscription.MaxSymbols = DefaultMaxSymbols
	}
	if len(c.Subscription.Markets) == 0 {
		c.Subscription.Markets = []string{DefaultMarket}
	}
	if len(c.Subscription.SecurityTypes) == 0 {
		c.Subscription.SecurityTypes = []string{DefaultSecurityType}
	}
	if c.Subscription.BatchSize == 0 {
		c.Subscription.BatchSize = DefaultSubBatchSize
	}
	if c.Subscription.AdaptiveBatch == nil {
		adaptive := true
		c.Subscription.AdaptiveBatch = &adaptive
	}
	if c.Subscription.TickWeight == 0 {
		c.Subscription.TickWeight = DefaultTickWeight
	}

	// Retry defaults
	if c.Retry.ConnectDelay == 0 {
		c.Retry.ConnectDelay = DefaultConnectDelay
	}
	if c.Retry.QueryDelay == 0 {
		c.Retry.QueryDelay = DefaultQueryDelay
	}
	if c.Retry.SubscribeDelay == 0 {
		c.Retry.SubscribeDelay = DefaultSubscribeDelay
	}

	// Coordinator defaults
	if c.Coordinator.TimeSyncSamples == 0 {
		c.Coordinator.TimeSyncSamples = DefaultTimeSyncSamples
	}
	if c.Coordinator.JoinTimeout == 0 {
		c.Coordinator.JoinTimeout = DefaultJoinTimeout
	}

	// Aggregator defaults
	if c.Aggregator.BufferSize == 0 {
		c.Aggregator.BufferSize = DefaultEventBufferSize
	}
	if c.Aggregator.PollInterval == 0 {
		c.Aggregator.PollInterval = DefaultPollInterval
	}

	// Sink defaults
	applyDBDefaults(&c.Sinks.Timescale.Database)
	if c.Sinks.Timescale.Writer.BatchSize == 0 {
		c.Sinks.Timescale.Writer.BatchSize = DefaultWriteBatchSize
	}
	if c.Sinks.Timescale.Writer.FlushInterval == 0 {
		c.Sinks.Timescale.Writer.FlushInterval = DefaultFlushInterval
	}
	if c.Sinks.Timescale.Writer.BufferSize == 0 {
		c.Sinks.Timescale.Writer.BufferSize = DefaultWriteBufferSize
	}
	if c.Sinks.Kafka.Topic == "" {
		c.Sinks.Kafka.Topic = DefaultKafkaTopic
	}
	if c.Sinks.Kafka.BatchSize == 0 {
		c.Sinks.Kafka.BatchSize = DefaultKafkaBatchSize
	}
	if c.Sinks.Kafka.BatchTimeout == 0 {
		c.Sinks.Kafka.BatchTimeout = DefaultKafkaTimeout
	}
	if c.Sinks.Redis.Addr == "" {
		c.Sinks.Redis.Addr = DefaultRedisAddr
	}
	if c.Sinks.Redis.KeyPrefix == "" {
		c.Sinks.Redis.KeyPrefix = DefaultRedisKeyPrefix
	}
	if c.Sinks.Redis.Channel == "" {
		c.Sinks.Redis.Channel = DefaultRedisChannel
	}
	if c.Sinks.NATS.URL == "" {
		c.Sinks.NATS.URL = DefaultNATSURL
	}
	if c.Sinks.NATS.SubjectPrefix == "" {
		c.Sinks.NATS.SubjectPrefix = DefaultNATSPrefix
	}

	// Quota poller defaults
	if c.QuotaPoller.Interval == 0 {
		c.QuotaPoller.Interval = DefaultPollerInterval
	}
	if c.QuotaPoller.Concurrency == 0 {
		c.QuotaPoller.Concurrency = DefaultPollerConcurrency
	}
	if c.QuotaPoller.Timeout == 0 {
		c.QuotaPoller.Timeout = DefaultPollerTimeout
	}

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}

	// Logging defaults
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
