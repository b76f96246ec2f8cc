package config

import "time"

// Config is the root configuration for a fulltick instance.
type Config struct {
	Instance     InstanceConfig     `yaml:"instance"`
	Gateway      GatewayConfig      `yaml:"gateway"`
	Subscription SubscriptionConfig `yaml:"subscription"`
	Retry        RetryConfig        `yaml:"retry"`
	Coordinator  CoordinatorConfig  `yaml:"coordinator"`
	Aggregator   AggregatorConfig   `yaml:"aggregator"`
	Sinks        SinksConfig        `yaml:"sinks"`
	QuotaPoller  QuotaPollerConfig  `yaml:"quota_poller"`
	Metrics      MetricsConfig      `yaml:"metrics"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// InstanceConfig identifies this subscriber.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// GatewayConfig locates the gateway processes.
type GatewayConfig struct {
	Host           string        `yaml:"host"`
	PortBegin      int           `yaml:"port_begin"`
	PortCount      int           `yaml:"port_count"`       // Endpoint budget
	PortsPerWorker int           `yaml:"ports_per_worker"` // Endpoints per worker unit
	DialTimeout    time.Duration `yaml:"dial_timeout"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	PingInterval   time.Duration `yaml:"ping_interval"`
}

// SubscriptionConfig selects and sizes subscriptions.
type SubscriptionConfig struct {
	MaxSymbols    int      `yaml:"max_symbols"`
	Markets       []string `yaml:"markets"`
	SecurityTypes []string `yaml:"security_types"`
	BatchSize     int      `yaml:"batch_size"`
	AdaptiveBatch *bool    `yaml:"adaptive_batch"`
	TickWeight    int      `yaml:"tick_weight"`
	Symbols       []string `yaml:"symbols"` // Explicit universe, e.g. "US.AAPL"; skips discovery
}

// RetryConfig holds upstream retry delays.
type RetryConfig struct {
	ConnectDelay   time.Duration `yaml:"connect_delay"`
	QueryDelay     time.Duration `yaml:"query_delay"`
	SubscribeDelay time.Duration `yaml:"subscribe_delay"`
	MaxAttempts    int           `yaml:"max_attempts"` // 0 = unlimited
}

// CoordinatorConfig holds startup and shutdown settings.
type CoordinatorConfig struct {
	TimeSyncSamples int           `yaml:"time_sync_samples"`
	ReadyTimeout    time.Duration `yaml:"ready_timeout"` // 0 = wait indefinitely
	JoinTimeout     time.Duration `yaml:"join_timeout"`
}

// AggregatorConfig sizes the event channel.
type AggregatorConfig struct {
	BufferSize    int           `yaml:"buffer_size"`
	MaxBufferSize int           `yaml:"max_buffer_size"` // 0 = unbounded
	PollInterval  time.Duration `yaml:"poll_interval"`
}

// QuotaPollerConfig samples quota on the endpoints in use.
type QuotaPollerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Interval    time.Duration `yaml:"interval"`
	Concurrency int           `yaml:"concurrency"`
	Timeout     time.Duration `yaml:"timeout"`
}

// SinksConfig selects where aggregated ticks go.
type SinksConfig struct {
	Log       LogSinkConfig       `yaml:"log"`
	Timescale TimescaleSinkConfig `yaml:"timescale"`
	Kafka     KafkaSinkConfig     `yaml:"kafka"`
	Redis     RedisSinkConfig     `yaml:"redis"`
	NATS      NATSSinkConfig      `yaml:"nats"`
}

// LogSinkConfig logs every tick at debug level.
type LogSinkConfig struct {
	Enabled bool `yaml:"enabled"`
}

// TimescaleSinkConfig batches ticks into TimescaleDB.
type TimescaleSinkConfig struct {
	Enabled  bool         `yaml:"enabled"`
	Database DBConfig     `yaml:"database"`
	Writer   WriterConfig `yaml:"writer"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// WriterConfig holds batch writer settings.
type WriterConfig struct {
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
}

// KafkaSinkConfig publishes ticks to a Kafka topic keyed by symbol.
type KafkaSinkConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Brokers      []string      `yaml:"brokers"`
	Topic        string        `yaml:"topic"`
	BatchSize    int           `yaml:"batch_size"`
	BatchTimeout time.Duration `yaml:"batch_timeout"`
}

// RedisSinkConfig caches the latest tick per symbol and publishes each tick.
type RedisSinkConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Addr      string        `yaml:"addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	KeyPrefix string        `yaml:"key_prefix"`
	Channel   string        `yaml:"channel"`
	TTL       time.Duration `yaml:"ttl"`
}

// NATSSinkConfig publishes ticks on per-symbol subjects.
type NATSSinkConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // production (json) or development (console)
}
