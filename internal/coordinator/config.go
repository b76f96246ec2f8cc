package coordinator

import (
	"errors"
	"fmt"
	"time"

	"github.com/rickgao/fulltick/internal/aggregator"
	"github.com/rickgao/fulltick/internal/connection"
	"github.com/rickgao/fulltick/internal/model"
)

// Errors returned by Start.
var (
	ErrNoEndpoints   = errors.New("endpoint budget is zero")
	ErrEmptyUniverse = errors.New("symbol universe is empty")
	ErrInvalidConfig = errors.New("invalid coordinator config")
)

// Config configures the Coordinator.
type Config struct {
	// Endpoints
	Host           string
	PortBegin      int
	PortCount      int // Endpoint budget
	PortsPerWorker int // Endpoints per worker unit

	// Universe discovery
	MaxSymbols    int
	Markets       []model.Market
	SecurityTypes []model.SecurityType

	Session connection.SessionConfig

	TimeSyncSamples int
	ReadyTimeout    time.Duration // 0 = wait for readiness indefinitely
	JoinTimeout     time.Duration

	// Event channel
	BufferSize    int
	MaxBufferSize int // 0 = unbounded
	Aggregator    aggregator.Config
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Host:            "127.0.0.1",
		PortBegin:       11113,
		PortCount:       30,
		PortsPerWorker:  3,
		MaxSymbols:      3000,
		Markets:         []model.Market{model.MarketUS},
		SecurityTypes:   []model.SecurityType{model.SecurityStock},
		Session:         connection.DefaultSessionConfig(),
		TimeSyncSamples: 3,
		JoinTimeout:     10 * time.Second,
		BufferSize:      4096,
		Aggregator:      aggregator.DefaultConfig(),
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.PortCount <= 0 {
		return ErrNoEndpoints
	}
	if c.Host == "" {
		return fmt.Errorf("%w: host is required", ErrInvalidConfig)
	}
	if c.PortBegin <= 0 || c.PortBegin+c.PortCount-1 > 65535 {
		return fmt.Errorf("%w: ports %d..%d out of range", ErrInvalidConfig, c.PortBegin, c.PortBegin+c.PortCount-1)
	}
	if c.PortsPerWorker <= 0 {
		return fmt.Errorf("%w: ports per worker must be positive", ErrInvalidConfig)
	}
	if c.Session.BatchSize <= 0 {
		return fmt.Errorf("%w: batch size must be positive", ErrInvalidConfig)
	}
	if c.TimeSyncSamples <= 0 {
		return fmt.Errorf("%w: time sync samples must be positive", ErrInvalidConfig)
	}
	if c.JoinTimeout <= 0 {
		return fmt.Errorf("%w: join timeout must be positive", ErrInvalidConfig)
	}
	return nil
}

// ReferenceEndpoint is the endpoint used for discovery and time sync.
func (c Config) ReferenceEndpoint() model.Endpoint {
	return model.Endpoint{Host: c.Host, Port: c.PortBegin}
}
