package publish

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rickgao/fulltick/internal/config"
	"github.com/rickgao/fulltick/internal/model"
)

// redisClient is the subset of *redis.Client the publisher needs.
type redisClient interface {
	Ping(ctx context.Context) *redis.StatusCmd
	Pipeline() redis.Pipeliner
	Close() error
}

// RedisPublisher stores the latest tick of each symbol under
// <key_prefix><symbol> and publishes every tick on one channel, in a
// single pipeline round trip.
type RedisPublisher struct {
	rdb       redisClient
	keyPrefix string
	channel   string
	ttl       time.Duration
	logger    *slog.Logger
}

// NewRedisPublisher connects to Redis and verifies it with a ping.
func NewRedisPublisher(ctx context.Context, cfg config.RedisSinkConfig, logger *slog.Logger) (*RedisPublisher, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	p := newRedisPublisher(rdb, cfg, logger)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Addr, err)
	}
	return p, nil
}

func newRedisPublisher(rdb redisClient, cfg config.RedisSinkConfig, logger *slog.Logger) *RedisPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisPublisher{
		rdb:       rdb,
		keyPrefix: cfg.KeyPrefix,
		channel:   cfg.Channel,
		ttl:       cfg.TTL,
		logger:    logger.With("sink", "redis"),
	}
}

// HandleTick updates the latest-tick key and publishes the tick.
func (p *RedisPublisher) HandleTick(ctx context.Context, tick model.Tick) error {
	payload, err := Encode(tick)
	if err != nil {
		return fmt.Errorf("encode tick: %w", err)
	}

	pipe := p.rdb.Pipeline()
	pipe.Set(ctx, p.keyPrefix+tick.Symbol.String(), payload, p.ttl)
	pipe.Publish(ctx, p.channel, payload)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline %s: %w", tick.Symbol, err)
	}
	return nil
}

// Close closes the client.
func (p *RedisPublisher) Close() error {
	return p.rdb.Close()
}
