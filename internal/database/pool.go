package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rickgao/fulltick/internal/config"
)

// Connect creates a connection pool and verifies it with a ping.
func Connect(ctx context.Context, cfg config.DBConfig, appName string) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(BuildConnString(cfg, appName))
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	poolCfg.MinConns = int32(cfg.MinConns)
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// Schema creates the ticks hypertable. Every statement is idempotent.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS ticks (
		symbol      TEXT        NOT NULL,
		market      TEXT        NOT NULL,
		exchange_ts BIGINT      NOT NULL,
		local_ts    BIGINT      NOT NULL,
		received_at BIGINT      NOT NULL,
		price       BIGINT      NOT NULL,
		volume      BIGINT      NOT NULL,
		turnover    BIGINT      NOT NULL,
		direction   TEXT        NOT NULL DEFAULT '',
		sequence    BIGINT      NOT NULL,
		tick_type   TEXT        NOT NULL DEFAULT '',
		endpoint    TEXT        NOT NULL,
		UNIQUE (symbol, sequence, exchange_ts)
	)`,
	`SELECT create_hypertable('ticks', by_range('exchange_ts', 86400000000), if_not_exists => TRUE)`,
}

// EnsureSchema applies Schema.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range Schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
