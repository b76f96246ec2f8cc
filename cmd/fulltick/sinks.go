package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rickgao/fulltick/internal/aggregator"
	"github.com/rickgao/fulltick/internal/config"
	"github.com/rickgao/fulltick/internal/database"
	"github.com/rickgao/fulltick/internal/publish"
	"github.com/rickgao/fulltick/internal/version"
	"github.com/rickgao/fulltick/internal/writer"
)

// sinkSet owns every configured tick destination.
type sinkSet struct {
	handlers []aggregator.Handler
	names    []string

	pool   *pgxpool.Pool
	writer *writer.TickWriter
	closer []func() error
}

func buildSinks(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *sinkSet, err error) {
	s := &sinkSet{}
	defer func() {
		if err != nil {
			s.Close(context.Background())
		}
	}()

	sc := cfg.Sinks
	if sc.Log.Enabled {
		s.add("log", aggregator.LogHandler(logger))
	}

	if sc.Timescale.Enabled {
		db := sc.Timescale.Database
		logger.Info("connecting to database", "host", db.Host, "port", db.Port, "database", db.Name)

		s.pool, err = database.Connect(ctx, db, cfg.Instance.ID)
		if err != nil {
			return nil, err
		}
		if err := database.EnsureSchema(ctx, s.pool); err != nil {
			return nil, err
		}
		s.writer = writer.NewTickWriter(cfg.ToWriterConfig(), s.pool, logger)
		if err := s.writer.Start(ctx); err != nil {
			return nil, fmt.Errorf("start tick writer: %w", err)
		}
		s.add("timescale", s.writer)
	}

	if sc.Kafka.Enabled {
		p := publish.NewKafkaPublisher(sc.Kafka, logger)
		s.closer = append(s.closer, p.Close)
		s.add("kafka", p)
	}

	if sc.Redis.Enabled {
		p, err := publish.NewRedisPublisher(ctx, sc.Redis, logger)
		if err != nil {
			return nil, err
		}
		s.closer = append(s.closer, p.Close)
		s.add("redis", p)
	}

	if sc.NATS.Enabled {
		p, err := publish.NewNATSPublisher(sc.NATS.URL, sc.NATS.SubjectPrefix, version.ClientName(cfg.Instance.ID), logger)
		if err != nil {
			return nil, err
		}
		s.closer = append(s.closer, p.Close)
		s.add("nats", p)
	}

	if len(s.handlers) == 0 {
		s.add("log", aggregator.LogHandler(logger))
	}
	logger.Info("sinks configured", "sinks", s.names)
	return s, nil
}

func (s *sinkSet) add(name string, h aggregator.Handler) {
	s.names = append(s.names, name)
	s.handlers = append(s.handlers, h)
}

// Handler fans each tick out to every sink.
func (s *sinkSet) Handler() aggregator.Handler {
	return aggregator.Multi(s.handlers...)
}

// Ping checks the database when the timescale sink is enabled.
func (s *sinkSet) Ping(ctx context.Context) error {
	if s.pool == nil {
		return nil
	}
	return s.pool.Ping(ctx)
}

// Close flushes the writer, closes publishers, then closes the pool.
func (s *sinkSet) Close(ctx context.Context) error {
	var errs []error
	if s.writer != nil {
		if err := s.writer.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop tick writer: %w", err))
		}
		s.writer = nil
	}
	for _, c := range s.closer {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	s.closer = nil
	if s.pool != nil {
		s.pool.Close()
		s.pool = nil
	}
	return errors.Join(errs...)
}
