package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/rickgao/fulltick/internal/config"
	"github.com/rickgao/fulltick/internal/coordinator"
	"github.com/rickgao/fulltick/internal/gateway"
	"github.com/rickgao/fulltick/internal/logging"
	"github.com/rickgao/fulltick/internal/metrics"
	"github.com/rickgao/fulltick/internal/model"
	"github.com/rickgao/fulltick/internal/poller"
	"github.com/rickgao/fulltick/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/fulltick.example.yaml", "path to config file")
	envFile := flag.String("env", ".env", "optional dotenv file")
	flag.Parse()

	if err := config.LoadEnv(*envFile); err != nil {
		slog.Error("failed to load env file", "file", *envFile, "error", err)
		os.Exit(1)
	}

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		slog.Error("failed to load config", "path", *configPath, "error", err)
		os.Exit(1)
	}

	logger, syncLogs, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		slog.Error("failed to build logger", "error", err)
		os.Exit(1)
	}
	defer syncLogs()
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("fulltick exited", "error", err)
		syncLogs()
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	logger.Info("starting fulltick",
		"version", version.Version,
		"commit", version.Commit,
		"instance_id", cfg.Instance.ID,
		"gateway", fmt.Sprintf("%s:%d+%d", cfg.Gateway.Host, cfg.Gateway.PortBegin, cfg.Gateway.PortCount),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	sinks, err := buildSinks(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("build sinks: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := sinks.Close(shutdownCtx); err != nil {
			logger.Error("sink shutdown", "error", err)
		}
	}()

	dialer := gateway.NewDialer(cfg.ToClientConfig(), logger)
	coord := coordinator.New(cfg.ToCoordinatorConfig(), dialer,
		coordinator.WithLogger(logger),
		coordinator.WithMetrics(m),
	)
	coord.SetHandler(sinks.Handler())

	universe, err := cfg.Universe()
	if err != nil {
		return err
	}
	if universe != nil {
		coord.SetUniverse(universe)
		logger.Info("using configured universe", "symbols", len(universe))
	}

	// Health server starts first so startup progress is observable.
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler:           newHTTPHandler(coord, sinks, reg, cfg.Metrics.Path, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("starting http server", "port", cfg.Metrics.Port, "metrics_path", cfg.Metrics.Path)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	if err := coord.Start(ctx, true); err != nil {
		return fmt.Errorf("start pipeline: %w", err)
	}

	stats := coord.Stats()
	logger.Info("fulltick running",
		"subscribed", stats.Subscribed,
		"pending", stats.Pending,
		"units", len(stats.Units),
		"timestamp_offset_s", int64(stats.TimestampOffset),
	)

	if cfg.QuotaPoller.Enabled {
		qp := poller.New(cfg.ToPollerConfig(), dialer, unitEndpoints(coord), nil, logger, m)
		if err := qp.Start(ctx); err != nil {
			return fmt.Errorf("start quota poller: %w", err)
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), cfg.QuotaPoller.Timeout)
			defer cancel()
			qp.Stop(stopCtx)
		}()
	}

	<-ctx.Done()
	logger.Info("shutting down...")

	if err := coord.Close(); err != nil {
		logger.Error("pipeline shutdown", "error", err)
	}
	logger.Info("fulltick stopped")
	return nil
}

// unitEndpoints lists the endpoints of every running unit.
func unitEndpoints(coord *coordinator.Coordinator) poller.EndpointSource {
	return poller.EndpointSourceFunc(func() []model.Endpoint {
		var eps []model.Endpoint
		for _, u := range coord.Units() {
			eps = append(eps, u.Endpoints()...)
		}
		return eps
	})
}
