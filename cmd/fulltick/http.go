package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rickgao/fulltick/internal/coordinator"
	"github.com/rickgao/fulltick/internal/model"
	"github.com/rickgao/fulltick/internal/version"
)

// pinger reports sink connectivity for /health.
type pinger interface {
	Ping(ctx context.Context) error
}

const debugListLimit = 100

func newHTTPHandler(coord *coordinator.Coordinator, db pinger, gatherer prometheus.Gatherer, metricsPath string, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()

	mux.Handle(metricsPath, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		stats := coord.Stats()
		health := struct {
			Status     string         `json:"status"`
			Version    version.Info   `json:"version"`
			Components map[string]any `json:"components"`
		}{
			Status:     "healthy",
			Version:    version.Get(),
			Components: make(map[string]any),
		}

		health.Components["pipeline"] = map[string]any{
			"state":              stats.State,
			"subscribed":         stats.Subscribed,
			"pending":            stats.Pending,
			"units":              len(stats.Units),
			"timestamp_offset_s": int64(stats.TimestampOffset),
		}
		if coord.State() != model.SystemRunning {
			health.Status = "degraded"
		}

		if err := db.Ping(ctx); err != nil {
			health.Status = "unhealthy"
			health.Components["timescaledb"] = map[string]string{
				"status": "disconnected",
				"error":  err.Error(),
			}
		}

		if health.Status == "unhealthy" {
			writeJSON(w, http.StatusServiceUnavailable, health, logger)
			return
		}
		writeJSON(w, http.StatusOK, health, logger)
	})

	mux.HandleFunc("/debug/ledger", func(w http.ResponseWriter, r *http.Request) {
		l := coord.Ledger()
		if l == nil {
			writeJSON(w, http.StatusOK, map[string]any{"state": coord.State().String()}, logger)
			return
		}
		pending := l.Pending()
		showing := pending
		if len(showing) > debugListLimit {
			showing = showing[:debugListLimit]
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"universe":   len(l.Universe()),
			"subscribed": l.SubscribedCount(),
			"pending":    len(pending),
			"showing":    showing,
		}, logger)
	})

	mux.HandleFunc("/debug/units", func(w http.ResponseWriter, r *http.Request) {
		stats := coord.Stats()
		writeJSON(w, http.StatusOK, map[string]any{
			"count":      len(stats.Units),
			"units":      stats.Units,
			"aggregator": stats.Aggregator,
		}, logger)
	})

	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("encode response", "error", err)
	}
}
