package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/fulltick/internal/aggregator"
	"github.com/rickgao/fulltick/internal/coordinator"
	"github.com/rickgao/fulltick/internal/gateway/gatewaytest"
	"github.com/rickgao/fulltick/internal/metrics"
	"github.com/rickgao/fulltick/internal/model"
)

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

func newTestCoordinator(t *testing.T, reg *prometheus.Registry) *coordinator.Coordinator {
	t.Helper()

	cfg := coordinator.DefaultConfig()
	cfg.PortCount = 2
	cfg.PortsPerWorker = 1
	cfg.Session.Connect.Delay = time.Millisecond
	cfg.Session.Query.Delay = time.Millisecond
	cfg.Session.Subscribe.Delay = time.Millisecond
	cfg.Aggregator.PollInterval = time.Millisecond

	coord := coordinator.New(cfg, gatewaytest.New(), coordinator.WithMetrics(metrics.New(reg)))
	coord.SetHandler(aggregator.HandlerFunc(func(context.Context, model.Tick) error { return nil }))
	coord.SetUniverse([]model.Symbol{
		{Market: model.MarketUS, Code: "AAPL"},
		{Market: model.MarketUS, Code: "MSFT"},
	})
	t.Cleanup(func() { coord.Close() })
	return coord
}

func get(t *testing.T, h http.Handler, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	var body map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func TestHealth_DegradedUntilRunning(t *testing.T) {
	reg := prometheus.NewRegistry()
	coord := newTestCoordinator(t, reg)
	h := newHTTPHandler(coord, stubPinger{}, reg, "/metrics", nil)

	rec, body := get(t, h, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "degraded", body["status"])

	require.NoError(t, coord.Start(context.Background(), false))

	rec, body = get(t, h, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", body["status"])
	pipeline := body["components"].(map[string]any)["pipeline"].(map[string]any)
	assert.EqualValues(t, 2, pipeline["subscribed"])
}

func TestHealth_DatabaseDown(t *testing.T) {
	reg := prometheus.NewRegistry()
	coord := newTestCoordinator(t, reg)
	h := newHTTPHandler(coord, stubPinger{err: errors.New("connection refused")}, reg, "/metrics", nil)

	rec, body := get(t, h, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "unhealthy", body["status"])
}

func TestDebugEndpoints(t *testing.T) {
	reg := prometheus.NewRegistry()
	coord := newTestCoordinator(t, reg)
	h := newHTTPHandler(coord, stubPinger{}, reg, "/metrics", nil)

	_, body := get(t, h, "/debug/ledger")
	assert.Equal(t, model.SystemIdle.String(), body["state"])

	require.NoError(t, coord.Start(context.Background(), false))

	_, body = get(t, h, "/debug/ledger")
	assert.EqualValues(t, 2, body["universe"])
	assert.EqualValues(t, 2, body["subscribed"])
	assert.EqualValues(t, 0, body["pending"])

	_, body = get(t, h, "/debug/units")
	assert.EqualValues(t, 1, body["count"])
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	coord := newTestCoordinator(t, reg)
	require.NoError(t, coord.Start(context.Background(), false))

	h := newHTTPHandler(coord, stubPinger{}, reg, "/metrics", nil)
	rec, _ := get(t, h, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "fulltick_")
}
