// gatewayprobe dials one gateway endpoint and prints its account state.
// With -subscribe it also streams ticker pushes to the console.
//
// Usage: go run ./cmd/gatewayprobe --config configs/fulltick.example.yaml --port 11113
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rickgao/fulltick/internal/config"
	"github.com/rickgao/fulltick/internal/gateway"
	"github.com/rickgao/fulltick/internal/logging"
	"github.com/rickgao/fulltick/internal/model"
	"github.com/rickgao/fulltick/internal/publish"
)

func main() {
	configPath := flag.String("config", "configs/fulltick.example.yaml", "path to config file")
	port := flag.Int("port", 0, "gateway port (default: gateway.port_begin)")
	subscribe := flag.String("subscribe", "", "comma-separated symbols to subscribe, e.g. US.AAPL,HK.00700")
	duration := flag.Duration("duration", 30*time.Second, "how long to stream ticks")
	flag.Parse()

	logger, syncLogs, err := logging.New("debug", "development")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer syncLogs()

	cfg, err := config.LoadWithDefaults(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ep := model.Endpoint{Host: cfg.Gateway.Host, Port: cfg.Gateway.PortBegin}
	if *port > 0 {
		ep.Port = *port
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conn, err := gateway.NewDialer(cfg.ToClientConfig(), logger).Dial(ctx, ep)
	if err != nil {
		logger.Error("dial failed", "endpoint", ep, "error", err)
		os.Exit(1)
	}
	defer conn.Close()

	before := time.Now()
	gs, err := conn.GlobalState(ctx)
	if err != nil {
		logger.Error("global state failed", "error", err)
		os.Exit(1)
	}
	offset := model.TimestampOffset(before.Unix() - gs.ServerTime.Unix())

	state, err := conn.QuerySubscriptions(ctx)
	if err != nil {
		logger.Error("query subscriptions failed", "error", err)
		os.Exit(1)
	}

	fmt.Printf("endpoint:     %s\n", ep)
	fmt.Printf("server time:  %s (offset %ds)\n", gs.ServerTime.Format(time.RFC3339), offset)
	fmt.Printf("market state: US=%s HK=%s\n", gs.MarketUS, gs.MarketHK)
	fmt.Printf("quota:        used=%d remaining=%d\n", state.Used, state.Remaining)
	for subType, syms := range state.Subscriptions {
		fmt.Printf("  %-8s %d symbols\n", subType, len(syms))
	}

	if *subscribe == "" {
		return
	}

	var symbols []model.Symbol
	for _, raw := range strings.Split(*subscribe, ",") {
		s, err := model.ParseSymbol(strings.TrimSpace(raw))
		if err != nil {
			logger.Error("bad symbol", "error", err)
			os.Exit(1)
		}
		symbols = append(symbols, s)
	}

	conn.OnTick(func(tick model.Tick) {
		tick.LocalTime = offset.Adjust(tick.Time)
		b, err := publish.Encode(tick)
		if err != nil {
			logger.Warn("encode tick", "error", err)
			return
		}
		var pretty map[string]any
		json.Unmarshal(b, &pretty)
		out, _ := json.MarshalIndent(pretty, "", "  ")
		fmt.Println(string(out))
	})

	if err := conn.Subscribe(ctx, symbols, model.SubTicker); err != nil {
		logger.Error("subscribe failed", "error", err)
		os.Exit(1)
	}
	fmt.Printf("streaming %d symbols for %s...\n", len(symbols), *duration)

	select {
	case <-ctx.Done():
	case <-time.After(*duration):
	}
}
