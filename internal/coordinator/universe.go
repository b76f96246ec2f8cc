package coordinator

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/fulltick/internal/connection"
	"github.com/rickgao/fulltick/internal/gateway"
	"github.com/rickgao/fulltick/internal/metrics"
	"github.com/rickgao/fulltick/internal/model"
)

// discoverUniverse lists every market × security type pair concurrently and
// merges the results in configuration order, dropping duplicates and
// truncating at maxSymbols (0 = no limit).
func discoverUniverse(ctx context.Context, conn gateway.Conn, cfg Config, logger *slog.Logger, m *metrics.Metrics) ([]model.Symbol, error) {
	type pair struct {
		market  model.Market
		secType model.SecurityType
	}
	var pairs []pair
	for _, mk := range cfg.Markets {
		for _, st := range cfg.SecurityTypes {
			pairs = append(pairs, pair{mk, st})
		}
	}

	results := make([][]model.Symbol, len(pairs))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range pairs {
		g.Go(func() error {
			return connection.Retry(gctx, cfg.Session.Query, metrics.OpUniverse, logger, m, func(ctx context.Context) error {
				syms, err := conn.StockBasicInfo(ctx, p.market, p.secType)
				if err != nil {
					return err
				}
				results[i] = syms
				return nil
			})
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("discover universe: %w", err)
	}

	seen := make(map[model.Symbol]struct{})
	var universe []model.Symbol
	for i, syms := range results {
		logger.Debug("universe fetched",
			"market", pairs[i].market,
			"security_type", pairs[i].secType,
			"count", len(syms),
		)
		for _, s := range syms {
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
			universe = append(universe, s)
		}
	}

	if cfg.MaxSymbols > 0 && len(universe) > cfg.MaxSymbols {
		universe = universe[:cfg.MaxSymbols]
	}
	return universe, nil
}
