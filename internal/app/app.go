// Package app wires configuration into the price client and position store
// shared by the server and the CLI.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/phuslu/log"

	"portfoliowatch/internal/config"
	"portfoliowatch/internal/httpx"
	"portfoliowatch/internal/provider/binance"
	"portfoliowatch/internal/provider/ratelimit"
	"portfoliowatch/internal/store"
	"portfoliowatch/internal/store/memory"
	"portfoliowatch/internal/store/postgres"
)

// Backend is a position store that also streams its changes.
type Backend interface {
	store.Store
	store.Subscriber
}

// NewBinance builds the ticker client from cfg. A positive requests-per-minute
// limit selects a token bucket; otherwise a positive minimum interval spaces
// requests out.
func NewBinance(cfg config.Binance) *binance.Client {
	httpClient := httpx.New(0)

	opts := []binance.Option{
		binance.WithBaseURL(cfg.BaseURL),
		binance.WithHTTPClient(httpClient.HTTPClient()),
		binance.WithRequestTimeout(cfg.RequestTimeout()),
		binance.WithMaxConcurrency(cfg.MaxConcurrency),
	}
	if cfg.MaxRequestsPerMinute > 0 {
		opts = append(opts, binance.WithLimiter(ratelimit.PerMinute(cfg.MaxRequestsPerMinute, cfg.Burst)))
	} else if cfg.MinRequestIntervalMs > 0 {
		opts = append(opts, binance.WithLimiter(ratelimit.NewMinInterval(cfg.MinRequestInterval())))
	}
	return binance.NewClient(opts...)
}

// OpenStore opens the configured store. The returned close function releases
// it. The memory store is seeded with demo positions when asked; the postgres
// store gets its schema ensured and is seeded only while empty.
func OpenStore(ctx context.Context, cfg config.Store, logger *log.Logger) (Backend, func(), error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		defer cancel()
		pg, err := postgres.Open(connectCtx, cfg.DatabaseURL, postgres.WithLogger(logger))
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres store: %w", err)
		}
		if err := pg.EnsureSchema(connectCtx); err != nil {
			pg.Close()
			return nil, nil, err
		}
		if err := seedIfEmpty(ctx, pg, cfg.SeedDemo); err != nil {
			pg.Close()
			return nil, nil, err
		}
		logger.Info().Msg("using postgres position store")
		return pg, pg.Close, nil
	default:
		mem := memory.New()
		if err := seedIfEmpty(ctx, mem, cfg.SeedDemo); err != nil {
			return nil, nil, err
		}
		logger.Info().Bool("demo", cfg.SeedDemo).Msg("using in-memory position store")
		return mem, func() {}, nil
	}
}

func seedIfEmpty(ctx context.Context, s store.Store, seed bool) error {
	if !seed {
		return nil
	}
	existing, err := s.List(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}
	if err := memory.Seed(ctx, s, memory.DemoFields()); err != nil {
		return fmt.Errorf("seed demo positions: %w", err)
	}
	return nil
}
