package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/phuslu/log"
	"golang.org/x/sync/errgroup"

	"portfoliowatch/internal/app"
	"portfoliowatch/internal/config"
	"portfoliowatch/internal/logging"
	"portfoliowatch/internal/mirror"
	"portfoliowatch/internal/portfolio"
	"portfoliowatch/internal/pricefeed"
	"portfoliowatch/internal/provider/cache"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	logger := logging.New(cfg.Logging, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("server")
	}
}

func run(ctx context.Context, cfg config.Config, logger *log.Logger) error {
	backend, closeStore, err := app.OpenStore(ctx, cfg.Store, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	client := app.NewBinance(cfg.Binance)
	feed := pricefeed.New(client, pricefeed.Config{RefreshInterval: cfg.Binance.RefreshInterval()},
		pricefeed.WithLogger(logger),
		pricefeed.WithListener(func(st pricefeed.State) {
			if st.Err != "" {
				return
			}
			logger.Info().Int("prices", len(st.Prices)).Time("last_updated", st.LastUpdated).Msg("prices refreshed")
		}),
	)

	positions := mirror.New(backend, logger)
	positions.OnChange(func(ps []portfolio.Position) {
		feed.SetSymbols(portfolio.Symbols(ps))
	})
	if err := positions.Refresh(ctx); err != nil {
		return err
	}

	task, err := feed.Start(ctx)
	if err != nil {
		return err
	}
	defer task.Stop()

	srv := &server{
		quotes: &cache.Provider{
			P:        client,
			TTL:      cfg.Binance.QuoteCacheTTL(),
			MaxItems: cfg.Binance.QuoteCacheMaxItems,
		},
		feed:       feed,
		mirror:     positions,
		store:      backend,
		adminToken: cfg.Server.AdminToken,
		timeout:    time.Duration(cfg.Server.RequestTimeoutSec) * time.Second,
		log:        logger,
		now:        time.Now,
	}
	if srv.adminToken == "" {
		logger.Warn().Msg("ADMIN_TOKEN not set; position routes are open")
	}

	httpSrv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           srv.handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      srv.timeout + 10*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return positions.Run(gctx, backend)
	})
	g.Go(func() error {
		logger.Info().Str("addr", httpSrv.Addr).Msg("server listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (s *server) handler() http.Handler {
	return withJSONHeaders(withGzip(logRequests(s.log, recoverPanic(s.log, limitBody(s.routes())))))
}
