package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/google/subcommands"

	"portfoliowatch/internal/aggregate"
	"portfoliowatch/internal/app"
	"portfoliowatch/internal/mirror"
	"portfoliowatch/internal/portfolio"
	"portfoliowatch/internal/pricefeed"
	"portfoliowatch/internal/valuation"
)

type watchCmd struct {
	*env
	interval time.Duration
}

func (*watchCmd) Name() string     { return "watch" }
func (*watchCmd) Synopsis() string { return "keep prices fresh and reprint the valuation after every refresh" }
func (*watchCmd) Usage() string {
	return `folio watch [-interval <duration>]

  Polls prices for the stored positions until interrupted, printing the
  valuation after each refresh. Position changes are picked up as they
  happen.
`
}

func (c *watchCmd) SetFlags(f *flag.FlagSet) {
	f.DurationVar(&c.interval, "interval", 0, "refresh interval (default: binance.refresh_interval_ms)")
}

func (c *watchCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, logger, err := c.load()
	if err != nil {
		return c.fail(err)
	}
	interval := cfg.Binance.RefreshInterval()
	if c.interval > 0 {
		interval = c.interval
	}
	backend, closeStore, err := app.OpenStore(ctx, cfg.Store, logger)
	if err != nil {
		return c.fail(err)
	}
	defer closeStore()

	positions := mirror.New(backend, logger)
	feed := pricefeed.New(app.NewBinance(cfg.Binance), pricefeed.Config{RefreshInterval: interval},
		pricefeed.WithLogger(logger),
		pricefeed.WithListener(func(st pricefeed.State) {
			summary := valuation.Summarize(positions.Positions(), aggregate.Prices(st.Prices))
			fmt.Fprintln(c.out)
			if err := printSummary(c.out, summary, st, time.Now()); err != nil {
				logger.Error().Err(err).Msg("print valuation")
			}
		}),
	)
	positions.OnChange(func(ps []portfolio.Position) {
		feed.SetSymbols(portfolio.Symbols(ps))
	})
	if err := positions.Refresh(ctx); err != nil {
		return c.fail(err)
	}

	task, err := feed.Start(ctx)
	if err != nil {
		return c.fail(err)
	}
	defer task.Stop()

	if err := positions.Run(ctx, backend); err != nil {
		return c.fail(err)
	}
	return subcommands.ExitSuccess
}
