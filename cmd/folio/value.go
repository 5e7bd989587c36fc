package main

import (
	"context"
	"flag"
	"time"

	"github.com/google/subcommands"

	"portfoliowatch/internal/app"
	"portfoliowatch/internal/portfolio"
	"portfoliowatch/internal/pricefeed"
	"portfoliowatch/internal/valuation"
)

type valueCmd struct {
	*env
}

func (*valueCmd) Name() string     { return "value" }
func (*valueCmd) Synopsis() string { return "value every stored position at the latest prices" }
func (*valueCmd) Usage() string {
	return `folio value

  Runs one price refresh for the symbols of all stored positions and prints
  value and profit/loss per position and in total. Positions whose price
  could not be fetched are valued at their entry price.
`
}

func (c *valueCmd) SetFlags(*flag.FlagSet) {}

func (c *valueCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, logger, err := c.load()
	if err != nil {
		return c.fail(err)
	}
	backend, closeStore, err := app.OpenStore(ctx, cfg.Store, logger)
	if err != nil {
		return c.fail(err)
	}
	defer closeStore()

	positions, err := backend.List(ctx)
	if err != nil {
		return c.fail(err)
	}

	feed := pricefeed.New(app.NewBinance(cfg.Binance), pricefeed.Config{RefreshInterval: cfg.Binance.RefreshInterval()},
		pricefeed.WithLogger(logger))
	feed.SetSymbols(portfolio.Symbols(positions))
	st := feed.Refetch(ctx)

	summary := valuation.Summarize(positions, feed.Prices())
	if err := printSummary(c.out, summary, st, time.Now()); err != nil {
		return c.fail(err)
	}
	return subcommands.ExitSuccess
}
