package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/google/subcommands"

	"portfoliowatch/internal/aggregate"
	"portfoliowatch/internal/app"
	"portfoliowatch/internal/pricefeed"
	"portfoliowatch/internal/valuation"
)

type pricesCmd struct {
	*env
	json bool
}

func (*pricesCmd) Name() string     { return "prices" }
func (*pricesCmd) Synopsis() string { return "print the latest price of one or more symbols" }
func (*pricesCmd) Usage() string {
	return `folio prices [-json] <SYMBOL>...

  Fetches the latest ticker price of every symbol. One unknown symbol fails
  the whole request.
`
}

func (c *pricesCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.json, "json", false, "print JSON instead of a table")
}

func (c *pricesCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	symbols := pricefeed.NormalizeSymbols(f.Args())
	if len(symbols) == 0 {
		return c.usage("prices: at least one symbol is required")
	}
	cfg, _, err := c.load()
	if err != nil {
		return c.fail(err)
	}

	quotes, err := app.NewBinance(cfg.Binance).Fetch(ctx, symbols)
	if err != nil {
		return c.fail(err)
	}
	sorted := aggregate.Sorted(aggregate.LatestBySymbol(quotes, time.Now()))

	if c.json {
		enc := json.NewEncoder(c.out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(sorted); err != nil {
			return c.fail(err)
		}
		return subcommands.ExitSuccess
	}
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SYMBOL\tPRICE")
	for _, q := range sorted {
		fmt.Fprintf(tw, "%s\t%s\n", q.Symbol, valuation.FormatPrice(q.Price))
	}
	if err := tw.Flush(); err != nil {
		return c.fail(err)
	}
	return subcommands.ExitSuccess
}
