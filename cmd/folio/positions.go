package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"strings"

	"github.com/google/subcommands"
	"github.com/shopspring/decimal"

	"portfoliowatch/internal/app"
	"portfoliowatch/internal/portfolio"
)

type positionsCmd struct {
	*env
	json bool
}

func (*positionsCmd) Name() string     { return "positions" }
func (*positionsCmd) Synopsis() string { return "list stored positions, oldest first" }
func (*positionsCmd) Usage() string {
	return `folio positions [-json]
`
}

func (c *positionsCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.json, "json", false, "print JSON instead of a table")
}

func (c *positionsCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, logger, err := c.load()
	if err != nil {
		return c.fail(err)
	}
	backend, closeStore, err := app.OpenStore(ctx, cfg.Store, logger)
	if err != nil {
		return c.fail(err)
	}
	defer closeStore()

	list, err := backend.List(ctx)
	if err != nil {
		return c.fail(err)
	}
	if c.json {
		enc := json.NewEncoder(c.out)
		enc.SetIndent("", "  ")
		err = enc.Encode(list)
	} else {
		err = printPositions(c.out, list)
	}
	if err != nil {
		return c.fail(err)
	}
	return subcommands.ExitSuccess
}

// fieldFlags binds the position flags shared by add and update. Only flags
// given on the command line end up in Fields.
type fieldFlags struct {
	name, symbol, invested, entry, quantity, status string
}

func (ff *fieldFlags) set(f *flag.FlagSet) {
	f.StringVar(&ff.name, "name", "", "display name, e.g. Bitcoin")
	f.StringVar(&ff.symbol, "symbol", "", "trading pair, e.g. BTCUSDT")
	f.StringVar(&ff.invested, "invested", "", "amount invested in USD")
	f.StringVar(&ff.entry, "entry", "", "entry price in USD")
	f.StringVar(&ff.quantity, "quantity", "", "units held (default: invested / entry)")
	f.StringVar(&ff.status, "status", "", "Active, Holding or Closed")
}

func (ff *fieldFlags) fields(f *flag.FlagSet) (portfolio.Fields, error) {
	var (
		out  portfolio.Fields
		errs []string
	)
	dec := func(name, v string) *decimal.Decimal {
		d, err := decimal.NewFromString(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Sprintf("-%s: not a number: %q", name, v))
			return nil
		}
		return &d
	}
	f.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "name":
			out.Name = portfolio.Ptr(ff.name)
		case "symbol":
			out.Symbol = portfolio.Ptr(ff.symbol)
		case "invested":
			out.InvestedAmount = dec(fl.Name, ff.invested)
		case "entry":
			out.EntryPrice = dec(fl.Name, ff.entry)
		case "quantity":
			out.Quantity = dec(fl.Name, ff.quantity)
		case "status":
			st, err := portfolio.ParseStatus(ff.status)
			if err != nil {
				errs = append(errs, "-status: "+err.Error())
				return
			}
			out.Status = &st
		}
	})
	if len(errs) > 0 {
		return out, fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return out, nil
}

type addCmd struct {
	*env
	fieldFlags
}

func (*addCmd) Name() string     { return "add" }
func (*addCmd) Synopsis() string { return "add a position" }
func (*addCmd) Usage() string {
	return `folio add -name <name> -symbol <PAIR> -invested <usd> -entry <price> [-quantity <units>] [-status <status>]

  The quantity defaults to invested / entry.
`
}

func (c *addCmd) SetFlags(f *flag.FlagSet) { c.fieldFlags.set(f) }

func (c *addCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	fields, err := c.fields(f)
	if err != nil {
		return c.usage(err.Error())
	}
	cfg, logger, err := c.load()
	if err != nil {
		return c.fail(err)
	}
	backend, closeStore, err := app.OpenStore(ctx, cfg.Store, logger)
	if err != nil {
		return c.fail(err)
	}
	defer closeStore()

	p, err := backend.Create(ctx, fields)
	if err != nil {
		return c.fail(err)
	}
	if err := printPositions(c.out, []portfolio.Position{p}); err != nil {
		return c.fail(err)
	}
	return subcommands.ExitSuccess
}

type updateCmd struct {
	*env
	fieldFlags
}

func (*updateCmd) Name() string     { return "update" }
func (*updateCmd) Synopsis() string { return "change fields of a position" }
func (*updateCmd) Usage() string {
	return `folio update [-name ...] [-symbol ...] [-invested ...] [-entry ...] [-quantity ...] [-status ...] <id>

  Only the given flags are changed. The quantity is not recomputed.
`
}

func (c *updateCmd) SetFlags(f *flag.FlagSet) { c.fieldFlags.set(f) }

func (c *updateCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		return c.usage("update: exactly one position id is required")
	}
	fields, err := c.fields(f)
	if err != nil {
		return c.usage(err.Error())
	}
	cfg, logger, err := c.load()
	if err != nil {
		return c.fail(err)
	}
	backend, closeStore, err := app.OpenStore(ctx, cfg.Store, logger)
	if err != nil {
		return c.fail(err)
	}
	defer closeStore()

	p, err := backend.Update(ctx, f.Arg(0), fields)
	if err != nil {
		return c.fail(err)
	}
	if err := printPositions(c.out, []portfolio.Position{p}); err != nil {
		return c.fail(err)
	}
	return subcommands.ExitSuccess
}

type deleteCmd struct {
	*env
}

func (*deleteCmd) Name() string     { return "delete" }
func (*deleteCmd) Synopsis() string { return "delete positions by id" }
func (*deleteCmd) Usage() string {
	return `folio delete <id>...
`
}

func (c *deleteCmd) SetFlags(*flag.FlagSet) {}

func (c *deleteCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() == 0 {
		return c.usage("delete: at least one position id is required")
	}
	cfg, logger, err := c.load()
	if err != nil {
		return c.fail(err)
	}
	backend, closeStore, err := app.OpenStore(ctx, cfg.Store, logger)
	if err != nil {
		return c.fail(err)
	}
	defer closeStore()

	for _, id := range f.Args() {
		if err := backend.Delete(ctx, id); err != nil {
			return c.fail(fmt.Errorf("delete %s: %w", id, err))
		}
		fmt.Fprintf(c.out, "deleted %s\n", id)
	}
	return subcommands.ExitSuccess
}
