// Command folio prices crypto positions from the command line.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path"
	"syscall"

	"github.com/google/subcommands"
)

func main() {
	configPath := flag.String("config", "", "path to a JSON or TOML config file (default: $CONFIG_FILE, ./config.toml or ./config.json)")
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	commander.Register(commander.CommandsCommand(), "")
	register(commander, &env{configPath: configPath, out: os.Stdout, errOut: os.Stderr})

	flag.Parse()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	status := commander.Execute(ctx)
	stop()
	os.Exit(int(status))
}

func register(c *subcommands.Commander, e *env) {
	c.Register(&pricesCmd{env: e}, "prices")
	c.Register(&valueCmd{env: e}, "prices")
	c.Register(&watchCmd{env: e}, "prices")
	c.Register(&positionsCmd{env: e}, "positions")
	c.Register(&addCmd{env: e}, "positions")
	c.Register(&updateCmd{env: e}, "positions")
	c.Register(&deleteCmd{env: e}, "positions")
}
