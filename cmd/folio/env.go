package main

import (
	"fmt"
	"io"

	"github.com/google/subcommands"
	"github.com/phuslu/log"

	"portfoliowatch/internal/config"
	"portfoliowatch/internal/logging"
)

// env is what every command shares: where the config lives and where output
// goes.
type env struct {
	configPath *string
	out        io.Writer
	errOut     io.Writer
}

func (e *env) load() (config.Config, *log.Logger, error) {
	path := ""
	if e.configPath != nil {
		path = *e.configPath
	}
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, nil, err
	}
	return cfg, logging.New(cfg.Logging, e.errOut), nil
}

func (e *env) fail(err error) subcommands.ExitStatus {
	fmt.Fprintln(e.errOut, err)
	return subcommands.ExitFailure
}

func (e *env) usage(msg string) subcommands.ExitStatus {
	fmt.Fprintln(e.errOut, msg)
	return subcommands.ExitUsageError
}
