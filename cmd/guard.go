package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"github.com/sjlee/txlog"
)

type guardCmd struct {
	exchanges string
}

func (*guardCmd) Name() string     { return "guard" }
func (*guardCmd) Synopsis() string { return "verify that configured API keys are read-only" }
func (*guardCmd) Usage() string {
	return `guard [-exchanges <list>]

  Probes each exchange's dangerous endpoints (orders, withdrawals) with
  the configured credentials and fails if any key holds more than query
  permissions. Run this before trusting a new key.
`
}

func (c *guardCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.exchanges, "exchanges", defaultExchanges, "comma-separated exchange list")
}

func (c *guardCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	s, err := txlog.LoadSettings()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	adapters, err := buildAdapters(s, c.exchanges)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	var probers []txlog.Prober
	for _, a := range adapters {
		if p, ok := a.(txlog.Prober); ok {
			probers = append(probers, p)
		}
	}
	if !txlog.CheckPermissions(ctx, os.Stdout, probers...) {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
