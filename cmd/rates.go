package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"

	"github.com/google/subcommands"

	"github.com/sjlee/txlog"
	"github.com/sjlee/txlog/date"
	"github.com/sjlee/txlog/frankfurter"
)

type ratesCmd struct{}

func (*ratesCmd) Name() string     { return "rates" }
func (*ratesCmd) Synopsis() string { return "print daily USD/KRW reference rates for a date range" }
func (*ratesCmd) Usage() string {
	return `rates <start> <end>

  Prints the official daily USD/KRW reference rates in the range, one
  line per quoted business day.
`
}

func (*ratesCmd) SetFlags(*flag.FlagSet) {}

func (c *ratesCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	r, err := parseRange(f)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitUsageError
	}
	rates, err := frankfurter.New().Preload(ctx, r)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}

	days := make([]date.Date, 0, len(rates))
	for d := range rates {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	for _, d := range days {
		fmt.Printf("%s  %s\n", d, txlog.FormatKRW(rates[d]))
	}
	return subcommands.ExitSuccess
}
