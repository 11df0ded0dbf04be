// Package cmd implements the CLI application that collects exchange
// activity and exports the unified ledger.
package cmd

import (
	"flag"
	"os"
	"strings"

	"github.com/google/subcommands"
	"github.com/rs/zerolog"
	zl "github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/sjlee/txlog"
	"github.com/sjlee/txlog/bithumb"
	"github.com/sjlee/txlog/date"
	"github.com/sjlee/txlog/etherscan"
	"github.com/sjlee/txlog/frankfurter"
	"github.com/sjlee/txlog/koreaexim"
	"github.com/sjlee/txlog/lighter"
	"github.com/sjlee/txlog/upbit"
)

// Register the subcommands. A main package calls Register() and then
// Execute() on the user-selected one.
func Register(c *subcommands.Commander) {
	c.Register(&exportCmd{}, "ledger")
	c.Register(&watchCmd{}, "ledger")
	c.Register(&guardCmd{}, "credentials")
	c.Register(&ratesCmd{}, "fx")
}

// as a CLI application, it has a very short lived lifecycle, so it is ok to use global variables.

var verbose = flag.Bool("v", false, "enable debug logging")

const defaultExchanges = "upbit,bithumb,lighter"

// SetupLogging configures the console logger once flags are parsed.
func SetupLogging() {
	zl.Logger = zl.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

// parseRange reads the two positional date arguments.
func parseRange(f *flag.FlagSet) (date.Range, error) {
	if f.NArg() != 2 {
		return date.Range{}, &txlog.ConfigError{Reason: "expected two arguments: <start date> <end date> (YYYY-MM-DD)"}
	}
	from, err := date.Parse(f.Arg(0))
	if err != nil {
		return date.Range{}, err
	}
	to, err := date.Parse(f.Arg(1))
	if err != nil {
		return date.Range{}, err
	}
	r := date.NewRange(from, to)
	return r, r.Validate()
}

// buildAdapters instantiates one adapter per selected exchange.
func buildAdapters(s txlog.Settings, selection string) ([]txlog.Adapter, error) {
	var adapters []txlog.Adapter
	for _, name := range strings.Split(selection, ",") {
		switch strings.TrimSpace(strings.ToLower(name)) {
		case "":
		case "upbit":
			adapters = append(adapters, upbit.NewAdapter(upbit.NewClient(s.UpbitAccessKey, s.UpbitSecretKey)))
		case "bithumb":
			adapters = append(adapters, bithumb.NewAdapter(bithumb.NewClient(s.BithumbAccessKey, s.BithumbSecretKey)))
		case "lighter":
			c, err := lighter.NewClient(s.LighterBaseURL, lighter.Credentials{
				ReadOnlyToken: s.LighterROToken,
				PrivateKey:    s.LighterPrivateKey,
				KeyIndex:      s.LighterKeyIndex,
				AccountIndex:  s.LighterAccountIndex,
			}, nil)
			if err != nil {
				return nil, err
			}
			eth := etherscan.New(s.EtherscanAPIKey)
			adapters = append(adapters, lighter.NewAdapter(c, s.LighterMarketID, s.LighterL1Address, eth))
		default:
			return nil, &txlog.ConfigError{Reason: "unknown exchange " + strings.TrimSpace(name)}
		}
	}
	if len(adapters) == 0 {
		return nil, &txlog.ConfigError{Reason: "no exchange selected"}
	}
	return adapters, nil
}

// assemblePipeline builds the run from flags, settings and the two
// positional date arguments.
func assemblePipeline(f *flag.FlagSet, exchanges, fx string, daily bool) (*txlog.Pipeline, date.Range, error) {
	r, err := parseRange(f)
	if err != nil {
		return nil, r, err
	}
	s, err := txlog.LoadSettings()
	if err != nil {
		return nil, r, err
	}
	if fx != "" {
		rate, err := decimal.NewFromString(fx)
		if err != nil || !rate.IsPositive() {
			return nil, r, &txlog.ConfigError{Reason: "-fx must be a positive number"}
		}
		s.FixedRate = rate
	}
	adapters, err := buildAdapters(s, exchanges)
	if err != nil {
		return nil, r, err
	}
	return &txlog.Pipeline{
		Adapters: adapters,
		Resolver: buildResolver(s, daily),
	}, r, nil
}

// buildResolver picks the FX mode: the fixed configured rate, or daily
// reference rates from koreaexim when a key is configured, falling back
// to frankfurter.dev otherwise.
func buildResolver(s txlog.Settings, daily bool) txlog.Resolver {
	if !daily {
		return txlog.NewFixed(s.FixedRate)
	}
	var src txlog.RateSource = frankfurter.New()
	if s.KoreaeximAPIKey != "" {
		src = koreaexim.New(s.KoreaeximAPIKey)
	}
	return txlog.NewDaily(src, s.FixedRate)
}
