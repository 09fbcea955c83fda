// cmd/backtest detects lower Keltner band touches in daily bar files, labels
// short-term reversals and simulates filtered long trades.
//
// Usage:
//
//	backtest detect --tickers AAPL --year 2023
//	backtest backtest --tickers AAPL,MSFT --config configs.yaml --config-id C001
//	backtest batch --config configs.yaml --workers 8 --format parquet
//	backtest matrix > configs.csv
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"trendreversal/config"
	"trendreversal/internal/batch"
	"trendreversal/internal/detect"
	"trendreversal/internal/feed"
	"trendreversal/internal/filter"
	"trendreversal/internal/indicator"
	"trendreversal/internal/logger"
	"trendreversal/internal/model"
	sqlitestore "trendreversal/internal/store/sqlite"
)

var env = config.Load()

// Persistent flags
var (
	flagDataDir  string
	flagSQLite   string
	flagSource   string
	flagLogLevel string
	flagTickers  string
	flagYear     int
	flagConfig   string
	flagConfigID string
)

var rootCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Keltner lower-band reversal research tool",
	Long: `Detects bars touching the lower Keltner band, labels whether price reversed
within a short lookahead, runs filtered long-trade simulations and builds
feature matrices for a downstream classifier.

Bars come from <data-dir>/<daily|weekly>/<TICKER>_<tf>.csv or from the bars
table of a SQLite database (--source sqlite).`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := logger.ParseLevel(flagLogLevel)
		if err != nil {
			return err
		}
		logger.Init("backtest", level)
		return nil
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagDataDir, "data-dir", env.DataDir, "Directory holding daily/ and weekly/ CSV files")
	pf.StringVar(&flagSQLite, "sqlite", env.SQLitePath, "SQLite database with a bars table (for --source sqlite)")
	pf.StringVar(&flagSource, "source", "csv", "Bar source: csv or sqlite")
	pf.StringVar(&flagLogLevel, "log-level", env.LogLevel, "Log level: debug, info, warn, error")
	pf.StringVar(&flagTickers, "tickers", env.Tickers, "Comma-separated tickers")
	pf.IntVar(&flagYear, "year", 0, "Restrict evaluation to one calendar year (0 = all history)")
	pf.StringVar(&flagConfig, "config", env.FilterTable, "Filter configuration table (.csv, .yaml)")
	pf.StringVar(&flagConfigID, "config-id", "", "Configuration id to use from the table (default: first row)")
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// openSource returns the configured bar source and its closer.
func openSource() (model.SeriesSource, func(), error) {
	switch flagSource {
	case "csv":
		return feed.NewCSVSource(flagDataDir), func() {}, nil
	case "sqlite":
		if flagSQLite == "" {
			return nil, nil, fmt.Errorf("--source sqlite needs --sqlite or SQLITE_PATH")
		}
		r, err := sqlitestore.NewReader(flagSQLite)
		if err != nil {
			return nil, nil, err
		}
		return r, func() { r.Close() }, nil
	}
	return nil, nil, fmt.Errorf("unknown source %q (use csv or sqlite)", flagSource)
}

// tickers resolves the instrument list. With the SQLite source and no explicit
// list every stored daily instrument is used.
func tickers(ctx context.Context, src model.SeriesSource) ([]string, error) {
	if list := config.SplitList(flagTickers); len(list) > 0 {
		return list, nil
	}
	if r, ok := src.(*sqlitestore.Reader); ok {
		return r.Instruments(ctx, model.TimeframeDaily)
	}
	return nil, fmt.Errorf("no tickers: pass --tickers or set TICKERS")
}

// window returns the --year evaluation bounds (zero when unset).
func window() (from, to time.Time) {
	if flagYear == 0 {
		return time.Time{}, time.Time{}
	}
	return batch.Year(flagYear)
}

// loadDaily reads one instrument and computes missing oscillators on the full
// history. The --year window is applied by detection, after banding.
func loadDaily(ctx context.Context, src model.SeriesSource, instr string) (*model.Series, error) {
	s, err := src.LoadSeries(ctx, instr, model.TimeframeDaily)
	if err != nil {
		return nil, err
	}
	s, _ = indicator.Enrich(s, indicator.DefaultEnrichConfig())
	return s, nil
}

// windowed sets the --year window on detection options.
func windowed(opts detect.Options) detect.Options {
	opts.From, opts.To = window()
	return opts
}

// filterConfigs loads the configuration table, or the default configuration
// when none is given.
func filterConfigs() ([]filter.Config, error) {
	if flagConfig == "" {
		return []filter.Config{filter.Default()}, nil
	}
	return filter.LoadTable(flagConfig)
}

// selectedConfig returns --config-id from the table, or its first row.
func selectedConfig() (filter.Config, error) {
	cfgs, err := filterConfigs()
	if err != nil {
		return filter.Config{}, err
	}
	if len(cfgs) == 0 {
		return filter.Config{}, fmt.Errorf("%s holds no configurations", flagConfig)
	}
	if flagConfigID == "" {
		return cfgs[0], nil
	}
	for _, c := range cfgs {
		if c.ID == flagConfigID {
			return c, nil
		}
	}
	return filter.Config{}, fmt.Errorf("config %q not found in %s", flagConfigID, flagConfig)
}
