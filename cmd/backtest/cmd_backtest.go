package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"trendreversal/internal/detect"
	"trendreversal/internal/export"
	"trendreversal/internal/model"
	"trendreversal/internal/sim"
)

var (
	backtestOut       string
	backtestRecompute bool
	backtestShowSkips bool
)

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Simulate one filter configuration over the given tickers",
	Long: `Runs one filter configuration (the --config-id row of --config, or the
default configuration) over every ticker in sequence and writes the trades
table as CSV. Per-ticker summaries are printed to stderr.

Example:
  backtest backtest --tickers AAPL,MSFT --config configs.yaml --config-id C042 --year 2023`,
	RunE: runBacktest,
}

func init() {
	rootCmd.AddCommand(backtestCmd)
	backtestCmd.Flags().StringVar(&backtestOut, "out", "", "Trades CSV path (default: stdout)")
	backtestCmd.Flags().BoolVar(&backtestRecompute, "recompute", false, "Compute bands from the config's lookback and multiplier")
	backtestCmd.Flags().BoolVar(&backtestShowSkips, "skips", false, "Log every candidate that produced no trade")
}

func runBacktest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := selectedConfig()
	if err != nil {
		return err
	}
	src, closeSrc, err := openSource()
	if err != nil {
		return err
	}
	defer closeSrc()
	list, err := tickers(ctx, src)
	if err != nil {
		return err
	}

	simulator := sim.New(cfg)
	if backtestShowSkips {
		simulator.OnSkip = func(r model.SkipRecord) {
			slog.Info("candidate skipped", "signal", r.SignalTime, "reason", r.Reason)
		}
	}
	slog.Info("backtest started", "config", cfg.String(), "tickers", len(list))

	var (
		trades    []model.Trade
		summaries []model.Summary
	)
	for _, instr := range list {
		s, err := loadDaily(ctx, src, instr)
		if err != nil {
			slog.Warn("skipping instrument", "instrument", instr, "error", err)
			continue
		}
		touches, banded, err := detect.Touches(s, windowed(detect.Options{
			Recompute:  backtestRecompute,
			Period:     cfg.Lookback,
			Multiplier: cfg.Multiplier,
		}))
		if err != nil {
			slog.Warn("skipping instrument", "instrument", instr, "error", err)
			continue
		}
		got, _ := simulator.Run(banded, touches)
		trades = append(trades, got...)
		summaries = append(summaries, sim.Summarize(instr, cfg.ID, got))
	}

	var w io.Writer = os.Stdout
	if backtestOut != "" {
		f, err := os.Create(backtestOut)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	if err := export.WriteTradesCSV(w, export.TradeRows(trades)); err != nil {
		return err
	}

	printSummaries(os.Stderr, append(summaries, sim.Summarize("ALL", cfg.ID, trades)))
	return nil
}

func printSummaries(w io.Writer, sums []model.Summary) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TICKER\tCONFIG\tTRADES\tWIN%\tMEAN%\tTOTAL%\tCUM%")
	for _, s := range sums {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%.1f\t%.2f\t%.2f\t%.2f\n", s.Instrument, s.ConfigID, s.Trades,
			100*s.WinRate, 100*s.MeanReturn, 100*s.TotalReturn, 100*s.CumulativeReturn)
	}
	tw.Flush()
}
