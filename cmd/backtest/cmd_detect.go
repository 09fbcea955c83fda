package main

import (
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"trendreversal/internal/detect"
	"trendreversal/internal/indicator"
	"trendreversal/internal/label"
	"trendreversal/internal/model"
)

var (
	detectRecompute  bool
	detectPeriod     int
	detectMultiplier float64
	labelLookahead   []int
)

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "List bars touching the lower Keltner band",
	Long: `Lists every bar whose open, high, low or close is at or below the lower
Keltner band. The feed's band column is used when present; --recompute forces
Keltner(period, multiplier) from OHLC.

Example:
  backtest detect --tickers AAPL --year 2023 --recompute --period 20 --multiplier 2`,
	RunE: runDetect,
}

var labelCmd = &cobra.Command{
	Use:   "label",
	Short: "Label each touch with whether price reversed within the lookahead",
	Long: `Detects touches and reports, per touch, whether a later close exceeded the
touch-day close within max(lookahead) bars, and after how many bars.

Example:
  backtest label --tickers AAPL,MSFT --lookahead 1,2,3`,
	RunE: runLabel,
}

func init() {
	rootCmd.AddCommand(detectCmd)
	rootCmd.AddCommand(labelCmd)

	for _, c := range []*cobra.Command{detectCmd, labelCmd} {
		c.Flags().BoolVar(&detectRecompute, "recompute", false, "Compute bands from OHLC even when the feed supplies them")
		c.Flags().IntVar(&detectPeriod, "period", indicator.DefaultKeltnerPeriod, "Keltner lookback period")
		c.Flags().Float64Var(&detectMultiplier, "multiplier", indicator.DefaultKeltnerMultiplier, "Keltner range multiplier")
	}
	labelCmd.Flags().IntSliceVar(&labelLookahead, "lookahead", []int{1, 2}, "Lookahead offsets in bars (only the maximum bounds the scan)")
}

func detectOptions() detect.Options {
	return windowed(detect.Options{Recompute: detectRecompute, Period: detectPeriod, Multiplier: detectMultiplier})
}

func runDetect(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	src, closeSrc, err := openSource()
	if err != nil {
		return err
	}
	defer closeSrc()
	list, err := tickers(ctx, src)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TICKER\tDATE\tOPEN\tHIGH\tLOW\tCLOSE\tBAND_LOWER")
	total := 0
	for _, instr := range list {
		s, err := loadDaily(ctx, src, instr)
		if err != nil {
			slog.Warn("skipping instrument", "instrument", instr, "error", err)
			continue
		}
		touches, _, err := detect.Touches(s, detectOptions())
		if err != nil {
			slog.Warn("skipping instrument", "instrument", instr, "error", err)
			continue
		}
		for _, ev := range touches {
			lower, _ := ev.Bar.Value(model.IndBandLower)
			fmt.Fprintf(tw, "%s\t%s\t%.2f\t%.2f\t%.2f\t%.2f\t%.2f\n", instr, ev.Time.Format(time.DateOnly),
				ev.Bar.Open, ev.Bar.High, ev.Bar.Low, ev.Bar.Close, lower)
		}
		total += len(touches)
	}
	tw.Flush()
	slog.Info("detection finished", "instruments", len(list), "touches", total)
	return nil
}

func runLabel(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if _, err := label.Horizon(labelLookahead); err != nil {
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

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TICKER\tDATE\tCLOSE\tREVERSED\tDAYS\tREVERSAL_DATE")
	var all []model.LabelRecord
	for _, instr := range list {
		s, err := loadDaily(ctx, src, instr)
		if err != nil {
			slog.Warn("skipping instrument", "instrument", instr, "error", err)
			continue
		}
		touches, banded, err := detect.Touches(s, detectOptions())
		if err != nil {
			slog.Warn("skipping instrument", "instrument", instr, "error", err)
			continue
		}
		labels, lookups, err := label.ReversalsLenient(banded, detect.Times(touches), labelLookahead)
		if err != nil {
			return err
		}
		for _, e := range lookups {
			slog.Warn("touch not labelled", "instrument", instr, "error", e)
		}
		for _, l := range labels {
			days, when := "-", "-"
			if l.Reversed {
				days = fmt.Sprint(l.FirstReversalDay)
				when = l.FirstReversalTime.Format(time.DateOnly)
			}
			fmt.Fprintf(tw, "%s\t%s\t%.2f\t%t\t%s\t%s\n", instr, l.Time.Format(time.DateOnly), l.CloseT, l.Reversed, days, when)
		}
		all = append(all, labels...)
	}
	tw.Flush()

	st := label.Summarize(all)
	fmt.Printf("\ntouches=%d reversals=%d rate=%.1f%% mean_days=%.2f\n", st.Touches, st.Reversals, 100*st.Rate, st.MeanDay)
	return nil
}
