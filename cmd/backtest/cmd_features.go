package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"trendreversal/internal/detect"
	"trendreversal/internal/export"
	"trendreversal/internal/features"
	"trendreversal/internal/indicator"
	"trendreversal/internal/label"
	"trendreversal/internal/model"
	"trendreversal/internal/sim"
)

var (
	featuresOut         string
	featuresFormat      string
	featuresLabels      string
	featuresImportances string
)

var featuresCmd = &cobra.Command{
	Use:   "features",
	Short: "Build the classifier feature matrix",
	Long: `Builds one feature row per touch (--labels reversal) or per simulated trade
(--labels trade) with columns dist_pct, ema_short_diff, ema_long_diff,
macd_center, rsi, force_index and htf_touch. Rows with any undefined input are
dropped.

With --importances, a JSON file of importances exported by the training job is
ranked against the feature names.

Example:
  backtest features --tickers AAPL,MSFT --labels trade --out results/features.parquet`,
	RunE: runFeatures,
}

func init() {
	rootCmd.AddCommand(featuresCmd)
	f := featuresCmd.Flags()
	f.StringVar(&featuresOut, "out", filepath.Join(env.ResultsDir, "features.parquet"), "Feature matrix path")
	f.StringVar(&featuresFormat, "format", "parquet", "Output format: csv, parquet, json")
	f.StringVar(&featuresLabels, "labels", "reversal", "Row source and label: reversal (touches) or trade (trade won)")
	f.StringVar(&featuresImportances, "importances", "", "JSON importances to rank (array or name map)")
}

func runFeatures(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if featuresImportances != "" && len(args) == 0 && flagTickers == "" {
		return rankImportances()
	}
	if featuresLabels != "reversal" && featuresLabels != "trade" {
		return fmt.Errorf("--labels must be reversal or trade, got %q", featuresLabels)
	}
	saver := export.NewSaver(featuresFormat)
	if saver == nil {
		return fmt.Errorf("unsupported format %q", featuresFormat)
	}
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

	var (
		rows    []export.FeatureRow
		dropped int
	)
	for _, instr := range list {
		s, err := loadDaily(ctx, src, instr)
		if err != nil {
			slog.Warn("skipping instrument", "instrument", instr, "error", err)
			continue
		}
		touches, banded, err := detect.Touches(s, windowed(detect.Options{Period: cfg.Lookback, Multiplier: cfg.Multiplier}))
		if err != nil {
			slog.Warn("skipping instrument", "instrument", instr, "error", err)
			continue
		}

		var events []features.Event
		if featuresLabels == "trade" {
			trades, _ := sim.New(cfg).Run(banded, touches)
			events = features.FromTrades(banded, trades)
		} else {
			labels, _, err := label.ReversalsLenient(banded, detect.Times(touches), cfg.Lookahead)
			if err != nil {
				return err
			}
			events = features.FromTouches(touches, labels)
		}

		b := features.Builder{HigherTF: weeklyBands(cmd, src, instr)}
		vecs, n := b.Build(events)
		dropped += n
		rows = append(rows, export.FeatureRows(instr, cfg.ID, vecs)...)
	}

	if err := os.MkdirAll(filepath.Dir(featuresOut), 0o755); err != nil {
		return err
	}
	if err := saver.SaveFeatures(featuresOut, rows); err != nil {
		return err
	}
	slog.Info("feature matrix written", "path", featuresOut, "rows", len(rows), "dropped", dropped)

	if featuresImportances != "" {
		return rankImportances()
	}
	return nil
}

// weeklyBands loads the weekly series with its lower band, or nil.
func weeklyBands(cmd *cobra.Command, src model.SeriesSource, instr string) *model.Series {
	w, err := src.LoadSeries(cmd.Context(), instr, model.TimeframeWeekly)
	if err == nil && !w.HasIndicator(model.IndBandLower) {
		w, err = indicator.WithKeltner(w, indicator.DefaultKeltnerPeriod, indicator.DefaultKeltnerMultiplier)
	}
	if err != nil {
		slog.Warn("weekly series unavailable, htf_touch reads 0", "instrument", instr, "error", err)
		return nil
	}
	return w
}

func rankImportances() error {
	imp, err := features.LoadImportances(featuresImportances)
	if err != nil {
		return err
	}
	ranked, err := features.Rank(imp, features.Names)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tFEATURE\tIMPORTANCE")
	for i, r := range ranked {
		fmt.Fprintf(tw, "%d\t%s\t%.4f\n", i+1, r.Name, r.Value)
	}
	return tw.Flush()
}
