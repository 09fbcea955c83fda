package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"trendreversal/config"
	"trendreversal/internal/feed"
	"trendreversal/internal/model"
	sqlitestore "trendreversal/internal/store/sqlite"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Load CSV bar files into the SQLite bars table",
	Long: `Reads <data-dir>/daily and <data-dir>/weekly CSV files of the given tickers
and stores them in the bars table of --sqlite, replacing bars with the same
timestamp. Missing weekly files are skipped; they are resampled on read.

Example:
  backtest import --tickers AAPL,MSFT --sqlite data/bars.db`,
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if flagSQLite == "" {
		return fmt.Errorf("import needs --sqlite or SQLITE_PATH")
	}
	list := config.SplitList(flagTickers)
	if len(list) == 0 {
		return fmt.Errorf("no tickers: pass --tickers or set TICKERS")
	}

	w, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: flagSQLite})
	if err != nil {
		return err
	}
	defer w.Close()

	csvSrc := feed.NewCSVSource(flagDataDir)
	for _, instr := range list {
		for _, tf := range []string{model.TimeframeDaily, model.TimeframeWeekly} {
			s, err := feed.LoadCSV(csvSrc.Path(instr, tf), instr, tf)
			if errors.Is(err, os.ErrNotExist) && tf == model.TimeframeWeekly {
				continue
			}
			if err != nil {
				slog.Warn("skipping file", "instrument", instr, "timeframe", tf, "error", err)
				continue
			}
			if err := w.WriteBars(ctx, s); err != nil {
				return err
			}
		}
	}
	return nil
}
