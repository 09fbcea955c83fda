package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"trendreversal/config"
	"trendreversal/internal/export"
	"trendreversal/internal/model"
	redisstore "trendreversal/internal/store/redis"
)

var (
	resultsRedisAddr string
	resultsRunID     string
	resultsFrom      string
)

var resultsCmd = &cobra.Command{
	Use:   "results",
	Short: "Read published trades and summaries back from Redis",
	Long: `Replays the trade stream of --config-id from Redis as CSV on stdout and
prints the latest published summary of each ticker on stderr.

Example:
  backtest results --redis localhost:6379 --config-id C042 --tickers AAPL,MSFT`,
	RunE: runResults,
}

func init() {
	rootCmd.AddCommand(resultsCmd)
	f := resultsCmd.Flags()
	f.StringVar(&resultsRedisAddr, "redis", env.RedisAddr, "Redis address")
	f.StringVar(&resultsRunID, "run-id", "", "Only trades of this run")
	f.StringVar(&resultsFrom, "from-id", "0", "Stream ID to resume after")
}

func runResults(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if resultsRedisAddr == "" {
		return fmt.Errorf("results needs --redis or REDIS_ADDR")
	}
	if flagConfigID == "" {
		return fmt.Errorf("results needs --config-id")
	}

	r, err := redisstore.NewReader(redisstore.ReaderConfig{Addr: resultsRedisAddr, Password: env.RedisPassword})
	if err != nil {
		return err
	}
	defer r.Close()

	if len(r.TradeStreams(ctx, []string{flagConfigID})) == 0 {
		return fmt.Errorf("no trades published for %s", flagConfigID)
	}
	trades, last, err := r.ReplayTrades(ctx, flagConfigID, resultsRunID, resultsFrom)
	if err != nil {
		return err
	}
	if err := export.WriteTradesCSV(os.Stdout, export.TradeRows(trades)); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "%d trades, last id %s\n", len(trades), last)

	var sums []model.Summary
	for _, instr := range config.SplitList(flagTickers) {
		s, ok, err := r.LatestSummary(ctx, flagConfigID, instr)
		if err != nil {
			return err
		}
		if ok {
			sums = append(sums, s)
		}
	}
	if len(sums) > 0 {
		printSummaries(os.Stderr, sums)
	}
	return nil
}
