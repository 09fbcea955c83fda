package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"trendreversal/internal/batch"
	"trendreversal/internal/export"
	"trendreversal/internal/filter"
	"trendreversal/internal/logger"
	"trendreversal/internal/metrics"
	"trendreversal/internal/model"
	redisstore "trendreversal/internal/store/redis"
	sqlitestore "trendreversal/internal/store/sqlite"
)

var (
	batchWorkers     int
	batchOut         string
	batchFormat      string
	batchMatrix      bool
	batchRecompute   bool
	batchNoWeekly    bool
	batchResultsDB   string
	batchRedisAddr   string
	batchMetricsAddr string
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Sweep every filter configuration over every ticker",
	Long: `Runs each (configuration, ticker) pair as an independent unit on a bounded
worker pool. Failures are isolated per unit and collected into the run's error
log. Results are written to --out as trades, summary and feature tables, and
optionally persisted to SQLite and published to Redis Streams.

Examples:
  backtest batch --config configs.yaml --tickers AAPL,MSFT --year 2023
  backtest batch --matrix --workers 8 --format parquet --results-db results/runs.db`,
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)
	f := batchCmd.Flags()
	f.IntVar(&batchWorkers, "workers", env.Workers, "Concurrent units")
	f.StringVar(&batchOut, "out", env.ResultsDir, "Output directory")
	f.StringVar(&batchFormat, "format", "csv", "Output format: csv, parquet, json")
	f.BoolVar(&batchMatrix, "matrix", false, "Sweep all 128 gate combinations of the base configuration")
	f.BoolVar(&batchRecompute, "recompute", false, "Compute bands from each config's lookback and multiplier")
	f.BoolVar(&batchNoWeekly, "no-weekly", false, "Skip the weekly series (htf_touch reads 0)")
	f.StringVar(&batchResultsDB, "results-db", "", "SQLite database for trades, labels, summaries and run errors")
	f.StringVar(&batchRedisAddr, "redis", env.RedisAddr, "Redis address for result streams (empty disables)")
	f.StringVar(&batchMetricsAddr, "metrics-addr", env.MetricsAddr, "Address for /metrics and /healthz (empty disables)")
}

func runBatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	saver := export.NewSaver(batchFormat)
	if saver == nil {
		return fmt.Errorf("unsupported format %q (use csv, parquet, json)", batchFormat)
	}

	configs, err := filterConfigs()
	if err != nil {
		return err
	}
	if batchMatrix {
		base := filter.Default()
		if len(configs) > 0 {
			base = configs[0]
		}
		configs = filter.Matrix(base)
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

	opts := batch.DefaultOptions()
	opts.Workers = batchWorkers
	opts.From, opts.To = window()
	opts.Recompute = batchRecompute
	opts.HigherTF = !batchNoWeekly

	runner := batch.NewRunner(src, opts)
	runner.Metrics = metrics.NewMetrics(nil)
	runner.Health = metrics.NewHealthStatus()

	if batchMetricsAddr != "" {
		srv := metrics.NewServer(batchMetricsAddr, runner.Metrics, runner.Health)
		srv.Start()
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Stop(sctx)
		}()
	}

	if batchResultsDB != "" {
		w, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: batchResultsDB})
		if err != nil {
			return err
		}
		defer w.Close()
		w.OnCommit = func(d time.Duration) { runner.Metrics.SQLiteCommitDur.Observe(d.Seconds()) }
		runner.Health.CheckSQLite(ctx, w.DB())
		runner.Writer = w
	}

	if batchRedisAddr != "" {
		pub, err := newPublisher(ctx, runner)
		if err != nil {
			// results still land on disk; the stream is best effort
			slog.Warn("redis unavailable, publishing disabled", "addr", batchRedisAddr, "error", err)
		} else {
			defer pub.Close()
			runner.Publisher = pub
		}
	}

	ctx = logger.WithRunID(ctx, logger.NewRunID())
	res, err := runner.Run(ctx, configs, list)
	if err != nil {
		return err
	}

	tables := export.Tables{
		Trades:    export.TradeRows(res.Trades()),
		Summaries: export.SummaryRows(res.Summaries()),
	}
	for _, u := range res.Units {
		tables.Features = append(tables.Features, export.FeatureRows(u.Instrument, u.ConfigID, u.Features)...)
	}
	prefix := "all"
	if flagYear != 0 {
		prefix = strconv.Itoa(flagYear)
	}
	paths, err := export.Save(batchOut, prefix, saver, tables)
	if err != nil {
		return err
	}

	for _, e := range res.Errors {
		slog.Warn("unit error", "config", e.ConfigID, "instrument", e.Instrument, "stage", e.Stage, "error", e.Message)
	}
	if len(configs) == 1 {
		printSummaries(os.Stderr, res.Summaries())
	}
	slog.Info("batch written", "run_id", res.RunID, "files", paths, "errors", len(res.Errors))
	return nil
}

// newPublisher connects to Redis behind a circuit breaker whose transitions
// feed the breaker metrics.
func newPublisher(ctx context.Context, runner *batch.Runner) (model.ResultPublisher, error) {
	pub, err := redisstore.New(redisstore.PublisherConfig{
		Addr:         batchRedisAddr,
		Password:     env.RedisPassword,
		MaxFailures:  5,
		ResetTimeout: 10 * time.Second,
	})
	if err != nil {
		return nil, err
	}
	m := runner.Metrics
	pub.OnWrite = func(d time.Duration) { m.RedisWriteDur.Observe(d.Seconds()) }
	pub.Breaker().OnStateChange = func(from, to redisstore.State) {
		m.RedisCircuitBreakerState.Set(float64(to))
		if to == redisstore.StateOpen {
			m.RedisCircuitBreakerTrips.Inc()
		}
		slog.Warn("redis circuit breaker", "from", from.String(), "to", to.String())
	}
	runner.Health.CheckRedis(ctx, pub.Client())
	return redisstore.NewBufferedPublisher(pub, 10000), nil
}
