// Package batch runs the detect → label → simulate → featurize pipeline over a
// sweep of filter configurations and instruments.
//
// Every (config, instrument) pair is an independent unit with its own config
// snapshot. Units run on a bounded worker pool and their results are merged
// only after the unit completes. A failing unit is recorded in the run's error
// log and never stops the others.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"trendreversal/internal/detect"
	"trendreversal/internal/features"
	"trendreversal/internal/filter"
	"trendreversal/internal/indicator"
	"trendreversal/internal/label"
	"trendreversal/internal/logger"
	"trendreversal/internal/metrics"
	"trendreversal/internal/model"
	"trendreversal/internal/sim"
)

// Pipeline stages reported in RunError.Stage.
const (
	StageLoad     = "load"
	StageDetect   = "detect"
	StageLabel    = "label"
	StageSimulate = "simulate"
	StageFeatures = "features"
	StagePersist  = "persist"
	StagePublish  = "publish"
)

// ErrNoBars is reported for an instrument with no bars inside the run window.
var ErrNoBars = errors.New("no bars in range")

// Options controls a batch run.
type Options struct {
	Workers int

	// From and To restrict the evaluated bars to From <= t < To after
	// indicators and bands have been computed on the full history. Zero is open.
	From time.Time
	To   time.Time

	// Recompute forces Keltner bands from each config's lookback and multiplier.
	Recompute bool

	// HigherTF loads the weekly series for the htf_touch feature.
	HigherTF bool

	Enrich indicator.EnrichConfig
}

// DefaultOptions uses one worker and the provider column set.
func DefaultOptions() Options {
	return Options{Workers: 1, HigherTF: true, Enrich: indicator.DefaultEnrichConfig()}
}

// Year returns the [Jan 1 year, Jan 1 year+1) window.
func Year(year int) (from, to time.Time) {
	from = time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
	return from, from.AddDate(1, 0, 0)
}

// UnitResult holds the output of one (config, instrument) unit.
type UnitResult struct {
	ConfigID   string
	Instrument string

	Touches  []model.TouchEvent
	Labels   []model.LabelRecord
	Trades   []model.Trade
	Skips    []model.SkipRecord
	Summary  model.Summary
	Features []model.FeatureVector
	Dropped  int

	// Failed is set when the unit aborted; its outputs are then empty.
	Failed bool

	configIdx, instrIdx int
}

// Result is the merged output of a run, ordered by (config, instrument) in
// input order.
type Result struct {
	RunID  string
	Units  []UnitResult
	Errors []model.RunError
}

// Trades returns every trade in unit order.
func (r *Result) Trades() []model.Trade {
	var out []model.Trade
	for i := range r.Units {
		out = append(out, r.Units[i].Trades...)
	}
	return out
}

// Summaries returns one summary per completed unit.
func (r *Result) Summaries() []model.Summary {
	out := make([]model.Summary, 0, len(r.Units))
	for i := range r.Units {
		if !r.Units[i].Failed {
			out = append(out, r.Units[i].Summary)
		}
	}
	return out
}

// Features returns the feature rows of every unit of configID.
func (r *Result) Features(configID string) []model.FeatureVector {
	var out []model.FeatureVector
	for i := range r.Units {
		if r.Units[i].ConfigID == configID {
			out = append(out, r.Units[i].Features...)
		}
	}
	return out
}

// Runner executes batch runs against a series source. Metrics, Health,
// Writer and Publisher are optional.
type Runner struct {
	Source    model.SeriesSource
	Options   Options
	Metrics   *metrics.Metrics
	Health    *metrics.HealthStatus
	Writer    model.ResultWriter
	Publisher model.ResultPublisher

	now func() time.Time
}

// NewRunner creates a runner.
func NewRunner(src model.SeriesSource, opts Options) *Runner {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Enrich == (indicator.EnrichConfig{}) {
		opts.Enrich = indicator.DefaultEnrichConfig()
	}
	return &Runner{Source: src, Options: opts, now: time.Now}
}

// instrumentData is the shared read-only input of every unit of one instrument.
type instrumentData struct {
	daily    *model.Series // full history; the window is applied after banding
	weekly   *model.Series
	inWindow int
	err      error
}

// Run evaluates every config against every instrument. It returns an error only
// when ctx is cancelled; unit failures are reported in Result.Errors.
func (r *Runner) Run(ctx context.Context, configs []filter.Config, instruments []string) (*Result, error) {
	runID := logger.RunID(ctx)
	if runID == "" {
		runID = logger.NewRunID()
		ctx = logger.WithRunID(ctx, runID)
	}
	res := &Result{RunID: runID}
	if r.Health != nil {
		r.Health.StartRun(runID, len(configs)*len(instruments))
	}
	slog.Info("batch started", append(logger.LogWithRun(ctx),
		"configs", len(configs), "instruments", len(instruments), "workers", r.Options.Workers)...)

	data, err := r.load(ctx, instruments)
	if err != nil {
		return res, err
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.Options.Workers)

schedule:
	for ci := range configs {
		for ii, instr := range instruments {
			if gctx.Err() != nil {
				break schedule
			}
			cfg := configs[ci].Clone()
			g.Go(func() error {
				start := r.now()
				ur, errs := r.unit(gctx, cfg, data[ii], instr)
				ur.configIdx, ur.instrIdx = ci, ii
				r.observe(&ur, errs, r.now().Sub(start))

				mu.Lock()
				res.Units = append(res.Units, ur)
				for _, e := range errs {
					e.RunID = runID
					res.Errors = append(res.Errors, e)
				}
				mu.Unlock()

				r.publish(gctx, runID, &ur)
				return nil
			})
		}
	}
	g.Wait()

	sort.SliceStable(res.Units, func(a, b int) bool {
		ua, ub := res.Units[a], res.Units[b]
		if ua.configIdx != ub.configIdx {
			return ua.configIdx < ub.configIdx
		}
		return ua.instrIdx < ub.instrIdx
	})
	sortErrors(res.Errors, configs, instruments)

	if err := ctx.Err(); err != nil {
		return res, err
	}

	r.persist(ctx, res)

	slog.Info("batch finished", append(logger.LogWithRun(ctx),
		"units", len(res.Units), "trades", len(res.Trades()), "errors", len(res.Errors))...)
	return res, nil
}

// load reads and enriches every instrument once. Load failures are kept per
// instrument and surface as unit errors.
func (r *Runner) load(ctx context.Context, instruments []string) ([]instrumentData, error) {
	out := make([]instrumentData, len(instruments))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.Options.Workers)
	for i, instr := range instruments {
		g.Go(func() error {
			out[i] = r.loadInstrument(gctx, instr)
			return nil
		})
	}
	g.Wait()
	return out, ctx.Err()
}

func (r *Runner) loadInstrument(ctx context.Context, instr string) instrumentData {
	daily, err := r.Source.LoadSeries(ctx, instr, model.TimeframeDaily)
	if err != nil {
		return instrumentData{err: err}
	}
	daily, computed := indicator.Enrich(daily, r.Options.Enrich)
	if len(computed) > 0 {
		slog.Debug("computed missing indicator columns", "instrument", instr, "columns", computed)
	}

	var weekly *model.Series
	if r.Options.HigherTF {
		w, err := r.Source.LoadSeries(ctx, instr, model.TimeframeWeekly)
		if err == nil && !w.HasIndicator(model.IndBandLower) {
			w, err = indicator.WithKeltner(w, indicator.DefaultKeltnerPeriod, indicator.DefaultKeltnerMultiplier)
		}
		if err != nil {
			slog.Warn("weekly series unavailable, htf_touch reads 0", "instrument", instr, "error", err)
		} else {
			weekly = w
		}
	}
	return instrumentData{daily: daily, weekly: weekly, inWindow: daily.Between(r.Options.From, r.Options.To).Len()}
}

// unit runs the full pipeline for one pair. A panic fails the unit at the stage
// it occurred in.
func (r *Runner) unit(ctx context.Context, cfg filter.Config, in instrumentData, instr string) (ur UnitResult, errs []model.RunError) {
	ur = UnitResult{ConfigID: cfg.ID, Instrument: instr}
	stage := StageLoad
	fail := func(err error) {
		errs = append(errs, model.RunError{
			ConfigID:   cfg.ID,
			Instrument: instr,
			Stage:      stage,
			Message:    err.Error(),
			At:         r.now(),
		})
		slog.Warn("unit failed", append(logger.LogWithRun(ctx),
			"config", cfg.ID, "instrument", instr, "stage", stage, "error", err)...)
	}
	aborted := UnitResult{ConfigID: cfg.ID, Instrument: instr, Failed: true}
	defer func() {
		if p := recover(); p != nil {
			ur = aborted
			fail(fmt.Errorf("panic: %v", p))
		}
	}()

	if in.err != nil {
		fail(in.err)
		return aborted, errs
	}
	if in.inWindow == 0 {
		fail(ErrNoBars)
		return aborted, errs
	}

	stage = StageDetect
	touches, banded, err := detect.Touches(in.daily, detect.Options{
		Recompute:  r.Options.Recompute,
		Period:     cfg.Lookback,
		Multiplier: cfg.Multiplier,
		From:       r.Options.From,
		To:         r.Options.To,
	})
	if err != nil {
		fail(err)
		return aborted, errs
	}

	stage = StageLabel
	labels, lookups, err := label.ReversalsLenient(banded, detect.Times(touches), cfg.Lookahead)
	if err != nil {
		fail(err)
		return aborted, errs
	}
	// a missing touch timestamp only costs that event
	for _, e := range lookups {
		fail(e)
	}

	stage = StageSimulate
	trades, skips := sim.New(cfg).Run(banded, touches)

	stage = StageFeatures
	b := features.Builder{HigherTF: in.weekly}
	rows, dropped := b.Build(features.FromTouches(touches, labels))

	ur.Touches = touches
	ur.Labels = labels
	ur.Trades = trades
	ur.Skips = skips
	ur.Summary = sim.Summarize(instr, cfg.ID, trades)
	ur.Features = rows
	ur.Dropped = dropped
	return ur, errs
}

func (r *Runner) observe(ur *UnitResult, errs []model.RunError, took time.Duration) {
	if r.Health != nil {
		r.Health.UnitDone(ur.Failed)
	}
	m := r.Metrics
	if m == nil {
		return
	}
	result := "ok"
	if ur.Failed {
		result = "failed"
	}
	m.UnitsTotal.WithLabelValues(result).Inc()
	m.UnitDur.Observe(took.Seconds())
	m.TouchesTotal.Add(float64(len(ur.Touches)))
	for _, l := range ur.Labels {
		m.LabelsTotal.WithLabelValues(strconv.FormatBool(l.Reversed)).Inc()
	}
	for _, t := range ur.Trades {
		m.TradesTotal.WithLabelValues(t.ExitReason).Inc()
	}
	for _, s := range ur.Skips {
		m.SkipsTotal.WithLabelValues(s.Reason).Inc()
	}
	m.FeatureRows.Add(float64(len(ur.Features)))
	m.FeatureDropped.Add(float64(ur.Dropped))
	for _, e := range errs {
		m.RunErrorsTotal.WithLabelValues(e.Stage).Inc()
	}
}

// publish fans a finished unit out. Failures are logged only; the publisher
// sits behind a circuit breaker and is not part of the run's outcome.
func (r *Runner) publish(ctx context.Context, runID string, ur *UnitResult) {
	if r.Publisher == nil || ur.Failed {
		return
	}
	if err := r.Publisher.PublishTrades(ctx, runID, ur.Trades); err != nil {
		slog.Warn("publish trades failed", "config", ur.ConfigID, "instrument", ur.Instrument, "error", err)
		return
	}
	if err := r.Publisher.PublishSummary(ctx, runID, ur.Summary); err != nil {
		slog.Warn("publish summary failed", "config", ur.ConfigID, "instrument", ur.Instrument, "error", err)
	}
}

// persist writes the merged result. Write failures are appended to the error
// log, which is written last.
func (r *Runner) persist(ctx context.Context, res *Result) {
	w := r.Writer
	if w == nil {
		return
	}
	fail := func(err error) {
		slog.Error("persist failed", append(logger.LogWithRun(ctx), "error", err)...)
		res.Errors = append(res.Errors, model.RunError{
			RunID:   res.RunID,
			Stage:   StagePersist,
			Message: err.Error(),
			At:      r.now(),
		})
	}

	if err := w.WriteTrades(ctx, res.RunID, res.Trades()); err != nil {
		fail(err)
	}
	for i := range res.Units {
		u := &res.Units[i]
		if len(u.Labels) == 0 {
			continue
		}
		if err := w.WriteLabels(ctx, res.RunID, u.ConfigID, u.Instrument, u.Labels); err != nil {
			fail(err)
			break
		}
	}
	if err := w.WriteSummaries(ctx, res.RunID, res.Summaries()); err != nil {
		fail(err)
	}
	if len(res.Errors) > 0 {
		if err := w.WriteRunErrors(ctx, res.RunID, res.Errors); err != nil {
			slog.Error("write run errors failed", append(logger.LogWithRun(ctx), "error", err)...)
		}
	}
}

// sortErrors orders the error log by (config, instrument) input order, keeping
// the per-unit emission order.
func sortErrors(errs []model.RunError, configs []filter.Config, instruments []string) {
	cpos := make(map[string]int, len(configs))
	for i, c := range configs {
		cpos[c.ID] = i
	}
	ipos := make(map[string]int, len(instruments))
	for i, s := range instruments {
		ipos[s] = i
	}
	sort.SliceStable(errs, func(a, b int) bool {
		ea, eb := errs[a], errs[b]
		if cpos[ea.ConfigID] != cpos[eb.ConfigID] {
			return cpos[ea.ConfigID] < cpos[eb.ConfigID]
		}
		return ipos[ea.Instrument] < ipos[eb.Instrument]
	})
}
