// Package sim turns filtered touch candidates into simulated long trades.
//
// Each candidate runs through a small state machine: entry at the touch bar's
// close (or the next bar's open), then holding until an exit rule fires or
// history runs out. The holding scan reads only bar j and j-1.
package sim

import (
	"fmt"
	"log/slog"

	"trendreversal/internal/filter"
	"trendreversal/internal/model"
)

// Exit reasons.
const (
	ExitMomentum     = "momentum_reversal"
	ExitBandCenter   = "band_center"
	ExitHoldExpired  = "hold_expired"
	ExitEndOfHistory = "end_of_history"
)

// Skip reasons.
const (
	SkipNotInSeries  = "not_in_series"
	SkipNoEntryBar   = "no_entry_bar"
	SkipNoExitBar    = "no_exit_bar"
	SkipEndOfHistory = "end_of_history"
	SkipFilterPrefix = "filtered:"
	SkipPanic        = "panic"
)

// Simulator runs one filter configuration over one instrument at a time.
// It holds no per-run state and may be shared by goroutines.
type Simulator struct {
	cfg      filter.Config
	pipeline *filter.Pipeline

	// Metrics hooks (optional)
	OnTrade func(t model.Trade)
	OnSkip  func(r model.SkipRecord)
}

// New snapshots cfg into a simulator.
func New(cfg filter.Config) *Simulator {
	cfg = cfg.Clone()
	return &Simulator{cfg: cfg, pipeline: filter.NewPipeline(cfg)}
}

// Config returns the simulator's configuration snapshot.
func (sim *Simulator) Config() filter.Config { return sim.cfg.Clone() }

// Run simulates every touch in order. Candidates that cannot be traded are
// returned as skip records; Run itself never fails.
func (sim *Simulator) Run(s *model.Series, touches []model.TouchEvent) ([]model.Trade, []model.SkipRecord) {
	var (
		trades []model.Trade
		skips  []model.SkipRecord
	)
	for _, ev := range touches {
		tr, reason := sim.candidate(s, ev)
		if reason != "" {
			rec := model.SkipRecord{SignalTime: ev.Time, Reason: reason}
			skips = append(skips, rec)
			if sim.OnSkip != nil {
				sim.OnSkip(rec)
			}
			continue
		}
		trades = append(trades, tr)
		if sim.OnTrade != nil {
			sim.OnTrade(tr)
		}
	}
	return trades, skips
}

// candidate runs the state machine for one touch. A panic is contained to the
// candidate and reported as a skip.
func (sim *Simulator) candidate(s *model.Series, ev model.TouchEvent) (tr model.Trade, reason string) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("simulation panic", "instrument", s.Instrument, "config", sim.cfg.ID, "signal", ev.Time, "panic", r)
			tr, reason = model.Trade{}, fmt.Sprintf("%s: %v", SkipPanic, r)
		}
	}()

	i, ok := s.IndexOf(ev.Time)
	if !ok {
		return tr, SkipNotInSeries
	}
	if d := sim.pipeline.Evaluate(s, i); !d.Pass {
		return tr, SkipFilterPrefix + d.RejectedBy
	}

	// Entry
	e := i
	entry := s.Bars[i].Close
	if sim.cfg.Entry == filter.EntryNextOpen {
		e = i + 1
		if e >= s.Len() {
			return tr, SkipNoEntryBar
		}
		entry = s.Bars[e].Open
	}
	if e+1 >= s.Len() {
		return tr, SkipNoExitBar
	}

	// Holding
	var (
		x   int
		why string
	)
	if sim.cfg.TrailingExit {
		x, why = sim.trailingExit(s, e)
	} else {
		x, why = sim.fixedExit(s, i, e)
	}
	if why == ExitEndOfHistory && sim.cfg.EndOfHistory == filter.EndDrop {
		return tr, SkipEndOfHistory
	}

	exit := s.Bars[x].Close
	return model.Trade{
		Instrument: s.Instrument,
		ConfigID:   sim.cfg.ID,
		SignalTime: s.Bars[i].Time,
		EntryTime:  s.Bars[e].Time,
		EntryPrice: entry,
		ExitTime:   s.Bars[x].Time,
		ExitPrice:  exit,
		Return:     exit/entry - 1,
		ExitReason: why,
	}, ""
}

// trailingExit scans j = e+1.. and exits on the first bar whose close is below
// the previous close, or whose close has crossed the middle band in the
// configured direction. The momentum rule is checked first.
func (sim *Simulator) trailingExit(s *model.Series, e int) (int, string) {
	last := s.Len() - 1
	for j := e + 1; j <= last; j++ {
		cur, prev := &s.Bars[j], &s.Bars[j-1]
		if cur.Close < prev.Close {
			return j, ExitMomentum
		}
		if mid, ok := cur.Value(model.IndBandMiddle); ok {
			if sim.cfg.CenterExit == filter.CenterBelow && cur.Close < mid {
				return j, ExitBandCenter
			}
			if sim.cfg.CenterExit != filter.CenterBelow && cur.Close > mid {
				return j, ExitBandCenter
			}
		}
	}
	return last, ExitEndOfHistory
}

// fixedExit exits HoldDays bars after the signal, never before the bar after
// entry, clamped to the last bar.
func (sim *Simulator) fixedExit(s *model.Series, i, e int) (int, string) {
	x := i + sim.cfg.HoldDays
	if x <= e {
		x = e + 1
	}
	if last := s.Len() - 1; x > last {
		return last, ExitEndOfHistory
	}
	return x, ExitHoldExpired
}
