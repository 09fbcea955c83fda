package sim

import (
	"math"
	"strings"
	"testing"

	"trendreversal/internal/detect"
	"trendreversal/internal/filter"
	"trendreversal/internal/fixture"
	"trendreversal/internal/label"
	"trendreversal/internal/model"
)

func touchAt(s *model.Series, idx ...int) []model.TouchEvent {
	out := make([]model.TouchEvent, len(idx))
	for k, i := range idx {
		out[k] = model.TouchEvent{Index: i, Time: s.Bars[i].Time, Bar: s.Bars[i]}
	}
	return out
}

func assertClose(t *testing.T, name string, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("%s: got %.6f, want %.6f", name, got, want)
	}
}

func TestEndToEnd_Scenario30(t *testing.T) {
	s := fixture.Scenario30()

	touches, banded, err := detect.Touches(s, detect.DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}

	labels, err := label.Reversals(banded, detect.Times(touches), []int{1})
	if err != nil {
		t.Fatal(err)
	}
	reversed := 0
	for _, l := range labels {
		if l.Reversed {
			reversed++
			if !l.Time.Equal(fixture.Day(12)) || l.FirstReversalDay != 1 {
				t.Errorf("unexpected reversal %+v", l)
			}
		}
	}
	if reversed != 1 {
		t.Fatalf("expected exactly one reversal label, got %d", reversed)
	}

	cfg := filter.Default()
	cfg.Confirmation = true
	cfg.TrailingExit = true
	cfg.Entry = filter.EntryNextOpen

	trades, skips := New(cfg).Run(banded, touches)
	if len(trades) != 1 {
		t.Fatalf("expected exactly one trade, got %d (skips %+v)", len(trades), skips)
	}
	tr := trades[0]
	if !tr.SignalTime.Equal(fixture.Day(12)) || !tr.EntryTime.Equal(fixture.Day(13)) {
		t.Errorf("signal %v entry %v, want bars 12 and 13", tr.SignalTime, tr.EntryTime)
	}
	assertClose(t, "entry price", tr.EntryPrice, 101)
	if !tr.ExitTime.Equal(fixture.Day(15)) || tr.ExitReason != ExitBandCenter {
		t.Errorf("exit %v (%s), want bar 15 band_center", tr.ExitTime, tr.ExitReason)
	}
	assertClose(t, "return", tr.Return, 111.0/101.0-1)

	if len(skips) != 2 {
		t.Fatalf("expected bars 10 and 11 skipped, got %+v", skips)
	}
	for _, sk := range skips {
		if sk.Reason != SkipFilterPrefix+filter.GateConfirmation {
			t.Errorf("skip reason %q", sk.Reason)
		}
	}
}

func TestFixedHorizon(t *testing.T) {
	s := fixture.Scenario30()
	cfg := filter.Default()
	cfg.HoldDays = 5

	trades, skips := New(cfg).Run(s, touchAt(s, 10, 11, 12))
	if len(trades) != 3 || len(skips) != 0 {
		t.Fatalf("got %d trades, %d skips", len(trades), len(skips))
	}
	for k, tr := range trades {
		i := 10 + k
		if !tr.EntryTime.Equal(fixture.Day(i)) || !tr.ExitTime.Equal(fixture.Day(i+5)) {
			t.Errorf("trade %d: %v -> %v", k, tr.EntryTime, tr.ExitTime)
		}
		if tr.ExitReason != ExitHoldExpired {
			t.Errorf("trade %d reason %s", k, tr.ExitReason)
		}
		assertClose(t, "entry at close", tr.EntryPrice, s.Bars[i].Close)
	}
}

func TestFixedHorizon_NextOpenNeverExitsBeforeEntry(t *testing.T) {
	s := fixture.Closes("X", 100, 99, 101, 102, 103)
	cfg := filter.Default()
	cfg.HoldDays = 1
	cfg.Entry = filter.EntryNextOpen

	trades, _ := New(cfg).Run(s, touchAt(s, 1))
	if len(trades) != 1 {
		t.Fatal("expected a trade")
	}
	if !trades[0].EntryTime.Before(trades[0].ExitTime) {
		t.Fatalf("entry %v not before exit %v", trades[0].EntryTime, trades[0].ExitTime)
	}
	if !trades[0].ExitTime.Equal(fixture.Day(3)) {
		t.Errorf("exit = %v, want the bar after entry", trades[0].ExitTime)
	}
}

func TestTrailing_MomentumReversalHasPriority(t *testing.T) {
	s := fixture.Closes("X", 100, 95, 97, 99, 98, 104)
	s = s.WithColumns(map[string][]float64{model.IndBandMiddle: {120, 120, 120, 120, 90, 120}})
	cfg := filter.Default()
	cfg.TrailingExit = true

	trades, _ := New(cfg).Run(s, touchAt(s, 1))
	if len(trades) != 1 {
		t.Fatal("expected a trade")
	}
	// bar 4 closes below bar 3 and above its middle band; momentum wins.
	if !trades[0].ExitTime.Equal(fixture.Day(4)) || trades[0].ExitReason != ExitMomentum {
		t.Errorf("exit %v %s", trades[0].ExitTime, trades[0].ExitReason)
	}
	assertClose(t, "return", trades[0].Return, 98.0/95.0-1)
}

func TestTrailing_CenterBelow(t *testing.T) {
	s := fixture.Closes("X", 100, 95, 96, 97)
	s = s.WithColumns(map[string][]float64{model.IndBandMiddle: {99, 99, 95, 99}})
	cfg := filter.Default()
	cfg.TrailingExit = true
	cfg.CenterExit = filter.CenterBelow

	trades, _ := New(cfg).Run(s, touchAt(s, 1))
	if len(trades) != 1 || !trades[0].ExitTime.Equal(fixture.Day(3)) || trades[0].ExitReason != ExitBandCenter {
		t.Fatalf("unexpected %+v", trades)
	}
}

func TestTrailing_UndefinedMiddleNeverExits(t *testing.T) {
	s := fixture.Closes("X", 100, 95, 96, 97, 98)
	cfg := filter.Default()
	cfg.TrailingExit = true

	trades, _ := New(cfg).Run(s, touchAt(s, 1))
	if len(trades) != 1 || trades[0].ExitReason != ExitEndOfHistory || !trades[0].ExitTime.Equal(fixture.Day(4)) {
		t.Fatalf("expected forced exit at the last bar, got %+v", trades)
	}
}

func TestEndOfHistory_Drop(t *testing.T) {
	s := fixture.Closes("X", 100, 95, 96, 97, 98)
	cfg := filter.Default()
	cfg.TrailingExit = true
	cfg.EndOfHistory = filter.EndDrop

	trades, skips := New(cfg).Run(s, touchAt(s, 1))
	if len(trades) != 0 || len(skips) != 1 || skips[0].Reason != SkipEndOfHistory {
		t.Fatalf("expected a dropped candidate, got trades=%v skips=%v", trades, skips)
	}

	cfg.TrailingExit = false
	cfg.HoldDays = 10
	trades, skips = New(cfg).Run(s, touchAt(s, 1))
	if len(trades) != 0 || skips[0].Reason != SkipEndOfHistory {
		t.Fatalf("fixed horizon past history should drop too, got %v %v", trades, skips)
	}
}

func TestCandidatesAtEndOfHistory(t *testing.T) {
	s := fixture.Closes("X", 100, 95, 96)

	cfg := filter.Default()
	_, skips := New(cfg).Run(s, touchAt(s, 2))
	if len(skips) != 1 || skips[0].Reason != SkipNoExitBar {
		t.Errorf("close entry on last bar: %+v", skips)
	}

	cfg.Entry = filter.EntryNextOpen
	_, skips = New(cfg).Run(s, touchAt(s, 2, 1))
	if len(skips) != 2 || skips[0].Reason != SkipNoEntryBar || skips[1].Reason != SkipNoExitBar {
		t.Errorf("next-open near the end: %+v", skips)
	}
}

func TestTouchNotInSeries(t *testing.T) {
	s := fixture.Closes("X", 100, 95, 96)
	ev := model.TouchEvent{Time: fixture.Day(40)}
	_, skips := New(filter.Default()).Run(s, []model.TouchEvent{ev})
	if len(skips) != 1 || skips[0].Reason != SkipNotInSeries {
		t.Fatalf("got %+v", skips)
	}
}

func TestTradeOrderingInvariant(t *testing.T) {
	closes := []float64{100, 97, 95, 96, 99, 98, 94, 93, 97, 101, 100, 96, 92, 95, 98, 97}
	s := fixture.Closes("X", closes...)
	s = s.WithColumns(map[string][]float64{model.IndBandMiddle: func() []float64 {
		m := make([]float64, len(closes))
		for i := range m {
			m[i] = 98
		}
		return m
	}()})
	all := make([]int, len(closes))
	for i := range all {
		all[i] = i
	}

	for _, entry := range []string{filter.EntryClose, filter.EntryNextOpen} {
		for _, trailing := range []bool{true, false} {
			for _, hold := range []int{1, 3, 20} {
				cfg := filter.Default()
				cfg.Entry, cfg.TrailingExit, cfg.HoldDays = entry, trailing, hold
				trades, _ := New(cfg).Run(s, touchAt(s, all...))
				for _, tr := range trades {
					if !tr.EntryTime.Before(tr.ExitTime) {
						t.Errorf("%s trailing=%v hold=%d: entry %v not before exit %v", entry, trailing, hold, tr.EntryTime, tr.ExitTime)
					}
					if _, ok := s.IndexOf(tr.EntryTime); !ok {
						t.Errorf("entry %v not an input timestamp", tr.EntryTime)
					}
					if _, ok := s.IndexOf(tr.ExitTime); !ok {
						t.Errorf("exit %v not an input timestamp", tr.ExitTime)
					}
					if tr.EntryPrice <= 0 || tr.ExitPrice <= 0 {
						t.Errorf("non-positive price in %+v", tr)
					}
				}
			}
		}
	}
}

func TestNoLookPastExitBar(t *testing.T) {
	base := []float64{100, 95, 96, 94, 99, 120}
	cfg := filter.Default()
	cfg.TrailingExit = true

	a, _ := New(cfg).Run(fixture.Closes("X", base...), touchAt(fixture.Closes("X", base...), 1))
	mutated := append([]float64(nil), base...)
	mutated[4], mutated[5] = 10, 500
	s := fixture.Closes("X", mutated...)
	b, _ := New(cfg).Run(s, touchAt(s, 1))

	if len(a) != 1 || len(b) != 1 || a[0] != b[0] {
		t.Fatalf("bars after the exit bar changed the trade: %+v vs %+v", a, b)
	}
}

func TestRun_HooksAndConfigIsolation(t *testing.T) {
	s := fixture.Scenario30()
	cfg := filter.Default()
	cfg.ID = "iso"
	sim := New(cfg)
	cfg.Confirmation = true // must not leak into sim

	var nTrades, nSkips int
	sim.OnTrade = func(model.Trade) { nTrades++ }
	sim.OnSkip = func(model.SkipRecord) { nSkips++ }
	trades, _ := sim.Run(s, touchAt(s, 10, 11, 12, 29))
	if len(trades) != 3 || nTrades != 3 || nSkips != 1 {
		t.Fatalf("trades=%d hooks=%d/%d", len(trades), nTrades, nSkips)
	}
	if trades[0].ConfigID != "iso" {
		t.Errorf("config id %q", trades[0].ConfigID)
	}
}

func TestSummarize(t *testing.T) {
	trades := []model.Trade{
		{Instrument: "A", ConfigID: "c", Return: 0.10},
		{Instrument: "A", ConfigID: "c", Return: -0.05},
		{Instrument: "A", ConfigID: "c", Return: 0},
		{Instrument: "A", ConfigID: "c", Return: 0.03},
	}
	sum := Summarize("A", "c", trades)
	if sum.Trades != 4 {
		t.Fatalf("trades = %d", sum.Trades)
	}
	assertClose(t, "win rate", sum.WinRate, 0.5)
	assertClose(t, "total", sum.TotalReturn, 0.08)
	assertClose(t, "mean", sum.MeanReturn, 0.02)
	assertClose(t, "cumulative", sum.CumulativeReturn, 1.10*0.95*1.0*1.03-1)

	empty := Summarize("B", "c", nil)
	if empty.Trades != 0 || empty.WinRate != 0 || empty.Instrument != "B" {
		t.Errorf("empty summary %+v", empty)
	}
}

func TestSummarizeByKey(t *testing.T) {
	trades := []model.Trade{
		{Instrument: "B", ConfigID: "x", Return: 0.1},
		{Instrument: "A", ConfigID: "x", Return: 0.2},
		{Instrument: "B", ConfigID: "x", Return: -0.1},
	}
	sums := SummarizeByKey(trades)
	if len(sums) != 2 || sums[0].Instrument != "B" || sums[0].Trades != 2 || sums[1].Instrument != "A" {
		t.Fatalf("unexpected %+v", sums)
	}
	if !strings.HasPrefix(sums[1].ConfigID, "x") {
		t.Error("config id lost")
	}
}
