package features

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"trendreversal/internal/fixture"
	"trendreversal/internal/model"
)

func fullBar(t time.Time, close float64) model.Bar {
	return model.Bar{
		Time: t, Open: close, High: close + 1, Low: close - 1, Close: close, Volume: 10,
		Indicators: map[string]float64{
			model.IndBandLower:  100,
			model.IndEMAShort:   97,
			model.IndEMALong:    99,
			model.IndMACD:       -1.5,
			model.IndMACDSignal: -1.0,
			model.IndRSI:        28,
			model.IndForceIndex: -300,
		},
	}
}

func TestVector_Values(t *testing.T) {
	var b Builder
	lbl := true
	fv, ok := b.Vector(Event{Time: fixture.Day(3), Bar: fullBar(fixture.Day(3), 98), Label: &lbl})
	if !ok {
		t.Fatal("expected a row")
	}
	want := []float64{0.02, 1, -1, -0.5, 28, -300, 0}
	if !reflect.DeepEqual(fv.Names, Names) {
		t.Fatalf("names = %v", fv.Names)
	}
	for i, w := range want {
		if math.Abs(fv.Values[i]-w) > 1e-12 {
			t.Errorf("%s = %v, want %v", Names[i], fv.Values[i], w)
		}
	}
	if fv.Label == nil || !*fv.Label {
		t.Error("label lost")
	}
	if v, ok := fv.Get(RSI); !ok || v != 28 {
		t.Errorf("Get(rsi) = %v %v", v, ok)
	}
}

func TestBuild_DropsUndefinedRowsAndKeepsOrder(t *testing.T) {
	yes, no := true, false
	missing := fullBar(fixture.Day(1), 98)
	delete(missing.Indicators, model.IndEMALong)
	nanRSI := fullBar(fixture.Day(2), 98)
	nanRSI.Indicators[model.IndRSI] = math.NaN()

	events := []Event{
		{Time: fixture.Day(0), Bar: fullBar(fixture.Day(0), 98), Label: &yes},
		{Time: fixture.Day(1), Bar: missing, Label: &yes},
		{Time: fixture.Day(2), Bar: nanRSI, Label: &no},
		{Time: fixture.Day(3), Bar: fullBar(fixture.Day(3), 95), Label: &no},
	}
	var b Builder
	rows, dropped := b.Build(events)
	if dropped != 2 || len(rows) != 2 {
		t.Fatalf("rows=%d dropped=%d", len(rows), dropped)
	}
	if !rows[0].Time.Equal(fixture.Day(0)) || !rows[1].Time.Equal(fixture.Day(3)) {
		t.Error("surviving rows out of input order")
	}
	if got := Labels(rows); !reflect.DeepEqual(got, []bool{true, false}) {
		t.Errorf("labels = %v", got)
	}
	for _, r := range rows {
		for _, v := range r.Values {
			if math.IsNaN(v) {
				t.Fatal("NaN in feature row")
			}
		}
	}
}

func TestBuild_Idempotent(t *testing.T) {
	weekly := fixture.Series("X", []fixture.OHLC{{O: 100, H: 101, L: 95, C: 99}}, map[string]float64{model.IndBandLower: 96})
	b := Builder{HigherTF: weekly}
	events := []Event{
		{Time: fixture.Day(0), Bar: fullBar(fixture.Day(0), 98)},
		{Time: fixture.Day(2), Bar: fullBar(fixture.Day(2), 97)},
	}
	r1, d1 := b.Build(events)
	r2, d2 := b.Build(events)
	if d1 != d2 || !reflect.DeepEqual(r1, r2) {
		t.Fatal("two builds differ")
	}
}

func TestHTFTouch_NearestPreceding(t *testing.T) {
	weekly := fixture.Series("X", []fixture.OHLC{
		{O: 100, H: 101, L: 95, C: 99},  // touches band 96
		{O: 99, H: 104, L: 98, C: 103},  // no touch
		{O: 103, H: 104, L: 94, C: 100}, // touches
	}, map[string]float64{model.IndBandLower: 96})
	// weekly bars sit at days 0, 1, 2 of the fixture calendar
	b := Builder{HigherTF: weekly}

	cases := []struct {
		at   time.Time
		want float64
	}{
		{fixture.Day(0), 1},
		{fixture.Day(1), 0},
		{fixture.Day(2).Add(12 * time.Hour), 1},
		{fixture.Day(-1), 0}, // before the first weekly bar
	}
	for _, c := range cases {
		if got := b.htfTouch(c.at); got != c.want {
			t.Errorf("htfTouch(%v) = %v, want %v", c.at, got, c.want)
		}
	}
	var none Builder
	if none.htfTouch(fixture.Day(0)) != 0 {
		t.Error("no higher timeframe should read 0")
	}
}

func TestFromTouchesAndTrades(t *testing.T) {
	s := fixture.Scenario30()
	touches := []model.TouchEvent{
		{Index: 10, Time: fixture.Day(10), Bar: s.Bars[10]},
		{Index: 12, Time: fixture.Day(12), Bar: s.Bars[12]},
	}
	labels := []model.LabelRecord{{Time: fixture.Day(12), Reversed: true}}
	events := FromTouches(touches, labels)
	if events[0].Label != nil {
		t.Error("unlabelled touch should carry nil label")
	}
	if events[1].Label == nil || !*events[1].Label {
		t.Error("touch 12 should be labelled reversed")
	}

	trades := []model.Trade{
		{SignalTime: fixture.Day(12), Return: 0.1},
		{SignalTime: fixture.Day(99), Return: 0.1},
		{SignalTime: fixture.Day(10), Return: -0.02},
	}
	tev := FromTrades(s, trades)
	if len(tev) != 2 || !*tev[0].Label || *tev[1].Label {
		t.Fatalf("unexpected trade events %+v", tev)
	}
}

type failingProvider struct{}

func (failingProvider) FeatureImportances() ([]float64, error) { return nil, errors.New("not fitted") }

func TestRank(t *testing.T) {
	ranked, err := Rank(StaticImportances{0.1, 0.3, 0.05, 0.3, 0.15, 0.05, 0.05}, Names)
	if err != nil {
		t.Fatal(err)
	}
	if ranked[0].Name != EMAShortDiff || ranked[1].Name != MACDCenter || ranked[2].Name != RSI {
		t.Errorf("unexpected order %+v", ranked)
	}

	if _, err := Rank(StaticImportances{1, 2}, Names); err == nil {
		t.Error("length mismatch should fail")
	}
	if _, err := Rank(failingProvider{}, Names); err == nil {
		t.Error("provider error should propagate")
	}
}

func TestLoadImportances(t *testing.T) {
	dir := t.TempDir()
	arr := filepath.Join(dir, "arr.json")
	obj := filepath.Join(dir, "obj.json")
	if err := os.WriteFile(arr, []byte(`[0.1,0.2,0.3,0.1,0.1,0.1,0.1]`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(obj, []byte(`{"dist_pct":0.5,"ema_short_diff":0.1,"ema_long_diff":0.1,"macd_center":0.1,"rsi":0.1,"force_index":0.05,"htf_touch":0.05}`), 0o644); err != nil {
		t.Fatal(err)
	}
	a, err := LoadImportances(arr)
	if err != nil || len(a) != 7 || a[2] != 0.3 {
		t.Fatalf("array form: %v %v", a, err)
	}
	o, err := LoadImportances(obj)
	if err != nil || o[0] != 0.5 {
		t.Fatalf("object form: %v %v", o, err)
	}
}

func TestHTFTouch_MidWeekReadsOwnWeek(t *testing.T) {
	// one weekly bar stamped on its first day; its low comes from later in the week
	weekly := fixture.Series("X", []fixture.OHLC{{O: 100, H: 101, L: 95, C: 99}}, map[string]float64{model.IndBandLower: 96})
	b := Builder{HigherTF: weekly}
	if got := b.htfTouch(fixture.Day(2)); got != 1 {
		t.Errorf("htfTouch mid-week = %v, want 1 from the same week's bar", got)
	}
}
