package indicator

import (
	"math"
	"testing"
	"time"

	"trendreversal/internal/model"
)

func flatSeries(t *testing.T, n int, closeAt func(i int) float64) *model.Series {
	t.Helper()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]model.Bar, n)
	for i := range bars {
		c := closeAt(i)
		bars[i] = model.Bar{Time: base.AddDate(0, 0, i), Open: c, High: c + 1, Low: c - 1, Close: c, Volume: 1000}
	}
	s, err := model.NewSeries("TEST", model.TimeframeDaily, bars)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestKeltner_WarmupUndefined(t *testing.T) {
	s := flatSeries(t, 10, func(int) float64 { return 100 })
	bands, err := Keltner(s, 4, 2)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if !math.IsNaN(bands.Lower[i]) || !math.IsNaN(bands.Middle[i]) || !math.IsNaN(bands.Upper[i]) {
			t.Errorf("bar %d: expected undefined bands during warm-up", i)
		}
	}
	// Flat close 100, range 2 → lower = 100 - 2*2 = 96, upper = 104
	for i := 3; i < 10; i++ {
		assertClose(t, "lower", bands.Lower[i], 96, 1e-9)
		assertClose(t, "middle", bands.Middle[i], 100, 1e-9)
		assertClose(t, "upper", bands.Upper[i], 104, 1e-9)
	}
}

func TestKeltner_RejectsBadParams(t *testing.T) {
	s := flatSeries(t, 5, func(int) float64 { return 100 })
	if _, err := Keltner(s, 0, 3); err == nil {
		t.Error("expected error for period 0")
	}
	if _, err := Keltner(s, 20, 0); err == nil {
		t.Error("expected error for multiplier 0")
	}
}

func TestWithKeltner_WritesCanonicalColumns(t *testing.T) {
	s := flatSeries(t, 30, func(i int) float64 { return 100 + float64(i%3) })
	out, err := WithKeltner(s, DefaultKeltnerPeriod, DefaultKeltnerMultiplier)
	if err != nil {
		t.Fatal(err)
	}
	if out.Bars[18].Has(model.IndBandLower) {
		t.Error("bar 18 should still be in warm-up for period 20")
	}
	if !out.Bars[19].Has(model.IndBandLower) || !out.Bars[19].Has(model.IndBandMiddle) {
		t.Error("bar 19 should carry bands")
	}
	if s.Bars[19].Has(model.IndBandLower) {
		t.Error("input series must not be mutated")
	}
}

func TestEnrich_FillsOnlyMissingColumns(t *testing.T) {
	s := flatSeries(t, 60, func(i int) float64 { return 100 + math.Sin(float64(i)/3)*5 })
	s = s.WithColumns(map[string][]float64{model.IndRSI: func() []float64 {
		col := make([]float64, 60)
		for i := range col {
			col[i] = 42
		}
		return col
	}()})

	out, computed := Enrich(s, DefaultEnrichConfig())
	for _, name := range computed {
		if name == model.IndRSI {
			t.Fatal("rsi was supplied and must not be recomputed")
		}
	}
	if v, _ := out.Bars[59].Value(model.IndRSI); v != 42 {
		t.Errorf("rsi overwritten: %v", v)
	}
	for _, name := range []string{model.IndMACD, model.IndMACDSignal, model.IndMACDHist, model.IndForceIndex, model.IndATR, model.IndEMAShort, model.IndEMALong} {
		if !out.Bars[59].Has(name) {
			t.Errorf("%s not computed", name)
		}
	}
	// MACD(12,26) needs 26 bars, the signal 8 more on top of the first line value.
	if out.Bars[24].Has(model.IndMACD) || !out.Bars[25].Has(model.IndMACD) {
		t.Error("macd warm-up boundary is wrong")
	}
	if out.Bars[32].Has(model.IndMACDSignal) || !out.Bars[33].Has(model.IndMACDSignal) {
		t.Error("macd signal warm-up boundary is wrong")
	}
}

func TestATR_UsesTrueRange(t *testing.T) {
	s := flatSeries(t, 3, func(i int) float64 { return []float64{100, 110, 100}[i] })
	atr := ATR(s, 2)
	// TR: 2, max(2, |111-100|, |109-100|) = 11 → seed (2+11)/2 = 6.5
	assertClose(t, "atr[1]", atr[1], 6.5, 1e-9)
}
