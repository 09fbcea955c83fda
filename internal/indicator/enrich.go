package indicator

import (
	"math"

	"trendreversal/internal/model"
)

// EnrichConfig sets the periods used when Enrich fills in missing columns.
type EnrichConfig struct {
	RSIPeriod        int
	MACDFast         int
	MACDSlow         int
	MACDSignal       int
	ForceIndexPeriod int
	ATRPeriod        int
	EMAShort         int
	EMALong          int
}

// DefaultEnrichConfig mirrors the column set the daily provider files carry:
// RSI_14, MACD_12_26_9, EFI_2, ATR_14, EMA_11, EMA_22.
func DefaultEnrichConfig() EnrichConfig {
	return EnrichConfig{
		RSIPeriod:        14,
		MACDFast:         12,
		MACDSlow:         26,
		MACDSignal:       9,
		ForceIndexPeriod: 2,
		ATRPeriod:        14,
		EMAShort:         11,
		EMALong:          22,
	}
}

// Enrich returns a copy of s in which every canonical oscillator column the feed
// did not supply is computed from OHLCV. Columns already present are never
// overwritten. The second return value lists the computed columns.
func Enrich(s *model.Series, cfg EnrichConfig) (*model.Series, []string) {
	closes := s.Closes()
	cols := make(map[string][]float64)

	if !s.HasIndicator(model.IndRSI) {
		cols[model.IndRSI] = Column(NewRSI(cfg.RSIPeriod), closes)
	}

	if !s.HasIndicator(model.IndMACD) || !s.HasIndicator(model.IndMACDSignal) || !s.HasIndicator(model.IndMACDHist) {
		line, signal, hist := MACD(closes, cfg.MACDFast, cfg.MACDSlow, cfg.MACDSignal)
		if !s.HasIndicator(model.IndMACD) {
			cols[model.IndMACD] = line
		}
		if !s.HasIndicator(model.IndMACDSignal) {
			cols[model.IndMACDSignal] = signal
		}
		if !s.HasIndicator(model.IndMACDHist) {
			cols[model.IndMACDHist] = hist
		}
	}

	if !s.HasIndicator(model.IndForceIndex) {
		cols[model.IndForceIndex] = ForceIndex(s, cfg.ForceIndexPeriod)
	}
	if !s.HasIndicator(model.IndATR) {
		cols[model.IndATR] = ATR(s, cfg.ATRPeriod)
	}
	if !s.HasIndicator(model.IndEMAShort) {
		cols[model.IndEMAShort] = Column(NewEMA(cfg.EMAShort), closes)
	}
	if !s.HasIndicator(model.IndEMALong) {
		cols[model.IndEMALong] = Column(NewEMA(cfg.EMALong), closes)
	}

	if len(cols) == 0 {
		return s, nil
	}
	names := make([]string, 0, len(cols))
	for _, name := range model.CanonicalIndicators {
		if _, ok := cols[name]; ok {
			names = append(names, name)
		}
	}
	return s.WithColumns(cols), names
}

// MACD returns the MACD line (fast EMA - slow EMA), its signal EMA and the histogram.
func MACD(closes []float64, fast, slow, signal int) (line, sig, hist []float64) {
	fastCol := Column(NewEMA(fast), closes)
	slowCol := Column(NewEMA(slow), closes)

	line = make([]float64, len(closes))
	for i := range closes {
		line[i] = fastCol[i] - slowCol[i] // NaN propagates through warm-up
	}
	sig = Column(NewEMA(signal), line)
	hist = make([]float64, len(closes))
	for i := range closes {
		hist[i] = line[i] - sig[i]
	}
	return line, sig, hist
}

// ForceIndex is the EMA of (close - prevClose) * volume.
func ForceIndex(s *model.Series, period int) []float64 {
	raw := nanColumn(s.Len())
	for i := 1; i < s.Len(); i++ {
		raw[i] = (s.Bars[i].Close - s.Bars[i-1].Close) * float64(s.Bars[i].Volume)
	}
	return Column(NewEMA(period), raw)
}

// ATR is the Wilder-smoothed true range.
func ATR(s *model.Series, period int) []float64 {
	tr := make([]float64, s.Len())
	for i := range s.Bars {
		b := &s.Bars[i]
		tr[i] = b.High - b.Low
		if i > 0 {
			prev := s.Bars[i-1].Close
			tr[i] = math.Max(tr[i], math.Max(math.Abs(b.High-prev), math.Abs(b.Low-prev)))
		}
	}
	return Column(NewSMMA(period), tr)
}
