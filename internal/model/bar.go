package model

import (
	"encoding/json"
	"math"
	"time"
)

// Bar represents one daily (or weekly) OHLCV row with its precomputed indicator columns.
// Prices are float64 in the instrument's quote currency. Indicator values may be absent
// or NaN during warm-up periods; use Value to read them.
type Bar struct {
	Time       time.Time          `json:"time"` // session date (UTC midnight)
	Open       float64            `json:"open"`
	High       float64            `json:"high"`
	Low        float64            `json:"low"`
	Close      float64            `json:"close"`
	Volume     int64              `json:"volume"`
	Indicators map[string]float64 `json:"indicators,omitempty"`
}

// Value returns the named indicator and whether it is defined for this bar.
func (b *Bar) Value(name string) (float64, bool) {
	v, ok := b.Indicators[name]
	if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// Has reports whether the named indicator is defined for this bar.
func (b *Bar) Has(name string) bool {
	_, ok := b.Value(name)
	return ok
}

// WithIndicators returns a copy of the bar whose indicator map is the union of the
// existing values and extra. The receiver is left untouched.
func (b Bar) WithIndicators(extra map[string]float64) Bar {
	merged := make(map[string]float64, len(b.Indicators)+len(extra))
	for k, v := range b.Indicators {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}
	b.Indicators = merged
	return b
}

// JSON returns the JSON-encoded bar (ignoring errors; NaN indicators are dropped first).
func (b *Bar) JSON() []byte {
	clean := *b
	clean.Indicators = DefinedIndicators(b.Indicators)
	out, _ := json.Marshal(clean)
	return out
}

// DefinedIndicators copies m without NaN/Inf entries so it can be JSON encoded.
func DefinedIndicators(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		out[k] = v
	}
	return out
}
