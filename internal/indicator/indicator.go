// Package indicator provides technical indicator calculations over bar series.
//
// The streaming types (EMA, SMA, SMMA, RSI) receive one float64 value per bar and
// are composed into whole-column helpers. Column helpers return one entry per bar,
// with NaN for warm-up bars where the indicator is not ready.
package indicator

import "math"

// Indicator is the interface for all streaming indicators.
type Indicator interface {
	// Name returns the indicator name (e.g., "SMA", "EMA").
	Name() string

	// Update feeds the next value and recalculates.
	Update(v float64)

	// Value returns the current calculated value. Returns 0 if not enough data.
	Value() float64

	// Ready returns true when enough data has been accumulated.
	Ready() bool
}

// Column runs ind over values and returns its output per position,
// NaN where the indicator is not ready. NaN inputs are passed through as NaN
// without updating the indicator.
func Column(ind Indicator, values []float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		if math.IsNaN(v) {
			out[i] = math.NaN()
			continue
		}
		ind.Update(v)
		if ind.Ready() {
			out[i] = ind.Value()
		} else {
			out[i] = math.NaN()
		}
	}
	return out
}

func nanColumn(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
