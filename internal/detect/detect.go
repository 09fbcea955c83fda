// Package detect finds bars where price met or crossed the lower Keltner band.
package detect

import (
	"time"

	"trendreversal/internal/indicator"
	"trendreversal/internal/model"
)

// Options controls band computation.
type Options struct {
	// Recompute forces band computation even when the series already carries bands.
	Recompute  bool
	Period     int
	Multiplier float64

	// From and To bound the evaluated bars to [From, To); zero means unbounded.
	// Bands are computed on the whole input first, so the window never restarts
	// the band warm-up.
	From, To time.Time
}

// DefaultOptions uses the feed's band when present, else Keltner(20, 3.0).
func DefaultOptions() Options {
	return Options{
		Period:     indicator.DefaultKeltnerPeriod,
		Multiplier: indicator.DefaultKeltnerMultiplier,
	}
}

// IsTouch reports whether any of open, high, low or close is at or below the lower band.
// A bar with an undefined band is never a touch.
func IsTouch(b *model.Bar) bool {
	lower, ok := b.Value(model.IndBandLower)
	if !ok {
		return false
	}
	return b.Open <= lower || b.High <= lower || b.Low <= lower || b.Close <= lower
}

// Bands returns s with a lower band. Bands are computed when opts.Recompute is
// set or when s carries no lower band at all; otherwise s is returned as-is.
func Bands(s *model.Series, opts Options) (*model.Series, error) {
	if !opts.Recompute && s.HasIndicator(model.IndBandLower) {
		return s, nil
	}
	if opts.Period == 0 {
		opts.Period = indicator.DefaultKeltnerPeriod
	}
	if opts.Multiplier == 0 {
		opts.Multiplier = indicator.DefaultKeltnerMultiplier
	}
	return indicator.WithKeltner(s, opts.Period, opts.Multiplier)
}

// Touches returns the touch events of s in temporal order together with the series
// the predicate was evaluated on: the banded input restricted to [From, To).
// Event indices refer to that returned series.
func Touches(s *model.Series, opts Options) ([]model.TouchEvent, *model.Series, error) {
	banded, err := Bands(s, opts)
	if err != nil {
		return nil, nil, err
	}
	banded = banded.Between(opts.From, opts.To)

	var events []model.TouchEvent
	for i := range banded.Bars {
		b := &banded.Bars[i]
		if !IsTouch(b) {
			continue
		}
		events = append(events, model.TouchEvent{Index: i, Time: b.Time, Bar: *b})
	}
	return events, banded, nil
}

// Times extracts the timestamps of events.
func Times(events []model.TouchEvent) []time.Time {
	out := make([]time.Time, len(events))
	for i := range events {
		out[i] = events[i].Time
	}
	return out
}
