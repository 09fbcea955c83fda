package indicator

import (
	"fmt"

	"trendreversal/internal/model"
)

// Default Keltner parameters.
const (
	DefaultKeltnerPeriod     = 20
	DefaultKeltnerMultiplier = 3.0
)

// KeltnerBands holds the three band columns, one entry per bar.
type KeltnerBands struct {
	Lower  []float64
	Middle []float64
	Upper  []float64
}

// Keltner computes a 3-level channel around an exponentially weighted mean of close
// (span = period, seeded with the first close) using the rolling mean of (high - low)
// over period bars as the spread. The first period-1 bars are NaN in every column.
func Keltner(s *model.Series, period int, multiplier float64) (KeltnerBands, error) {
	if period < 1 {
		return KeltnerBands{}, fmt.Errorf("keltner period %d: must be >= 1", period)
	}
	if multiplier <= 0 {
		return KeltnerBands{}, fmt.Errorf("keltner multiplier %.4f: must be > 0", multiplier)
	}

	n := s.Len()
	bands := KeltnerBands{Lower: nanColumn(n), Middle: nanColumn(n), Upper: nanColumn(n)}
	center := NewEWM(period)
	spread := NewSMA(period)

	for i := range s.Bars {
		b := &s.Bars[i]
		center.Update(b.Close)
		spread.Update(b.High - b.Low)
		if !spread.Ready() {
			continue
		}
		mid := center.Value()
		width := multiplier * spread.Value()
		bands.Middle[i] = mid
		bands.Lower[i] = mid - width
		bands.Upper[i] = mid + width
	}
	return bands, nil
}

// WithKeltner returns a copy of s with band_lower/middle/upper replaced by freshly
// computed Keltner bands.
func WithKeltner(s *model.Series, period int, multiplier float64) (*model.Series, error) {
	bands, err := Keltner(s, period, multiplier)
	if err != nil {
		return nil, err
	}
	return s.WithColumns(map[string][]float64{
		model.IndBandLower:  bands.Lower,
		model.IndBandMiddle: bands.Middle,
		model.IndBandUpper:  bands.Upper,
	}), nil
}

// RangeMean is the rolling mean of (high - low), NaN during warm-up.
func RangeMean(s *model.Series, period int) []float64 {
	ranges := make([]float64, s.Len())
	for i := range s.Bars {
		ranges[i] = s.Bars[i].High - s.Bars[i].Low
	}
	if period < 1 {
		return nanColumn(len(ranges))
	}
	return Column(NewSMA(period), ranges)
}
