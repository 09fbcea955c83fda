package model

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

var (
	// ErrUnsortedSeries is returned when bar timestamps are not strictly increasing.
	ErrUnsortedSeries = errors.New("bars not strictly increasing by time")
	// ErrInvalidBar is returned for non-positive prices or negative volume.
	ErrInvalidBar = errors.New("invalid bar")
	// ErrEmptySeries is returned when a series has no bars.
	ErrEmptySeries = errors.New("empty series")
)

// Series is an immutable, time-ordered sequence of bars for one instrument and timeframe.
// Lookups go through the timestamp index (binary search), never through assumed
// calendar positions, so gaps such as exchange holidays are handled naturally.
type Series struct {
	Instrument string
	Timeframe  string
	Bars       []Bar
}

// NewSeries validates bars and wraps them in a Series.
// Bars must be sorted by strictly increasing Time with positive OHLC and non-negative volume.
func NewSeries(instrument, timeframe string, bars []Bar) (*Series, error) {
	for i := range bars {
		b := &bars[i]
		if b.Open <= 0 || b.High <= 0 || b.Low <= 0 || b.Close <= 0 || b.Volume < 0 {
			return nil, fmt.Errorf("%s %s bar %s: %w", instrument, timeframe, b.Time.Format(time.DateOnly), ErrInvalidBar)
		}
		if i > 0 && !bars[i-1].Time.Before(b.Time) {
			return nil, fmt.Errorf("%s %s at %s: %w", instrument, timeframe, b.Time.Format(time.DateOnly), ErrUnsortedSeries)
		}
	}
	return &Series{Instrument: instrument, Timeframe: timeframe, Bars: bars}, nil
}

// Len returns the number of bars.
func (s *Series) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Bars)
}

// IndexOf returns the position of the bar stamped exactly t.
func (s *Series) IndexOf(t time.Time) (int, bool) {
	i := sort.Search(len(s.Bars), func(i int) bool { return !s.Bars[i].Time.Before(t) })
	if i < len(s.Bars) && s.Bars[i].Time.Equal(t) {
		return i, true
	}
	return -1, false
}

// IndexAtOrBefore returns the position of the last bar stamped at or before t.
func (s *Series) IndexAtOrBefore(t time.Time) (int, bool) {
	i := sort.Search(len(s.Bars), func(i int) bool { return s.Bars[i].Time.After(t) })
	if i == 0 {
		return -1, false
	}
	return i - 1, true
}

// HasIndicator reports whether any bar defines the named indicator.
func (s *Series) HasIndicator(name string) bool {
	for i := range s.Bars {
		if s.Bars[i].Has(name) {
			return true
		}
	}
	return false
}

// Between returns a series restricted to bars with from <= Time < to.
// A zero bound is open. The returned series shares bar storage with s.
func (s *Series) Between(from, to time.Time) *Series {
	lo := 0
	if !from.IsZero() {
		lo = sort.Search(len(s.Bars), func(i int) bool { return !s.Bars[i].Time.Before(from) })
	}
	hi := len(s.Bars)
	if !to.IsZero() {
		hi = sort.Search(len(s.Bars), func(i int) bool { return !s.Bars[i].Time.Before(to) })
	}
	if hi < lo {
		hi = lo
	}
	return &Series{Instrument: s.Instrument, Timeframe: s.Timeframe, Bars: s.Bars[lo:hi]}
}

// WithColumns returns a new series with cols merged into each bar's indicators.
// Every column slice must have Len() entries; NaN marks an undefined value.
func (s *Series) WithColumns(cols map[string][]float64) *Series {
	bars := make([]Bar, len(s.Bars))
	for i := range s.Bars {
		extra := make(map[string]float64, len(cols))
		for name, col := range cols {
			extra[name] = col[i]
		}
		bars[i] = s.Bars[i].WithIndicators(extra)
	}
	return &Series{Instrument: s.Instrument, Timeframe: s.Timeframe, Bars: bars}
}

// Closes returns the close column.
func (s *Series) Closes() []float64 {
	out := make([]float64, len(s.Bars))
	for i := range s.Bars {
		out[i] = s.Bars[i].Close
	}
	return out
}
