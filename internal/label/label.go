// Package label assigns ground-truth reversal outcomes to touch events by
// looking a bounded number of bars forward.
package label

import (
	"errors"
	"fmt"
	"time"

	"trendreversal/internal/model"
)

var (
	// ErrTouchNotFound is returned when a touch timestamp is absent from the series.
	ErrTouchNotFound = errors.New("touch timestamp not in series")
	// ErrInvalidLookahead is returned for an empty or non-positive lookahead list.
	ErrInvalidLookahead = errors.New("lookahead must contain at least one positive horizon")
)

// Horizon returns max(lookahead). Only the maximum bounds the scan; intermediate
// horizons are not evaluated separately.
func Horizon(lookahead []int) (int, error) {
	h := 0
	for _, l := range lookahead {
		if l <= 0 {
			return 0, fmt.Errorf("horizon %d: %w", l, ErrInvalidLookahead)
		}
		if l > h {
			h = l
		}
	}
	if h == 0 {
		return 0, ErrInvalidLookahead
	}
	return h, nil
}

// At labels the touch at index i of s with horizon h: the first of the next h bars
// (fewer near the end of history) whose close strictly exceeds close[i] marks a
// reversal at its 1-based offset. Only bars after i are read.
func At(s *model.Series, i, h int) model.LabelRecord {
	c0 := s.Bars[i].Close
	rec := model.LabelRecord{Time: s.Bars[i].Time, CloseT: c0}

	end := i + h
	if last := s.Len() - 1; end > last {
		end = last
	}
	for j := i + 1; j <= end; j++ {
		if s.Bars[j].Close > c0 {
			rec.Reversed = true
			rec.FirstReversalDay = j - i
			rec.FirstReversalTime = s.Bars[j].Time
			break
		}
	}
	return rec
}

// Reversals labels every touch time in order. It fails on the first timestamp that
// is not present in s.
func Reversals(s *model.Series, touchTimes []time.Time, lookahead []int) ([]model.LabelRecord, error) {
	h, err := Horizon(lookahead)
	if err != nil {
		return nil, err
	}
	out := make([]model.LabelRecord, 0, len(touchTimes))
	for _, t := range touchTimes {
		i, ok := s.IndexOf(t)
		if !ok {
			return nil, fmt.Errorf("%s at %s: %w", s.Instrument, t.Format(time.DateOnly), ErrTouchNotFound)
		}
		out = append(out, At(s, i, h))
	}
	return out, nil
}

// ReversalsLenient labels every touch time it can find and returns one error per
// missing timestamp instead of failing the whole pass.
func ReversalsLenient(s *model.Series, touchTimes []time.Time, lookahead []int) ([]model.LabelRecord, []error, error) {
	h, err := Horizon(lookahead)
	if err != nil {
		return nil, nil, err
	}
	var (
		out  = make([]model.LabelRecord, 0, len(touchTimes))
		errs []error
	)
	for _, t := range touchTimes {
		i, ok := s.IndexOf(t)
		if !ok {
			errs = append(errs, fmt.Errorf("%s at %s: %w", s.Instrument, t.Format(time.DateOnly), ErrTouchNotFound))
			continue
		}
		out = append(out, At(s, i, h))
	}
	return out, errs, nil
}

// Stats summarizes a label set.
type Stats struct {
	Touches   int
	Reversals int
	Rate      float64
	MeanDay   float64 // mean offset over reversed labels
}

// Summarize computes label statistics.
func Summarize(labels []model.LabelRecord) Stats {
	st := Stats{Touches: len(labels)}
	days := 0
	for _, l := range labels {
		if l.Reversed {
			st.Reversals++
			days += l.FirstReversalDay
		}
	}
	if st.Touches > 0 {
		st.Rate = float64(st.Reversals) / float64(st.Touches)
	}
	if st.Reversals > 0 {
		st.MeanDay = float64(days) / float64(st.Reversals)
	}
	return st
}
