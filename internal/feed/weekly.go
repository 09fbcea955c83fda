package feed

import (
	"time"

	"trendreversal/internal/model"
)

// weekStart returns the Monday (UTC midnight) of t's ISO week.
func weekStart(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	offset := (int(day.Weekday()) + 6) % 7 // Monday = 0
	return day.AddDate(0, 0, -offset)
}

// Weekly resamples a daily series into ISO-week bars stamped at the week's Monday.
// Open is the first daily open of the week, Close the last close, High/Low the
// extremes and Volume the sum. Indicator columns are not carried over.
func Weekly(daily *model.Series) (*model.Series, error) {
	var out []model.Bar
	var current *model.Bar

	for i := range daily.Bars {
		b := &daily.Bars[i]
		bucket := weekStart(b.Time)

		if current != nil && bucket.After(current.Time) {
			out = append(out, *current)
			current = nil
		}
		if current == nil {
			current = &model.Bar{
				Time:   bucket,
				Open:   b.Open,
				High:   b.High,
				Low:    b.Low,
				Close:  b.Close,
				Volume: b.Volume,
			}
			continue
		}

		if b.High > current.High {
			current.High = b.High
		}
		if b.Low < current.Low {
			current.Low = b.Low
		}
		current.Close = b.Close
		current.Volume += b.Volume
	}
	if current != nil {
		out = append(out, *current)
	}
	if len(out) == 0 {
		return nil, model.ErrEmptySeries
	}
	return model.NewSeries(daily.Instrument, model.TimeframeWeekly, out)
}
