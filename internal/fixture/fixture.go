// Package fixture builds small synthetic bar series for tests.
package fixture

import (
	"time"

	"trendreversal/internal/model"
)

// Start is the timestamp of bar 0 in every fixture series.
var Start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// Day returns the timestamp of bar i (consecutive calendar days).
func Day(i int) time.Time { return Start.AddDate(0, 0, i) }

// OHLC is a compact bar literal.
type OHLC struct {
	O, H, L, C float64
}

// Series builds a validated series from bars with the given constant indicator columns.
// It panics on invalid input; fixtures are static.
func Series(instrument string, rows []OHLC, constant map[string]float64) *model.Series {
	bars := make([]model.Bar, len(rows))
	for i, r := range rows {
		ind := make(map[string]float64, len(constant))
		for k, v := range constant {
			ind[k] = v
		}
		bars[i] = model.Bar{Time: Day(i), Open: r.O, High: r.H, Low: r.L, Close: r.C, Volume: 1000, Indicators: ind}
	}
	s, err := model.NewSeries(instrument, model.TimeframeDaily, bars)
	if err != nil {
		panic(err)
	}
	return s
}

// Closes builds a series whose bars open, close and range tightly around each close.
func Closes(instrument string, closes ...float64) *model.Series {
	rows := make([]OHLC, len(closes))
	for i, c := range closes {
		rows[i] = OHLC{O: c, H: c + 0.5, L: c - 0.5, C: c}
	}
	return Series(instrument, rows, nil)
}

// Dip is n bars closing at 100 except bar at, which closes at 90. It carries no
// band column, so touches depend on computed Keltner bands.
func Dip(instrument string, n, at int) *model.Series {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = 100
	}
	closes[at] = 90
	return Closes(instrument, closes...)
}

// Scenario30 is a 30-bar series with a flat lower band at 100 and middle band at 110.
// Bars 10-12 touch the lower band, bar 13 is a bullish candle closing at 105 above
// bar 12's close of 98, bar 14 closes at 107 and bar 15 closes at 111, the first
// close above the middle band. No other bar comes near the lower band.
func Scenario30() *model.Series {
	rows := make([]OHLC, 30)
	for i := 0; i < 10; i++ {
		rows[i] = OHLC{O: 104, H: 105, L: 103, C: 104}
	}
	rows[10] = OHLC{O: 101, H: 102, L: 99, C: 100.5}
	rows[11] = OHLC{O: 100.5, H: 101, L: 98.5, C: 99}
	rows[12] = OHLC{O: 99, H: 99.5, L: 97, C: 98}
	rows[13] = OHLC{O: 101, H: 106, L: 100.5, C: 105}
	rows[14] = OHLC{O: 105, H: 108, L: 104, C: 107}
	rows[15] = OHLC{O: 107, H: 112, L: 106, C: 111}
	for i := 16; i < 30; i++ {
		rows[i] = OHLC{O: 110, H: 111, L: 109, C: 110}
	}
	return Series("SYN", rows, map[string]float64{
		model.IndBandLower:  100,
		model.IndBandMiddle: 110,
		model.IndBandUpper:  120,
	})
}
