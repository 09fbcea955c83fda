package feed

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"trendreversal/internal/model"
)

// ErrMissingColumn is returned when a required OHLCV column is absent.
var ErrMissingColumn = errors.New("missing required column")

var dateLayouts = []string{
	time.DateOnly,
	time.DateTime,
	time.RFC3339,
	"2006-01-02 15:04:05-07:00",
	"2006-01-02T15:04:05",
	"01/02/2006",
}

// ParseDate parses a provider date and truncates it to the UTC session date.
func ParseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			y, m, d := t.Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", raw)
}

// parseValue reads a numeric cell; empty and "nan" cells are undefined (NaN).
func parseValue(raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	switch strings.ToLower(raw) {
	case "", "nan", "null", "none":
		return math.NaN(), nil
	}
	return strconv.ParseFloat(raw, 64)
}

// ReadCSV parses one provider table. The date column is Date_, else Date, else the
// first column. Open, High, Low, Close and Volume are required. Indicator columns are
// stored under their canonical name when known and under the raw name otherwise.
func ReadCSV(r io.Reader, instrument, timeframe string) (*model.Series, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	roles := [6]int{-1, -1, -1, -1, -1, -1}
	indicatorCols := make(map[int]string)
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(h))
		if role, ok := priceColumns[key]; ok {
			// Date_ wins over Date when a file carries both.
			if role == colDate && roles[colDate] >= 0 && key != "date_" {
				continue
			}
			roles[role] = i
			continue
		}
		name, _ := Canonical(h)
		indicatorCols[i] = name
	}
	if roles[colDate] < 0 && len(header) > 0 {
		roles[colDate] = 0
		delete(indicatorCols, 0)
	}
	for role, idx := range roles {
		if idx < 0 {
			return nil, fmt.Errorf("%s %s: %s: %w", instrument, timeframe, requiredNames[role], ErrMissingColumn)
		}
	}

	var bars []model.Bar
	line := 1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("%s %s line %d: %w", instrument, timeframe, line, err)
		}

		bar, err := parseRow(rec, roles, indicatorCols)
		if err != nil {
			return nil, fmt.Errorf("%s %s line %d: %w", instrument, timeframe, line, err)
		}
		bars = append(bars, bar)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%s %s: %w", instrument, timeframe, model.ErrEmptySeries)
	}
	return model.NewSeries(instrument, timeframe, bars)
}

func parseRow(rec []string, roles [6]int, indicatorCols map[int]string) (model.Bar, error) {
	cell := func(i int) string {
		if i < len(rec) {
			return rec[i]
		}
		return ""
	}

	ts, err := ParseDate(cell(roles[colDate]))
	if err != nil {
		return model.Bar{}, err
	}
	var ohlcv [4]float64
	for k, role := range []int{colOpen, colHigh, colLow, colClose} {
		v, err := parseValue(cell(roles[role]))
		if err != nil || math.IsNaN(v) {
			return model.Bar{}, fmt.Errorf("%s %q: %w", requiredNames[role], cell(roles[role]), model.ErrInvalidBar)
		}
		ohlcv[k] = v
	}
	vol, err := parseValue(cell(roles[colVolume]))
	if err != nil {
		return model.Bar{}, fmt.Errorf("Volume %q: %w", cell(roles[colVolume]), model.ErrInvalidBar)
	}
	if math.IsNaN(vol) {
		vol = 0
	}

	ind := make(map[string]float64, len(indicatorCols))
	for i, name := range indicatorCols {
		v, err := parseValue(cell(i))
		if err != nil {
			// Non-numeric provider columns (tickers, notes) are ignored.
			continue
		}
		ind[name] = v
	}

	return model.Bar{
		Time:       ts,
		Open:       ohlcv[0],
		High:       ohlcv[1],
		Low:        ohlcv[2],
		Close:      ohlcv[3],
		Volume:     int64(math.Round(vol)),
		Indicators: ind,
	}, nil
}

// LoadCSV reads the series stored at path.
func LoadCSV(path, instrument, timeframe string) (*model.Series, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadCSV(f, instrument, timeframe)
}

// CSVSource serves series from <Dir>/<timeframe>/<INSTRUMENT>_<timeframe>.csv.
// A missing weekly file is replaced by a weekly resample of the daily file.
type CSVSource struct {
	Dir string
}

// NewCSVSource creates a CSV-backed series source rooted at dir.
func NewCSVSource(dir string) *CSVSource {
	return &CSVSource{Dir: dir}
}

// Path returns the file location for one instrument and timeframe.
func (c *CSVSource) Path(instrument, timeframe string) string {
	return filepath.Join(c.Dir, timeframe, fmt.Sprintf("%s_%s.csv", instrument, timeframe))
}

// LoadSeries implements model.SeriesSource.
func (c *CSVSource) LoadSeries(ctx context.Context, instrument, timeframe string) (*model.Series, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s, err := LoadCSV(c.Path(instrument, timeframe), instrument, timeframe)
	if err == nil {
		return s, nil
	}
	if timeframe != model.TimeframeWeekly || !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	daily, derr := LoadCSV(c.Path(instrument, model.TimeframeDaily), instrument, model.TimeframeDaily)
	if derr != nil {
		return nil, fmt.Errorf("weekly fallback: %w", derr)
	}
	log.Printf("[feed] %s: no weekly file, resampling %d daily bars", instrument, daily.Len())
	return Weekly(daily)
}
