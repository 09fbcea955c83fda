package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"trendreversal/internal/feed"
	"trendreversal/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNoBars is returned when the bars table holds nothing for a series.
var ErrNoBars = errors.New("no bars stored")

// Reader provides read-only access to stored bars and run results.
// It implements model.SeriesSource.
type Reader struct {
	db *sql.DB
}

// NewReader opens a SQLite connection for reading.
func NewReader(dbPath string) (*Reader, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open reader: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)

	log.Printf("[sqlite-reader] opened %s", dbPath)
	return &Reader{db: db}, nil
}

// DB returns the underlying sql.DB for health checks.
func (r *Reader) DB() *sql.DB { return r.db }

// LoadSeries reads one instrument's bars ordered by timestamp. A missing weekly
// series is resampled from the stored daily bars.
func (r *Reader) LoadSeries(ctx context.Context, instrument, timeframe string) (*model.Series, error) {
	bars, err := r.readBars(ctx, instrument, timeframe)
	if err != nil {
		return nil, err
	}
	if len(bars) > 0 {
		return model.NewSeries(instrument, timeframe, bars)
	}
	if timeframe != model.TimeframeWeekly {
		return nil, fmt.Errorf("%s/%s: %w", instrument, timeframe, ErrNoBars)
	}

	daily, err := r.LoadSeries(ctx, instrument, model.TimeframeDaily)
	if err != nil {
		return nil, fmt.Errorf("weekly fallback: %w", err)
	}
	log.Printf("[sqlite-reader] %s: no weekly bars, resampling %d daily bars", instrument, daily.Len())
	return feed.Weekly(daily)
}

func (r *Reader) readBars(ctx context.Context, instrument, timeframe string) ([]model.Bar, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT ts, open, high, low, close, volume, indicators
		FROM bars
		WHERE instrument = ? AND timeframe = ?
		ORDER BY ts ASC
	`, instrument, timeframe)
	if err != nil {
		return nil, fmt.Errorf("sqlite query bars: %w", err)
	}
	defer rows.Close()

	var bars []model.Bar
	for rows.Next() {
		var (
			b      model.Bar
			tsUnix int64
			volume sql.NullInt64
			ind    sql.NullString
		)
		if err := rows.Scan(&tsUnix, &b.Open, &b.High, &b.Low, &b.Close, &volume, &ind); err != nil {
			return nil, fmt.Errorf("sqlite scan bars: %w", err)
		}
		b.Time = time.Unix(tsUnix, 0).UTC()
		b.Volume = volume.Int64
		if ind.Valid && ind.String != "" {
			if err := json.Unmarshal([]byte(ind.String), &b.Indicators); err != nil {
				return nil, fmt.Errorf("unmarshal indicators at %d: %w", tsUnix, err)
			}
		}
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// Instruments lists the instruments that have bars of the given timeframe.
func (r *Reader) Instruments(ctx context.Context, timeframe string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT instrument FROM bars WHERE timeframe = ? ORDER BY instrument
	`, timeframe)
	if err != nil {
		return nil, fmt.Errorf("sqlite query instruments: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ReadSummaries loads the summaries of one run ordered by config then instrument.
func (r *Reader) ReadSummaries(ctx context.Context, runID string) ([]model.Summary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT config_id, instrument, trades, win_rate, mean_return, total_return, cumulative_return
		FROM summaries
		WHERE run_id = ?
		ORDER BY config_id, instrument
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("sqlite query summaries: %w", err)
	}
	defer rows.Close()

	var out []model.Summary
	for rows.Next() {
		var s model.Summary
		if err := rows.Scan(&s.ConfigID, &s.Instrument, &s.Trades, &s.WinRate, &s.MeanReturn, &s.TotalReturn, &s.CumulativeReturn); err != nil {
			return nil, fmt.Errorf("sqlite scan summaries: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ReadRunErrors loads the error log of one run in insertion order.
func (r *Reader) ReadRunErrors(ctx context.Context, runID string) ([]model.RunError, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT config_id, instrument, stage, message, at
		FROM run_errors
		WHERE run_id = ?
		ORDER BY id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("sqlite query run_errors: %w", err)
	}
	defer rows.Close()

	var out []model.RunError
	for rows.Next() {
		e := model.RunError{RunID: runID}
		var cfg, instr sql.NullString
		var at int64
		if err := rows.Scan(&cfg, &instr, &e.Stage, &e.Message, &at); err != nil {
			return nil, fmt.Errorf("sqlite scan run_errors: %w", err)
		}
		e.ConfigID, e.Instrument = cfg.String, instr.String
		e.At = time.Unix(at, 0).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.db.Close()
}
