package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"time"

	"trendreversal/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// WriterConfig configures the SQLite writer.
type WriterConfig struct {
	DBPath string // path to SQLite database file, e.g. "results/backtest.db"
}

// Writer persists bars and run results with one transaction per table write.
// It implements model.ResultWriter.
type Writer struct {
	db *sql.DB

	// OnCommit, if set, observes every committed transaction.
	OnCommit func(time.Duration)
}

// DB returns the underlying sql.DB for health checks.
func (w *Writer) DB() *sql.DB { return w.db }

// New creates a new SQLite Writer, initializes the database with WAL mode and schema.
func New(cfg WriterConfig) (*Writer, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Set connection pool for single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened database at %s", cfg.DBPath)
	return &Writer{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS bars (
			instrument TEXT    NOT NULL,
			timeframe  TEXT    NOT NULL,
			ts         INTEGER NOT NULL,
			open       REAL    NOT NULL,
			high       REAL    NOT NULL,
			low        REAL    NOT NULL,
			close      REAL    NOT NULL,
			volume     INTEGER,
			indicators TEXT,
			PRIMARY KEY (instrument, timeframe, ts)
		);

		CREATE TABLE IF NOT EXISTS trades (
			run_id      TEXT    NOT NULL,
			config_id   TEXT    NOT NULL,
			instrument  TEXT    NOT NULL,
			signal_ts   INTEGER NOT NULL,
			entry_ts    INTEGER NOT NULL,
			entry_price REAL    NOT NULL,
			exit_ts     INTEGER NOT NULL,
			exit_price  REAL    NOT NULL,
			ret         REAL    NOT NULL,
			exit_reason TEXT    NOT NULL,
			PRIMARY KEY (run_id, config_id, instrument, signal_ts)
		);

		CREATE TABLE IF NOT EXISTS labels (
			run_id       TEXT    NOT NULL,
			config_id    TEXT    NOT NULL,
			instrument   TEXT    NOT NULL,
			ts           INTEGER NOT NULL,
			close_t      REAL    NOT NULL,
			reversed     INTEGER NOT NULL,
			first_day    INTEGER,
			first_ts     INTEGER,
			PRIMARY KEY (run_id, config_id, instrument, ts)
		);

		CREATE TABLE IF NOT EXISTS summaries (
			run_id            TEXT    NOT NULL,
			config_id         TEXT    NOT NULL,
			instrument        TEXT    NOT NULL,
			trades            INTEGER NOT NULL,
			win_rate          REAL    NOT NULL,
			mean_return       REAL    NOT NULL,
			total_return      REAL    NOT NULL,
			cumulative_return REAL    NOT NULL,
			PRIMARY KEY (run_id, config_id, instrument)
		);

		CREATE TABLE IF NOT EXISTS run_errors (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id     TEXT    NOT NULL,
			config_id  TEXT,
			instrument TEXT,
			stage      TEXT    NOT NULL,
			message    TEXT    NOT NULL,
			at         INTEGER NOT NULL
		);
	`)
	return err
}

// inTx runs fn inside one transaction with a single prepared statement.
func (w *Writer) inTx(ctx context.Context, query string, fn func(stmt *sql.Stmt) error) error {
	start := time.Now()
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	if err := fn(stmt); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	if w.OnCommit != nil {
		w.OnCommit(time.Since(start))
	}
	return nil
}

// WriteBars stores a series, replacing bars with the same timestamp.
// Undefined indicator values are not stored.
func (w *Writer) WriteBars(ctx context.Context, s *model.Series) error {
	err := w.inTx(ctx, `
		INSERT OR REPLACE INTO bars (instrument, timeframe, ts, open, high, low, close, volume, indicators)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, func(stmt *sql.Stmt) error {
		for i := range s.Bars {
			b := &s.Bars[i]
			ind, err := encodeIndicators(b.Indicators)
			if err != nil {
				return err
			}
			if _, err := stmt.ExecContext(ctx, s.Instrument, s.Timeframe, b.Time.Unix(),
				b.Open, b.High, b.Low, b.Close, b.Volume, ind); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("sqlite write bars %s/%s: %w", s.Instrument, s.Timeframe, err)
	}
	log.Printf("[sqlite] stored %d %s bars for %s", s.Len(), s.Timeframe, s.Instrument)
	return nil
}

func encodeIndicators(m map[string]float64) (string, error) {
	defined := make(map[string]float64, len(m))
	for k, v := range m {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			defined[k] = v
		}
	}
	data, err := json.Marshal(defined)
	if err != nil {
		return "", fmt.Errorf("marshal indicators: %w", err)
	}
	return string(data), nil
}

// WriteTrades implements model.ResultWriter.
func (w *Writer) WriteTrades(ctx context.Context, runID string, trades []model.Trade) error {
	err := w.inTx(ctx, `
		INSERT OR REPLACE INTO trades (run_id, config_id, instrument, signal_ts, entry_ts, entry_price, exit_ts, exit_price, ret, exit_reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, func(stmt *sql.Stmt) error {
		for _, t := range trades {
			if _, err := stmt.ExecContext(ctx, runID, t.ConfigID, t.Instrument, t.SignalTime.Unix(),
				t.EntryTime.Unix(), t.EntryPrice, t.ExitTime.Unix(), t.ExitPrice, t.Return, t.ExitReason); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("sqlite write trades: %w", err)
	}
	log.Printf("[sqlite] committed %d trades for run %s", len(trades), runID)
	return nil
}

// WriteLabels implements model.ResultWriter.
func (w *Writer) WriteLabels(ctx context.Context, runID, configID, instrument string, labels []model.LabelRecord) error {
	err := w.inTx(ctx, `
		INSERT OR REPLACE INTO labels (run_id, config_id, instrument, ts, close_t, reversed, first_day, first_ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, func(stmt *sql.Stmt) error {
		for _, l := range labels {
			var day, ts sql.NullInt64
			if l.Reversed {
				day = sql.NullInt64{Int64: int64(l.FirstReversalDay), Valid: true}
				ts = sql.NullInt64{Int64: l.FirstReversalTime.Unix(), Valid: true}
			}
			if _, err := stmt.ExecContext(ctx, runID, configID, instrument, l.Time.Unix(), l.CloseT, l.Reversed, day, ts); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("sqlite write labels %s/%s: %w", configID, instrument, err)
	}
	return nil
}

// WriteSummaries implements model.ResultWriter.
func (w *Writer) WriteSummaries(ctx context.Context, runID string, summaries []model.Summary) error {
	err := w.inTx(ctx, `
		INSERT OR REPLACE INTO summaries (run_id, config_id, instrument, trades, win_rate, mean_return, total_return, cumulative_return)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, func(stmt *sql.Stmt) error {
		for _, s := range summaries {
			if _, err := stmt.ExecContext(ctx, runID, s.ConfigID, s.Instrument, s.Trades,
				s.WinRate, s.MeanReturn, s.TotalReturn, s.CumulativeReturn); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("sqlite write summaries: %w", err)
	}
	return nil
}

// WriteRunErrors implements model.ResultWriter.
func (w *Writer) WriteRunErrors(ctx context.Context, runID string, errs []model.RunError) error {
	err := w.inTx(ctx, `
		INSERT INTO run_errors (run_id, config_id, instrument, stage, message, at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, func(stmt *sql.Stmt) error {
		for _, e := range errs {
			if _, err := stmt.ExecContext(ctx, runID, e.ConfigID, e.Instrument, e.Stage, e.Message, e.At.Unix()); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("sqlite write run errors: %w", err)
	}
	log.Printf("[sqlite] recorded %d run errors for run %s", len(errs), runID)
	return nil
}

// Close closes the database.
func (w *Writer) Close() error {
	return w.db.Close()
}
