package model

import (
	"context"
	"time"
)

// ── Port Interfaces ──
// These interfaces decouple the engine from concrete feeds and sinks
// (CSV, SQLite, Redis, Parquet). Each adapter satisfies one or more of them.

// SeriesSource supplies the bar series of one instrument and timeframe.
type SeriesSource interface {
	// LoadSeries returns the full bar history, sorted by time.
	LoadSeries(ctx context.Context, instrument, timeframe string) (*Series, error)
}

// ResultWriter persists the output tables of a run.
type ResultWriter interface {
	// WriteTrades persists executed trades.
	WriteTrades(ctx context.Context, runID string, trades []Trade) error

	// WriteLabels persists the reversal labels of one (config, instrument) unit.
	WriteLabels(ctx context.Context, runID, configID, instrument string, labels []LabelRecord) error

	// WriteSummaries persists per (instrument, config) aggregates.
	WriteSummaries(ctx context.Context, runID string, summaries []Summary) error

	// WriteRunErrors persists the run's error log.
	WriteRunErrors(ctx context.Context, runID string, errs []RunError) error

	// Close releases underlying resources.
	Close() error
}

// ResultPublisher fans run output out to downstream consumers.
type ResultPublisher interface {
	// PublishTrades publishes trades of one unit.
	PublishTrades(ctx context.Context, runID string, trades []Trade) error

	// PublishSummary publishes one unit's summary.
	PublishSummary(ctx context.Context, runID string, s Summary) error

	// Close releases underlying resources.
	Close() error
}

// RunError records one isolated failure inside a batch run.
type RunError struct {
	RunID      string    `json:"run_id"`
	ConfigID   string    `json:"config_id"`
	Instrument string    `json:"instrument"`
	Stage      string    `json:"stage"` // load, detect, label, simulate, features, persist, publish
	Message    string    `json:"message"`
	At         time.Time `json:"at"`
}
