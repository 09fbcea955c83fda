package model

import (
	"encoding/json"
	"time"
)

// Trade is one simulated long entry/exit pair.
// Return is a fraction: ExitPrice/EntryPrice - 1 (0.05 = +5%).
type Trade struct {
	Instrument string    `json:"instrument"`
	ConfigID   string    `json:"config_id"`
	SignalTime time.Time `json:"signal_time"` // touch bar that produced the entry
	EntryTime  time.Time `json:"entry_time"`
	EntryPrice float64   `json:"entry_price"`
	ExitTime   time.Time `json:"exit_time"`
	ExitPrice  float64   `json:"exit_price"`
	Return     float64   `json:"return"`
	ExitReason string    `json:"exit_reason"`
}

// Won reports whether the trade closed with a positive return.
func (t *Trade) Won() bool { return t.Return > 0 }

// Key returns "instrument:config".
func (t *Trade) Key() string {
	return t.Instrument + ":" + t.ConfigID
}

// JSON returns the JSON-encoded trade.
func (t *Trade) JSON() []byte {
	b, _ := json.Marshal(t)
	return b
}

// Summary aggregates the trades of one (instrument, configuration) pair.
// WinRate, MeanReturn, TotalReturn and CumulativeReturn are fractions.
type Summary struct {
	Instrument       string  `json:"instrument"`
	ConfigID         string  `json:"config_id"`
	Trades           int     `json:"trades"`
	WinRate          float64 `json:"win_rate"`
	MeanReturn       float64 `json:"mean_return"`
	TotalReturn      float64 `json:"total_return"`      // sum of returns
	CumulativeReturn float64 `json:"cumulative_return"` // compounded: prod(1+r) - 1
}

// Key returns "instrument:config".
func (s *Summary) Key() string {
	return s.Instrument + ":" + s.ConfigID
}

// JSON returns the JSON-encoded summary.
func (s *Summary) JSON() []byte {
	b, _ := json.Marshal(s)
	return b
}

// SkipRecord explains why a touch candidate produced no trade.
type SkipRecord struct {
	SignalTime time.Time `json:"signal_time"`
	Reason     string    `json:"reason"`
}
