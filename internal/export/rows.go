// Package export writes run output tables as CSV, Parquet or JSON files.
package export

import (
	"time"

	"trendreversal/internal/features"
	"trendreversal/internal/model"
)

// TradeRow is the flat trades-table record.
type TradeRow struct {
	Instrument string  `json:"instrument" parquet:"instrument"`
	ConfigID   string  `json:"config_id" parquet:"config_id"`
	SignalTime string  `json:"signal_time" parquet:"signal_time"`
	EntryTime  string  `json:"entry_time" parquet:"entry_time"`
	EntryPrice float64 `json:"entry_price" parquet:"entry_price"`
	ExitTime   string  `json:"exit_time" parquet:"exit_time"`
	ExitPrice  float64 `json:"exit_price" parquet:"exit_price"`
	Return     float64 `json:"return" parquet:"return"`
	ExitReason string  `json:"exit_reason" parquet:"exit_reason"`
}

// SummaryRow is the flat summary-table record.
type SummaryRow struct {
	Instrument       string  `json:"instrument" parquet:"instrument"`
	ConfigID         string  `json:"config_id" parquet:"config_id"`
	Trades           int64   `json:"trades" parquet:"trades"`
	WinRate          float64 `json:"win_rate" parquet:"win_rate"`
	MeanReturn       float64 `json:"mean_return" parquet:"mean_return"`
	TotalReturn      float64 `json:"total_return" parquet:"total_return"`
	CumulativeReturn float64 `json:"cumulative_return" parquet:"cumulative_return"`
}

// FeatureRow is one feature-matrix record. Columns follow features.Names.
type FeatureRow struct {
	Time         int64   `json:"t" parquet:"t"`
	Instrument   string  `json:"instrument" parquet:"instrument"`
	ConfigID     string  `json:"config_id" parquet:"config_id"`
	DistPct      float64 `json:"dist_pct" parquet:"dist_pct"`
	EMAShortDiff float64 `json:"ema_short_diff" parquet:"ema_short_diff"`
	EMALongDiff  float64 `json:"ema_long_diff" parquet:"ema_long_diff"`
	MACDCenter   float64 `json:"macd_center" parquet:"macd_center"`
	RSI          float64 `json:"rsi" parquet:"rsi"`
	ForceIndex   float64 `json:"force_index" parquet:"force_index"`
	HTFTouch     float64 `json:"htf_touch" parquet:"htf_touch"`
	Label        *bool   `json:"label,omitempty" parquet:"label,optional"`
}

// Values returns the feature columns in features.Names order.
func (r *FeatureRow) Values() []float64 {
	return []float64{r.DistPct, r.EMAShortDiff, r.EMALongDiff, r.MACDCenter, r.RSI, r.ForceIndex, r.HTFTouch}
}

func day(t time.Time) string { return t.UTC().Format(time.DateOnly) }

// TradeRows flattens trades.
func TradeRows(trades []model.Trade) []TradeRow {
	out := make([]TradeRow, len(trades))
	for i, t := range trades {
		out[i] = TradeRow{
			Instrument: t.Instrument,
			ConfigID:   t.ConfigID,
			SignalTime: day(t.SignalTime),
			EntryTime:  day(t.EntryTime),
			EntryPrice: t.EntryPrice,
			ExitTime:   day(t.ExitTime),
			ExitPrice:  t.ExitPrice,
			Return:     t.Return,
			ExitReason: t.ExitReason,
		}
	}
	return out
}

// SummaryRows flattens summaries.
func SummaryRows(sums []model.Summary) []SummaryRow {
	out := make([]SummaryRow, len(sums))
	for i, s := range sums {
		out[i] = SummaryRow{
			Instrument:       s.Instrument,
			ConfigID:         s.ConfigID,
			Trades:           int64(s.Trades),
			WinRate:          s.WinRate,
			MeanReturn:       s.MeanReturn,
			TotalReturn:      s.TotalReturn,
			CumulativeReturn: s.CumulativeReturn,
		}
	}
	return out
}

// FeatureRows tags feature vectors of one unit with its instrument and config.
func FeatureRows(instrument, configID string, vectors []model.FeatureVector) []FeatureRow {
	out := make([]FeatureRow, len(vectors))
	for i := range vectors {
		fv := &vectors[i]
		get := func(name string) float64 {
			v, _ := fv.Get(name)
			return v
		}
		out[i] = FeatureRow{
			Time:         fv.Time.Unix(),
			Instrument:   instrument,
			ConfigID:     configID,
			DistPct:      get(features.DistPct),
			EMAShortDiff: get(features.EMAShortDiff),
			EMALongDiff:  get(features.EMALongDiff),
			MACDCenter:   get(features.MACDCenter),
			RSI:          get(features.RSI),
			ForceIndex:   get(features.ForceIndex),
			HTFTouch:     get(features.HTFTouch),
			Label:        fv.Label,
		}
	}
	return out
}
