package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/parquet-go/parquet-go"
)

// Saver writes the three output tables in one file format.
type Saver interface {
	Extension() string
	SaveTrades(path string, rows []TradeRow) error
	SaveSummaries(path string, rows []SummaryRow) error
	SaveFeatures(path string, rows []FeatureRow) error
}

// NewSaver returns the saver for format (csv, parquet, json), or nil if the
// format is not supported.
func NewSaver(format string) Saver {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "csv":
		return CSVSaver{}
	case "parquet":
		return ParquetSaver{}
	case "json":
		return JSONSaver{}
	default:
		return nil
	}
}

// ParquetSaver writes Parquet files.
type ParquetSaver struct{}

func (ParquetSaver) Extension() string { return "parquet" }

func (ParquetSaver) SaveTrades(path string, rows []TradeRow) error {
	return parquet.WriteFile(path, rows)
}

func (ParquetSaver) SaveSummaries(path string, rows []SummaryRow) error {
	return parquet.WriteFile(path, rows)
}

func (ParquetSaver) SaveFeatures(path string, rows []FeatureRow) error {
	return parquet.WriteFile(path, rows)
}

// ReadFeatures loads a feature matrix written by ParquetSaver.
func ReadFeatures(path string) ([]FeatureRow, error) {
	return parquet.ReadFile[FeatureRow](path)
}

// JSONSaver writes indented JSON arrays.
type JSONSaver struct{}

func (JSONSaver) Extension() string { return "json" }

func (JSONSaver) SaveTrades(path string, rows []TradeRow) error { return saveJSON(path, rows) }

func (JSONSaver) SaveSummaries(path string, rows []SummaryRow) error { return saveJSON(path, rows) }

func (JSONSaver) SaveFeatures(path string, rows []FeatureRow) error { return saveJSON(path, rows) }

func saveJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// CSVSaver writes comma-separated tables with a header row.
type CSVSaver struct{}

func (CSVSaver) Extension() string { return "csv" }

func (CSVSaver) SaveTrades(path string, rows []TradeRow) error {
	return saveCSV(path, func(w io.Writer) error { return WriteTradesCSV(w, rows) })
}

func (CSVSaver) SaveSummaries(path string, rows []SummaryRow) error {
	return saveCSV(path, func(w io.Writer) error { return WriteSummariesCSV(w, rows) })
}

func (CSVSaver) SaveFeatures(path string, rows []FeatureRow) error {
	return saveCSV(path, func(w io.Writer) error { return WriteFeaturesCSV(w, rows) })
}

func saveCSV(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

func num(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

// WriteTradesCSV writes the trades table.
func WriteTradesCSV(w io.Writer, rows []TradeRow) error {
	cw := csv.NewWriter(w)
	cw.Write([]string{"instrument", "config_id", "signal_time", "entry_time", "entry_price", "exit_time", "exit_price", "return", "exit_reason"})
	for _, r := range rows {
		cw.Write([]string{r.Instrument, r.ConfigID, r.SignalTime, r.EntryTime, num(r.EntryPrice), r.ExitTime, num(r.ExitPrice), num(r.Return), r.ExitReason})
	}
	cw.Flush()
	return cw.Error()
}

// WriteSummariesCSV writes the summary table.
func WriteSummariesCSV(w io.Writer, rows []SummaryRow) error {
	cw := csv.NewWriter(w)
	cw.Write([]string{"instrument", "config_id", "trades", "win_rate", "mean_return", "total_return", "cumulative_return"})
	for _, r := range rows {
		cw.Write([]string{r.Instrument, r.ConfigID, strconv.FormatInt(r.Trades, 10), num(r.WinRate), num(r.MeanReturn), num(r.TotalReturn), num(r.CumulativeReturn)})
	}
	cw.Flush()
	return cw.Error()
}

// WriteFeaturesCSV writes the feature matrix; an unlabelled row has an empty
// label cell.
func WriteFeaturesCSV(w io.Writer, rows []FeatureRow) error {
	cw := csv.NewWriter(w)
	cw.Write([]string{"t", "instrument", "config_id", "dist_pct", "ema_short_diff", "ema_long_diff", "macd_center", "rsi", "force_index", "htf_touch", "label"})
	for _, r := range rows {
		lbl := ""
		if r.Label != nil {
			lbl = strconv.FormatBool(*r.Label)
		}
		rec := []string{strconv.FormatInt(r.Time, 10), r.Instrument, r.ConfigID}
		for _, v := range r.Values() {
			rec = append(rec, num(v))
		}
		cw.Write(append(rec, lbl))
	}
	cw.Flush()
	return cw.Error()
}
