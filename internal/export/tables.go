package export

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
)

// Tables is the full output of one run.
type Tables struct {
	Trades    []TradeRow
	Summaries []SummaryRow
	Features  []FeatureRow
}

// Save writes trades, summary and features files under dir with the saver's
// extension and returns the written paths. Empty feature matrices are skipped.
func Save(dir, prefix string, s Saver, t Tables) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	name := func(table string) string {
		if prefix != "" {
			table = prefix + "_" + table
		}
		return filepath.Join(dir, table+"."+s.Extension())
	}

	var written []string
	path := name("trades")
	if err := s.SaveTrades(path, t.Trades); err != nil {
		return written, fmt.Errorf("save trades: %w", err)
	}
	written = append(written, path)

	path = name("summary")
	if err := s.SaveSummaries(path, t.Summaries); err != nil {
		return written, fmt.Errorf("save summary: %w", err)
	}
	written = append(written, path)

	if len(t.Features) > 0 {
		path = name("features")
		if err := s.SaveFeatures(path, t.Features); err != nil {
			return written, fmt.Errorf("save features: %w", err)
		}
		written = append(written, path)
	}

	log.Printf("[export] wrote %d files to %s", len(written), dir)
	return written, nil
}
