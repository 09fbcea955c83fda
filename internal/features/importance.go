package features

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// ImportanceProvider is any trained classifier able to report one importance per
// feature column, in the column order it was trained with.
type ImportanceProvider interface {
	FeatureImportances() ([]float64, error)
}

// Importance is one ranked feature.
type Importance struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// Rank pairs importances with names and sorts them in descending order.
// Ties keep the column order.
func Rank(p ImportanceProvider, names []string) ([]Importance, error) {
	vals, err := p.FeatureImportances()
	if err != nil {
		return nil, fmt.Errorf("feature importances: %w", err)
	}
	if len(vals) != len(names) {
		return nil, fmt.Errorf("feature importances: got %d values for %d features", len(vals), len(names))
	}
	out := make([]Importance, len(names))
	for i := range names {
		out[i] = Importance{Name: names[i], Value: vals[i]}
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].Value > out[b].Value })
	return out, nil
}

// StaticImportances is a provider backed by values exported by an external
// training job.
type StaticImportances []float64

// FeatureImportances implements ImportanceProvider.
func (s StaticImportances) FeatureImportances() ([]float64, error) {
	return append([]float64(nil), s...), nil
}

// LoadImportances reads a JSON file holding either an array of numbers or an
// object mapping feature name to importance (ordered by Names).
func LoadImportances(path string) (StaticImportances, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var arr []float64
	if err := json.Unmarshal(raw, &arr); err == nil {
		return arr, nil
	}
	var byName map[string]float64
	if err := json.Unmarshal(raw, &byName); err != nil {
		return nil, fmt.Errorf("parse importances %s: %w", path, err)
	}
	out := make(StaticImportances, len(Names))
	for i, n := range Names {
		v, ok := byName[n]
		if !ok {
			return nil, fmt.Errorf("importances %s: missing %q", path, n)
		}
		out[i] = v
	}
	return out, nil
}
