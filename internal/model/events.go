package model

import "time"

// TouchEvent is a bar where price met or crossed the lower band.
// Bar carries the full indicator snapshot at the touch.
type TouchEvent struct {
	Index int       `json:"index"` // position in the series that produced it
	Time  time.Time `json:"time"`
	Bar   Bar       `json:"bar"`
}

// LabelRecord is the ground-truth outcome for one touch.
// FirstReversalDay and FirstReversalTime are only meaningful when Reversed is true;
// FirstReversalDay then lies in [1, max(lookahead)].
type LabelRecord struct {
	Time              time.Time `json:"time"`
	CloseT            float64   `json:"close_t"`
	Reversed          bool      `json:"reversed"`
	FirstReversalDay  int       `json:"first_reversal_day,omitempty"`
	FirstReversalTime time.Time `json:"first_reversal_time,omitempty"`
}

// FeatureVector is one fixed-order numeric row for the classifier, with an optional label.
// Values never contain NaN; rows with missing inputs are dropped before they are built.
type FeatureVector struct {
	Time   time.Time `json:"time"`
	Names  []string  `json:"names"`
	Values []float64 `json:"values"`
	Label  *bool     `json:"label,omitempty"`
}

// Get returns the named feature value.
func (f *FeatureVector) Get(name string) (float64, bool) {
	for i, n := range f.Names {
		if n == name {
			return f.Values[i], true
		}
	}
	return 0, false
}
