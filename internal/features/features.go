// Package features projects touch and trade events into fixed-width numeric rows
// for a downstream classifier.
package features

import (
	"time"

	"trendreversal/internal/detect"
	"trendreversal/internal/model"
)

// Feature names.
const (
	DistPct      = "dist_pct"
	EMAShortDiff = "ema_short_diff"
	EMALongDiff  = "ema_long_diff"
	MACDCenter   = "macd_center"
	RSI          = "rsi"
	ForceIndex   = "force_index"
	HTFTouch     = "htf_touch" // same-week weekly touch; sees the whole week's range
)

// Names is the fixed column order of every feature row.
var Names = []string{DistPct, EMAShortDiff, EMALongDiff, MACDCenter, RSI, ForceIndex, HTFTouch}

// Event is one touch or trade to featurize, with an optional label.
type Event struct {
	Time  time.Time
	Bar   model.Bar
	Label *bool
}

// Builder assembles feature rows. HigherTF, when set, is the banded weekly series
// used for the cross-timeframe touch flag.
type Builder struct {
	HigherTF *model.Series
}

// Build featurizes events in input order. Rows with any undefined input are
// dropped and counted; surviving rows keep their labels.
func (b *Builder) Build(events []Event) ([]model.FeatureVector, int) {
	rows := make([]model.FeatureVector, 0, len(events))
	dropped := 0
	for _, ev := range events {
		fv, ok := b.Vector(ev)
		if !ok {
			dropped++
			continue
		}
		rows = append(rows, fv)
	}
	return rows, dropped
}

// Vector builds one row; ok is false when a required indicator is undefined.
func (b *Builder) Vector(ev Event) (model.FeatureVector, bool) {
	bar := &ev.Bar
	get := func(name string) (float64, bool) { return bar.Value(name) }

	lower, ok := get(model.IndBandLower)
	if !ok || lower == 0 {
		return model.FeatureVector{}, false
	}
	emaShort, ok := get(model.IndEMAShort)
	if !ok {
		return model.FeatureVector{}, false
	}
	emaLong, ok := get(model.IndEMALong)
	if !ok {
		return model.FeatureVector{}, false
	}
	macd, ok := get(model.IndMACD)
	if !ok {
		return model.FeatureVector{}, false
	}
	signal, ok := get(model.IndMACDSignal)
	if !ok {
		return model.FeatureVector{}, false
	}
	rsi, ok := get(model.IndRSI)
	if !ok {
		return model.FeatureVector{}, false
	}
	efi, ok := get(model.IndForceIndex)
	if !ok {
		return model.FeatureVector{}, false
	}

	values := []float64{
		(lower - bar.Close) / lower,
		bar.Close - emaShort,
		bar.Close - emaLong,
		macd - signal,
		rsi,
		efi,
		b.htfTouch(ev.Time),
	}
	var lbl *bool
	if ev.Label != nil {
		v := *ev.Label
		lbl = &v
	}
	return model.FeatureVector{Time: ev.Time, Names: Names, Values: values, Label: lbl}, true
}

// htfTouch is 1 when the same or nearest preceding higher-timeframe bar touched
// its lower band. Weekly bars are stamped with their Monday, so a mid-week touch
// reads a bar whose high, low and close include the rest of that week. The
// column is not point-in-time.
func (b *Builder) htfTouch(t time.Time) float64 {
	if b.HigherTF == nil {
		return 0
	}
	i, ok := b.HigherTF.IndexAtOrBefore(t)
	if !ok {
		return 0
	}
	if detect.IsTouch(&b.HigherTF.Bars[i]) {
		return 1
	}
	return 0
}

// FromTouches pairs touches with labels by timestamp. Touches without a label
// get a nil label.
func FromTouches(touches []model.TouchEvent, labels []model.LabelRecord) []Event {
	byTime := make(map[int64]bool, len(labels))
	for _, l := range labels {
		byTime[l.Time.UnixNano()] = l.Reversed
	}
	out := make([]Event, len(touches))
	for i, ev := range touches {
		out[i] = Event{Time: ev.Time, Bar: ev.Bar}
		if rev, ok := byTime[ev.Time.UnixNano()]; ok {
			out[i].Label = &rev
		}
	}
	return out
}

// FromTrades builds one event per trade from the signal bar's snapshot, labelled
// with whether the trade won. Trades whose signal bar is missing are skipped.
func FromTrades(s *model.Series, trades []model.Trade) []Event {
	out := make([]Event, 0, len(trades))
	for _, tr := range trades {
		i, ok := s.IndexOf(tr.SignalTime)
		if !ok {
			continue
		}
		won := tr.Won()
		out = append(out, Event{Time: tr.SignalTime, Bar: s.Bars[i], Label: &won})
	}
	return out
}

// Labels returns the label column of rows; unlabelled rows read as false.
func Labels(rows []model.FeatureVector) []bool {
	out := make([]bool, len(rows))
	for i, r := range rows {
		out[i] = r.Label != nil && *r.Label
	}
	return out
}
