// Package feed loads per-instrument bar series from provider files and maps
// provider-specific indicator column names onto the canonical set in model.
package feed

import (
	"strings"

	"trendreversal/internal/model"
)

// aliases maps known provider column names (lower-cased) to canonical indicator names.
// Both the raw download names and the renamed columns of older result files are accepted.
var aliases = map[string]string{
	// Keltner channel
	"kcls_20_3.0": model.IndBandLower,
	"kcls_20_3":   model.IndBandLower,
	"kc_lower":    model.IndBandLower,
	"kcbs_20_3.0": model.IndBandMiddle,
	"kcbs_20_3":   model.IndBandMiddle,
	"kc_middle":   model.IndBandMiddle,
	"kcus_20_3.0": model.IndBandUpper,
	"kcus_20_3":   model.IndBandUpper,
	"kc_upper":    model.IndBandUpper,

	// Moving averages
	"ema_11": model.IndEMAShort,
	"ema11":  model.IndEMAShort,
	"ema_22": model.IndEMALong,
	"ema22":  model.IndEMALong,

	// MACD
	"macd_12_26_9":  model.IndMACD,
	"macd":          model.IndMACD,
	"macds_12_26_9": model.IndMACDSignal,
	"macd_signal":   model.IndMACDSignal,
	"macdh_12_26_9": model.IndMACDHist,
	"macd_hist":     model.IndMACDHist,

	// Oscillators
	"rsi_14":              model.IndRSI,
	"rsi":                 model.IndRSI,
	"efi_2":               model.IndForceIndex,
	"elder_force_index_2": model.IndForceIndex,
	"efi":                 model.IndForceIndex,
	"atr":                 model.IndATR,
	"atr_14":              model.IndATR,
	"atrr_14":             model.IndATR,
}

// Canonical returns the canonical indicator name for a provider column.
// Unknown columns are returned unchanged with ok=false.
func Canonical(column string) (name string, ok bool) {
	key := strings.ToLower(strings.TrimSpace(column))
	if c, found := aliases[key]; found {
		return c, true
	}
	for _, c := range model.CanonicalIndicators {
		if key == c {
			return c, true
		}
	}
	return column, false
}

// ohlcv column roles.
const (
	colDate = iota
	colOpen
	colHigh
	colLow
	colClose
	colVolume
)

var priceColumns = map[string]int{
	"date_":  colDate,
	"date":   colDate,
	"open":   colOpen,
	"high":   colHigh,
	"low":    colLow,
	"close":  colClose,
	"volume": colVolume,
}

var requiredNames = [...]string{"Date", "Open", "High", "Low", "Close", "Volume"}
