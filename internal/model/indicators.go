package model

// Canonical indicator column names. Provider-specific names are mapped onto these
// by the feed loaders; the engine reads nothing else.
const (
	IndBandLower  = "band_lower"
	IndBandMiddle = "band_middle"
	IndBandUpper  = "band_upper"
	IndEMAShort   = "ema_short"
	IndEMALong    = "ema_long"
	IndMACD       = "macd"
	IndMACDSignal = "macd_signal"
	IndMACDHist   = "macd_hist"
	IndRSI        = "rsi"
	IndForceIndex = "force_index"
	IndATR        = "atr"
)

// CanonicalIndicators lists every canonical column in a stable order.
var CanonicalIndicators = []string{
	IndBandLower, IndBandMiddle, IndBandUpper,
	IndEMAShort, IndEMALong,
	IndMACD, IndMACDSignal, IndMACDHist,
	IndRSI, IndForceIndex, IndATR,
}

// Timeframes supported by the feeds.
const (
	TimeframeDaily  = "daily"
	TimeframeWeekly = "weekly"
)
