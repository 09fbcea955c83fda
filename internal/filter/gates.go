package filter

import "trendreversal/internal/model"

// Gate names.
const (
	GateConfirmation = "confirmation"
	GateRSI          = "rsi"
	GateMACDMomentum = "macd-momentum"
	GateForceIndex   = "force-index"
	GateVolatility   = "volatility"
	GateDivergence   = "divergence"
)

// AllGates lists every gate in evaluation order: required gates first, then the
// momentum family.
var AllGates = []string{
	GateConfirmation, GateVolatility, GateDivergence,
	GateRSI, GateMACDMomentum, GateForceIndex,
}

// MomentumGates combine with OR; every other gate is required.
var MomentumGates = map[string]bool{
	GateRSI:          true,
	GateMACDMomentum: true,
	GateForceIndex:   true,
}

// Predicate evaluates one gate for the candidate at index i.
// Any undefined value the predicate needs makes it fail.
type Predicate func(s *model.Series, i int, c *Config) bool

var predicates = map[string]Predicate{
	GateConfirmation: confirmation,
	GateRSI:          oversold,
	GateMACDMomentum: rising(model.IndMACDHist),
	GateForceIndex:   rising(model.IndForceIndex),
	GateVolatility:   volatile,
	GateDivergence:   divergence,
}

// confirmation: the next bar closes above its open.
func confirmation(s *model.Series, i int, _ *Config) bool {
	if i+1 >= s.Len() {
		return false
	}
	next := &s.Bars[i+1]
	return next.Close > next.Open
}

func oversold(s *model.Series, i int, c *Config) bool {
	v, ok := s.Bars[i].Value(model.IndRSI)
	return ok && v < c.Oversold
}

// rising returns a predicate for name[i] > name[i-1].
func rising(name string) Predicate {
	return func(s *model.Series, i int, _ *Config) bool {
		if i < 1 {
			return false
		}
		cur, ok := s.Bars[i].Value(name)
		if !ok {
			return false
		}
		prev, ok := s.Bars[i-1].Value(name)
		return ok && cur > prev
	}
}

func volatile(s *model.Series, i int, c *Config) bool {
	v, ok := s.Bars[i].Value(model.IndATR)
	return ok && v >= c.VolatilityMin
}

// divergence: close higher than n bars ago while the MACD line is lower.
func divergence(s *model.Series, i int, c *Config) bool {
	n := c.DivergenceLookback
	if i < n {
		return false
	}
	macd, ok := s.Bars[i].Value(model.IndMACD)
	if !ok {
		return false
	}
	macdPrev, ok := s.Bars[i-n].Value(model.IndMACD)
	if !ok {
		return false
	}
	return s.Bars[i].Close > s.Bars[i-n].Close && macd < macdPrev
}
