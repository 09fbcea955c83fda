// Package filter holds the per-run filter configuration and the entry gates it enables.
package filter

import (
	"errors"
	"fmt"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
)

// Entry policies.
const (
	EntryClose    = "close"     // enter at the touch bar's close
	EntryNextOpen = "next-open" // enter at the following bar's open
)

// End-of-history policies.
const (
	EndForceExit = "force-exit" // close at the last available bar
	EndDrop      = "drop"       // discard the candidate
)

// Band-center exit directions.
const (
	CenterAbove = "above" // exit once close rises above the middle band
	CenterBelow = "below" // exit once close falls below the middle band
)

// ErrInvalidConfig wraps validation failures.
var ErrInvalidConfig = errors.New("invalid filter config")

var validate = validator.New()

// Config is one named, immutable simulation configuration. Values are copied into
// every unit of a batch run; nothing reads a shared mutable instance.
type Config struct {
	ID string `yaml:"id" validate:"required"`

	// Gates
	Confirmation bool `yaml:"confirmation"`
	RSI          bool `yaml:"rsi"`
	MACDMomentum bool `yaml:"macd_momentum"`
	ForceIndex   bool `yaml:"force_index"`
	Volatility   bool `yaml:"volatility"`
	Divergence   bool `yaml:"divergence"`

	// TrailingExit selects the momentum/band-center exit; false means fixed horizon.
	TrailingExit bool `yaml:"trailing_exit"`

	Oversold           float64 `yaml:"oversold" default:"30" validate:"gt=0,lt=100"`
	VolatilityMin      float64 `yaml:"volatility_min" default:"1.0" validate:"gte=0"`
	DivergenceLookback int     `yaml:"divergence_lookback" default:"5" validate:"gte=1"`
	Lookback           int     `yaml:"lookback" default:"20" validate:"gte=2"`
	Multiplier         float64 `yaml:"multiplier" default:"3.0" validate:"gt=0"`
	HoldDays           int     `yaml:"hold_days" default:"5" validate:"gte=1"`
	Lookahead          []int   `yaml:"lookahead" default:"[1,2]" validate:"min=1,dive,gte=1"`

	Entry        string `yaml:"entry" default:"close" validate:"oneof=close next-open"`
	EndOfHistory string `yaml:"end_of_history" default:"force-exit" validate:"oneof=force-exit drop"`
	CenterExit   string `yaml:"center_exit" default:"above" validate:"oneof=above below"`
}

// Default returns a configuration with every gate disabled and default parameters.
func Default() Config {
	var c Config
	if err := defaults.Set(&c); err != nil {
		panic(err) // static tags
	}
	c.ID = "default"
	return c
}

// ApplyDefaults fills unset parameters from the struct tags.
func (c *Config) ApplyDefaults() error {
	return defaults.Set(c)
}

// Validate checks parameter ranges and policy names.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %s=%s", fe.Field(), fe.Tag(), fe.Param()))
			}
			return fmt.Errorf("%s: %w: %s", c.ID, ErrInvalidConfig, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%s: %w: %v", c.ID, ErrInvalidConfig, err)
	}
	return nil
}

// Clone returns a deep copy.
func (c Config) Clone() Config {
	c.Lookahead = append([]int(nil), c.Lookahead...)
	return c
}

// MomentumEnabled reports whether any momentum-family gate is on.
func (c *Config) MomentumEnabled() bool {
	return c.RSI || c.MACDMomentum || c.ForceIndex
}

// Enabled lists the enabled gate names in evaluation order.
func (c *Config) Enabled() []string {
	var out []string
	for _, g := range AllGates {
		if c.gateOn(g) {
			out = append(out, g)
		}
	}
	return out
}

func (c *Config) gateOn(name string) bool {
	switch name {
	case GateConfirmation:
		return c.Confirmation
	case GateVolatility:
		return c.Volatility
	case GateDivergence:
		return c.Divergence
	case GateRSI:
		return c.RSI
	case GateMACDMomentum:
		return c.MACDMomentum
	case GateForceIndex:
		return c.ForceIndex
	}
	return false
}

// String is a compact description used in logs.
func (c Config) String() string {
	exit := "fixed"
	if c.TrailingExit {
		exit = "trailing"
	}
	return fmt.Sprintf("%s[gates=%s exit=%s entry=%s end=%s]", c.ID, strings.Join(c.Enabled(), ","), exit, c.Entry, c.EndOfHistory)
}
