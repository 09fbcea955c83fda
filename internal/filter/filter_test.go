package filter

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trendreversal/internal/fixture"
	"trendreversal/internal/model"
)

var nan = math.NaN()

// gateSeries is a 7-bar series with hand-set oscillator columns.
func gateSeries() *model.Series {
	s := fixture.Series("X", []fixture.OHLC{
		{O: 10, H: 11, L: 9, C: 10},
		{O: 10, H: 11, L: 9, C: 9.5},
		{O: 9.5, H: 10, L: 9, C: 9.2},
		{O: 9.2, H: 9.5, L: 8.5, C: 9},
		{O: 9, H: 9.5, L: 8, C: 8.8},
		{O: 8.8, H: 11, L: 8.5, C: 10.5}, // i=5: close > close[0], bullish
		{O: 10, H: 12, L: 10, C: 11.5},   // bullish follow-through
	}, nil)
	return s.WithColumns(map[string][]float64{
		model.IndRSI:        {50, 45, 40, 35, 28, 25, 40},
		model.IndMACDHist:   {nan, -0.5, -0.6, -0.7, -0.6, -0.4, 0.1},
		model.IndForceIndex: {nan, -10, -20, -5, -30, -40, 5},
		model.IndATR:        {0.5, 0.6, 0.8, 1.0, 1.2, 0.9, 1.1},
		model.IndMACD:       {-0.1, -0.2, -0.3, -0.4, -0.5, -0.3, -0.1},
	})
}

func gate(name string, s *model.Series, i int, c Config) bool {
	return predicates[name](s, i, &c)
}

func TestGates(t *testing.T) {
	s := gateSeries()
	c := Default()

	assert.True(t, gate(GateConfirmation, s, 5, c), "bar 6 is bullish")
	assert.False(t, gate(GateConfirmation, s, 0, c), "bar 1 is bearish")
	assert.False(t, gate(GateConfirmation, s, 6, c), "no next bar")

	assert.True(t, gate(GateRSI, s, 4, c))
	assert.False(t, gate(GateRSI, s, 3, c))

	assert.True(t, gate(GateMACDMomentum, s, 4, c))
	assert.False(t, gate(GateMACDMomentum, s, 3, c))
	assert.False(t, gate(GateMACDMomentum, s, 1, c), "undefined previous histogram")
	assert.False(t, gate(GateMACDMomentum, s, 0, c), "no previous bar")

	assert.True(t, gate(GateForceIndex, s, 3, c))
	assert.False(t, gate(GateForceIndex, s, 5, c))
	assert.False(t, gate(GateForceIndex, s, 1, c))

	assert.True(t, gate(GateVolatility, s, 3, c), "atr equal to the minimum passes")
	assert.False(t, gate(GateVolatility, s, 5, c))

	assert.True(t, gate(GateDivergence, s, 5, c))
	assert.False(t, gate(GateDivergence, s, 4, c), "fewer than 5 prior bars")
	assert.False(t, gate(GateDivergence, s, 6, c), "macd not lower than 5 bars ago")
}

func TestPipeline_NoGatesAcceptsEverything(t *testing.T) {
	s := gateSeries()
	p := NewPipeline(Default())
	for i := 0; i < s.Len(); i++ {
		d := p.Evaluate(s, i)
		assert.True(t, d.Pass)
		assert.Empty(t, d.Results)
	}
}

func TestPipeline_MomentumIsOR(t *testing.T) {
	s := gateSeries()
	c := Default()
	c.RSI = true
	c.ForceIndex = true

	p := NewPipeline(c)
	assert.True(t, p.Accept(s, 3), "force index rising at 3, rsi not oversold")
	assert.True(t, p.Accept(s, 4), "rsi oversold at 4, force index falling")

	d := p.Evaluate(s, 2)
	assert.False(t, d.Pass)
	assert.Equal(t, "momentum", d.RejectedBy)
	assert.Len(t, d.Results, 2)
}

func TestPipeline_RequiredIsAND(t *testing.T) {
	s := gateSeries()
	c := Default()
	c.Confirmation = true
	c.Volatility = true

	p := NewPipeline(c)
	d := p.Evaluate(s, 5)
	assert.False(t, d.Pass)
	assert.Equal(t, GateVolatility, d.RejectedBy)

	c.VolatilityMin = 0.5
	assert.True(t, NewPipeline(c).Accept(s, 5))
}

func TestPipeline_RequiredGatesAreMonotone(t *testing.T) {
	s := gateSeries()
	base := Default()
	base.RSI = true
	base.MACDMomentum = true

	count := func(c Config) int {
		p := NewPipeline(c)
		n := 0
		for i := 0; i < s.Len(); i++ {
			if p.Accept(s, i) {
				n++
			}
		}
		return n
	}

	prev := count(base)
	c := base
	for _, enable := range []func(*Config){
		func(c *Config) { c.Confirmation = true },
		func(c *Config) { c.Volatility = true },
		func(c *Config) { c.Divergence = true },
	} {
		enable(&c)
		n := count(c)
		assert.LessOrEqual(t, n, prev)
		prev = n
	}
}

func TestPipeline_EmptyMomentumGroupIsSkipped(t *testing.T) {
	s := gateSeries()
	c := Default()
	c.Confirmation = true

	withGroup := NewPipeline(c)
	skipped := &Pipeline{cfg: c, required: []string{GateConfirmation}}
	for i := 0; i < s.Len(); i++ {
		assert.Equal(t, skipped.Accept(s, i), withGroup.Accept(s, i), "bar %d", i)
	}
}

func TestPipeline_SnapshotsConfig(t *testing.T) {
	c := Default()
	c.Lookahead = []int{1, 2}
	p := NewPipeline(c)
	c.Lookahead[0] = 99
	c.Confirmation = true
	assert.Equal(t, []int{1, 2}, p.Config().Lookahead)
	assert.False(t, p.Config().Confirmation)
}

func TestDefault(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())
	assert.Equal(t, 30.0, c.Oversold)
	assert.Equal(t, 1.0, c.VolatilityMin)
	assert.Equal(t, 20, c.Lookback)
	assert.Equal(t, 3.0, c.Multiplier)
	assert.Equal(t, 5, c.HoldDays)
	assert.Equal(t, []int{1, 2}, c.Lookahead)
	assert.Equal(t, EntryClose, c.Entry)
	assert.Equal(t, EndForceExit, c.EndOfHistory)
	assert.Empty(t, c.Enabled())
}

func TestReadCSV_LegacyMatrix(t *testing.T) {
	in := `Config_ID,USE_CONFIRMATION_CANDLE,USE_RSI_FILTER,USE_MACD_HIST_FILTER,USE_FORCE_INDEX_FILTER,USE_ATR_FILTER,USE_MACD_DIVERGENCE,USE_TRAILING_EXIT,ATR_THRESHOLD
C001,True,False,True,False,True,False,True,1.5
C002,False,False,False,False,False,False,False,
`
	cfgs, err := ReadCSV(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, cfgs, 2)

	c := cfgs[0]
	assert.Equal(t, "C001", c.ID)
	assert.True(t, c.Confirmation)
	assert.True(t, c.MACDMomentum)
	assert.True(t, c.Volatility)
	assert.True(t, c.TrailingExit)
	assert.False(t, c.RSI)
	assert.Equal(t, 1.5, c.VolatilityMin)
	assert.Equal(t, 30.0, c.Oversold, "unset parameters take defaults")

	assert.Equal(t, 1.0, cfgs[1].VolatilityMin)
	assert.Empty(t, cfgs[1].Enabled())
}

func TestReadCSV_UnknownColumn(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("id,confirmation,USE_MAGIC_FILTER\na,true,true\n"))
	assert.ErrorIs(t, err, ErrUnknownFlag)
}

func TestReadCSV_InvalidPolicy(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("id,entry\na,tomorrow\n"))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestReadYAML(t *testing.T) {
	in := `
configs:
  - id: trailing
    confirmation: true
    rsi: true
    trailing_exit: true
    entry: next-open
    lookahead: [1, 3, 5]
  - id: fixed
    hold_days: 10
    end_of_history: drop
`
	cfgs, err := ReadYAML(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, cfgs, 2)
	assert.Equal(t, EntryNextOpen, cfgs[0].Entry)
	assert.Equal(t, []int{1, 3, 5}, cfgs[0].Lookahead)
	assert.Equal(t, []string{GateConfirmation, GateRSI}, cfgs[0].Enabled())
	assert.Equal(t, 10, cfgs[1].HoldDays)
	assert.Equal(t, EndDrop, cfgs[1].EndOfHistory)
	assert.Equal(t, []int{1, 2}, cfgs[1].Lookahead)
}

func TestReadYAML_UnknownKey(t *testing.T) {
	_, err := ReadYAML(strings.NewReader("- id: a\n  use_magic: true\n"))
	assert.ErrorIs(t, err, ErrUnknownFlag)
}

func TestReadYAML_DuplicateID(t *testing.T) {
	_, err := ReadYAML(strings.NewReader("- id: a\n- id: a\n"))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestMatrix_RoundTrip(t *testing.T) {
	cfgs := Matrix(Default())
	require.Len(t, cfgs, 128)
	assert.Empty(t, cfgs[0].Enabled())
	assert.Len(t, cfgs[63].Enabled(), 6)
	assert.True(t, cfgs[64].TrailingExit)

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, cfgs))
	back, err := ReadCSV(&buf)
	require.NoError(t, err)
	assert.Equal(t, cfgs, back)
}

func TestReadTable_ExplicitZeroThresholdKept(t *testing.T) {
	cfgs, err := ReadCSV(strings.NewReader("id,volatility,volatility_min\nz,true,0\nd,true,\n"))
	require.NoError(t, err)
	require.Len(t, cfgs, 2)
	assert.Equal(t, 0.0, cfgs[0].VolatilityMin)
	assert.Equal(t, 1.0, cfgs[1].VolatilityMin, "empty cell takes the default")

	cfgs, err = ReadYAML(strings.NewReader("- id: z\n  volatility: true\n  volatility_min: 0\n- id: d\n  volatility: true\n"))
	require.NoError(t, err)
	require.Len(t, cfgs, 2)
	assert.Equal(t, 0.0, cfgs[0].VolatilityMin)
	assert.Equal(t, 1.0, cfgs[1].VolatilityMin)
	assert.Equal(t, 30.0, cfgs[0].Oversold)
}

func TestReadTable_Empty(t *testing.T) {
	for name, in := range map[string]string{"blank": "", "comment": "# nothing here\n", "empty list": "[]\n", "empty configs": "configs: []\n"} {
		_, err := ReadYAML(strings.NewReader(in))
		assert.ErrorIs(t, err, ErrEmptyTable, name)
	}
	_, err := ReadCSV(strings.NewReader("id,rsi\n"))
	assert.ErrorIs(t, err, ErrEmptyTable)
}

func TestLoadTable_EmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "configs.yaml")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	cfgs, err := LoadTable(path)
	assert.ErrorIs(t, err, ErrEmptyTable)
	assert.Empty(t, cfgs)
}
