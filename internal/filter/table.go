package filter

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrUnknownFlag is returned when a configuration table names a flag or parameter
// that does not exist. The whole table is rejected.
var ErrUnknownFlag = errors.New("unknown filter flag")

// ErrEmptyTable is returned for a table without configurations.
var ErrEmptyTable = errors.New("config table has no configurations")

type setter func(c *Config, raw string) error

func boolField(f func(c *Config) *bool) setter {
	return func(c *Config, raw string) error {
		v, err := strconv.ParseBool(strings.TrimSpace(raw))
		if err != nil {
			return err
		}
		*f(c) = v
		return nil
	}
}

func floatField(f func(c *Config) *float64) setter {
	return func(c *Config, raw string) error {
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return err
		}
		*f(c) = v
		return nil
	}
}

func intField(f func(c *Config) *int) setter {
	return func(c *Config, raw string) error {
		v, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return err
		}
		*f(c) = v
		return nil
	}
}

func stringField(f func(c *Config) *string) setter {
	return func(c *Config, raw string) error {
		*f(c) = strings.TrimSpace(raw)
		return nil
	}
}

// lookaheadField accepts "1;2", "1 2" or "1|2".
func lookaheadField(c *Config, raw string) error {
	fields := strings.FieldsFunc(raw, func(r rune) bool { return r == ';' || r == ' ' || r == '|' })
	out := make([]int, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.Atoi(f)
		if err != nil {
			return err
		}
		out = append(out, v)
	}
	c.Lookahead = out
	return nil
}

// columns maps lower-cased table column names to setters. Legacy USE_* matrix
// names are accepted next to the canonical names.
var columns = map[string]setter{
	"id":        stringField(func(c *Config) *string { return &c.ID }),
	"config_id": stringField(func(c *Config) *string { return &c.ID }),

	"confirmation":            boolField(func(c *Config) *bool { return &c.Confirmation }),
	"use_confirmation_candle": boolField(func(c *Config) *bool { return &c.Confirmation }),
	"rsi":                     boolField(func(c *Config) *bool { return &c.RSI }),
	"use_rsi_filter":          boolField(func(c *Config) *bool { return &c.RSI }),
	"macd_momentum":           boolField(func(c *Config) *bool { return &c.MACDMomentum }),
	"macd-momentum":           boolField(func(c *Config) *bool { return &c.MACDMomentum }),
	"use_macd_hist_filter":    boolField(func(c *Config) *bool { return &c.MACDMomentum }),
	"force_index":             boolField(func(c *Config) *bool { return &c.ForceIndex }),
	"force-index":             boolField(func(c *Config) *bool { return &c.ForceIndex }),
	"use_force_index_filter":  boolField(func(c *Config) *bool { return &c.ForceIndex }),
	"volatility":              boolField(func(c *Config) *bool { return &c.Volatility }),
	"use_atr_filter":          boolField(func(c *Config) *bool { return &c.Volatility }),
	"divergence":              boolField(func(c *Config) *bool { return &c.Divergence }),
	"use_macd_divergence":     boolField(func(c *Config) *bool { return &c.Divergence }),
	"trailing_exit":           boolField(func(c *Config) *bool { return &c.TrailingExit }),
	"trailing-exit":           boolField(func(c *Config) *bool { return &c.TrailingExit }),
	"use_trailing_exit":       boolField(func(c *Config) *bool { return &c.TrailingExit }),

	"oversold":            floatField(func(c *Config) *float64 { return &c.Oversold }),
	"rsi_threshold":       floatField(func(c *Config) *float64 { return &c.Oversold }),
	"volatility_min":      floatField(func(c *Config) *float64 { return &c.VolatilityMin }),
	"atr_threshold":       floatField(func(c *Config) *float64 { return &c.VolatilityMin }),
	"divergence_lookback": intField(func(c *Config) *int { return &c.DivergenceLookback }),
	"lookback":            intField(func(c *Config) *int { return &c.Lookback }),
	"multiplier":          floatField(func(c *Config) *float64 { return &c.Multiplier }),
	"hold_days":           intField(func(c *Config) *int { return &c.HoldDays }),
	"lookahead":           lookaheadField,

	"entry":          stringField(func(c *Config) *string { return &c.Entry }),
	"end_of_history": stringField(func(c *Config) *string { return &c.EndOfHistory }),
	"center_exit":    stringField(func(c *Config) *string { return &c.CenterExit }),
}

// LoadTable loads a configuration table from a .csv, .yaml or .yml file.
func LoadTable(path string) ([]Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfgs []Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		cfgs, err = ReadYAML(f)
	case ".csv":
		cfgs, err = ReadCSV(f)
	default:
		return nil, fmt.Errorf("config table %s: unsupported extension", path)
	}
	if err != nil {
		return nil, fmt.Errorf("config table %s: %w", path, err)
	}
	return cfgs, nil
}

// ReadCSV parses one configuration per row. Empty cells keep the default value.
func ReadCSV(r io.Reader) ([]Config, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read config header: %w", err)
	}
	setters := make([]setter, len(header))
	for i, h := range header {
		s, ok := columns[strings.ToLower(strings.TrimSpace(h))]
		if !ok {
			return nil, fmt.Errorf("column %q: %w", h, ErrUnknownFlag)
		}
		setters[i] = s
	}

	var out []Config
	row := 1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		row++
		if err != nil {
			return nil, fmt.Errorf("config row %d: %w", row, err)
		}

		c, err := blank()
		if err != nil {
			return nil, err
		}
		for i, raw := range rec {
			if i >= len(setters) || strings.TrimSpace(raw) == "" {
				continue
			}
			if err := setters[i](&c, raw); err != nil {
				return nil, fmt.Errorf("config row %d column %q: %w", row, header[i], err)
			}
		}
		if c.ID == "" {
			c.ID = fmt.Sprintf("config_%d", row-1)
		}
		if err := finish(&c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if len(out) == 0 {
		return nil, ErrEmptyTable
	}
	return out, checkUnique(out)
}

// yamlKeys is the set of keys Config accepts in YAML.
var yamlKeys = func() map[string]bool {
	keys := make(map[string]bool)
	t := reflect.TypeOf(Config{})
	for i := 0; i < t.NumField(); i++ {
		if tag := strings.Split(t.Field(i).Tag.Get("yaml"), ",")[0]; tag != "" {
			keys[tag] = true
		}
	}
	return keys
}()

// ReadYAML parses a sequence of configurations, either at the document root or
// under a top-level "configs" key.
func ReadYAML(r io.Reader) ([]Config, error) {
	var doc yaml.Node
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmptyTable
		}
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}
	if len(doc.Content) == 0 {
		return nil, ErrEmptyTable
	}
	seq := doc.Content[0]
	if seq.Kind == yaml.MappingNode {
		var found *yaml.Node
		for i := 0; i+1 < len(seq.Content); i += 2 {
			if seq.Content[i].Value == "configs" {
				found = seq.Content[i+1]
			}
		}
		if found == nil {
			return nil, fmt.Errorf("config yaml: expected a sequence or a configs key")
		}
		seq = found
	}
	if seq.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("config yaml: expected a sequence of configurations")
	}
	if len(seq.Content) == 0 {
		return nil, ErrEmptyTable
	}

	out := make([]Config, 0, len(seq.Content))
	for n, item := range seq.Content {
		if item.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("config yaml entry %d: expected a mapping", n)
		}
		for i := 0; i < len(item.Content); i += 2 {
			key := item.Content[i].Value
			if !yamlKeys[key] {
				return nil, fmt.Errorf("config yaml entry %d key %q: %w", n, key, ErrUnknownFlag)
			}
		}
		c, err := blank()
		if err != nil {
			return nil, err
		}
		if err := item.Decode(&c); err != nil {
			return nil, fmt.Errorf("config yaml entry %d: %w", n, err)
		}
		if c.ID == "" {
			c.ID = fmt.Sprintf("config_%d", n+1)
		}
		if err := finish(&c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, checkUnique(out)
}

// blank holds only the tag defaults. Table cells are applied over it, so an
// explicit zero in a cell survives.
func blank() (Config, error) {
	var c Config
	if err := c.ApplyDefaults(); err != nil {
		return c, fmt.Errorf("defaults: %w", err)
	}
	return c, nil
}

func finish(c *Config) error {
	return c.Validate()
}

func checkUnique(cfgs []Config) error {
	seen := make(map[string]bool, len(cfgs))
	for _, c := range cfgs {
		if seen[c.ID] {
			return fmt.Errorf("duplicate config id %q: %w", c.ID, ErrInvalidConfig)
		}
		seen[c.ID] = true
	}
	return nil
}

// Matrix enumerates every on/off combination of the six gates and the trailing
// exit (128 configurations) on top of base.
func Matrix(base Config) []Config {
	const flags = 7
	out := make([]Config, 0, 1<<flags)
	for mask := 0; mask < 1<<flags; mask++ {
		c := base.Clone()
		c.Confirmation = mask&(1<<0) != 0
		c.RSI = mask&(1<<1) != 0
		c.MACDMomentum = mask&(1<<2) != 0
		c.ForceIndex = mask&(1<<3) != 0
		c.Volatility = mask&(1<<4) != 0
		c.Divergence = mask&(1<<5) != 0
		c.TrailingExit = mask&(1<<6) != 0
		c.ID = fmt.Sprintf("C%03d", mask)
		out = append(out, c)
	}
	return out
}

// WriteCSV writes cfgs as a canonical configuration table.
func WriteCSV(w io.Writer, cfgs []Config) error {
	cw := csv.NewWriter(w)
	header := []string{"id", "confirmation", "rsi", "macd_momentum", "force_index", "volatility", "divergence",
		"trailing_exit", "oversold", "volatility_min", "divergence_lookback", "lookback", "multiplier", "hold_days", "lookahead",
		"entry", "end_of_history", "center_exit"}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, c := range cfgs {
		look := make([]string, len(c.Lookahead))
		for i, l := range c.Lookahead {
			look[i] = strconv.Itoa(l)
		}
		rec := []string{
			c.ID,
			strconv.FormatBool(c.Confirmation), strconv.FormatBool(c.RSI), strconv.FormatBool(c.MACDMomentum),
			strconv.FormatBool(c.ForceIndex), strconv.FormatBool(c.Volatility), strconv.FormatBool(c.Divergence),
			strconv.FormatBool(c.TrailingExit),
			strconv.FormatFloat(c.Oversold, 'f', -1, 64), strconv.FormatFloat(c.VolatilityMin, 'f', -1, 64),
			strconv.Itoa(c.DivergenceLookback),
			strconv.Itoa(c.Lookback), strconv.FormatFloat(c.Multiplier, 'f', -1, 64), strconv.Itoa(c.HoldDays),
			strings.Join(look, ";"),
			c.Entry, c.EndOfHistory, c.CenterExit,
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
