// CLAUDE:SUMMARY Strategy configuration — named parameter sets with per-family CLI argument ordering
package strategy

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Config is a serializable run configuration for one strategy variant.
// Parameters hold the tunable values; Metadata carries provenance breadcrumbs
// that never affect execution.
type Config struct {
	Name         string         `json:"name"`
	StrategyType string         `json:"strategy_type"`
	Parameters   map[string]any `json:"parameters"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	SourcePath   string         `json:"source,omitempty"`
}

// paramFlag pairs a parameter key with the runner flag it maps to. Order
// matters: the runner is positional about which flags it accepts per family.
type paramFlag struct {
	key  string
	flag string
}

var paramOrder = map[string][]paramFlag{
	"sma": {
		{"short", "--short"},
		{"long", "--long"},
		{"fee", "--fee"},
		{"symbol", "--symbol"},
	},
	"rsi": {
		{"period", "--period"},
		{"overbought", "--overbought"},
		{"oversold", "--oversold"},
		{"confirm", "--confirm"},
		{"fee", "--fee"},
		{"symbol", "--symbol"},
	},
	"macd": {
		{"fast", "--fast"},
		{"slow", "--slow"},
		{"signal", "--signal"},
		{"overbought", "--overbought"},
		{"oversold", "--oversold"},
		{"fee", "--fee"},
		{"symbol", "--symbol"},
	},
}

// Clone returns a deep copy with "_suffix" appended to the name and the given
// parameter updates applied. The receiver is left untouched.
func (c *Config) Clone(suffix string, updates map[string]any) *Config {
	clone := &Config{
		Name:         c.Name + "_" + suffix,
		StrategyType: c.StrategyType,
		Parameters:   make(map[string]any, len(c.Parameters)),
		Metadata:     make(map[string]any, len(c.Metadata)),
		SourcePath:   c.SourcePath,
	}
	for k, v := range c.Parameters {
		clone.Parameters[k] = v
	}
	for k, v := range c.Metadata {
		clone.Metadata[k] = v
	}
	for k, v := range updates {
		clone.Parameters[k] = v
	}
	return clone
}

// CLIArgs builds the runner invocation: family, data path, then the family's
// known flags in fixed order. Unknown or missing parameters are skipped.
func (c *Config) CLIArgs(dataPath string) []string {
	family := strings.ToLower(c.StrategyType)
	args := []string{family, dataPath}
	for _, pf := range paramOrder[family] {
		v, ok := c.Parameters[pf.key]
		if !ok || v == nil {
			continue
		}
		args = append(args, pf.flag, formatParam(v))
	}
	return args
}

// formatParam renders a parameter value for the command line. Floats drop
// trailing zeros so 0.0005 stays 0.0005 and 70.0 becomes 70.
func formatParam(v any) string {
	switch val := v.(type) {
	case float64:
		s := strconv.FormatFloat(val, 'f', 6, 64)
		s = strings.TrimRight(s, "0")
		s = strings.TrimRight(s, ".")
		return s
	case float32:
		return formatParam(float64(val))
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case string:
		return val
	default:
		return fmt.Sprintf("%v", val)
	}
}

// MarshalConfig renders the config as the canonical JSON snapshot stored in
// variant rows.
func MarshalConfig(c *Config) (string, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("marshaling config: %w", err)
	}
	return string(b), nil
}

// UnmarshalConfig parses a stored config snapshot.
func UnmarshalConfig(data string) (*Config, error) {
	c := &Config{}
	if err := json.Unmarshal([]byte(data), c); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if c.Parameters == nil {
		c.Parameters = map[string]any{}
	}
	return c, nil
}

// FloatParam reads a numeric parameter as float64. JSON round-trips turn all
// numbers into float64, so ints are accepted too.
func (c *Config) FloatParam(key string, fallback float64) float64 {
	switch v := c.Parameters[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return fallback
	}
}

// IntParam reads a numeric parameter as int.
func (c *Config) IntParam(key string, fallback int) int {
	switch v := c.Parameters[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return fallback
	}
}
