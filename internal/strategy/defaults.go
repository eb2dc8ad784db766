package strategy

// DefaultParams returns the stock parameter set for a strategy family, or nil
// for an unknown family. Callers own the returned map.
func DefaultParams(family string) map[string]any {
	switch family {
	case "sma":
		return map[string]any{
			"short":  10,
			"long":   40,
			"fee":    0.0005,
			"symbol": "DEMO",
		}
	case "rsi":
		return map[string]any{
			"period":     14,
			"overbought": 70.0,
			"oversold":   30.0,
			"confirm":    2,
			"fee":        0.0005,
			"symbol":     "DEMO",
		}
	case "macd":
		return map[string]any{
			"fast":       12,
			"slow":       26,
			"signal":     9,
			"overbought": 1.0,
			"oversold":   -1.0,
			"fee":        0.0005,
			"symbol":     "DEMO",
		}
	default:
		return nil
	}
}
