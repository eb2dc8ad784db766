// CLAUDE:SUMMARY Validation reports — performance metrics plus bias detector output, with bias magnitude extraction
package validate

import (
	"context"
	"regexp"
	"strconv"

	"github.com/hazyhaar/stratforge/internal/strategy"
)

// Performance holds the headline metrics parsed from a validation run.
// Percentages are normalized to fractions (8.5% becomes 0.085).
type Performance struct {
	TotalReturn float64 `json:"total_return"`
	SharpeRatio float64 `json:"sharpe_ratio"`
	MaxDrawdown float64 `json:"max_drawdown"`
	TotalTrades int     `json:"total_trades"`
	WinRate     float64 `json:"win_rate"`
}

// Report is the full output of validating one config against one dataset.
// AlgorithmResults maps detector names to their raw findings; the selection
// bias detector reports under "SELBIAS".
type Report struct {
	StrategyType     string                    `json:"strategy_type"`
	Performance      Performance               `json:"performance_metrics"`
	AlgorithmResults map[string]map[string]any `json:"algorithm_results,omitempty"`
	RawOutput        string                    `json:"raw_output,omitempty"`
}

// Validator runs a strategy configuration against a dataset and reports
// performance and detected biases.
type Validator interface {
	Validate(ctx context.Context, cfg *strategy.Config, dataPath string) (*Report, error)
}

var biasPattern = regexp.MustCompile(`Selection bias=([\d.]+)`)

// BiasMagnitude extracts the detected selection bias from the report. A
// report with no SELBIAS findings, or findings that do not match the detector
// line format, reads as zero bias.
func (r *Report) BiasMagnitude() float64 {
	selbias, ok := r.AlgorithmResults["SELBIAS"]
	if !ok {
		return 0.0
	}
	metrics, ok := selbias["bias_metrics"].(map[string]any)
	if !ok {
		return 0.0
	}
	detected, ok := metrics["detected_bias"].(string)
	if !ok {
		return 0.0
	}
	m := biasPattern.FindStringSubmatch(detected)
	if m == nil {
		return 0.0
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0.0
	}
	return v
}

// DetectedBiases lists the bias categories the report exhibits. Selection
// bias registers at magnitude 0.08 and above.
func (r *Report) DetectedBiases() []string {
	if r.BiasMagnitude() >= 0.08 {
		return []string{"selection_bias"}
	}
	return nil
}
