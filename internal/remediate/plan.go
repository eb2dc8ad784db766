// CLAUDE:SUMMARY Remediation planning — maps detected bias types to ordered fix categories
package remediate

import (
	"encoding/json"
	"math"

	"github.com/hazyhaar/stratforge/internal/validate"
)

// Plan is one iteration's remediation decision: which biases were detected
// and which automatable fixes address them. RequiresManual counts suggested
// measures that have no automated implementation.
type Plan struct {
	DetectedBiases []string      `json:"detected_biases"`
	Steps          []FixCategory `json:"steps"`
	RequiresManual int           `json:"requires_manual"`
}

// biasFixes maps each bias type to its automatable fixes plus the number of
// manual-only suggestions that accompany them.
var biasFixes = map[string]struct {
	fixes  []FixCategory
	manual int
}{
	"selection_bias": {
		fixes: []FixCategory{FixWalkForward, FixOOSValidation, FixMTCorrections, FixParameterReduction},
	},
	"data_snooping": {
		fixes:  []FixCategory{FixMTCorrections},
		manual: 3,
	},
	"curve_fitting": {
		fixes:  []FixCategory{FixParameterReduction, FixOOSValidation},
		manual: 2,
	},
	"chronological_violation": {
		manual: 4,
	},
}

// BuildPlan inspects a validation report and produces the fix plan for the
// next iteration. When no specific bias registers, selection bias is assumed
// so the pipeline always has a starting point.
func BuildPlan(report *validate.Report) *Plan {
	plan := &Plan{}
	seen := map[FixCategory]bool{}

	for _, bias := range detectBiases(report) {
		plan.DetectedBiases = append(plan.DetectedBiases, bias)
		entry := biasFixes[bias]
		for _, fix := range entry.fixes {
			seen[fix] = true
		}
		plan.RequiresManual += entry.manual
	}

	// Canonical order regardless of which bias contributed which fix.
	for _, fix := range fixOrder {
		if seen[fix] {
			plan.Steps = append(plan.Steps, fix)
		}
	}
	return plan
}

// detectBiases classifies the report into bias types.
func detectBiases(report *validate.Report) []string {
	var biases []string
	perf := report.Performance

	if report.BiasMagnitude() >= 0.08 {
		biases = append(biases, "selection_bias")
	}

	// Uniformly profitable per-trade returns over a long history smell of
	// result fishing. The per-trade estimate splits total return evenly.
	if perf.TotalTrades > 20 {
		perTrade := perf.TotalReturn / float64(perf.TotalTrades)
		if perTrade > 0.001 {
			biases = append(biases, "data_snooping")
		}
	}

	// Outsized return on a thin trade count is the classic overfit shape.
	if math.Abs(perf.TotalReturn) > 0.05 && perf.TotalTrades < 10 {
		biases = append(biases, "curve_fitting")
	}

	if len(biases) == 0 {
		biases = append(biases, "selection_bias")
	}
	return biases
}

// MarshalPlan renders the plan as the JSON stored on run rows.
func MarshalPlan(p *Plan) (string, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
