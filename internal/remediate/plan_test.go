package remediate

import (
	"testing"

	"github.com/hazyhaar/stratforge/internal/validate"
)

func reportWithBias(bias string, perf validate.Performance) *validate.Report {
	return &validate.Report{
		Performance: perf,
		AlgorithmResults: map[string]map[string]any{
			"SELBIAS": {
				"bias_metrics": map[string]any{
					"detected_bias": "Selection bias=" + bias,
				},
			},
		},
	}
}

func hasFix(steps []FixCategory, fix FixCategory) bool {
	for _, s := range steps {
		if s == fix {
			return true
		}
	}
	return false
}

func TestBuildPlanSelectionBias(t *testing.T) {
	r := reportWithBias("0.1200", validate.Performance{TotalTrades: 15})
	plan := BuildPlan(r)

	if len(plan.DetectedBiases) != 1 || plan.DetectedBiases[0] != "selection_bias" {
		t.Errorf("biases = %v, want [selection_bias]", plan.DetectedBiases)
	}
	if len(plan.Steps) != 4 {
		t.Fatalf("steps = %v, want all four fixes", plan.Steps)
	}
	// Canonical order.
	want := []FixCategory{FixWalkForward, FixParameterReduction, FixMTCorrections, FixOOSValidation}
	for i, fix := range want {
		if plan.Steps[i] != fix {
			t.Errorf("steps[%d] = %s, want %s", i, plan.Steps[i], fix)
		}
	}
}

func TestBuildPlanCurveFitting(t *testing.T) {
	// High return, thin trades, bias below the selection threshold.
	r := reportWithBias("0.0400", validate.Performance{TotalReturn: 0.09, TotalTrades: 4})
	plan := BuildPlan(r)

	found := false
	for _, b := range plan.DetectedBiases {
		if b == "curve_fitting" {
			found = true
		}
	}
	if !found {
		t.Fatalf("biases = %v, want curve_fitting", plan.DetectedBiases)
	}
	if !hasFix(plan.Steps, FixParameterReduction) || !hasFix(plan.Steps, FixOOSValidation) {
		t.Errorf("steps = %v, want parameter reduction and oos", plan.Steps)
	}
	if hasFix(plan.Steps, FixWalkForward) {
		t.Errorf("steps = %v, walk-forward not expected", plan.Steps)
	}
}

func TestBuildPlanDataSnooping(t *testing.T) {
	// Many trades with a uniformly positive per-trade return.
	r := reportWithBias("0.0400", validate.Performance{TotalReturn: 0.05, TotalTrades: 25})
	plan := BuildPlan(r)

	found := false
	for _, b := range plan.DetectedBiases {
		if b == "data_snooping" {
			found = true
		}
	}
	if !found {
		t.Fatalf("biases = %v, want data_snooping", plan.DetectedBiases)
	}
	if !hasFix(plan.Steps, FixMTCorrections) {
		t.Errorf("steps = %v, want multiple testing corrections", plan.Steps)
	}
	if plan.RequiresManual == 0 {
		t.Error("data snooping should leave manual suggestions")
	}
}

func TestBuildPlanDefaultsToSelectionBias(t *testing.T) {
	// Clean report: low bias, modest return, decent trade count.
	r := reportWithBias("0.0300", validate.Performance{TotalReturn: 0.002, TotalTrades: 12})
	plan := BuildPlan(r)

	if len(plan.DetectedBiases) != 1 || plan.DetectedBiases[0] != "selection_bias" {
		t.Errorf("biases = %v, want default [selection_bias]", plan.DetectedBiases)
	}
	if len(plan.Steps) != 4 {
		t.Errorf("steps = %v, want all four fixes from default", plan.Steps)
	}
}

func TestFixCategoryLabels(t *testing.T) {
	for _, fix := range fixOrder {
		if !fix.Valid() {
			t.Errorf("%s not valid", fix)
		}
		if fix.Label() == string(fix) {
			t.Errorf("%s has no label", fix)
		}
	}
	if FixCategory("bogus").Valid() {
		t.Error("bogus category reported valid")
	}
}
