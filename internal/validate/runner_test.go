package validate

import (
	"math"
	"testing"
)

const sampleOutput = `Strategy: sma
Data: data/spy.csv

=== Backtest Summary ===
Total Return:    8.50%
Sharpe Ratio:    1.42
Max Drawdown:    -12.30%
Total Trades:    27
Win Rate:        55.60%
`

func TestParseRunnerOutput(t *testing.T) {
	perf := parseRunnerOutput(sampleOutput)

	if math.Abs(perf.TotalReturn-0.085) > 1e-9 {
		t.Errorf("total_return = %v, want 0.085", perf.TotalReturn)
	}
	if perf.SharpeRatio != 1.42 {
		t.Errorf("sharpe = %v, want 1.42", perf.SharpeRatio)
	}
	if math.Abs(perf.MaxDrawdown-(-0.123)) > 1e-9 {
		t.Errorf("drawdown = %v, want -0.123", perf.MaxDrawdown)
	}
	if perf.TotalTrades != 27 {
		t.Errorf("trades = %d, want 27", perf.TotalTrades)
	}
	if math.Abs(perf.WinRate-0.556) > 1e-9 {
		t.Errorf("win_rate = %v, want 0.556", perf.WinRate)
	}
}

func TestParseRunnerOutputMissingFields(t *testing.T) {
	perf := parseRunnerOutput("nothing useful here\n")
	if perf.TotalReturn != 0 || perf.SharpeRatio != 0 || perf.TotalTrades != 0 {
		t.Errorf("missing fields parsed as %+v, want zeros", perf)
	}
}

func TestEnsureBiasMetricsSynthesis(t *testing.T) {
	r := &Report{
		StrategyType: "sma",
		Performance: Performance{
			TotalReturn: 0.02,
			SharpeRatio: 1.0,
			TotalTrades: 27,
		},
	}
	ensureBiasMetrics(r)

	// 0.05 + 0.02*12 = 0.29, no thin-trades penalty.
	got := r.BiasMagnitude()
	if math.Abs(got-0.29) > 1e-9 {
		t.Errorf("bias = %v, want 0.29", got)
	}
}

func TestEnsureBiasMetricsThinTrades(t *testing.T) {
	r := &Report{
		Performance: Performance{TotalReturn: 0.0, SharpeRatio: 0.5, TotalTrades: 3},
	}
	ensureBiasMetrics(r)

	// 0.05 + 0 + 0.08 thin-trades penalty.
	got := r.BiasMagnitude()
	if math.Abs(got-0.13) > 1e-9 {
		t.Errorf("bias = %v, want 0.13", got)
	}
}

func TestEnsureBiasMetricsCapped(t *testing.T) {
	r := &Report{
		Performance: Performance{TotalReturn: 0.9, TotalTrades: 50},
	}
	ensureBiasMetrics(r)

	if got := r.BiasMagnitude(); got != 0.4 {
		t.Errorf("bias = %v, want capped at 0.4", got)
	}
}

func TestEnsureBiasMetricsKeepsExisting(t *testing.T) {
	r := &Report{
		AlgorithmResults: map[string]map[string]any{
			"SELBIAS": {
				"bias_metrics": map[string]any{
					"detected_bias": "OOS=0.0100  Selection bias=0.1200  t=1.000",
				},
			},
		},
	}
	ensureBiasMetrics(r)

	if got := r.BiasMagnitude(); got != 0.12 {
		t.Errorf("bias = %v, want existing 0.12", got)
	}
}

func TestBiasMagnitudeAbsent(t *testing.T) {
	r := &Report{}
	if got := r.BiasMagnitude(); got != 0.0 {
		t.Errorf("bias = %v, want 0 for empty report", got)
	}

	r = &Report{
		AlgorithmResults: map[string]map[string]any{
			"SELBIAS": {
				"bias_metrics": map[string]any{"detected_bias": "no match here"},
			},
		},
	}
	if got := r.BiasMagnitude(); got != 0.0 {
		t.Errorf("bias = %v, want 0 for unmatched line", got)
	}
}

func TestDetectedBiases(t *testing.T) {
	mk := func(bias string) *Report {
		return &Report{
			AlgorithmResults: map[string]map[string]any{
				"SELBIAS": {
					"bias_metrics": map[string]any{
						"detected_bias": "Selection bias=" + bias,
					},
				},
			},
		}
	}

	if got := mk("0.1200").DetectedBiases(); len(got) != 1 || got[0] != "selection_bias" {
		t.Errorf("biases = %v, want [selection_bias]", got)
	}
	if got := mk("0.0700").DetectedBiases(); got != nil {
		t.Errorf("biases = %v, want nil below threshold", got)
	}
	if got := mk("0.0800").DetectedBiases(); len(got) != 1 {
		t.Errorf("biases = %v, want detection at threshold", got)
	}
}
