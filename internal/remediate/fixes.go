// CLAUDE:SUMMARY Fix implementations — per-family parameter adjustments, correction metadata, OOS dataset splits
package remediate

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hazyhaar/stratforge/internal/strategy"
)

// Engine applies automatable fixes to strategy configs. Derived sources and
// out-of-sample datasets land under OutputsDir.
type Engine struct {
	OutputsDir string
}

// NewEngine creates an engine writing derived files under outputsDir.
func NewEngine(outputsDir string) (*Engine, error) {
	if err := os.MkdirAll(outputsDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating outputs dir: %w", err)
	}
	return &Engine{OutputsDir: outputsDir}, nil
}

type fixFunc func(*Engine, *strategy.Config, string) (*strategy.Config, bool, error)

var fixTable = map[FixCategory]fixFunc{
	FixWalkForward:        (*Engine).applyWalkForward,
	FixParameterReduction: (*Engine).applyParameterReduction,
	FixMTCorrections:      (*Engine).applyMTCorrections,
	FixOOSValidation:      (*Engine).applyOOSValidation,
}

// Apply runs the plan's fixes in canonical order and returns the resulting
// config plus the categories that actually applied. Fixes that do not
// recognize the strategy family are skipped, not errors.
func (e *Engine) Apply(cfg *strategy.Config, plan *Plan, dataPath string) (*strategy.Config, []FixCategory, error) {
	current := cfg
	var applied []FixCategory
	for _, step := range plan.Steps {
		fn, ok := fixTable[step]
		if !ok {
			return nil, nil, fmt.Errorf("unknown fix category %q", step)
		}
		next, ok, err := fn(e, current, dataPath)
		if err != nil {
			return nil, nil, fmt.Errorf("applying %s: %w", step, err)
		}
		if ok {
			current = next
			applied = append(applied, step)
		}
	}
	return current, applied, nil
}

// applyWalkForward nudges lookback windows toward shorter, more adaptive
// settings and records the walk-forward schedule in metadata.
func (e *Engine) applyWalkForward(cfg *strategy.Config, dataPath string) (*strategy.Config, bool, error) {
	var next *strategy.Config
	switch strings.ToLower(cfg.StrategyType) {
	case "sma":
		short := max(2, int(float64(cfg.IntParam("short", 10))*0.9))
		long := max(short+5, int(float64(cfg.IntParam("long", 40))*0.92))
		next = cfg.Clone("walk_forward", map[string]any{"short": short, "long": long})
		next.Metadata["walk_forward"] = map[string]any{"windows": 4, "step": "monthly"}
	case "rsi":
		period := min(40, max(5, int(float64(cfg.IntParam("period", 14))*1.1)))
		overbought := max(60.0, cfg.FloatParam("overbought", 70.0)-2.0)
		oversold := min(40.0, cfg.FloatParam("oversold", 30.0)+2.0)
		next = cfg.Clone("walk_forward", map[string]any{
			"period": period, "overbought": overbought, "oversold": oversold,
		})
		next.Metadata["walk_forward"] = map[string]any{"windows": 6, "step": "bi-monthly"}
	case "macd":
		fast := max(6, int(float64(cfg.IntParam("fast", 12))*0.95))
		slow := max(fast+5, int(float64(cfg.IntParam("slow", 26))*1.05))
		signal := max(3, int(float64(cfg.IntParam("signal", 9))*0.9))
		next = cfg.Clone("walk_forward", map[string]any{"fast": fast, "slow": slow, "signal": signal})
		next.Metadata["walk_forward"] = map[string]any{"windows": 5, "step": "quarterly"}
	default:
		return cfg, false, nil
	}
	if err := e.writeVariantSource(next, "// Walk-forward parameter adjustments\n"); err != nil {
		return nil, false, err
	}
	return next, true, nil
}

// applyParameterReduction clamps parameters into conservative bounds and
// records the bounds in metadata.
func (e *Engine) applyParameterReduction(cfg *strategy.Config, dataPath string) (*strategy.Config, bool, error) {
	var next *strategy.Config
	switch strings.ToLower(cfg.StrategyType) {
	case "sma":
		short := max(3, min(cfg.IntParam("short", 10), 15))
		long := max(short+5, min(cfg.IntParam("long", 40), 60))
		next = cfg.Clone("parameter_reduced", map[string]any{"short": short, "long": long})
		next.Metadata["parameter_bounds"] = map[string]any{
			"short": []int{3, 20}, "long": []int{25, 80},
		}
	case "rsi":
		overbought := min(75.0, cfg.FloatParam("overbought", 70.0))
		oversold := max(25.0, cfg.FloatParam("oversold", 30.0))
		next = cfg.Clone("parameter_reduced", map[string]any{
			"overbought": overbought, "oversold": oversold,
		})
		next.Metadata["parameter_bounds"] = map[string]any{
			"overbought": []int{65, 80}, "oversold": []int{20, 35},
		}
	case "macd":
		fast := max(8, min(cfg.IntParam("fast", 12), 15))
		slow := max(fast+5, min(cfg.IntParam("slow", 26), 40))
		next = cfg.Clone("parameter_reduced", map[string]any{"fast": fast, "slow": slow})
		next.Metadata["parameter_bounds"] = map[string]any{
			"fast": []int{8, 15}, "slow": []int{18, 45},
		}
	default:
		return cfg, false, nil
	}
	if err := e.writeVariantSource(next, "// Parameter bounds tightened for robustness\n"); err != nil {
		return nil, false, err
	}
	return next, true, nil
}

// applyMTCorrections records a Bonferroni correction requirement. Family
// agnostic: the adjustment is metadata consumed downstream.
func (e *Engine) applyMTCorrections(cfg *strategy.Config, dataPath string) (*strategy.Config, bool, error) {
	next := cfg.Clone("mt_correction", nil)
	next.Metadata["statistical_adjustments"] = map[string]any{
		"correction": "bonferroni",
		"alpha":      0.01,
	}
	if err := e.writeVariantSource(next, "// Multiple-testing correction guideline applied\n"); err != nil {
		return nil, false, err
	}
	return next, true, nil
}

// applyOOSValidation carves the holdout tail off the dataset and points the
// config's metadata at it.
func (e *Engine) applyOOSValidation(cfg *strategy.Config, dataPath string) (*strategy.Config, bool, error) {
	oosPath, err := e.createOOSSplit(dataPath, 0.7)
	if err != nil {
		return nil, false, err
	}
	next := cfg.Clone("oos_enforced", nil)
	next.Metadata["oos_validation"] = map[string]any{"dataset": oosPath}
	if err := e.writeVariantSource(next, fmt.Sprintf("// Out-of-sample dataset: %s\n", oosPath)); err != nil {
		return nil, false, err
	}
	return next, true, nil
}

// createOOSSplit writes the last (1-ratio) share of the data file to
// oos_<name> under the outputs dir. Files too small to split are returned
// unchanged.
func (e *Engine) createOOSSplit(dataPath string, ratio float64) (string, error) {
	data, err := os.ReadFile(dataPath)
	if err != nil {
		return "", fmt.Errorf("data file not found: %s", dataPath)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) < 10 {
		return dataPath, nil
	}
	cutoff := max(1, int(float64(len(lines))*ratio))
	oosPath := filepath.Join(e.OutputsDir, "oos_"+filepath.Base(dataPath))
	content := strings.Join(lines[cutoff:], "\n") + "\n"
	if err := os.WriteFile(oosPath, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("writing oos split: %w", err)
	}
	return oosPath, nil
}

// writeVariantSource copies the config's source file under the new variant
// name with a banner describing the fix. Configs with no source are fine;
// only the metadata changes then.
func (e *Engine) writeVariantSource(cfg *strategy.Config, banner string) error {
	if cfg.SourcePath == "" {
		return nil
	}
	body, err := os.ReadFile(cfg.SourcePath)
	if err != nil {
		// Source may have been cleaned up between iterations.
		return nil
	}
	ext := filepath.Ext(cfg.SourcePath)
	if ext == "" {
		ext = ".cpp"
	}
	target := filepath.Join(e.OutputsDir, cfg.Name+ext)
	if err := os.WriteFile(target, append([]byte(banner), body...), 0o644); err != nil {
		return fmt.Errorf("writing variant source: %w", err)
	}
	cfg.SourcePath = target
	return nil
}
