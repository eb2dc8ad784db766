// CLAUDE:SUMMARY Remediation sessions — iterate validate/plan/fix cycles, persisting lineage, runs, and metrics
package remediate

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/hazyhaar/stratforge/internal/db"
	"github.com/hazyhaar/stratforge/internal/strategy"
	"github.com/hazyhaar/stratforge/internal/validate"
)

// State classifies how a session ended.
type State string

const (
	// StateConverged means the loop stopped because no bias remained to fix.
	StateConverged State = "converged"
	// StateExhausted means the iteration budget ran out with bias remaining.
	StateExhausted State = "exhausted"
	// StateFailed means a validation run errored before the loop could finish.
	StateFailed State = "failed"
)

// ValidationError wraps a validator failure with the iteration it occurred in.
type ValidationError struct {
	Iteration int
	Err       error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed at iteration %d: %v", e.Iteration, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Iteration is one completed cycle of the session, baseline included.
type Iteration struct {
	Index        int
	VariantID    int64
	RunID        int64
	Bias         float64
	AppliedFixes []FixCategory
	Report       *validate.Report
	Improvement  *Improvement
}

// Improvement compares an iteration's metrics against the previous one.
// Positive deltas mean the fix cycle helped. Nil on the baseline.
type Improvement struct {
	SharpeDelta  float64
	BiasDelta    float64
	StableTrades bool
}

func improvementFrom(prev Iteration, report *validate.Report, bias float64) *Improvement {
	d := report.Performance.TotalTrades - prev.Report.Performance.TotalTrades
	return &Improvement{
		SharpeDelta:  report.Performance.SharpeRatio - prev.Report.Performance.SharpeRatio,
		BiasDelta:    prev.Bias - bias,
		StableTrades: max(d, -d) <= 3,
	}
}

// Result is the outcome of a full remediation session.
type Result struct {
	SessionID   string
	StrategyID  int64
	VariantID   int64
	State       State
	Success     bool
	InitialBias float64
	FinalBias   float64
	Iterations  []Iteration
	FinalConfig *strategy.Config
	Summary     string
}

// Runner drives remediation sessions against one store and validator.
type Runner struct {
	Store         *db.DB
	Validator     validate.Validator
	Engine        *Engine
	Logger        *slog.Logger
	MaxIterations int
}

// NewRunner wires a session runner. maxIterations <= 0 defaults to 3.
func NewRunner(store *db.DB, validator validate.Validator, engine *Engine, logger *slog.Logger, maxIterations int) *Runner {
	if maxIterations <= 0 {
		maxIterations = 3
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		Store:         store,
		Validator:     validator,
		Engine:        engine,
		Logger:        logger,
		MaxIterations: maxIterations,
	}
}

// Run executes the remediation loop for one strategy config: validate the
// baseline, then repeatedly plan fixes, derive a child variant, and
// revalidate until the bias clears or the iteration budget runs out. Every
// iteration is durably recorded before the next begins.
func (r *Runner) Run(ctx context.Context, cfg *strategy.Config, dataPath string) (*Result, error) {
	sessionID := db.NewID()
	log := r.Logger.With("session", sessionID, "strategy", cfg.Name)
	log.Info("starting remediation session", "data", dataPath)

	family := strings.ToLower(cfg.StrategyType)
	var template *string
	if cfg.SourcePath != "" {
		template = &cfg.SourcePath
	}
	strategyID, err := r.Store.UpsertStrategy(family, cfg.Name, template, nil)
	if err != nil {
		return nil, fmt.Errorf("registering strategy: %w", err)
	}

	result := &Result{SessionID: sessionID, StrategyID: strategyID}

	variantID, err := r.persistVariant(strategyID, nil, "baseline", cfg, "initial")
	if err != nil {
		return nil, err
	}
	result.VariantID = variantID

	report, runID, err := r.validateIteration(ctx, cfg, dataPath, variantID, 0, nil, nil)
	if err != nil {
		result.State = StateFailed
		return result, err
	}
	bias := report.BiasMagnitude()
	result.InitialBias = bias
	result.Iterations = append(result.Iterations, Iteration{
		Index: 0, VariantID: variantID, RunID: runID, Bias: bias, Report: report,
	})
	log.Info("baseline validated", "bias", bias, "sharpe", report.Performance.SharpeRatio)

	current := cfg
	currentReport := report
	result.State = StateConverged
	for i := 1; i <= r.MaxIterations; i++ {
		plan := BuildPlan(currentReport)
		if len(plan.Steps) == 0 {
			break
		}

		next, applied, err := r.Engine.Apply(current, plan, dataPath)
		if err != nil {
			return result, fmt.Errorf("iteration %d: %w", i, err)
		}

		labels := make([]string, len(applied))
		for j, fix := range applied {
			labels[j] = fix.Label()
		}
		provenance := "automated"
		if len(labels) > 0 {
			provenance = strings.Join(labels, ", ")
		}

		parentID := variantID
		variantID, err = r.persistVariant(strategyID, &parentID, fmt.Sprintf("iter%d", i), next, provenance)
		if err != nil {
			return result, err
		}
		result.VariantID = variantID

		planJSON, err := MarshalPlan(plan)
		if err != nil {
			return result, fmt.Errorf("iteration %d: %w", i, err)
		}
		currentReport, runID, err = r.validateIteration(ctx, next, dataPath, variantID, i, &planJSON, applied)
		if err != nil {
			result.State = StateFailed
			return result, err
		}

		bias = currentReport.BiasMagnitude()
		prev := result.Iterations[len(result.Iterations)-1]
		result.Iterations = append(result.Iterations, Iteration{
			Index: i, VariantID: variantID, RunID: runID,
			Bias: bias, AppliedFixes: applied, Report: currentReport,
			Improvement: improvementFrom(prev, currentReport, bias),
		})
		current = next
		log.Info("iteration complete", "iteration", i, "bias", bias, "fixes", len(applied))

		if bias < 0.05 || len(currentReport.DetectedBiases()) == 0 {
			break
		}
		if i == r.MaxIterations {
			result.State = StateExhausted
		}
	}

	result.FinalBias = bias
	result.FinalConfig = current
	result.Success = result.FinalBias < 0.05 || result.FinalBias < result.InitialBias*0.5
	last := result.Iterations[len(result.Iterations)-1]
	if err := r.persistFinalArtifact(current, result.VariantID, last.RunID); err != nil {
		log.Warn("persisting final config", "error", err)
	}
	result.Summary = r.summarize(result)
	log.Info("session finished", "state", result.State, "success", result.Success,
		"initial_bias", result.InitialBias, "final_bias", result.FinalBias)
	return result, nil
}

// validateIteration opens a run, validates the config, and closes the run
// with its metrics, actions, and config artifact. The run row reaches a
// terminal state on every path.
func (r *Runner) validateIteration(
	ctx context.Context,
	cfg *strategy.Config,
	dataPath string,
	variantID int64,
	iteration int,
	planJSON *string,
	applied []FixCategory,
) (*validate.Report, int64, error) {
	runID, err := r.Store.OpenRun(variantID, dataPath, iteration, planJSON)
	if err != nil {
		return nil, 0, fmt.Errorf("opening run: %w", err)
	}

	report, err := r.Validator.Validate(ctx, cfg, dataPath)
	if err != nil {
		msg := err.Error()
		if closeErr := r.Store.CloseRun(runID, "failed", &msg); closeErr != nil {
			r.Logger.Error("closing failed run", "run", runID, "error", closeErr)
		}
		return nil, runID, &ValidationError{Iteration: iteration, Err: err}
	}

	if err := r.Store.CloseRun(runID, "success", nil); err != nil {
		return nil, runID, fmt.Errorf("closing run: %w", err)
	}

	bias := report.BiasMagnitude()
	perf := report.Performance
	if _, err := r.Store.RecordMetrics(runID, db.RecordMetricsInput{
		SharpeRatio:   perf.SharpeRatio,
		TotalReturn:   perf.TotalReturn,
		MaxDrawdown:   perf.MaxDrawdown,
		WinRate:       perf.WinRate,
		TotalTrades:   perf.TotalTrades,
		BiasSelection: bias,
		Score:         Score(perf, bias),
	}); err != nil {
		return nil, runID, fmt.Errorf("recording metrics: %w", err)
	}

	for _, fix := range applied {
		if _, err := r.Store.RecordRemediationAction(runID, string(fix), fix.Label(), nil); err != nil {
			return nil, runID, fmt.Errorf("recording action: %w", err)
		}
	}

	if err := r.persistConfigArtifact(cfg, variantID, runID, iteration); err != nil {
		r.Logger.Warn("persisting config artifact", "run", runID, "error", err)
	}

	return report, runID, nil
}

// persistVariant stores the config snapshot as a lineage row.
func (r *Runner) persistVariant(strategyID int64, parentID *int64, tag string, cfg *strategy.Config, provenance string) (int64, error) {
	configJSON, err := strategy.MarshalConfig(cfg)
	if err != nil {
		return 0, err
	}
	var codePath *string
	if cfg.SourcePath != "" {
		codePath = &cfg.SourcePath
	}
	id, err := r.Store.CreateVariant(db.CreateVariantInput{
		StrategyID:      strategyID,
		ParentVariantID: parentID,
		VersionTag:      tag,
		ConfigJSON:      configJSON,
		CodePath:        codePath,
		Provenance:      &provenance,
	})
	if err != nil {
		return 0, fmt.Errorf("persisting variant %s: %w", tag, err)
	}
	return id, nil
}

// persistConfigArtifact writes the config JSON next to the other outputs and
// records it with its checksum.
func (r *Runner) persistConfigArtifact(cfg *strategy.Config, variantID, runID int64, iteration int) error {
	configJSON, err := strategy.MarshalConfig(cfg)
	if err != nil {
		return err
	}
	path := filepath.Join(r.Engine.OutputsDir, fmt.Sprintf("%s_iter%d_%s.json", cfg.Name, iteration, db.NewID()))
	if err := os.WriteFile(path, []byte(configJSON), 0o644); err != nil {
		return err
	}
	notes := fmt.Sprintf("iteration %d", iteration)
	_, err = r.Store.RecordArtifact(&runID, &variantID, "config", path, &notes)
	return err
}

// persistFinalArtifact snapshots the remediated config at session end.
func (r *Runner) persistFinalArtifact(cfg *strategy.Config, variantID, runID int64) error {
	configJSON, err := strategy.MarshalConfig(cfg)
	if err != nil {
		return err
	}
	path := filepath.Join(r.Engine.OutputsDir, fmt.Sprintf("%s_final_%s.json", cfg.Name, db.NewID()))
	if err := os.WriteFile(path, []byte(configJSON), 0o644); err != nil {
		return err
	}
	notes := "final remediated configuration"
	_, err = r.Store.RecordArtifact(&runID, &variantID, "final_config", path, &notes)
	return err
}

// Score collapses a metrics snapshot into the single leaderboard number:
// risk-adjusted return minus drawdown and bias penalties.
func Score(perf validate.Performance, bias float64) float64 {
	return perf.SharpeRatio - math.Abs(perf.MaxDrawdown) - bias
}

func (r *Runner) summarize(res *Result) string {
	iters := max(0, len(res.Iterations)-1)
	verdict := "REQUIRES MANUAL INTERVENTION"
	if res.Success {
		verdict = "SUCCESS"
	}
	return fmt.Sprintf("remediation %s after %d iteration(s): bias %.4f -> %.4f (%s)",
		res.State, iters, res.InitialBias, res.FinalBias, verdict)
}
