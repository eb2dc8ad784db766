// CLAUDE:SUMMARY Automation worker — expands batch jobs into remediation sessions and promotes winners
package automation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"

	"github.com/hazyhaar/stratforge/internal/db"
	"github.com/hazyhaar/stratforge/internal/remediate"
	"github.com/hazyhaar/stratforge/internal/strategy"
)

// RunOutcome is the per-config summary a batch execution reports back.
type RunOutcome struct {
	JobRunID  int64  `json:"job_run_id"`
	VariantID *int64 `json:"variant_id,omitempty"`
	RunID     *int64 `json:"run_id,omitempty"`
	Success   bool   `json:"success"`
}

// Worker executes claimed jobs. Each batch spec is expanded by the factory
// and every generated config goes through a full remediation session; the
// outcomes are recorded as job runs regardless of success.
type Worker struct {
	Store   *db.DB
	Factory *strategy.Factory
	Runner  *remediate.Runner
	Logger  *slog.Logger
}

// NewWorker wires a worker around a store, factory, and session runner.
func NewWorker(store *db.DB, factory *strategy.Factory, runner *remediate.Runner, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{Store: store, Factory: factory, Runner: runner, Logger: logger}
}

// Execute runs one claimed job to completion and returns the per-config
// outcomes. A single failing session fails the whole job so the controller
// can decide on a retry.
func (w *Worker) Execute(ctx context.Context, job *db.Job) ([]RunOutcome, error) {
	batch, err := ParseJobSpec(job.JobType, job.Specification)
	if err != nil {
		return nil, err
	}
	return w.executeBatch(ctx, job, batch)
}

func (w *Worker) executeBatch(ctx context.Context, job *db.Job, batch *BatchJob) ([]RunOutcome, error) {
	log := w.Logger.With("job", job.JobID)
	var outcomes []RunOutcome

	// The job's iteration budget overrides the runner's configured default.
	runner := *w.Runner
	runner.MaxIterations = batch.MaxIterations

	for _, spec := range batch.Specs {
		configs, err := w.Factory.Generate(spec)
		if err != nil {
			return outcomes, fmt.Errorf("generating %s: %w", spec.BaseName, err)
		}
		log.Info("spec expanded", "base", spec.BaseName, "variants", len(configs))

		experimentID, err := w.startExperiment(spec, batch.Policy)
		if err != nil {
			return outcomes, err
		}

		expStatus := "completed"
		for _, cfg := range configs {
			outcome, err := w.runSession(ctx, &runner, job, cfg, batch.DataPath)
			if err != nil {
				expStatus = "failed"
				if expErr := w.Store.CompleteExperiment(experimentID, expStatus, nil); expErr != nil {
					log.Error("completing experiment", "experiment", experimentID, "error", expErr)
				}
				return outcomes, err
			}
			outcomes = append(outcomes, outcome)
		}
		if err := w.Store.CompleteExperiment(experimentID, expStatus, nil); err != nil {
			return outcomes, fmt.Errorf("completing experiment %d: %w", experimentID, err)
		}
	}
	return outcomes, nil
}

// runSession remediates one generated config and records the job-run row.
// Successful sessions also land on the leaderboard as candidates.
func (w *Worker) runSession(ctx context.Context, runner *remediate.Runner, job *db.Job, cfg *strategy.Config, dataPath string) (RunOutcome, error) {
	result, err := runner.Run(ctx, cfg, dataPath)
	if err != nil {
		return RunOutcome{}, fmt.Errorf("remediating %s: %w", cfg.Name, err)
	}

	var runID *int64
	if n := len(result.Iterations); n > 0 {
		id := result.Iterations[n-1].RunID
		runID = &id
	}
	variantID := result.VariantID

	status := "needs_review"
	if result.Success {
		status = "completed"
	}
	details, err := json.Marshal(map[string]any{
		"summary": result.Summary,
		"success": result.Success,
		"state":   result.State,
	})
	if err != nil {
		return RunOutcome{}, err
	}
	detailsJSON := string(details)

	jobRunID, err := w.Store.RecordJobRun(job.JobID, &variantID, runID, status, &detailsJSON)
	if err != nil {
		return RunOutcome{}, fmt.Errorf("recording job run: %w", err)
	}

	if result.Success && runID != nil {
		if err := w.promote(variantID, *runID); err != nil {
			return RunOutcome{}, err
		}
	}

	return RunOutcome{
		JobRunID:  jobRunID,
		VariantID: &variantID,
		RunID:     runID,
		Success:   result.Success,
	}, nil
}

// promote puts a successful variant on the leaderboard. The stored score is
// preferred; when metrics predate score recording, the fallback recomputes it
// from the components.
func (w *Worker) promote(variantID, runID int64) error {
	score := 0.0
	metrics, err := w.Store.LatestRunMetrics(runID)
	if err != nil {
		return fmt.Errorf("reading metrics for promotion: %w", err)
	}
	if metrics != nil {
		score = metrics.Score
		if score == 0 {
			score = metrics.SharpeRatio - math.Abs(metrics.MaxDrawdown) - metrics.BiasSelection
		}
	}

	rank, err := w.Store.NextLeaderboardRank()
	if err != nil {
		return fmt.Errorf("allocating rank: %w", err)
	}
	if _, err := w.Store.UpsertLeaderboardEntry(variantID, runID, score, rank, "candidate"); err != nil {
		return fmt.Errorf("promoting variant %d: %w", variantID, err)
	}
	return nil
}

func (w *Worker) startExperiment(spec *strategy.Spec, policy string) (int64, error) {
	var template *string
	if spec.TemplatePath != "" {
		template = &spec.TemplatePath
	}
	strategyID, err := w.Store.UpsertStrategy(spec.StrategyType, spec.BaseName, template, nil)
	if err != nil {
		return 0, fmt.Errorf("registering batch strategy: %w", err)
	}

	params, err := json.Marshal(map[string]any{
		"base_parameters": spec.BaseParameters,
		"parameter_grid":  spec.ParameterGrid,
		"limit":           spec.Limit,
	})
	if err != nil {
		return 0, err
	}
	paramsJSON := string(params)

	experimentID, err := w.Store.StartExperiment(strategyID, policy, &paramsJSON, nil)
	if err != nil {
		return 0, fmt.Errorf("starting experiment: %w", err)
	}
	return experimentID, nil
}
