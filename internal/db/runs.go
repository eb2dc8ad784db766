// CLAUDE:SUMMARY Run DB operations — two-phase open/close runs, append-only metrics and remediation actions
package db

import (
	"database/sql"
	"fmt"
	"time"
)

// Run is one validation attempt of a variant at one iteration index.
// Opened pending, closed exactly once as success or failed.
type Run struct {
	RunID           int64      `json:"run_id"`
	VariantID       int64      `json:"variant_id"`
	DataSource      string     `json:"data_source"`
	Iteration       int        `json:"iteration"`
	RemediationPlan *string    `json:"remediation_plan,omitempty"`
	StartTime       time.Time  `json:"start_time"`
	EndTime         *time.Time `json:"end_time,omitempty"`
	Status          string     `json:"status"`
	ErrorMessage    *string    `json:"error_message,omitempty"`
}

// RunMetrics is an append-only performance/bias snapshot for a run.
type RunMetrics struct {
	RunMetricID   int64     `json:"run_metric_id"`
	RunID         int64     `json:"run_id"`
	SharpeRatio   float64   `json:"sharpe_ratio"`
	TotalReturn   float64   `json:"total_return"`
	MaxDrawdown   float64   `json:"max_drawdown"`
	WinRate       float64   `json:"win_rate"`
	TotalTrades   int       `json:"total_trades"`
	BiasSelection float64   `json:"bias_selection"`
	BiasOther     *string   `json:"bias_other,omitempty"`
	Score         float64   `json:"score"`
	RecordedAt    time.Time `json:"recorded_at"`
}

// OpenRun inserts a pending run and returns its id.
func (db *DB) OpenRun(variantID int64, dataSource string, iteration int, remediationPlan *string) (int64, error) {
	res, err := db.Exec(`
		INSERT INTO strategy_runs (variant_id, data_source, iteration, remediation_plan, status)
		VALUES (?, ?, ?, ?, 'pending')`,
		variantID, dataSource, iteration, remediationPlan)
	if err != nil {
		return 0, fmt.Errorf("opening run: %w", err)
	}
	return res.LastInsertId()
}

// CloseRun sets the terminal status and end timestamp. Closing is guarded so
// a run already closed keeps its first terminal state.
func (db *DB) CloseRun(runID int64, status string, errorMessage *string) error {
	if status != "success" && status != "failed" {
		return fmt.Errorf("invalid terminal run status %q", status)
	}
	res, err := db.Exec(`
		UPDATE strategy_runs
		   SET status = ?, end_time = datetime('now'), error_message = ?
		 WHERE run_id = ? AND status = 'pending'`,
		status, errorMessage, runID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("run %d is not pending", runID)
	}
	return nil
}

// GetRun returns a run by id.
func (db *DB) GetRun(runID int64) (*Run, error) {
	r := &Run{}
	var plan, errMsg sql.NullString
	var end sql.NullTime
	err := db.QueryRow(`
		SELECT run_id, variant_id, data_source, iteration, remediation_plan, start_time, end_time, status, error_message
		FROM strategy_runs WHERE run_id = ?`, runID).Scan(
		&r.RunID, &r.VariantID, &r.DataSource, &r.Iteration, &plan,
		&r.StartTime, &end, &r.Status, &errMsg)
	if err != nil {
		return nil, err
	}
	if plan.Valid {
		r.RemediationPlan = &plan.String
	}
	if end.Valid {
		r.EndTime = &end.Time
	}
	if errMsg.Valid {
		r.ErrorMessage = &errMsg.String
	}
	return r, nil
}

// RecordMetricsInput mirrors the run_metrics columns supplied by callers.
type RecordMetricsInput struct {
	SharpeRatio   float64
	TotalReturn   float64
	MaxDrawdown   float64
	WinRate       float64
	TotalTrades   int
	BiasSelection float64
	BiasOther     *string
	Score         float64
}

// RecordMetrics appends a metrics snapshot for a run.
func (db *DB) RecordMetrics(runID int64, m RecordMetricsInput) (int64, error) {
	res, err := db.Exec(`
		INSERT INTO run_metrics (run_id, sharpe_ratio, total_return, max_drawdown, win_rate, total_trades, bias_selection, bias_other, score)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, m.SharpeRatio, m.TotalReturn, m.MaxDrawdown, m.WinRate,
		m.TotalTrades, m.BiasSelection, m.BiasOther, m.Score)
	if err != nil {
		return 0, fmt.Errorf("recording metrics: %w", err)
	}
	return res.LastInsertId()
}

// LatestRunMetrics returns the most recent metrics row for a run, or nil if
// none was recorded.
func (db *DB) LatestRunMetrics(runID int64) (*RunMetrics, error) {
	m := &RunMetrics{}
	var biasOther sql.NullString
	err := db.QueryRow(`
		SELECT run_metric_id, run_id, sharpe_ratio, total_return, max_drawdown, win_rate, total_trades, bias_selection, bias_other, score, recorded_at
		FROM run_metrics WHERE run_id = ?
		ORDER BY run_metric_id DESC
		LIMIT 1`, runID).Scan(
		&m.RunMetricID, &m.RunID, &m.SharpeRatio, &m.TotalReturn, &m.MaxDrawdown,
		&m.WinRate, &m.TotalTrades, &m.BiasSelection, &biasOther, &m.Score, &m.RecordedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if biasOther.Valid {
		m.BiasOther = &biasOther.String
	}
	return m, nil
}

// RecordRemediationAction stores one applied fix label for a run.
func (db *DB) RecordRemediationAction(runID int64, actionType, description string, metadataJSON *string) (int64, error) {
	res, err := db.Exec(`
		INSERT INTO remediation_actions (run_id, action_type, description, metadata_json)
		VALUES (?, ?, ?, ?)`,
		runID, actionType, description, metadataJSON)
	if err != nil {
		return 0, fmt.Errorf("recording remediation action: %w", err)
	}
	return res.LastInsertId()
}

// RemediationActionsForRun returns the fix labels recorded for a run, in
// insertion order.
func (db *DB) RemediationActionsForRun(runID int64) ([]string, error) {
	rows, err := db.Query(`
		SELECT action_type FROM remediation_actions
		WHERE run_id = ? ORDER BY action_id ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var actions []string
	for rows.Next() {
		var a string
		if err := rows.Scan(&a); err != nil {
			return nil, err
		}
		actions = append(actions, a)
	}
	return actions, rows.Err()
}
