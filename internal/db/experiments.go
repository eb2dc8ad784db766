// CLAUDE:SUMMARY Generation experiment DB operations — bracket batch-generation work with start/complete rows
package db

import (
	"database/sql"
	"fmt"
	"time"
)

// Experiment brackets one batch-generation pass over a strategy family.
type Experiment struct {
	ExperimentID   int64      `json:"experiment_id"`
	StrategyID     int64      `json:"strategy_id"`
	Policy         string     `json:"policy"`
	ParametersJSON *string    `json:"parameters_json,omitempty"`
	StartedAt      time.Time  `json:"started_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	Status         string     `json:"status"`
	Notes          *string    `json:"notes,omitempty"`
}

// StartExperiment opens an active experiment row.
func (db *DB) StartExperiment(strategyID int64, policy string, parametersJSON, notes *string) (int64, error) {
	res, err := db.Exec(`
		INSERT INTO generation_experiments (strategy_id, policy, parameters_json, notes)
		VALUES (?, ?, ?, ?)`,
		strategyID, policy, parametersJSON, notes)
	if err != nil {
		return 0, fmt.Errorf("starting experiment: %w", err)
	}
	return res.LastInsertId()
}

// CompleteExperiment closes an experiment as completed or failed.
func (db *DB) CompleteExperiment(experimentID int64, status string, notes *string) error {
	if status != "completed" && status != "failed" {
		return fmt.Errorf("invalid terminal experiment status %q", status)
	}
	_, err := db.Exec(`
		UPDATE generation_experiments
		   SET status = ?, completed_at = datetime('now'), notes = COALESCE(?, notes)
		 WHERE experiment_id = ?`, status, notes, experimentID)
	return err
}

// GetExperiment returns an experiment by id.
func (db *DB) GetExperiment(id int64) (*Experiment, error) {
	e := &Experiment{}
	var params, notes sql.NullString
	var completed sql.NullTime
	err := db.QueryRow(`
		SELECT experiment_id, strategy_id, policy, parameters_json, started_at, completed_at, status, notes
		FROM generation_experiments WHERE experiment_id = ?`, id).Scan(
		&e.ExperimentID, &e.StrategyID, &e.Policy, &params,
		&e.StartedAt, &completed, &e.Status, &notes)
	if err != nil {
		return nil, err
	}
	if params.Valid {
		e.ParametersJSON = &params.String
	}
	if completed.Valid {
		e.CompletedAt = &completed.Time
	}
	if notes.Valid {
		e.Notes = &notes.String
	}
	return e, nil
}
