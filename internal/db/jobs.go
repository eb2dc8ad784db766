// CLAUDE:SUMMARY Job queue DB operations — enqueue, single-transaction atomic claim, retry bookkeeping, job-run audit rows
package db

import (
	"database/sql"
	"fmt"
	"time"
)

// Job is one unit of queued automation work.
type Job struct {
	JobID         int64      `json:"job_id"`
	JobType       string     `json:"job_type"`
	Specification string     `json:"specification"`
	Status        string     `json:"status"`
	Priority      int        `json:"priority"`
	CreatedAt     time.Time  `json:"created_at"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	LastError     *string    `json:"last_error,omitempty"`
	RetryCount    int        `json:"retry_count"`
	MaxRetries    int        `json:"max_retries"`
}

// JobRun is one recorded strategy-level outcome produced while executing a job.
type JobRun struct {
	JobRunID    int64      `json:"job_run_id"`
	JobID       int64      `json:"job_id"`
	VariantID   *int64     `json:"variant_id,omitempty"`
	RunID       *int64     `json:"run_id,omitempty"`
	Status      string     `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Details     *string    `json:"details,omitempty"`
}

// EnqueueJob inserts a pending job and returns its id.
func (db *DB) EnqueueJob(jobType, specification string, priority, maxRetries int) (int64, error) {
	res, err := db.Exec(`
		INSERT INTO automation_jobs (job_type, specification, priority, max_retries)
		VALUES (?, ?, ?, ?)`,
		jobType, specification, priority, maxRetries)
	if err != nil {
		return 0, fmt.Errorf("enqueuing job: %w", err)
	}
	return res.LastInsertId()
}

// FetchNextJob claims the highest-priority eligible job and flips it to
// running in one transaction. Among equal priorities the oldest job wins.
// Returns ErrNoJob when the queue is empty or another claimer got there
// first.
func (db *DB) FetchNextJob() (*Job, error) {
	tx, err := db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	job := &Job{}
	err = tx.QueryRow(`
		SELECT job_id, job_type, specification, status, priority, retry_count, max_retries
		FROM automation_jobs
		WHERE status IN ('pending','retry')
		ORDER BY priority DESC, job_id ASC
		LIMIT 1`).Scan(
		&job.JobID, &job.JobType, &job.Specification, &job.Status,
		&job.Priority, &job.RetryCount, &job.MaxRetries)
	if err == sql.ErrNoRows {
		return nil, ErrNoJob
	}
	if err != nil {
		return nil, err
	}

	res, err := tx.Exec(`
		UPDATE automation_jobs
		   SET status = 'running', started_at = datetime('now')
		 WHERE job_id = ? AND status IN ('pending','retry')`, job.JobID)
	if err != nil {
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrNoJob
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	job.Status = "running"
	return job, nil
}

// MarkJobCompleted records successful completion.
func (db *DB) MarkJobCompleted(jobID int64) error {
	_, err := db.Exec(`
		UPDATE automation_jobs
		   SET status = 'completed', completed_at = datetime('now')
		 WHERE job_id = ?`, jobID)
	return err
}

// MarkJobRetry returns a failed job to the queue, bumping its retry count.
func (db *DB) MarkJobRetry(jobID int64, lastError string) error {
	_, err := db.Exec(`
		UPDATE automation_jobs
		   SET status = 'retry', retry_count = retry_count + 1, last_error = ?
		 WHERE job_id = ?`, lastError, jobID)
	return err
}

// MarkJobFailed records permanent failure. The caller decides when retries
// are exhausted.
func (db *DB) MarkJobFailed(jobID int64, lastError string) error {
	_, err := db.Exec(`
		UPDATE automation_jobs
		   SET status = 'failed', completed_at = datetime('now'), last_error = ?
		 WHERE job_id = ?`, lastError, jobID)
	return err
}

// GetJob returns a job by id.
func (db *DB) GetJob(jobID int64) (*Job, error) {
	job := &Job{}
	var started, completed sql.NullTime
	var lastErr sql.NullString
	err := db.QueryRow(`
		SELECT job_id, job_type, specification, status, priority, created_at, started_at, completed_at, last_error, retry_count, max_retries
		FROM automation_jobs WHERE job_id = ?`, jobID).Scan(
		&job.JobID, &job.JobType, &job.Specification, &job.Status, &job.Priority,
		&job.CreatedAt, &started, &completed, &lastErr, &job.RetryCount, &job.MaxRetries)
	if err != nil {
		return nil, err
	}
	if started.Valid {
		job.StartedAt = &started.Time
	}
	if completed.Valid {
		job.CompletedAt = &completed.Time
	}
	if lastErr.Valid {
		job.LastError = &lastErr.String
	}
	return job, nil
}

// RecordJobRun appends a completed job-run audit row linking a job to the
// variant and run it produced.
func (db *DB) RecordJobRun(jobID int64, variantID, runID *int64, status string, details *string) (int64, error) {
	res, err := db.Exec(`
		INSERT INTO automation_job_runs (job_id, variant_id, run_id, status, completed_at, details)
		VALUES (?, ?, ?, ?, datetime('now'), ?)`,
		jobID, variantID, runID, status, details)
	if err != nil {
		return 0, fmt.Errorf("recording job run: %w", err)
	}
	return res.LastInsertId()
}

// JobRunsForJob returns the audit rows for a job in insertion order.
func (db *DB) JobRunsForJob(jobID int64) ([]JobRun, error) {
	rows, err := db.Query(`
		SELECT job_run_id, job_id, variant_id, run_id, status, started_at, completed_at, details
		FROM automation_job_runs WHERE job_id = ?
		ORDER BY job_run_id ASC`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []JobRun
	for rows.Next() {
		var jr JobRun
		var variantID, runID sql.NullInt64
		var completed sql.NullTime
		var details sql.NullString
		err := rows.Scan(&jr.JobRunID, &jr.JobID, &variantID, &runID, &jr.Status,
			&jr.StartedAt, &completed, &details)
		if err != nil {
			return nil, err
		}
		if variantID.Valid {
			jr.VariantID = &variantID.Int64
		}
		if runID.Valid {
			jr.RunID = &runID.Int64
		}
		if completed.Valid {
			jr.CompletedAt = &completed.Time
		}
		if details.Valid {
			jr.Details = &details.String
		}
		results = append(results, jr)
	}
	return results, rows.Err()
}
