// CLAUDE:SUMMARY Leaderboard DB operations — one-row-per-variant upsert, rank allocation, joined score-ordered reads
package db

import (
	"database/sql"
	"fmt"
	"time"
)

// LeaderboardEntry is the best-known result for one variant.
type LeaderboardEntry struct {
	LeaderboardID int64     `json:"leaderboard_id"`
	VariantID     int64     `json:"variant_id"`
	BestRunID     int64     `json:"best_run_id"`
	Rank          int       `json:"rank"`
	Score         float64   `json:"score"`
	Status        string    `json:"status"`
	PromotedAt    time.Time `json:"promoted_at"`
}

// LeaderboardRow is an entry joined with its strategy and best-run metrics,
// used by operator-facing reads.
type LeaderboardRow struct {
	LeaderboardEntry
	Family        string  `json:"family"`
	StrategyName  string  `json:"strategy_name"`
	VersionTag    *string `json:"version_tag,omitempty"`
	SharpeRatio   float64 `json:"sharpe_ratio"`
	TotalReturn   float64 `json:"total_return"`
	MaxDrawdown   float64 `json:"max_drawdown"`
	WinRate       float64 `json:"win_rate"`
	TotalTrades   int     `json:"total_trades"`
	BiasSelection float64 `json:"bias_selection"`
}

// UpsertLeaderboardEntry replaces a variant's existing entry in place or
// inserts a new one. At most one row per variant ever exists.
func (db *DB) UpsertLeaderboardEntry(variantID, bestRunID int64, score float64, rank int, status string) (int64, error) {
	tx, err := db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var id int64
	err = tx.QueryRow(`SELECT leaderboard_id FROM strategy_leaderboard WHERE variant_id = ?`, variantID).Scan(&id)
	switch {
	case err == sql.ErrNoRows:
		res, err := tx.Exec(`
			INSERT INTO strategy_leaderboard (variant_id, best_run_id, rank, score, status)
			VALUES (?, ?, ?, ?, ?)`,
			variantID, bestRunID, rank, score, status)
		if err != nil {
			return 0, fmt.Errorf("inserting leaderboard entry: %w", err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return 0, err
		}
	case err != nil:
		return 0, err
	default:
		_, err = tx.Exec(`
			UPDATE strategy_leaderboard
			   SET best_run_id = ?, score = ?, rank = ?, status = ?, promoted_at = datetime('now')
			 WHERE leaderboard_id = ?`,
			bestRunID, score, rank, status, id)
		if err != nil {
			return 0, fmt.Errorf("updating leaderboard entry: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return id, nil
}

// NextLeaderboardRank returns max(rank)+1. Ranks are monotonic and coarse;
// callers wanting a live total order read Leaderboard sorted by score.
func (db *DB) NextLeaderboardRank() (int, error) {
	var rank int
	err := db.QueryRow(`SELECT COALESCE(MAX(rank), 0) + 1 FROM strategy_leaderboard`).Scan(&rank)
	return rank, err
}

// GetLeaderboardEntry returns the entry for a variant, or nil if absent.
func (db *DB) GetLeaderboardEntry(variantID int64) (*LeaderboardEntry, error) {
	e := &LeaderboardEntry{}
	err := db.QueryRow(`
		SELECT leaderboard_id, variant_id, best_run_id, rank, score, status, promoted_at
		FROM strategy_leaderboard WHERE variant_id = ?`, variantID).Scan(
		&e.LeaderboardID, &e.VariantID, &e.BestRunID, &e.Rank, &e.Score, &e.Status, &e.PromotedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

// Leaderboard returns entries joined with strategy and best-run metrics,
// score-descending. family and status filter when non-empty; top <= 0 means
// no limit.
func (db *DB) Leaderboard(top int, family, status string) ([]LeaderboardRow, error) {
	query := `
		SELECT lb.leaderboard_id, lb.variant_id, lb.best_run_id, lb.rank, lb.score, lb.status, lb.promoted_at,
			s.family, s.name, sv.version_tag,
			rm.sharpe_ratio, rm.total_return, rm.max_drawdown, rm.win_rate, rm.total_trades, rm.bias_selection
		FROM strategy_leaderboard lb
		JOIN strategy_variants sv ON lb.variant_id = sv.variant_id
		JOIN strategies s ON sv.strategy_id = s.strategy_id
		JOIN run_metrics rm ON rm.run_metric_id = (
			SELECT MAX(run_metric_id) FROM run_metrics WHERE run_id = lb.best_run_id
		)`

	var conditions []string
	var params []any
	if status != "" {
		conditions = append(conditions, "lb.status = ?")
		params = append(params, status)
	}
	if family != "" {
		conditions = append(conditions, "s.family = ?")
		params = append(params, family)
	}
	for i, cond := range conditions {
		if i == 0 {
			query += " WHERE " + cond
		} else {
			query += " AND " + cond
		}
	}
	query += " ORDER BY lb.score DESC"
	if top > 0 {
		query += " LIMIT ?"
		params = append(params, top)
	}

	rows, err := db.Query(query, params...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []LeaderboardRow
	for rows.Next() {
		var r LeaderboardRow
		var tag sql.NullString
		err := rows.Scan(
			&r.LeaderboardID, &r.VariantID, &r.BestRunID, &r.Rank, &r.Score, &r.Status, &r.PromotedAt,
			&r.Family, &r.StrategyName, &tag,
			&r.SharpeRatio, &r.TotalReturn, &r.MaxDrawdown, &r.WinRate, &r.TotalTrades, &r.BiasSelection)
		if err != nil {
			return nil, err
		}
		if tag.Valid {
			r.VersionTag = &tag.String
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
