package db

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func seedVariant(t *testing.T, db *DB, family, name string) (int64, int64) {
	t.Helper()
	sid, err := db.UpsertStrategy(family, name, nil, nil)
	if err != nil {
		t.Fatalf("upserting strategy: %v", err)
	}
	vid, err := db.CreateVariant(CreateVariantInput{
		StrategyID: sid,
		VersionTag: "v0",
		ConfigJSON: `{"name":"` + name + `"}`,
	})
	if err != nil {
		t.Fatalf("creating variant: %v", err)
	}
	return sid, vid
}

func TestUpsertStrategyIdempotent(t *testing.T) {
	db := openTestDB(t)

	tmpl := "strategies/sma.tpl"
	id1, err := db.UpsertStrategy("sma", "sma_base", &tmpl, nil)
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	notes := "second pass"
	id2, err := db.UpsertStrategy("sma", "sma_base", nil, &notes)
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if id1 != id2 {
		t.Errorf("strategy_id changed on upsert: %d != %d", id1, id2)
	}

	s, err := db.GetStrategy(id1)
	if err != nil {
		t.Fatalf("getting strategy: %v", err)
	}
	// nil template on the second call must not clobber the first value.
	if s.TemplateSource == nil || *s.TemplateSource != tmpl {
		t.Errorf("template_source = %v, want %q", s.TemplateSource, tmpl)
	}
	if s.Notes == nil || *s.Notes != notes {
		t.Errorf("notes = %v, want %q", s.Notes, notes)
	}
}

func TestVariantLineage(t *testing.T) {
	db := openTestDB(t)
	_, root := seedVariant(t, db, "rsi", "rsi_base")

	sid, err := db.UpsertStrategy("rsi", "rsi_base", nil, nil)
	if err != nil {
		t.Fatalf("upserting strategy: %v", err)
	}

	// Chain of N remediation children under the root.
	const n = 4
	parent := root
	ids := []int64{root}
	for i := 1; i <= n; i++ {
		p := parent
		vid, err := db.CreateVariant(CreateVariantInput{
			StrategyID:      sid,
			ParentVariantID: &p,
			VersionTag:      fmt.Sprintf("iter%d", i),
			ConfigJSON:      "{}",
		})
		if err != nil {
			t.Fatalf("creating child %d: %v", i, err)
		}
		ids = append(ids, vid)
		parent = vid
	}

	chain, err := db.VariantLineage(parent)
	if err != nil {
		t.Fatalf("walking lineage: %v", err)
	}
	if len(chain) != n+1 {
		t.Fatalf("lineage length = %d, want %d", len(chain), n+1)
	}
	if chain[0].VariantID != root {
		t.Errorf("lineage root = %d, want %d", chain[0].VariantID, root)
	}
	if chain[0].ParentVariantID != nil {
		t.Error("root variant has a parent")
	}
	for i, v := range chain {
		if v.VariantID != ids[i] {
			t.Errorf("lineage[%d] = %d, want %d", i, v.VariantID, ids[i])
		}
		if i > 0 && (v.ParentVariantID == nil || *v.ParentVariantID != ids[i-1]) {
			t.Errorf("lineage[%d] parent = %v, want %d", i, v.ParentVariantID, ids[i-1])
		}
	}
}

func TestRunLifecycle(t *testing.T) {
	db := openTestDB(t)
	_, vid := seedVariant(t, db, "macd", "macd_base")

	runID, err := db.OpenRun(vid, "data/spy.csv", 0, nil)
	if err != nil {
		t.Fatalf("opening run: %v", err)
	}

	run, err := db.GetRun(runID)
	if err != nil {
		t.Fatalf("getting run: %v", err)
	}
	if run.Status != "pending" {
		t.Errorf("status = %q, want pending", run.Status)
	}
	if run.EndTime != nil {
		t.Error("pending run has end_time")
	}

	if err := db.CloseRun(runID, "success", nil); err != nil {
		t.Fatalf("closing run: %v", err)
	}
	run, err = db.GetRun(runID)
	if err != nil {
		t.Fatalf("re-getting run: %v", err)
	}
	if run.Status != "success" {
		t.Errorf("status = %q, want success", run.Status)
	}
	if run.EndTime == nil {
		t.Error("closed run missing end_time")
	}

	// A second close must not overwrite the terminal state.
	msg := "late failure"
	if err := db.CloseRun(runID, "failed", &msg); err == nil {
		t.Error("re-closing a closed run succeeded")
	}
	run, _ = db.GetRun(runID)
	if run.Status != "success" {
		t.Errorf("status after re-close = %q, want success", run.Status)
	}

	if err := db.CloseRun(runID, "pending", nil); err == nil {
		t.Error("closing with non-terminal status succeeded")
	}
}

func TestRunMetricsAppendOnly(t *testing.T) {
	db := openTestDB(t)
	_, vid := seedVariant(t, db, "sma", "sma_m")
	runID, err := db.OpenRun(vid, "data/spy.csv", 0, nil)
	if err != nil {
		t.Fatalf("opening run: %v", err)
	}

	latest, err := db.LatestRunMetrics(runID)
	if err != nil {
		t.Fatalf("latest with no rows: %v", err)
	}
	if latest != nil {
		t.Errorf("latest = %+v, want nil", latest)
	}

	for i, bias := range []float64{0.12, 0.04} {
		_, err := db.RecordMetrics(runID, RecordMetricsInput{
			SharpeRatio:   1.1,
			TotalReturn:   0.08,
			BiasSelection: bias,
			Score:         float64(i),
		})
		if err != nil {
			t.Fatalf("recording metrics %d: %v", i, err)
		}
	}

	latest, err = db.LatestRunMetrics(runID)
	if err != nil {
		t.Fatalf("latest metrics: %v", err)
	}
	if latest == nil {
		t.Fatal("latest metrics is nil")
	}
	if latest.BiasSelection != 0.04 {
		t.Errorf("bias_selection = %v, want 0.04", latest.BiasSelection)
	}
}

func TestRemediationActions(t *testing.T) {
	db := openTestDB(t)
	_, vid := seedVariant(t, db, "sma", "sma_a")
	runID, err := db.OpenRun(vid, "data/spy.csv", 1, nil)
	if err != nil {
		t.Fatalf("opening run: %v", err)
	}

	want := []string{"walk_forward_optimization", "out_of_sample_validation"}
	for _, a := range want {
		if _, err := db.RecordRemediationAction(runID, a, "applied "+a, nil); err != nil {
			t.Fatalf("recording action %s: %v", a, err)
		}
	}

	got, err := db.RemediationActionsForRun(runID)
	if err != nil {
		t.Fatalf("reading actions: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("actions = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("actions[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestFileChecksum(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{"name":"x"}`), 0o644); err != nil {
		t.Fatalf("writing file: %v", err)
	}

	sum1, err := FileChecksum(path)
	if err != nil {
		t.Fatalf("checksumming: %v", err)
	}
	if sum1 == nil || len(*sum1) != 64 {
		t.Fatalf("checksum = %v, want 64 hex chars", sum1)
	}
	sum2, err := FileChecksum(path)
	if err != nil {
		t.Fatalf("re-checksumming: %v", err)
	}
	if *sum1 != *sum2 {
		t.Errorf("checksum not stable: %s != %s", *sum1, *sum2)
	}

	missing, err := FileChecksum(filepath.Join(dir, "does-not-exist"))
	if err != nil {
		t.Fatalf("checksumming missing file: %v", err)
	}
	if missing != nil {
		t.Errorf("missing-file checksum = %v, want nil", missing)
	}
}

func TestRecordArtifact(t *testing.T) {
	db := openTestDB(t)
	_, vid := seedVariant(t, db, "sma", "sma_art")
	runID, err := db.OpenRun(vid, "data/spy.csv", 0, nil)
	if err != nil {
		t.Fatalf("opening run: %v", err)
	}

	path := filepath.Join(t.TempDir(), "variant.json")
	if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
		t.Fatalf("writing artifact: %v", err)
	}
	if _, err := db.RecordArtifact(&runID, &vid, "config", path, nil); err != nil {
		t.Fatalf("recording artifact: %v", err)
	}

	var checksum *string
	err = db.QueryRow(`SELECT checksum FROM artifacts WHERE run_id = ?`, runID).Scan(&checksum)
	if err != nil {
		t.Fatalf("reading artifact row: %v", err)
	}
	if checksum == nil {
		t.Error("stored checksum is nil for existing file")
	}
}

func TestLeaderboardUpsert(t *testing.T) {
	db := openTestDB(t)
	_, vid := seedVariant(t, db, "sma", "sma_lb")
	runID, err := db.OpenRun(vid, "data/spy.csv", 0, nil)
	if err != nil {
		t.Fatalf("opening run: %v", err)
	}
	if err := db.CloseRun(runID, "success", nil); err != nil {
		t.Fatalf("closing run: %v", err)
	}
	if _, err := db.RecordMetrics(runID, RecordMetricsInput{SharpeRatio: 1.4, TotalReturn: 0.12, Score: 1.3}); err != nil {
		t.Fatalf("recording metrics: %v", err)
	}

	rank, err := db.NextLeaderboardRank()
	if err != nil {
		t.Fatalf("next rank: %v", err)
	}
	if rank != 1 {
		t.Errorf("first rank = %d, want 1", rank)
	}

	if _, err := db.UpsertLeaderboardEntry(vid, runID, 1.3, rank, "candidate"); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	// Second upsert for the same variant replaces in place.
	if _, err := db.UpsertLeaderboardEntry(vid, runID, 2.1, rank, "active"); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM strategy_leaderboard WHERE variant_id = ?`, vid).Scan(&count); err != nil {
		t.Fatalf("counting entries: %v", err)
	}
	if count != 1 {
		t.Errorf("entries for variant = %d, want 1", count)
	}

	entry, err := db.GetLeaderboardEntry(vid)
	if err != nil {
		t.Fatalf("getting entry: %v", err)
	}
	if entry.Score != 2.1 {
		t.Errorf("score = %v, want 2.1", entry.Score)
	}
	if entry.Status != "active" {
		t.Errorf("status = %q, want active", entry.Status)
	}

	rows, err := db.Leaderboard(10, "", "")
	if err != nil {
		t.Fatalf("reading leaderboard: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("leaderboard rows = %d, want 1", len(rows))
	}
	if rows[0].StrategyName != "sma_lb" {
		t.Errorf("strategy name = %q, want sma_lb", rows[0].StrategyName)
	}
	if rows[0].SharpeRatio != 1.4 {
		t.Errorf("sharpe = %v, want 1.4", rows[0].SharpeRatio)
	}
}

func TestLeaderboardOrderingAndFilters(t *testing.T) {
	db := openTestDB(t)

	type entry struct {
		family string
		name   string
		score  float64
		status string
	}
	entries := []entry{
		{"sma", "sma_1", 0.9, "candidate"},
		{"rsi", "rsi_1", 2.4, "active"},
		{"sma", "sma_2", 1.7, "active"},
	}
	for _, e := range entries {
		_, vid := seedVariant(t, db, e.family, e.name)
		runID, err := db.OpenRun(vid, "data/spy.csv", 0, nil)
		if err != nil {
			t.Fatalf("opening run: %v", err)
		}
		if err := db.CloseRun(runID, "success", nil); err != nil {
			t.Fatalf("closing run: %v", err)
		}
		if _, err := db.RecordMetrics(runID, RecordMetricsInput{Score: e.score}); err != nil {
			t.Fatalf("recording metrics: %v", err)
		}
		rank, err := db.NextLeaderboardRank()
		if err != nil {
			t.Fatalf("next rank: %v", err)
		}
		if _, err := db.UpsertLeaderboardEntry(vid, runID, e.score, rank, e.status); err != nil {
			t.Fatalf("upserting entry: %v", err)
		}
	}

	all, err := db.Leaderboard(0, "", "")
	if err != nil {
		t.Fatalf("reading leaderboard: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("rows = %d, want 3", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].Score > all[i-1].Score {
			t.Errorf("leaderboard not score-descending at %d: %v > %v", i, all[i].Score, all[i-1].Score)
		}
	}

	smaOnly, err := db.Leaderboard(0, "sma", "")
	if err != nil {
		t.Fatalf("family filter: %v", err)
	}
	if len(smaOnly) != 2 {
		t.Errorf("sma rows = %d, want 2", len(smaOnly))
	}

	active, err := db.Leaderboard(0, "", "active")
	if err != nil {
		t.Fatalf("status filter: %v", err)
	}
	if len(active) != 2 {
		t.Errorf("active rows = %d, want 2", len(active))
	}

	top1, err := db.Leaderboard(1, "", "")
	if err != nil {
		t.Fatalf("top limit: %v", err)
	}
	if len(top1) != 1 || top1[0].StrategyName != "rsi_1" {
		t.Errorf("top1 = %+v, want rsi_1", top1)
	}
}

func TestExperimentLifecycle(t *testing.T) {
	db := openTestDB(t)
	sid, _ := seedVariant(t, db, "sma", "sma_exp")

	params := `{"count":3}`
	eid, err := db.StartExperiment(sid, "grid", &params, nil)
	if err != nil {
		t.Fatalf("starting experiment: %v", err)
	}

	e, err := db.GetExperiment(eid)
	if err != nil {
		t.Fatalf("getting experiment: %v", err)
	}
	if e.Status != "active" {
		t.Errorf("status = %q, want active", e.Status)
	}
	if e.CompletedAt != nil {
		t.Error("active experiment has completed_at")
	}

	notes := "3 variants generated"
	if err := db.CompleteExperiment(eid, "completed", &notes); err != nil {
		t.Fatalf("completing experiment: %v", err)
	}
	e, err = db.GetExperiment(eid)
	if err != nil {
		t.Fatalf("re-getting experiment: %v", err)
	}
	if e.Status != "completed" {
		t.Errorf("status = %q, want completed", e.Status)
	}
	if e.CompletedAt == nil {
		t.Error("completed experiment missing completed_at")
	}

	if err := db.CompleteExperiment(eid, "active", nil); err == nil {
		t.Error("completing with non-terminal status succeeded")
	}
}
