package db

const schema = `
CREATE TABLE IF NOT EXISTS strategies (
    strategy_id     INTEGER PRIMARY KEY AUTOINCREMENT,
    family          TEXT NOT NULL,
    name            TEXT NOT NULL UNIQUE,
    template_source TEXT,
    notes           TEXT,
    created_at      DATETIME DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS strategy_variants (
    variant_id        INTEGER PRIMARY KEY AUTOINCREMENT,
    strategy_id       INTEGER NOT NULL REFERENCES strategies(strategy_id),
    parent_variant_id INTEGER REFERENCES strategy_variants(variant_id),
    version_tag       TEXT,
    config_json       TEXT NOT NULL,
    code_path         TEXT,
    provenance        TEXT,
    created_at        DATETIME DEFAULT (datetime('now'))
);
CREATE INDEX IF NOT EXISTS idx_variants_strategy ON strategy_variants(strategy_id);
CREATE INDEX IF NOT EXISTS idx_variants_parent ON strategy_variants(parent_variant_id);

CREATE TABLE IF NOT EXISTS strategy_runs (
    run_id           INTEGER PRIMARY KEY AUTOINCREMENT,
    variant_id       INTEGER NOT NULL REFERENCES strategy_variants(variant_id),
    data_source      TEXT NOT NULL,
    iteration        INTEGER NOT NULL,
    remediation_plan TEXT,
    start_time       DATETIME DEFAULT (datetime('now')),
    end_time         DATETIME,
    status           TEXT DEFAULT 'pending' CHECK(status IN ('pending','success','failed')),
    error_message    TEXT
);
CREATE INDEX IF NOT EXISTS idx_runs_variant ON strategy_runs(variant_id);

CREATE TABLE IF NOT EXISTS run_metrics (
    run_metric_id  INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id         INTEGER NOT NULL REFERENCES strategy_runs(run_id),
    sharpe_ratio   REAL,
    total_return   REAL,
    max_drawdown   REAL,
    win_rate       REAL,
    total_trades   INTEGER,
    bias_selection REAL,
    bias_other     TEXT,
    score          REAL,
    recorded_at    DATETIME DEFAULT (datetime('now'))
);
CREATE INDEX IF NOT EXISTS idx_run_metrics_run ON run_metrics(run_id);

CREATE TABLE IF NOT EXISTS remediation_actions (
    action_id     INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id        INTEGER NOT NULL REFERENCES strategy_runs(run_id),
    action_type   TEXT NOT NULL,
    description   TEXT,
    metadata_json TEXT,
    created_at    DATETIME DEFAULT (datetime('now'))
);
CREATE INDEX IF NOT EXISTS idx_actions_run ON remediation_actions(run_id);

CREATE TABLE IF NOT EXISTS artifacts (
    artifact_id   INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id        INTEGER REFERENCES strategy_runs(run_id),
    variant_id    INTEGER REFERENCES strategy_variants(variant_id),
    artifact_type TEXT NOT NULL,
    path          TEXT NOT NULL,
    checksum      TEXT,
    notes         TEXT,
    created_at    DATETIME DEFAULT (datetime('now'))
);
CREATE INDEX IF NOT EXISTS idx_artifacts_variant ON artifacts(variant_id);

CREATE TABLE IF NOT EXISTS strategy_leaderboard (
    leaderboard_id INTEGER PRIMARY KEY AUTOINCREMENT,
    variant_id     INTEGER NOT NULL UNIQUE REFERENCES strategy_variants(variant_id),
    best_run_id    INTEGER NOT NULL REFERENCES strategy_runs(run_id),
    rank           INTEGER NOT NULL,
    score          REAL NOT NULL,
    status         TEXT DEFAULT 'candidate' CHECK(status IN ('candidate','active','retired')),
    promoted_at    DATETIME DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS generation_experiments (
    experiment_id   INTEGER PRIMARY KEY AUTOINCREMENT,
    strategy_id     INTEGER NOT NULL REFERENCES strategies(strategy_id),
    policy          TEXT NOT NULL,
    parameters_json TEXT,
    started_at      DATETIME DEFAULT (datetime('now')),
    completed_at    DATETIME,
    status          TEXT DEFAULT 'active' CHECK(status IN ('active','completed','failed')),
    notes           TEXT
);

CREATE TABLE IF NOT EXISTS automation_jobs (
    job_id        INTEGER PRIMARY KEY AUTOINCREMENT,
    job_type      TEXT NOT NULL,
    specification TEXT NOT NULL,
    status        TEXT DEFAULT 'pending' CHECK(status IN ('pending','running','retry','failed','completed')),
    priority      INTEGER DEFAULT 0,
    created_at    DATETIME DEFAULT (datetime('now')),
    started_at    DATETIME,
    completed_at  DATETIME,
    last_error    TEXT,
    retry_count   INTEGER DEFAULT 0,
    max_retries   INTEGER DEFAULT 3
);
CREATE INDEX IF NOT EXISTS idx_jobs_eligible ON automation_jobs(priority DESC, job_id ASC) WHERE status IN ('pending','retry');

CREATE TABLE IF NOT EXISTS automation_job_runs (
    job_run_id   INTEGER PRIMARY KEY AUTOINCREMENT,
    job_id       INTEGER NOT NULL REFERENCES automation_jobs(job_id) ON DELETE CASCADE,
    variant_id   INTEGER REFERENCES strategy_variants(variant_id),
    run_id       INTEGER REFERENCES strategy_runs(run_id),
    status       TEXT NOT NULL,
    started_at   DATETIME DEFAULT (datetime('now')),
    completed_at DATETIME,
    details      TEXT
);
CREATE INDEX IF NOT EXISTS idx_job_runs_job ON automation_job_runs(job_id);
`
