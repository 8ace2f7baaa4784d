package database

const schema = `
CREATE TABLE IF NOT EXISTS definitions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    benchmark_id TEXT NOT NULL UNIQUE,
    title TEXT NOT NULL,
    version TEXT DEFAULT '',
    release_date TEXT DEFAULT '',
    platform TEXT DEFAULT 'unknown',
    description TEXT DEFAULT '',
    source TEXT DEFAULT '',
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS rules (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    definition_id INTEGER NOT NULL REFERENCES definitions(id) ON DELETE CASCADE,
    rule_id TEXT NOT NULL,
    title TEXT DEFAULT '',
    severity TEXT DEFAULT 'medium',
    description TEXT DEFAULT '',
    fix_text TEXT DEFAULT '',
    check_text TEXT DEFAULT '',
    UNIQUE(definition_id, rule_id)
);

CREATE TABLE IF NOT EXISTS credentials (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    kind TEXT NOT NULL DEFAULT 'ssh',
    secret BLOB,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS targets (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    address TEXT DEFAULT '',
    platform TEXT DEFAULT 'unknown',
    conn_meta TEXT DEFAULT '{}',
    credential_id INTEGER REFERENCES credentials(id) ON DELETE SET NULL,
    active INTEGER DEFAULT 1,
    last_audit_at DATETIME,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS target_definitions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    target_id INTEGER NOT NULL REFERENCES targets(id) ON DELETE CASCADE,
    definition_id INTEGER NOT NULL REFERENCES definitions(id) ON DELETE CASCADE,
    is_primary INTEGER DEFAULT 0,
    enabled INTEGER DEFAULT 1,
    notes TEXT DEFAULT '',
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(target_id, definition_id)
);

CREATE TABLE IF NOT EXISTS audit_groups (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    target_id INTEGER NOT NULL REFERENCES targets(id) ON DELETE CASCADE,
    status TEXT DEFAULT 'pending',
    total_jobs INTEGER DEFAULT 0,
    completed_jobs INTEGER DEFAULT 0,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    completed_at DATETIME
);

CREATE TABLE IF NOT EXISTS audit_jobs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    target_id INTEGER NOT NULL REFERENCES targets(id) ON DELETE CASCADE,
    definition_id INTEGER NOT NULL REFERENCES definitions(id) ON DELETE CASCADE,
    group_id INTEGER REFERENCES audit_groups(id) ON DELETE SET NULL,
    external_id TEXT DEFAULT '',
    status TEXT DEFAULT 'pending',
    error_message TEXT DEFAULT '',
    started_at DATETIME,
    completed_at DATETIME,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS audit_results (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    job_id INTEGER NOT NULL REFERENCES audit_jobs(id) ON DELETE CASCADE,
    rule_id TEXT NOT NULL,
    title TEXT DEFAULT '',
    severity TEXT DEFAULT 'medium',
    status TEXT NOT NULL,
    finding_details TEXT DEFAULT '',
    comments TEXT DEFAULT '',
    checked_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(job_id, rule_id)
);

CREATE INDEX IF NOT EXISTS idx_rules_definition ON rules(definition_id);
CREATE INDEX IF NOT EXISTS idx_target_definitions_target ON target_definitions(target_id);
CREATE INDEX IF NOT EXISTS idx_audit_jobs_target ON audit_jobs(target_id);
CREATE INDEX IF NOT EXISTS idx_audit_jobs_group ON audit_jobs(group_id);
CREATE INDEX IF NOT EXISTS idx_audit_jobs_status ON audit_jobs(status);
CREATE INDEX IF NOT EXISTS idx_audit_results_job ON audit_results(job_id);
CREATE INDEX IF NOT EXISTS idx_audit_groups_target ON audit_groups(target_id);
`
