// ABOUTME: SQLite schema and ordered migrations for the interview store
// ABOUTME: Applied once per database path per process under the file lock
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
)

// SchemaVersion is the highest migration version
const SchemaVersion = 4

type migration struct {
	version int
	name    string
	// check returns a row when the migration is already reflected in the schema
	check string
	stmts []string
}

var migrations = []migration{
	{
		version: 1,
		name:    "initial tables",
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL DEFAULT '',
    mode TEXT NOT NULL DEFAULT 'auto' CHECK (mode IN ('auto', 'conduct_interview', 'manage_areas')),
    current_area_id TEXT REFERENCES life_areas(id) ON DELETE SET NULL
)`,
			`CREATE TABLE IF NOT EXISTS life_areas (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    parent_id TEXT REFERENCES life_areas(id) ON DELETE CASCADE,
    user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    extracted_at REAL
)`,
			`CREATE TABLE IF NOT EXISTS histories (
    id TEXT PRIMARY KEY,
    message_data TEXT NOT NULL,
    user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    created_ts REAL NOT NULL
)`,
			`CREATE TABLE IF NOT EXISTS leaf_history (
    leaf_id TEXT NOT NULL REFERENCES life_areas(id) ON DELETE CASCADE,
    history_id TEXT NOT NULL UNIQUE REFERENCES histories(id) ON DELETE CASCADE,
    PRIMARY KEY (leaf_id, history_id)
)`,
			`CREATE TABLE IF NOT EXISTS summaries (
    id TEXT PRIMARY KEY,
    area_id TEXT NOT NULL REFERENCES life_areas(id) ON DELETE CASCADE,
    summary_text TEXT NOT NULL,
    question_id TEXT REFERENCES histories(id) ON DELETE SET NULL,
    answer_id TEXT REFERENCES histories(id) ON DELETE SET NULL,
    vector BLOB,
    created_at REAL NOT NULL
)`,
			`CREATE TABLE IF NOT EXISTS user_knowledge (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    description TEXT NOT NULL,
    kind TEXT NOT NULL CHECK (kind IN ('skill', 'fact')),
    confidence REAL NOT NULL CHECK (confidence >= 0 AND confidence <= 1),
    created_ts REAL NOT NULL,
    summary_id TEXT REFERENCES summaries(id) ON DELETE CASCADE
)`,
			`CREATE TABLE IF NOT EXISTS leaf_coverage (
    leaf_id TEXT NOT NULL REFERENCES life_areas(id) ON DELETE CASCADE,
    root_area_id TEXT NOT NULL REFERENCES life_areas(id) ON DELETE CASCADE,
    status TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'active', 'covered', 'skipped')),
    summary_text TEXT,
    vector BLOB,
    updated_at REAL NOT NULL,
    PRIMARY KEY (leaf_id, root_area_id)
)`,
			`CREATE TABLE IF NOT EXISTS active_interview_context (
    user_id TEXT PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
    root_area_id TEXT NOT NULL REFERENCES life_areas(id) ON DELETE CASCADE,
    active_leaf_id TEXT NOT NULL REFERENCES life_areas(id) ON DELETE CASCADE,
    question_text TEXT,
    created_at REAL NOT NULL
)`,
		},
	},
	{
		version: 2,
		name:    "life_areas.covered_at",
		check:   `SELECT 1 FROM pragma_table_info('life_areas') WHERE name = 'covered_at'`,
		stmts:   []string{`ALTER TABLE life_areas ADD COLUMN covered_at REAL`},
	},
	{
		version: 3,
		name:    "api_keys",
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS api_keys (
    id TEXT PRIMARY KEY,
    key_hash TEXT NOT NULL UNIQUE,
    key_prefix TEXT NOT NULL,
    user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    label TEXT NOT NULL DEFAULT '',
    created_at REAL NOT NULL
)`,
		},
	},
	{
		version: 4,
		name:    "indexes",
		stmts: []string{
			`CREATE INDEX IF NOT EXISTS idx_life_areas_user ON life_areas(user_id)`,
			`CREATE INDEX IF NOT EXISTS idx_life_areas_parent ON life_areas(parent_id)`,
			`CREATE INDEX IF NOT EXISTS idx_histories_user_ts ON histories(user_id, created_ts)`,
			`CREATE INDEX IF NOT EXISTS idx_summaries_area ON summaries(area_id)`,
			`CREATE INDEX IF NOT EXISTS idx_knowledge_user ON user_knowledge(user_id)`,
			`CREATE INDEX IF NOT EXISTS idx_coverage_root ON leaf_coverage(root_area_id)`,
			`CREATE UNIQUE INDEX IF NOT EXISTS idx_coverage_one_active ON leaf_coverage(root_area_id) WHERE status = 'active'`,
			`CREATE INDEX IF NOT EXISTS idx_api_keys_user ON api_keys(user_id)`,
		},
	},
}

// LatestSchemaVersion is the version a fully migrated database reports
func LatestSchemaVersion() int {
	return migrations[len(migrations)-1].version
}

var (
	initializedMu sync.Mutex
	initialized   = map[string]bool{}
)

// migrateOnce runs migrations the first time a path is opened in this process.
// The file lock keeps concurrent processes from racing the DDL.
func (db *DB) migrateOnce(ctx context.Context) error {
	initializedMu.Lock()
	defer initializedMu.Unlock()

	if initialized[db.path] {
		return nil
	}

	if db.lock != nil {
		if err := db.lock.Lock(); err != nil {
			return err
		}
		defer func() { _ = db.lock.Unlock() }()
	}

	if err := db.migrate(ctx); err != nil {
		return err
	}
	initialized[db.path] = true
	return nil
}

// migrate applies every migration newer than the recorded version
func (db *DB) migrate(ctx context.Context) error {
	if _, err := db.conn.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
)`); err != nil {
		return fmt.Errorf("create schema_version: %w", err)
	}

	current, err := db.schemaVersion(ctx)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if err := db.apply(ctx, m); err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.version, m.name, err)
		}
		db.logger.Debug("applied migration", "version", m.version, "name", m.name)
	}
	return nil
}

func (db *DB) schemaVersion(ctx context.Context) (int, error) {
	var v sql.NullInt64
	if err := db.conn.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_version`).Scan(&v); err != nil {
		return 0, fmt.Errorf("read schema_version: %w", err)
	}
	return int(v.Int64), nil
}

// SchemaVersion returns the highest applied migration
func (db *DB) SchemaVersion(ctx context.Context) (int, error) {
	return db.schemaVersion(ctx)
}

func (db *DB) apply(ctx context.Context, m migration) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	skip := false
	if m.check != "" {
		var one int
		err := tx.QueryRowContext(ctx, m.check).Scan(&one)
		switch {
		case err == nil:
			skip = true
		case !errors.Is(err, sql.ErrNoRows):
			return err
		}
	}

	if !skip {
		for _, stmt := range m.stmts {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return err
			}
		}
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_version (version) VALUES (?)`, m.version); err != nil {
		return err
	}
	return tx.Commit()
}
