// Package store persists sessions, turns, and their derived metrics in
// an embedded SQLite database, per spec.md §4.H.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store wraps a SQLite connection configured for single-writer,
// multi-reader access (WAL journal mode, busy timeout, pooled
// connections). now is a seam for deterministic tests.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open creates the parent directory if needed, opens (or creates) the
// database at path, configures the connection, and runs schema init.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("store: create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	if err := configureConnection(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := New(db)
	if err := s.Init(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an already-open *sql.DB. Callers that use New directly are
// responsible for calling configureConnection-equivalent pragmas and
// Init themselves (as tests using an in-memory or temp-file db do).
func New(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

func configureConnection(db *sql.DB) error {
	pragmas := []string{
		`PRAGMA journal_mode = WAL;`,
		`PRAGMA synchronous = NORMAL;`,
		`PRAGMA busy_timeout = 5000;`,
		`PRAGMA foreign_keys = ON;`,
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("store: configure connection (%s): %w", p, err)
		}
	}
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	return nil
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Init creates every table and index the core relies on, idempotently.
func (s *Store) Init(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store: init schema: %w", err)
		}
	}
	return nil
}

var schemaStatements = []string{
	`PRAGMA foreign_keys = ON;`,

	`CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		project_path TEXT NOT NULL,
		project_name TEXT NOT NULL,
		branch TEXT,
		started_at TEXT NOT NULL,
		last_activity_at TEXT NOT NULL,
		model TEXT,
		is_active INTEGER NOT NULL DEFAULT 0,
		file_path TEXT NOT NULL,
		file_mtime INTEGER,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_project_path ON sessions(project_path);`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_last_activity ON sessions(last_activity_at DESC);`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_is_active ON sessions(is_active);`,

	`CREATE TABLE IF NOT EXISTS turns (
		turn_id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL REFERENCES sessions(session_id) ON DELETE CASCADE,
		turn_number INTEGER NOT NULL,
		started_at TEXT NOT NULL,
		ended_at TEXT,
		duration_ms INTEGER,
		user_message TEXT,
		assistant_message TEXT,
		model TEXT,
		stop_reason TEXT,
		created_at TEXT NOT NULL,
		UNIQUE(session_id, turn_number)
	);`,
	`CREATE INDEX IF NOT EXISTS idx_turns_session_id ON turns(session_id);`,

	`CREATE TABLE IF NOT EXISTS turn_metrics (
		turn_id TEXT PRIMARY KEY REFERENCES turns(turn_id) ON DELETE CASCADE,
		input INTEGER NOT NULL DEFAULT 0,
		output INTEGER NOT NULL DEFAULT 0,
		cache_read INTEGER NOT NULL DEFAULT 0,
		cache_write_5m INTEGER NOT NULL DEFAULT 0,
		cache_write_1h INTEGER NOT NULL DEFAULT 0,
		total_cost REAL NOT NULL DEFAULT 0,
		context_usage_pct REAL NOT NULL DEFAULT 0,
		tool_count INTEGER NOT NULL DEFAULT 0
	);`,

	`CREATE TABLE IF NOT EXISTS session_metrics (
		session_id TEXT PRIMARY KEY REFERENCES sessions(session_id) ON DELETE CASCADE,
		turn_count INTEGER NOT NULL DEFAULT 0,
		total_input INTEGER NOT NULL DEFAULT 0,
		total_output INTEGER NOT NULL DEFAULT 0,
		total_cache_read INTEGER NOT NULL DEFAULT 0,
		total_cache_write_5m INTEGER NOT NULL DEFAULT 0,
		total_cache_write_1h INTEGER NOT NULL DEFAULT 0,
		total_cost REAL NOT NULL DEFAULT 0,
		tool_count INTEGER NOT NULL DEFAULT 0,
		subagent_count INTEGER NOT NULL DEFAULT 0,
		efficiency_score REAL,
		cache_hit_rate REAL NOT NULL DEFAULT 0,
		updated_at TEXT NOT NULL
	);`,

	`CREATE TABLE IF NOT EXISTS tool_uses (
		tool_use_id TEXT PRIMARY KEY,
		turn_id TEXT NOT NULL REFERENCES turns(turn_id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		input_json TEXT,
		result TEXT,
		is_error INTEGER NOT NULL DEFAULT 0
	);`,
	`CREATE INDEX IF NOT EXISTS idx_tool_uses_turn_id ON tool_uses(turn_id);`,

	`CREATE TABLE IF NOT EXISTS code_changes (
		code_change_id TEXT PRIMARY KEY,
		turn_id TEXT NOT NULL REFERENCES turns(turn_id) ON DELETE CASCADE,
		file_path TEXT NOT NULL,
		change_type TEXT NOT NULL,
		lines_added INTEGER NOT NULL DEFAULT 0,
		lines_removed INTEGER NOT NULL DEFAULT 0
	);`,
	`CREATE INDEX IF NOT EXISTS idx_code_changes_turn_id ON code_changes(turn_id);`,

	`CREATE TABLE IF NOT EXISTS subagents (
		subagent_id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL REFERENCES sessions(session_id) ON DELETE CASCADE,
		turn_id TEXT REFERENCES turns(turn_id) ON DELETE CASCADE,
		agent_id TEXT NOT NULL,
		file_path TEXT
	);`,
	`CREATE INDEX IF NOT EXISTS idx_subagents_session_id ON subagents(session_id);`,

	`CREATE TABLE IF NOT EXISTS git_info (
		session_id TEXT PRIMARY KEY REFERENCES sessions(session_id) ON DELETE CASCADE,
		branch TEXT,
		commit_sha TEXT,
		is_dirty INTEGER NOT NULL DEFAULT 0
	);`,

	`CREATE TABLE IF NOT EXISTS file_positions (
		file_path TEXT PRIMARY KEY,
		byte_position INTEGER NOT NULL DEFAULT 0,
		last_read_at TEXT NOT NULL
	);`,

	`CREATE TABLE IF NOT EXISTS pricing (
		model_id TEXT PRIMARY KEY,
		input_per_million REAL NOT NULL,
		output_per_million REAL NOT NULL,
		cache_read_per_million REAL NOT NULL,
		cache_write_5m_per_million REAL NOT NULL,
		cache_write_1h_per_million REAL NOT NULL,
		context_limit_tokens INTEGER NOT NULL DEFAULT 0
	);`,
}
