package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Session is the row shape of the sessions table.
type Session struct {
	SessionID      string
	ProjectPath    string
	ProjectName    string
	Branch         *string
	StartedAt      string
	LastActivityAt string
	Model          *string
	IsActive       bool
	FilePath       string
	FileMtime      *int64
}

// UpsertSession inserts or updates a session row by session_id,
// refreshing updated_at to now.
func (s *Store) UpsertSession(ctx context.Context, sess Session) error {
	now := s.now().UTC().Format(rfc3339)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (session_id, project_path, project_name, branch, started_at,
			last_activity_at, model, is_active, file_path, file_mtime, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			project_path = excluded.project_path,
			project_name = excluded.project_name,
			branch = excluded.branch,
			last_activity_at = excluded.last_activity_at,
			model = excluded.model,
			is_active = excluded.is_active,
			file_path = excluded.file_path,
			file_mtime = excluded.file_mtime,
			updated_at = excluded.updated_at
	`,
		sess.SessionID, sess.ProjectPath, sess.ProjectName, sess.Branch, sess.StartedAt,
		sess.LastActivityAt, sess.Model, boolToInt(sess.IsActive), sess.FilePath, sess.FileMtime,
		now, now,
	)
	if err != nil {
		return fmt.Errorf("store: upsert session %s: %w", sess.SessionID, err)
	}
	return nil
}

// GetSession fetches one session by id, or ok=false if it doesn't exist.
func (s *Store) GetSession(ctx context.Context, sessionID string) (Session, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT session_id, project_path, project_name, branch, started_at,
			last_activity_at, model, is_active, file_path, file_mtime
		FROM sessions WHERE session_id = ?`, sessionID)

	var sess Session
	var isActive int
	err := row.Scan(&sess.SessionID, &sess.ProjectPath, &sess.ProjectName, &sess.Branch,
		&sess.StartedAt, &sess.LastActivityAt, &sess.Model, &isActive, &sess.FilePath, &sess.FileMtime)
	if err == sql.ErrNoRows {
		return Session{}, false, nil
	}
	if err != nil {
		return Session{}, false, fmt.Errorf("store: get session %s: %w", sessionID, err)
	}
	sess.IsActive = isActive != 0
	return sess, true, nil
}

// ListSessionsByProject returns sessions for a project, most recently
// active first.
func (s *Store) ListSessionsByProject(ctx context.Context, projectPath string) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, project_path, project_name, branch, started_at,
			last_activity_at, model, is_active, file_path, file_mtime
		FROM sessions WHERE project_path = ? ORDER BY last_activity_at DESC`, projectPath)
	if err != nil {
		return nil, fmt.Errorf("store: list sessions for %s: %w", projectPath, err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var sess Session
		var isActive int
		if err := rows.Scan(&sess.SessionID, &sess.ProjectPath, &sess.ProjectName, &sess.Branch,
			&sess.StartedAt, &sess.LastActivityAt, &sess.Model, &isActive, &sess.FilePath, &sess.FileMtime); err != nil {
			return nil, fmt.Errorf("store: scan session row: %w", err)
		}
		sess.IsActive = isActive != 0
		out = append(out, sess)
	}
	return out, rows.Err()
}

// ListSessions returns every session in the store, most recently
// active first. Used by fleet-wide reporting and export.
func (s *Store) ListSessions(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, project_path, project_name, branch, started_at,
			last_activity_at, model, is_active, file_path, file_mtime
		FROM sessions ORDER BY last_activity_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("store: list sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var sess Session
		var isActive int
		if err := rows.Scan(&sess.SessionID, &sess.ProjectPath, &sess.ProjectName, &sess.Branch,
			&sess.StartedAt, &sess.LastActivityAt, &sess.Model, &isActive, &sess.FilePath, &sess.FileMtime); err != nil {
			return nil, fmt.Errorf("store: scan session row: %w", err)
		}
		sess.IsActive = isActive != 0
		out = append(out, sess)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

const rfc3339 = "2006-01-02T15:04:05Z07:00"
