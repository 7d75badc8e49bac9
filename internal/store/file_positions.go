package store

import (
	"context"
	"database/sql"
	"fmt"
)

// GetFilePosition returns the last recorded byte offset for path, or
// ok=false if the file has never been ingested. The ingestion
// coordinator re-parses a changed file from the start on every pass, so
// this records how much of the file was read last time, not a resume
// point.
func (s *Store) GetFilePosition(ctx context.Context, path string) (int64, bool, error) {
	var pos int64
	err := s.db.QueryRowContext(ctx,
		`SELECT byte_position FROM file_positions WHERE file_path = ?`, path).Scan(&pos)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("store: get file position %s: %w", path, err)
	}
	return pos, true, nil
}

// SetFilePosition records the byte offset read for path on the most
// recent ingestion pass.
func (s *Store) SetFilePosition(ctx context.Context, path string, bytePosition int64) error {
	now := s.now().UTC().Format(rfc3339)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO file_positions (file_path, byte_position, last_read_at)
		VALUES (?, ?, ?)
		ON CONFLICT(file_path) DO UPDATE SET
			byte_position = excluded.byte_position,
			last_read_at = excluded.last_read_at
	`, path, bytePosition, now)
	if err != nil {
		return fmt.Errorf("store: set file position %s: %w", path, err)
	}
	return nil
}

// ResetFilePosition zeroes a file's recorded position.
func (s *Store) ResetFilePosition(ctx context.Context, path string) error {
	return s.SetFilePosition(ctx, path, 0)
}
