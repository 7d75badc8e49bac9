package store

import (
	"context"
	"database/sql"
	"fmt"
)

// SessionMetrics is the row shape of session_metrics.
type SessionMetrics struct {
	SessionID         string
	TurnCount         int
	TotalInput        int64
	TotalOutput       int64
	TotalCacheRead    int64
	TotalCacheWrite5m int64
	TotalCacheWrite1h int64
	TotalCost         float64
	ToolCount         int
	SubagentCount     int
	EfficiencyScore   *float64
	CacheHitRate      float64
}

// UpsertSessionMetrics replaces the aggregate row for a session.
func (s *Store) UpsertSessionMetrics(ctx context.Context, m SessionMetrics) error {
	now := s.now().UTC().Format(rfc3339)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO session_metrics (session_id, turn_count, total_input, total_output,
			total_cache_read, total_cache_write_5m, total_cache_write_1h, total_cost,
			tool_count, subagent_count, efficiency_score, cache_hit_rate, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			turn_count = excluded.turn_count,
			total_input = excluded.total_input,
			total_output = excluded.total_output,
			total_cache_read = excluded.total_cache_read,
			total_cache_write_5m = excluded.total_cache_write_5m,
			total_cache_write_1h = excluded.total_cache_write_1h,
			total_cost = excluded.total_cost,
			tool_count = excluded.tool_count,
			subagent_count = excluded.subagent_count,
			efficiency_score = excluded.efficiency_score,
			cache_hit_rate = excluded.cache_hit_rate,
			updated_at = excluded.updated_at
	`,
		m.SessionID, m.TurnCount, m.TotalInput, m.TotalOutput, m.TotalCacheRead,
		m.TotalCacheWrite5m, m.TotalCacheWrite1h, m.TotalCost, m.ToolCount, m.SubagentCount,
		m.EfficiencyScore, m.CacheHitRate, now,
	)
	if err != nil {
		return fmt.Errorf("store: upsert session_metrics %s: %w", m.SessionID, err)
	}
	return nil
}

// GetSessionMetrics fetches the aggregate row for a session.
func (s *Store) GetSessionMetrics(ctx context.Context, sessionID string) (SessionMetrics, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT session_id, turn_count, total_input, total_output, total_cache_read,
			total_cache_write_5m, total_cache_write_1h, total_cost, tool_count,
			subagent_count, efficiency_score, cache_hit_rate
		FROM session_metrics WHERE session_id = ?`, sessionID)

	var m SessionMetrics
	err := row.Scan(&m.SessionID, &m.TurnCount, &m.TotalInput, &m.TotalOutput, &m.TotalCacheRead,
		&m.TotalCacheWrite5m, &m.TotalCacheWrite1h, &m.TotalCost, &m.ToolCount,
		&m.SubagentCount, &m.EfficiencyScore, &m.CacheHitRate)
	if err == sql.ErrNoRows {
		return SessionMetrics{}, false, nil
	}
	if err != nil {
		return SessionMetrics{}, false, fmt.Errorf("store: get session_metrics %s: %w", sessionID, err)
	}
	return m, true, nil
}

// UpsertSubagent records one subagent sighting for a session/turn.
func (s *Store) UpsertSubagent(ctx context.Context, subagentID, sessionID, turnID, agentID, filePath string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO subagents (subagent_id, session_id, turn_id, agent_id, file_path)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(subagent_id) DO UPDATE SET
			turn_id = excluded.turn_id,
			file_path = excluded.file_path
	`, subagentID, sessionID, nullableString(turnID), agentID, nullableString(filePath))
	if err != nil {
		return fmt.Errorf("store: upsert subagent %s: %w", subagentID, err)
	}
	return nil
}

func nullableString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
