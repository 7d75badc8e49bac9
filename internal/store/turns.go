package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// Turn is the row shape of the turns table joined with turn_metrics.
type Turn struct {
	TurnID           string
	SessionID        string
	TurnNumber       int
	StartedAt        string
	EndedAt          *string
	DurationMs       *int64
	UserMessage      *string
	AssistantMessage *string
	Model            *string
	StopReason       *string

	Input            int64
	Output           int64
	CacheRead        int64
	CacheWrite5m     int64
	CacheWrite1h     int64
	TotalCost        float64
	ContextUsagePct  float64
	ToolCount        int
}

// ToolUseRow is the row shape of the tool_uses table.
type ToolUseRow struct {
	ToolUseID string
	TurnID    string
	Name      string
	Input     map[string]any
	Result    *string
	IsError   bool
}

// UpsertTurn inserts or replaces a turn and its metrics row in one
// transaction, keyed by turn_id (idempotent re-ingestion).
func (s *Store) UpsertTurn(ctx context.Context, t Turn, toolUses []ToolUseRow) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx for turn %s: %w", t.TurnID, err)
	}
	defer tx.Rollback()

	now := s.now().UTC().Format(rfc3339)
	_, err = tx.ExecContext(ctx, `
		INSERT INTO turns (turn_id, session_id, turn_number, started_at, ended_at, duration_ms,
			user_message, assistant_message, model, stop_reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(turn_id) DO UPDATE SET
			ended_at = excluded.ended_at,
			duration_ms = excluded.duration_ms,
			user_message = excluded.user_message,
			assistant_message = excluded.assistant_message,
			model = excluded.model,
			stop_reason = excluded.stop_reason
	`,
		t.TurnID, t.SessionID, t.TurnNumber, t.StartedAt, t.EndedAt, t.DurationMs,
		t.UserMessage, t.AssistantMessage, t.Model, t.StopReason, now,
	)
	if err != nil {
		return fmt.Errorf("store: upsert turn %s: %w", t.TurnID, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO turn_metrics (turn_id, input, output, cache_read, cache_write_5m,
			cache_write_1h, total_cost, context_usage_pct, tool_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(turn_id) DO UPDATE SET
			input = excluded.input,
			output = excluded.output,
			cache_read = excluded.cache_read,
			cache_write_5m = excluded.cache_write_5m,
			cache_write_1h = excluded.cache_write_1h,
			total_cost = excluded.total_cost,
			context_usage_pct = excluded.context_usage_pct,
			tool_count = excluded.tool_count
	`,
		t.TurnID, t.Input, t.Output, t.CacheRead, t.CacheWrite5m, t.CacheWrite1h,
		t.TotalCost, t.ContextUsagePct, t.ToolCount,
	)
	if err != nil {
		return fmt.Errorf("store: upsert turn_metrics %s: %w", t.TurnID, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM tool_uses WHERE turn_id = ?`, t.TurnID); err != nil {
		return fmt.Errorf("store: clear tool_uses for turn %s: %w", t.TurnID, err)
	}
	for _, tu := range toolUses {
		var inputJSON []byte
		if tu.Input != nil {
			inputJSON, err = json.Marshal(tu.Input)
			if err != nil {
				return fmt.Errorf("store: marshal tool input: %w", err)
			}
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO tool_uses (tool_use_id, turn_id, name, input_json, result, is_error)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(tool_use_id) DO UPDATE SET
				result = excluded.result,
				is_error = excluded.is_error
		`, tu.ToolUseID, t.TurnID, tu.Name, string(inputJSON), tu.Result, boolToInt(tu.IsError))
		if err != nil {
			return fmt.Errorf("store: upsert tool_use %s: %w", tu.ToolUseID, err)
		}
	}

	return tx.Commit()
}

// ListToolUses returns every tool invocation recorded for a turn, in
// insertion order.
func (s *Store) ListToolUses(ctx context.Context, turnID string) ([]ToolUseRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tool_use_id, turn_id, name, input_json, result, is_error
		FROM tool_uses WHERE turn_id = ?`, turnID)
	if err != nil {
		return nil, fmt.Errorf("store: list tool_uses for %s: %w", turnID, err)
	}
	defer rows.Close()

	var out []ToolUseRow
	for rows.Next() {
		var tu ToolUseRow
		var inputJSON, result sql.NullString
		var isError int
		if err := rows.Scan(&tu.ToolUseID, &tu.TurnID, &tu.Name, &inputJSON, &result, &isError); err != nil {
			return nil, fmt.Errorf("store: scan tool_use row: %w", err)
		}
		if inputJSON.String != "" {
			var m map[string]any
			if err := json.Unmarshal([]byte(inputJSON.String), &m); err == nil {
				tu.Input = m
			}
		}
		if result.Valid {
			r := result.String
			tu.Result = &r
		}
		tu.IsError = isError != 0
		out = append(out, tu)
	}
	return out, rows.Err()
}

// ListTurns returns every turn of a session ordered by turn_number.
func (s *Store) ListTurns(ctx context.Context, sessionID string) ([]Turn, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.turn_id, t.session_id, t.turn_number, t.started_at, t.ended_at, t.duration_ms,
			t.user_message, t.assistant_message, t.model, t.stop_reason,
			m.input, m.output, m.cache_read, m.cache_write_5m, m.cache_write_1h,
			m.total_cost, m.context_usage_pct, m.tool_count
		FROM turns t JOIN turn_metrics m ON m.turn_id = t.turn_id
		WHERE t.session_id = ? ORDER BY t.turn_number ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("store: list turns for %s: %w", sessionID, err)
	}
	defer rows.Close()

	var out []Turn
	for rows.Next() {
		var t Turn
		if err := rows.Scan(&t.TurnID, &t.SessionID, &t.TurnNumber, &t.StartedAt, &t.EndedAt, &t.DurationMs,
			&t.UserMessage, &t.AssistantMessage, &t.Model, &t.StopReason,
			&t.Input, &t.Output, &t.CacheRead, &t.CacheWrite5m, &t.CacheWrite1h,
			&t.TotalCost, &t.ContextUsagePct, &t.ToolCount); err != nil {
			return nil, fmt.Errorf("store: scan turn row: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
