package export

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"
	"time"
)

func TestFilename(t *testing.T) {
	at := time.Date(2026, 7, 31, 9, 5, 3, 0, time.UTC)
	got := Filename("sessions", "csv", at)
	want := "sessions_20260731_090503.csv"
	if got != want {
		t.Fatalf("Filename = %q, want %q", got, want)
	}
}

func TestTruncatePreview(t *testing.T) {
	short := "hello"
	if got := TruncatePreview(short, 100); got != short {
		t.Fatalf("TruncatePreview short = %q", got)
	}
	long := strings.Repeat("a", 150)
	got := TruncatePreview(long, 100)
	if len(got) != 103 || !strings.HasSuffix(got, "...") {
		t.Fatalf("TruncatePreview long = %q (len %d)", got, len(got))
	}
}

func TestWriteSessionCSV_HeaderAndRows(t *testing.T) {
	eff := 0.82
	sessions := []SessionRecord{
		{SessionID: "s1", Date: "2026-07-31", ProjectName: "myapp", Model: "claude-opus-4-6", Turns: 3, Tokens: 1000, Cost: 1.25, DurationMs: 5000, EfficiencyScore: &eff},
	}
	var buf bytes.Buffer
	if err := WriteSessionCSV(&buf, sessions); err != nil {
		t.Fatal(err)
	}
	r := csv.NewReader(&buf)
	rows, err := r.ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2 (header+1)", len(rows))
	}
	if rows[0][0] != "session_id" || rows[0][8] != "efficiency_score" {
		t.Fatalf("header = %v", rows[0])
	}
	if rows[1][0] != "s1" || rows[1][8] != "0.82" {
		t.Fatalf("row = %v", rows[1])
	}
}

func TestWriteSessionCSV_NilEfficiencyIsEmpty(t *testing.T) {
	sessions := []SessionRecord{{SessionID: "s1"}}
	var buf bytes.Buffer
	if err := WriteSessionCSV(&buf, sessions); err != nil {
		t.Fatal(err)
	}
	r := csv.NewReader(&buf)
	rows, err := r.ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if rows[1][8] != "" {
		t.Fatalf("efficiency_score = %q, want empty", rows[1][8])
	}
}

func TestWriteTurnCSV_FlattensSessionAndTurn(t *testing.T) {
	sessions := []SessionRecord{
		{
			SessionID: "s1", Date: "2026-07-31", ProjectName: "myapp",
			TurnRecords: []TurnRecord{
				{TurnNumber: 1, InputTokens: 100, OutputTokens: 50, TotalTokens: 150, Cost: 0.01, ToolsUsed: []string{"Bash", "Read"}, UserMessagePreview: "hi"},
			},
		},
	}
	var buf bytes.Buffer
	if err := WriteTurnCSV(&buf, sessions); err != nil {
		t.Fatal(err)
	}
	r := csv.NewReader(&buf)
	rows, err := r.ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	// session_id, date, project_name, model, turns, tokens, cost, duration_ms, efficiency_score (9 cols)
	// then turn_number, started_at, ended_at, input_tokens, output_tokens, cache_read_tokens,
	// cache_write_tokens, total_tokens, cost, tool_count, tools_used, user_message_preview (12 cols)
	if len(rows[1]) != 21 {
		t.Fatalf("got %d columns, want 21: %v", len(rows[1]), rows[1])
	}
	if rows[1][0] != "s1" || rows[1][9] != "1" || rows[1][19] != "Bash,Read" {
		t.Fatalf("row = %v", rows[1])
	}
}

func TestBuildEnvelope_OmitsTurnsWhenNotRequested(t *testing.T) {
	sessions := []SessionRecord{
		{SessionID: "s1", Turns: 2, TurnRecords: []TurnRecord{{TurnNumber: 1}, {TurnNumber: 2}}},
	}
	env := BuildEnvelope(time.Now(), sessions, false, nil, nil)
	if env.ExportVersion != "1.0.0" {
		t.Fatalf("export version = %q", env.ExportVersion)
	}
	if env.TotalSessions != 1 || env.TotalTurns != 2 {
		t.Fatalf("env = %+v", env)
	}
	if env.Sessions[0].TurnDetail != nil {
		t.Fatalf("expected turn detail omitted, got %+v", env.Sessions[0].TurnDetail)
	}

	env2 := BuildEnvelope(time.Now(), sessions, true, nil, nil)
	if len(env2.Sessions[0].TurnDetail) != 2 {
		t.Fatalf("expected turn detail included, got %+v", env2.Sessions[0].TurnDetail)
	}
}

func TestBuildSummary(t *testing.T) {
	sessions := []SessionRecord{
		{Date: "2026-07-30", Cost: 1.0, Tokens: 100, Turns: 2},
		{Date: "2026-07-31", Cost: 3.0, Tokens: 300, Turns: 2},
	}
	sum := BuildSummary(sessions)
	if sum.TotalCost != 4.0 || sum.TotalTokens != 400 {
		t.Fatalf("sum = %+v", sum)
	}
	if sum.AvgCostPerTurn != 1.0 {
		t.Fatalf("avg cost per turn = %v, want 1.0", sum.AvgCostPerTurn)
	}
	if sum.MinDate != "2026-07-30" || sum.MaxDate != "2026-07-31" {
		t.Fatalf("date range = %v..%v", sum.MinDate, sum.MaxDate)
	}
}

func TestWriteJSON_RoundTripsValidJSON(t *testing.T) {
	env := BuildEnvelope(time.Now(), []SessionRecord{{SessionID: "s1"}}, false, nil, nil)
	var buf bytes.Buffer
	if err := WriteJSON(&buf, env); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `"session_id": "s1"`) {
		t.Fatalf("output missing session_id: %s", buf.String())
	}
}
