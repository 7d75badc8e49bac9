package transcript

import (
	"testing"

	"github.com/agentanalytics/agentanalytics/internal/tokens"
)

func userEntry(uuid, text string) LogEntry {
	return LogEntry{Kind: KindUser, UUID: uuid, Timestamp: "2026-07-31T10:00:00Z", Text: text}
}

func TestAggregator_S1_SingleTurn(t *testing.T) {
	a := NewAggregator()
	a.Feed(userEntry("u1", "Hello"))
	a.Feed(LogEntry{
		Kind:       KindAssistant,
		UUID:       "a1",
		Timestamp:  "2026-07-31T10:00:05Z",
		Model:      "claude-opus-4-6",
		StopReason: "end_turn",
		Text:       "Hi there",
		Usage:      tokens.Usage{Input: 100, Output: 50, CacheRead: 1000, CacheCreationLegacy: 500},
	})

	turns := a.Completed()
	if len(turns) != 1 {
		t.Fatalf("got %d turns, want 1", len(turns))
	}
	turn := turns[0]
	if turn.UserMessage != "Hello" {
		t.Errorf("user message = %q", turn.UserMessage)
	}
	if turn.Model != "claude-opus-4-6" {
		t.Errorf("model = %q", turn.Model)
	}
	u := turn.Usage.Resolved()
	if u.Input != 100 || u.Output != 50 || u.CacheRead != 1000 || u.CacheWrite5m != 500 {
		t.Fatalf("resolved usage = %+v", u)
	}
	if turn.TotalTokens != 150 {
		t.Errorf("total tokens = %d, want 150", turn.TotalTokens)
	}
	if turn.TotalContext != 1600 {
		t.Errorf("total context = %d, want 1600", turn.TotalContext)
	}
}

func TestAggregator_S2_ToolUseThenEndTurn(t *testing.T) {
	a := NewAggregator()
	a.Feed(userEntry("u1", "run a tool"))
	a.Feed(LogEntry{
		Kind:       KindAssistant,
		UUID:       "a1",
		Timestamp:  "2026-07-31T10:00:01Z",
		StopReason: "tool_use",
		HasBlocks:  true,
		Blocks: []ContentBlock{
			{Kind: BlockToolUse, ToolUseID: "K", ToolName: "Bash"},
		},
	})
	a.Feed(LogEntry{
		Kind:      KindUser,
		UUID:      "u2",
		Timestamp: "2026-07-31T10:00:02Z",
		HasBlocks: true,
		Blocks: []ContentBlock{
			{Kind: BlockToolResult, ToolUseID: "K", ToolResultContent: "ok", ToolResultIsError: false},
		},
	})
	a.Feed(LogEntry{
		Kind:       KindAssistant,
		UUID:       "a2",
		Timestamp:  "2026-07-31T10:00:03Z",
		StopReason: "end_turn",
		Text:       "done",
	})

	turns := a.Completed()
	if len(turns) != 1 {
		t.Fatalf("got %d turns, want 1", len(turns))
	}
	turn := turns[0]
	if len(turn.ToolUses) != 1 {
		t.Fatalf("got %d tool uses, want 1", len(turn.ToolUses))
	}
	tu := turn.ToolUses[0]
	if tu.Name != "Bash" || tu.Result == nil || *tu.Result != "ok" || tu.IsError {
		t.Fatalf("tool use = %+v", tu)
	}
}

func TestAggregator_S3_UnresolvedToolUse(t *testing.T) {
	a := NewAggregator()
	a.Feed(userEntry("u1", "run a tool"))
	a.Feed(LogEntry{
		Kind:       KindAssistant,
		UUID:       "a1",
		Timestamp:  "2026-07-31T10:00:01Z",
		StopReason: "end_turn",
		HasBlocks:  true,
		Blocks: []ContentBlock{
			{Kind: BlockToolUse, ToolUseID: "K", ToolName: "Read"},
		},
	})

	turns := a.Completed()
	if len(turns) != 1 {
		t.Fatalf("got %d turns, want 1", len(turns))
	}
	turn := turns[0]
	if len(turn.ToolUses) != 1 {
		t.Fatalf("got %d tool uses, want 1", len(turn.ToolUses))
	}
	tu := turn.ToolUses[0]
	if tu.Result != nil {
		t.Fatalf("expected unresolved result, got %v", *tu.Result)
	}
	if tu.IsError {
		t.Fatalf("expected is_error=false for unresolved tool use")
	}
}

func TestAggregator_S4_SubagentSidechain(t *testing.T) {
	a := NewAggregator()
	a.Feed(userEntry("u1", "delegate"))
	a.Feed(LogEntry{
		Kind:        KindAssistant,
		UUID:        "a1",
		Timestamp:   "2026-07-31T10:00:01Z",
		IsSidechain: true,
		AgentID:     "A",
		StopReason:  "end_turn",
	})

	turns := a.Completed()
	if len(turns) != 1 {
		t.Fatalf("got %d turns, want 1", len(turns))
	}
	turn := turns[0]
	if !turn.HasSubagents {
		t.Fatalf("expected has_subagents=true")
	}
	if len(turn.SubagentIDs) != 1 || turn.SubagentIDs[0] != "A" {
		t.Fatalf("subagent ids = %+v", turn.SubagentIDs)
	}
}

func TestAggregator_FlushResidualTurn(t *testing.T) {
	a := NewAggregator()
	a.Feed(userEntry("u1", "no terminal assistant entry"))
	a.Feed(LogEntry{
		Kind:      KindAssistant,
		UUID:      "a1",
		Timestamp: "2026-07-31T10:00:01Z",
		Text:      "still going",
	})

	if len(a.Completed()) != 0 {
		t.Fatalf("expected no completed turns before flush")
	}
	flushed := a.Flush()
	if flushed == nil {
		t.Fatalf("expected a residual turn to flush")
	}
	if flushed.AssistantText != "still going" {
		t.Errorf("assistant text = %q", flushed.AssistantText)
	}
	if len(a.Completed()) != 1 {
		t.Fatalf("expected 1 completed turn after flush")
	}
}

func TestAggregator_NewUserEntryCompletesPriorTurn(t *testing.T) {
	a := NewAggregator()
	a.Feed(userEntry("u1", "first"))
	a.Feed(LogEntry{Kind: KindAssistant, UUID: "a1", Timestamp: "2026-07-31T10:00:01Z", Text: "reply one"})
	a.Feed(userEntry("u2", "second"))
	a.Feed(LogEntry{Kind: KindAssistant, UUID: "a2", Timestamp: "2026-07-31T10:00:02Z", Text: "reply two", StopReason: "end_turn"})
	a.Flush()

	turns := a.Completed()
	if len(turns) != 2 {
		t.Fatalf("got %d turns, want 2", len(turns))
	}
	if turns[0].TurnNumber != 1 || turns[1].TurnNumber != 2 {
		t.Fatalf("turn numbers = %d, %d", turns[0].TurnNumber, turns[1].TurnNumber)
	}
	if turns[0].UserMessage != "first" || turns[1].UserMessage != "second" {
		t.Fatalf("user messages = %q, %q", turns[0].UserMessage, turns[1].UserMessage)
	}
}
