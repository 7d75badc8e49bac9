// Package transcript implements the log-record model, line parser, and
// turn aggregator of spec.md §4.C/§4.D: a tolerant JSONL parser plus the
// state machine that converts a stream of LogEntry into CompletedTurn
// values.
package transcript

import "github.com/agentanalytics/agentanalytics/internal/tokens"

// Kind discriminates the recognized transcript record types.
type Kind string

const (
	KindUser                Kind = "user"
	KindAssistant           Kind = "assistant"
	KindProgress            Kind = "progress"
	KindSummary             Kind = "summary"
	KindFileHistorySnapshot Kind = "file-history-snapshot"
	KindUnknown             Kind = "unknown"
)

// BlockKind discriminates ContentBlock variants.
type BlockKind string

const (
	BlockText       BlockKind = "text"
	BlockToolUse    BlockKind = "tool_use"
	BlockToolResult BlockKind = "tool_result"
	BlockThinking   BlockKind = "thinking"
	BlockOther      BlockKind = "other"
)

// ContentBlock is a tagged union over the free-form JSON content array a
// message may carry. Only one of the Kind-specific fields is populated.
// BlockOther is the explicit skip variant for block types we don't model.
type ContentBlock struct {
	Kind BlockKind

	Text string // BlockText

	ToolUseID string // BlockToolUse, BlockToolResult
	ToolName  string // BlockToolUse
	ToolInput map[string]any

	ToolResultContent string // BlockToolResult
	ToolResultIsError bool   // BlockToolResult
}

// ToolUseDescriptor is what an assistant/progress entry contributes to
// pending/resolved tool uses before a result arrives.
type ToolUseDescriptor struct {
	ID    string
	Name  string
	Input map[string]any
}

// ResolvedToolUse is a tool_use paired (or not) with its result.
type ResolvedToolUse struct {
	ID      string
	Name    string
	Input   map[string]any
	Result  *string // nil when never resolved
	IsError bool
}

// LogEntry is the immutable, parsed view of one transcript record.
type LogEntry struct {
	Kind        Kind
	UUID        string
	ParentUUID  string
	Timestamp   string // RFC-3339, raw
	SessionID   string
	AgentID     string
	IsSidechain bool
	Model       string
	StopReason  string

	// Exactly one of Text/Blocks is meaningful for user/assistant entries;
	// the parser records which via HasBlocks.
	Text     string
	Blocks   []ContentBlock
	HasBlocks bool

	Usage tokens.Usage

	// ProgressToolUse carries a progress-entry's inline tool-use descriptor,
	// if any (spec.md §4.D transition 4).
	ProgressToolUse *ToolUseDescriptor
}

// IsUserInput reports whether a user-kind entry is a user input (plain
// text or a block list with no tool_result block) per spec.md §3.
func (e LogEntry) IsUserInput() bool {
	if e.Kind != KindUser {
		return false
	}
	if !e.HasBlocks {
		return true
	}
	for _, b := range e.Blocks {
		if b.Kind == BlockToolResult {
			return false
		}
	}
	return true
}

// ToolResults returns the tool_result blocks of a user entry.
func (e LogEntry) ToolResults() []ContentBlock {
	var out []ContentBlock
	for _, b := range e.Blocks {
		if b.Kind == BlockToolResult {
			out = append(out, b)
		}
	}
	return out
}

// ToolUses returns the tool_use blocks of an assistant entry.
func (e LogEntry) ToolUses() []ContentBlock {
	var out []ContentBlock
	for _, b := range e.Blocks {
		if b.Kind == BlockToolUse {
			out = append(out, b)
		}
	}
	return out
}

// TextFragments returns the text blocks (or the plain Text field) of an
// entry, in order, without joining them.
func (e LogEntry) TextFragments() []string {
	if !e.HasBlocks {
		if e.Text == "" {
			return nil
		}
		return []string{e.Text}
	}
	var out []string
	for _, b := range e.Blocks {
		if b.Kind == BlockText && b.Text != "" {
			out = append(out, b.Text)
		}
	}
	return out
}
