package transcript

import (
	"encoding/json"
	"fmt"

	"github.com/agentanalytics/agentanalytics/internal/tokens"
)

// SkipReason explains why a line did not produce a LogEntry. Malformed
// JSON, entries missing "type", and unknown kinds are all tolerated —
// they yield a skip, never a fatal error, per spec.md §4.C.
type SkipReason string

const (
	SkipMalformedJSON  SkipReason = "malformed_json"
	SkipEmptyLine      SkipReason = "empty_line"
	SkipMissingType    SkipReason = "missing_type"
	SkipUnknownKind    SkipReason = "unknown_kind"
)

// rawEntry mirrors the on-disk JSON shape. Extra unknown fields are
// tolerated automatically by encoding/json.
type rawEntry struct {
	Type        string          `json:"type"`
	UUID        string          `json:"uuid"`
	ParentUUID  string          `json:"parentUuid"`
	Timestamp   string          `json:"timestamp"`
	SessionID   string          `json:"sessionId"`
	AgentID     string          `json:"agentId"`
	IsSidechain bool            `json:"isSidechain"`
	Message     *rawMessage     `json:"message"`
	ToolUseID   string          `json:"tool_use_id"`
	ToolName    string          `json:"tool_name"`
	ToolInput   json.RawMessage `json:"tool_input"`
}

type rawMessage struct {
	Role       string          `json:"role"`
	Model      string          `json:"model"`
	StopReason string          `json:"stop_reason"`
	Content    json.RawMessage `json:"content"`
	Usage      *rawUsage       `json:"usage"`
}

type rawUsage struct {
	InputTokens              int64          `json:"input_tokens"`
	OutputTokens             int64          `json:"output_tokens"`
	CacheReadInputTokens     int64          `json:"cache_read_input_tokens"`
	CacheCreationInputTokens int64          `json:"cache_creation_input_tokens"`
	CacheCreation            *rawCacheSplit `json:"cache_creation"`
}

type rawCacheSplit struct {
	Ephemeral5mInputTokens int64 `json:"ephemeral_5m_input_tokens"`
	Ephemeral1hInputTokens int64 `json:"ephemeral_1h_input_tokens"`
}

type rawContentBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text"`
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Input     json.RawMessage `json:"input"`
	ToolUseID string          `json:"tool_use_id"`
	Content   json.RawMessage `json:"content"`
	IsError   bool            `json:"is_error"`
}

// ParseLine parses a single JSONL line into a LogEntry, or returns a
// SkipReason when the line is malformed, has no recognized type, or
// encodes a kind we don't model.
func ParseLine(line []byte) (LogEntry, SkipReason, bool) {
	if len(line) == 0 {
		return LogEntry{}, SkipEmptyLine, false
	}

	var raw rawEntry
	if err := json.Unmarshal(line, &raw); err != nil {
		return LogEntry{}, SkipMalformedJSON, false
	}
	if raw.Type == "" {
		return LogEntry{}, SkipMissingType, false
	}

	kind := classifyKind(raw.Type)
	if kind == KindUnknown {
		return LogEntry{}, SkipUnknownKind, false
	}

	entry := LogEntry{
		Kind:        kind,
		UUID:        raw.UUID,
		ParentUUID:  raw.ParentUUID,
		Timestamp:   raw.Timestamp,
		SessionID:   raw.SessionID,
		AgentID:     raw.AgentID,
		IsSidechain: raw.IsSidechain,
	}

	if raw.Message != nil {
		entry.Model = raw.Message.Model
		entry.StopReason = raw.Message.StopReason
		entry.Usage = usageFromRaw(raw.Message.Usage)
		parseContent(&entry, raw.Message.Content)
	}

	if kind == KindProgress && raw.ToolUseID != "" {
		var input map[string]any
		_ = json.Unmarshal(raw.ToolInput, &input)
		entry.ProgressToolUse = &ToolUseDescriptor{
			ID:    raw.ToolUseID,
			Name:  raw.ToolName,
			Input: input,
		}
	}

	return entry, "", true
}

func classifyKind(t string) Kind {
	switch t {
	case string(KindUser):
		return KindUser
	case string(KindAssistant):
		return KindAssistant
	case string(KindProgress):
		return KindProgress
	case string(KindSummary):
		return KindSummary
	case string(KindFileHistorySnapshot):
		return KindFileHistorySnapshot
	default:
		return KindUnknown
	}
}

func usageFromRaw(u *rawUsage) tokens.Usage {
	if u == nil {
		return tokens.Usage{}
	}
	out := tokens.Usage{
		Input:               u.InputTokens,
		Output:              u.OutputTokens,
		CacheRead:            u.CacheReadInputTokens,
		CacheCreationLegacy:  u.CacheCreationInputTokens,
	}
	if u.CacheCreation != nil {
		out.CacheWrite5m = u.CacheCreation.Ephemeral5mInputTokens
		out.CacheWrite1h = u.CacheCreation.Ephemeral1hInputTokens
	}
	return out
}

// parseContent handles message.content as either a plain string or a
// list of content-blocks.
func parseContent(entry *LogEntry, raw json.RawMessage) {
	if len(raw) == 0 {
		return
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		entry.Text = asString
		entry.HasBlocks = false
		return
	}

	var rawBlocks []rawContentBlock
	if err := json.Unmarshal(raw, &rawBlocks); err != nil {
		// Neither a string nor a block list: treat as absent content.
		return
	}

	entry.HasBlocks = true
	for _, rb := range rawBlocks {
		entry.Blocks = append(entry.Blocks, blockFromRaw(rb))
	}
}

func blockFromRaw(rb rawContentBlock) ContentBlock {
	switch rb.Type {
	case "text":
		return ContentBlock{Kind: BlockText, Text: rb.Text}
	case "tool_use":
		var input map[string]any
		_ = json.Unmarshal(rb.Input, &input)
		return ContentBlock{
			Kind:      BlockToolUse,
			ToolUseID: rb.ID,
			ToolName:  rb.Name,
			ToolInput: input,
		}
	case "tool_result":
		return ContentBlock{
			Kind:              BlockToolResult,
			ToolUseID:         rb.ToolUseID,
			ToolResultContent: toolResultText(rb.Content),
			ToolResultIsError: rb.IsError,
		}
	case "thinking":
		return ContentBlock{Kind: BlockThinking, Text: rb.Text}
	default:
		return ContentBlock{Kind: BlockOther}
	}
}

// toolResultText renders a tool_result's content (string or structured
// value) down to a display string.
func toolResultText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return asString
	}
	return fmt.Sprintf("%s", raw)
}
