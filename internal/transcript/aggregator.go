package transcript

import (
	"strings"
	"time"

	"github.com/agentanalytics/agentanalytics/internal/tokens"
)

// PartialTurn is the transient, in-progress turn owned exclusively by one
// Aggregator. It is never shared or locked (spec.md §9).
type PartialTurn struct {
	TurnNumber int
	StartedAt  string
	StartUUID  string

	UserMessage string

	assistantFragments []string
	Usage              tokens.Usage
	Model              string
	StopReason         string

	EndedAt string
	EndUUID string

	// pendingToolUses is keyed by tool-use id for O(1) removal on
	// resolution; iteration order is never observed.
	pendingToolUses map[string]ToolUseDescriptor
	// pendingOrder preserves insertion order so flush/resolve produce a
	// deterministic ToolUses slice.
	pendingOrder []string

	ToolUses []ResolvedToolUse

	subagentIDs    map[string]struct{}
	subagentOrder  []string

	EntryCount int
}

func newPartialTurn(turnNumber int, entry LogEntry) *PartialTurn {
	return &PartialTurn{
		TurnNumber:      turnNumber,
		StartedAt:       entry.Timestamp,
		StartUUID:       entry.UUID,
		UserMessage:     firstNonEmpty(entry.TextFragments()),
		pendingToolUses: make(map[string]ToolUseDescriptor),
		subagentIDs:     make(map[string]struct{}),
	}
}

func firstNonEmpty(fragments []string) string {
	if len(fragments) == 0 {
		return ""
	}
	return strings.Join(fragments, "\n")
}

// CompletedTurn is the immutable, value-typed output of the aggregator.
type CompletedTurn struct {
	TurnNumber      int
	StartedAt       string
	StartUUID       string
	UserMessage     string
	AssistantText   string
	Usage           tokens.Usage
	Model           string
	StopReason      string
	EndedAt         string
	EndUUID         string
	ToolUses        []ResolvedToolUse
	SubagentIDs     []string
	EntryCount      int

	TotalTokens  int64
	TotalContext int64
	ToolCount    int
	HasSubagents bool
	DurationMs   *int64
}

// Aggregator is the turn state machine of spec.md §4.D. State: a single
// optional current PartialTurn, a monotonically increasing turn number,
// and a sink of completed turns.
type Aggregator struct {
	current    *PartialTurn
	turnNumber int
	completed  []CompletedTurn
}

// NewAggregator returns an aggregator in its initial state.
func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// Feed applies one LogEntry transition.
func (a *Aggregator) Feed(entry LogEntry) {
	switch entry.Kind {
	case KindUser:
		if entry.IsUserInput() {
			a.completeCurrent()
			a.turnNumber++
			a.current = newPartialTurn(a.turnNumber, entry)
			return
		}
		a.applyToolResults(entry)
	case KindAssistant:
		a.applyAssistant(entry)
	case KindProgress:
		a.applyProgress(entry)
	default:
		if a.current != nil {
			a.current.EntryCount++
		}
	}
}

// applyToolResults handles transition 2: a user entry carrying
// tool_result blocks.
func (a *Aggregator) applyToolResults(entry LogEntry) {
	if a.current == nil {
		return
	}
	for _, block := range entry.ToolResults() {
		pending, ok := a.current.pendingToolUses[block.ToolUseID]
		if !ok {
			continue // missing match: drop silently
		}
		delete(a.current.pendingToolUses, block.ToolUseID)
		a.current.pendingOrder = removeID(a.current.pendingOrder, block.ToolUseID)

		result := block.ToolResultContent
		a.current.ToolUses = append(a.current.ToolUses, ResolvedToolUse{
			ID:      pending.ID,
			Name:    pending.Name,
			Input:   pending.Input,
			Result:  &result,
			IsError: block.ToolResultIsError,
		})
	}
}

// applyAssistant handles transition 3.
func (a *Aggregator) applyAssistant(entry LogEntry) {
	if a.current == nil {
		return // discarded: no preceding user entry
	}

	a.current.Usage = a.current.Usage.Add(entry.Usage)
	if a.current.Model == "" && entry.Model != "" {
		a.current.Model = entry.Model
	}
	if frags := entry.TextFragments(); len(frags) > 0 {
		a.current.assistantFragments = append(a.current.assistantFragments, frags...)
	}

	for _, block := range entry.ToolUses() {
		desc := ToolUseDescriptor{ID: block.ToolUseID, Name: block.ToolName, Input: block.ToolInput}
		if _, exists := a.current.pendingToolUses[desc.ID]; !exists {
			a.current.pendingOrder = append(a.current.pendingOrder, desc.ID)
		}
		a.current.pendingToolUses[desc.ID] = desc
	}

	a.current.StopReason = entry.StopReason

	if entry.IsSidechain && entry.AgentID != "" {
		if _, exists := a.current.subagentIDs[entry.AgentID]; !exists {
			a.current.subagentIDs[entry.AgentID] = struct{}{}
			a.current.subagentOrder = append(a.current.subagentOrder, entry.AgentID)
		}
	}

	if entry.StopReason == "end_turn" {
		a.current.EndedAt = entry.Timestamp
		a.current.EndUUID = entry.UUID
		a.flushPendingAsUnresolved()
		a.completeCurrent()
	}
}

// applyProgress handles transition 4: a progress entry describing a tool
// use not already represented by name.
func (a *Aggregator) applyProgress(entry LogEntry) {
	if a.current == nil || entry.ProgressToolUse == nil {
		if a.current != nil {
			a.current.EntryCount++
		}
		return
	}
	desc := entry.ProgressToolUse
	if a.toolUseKnownByName(desc.Name) {
		a.current.EntryCount++
		return
	}
	a.current.ToolUses = append(a.current.ToolUses, ResolvedToolUse{
		ID:    desc.ID,
		Name:  desc.Name,
		Input: desc.Input,
	})
}

func (a *Aggregator) toolUseKnownByName(name string) bool {
	if name == "" {
		return false
	}
	for _, tu := range a.current.ToolUses {
		if tu.Name == name {
			return true
		}
	}
	for _, desc := range a.current.pendingToolUses {
		if desc.Name == name {
			return true
		}
	}
	return false
}

// flushPendingAsUnresolved resolves any still-pending tool_uses with a
// nil result, per transition 3's end_turn handling.
func (a *Aggregator) flushPendingAsUnresolved() {
	for _, id := range a.current.pendingOrder {
		desc, ok := a.current.pendingToolUses[id]
		if !ok {
			continue
		}
		a.current.ToolUses = append(a.current.ToolUses, ResolvedToolUse{
			ID:    desc.ID,
			Name:  desc.Name,
			Input: desc.Input,
		})
	}
	a.current.pendingToolUses = make(map[string]ToolUseDescriptor)
	a.current.pendingOrder = nil
}

// completeCurrent materializes the current PartialTurn (if any) into a
// CompletedTurn and resets current to none.
func (a *Aggregator) completeCurrent() {
	if a.current == nil {
		return
	}
	a.completed = append(a.completed, materialize(a.current))
	a.current = nil
}

// Flush performs Complete on any residual current turn and returns it (or
// nil if there was none). Callers must call Flush at end-of-stream.
func (a *Aggregator) Flush() *CompletedTurn {
	if a.current == nil {
		return nil
	}
	turn := materialize(a.current)
	a.completed = append(a.completed, turn)
	a.current = nil
	return &turn
}

// Completed returns all turns completed so far (not including a residual
// current turn — call Flush first for that).
func (a *Aggregator) Completed() []CompletedTurn {
	out := make([]CompletedTurn, len(a.completed))
	copy(out, a.completed)
	return out
}

func materialize(p *PartialTurn) CompletedTurn {
	t := CompletedTurn{
		TurnNumber:    p.TurnNumber,
		StartedAt:     p.StartedAt,
		StartUUID:     p.StartUUID,
		UserMessage:   p.UserMessage,
		AssistantText: strings.Join(p.assistantFragments, "\n"),
		Usage:         p.Usage,
		Model:         p.Model,
		StopReason:    p.StopReason,
		EndedAt:       p.EndedAt,
		EndUUID:       p.EndUUID,
		ToolUses:      append([]ResolvedToolUse(nil), p.ToolUses...),
		SubagentIDs:   append([]string(nil), p.subagentOrder...),
		EntryCount:    p.EntryCount,
	}
	resolved := t.Usage.Resolved()
	t.TotalTokens = resolved.TotalTokens()
	t.TotalContext = resolved.TotalContext()
	t.ToolCount = len(t.ToolUses)
	t.HasSubagents = len(t.SubagentIDs) > 0
	t.DurationMs = computeDuration(t.StartedAt, t.EndedAt)
	return t
}

func computeDuration(startedAt, endedAt string) *int64 {
	if startedAt == "" || endedAt == "" {
		return nil
	}
	start, err := time.Parse(time.RFC3339, startedAt)
	if err != nil {
		return nil
	}
	end, err := time.Parse(time.RFC3339, endedAt)
	if err != nil {
		return nil
	}
	ms := end.Sub(start).Milliseconds()
	return &ms
}

func removeID(ids []string, target string) []string {
	out := ids[:0]
	for _, id := range ids {
		if id != target {
			out = append(out, id)
		}
	}
	return out
}
