package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/agentanalytics/agentanalytics/internal/antipattern"
	"github.com/agentanalytics/agentanalytics/internal/export"
	"github.com/agentanalytics/agentanalytics/internal/metrics"
	"github.com/agentanalytics/agentanalytics/internal/pricing"
	"github.com/agentanalytics/agentanalytics/internal/recommend"
	"github.com/agentanalytics/agentanalytics/internal/store"
	"github.com/agentanalytics/agentanalytics/internal/tokens"
)

// sessionView bundles one session's rows with everything the analytics
// layers need, so it only has to be assembled from the store once.
type sessionView struct {
	session store.Session
	metrics store.SessionMetrics
	turns   []store.Turn
	tools   map[string][]store.ToolUseRow
}

func loadSessionView(ctx context.Context, st *store.Store, sessionID string) (sessionView, bool, error) {
	sess, ok, err := st.GetSession(ctx, sessionID)
	if err != nil || !ok {
		return sessionView{}, ok, err
	}
	sm, _, err := st.GetSessionMetrics(ctx, sessionID)
	if err != nil {
		return sessionView{}, false, err
	}
	turns, err := st.ListTurns(ctx, sessionID)
	if err != nil {
		return sessionView{}, false, err
	}
	tools := make(map[string][]store.ToolUseRow, len(turns))
	for _, t := range turns {
		tu, err := st.ListToolUses(ctx, t.TurnID)
		if err != nil {
			return sessionView{}, false, fmt.Errorf("loading tool uses for turn %s: %w", t.TurnID, err)
		}
		tools[t.TurnID] = tu
	}
	return sessionView{session: sess, metrics: sm, turns: turns, tools: tools}, true, nil
}

// editedFiles extracts the Write|Edit file paths touched by a turn's
// tool calls, from the recorded input_json's "file_path" key.
func (v sessionView) editedFiles(turnID string) map[string]int {
	out := map[string]int{}
	for _, tu := range v.tools[turnID] {
		if tu.Name != "Write" && tu.Name != "Edit" {
			continue
		}
		path, _ := tu.Input["file_path"].(string)
		if path == "" {
			continue
		}
		out[path]++
	}
	return out
}

// lastToolErrored reports whether a turn's final tool call failed.
func (v sessionView) lastToolErrored(turnID string) bool {
	tu := v.tools[turnID]
	if len(tu) == 0 {
		return false
	}
	return tu[len(tu)-1].IsError
}

func (v sessionView) turnTokens() []metrics.TurnTokens {
	out := make([]metrics.TurnTokens, 0, len(v.turns))
	for _, t := range v.turns {
		out = append(out, metrics.TurnTokens{
			Input:        t.Input,
			Output:       t.Output,
			CacheRead:    t.CacheRead,
			CacheWrite5m: t.CacheWrite5m,
			CacheWrite1h: t.CacheWrite1h,
		})
	}
	return out
}

func (v sessionView) toAntipatternSession() antipattern.Session {
	turns := make([]antipattern.Turn, 0, len(v.turns))
	for _, t := range v.turns {
		turns = append(turns, antipattern.Turn{
			TurnNumber:           t.TurnNumber,
			DurationMs:           t.DurationMs,
			TotalCost:            t.TotalCost,
			ConsecutiveToolError: v.lastToolErrored(t.TurnID),
			FileEdits:            v.editedFiles(t.TurnID),
		})
	}
	return antipattern.Session{
		SessionID:        v.session.SessionID,
		Turns:            turns,
		TurnTokens:       v.turnTokens(),
		SubagentCount:    v.metrics.SubagentCount,
		TotalCost:        v.metrics.TotalCost,
		DeliverableUnits: metrics.DeliverableUnitsLegacy(v.metrics.TotalOutput),
	}
}

// toRecommendInput builds the per-session recommendation Input, pricing
// the session's total usage a second time at Sonnet's rates (when it
// ran on an Opus-family model) to compute the ModelSelection delta.
func (v sessionView) toRecommendInput(reg *pricing.Registry) recommend.Input {
	tt := v.turnTokens()
	cer := metrics.CER(tt)
	cgr := metrics.ContextGrowthRateB(tt)

	du := metrics.DeliverableUnitsLegacy(v.metrics.TotalOutput)
	sei, hasSEI := metrics.SEI(du, v.metrics.SubagentCount)

	modelID := ""
	if v.session.Model != nil {
		modelID = *v.session.Model
	}
	isOpus := isOpusModel(modelID)

	var opusCost, sonnetCost float64
	if isOpus {
		usage := tokens.Usage{
			Input: v.metrics.TotalInput, Output: v.metrics.TotalOutput,
			CacheRead: v.metrics.TotalCacheRead, CacheWrite5m: v.metrics.TotalCacheWrite5m,
			CacheWrite1h: v.metrics.TotalCacheWrite1h,
		}
		opusCost = v.metrics.TotalCost
		sonnetCost = tokens.Cost(usage, reg.Lookup("claude-sonnet")).Total()
	}

	turnCount := v.metrics.TurnCount
	var avgCostPerTurn float64
	if turnCount > 0 {
		avgCostPerTurn = v.metrics.TotalCost / float64(turnCount)
	}

	subagentCost := estimateSubagentCost(v.metrics)

	return recommend.Input{
		CER:                 cer,
		CacheWriteCostUSD:   estimateCacheWriteCost(v, reg),
		HasSEI:              hasSEI,
		SEI:                 sei,
		SubagentCount:       v.metrics.SubagentCount,
		SubagentCostUSD:     subagentCost,
		TotalCostUSD:        v.metrics.TotalCost,
		PrimaryModelIsOpus:  isOpus,
		OpusCostUSD:         opusCost,
		SonnetCostUSD:       sonnetCost,
		CGR:                 cgr,
		WFS:                 0,
		OES:                 oesOrZero(v.metrics.EfficiencyScore),
		TurnCount:           turnCount,
		AvgCostPerTurn:      avgCostPerTurn,
	}
}

func oesOrZero(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

func isOpusModel(modelID string) bool {
	return strings.Contains(strings.ToLower(modelID), "opus")
}

// estimateCacheWriteCost prices just the cache-write token totals at
// the session's resolved rate, for the CacheOptimization rule's savings
// calculation.
func estimateCacheWriteCost(v sessionView, reg *pricing.Registry) float64 {
	modelID := ""
	if v.session.Model != nil {
		modelID = *v.session.Model
	}
	rates := reg.Lookup(modelID)
	usage := tokens.Usage{CacheWrite5m: v.metrics.TotalCacheWrite5m, CacheWrite1h: v.metrics.TotalCacheWrite1h}
	return tokens.Cost(usage, rates).Total()
}

// estimateSubagentCost estimates the session's subagent cost as 0.3x
// of the total session cost, or 0 when the session has no subagents.
func estimateSubagentCost(m store.SessionMetrics) float64 {
	if m.SubagentCount == 0 {
		return 0
	}
	return 0.3 * m.TotalCost
}

func (v sessionView) toExportRecord() export.SessionRecord {
	model := ""
	if v.session.Model != nil {
		model = *v.session.Model
	}
	turns := make([]export.TurnRecord, 0, len(v.turns))
	for _, t := range v.turns {
		endedAt := ""
		if t.EndedAt != nil {
			endedAt = *t.EndedAt
		}
		preview := ""
		if t.UserMessage != nil {
			preview = *t.UserMessage
		}
		tools := v.tools[t.TurnID]
		names := make([]string, 0, len(tools))
		for _, tu := range tools {
			names = append(names, tu.Name)
		}
		turns = append(turns, export.TurnRecord{
			TurnNumber:         t.TurnNumber,
			StartedAt:          t.StartedAt,
			EndedAt:            endedAt,
			InputTokens:        t.Input,
			OutputTokens:       t.Output,
			CacheReadTokens:    t.CacheRead,
			CacheWriteTokens:   t.CacheWrite5m + t.CacheWrite1h,
			TotalTokens:        t.Input + t.Output,
			Cost:               t.TotalCost,
			ToolCount:          t.ToolCount,
			ToolsUsed:          names,
			UserMessagePreview: preview,
		})
	}

	var durationMs int64
	for _, t := range v.turns {
		if t.DurationMs != nil {
			durationMs += *t.DurationMs
		}
	}

	return export.SessionRecord{
		SessionID:       v.session.SessionID,
		Date:            dateOnly(v.session.StartedAt),
		ProjectName:     v.session.ProjectName,
		Model:           model,
		Turns:           v.metrics.TurnCount,
		Tokens:          v.metrics.TotalInput + v.metrics.TotalOutput,
		Cost:            v.metrics.TotalCost,
		DurationMs:      durationMs,
		EfficiencyScore: v.metrics.EfficiencyScore,
		TurnRecords:     turns,
	}
}

// billingEvents projects the session's turns into the usage-event shape
// internal/metrics' 5-hour billing-block walk expects, one event per
// turn; turns with an unparseable timestamp are skipped rather than
// distorting the block boundaries with a zero time.
func (v sessionView) billingEvents() []metrics.UsageEvent {
	out := make([]metrics.UsageEvent, 0, len(v.turns))
	for _, t := range v.turns {
		ts, err := time.Parse(time.RFC3339, t.StartedAt)
		if err != nil {
			continue
		}
		model := ""
		if t.Model != nil {
			model = *t.Model
		}
		out = append(out, metrics.UsageEvent{
			Timestamp: ts,
			Model:     model,
			CostUSD:   t.TotalCost,
			Input:     t.Input,
			Output:    t.Output,
		})
	}
	return out
}

func dateOnly(startedAt string) string {
	if len(startedAt) >= 10 {
		return startedAt[:10]
	}
	return startedAt
}
