// Package antipattern detects the six ruled-based efficiency problems
// of spec.md §4.K over a session's completed turns.
package antipattern

import (
	"math"
	"sort"

	"github.com/agentanalytics/agentanalytics/internal/metrics"
)

// Severity ranks a detected pattern for sorting and display.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

func (s Severity) rank() int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityWarning:
		return 1
	default:
		return 2
	}
}

// PatternType names one of the six rules.
type PatternType string

const (
	SubagentSprawl   PatternType = "subagent_sprawl"
	ContextChurn     PatternType = "context_churn"
	CostSpike        PatternType = "cost_spike"
	LongTurn         PatternType = "long_turn"
	ToolFailureSpree PatternType = "tool_failure_spree"
	HighReworkRatio  PatternType = "high_rework_ratio"
)

// DetectedPattern is one rule's finding.
type DetectedPattern struct {
	Type          PatternType
	Severity      Severity
	SessionID     string
	TurnNumber    *int
	Description   string
	ImpactCostUSD float64
	Suggestion    string
	MetricValue   float64
	Threshold     float64
}

// Turn is the minimal per-turn shape the rules need. ConsecutiveToolError
// and FileEdits are derived from a turn's resolved tool uses by the caller.
type Turn struct {
	TurnNumber      int
	DurationMs      *int64
	TotalCost       float64
	ConsecutiveToolError bool // true if this turn's last tool use errored
	FileEdits       map[string]int // file path -> edit count via Write|Edit in this turn
}

// Session bundles everything the rule set needs for one session.
type Session struct {
	SessionID     string
	Turns         []Turn
	TurnTokens    []metrics.TurnTokens
	SubagentCount int
	TotalCost     float64
	DeliverableUnits float64
}

const (
	seiSprawlThreshold      = 0.1
	cerChurnThreshold       = 0.4
	cerChurnMinCacheActivity = 1000
	costSpikeMultiplier     = 3.0
	costSpikeMinAvg         = 0.01
	longTurnThresholdMs     = 300_000
	toolFailureSpreeMin     = 3
	reworkRatioThreshold    = 0.4
	reworkMinEdits          = 3
)

// Detect runs every rule over a session and returns findings sorted
// severity-then-impact descending.
func Detect(s Session) []DetectedPattern {
	var out []DetectedPattern
	out = append(out, detectSubagentSprawl(s)...)
	out = append(out, detectContextChurn(s)...)
	out = append(out, detectCostSpike(s)...)
	out = append(out, detectLongTurn(s)...)
	out = append(out, detectToolFailureSpree(s)...)
	out = append(out, detectHighReworkRatio(s)...)

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Severity.rank() != out[j].Severity.rank() {
			return out[i].Severity.rank() < out[j].Severity.rank()
		}
		return out[i].ImpactCostUSD > out[j].ImpactCostUSD
	})
	return out
}

// severityLowerBetter implements "Critical if metric falls below
// threshold/2, Warning otherwise" for metrics where smaller is worse.
func severityLowerBetter(metric, threshold float64) Severity {
	if metric < threshold/2 {
		return SeverityCritical
	}
	return SeverityWarning
}

// severityHigherBetter implements "Critical if metric exceeds 2x
// threshold, Warning otherwise" for metrics where larger is worse.
func severityHigherBetter(metric, threshold float64) Severity {
	if metric > 2*threshold {
		return SeverityCritical
	}
	return SeverityWarning
}

func detectSubagentSprawl(s Session) []DetectedPattern {
	if s.SubagentCount == 0 {
		return nil
	}
	sei, ok := metrics.SEI(s.DeliverableUnits, s.SubagentCount)
	if !ok || sei >= seiSprawlThreshold {
		return nil
	}
	expected := int(math.Ceil(s.DeliverableUnits / 0.1))
	excess := s.SubagentCount - expected
	if excess <= 0 {
		return nil
	}
	avgSubagentCost := 0.3 * s.TotalCost / float64(s.SubagentCount)
	impact := float64(excess) * avgSubagentCost
	return []DetectedPattern{{
		Type:          SubagentSprawl,
		Severity:      severityLowerBetter(sei, seiSprawlThreshold),
		SessionID:     s.SessionID,
		Description:   "more subagents spawned than the work performed justifies",
		ImpactCostUSD: impact,
		Suggestion:    "consolidate delegated work into fewer subagents",
		MetricValue:   sei,
		Threshold:     seiSprawlThreshold,
	}}
}

func detectContextChurn(s Session) []DetectedPattern {
	var cacheTotal int64
	for _, t := range s.TurnTokens {
		cacheTotal += t.CacheRead + t.CacheWrite5m + t.CacheWrite1h
	}
	if cacheTotal < cerChurnMinCacheActivity {
		return nil
	}
	cer := metrics.CER(s.TurnTokens)
	if cer >= cerChurnThreshold {
		return nil
	}
	impact := 0.15 * s.TotalCost * (cerChurnThreshold - cer) * 2
	return []DetectedPattern{{
		Type:          ContextChurn,
		Severity:      severityLowerBetter(cer, cerChurnThreshold),
		SessionID:     s.SessionID,
		Description:   "low cache reuse is driving up context cost",
		ImpactCostUSD: impact,
		Suggestion:    "restructure prompts to reuse cached context instead of rebuilding it",
		MetricValue:   cer,
		Threshold:     cerChurnThreshold,
	}}
}

func detectCostSpike(s Session) []DetectedPattern {
	if len(s.Turns) == 0 {
		return nil
	}
	avg := s.TotalCost / float64(len(s.Turns))
	if avg < costSpikeMinAvg {
		return nil
	}
	var out []DetectedPattern
	for _, t := range s.Turns {
		if t.TotalCost <= costSpikeMultiplier*avg {
			continue
		}
		threshold := costSpikeMultiplier * avg
		turnNum := t.TurnNumber
		out = append(out, DetectedPattern{
			Type:          CostSpike,
			Severity:      severityHigherBetter(t.TotalCost, threshold),
			SessionID:     s.SessionID,
			TurnNumber:    &turnNum,
			Description:   "a single turn cost far more than the session average",
			ImpactCostUSD: t.TotalCost - avg,
			Suggestion:    "review this turn for an unusually large prompt or tool payload",
			MetricValue:   t.TotalCost,
			Threshold:     threshold,
		})
	}
	return out
}

func detectLongTurn(s Session) []DetectedPattern {
	if len(s.Turns) == 0 {
		return nil
	}
	avgCost := s.TotalCost / float64(len(s.Turns))
	var out []DetectedPattern
	for _, t := range s.Turns {
		if t.DurationMs == nil || *t.DurationMs <= longTurnThresholdMs {
			continue
		}
		excessMinutes := float64(*t.DurationMs-longTurnThresholdMs) / 60000
		thresholdMinutes := float64(longTurnThresholdMs) / 60000
		turnNum := t.TurnNumber
		out = append(out, DetectedPattern{
			Type:          LongTurn,
			Severity:      severityHigherBetter(float64(*t.DurationMs), longTurnThresholdMs),
			SessionID:     s.SessionID,
			TurnNumber:    &turnNum,
			Description:   "a turn ran much longer than the long-turn threshold",
			ImpactCostUSD: avgCost * (excessMinutes / thresholdMinutes),
			Suggestion:    "break up the underlying task into smaller turns",
			MetricValue:   float64(*t.DurationMs),
			Threshold:     longTurnThresholdMs,
		})
	}
	return out
}

func detectToolFailureSpree(s Session) []DetectedPattern {
	var out []DetectedPattern
	streak := 0
	streakStart := 0
	for i, t := range s.Turns {
		if t.ConsecutiveToolError {
			if streak == 0 {
				streakStart = t.TurnNumber
			}
			streak++
			continue
		}
		if streak >= toolFailureSpreeMin {
			out = append(out, toolFailureSpreeFinding(s, streakStart, streak))
		}
		streak = 0
		_ = i
	}
	if streak >= toolFailureSpreeMin {
		out = append(out, toolFailureSpreeFinding(s, streakStart, streak))
	}
	return out
}

func toolFailureSpreeFinding(s Session, streakStart, streak int) DetectedPattern {
	avgTurnCost := 0.0
	if len(s.Turns) > 0 {
		avgTurnCost = s.TotalCost / float64(len(s.Turns))
	}
	turnNum := streakStart
	return DetectedPattern{
		Type:          ToolFailureSpree,
		Severity:      severityHigherBetter(float64(streak), toolFailureSpreeMin),
		SessionID:     s.SessionID,
		TurnNumber:    &turnNum,
		Description:   "repeated consecutive tool failures suggest a stuck workflow",
		ImpactCostUSD: float64(streak) * 0.3 * avgTurnCost,
		Suggestion:    "stop and address the failing tool before continuing",
		MetricValue:   float64(streak),
		Threshold:     toolFailureSpreeMin,
	}
}

func detectHighReworkRatio(s Session) []DetectedPattern {
	editCounts := map[string]int{}
	for _, t := range s.Turns {
		for path, count := range t.FileEdits {
			editCounts[path] += count
		}
	}
	var totalEdits, reworkEdits int
	for _, count := range editCounts {
		totalEdits += count
		if count > 1 {
			reworkEdits += count - 1
		}
	}
	if totalEdits < reworkMinEdits {
		return nil
	}
	ratio := float64(reworkEdits) / float64(totalEdits)
	if ratio <= reworkRatioThreshold {
		return nil
	}
	impact := s.TotalCost * ratio * 0.5
	return []DetectedPattern{{
		Type:          HighReworkRatio,
		Severity:      severityHigherBetter(ratio, reworkRatioThreshold),
		SessionID:     s.SessionID,
		Description:   "the same files were edited repeatedly, indicating rework",
		ImpactCostUSD: impact,
		Suggestion:    "plan file changes more fully before editing to reduce repeated passes",
		MetricValue:   ratio,
		Threshold:     reworkRatioThreshold,
	}}
}
