// Package recommend derives prioritized, confidence-weighted
// recommendations from aggregated session (or fleet) metrics, per
// spec.md §4.L.
package recommend

import (
	"math"
	"sort"
)

// Type names one of the eight recommendation rules. SubagentStrategy and
// WorkflowOptimization each have two distinct triggers sharing one type
// weight.
type Type string

const (
	CacheOptimization    Type = "cache_optimization"
	SubagentStrategy     Type = "subagent_strategy"
	ModelSelection       Type = "model_selection"
	WorkflowOptimization Type = "workflow_optimization"
	EfficiencyImprovement Type = "efficiency_improvement"
	CostSaving           Type = "cost_saving"
)

var typeWeight = map[Type]float64{
	CostSaving:            1.0,
	ModelSelection:        0.95,
	CacheOptimization:     0.85,
	EfficiencyImprovement: 0.8,
	SubagentStrategy:      0.7,
	WorkflowOptimization:  0.6,
}

// Recommendation is one rule's output.
type Recommendation struct {
	Type                Type
	Title               string
	Description         string
	PotentialSavings    float64
	SavingsIsPercentage bool
	Confidence          float64
	ActionItems         []string
	BasedOn             []string
	PriorityScore       float64
}

// Input is the aggregated metric set one rule pass runs against. For a
// fleet recommendation, the caller weight-aggregates across sessions
// before calling Evaluate: sums for totals, means for ratios.
type Input struct {
	CER              float64
	CacheWriteCostUSD float64
	HasSEI           bool
	SEI              float64
	SubagentCount    int
	SubagentCostUSD  float64
	TotalCostUSD     float64
	PrimaryModelIsOpus bool
	OpusCostUSD      float64
	SonnetCostUSD    float64
	CGR              float64
	WFS              float64
	OES              float64
	TurnCount        int
	AvgCostPerTurn   float64
}

const (
	cacheOptimizationThreshold    = 0.5
	cacheOptimizationLowThreshold = 0.3
	subagentStrategyThreshold     = 0.2
	modelSelectionMinCost         = 1.0
	modelSelectionMinDelta        = 0.50
	cgrThreshold                  = 2500
	cgrSpan                       = 5000
	wfsThreshold                  = 0.3
	oesThreshold                  = 0.5
	costPerTurnThreshold          = 0.75
	subagentRatioThreshold        = 0.4
)

// Evaluate runs every rule against one aggregated input and returns the
// triggered recommendations sorted by priority_score descending.
func Evaluate(in Input) []Recommendation {
	var out []Recommendation
	if r, ok := cacheOptimizationRule(in); ok {
		out = append(out, r)
	}
	if r, ok := subagentStrategyRule(in); ok {
		out = append(out, r)
	}
	if r, ok := modelSelectionRule(in); ok {
		out = append(out, r)
	}
	if r, ok := workflowCGRRule(in); ok {
		out = append(out, r)
	}
	if r, ok := workflowWFSRule(in); ok {
		out = append(out, r)
	}
	if r, ok := efficiencyImprovementRule(in); ok {
		out = append(out, r)
	}
	if r, ok := costSavingRule(in); ok {
		out = append(out, r)
	}
	if r, ok := subagentRatioRule(in); ok {
		out = append(out, r)
	}

	for i := range out {
		out[i].PriorityScore = priorityScoreUSD(out[i])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].PriorityScore > out[j].PriorityScore })
	return out
}

func savingsFactor(r Recommendation) float64 {
	if r.SavingsIsPercentage {
		return min1(r.PotentialSavings / 100)
	}
	return min1(r.PotentialSavings / 10)
}

func priorityScoreUSD(r Recommendation) float64 {
	return typeWeight[r.Type] * r.Confidence * (0.5 + 0.5*savingsFactor(r))
}

func min1(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < 0 {
		return 0
	}
	return v
}

func cacheOptimizationRule(in Input) (Recommendation, bool) {
	if in.CER >= cacheOptimizationThreshold {
		return Recommendation{}, false
	}
	var savings, confidence float64
	if in.CER < cacheOptimizationLowThreshold {
		savings, confidence = 0.4*in.CacheWriteCostUSD, 0.9
	} else {
		savings, confidence = 0.2*in.CacheWriteCostUSD, 0.7
	}
	return Recommendation{
		Type:             CacheOptimization,
		Title:            "Improve cache reuse",
		Description:      "A low cache efficiency ratio means repeated context is being rebuilt instead of reused from cache.",
		PotentialSavings: savings,
		Confidence:       confidence,
		ActionItems:      []string{"Batch related requests to reuse cached context", "Avoid clearing context between closely related turns"},
		BasedOn:          []string{"cache_efficiency_ratio"},
	}, true
}

func subagentStrategyRule(in Input) (Recommendation, bool) {
	if !in.HasSEI || in.SEI >= subagentStrategyThreshold || in.SubagentCount == 0 {
		return Recommendation{}, false
	}
	return Recommendation{
		Type:             SubagentStrategy,
		Title:            "Reduce subagent delegation overhead",
		Description:      "Subagent efficiency is low relative to the deliverables produced.",
		PotentialSavings: 0.3 * in.SubagentCostUSD,
		Confidence:       0.75,
		ActionItems:      []string{"Delegate larger, coarser-grained tasks to each subagent", "Avoid spawning subagents for work a single turn can complete"},
		BasedOn:          []string{"subagent_efficiency_index"},
	}, true
}

func modelSelectionRule(in Input) (Recommendation, bool) {
	if !in.PrimaryModelIsOpus || in.TotalCostUSD < modelSelectionMinCost {
		return Recommendation{}, false
	}
	delta := in.OpusCostUSD - in.SonnetCostUSD
	if delta <= modelSelectionMinDelta {
		return Recommendation{}, false
	}
	return Recommendation{
		Type:             ModelSelection,
		Title:            "Switch to a cheaper model family",
		Description:      "This session's work would cost substantially less on Sonnet with comparable quality for the tasks involved.",
		PotentialSavings: delta,
		Confidence:       0.7,
		ActionItems:      []string{"Use Sonnet for routine edits and reserve Opus for tasks that need its reasoning depth"},
		BasedOn:          []string{"primary_model", "total_cost_usd"},
	}, true
}

func workflowCGRRule(in Input) (Recommendation, bool) {
	if in.CGR <= cgrThreshold {
		return Recommendation{}, false
	}
	pct := math.Min(40, (in.CGR-cgrThreshold)/cgrSpan*20)
	return Recommendation{
		Type:                WorkflowOptimization,
		Title:               "Curb context growth",
		Description:         "Context size is growing quickly across turns, driving up per-turn cost.",
		PotentialSavings:    pct,
		SavingsIsPercentage: true,
		Confidence:          0.75,
		ActionItems:         []string{"Summarize or prune old context before long tasks", "Split large tasks into sessions with narrower scope"},
		BasedOn:             []string{"context_growth_rate"},
	}, true
}

func workflowWFSRule(in Input) (Recommendation, bool) {
	if in.WFS <= wfsThreshold {
		return Recommendation{}, false
	}
	pct := math.Min(100, in.WFS*50)
	return Recommendation{
		Type:                WorkflowOptimization,
		Title:               "Reduce workflow friction",
		Description:         "Rework and clarification cycles are consuming a meaningful share of this session's turns.",
		PotentialSavings:    pct,
		SavingsIsPercentage: true,
		Confidence:          0.65,
		ActionItems:         []string{"Provide more complete task context up front to reduce clarification turns"},
		BasedOn:             []string{"workflow_friction_score"},
	}, true
}

func efficiencyImprovementRule(in Input) (Recommendation, bool) {
	if in.OES >= oesThreshold {
		return Recommendation{}, false
	}
	pct := math.Min(30, (oesThreshold-in.OES)/oesThreshold*100)
	return Recommendation{
		Type:                EfficiencyImprovement,
		Title:               "Raise overall efficiency",
		Description:         "The overall efficiency score is below a healthy baseline for this kind of session.",
		PotentialSavings:    pct,
		SavingsIsPercentage: true,
		Confidence:          0.6,
		ActionItems:         []string{"Review the session's anti-pattern findings for the largest single contributor"},
		BasedOn:             []string{"overall_efficiency_score"},
	}, true
}

func costSavingRule(in Input) (Recommendation, bool) {
	if in.AvgCostPerTurn <= costPerTurnThreshold {
		return Recommendation{}, false
	}
	savings := (in.AvgCostPerTurn - costPerTurnThreshold) * float64(in.TurnCount) * 0.5
	return Recommendation{
		Type:             CostSaving,
		Title:            "Lower average cost per turn",
		Description:      "Average per-turn cost is above a typical range for sessions of this size.",
		PotentialSavings: savings,
		Confidence:       0.7,
		ActionItems:      []string{"Break large turns into smaller, more focused requests"},
		BasedOn:          []string{"avg_cost_per_turn", "turn_count"},
	}, true
}

func subagentRatioRule(in Input) (Recommendation, bool) {
	if in.TotalCostUSD == 0 {
		return Recommendation{}, false
	}
	ratio := in.SubagentCostUSD / in.TotalCostUSD
	if ratio <= subagentRatioThreshold {
		return Recommendation{}, false
	}
	excess := ratio - subagentRatioThreshold
	savings := in.SubagentCostUSD * excess / ratio
	return Recommendation{
		Type:             SubagentStrategy,
		Title:            "Reduce subagent cost share",
		Description:      "Subagent work accounts for a disproportionate share of this session's total cost.",
		PotentialSavings: savings,
		Confidence:       0.8,
		ActionItems:      []string{"Handle simple delegated tasks in the main turn instead of a subagent"},
		BasedOn:          []string{"subagent_cost_usd", "total_cost_usd"},
	}, true
}

