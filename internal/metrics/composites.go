// Package metrics computes the per-session derived composites of
// spec.md §4.G: cache efficiency, context growth, deliverable-unit
// estimators, subagent efficiency, workflow friction, and the overall
// efficiency score, plus the 5-hour billing-block/burn-rate supplement.
package metrics

import "math"

// TurnTokens is the minimal per-turn shape the composites need.
type TurnTokens struct {
	Input        int64
	Output       int64
	CacheRead    int64
	CacheWrite5m int64
	CacheWrite1h int64
}

func (t TurnTokens) cacheWriteTotal() int64 { return t.CacheWrite5m + t.CacheWrite1h }
func (t TurnTokens) contextTotal() int64    { return t.Input + t.CacheRead + t.cacheWriteTotal() }

// Rating buckets mirror spec.md's named thresholds for each composite.
type Rating string

const (
	RatingExcellent         Rating = "excellent"
	RatingGood              Rating = "good"
	RatingAcceptable        Rating = "acceptable"
	RatingSustainable       Rating = "sustainable"
	RatingWarning           Rating = "warning"
	RatingPoor              Rating = "poor"
	RatingAverage           Rating = "average"
	RatingNeedsImprovement  Rating = "needs-improvement"
)

// CER is the Cache Efficiency Ratio: Σcr / Σ(cr+cw5+cw1), 0 when the
// denominator is 0.
func CER(turns []TurnTokens) float64 {
	var cacheRead, cacheTotal int64
	for _, t := range turns {
		cacheRead += t.CacheRead
		cacheTotal += t.CacheRead + t.cacheWriteTotal()
	}
	if cacheTotal == 0 {
		return 0
	}
	return float64(cacheRead) / float64(cacheTotal)
}

// CERRating buckets a CER value: excellent > 0.7, good >= 0.5, else poor.
func CERRating(cer float64) Rating {
	switch {
	case cer > 0.7:
		return RatingExcellent
	case cer >= 0.5:
		return RatingGood
	default:
		return RatingPoor
	}
}

// ContextGrowthRateA is design variant A: (final_context -
// initial_context) / cycles. Cycles is the number of turns after the
// first; 0 when there are fewer than 2 turns.
func ContextGrowthRateA(turns []TurnTokens) float64 {
	if len(turns) < 2 {
		return 0
	}
	initial := turns[0].contextTotal()
	final := turns[len(turns)-1].contextTotal()
	cycles := len(turns) - 1
	return float64(final-initial) / float64(cycles)
}

// ContextGrowthRateB is design variant B, the one the recommendation
// input uses: Σ(cr+cw5+cw1) / |T|. The composites below do not use CGR.
func ContextGrowthRateB(turns []TurnTokens) float64 {
	if len(turns) == 0 {
		return 0
	}
	var sum int64
	for _, t := range turns {
		sum += t.CacheRead + t.cacheWriteTotal()
	}
	return float64(sum) / float64(len(turns))
}

// CGRRating buckets a ContextGrowthRateB value: sustainable < 1000,
// acceptable <= 2500, else warning.
func CGRRating(cgr float64) Rating {
	switch {
	case cgr < 1000:
		return RatingSustainable
	case cgr <= 2500:
		return RatingAcceptable
	default:
		return RatingWarning
	}
}

// DeliverableUnitsLegacy is the legacy estimator:
// max(output_tokens / 5000, 0.1).
func DeliverableUnitsLegacy(outputTokens int64) float64 {
	return math.Max(float64(outputTokens)/5000, 0.1)
}

// DeliverableUnitsImproved is the improved estimator:
// max(0.5*tool_count + 0.3*turns_with_output_over_100, 1.0).
func DeliverableUnitsImproved(toolCount int, turnsWithOutputOver100 int) float64 {
	return math.Max(0.5*float64(toolCount)+0.3*float64(turnsWithOutputOver100), 1.0)
}

// SEI is the Subagent Efficiency Index: DU / subagent_count. The second
// return value is false when subagentCount is 0, per spec.md's
// "undefined when subagent_count = 0".
func SEI(deliverableUnits float64, subagentCount int) (float64, bool) {
	if subagentCount == 0 {
		return 0, false
	}
	return deliverableUnits / float64(subagentCount), true
}

// SEIRating buckets an SEI value: >0.4 excellent, >=0.2 good, else poor.
func SEIRating(sei float64) Rating {
	switch {
	case sei > 0.4:
		return RatingExcellent
	case sei >= 0.2:
		return RatingGood
	default:
		return RatingPoor
	}
}

// WFS is the Workflow Friction Score: (rework + clarification) / |T|.
// When classifiers are unavailable, callers should pass rework=0,
// clarification=0, yielding the spec's documented default of 0.
func WFS(rework, clarification int, turnCount int) float64 {
	if turnCount == 0 {
		return 0
	}
	return float64(rework+clarification) / float64(turnCount)
}

// CostPerDeliverableUnit and CyclesPerDeliverable, spec.md's CPDU/CpD.
func CostPerDeliverableUnit(totalCost, deliverableUnits float64) float64 {
	if deliverableUnits == 0 {
		return 0
	}
	return totalCost / deliverableUnits
}

func CyclesPerDeliverable(turnCount int, deliverableUnits float64) float64 {
	if deliverableUnits == 0 {
		return 0
	}
	return float64(turnCount) / deliverableUnits
}

// OESInputs bundles the composites the overall efficiency score needs.
type OESInputs struct {
	CPDU         float64
	CpD          float64
	CER          float64
	SEI          float64
	HasSubagents bool
	WFS          float64
}

// OES computes the weighted, clamped-to-[0,1] Overall Efficiency Score
// of spec.md §4.G, redistributing the subagent weight across the other
// four composites when the session has no subagents.
func OES(in OESInputs) float64 {
	cpduN := math.Max(0, 1-in.CPDU/50)
	cpdN := math.Max(0, 1-in.CpD/50)
	seiN := math.Min(1, in.SEI/0.5)
	friction := 1 - in.WFS

	var score float64
	if in.HasSubagents {
		score = 0.30*cpduN + 0.25*cpdN + 0.15*in.CER + 0.15*seiN + 0.15*friction
	} else {
		bonus := 0.15 / 4
		score = (0.30+bonus)*cpduN + (0.25+bonus)*cpdN + (0.15+bonus)*in.CER + (0.15+bonus)*friction
	}
	return clamp01(score)
}

// OESRating buckets an OES value.
func OESRating(oes float64) Rating {
	switch {
	case oes > 0.75:
		return RatingExcellent
	case oes >= 0.55:
		return RatingGood
	case oes >= 0.35:
		return RatingAverage
	default:
		return RatingNeedsImprovement
	}
}

// PeakContextPct is max_t (t.input + t.cache_read) / 200000, clamped to
// 100. Without per-turn data (len(turns)==0), callers should use
// PeakContextPctFallback instead.
func PeakContextPct(turns []TurnTokens, contextLimit int64) float64 {
	if contextLimit == 0 {
		contextLimit = 200000
	}
	var peak int64
	for _, t := range turns {
		if v := t.Input + t.CacheRead; v > peak {
			peak = v
		}
	}
	return math.Min(float64(peak)/float64(contextLimit)*100, 100)
}

// PeakContextPctFallback is used when only session-level sums are
// available: max(Σinput, Σcache_read) / contextLimit.
func PeakContextPctFallback(sumInput, sumCacheRead, contextLimit int64) float64 {
	if contextLimit == 0 {
		contextLimit = 200000
	}
	peak := sumInput
	if sumCacheRead > peak {
		peak = sumCacheRead
	}
	return math.Min(float64(peak)/float64(contextLimit)*100, 100)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
