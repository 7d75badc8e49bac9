// Package tokens implements the pure token/cost algebra of spec.md §4.B:
// per-turn and per-session token sums, cost breakdown by bucket, and
// cost addition.
package tokens

import "github.com/agentanalytics/agentanalytics/internal/pricing"

// Usage holds raw token counts for one turn or one session, split by the
// five buckets the transcript format reports.
type Usage struct {
	Input                int64
	Output               int64
	CacheRead             int64
	CacheWrite5m          int64
	CacheWrite1h          int64
	CacheCreationLegacy   int64 // attributed to CacheWrite5m when the split fields are zero
}

// Resolved returns the usage with CacheCreationLegacy folded into
// CacheWrite5m, per spec.md §3 ("When the split fields are zero,
// cache_creation_legacy is attributed entirely to cache-write-5m").
func (u Usage) Resolved() Usage {
	out := u
	if out.CacheWrite5m == 0 && out.CacheWrite1h == 0 && out.CacheCreationLegacy != 0 {
		out.CacheWrite5m = out.CacheCreationLegacy
	}
	out.CacheCreationLegacy = 0
	return out
}

// TotalTokens returns input+output.
func (u Usage) TotalTokens() int64 { return u.Input + u.Output }

// TotalContext returns input+cache_read+cache_write_5m+cache_write_1h.
func (u Usage) TotalContext() int64 {
	return u.Input + u.CacheRead + u.CacheWrite5m + u.CacheWrite1h
}

// Add returns the component-wise sum of u and other.
func (u Usage) Add(other Usage) Usage {
	return Usage{
		Input:               u.Input + other.Input,
		Output:              u.Output + other.Output,
		CacheRead:           u.CacheRead + other.CacheRead,
		CacheWrite5m:        u.CacheWrite5m + other.CacheWrite5m,
		CacheWrite1h:        u.CacheWrite1h + other.CacheWrite1h,
		CacheCreationLegacy: u.CacheCreationLegacy + other.CacheCreationLegacy,
	}
}

// CostBreakdown is the USD cost attributed to each bucket. Add is
// component-wise, associative, commutative, with the zero value as
// identity.
type CostBreakdown struct {
	Input        float64
	Output       float64
	CacheRead    float64
	CacheWrite5m float64
	CacheWrite1h float64
}

// Total returns the sum across all buckets.
func (c CostBreakdown) Total() float64 {
	return c.Input + c.Output + c.CacheRead + c.CacheWrite5m + c.CacheWrite1h
}

// Add returns the component-wise sum of c and other.
func (c CostBreakdown) Add(other CostBreakdown) CostBreakdown {
	return CostBreakdown{
		Input:        c.Input + other.Input,
		Output:       c.Output + other.Output,
		CacheRead:    c.CacheRead + other.CacheRead,
		CacheWrite5m: c.CacheWrite5m + other.CacheWrite5m,
		CacheWrite1h: c.CacheWrite1h + other.CacheWrite1h,
	}
}

// Cost computes the per-bucket USD cost of u against rates. Result is in
// USD, unrounded.
func Cost(u Usage, rates pricing.Rates) CostBreakdown {
	resolved := u.Resolved()
	return CostBreakdown{
		Input:        float64(resolved.Input) / 1e6 * rates.InputPerMillion,
		Output:       float64(resolved.Output) / 1e6 * rates.OutputPerMillion,
		CacheRead:    float64(resolved.CacheRead) / 1e6 * rates.CacheReadPerMillion,
		CacheWrite5m: float64(resolved.CacheWrite5m) / 1e6 * rates.CacheWrite5mPerMillion,
		CacheWrite1h: float64(resolved.CacheWrite1h) / 1e6 * rates.CacheWrite1hPerMillion,
	}
}

// SessionTokens accumulates Usage across many turns plus a turn counter.
type SessionTokens struct {
	Usage     Usage
	TurnCount int
}

// AddTurn increments each bucket and the turn count.
func (s *SessionTokens) AddTurn(u Usage) {
	s.Usage = s.Usage.Add(u)
	s.TurnCount++
}

// Velocity returns tokens per second; 0 when dtMillis is 0.
func Velocity(n int64, dtMillis int64) float64 {
	if dtMillis == 0 {
		return 0
	}
	return float64(n) / (float64(dtMillis) / 1000.0)
}
