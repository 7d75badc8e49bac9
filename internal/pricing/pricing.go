// Package pricing maps a Claude model identifier to its per-million-token
// USD rates across the five usage buckets transcripts report.
package pricing

import "strings"

// Rates carries per-million-token USD prices for one model.
type Rates struct {
	InputPerMillion         float64
	OutputPerMillion        float64
	CacheReadPerMillion     float64
	CacheWrite5mPerMillion  float64
	CacheWrite1hPerMillion  float64
	ContextLimitTokens      int // 0 = unknown
}

// entry pairs a model id with its rates for registration.
type entry struct {
	id    string
	rates Rates
}

// Registry resolves model identifiers to Rates via the cascade described
// in spec.md §4.A: exact match, substring match, family match, Opus fallback.
type Registry struct {
	byID     map[string]Rates
	ordered  []entry // preserves insertion order for deterministic substring scans
}

// NewRegistry returns a registry seeded with the built-in Claude pricing
// table. Callers may Register additional or overriding entries.
func NewRegistry() *Registry {
	r := &Registry{byID: make(map[string]Rates)}
	for _, e := range defaultTable {
		r.Register(e.id, e.rates)
	}
	return r
}

// Register adds or overwrites the rates for a model id.
func (r *Registry) Register(modelID string, rates Rates) {
	if _, exists := r.byID[modelID]; !exists {
		r.ordered = append(r.ordered, entry{id: modelID, rates: rates})
	}
	r.byID[modelID] = rates
}

// Lookup resolves modelID to Rates using the ordered predicate cascade:
//  1. exact match
//  2. any registered id that is a substring of modelID
//  3. case-insensitive family match on {opus, sonnet, haiku}
//  4. Opus-tier fallback
func (r *Registry) Lookup(modelID string) Rates {
	for _, pred := range r.cascade() {
		if rates, ok := pred(modelID); ok {
			return rates
		}
	}
	return r.opusFallback()
}

func (r *Registry) cascade() []func(string) (Rates, bool) {
	return []func(string) (Rates, bool){
		r.exactMatch,
		r.substringMatch,
		r.familyMatch,
	}
}

func (r *Registry) exactMatch(modelID string) (Rates, bool) {
	rates, ok := r.byID[modelID]
	return rates, ok
}

func (r *Registry) substringMatch(modelID string) (Rates, bool) {
	for _, e := range r.ordered {
		if e.id != "" && strings.Contains(modelID, e.id) {
			return e.rates, true
		}
	}
	return Rates{}, false
}

func (r *Registry) familyMatch(modelID string) (Rates, bool) {
	lower := strings.ToLower(modelID)
	switch {
	case strings.Contains(lower, "opus"):
		return r.familyRates("opus"), true
	case strings.Contains(lower, "sonnet"):
		return r.familyRates("sonnet"), true
	case strings.Contains(lower, "haiku"):
		return r.familyRates("haiku"), true
	}
	return Rates{}, false
}

// familyRates returns the rates of the first registered entry whose id
// mentions family, falling back to the Opus tier if none match.
func (r *Registry) familyRates(family string) Rates {
	for _, e := range r.ordered {
		if strings.Contains(strings.ToLower(e.id), family) {
			return e.rates
		}
	}
	return r.opusFallback()
}

func (r *Registry) opusFallback() Rates {
	if rates, ok := r.byID["claude-opus-4-6"]; ok {
		return rates
	}
	return Rates{
		InputPerMillion:        5.0,
		OutputPerMillion:       25.0,
		CacheReadPerMillion:    0.5,
		CacheWrite5mPerMillion: 6.25,
		CacheWrite1hPerMillion: 10.0,
	}
}

// defaultTable seeds the registry. Rates follow Anthropic's published
// cache-pricing ratios (cache-read = 0.1x input, cache-write-5m = 1.25x
// input, cache-write-1h = 2x input) applied to each model's base
// input/output rate. The one exception is claude-3-haiku-20240307, whose
// cache rates (0.03/0.30/0.48 on a 0.25 input) do not follow those ratios.
var defaultTable = []entry{
	{"claude-opus-4-6", Rates{5.0, 25.0, 0.5, 6.25, 10.0, 200000}},
	{"claude-opus-4-5-20251101", Rates{5.0, 25.0, 0.5, 6.25, 10.0, 200000}},
	{"claude-sonnet-4-5-20250929", Rates{3.0, 15.0, 0.30, 3.75, 6.0, 200000}},
	{"claude-sonnet-4-20250514", Rates{3.0, 15.0, 0.30, 3.75, 6.0, 200000}},
	{"claude-sonnet-4-5", Rates{3.0, 15.0, 0.30, 3.75, 6.0, 200000}},
	{"claude-sonnet-4", Rates{3.0, 15.0, 0.30, 3.75, 6.0, 200000}},
	{"claude-haiku-3-5-20241022", Rates{0.80, 4.0, 0.08, 1.0, 1.6, 200000}},
	{"claude-3-5-haiku-20241022", Rates{0.80, 4.0, 0.08, 1.0, 1.6, 200000}},
	{"claude-3-opus-20240229", Rates{15.0, 75.0, 1.50, 18.75, 30.0, 200000}},
	{"claude-3-sonnet-20240229", Rates{3.0, 15.0, 0.30, 3.75, 6.0, 200000}},
	{"claude-3-haiku-20240307", Rates{0.25, 1.25, 0.03, 0.30, 0.48, 200000}},
}
