package tokens

import (
	"math"
	"testing"

	"github.com/agentanalytics/agentanalytics/internal/pricing"
)

func TestUsage_ResolvedLegacyCacheCreation(t *testing.T) {
	u := Usage{CacheCreationLegacy: 500}.Resolved()
	if u.CacheWrite5m != 500 {
		t.Fatalf("CacheWrite5m = %d, want 500", u.CacheWrite5m)
	}
	if u.CacheCreationLegacy != 0 {
		t.Fatalf("CacheCreationLegacy should be cleared, got %d", u.CacheCreationLegacy)
	}
}

func TestUsage_TotalsAndAdd(t *testing.T) {
	a := Usage{Input: 100, Output: 50, CacheRead: 1000, CacheWrite5m: 500}
	if a.TotalTokens() != 150 {
		t.Fatalf("TotalTokens = %d, want 150", a.TotalTokens())
	}
	if a.TotalContext() != 1600 {
		t.Fatalf("TotalContext = %d, want 1600", a.TotalContext())
	}
	sum := a.Add(a)
	if sum.Input != 200 || sum.Output != 100 {
		t.Fatalf("Add mismatch: %+v", sum)
	}
}

func TestCost_S1Scenario(t *testing.T) {
	// spec.md S1: input:100, output:50, cache_read:1000, cache_creation_legacy:500
	u := Usage{Input: 100, Output: 50, CacheRead: 1000, CacheCreationLegacy: 500}
	reg := pricing.NewRegistry()
	rates := reg.Lookup("claude-opus-4-6")
	cost := Cost(u, rates)
	got := cost.Total()
	want := 0.005375
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("total cost = %.9f, want %.9f", got, want)
	}
}

func TestCostBreakdown_AddIdentity(t *testing.T) {
	var zero CostBreakdown
	c := CostBreakdown{Input: 1, Output: 2}
	if c.Add(zero) != c {
		t.Fatalf("zero value is not an identity: %+v", c.Add(zero))
	}
}

func TestVelocity_ZeroDuration(t *testing.T) {
	if Velocity(100, 0) != 0 {
		t.Fatal("velocity should be 0 when dt=0")
	}
}

func TestVelocity_Basic(t *testing.T) {
	got := Velocity(1000, 2000)
	if math.Abs(got-500) > 1e-9 {
		t.Fatalf("velocity = %v, want 500", got)
	}
}

func TestSessionTokens_AddTurn(t *testing.T) {
	var s SessionTokens
	s.AddTurn(Usage{Input: 10})
	s.AddTurn(Usage{Input: 20})
	if s.TurnCount != 2 {
		t.Fatalf("TurnCount = %d, want 2", s.TurnCount)
	}
	if s.Usage.Input != 30 {
		t.Fatalf("Usage.Input = %d, want 30", s.Usage.Input)
	}
}
