package metrics

import (
	"math"
	"testing"
	"time"
)

func almostEqual(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestCER_ZeroDenominator(t *testing.T) {
	if got := CER(nil); got != 0 {
		t.Fatalf("CER(nil) = %v, want 0", got)
	}
	turns := []TurnTokens{{Input: 10}}
	if got := CER(turns); got != 0 {
		t.Fatalf("CER with no cache activity = %v, want 0", got)
	}
}

func TestCER_Basic(t *testing.T) {
	turns := []TurnTokens{
		{CacheRead: 700, CacheWrite5m: 300},
	}
	got := CER(turns)
	if !almostEqual(got, 0.7) {
		t.Fatalf("CER = %v, want 0.7", got)
	}
	if CERRating(got) != RatingGood {
		t.Fatalf("rating at exactly 0.7 = %v, want good (excellent requires strictly > 0.7)", CERRating(got))
	}
}

func TestCGRRating_Boundaries(t *testing.T) {
	cases := []struct {
		cgr  float64
		want Rating
	}{
		{500, RatingSustainable},
		{1000, RatingAcceptable},
		{2500, RatingAcceptable},
		{2500.01, RatingWarning},
	}
	for _, c := range cases {
		if got := CGRRating(c.cgr); got != c.want {
			t.Errorf("CGRRating(%v) = %v, want %v", c.cgr, got, c.want)
		}
	}
}

func TestContextGrowthRateB(t *testing.T) {
	turns := []TurnTokens{
		{CacheRead: 100},
		{CacheRead: 200, CacheWrite5m: 100},
	}
	got := ContextGrowthRateB(turns)
	if !almostEqual(got, 200) {
		t.Fatalf("CGR-B = %v, want 200", got)
	}
}

func TestDeliverableUnits(t *testing.T) {
	if got := DeliverableUnitsLegacy(0); !almostEqual(got, 0.1) {
		t.Fatalf("legacy DU floor = %v, want 0.1", got)
	}
	if got := DeliverableUnitsLegacy(10000); !almostEqual(got, 2) {
		t.Fatalf("legacy DU = %v, want 2", got)
	}
	if got := DeliverableUnitsImproved(0, 0); !almostEqual(got, 1.0) {
		t.Fatalf("improved DU floor = %v, want 1.0", got)
	}
}

func TestSEI_UndefinedWithoutSubagents(t *testing.T) {
	_, ok := SEI(1.0, 0)
	if ok {
		t.Fatalf("expected SEI undefined when subagent_count=0")
	}
	val, ok := SEI(2.0, 4)
	if !ok || !almostEqual(val, 0.5) {
		t.Fatalf("SEI = %v, %v; want 0.5, true", val, ok)
	}
}

func TestWFS_DefaultsToZero(t *testing.T) {
	if got := WFS(0, 0, 10); got != 0 {
		t.Fatalf("WFS = %v, want 0", got)
	}
	if got := WFS(1, 1, 10); !almostEqual(got, 0.2) {
		t.Fatalf("WFS = %v, want 0.2", got)
	}
}

func TestOES_ClampedAndWithoutSubagentsRedistributes(t *testing.T) {
	in := OESInputs{CPDU: 0, CpD: 0, CER: 1, SEI: 1, HasSubagents: true, WFS: 0}
	if got := OES(in); !almostEqual(got, 1.0) {
		t.Fatalf("OES with subagents = %v, want 1.0", got)
	}

	inNoSub := OESInputs{CPDU: 0, CpD: 0, CER: 1, SEI: 1, HasSubagents: false, WFS: 0}
	if got := OES(inNoSub); !almostEqual(got, 1.0) {
		t.Fatalf("OES without subagents = %v, want 1.0", got)
	}
}

func TestOES_RatingBuckets(t *testing.T) {
	cases := []struct {
		oes  float64
		want Rating
	}{
		{0.80, RatingExcellent},
		{0.60, RatingGood},
		{0.40, RatingAverage},
		{0.10, RatingNeedsImprovement},
	}
	for _, c := range cases {
		if got := OESRating(c.oes); got != c.want {
			t.Errorf("OESRating(%v) = %v, want %v", c.oes, got, c.want)
		}
	}
}

func TestPeakContextPct(t *testing.T) {
	turns := []TurnTokens{
		{Input: 1000, CacheRead: 500},
		{Input: 2000, CacheRead: 100000},
	}
	got := PeakContextPct(turns, 200000)
	want := 102000.0 / 200000 * 100
	if !almostEqual(got, want) {
		t.Fatalf("peak context pct = %v, want %v", got, want)
	}
}

func TestPeakContextPct_ClampedTo100(t *testing.T) {
	turns := []TurnTokens{{Input: 1_000_000}}
	if got := PeakContextPct(turns, 200000); got != 100 {
		t.Fatalf("peak context pct = %v, want 100", got)
	}
}

func TestComputeBillingBlocks_SingleBlock(t *testing.T) {
	base := time.Date(2026, 7, 31, 10, 15, 0, 0, time.UTC)
	events := []UsageEvent{
		{Timestamp: base, Model: "claude-opus-4-6", CostUSD: 1.0, Input: 100, Output: 50},
		{Timestamp: base.Add(10 * time.Minute), Model: "claude-opus-4-6", CostUSD: 2.0, Input: 200, Output: 100},
	}
	blocks := ComputeBillingBlocks(events)
	if len(blocks) != 1 {
		t.Fatalf("got %d blocks, want 1", len(blocks))
	}
	b := blocks[0]
	if !almostEqual(b.CostUSD, 3.0) {
		t.Fatalf("block cost = %v, want 3.0", b.CostUSD)
	}
	if b.MessageCount != 2 {
		t.Fatalf("message count = %d, want 2", b.MessageCount)
	}
	if b.Start.Hour() != 10 || b.Start.Minute() != 0 {
		t.Fatalf("block start = %v, want floored to hour", b.Start)
	}
}

func TestComputeBillingBlocks_SplitsAfterFiveHours(t *testing.T) {
	base := time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC)
	events := []UsageEvent{
		{Timestamp: base, CostUSD: 1.0},
		{Timestamp: base.Add(6 * time.Hour), CostUSD: 1.0},
	}
	blocks := ComputeBillingBlocks(events)
	if len(blocks) != 2 {
		t.Fatalf("got %d blocks, want 2", len(blocks))
	}
}

func TestActiveBlock(t *testing.T) {
	base := time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC)
	blocks := []BillingBlock{{Start: base, End: base.Add(BillingBlockDuration)}}
	if _, ok := ActiveBlock(blocks, base.Add(time.Hour)); !ok {
		t.Fatalf("expected active block to be found")
	}
	if _, ok := ActiveBlock(blocks, base.Add(6*time.Hour)); ok {
		t.Fatalf("expected no active block past end")
	}
}
