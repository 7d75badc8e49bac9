package metrics

import (
	"sort"
	"time"
)

// BillingBlockDuration is the fixed width of a Claude Code usage-limit
// window.
const BillingBlockDuration = 5 * time.Hour

// UsageEvent is the minimal shape the billing-block walk needs: one
// assistant turn's timestamp, model, and cost.
type UsageEvent struct {
	Timestamp time.Time
	Model     string
	CostUSD   float64
	Input     int64
	Output    int64
}

// BillingBlock summarizes one 5-hour usage window.
type BillingBlock struct {
	Start         time.Time
	End           time.Time
	CostUSD       float64
	InputTokens   int64
	OutputTokens  int64
	MessageCount  int
	Models        []string
	BurnRateUSDPerHour float64 // 0 when elapsed < 1 minute or cost is 0
}

// ComputeBillingBlocks walks chronologically sorted events and buckets
// them into non-overlapping 5-hour blocks, starting each new block at
// the hour boundary at or before the first event past the previous
// block's end. events must already be sorted by Timestamp ascending.
func ComputeBillingBlocks(events []UsageEvent) []BillingBlock {
	if len(events) == 0 {
		return nil
	}

	var blocks []BillingBlock
	var current *BillingBlock
	seenModels := map[string]bool{}

	flushModels := func(b *BillingBlock) {
		b.Models = sortedKeys(seenModels)
	}

	for _, ev := range events {
		if current == nil || ev.Timestamp.After(current.End) || ev.Timestamp.Equal(current.End) {
			if current != nil {
				flushModels(current)
			}
			start := floorToHour(ev.Timestamp)
			blocks = append(blocks, BillingBlock{Start: start, End: start.Add(BillingBlockDuration)})
			current = &blocks[len(blocks)-1]
			seenModels = map[string]bool{}
		}
		current.CostUSD += ev.CostUSD
		current.InputTokens += ev.Input
		current.OutputTokens += ev.Output
		current.MessageCount++
		if ev.Model != "" {
			seenModels[ev.Model] = true
		}
	}
	if current != nil {
		flushModels(current)
	}

	for i := range blocks {
		blocks[i].BurnRateUSDPerHour = burnRate(blocks[i], events)
	}
	return blocks
}

// ActiveBlock returns the block containing now, if any, and whether one
// was found.
func ActiveBlock(blocks []BillingBlock, now time.Time) (BillingBlock, bool) {
	for _, b := range blocks {
		if !now.Before(b.Start) && now.Before(b.End) {
			return b, true
		}
	}
	return BillingBlock{}, false
}

func burnRate(b BillingBlock, events []UsageEvent) float64 {
	var lastInBlock time.Time
	for _, ev := range events {
		if !ev.Timestamp.Before(b.Start) && ev.Timestamp.Before(b.End) {
			lastInBlock = ev.Timestamp
		}
	}
	if lastInBlock.IsZero() {
		return 0
	}
	elapsed := lastInBlock.Sub(b.Start)
	if elapsed < time.Minute || b.CostUSD == 0 {
		return 0
	}
	return b.CostUSD / elapsed.Hours()
}

func floorToHour(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, t.Location())
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
