package ingest

import (
	"github.com/agentanalytics/agentanalytics/internal/metrics"
	"github.com/agentanalytics/agentanalytics/internal/tokens"
)

// sessionAggregate accumulates the running totals writeSession needs to
// build the session_metrics row, without re-scanning the turn slice.
type sessionAggregate struct {
	input, output                   int64
	cacheRead, cacheWrite5m, cacheWrite1h int64
	cost                             float64
	toolCount                        int
	subagentCount                    int
}

func (a *sessionAggregate) accumulate(u tokens.Usage, cost float64, toolCount, subagentCount int) {
	a.input += u.Input
	a.output += u.Output
	a.cacheRead += u.CacheRead
	a.cacheWrite5m += u.CacheWrite5m
	a.cacheWrite1h += u.CacheWrite1h
	a.cost += cost
	a.toolCount += toolCount
	a.subagentCount += subagentCount
}

// efficiencyScore computes the session's OES, or nil when there are no
// turns to score.
func (a *sessionAggregate) efficiencyScore(turnTokens []metrics.TurnTokens, turnCount int) *float64 {
	if turnCount == 0 {
		return nil
	}
	du := metrics.DeliverableUnitsLegacy(a.output)
	cpdu := metrics.CostPerDeliverableUnit(a.cost, du)
	cpd := metrics.CyclesPerDeliverable(turnCount, du)
	cer := metrics.CER(turnTokens)

	hasSubagents := a.subagentCount > 0
	var seiN float64
	if hasSubagents {
		sei, ok := metrics.SEI(du, a.subagentCount)
		if ok {
			seiN = sei
		}
	}

	oes := metrics.OES(metrics.OESInputs{
		CPDU:         cpdu,
		CpD:          cpd,
		CER:          cer,
		SEI:          seiN,
		HasSubagents: hasSubagents,
		WFS:          0,
	})
	return &oes
}
