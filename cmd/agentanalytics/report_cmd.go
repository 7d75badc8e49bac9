package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/agentanalytics/agentanalytics/internal/antipattern"
	"github.com/agentanalytics/agentanalytics/internal/config"
	"github.com/agentanalytics/agentanalytics/internal/metrics"
	"github.com/agentanalytics/agentanalytics/internal/pricing"
	"github.com/agentanalytics/agentanalytics/internal/recommend"
	"github.com/agentanalytics/agentanalytics/internal/store"
	"github.com/spf13/cobra"
)

func newReportCommand(loadConfig func() (config.Config, error)) *cobra.Command {
	root := &cobra.Command{
		Use:   "report",
		Short: "Print anti-pattern findings and recommendations.",
	}
	root.AddCommand(newReportSessionCommand(loadConfig))
	root.AddCommand(newReportFleetCommand(loadConfig))
	return root
}

func newReportSessionCommand(loadConfig func() (config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "session <session-id>",
		Short: "Report one session's anti-patterns and recommendations.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			st, err := store.Open(cfg.Store.Path)
			if err != nil {
				return err
			}
			defer st.Close()

			ctx := cmd.Context()
			view, ok, err := loadSessionView(ctx, st, args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("session %s not found", args[0])
			}

			reg := pricing.NewRegistry()
			findings := antipattern.Detect(view.toAntipatternSession())
			recs := recommend.Evaluate(view.toRecommendInput(reg))

			printFindings(view.session.SessionID, findings)
			printBillingBlock(view.session.SessionID, view.billingEvents())
			printRecommendations(view.session.SessionID, recs)
			return nil
		},
	}
}

func newReportFleetCommand(loadConfig func() (config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "fleet",
		Short: "Report anti-patterns per session and an aggregated fleet-wide recommendation set.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			st, err := store.Open(cfg.Store.Path)
			if err != nil {
				return err
			}
			defer st.Close()

			ctx := cmd.Context()
			sessions, err := st.ListSessions(ctx)
			if err != nil {
				return err
			}
			reg := pricing.NewRegistry()

			var views []sessionView
			var allEvents []metrics.UsageEvent
			for _, s := range sessions {
				v, ok, err := loadSessionView(ctx, st, s.SessionID)
				if err != nil {
					return err
				}
				if !ok {
					continue
				}
				views = append(views, v)
				findings := antipattern.Detect(v.toAntipatternSession())
				printFindings(v.session.SessionID, findings)
				allEvents = append(allEvents, v.billingEvents()...)
			}

			printBillingBlock("fleet", allEvents)

			fleetInput := aggregateFleetInput(views, reg)
			recs := recommend.Evaluate(fleetInput)
			printRecommendations("fleet", recs)
			return nil
		},
	}
}

// aggregateFleetInput builds a single recommend.Input across every
// session: sums for totals, weighted means for ratios, per spec.md
// §4.L's fleet recommendation rule.
func aggregateFleetInput(views []sessionView, reg *pricing.Registry) recommend.Input {
	var totalCost, subagentCost, cacheWriteCost, opusCost, sonnetCost float64
	var turnCount, subagentCount int
	var weightedCER, weightedCGR, weightedOES, weightedSEI float64
	var cerWeight, cgrWeight, oesWeight, seiWeight float64
	var anyOpus, hasSEI bool

	for _, v := range views {
		in := v.toRecommendInput(reg)
		totalCost += in.TotalCostUSD
		subagentCost += in.SubagentCostUSD
		cacheWriteCost += in.CacheWriteCostUSD
		turnCount += in.TurnCount
		subagentCount += in.SubagentCount
		if in.PrimaryModelIsOpus {
			anyOpus = true
			opusCost += in.OpusCostUSD
			sonnetCost += in.SonnetCostUSD
		}

		w := in.TotalCostUSD
		if w <= 0 {
			w = 1
		}
		weightedCER += in.CER * w
		cerWeight += w
		weightedCGR += in.CGR * w
		cgrWeight += w
		weightedOES += in.OES * w
		oesWeight += w
		if in.HasSEI {
			hasSEI = true
			weightedSEI += in.SEI * w
			seiWeight += w
		}
	}

	var cer, cgr, oes, sei float64
	if cerWeight > 0 {
		cer = weightedCER / cerWeight
	}
	if cgrWeight > 0 {
		cgr = weightedCGR / cgrWeight
	}
	if oesWeight > 0 {
		oes = weightedOES / oesWeight
	}
	if seiWeight > 0 {
		sei = weightedSEI / seiWeight
	}

	var avgCostPerTurn float64
	if turnCount > 0 {
		avgCostPerTurn = totalCost / float64(turnCount)
	}

	return recommend.Input{
		CER:                cer,
		CacheWriteCostUSD:  cacheWriteCost,
		HasSEI:             hasSEI,
		SEI:                sei,
		SubagentCount:      subagentCount,
		SubagentCostUSD:    subagentCost,
		TotalCostUSD:       totalCost,
		PrimaryModelIsOpus: anyOpus,
		OpusCostUSD:        opusCost,
		SonnetCostUSD:      sonnetCost,
		CGR:                cgr,
		WFS:                0,
		OES:                oes,
		TurnCount:          turnCount,
		AvgCostPerTurn:     avgCostPerTurn,
	}
}

// printBillingBlock reports the 5-hour usage window currently in
// progress, if any, alongside its burn rate — the same signal the
// teacher's quota dashboard surfaces, repurposed here as a report line.
func printBillingBlock(label string, events []metrics.UsageEvent) {
	sort.Slice(events, func(i, j int) bool { return events[i].Timestamp.Before(events[j].Timestamp) })
	blocks := metrics.ComputeBillingBlocks(events)
	active, ok := metrics.ActiveBlock(blocks, time.Now())
	if !ok {
		return
	}
	fmt.Printf("%s: active 5h billing block %s-%s cost=$%.2f burn=$%.2f/hr models=%v\n",
		label, active.Start.Format(time.Kitchen), active.End.Format(time.Kitchen),
		active.CostUSD, active.BurnRateUSDPerHour, active.Models)
}

func printFindings(sessionID string, findings []antipattern.DetectedPattern) {
	if len(findings) == 0 {
		fmt.Printf("%s: no anti-patterns detected\n", sessionID)
		return
	}
	fmt.Printf("%s: %d anti-pattern(s) detected\n", sessionID, len(findings))
	for _, f := range findings {
		turn := ""
		if f.TurnNumber != nil {
			turn = fmt.Sprintf(" turn=%d", *f.TurnNumber)
		}
		fmt.Printf("  [%s] %s%s impact=$%.2f metric=%.3f threshold=%.3f\n    %s\n    suggestion: %s\n",
			f.Severity, f.Type, turn, f.ImpactCostUSD, f.MetricValue, f.Threshold, f.Description, f.Suggestion)
	}
}

func printRecommendations(label string, recs []recommend.Recommendation) {
	if len(recs) == 0 {
		fmt.Printf("%s: no recommendations\n", label)
		return
	}
	fmt.Printf("%s: %d recommendation(s)\n", label, len(recs))
	for _, r := range recs {
		savings := fmt.Sprintf("$%.2f", r.PotentialSavings)
		if r.SavingsIsPercentage {
			savings = fmt.Sprintf("%.0f%%", r.PotentialSavings)
		}
		fmt.Printf("  [%s] %s (priority=%.3f confidence=%.2f savings=%s)\n    %s\n",
			r.Type, r.Title, r.PriorityScore, r.Confidence, savings, r.Description)
		for _, a := range r.ActionItems {
			fmt.Printf("    - %s\n", a)
		}
	}
}
