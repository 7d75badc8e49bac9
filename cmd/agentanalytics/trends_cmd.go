package main

import (
	"fmt"

	"github.com/agentanalytics/agentanalytics/internal/config"
	"github.com/agentanalytics/agentanalytics/internal/store"
	"github.com/agentanalytics/agentanalytics/internal/trends"
	"github.com/spf13/cobra"
)

func newTrendsCommand(loadConfig func() (config.Config, error)) *cobra.Command {
	root := &cobra.Command{
		Use:   "trends",
		Short: "Print day/week/month rollups across every ingested session.",
	}
	root.AddCommand(newTrendsBinCommand(loadConfig, "daily", func(s []trends.SessionData) []trends.Bin {
		return trends.SortedBins(trends.BinDaily(s))
	}))
	root.AddCommand(newTrendsBinCommand(loadConfig, "weekly", func(s []trends.SessionData) []trends.Bin {
		return trends.SortedBins(trends.BinWeekly(s))
	}))
	root.AddCommand(newTrendsBinCommand(loadConfig, "monthly", func(s []trends.SessionData) []trends.Bin {
		return trends.SortedBins(trends.BinMonthly(s))
	}))
	return root
}

func newTrendsBinCommand(loadConfig func() (config.Config, error), use string, bin func([]trends.SessionData) []trends.Bin) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: fmt.Sprintf("Print the %s rollup.", use),
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

			data := make([]trends.SessionData, 0, len(sessions))
			for _, s := range sessions {
				sm, ok, err := st.GetSessionMetrics(ctx, s.SessionID)
				if err != nil {
					return err
				}
				if !ok {
					continue
				}
				eff := 0.0
				if sm.EfficiencyScore != nil {
					eff = *sm.EfficiencyScore
				}
				data = append(data, trends.SessionData{
					StartedAt:  s.StartedAt,
					Turns:      sm.TurnCount,
					Tokens:     sm.TotalInput + sm.TotalOutput,
					Cost:       sm.TotalCost,
					Efficiency: eff,
				})
			}

			for _, b := range bin(data) {
				fmt.Printf("%s  sessions=%d turns=%d tokens=%d cost=$%.2f mean_efficiency=%.3f\n",
					b.Date, b.SessionCount, b.Turns, b.Tokens, b.Cost, b.MeanEfficiency)
			}
			return nil
		},
	}
}
