package main

import (
	"context"
	"fmt"

	"github.com/agentanalytics/agentanalytics/internal/config"
	"github.com/agentanalytics/agentanalytics/internal/ingest"
	"github.com/agentanalytics/agentanalytics/internal/pricing"
	"github.com/agentanalytics/agentanalytics/internal/store"
	"github.com/spf13/cobra"
)

func newIngestCommand(loadConfig func() (config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest",
		Short: "Ingest every discoverable transcript once and update the analytics store.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			st, err := store.Open(cfg.Store.Path)
			if err != nil {
				return fmt.Errorf("opening store: %w", err)
			}
			defer st.Close()

			reg := pricing.NewRegistry()
			coord := ingest.New(st, reg, cfg.Transcript.Roots, cfg.Transcript.HistoryPath)

			results, err := coord.RunOnce(cmd.Context())
			if err != nil {
				return fmt.Errorf("ingest run: %w", err)
			}
			printIngestSummary(cmd.Context(), results)
			return nil
		},
	}
}

func printIngestSummary(_ context.Context, results []ingest.FileResult) {
	var ingested, skipped, failed int
	for _, r := range results {
		switch {
		case r.Err != nil:
			failed++
		case r.Skipped:
			skipped++
		default:
			ingested++
		}
	}
	fmt.Printf("ingest: %d files ingested, %d unchanged, %d failed\n", ingested, skipped, failed)
	for _, r := range results {
		if r.Err != nil {
			fmt.Printf("  FAILED %s: %v\n", r.Path, r.Err)
		}
	}
}
