package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/agentanalytics/agentanalytics/internal/config"
	"github.com/agentanalytics/agentanalytics/internal/ingest"
	"github.com/agentanalytics/agentanalytics/internal/pricing"
	"github.com/agentanalytics/agentanalytics/internal/store"
	"github.com/agentanalytics/agentanalytics/internal/watch"
	"github.com/spf13/cobra"
)

func newWatchCommand(loadConfig func() (config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Watch the configured transcript roots and ingest on every change.",
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

			if _, err := coord.RunOnce(cmd.Context()); err != nil {
				return fmt.Errorf("initial ingest: %w", err)
			}

			w, err := watch.New()
			if err != nil {
				return fmt.Errorf("starting watcher: %w", err)
			}
			if cfg.Watch.DebounceMillis > 0 {
				w.SetDebounce(time.Duration(cfg.Watch.DebounceMillis) * time.Millisecond)
			}
			for _, root := range cfg.Transcript.Roots {
				if err := w.AddRoot(root); err != nil {
					fmt.Fprintf(os.Stderr, "watch: skipping root %s: %v\n", root, err)
				}
			}
			w.Start()
			defer w.Stop()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

			fmt.Println("watching for transcript changes (Ctrl-C to stop)")
			for {
				select {
				case ev := <-w.Events:
					fmt.Printf("%s %s\n", ev.Kind, ev.Path)
					results, err := coord.RunOnce(cmd.Context())
					if err != nil {
						fmt.Fprintf(os.Stderr, "watch: ingest after event: %v\n", err)
						continue
					}
					printIngestSummary(cmd.Context(), results)
				case err := <-w.Errors:
					fmt.Fprintf(os.Stderr, "watch: %v\n", err)
				case <-sigCh:
					return nil
				case <-cmd.Context().Done():
					return cmd.Context().Err()
				}
			}
		},
	}
}
