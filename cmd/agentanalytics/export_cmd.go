package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/agentanalytics/agentanalytics/internal/config"
	"github.com/agentanalytics/agentanalytics/internal/export"
	"github.com/agentanalytics/agentanalytics/internal/store"
	"github.com/spf13/cobra"
)

func newExportCommand(loadConfig func() (config.Config, error)) *cobra.Command {
	var outDir string
	var includeTurns bool

	root := &cobra.Command{
		Use:   "export",
		Short: "Export sessions (and optionally turns) to CSV or JSON.",
	}
	root.PersistentFlags().StringVar(&outDir, "out", ".", "directory to write the export file into")
	root.PersistentFlags().BoolVar(&includeTurns, "turns", false, "include turn-level detail")

	root.AddCommand(&cobra.Command{
		Use:   "csv",
		Short: "Export to CSV.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			records, err := loadExportRecords(cmd, loadConfig)
			if err != nil {
				return err
			}
			prefix := "sessions"
			var write func(*os.File) error = func(f *os.File) error { return export.WriteSessionCSV(f, records) }
			if includeTurns {
				prefix = "turns"
				write = func(f *os.File) error { return export.WriteTurnCSV(f, records) }
			}
			path := filepath.Join(outDir, export.Filename(prefix, "csv", time.Now()))
			f, err := os.Create(path)
			if err != nil {
				return err
			}
			defer f.Close()
			if err := write(f); err != nil {
				return err
			}
			fmt.Println(path)
			return nil
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "json",
		Short: "Export to JSON.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			records, err := loadExportRecords(cmd, loadConfig)
			if err != nil {
				return err
			}
			summary := export.BuildSummary(records)
			env := export.BuildEnvelope(time.Now(), records, includeTurns, nil, &summary)

			path := filepath.Join(outDir, export.Filename("export", "json", time.Now()))
			f, err := os.Create(path)
			if err != nil {
				return err
			}
			defer f.Close()
			if err := export.WriteJSON(f, env); err != nil {
				return err
			}
			fmt.Println(path)
			return nil
		},
	})

	return root
}

func loadExportRecords(cmd *cobra.Command, loadConfig func() (config.Config, error)) ([]export.SessionRecord, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	ctx := cmd.Context()
	sessions, err := st.ListSessions(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]export.SessionRecord, 0, len(sessions))
	for _, s := range sessions {
		v, ok, err := loadSessionView(ctx, st, s.SessionID)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		out = append(out, v.toExportRecord())
	}
	return out, nil
}
