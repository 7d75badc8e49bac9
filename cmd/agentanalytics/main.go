package main

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/agentanalytics/agentanalytics/internal/config"
	"github.com/spf13/cobra"
)

func main() {
	if os.Getenv("AGENTANALYTICS_DEBUG") != "" {
		log.SetOutput(os.Stderr)
	} else {
		log.SetOutput(io.Discard)
	}

	var configPath string

	root := &cobra.Command{
		Use:   "agentanalytics",
		Short: "agentanalytics derives session, fleet, and trend analytics from Claude Code transcript logs.",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to settings.json (defaults to the platform config dir)")

	loadConfig := func() (config.Config, error) {
		if configPath != "" {
			return config.LoadFrom(configPath)
		}
		return config.Load()
	}

	root.AddCommand(newIngestCommand(loadConfig))
	root.AddCommand(newReportCommand(loadConfig))
	root.AddCommand(newTrendsCommand(loadConfig))
	root.AddCommand(newExportCommand(loadConfig))
	root.AddCommand(newWatchCommand(loadConfig))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
