package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/rendis/mapsift/internal/config"
	"github.com/rendis/mapsift/internal/logging"
	"github.com/rendis/mapsift/internal/pipeline"
	"github.com/rendis/mapsift/internal/tui"
	"github.com/rendis/mapsift/internal/tui/views"
)

var rootCmd = &cobra.Command{
	Use:   "mapsift",
	Short: "mapsift - map listing extractor",
	Long: `mapsift searches map listings by place name, ZIP code or radius, visits
each listing and exports the results as JSON, CSV, GeoJSON or SQLite.

Run without a subcommand to open the interactive TUI.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runTUI,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "mapsift "+version)
	},
}

func init() {
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig reads .env files and the environment.
func loadConfig() (*config.Config, error) {
	config.LoadEnv(nil)
	return config.Load()
}

func runTUI(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// the TUI owns the terminal, so logs go to a file
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return fmt.Errorf("creating output dir: %w", err)
	}
	logFile, err := os.OpenFile(filepath.Join(cfg.OutputDir, "mapsift.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening log: %w", err)
	}
	defer logFile.Close()
	logger := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, Output: logFile})

	return tui.Run(tui.Options{
		Version: version,
		Defaults: views.SearchDefaults{
			MaxResults: cfg.MaxResults,
			Radius:     cfg.DefaultRadius,
			OutputDir:  cfg.OutputDir,
			Formats:    "json,csv",
		},
		Open: openPipeline(cfg, logger),
	})
}

func openPipeline(cfg *config.Config, logger logrus.FieldLogger) views.OpenFunc {
	return func(ctx context.Context) (views.Searcher, func() error, error) {
		p, err := pipeline.Open(ctx, cfg, logger)
		if err != nil {
			return nil, nil, err
		}
		return p, p.Close, nil
	}
}
