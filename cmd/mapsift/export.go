package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rendis/mapsift/internal/export"
)

var exportOpts struct {
	format string
	output string
}

var exportCmd = &cobra.Command{
	Use:   "export <file.db|file.json>",
	Short: "Convert a saved export to csv, json or geojson",
	Example: `  mapsift export results/mapsift_20260212_101500.db
  mapsift export data.json --format geojson --output data.geojson`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportOpts.format, "format", "f", "csv", "Output format: csv, json or geojson")
	exportCmd.Flags().StringVarP(&exportOpts.output, "output", "o", "", "Output file (default: next to the input)")
}

func runExport(cmd *cobra.Command, args []string) error {
	in := args[0]
	format := export.Format(strings.ToLower(exportOpts.format))
	switch format {
	case export.CSV, export.JSON, export.GeoJSON:
	default:
		return fmt.Errorf("unsupported format: %s (use csv, json or geojson)", exportOpts.format)
	}

	records, err := export.Load(in)
	if err != nil {
		return fmt.Errorf("loading %s: %w", in, err)
	}
	if len(records) == 0 {
		return fmt.Errorf("no businesses found in %s", in)
	}

	out := exportOpts.output
	if out == "" {
		out = strings.TrimSuffix(in, filepath.Ext(in)) + "." + format.Ext()
	}
	if out == in {
		return fmt.Errorf("output would overwrite the input; pass --output")
	}
	if err := export.WriteFile(out, format, "", records); err != nil {
		return err
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d businesses to %s\n", len(records), out)
	return nil
}
