package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/rendis/mapsift/internal/config"
	"github.com/rendis/mapsift/internal/engine/scraper"
	"github.com/rendis/mapsift/internal/events"
	"github.com/rendis/mapsift/internal/export"
	"github.com/rendis/mapsift/internal/logging"
	"github.com/rendis/mapsift/internal/model"
	"github.com/rendis/mapsift/internal/pipeline"
	"github.com/rendis/mapsift/internal/tui"
)

type scanOptions struct {
	searchType  string
	query       string
	location    string
	zip         string
	state       string
	country     string
	lat         float64
	lng         float64
	radius      float64
	max         int
	concurrency int
	formats     string
	output      string
	headless    bool
	enrich      bool
}

var scanOpts scanOptions

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run a headless search and export the results",
	Example: `  mapsift scan --query "coffee shops" --location "Lisbon, Portugal"
  mapsift scan --type zipcode --query dentist --zip 90401 --state CA --format json,csv
  mapsift scan --type radius --query bakery --lat 40.4168 --lng -3.7038 --radius 800`,
	RunE: runScan,
}

func init() {
	f := scanCmd.Flags()
	f.StringVar(&scanOpts.searchType, "type", "location", "Search mode: location, zipcode or radius")
	f.StringVarP(&scanOpts.query, "query", "q", "", "What to search for (required)")
	f.StringVar(&scanOpts.location, "location", "", "Place name for location searches")
	f.StringVar(&scanOpts.zip, "zip", "", "ZIP code for zipcode searches")
	f.StringVar(&scanOpts.state, "state", "", "State that disambiguates the ZIP code")
	f.StringVar(&scanOpts.country, "country", "", "Country that disambiguates the ZIP code")
	f.Float64Var(&scanOpts.lat, "lat", 0, "Center latitude for radius searches")
	f.Float64Var(&scanOpts.lng, "lng", 0, "Center longitude for radius searches")
	f.Float64Var(&scanOpts.radius, "radius", 0, "Radius in meters (default DEFAULT_RADIUS)")
	f.IntVar(&scanOpts.max, "max", 0, "Maximum results (default MAX_RESULTS)")
	f.IntVar(&scanOpts.concurrency, "concurrency", 0, "Detail pages open at once (default MAX_CONCURRENCY)")
	f.StringVar(&scanOpts.formats, "format", "json,csv", "Export formats: json, csv, geojson, sqlite")
	f.StringVarP(&scanOpts.output, "output", "o", "", "Output directory (default OUTPUT_DIR)")
	f.BoolVar(&scanOpts.headless, "headless", true, "Run Chrome headless")
	f.BoolVar(&scanOpts.enrich, "enrich-emails", false, "Look up emails on business websites")
	_ = scanCmd.MarkFlagRequired("query")
}

// request builds the search request; only flags of the selected mode are read.
func (o scanOptions) request(cfg *config.Config, changed func(string) bool) model.SearchRequest {
	req := model.SearchRequest{
		Type:       model.SearchType(strings.ToLower(o.searchType)),
		Query:      o.query,
		MaxResults: cfg.MaxResults,
	}
	if o.max > 0 {
		req.MaxResults = o.max
	}
	switch req.Type {
	case model.SearchByLocation:
		req.Location = o.location
	case model.SearchByZipCode:
		req.ZipCode, req.State, req.CountryName = o.zip, o.state, o.country
	case model.SearchByRadius:
		if changed("lat") {
			lat := o.lat
			req.Latitude = &lat
		}
		if changed("lng") {
			lng := o.lng
			req.Longitude = &lng
		}
		req.RadiusMeters = cfg.DefaultRadius
		if o.radius > 0 {
			req.RadiusMeters = o.radius
		}
	}
	return req
}

// apply copies flags that override configuration.
func (o scanOptions) apply(cfg *config.Config, changed func(string) bool) {
	if o.concurrency > 0 {
		cfg.MaxConcurrency = min(o.concurrency, 20)
	}
	if o.output != "" {
		cfg.OutputDir = o.output
	}
	if changed("headless") {
		cfg.Headless = o.headless
	}
	if changed("enrich-emails") {
		cfg.EnrichEmails = o.enrich
	}
}

func runScan(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	changed := cmd.Flags().Changed
	scanOpts.apply(cfg, changed)

	req := scanOpts.request(cfg, changed)
	if err := req.Validate(); err != nil {
		return err
	}
	formats, err := export.ParseFormats(scanOpts.formats)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return fmt.Errorf("creating output dir: %w", err)
	}
	base := export.BaseName(time.Now())
	logPath := filepath.Join(cfg.OutputDir, base+".log")
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening log: %w", err)
	}
	defer logFile.Close()

	logger := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, Output: logFile})
	logger.WithFields(logrus.Fields{
		"mode":        req.Type,
		"query":       req.Query,
		"max":         req.MaxResults,
		"concurrency": cfg.MaxConcurrency,
	}).Info("=== Session start ===")

	stderr := cmd.ErrOrStderr()
	fmt.Fprintf(stderr, "Log: %s\n", logPath)
	fmt.Fprintf(stderr, "Search: %s\n", req.Describe())

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := pipeline.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer p.Close()

	res, err := p.Search(ctx, req, scraper.RunOptions{
		Emitter:  events.Multi(events.Logger(logger), terminal(stderr)),
		Progress: stderr,
	})
	if err != nil {
		return err
	}
	if ctx.Err() != nil {
		fmt.Fprintln(stderr, "\nInterrupted, saving partial results...")
	}

	var files []string
	if len(res.Records) > 0 {
		files, err = export.WriteAll(cfg.OutputDir, base, formats, req.Query, res.Records)
		if err != nil {
			return err
		}
		for _, f := range files {
			if ext := filepath.Ext(f); ext == ".json" || ext == ".db" {
				_ = tui.DefaultRecentStore().Add(f)
				break
			}
		}
	}
	logger.WithFields(res.Stats.Fields()).Infof("Done: %d results in %s", res.Count, res.Duration.Truncate(time.Second))

	printSummary(stderr, summary{
		request: req,
		result:  res,
		files:   files,
		logPath: logPath,
	})
	return nil
}

// terminal prints the human-facing events; progress lines come from the
// progress writer instead.
func terminal(w io.Writer) events.Emitter {
	return events.Func(func(ev events.Event) {
		switch ev.Kind {
		case events.KindInfo, events.KindSuccess:
			fmt.Fprintf(w, "%s\n", ev.Message)
		case events.KindError:
			fmt.Fprintf(w, "! %s\n", ev.Message)
		}
	})
}

type summary struct {
	request model.SearchRequest
	result  *scraper.Result
	files   []string
	logPath string
}

const rule = "══════════════════════════════"

func printSummary(w io.Writer, s summary) {
	st := s.result.Stats
	fmt.Fprintf(w, "\n%s\n  mapsift complete\n%s\n", rule, rule)
	fmt.Fprintf(w, "  Search:      %s\n", s.request.Describe())
	if s.result.Filter != "" {
		fmt.Fprintf(w, "  Filter:      %s\n", s.result.Filter)
	}
	fmt.Fprintf(w, "  Candidates:  %d (%s)\n", s.result.Candidates, s.result.Reason)
	fmt.Fprintf(w, "  Visited:     %d (%d failed)\n", st.PagesDone+st.PagesFailed, st.PagesFailed)
	fmt.Fprintf(w, "  Results:     %d\n", s.result.Count)
	if st.Rejected > 0 {
		fmt.Fprintf(w, "  Rejected:    %d\n", st.Rejected)
	}
	if st.Unlocatable > 0 {
		fmt.Fprintf(w, "  No coords:   %d\n", st.Unlocatable)
	}
	if st.EmailsFound > 0 {
		fmt.Fprintf(w, "  Emails:      %d\n", st.EmailsFound)
	}
	fmt.Fprintf(w, "  Duration:    %s\n", s.result.Duration.Truncate(time.Second))
	for _, f := range s.files {
		fmt.Fprintf(w, "  Output:      %s\n", f)
	}
	fmt.Fprintf(w, "  Log:         %s\n", s.logPath)
	fmt.Fprintln(w, rule)
}
