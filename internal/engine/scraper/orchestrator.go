// Package scraper runs a search end to end: resolve the area, collect listing
// URLs, fetch detail pages in bounded batches and filter the records.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rendis/mapsift/internal/engine/browser"
	"github.com/rendis/mapsift/internal/engine/collector"
	"github.com/rendis/mapsift/internal/engine/extract"
	"github.com/rendis/mapsift/internal/engine/geo"
	"github.com/rendis/mapsift/internal/events"
	"github.com/rendis/mapsift/internal/model"
)

type Config struct {
	// MaxConcurrency is the number of detail pages open at once.
	MaxConcurrency int
	// PageTimeout bounds a single detail page visit.
	PageTimeout time.Duration
	// CollectTimeout bounds the whole URL collection pass.
	CollectTimeout time.Duration
	// RetryCount is the retry budget per detail page in location mode.
	RetryCount int
	RetryDelay time.Duration
	// LocationRadius frames the map when a place name was geocoded.
	LocationRadius float64
	// CandidateMultiplier inflates the collection target in filtered modes
	// so that rejected records leave enough headroom.
	CandidateMultiplier float64
	// BatchMultiplier is the initial over-fetch factor of the convergence
	// loop. It adapts to the observed accept rate up to MaxBatchMultiplier.
	BatchMultiplier    float64
	MaxBatchMultiplier float64
	MaxBatchSize       int
	// StrictPostal disables the full-address substring match of the postal
	// filter.
	StrictPostal bool
}

func DefaultConfig() Config {
	return Config{
		MaxConcurrency:      5,
		PageTimeout:         30 * time.Second,
		CollectTimeout:      2 * time.Minute,
		RetryCount:          1,
		RetryDelay:          time.Second,
		LocationRadius:      10000,
		CandidateMultiplier: 3,
		BatchMultiplier:     1.5,
		MaxBatchMultiplier:  5,
		MaxBatchSize:        50,
	}
}

// Enricher fills in missing contact data on accepted records in place and
// returns how many emails it found.
type Enricher interface {
	EnrichEmails(ctx context.Context, records []model.BusinessRecord) int
}

// Deps are the collaborators of an Orchestrator. Browser is required; a nil
// Geocoder disables place-name resolution and a nil Enricher skips email
// enrichment.
type Deps struct {
	Browser   browser.Browser
	Geocoder  geo.Geocoder
	Collector *collector.Collector
	Extractor *extract.Extractor
	Enricher  Enricher
	Logger    logrus.FieldLogger
}

type Orchestrator struct {
	cfg       Config
	browser   browser.Browser
	geocoder  geo.Geocoder
	collector *collector.Collector
	extractor *extract.Extractor
	enricher  Enricher
	logger    logrus.FieldLogger
}

func New(cfg Config, deps Deps) (*Orchestrator, error) {
	if deps.Browser == nil {
		return nil, errors.New("scraper: browser is required")
	}
	def := DefaultConfig()
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = def.MaxConcurrency
	}
	if cfg.PageTimeout <= 0 {
		cfg.PageTimeout = def.PageTimeout
	}
	if cfg.CollectTimeout <= 0 {
		cfg.CollectTimeout = def.CollectTimeout
	}
	if cfg.RetryCount < 0 {
		cfg.RetryCount = 0
	}
	if cfg.LocationRadius <= 0 {
		cfg.LocationRadius = def.LocationRadius
	}
	if cfg.CandidateMultiplier < 1 {
		cfg.CandidateMultiplier = def.CandidateMultiplier
	}
	if cfg.BatchMultiplier < 1 {
		cfg.BatchMultiplier = def.BatchMultiplier
	}
	if cfg.MaxBatchMultiplier < cfg.BatchMultiplier {
		cfg.MaxBatchMultiplier = math.Max(def.MaxBatchMultiplier, cfg.BatchMultiplier)
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = def.MaxBatchSize
	}

	if deps.Logger == nil {
		deps.Logger = logrus.StandardLogger()
	}
	if deps.Collector == nil {
		opts := collector.DefaultOptions()
		opts.Logger = deps.Logger
		deps.Collector = collector.New(opts)
	}
	if deps.Extractor == nil {
		opts := extract.DefaultOptions()
		opts.Logger = deps.Logger
		deps.Extractor = extract.New(opts)
	}

	return &Orchestrator{
		cfg:       cfg,
		browser:   deps.Browser,
		geocoder:  deps.Geocoder,
		collector: deps.Collector,
		extractor: deps.Extractor,
		enricher:  deps.Enricher,
		logger:    deps.Logger,
	}, nil
}

// Result is what a finished search returns. Records is never nil.
type Result struct {
	Records    []model.BusinessRecord `json:"results"`
	Count      int                    `json:"count"`
	SearchURL  string                 `json:"searchUrl"`
	Filter     string                 `json:"filter"`
	Center     *geo.Place             `json:"-"`
	Candidates int                    `json:"candidates"`
	// Reason is why URL collection stopped.
	Reason   collector.StopReason `json:"collectStopReason"`
	Stats    StatsSnapshot        `json:"stats"`
	Duration time.Duration        `json:"duration"`
}

// plan is the mode-specific part of a search.
type plan struct {
	searchURL string
	filter    geo.Filter
	center    *geo.Place
	// target is the number of listing URLs to collect.
	target int
}

type runState struct {
	stats    *Stats
	emitter  events.Emitter
	onRecord func(model.BusinessRecord)
}

// Search runs one request to completion. Only an invalid request is an
// error; page failures are logged and skipped, and a search without matches
// returns an empty record list.
func (o *Orchestrator) Search(ctx context.Context, req model.SearchRequest, opts RunOptions) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	start := time.Now()
	run := &runState{
		stats:    opts.Stats,
		emitter:  opts.Emitter,
		onRecord: opts.OnRecord,
	}
	if run.stats == nil {
		run.stats = &Stats{}
	}
	if run.emitter == nil {
		run.emitter = events.Discard
	}

	log := o.logger.WithFields(logrus.Fields{"mode": req.Type, "query": req.Query})
	events.Emitf(run.emitter, events.KindInfo, "Starting search: %s", req.Describe())

	p := o.plan(ctx, req, run)
	log = log.WithField("filter", p.filter.String())
	log.WithField("url", p.searchURL).Info("search planned")
	events.EmitData(run.emitter, events.KindInfo, "Search URL: "+p.searchURL, map[string]any{"url": p.searchURL})

	collected := o.collect(ctx, p, run)
	run.stats.Candidates.Store(int64(len(collected.URLs)))
	events.Emitf(run.emitter, events.KindInfo, "Collected %d candidate URLs (%s)", len(collected.URLs), collected.Reason)

	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		reportProgress(opts.Progress, log, run.stats, start, done)
	}()

	var records []model.BusinessRecord
	if _, unfiltered := p.filter.(geo.AcceptAll); unfiltered {
		fetched := o.fetchBatch(ctx, collected.URLs, o.cfg.RetryCount, run)
		records = o.keep(fetched, p.filter, req.MaxResults, nil, run)
	} else {
		records = o.converge(ctx, collected.URLs, p.filter, req.MaxResults, run, log)
	}

	close(done)
	<-stopped
	if opts.Progress != nil {
		fmt.Fprintln(opts.Progress)
	}

	if o.enricher != nil && len(records) > 0 && ctx.Err() == nil {
		events.Emitf(run.emitter, events.KindInfo, "Looking up emails for %d businesses", len(records))
		run.stats.EmailsFound.Add(int64(o.enricher.EnrichEmails(ctx, records)))
	}

	res := &Result{
		Records:    records,
		Count:      len(records),
		SearchURL:  p.searchURL,
		Filter:     p.filter.String(),
		Center:     p.center,
		Candidates: len(collected.URLs),
		Reason:     collected.Reason,
		Stats:      run.stats.Snapshot(),
		Duration:   time.Since(start),
	}

	log.WithFields(logrus.Fields(res.Stats.Fields())).
		WithField("duration", res.Duration.Truncate(time.Millisecond).String()).
		Info("search finished")

	if res.Count == 0 {
		events.Emitf(run.emitter, events.KindInfo, "No businesses found")
	} else {
		events.Emitf(run.emitter, events.KindSuccess, "Found %d businesses", res.Count)
	}
	data := res.Stats.Fields()
	data["count"] = res.Count
	events.EmitData(run.emitter, events.KindComplete, "Search complete", data)
	return res, nil
}

// plan builds the search URL, the post-filter and the collection target for
// the request mode. Geocoding failures only degrade the search to text.
func (o *Orchestrator) plan(ctx context.Context, req model.SearchRequest, run *runState) plan {
	inflated := int(math.Ceil(float64(req.MaxResults) * o.cfg.CandidateMultiplier))

	switch req.Type {
	case model.SearchByZipCode:
		// geocoding is informational here, the search itself stays textual
		if place, err := o.geocode(ctx, req.PostalLocation(), run); err == nil {
			events.Emitf(run.emitter, events.KindInfo, "Detected area: %s", place.DisplayName)
		}
		return plan{
			searchURL: geo.SearchURL{Query: req.Query, Location: req.ZipCode}.Build(),
			filter:    geo.PostalFilter{Target: req.ZipCode, Strict: o.cfg.StrictPostal},
			target:    inflated,
		}

	case model.SearchByRadius:
		center := &geo.Place{Lat: *req.Latitude, Lng: *req.Longitude}
		return plan{
			searchURL: geo.SearchURL{Query: req.Query, Center: center, RadiusMeters: req.RadiusMeters}.Build(),
			filter:    geo.NewRadiusFilter(center.Lat, center.Lng, req.RadiusMeters),
			center:    center,
			target:    inflated,
		}

	default:
		p := plan{filter: geo.AcceptAll{}, target: req.MaxResults}
		if req.Location == "" {
			p.searchURL = geo.SearchURL{Query: req.Query}.Build()
			return p
		}
		place, err := o.geocode(ctx, req.Location, run)
		if err != nil {
			p.searchURL = geo.SearchURL{Query: req.Query, Location: req.Location}.Build()
			return p
		}
		events.Emitf(run.emitter, events.KindInfo, "Location resolved: %s", place.DisplayName)
		p.center = place
		p.searchURL = geo.SearchURL{Query: req.Query, Center: place, RadiusMeters: o.cfg.LocationRadius}.Build()
		return p
	}
}

func (o *Orchestrator) geocode(ctx context.Context, query string, run *runState) (*geo.Place, error) {
	if o.geocoder == nil {
		return nil, fmt.Errorf("%w: no geocoder configured", ErrGeocodeFailure)
	}
	place, err := o.geocoder.Geocode(ctx, query)
	if err != nil {
		o.logger.WithField("location", query).WithError(err).Warn("geocoding failed, using text search")
		events.Emitf(run.emitter, events.KindInfo, "Could not resolve %q, using text search", query)
		return nil, fmt.Errorf("%w: %w", ErrGeocodeFailure, err)
	}
	return place, nil
}

// collect drives one search page through the collector. It is best effort:
// any failure yields whatever was gathered, possibly nothing.
func (o *Orchestrator) collect(ctx context.Context, p plan, run *runState) *collector.Result {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.CollectTimeout)
	defer cancel()

	empty := &collector.Result{Reason: collector.StopCanceled}

	page, err := o.browser.NewPage(ctx)
	if err != nil {
		o.logger.WithError(err).Error("opening search page")
		events.Emitf(run.emitter, events.KindError, "Could not open search page: %v", err)
		return empty
	}
	defer page.Close()

	if err := page.Navigate(ctx, p.searchURL); err != nil {
		o.logger.WithField("url", p.searchURL).WithError(err).Error("loading search page")
		events.Emitf(run.emitter, events.KindError, "Could not load search page: %s", failureReason(err))
		return empty
	}

	events.Emitf(run.emitter, events.KindInfo, "Collecting up to %d listing URLs", p.target)
	res, err := o.collector.Collect(ctx, page, p.target)
	if err != nil {
		o.logger.WithError(err).Error("collecting listing urls")
		events.Emitf(run.emitter, events.KindError, "URL collection failed: %s", failureReason(err))
		return empty
	}
	return res
}

// converge fetches candidates in batches sized to the remaining need until
// limit records are accepted or the candidates run out. Batches never overlap.
func (o *Orchestrator) converge(ctx context.Context, urls []string, filter geo.Filter, limit int, run *runState, log logrus.FieldLogger) []model.BusinessRecord {
	accepted := make([]model.BusinessRecord, 0, limit)
	mult := o.cfg.BatchMultiplier
	next := 0

	for batch := 1; len(accepted) < limit && next < len(urls) && ctx.Err() == nil; batch++ {
		need := limit - len(accepted)
		size := batchSize(need, mult, o.cfg.MaxBatchSize, len(urls)-next)
		chunk := urls[next : next+size]
		next += size

		events.EmitData(run.emitter, events.KindProgress,
			fmt.Sprintf("Batch %d: checking %d candidates (%d/%d accepted)", batch, size, len(accepted), limit),
			map[string]any{"batch": batch, "size": size, "accepted": len(accepted), "remaining": len(urls) - next})

		fetched := o.fetchBatch(ctx, chunk, 0, run)
		before := len(accepted)
		accepted = o.keep(fetched, filter, limit, accepted, run)
		gained := len(accepted) - before
		mult = nextMultiplier(gained, len(chunk), o.cfg.BatchMultiplier, o.cfg.MaxBatchMultiplier)

		log.WithFields(logrus.Fields{
			"batch":      batch,
			"size":       size,
			"gained":     gained,
			"accepted":   len(accepted),
			"inspected":  next,
			"multiplier": mult,
		}).Debug("batch done")
	}

	if len(accepted) < limit && next >= len(urls) {
		log.WithFields(logrus.Fields{"accepted": len(accepted), "candidates": len(urls)}).Info("candidates exhausted")
	}
	return accepted
}

// keep applies filter to records and appends the accepted ones to dst until
// it holds limit records.
func (o *Orchestrator) keep(records []model.BusinessRecord, filter geo.Filter, limit int, dst []model.BusinessRecord, run *runState) []model.BusinessRecord {
	if dst == nil {
		dst = make([]model.BusinessRecord, 0, min(limit, len(records)))
	}
	for i := range records {
		if len(dst) >= limit {
			break
		}
		rec := records[i]
		switch filter.Check(&rec) {
		case geo.Accepted:
			run.stats.Accepted.Add(1)
			dst = append(dst, rec)
			if run.onRecord != nil {
				run.onRecord(rec)
			}
		case geo.Unlocatable:
			run.stats.Unlocatable.Add(1)
			o.logger.WithField("name", rec.Name).Debug("record without coordinates excluded")
		default:
			run.stats.Rejected.Add(1)
		}
	}
	return dst
}

// batchSize is the over-fetched need, at least need itself, capped by
// maxSize and by what is left.
func batchSize(need int, mult float64, maxSize, remaining int) int {
	size := max(int(math.Floor(float64(need)*mult)), need, 1)
	if maxSize > 0 {
		size = min(size, maxSize)
	}
	return min(size, remaining)
}

// nextMultiplier estimates how many candidates yield one accepted record.
func nextMultiplier(gained, inspected int, lo, hi float64) float64 {
	if inspected == 0 {
		return lo
	}
	if gained == 0 {
		return hi
	}
	return math.Max(lo, math.Min(hi, float64(inspected)/float64(gained)))
}
