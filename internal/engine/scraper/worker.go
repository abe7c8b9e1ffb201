package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/rendis/mapsift/internal/engine/browser"
	"github.com/rendis/mapsift/internal/events"
	"github.com/rendis/mapsift/internal/model"
)

// Stats are live counters for one search, safe to read while it runs.
type Stats struct {
	Candidates  atomic.Int64
	PagesDone   atomic.Int64
	PagesFailed atomic.Int64
	Extracted   atomic.Int64
	Accepted    atomic.Int64
	Rejected    atomic.Int64
	Unlocatable atomic.Int64
	EmailsFound atomic.Int64
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	Candidates  int64 `json:"candidates"`
	PagesDone   int64 `json:"pagesDone"`
	PagesFailed int64 `json:"pagesFailed"`
	Extracted   int64 `json:"extracted"`
	Accepted    int64 `json:"accepted"`
	Rejected    int64 `json:"rejected"`
	Unlocatable int64 `json:"unlocatable"`
	EmailsFound int64 `json:"emailsFound"`
}

func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Candidates:  s.Candidates.Load(),
		PagesDone:   s.PagesDone.Load(),
		PagesFailed: s.PagesFailed.Load(),
		Extracted:   s.Extracted.Load(),
		Accepted:    s.Accepted.Load(),
		Rejected:    s.Rejected.Load(),
		Unlocatable: s.Unlocatable.Load(),
		EmailsFound: s.EmailsFound.Load(),
	}
}

func (s StatsSnapshot) Fields() map[string]any {
	return map[string]any{
		"candidates":  s.Candidates,
		"pagesDone":   s.PagesDone,
		"pagesFailed": s.PagesFailed,
		"extracted":   s.Extracted,
		"accepted":    s.Accepted,
		"rejected":    s.Rejected,
		"unlocatable": s.Unlocatable,
		"emailsFound": s.EmailsFound,
	}
}

// RunOptions provides optional hooks for one search.
type RunOptions struct {
	// Emitter receives structured progress events.
	Emitter events.Emitter
	// OnRecord is called for each accepted record, e.g. to plot it live.
	OnRecord func(model.BusinessRecord)
	// Stats allows passing an external Stats object for live progress
	// tracking. If nil, Search creates its own.
	Stats *Stats
	// Progress, if set, receives a carriage-return progress line every two
	// seconds.
	Progress io.Writer
}

// fetchBatch visits every URL with bounded concurrency. Records come back in
// completion order; failed pages are counted and skipped.
func (o *Orchestrator) fetchBatch(ctx context.Context, urls []string, retries int, run *runState) []model.BusinessRecord {
	var (
		mu      sync.Mutex
		records = make([]model.BusinessRecord, 0, len(urls))
	)

	g := new(errgroup.Group)
	g.SetLimit(o.cfg.MaxConcurrency)

	for _, u := range urls {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			rec, err := o.fetchWithRetry(ctx, u, retries)
			if err != nil {
				run.stats.PagesFailed.Add(1)
				o.logger.WithFields(logrus.Fields{"url": u, "reason": failureReason(err)}).WithError(err).Warn("skipping listing")
				events.EmitData(run.emitter, events.KindError, "Extraction failed: "+failureReason(err), map[string]any{"url": u})
				return nil
			}
			run.stats.PagesDone.Add(1)
			if rec.Name != "" {
				run.stats.Extracted.Add(1)
			}

			mu.Lock()
			records = append(records, *rec)
			n := len(records)
			mu.Unlock()

			if n%5 == 0 || n == len(urls) {
				events.Emitf(run.emitter, events.KindProgress, "Progress: [%d/%d] %s", n, len(urls), rec.Name)
			}
			return nil
		})
	}
	_ = g.Wait()
	return records
}

func (o *Orchestrator) fetchWithRetry(ctx context.Context, u string, retries int) (*model.BusinessRecord, error) {
	builder := retrypolicy.NewBuilder[*model.BusinessRecord]().
		WithMaxRetries(retries).
		HandleIf(func(_ *model.BusinessRecord, err error) bool {
			return err != nil && ctx.Err() == nil
		}).
		ReturnLastFailure()
	if o.cfg.RetryDelay > 0 {
		builder = builder.WithDelay(o.cfg.RetryDelay)
	}

	return failsafe.With(builder.Build()).WithContext(ctx).Get(func() (*model.BusinessRecord, error) {
		return o.fetchOne(ctx, u)
	})
}

// fetchOne opens a fresh page for u, bounded by the per-page timeout.
func (o *Orchestrator) fetchOne(ctx context.Context, u string) (*model.BusinessRecord, error) {
	pageCtx, cancel := context.WithTimeout(ctx, o.cfg.PageTimeout)
	defer cancel()

	page, err := o.browser.NewPage(pageCtx)
	if err != nil {
		return nil, fmt.Errorf("opening page: %w", err)
	}
	defer page.Close()

	if err := page.Navigate(pageCtx, u); err != nil {
		return nil, err
	}
	if err := page.WaitForLoad(pageCtx, o.cfg.PageTimeout); err != nil && errors.Is(err, browser.ErrPageUnavailable) {
		return nil, err
	}

	rec, err := o.extractor.Extract(pageCtx, page)
	if err != nil {
		return nil, err
	}
	if rec.GoogleMapsURL == "" {
		rec.GoogleMapsURL = u
	}
	return rec, nil
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, browser.ErrPageUnavailable):
		return "page closed"
	case errors.Is(err, browser.ErrNavigationTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "request failed"
	}
}

// reportProgress logs a PROGRESS line every 10s and, when w is set, rewrites
// a one-line status every 2s. It returns when done is closed.
func reportProgress(w io.Writer, logger logrus.FieldLogger, stats *Stats, start time.Time, done <-chan struct{}) {
	ticker := time.NewTicker(2 * time.Second)
	logTicker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	defer logTicker.Stop()

	for {
		select {
		case <-ticker.C:
			if w == nil {
				continue
			}
			s := stats.Snapshot()
			fmt.Fprintf(w, "\r[%d/%d pages] %d accepted | %d rejected | %d failed | %s",
				s.PagesDone+s.PagesFailed, s.Candidates, s.Accepted, s.Rejected, s.PagesFailed,
				time.Since(start).Truncate(time.Second))
		case <-logTicker.C:
			s := stats.Snapshot()
			logger.WithFields(logrus.Fields(s.Fields())).
				WithField("elapsed", time.Since(start).Truncate(time.Second).String()).
				Info("PROGRESS")
		case <-done:
			return
		}
	}
}
