// Package collector discovers listing URLs by scrolling a search results feed.
package collector

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"github.com/rendis/mapsift/internal/engine/browser"
)

var feedSelectors = []string{`div[role="feed"]`, `div[role="main"]`, `div.PbZDve`}

var endMarkers = []string{"You've reached the end of the list", "No more results"}

// StopReason says why collection ended.
type StopReason string

const (
	StopTarget     StopReason = "target reached"
	StopEndMarker  StopReason = "end of results"
	StopStalled    StopReason = "feed stalled"
	StopIterations StopReason = "iteration cap"
	StopNoFeed     StopReason = "no feed"
	StopCanceled   StopReason = "canceled"
)

type Options struct {
	// MaxIterations caps scroll iterations regardless of progress.
	MaxIterations int
	// StallLimit is how many consecutive unchanged heights end collection.
	StallLimit int
	// ScrollPause is the wait for lazy-loaded entries after each scroll.
	ScrollPause time.Duration
	// FeedTimeout bounds the initial wait for the feed.
	FeedTimeout time.Duration
	// Settle is the pause after the search page loaded.
	Settle time.Duration
	Logger logrus.FieldLogger
}

func DefaultOptions() Options {
	return Options{
		MaxIterations: 100,
		StallLimit:    3,
		ScrollPause:   800 * time.Millisecond,
		FeedTimeout:   5 * time.Second,
		Settle:        time.Second,
	}
}

// Result is the ordered, de-duplicated set of listing URLs.
type Result struct {
	URLs       []string
	Iterations int
	Reason     StopReason
}

type Collector struct {
	opts Options
}

func New(opts Options) *Collector {
	def := DefaultOptions()
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = def.MaxIterations
	}
	if opts.StallLimit <= 0 {
		opts.StallLimit = def.StallLimit
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	return &Collector{opts: opts}
}

// state is everything the scroll loop carries between iterations.
type state struct {
	seen       map[string]struct{}
	urls       []string
	prevHeight int64
	stalls     int
	iterations int
}

func (s *state) add(u string) bool {
	if _, ok := s.seen[u]; ok {
		return false
	}
	s.seen[u] = struct{}{}
	s.urls = append(s.urls, u)
	return true
}

// Collect drives the search results feed on page, which must already show
// the search. It returns at most target URLs. Errors only surface when
// nothing could be read at all; partial progress is returned as-is.
func (c *Collector) Collect(ctx context.Context, page browser.Page, target int) (*Result, error) {
	if target <= 0 {
		return &Result{Reason: StopTarget}, nil
	}
	log := c.opts.Logger.WithField("target", target)

	for _, sel := range feedSelectors {
		if err := page.WaitForSelector(ctx, sel, c.opts.FeedTimeout); err == nil {
			break
		} else if errors.Is(err, browser.ErrPageUnavailable) {
			return nil, fmt.Errorf("waiting for feed: %w", err)
		}
	}
	if err := sleep(ctx, c.opts.Settle); err != nil {
		return &Result{Reason: StopCanceled}, nil
	}

	st := &state{seen: make(map[string]struct{})}
	res := &Result{}

	for {
		doc, err := c.snapshot(ctx, page)
		if err != nil {
			if len(st.urls) == 0 && st.iterations == 0 {
				return nil, err
			}
			log.WithError(err).Warn("feed snapshot failed, keeping collected urls")
			res.Reason = StopCanceled
			break
		}

		for _, u := range listingURLs(doc) {
			st.add(u)
		}

		if len(st.urls) >= target {
			res.Reason = StopTarget
			break
		}
		if hasEndMarker(doc) {
			res.Reason = StopEndMarker
			break
		}
		// hard cap
		if st.iterations >= c.opts.MaxIterations {
			res.Reason = StopIterations
			break
		}

		// scroll and let lazy entries load
		height, found, err := page.ScrollFeed(ctx, feedSelectors)
		if err != nil {
			log.WithError(err).Warn("scroll failed, keeping collected urls")
			res.Reason = StopCanceled
			break
		}
		if !found {
			res.Reason = StopNoFeed
			break
		}
		st.iterations++
		if err := sleep(ctx, c.opts.ScrollPause); err != nil {
			res.Reason = StopCanceled
			break
		}

		// stall detection
		if height == st.prevHeight {
			st.stalls++
			if st.stalls >= c.opts.StallLimit {
				res.Reason = StopStalled
				break
			}
		} else {
			st.stalls = 0
			st.prevHeight = height
		}

		if st.iterations%5 == 0 {
			log.WithFields(logrus.Fields{"iteration": st.iterations, "collected": len(st.urls)}).Debug("scrolling feed")
		}
	}

	res.URLs = st.urls
	if len(res.URLs) > target {
		res.URLs = res.URLs[:target]
	}
	res.Iterations = st.iterations
	log.WithFields(logrus.Fields{
		"collected":  len(res.URLs),
		"iterations": res.Iterations,
		"reason":     res.Reason,
	}).Info("url collection finished")
	return res, nil
}

func (c *Collector) snapshot(ctx context.Context, page browser.Page) (*goquery.Document, error) {
	html, err := page.HTML(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading feed: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parsing feed: %w", err)
	}
	return doc, nil
}

// listingURLs returns every listing link in document order, normalized to
// origin and path.
func listingURLs(doc *goquery.Document) []string {
	var out []string
	doc.Find(`a[href*="/maps/place/"]`).Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		if u, ok := NormalizeURL(href); ok {
			out = append(out, u)
		}
	})
	return out
}

// NormalizeURL strips query and fragment from an absolute listing URL.
func NormalizeURL(href string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(href))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", false
	}
	if !strings.Contains(u.Path, "/maps/place/") {
		return "", false
	}
	return u.Scheme + "://" + u.Host + u.EscapedPath(), true
}

func hasEndMarker(doc *goquery.Document) bool {
	text := doc.Find("body").Text()
	for _, m := range endMarkers {
		if strings.Contains(text, m) {
			return true
		}
	}
	return false
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
