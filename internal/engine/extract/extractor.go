// Package extract turns a rendered listing detail page into a BusinessRecord.
package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"github.com/rendis/mapsift/internal/engine/browser"
	"github.com/rendis/mapsift/internal/engine/normalize"
	"github.com/rendis/mapsift/internal/model"
)

const hoursToggle = `button[aria-label*="Hours"], button[data-item-id*="hours"]`

type Options struct {
	// MainTimeout bounds the wait for the main panel.
	MainTimeout time.Duration
	// Settle is the pause after the main panel shows up.
	Settle time.Duration
	// ExpandPause is the pause after expanding the hours section.
	ExpandPause time.Duration
	Now         func() time.Time
	Logger      logrus.FieldLogger
}

func DefaultOptions() Options {
	return Options{
		MainTimeout: 10 * time.Second,
		Settle:      500 * time.Millisecond,
		ExpandPause: 300 * time.Millisecond,
	}
}

type Extractor struct {
	opts Options
}

func New(opts Options) *Extractor {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	return &Extractor{opts: opts}
}

// Extract reads the page the given tab currently shows. Missing fields stay
// empty; only a page that went away yields an error, wrapping
// browser.ErrPageUnavailable.
func (e *Extractor) Extract(ctx context.Context, page browser.Page) (*model.BusinessRecord, error) {
	if err := page.WaitForSelector(ctx, `[role="main"]`, e.opts.MainTimeout); err != nil && unavailable(err) {
		return nil, fmt.Errorf("waiting for main panel: %w", err)
	}
	if err := sleep(ctx, e.opts.Settle); err != nil {
		return nil, err
	}

	// best effort, only adds detail to the hours section
	if err := page.Click(ctx, hoursToggle); err == nil {
		if err := sleep(ctx, e.opts.ExpandPause); err != nil {
			return nil, err
		}
	} else if unavailable(err) {
		return nil, fmt.Errorf("expanding hours: %w", err)
	}

	html, err := page.HTML(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading page: %w", asUnavailable(err))
	}
	pageURL, err := page.URL(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading page url: %w", asUnavailable(err))
	}

	rec, err := e.ExtractHTML(html, pageURL)
	if err != nil {
		return nil, err
	}
	if rec.Name == "" {
		e.opts.Logger.WithField("url", pageURL).Debug("extracted record without name")
	}
	return rec, nil
}

// ExtractHTML builds a record from a page snapshot and its URL.
func (e *Extractor) ExtractHTML(html, pageURL string) (*model.BusinessRecord, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parsing page: %w", err)
	}

	s := &snapshot{doc: doc, text: visibleText(doc), url: pageURL}
	rec := &model.BusinessRecord{GoogleMapsURL: pageURL}
	for _, r := range rules {
		r.apply(s, rec)
	}

	rec.Address = normalize.ParseAddress(rec.Address.Full)
	rec.Phone = normalize.FormatPhoneNumber(rec.Phone)
	rec.OpeningHours = normalize.ParseOpeningHours(rec.OpeningHours)
	if rec.OpeningHours == nil {
		rec.OpeningHours = []model.OpeningHours{}
	}
	if rec.Amenities == nil {
		rec.Amenities = []string{}
	}
	rec.ScrapedAt = e.opts.Now().UTC()
	return rec, nil
}

// visibleText approximates innerText: document text without scripts or styles.
func visibleText(doc *goquery.Document) string {
	body := doc.Find("body").Clone()
	body.Find("script, style, noscript").Remove()
	return body.Text()
}

func unavailable(err error) bool {
	return errors.Is(err, browser.ErrPageUnavailable)
}

func asUnavailable(err error) error {
	if unavailable(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", browser.ErrPageUnavailable, err)
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
