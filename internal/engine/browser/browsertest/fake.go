// Package browsertest provides an in-memory browser serving fixture HTML.
package browsertest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rendis/mapsift/internal/engine/browser"
)

// Feed scripts a scrollable results list. Step 0 shows Batches[0]; every
// scroll reveals the next batch. Once batches run out the height stops
// growing.
type Feed struct {
	Batches [][]string
	// EndMarkerAt is the step from which the end-of-list text is shown.
	// Negative disables it.
	EndMarkerAt int
	// Missing renders the page without any feed container.
	Missing bool
}

// Browser serves Pages by exact URL and the Feed for any /maps/search/ URL.
type Browser struct {
	Pages map[string]string
	// Redirects maps a navigated URL to the URL the page reports afterwards.
	Redirects map[string]string
	// Errors fails navigation to the given URLs.
	Errors map[string]error
	// Delays holds navigation before returning.
	Delays map[string]time.Duration
	Feed   *Feed

	mu          sync.Mutex
	navigations []string
	scrolls     int
	open        int
	maxOpen     int
}

func New() *Browser {
	return &Browser{
		Pages:     map[string]string{},
		Redirects: map[string]string{},
		Errors:    map[string]error{},
		Delays:    map[string]time.Duration{},
	}
}

func (b *Browser) NewPage(ctx context.Context) (browser.Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.open++
	if b.open > b.maxOpen {
		b.maxOpen = b.open
	}
	return &Page{b: b}, nil
}

func (b *Browser) Close() error { return nil }

// Navigations returns every URL navigated to, in call order.
func (b *Browser) Navigations() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.navigations...)
}

// DetailNavigations counts navigations to non-search URLs.
func (b *Browser) DetailNavigations() int {
	n := 0
	for _, u := range b.Navigations() {
		if !isSearch(u) {
			n++
		}
	}
	return n
}

func (b *Browser) Scrolls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.scrolls
}

// MaxOpenPages is the highest number of simultaneously open pages seen.
func (b *Browser) MaxOpenPages() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.maxOpen
}

func isSearch(u string) bool {
	return strings.Contains(u, "/maps/search/")
}

// Page is a single fake tab.
type Page struct {
	b      *Browser
	url    string
	step   int
	closed bool
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	p.b.mu.Lock()
	p.b.navigations = append(p.b.navigations, url)
	err := p.b.Errors[url]
	delay := p.b.Delays[url]
	redirect := p.b.Redirects[url]
	p.b.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", browser.ErrNavigationTimeout, ctx.Err())
		}
	}
	if err != nil {
		return err
	}
	if redirect != "" {
		url = redirect
	}
	p.url = url
	p.step = 0
	return nil
}

func (p *Page) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error {
	return p.check()
}

func (p *Page) WaitForLoad(ctx context.Context, timeout time.Duration) error {
	return p.check()
}

func (p *Page) HTML(ctx context.Context) (string, error) {
	if err := p.check(); err != nil {
		return "", err
	}
	if isSearch(p.url) && p.b.Feed != nil {
		return p.renderFeed(), nil
	}
	p.b.mu.Lock()
	html, ok := p.b.Pages[p.url]
	p.b.mu.Unlock()
	if !ok {
		return "", browser.ErrPageUnavailable
	}
	return html, nil
}

func (p *Page) URL(ctx context.Context) (string, error) {
	if err := p.check(); err != nil {
		return "", err
	}
	return p.url, nil
}

func (p *Page) ScrollFeed(ctx context.Context, selectors []string) (int64, bool, error) {
	if err := p.check(); err != nil {
		return 0, false, err
	}
	f := p.b.Feed
	if f == nil || f.Missing {
		return 0, false, nil
	}
	p.b.mu.Lock()
	p.b.scrolls++
	p.b.mu.Unlock()
	if p.step < len(f.Batches)-1 {
		p.step++
	}
	return int64(1000 * (p.step + 1)), true, nil
}

func (p *Page) Click(ctx context.Context, selector string) error {
	if err := p.check(); err != nil {
		return err
	}
	return browser.ErrNoElement
}

func (p *Page) Evaluate(ctx context.Context, script string, out any) error {
	return p.check()
}

func (p *Page) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	p.b.mu.Lock()
	p.b.open--
	p.b.mu.Unlock()
	return nil
}

func (p *Page) check() error {
	if p.closed {
		return browser.ErrPageUnavailable
	}
	return nil
}

func (p *Page) renderFeed() string {
	f := p.b.Feed
	var sb strings.Builder
	sb.WriteString("<html><body><div role=\"main\">")
	if !f.Missing {
		sb.WriteString(`<div role="feed">`)
		for i := 0; i <= p.step && i < len(f.Batches); i++ {
			for _, u := range f.Batches[i] {
				fmt.Fprintf(&sb, `<div role="article"><a class="hfpxzc" href="%s?authuser=0&hl=en"></a></div>`, u)
			}
		}
		if f.EndMarkerAt >= 0 && p.step >= f.EndMarkerAt {
			sb.WriteString(`<p class="HlvSq"><span>You've reached the end of the list.</span></p>`)
		}
		sb.WriteString(`</div>`)
	}
	sb.WriteString("</div></body></html>")
	return sb.String()
}

// PlaceURL builds a listing URL with embedded coordinates.
func PlaceURL(name string, lat, lng float64) string {
	return fmt.Sprintf("https://www.google.com/maps/place/%s/@%.6f,%.6f,17z/data=!4m6!3m5!1s0x0:0x%x!8m2", name, lat, lng, len(name))
}

// PlacePage renders a minimal detail page for name.
func PlacePage(name, address string) string {
	return fmt.Sprintf(`<html><body><div role="main"><h1 class="DUwDvf">%s</h1>
<button data-item-id="address" aria-label="Address: %s"><div>%s</div></button>
</div></body></html>`, name, address, address)
}
