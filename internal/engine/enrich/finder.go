// Package enrich looks up contact emails on business websites.
package enrich

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/rendis/mapsift/internal/engine/netclient"
	"github.com/rendis/mapsift/internal/model"
)

var emailRe = regexp.MustCompile(`(?i)[a-z0-9._%+\-]+@[a-z0-9.-]+\.[a-z]{2,}`)

// Links whose text or URL contains one of these are followed first.
var contactKeywords = []string{
	"contact", "kontakt", "contacto", "about", "über uns", "impressum",
	"team", "imprint", "legal",
}

// asset names that look like emails, e.g. logo@2x.png
var assetSuffixes = []string{".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp"}

type Options struct {
	// MaxPages caps pages fetched per website.
	MaxPages int
	// Concurrency is the number of websites visited at once.
	Concurrency int
	Client      *netclient.Client
	// MX verifies the domain of a candidate email. Nil accepts every domain.
	MX     MXChecker
	Logger logrus.FieldLogger
}

// Finder crawls a few same-host pages of a website looking for an email.
type Finder struct {
	opts Options
}

func NewFinder(opts Options) *Finder {
	if opts.MaxPages <= 0 {
		opts.MaxPages = 6
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 5
	}
	if opts.Client == nil {
		opts.Client = netclient.New(netclient.Options{MaxRetries: 1})
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	return &Finder{opts: opts}
}

// EnrichEmails fills Email on records that have a website but no email.
// Lookups that fail leave the record untouched.
func (f *Finder) EnrichEmails(ctx context.Context, records []model.BusinessRecord) int {
	g := new(errgroup.Group)
	g.SetLimit(f.opts.Concurrency)

	found := make([]bool, len(records))
	for i := range records {
		if records[i].Website == "" || records[i].Email != "" {
			continue
		}
		g.Go(func() error {
			email, err := f.FindEmail(ctx, records[i].Website)
			if err != nil {
				f.opts.Logger.WithField("website", records[i].Website).WithError(err).Debug("email lookup failed")
				return nil
			}
			if email != "" {
				records[i].Email = email
				found[i] = true
			}
			return nil
		})
	}
	_ = g.Wait()

	n := 0
	for _, ok := range found {
		if ok {
			n++
		}
	}
	return n
}

// FindEmail visits website and up to MaxPages-1 contact-like pages on the
// same host. It returns "" without error when nothing verifiable was found.
func (f *Finder) FindEmail(ctx context.Context, website string) (string, error) {
	start := ensureScheme(unwrapRedirect(website))
	root, err := url.Parse(start)
	if err != nil || root.Host == "" {
		return "", fmt.Errorf("invalid website url %q", website)
	}

	queue := []string{start}
	visited := make(map[string]struct{})
	var firstErr error
	pages := 0

	for len(queue) > 0 && pages < f.opts.MaxPages {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		current := queue[0]
		queue = queue[1:]
		if _, seen := visited[current]; seen {
			continue
		}
		visited[current] = struct{}{}

		body, err := f.opts.Client.Get(ctx, current, nil)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		pages++

		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
		if err != nil {
			continue
		}
		if email := f.pick(ctx, mailtoCandidates(doc)); email != "" {
			return email, nil
		}
		if email := f.pick(ctx, emailRe.FindAllString(string(body), -1)); email != "" {
			return email, nil
		}
		queue = append(queue, contactLinks(doc, current, root)...)
	}

	if pages == 0 {
		return "", firstErr
	}
	return "", nil
}

// pick returns the first candidate that sanitizes to an email on a domain
// with MX records.
func (f *Finder) pick(ctx context.Context, candidates []string) string {
	for _, c := range candidates {
		email := sanitizeEmail(c)
		if email == "" {
			continue
		}
		if f.opts.MX != nil && !f.opts.MX.HasMX(ctx, email[strings.LastIndex(email, "@")+1:]) {
			continue
		}
		return email
	}
	return ""
}

func mailtoCandidates(doc *goquery.Document) []string {
	var out []string
	doc.Find(`a[href]`).Each(func(_ int, sel *goquery.Selection) {
		href := strings.TrimSpace(sel.AttrOr("href", ""))
		if len(href) > 7 && strings.EqualFold(href[:7], "mailto:") {
			out = append(out, href[7:])
		}
	})
	return out
}

// contactLinks lists same-host links that look like contact pages. When none
// match, the first two same-host links are returned instead.
func contactLinks(doc *goquery.Document, pageURL string, root *url.URL) []string {
	base, err := url.Parse(pageURL)
	if err != nil {
		base = root
	}

	var preferred, fallback []string
	doc.Find(`a[href]`).Each(func(_ int, sel *goquery.Selection) {
		href := strings.TrimSpace(sel.AttrOr("href", ""))
		if href == "" || strings.HasPrefix(strings.ToLower(href), "mailto:") || strings.HasPrefix(href, "#") {
			return
		}
		abs, err := base.Parse(href)
		if err != nil || !strings.EqualFold(abs.Hostname(), root.Hostname()) {
			return
		}
		abs.Fragment = ""
		link := abs.String()

		text := strings.ToLower(strings.TrimSpace(sel.Text()) + " " + link)
		for _, kw := range contactKeywords {
			if strings.Contains(text, kw) {
				preferred = append(preferred, link)
				return
			}
		}
		if len(fallback) < 2 {
			fallback = append(fallback, link)
		}
	})

	if len(preferred) > 0 {
		return preferred
	}
	return fallback
}

func sanitizeEmail(raw string) string {
	clean := strings.TrimSpace(raw)
	if i := strings.Index(clean, "?"); i >= 0 {
		clean = clean[:i]
	}
	if decoded, err := url.QueryUnescape(clean); err == nil {
		clean = decoded
	}
	clean = strings.Trim(clean, "<>()[]{}.,;:\"'` ")
	match := strings.ToLower(emailRe.FindString(clean))
	if match == "" {
		return ""
	}
	for _, suffix := range assetSuffixes {
		if strings.HasSuffix(match, suffix) {
			return ""
		}
	}
	return match
}

// unwrapRedirect resolves google.com/url?q=<target> links.
func unwrapRedirect(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "https://www.google.com/url?") {
		if u, err := url.Parse(raw); err == nil {
			if q := u.Query().Get("q"); q != "" {
				return q
			}
		}
	}
	return raw
}

func ensureScheme(raw string) string {
	if strings.HasPrefix(strings.ToLower(raw), "http") {
		return raw
	}
	return "https://" + strings.TrimLeft(raw, "/")
}
