package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/sirupsen/logrus"
)

const defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

var trackingHosts = []string{
	"google-analytics.com",
	"googletagmanager.com",
	"doubleclick.net",
	"googlesyndication.com",
	"googleadservices.com",
	"facebook.net",
	"hotjar.com",
}

const consentScript = `(function () {
  const selectors = [
    'button[aria-label="Accept all"]',
    'button[aria-label="I agree"]',
    'button[aria-label="Alles akzeptieren"]',
    'button[aria-label="Aceptar todo"]',
    'form[action*="consent"] button'
  ];
  for (const sel of selectors) {
    const btn = document.querySelector(sel);
    if (btn) { btn.click(); return true; }
  }
  return false;
})();`

type Options struct {
	Headless bool
	// BlockResources aborts images, media, fonts, stylesheets and tracker
	// requests. It only speeds pages up.
	BlockResources bool
	ProxyURL       string
	UserAgent      string
	Logger         logrus.FieldLogger
}

// Chrome drives a local Chrome through the DevTools protocol.
type Chrome struct {
	opts          Options
	logger        logrus.FieldLogger
	cancelAlloc   context.CancelFunc
	browserCtx    context.Context
	cancelBrowser context.CancelFunc
}

func NewChrome(ctx context.Context, opts Options) (*Chrome, error) {
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("lang", "en-US"),
		chromedp.WindowSize(1366, 900),
		chromedp.UserAgent(opts.UserAgent),
	)
	if opts.ProxyURL != "" {
		allocOpts = append(allocOpts, chromedp.ProxyServer(opts.ProxyURL))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocOpts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)

	// first Run starts the browser process
	if err := chromedp.Run(browserCtx); err != nil {
		cancelBrowser()
		cancelAlloc()
		return nil, fmt.Errorf("starting chrome: %w", err)
	}

	return &Chrome{
		opts:          opts,
		logger:        logger,
		cancelAlloc:   cancelAlloc,
		browserCtx:    browserCtx,
		cancelBrowser: cancelBrowser,
	}, nil
}

func (c *Chrome) NewPage(ctx context.Context) (Page, error) {
	tabCtx, cancel := chromedp.NewContext(c.browserCtx)
	p := &chromePage{tabCtx: tabCtx, cancel: cancel, logger: c.logger}

	// the first Run on the tab context creates the target; it must not run
	// under a shorter-lived context or the tab dies with it
	if err := chromedp.Run(tabCtx); err != nil {
		cancel()
		return nil, fmt.Errorf("opening tab: %w", err)
	}

	if c.opts.BlockResources {
		chromedp.ListenTarget(tabCtx, func(ev any) {
			e, ok := ev.(*fetch.EventRequestPaused)
			if !ok {
				return
			}
			go func() {
				execCtx := cdp.WithExecutor(tabCtx, chromedp.FromContext(tabCtx).Target)
				if shouldBlock(e.ResourceType, e.Request.URL) {
					_ = fetch.FailRequest(e.RequestID, network.ErrorReasonBlockedByClient).Do(execCtx)
					return
				}
				_ = fetch.ContinueRequest(e.RequestID).Do(execCtx)
			}()
		})
		if err := p.run(ctx, fetch.Enable()); err != nil {
			cancel()
			return nil, fmt.Errorf("enabling request interception: %w", err)
		}
	}

	return p, nil
}

func (c *Chrome) Close() error {
	c.cancelBrowser()
	c.cancelAlloc()
	return nil
}

func shouldBlock(rt network.ResourceType, rawURL string) bool {
	switch rt {
	case network.ResourceTypeImage, network.ResourceTypeMedia,
		network.ResourceTypeFont, network.ResourceTypeStylesheet:
		return true
	}
	for _, host := range trackingHosts {
		if strings.Contains(rawURL, host) {
			return true
		}
	}
	return false
}

type chromePage struct {
	tabCtx context.Context
	cancel context.CancelFunc
	logger logrus.FieldLogger
}

// run executes actions on the tab, bounded by the caller's context.
func (p *chromePage) run(ctx context.Context, actions ...chromedp.Action) error {
	if p.tabCtx.Err() != nil {
		return ErrPageUnavailable
	}
	runCtx, cancel := context.WithCancel(p.tabCtx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	if dl, ok := ctx.Deadline(); ok {
		var cancelDL context.CancelFunc
		runCtx, cancelDL = context.WithDeadline(runCtx, dl)
		defer cancelDL()
	}

	err := chromedp.Run(runCtx, actions...)
	switch {
	case err == nil:
		return nil
	case p.tabCtx.Err() != nil:
		return ErrPageUnavailable
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrNavigationTimeout, err)
	case ctx.Err() != nil:
		return ctx.Err()
	default:
		return err
	}
}

func (p *chromePage) Navigate(ctx context.Context, url string) error {
	if err := p.run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigating to %s: %w", url, err)
	}
	var clicked bool
	if err := p.run(ctx, chromedp.Evaluate(consentScript, &clicked)); err == nil && clicked {
		p.logger.WithField("url", url).Debug("dismissed consent dialog")
	}
	return nil
}

func (p *chromePage) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return p.run(waitCtx, chromedp.WaitReady(selector, chromedp.ByQuery))
}

func (p *chromePage) WaitForLoad(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		var state string
		if err := p.run(ctx, chromedp.Evaluate(`document.readyState`, &state)); err != nil {
			return err
		}
		if state == "complete" {
			return nil
		}
		if time.Now().After(deadline) {
			return ErrNavigationTimeout
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}
}

func (p *chromePage) HTML(ctx context.Context) (string, error) {
	var html string
	if err := p.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return html, nil
}

func (p *chromePage) URL(ctx context.Context) (string, error) {
	var u string
	if err := p.run(ctx, chromedp.Location(&u)); err != nil {
		return "", err
	}
	return u, nil
}

func (p *chromePage) ScrollFeed(ctx context.Context, selectors []string) (int64, bool, error) {
	script := fmt.Sprintf(`(function (sels) {
  for (const sel of sels) {
    const el = document.querySelector(sel);
    if (el) { el.scrollTop = el.scrollHeight; return el.scrollHeight; }
  }
  return -1;
})(%s)`, jsStringArray(selectors))

	var height int64
	if err := p.run(ctx, chromedp.Evaluate(script, &height)); err != nil {
		return 0, false, err
	}
	if height < 0 {
		return 0, false, nil
	}
	return height, true, nil
}

func (p *chromePage) Click(ctx context.Context, selector string) error {
	script := fmt.Sprintf(`(function () {
  const el = document.querySelector(%s);
  if (!el) return false;
  el.click();
  return true;
})()`, jsString(selector))

	var ok bool
	if err := p.run(ctx, chromedp.Evaluate(script, &ok)); err != nil {
		return err
	}
	if !ok {
		return ErrNoElement
	}
	return nil
}

func (p *chromePage) Evaluate(ctx context.Context, script string, out any) error {
	return p.run(ctx, chromedp.Evaluate(script, out))
}

func (p *chromePage) Close() error {
	p.cancel()
	return nil
}

func jsString(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`, "\n", `\n`)
	return "'" + r.Replace(s) + "'"
}

func jsStringArray(ss []string) string {
	quoted := make([]string, len(ss))
	for i, s := range ss {
		quoted[i] = jsString(s)
	}
	return "[" + strings.Join(quoted, ",") + "]"
}
