// Package pipeline assembles a ready-to-run search stack from configuration.
package pipeline

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/rendis/mapsift/internal/config"
	"github.com/rendis/mapsift/internal/engine/browser"
	"github.com/rendis/mapsift/internal/engine/enrich"
	"github.com/rendis/mapsift/internal/engine/geo"
	"github.com/rendis/mapsift/internal/engine/netclient"
	"github.com/rendis/mapsift/internal/engine/scraper"
)

// Pipeline is an orchestrator bound to a running Chrome. Close it to stop the
// browser.
type Pipeline struct {
	*scraper.Orchestrator
	browser *browser.Chrome
}

// ScraperConfig maps the loaded configuration onto orchestrator settings.
func ScraperConfig(cfg *config.Config) scraper.Config {
	sc := scraper.DefaultConfig()
	sc.MaxConcurrency = cfg.MaxConcurrency
	sc.PageTimeout = cfg.PageTimeout
	sc.CollectTimeout = cfg.CollectTimeout
	sc.RetryCount = cfg.RetryCount
	sc.StrictPostal = cfg.StrictPostal
	return sc
}

// Open starts Chrome and wires the geocoder and, when enabled, the email
// finder. The browser lives until ctx is canceled or Close is called.
func Open(ctx context.Context, cfg *config.Config, logger logrus.FieldLogger) (*Pipeline, error) {
	chrome, err := browser.NewChrome(ctx, browser.Options{
		Headless:       cfg.Headless,
		BlockResources: cfg.BlockResources,
		ProxyURL:       cfg.ProxyURL,
		Logger:         logger,
	})
	if err != nil {
		return nil, fmt.Errorf("starting browser: %w", err)
	}

	client := netclient.New(netclient.Options{ProxyURL: cfg.ProxyURL, MaxRetries: 2})
	deps := scraper.Deps{
		Browser: chrome,
		Geocoder: geo.NewNominatim(geo.NominatimOptions{
			BaseURL:           cfg.GeocoderBaseURL,
			UserAgent:         cfg.GeocoderUserAgent,
			RequestsPerSecond: cfg.GeocoderRate,
			Client:            client,
			Logger:            logger,
		}),
		Logger: logger,
	}
	if cfg.EnrichEmails {
		deps.Enricher = enrich.NewFinder(enrich.Options{
			Client: netclient.New(netclient.Options{ProxyURL: cfg.ProxyURL, MaxRetries: 1}),
			MX:     enrich.NewDNSChecker(),
			Logger: logger,
		})
	}

	orch, err := scraper.New(ScraperConfig(cfg), deps)
	if err != nil {
		chrome.Close()
		return nil, err
	}
	return &Pipeline{Orchestrator: orch, browser: chrome}, nil
}

func (p *Pipeline) Close() error {
	return p.browser.Close()
}
