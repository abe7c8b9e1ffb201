package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/mapsift/internal/config"
	"github.com/rendis/mapsift/internal/engine/collector"
	"github.com/rendis/mapsift/internal/engine/scraper"
	"github.com/rendis/mapsift/internal/model"
)

func changedSet(names ...string) func(string) bool {
	return func(name string) bool {
		for _, n := range names {
			if n == name {
				return true
			}
		}
		return false
	}
}

func TestScanRequest(t *testing.T) {
	cfg := &config.Config{MaxResults: 50, DefaultRadius: 1000}

	t.Run("radius reads only set coordinates", func(t *testing.T) {
		o := scanOptions{searchType: "Radius", query: "bakery", lat: 40.4, location: "ignored"}
		req := o.request(cfg, changedSet("lat"))
		assert.Equal(t, model.SearchByRadius, req.Type)
		require.NotNil(t, req.Latitude)
		assert.Equal(t, 40.4, *req.Latitude)
		assert.Nil(t, req.Longitude)
		assert.Empty(t, req.Location)
		assert.Equal(t, 1000.0, req.RadiusMeters)
		assert.ErrorIs(t, req.Validate(), model.ErrMissingCenter)
	})

	t.Run("zipcode with max override", func(t *testing.T) {
		o := scanOptions{searchType: "zipcode", query: "dentist", zip: "90401", state: "CA", max: 10}
		req := o.request(cfg, changedSet())
		assert.Equal(t, "90401", req.ZipCode)
		assert.Equal(t, "CA", req.State)
		assert.Equal(t, 10, req.MaxResults)
		require.NoError(t, req.Validate())
	})
}

func TestScanApply(t *testing.T) {
	cfg := &config.Config{Headless: true, MaxConcurrency: 5, OutputDir: "results"}
	scanOptions{concurrency: 50, output: "out", headless: false}.apply(cfg, changedSet("headless"))
	assert.Equal(t, 20, cfg.MaxConcurrency)
	assert.Equal(t, "out", cfg.OutputDir)
	assert.False(t, cfg.Headless)
	assert.False(t, cfg.EnrichEmails)
}

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	printSummary(&buf, summary{
		request: model.SearchRequest{Type: model.SearchByLocation, Query: "coffee", Location: "Lisbon"},
		result: &scraper.Result{
			Count:      3,
			Candidates: 4,
			Reason:     collector.StopEndMarker,
			Stats:      scraper.StatsSnapshot{PagesDone: 3, PagesFailed: 1, Unlocatable: 1},
			Duration:   95 * time.Second,
		},
		files:   []string{"results/mapsift_20260101_000000.json"},
		logPath: "results/mapsift_20260101_000000.log",
	})

	out := buf.String()
	assert.Contains(t, out, "mapsift complete")
	assert.Contains(t, out, "Results:     3")
	assert.Contains(t, out, "Visited:     4 (1 failed)")
	assert.Contains(t, out, "No coords:   1")
	assert.Contains(t, out, "Duration:    1m35s")
	assert.Contains(t, out, "Output:      results/mapsift_20260101_000000.json")
	assert.NotContains(t, out, "Rejected")
	assert.NotContains(t, out, "Emails")
}
