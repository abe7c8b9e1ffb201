package collector

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/mapsift/internal/engine/browser"
	"github.com/rendis/mapsift/internal/engine/browser/browsertest"
)

const searchURL = "https://www.google.com/maps/search/coffee/@40,-75,15z"

func listing(i int) string {
	return fmt.Sprintf("https://www.google.com/maps/place/Shop+%d/@40.0%d,-75.0%d,17z", i, i, i)
}

func batches(sizes ...int) [][]string {
	var out [][]string
	n := 0
	for _, s := range sizes {
		var b []string
		for i := 0; i < s; i++ {
			b = append(b, listing(n))
			n++
		}
		out = append(out, b)
	}
	return out
}

func testCollector(maxIter int) *Collector {
	return New(Options{MaxIterations: maxIter, StallLimit: 3})
}

func openSearch(t *testing.T, fb *browsertest.Browser) browser.Page {
	t.Helper()
	page, err := fb.NewPage(context.Background())
	require.NoError(t, err)
	require.NoError(t, page.Navigate(context.Background(), searchURL))
	return page
}

func TestCollectStopsAtTarget(t *testing.T) {
	fb := browsertest.New()
	fb.Feed = &browsertest.Feed{Batches: batches(3, 3, 3), EndMarkerAt: -1}

	res, err := testCollector(100).Collect(context.Background(), openSearch(t, fb), 5)
	require.NoError(t, err)

	assert.Equal(t, StopTarget, res.Reason)
	assert.Equal(t, []string{listing(0), listing(1), listing(2), listing(3), listing(4)}, res.URLs)
	assert.Equal(t, 1, res.Iterations)
}

func TestCollectEndMarker(t *testing.T) {
	for _, n := range []int{0, 1, 4} {
		t.Run(fmt.Sprintf("marker after %d scrolls", n), func(t *testing.T) {
			sizes := make([]int, n+3)
			for i := range sizes {
				sizes[i] = 2
			}
			fb := browsertest.New()
			fb.Feed = &browsertest.Feed{Batches: batches(sizes...), EndMarkerAt: n}

			res, err := testCollector(100).Collect(context.Background(), openSearch(t, fb), 1000)
			require.NoError(t, err)

			assert.Equal(t, StopEndMarker, res.Reason)
			assert.LessOrEqual(t, res.Iterations, n+1)
			assert.Len(t, res.URLs, 2*(n+1))
		})
	}
}

func TestCollectStall(t *testing.T) {
	fb := browsertest.New()
	fb.Feed = &browsertest.Feed{Batches: batches(2, 2), EndMarkerAt: -1}

	res, err := testCollector(100).Collect(context.Background(), openSearch(t, fb), 50)
	require.NoError(t, err)

	assert.Equal(t, StopStalled, res.Reason)
	assert.Len(t, res.URLs, 4)
	// one growing scroll, then three unchanged heights
	assert.Equal(t, 4, res.Iterations)
}

func TestCollectIterationCap(t *testing.T) {
	sizes := make([]int, 50)
	for i := range sizes {
		sizes[i] = 1
	}
	fb := browsertest.New()
	fb.Feed = &browsertest.Feed{Batches: batches(sizes...), EndMarkerAt: -1}

	res, err := testCollector(10).Collect(context.Background(), openSearch(t, fb), 1000)
	require.NoError(t, err)

	assert.Equal(t, StopIterations, res.Reason)
	assert.Equal(t, 10, res.Iterations)
	assert.Equal(t, 10, fb.Scrolls())
	assert.Len(t, res.URLs, 11)
}

func TestCollectNoFeed(t *testing.T) {
	fb := browsertest.New()
	fb.Feed = &browsertest.Feed{Missing: true, EndMarkerAt: -1}

	res, err := testCollector(100).Collect(context.Background(), openSearch(t, fb), 10)
	require.NoError(t, err)
	assert.Equal(t, StopNoFeed, res.Reason)
	assert.Empty(t, res.URLs)
}

func TestCollectDeduplicates(t *testing.T) {
	fb := browsertest.New()
	fb.Feed = &browsertest.Feed{
		Batches:     [][]string{{listing(1), listing(2)}, {listing(2), listing(1) + "?entry=ttu", listing(3)}},
		EndMarkerAt: 1,
	}

	res, err := testCollector(100).Collect(context.Background(), openSearch(t, fb), 10)
	require.NoError(t, err)
	assert.Equal(t, []string{listing(1), listing(2), listing(3)}, res.URLs)
}

func TestCollectClosedPage(t *testing.T) {
	fb := browsertest.New()
	fb.Feed = &browsertest.Feed{Batches: batches(1), EndMarkerAt: -1}
	page := openSearch(t, fb)
	require.NoError(t, page.Close())

	_, err := testCollector(100).Collect(context.Background(), page, 10)
	require.ErrorIs(t, err, browser.ErrPageUnavailable)
}

func TestNormalizeURL(t *testing.T) {
	u, ok := NormalizeURL("https://www.google.com/maps/place/Caf%C3%A9+Uno/@1.5,2.5,17z/data=!4m7?authuser=0&hl=en#frag")
	require.True(t, ok)
	assert.Equal(t, "https://www.google.com/maps/place/Caf%C3%A9+Uno/@1.5,2.5,17z/data=!4m7", u)

	_, ok = NormalizeURL("/maps/place/relative")
	assert.False(t, ok)
	_, ok = NormalizeURL("https://www.google.com/maps/search/coffee")
	assert.False(t, ok)
}
