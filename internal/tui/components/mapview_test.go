package components

import (
	"strings"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countBraille(s string) int {
	n := 0
	for _, r := range s {
		if r > 0x2800 && r <= 0x28FF {
			n++
		}
	}
	return n
}

func TestMapViewEmpty(t *testing.T) {
	m := NewMapView(0, 0)
	assert.Empty(t, m.View())

	m.SetSize(4, 2)
	assert.Equal(t, "    \n    ", m.View())
}

func TestMapViewPlotsPoints(t *testing.T) {
	m := NewMapView(20, 8)
	m.SetPoints([]orb.Point{{-75, 40}, {-74.99, 40.01}})

	out := m.View()
	assert.Len(t, strings.Split(out, "\n"), 8)
	assert.Equal(t, 2, countBraille(out))

	view := m.Viewport()
	assert.True(t, view.Contains(orb.Point{-75, 40}))
	assert.True(t, view.Contains(orb.Point{-74.99, 40.01}))
}

func TestMapViewRing(t *testing.T) {
	ring := orb.Ring{{-75.01, 39.99}, {-74.99, 39.99}, {-74.99, 40.01}, {-75.01, 40.01}, {-75.01, 39.99}}
	m := NewMapView(20, 8)
	m.SetRing(ring)
	m.SetCenter(orb.Point{-75, 40})

	assert.Greater(t, countBraille(m.View()), 8)
}

func TestMapViewZoom(t *testing.T) {
	m := NewMapView(20, 8)
	m.SetPoints([]orb.Point{{0, 0}, {1, 1}})
	full := m.Viewport()

	m.ZoomIn()
	zoomed := m.Viewport()
	require.Less(t, zoomed.Max[0]-zoomed.Min[0], full.Max[0]-full.Min[0])
	assert.InDelta(t, full.Center()[0], zoomed.Center()[0], 1e-9)

	m.Pan(1, 0)
	assert.Greater(t, m.Viewport().Center()[0], zoomed.Center()[0])

	m.ZoomReset()
	assert.Equal(t, full, m.Viewport())
}
