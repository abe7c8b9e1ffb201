package components

import (
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/paulmach/orb"

	"github.com/rendis/mapsift/internal/tui/styles"
)

const (
	maxZoom = 20.0
	minZoom = 0.5
	// braille cells are 2 dots wide and 4 dots tall
	cellW = 2
	cellH = 4
)

// MapView plots listings as braille dots. An optional ring outlines the
// search radius and a center marks where the search was anchored.
type MapView struct {
	width    int
	height   int
	points   []orb.Point
	ring     orb.Ring
	center   *orb.Point
	selected int

	base orb.Bound
	view orb.Bound
	zoom float64
	pan  orb.Point
}

func NewMapView(width, height int) MapView {
	return MapView{width: width, height: height, selected: -1, zoom: 1}
}

func (m *MapView) SetSize(width, height int) {
	m.width = width
	m.height = height
}

// SetPoints replaces the plotted points and refits the viewport.
func (m *MapView) SetPoints(points []orb.Point) {
	m.points = points
	m.fit()
}

func (m *MapView) SetRing(ring orb.Ring) {
	m.ring = ring
	m.fit()
}

func (m *MapView) SetCenter(p orb.Point) {
	m.center = &p
	m.fit()
}

// SetSelected highlights the point at idx; -1 clears the highlight.
func (m *MapView) SetSelected(idx int) {
	m.selected = idx
}

func (m *MapView) ZoomIn() {
	m.zoom = math.Min(m.zoom*1.5, maxZoom)
	m.apply()
}

func (m *MapView) ZoomOut() {
	m.zoom = math.Max(m.zoom/1.5, minZoom)
	m.apply()
}

func (m *MapView) ZoomReset() {
	m.zoom = 1
	m.pan = orb.Point{}
	m.apply()
}

// Pan shifts the viewport by a tenth of its size per step.
func (m *MapView) Pan(dLng, dLat float64) {
	m.pan[0] += dLng * (m.base.Max[0] - m.base.Min[0]) * 0.1 / m.zoom
	m.pan[1] += dLat * (m.base.Max[1] - m.base.Min[1]) * 0.1 / m.zoom
	m.apply()
}

// Viewport returns the bound currently shown.
func (m MapView) Viewport() orb.Bound {
	return m.view
}

func (m *MapView) fit() {
	var bound orb.Bound
	first := true
	extend := func(p orb.Point) {
		if first {
			bound = p.Bound()
			first = false
			return
		}
		bound = bound.Extend(p)
	}
	for _, p := range m.points {
		extend(p)
	}
	for _, p := range m.ring {
		extend(p)
	}
	if m.center != nil {
		extend(*m.center)
	}
	if first {
		return
	}

	pad := math.Max((bound.Max[0]-bound.Min[0])*0.05, (bound.Max[1]-bound.Min[1])*0.05)
	if pad == 0 {
		pad = 0.01
	}
	m.base = bound.Pad(pad)
	m.apply()
}

func (m *MapView) apply() {
	c := m.base.Center()
	c[0] += m.pan[0]
	c[1] += m.pan[1]
	halfW := (m.base.Max[0] - m.base.Min[0]) / 2 / m.zoom
	halfH := (m.base.Max[1] - m.base.Min[1]) / 2 / m.zoom
	m.view = orb.Bound{
		Min: orb.Point{c[0] - halfW, c[1] - halfH},
		Max: orb.Point{c[0] + halfW, c[1] + halfH},
	}
}

type layer uint8

const (
	layerEmpty layer = iota
	layerRing
	layerCenter
	layerPoint
	layerSelected
)

// canvas is a grid of braille dots, each holding the topmost layer drawn on it.
type canvas struct {
	w, h int
	dots [][]layer
}

func newCanvas(w, h int) *canvas {
	dots := make([][]layer, h)
	for i := range dots {
		dots[i] = make([]layer, w)
	}
	return &canvas{w: w, h: h, dots: dots}
}

func (c *canvas) set(x, y int, l layer) {
	if x < 0 || y < 0 || x >= c.w || y >= c.h {
		return
	}
	if l > c.dots[y][x] {
		c.dots[y][x] = l
	}
}

// line draws a Bresenham segment.
func (c *canvas) line(x0, y0, x1, y1 int, l layer) {
	dx := absInt(x1 - x0)
	dy := -absInt(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	e := dx + dy
	for {
		c.set(x0, y0, l)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x0 += sx
		}
		if e2 <= dx {
			e += dx
			y0 += sy
		}
	}
}

// projection maps lng/lat onto dots, keeping the ground aspect ratio.
type projection struct {
	view       orb.Bound
	offX, offY int
	w, h       int
}

func newProjection(view orb.Bound, dotW, dotH int) projection {
	lngSpan := view.Max[0] - view.Min[0]
	latSpan := view.Max[1] - view.Min[1]
	midLat := (view.Min[1] + view.Max[1]) / 2
	groundAspect := lngSpan * math.Cos(midLat*math.Pi/180) / latSpan

	p := projection{view: view, w: dotW, h: dotH}
	if groundAspect < float64(dotW)/float64(dotH) {
		p.w = max(int(float64(dotH)*groundAspect), 4)
		p.offX = (dotW - p.w) / 2
	} else {
		p.h = max(int(float64(dotW)/groundAspect), 4)
		p.offY = (dotH - p.h) / 2
	}
	return p
}

func (p projection) dot(pt orb.Point) (int, int) {
	x := p.offX + int((pt[0]-p.view.Min[0])/(p.view.Max[0]-p.view.Min[0])*float64(p.w-1))
	y := p.offY + int((p.view.Max[1]-pt[1])/(p.view.Max[1]-p.view.Min[1])*float64(p.h-1))
	return x, y
}

// bit offsets of a braille cell, indexed [row][col]
var brailleBits = [cellH][cellW]rune{
	{0x01, 0x08},
	{0x02, 0x10},
	{0x04, 0x20},
	{0x40, 0x80},
}

var layerStyles = map[layer]lipgloss.Style{
	layerRing:     lipgloss.NewStyle().Foreground(styles.Secondary),
	layerCenter:   lipgloss.NewStyle().Foreground(styles.Warning),
	layerPoint:    lipgloss.NewStyle().Foreground(styles.Success),
	layerSelected: lipgloss.NewStyle().Foreground(styles.Highlight).Bold(true),
}

func (m MapView) View() string {
	if m.width <= 0 || m.height <= 0 {
		return ""
	}
	blank := strings.TrimSuffix(strings.Repeat(strings.Repeat(" ", m.width)+"\n", m.height), "\n")
	if m.view.Max[0] <= m.view.Min[0] || m.view.Max[1] <= m.view.Min[1] {
		return blank
	}

	cv := newCanvas(m.width*cellW, m.height*cellH)
	proj := newProjection(m.view, cv.w, cv.h)

	for i := range m.ring {
		next := m.ring[(i+1)%len(m.ring)]
		x0, y0 := proj.dot(m.ring[i])
		x1, y1 := proj.dot(next)
		cv.line(x0, y0, x1, y1, layerRing)
	}
	if m.center != nil {
		x, y := proj.dot(*m.center)
		cv.set(x, y, layerCenter)
	}
	for i, p := range m.points {
		x, y := proj.dot(p)
		l := layerPoint
		if i == m.selected {
			l = layerSelected
		}
		cv.set(x, y, l)
	}

	var sb strings.Builder
	for row := range m.height {
		for col := range m.width {
			var bits rune
			top := layerEmpty
			for dy := range cellH {
				for dx := range cellW {
					l := cv.dots[row*cellH+dy][col*cellW+dx]
					if l == layerEmpty {
						continue
					}
					bits |= brailleBits[dy][dx]
					top = max(top, l)
				}
			}
			if top == layerEmpty {
				sb.WriteByte(' ')
				continue
			}
			sb.WriteString(layerStyles[top].Render(string(0x2800 + bits)))
		}
		if row < m.height-1 {
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
