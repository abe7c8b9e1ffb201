package views

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"unicode"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/paulmach/orb"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/rendis/mapsift/internal/engine/geo"
	"github.com/rendis/mapsift/internal/engine/normalize"
	"github.com/rendis/mapsift/internal/export"
	"github.com/rendis/mapsift/internal/model"
	"github.com/rendis/mapsift/internal/tui/components"
	"github.com/rendis/mapsift/internal/tui/styles"
)

type focusArea int

const (
	focusTable focusArea = iota
	focusFilter
	focusCard
	focusSide
)

type recordsLoadedMsg struct {
	Records []model.BusinessRecord
	Err     error
}

// ExplorerModel browses an export: a filterable table, a detail card and a
// side panel that shows either the raw JSON or a map.
type ExplorerModel struct {
	path     string
	records  []model.BusinessRecord
	filtered []model.BusinessRecord
	table    table.Model
	filter   textinput.Model
	mapView  components.MapView
	focus    focusArea
	showMap  bool
	selected int
	width    int
	height   int
	err      error
	notice   string

	cardScroll int
	jsonScroll int
	cardLines  []string
	jsonLines  []string
	jsonRaw    string
}

func NewExplorerModel(path string, area *geo.RadiusFilter) ExplorerModel {
	filter := textinput.New()
	filter.Placeholder = "name, type, city, street..."
	filter.CharLimit = 60

	mv := components.NewMapView(40, 10)
	if area != nil {
		mv.SetRing(area.Ring(64))
		mv.SetCenter(area.Center)
	}
	return ExplorerModel{
		path:     path,
		filter:   filter,
		mapView:  mv,
		selected: -1,
		showMap:  area != nil,
	}
}

func (m ExplorerModel) Init() tea.Cmd {
	path := m.path
	return func() tea.Msg {
		records, err := export.Load(path)
		return recordsLoadedMsg{Records: records, Err: err}
	}
}

func (m ExplorerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.layout()
		return m, nil

	case recordsLoadedMsg:
		if msg.Err != nil {
			m.err = msg.Err
			return m, nil
		}
		m.records = msg.Records
		m.setFiltered(msg.Records)
		return m, nil

	case tea.KeyMsg:
		if cmd, handled := m.handleKey(msg.String()); handled {
			return m, cmd
		}
	}

	var cmd tea.Cmd
	switch m.focus {
	case focusTable:
		m.table, cmd = m.table.Update(msg)
		if c := m.table.Cursor(); c != m.selected && c < len(m.filtered) {
			m.selectRow(c)
		}
	case focusFilter:
		m.filter, cmd = m.filter.Update(msg)
		m.applyFilter()
	}
	return m, cmd
}

func (m *ExplorerModel) handleKey(key string) (tea.Cmd, bool) {
	if key == "ctrl+c" {
		return tea.Quit, true
	}

	switch m.focus {
	case focusTable:
		switch key {
		case "esc", "q":
			return func() tea.Msg { return NavigateToHome{} }, true
		case "/", "tab":
			m.focus = focusFilter
			return m.filter.Focus(), true
		case "1":
			m.focusPanel(focusCard)
		case "2":
			m.focusPanel(focusSide)
		case "m":
			m.showMap = !m.showMap
		case "e":
			m.export(export.CSV)
		case "g":
			m.export(export.GeoJSON)
		default:
			return nil, false
		}
		return nil, true

	case focusFilter:
		switch key {
		case "esc", "enter", "tab":
			m.focus = focusTable
			m.filter.Blur()
			return nil, true
		}
		return nil, false

	case focusCard:
		switch key {
		case "esc":
			m.focusPanel(focusTable)
		case "up", "k":
			m.cardScroll = max(m.cardScroll-1, 0)
		case "down", "j":
			m.cardScroll = min(m.cardScroll+1, max(len(m.cardLines)-m.panelHeight(), 0))
		}
		return nil, true

	case focusSide:
		if key == "esc" {
			m.focusPanel(focusTable)
			return nil, true
		}
		if m.showMap {
			m.mapKey(key)
		} else {
			m.jsonKey(key)
		}
		return nil, true
	}
	return nil, false
}

func (m *ExplorerModel) mapKey(key string) {
	switch key {
	case "+", "=":
		m.mapView.ZoomIn()
	case "-":
		m.mapView.ZoomOut()
	case "0":
		m.mapView.ZoomReset()
	case "up", "k":
		m.mapView.Pan(0, 1)
	case "down", "j":
		m.mapView.Pan(0, -1)
	case "left", "h":
		m.mapView.Pan(-1, 0)
	case "right", "l":
		m.mapView.Pan(1, 0)
	}
}

func (m *ExplorerModel) jsonKey(key string) {
	switch key {
	case "up", "k":
		m.jsonScroll = max(m.jsonScroll-1, 0)
	case "down", "j":
		m.jsonScroll = min(m.jsonScroll+1, max(len(m.jsonLines)-m.panelHeight(), 0))
	case "c":
		if m.jsonRaw == "" {
			return
		}
		if err := clipboard.WriteAll(m.jsonRaw); err != nil {
			m.notice = fmt.Sprintf("Copy failed: %v", err)
			return
		}
		m.notice = "JSON copied to clipboard"
	}
}

func (m *ExplorerModel) focusPanel(f focusArea) {
	m.focus = f
	if f == focusTable {
		m.table.SetStyles(tableStyles(true))
	} else {
		m.table.SetStyles(tableStyles(false))
	}
}

// fold lowercases and strips diacritics so "cafe" matches "Café".
func fold(s string) string {
	t := transform.Chain(norm.NFD, transform.RemoveFunc(func(r rune) bool {
		return unicode.Is(unicode.Mn, r)
	}), norm.NFC)
	out, _, err := transform.String(t, strings.ToLower(s))
	if err != nil {
		return strings.ToLower(s)
	}
	return out
}

// matchRecords keeps records whose searchable text contains every word of
// the query.
func matchRecords(records []model.BusinessRecord, query string) []model.BusinessRecord {
	words := strings.Fields(fold(query))
	if len(words) == 0 {
		return records
	}
	var out []model.BusinessRecord
	for _, r := range records {
		haystack := fold(strings.Join([]string{
			r.Name, r.Type, r.Address.Full, r.Address.City, r.Address.ZipCode,
			r.Description, r.Email, r.Website,
		}, " "))
		ok := true
		for _, w := range words {
			if !strings.Contains(haystack, w) {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, r)
		}
	}
	return out
}

func (m *ExplorerModel) applyFilter() {
	m.setFiltered(matchRecords(m.records, m.filter.Value()))
}

func (m *ExplorerModel) setFiltered(records []model.BusinessRecord) {
	m.filtered = records

	points := make([]orb.Point, 0, len(records))
	for _, r := range records {
		if r.Coordinates.Valid() {
			lat, lng := r.Coordinates.LatLng()
			points = append(points, orb.Point{lng, lat})
		}
	}
	m.mapView.SetPoints(points)

	m.buildTable()
	if len(records) > 0 {
		m.selectRow(0)
	} else {
		m.selectRow(-1)
	}
}

func (m *ExplorerModel) selectRow(i int) {
	m.selected = i
	m.cardScroll, m.jsonScroll = 0, 0
	m.cardLines, m.jsonLines, m.jsonRaw = nil, nil, ""
	m.mapView.SetSelected(-1)
	if i < 0 || i >= len(m.filtered) {
		return
	}

	rec := m.filtered[i]
	m.cardLines = cardLines(rec)
	if data, err := json.MarshalIndent(rec, "", "  "); err == nil {
		m.jsonRaw = string(data)
		m.jsonLines = strings.Split(m.jsonRaw, "\n")
	}

	// map points only include located records
	if rec.Coordinates.Valid() {
		idx := 0
		for _, r := range m.filtered[:i] {
			if r.Coordinates.Valid() {
				idx++
			}
		}
		m.mapView.SetSelected(idx)
	}
}

func cardLines(r model.BusinessRecord) []string {
	lines := []string{r.Name}
	if r.Rating != nil {
		rating := strconv.FormatFloat(*r.Rating, 'f', 1, 64) + "★"
		if r.ReviewsCount > 0 {
			rating += fmt.Sprintf(" (%d reviews)", r.ReviewsCount)
		}
		lines = append(lines, rating)
	}
	if r.Type != "" {
		lines = append(lines, r.Type)
	}
	lines = append(lines, "")

	add := func(label, value string) {
		if value != "" {
			lines = append(lines, fmt.Sprintf("%-10s %s", label, value))
		}
	}
	add("Address:", r.Address.Full)
	add("Phone:", r.Phone)
	add("WhatsApp:", r.WhatsApp)
	add("Email:", r.Email)
	add("Website:", r.Website)
	add("Price:", r.PriceLevel)
	if r.Coordinates.Valid() {
		lat, lng := r.Coordinates.LatLng()
		add("Coords:", fmt.Sprintf("%.6f, %.6f", lat, lng))
	}
	if r.DistanceFromCenter != nil {
		add("Distance:", fmt.Sprintf("%dm", *r.DistanceFromCenter))
	}
	add("Plus code:", r.PlusCode)
	add("Place ID:", r.PlaceID)
	if hours := normalize.FormatHours(r.OpeningHours); hours != "" {
		lines = append(lines, "")
		add("Hours:", hours)
	}
	if len(r.Amenities) > 0 {
		add("Amenities:", strings.Join(r.Amenities, ", "))
	}
	if r.Description != "" {
		lines = append(lines, "", r.Description)
	}
	return lines
}

func (m *ExplorerModel) buildTable() {
	widths := []int{28, 18, 14, 6, 16, 8}
	if m.width > 120 {
		extra := m.width - 120
		widths[0] += extra * 4 / 10
		widths[1] += extra * 3 / 10
		widths[2] += extra * 3 / 10
	}
	titles := []string{"Name", "Type", "City", "Rating", "Phone", "Dist"}
	columns := make([]table.Column, len(titles))
	for i, t := range titles {
		columns[i] = table.Column{Title: t, Width: widths[i]}
	}

	rows := make([]table.Row, len(m.filtered))
	for i, r := range m.filtered {
		rating, dist := "", ""
		if r.Rating != nil {
			rating = strconv.FormatFloat(*r.Rating, 'f', 1, 64)
		}
		if r.DistanceFromCenter != nil {
			dist = fmt.Sprintf("%dm", *r.DistanceFromCenter)
		}
		rows[i] = table.Row{
			truncate(r.Name, widths[0]),
			truncate(r.Type, widths[1]),
			truncate(r.Address.City, widths[2]),
			rating,
			truncate(r.Phone, widths[4]),
			dist,
		}
	}

	m.table = table.New(
		table.WithColumns(columns),
		table.WithRows(rows),
		table.WithFocused(true),
		table.WithHeight(max(m.height/2-4, 5)),
	)
	m.table.SetStyles(tableStyles(m.focus == focusTable || m.focus == focusFilter))
}

func tableStyles(focused bool) table.Styles {
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(styles.Muted).
		BorderBottom(true).
		Bold(true).
		Foreground(styles.Muted)
	s.Selected = s.Selected.
		Foreground(styles.Text).
		Background(lipgloss.Color("#333333")).
		Bold(false)
	if focused {
		s.Header = s.Header.Foreground(styles.Secondary)
		s.Selected = s.Selected.
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(styles.Primary).
			Bold(true)
	}
	return s
}

func (m ExplorerModel) panelHeight() int {
	return max(m.height/2-6, 6)
}

func (m *ExplorerModel) layout() {
	if m.width <= 0 {
		return
	}
	side := m.width - m.width*2/5 - 7
	m.mapView.SetSize(max(side, 20), m.panelHeight())
	m.buildTable()
}

// export writes the filtered rows next to the opened file.
func (m *ExplorerModel) export(f export.Format) {
	data := m.filtered
	if len(data) == 0 {
		m.notice = "Nothing to export"
		return
	}
	base := strings.TrimSuffix(m.path, filepath.Ext(m.path))
	out := base + "." + f.Ext()
	if out == m.path {
		out = base + "_filtered." + f.Ext()
	}
	if err := export.WriteFile(out, f, "", data); err != nil {
		m.notice = fmt.Sprintf("Export error: %v", err)
		return
	}
	m.notice = fmt.Sprintf("Exported %d rows to %s", len(data), out)
}

func (m ExplorerModel) View() string {
	if m.err != nil {
		return styles.ErrorText.Render(fmt.Sprintf("Error loading %s: %v", m.path, m.err))
	}

	var b strings.Builder
	b.WriteString(styles.Title.Render(fmt.Sprintf("%s: %d businesses", filepath.Base(m.path), len(m.records))))
	if len(m.filtered) != len(m.records) {
		b.WriteString(styles.Hint.Render(fmt.Sprintf(" (showing %d)", len(m.filtered))))
	}
	b.WriteString("\n")

	filterLabel := lipgloss.NewStyle().Foreground(styles.Muted)
	if m.focus == focusFilter {
		filterLabel = lipgloss.NewStyle().Foreground(styles.Primary)
	}
	b.WriteString(filterLabel.Render("Filter: ") + m.filter.View() + "\n")
	b.WriteString(m.table.View())
	b.WriteString("\n\n")

	total := max(m.width-2, 40)
	cardW := total * 2 / 5
	sideW := total - cardW - 1
	h := m.panelHeight()

	card := m.panel("[1] Details", m.focus == focusCard, cardW, h, m.viewCard(cardW-4, h))
	var side string
	if m.showMap {
		side = m.panel("[2] Map", m.focus == focusSide, sideW, h, m.mapView.View())
	} else {
		side = m.panel("[2] JSON", m.focus == focusSide, sideW, h, m.viewJSON(sideW-4, h))
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, card, " ", side))
	b.WriteString("\n")

	if m.notice != "" {
		b.WriteString(lipgloss.NewStyle().Foreground(styles.Success).Render(m.notice))
		b.WriteString("\n")
	}
	b.WriteString(styles.StatusBar.Render(m.help()))
	return b.String()
}

func (m ExplorerModel) help() string {
	switch m.focus {
	case focusFilter:
		return "type to filter • esc done"
	case focusCard:
		return "↑↓ scroll • esc table"
	case focusSide:
		if m.showMap {
			return "+/- zoom • arrows pan • 0 reset • esc table"
		}
		return "↑↓ scroll • c copy json • esc table"
	}
	return "↑↓ navigate • / filter • 1 details • 2 side panel • m map/json • e csv • g geojson • esc back"
}

func (m ExplorerModel) panel(title string, focused bool, w, h int, body string) string {
	color := styles.Muted
	if focused {
		color = styles.Primary
	}
	head := lipgloss.NewStyle().Bold(true).Foreground(color).Render(title)
	return head + "\n" + styles.Panel(focused).Width(w-2).Height(h).Render(body)
}

// window returns the visible slice of lines for a scroll offset.
func window(lines []string, scroll, h int) ([]string, int, int) {
	scroll = max(min(scroll, len(lines)-h), 0)
	end := min(scroll+h, len(lines))
	return lines[scroll:end], scroll, end
}

func (m ExplorerModel) viewCard(w, h int) string {
	if len(m.cardLines) == 0 {
		return styles.Hint.Render("Select a business")
	}
	visible, scroll, end := window(m.cardLines, m.cardScroll, h)

	var sb strings.Builder
	for i, line := range visible {
		style := lipgloss.NewStyle().Foreground(styles.Text)
		switch {
		case scroll+i == 0:
			style = style.Bold(true)
		case strings.HasSuffix(strings.SplitN(line, " ", 2)[0], "★"):
			style = lipgloss.NewStyle().Foreground(styles.Warning)
		case strings.HasPrefix(line, "Website:"), strings.HasPrefix(line, "Email:"):
			style = lipgloss.NewStyle().Foreground(styles.Primary)
		}
		sb.WriteString(style.Render(truncate(line, w)))
		if i < len(visible)-1 {
			sb.WriteString("\n")
		}
	}
	if end < len(m.cardLines) {
		sb.WriteString("\n" + styles.Hint.Render("  ▼ more"))
	}
	return sb.String()
}

func (m ExplorerModel) viewJSON(w, h int) string {
	if len(m.jsonLines) == 0 {
		return styles.Hint.Render("Select a business")
	}
	visible, scroll, _ := window(m.jsonLines, m.jsonScroll, h)

	key := lipgloss.NewStyle().Foreground(styles.Secondary)
	val := lipgloss.NewStyle().Foreground(styles.Success)
	plain := lipgloss.NewStyle().Foreground(styles.Muted)

	var sb strings.Builder
	for i, line := range visible {
		line = truncate(line, w)
		if idx := strings.Index(line, `":`); idx > 0 && strings.HasPrefix(strings.TrimSpace(line), `"`) {
			sb.WriteString(key.Render(line[:idx+1]) + val.Render(line[idx+1:]))
		} else {
			sb.WriteString(plain.Render(line))
		}
		if i < len(visible)-1 {
			sb.WriteString("\n")
		}
	}
	if len(m.jsonLines) > h {
		sb.WriteString("\n" + styles.Hint.Render(fmt.Sprintf("  [%d/%d]", scroll+1, len(m.jsonLines))))
	}
	return sb.String()
}
