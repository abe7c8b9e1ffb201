package views

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/rendis/mapsift/internal/export"
	"github.com/rendis/mapsift/internal/model"
	"github.com/rendis/mapsift/internal/tui/styles"
)

var searchModes = []model.SearchType{model.SearchByLocation, model.SearchByZipCode, model.SearchByRadius}

var modeLabels = map[model.SearchType]string{
	model.SearchByLocation: "Location",
	model.SearchByZipCode:  "ZIP",
	model.SearchByRadius:   "Radius",
}

// fieldMode is the mode selector, not a text input.
const (
	fieldMode = iota
	fieldQuery
	fieldLocation
	fieldZip
	fieldState
	fieldCountry
	fieldLat
	fieldLng
	fieldRadius
	fieldMax
	fieldFormats
	fieldOutput
	fieldCount
)

var fieldLabels = [fieldCount]string{
	fieldQuery:    "Query:",
	fieldLocation: "Location:",
	fieldZip:      "ZIP code:",
	fieldState:    "State:",
	fieldCountry:  "Country:",
	fieldLat:      "Latitude:",
	fieldLng:      "Longitude:",
	fieldRadius:   "Radius (m):",
	fieldMax:      "Max results:",
	fieldFormats:  "Formats:",
	fieldOutput:   "Output dir:",
}

// modeFields are the inputs only shown for one mode.
var modeFields = map[model.SearchType][]int{
	model.SearchByLocation: {fieldLocation},
	model.SearchByZipCode:  {fieldZip, fieldState, fieldCountry},
	model.SearchByRadius:   {fieldLat, fieldLng, fieldRadius},
}

// SearchDefaults pre-fills the form.
type SearchDefaults struct {
	MaxResults int
	Radius     float64
	OutputDir  string
	Formats    string
}

// StartSearchMsg carries a validated request to the progress view.
type StartSearchMsg struct {
	Request   model.SearchRequest
	OutputDir string
	Formats   []export.Format
}

type SearchModel struct {
	inputs  [fieldCount]textinput.Model
	mode    int
	focused int
	err     string
}

func NewSearchModel(d SearchDefaults) SearchModel {
	var m SearchModel
	placeholders := map[int]string{
		fieldQuery:    "coffee shops",
		fieldLocation: "optional: Lisbon, Portugal",
		fieldZip:      "90401",
		fieldState:    "optional: CA",
		fieldCountry:  "optional: USA",
		fieldLat:      "34.0195",
		fieldLng:      "-118.4912",
		fieldRadius:   "1000",
		fieldMax:      "50",
		fieldFormats:  "json,csv",
		fieldOutput:   "./results",
	}
	for i := fieldQuery; i < fieldCount; i++ {
		ti := textinput.New()
		ti.Placeholder = placeholders[i]
		ti.CharLimit = 120
		ti.Width = 40
		m.inputs[i] = ti
	}
	if d.MaxResults > 0 {
		m.inputs[fieldMax].SetValue(strconv.Itoa(d.MaxResults))
	}
	if d.Radius > 0 {
		m.inputs[fieldRadius].SetValue(strconv.FormatFloat(d.Radius, 'f', -1, 64))
	}
	m.inputs[fieldOutput].SetValue(d.OutputDir)
	m.inputs[fieldFormats].SetValue(d.Formats)
	return m
}

func (m SearchModel) Init() tea.Cmd {
	return nil
}

func (m SearchModel) Mode() model.SearchType {
	return searchModes[m.mode]
}

func (m SearchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "esc":
			return m, func() tea.Msg { return NavigateToHome{} }
		case "tab", "down":
			m.err = ""
			cmd := m.move(1)
			return m, cmd
		case "shift+tab", "up":
			m.err = ""
			cmd := m.move(-1)
			return m, cmd
		case "left", "right":
			if m.focused == fieldMode {
				step := 1
				if key.String() == "left" {
					step = len(searchModes) - 1
				}
				m.mode = (m.mode + step) % len(searchModes)
				return m, nil
			}
		case "enter":
			cmd := m.submit()
			return m, cmd
		}
	}

	if m.focused == fieldMode {
		return m, nil
	}
	var cmd tea.Cmd
	m.inputs[m.focused], cmd = m.inputs[m.focused].Update(msg)
	return m, cmd
}

func (m SearchModel) visible(field int) bool {
	for mode, fields := range modeFields {
		for _, f := range fields {
			if f == field {
				return mode == m.Mode()
			}
		}
	}
	return true
}

// move cycles focus over the fields shown for the current mode.
func (m *SearchModel) move(dir int) tea.Cmd {
	if m.focused != fieldMode {
		m.inputs[m.focused].Blur()
	}
	next := m.focused
	for {
		next = (next + dir + fieldCount) % fieldCount
		if m.visible(next) {
			break
		}
	}
	m.focused = next
	if next == fieldMode {
		return nil
	}
	return m.inputs[next].Focus()
}

func (m SearchModel) value(field int) string {
	return strings.TrimSpace(m.inputs[field].Value())
}

// Request builds the search request from the form.
func (m SearchModel) Request() (model.SearchRequest, error) {
	req := model.SearchRequest{
		Type:  m.Mode(),
		Query: m.value(fieldQuery),
	}
	if v := m.value(fieldMax); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return req, fmt.Errorf("max results must be a positive number")
		}
		req.MaxResults = n
	}

	switch req.Type {
	case model.SearchByLocation:
		req.Location = m.value(fieldLocation)
	case model.SearchByZipCode:
		req.ZipCode = m.value(fieldZip)
		req.State = m.value(fieldState)
		req.CountryName = m.value(fieldCountry)
	case model.SearchByRadius:
		for _, f := range []int{fieldLat, fieldLng} {
			if m.value(f) == "" {
				continue
			}
			v, err := strconv.ParseFloat(m.value(f), 64)
			if err != nil {
				return req, fmt.Errorf("%s must be a number", strings.TrimSuffix(strings.ToLower(fieldLabels[f]), ":"))
			}
			if f == fieldLat {
				req.Latitude = &v
			} else {
				req.Longitude = &v
			}
		}
		if v := m.value(fieldRadius); v != "" {
			r, err := strconv.ParseFloat(v, 64)
			if err != nil || r <= 0 {
				return req, fmt.Errorf("radius must be a positive number of meters")
			}
			req.RadiusMeters = r
		}
	}

	if err := req.Validate(); err != nil {
		return req, err
	}
	return req, nil
}

func (m *SearchModel) submit() tea.Cmd {
	req, err := m.Request()
	if err != nil {
		m.err = err.Error()
		return nil
	}
	formats, err := export.ParseFormats(m.value(fieldFormats))
	if err != nil {
		m.err = err.Error()
		return nil
	}
	out := m.value(fieldOutput)
	if out == "" {
		m.err = "output directory is required"
		return nil
	}
	start := StartSearchMsg{Request: req, OutputDir: out, Formats: formats}
	return func() tea.Msg { return start }
}

func (m SearchModel) View() string {
	var b strings.Builder
	b.WriteString(styles.Title.Render("New Search"))
	b.WriteString("\n\n")

	b.WriteString(styles.Label.Render("Mode:"))
	for i, mode := range searchModes {
		label := modeLabels[mode]
		if i == m.mode {
			b.WriteString(" " + styles.ActiveItem.Render("< "+label+" >"))
		} else {
			b.WriteString(" " + styles.InactiveItem.Render("  "+label+"  "))
		}
	}
	if m.focused == fieldMode {
		b.WriteString(lipgloss.NewStyle().Foreground(styles.Secondary).Render(" ←→"))
	}
	b.WriteString("\n\n")

	for f := fieldQuery; f < fieldCount; f++ {
		if !m.visible(f) {
			continue
		}
		if f == fieldMax {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%s %s\n", styles.Label.Render(fieldLabels[f]), m.inputs[f].View())
	}
	if m.focused == fieldFormats {
		b.WriteString(styles.Hint.Render("  any of json, csv, geojson, sqlite"))
		b.WriteString("\n")
	}

	if m.err != "" {
		b.WriteString("\n")
		b.WriteString(styles.ErrorText.Render("  " + m.err))
		b.WriteString("\n")
	}

	b.WriteString(styles.StatusBar.Render("enter start • tab next • ←→ mode • esc back"))
	return styles.Border.Render(b.String())
}
