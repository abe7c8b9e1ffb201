package views

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/rendis/mapsift/internal/engine/geo"
	"github.com/rendis/mapsift/internal/tui/styles"
)

// Navigation messages handled by the root model.
type (
	NavigateToHome   struct{}
	NavigateToSearch struct{}
	NavigateToLoad   struct{}
	NavigateToRecent struct{}
	// NavigateToExplorer opens a .json or .db export. Area, when set, is
	// drawn on the map.
	NavigateToExplorer struct {
		Path string
		Area *geo.RadiusFilter
	}
)

type menuItem struct {
	key   string
	label string
	desc  string
	msg   tea.Msg
}

type HomeModel struct {
	version string
	items   []menuItem
	cursor  int
}

func NewHomeModel(version string) HomeModel {
	return HomeModel{
		version: version,
		items: []menuItem{
			{key: "n", label: "New Search", desc: "Search listings by place, ZIP or radius", msg: NavigateToSearch{}},
			{key: "o", label: "Open Results", desc: "Browse a .json or .db export", msg: NavigateToLoad{}},
			{key: "r", label: "Recent", desc: "Reopen a recent export", msg: NavigateToRecent{}},
			{key: "q", label: "Quit", desc: "Exit mapsift"},
		},
	}
}

func (m HomeModel) Init() tea.Cmd {
	return nil
}

func (m HomeModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch key.String() {
	case "up", "k":
		m.cursor = max(m.cursor-1, 0)
	case "down", "j":
		m.cursor = min(m.cursor+1, len(m.items)-1)
	case "enter":
		return m, m.choose(m.cursor)
	default:
		for i, item := range m.items {
			if item.key == key.String() {
				m.cursor = i
				return m, m.choose(i)
			}
		}
	}
	return m, nil
}

func (m HomeModel) choose(i int) tea.Cmd {
	next := m.items[i].msg
	if next == nil {
		return tea.Quit
	}
	return func() tea.Msg { return next }
}

func (m HomeModel) View() string {
	var b strings.Builder

	b.WriteString(lipgloss.NewStyle().Foreground(styles.Primary).Bold(true).Render("  mapsift"))
	b.WriteString(lipgloss.NewStyle().Foreground(styles.Muted).Render(" " + m.version))
	b.WriteString("\n")
	b.WriteString(lipgloss.NewStyle().Foreground(styles.Secondary).Italic(true).Render("  Map listing extractor"))
	b.WriteString("\n\n")

	for i, item := range m.items {
		cursor, style := "  ", styles.InactiveItem
		if i == m.cursor {
			cursor, style = "> ", styles.ActiveItem
		}
		fmt.Fprintf(&b, "%s%s %s%s\n", cursor,
			styles.Key.Render("["+item.key+"]"),
			style.Render(item.label),
			styles.Hint.Render(" - "+item.desc))
	}

	b.WriteString(styles.StatusBar.Render("↑↓ navigate • enter select • q quit"))
	return styles.Border.Render(b.String())
}
