package views

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/rendis/mapsift/internal/tui/styles"
)

type RecentItem struct {
	Path     string
	OpenedAt time.Time
}

type RecentModel struct {
	items  []RecentItem
	cursor int
	now    func() time.Time
}

func NewRecentModel(items []RecentItem) RecentModel {
	return RecentModel{items: items, now: time.Now}
}

func (m RecentModel) Init() tea.Cmd {
	return nil
}

func (m RecentModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch key.String() {
	case "up", "k":
		m.cursor = max(m.cursor-1, 0)
	case "down", "j":
		m.cursor = max(min(m.cursor+1, len(m.items)-1), 0)
	case "enter":
		if m.cursor < len(m.items) {
			path := m.items[m.cursor].Path
			return m, func() tea.Msg { return NavigateToExplorer{Path: path} }
		}
	case "esc":
		return m, func() tea.Msg { return NavigateToHome{} }
	}
	return m, nil
}

func (m RecentModel) View() string {
	var b strings.Builder
	b.WriteString(styles.Title.Render("Recent"))
	b.WriteString("\n\n")

	if len(m.items) == 0 {
		b.WriteString(styles.Hint.Render("Nothing opened yet"))
		b.WriteString("\n")
	}

	missing := lipgloss.NewStyle().Foreground(styles.Error).Strikethrough(true)
	for i, item := range m.items {
		cursor, style := "  ", styles.InactiveItem
		if i == m.cursor {
			cursor, style = "> ", styles.ActiveItem
		}
		name := style.Render(filepath.Base(item.Path))
		if _, err := os.Stat(item.Path); err != nil {
			name = missing.Render(filepath.Base(item.Path))
		}
		fmt.Fprintf(&b, "%s%s\n%s\n", cursor, name,
			styles.Hint.Render(fmt.Sprintf("  %s  %s", filepath.Dir(item.Path), ago(m.now().Sub(item.OpenedAt)))))
	}

	b.WriteString(styles.StatusBar.Render("enter open • esc back"))
	return styles.Border.Render(b.String())
}

func ago(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
