package views

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/rendis/mapsift/internal/tui/styles"
)

const pickerRows = 15

// openable reports whether the explorer can load the file.
func openable(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json", ".db":
		return true
	}
	return false
}

type FilePickerModel struct {
	dir     string
	entries []os.DirEntry
	cursor  int
	err     error
}

func NewFilePickerModel(dir string) FilePickerModel {
	if dir == "" {
		dir, _ = os.Getwd()
	}
	m := FilePickerModel{dir: dir}
	m.read()
	return m
}

// read lists directories first, then exports, skipping dotfiles.
func (m *FilePickerModel) read() {
	all, err := os.ReadDir(m.dir)
	m.err = err
	m.entries = m.entries[:0]
	m.cursor = 0
	for _, e := range all {
		if strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if e.IsDir() || openable(e.Name()) {
			m.entries = append(m.entries, e)
		}
	}
	slices.SortStableFunc(m.entries, func(a, b os.DirEntry) int {
		switch {
		case a.IsDir() == b.IsDir():
			return strings.Compare(a.Name(), b.Name())
		case a.IsDir():
			return -1
		default:
			return 1
		}
	})
}

func (m FilePickerModel) Init() tea.Cmd {
	return nil
}

func (m FilePickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch key.String() {
	case "up", "k":
		m.cursor = max(m.cursor-1, 0)
	case "down", "j":
		m.cursor = max(min(m.cursor+1, len(m.entries)-1), 0)
	case "enter":
		if m.cursor >= len(m.entries) {
			return m, nil
		}
		entry := m.entries[m.cursor]
		path := filepath.Join(m.dir, entry.Name())
		if entry.IsDir() {
			m.dir = path
			m.read()
			return m, nil
		}
		return m, func() tea.Msg { return NavigateToExplorer{Path: path} }
	case "backspace":
		if parent := filepath.Dir(m.dir); parent != m.dir {
			m.dir = parent
			m.read()
		}
	case "esc":
		return m, func() tea.Msg { return NavigateToHome{} }
	}
	return m, nil
}

func (m FilePickerModel) View() string {
	var b strings.Builder
	b.WriteString(styles.Title.Render("Open Results"))
	b.WriteString("\n")
	b.WriteString(lipgloss.NewStyle().Foreground(styles.Muted).Render(m.dir))
	b.WriteString("\n\n")

	if m.err != nil {
		b.WriteString(styles.ErrorText.Render(fmt.Sprintf("Error: %v", m.err)))
		return styles.Border.Render(b.String())
	}
	if len(m.entries) == 0 {
		b.WriteString(styles.Hint.Render("No .json or .db files here"))
		b.WriteString("\n")
	}

	start := max(m.cursor-pickerRows+3, 0)
	end := min(start+pickerRows, len(m.entries))
	for i := start; i < end; i++ {
		e := m.entries[i]
		cursor, style := "  ", styles.InactiveItem
		if i == m.cursor {
			cursor, style = "> ", styles.ActiveItem
		}
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		fmt.Fprintf(&b, "%s%s\n", cursor, style.Render(name))
	}

	b.WriteString(styles.StatusBar.Render("enter open • backspace parent • esc back"))
	return styles.Border.Render(b.String())
}
