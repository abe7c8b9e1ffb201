// Package tui is the interactive terminal front end: search form, live
// progress and a results explorer.
package tui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/rendis/mapsift/internal/tui/views"
)

type viewID int

const (
	viewHome viewID = iota
	viewSearch
	viewProgress
	viewExplorer
	viewFilePicker
	viewRecent
)

type Options struct {
	Version  string
	Defaults views.SearchDefaults
	// Open starts the search stack for each search run from the form.
	Open   views.OpenFunc
	Recent *RecentStore
}

// App is the root bubbletea model. It owns navigation; each view handles its
// own keys.
type App struct {
	opts    Options
	current viewID
	width   int
	height  int

	home       views.HomeModel
	search     views.SearchModel
	progress   views.ProgressModel
	explorer   views.ExplorerModel
	filePicker views.FilePickerModel
	recent     views.RecentModel
}

func NewApp(opts Options) App {
	if opts.Recent == nil {
		opts.Recent = DefaultRecentStore()
	}
	return App{
		opts:    opts,
		current: viewHome,
		home:    views.NewHomeModel(opts.Version),
	}
}

func (a App) Init() tea.Cmd {
	return a.home.Init()
}

func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		// the progress view stops its search before quitting
		if msg.String() == "ctrl+c" && a.current != viewProgress {
			return a, tea.Quit
		}
	case tea.WindowSizeMsg:
		a.width, a.height = msg.Width, msg.Height
	case views.NavigateToHome:
		a.current = viewHome
		return a, nil
	case views.NavigateToSearch:
		a.current = viewSearch
		a.search = views.NewSearchModel(a.opts.Defaults)
		return a, a.search.Init()
	case views.NavigateToLoad:
		a.current = viewFilePicker
		a.filePicker = views.NewFilePickerModel(a.opts.Defaults.OutputDir)
		return a, a.filePicker.Init()
	case views.NavigateToRecent:
		a.current = viewRecent
		entries := a.opts.Recent.Load()
		items := make([]views.RecentItem, len(entries))
		for i, e := range entries {
			items[i] = views.RecentItem{Path: e.Path, OpenedAt: e.OpenedAt}
		}
		a.recent = views.NewRecentModel(items)
		return a, a.recent.Init()
	case views.StartSearchMsg:
		a.current = viewProgress
		a.progress = views.NewProgressModel(msg, a.opts.Open)
		return a, tea.Batch(a.progress.Init(), a.resize())
	case views.NavigateToExplorer:
		a.current = viewExplorer
		a.explorer = views.NewExplorerModel(msg.Path, msg.Area)
		_ = a.opts.Recent.Add(msg.Path)
		return a, tea.Batch(a.explorer.Init(), a.resize())
	}

	var (
		next tea.Model
		cmd  tea.Cmd
	)
	switch a.current {
	case viewHome:
		next, cmd = a.home.Update(msg)
		a.home = next.(views.HomeModel)
	case viewSearch:
		next, cmd = a.search.Update(msg)
		a.search = next.(views.SearchModel)
	case viewProgress:
		next, cmd = a.progress.Update(msg)
		a.progress = next.(views.ProgressModel)
	case viewExplorer:
		next, cmd = a.explorer.Update(msg)
		a.explorer = next.(views.ExplorerModel)
	case viewFilePicker:
		next, cmd = a.filePicker.Update(msg)
		a.filePicker = next.(views.FilePickerModel)
	case viewRecent:
		next, cmd = a.recent.Update(msg)
		a.recent = next.(views.RecentModel)
	}
	return a, cmd
}

func (a App) View() string {
	var content string
	switch a.current {
	case viewHome:
		content = a.home.View()
	case viewSearch:
		content = a.search.View()
	case viewProgress:
		content = a.progress.View()
	case viewExplorer:
		content = a.explorer.View()
	case viewFilePicker:
		content = a.filePicker.View()
	case viewRecent:
		content = a.recent.View()
	}
	return lipgloss.Place(a.width, a.height, lipgloss.Center, lipgloss.Top, content)
}

// resize replays the terminal size so a freshly built view can lay itself out.
func (a App) resize() tea.Cmd {
	size := tea.WindowSizeMsg{Width: a.width, Height: a.height}
	return func() tea.Msg { return size }
}

// Run starts the TUI and blocks until the user quits.
func Run(opts Options) error {
	_, err := tea.NewProgram(NewApp(opts), tea.WithAltScreen()).Run()
	return err
}
