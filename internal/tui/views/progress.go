package views

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/rendis/mapsift/internal/engine/geo"
	"github.com/rendis/mapsift/internal/engine/scraper"
	"github.com/rendis/mapsift/internal/events"
	"github.com/rendis/mapsift/internal/export"
	"github.com/rendis/mapsift/internal/model"
	"github.com/rendis/mapsift/internal/tui/styles"
)

const (
	logTail      = 6
	eventBacklog = 128
)

// Searcher runs one search.
type Searcher interface {
	Search(ctx context.Context, req model.SearchRequest, opts scraper.RunOptions) (*scraper.Result, error)
}

// OpenFunc starts the search stack for one run. The returned func releases
// it.
type OpenFunc func(ctx context.Context) (Searcher, func() error, error)

// runState is shared with the search goroutine and survives the value copies
// bubbletea makes of the model.
type runState struct {
	mu     sync.Mutex
	cancel context.CancelFunc
	stats  scraper.Stats
}

func (s *runState) setCancel(c context.CancelFunc) {
	s.mu.Lock()
	s.cancel = c
	s.mu.Unlock()
}

func (s *runState) stop() {
	s.mu.Lock()
	c := s.cancel
	s.mu.Unlock()
	if c != nil {
		c()
	}
}

type progressTickMsg time.Time

type searchEventMsg events.Event

type searchDoneMsg struct {
	Result *scraper.Result
	Files  []string
	Err    error
}

type ProgressModel struct {
	start     StartSearchMsg
	open      OpenFunc
	now       func() time.Time
	startedAt time.Time

	bar         progress.Model
	events      chan events.Event
	state       *runState
	log         []events.Event
	done        bool
	confirmQuit bool
	err         error
	result      *scraper.Result
	files       []string
}

func NewProgressModel(start StartSearchMsg, open OpenFunc) ProgressModel {
	return ProgressModel{
		start:     start,
		open:      open,
		now:       time.Now,
		startedAt: time.Now(),
		bar:       progress.New(progress.WithDefaultGradient(), progress.WithWidth(50)),
		events:    make(chan events.Event, eventBacklog),
		state:     &runState{},
	}
}

func (m ProgressModel) Init() tea.Cmd {
	return tea.Batch(m.run(), m.listen(), tick())
}

func tick() tea.Cmd {
	return tea.Tick(300*time.Millisecond, func(t time.Time) tea.Msg {
		return progressTickMsg(t)
	})
}

// listen delivers the next search event; it yields nil once the search is
// over.
func (m ProgressModel) listen() tea.Cmd {
	ch := m.events
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return nil
		}
		return searchEventMsg(ev)
	}
}

func (m ProgressModel) run() tea.Cmd {
	start, open, state, ch, now := m.start, m.open, m.state, m.events, m.now
	return func() tea.Msg {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		state.setCancel(cancel)

		emit := events.Func(func(ev events.Event) {
			select {
			case ch <- ev:
			default:
			}
		})

		searcher, release, err := open(ctx)
		if err != nil {
			close(ch)
			return searchDoneMsg{Err: err}
		}
		defer release()

		res, err := searcher.Search(ctx, start.Request, scraper.RunOptions{
			Emitter: emit,
			Stats:   &state.stats,
		})
		close(ch)
		if err != nil {
			return searchDoneMsg{Err: err}
		}
		if len(res.Records) == 0 {
			return searchDoneMsg{Result: res}
		}

		files, err := export.WriteAll(start.OutputDir, export.BaseName(now()), start.Formats, start.Request.Query, res.Records)
		return searchDoneMsg{Result: res, Files: files, Err: err}
	}
}

// browsable is the first written file the explorer can open.
func (m ProgressModel) browsable() string {
	for _, f := range m.files {
		if openable(f) {
			return f
		}
	}
	return ""
}

func (m ProgressModel) area() *geo.RadiusFilter {
	req := m.start.Request
	if req.Type != model.SearchByRadius || req.Latitude == nil || req.Longitude == nil {
		return nil
	}
	f := geo.NewRadiusFilter(*req.Latitude, *req.Longitude, req.RadiusMeters)
	return &f
}

func (m ProgressModel) leave() tea.Cmd {
	if path := m.browsable(); path != "" {
		next := NavigateToExplorer{Path: path, Area: m.area()}
		return func() tea.Msg { return next }
	}
	return func() tea.Msg { return NavigateToHome{} }
}

func (m ProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			m.state.stop()
			return m, tea.Quit
		case "enter":
			if m.done {
				return m, m.leave()
			}
			m.confirmQuit = false
		case "esc":
			switch {
			case m.done:
				return m, m.leave()
			case m.confirmQuit:
				m.state.stop()
				return m, func() tea.Msg { return NavigateToHome{} }
			default:
				m.confirmQuit = true
			}
		default:
			m.confirmQuit = false
		}
		return m, nil

	case searchEventMsg:
		m.log = append(m.log, events.Event(msg))
		if len(m.log) > logTail {
			m.log = m.log[len(m.log)-logTail:]
		}
		return m, m.listen()

	case searchDoneMsg:
		m.done = true
		m.result = msg.Result
		m.files = msg.Files
		m.err = msg.Err
		return m, nil

	case progressTickMsg:
		if m.done {
			return m, nil
		}
		return m, tick()

	case progress.FrameMsg:
		bar, cmd := m.bar.Update(msg)
		m.bar = bar.(progress.Model)
		return m, cmd
	}
	return m, nil
}

func (m ProgressModel) fraction() float64 {
	if m.done {
		return 1
	}
	target := m.start.Request.MaxResults
	if target <= 0 {
		return 0
	}
	return min(float64(m.state.stats.Accepted.Load())/float64(target), 1)
}

func (m ProgressModel) View() string {
	var b strings.Builder
	b.WriteString(styles.Title.Render("Searching " + m.start.Request.Describe()))
	b.WriteString("\n")

	stats := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(styles.Muted).
		Padding(0, 1).
		Width(30).
		Render(m.renderStats())
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, stats, "  ", m.renderLog()))
	b.WriteString("\n\n")
	b.WriteString(m.bar.ViewAs(m.fraction()))
	b.WriteString("\n\n")

	switch {
	case m.done:
		b.WriteString(m.renderOutcome())
		b.WriteString(styles.StatusBar.Render("enter explore • esc back"))
	case m.confirmQuit:
		b.WriteString(styles.ErrorText.Render("Press esc again to stop the search"))
		b.WriteString("\n")
		b.WriteString(styles.StatusBar.Render("esc stop • any key continue"))
	default:
		b.WriteString(styles.StatusBar.Render("esc cancel • ctrl+c quit"))
	}
	return b.String()
}

func (m ProgressModel) renderOutcome() string {
	var b strings.Builder
	if m.err != nil && !errors.Is(m.err, context.Canceled) {
		b.WriteString(styles.ErrorText.Render(fmt.Sprintf("Error: %v", m.err)))
		b.WriteString("\n")
	}
	if m.result == nil {
		return b.String()
	}
	if len(m.result.Records) == 0 {
		b.WriteString(lipgloss.NewStyle().Foreground(styles.Warning).Render("No businesses found"))
		b.WriteString("\n")
		return b.String()
	}
	b.WriteString(styles.SuccessText.Render(fmt.Sprintf("Found %d businesses", len(m.result.Records))))
	b.WriteString("\n")
	for _, f := range m.files {
		b.WriteString(styles.Hint.Render("  " + filepath.Clean(f)))
		b.WriteString("\n")
	}
	return b.String()
}

func (m ProgressModel) renderStats() string {
	s := m.state.stats.Snapshot()
	elapsed := m.now().Sub(m.startedAt).Truncate(time.Second)
	if m.result != nil {
		elapsed = m.result.Duration.Truncate(time.Second)
	}

	label := lipgloss.NewStyle().Foreground(styles.Muted).Width(13)
	var sb strings.Builder
	row := func(name string, v any, style lipgloss.Style) {
		sb.WriteString(label.Render(name))
		sb.WriteString(style.Render(fmt.Sprint(v)))
		sb.WriteString("\n")
	}

	row("Candidates:", s.Candidates, styles.Value)
	row("Pages:", s.PagesDone, styles.Value)
	failed := styles.Value
	if s.PagesFailed > 0 {
		failed = styles.ErrorText
	}
	row("Failed:", s.PagesFailed, failed)
	row("Accepted:", fmt.Sprintf("%d/%d", s.Accepted, m.start.Request.MaxResults), styles.SuccessText)
	if s.Rejected > 0 {
		row("Rejected:", s.Rejected, styles.Value)
	}
	if s.Unlocatable > 0 {
		row("No coords:", s.Unlocatable, lipgloss.NewStyle().Foreground(styles.Warning).Bold(true))
	}
	if s.EmailsFound > 0 {
		row("Emails:", s.EmailsFound, styles.Value)
	}
	row("Elapsed:", elapsed, styles.Value)
	return strings.TrimSuffix(sb.String(), "\n")
}

var eventColors = map[events.Kind]lipgloss.Color{
	events.KindSuccess:  styles.Success,
	events.KindError:    styles.Error,
	events.KindInfo:     styles.Secondary,
	events.KindComplete: styles.Primary,
}

func (m ProgressModel) renderLog() string {
	var sb strings.Builder
	for _, ev := range m.log {
		color, ok := eventColors[ev.Kind]
		if !ok {
			color = styles.Muted
		}
		sb.WriteString(lipgloss.NewStyle().Foreground(color).Render(truncate(ev.Message, 60)))
		sb.WriteString("\n")
	}
	return sb.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 {
		return ""
	}
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
