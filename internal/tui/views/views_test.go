package views

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/mapsift/internal/engine/scraper"
	"github.com/rendis/mapsift/internal/events"
	"github.com/rendis/mapsift/internal/export"
	"github.com/rendis/mapsift/internal/model"
)

func keyMsg(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "right":
		return tea.KeyMsg{Type: tea.KeyRight}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestHomeShortcuts(t *testing.T) {
	m := NewHomeModel("test")

	_, cmd := m.Update(keyMsg("n"))
	require.NotNil(t, cmd)
	assert.Equal(t, NavigateToSearch{}, cmd())

	_, cmd = m.Update(keyMsg("o"))
	require.NotNil(t, cmd)
	assert.Equal(t, NavigateToLoad{}, cmd())
}

func TestSearchFormModes(t *testing.T) {
	m := NewSearchModel(SearchDefaults{MaxResults: 20, Radius: 1500, OutputDir: "out", Formats: "json"})
	m.inputs[fieldQuery].SetValue("  coffee ")
	m.inputs[fieldLocation].SetValue("Lisbon")

	req, err := m.Request()
	require.NoError(t, err)
	assert.Equal(t, model.SearchByLocation, req.Type)
	assert.Equal(t, "coffee", req.Query)
	assert.Equal(t, "Lisbon", req.Location)
	assert.Equal(t, 20, req.MaxResults)

	next, _ := m.Update(keyMsg("right"))
	m = next.(SearchModel)
	assert.Equal(t, model.SearchByZipCode, m.Mode())
	_, err = m.Request()
	assert.ErrorIs(t, err, model.ErrMissingZipCode)

	m.inputs[fieldZip].SetValue("90401")
	m.inputs[fieldState].SetValue("CA")
	req, err = m.Request()
	require.NoError(t, err)
	assert.Equal(t, "90401, CA", req.PostalLocation())

	next, _ = m.Update(keyMsg("right"))
	m = next.(SearchModel)
	assert.Equal(t, model.SearchByRadius, m.Mode())
	m.inputs[fieldLat].SetValue("40")
	m.inputs[fieldLng].SetValue("abc")
	_, err = m.Request()
	assert.EqualError(t, err, "longitude must be a number")

	m.inputs[fieldLng].SetValue("-75")
	req, err = m.Request()
	require.NoError(t, err)
	require.NotNil(t, req.Latitude)
	assert.Equal(t, 40.0, *req.Latitude)
	assert.Equal(t, -75.0, *req.Longitude)
	assert.Equal(t, 1500.0, req.RadiusMeters)
}

func TestSearchSubmit(t *testing.T) {
	m := NewSearchModel(SearchDefaults{OutputDir: "out", Formats: "json,db"})

	next, cmd := m.Update(keyMsg("enter"))
	assert.Nil(t, cmd)
	assert.Equal(t, model.ErrMissingQuery.Error(), next.(SearchModel).err)

	m.inputs[fieldQuery].SetValue("bakery")
	_, cmd = m.Update(keyMsg("enter"))
	require.NotNil(t, cmd)
	start, ok := cmd().(StartSearchMsg)
	require.True(t, ok)
	assert.Equal(t, "out", start.OutputDir)
	assert.Equal(t, []export.Format{export.JSON, export.SQLite}, start.Formats)
	assert.Equal(t, model.DefaultMaxResults, start.Request.MaxResults)
}

func TestMatchRecords(t *testing.T) {
	records := []model.BusinessRecord{
		{Name: "Café Lumière", Type: "Coffee shop", Address: model.Address{City: "Montréal"}},
		{Name: "Bagel Place", Type: "Bakery", Address: model.Address{City: "Montreal"}},
	}

	got := matchRecords(records, "cafe")
	require.Len(t, got, 1)
	assert.Equal(t, "Café Lumière", got[0].Name)

	assert.Len(t, matchRecords(records, "MONTREAL"), 2)
	assert.Len(t, matchRecords(records, "bakery montreal"), 1)
	assert.Len(t, matchRecords(records, "  "), 2)
	assert.Empty(t, matchRecords(records, "pizza"))
}

type fakeSearcher struct {
	records []model.BusinessRecord
	err     error
}

func (f fakeSearcher) Search(_ context.Context, req model.SearchRequest, opts scraper.RunOptions) (*scraper.Result, error) {
	events.Emitf(opts.Emitter, events.KindInfo, "Starting search: %s", req.Describe())
	if f.err != nil {
		return nil, f.err
	}
	opts.Stats.Accepted.Add(int64(len(f.records)))
	return &scraper.Result{Records: f.records, Count: len(f.records)}, nil
}

func openWith(s Searcher) OpenFunc {
	return func(context.Context) (Searcher, func() error, error) {
		return s, func() error { return nil }, nil
	}
}

func TestProgressRunWritesExports(t *testing.T) {
	dir := t.TempDir()
	lat, lng := 40.0, -75.0
	start := StartSearchMsg{
		Request: model.SearchRequest{
			Type: model.SearchByRadius, Query: "coffee", MaxResults: 2,
			Latitude: &lat, Longitude: &lng, RadiusMeters: 500,
		},
		OutputDir: dir,
		Formats:   []export.Format{export.CSV, export.JSON},
	}
	records := []model.BusinessRecord{{Name: "A"}, {Name: "B"}}
	m := NewProgressModel(start, openWith(fakeSearcher{records: records}))
	m.now = func() time.Time { return time.Date(2026, 5, 4, 3, 2, 1, 0, time.UTC) }

	done, ok := m.run()().(searchDoneMsg)
	require.True(t, ok)
	require.NoError(t, done.Err)
	assert.Equal(t, []string{
		filepath.Join(dir, "mapsift_20260504_030201.csv"),
		filepath.Join(dir, "mapsift_20260504_030201.json"),
	}, done.Files)
	for _, f := range done.Files {
		_, err := os.Stat(f)
		assert.NoError(t, err)
	}

	ev, ok := m.listen()().(searchEventMsg)
	require.True(t, ok)
	assert.Equal(t, events.KindInfo, ev.Kind)
	assert.Nil(t, m.listen()(), "channel closes after the search")

	next, _ := m.Update(done)
	m = next.(ProgressModel)
	assert.Equal(t, 1.0, m.fraction())
	assert.Equal(t, done.Files[1], m.browsable())

	_, cmd := m.Update(keyMsg("enter"))
	nav, ok := cmd().(NavigateToExplorer)
	require.True(t, ok)
	assert.Equal(t, done.Files[1], nav.Path)
	require.NotNil(t, nav.Area)
	assert.Equal(t, 500.0, nav.Area.Radius)
}

func TestProgressOpenFailure(t *testing.T) {
	m := NewProgressModel(StartSearchMsg{Request: model.SearchRequest{Query: "x"}},
		func(context.Context) (Searcher, func() error, error) {
			return nil, nil, errors.New("no chrome")
		})

	done := m.run()().(searchDoneMsg)
	assert.EqualError(t, done.Err, "no chrome")
	assert.Nil(t, m.listen()())
}

func TestExplorerLoadsAndFilters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.json")
	rating := 4.5
	require.NoError(t, export.WriteFile(path, export.JSON, "", []model.BusinessRecord{
		{Name: "Blue Bottle", Rating: &rating, Coordinates: model.NewCoordinates(40, -75)},
		{Name: "Stumptown"},
	}))

	m := NewExplorerModel(path, nil)
	next, _ := m.Update(tea.WindowSizeMsg{Width: 140, Height: 40})
	m = next.(ExplorerModel)
	next, _ = m.Update(m.Init()())
	m = next.(ExplorerModel)

	require.NoError(t, m.err)
	assert.Len(t, m.filtered, 2)
	assert.Equal(t, 0, m.selected)
	assert.Equal(t, "Blue Bottle", m.cardLines[0])
	assert.Equal(t, "4.5★", m.cardLines[1])
	assert.Contains(t, m.View(), "results.json: 2 businesses")

	m.filter.SetValue("stump")
	m.applyFilter()
	require.Len(t, m.filtered, 1)
	assert.Equal(t, "Stumptown", m.filtered[0].Name)

	m.export(export.CSV)
	_, err := os.Stat(filepath.Join(filepath.Dir(path), "results.csv"))
	assert.NoError(t, err)
	assert.Contains(t, m.notice, "Exported 1 rows")
}

func TestExplorerLoadError(t *testing.T) {
	m := NewExplorerModel(filepath.Join(t.TempDir(), "missing.json"), nil)
	next, _ := m.Update(m.Init()())
	m = next.(ExplorerModel)
	assert.Error(t, m.err)
	assert.Contains(t, m.View(), "Error loading")
}
