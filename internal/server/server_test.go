package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/mapsift/internal/engine/scraper"
	"github.com/rendis/mapsift/internal/events"
	"github.com/rendis/mapsift/internal/model"
	"github.com/rendis/mapsift/internal/session"
)

type fakeSearcher struct {
	records []model.BusinessRecord
	err     error
	// release, when set, holds the search until closed or canceled.
	release chan struct{}
}

func (f *fakeSearcher) Search(ctx context.Context, req model.SearchRequest, opts scraper.RunOptions) (*scraper.Result, error) {
	events.Emitf(opts.Emitter, events.KindInfo, "Starting search: %s", req.Describe())
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return &scraper.Result{Records: []model.BusinessRecord{}}, nil
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	events.EmitData(opts.Emitter, events.KindComplete, "Search complete", map[string]any{"count": len(f.records)})
	return &scraper.Result{Records: f.records, Count: len(f.records)}, nil
}

type harness struct {
	router *gin.Engine
	store  *session.MemoryStore
	srv    *Server
}

func setup(t *testing.T, searcher Searcher) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	store := session.NewMemoryStore()
	srv := New(Options{
		Searcher: searcher,
		Store:    store,
		Logger:   logger,
		Now:      func() time.Time { return time.Date(2026, 3, 1, 9, 5, 2, 0, time.UTC) },
	})
	t.Cleanup(srv.Close)
	return &harness{router: srv.Router(), store: store, srv: srv}
}

func (h *harness) do(method, path string, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	h.router.ServeHTTP(resp, req)
	return resp
}

// start posts a search and waits for it to finish.
func (h *harness) start(t *testing.T, body string) string {
	t.Helper()
	resp := h.do(http.MethodPost, "/api/scrape", body)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	var out map[string]string
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &out))
	id := out["sessionId"]
	require.NotEmpty(t, id)

	sess, ok := h.store.Get(id)
	require.True(t, ok)
	select {
	case <-sess.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("search did not finish")
	}
	return id
}

func twoRecords() []model.BusinessRecord {
	return []model.BusinessRecord{
		{Name: "Blue Bottle", Coordinates: model.NewCoordinates(40.001, -75), OpeningHours: []model.OpeningHours{}, Amenities: []string{}},
		{Name: "Stumptown", OpeningHours: []model.OpeningHours{}, Amenities: []string{}},
	}
}

func TestScrapeRejectsInvalidRequests(t *testing.T) {
	h := setup(t, &fakeSearcher{})

	resp := h.do(http.MethodPost, "/api/scrape", `{"searchType":"location","query":"  "}`)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Contains(t, resp.Body.String(), "query")

	resp = h.do(http.MethodPost, "/api/scrape", `{"searchType":"zipcode","query":"coffee"}`)
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = h.do(http.MethodPost, "/api/scrape", `{bad json`)
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	assert.Empty(t, h.store.List())
}

func TestScrapeAndFetchResults(t *testing.T) {
	h := setup(t, &fakeSearcher{records: twoRecords()})
	id := h.start(t, `{"searchType":"location","query":"coffee","location":"Philadelphia"}`)

	resp := h.do(http.MethodGet, "/api/results/"+id, "")
	require.Equal(t, http.StatusOK, resp.Code)

	var snap session.Snapshot
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &snap))
	assert.Equal(t, session.StatusCompleted, snap.Status)
	assert.Equal(t, 2, snap.Count)
	assert.Equal(t, "Blue Bottle", snap.Results[0].Name)

	resp = h.do(http.MethodGet, "/api/results/nope", "")
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestScrapeFailureIsRecorded(t *testing.T) {
	h := setup(t, &fakeSearcher{err: errors.New("browser crashed")})
	id := h.start(t, `{"query":"coffee"}`)

	resp := h.do(http.MethodGet, "/api/results/"+id, "")
	var snap session.Snapshot
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &snap))
	assert.Equal(t, session.StatusError, snap.Status)
	assert.Equal(t, "browser crashed", snap.Error)
}

func TestLogsReplayFinishedSession(t *testing.T) {
	h := setup(t, &fakeSearcher{records: twoRecords()})
	id := h.start(t, `{"query":"coffee"}`)

	resp := h.do(http.MethodGet, "/api/logs/"+id, "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "text/event-stream", resp.Header().Get("Content-Type"))

	var kinds []events.Kind
	for _, line := range strings.Split(resp.Body.String(), "\n") {
		payload, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}
		var ev events.Event
		require.NoError(t, json.Unmarshal([]byte(payload), &ev))
		kinds = append(kinds, ev.Kind)
	}
	assert.Equal(t, []events.Kind{events.KindInfo, events.KindComplete}, kinds)

	resp = h.do(http.MethodGet, "/api/logs/nope", "")
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestLogsStreamLiveEvents(t *testing.T) {
	release := make(chan struct{})
	h := setup(t, &fakeSearcher{records: twoRecords(), release: release})
	ts := httptest.NewServer(h.router)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/scrape", "application/json", strings.NewReader(`{"query":"coffee"}`))
	require.NoError(t, err)
	var out map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	resp.Body.Close()

	stream, err := http.Get(ts.URL + "/api/logs/" + out["sessionId"])
	require.NoError(t, err)
	defer stream.Body.Close()

	reader := bufio.NewReader(stream.Body)
	readEvent := func() events.Event {
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			if payload, ok := strings.CutPrefix(strings.TrimSpace(line), "data: "); ok {
				var ev events.Event
				require.NoError(t, json.Unmarshal([]byte(payload), &ev))
				return ev
			}
		}
	}

	// emitted before the search blocks, so it arrives as replay or live
	assert.Equal(t, events.KindInfo, readEvent().Kind)
	close(release)
	assert.Equal(t, events.KindComplete, readEvent().Kind)

	rest, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.NotContains(t, string(rest), "data: ")
}

func TestExport(t *testing.T) {
	h := setup(t, &fakeSearcher{records: twoRecords()})
	id := h.start(t, `{"query":"coffee"}`)

	resp := h.do(http.MethodGet, "/api/export/"+id+"/csv", "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "attachment; filename=mapsift_20260301_090502.csv", resp.Header().Get("Content-Disposition"))
	assert.True(t, strings.HasPrefix(resp.Body.String(), "Business Name,Business Type"))
	assert.Equal(t, 3, strings.Count(resp.Body.String(), "\n"))

	resp = h.do(http.MethodGet, "/api/export/"+id+"/json", "")
	require.Equal(t, http.StatusOK, resp.Code)
	var records []model.BusinessRecord
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &records))
	assert.Len(t, records, 2)

	resp = h.do(http.MethodGet, "/api/export/"+id+"/geojson", "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"FeatureCollection"`)

	resp = h.do(http.MethodGet, "/api/export/"+id+"/xml", "")
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = h.do(http.MethodGet, "/api/export/nope/csv", "")
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestExportWithoutResults(t *testing.T) {
	h := setup(t, &fakeSearcher{})
	id := h.start(t, `{"query":"coffee"}`)

	resp := h.do(http.MethodGet, "/api/export/"+id+"/json", "")
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestDeleteStopsRunningSearch(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	h := setup(t, &fakeSearcher{release: release})

	resp := h.do(http.MethodPost, "/api/scrape", `{"query":"coffee"}`)
	require.Equal(t, http.StatusOK, resp.Code)
	var out map[string]string
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &out))
	sess, ok := h.store.Get(out["sessionId"])
	require.True(t, ok)

	resp = h.do(http.MethodDelete, "/api/session/"+sess.ID, "")
	assert.Equal(t, http.StatusOK, resp.Code)

	select {
	case <-sess.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("search was not canceled")
	}

	resp = h.do(http.MethodGet, "/api/results/"+sess.ID, "")
	assert.Equal(t, http.StatusNotFound, resp.Code)
	resp = h.do(http.MethodDelete, "/api/session/"+sess.ID, "")
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestHealth(t *testing.T) {
	h := setup(t, &fakeSearcher{})
	resp := h.do(http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"status":"ok"`)
}
