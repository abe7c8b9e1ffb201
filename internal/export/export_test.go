package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/mapsift/internal/model"
)

func records() []model.BusinessRecord {
	rating := 4.5
	a := model.BusinessRecord{
		Name:         `Joe's "Best", Coffee`,
		Type:         "Coffee shop",
		Rating:       &rating,
		ReviewsCount: 87,
		Address: model.Address{
			Full: "1 Main St, Springfield, PA 19000, USA", Street: "1 Main St",
			City: "Springfield", State: "PA", ZipCode: "19000", Country: "USA",
		},
		Coordinates:  model.NewCoordinates(40.001, -75.0005),
		Description:  "Roastery\nand bakery",
		OpeningHours: []model.OpeningHours{{Day: "Monday", Hours: "7 AM–5 PM"}, {Day: "Tuesday", Hours: "Closed"}},
		Amenities:    []string{"Free WiFi", "Outdoor seating"},
		ScrapedAt:    time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	a.SetDistance(120)
	b := model.BusinessRecord{Name: "Nowhere Diner", OpeningHours: []model.OpeningHours{}, Amenities: []string{}}
	return []model.BusinessRecord{a, b}
}

func TestParseFormats(t *testing.T) {
	got, err := ParseFormats("json, CSV,db,json")
	require.NoError(t, err)
	assert.Equal(t, []Format{JSON, CSV, SQLite}, got)
	assert.Equal(t, "db", SQLite.Ext())

	_, err = ParseFormats("xml")
	assert.Error(t, err)
	_, err = ParseFormats(" , ")
	assert.Error(t, err)
}

func TestBaseName(t *testing.T) {
	assert.Equal(t, "mapsift_20260301_090502", BaseName(time.Date(2026, 3, 1, 9, 5, 2, 0, time.UTC)))
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, records()))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Len(t, rows[0], 27)
	assert.Equal(t, "Business Name", rows[0][0])
	assert.Equal(t, "Scraped At", rows[0][26])

	first := rows[1]
	require.Len(t, first, 27)
	assert.Equal(t, `Joe's "Best", Coffee`, first[0])
	assert.Equal(t, "40.001", first[12])
	assert.Equal(t, "-75.0005", first[13])
	assert.Equal(t, "4.5", first[14])
	assert.Equal(t, "87", first[15])
	assert.Equal(t, "Roastery\nand bakery", first[18])
	assert.Equal(t, "Monday: 7 AM–5 PM; Tuesday: Closed", first[19])
	assert.Equal(t, "120", first[24])
	assert.Equal(t, "Free WiFi; Outdoor seating", first[25])
	assert.Equal(t, "2026-03-01T10:00:00Z", first[26])

	second := rows[2]
	assert.Empty(t, second[12])
	assert.Empty(t, second[14])
	assert.Empty(t, second[24])
	assert.Equal(t, "0", second[15])
}

func TestWriteCSVQuotesSpecialValues(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, records()[:1]))
	assert.Contains(t, buf.String(), `"Joe's ""Best"", Coffee"`)
	assert.Contains(t, buf.String(), "\"Roastery\nand bakery\"")
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, nil))
	assert.Equal(t, "[]\n", buf.String())

	buf.Reset()
	require.NoError(t, WriteJSON(&buf, records()))
	assert.True(t, strings.HasPrefix(buf.String(), "[\n  {"))

	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded, 2)
	assert.Equal(t, 120.0, decoded[0]["distanceFromCenter"])
	_, has := decoded[1]["distanceFromCenter"]
	assert.False(t, has)
}

func TestWriteGeoJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteGeoJSON(&buf, records()))

	fc, err := geojson.UnmarshalFeatureCollection(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, fc.Features, 1)

	f := fc.Features[0]
	assert.Equal(t, orb.Point{-75.0005, 40.001}, f.Geometry)
	assert.Equal(t, `Joe's "Best", Coffee`, f.Properties.MustString("name"))
	assert.Equal(t, 120.0, f.Properties.MustFloat64("distanceFromCenter"))
}

func TestWriteAllAndLoad(t *testing.T) {
	dir := t.TempDir()
	base := BaseName(time.Now())

	paths, err := WriteAll(dir, base, []Format{JSON, CSV, GeoJSON, SQLite}, "coffee", records())
	require.NoError(t, err)
	require.Len(t, paths, 4)
	assert.Equal(t, filepath.Join(dir, base+".db"), paths[3])
	for _, p := range paths {
		_, err := os.Stat(p)
		assert.NoError(t, err, p)
	}

	fromJSON, err := Load(paths[0])
	require.NoError(t, err)
	fromDB, err := Load(paths[3])
	require.NoError(t, err)
	assert.Equal(t, fromJSON, fromDB)
	assert.Equal(t, records(), fromJSON)

	_, err = Load(paths[1])
	assert.Error(t, err)
}
