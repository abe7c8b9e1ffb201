// Package export writes and reads result files.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/rendis/mapsift/internal/engine/normalize"
	"github.com/rendis/mapsift/internal/engine/storage"
	"github.com/rendis/mapsift/internal/model"
)

type Format string

const (
	JSON    Format = "json"
	CSV     Format = "csv"
	GeoJSON Format = "geojson"
	SQLite  Format = "sqlite"
)

// Ext is the file extension for the format, without the dot.
func (f Format) Ext() string {
	if f == SQLite {
		return "db"
	}
	return string(f)
}

// ParseFormats reads a comma-separated format list such as "json,csv".
func ParseFormats(s string) ([]Format, error) {
	var out []Format
	seen := map[Format]bool{}
	for _, part := range strings.Split(s, ",") {
		f := Format(strings.ToLower(strings.TrimSpace(part)))
		switch f {
		case "":
			continue
		case "db":
			f = SQLite
		case JSON, CSV, GeoJSON, SQLite:
		default:
			return nil, fmt.Errorf("unsupported format: %s (use json, csv, geojson or sqlite)", part)
		}
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no export format given")
	}
	return out, nil
}

// BaseName is the timestamped file name stem, mapsift_YYYYMMDD_HHMMSS.
func BaseName(t time.Time) string {
	return fmt.Sprintf("mapsift_%s", t.Format("20060102_150405"))
}

// CSVHeader is the fixed column set of CSV exports.
var CSVHeader = []string{
	"Business Name", "Business Type", "Phone", "WhatsApp", "Email", "Website",
	"Full Address", "Street", "City", "State", "ZIP Code", "Country",
	"Latitude", "Longitude", "Rating", "Reviews Count", "Total Reviews",
	"Price Level", "Description", "Opening Hours", "Plus Code", "Place ID",
	"Google Maps URL", "Image URL", "Distance From Center (m)", "Amenities", "Scraped At",
}

// WriteJSON writes records as a pretty-printed array.
func WriteJSON(w io.Writer, records []model.BusinessRecord) error {
	if records == nil {
		records = []model.BusinessRecord{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(records)
}

// WriteCSV writes one row per record under CSVHeader.
func WriteCSV(w io.Writer, records []model.BusinessRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}
	for _, b := range records {
		if err := cw.Write(csvRow(b)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func csvRow(b model.BusinessRecord) []string {
	var lat, lng string
	if b.Coordinates.Valid() {
		la, ln := b.Coordinates.LatLng()
		lat, lng = formatFloat(la), formatFloat(ln)
	}
	var rating string
	if b.Rating != nil {
		rating = formatFloat(*b.Rating)
	}
	var distance string
	if b.DistanceFromCenter != nil {
		distance = strconv.Itoa(*b.DistanceFromCenter)
	}
	var scraped string
	if !b.ScrapedAt.IsZero() {
		scraped = b.ScrapedAt.UTC().Format(time.RFC3339)
	}

	a := b.Address
	return []string{
		b.Name, b.Type, b.Phone, b.WhatsApp, b.Email, b.Website,
		a.Full, a.Street, a.City, a.State, a.ZipCode, a.Country,
		lat, lng, rating, strconv.Itoa(b.ReviewsCount), strconv.Itoa(b.TotalReviews),
		b.PriceLevel, b.Description, normalize.FormatHours(b.OpeningHours), b.PlusCode, b.PlaceID,
		b.GoogleMapsURL, b.ImageURL, distance, strings.Join(b.Amenities, "; "), scraped,
	}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// FeatureCollection maps records with coordinates to point features.
// Records without coordinates are left out.
func FeatureCollection(records []model.BusinessRecord) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, b := range records {
		if !b.Coordinates.Valid() {
			continue
		}
		lat, lng := b.Coordinates.LatLng()
		f := geojson.NewFeature(orb.Point{lng, lat})
		f.Properties["name"] = b.Name
		f.Properties["type"] = b.Type
		f.Properties["address"] = b.Address.Full
		f.Properties["zipCode"] = b.Address.ZipCode
		f.Properties["phone"] = b.Phone
		f.Properties["website"] = b.Website
		f.Properties["email"] = b.Email
		f.Properties["placeId"] = b.PlaceID
		f.Properties["googleMapsUrl"] = b.GoogleMapsURL
		f.Properties["reviewsCount"] = b.ReviewsCount
		if b.Rating != nil {
			f.Properties["rating"] = *b.Rating
		}
		if b.DistanceFromCenter != nil {
			f.Properties["distanceFromCenter"] = *b.DistanceFromCenter
		}
		fc.Append(f)
	}
	return fc
}

func WriteGeoJSON(w io.Writer, records []model.BusinessRecord) error {
	data, err := FeatureCollection(records).MarshalJSON()
	if err != nil {
		return fmt.Errorf("encoding geojson: %w", err)
	}
	_, err = w.Write(data)
	return err
}

// Write encodes records in a streamable format. SQLite needs a file path,
// use WriteFile for it.
func Write(w io.Writer, f Format, records []model.BusinessRecord) error {
	switch f {
	case JSON:
		return WriteJSON(w, records)
	case CSV:
		return WriteCSV(w, records)
	case GeoJSON:
		return WriteGeoJSON(w, records)
	default:
		return fmt.Errorf("format %s cannot be streamed", f)
	}
}

// WriteFile writes records to path. query labels rows in SQLite files.
func WriteFile(path string, f Format, query string, records []model.BusinessRecord) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating output dir: %w", err)
	}
	if f == SQLite {
		if _, err := storage.Save(path, query, records); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
		return nil
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating output: %w", err)
	}
	if err := Write(file, f, records); err != nil {
		file.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return file.Close()
}

// WriteAll writes one file per format into dir as <base>.<ext> and returns
// the paths in format order.
func WriteAll(dir, base string, formats []Format, query string, records []model.BusinessRecord) ([]string, error) {
	paths := make([]string, 0, len(formats))
	for _, f := range formats {
		p := filepath.Join(dir, base+"."+f.Ext())
		if err := WriteFile(p, f, query, records); err != nil {
			return paths, err
		}
		paths = append(paths, p)
	}
	return paths, nil
}

// Load reads records from a .json or .db export.
func Load(path string) ([]model.BusinessRecord, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db":
		return storage.Load(path)
	case ".json":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		var records []model.BusinessRecord
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", path, err)
		}
		return records, nil
	default:
		return nil, fmt.Errorf("unsupported input %s (use a .json or .db file)", path)
	}
}
