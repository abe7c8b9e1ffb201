// Package normalize holds the pure transforms applied to raw listing fields.
package normalize

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/rendis/mapsift/internal/model"
)

// EarthRadiusMeters is the sphere radius used for every distance in mapsift.
const EarthRadiusMeters = 6371000.0

var (
	atCoords    = regexp.MustCompile(`@(-?\d+\.\d+),(-?\d+\.\d+)`)
	placeCoords = regexp.MustCompile(`place/[^/]+/@(-?\d+\.\d+),(-?\d+\.\d+)`)
	emailRe     = regexp.MustCompile(`[\w.-]+@[\w.-]+\.\w+`)
)

// FormatPhoneNumber keeps digits and a single leading plus sign.
func FormatPhoneNumber(s string) string {
	s = strings.TrimSpace(s)
	var b strings.Builder
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ExtractCoordinatesFromURL reads an "@lat,lng" segment from a map URL.
// ok is false when the URL carries none.
func ExtractCoordinatesFromURL(u string) (lat, lng float64, ok bool) {
	m := atCoords.FindStringSubmatch(u)
	if m == nil {
		m = placeCoords.FindStringSubmatch(u)
	}
	if m == nil {
		return 0, 0, false
	}
	lat, err1 := strconv.ParseFloat(m[1], 64)
	lng, err2 := strconv.ParseFloat(m[2], 64)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return lat, lng, true
}

// CoordinatesFromURL is ExtractCoordinatesFromURL as a model value.
func CoordinatesFromURL(u string) model.Coordinates {
	lat, lng, ok := ExtractCoordinatesFromURL(u)
	if !ok {
		return model.Coordinates{}
	}
	return model.NewCoordinates(lat, lng)
}

// CalculateDistance returns the haversine distance in meters.
func CalculateDistance(lat1, lng1, lat2, lng2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lng2 - lng1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusMeters * c
}

// ParseOpeningHours normalizes a loosely typed hours list. Strings become raw
// entries, structured entries pass through, and anything that is not a list
// yields nil.
func ParseOpeningHours(raw any) []model.OpeningHours {
	switch v := raw.(type) {
	case []model.OpeningHours:
		return v
	case []string:
		out := make([]model.OpeningHours, 0, len(v))
		for _, s := range v {
			out = append(out, model.OpeningHours{Raw: s})
		}
		return out
	case []any:
		out := make([]model.OpeningHours, 0, len(v))
		for _, e := range v {
			switch entry := e.(type) {
			case string:
				out = append(out, model.OpeningHours{Raw: entry})
			case model.OpeningHours:
				out = append(out, entry)
			case map[string]any:
				out = append(out, model.OpeningHours{
					Day:   stringField(entry, "day"),
					Hours: stringField(entry, "hours"),
					Raw:   stringField(entry, "raw"),
				})
			}
		}
		return out
	default:
		return nil
	}
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

// ExtractEmail returns the first email-looking token in text.
func ExtractEmail(text string) string {
	return emailRe.FindString(text)
}

// FormatHours renders hours as "day: hours" pairs joined by "; ".
func FormatHours(hours []model.OpeningHours) string {
	parts := make([]string, 0, len(hours))
	for _, h := range hours {
		if h.Raw != "" && h.Day == "" {
			parts = append(parts, h.Raw)
			continue
		}
		parts = append(parts, h.Day+": "+h.Hours)
	}
	return strings.Join(parts, "; ")
}
