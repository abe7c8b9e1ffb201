package geo

import (
	"net/url"
	"strconv"
	"strings"
)

const searchBaseURL = "https://www.google.com/maps/search/"

// SearchURL describes a map search. When Center is set the search is anchored
// to coordinates, otherwise Location (if any) is appended as "in <location>".
type SearchURL struct {
	Query        string
	Location     string
	Center       *Place
	RadiusMeters float64
}

// Build renders the map search URL.
func (s SearchURL) Build() string {
	if s.Center != nil {
		radius := s.RadiusMeters
		if radius <= 0 {
			radius = 5000
		}
		return searchBaseURL + escapeComponent(s.Query) + "/@" +
			formatCoord(s.Center.Lat) + "," + formatCoord(s.Center.Lng) + "," +
			strconv.Itoa(ZoomFromRadius(radius)) + "z"
	}
	if s.Location != "" {
		return searchBaseURL + escapeComponent(s.Query+" in "+s.Location)
	}
	return searchBaseURL + escapeComponent(s.Query)
}

// ZoomFromRadius picks the map zoom that frames a radius.
func ZoomFromRadius(meters float64) int {
	switch {
	case meters <= 500:
		return 16
	case meters <= 1000:
		return 15
	case meters <= 2000:
		return 14
	case meters <= 5000:
		return 13
	case meters <= 10000:
		return 12
	default:
		return 11
	}
}

func escapeComponent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

func formatCoord(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
