package model

import (
	"errors"
	"fmt"
	"strings"
)

// SearchType selects how the search URL and post-filter are built.
type SearchType string

const (
	SearchByLocation SearchType = "location"
	SearchByZipCode  SearchType = "zipcode"
	SearchByRadius   SearchType = "radius"
)

const (
	DefaultMaxResults   = 50
	DefaultRadiusMeters = 1000
)

var (
	ErrMissingQuery      = errors.New("query is required")
	ErrMissingZipCode    = errors.New("zip code is required for zipcode search")
	ErrMissingCenter     = errors.New("latitude and longitude are required for radius search")
	ErrUnknownSearchType = errors.New("unknown search type")
)

// SearchRequest is the invocation surface for one search. Only the fields of
// the selected Type are read.
type SearchRequest struct {
	Type       SearchType `json:"searchType"`
	Query      string     `json:"query"`
	MaxResults int        `json:"maxResults"`

	// location
	Location string `json:"location,omitempty"`

	// zipcode
	ZipCode     string `json:"zipCode,omitempty"`
	State       string `json:"state,omitempty"`
	CountryName string `json:"countryName,omitempty"`

	// radius
	Latitude     *float64 `json:"latitude,omitempty"`
	Longitude    *float64 `json:"longitude,omitempty"`
	RadiusMeters float64  `json:"radiusMeters,omitempty"`
}

// Validate fills defaults and rejects requests that cannot run at all.
func (r *SearchRequest) Validate() error {
	r.Query = strings.TrimSpace(r.Query)
	if r.Query == "" {
		return ErrMissingQuery
	}
	if r.Type == "" {
		r.Type = SearchByLocation
	}
	if r.MaxResults <= 0 {
		r.MaxResults = DefaultMaxResults
	}

	switch r.Type {
	case SearchByLocation:
		r.Location = strings.TrimSpace(r.Location)
	case SearchByZipCode:
		r.ZipCode = strings.TrimSpace(r.ZipCode)
		if r.ZipCode == "" {
			return ErrMissingZipCode
		}
	case SearchByRadius:
		if r.Latitude == nil || r.Longitude == nil {
			return ErrMissingCenter
		}
		if r.RadiusMeters <= 0 {
			r.RadiusMeters = DefaultRadiusMeters
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownSearchType, r.Type)
	}
	return nil
}

// PostalLocation is the geocoding query for a zipcode search:
// "<zip>[, state][, country]".
func (r *SearchRequest) PostalLocation() string {
	loc := r.ZipCode
	if r.State != "" {
		loc += ", " + r.State
	}
	if r.CountryName != "" {
		loc += ", " + r.CountryName
	}
	return loc
}

// Describe renders a short human summary used in logs and summaries.
func (r *SearchRequest) Describe() string {
	switch r.Type {
	case SearchByZipCode:
		return fmt.Sprintf("%q in ZIP %s", r.Query, r.PostalLocation())
	case SearchByRadius:
		lat, lng := 0.0, 0.0
		if r.Latitude != nil && r.Longitude != nil {
			lat, lng = *r.Latitude, *r.Longitude
		}
		return fmt.Sprintf("%q within %.0fm of %.4f, %.4f", r.Query, r.RadiusMeters, lat, lng)
	default:
		if r.Location == "" {
			return fmt.Sprintf("%q", r.Query)
		}
		return fmt.Sprintf("%q in %s", r.Query, r.Location)
	}
}
