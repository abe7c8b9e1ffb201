package scraper

import "errors"

var (
	// ErrInvalidRequest wraps request validation failures. It is the only
	// error Search returns before doing any work.
	ErrInvalidRequest = errors.New("invalid search request")
	// ErrGeocodeFailure is logged when a location cannot be resolved; the
	// search falls back to a text query.
	ErrGeocodeFailure = errors.New("geocoding failed")
)
