package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/rendis/mapsift/internal/engine/netclient"
)

const DefaultNominatimURL = "https://nominatim.openstreetmap.org/search"

// ErrNotFound is returned when the geocoder has no match for the query.
var ErrNotFound = errors.New("location not found")

// Place is the first match for a geocoding query.
type Place struct {
	Lat         float64
	Lng         float64
	DisplayName string
	// Bound is empty when the service did not return a bounding box.
	Bound orb.Bound
}

func (p Place) Point() orb.Point {
	return orb.Point{p.Lng, p.Lat}
}

// Geocoder resolves free text to coordinates.
type Geocoder interface {
	Geocode(ctx context.Context, query string) (*Place, error)
}

type nominatimResult struct {
	Lat         string   `json:"lat"`
	Lon         string   `json:"lon"`
	BoundingBox []string `json:"boundingbox"` // [minLat, maxLat, minLng, maxLng]
	DisplayName string   `json:"display_name"`
}

// Nominatim geocodes through the OSM Nominatim search API, limited to the
// configured request rate.
type Nominatim struct {
	baseURL   string
	userAgent string
	client    *netclient.Client
	limiter   *rate.Limiter
	logger    logrus.FieldLogger
}

type NominatimOptions struct {
	BaseURL   string
	UserAgent string
	// RequestsPerSecond defaults to 1, the public instance's usage policy.
	RequestsPerSecond float64
	Client            *netclient.Client
	Logger            logrus.FieldLogger
}

func NewNominatim(opts NominatimOptions) *Nominatim {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultNominatimURL
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "mapsift/1.0"
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 1
	}
	if opts.Client == nil {
		opts.Client = netclient.New(netclient.Options{MaxRetries: 2})
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	return &Nominatim{
		baseURL:   opts.BaseURL,
		userAgent: opts.UserAgent,
		client:    opts.Client,
		limiter:   rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1),
		logger:    opts.Logger,
	}
}

func (n *Nominatim) Geocode(ctx context.Context, query string) (*Place, error) {
	if err := n.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	u := n.baseURL + "?" + url.Values{
		"q":      {query},
		"format": {"json"},
		"limit":  {"1"},
	}.Encode()

	body, err := n.client.Get(ctx, u, http.Header{"User-Agent": {n.userAgent}})
	if err != nil {
		return nil, fmt.Errorf("geocoding request failed: %w", err)
	}

	var results []nominatimResult
	if err := json.Unmarshal(body, &results); err != nil {
		return nil, fmt.Errorf("decoding geocoding response: %w", err)
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, query)
	}

	r := results[0]
	lat, err1 := strconv.ParseFloat(r.Lat, 64)
	lng, err2 := strconv.ParseFloat(r.Lon, 64)
	if err1 != nil || err2 != nil {
		return nil, fmt.Errorf("invalid coordinates from geocoder: %q,%q", r.Lat, r.Lon)
	}

	place := &Place{Lat: lat, Lng: lng, DisplayName: r.DisplayName}
	if bb := r.BoundingBox; len(bb) >= 4 {
		minLat, _ := strconv.ParseFloat(bb[0], 64)
		maxLat, _ := strconv.ParseFloat(bb[1], 64)
		minLng, _ := strconv.ParseFloat(bb[2], 64)
		maxLng, _ := strconv.ParseFloat(bb[3], 64)
		place.Bound = orb.Bound{Min: orb.Point{minLng, minLat}, Max: orb.Point{maxLng, maxLat}}
	}

	n.logger.WithFields(logrus.Fields{"query": query, "lat": lat, "lng": lng}).Debug("geocoded")
	return place, nil
}
