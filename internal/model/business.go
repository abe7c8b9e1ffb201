package model

import "time"

// Address holds the comma-split parts of a listing address. Fields are empty
// when the heuristic parser could not place them.
type Address struct {
	Full    string `json:"full"`
	Street  string `json:"street"`
	City    string `json:"city"`
	State   string `json:"state"`
	ZipCode string `json:"zipCode"`
	Country string `json:"country"`
}

// Coordinates is either fully set or fully empty. Use NewCoordinates to build
// a set pair.
type Coordinates struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

func NewCoordinates(lat, lng float64) Coordinates {
	return Coordinates{Latitude: &lat, Longitude: &lng}
}

// Valid reports whether both latitude and longitude are present.
func (c Coordinates) Valid() bool {
	return c.Latitude != nil && c.Longitude != nil
}

// LatLng returns the pair, or zeros when the coordinates are not valid.
func (c Coordinates) LatLng() (float64, float64) {
	if !c.Valid() {
		return 0, 0
	}
	return *c.Latitude, *c.Longitude
}

// OpeningHours is either a {Day, Hours} pair or a {Raw} entry.
type OpeningHours struct {
	Day   string `json:"day,omitempty"`
	Hours string `json:"hours,omitempty"`
	Raw   string `json:"raw,omitempty"`
}

// BusinessRecord represents one extracted map listing.
type BusinessRecord struct {
	Name          string `json:"name"`
	PlaceID       string `json:"placeId"`
	GoogleMapsURL string `json:"googleMapsUrl"`

	Type         string   `json:"type"`
	PriceLevel   string   `json:"priceLevel"`
	Rating       *float64 `json:"rating"`
	ReviewsCount int      `json:"reviewsCount"`
	TotalReviews int      `json:"totalReviews"`

	Address            Address     `json:"address"`
	Coordinates        Coordinates `json:"coordinates"`
	DistanceFromCenter *int        `json:"distanceFromCenter,omitempty"`

	Phone    string `json:"phone"`
	WhatsApp string `json:"whatsapp"`
	Email    string `json:"email"`
	Website  string `json:"website"`

	Description  string         `json:"description"`
	OpeningHours []OpeningHours `json:"openingHours"`
	Amenities    []string       `json:"amenities"`
	ImageURL     string         `json:"imageUrl"`
	PlusCode     string         `json:"plusCode"`

	ScrapedAt time.Time `json:"scrapedAt"`
}

// SetDistance attaches a rounded distance from the search center in meters.
func (b *BusinessRecord) SetDistance(meters int) {
	b.DistanceFromCenter = &meters
}

// Key identifies a record for de-duplication: place ID when known, else the
// source URL.
func (b *BusinessRecord) Key() string {
	if b.PlaceID != "" {
		return b.PlaceID
	}
	return b.GoogleMapsURL
}
