package extract

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/mapsift/internal/engine/browser"
	"github.com/rendis/mapsift/internal/engine/browser/browsertest"
	"github.com/rendis/mapsift/internal/model"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestExtractor() *Extractor {
	return New(Options{Now: func() time.Time { return fixedNow }})
}

func fixture(t *testing.T, name string) string {
	t.Helper()
	b, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return string(b)
}

func TestExtractHTMLPrimaryStrategies(t *testing.T) {
	pageURL := "https://www.google.com/maps/place/Blue+Bottle+Coffee/@40.0010,-75.0020,17z/data=!3m1!4b1!4m6!3m5!1s0x89c6b7:0x1a2b3c!8m2"

	rec, err := newTestExtractor().ExtractHTML(fixture(t, "place.html"), pageURL)
	require.NoError(t, err)

	assert.Equal(t, "Blue Bottle Coffee", rec.Name)
	assert.Equal(t, "Coffee shop", rec.Type)
	require.NotNil(t, rec.Rating)
	assert.Equal(t, 4.6, *rec.Rating)
	assert.Equal(t, 1234, rec.ReviewsCount)
	assert.Equal(t, 1234, rec.TotalReviews)
	assert.Equal(t, "Price: Moderately priced", rec.PriceLevel)
	assert.Equal(t, model.Address{
		Full: "1 Main St, Springfield, IL 62704, USA", Street: "1 Main St", City: "Springfield",
		State: "IL", ZipCode: "62704", Country: "USA",
	}, rec.Address)
	assert.Equal(t, "+15551234567", rec.Phone)
	assert.Equal(t, "https://bluebottlecoffee.com/", rec.Website)
	assert.Equal(t, "8Q7X+2F Springfield, Illinois", rec.PlusCode)
	assert.Equal(t, []model.OpeningHours{
		{Day: "Monday", Hours: "7 AM–6 PM"},
		{Day: "Tuesday", Hours: "7 AM–6 PM"},
	}, rec.OpeningHours)
	assert.Equal(t, "https://lh5.googleusercontent.com/p/AF1QipN=w408-h306", rec.ImageURL)
	assert.Equal(t, "Single-origin pour-overs and pastries.", rec.Description)
	assert.Equal(t, []string{"Wheelchair accessible", "Outdoor seating", "Free WiFi", "Offers dine-in"}, rec.Amenities)
	assert.Equal(t, "0x89c6b7:0x1a2b3c", rec.PlaceID)
	assert.Equal(t, pageURL, rec.GoogleMapsURL)
	assert.Equal(t, "+15551234567", rec.WhatsApp)
	assert.Equal(t, "hello@bluebottlecoffee.com", rec.Email)
	assert.Equal(t, fixedNow, rec.ScrapedAt)

	// URL coordinates win over page metadata
	lat, lng := rec.Coordinates.LatLng()
	assert.Equal(t, 40.001, lat)
	assert.Equal(t, -75.002, lng)
}

func TestExtractHTMLFallbackStrategies(t *testing.T) {
	pageURL := "https://www.google.com/maps/place/Luigi's/data=!4m2!3m1"

	rec, err := newTestExtractor().ExtractHTML(fixture(t, "place_fallbacks.html"), pageURL)
	require.NoError(t, err)

	assert.Equal(t, "Luigi's", rec.Name)
	assert.Equal(t, "Pizza takeout", rec.Type)
	require.NotNil(t, rec.Rating)
	assert.Equal(t, 4.2, *rec.Rating)
	assert.Equal(t, 87, rec.ReviewsCount)
	assert.Equal(t, "$$$", rec.PriceLevel)
	assert.Equal(t, "90401", rec.Address.ZipCode)
	assert.Equal(t, "Santa Monica", rec.Address.City)
	assert.Equal(t, "5551234567", rec.Phone)
	assert.Equal(t, "https://luigis.example/", rec.Website)
	assert.Equal(t, "Known for its pastries", rec.Description)
	assert.Equal(t, []model.OpeningHours{
		{Day: "Monday", Hours: "9 am–5 pm"},
		{Day: "Tuesday", Hours: "9am-5pm"},
	}, rec.OpeningHours)
	assert.Empty(t, rec.Amenities)
	assert.NotNil(t, rec.Amenities)
	assert.Empty(t, rec.PlaceID)

	lat, lng := rec.Coordinates.LatLng()
	assert.Equal(t, 34.0195, lat)
	assert.Equal(t, -118.4912, lng)
}

func TestExtractHTMLStatusHours(t *testing.T) {
	rec, err := newTestExtractor().ExtractHTML(fixture(t, "place_status.html"), "https://www.google.com/maps/place/Night+Owl")
	require.NoError(t, err)

	assert.Equal(t, []model.OpeningHours{{Day: "Current", Hours: "Open now, Closes 2 AM."}}, rec.OpeningHours)
	assert.Equal(t, "+34600111222", rec.WhatsApp)
	assert.False(t, rec.Coordinates.Valid())
	assert.Nil(t, rec.Rating)
}

func TestExtractHTMLEmptyPage(t *testing.T) {
	rec, err := newTestExtractor().ExtractHTML("<html><body></body></html>", "https://www.google.com/maps/place/x")
	require.NoError(t, err)

	assert.Empty(t, rec.Name)
	assert.Zero(t, rec.ReviewsCount)
	assert.NotNil(t, rec.OpeningHours)
	assert.NotNil(t, rec.Amenities)
	assert.False(t, rec.Coordinates.Valid())
}

func TestRulesFirstWins(t *testing.T) {
	html := `<html><body>
<button aria-label="Address: 1 Label St, Town, ST 11111, USA"></button>
<button data-item-id="address" aria-label="Address: 2 Other St, Town, ST 22222, USA"></button>
</body></html>`
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)

	r, ok := ruleFor("address")
	require.True(t, ok)

	rec := &model.BusinessRecord{}
	r.apply(&snapshot{doc: doc, text: visibleText(doc)}, rec)
	assert.Equal(t, "1 Label St, Town, ST 11111, USA", rec.Address.Full)
}

func TestRulesTableCoversRecordFields(t *testing.T) {
	for _, f := range []string{
		"name", "type", "rating", "reviewsCount", "priceLevel", "address", "phone", "website",
		"plusCode", "openingHours", "imageUrl", "description", "amenities", "placeId", "whatsapp",
		"email", "coordinates",
	} {
		_, ok := ruleFor(f)
		assert.True(t, ok, f)
	}
}

func TestExtractFromPage(t *testing.T) {
	pageURL := "https://www.google.com/maps/place/Blue+Bottle+Coffee/@40.0010,-75.0020,17z"
	fb := browsertest.New()
	fb.Pages[pageURL] = fixture(t, "place.html")

	page, err := fb.NewPage(context.Background())
	require.NoError(t, err)
	require.NoError(t, page.Navigate(context.Background(), pageURL))

	rec, err := newTestExtractor().Extract(context.Background(), page)
	require.NoError(t, err)
	assert.Equal(t, "Blue Bottle Coffee", rec.Name)

	require.NoError(t, page.Close())
	_, err = newTestExtractor().Extract(context.Background(), page)
	require.ErrorIs(t, err, browser.ErrPageUnavailable)
}
