package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/mapsift/internal/model"
)

func TestParseAddress(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want model.Address
	}{
		{
			name: "four segments",
			in:   "1 Main St, Springfield, IL 62704, USA",
			want: model.Address{Street: "1 Main St", City: "Springfield", State: "IL", ZipCode: "62704", Country: "USA"},
		},
		{
			name: "four segments zip plus four",
			in:   "500 Ocean Ave, Santa Monica, CA 90401-1234, USA",
			want: model.Address{Street: "500 Ocean Ave", City: "Santa Monica", State: "CA", ZipCode: "90401-1234", Country: "USA"},
		},
		{
			name: "five segments uses second to last",
			in:   "Suite 2, 9 Elm St, Boston, MA 02108, United States",
			want: model.Address{Street: "Suite 2", City: "9 Elm St", State: "MA", ZipCode: "02108", Country: "United States"},
		},
		{
			name: "four segments loose state zip",
			in:   "1 Main St, Springfield, near IL 62704 area, USA",
			want: model.Address{Street: "1 Main St", City: "Springfield", State: "IL", ZipCode: "62704", Country: "USA"},
		},
		{
			name: "four segments without state zip",
			in:   "Calle 1, Madrid, Comunidad de Madrid, Spain",
			want: model.Address{Street: "Calle 1", City: "Madrid", Country: "Spain"},
		},
		{
			name: "three segments city state zip",
			in:   "1 Main St, Springfield IL 62704, USA",
			want: model.Address{Street: "1 Main St", City: "Springfield", State: "IL", ZipCode: "62704", Country: "USA"},
		},
		{
			name: "three segments state zip only",
			in:   "1 Main St, IL 62704, USA",
			want: model.Address{Street: "1 Main St", State: "IL", ZipCode: "62704", Country: "USA"},
		},
		{
			name: "three segments bare city",
			in:   "Gran Via 5, Madrid, Spain",
			want: model.Address{Street: "Gran Via 5", City: "Madrid", Country: "Spain"},
		},
		{
			name: "two segments",
			in:   "Gran Via 5, Madrid",
			want: model.Address{Street: "Gran Via 5", City: "Madrid", Country: "Madrid"},
		},
		{
			name: "one segment",
			in:   "Somewhere",
			want: model.Address{},
		},
		{
			name: "empty",
			in:   "",
			want: model.Address{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.want.Full = tt.in
			assert.Equal(t, tt.want, ParseAddress(tt.in))
		})
	}
}

func TestFormatPhoneNumber(t *testing.T) {
	assert.Equal(t, "+15551234567", FormatPhoneNumber("+1 (555) 123-4567"))
	assert.Equal(t, "5551234567", FormatPhoneNumber("555.123.4567"))
	assert.Equal(t, "+4930123", FormatPhoneNumber(" +49 30 123 "))
	assert.Equal(t, "15551234", FormatPhoneNumber("1 555+1234"))
	assert.Empty(t, FormatPhoneNumber(""))
}

func TestExtractCoordinatesFromURL(t *testing.T) {
	t.Run("bare segment", func(t *testing.T) {
		lat, lng, ok := ExtractCoordinatesFromURL("https://www.google.com/maps/search/coffee/@37.422,-122.084,15z")
		require.True(t, ok)
		assert.Equal(t, 37.422, lat)
		assert.Equal(t, -122.084, lng)
	})

	t.Run("after place segment", func(t *testing.T) {
		lat, lng, ok := ExtractCoordinatesFromURL("https://www.google.com/maps/place/Blue+Bottle/@40.7128,-74.006,17z/data=!3m1")
		require.True(t, ok)
		assert.Equal(t, 40.7128, lat)
		assert.Equal(t, -74.006, lng)
	})

	t.Run("absent", func(t *testing.T) {
		_, _, ok := ExtractCoordinatesFromURL("https://www.google.com/maps/place/Blue+Bottle/data=!4m2")
		assert.False(t, ok)
		assert.False(t, CoordinatesFromURL("https://example.com").Valid())
	})
}

func TestCalculateDistance(t *testing.T) {
	assert.Zero(t, CalculateDistance(0, 0, 0, 0))

	pairs := [][4]float64{
		{40, -75, 40.01, -75.01},
		{-33.8688, 151.2093, 51.5074, -0.1278},
		{89.9, 10, -89.9, -170},
	}
	for _, p := range pairs {
		assert.InDelta(t, CalculateDistance(p[0], p[1], p[2], p[3]), CalculateDistance(p[2], p[3], p[0], p[1]), 1e-6)
	}

	// one degree of latitude on a 6371 km sphere
	assert.InDelta(t, 111194.9, CalculateDistance(0, 0, 1, 0), 0.5)
}

func TestParseOpeningHours(t *testing.T) {
	assert.Nil(t, ParseOpeningHours("Mon 9-5"))
	assert.Nil(t, ParseOpeningHours(nil))

	got := ParseOpeningHours([]any{
		"Mon 9-5",
		model.OpeningHours{Day: "Tuesday", Hours: "9–5"},
		map[string]any{"day": "Wednesday", "hours": "10–6"},
	})
	assert.Equal(t, []model.OpeningHours{
		{Raw: "Mon 9-5"},
		{Day: "Tuesday", Hours: "9–5"},
		{Day: "Wednesday", Hours: "10–6"},
	}, got)

	assert.Equal(t, []model.OpeningHours{{Raw: "a"}}, ParseOpeningHours([]string{"a"}))
}

func TestExtractEmailAndFormatHours(t *testing.T) {
	assert.Equal(t, "info@cafe.com", ExtractEmail("write to info@cafe.com today"))
	assert.Empty(t, ExtractEmail("no contact"))

	assert.Equal(t, "Monday: 9–5; Closed Sunday",
		FormatHours([]model.OpeningHours{{Day: "Monday", Hours: "9–5"}, {Raw: "Closed Sunday"}}))
}
