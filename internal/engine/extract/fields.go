package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/rendis/mapsift/internal/engine/normalize"
	"github.com/rendis/mapsift/internal/model"
)

var (
	starsRe       = regexp.MustCompile(`(?i)(\d+\.?\d*)\s*stars?`)
	leadingNumRe  = regexp.MustCompile(`(\d+\.?\d*)`)
	reviewsRe     = regexp.MustCompile(`(?i)(\d+(?:,\d+)*)\s*reviews?`)
	parenCountRe  = regexp.MustCompile(`\((\d{1,3}(?:,\d{3})*)\)`)
	dollarRunRe   = regexp.MustCompile(`(\${1,4})(?:\s|·|$)`)
	placeIDRe     = regexp.MustCompile(`!1s([^!]+)`)
	hexPlaceIDRe  = regexp.MustCompile(`(?i)place/[^/]+/.*?0x[0-9a-f]+:(0x[0-9a-f]+)`)
	firstDigitsRe = regexp.MustCompile(`\d+`)
)

var weekdays = []string{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"}

var dayHoursRe = func() map[string]*regexp.Regexp {
	m := make(map[string]*regexp.Regexp, len(weekdays))
	for _, d := range weekdays {
		m[d] = regexp.MustCompile(`(?i)` + d + `[^\d]*(\d{1,2}(?:\s*am|\s*pm)?\s*[–-]\s*\d{1,2}(?:\s*am|\s*pm)?)`)
	}
	return m
}()

var categoryKeywords = []string{"restaurant", "shop", "store", "service", "Pizza", "Hotel"}

var amenityVocabulary = []string{
	"LGBTQ+ friendly",
	"Wheelchair accessible",
	"Dine-in",
	"Takeaway",
	"Delivery",
	"Outdoor seating",
	"Free WiFi",
	"Parking",
}

// rules is the extraction table. Order within a rule is priority order.
var rules = []rule{
	firstWins("name", func(r *model.BusinessRecord, v string) { r.Name = v },
		textOf("h1.DUwDvf"),
		textOf("h1"),
	),
	firstWins("type", func(r *model.BusinessRecord, v string) { r.Type = v },
		textOf(`button[jsaction*="category"]`),
		buttonWithKeyword(categoryKeywords...),
	),
	firstWins("rating", func(r *model.BusinessRecord, v float64) { r.Rating = &v },
		asFloat(labelMatch(`img[aria-label*="stars"], img[alt*="stars"], span[aria-label*="stars"]`, starsRe)),
		asFloat(textMatch(`div.F7nice span[aria-hidden="true"]`, leadingNumRe)),
	),
	firstWins("reviewsCount", func(r *model.BusinessRecord, v int) { r.ReviewsCount, r.TotalReviews = v, v },
		asCount(labelMatch(`img[aria-label*="reviews"], img[alt*="reviews"], span[aria-label*="reviews"]`, reviewsRe)),
		asCount(pageTextMatch(parenCountRe)),
		asCount(labelMatch(`button[aria-label*="reviews"]`, reviewsRe)),
	),
	firstWins("priceLevel", func(r *model.BusinessRecord, v string) { r.PriceLevel = v },
		attrOf(`[aria-label*="priced"]`, "aria-label"),
		pageTextMatch(dollarRunRe),
	),
	firstWins("address", func(r *model.BusinessRecord, v string) { r.Address.Full = v },
		labelAfter(`button[aria-label^="Address"]`, "Address:"),
		labelOrText(`button[data-item-id="address"]`, "Address:"),
	),
	firstWins("phone", func(r *model.BusinessRecord, v string) { r.Phone = v },
		labelAfter(`button[aria-label^="Phone"]`, "Phone:"),
		labelOrText(`button[data-item-id*="phone"]`, "Phone:"),
	),
	firstWins("website", func(r *model.BusinessRecord, v string) { r.Website = v },
		attrOf(`a[aria-label^="Website"]`, "href"),
		attrOf(`a[data-item-id="authority"]`, "href"),
	),
	firstWins("plusCode", func(r *model.BusinessRecord, v string) { r.PlusCode = v },
		labelAfter(`button[aria-label^="Plus code"]`, "Plus code:"),
	),
	firstWins("openingHours", func(r *model.BusinessRecord, v []model.OpeningHours) { r.OpeningHours = v },
		copiedHours,
		sectionHours,
		statusHours,
	),
	firstWins("imageUrl", func(r *model.BusinessRecord, v string) { r.ImageURL = v },
		contentImage,
	),
	firstWins("description", func(r *model.BusinessRecord, v string) { r.Description = v },
		textOf(`[role="region"][aria-label*="About"], region[aria-label*="About"], div[aria-label*="About"]`),
		beforeSeparator(labelOrText(`button[aria-label*="Local institution"], button[aria-label*="Known for"]`, "")),
	),
	accumulate("amenities", addAmenity,
		vocabularyAmenities,
		groupAmenities,
	),
	firstWins("placeId", func(r *model.BusinessRecord, v string) { r.PlaceID = v },
		urlMatch(placeIDRe),
		urlMatch(hexPlaceIDRe),
	),
	firstWins("whatsapp", func(r *model.BusinessRecord, v string) { r.WhatsApp = v },
		whatsAppLink,
	),
	firstWins("email", func(r *model.BusinessRecord, v string) { r.Email = v },
		mailtoLink,
	),
	firstWins("coordinates", func(r *model.BusinessRecord, v model.Coordinates) { r.Coordinates = v },
		urlCoordinates,
		metaCoordinates,
	),
}

func ruleFor(field string) (rule, bool) {
	for _, r := range rules {
		if r.field == field {
			return r, true
		}
	}
	return rule{}, false
}

// copiedHours reads the "Copy open hours" controls: "Monday, 9 AM to 5 PM".
func copiedHours(s *snapshot) ([]model.OpeningHours, bool) {
	var out []model.OpeningHours
	s.doc.Find(`button[aria-label*="Copy open hours"]`).Each(func(_ int, b *goquery.Selection) {
		label, _ := b.Attr("aria-label")
		parts := strings.Split(label, ",")
		if len(parts) < 2 {
			return
		}
		dayPart := strings.TrimSpace(parts[0])
		hours := strings.Replace(strings.TrimSpace(parts[1]), " to ", "–", 1)
		day := dayPart
		for _, d := range weekdays {
			if strings.Contains(dayPart, d) {
				day = d
				break
			}
		}
		out = append(out, model.OpeningHours{Day: day, Hours: hours})
	})
	return out, len(out) > 0
}

// sectionHours scans the hours section text for "<Weekday> ... 9am–5pm".
func sectionHours(s *snapshot) ([]model.OpeningHours, bool) {
	btn := s.doc.Find(`button[aria-label*="Hours"]`).First()
	if btn.Length() == 0 {
		return nil, false
	}
	section := btn.Closest("div")
	if section.Length() == 0 {
		return nil, false
	}
	text := section.Text()

	var out []model.OpeningHours
	for _, d := range weekdays {
		if m := dayHoursRe[d].FindStringSubmatch(text); m != nil {
			out = append(out, model.OpeningHours{Day: d, Hours: strings.TrimSpace(m[1])})
		}
	}
	return out, len(out) > 0
}

// statusHours falls back to the open/closed status label.
func statusHours(s *snapshot) ([]model.OpeningHours, bool) {
	label, _ := s.doc.Find(`button[aria-label*="Hours"]`).First().Attr("aria-label")
	if !strings.Contains(label, "Open") && !strings.Contains(label, "Closes") && !strings.Contains(label, "Closed") {
		return nil, false
	}
	status, _, _ := strings.Cut(label, "Show")
	status = strings.TrimSpace(strings.Replace(status, "Hours", "", 1))
	if status == "" {
		return nil, false
	}
	return []model.OpeningHours{{Day: "Current", Hours: status}}, true
}

func contentImage(s *snapshot) (string, bool) {
	src, _ := s.doc.Find(`button[aria-label*="Photo"] img, img[src*="googleusercontent"]`).First().Attr("src")
	return src, strings.Contains(src, "googleusercontent")
}

func vocabularyAmenities(s *snapshot) ([]string, bool) {
	var out []string
	for _, a := range amenityVocabulary {
		if strings.Contains(s.text, a) {
			out = append(out, a)
		}
	}
	return out, len(out) > 0
}

func groupAmenities(s *snapshot) ([]string, bool) {
	var out []string
	s.doc.Find(`group[aria-label], [role="group"][aria-label]`).Each(func(_ int, g *goquery.Selection) {
		label, _ := g.Attr("aria-label")
		lower := strings.ToLower(label)
		if strings.Contains(lower, "dine-in") || strings.Contains(lower, "takeaway") || strings.Contains(lower, "delivery") {
			out = append(out, strings.TrimSpace(label))
		}
	})
	return out, len(out) > 0
}

func addAmenity(r *model.BusinessRecord, a string) {
	for _, existing := range r.Amenities {
		if existing == a {
			return
		}
	}
	r.Amenities = append(r.Amenities, a)
}

func whatsAppLink(s *snapshot) (string, bool) {
	href, _ := s.doc.Find(`a[href*="wa.me"], a[href*="whatsapp"]`).First().Attr("href")
	digits := firstDigitsRe.FindString(href)
	if digits == "" {
		return "", false
	}
	return "+" + digits, true
}

func mailtoLink(s *snapshot) (string, bool) {
	href, _ := s.doc.Find(`a[href^="mailto:"]`).First().Attr("href")
	addr, _, _ := strings.Cut(strings.TrimPrefix(href, "mailto:"), "?")
	email := normalize.ExtractEmail(addr)
	return email, email != ""
}

func urlCoordinates(s *snapshot) (model.Coordinates, bool) {
	c := normalize.CoordinatesFromURL(s.url)
	return c, c.Valid()
}

func metaCoordinates(s *snapshot) (model.Coordinates, bool) {
	latStr, _ := s.doc.Find(`meta[itemprop="latitude"]`).First().Attr("content")
	lngStr, _ := s.doc.Find(`meta[itemprop="longitude"]`).First().Attr("content")
	lat, err1 := strconv.ParseFloat(strings.TrimSpace(latStr), 64)
	lng, err2 := strconv.ParseFloat(strings.TrimSpace(lngStr), 64)
	if err1 != nil || err2 != nil {
		return model.Coordinates{}, false
	}
	return model.NewCoordinates(lat, lng), true
}
