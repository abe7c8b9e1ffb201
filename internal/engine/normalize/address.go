package normalize

import (
	"regexp"
	"strings"

	"github.com/rendis/mapsift/internal/model"
)

var (
	// "IL 62704", "IL", "IL 62704-1234"
	stateZipExact = regexp.MustCompile(`^([A-Z]{2})\s*(\d{5}(?:-\d{4})?)?$`)
	stateZipLoose = regexp.MustCompile(`([A-Z]{2})\s*(\d{5}(?:-\d{4})?)`)
	// "Springfield IL 62704"
	cityStateZip = regexp.MustCompile(`^(.+?)\s+([A-Z]{2})\s*(\d{5}(?:-\d{4})?)?$`)
)

// ParseAddress splits a comma-separated, US-style address into parts. It never
// fails: segments it cannot place are left empty. Full always carries the
// input verbatim.
func ParseAddress(full string) model.Address {
	addr := model.Address{Full: full}
	if strings.TrimSpace(full) == "" {
		return addr
	}

	raw := strings.Split(full, ",")
	parts := make([]string, len(raw))
	for i, p := range raw {
		parts[i] = strings.TrimSpace(p)
	}
	if len(parts) < 2 {
		return addr
	}

	addr.Country = parts[len(parts)-1]

	switch {
	case len(parts) >= 4:
		addr.Street = parts[0]
		addr.City = parts[1]
		stateZip := parts[len(parts)-2]
		if m := stateZipExact.FindStringSubmatch(stateZip); m != nil {
			addr.State, addr.ZipCode = m[1], m[2]
		} else if m := stateZipLoose.FindStringSubmatch(stateZip); m != nil {
			addr.State, addr.ZipCode = m[1], m[2]
		}
	case len(parts) == 3:
		addr.Street = parts[0]
		second := parts[1]
		if m := cityStateZip.FindStringSubmatch(second); m != nil {
			addr.City = strings.TrimSpace(m[1])
			addr.State, addr.ZipCode = m[2], m[3]
		} else if m := stateZipExact.FindStringSubmatch(second); m != nil {
			addr.State, addr.ZipCode = m[1], m[2]
		} else {
			addr.City = second
		}
	case len(parts) == 2:
		addr.Street = parts[0]
		addr.City = parts[1]
	}

	return addr
}
