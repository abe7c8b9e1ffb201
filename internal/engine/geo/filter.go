package geo

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"

	"github.com/rendis/mapsift/internal/engine/normalize"
	"github.com/rendis/mapsift/internal/model"
)

// Verdict is the outcome of a post-filter check.
type Verdict int

const (
	Accepted Verdict = iota
	Rejected
	// Unlocatable records lack coordinates and cannot be measured.
	Unlocatable
)

func (v Verdict) String() string {
	switch v {
	case Accepted:
		return "accepted"
	case Rejected:
		return "rejected"
	case Unlocatable:
		return "unlocatable"
	default:
		return "unknown"
	}
}

// Filter decides whether an extracted record belongs in the result set. Check
// may annotate the record it accepts.
type Filter interface {
	Check(b *model.BusinessRecord) Verdict
	String() string
}

// AcceptAll keeps every record.
type AcceptAll struct{}

func (AcceptAll) Check(*model.BusinessRecord) Verdict { return Accepted }
func (AcceptAll) String() string                      { return "none" }

var zipPlusFour = regexp.MustCompile(`^-\d{4}$`)

// PostalFilter keeps records in a postal code. The parsed zip must equal the
// target (a -XXXX suffix is allowed). Unless Strict is set, a substring hit on
// the full address is also accepted, which can match street or suite numbers.
type PostalFilter struct {
	Target string
	Strict bool
}

func (f PostalFilter) Check(b *model.BusinessRecord) Verdict {
	zip := strings.TrimSpace(b.Address.ZipCode)
	if zip == f.Target {
		return Accepted
	}
	if rest, ok := strings.CutPrefix(zip, f.Target); ok && zipPlusFour.MatchString(rest) {
		return Accepted
	}
	if !f.Strict && f.Target != "" && strings.Contains(b.Address.Full, f.Target) {
		return Accepted
	}
	return Rejected
}

func (f PostalFilter) String() string {
	if f.Strict {
		return fmt.Sprintf("postal %s (strict)", f.Target)
	}
	return "postal " + f.Target
}

// RadiusFilter keeps records within Radius meters of Center and stamps the
// rounded distance on them.
type RadiusFilter struct {
	Center orb.Point // [lng, lat]
	Radius float64
}

func NewRadiusFilter(lat, lng, radius float64) RadiusFilter {
	return RadiusFilter{Center: orb.Point{lng, lat}, Radius: radius}
}

func (f RadiusFilter) Check(b *model.BusinessRecord) Verdict {
	if !b.Coordinates.Valid() {
		return Unlocatable
	}
	lat, lng := b.Coordinates.LatLng()
	if box := f.Bound(); box.Min.Lon() <= box.Max.Lon() && !box.Contains(orb.Point{lng, lat}) {
		return Rejected
	}
	d := normalize.CalculateDistance(f.Center.Lat(), f.Center.Lon(), lat, lng)
	if d > f.Radius {
		return Rejected
	}
	b.SetDistance(int(math.Round(d)))
	return Accepted
}

func (f RadiusFilter) String() string {
	return fmt.Sprintf("radius %.0fm of %.5f,%.5f", f.Radius, f.Center.Lat(), f.Center.Lon())
}

// Ring approximates the filter boundary as a closed ring of n points, used to
// draw the search area.
func (f RadiusFilter) Ring(n int) orb.Ring {
	if n < 8 {
		n = 8
	}
	ring := make(orb.Ring, 0, n+1)
	for i := 0; i < n; i++ {
		bearing := 360.0 * float64(i) / float64(n)
		ring = append(ring, geo.PointAtBearingAndDistance(f.Center, bearing, f.Radius))
	}
	return append(ring, ring[0])
}

// Bound is the bounding box of the search area. orb measures on a larger
// sphere, so the radius is scaled to keep the box around the haversine circle,
// plus a meter of slack. Near the antimeridian Min.Lon exceeds Max.Lon.
func (f RadiusFilter) Bound() orb.Bound {
	scaled := f.Radius*orb.EarthRadius/normalize.EarthRadiusMeters + 1
	return geo.NewBoundAroundPoint(f.Center, scaled)
}
