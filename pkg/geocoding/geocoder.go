package geocoding

import (
	"context"
	"strings"
)

// Display strings returned when no address can be shown.
const (
	NoAddress    = "No Address!"
	LookupFailed = "Can't get this Address"
)

// Candidate is one reverse-geocoding match, reduced to the parts shown to users.
type Candidate struct {
	Feature   string // known name of the place, e.g. a landmark or street address
	Locality  string // city
	AdminArea string // state or province
}

// Geocoder converts coordinates into address candidates, best match first.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, lat, lon float64) ([]Candidate, error)
}

// ResolveAddress returns a display string for the coordinates. It never fails:
// an empty result yields NoAddress and a lookup error yields LookupFailed.
func ResolveAddress(ctx context.Context, g Geocoder, lat, lon float64) string {
	if g == nil {
		return LookupFailed
	}

	candidates, err := g.ReverseGeocode(ctx, lat, lon)
	if err != nil {
		return LookupFailed
	}
	if len(candidates) == 0 {
		return NoAddress
	}
	return candidates[0].Format()
}

// Format renders "<feature>, <locality>, <adminArea>", leaving out empty parts.
func (c Candidate) Format() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{c.Feature, c.Locality, c.AdminArea} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return NoAddress
	}
	return strings.Join(parts, ", ")
}
