package geocoding

import (
	"context"
	"strings"

	"googlemaps.github.io/maps"
)

// featureTypes are address component types that name a place, in preference order.
var featureTypes = []string{
	"point_of_interest",
	"establishment",
	"premise",
	"natural_feature",
	"airport",
	"park",
}

// GoogleGeocoder resolves coordinates with the Google Maps Geocoding API.
type GoogleGeocoder struct {
	client   *maps.Client
	language string
}

// NewGoogleGeocoder creates a geocoder authenticated with the given API key.
func NewGoogleGeocoder(apiKey, language string) (*GoogleGeocoder, error) {
	c, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	return &GoogleGeocoder{client: c, language: language}, nil
}

// ReverseGeocode implements Geocoder.
func (g *GoogleGeocoder) ReverseGeocode(ctx context.Context, lat, lon float64) ([]Candidate, error) {
	results, err := g.client.ReverseGeocode(ctx, &maps.GeocodingRequest{
		LatLng:   &maps.LatLng{Lat: lat, Lng: lon},
		Language: g.language,
	})
	if err != nil {
		if strings.Contains(err.Error(), "ZERO_RESULTS") {
			return nil, nil
		}
		return nil, err
	}

	candidates := make([]Candidate, 0, len(results))
	for _, r := range results {
		candidates = append(candidates, candidateFromResult(r))
	}
	return candidates, nil
}

func candidateFromResult(r maps.GeocodingResult) Candidate {
	components := make(map[string]string)
	for _, ac := range r.AddressComponents {
		for _, t := range ac.Types {
			if _, ok := components[t]; !ok {
				components[t] = ac.LongName
			}
		}
	}

	c := Candidate{
		Locality:  firstOf(components, "locality", "postal_town", "administrative_area_level_2"),
		AdminArea: components["administrative_area_level_1"],
	}

	c.Feature = firstOf(components, featureTypes...)
	if c.Feature == "" {
		street := strings.TrimSpace(components["street_number"] + " " + components["route"])
		c.Feature = street
	}
	if c.Feature == "" && r.FormattedAddress != "" {
		c.Feature = strings.TrimSpace(strings.SplitN(r.FormattedAddress, ",", 2)[0])
	}
	return c
}

func firstOf(components map[string]string, types ...string) string {
	for _, t := range types {
		if v := components[t]; v != "" {
			return v
		}
	}
	return ""
}
