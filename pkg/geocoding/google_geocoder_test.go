package geocoding

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"googlemaps.github.io/maps"
)

func TestCandidateFromResult_PointOfInterest(t *testing.T) {
	r := maps.GeocodingResult{
		FormattedAddress: "1 Dr Carlton B Goodlett Pl, San Francisco, CA 94102, USA",
		AddressComponents: []maps.AddressComponent{
			{LongName: "San Francisco City Hall", Types: []string{"point_of_interest", "establishment"}},
			{LongName: "1", Types: []string{"street_number"}},
			{LongName: "Dr Carlton B Goodlett Place", Types: []string{"route"}},
			{LongName: "San Francisco", Types: []string{"locality", "political"}},
			{LongName: "California", ShortName: "CA", Types: []string{"administrative_area_level_1", "political"}},
		},
	}

	c := candidateFromResult(r)

	assert.Equal(t, "San Francisco City Hall", c.Feature)
	assert.Equal(t, "San Francisco", c.Locality)
	assert.Equal(t, "California", c.AdminArea)
}

func TestCandidateFromResult_StreetAddress(t *testing.T) {
	r := maps.GeocodingResult{
		AddressComponents: []maps.AddressComponent{
			{LongName: "221B", Types: []string{"street_number"}},
			{LongName: "Baker Street", Types: []string{"route"}},
			{LongName: "London", Types: []string{"postal_town"}},
			{LongName: "England", Types: []string{"administrative_area_level_1"}},
		},
	}

	c := candidateFromResult(r)

	assert.Equal(t, "221B Baker Street", c.Feature)
	assert.Equal(t, "London", c.Locality)
	assert.Equal(t, "England", c.AdminArea)
}

func TestCandidateFromResult_FormattedAddressFallback(t *testing.T) {
	r := maps.GeocodingResult{FormattedAddress: "Somewhere Remote, Nowhere"}

	c := candidateFromResult(r)

	assert.Equal(t, "Somewhere Remote", c.Feature)
	assert.Empty(t, c.Locality)
}
