package location

import (
	"context"
	"time"

	"googlemaps.github.io/maps"
)

// GoogleGeolocationProvider uses the Google Maps API to get location data.
type GoogleGeolocationProvider struct {
	client  *maps.Client // Maps API client for making geolocation requests
	timeout time.Duration
	scanner func(ctx context.Context) ([]maps.WiFiAccessPoint, error)
}

// NewGoogleGeolocationProvider creates a new GoogleGeolocationProvider instance.
func NewGoogleGeolocationProvider(apiKey string, timeout time.Duration) (*GoogleGeolocationProvider, error) {
	c, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &GoogleGeolocationProvider{
		client:  c,
		timeout: timeout,
		scanner: getWiFiAccessPoints,
	}, nil
}

// GetLocation retrieves the device's location using Google Maps Geolocation API.
// WiFi access points improve accuracy when nmcli is available; otherwise the
// lookup falls back to the request IP.
func (g *GoogleGeolocationProvider) GetLocation(ctx context.Context) (Location, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	req := &maps.GeolocationRequest{ConsiderIP: true}
	if wifiAPs, err := g.scanner(ctx); err == nil {
		req.WiFiAccessPoints = wifiAPs
	}

	resp, err := g.client.Geolocate(ctx, req)
	if err != nil {
		return Location{}, err
	}

	return Location{
		Latitude:  resp.Location.Lat,
		Longitude: resp.Location.Lng,
		Accuracy:  resp.Accuracy,
	}, nil
}

// Close is a no-op, the maps client holds no connection state.
func (g *GoogleGeolocationProvider) Close() error {
	return nil
}
