package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/benmeehan/geofence-agent/pkg/geocoding"
)

// MockGeocoder is a mock implementation of the geocoding.Geocoder interface
type MockGeocoder struct {
	mock.Mock
}

func (m *MockGeocoder) ReverseGeocode(ctx context.Context, lat, lon float64) ([]geocoding.Candidate, error) {
	args := m.Called(ctx, lat, lon)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]geocoding.Candidate), args.Error(1)
}
