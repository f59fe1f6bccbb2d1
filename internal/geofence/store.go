package geofence

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/rs/zerolog"

	"github.com/benmeehan/geofence-agent/internal/constants"
	"github.com/benmeehan/geofence-agent/internal/models"
)

// ErrCorruptState is returned when the persisted region is flagged as configured
// but its values are missing or invalid.
var ErrCorruptState = errors.New("persisted geofence is corrupt")

// KeyValueStore is the persistence collaborator. Each key is written atomically
// and survives a process restart.
type KeyValueStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// BatchWriter is implemented by stores that can write several keys atomically.
type BatchWriter interface {
	SetAll(ctx context.Context, values map[string]string) error
}

// Store owns the single persisted geofence definition.
type Store struct {
	kv     KeyValueStore
	logger zerolog.Logger
	mu     sync.RWMutex
}

// NewStore creates a Store on top of the given key-value collaborator.
func NewStore(kv KeyValueStore, logger zerolog.Logger) *Store {
	return &Store{kv: kv, logger: logger}
}

// Load returns the persisted region, or nil if none was ever configured.
func (s *Store) Load(ctx context.Context) (*models.GeofenceRegion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	flag, ok, err := s.kv.Get(ctx, constants.KeyLocationAvailable)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", constants.KeyLocationAvailable, err)
	}
	if !ok {
		return nil, nil
	}
	configured, err := strconv.ParseBool(flag)
	if err != nil {
		return nil, fmt.Errorf("%w: %s=%q", ErrCorruptState, constants.KeyLocationAvailable, flag)
	}
	if !configured {
		return nil, nil
	}

	lat, err := s.getFloat(ctx, constants.KeyLatitude)
	if err != nil {
		return nil, err
	}
	lon, err := s.getFloat(ctx, constants.KeyLongitude)
	if err != nil {
		return nil, err
	}
	radius, err := s.getFloat(ctx, constants.KeyRadius)
	if err != nil {
		return nil, err
	}

	region := NewRegion(models.Coordinates{Latitude: lat, Longitude: lon}, radius)
	if err := CheckRegion(region); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptState, err)
	}
	return &region, nil
}

// Save overwrites the persisted region. Concurrent Load calls observe either
// the previous or the new region, never a mix of both.
func (s *Store) Save(ctx context.Context, region models.GeofenceRegion) error {
	if err := CheckRegion(region); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	values := map[string]string{
		constants.KeyLatitude:          formatFloat(region.Center.Latitude),
		constants.KeyLongitude:         formatFloat(region.Center.Longitude),
		constants.KeyRadius:            formatFloat(region.RadiusMeters),
		constants.KeyLocationAvailable: strconv.FormatBool(true),
	}

	if bw, ok := s.kv.(BatchWriter); ok {
		if err := bw.SetAll(ctx, values); err != nil {
			return fmt.Errorf("save geofence: %w", err)
		}
		s.logger.Debug().Str("request_id", region.RequestID).Msg("Geofence saved")
		return nil
	}

	// Without batch writes the flag is cleared first and set last, so an
	// interrupted save reads back as "not configured" rather than a mixed region.
	if err := s.kv.Set(ctx, constants.KeyLocationAvailable, strconv.FormatBool(false)); err != nil {
		return fmt.Errorf("save geofence: %w", err)
	}
	for _, key := range []string{constants.KeyLatitude, constants.KeyLongitude, constants.KeyRadius} {
		if err := s.kv.Set(ctx, key, values[key]); err != nil {
			return fmt.Errorf("save geofence %s: %w", key, err)
		}
	}
	if err := s.kv.Set(ctx, constants.KeyLocationAvailable, values[constants.KeyLocationAvailable]); err != nil {
		return fmt.Errorf("save geofence: %w", err)
	}

	s.logger.Debug().Str("request_id", region.RequestID).Msg("Geofence saved")
	return nil
}

func (s *Store) getFloat(ctx context.Context, key string) (float64, error) {
	raw, ok, err := s.kv.Get(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", key, err)
	}
	if !ok {
		return 0, fmt.Errorf("%w: %s missing", ErrCorruptState, key)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q", ErrCorruptState, key, raw)
	}
	return v, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
