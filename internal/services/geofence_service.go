package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/benmeehan/geofence-agent/internal/constants"
	"github.com/benmeehan/geofence-agent/internal/geofence"
	"github.com/benmeehan/geofence-agent/internal/metrics"
	"github.com/benmeehan/geofence-agent/internal/models"
	"github.com/benmeehan/geofence-agent/pkg/geocoding"
)

// RegistrationError reports that the monitor did not accept a region. The
// previously active region, if any, is still monitored.
type RegistrationError struct {
	Region models.GeofenceRegion
	Err    error
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("register geofence %s: %v", e.Region.RequestID, e.Err)
}

func (e *RegistrationError) Unwrap() error {
	return e.Err
}

// RegionStore persists the single geofence.
type RegionStore interface {
	Load(ctx context.Context) (*models.GeofenceRegion, error)
	Save(ctx context.Context, region models.GeofenceRegion) error
}

// SubmitResult is returned by a successful Submit.
type SubmitResult struct {
	Region  models.GeofenceRegion `json:"region"`
	Address string                `json:"address"`
	Message string                `json:"message"`
}

// CurrentGeofence describes the active configuration.
type CurrentGeofence struct {
	Region  *models.GeofenceRegion `json:"region,omitempty"`
	State   models.ProcessorState  `json:"state"`
	Address string                 `json:"address,omitempty"`
}

// GeofenceService applies configuration changes: validate, swap the monitor
// registration, persist, and point the processor at the new region.
type GeofenceService struct {
	// Configuration fields
	registrationTimeout time.Duration
	geocodingTimeout    time.Duration

	// Dependencies
	store     RegionStore
	monitor   Monitor
	processor *TransitionProcessor
	geocoder  geocoding.Geocoder
	metrics   *metrics.Metrics
	logger    zerolog.Logger

	// Registered region, guarded by mu. Configuration changes are serialized.
	mu      sync.Mutex
	current *models.GeofenceRegion
	address string
}

// NewGeofenceService wires the configuration flow. geocoder may be nil, in
// which case addresses resolve to the lookup-failure text.
func NewGeofenceService(store RegionStore, monitor Monitor, processor *TransitionProcessor, geocoder geocoding.Geocoder,
	registrationTimeout, geocodingTimeout time.Duration, m *metrics.Metrics, logger zerolog.Logger) *GeofenceService {
	if registrationTimeout <= 0 {
		registrationTimeout = constants.DefaultRegistrationTimeout
	}
	if geocodingTimeout <= 0 {
		geocodingTimeout = constants.DefaultGeocodingTimeout
	}
	if m == nil {
		m = metrics.New(nil)
	}
	return &GeofenceService{
		registrationTimeout: registrationTimeout,
		geocodingTimeout:    geocodingTimeout,
		store:               store,
		monitor:             monitor,
		processor:           processor,
		geocoder:            geocoder,
		metrics:             m,
		logger:              logger,
	}
}

// Start restores the persisted geofence. A failed restore leaves the agent
// unconfigured and is not a startup error.
func (s *GeofenceService) Start() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.registrationTimeout+s.geocodingTimeout)
	defer cancel()

	if err := s.Restore(ctx); err != nil {
		s.logger.Error().Err(err).Msg("Failed to restore geofence, staying unconfigured")
	}
	return nil
}

// Stop has nothing to release; the monitor and processor are stopped separately.
func (s *GeofenceService) Stop() error {
	return nil
}

// Restore loads the persisted region, registers it and activates the processor.
func (s *GeofenceService) Restore(ctx context.Context) error {
	region, err := s.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load geofence: %w", err)
	}
	if region == nil {
		s.logger.Info().Msg("No geofence configured")
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	regCtx, cancel := context.WithTimeout(ctx, s.registrationTimeout)
	err = s.monitor.Register(regCtx, *region)
	cancel()
	if err != nil {
		s.metrics.Registrations.WithLabelValues("failure").Inc()
		return &RegistrationError{Region: *region, Err: err}
	}
	s.metrics.Registrations.WithLabelValues("success").Inc()

	s.current = region
	s.processor.Activate(*region)
	s.address = s.Address(ctx, region.Center.Latitude, region.Center.Longitude)

	s.logger.Info().Str("request_id", region.RequestID).Str("address", s.address).Msg("Geofence restored")
	return nil
}

// Submit validates raw input and replaces the active geofence. It returns a
// *geofence.ValidationError for bad input and a *RegistrationError when the
// monitor refuses the region; in both cases nothing changes.
func (s *GeofenceService) Submit(ctx context.Context, rawCoordinates, rawRadius string) (*SubmitResult, error) {
	result := geofence.Validate(rawCoordinates, rawRadius)
	if !result.Valid() {
		s.logger.Info().Str("field", result.Err.Field).Str("reason", result.Err.Reason).Msg("Geofence input rejected")
		return nil, result.Err
	}
	region := *result.Region

	if err := s.apply(ctx, region); err != nil {
		var regErr *RegistrationError
		if errors.As(err, &regErr) {
			s.logger.Error().Err(err).Msg(constants.MessageGeofenceAddFailed)
		}
		return nil, err
	}

	address := s.Address(ctx, region.Center.Latitude, region.Center.Longitude)
	s.mu.Lock()
	if s.current != nil && s.current.Equal(region) {
		s.address = address
	}
	s.mu.Unlock()

	s.logger.Info().Str("request_id", region.RequestID).Str("address", address).Msg(constants.MessageGeofenceAdded)
	return &SubmitResult{Region: region, Address: address, Message: constants.MessageGeofenceAdded}, nil
}

// apply swaps the monitor registration to region, persists it and activates
// the processor. On registration failure the previous region is registered again.
func (s *GeofenceService) apply(ctx context.Context, region models.GeofenceRegion) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	regCtx, cancel := context.WithTimeout(ctx, s.registrationTimeout)
	defer cancel()

	previous := s.current
	if previous != nil {
		if err := s.monitor.Unregister(regCtx, previous.RequestID); err != nil {
			s.logger.Warn().Err(err).Str("request_id", previous.RequestID).Msg("Failed to unregister previous geofence")
		}
	}

	if err := s.monitor.Register(regCtx, region); err != nil {
		s.metrics.Registrations.WithLabelValues("failure").Inc()
		if previous != nil {
			s.restorePrevious(ctx, *previous)
		}
		return &RegistrationError{Region: region, Err: err}
	}
	s.metrics.Registrations.WithLabelValues("success").Inc()

	s.current = &region
	s.address = ""
	s.processor.Activate(region)

	if err := s.store.Save(ctx, region); err != nil {
		s.logger.Error().Err(err).Str("request_id", region.RequestID).Msg("Geofence is monitored but could not be persisted")
		return fmt.Errorf("persist geofence: %w", err)
	}
	return nil
}

// restorePrevious re-registers the region that was active before a failed
// replacement. If that fails too the processor is deactivated.
func (s *GeofenceService) restorePrevious(ctx context.Context, previous models.GeofenceRegion) {
	regCtx, cancel := context.WithTimeout(ctx, s.registrationTimeout)
	defer cancel()

	if err := s.monitor.Register(regCtx, previous); err != nil {
		s.logger.Error().Err(err).Str("request_id", previous.RequestID).Msg("Failed to re-register previous geofence")
		s.current = nil
		s.address = ""
		s.processor.Deactivate()
		return
	}
	s.logger.Info().Str("request_id", previous.RequestID).Msg("Previous geofence re-registered")
}

// Current returns the active region, the processor state and the cached address.
func (s *GeofenceService) Current() CurrentGeofence {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := CurrentGeofence{State: s.processor.State(), Address: s.address}
	if s.current != nil {
		r := *s.current
		c.Region = &r
	}
	return c
}

// Address resolves a display string for a coordinate pair. It never fails.
func (s *GeofenceService) Address(ctx context.Context, lat, lon float64) string {
	ctx, cancel := context.WithTimeout(ctx, s.geocodingTimeout)
	defer cancel()
	return geocoding.ResolveAddress(ctx, s.geocoder, lat, lon)
}
