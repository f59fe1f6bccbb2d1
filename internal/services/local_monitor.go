package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/benmeehan/geofence-agent/internal/models"
	"github.com/benmeehan/geofence-agent/pkg/location"
)

// LocalMonitor detects boundary crossings on the device itself by polling a
// location provider and comparing each fix against the registered region.
type LocalMonitor struct {
	handlerSlot

	// Configuration fields
	interval time.Duration
	timeout  time.Duration

	// Dependencies
	provider location.Provider
	logger   zerolog.Logger

	// Monitored region and last known side of its boundary, guarded by mu
	mu     sync.Mutex
	region *models.GeofenceRegion
	inside *bool

	// Internal state for managing service lifecycle
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewLocalMonitor creates a LocalMonitor polling provider every interval.
func NewLocalMonitor(provider location.Provider, interval, timeout time.Duration, logger zerolog.Logger) *LocalMonitor {
	if timeout <= 0 || timeout > interval {
		timeout = interval
	}
	return &LocalMonitor{
		interval: interval,
		timeout:  timeout,
		provider: provider,
		logger:   logger,
	}
}

// Start begins polling. The first fix is taken immediately.
func (l *LocalMonitor) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.running {
		l.logger.Warn().Msg("LocalMonitor is already running")
		return errors.New("local monitor is already running")
	}

	l.ctx, l.cancel = context.WithCancel(context.Background())
	l.running = true

	l.wg.Add(1)
	go func(ctx context.Context) {
		defer l.wg.Done()

		l.poll(ctx)

		ticker := time.NewTicker(l.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				l.poll(ctx)
			case <-ctx.Done():
				l.logger.Info().Msg("LocalMonitor is stopping")
				return
			}
		}
	}(l.ctx)

	l.logger.Info().Dur("interval", l.interval).Msg("LocalMonitor started")
	return nil
}

// Stop halts polling and closes the location provider.
func (l *LocalMonitor) Stop() error {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		l.logger.Warn().Msg("LocalMonitor is not running")
		return errors.New("local monitor is not running")
	}
	l.running = false
	l.cancel()
	l.mu.Unlock()

	l.wg.Wait()

	if err := l.provider.Close(); err != nil {
		l.logger.Error().Err(err).Msg("Failed to close location provider")
		return err
	}

	l.logger.Info().Msg("LocalMonitor stopped")
	return nil
}

// Register starts monitoring region. The boundary side is unknown until the
// next fix; if that fix is inside, an initial ENTER is emitted.
func (l *LocalMonitor) Register(_ context.Context, region models.GeofenceRegion) error {
	if region.RadiusMeters <= 0 {
		return errors.New("region radius must be positive")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.region = &region
	l.inside = nil

	l.logger.Info().Str("request_id", region.RequestID).Msg("Region registered with local monitor")
	return nil
}

// Unregister stops monitoring requestID. Unknown IDs are ignored.
func (l *LocalMonitor) Unregister(_ context.Context, requestID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.region != nil && l.region.RequestID == requestID {
		l.region = nil
		l.inside = nil
		l.logger.Info().Str("request_id", requestID).Msg("Region unregistered from local monitor")
	}
	return nil
}

// poll takes one fix and emits at most one event.
func (l *LocalMonitor) poll(ctx context.Context) {
	l.mu.Lock()
	hasRegion := l.region != nil
	l.mu.Unlock()
	if !hasRegion {
		return
	}

	fixCtx, cancel := context.WithTimeout(ctx, l.timeout)
	loc, err := l.provider.GetLocation(fixCtx)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		l.logger.Error().Err(err).Msg("Failed to get location from provider")
		l.emit(models.TransitionEvent{
			ID:          uuid.NewString(),
			HasError:    true,
			ErrorDetail: err.Error(),
			Timestamp:   time.Now(),
		})
		return
	}

	ev, ok := l.evaluate(loc)
	if ok {
		l.emit(ev)
	}
}

// evaluate compares a fix with the registered region and returns the
// transition it implies, if any.
func (l *LocalMonitor) evaluate(loc location.Location) (models.TransitionEvent, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.region == nil {
		return models.TransitionEvent{}, false
	}

	distance := location.Distance(loc.Latitude, loc.Longitude, l.region.Center.Latitude, l.region.Center.Longitude)
	inside := distance <= l.region.RadiusMeters
	previous := l.inside
	l.inside = &inside

	l.logger.Debug().
		Float64("latitude", loc.Latitude).
		Float64("longitude", loc.Longitude).
		Float64("distance_meters", distance).
		Bool("inside", inside).
		Msg("Location fix evaluated")

	var kind models.TransitionKind
	switch {
	case previous == nil && inside:
		kind = models.TransitionEnter
	case previous == nil:
		return models.TransitionEvent{}, false
	case *previous == inside:
		return models.TransitionEvent{}, false
	case inside:
		kind = models.TransitionEnter
	default:
		kind = models.TransitionExit
	}

	return models.TransitionEvent{
		ID:                uuid.NewString(),
		Kind:              kind,
		MatchedRequestIDs: []string{l.region.RequestID},
		Timestamp:         time.Now(),
	}, true
}

func (l *LocalMonitor) emit(ev models.TransitionEvent) {
	if !l.handlerSlot.emit(ev) {
		l.logger.Warn().Str("kind", string(ev.Kind)).Msg("No event handler registered, transition event lost")
	}
}
