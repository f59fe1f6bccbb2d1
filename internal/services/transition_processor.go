package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/rs/zerolog"

	"github.com/benmeehan/geofence-agent/internal/constants"
	"github.com/benmeehan/geofence-agent/internal/metrics"
	"github.com/benmeehan/geofence-agent/internal/models"
	"github.com/benmeehan/geofence-agent/internal/utils"
)

// ErrProcessorStopped is returned when the processor is not running.
var ErrProcessorStopped = errors.New("transition processor is stopped")

// TransitionProcessor turns transition events into notifications. Events are
// queued by Deliver and applied one at a time in delivery order against
// whichever region is active when the event is applied.
type TransitionProcessor struct {
	// Configuration fields
	queueSize       int
	workers         int
	dispatchTimeout time.Duration

	// Dependencies
	notifier Notifier
	metrics  *metrics.Metrics
	logger   zerolog.Logger

	// State machine, guarded by mu
	mu      sync.RWMutex
	state   models.ProcessorState
	region  *models.GeofenceRegion
	pool    *utils.WorkerPool
	records cmap.ConcurrentMap[string, models.NotificationRecord]

	// Internal state for managing service lifecycle
	lifecycle sync.RWMutex
	running   bool
	events    chan models.TransitionEvent
	done      chan struct{}
	wg        sync.WaitGroup
}

// NewTransitionProcessor creates a processor in the Unconfigured state.
func NewTransitionProcessor(notifier Notifier, queueSize, workers int, dispatchTimeout time.Duration,
	m *metrics.Metrics, logger zerolog.Logger) *TransitionProcessor {
	if queueSize <= 0 {
		queueSize = 64
	}
	if workers <= 0 {
		workers = 1
	}
	if dispatchTimeout <= 0 {
		dispatchTimeout = constants.DefaultDispatchTimeout
	}
	if m == nil {
		m = metrics.New(nil)
	}

	return &TransitionProcessor{
		queueSize:       queueSize,
		workers:         workers,
		dispatchTimeout: dispatchTimeout,
		notifier:        notifier,
		metrics:         m,
		logger:          logger,
		state:           models.StateUnconfigured,
		records:         cmap.New[models.NotificationRecord](),
	}
}

// Start launches the event loop and the dispatch workers.
func (p *TransitionProcessor) Start() error {
	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()

	if p.running {
		p.logger.Warn().Msg("TransitionProcessor is already running")
		return errors.New("transition processor is already running")
	}

	p.mu.Lock()
	p.pool = utils.NewWorkerPool(p.workers, p.queueSize)
	p.mu.Unlock()

	p.events = make(chan models.TransitionEvent, p.queueSize)
	p.done = make(chan struct{})
	p.running = true

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.run(p.events, p.done)
	}()

	p.logger.Info().Int("workers", p.workers).Int("queue_size", p.queueSize).Msg("TransitionProcessor started")
	return nil
}

// Stop applies the events already queued, waits for pending notifications and stops.
func (p *TransitionProcessor) Stop() error {
	p.lifecycle.Lock()
	if !p.running {
		p.lifecycle.Unlock()
		p.logger.Warn().Msg("TransitionProcessor is not running")
		return ErrProcessorStopped
	}
	p.running = false
	p.lifecycle.Unlock()

	close(p.done)
	p.wg.Wait()

	p.mu.Lock()
	pool := p.pool
	p.pool = nil
	p.mu.Unlock()
	pool.Shutdown()

	p.logger.Info().Msg("TransitionProcessor stopped")
	return nil
}

// Deliver is the monitor's event handler. It queues ev and returns; it only
// blocks while the queue is full.
func (p *TransitionProcessor) Deliver(ev models.TransitionEvent) {
	p.lifecycle.RLock()
	defer p.lifecycle.RUnlock()

	if !p.running {
		p.metrics.EventsDropped.WithLabelValues(metrics.DropStopped).Inc()
		p.logger.Warn().Str("kind", string(ev.Kind)).Msg("Transition event dropped, processor is stopped")
		return
	}

	select {
	case p.events <- ev:
	case <-p.done:
	}
}

func (p *TransitionProcessor) run(events <-chan models.TransitionEvent, done <-chan struct{}) {
	for {
		select {
		case ev := <-events:
			p.HandleEvent(ev)
		case <-done:
			for {
				select {
				case ev := <-events:
					p.HandleEvent(ev)
				default:
					return
				}
			}
		}
	}
}

// HandleEvent applies a single event to the state machine and reports whether
// it produced a notification.
func (p *TransitionProcessor) HandleEvent(ev models.TransitionEvent) bool {
	p.metrics.EventsReceived.WithLabelValues(string(ev.Kind)).Inc()
	logger := p.logger.With().Str("event_id", ev.ID).Str("kind", string(ev.Kind)).Logger()

	p.mu.Lock()
	if p.state == models.StateUnconfigured || p.region == nil {
		p.mu.Unlock()
		p.drop(logger, metrics.DropUnconfigured, "no geofence configured")
		return false
	}
	if ev.HasError {
		p.mu.Unlock()
		p.metrics.EventsDropped.WithLabelValues(metrics.DropError).Inc()
		logger.Warn().Str("detail", ev.ErrorDetail).Msg("Transition event reported an error, dropped")
		return false
	}

	region := *p.region
	if !ev.Kind.Supported() || !region.Monitors(ev.Kind) {
		p.mu.Unlock()
		p.drop(logger, metrics.DropUnsupported, "unsupported transition kind")
		return false
	}
	if len(ev.MatchedRequestIDs) > 0 {
		if _, ok := utils.SliceToSet(ev.MatchedRequestIDs)[region.RequestID]; !ok {
			p.mu.Unlock()
			logger.Warn().Strs("request_ids", ev.MatchedRequestIDs).Msg("Transition event for an unknown region, dropped")
			p.metrics.EventsDropped.WithLabelValues(metrics.DropForeign).Inc()
			return false
		}
	}
	if ev.ID != "" {
		if last, ok := p.records.Get(region.RequestID); ok && last.EventID == ev.ID {
			p.mu.Unlock()
			p.drop(logger, metrics.DropDuplicate, "redelivered transition event")
			return false
		}
	}

	if ev.Kind == models.TransitionEnter {
		p.state = models.StateInsideRegion
	} else {
		p.state = models.StateOutsideRegion
	}
	p.metrics.ProcessorState.Set(float64(p.state))

	now := time.Now()
	p.records.Set(region.RequestID, models.NotificationRecord{Kind: ev.Kind, EventID: ev.ID, Timestamp: now})
	pool := p.pool
	p.mu.Unlock()

	p.dispatch(pool, newNotification(ev, region.RequestID, now), logger)
	return true
}

func (p *TransitionProcessor) drop(logger zerolog.Logger, reason, msg string) {
	p.metrics.EventsDropped.WithLabelValues(reason).Inc()
	logger.Warn().Str("reason", reason).Msg(msg)
}

// dispatch hands n to the notifier without waiting for it.
func (p *TransitionProcessor) dispatch(pool *utils.WorkerPool, n models.Notification, logger zerolog.Logger) {
	if pool == nil {
		p.metrics.EventsDropped.WithLabelValues(metrics.DropStopped).Inc()
		logger.Error().Str("notification_id", n.ID).Msg("Notification dropped, processor is stopped")
		return
	}

	submitted := pool.TrySubmit(func() {
		ctx, cancel := context.WithTimeout(context.Background(), p.dispatchTimeout)
		defer cancel()

		if err := p.notifier.Notify(ctx, n); err != nil {
			p.metrics.NotificationsFailed.WithLabelValues(string(n.Kind)).Inc()
			logger.Error().Err(err).Str("notification_id", n.ID).Msg("Failed to dispatch notification")
			return
		}
		p.metrics.NotificationsSent.WithLabelValues(string(n.Kind)).Inc()
		logger.Debug().Str("notification_id", n.ID).Msg("Notification dispatched")
	})
	if !submitted {
		p.metrics.EventsDropped.WithLabelValues(metrics.DropQueueFull).Inc()
		logger.Error().Str("notification_id", n.ID).Msg("Notification queue is full, notification dropped")
	}
}

func newNotification(ev models.TransitionEvent, requestID string, now time.Time) models.Notification {
	n := models.Notification{
		ID:        uuid.NewString(),
		Kind:      ev.Kind,
		RequestID: requestID,
		Timestamp: ev.Timestamp,
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = now
	}
	if ev.Kind == models.TransitionEnter {
		n.Title, n.Body = constants.TitleEntered, constants.BodyEntered
	} else {
		n.Title, n.Body = constants.TitleExited, constants.BodyExited
	}
	return n
}

// Activate makes region the active configuration and resets the machine to
// OutsideRegion. The previous region's dispatch record is discarded.
func (p *TransitionProcessor) Activate(region models.GeofenceRegion) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.region != nil {
		p.records.Remove(p.region.RequestID)
	}
	p.records.Remove(region.RequestID)
	p.region = &region
	p.state = models.StateMonitoring
	p.metrics.ProcessorState.Set(float64(p.state))

	p.logger.Info().
		Str("request_id", region.RequestID).
		Float64("latitude", region.Center.Latitude).
		Float64("longitude", region.Center.Longitude).
		Float64("radius_meters", region.RadiusMeters).
		Msg("Geofence activated")
}

// Deactivate returns the machine to Unconfigured.
func (p *TransitionProcessor) Deactivate() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.region != nil {
		p.records.Remove(p.region.RequestID)
	}
	p.region = nil
	p.state = models.StateUnconfigured
	p.metrics.ProcessorState.Set(float64(p.state))
	p.logger.Warn().Msg("Geofence deactivated")
}

// State returns the current machine state.
func (p *TransitionProcessor) State() models.ProcessorState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// ActiveRegion returns a copy of the active region, or nil.
func (p *TransitionProcessor) ActiveRegion() *models.GeofenceRegion {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.region == nil {
		return nil
	}
	r := *p.region
	return &r
}

// Snapshot returns the processor's part of the agent status.
func (p *TransitionProcessor) Snapshot() models.Status {
	p.mu.RLock()
	defer p.mu.RUnlock()

	status := models.Status{State: p.state}
	if p.region != nil {
		r := *p.region
		status.Region = &r
		if rec, ok := p.records.Get(r.RequestID); ok {
			status.LastNotification = &rec
		}
	}
	return status
}
