package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/benmeehan/geofence-agent/internal/constants"
	"github.com/benmeehan/geofence-agent/internal/models"
)

// StatusSource provides the processor's view of the agent.
type StatusSource interface {
	Snapshot() models.Status
}

// StatusService publishes a periodic status heartbeat.
type StatusService struct {
	PubTopic string
	Interval time.Duration
	ClientID string
	QOS      int
	Broker   Broker
	Source   StatusSource
	Logger   zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewStatusService initializes a new StatusService.
func NewStatusService(pubTopic string, interval time.Duration, clientID string, qos int,
	broker Broker, source StatusSource, logger zerolog.Logger) *StatusService {

	return &StatusService{
		PubTopic: pubTopic,
		Interval: interval,
		ClientID: clientID,
		QOS:      qos,
		Broker:   broker,
		Source:   source,
		Logger:   logger,
	}
}

// Start launches the status loop in a separate goroutine.
func (h *StatusService) Start() error {
	if h.ctx != nil {
		h.Logger.Warn().Msg("StatusService is already running")
		return errors.New("status service is already running")
	}

	h.ctx, h.cancel = context.WithCancel(context.Background())

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.runStatusLoop()
	}()

	h.Logger.Info().Str("topic", h.PubTopic).Msg("StatusService started successfully")
	return nil
}

// Stop gracefully stops the status service.
func (h *StatusService) Stop() error {
	if h.ctx == nil {
		h.Logger.Warn().Msg("StatusService is not running")
		return errors.New("status service is not running")
	}

	h.cancel()
	h.wg.Wait()

	h.ctx = nil
	h.cancel = nil

	h.Logger.Info().Msg("StatusService stopped successfully")
	return nil
}

// runStatusLoop publishes a status message at the configured interval.
func (h *StatusService) runStatusLoop() {
	ticker := time.NewTicker(h.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := h.publishStatus(); err != nil {
				h.Logger.Error().Err(err).Msg("Failed to publish status message")
			} else {
				h.Logger.Debug().Msg("Status published successfully")
			}

		case <-h.ctx.Done():
			h.Logger.Info().Msg("StatusService stopping gracefully")
			return
		}
	}
}

func (h *StatusService) publishStatus() error {
	status := h.Source.Snapshot()
	status.ClientID = h.ClientID
	status.Status = constants.StatusAlive
	status.Timestamp = time.Now()

	payload, err := json.Marshal(status)
	if err != nil {
		return err
	}
	return h.Broker.Publish(h.PubTopic, byte(h.QOS), false, payload)
}
