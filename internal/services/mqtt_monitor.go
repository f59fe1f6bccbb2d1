package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	MQTT "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/rs/zerolog"

	"github.com/benmeehan/geofence-agent/internal/constants"
	"github.com/benmeehan/geofence-agent/internal/models"
	"github.com/benmeehan/geofence-agent/internal/utils"
)

// ErrRegistrationRejected is returned when the remote monitor answers a request with success=false.
var ErrRegistrationRejected = errors.New("registration rejected by monitor")

// MQTTMonitor delegates monitoring to a remote service over MQTT. Register and
// Unregister are request/response exchanges with retries; transition events
// arrive on a per-client events topic.
type MQTTMonitor struct {
	handlerSlot

	// Configuration fields
	clientID          string
	registrationTopic string
	responseTopic     string
	eventsTopic       string
	qos               int
	maxRetries        int
	baseDelay         time.Duration
	maxDelay          time.Duration
	responseTimeout   time.Duration

	// Dependencies
	broker Broker
	logger zerolog.Logger

	// In-flight requests keyed by registration ID
	pending cmap.ConcurrentMap[string, chan models.RegistrationResponse]

	// Internal state for managing service lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
}

// NewMQTTMonitor creates an MQTTMonitor. Response and event topics are
// suffixed with clientID.
func NewMQTTMonitor(
	clientID string,
	registrationTopic string,
	responseTopic string,
	eventsTopic string,
	qos int,
	maxRetries int,
	baseDelay time.Duration,
	maxDelay time.Duration,
	responseTimeout time.Duration,
	broker Broker,
	logger zerolog.Logger,
) *MQTTMonitor {
	if maxRetries <= 0 {
		maxRetries = 1
	}
	return &MQTTMonitor{
		clientID:          clientID,
		registrationTopic: registrationTopic,
		responseTopic:     fmt.Sprintf("%s/%s", responseTopic, clientID),
		eventsTopic:       fmt.Sprintf("%s/%s", eventsTopic, clientID),
		qos:               qos,
		maxRetries:        maxRetries,
		baseDelay:         baseDelay,
		maxDelay:          maxDelay,
		responseTimeout:   responseTimeout,
		broker:            broker,
		logger:            logger,
		pending:           cmap.New[chan models.RegistrationResponse](),
	}
}

// Start subscribes to the response and event topics.
func (m *MQTTMonitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ctx != nil {
		m.logger.Warn().Msg("MQTTMonitor is already running")
		return errors.New("mqtt monitor is already running")
	}

	if err := m.broker.Subscribe(m.responseTopic, byte(m.qos), m.handleResponse); err != nil {
		return fmt.Errorf("failed to subscribe to response topic: %w", err)
	}
	if err := m.broker.Subscribe(m.eventsTopic, byte(m.qos), m.handleEvent); err != nil {
		if uerr := m.broker.Unsubscribe(m.responseTopic); uerr != nil {
			m.logger.Warn().Err(uerr).Str("topic", m.responseTopic).Msg("Failed to unsubscribe after startup failure")
		}
		return fmt.Errorf("failed to subscribe to events topic: %w", err)
	}

	m.ctx, m.cancel = context.WithCancel(context.Background())

	m.logger.Info().
		Str("response_topic", m.responseTopic).
		Str("events_topic", m.eventsTopic).
		Msg("MQTTMonitor started")
	return nil
}

// Stop cancels in-flight requests and unsubscribes.
func (m *MQTTMonitor) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ctx == nil {
		m.logger.Warn().Msg("MQTTMonitor is not running")
		return errors.New("mqtt monitor is not running")
	}

	m.cancel()
	m.ctx = nil
	m.cancel = nil

	if err := m.broker.Unsubscribe(m.responseTopic, m.eventsTopic); err != nil {
		m.logger.Error().Err(err).Msg("Failed to unsubscribe from MQTT topics")
		return err
	}

	m.logger.Info().Msg("MQTTMonitor stopped")
	return nil
}

// Register asks the remote monitor to watch region.
func (m *MQTTMonitor) Register(ctx context.Context, region models.GeofenceRegion) error {
	transitions := make([]string, 0, len(region.Transitions))
	for _, k := range region.Transitions {
		transitions = append(transitions, string(k))
	}

	return m.request(ctx, constants.ActionRegister, &models.RegionPayload{
		RequestID:    region.RequestID,
		Latitude:     region.Center.Latitude,
		Longitude:    region.Center.Longitude,
		RadiusMeters: region.RadiusMeters,
		Transitions:  transitions,
		ExpirationMs: int64(constants.NeverExpire),
	})
}

// Unregister asks the remote monitor to stop watching requestID.
func (m *MQTTMonitor) Unregister(ctx context.Context, requestID string) error {
	return m.request(ctx, constants.ActionUnregister, &models.RegionPayload{RequestID: requestID})
}

// request publishes a registration request and waits for its completion
// callback, retrying with exponential backoff.
func (m *MQTTMonitor) request(ctx context.Context, action string, region *models.RegionPayload) error {
	m.mu.Lock()
	serviceCtx := m.ctx
	m.mu.Unlock()
	if serviceCtx == nil {
		return ErrMonitorNotRunning
	}

	req := models.RegistrationRequest{
		RegistrationID: uuid.NewString(),
		Action:         action,
		ClientID:       m.clientID,
		Region:         region,
		Timestamp:      time.Now().UnixMilli(),
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to serialize registration request: %w", err)
	}

	responses := make(chan models.RegistrationResponse, 1)
	m.pending.Set(req.RegistrationID, responses)
	defer m.pending.Remove(req.RegistrationID)

	logger := m.logger.With().Str("registration_id", req.RegistrationID).Str("action", action).Str("request_id", region.RequestID).Logger()

	var lastErr error
	for attempt := 0; attempt < m.maxRetries; attempt++ {
		if err := m.broker.Publish(m.registrationTopic, byte(m.qos), false, payload); err != nil {
			lastErr = fmt.Errorf("failed to publish registration request: %w", err)
			logger.Error().Err(err).Int("attempt", attempt+1).Msg("Failed to publish registration request")
		} else {
			timer := time.NewTimer(m.responseTimeout)
			select {
			case resp := <-responses:
				timer.Stop()
				if !resp.Success {
					logger.Warn().Str("error", resp.Error).Msg("Registration rejected by monitor")
					return fmt.Errorf("%w: %s", ErrRegistrationRejected, resp.Error)
				}
				logger.Info().Int("attempt", attempt+1).Msg("Registration request completed")
				return nil
			case <-timer.C:
				lastErr = fmt.Errorf("no response within %s", m.responseTimeout)
				logger.Warn().Int("attempt", attempt+1).Msg("Registration response timeout")
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-serviceCtx.Done():
				timer.Stop()
				return ErrMonitorNotRunning
			}
		}

		if attempt == m.maxRetries-1 {
			break
		}

		select {
		case <-time.After(utils.Backoff(attempt, m.baseDelay, m.maxDelay)):
		case <-ctx.Done():
			return ctx.Err()
		case <-serviceCtx.Done():
			logger.Warn().Msg("MQTTMonitor stopping during retry delay")
			return ErrMonitorNotRunning
		}
	}

	return fmt.Errorf("registration %s failed after %d attempts: %w", action, m.maxRetries, lastErr)
}

// handleResponse routes a completion callback to the request waiting for it.
// Responses to requests that already finished are stale and ignored.
func (m *MQTTMonitor) handleResponse(_ MQTT.Client, msg MQTT.Message) {
	var resp models.RegistrationResponse
	if err := json.Unmarshal(msg.Payload(), &resp); err != nil {
		m.logger.Error().Err(err).Msg("Error parsing registration response")
		return
	}

	ch, ok := m.pending.Get(resp.RegistrationID)
	if !ok {
		m.logger.Debug().Str("registration_id", resp.RegistrationID).Msg("Stale registration response ignored")
		return
	}

	select {
	case ch <- resp:
	default:
		m.logger.Debug().Str("registration_id", resp.RegistrationID).Msg("Duplicate registration response ignored")
	}
}

// handleEvent decodes a transition message and hands it to the event handler.
// Undecodable payloads are delivered as error events.
func (m *MQTTMonitor) handleEvent(_ MQTT.Client, msg MQTT.Message) {
	ev := decodeTransition(msg.Payload())
	if ev.HasError {
		m.logger.Warn().Str("detail", ev.ErrorDetail).Msg("Transition message reports an error")
	}
	if !m.handlerSlot.emit(ev) {
		m.logger.Warn().Str("kind", string(ev.Kind)).Msg("No event handler registered, transition event lost")
	}
}

func decodeTransition(payload []byte) models.TransitionEvent {
	var msg models.TransitionMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return models.TransitionEvent{
			HasError:    true,
			ErrorDetail: fmt.Sprintf("malformed transition message: %v", err),
			Timestamp:   time.Now(),
		}
	}

	ev := models.TransitionEvent{
		ID:                msg.EventID,
		Kind:              models.TransitionKind(strings.ToUpper(strings.TrimSpace(msg.Transition))),
		MatchedRequestIDs: msg.RequestIDs,
		HasError:          msg.Error,
		ErrorDetail:       msg.ErrorDetail,
		Timestamp:         time.Now(),
	}
	if msg.Timestamp > 0 {
		ev.Timestamp = time.UnixMilli(msg.Timestamp)
	}
	return ev
}
