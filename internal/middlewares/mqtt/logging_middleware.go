package mqtt_middleware

import (
	"errors"
	"time"

	mqttLib "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

// LoggingMiddleware logs broker traffic and shields the paho callback
// goroutine from panics in message handlers.
type LoggingMiddleware struct {
	next   MQTTMiddleware
	logger zerolog.Logger
}

// NewLoggingMiddleware creates a LoggingMiddleware.
func NewLoggingMiddleware(logger zerolog.Logger) *LoggingMiddleware {
	return &LoggingMiddleware{logger: logger.With().Str("middleware", "logging").Logger()}
}

// SetNext sets the next middleware in the chain.
func (m *LoggingMiddleware) SetNext(next MQTTMiddleware) {
	m.next = next
}

// Init takes no parameters.
func (m *LoggingMiddleware) Init(_ interface{}) error {
	if m.next == nil {
		return errors.New("logging middleware has no next middleware")
	}
	return nil
}

// Publish forwards the message and logs the outcome.
func (m *LoggingMiddleware) Publish(topic string, qos byte, retained bool, payload interface{}) error {
	start := time.Now()
	err := m.next.Publish(topic, qos, retained, payload)
	if err != nil {
		m.logger.Error().Err(err).Str("topic", topic).Msg("Publish failed")
		return err
	}
	m.logger.Debug().Str("topic", topic).Dur("took", time.Since(start)).Msg("Published")
	return nil
}

// Subscribe forwards the subscription with a handler that recovers from panics.
func (m *LoggingMiddleware) Subscribe(topic string, qos byte, callback mqttLib.MessageHandler) error {
	wrapped := func(client mqttLib.Client, msg mqttLib.Message) {
		defer func() {
			if r := recover(); r != nil {
				m.logger.Error().Interface("panic", r).Str("topic", msg.Topic()).Msg("Message handler panicked")
			}
		}()
		m.logger.Debug().Str("topic", msg.Topic()).Int("bytes", len(msg.Payload())).Msg("Message received")
		callback(client, msg)
	}

	if err := m.next.Subscribe(topic, qos, wrapped); err != nil {
		m.logger.Error().Err(err).Str("topic", topic).Msg("Subscribe failed")
		return err
	}
	m.logger.Info().Str("topic", topic).Msg("Subscribed")
	return nil
}

// Unsubscribe forwards the request and logs failures.
func (m *LoggingMiddleware) Unsubscribe(topics ...string) error {
	if err := m.next.Unsubscribe(topics...); err != nil {
		m.logger.Warn().Err(err).Strs("topics", topics).Msg("Unsubscribe failed")
		return err
	}
	return nil
}
