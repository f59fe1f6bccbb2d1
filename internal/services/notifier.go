package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/benmeehan/geofence-agent/internal/models"
)

// Broker is the publish/subscribe surface of the MQTT middleware chain.
type Broker interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) error
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) error
	Unsubscribe(topics ...string) error
}

// Notifier is the notification-dispatch collaborator.
type Notifier interface {
	Notify(ctx context.Context, n models.Notification) error
}

// LogNotifier writes notifications to the agent log.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify logs the notification at info level.
func (l *LogNotifier) Notify(_ context.Context, n models.Notification) error {
	l.logger.Info().
		Str("notification_id", n.ID).
		Str("request_id", n.RequestID).
		Str("title", n.Title).
		Str("body", n.Body).
		Msg("Geofence notification")
	return nil
}

// MQTTNotifier publishes notifications as JSON on a topic.
type MQTTNotifier struct {
	topic  string
	qos    int
	broker Broker
}

// NewMQTTNotifier creates an MQTTNotifier.
func NewMQTTNotifier(topic string, qos int, broker Broker) *MQTTNotifier {
	return &MQTTNotifier{topic: topic, qos: qos, broker: broker}
}

// Notify publishes the notification. The broker call is not cancellable, ctx is
// only checked before publishing.
func (m *MQTTNotifier) Notify(ctx context.Context, n models.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to serialize notification: %w", err)
	}
	if err := m.broker.Publish(m.topic, byte(m.qos), false, payload); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}
	return nil
}

// NotifierGroup fans a notification out to several sinks. Every sink is tried;
// the returned error joins all sink failures.
type NotifierGroup []Notifier

// Notify delivers n to every sink in order.
func (g NotifierGroup) Notify(ctx context.Context, n models.Notification) error {
	var errs []error
	for _, sink := range g {
		if err := sink.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
