package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/benmeehan/geofence-agent/internal/models"
)

// amqpChannel is the part of *amqp.Channel the notifier uses.
type amqpChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPNotifier publishes notifications to a fanout exchange.
type AMQPNotifier struct {
	exchange string
	ch       amqpChannel
	mu       sync.Mutex
}

// NewAMQPNotifier opens a channel on conn and declares the exchange.
func NewAMQPNotifier(conn *amqp.Connection, exchange string) (*AMQPNotifier, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}
	n, err := newAMQPNotifier(ch, exchange)
	if err != nil {
		ch.Close()
		return nil, err
	}
	return n, nil
}

func newAMQPNotifier(ch amqpChannel, exchange string) (*AMQPNotifier, error) {
	if err := ch.ExchangeDeclare(exchange, "fanout", true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &AMQPNotifier{exchange: exchange, ch: ch}, nil
}

// Notify publishes n as a persistent JSON message.
func (a *AMQPNotifier) Notify(ctx context.Context, n models.Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	// amqp channels are not safe for concurrent publishing
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.ch.PublishWithContext(ctx, a.exchange, "", false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    n.ID,
		Timestamp:    n.Timestamp,
		Type:         string(n.Kind),
		Body:         body,
	})
}

// Close closes the channel. The connection is owned by the caller.
func (a *AMQPNotifier) Close() error {
	return a.ch.Close()
}
