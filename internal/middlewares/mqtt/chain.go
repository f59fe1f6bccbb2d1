package mqtt_middleware

import (
	"errors"
	"fmt"
	"time"

	mqttLib "github.com/eclipse/paho.mqtt.golang"

	"github.com/benmeehan/geofence-agent/pkg/mqtt"
)

// ErrTokenTimeout is returned when the broker does not acknowledge an operation in time.
var ErrTokenTimeout = errors.New("mqtt operation timed out")

// ChainedMQTTClient wraps an MQTT client with a middleware chain.
type ChainedMQTTClient struct {
	middlewares []MQTTMiddleware
	direct      *directMQTTClient
}

// NewChainedMQTTClient creates a new chained MQTT client. Broker acknowledgements
// are awaited for at most waitTimeout; zero waits indefinitely.
func NewChainedMQTTClient(mqttClient mqtt.MQTTClient, waitTimeout time.Duration, middlewares []MQTTMiddleware) *ChainedMQTTClient {
	direct := &directMQTTClient{mqttClient: mqttClient, waitTimeout: waitTimeout}

	// Chain middlewares
	for i := 0; i < len(middlewares)-1; i++ {
		middlewares[i].SetNext(middlewares[i+1])
	}
	if len(middlewares) > 0 {
		middlewares[len(middlewares)-1].SetNext(direct)
	}
	return &ChainedMQTTClient{
		middlewares: middlewares,
		direct:      direct,
	}
}

func (c *ChainedMQTTClient) head() MQTTMiddleware {
	if len(c.middlewares) == 0 {
		return c.direct
	}
	return c.middlewares[0]
}

// Init initializes all middlewares in the chain.
func (c *ChainedMQTTClient) Init(params interface{}) error {
	for _, mw := range c.middlewares {
		if err := mw.Init(params); err != nil {
			return fmt.Errorf("failed to init middleware: %w", err)
		}
	}
	return nil
}

// Publish sends a message through the middleware chain.
func (c *ChainedMQTTClient) Publish(topic string, qos byte, retained bool, payload interface{}) error {
	return c.head().Publish(topic, qos, retained, payload)
}

// Subscribe subscribes through the middleware chain.
func (c *ChainedMQTTClient) Subscribe(topic string, qos byte, callback mqttLib.MessageHandler) error {
	return c.head().Subscribe(topic, qos, callback)
}

// Unsubscribe unsubscribes through the middleware chain.
func (c *ChainedMQTTClient) Unsubscribe(topics ...string) error {
	return c.head().Unsubscribe(topics...)
}

// SetNext implements the MQTTMiddleware interface (no-op for the chain entry point).
func (c *ChainedMQTTClient) SetNext(next MQTTMiddleware) {}

// directMQTTClient is the chain terminator that delegates to the MQTT client.
type directMQTTClient struct {
	mqttClient  mqtt.MQTTClient
	waitTimeout time.Duration
}

func (d *directMQTTClient) Init(_ interface{}) error {
	return nil
}

func (d *directMQTTClient) SetNext(_ MQTTMiddleware) {}

func (d *directMQTTClient) wait(token mqttLib.Token) error {
	if d.waitTimeout <= 0 {
		token.Wait()
		return token.Error()
	}
	if !token.WaitTimeout(d.waitTimeout) {
		return ErrTokenTimeout
	}
	return token.Error()
}

func (d *directMQTTClient) Publish(topic string, qos byte, retained bool, payload interface{}) error {
	return d.wait(d.mqttClient.Publish(topic, qos, retained, payload))
}

func (d *directMQTTClient) Subscribe(topic string, qos byte, callback mqttLib.MessageHandler) error {
	return d.wait(d.mqttClient.Subscribe(topic, qos, callback))
}

func (d *directMQTTClient) Unsubscribe(topics ...string) error {
	return d.wait(d.mqttClient.Unsubscribe(topics...))
}
