package mocks

import (
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/mock"
)

// MockMQTTMiddleware is a mock of the publish/subscribe surface of the MQTT middleware chain.
// Subscribed handlers are captured per topic so tests can deliver messages.
type MockMQTTMiddleware struct {
	mock.Mock

	mu       sync.Mutex
	handlers map[string]mqtt.MessageHandler
}

func (m *MockMQTTMiddleware) Publish(topic string, qos byte, retained bool, payload interface{}) error {
	args := m.Called(topic, qos, retained, payload)
	return args.Error(0)
}

func (m *MockMQTTMiddleware) Subscribe(topic string, qos byte, callback mqtt.MessageHandler) error {
	args := m.Called(topic, qos, callback)
	if args.Error(0) == nil {
		m.mu.Lock()
		if m.handlers == nil {
			m.handlers = make(map[string]mqtt.MessageHandler)
		}
		m.handlers[topic] = callback
		m.mu.Unlock()
	}
	return args.Error(0)
}

func (m *MockMQTTMiddleware) Unsubscribe(topics ...string) error {
	args := m.Called(topics)
	return args.Error(0)
}

// Deliver invokes the handler subscribed on topic. It reports false when nothing is subscribed.
func (m *MockMQTTMiddleware) Deliver(topic string, payload []byte) bool {
	m.mu.Lock()
	h := m.handlers[topic]
	m.mu.Unlock()
	if h == nil {
		return false
	}
	h(nil, NewMockMessage(topic, payload))
	return true
}
