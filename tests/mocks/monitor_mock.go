package mocks

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/benmeehan/geofence-agent/internal/models"
)

// MockMonitor is a mock monitoring collaborator. The handler passed to
// SetEventHandler is captured so tests can push events through Emit.
type MockMonitor struct {
	mock.Mock

	mu      sync.Mutex
	handler func(models.TransitionEvent)
}

func (m *MockMonitor) Register(ctx context.Context, region models.GeofenceRegion) error {
	args := m.Called(ctx, region)
	return args.Error(0)
}

func (m *MockMonitor) Unregister(ctx context.Context, requestID string) error {
	args := m.Called(ctx, requestID)
	return args.Error(0)
}

func (m *MockMonitor) SetEventHandler(h func(models.TransitionEvent)) error {
	args := m.Called(h)
	if args.Error(0) == nil {
		m.mu.Lock()
		m.handler = h
		m.mu.Unlock()
	}
	return args.Error(0)
}

// Emit delivers an event to the captured handler.
func (m *MockMonitor) Emit(ev models.TransitionEvent) {
	m.mu.Lock()
	h := m.handler
	m.mu.Unlock()
	if h != nil {
		h(ev)
	}
}
