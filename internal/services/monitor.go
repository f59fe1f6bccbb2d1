package services

import (
	"context"
	"errors"
	"sync"

	"github.com/benmeehan/geofence-agent/internal/models"
)

// EventHandler receives transition events from a monitor.
type EventHandler = func(models.TransitionEvent)

var (
	// ErrHandlerAlreadyRegistered is returned when a second event handler is installed.
	ErrHandlerAlreadyRegistered = errors.New("event handler already registered")
	// ErrMonitorNotRunning is returned by registration calls made before Start or after Stop.
	ErrMonitorNotRunning = errors.New("monitor is not running")
)

// Monitor is the monitoring collaborator: it accepts region registrations and
// pushes transition events to exactly one handler.
type Monitor interface {
	Register(ctx context.Context, region models.GeofenceRegion) error
	Unregister(ctx context.Context, requestID string) error
	SetEventHandler(h EventHandler) error
}

// handlerSlot holds the single event handler of a monitor.
type handlerSlot struct {
	mu sync.RWMutex
	h  EventHandler
}

func (s *handlerSlot) SetEventHandler(h EventHandler) error {
	if h == nil {
		return errors.New("event handler is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.h != nil {
		return ErrHandlerAlreadyRegistered
	}
	s.h = h
	return nil
}

// emit reports false when no handler is installed.
func (s *handlerSlot) emit(ev models.TransitionEvent) bool {
	s.mu.RLock()
	h := s.h
	s.mu.RUnlock()
	if h == nil {
		return false
	}
	h(ev)
	return true
}
