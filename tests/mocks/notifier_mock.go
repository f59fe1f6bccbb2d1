package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/benmeehan/geofence-agent/internal/models"
)

// MockNotifier is a mock notification sink.
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(ctx context.Context, n models.Notification) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}
