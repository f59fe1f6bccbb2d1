package services_test

import (
	"context"
	"sync"

	"github.com/benmeehan/geofence-agent/internal/models"
)

// recordingNotifier collects dispatched notifications.
type recordingNotifier struct {
	mu    sync.Mutex
	sent  []models.Notification
	block chan struct{}
	err   error
}

func (r *recordingNotifier) Notify(ctx context.Context, n models.Notification) error {
	if r.block != nil {
		select {
		case <-r.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return r.err
}

func (r *recordingNotifier) Sent() []models.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Notification, len(r.sent))
	copy(out, r.sent)
	return out
}

func (r *recordingNotifier) Titles() []string {
	var titles []string
	for _, n := range r.Sent() {
		titles = append(titles, n.Title)
	}
	return titles
}
