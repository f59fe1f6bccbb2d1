package models

import "time"

// Notification is the payload handed to the notification-dispatch collaborator.
type Notification struct {
	ID        string         `json:"id"`
	Title     string         `json:"title"`
	Body      string         `json:"body"`
	Kind      TransitionKind `json:"kind"`
	RequestID string         `json:"request_id"`
	Timestamp time.Time      `json:"timestamp"`
}

// NotificationRecord remembers the last dispatch for a region. It is never persisted.
type NotificationRecord struct {
	Kind      TransitionKind `json:"kind"`
	EventID   string         `json:"event_id,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Status is a point-in-time snapshot of the agent published by the status heartbeat.
type Status struct {
	ClientID         string              `json:"client_id"`
	Status           string              `json:"status"`
	State            ProcessorState      `json:"state"`
	Region           *GeofenceRegion     `json:"region,omitempty"`
	LastNotification *NotificationRecord `json:"last_notification,omitempty"`
	Timestamp        time.Time           `json:"timestamp"`
}
