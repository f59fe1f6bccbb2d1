package models

// RegionPayload is the wire form of a region sent to a remote monitor.
type RegionPayload struct {
	RequestID    string   `json:"request_id"`
	Latitude     float64  `json:"latitude"`
	Longitude    float64  `json:"longitude"`
	RadiusMeters float64  `json:"radius_meters"`
	Transitions  []string `json:"transitions"`
	ExpirationMs int64    `json:"expiration_ms"` // -1 never expires
}

// RegistrationRequest asks a remote monitor to start or stop monitoring.
type RegistrationRequest struct {
	RegistrationID string         `json:"registration_id"`
	Action         string         `json:"action"`
	ClientID       string         `json:"client_id"`
	Region         *RegionPayload `json:"region,omitempty"`
	Timestamp      int64          `json:"timestamp"`
}

// RegistrationResponse is the monitor's completion callback for a request.
type RegistrationResponse struct {
	RegistrationID string `json:"registration_id"`
	Success        bool   `json:"success"`
	Error          string `json:"error,omitempty"`
}

// TransitionMessage is the wire form of a transition event pushed by a remote monitor.
type TransitionMessage struct {
	EventID     string   `json:"event_id,omitempty"`
	Transition  string   `json:"transition"`
	RequestIDs  []string `json:"request_ids"`
	Error       bool     `json:"error"`
	ErrorDetail string   `json:"error_detail,omitempty"`
	Timestamp   int64    `json:"timestamp"` // unix milliseconds
}
