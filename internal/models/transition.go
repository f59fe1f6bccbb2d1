package models

import "time"

// TransitionKind is the boundary crossing reported by a monitor.
type TransitionKind string

const (
	TransitionEnter TransitionKind = "ENTER"
	TransitionExit  TransitionKind = "EXIT"
	// TransitionDwell is understood on the wire but never acted upon.
	TransitionDwell TransitionKind = "DWELL"
)

// Supported reports whether the processor reacts to this kind.
func (k TransitionKind) Supported() bool {
	return k == TransitionEnter || k == TransitionExit
}

// TransitionEvent is a single asynchronous callback from the monitoring collaborator.
type TransitionEvent struct {
	ID                string         `json:"id,omitempty"`
	Kind              TransitionKind `json:"kind"`
	MatchedRequestIDs []string       `json:"matched_request_ids"`
	HasError          bool           `json:"has_error"`
	ErrorDetail       string         `json:"error_detail,omitempty"`
	Timestamp         time.Time      `json:"timestamp"`
}

// ProcessorState is the transition processor's view of the device relative to the region.
type ProcessorState int

const (
	StateUnconfigured ProcessorState = iota
	StateOutsideRegion
	StateInsideRegion
)

// StateMonitoring is the state entered right after a successful registration.
// For notification purposes it is indistinguishable from StateOutsideRegion.
const StateMonitoring = StateOutsideRegion

func (s ProcessorState) String() string {
	switch s {
	case StateUnconfigured:
		return "unconfigured"
	case StateOutsideRegion:
		return "outside"
	case StateInsideRegion:
		return "inside"
	default:
		return "unknown"
	}
}

// MarshalText renders the state by name in JSON payloads.
func (s ProcessorState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
