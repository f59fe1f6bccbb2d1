package models

// Coordinates is a WGS84 latitude/longitude pair in decimal degrees.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// GeofenceRegion is the single circular region monitored for transitions.
type GeofenceRegion struct {
	Center       Coordinates      `json:"center"`        // Center of the circle
	RadiusMeters float64          `json:"radius_meters"` // Radius of the circle in meters, always > 0
	RequestID    string           `json:"request_id"`    // Identifier correlating monitor callbacks with this region
	Transitions  []TransitionKind `json:"transitions"`   // Monitored transition kinds
}

// Monitors reports whether the region was registered for the given transition kind.
func (r GeofenceRegion) Monitors(kind TransitionKind) bool {
	for _, k := range r.Transitions {
		if k == kind {
			return true
		}
	}
	return false
}

// Equal compares the fields that identify a registration.
func (r GeofenceRegion) Equal(other GeofenceRegion) bool {
	return r.Center == other.Center &&
		r.RadiusMeters == other.RadiusMeters &&
		r.RequestID == other.RequestID
}
