package constants

import "time"

const (
	// GeofenceRequestID identifies the single active region towards the monitor.
	GeofenceRequestID = "location"

	// NeverExpire marks a region registration that stays active until replaced.
	NeverExpire time.Duration = -1
)

// Keys used in the persisted key-value layout of the active region.
const (
	KeyLatitude          = "latitude"
	KeyLongitude         = "longitude"
	KeyRadius            = "radius_of_geofence"
	KeyLocationAvailable = "is_location_available"
)

// Notification contents for accepted transitions.
const (
	TitleEntered = "ENTERED"
	TitleExited  = "EXITED"

	BodyEntered = "You've entered the vicinity of the location."
	BodyExited  = "You've exited from the vicinity of the location."
)

// User-visible outcomes of a registration attempt.
const (
	MessageGeofenceAdded       = "The Geofence has been successfully added!"
	MessageGeofenceAddFailed   = "The Geofence failed to be added!"
	DefaultDispatchTimeout     = 10 * time.Second
	DefaultGeocodingTimeout    = 5 * time.Second
	DefaultRegistrationTimeout = 10 * time.Second
)
