package constants

// Actions carried by registration requests sent to a remote monitor.
const (
	ActionRegister   = "register"
	ActionUnregister = "unregister"
)

// Status values published by the status heartbeat.
const (
	StatusAlive = "alive"
)

// MQTT middleware names
const (
	LOGGING_MIDDLEWARE = "logging"
)
