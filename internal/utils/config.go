package utils

import (
	"errors"
	"fmt"
	"time"

	"github.com/benmeehan/geofence-agent/pkg/file"
)

// Config represents the structure of the configuration file.
type Config struct {
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Logging   LoggingConfig   `yaml:"logging"`
	Storage   StorageConfig   `yaml:"storage"`
	Monitor   MonitorConfig   `yaml:"monitor"`
	Notifier  NotifierConfig  `yaml:"notifier"`
	Geocoding GeocodingConfig `yaml:"geocoding"`
	Status    StatusConfig    `yaml:"status"`
	HTTP      HTTPConfig      `yaml:"http"`
}

// MQTTConfig holds the broker connection settings.
type MQTTConfig struct {
	Broker         string        `yaml:"broker"`          // MQTT broker address
	ClientID       string        `yaml:"client_id"`       // MQTT client ID prefix, a UUID is appended
	Username       string        `yaml:"username"`        // Optional broker username
	Password       string        `yaml:"password"`        // Optional broker password
	CACertificate  string        `yaml:"ca_certificate"`  // Path to the CA certificate, enables TLS
	ConnectTimeout time.Duration `yaml:"connect_timeout"` // Timeout for the initial connection

	OperationTimeout time.Duration `yaml:"operation_timeout"` // Wait limit for publish and subscribe acknowledgements
}

// LoggingConfig controls the zerolog output.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // trace, debug, info, warn, error
	Pretty bool   `yaml:"pretty"` // Human readable console output instead of JSON
}

// StorageConfig selects and configures the persistence backend.
type StorageConfig struct {
	Backend string `yaml:"backend"` // file, sqlite or redis

	File struct {
		Path string `yaml:"path"` // JSON state file
	} `yaml:"file"`

	SQLite struct {
		Path string `yaml:"path"` // Database file
	} `yaml:"sqlite"`

	Redis struct {
		Addr      string `yaml:"addr"`
		Password  string `yaml:"password"`
		DB        int    `yaml:"db"`
		KeyPrefix string `yaml:"key_prefix"`
	} `yaml:"redis"`
}

// MonitorConfig selects where transition events come from.
type MonitorConfig struct {
	Mode string `yaml:"mode"` // local or mqtt

	Local struct {
		Interval          time.Duration `yaml:"interval"`        // Interval between position fixes
		SensorBased       bool          `yaml:"sensor_based"`    // Use the GPS sensor instead of the geolocation API
		MapsAPIKey        string        `yaml:"maps_api_key"`    // Google maps API Key
		GPSDeviceBaudRate int           `yaml:"gps_baud_rate"`   // The Baud rate for GPS sensor
		GPSDevicePort     string        `yaml:"gps_device_port"` // UNIX Port where the GPS sensor is mounted
		Timeout           time.Duration `yaml:"timeout"`         // Timeout for a single fix
	} `yaml:"local"`

	MQTT struct {
		RegistrationTopic string        `yaml:"registration_topic"` // Requests are published here
		ResponseTopic     string        `yaml:"response_topic"`     // Completion callbacks, suffixed with the client ID
		EventsTopic       string        `yaml:"events_topic"`       // Transition events, suffixed with the client ID
		QOS               int           `yaml:"qos"`                // MQTT QoS level for monitor traffic
		MaxRetries        int           `yaml:"max_retries"`        // Maximum number of attempts per request
		BaseDelay         time.Duration `yaml:"base_delay"`         // Initial delay between retries
		MaxBackoff        time.Duration `yaml:"max_backoff"`        // Maximum backoff between retries
		ResponseTimeout   time.Duration `yaml:"response_timeout"`   // Timeout for a response per attempt
	} `yaml:"mqtt"`
}

// NotifierConfig configures notification dispatch.
type NotifierConfig struct {
	Sinks           []string      `yaml:"sinks"`            // log, mqtt, amqp
	Workers         int           `yaml:"workers"`          // Dispatch workers, 1 keeps notification order
	QueueSize       int           `yaml:"queue_size"`       // Pending notifications before new ones are dropped
	DispatchTimeout time.Duration `yaml:"dispatch_timeout"` // Timeout for a single sink call

	MQTT struct {
		Topic string `yaml:"topic"`
		QOS   int    `yaml:"qos"`
	} `yaml:"mqtt"`

	AMQP struct {
		URL      string `yaml:"url"`
		Exchange string `yaml:"exchange"`
	} `yaml:"amqp"`
}

// GeocodingConfig configures reverse geocoding.
type GeocodingConfig struct {
	Enabled    bool          `yaml:"enabled"`
	MapsAPIKey string        `yaml:"maps_api_key"`
	Language   string        `yaml:"language"`
	Timeout    time.Duration `yaml:"timeout"`
}

// StatusConfig configures the periodic status heartbeat.
type StatusConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Topic    string        `yaml:"topic"`
	Interval time.Duration `yaml:"interval"`
	QOS      int           `yaml:"qos"`
}

// HTTPConfig configures the local configuration API.
type HTTPConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LoadConfig loads the YAML configuration from the specified file.
// Zero values are replaced by defaults and the result is validated.
func LoadConfig(filename string, fileClient file.FileOperations) (*Config, error) {
	var config Config
	if err := fileClient.ReadYamlFile(filename, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", filename, err)
	}

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "geofence-agent"
	}
	if c.MQTT.ConnectTimeout <= 0 {
		c.MQTT.ConnectTimeout = 10 * time.Second
	}
	if c.MQTT.OperationTimeout <= 0 {
		c.MQTT.OperationTimeout = 10 * time.Second
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}

	if c.Storage.Backend == "" {
		c.Storage.Backend = "file"
	}
	if c.Storage.File.Path == "" {
		c.Storage.File.Path = "data/geofence.json"
	}
	if c.Storage.SQLite.Path == "" {
		c.Storage.SQLite.Path = "data/geofence.db"
	}
	if c.Storage.Redis.KeyPrefix == "" {
		c.Storage.Redis.KeyPrefix = "geofence"
	}

	if c.Monitor.Mode == "" {
		c.Monitor.Mode = "local"
	}
	if c.Monitor.Local.Interval <= 0 {
		c.Monitor.Local.Interval = 30 * time.Second
	}
	if c.Monitor.Local.Timeout <= 0 {
		c.Monitor.Local.Timeout = 10 * time.Second
	}
	if c.Monitor.Local.GPSDeviceBaudRate <= 0 {
		c.Monitor.Local.GPSDeviceBaudRate = 9600
	}
	mm := &c.Monitor.MQTT
	if mm.RegistrationTopic == "" {
		mm.RegistrationTopic = "geofence/register"
	}
	if mm.ResponseTopic == "" {
		mm.ResponseTopic = "geofence/register/response"
	}
	if mm.EventsTopic == "" {
		mm.EventsTopic = "geofence/events"
	}
	if mm.QOS == 0 {
		mm.QOS = 1
	}
	if mm.MaxRetries <= 0 {
		mm.MaxRetries = 3
	}
	if mm.BaseDelay <= 0 {
		mm.BaseDelay = time.Second
	}
	if mm.MaxBackoff <= 0 {
		mm.MaxBackoff = 10 * time.Second
	}
	if mm.ResponseTimeout <= 0 {
		mm.ResponseTimeout = 5 * time.Second
	}

	if len(c.Notifier.Sinks) == 0 {
		c.Notifier.Sinks = []string{"log"}
	}
	if c.Notifier.Workers <= 0 {
		c.Notifier.Workers = 1
	}
	if c.Notifier.QueueSize <= 0 {
		c.Notifier.QueueSize = 64
	}
	if c.Notifier.DispatchTimeout <= 0 {
		c.Notifier.DispatchTimeout = 10 * time.Second
	}
	if c.Notifier.MQTT.Topic == "" {
		c.Notifier.MQTT.Topic = "geofence/notifications"
	}
	if c.Notifier.AMQP.Exchange == "" {
		c.Notifier.AMQP.Exchange = "geofence.notifications"
	}

	if c.Geocoding.Timeout <= 0 {
		c.Geocoding.Timeout = 5 * time.Second
	}

	if c.Status.Topic == "" {
		c.Status.Topic = "geofence/status"
	}
	if c.Status.Interval <= 0 {
		c.Status.Interval = time.Minute
	}

	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.HTTP.ShutdownTimeout <= 0 {
		c.HTTP.ShutdownTimeout = 5 * time.Second
	}
}

// Validate rejects settings no component can run with.
func (c *Config) Validate() error {
	var errs []error

	switch c.Storage.Backend {
	case "file", "sqlite":
	case "redis":
		if c.Storage.Redis.Addr == "" {
			errs = append(errs, errors.New("storage.redis.addr is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage.backend %q", c.Storage.Backend))
	}

	needsBroker := c.Status.Enabled
	switch c.Monitor.Mode {
	case "local":
		if !c.Monitor.Local.SensorBased && c.Monitor.Local.MapsAPIKey == "" {
			errs = append(errs, errors.New("monitor.local.maps_api_key is required without sensor_based"))
		}
		if c.Monitor.Local.SensorBased && c.Monitor.Local.GPSDevicePort == "" {
			errs = append(errs, errors.New("monitor.local.gps_device_port is required with sensor_based"))
		}
	case "mqtt":
		needsBroker = true
	default:
		errs = append(errs, fmt.Errorf("unknown monitor.mode %q", c.Monitor.Mode))
	}

	for _, sink := range c.Notifier.Sinks {
		switch sink {
		case "log":
		case "mqtt":
			needsBroker = true
		case "amqp":
			if c.Notifier.AMQP.URL == "" {
				errs = append(errs, errors.New("notifier.amqp.url is required for the amqp sink"))
			}
		default:
			errs = append(errs, fmt.Errorf("unknown notifier sink %q", sink))
		}
	}

	if needsBroker && c.MQTT.Broker == "" {
		errs = append(errs, errors.New("mqtt.broker is required"))
	}
	if c.Geocoding.Enabled && c.Geocoding.MapsAPIKey == "" {
		errs = append(errs, errors.New("geocoding.maps_api_key is required when geocoding is enabled"))
	}

	return errors.Join(errs...)
}

// NeedsBroker reports whether any enabled component talks to the MQTT broker.
func (c *Config) NeedsBroker() bool {
	if c.Monitor.Mode == "mqtt" || c.Status.Enabled {
		return true
	}
	for _, sink := range c.Notifier.Sinks {
		if sink == "mqtt" {
			return true
		}
	}
	return false
}
