package service_registry

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/benmeehan/geofence-agent/internal/constants"
	"github.com/benmeehan/geofence-agent/internal/geofence"
	handler "github.com/benmeehan/geofence-agent/internal/handler/http"
	"github.com/benmeehan/geofence-agent/internal/metrics"
	"github.com/benmeehan/geofence-agent/internal/registry"
	"github.com/benmeehan/geofence-agent/internal/services"
	"github.com/benmeehan/geofence-agent/internal/state_managers"
	"github.com/benmeehan/geofence-agent/internal/utils"
	"github.com/benmeehan/geofence-agent/pkg/file"
	"github.com/benmeehan/geofence-agent/pkg/geocoding"
	"github.com/benmeehan/geofence-agent/pkg/location"
	"github.com/benmeehan/geofence-agent/pkg/mqtt"
)

// Service is re-exported for callers registering their own services.
type Service = registry.Service

type namedCloser struct {
	name  string
	close func() error
}

// ServiceRegistry manages the lifecycle of various services in the system.
type ServiceRegistry struct {
	services    map[string]Service // Stores registered services
	serviceKeys []string           // Maintains order of service registration
	closers     []namedCloser      // Shared resources, closed in reverse order after services stop

	mqttClient mqtt.MQTTClient // nil when no component needs the broker
	broker     services.Broker // Middleware chain over mqttClient
	fileClient file.FileOperations
	prometheus *prometheus.Registry
	geofence   *services.GeofenceService
	Logger     zerolog.Logger
}

// NewServiceRegistry initializes a new service registry with dependencies.
func NewServiceRegistry(mqttClient mqtt.MQTTClient, fileClient file.FileOperations, logger zerolog.Logger) *ServiceRegistry {
	return &ServiceRegistry{
		services:   make(map[string]Service),
		mqttClient: mqttClient,
		fileClient: fileClient,
		prometheus: prometheus.NewRegistry(),
		Logger:     logger,
	}
}

// RegisterService adds a new service to the registry.
func (sr *ServiceRegistry) RegisterService(name string, svc Service) {
	if _, exists := sr.services[name]; exists {
		sr.Logger.Warn().Msgf("Service %s is already registered", name)
		return
	}
	sr.services[name] = svc
	sr.serviceKeys = append(sr.serviceKeys, name)
	sr.Logger.Info().Msgf("Registered service: %s", name)
}

// ServiceNames returns the registered services in start order.
func (sr *ServiceRegistry) ServiceNames() []string {
	return append([]string(nil), sr.serviceKeys...)
}

// Geofence returns the configuration service once RegisterServices succeeded.
func (sr *ServiceRegistry) Geofence() *services.GeofenceService {
	return sr.geofence
}

// StartServices initiates all registered services in order.
// If a service fails to start, it stops already started services.
func (sr *ServiceRegistry) StartServices() error {
	startedServices := []string{}

	for _, name := range sr.serviceKeys {
		svc := sr.services[name]
		sr.Logger.Info().Msgf("Starting service: %s", name)
		if err := svc.Start(); err != nil {
			sr.Logger.Error().Err(err).Msgf("Failed to start service: %s", name)

			// Stop already started services before returning
			sr.Logger.Warn().Msg("Stopping already started services due to startup failure...")
			for i := len(startedServices) - 1; i >= 0; i-- {
				_ = sr.services[startedServices[i]].Stop()
			}
			return fmt.Errorf("failed to start %s: %w", name, err)
		}
		startedServices = append(startedServices, name)
	}

	return nil
}

// StopServices stops all services in reverse order.
func (sr *ServiceRegistry) StopServices() error {
	var stopErrors []error
	for i := len(sr.serviceKeys) - 1; i >= 0; i-- {
		name := sr.serviceKeys[i]
		if err := sr.services[name].Stop(); err != nil {
			stopErrors = append(stopErrors, fmt.Errorf("failed to stop %s: %w", name, err))
		}
	}
	if len(stopErrors) > 0 {
		for _, e := range stopErrors {
			sr.Logger.Error().Err(e).Msg("Service stop failure")
		}
		return errors.Join(stopErrors...)
	}
	return nil
}

// Close releases shared resources such as the state store and the AMQP
// connection. Call it after StopServices.
func (sr *ServiceRegistry) Close() error {
	var errs []error
	for i := len(sr.closers) - 1; i >= 0; i-- {
		c := sr.closers[i]
		if err := c.close(); err != nil {
			sr.Logger.Error().Err(err).Str("resource", c.name).Msg("Failed to close resource")
			errs = append(errs, fmt.Errorf("failed to close %s: %w", c.name, err))
		}
	}
	sr.closers = nil
	return errors.Join(errs...)
}

func (sr *ServiceRegistry) addCloser(name string, fn func() error) {
	sr.closers = append(sr.closers, namedCloser{name: name, close: fn})
}

// RegisterServices builds the storage, notification, monitoring and
// configuration components and registers them in start order. On error the
// resources opened so far are closed.
func (sr *ServiceRegistry) RegisterServices(ctx context.Context, config *utils.Config) (err error) {
	defer func() {
		if err != nil {
			_ = sr.Close()
		}
	}()

	if config.NeedsBroker() {
		if sr.mqttClient == nil {
			return errors.New("configuration needs an MQTT broker but no client was provided")
		}
		if sr.broker, err = sr.InitializeMiddlewares(config); err != nil {
			return err
		}
	}

	m := metrics.New(sr.prometheus)
	sr.prometheus.MustRegister(
		collectors.NewGoCollector(),
		metrics.NewHostCollector(storageDir(config.Storage), sr.Logger.With().Str("collector", "host").Logger()),
	)

	stateManager, err := state_managers.NewStateManager(ctx, config.Storage, sr.fileClient, sr.Logger)
	if err != nil {
		return fmt.Errorf("failed to open %s storage: %w", config.Storage.Backend, err)
	}
	sr.addCloser("storage", stateManager.Close)
	store := geofence.NewStore(stateManager, sr.Logger)

	var amqpConn *amqp.Connection
	notifier, err := sr.buildNotifier(config, &amqpConn)
	if err != nil {
		return err
	}

	processor := services.NewTransitionProcessor(
		notifier,
		config.Notifier.QueueSize,
		config.Notifier.Workers,
		config.Notifier.DispatchTimeout,
		m,
		sr.Logger.With().Str("service", "processor").Logger(),
	)

	monitor, err := sr.buildMonitor(config)
	if err != nil {
		return err
	}
	if err := monitor.SetEventHandler(processor.Deliver); err != nil {
		return err
	}

	var geocoder geocoding.Geocoder
	if config.Geocoding.Enabled {
		g, err := geocoding.NewGoogleGeocoder(config.Geocoding.MapsAPIKey, config.Geocoding.Language)
		if err != nil {
			return fmt.Errorf("failed to create geocoder: %w", err)
		}
		geocoder = g
	}

	// A remote registration may take every attempt plus the backoff between them.
	registrationTimeout := constants.DefaultRegistrationTimeout
	if config.Monitor.Mode == "mqtt" {
		mc := config.Monitor.MQTT
		registrationTimeout = time.Duration(mc.MaxRetries) * (mc.ResponseTimeout + mc.MaxBackoff)
	}

	sr.geofence = services.NewGeofenceService(
		store,
		monitor,
		processor,
		geocoder,
		registrationTimeout,
		config.Geocoding.Timeout,
		m,
		sr.Logger.With().Str("service", "geofence").Logger(),
	)

	// Ordered service definitions with inline constructors
	servicesInOrder := []struct {
		name        string
		enabled     bool
		constructor func() (Service, error)
	}{
		{
			name:        "processor",
			enabled:     true,
			constructor: func() (Service, error) { return processor, nil },
		},
		{
			name:        "monitor",
			enabled:     true,
			constructor: func() (Service, error) { return monitor, nil },
		},
		{
			name:        "geofence",
			enabled:     true,
			constructor: func() (Service, error) { return sr.geofence, nil },
		},
		{
			name:    "status",
			enabled: config.Status.Enabled,
			constructor: func() (Service, error) {
				return services.NewStatusService(
					config.Status.Topic,
					config.Status.Interval,
					config.MQTT.ClientID,
					config.Status.QOS,
					sr.broker,
					processor,
					sr.Logger.With().Str("service", "status").Logger(),
				), nil
			},
		},
		{
			name:    "http",
			enabled: config.HTTP.Enabled,
			constructor: func() (Service, error) {
				return handler.NewServer(
					config.HTTP.Addr,
					config.HTTP.ShutdownTimeout,
					handler.NewGeofenceHandler(sr.geofence),
					handler.NewHealthChecker(sr.healthChecks(stateManager, amqpConn)...),
					sr.prometheus,
					sr.Logger.With().Str("service", "http").Logger(),
				), nil
			},
		},
	}

	// Register services in the predefined order
	registeredServices := []string{}
	for _, svc := range servicesInOrder {
		if svc.enabled {
			serviceInstance, err := svc.constructor()
			if err != nil {
				sr.Logger.Error().Err(err).Msgf("Failed to create %s service", svc.name)
				return err
			}
			sr.RegisterService(svc.name, serviceInstance)
			registeredServices = append(registeredServices, svc.name)
		}
	}

	sr.Logger.Info().Msgf("Registered services in order: %v", registeredServices)
	return nil
}

// monitorService is a Monitor with a lifecycle.
type monitorService interface {
	services.Monitor
	Service
}

func (sr *ServiceRegistry) buildMonitor(config *utils.Config) (monitorService, error) {
	switch config.Monitor.Mode {
	case "mqtt":
		mc := config.Monitor.MQTT
		return services.NewMQTTMonitor(
			config.MQTT.ClientID,
			mc.RegistrationTopic,
			mc.ResponseTopic,
			mc.EventsTopic,
			mc.QOS,
			mc.MaxRetries,
			mc.BaseDelay,
			mc.MaxBackoff,
			mc.ResponseTimeout,
			sr.broker,
			sr.Logger.With().Str("service", "monitor").Logger(),
		), nil

	case "local", "":
		lc := config.Monitor.Local
		var provider location.Provider
		if lc.SensorBased {
			provider = location.NewDeviceSensorProvider(lc.GPSDevicePort, lc.GPSDeviceBaudRate)
		} else {
			p, err := location.NewGoogleGeolocationProvider(lc.MapsAPIKey, lc.Timeout)
			if err != nil {
				sr.Logger.Error().Err(err).Msg("failed to create Google Geolocation provider")
				return nil, err
			}
			provider = p
		}
		return services.NewLocalMonitor(provider, lc.Interval, lc.Timeout, sr.Logger.With().Str("service", "monitor").Logger()), nil

	default:
		return nil, fmt.Errorf("unknown monitor mode %q", config.Monitor.Mode)
	}
}

// buildNotifier assembles the configured sinks. The AMQP connection, when
// opened, is returned through amqpConn for health checks.
func (sr *ServiceRegistry) buildNotifier(config *utils.Config, amqpConn **amqp.Connection) (services.Notifier, error) {
	var group services.NotifierGroup
	for _, sink := range config.Notifier.Sinks {
		switch sink {
		case "log":
			group = append(group, services.NewLogNotifier(sr.Logger.With().Str("sink", "log").Logger()))
		case "mqtt":
			group = append(group, services.NewMQTTNotifier(config.Notifier.MQTT.Topic, config.Notifier.MQTT.QOS, sr.broker))
		case "amqp":
			conn, err := amqp.Dial(config.Notifier.AMQP.URL)
			if err != nil {
				return nil, fmt.Errorf("rabbitmq: %w", err)
			}
			sr.addCloser("amqp", conn.Close)
			n, err := services.NewAMQPNotifier(conn, config.Notifier.AMQP.Exchange)
			if err != nil {
				return nil, err
			}
			sr.addCloser("amqp channel", n.Close)
			*amqpConn = conn
			group = append(group, n)
		default:
			return nil, fmt.Errorf("unknown notifier sink %q", sink)
		}
	}

	if len(group) == 1 {
		return group[0], nil
	}
	return group, nil
}

func (sr *ServiceRegistry) healthChecks(stateManager state_managers.StateManager, amqpConn *amqp.Connection) []handler.Check {
	checks := []handler.Check{{Name: "storage", Fn: stateManager.Ping}}

	if conn, ok := sr.mqttClient.(interface{ IsConnected() bool }); ok && sr.broker != nil {
		checks = append(checks, handler.Check{Name: "mqtt", Fn: func(context.Context) error {
			if !conn.IsConnected() {
				return errors.New("not connected")
			}
			return nil
		}})
	}

	if amqpConn != nil {
		checks = append(checks, handler.Check{Name: "rabbitmq", Fn: func(context.Context) error {
			if amqpConn.IsClosed() {
				return errors.New("connection closed")
			}
			return nil
		}})
	}
	return checks
}

// storageDir is the directory whose filesystem usage is exported.
func storageDir(cfg utils.StorageConfig) string {
	switch cfg.Backend {
	case state_managers.BackendSQLite:
		return filepath.Dir(cfg.SQLite.Path)
	case state_managers.BackendFile, "":
		return filepath.Dir(cfg.File.Path)
	default:
		return "/"
	}
}
