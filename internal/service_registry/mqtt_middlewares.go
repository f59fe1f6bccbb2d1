package service_registry

import (
	"fmt"

	"github.com/benmeehan/geofence-agent/internal/constants"
	mqtt_middleware "github.com/benmeehan/geofence-agent/internal/middlewares/mqtt"
	"github.com/benmeehan/geofence-agent/internal/utils"
)

// InitializeMiddlewares sets up the middleware chain based on configuration.
func (sr *ServiceRegistry) InitializeMiddlewares(config *utils.Config) (mqtt_middleware.MQTTMiddleware, error) {
	var middlewares []mqtt_middleware.MQTTMiddleware

	// Ordered middleware definitions
	middlewaresInOrder := []struct {
		name        string
		enabled     bool
		constructor func() (mqtt_middleware.MQTTMiddleware, error)
	}{
		{
			name:    constants.LOGGING_MIDDLEWARE,
			enabled: true,
			constructor: func() (mqtt_middleware.MQTTMiddleware, error) {
				return mqtt_middleware.NewLoggingMiddleware(sr.Logger), nil
			},
		},
	}

	// Initialize middlewares in order
	for _, mw := range middlewaresInOrder {
		if mw.enabled {
			middlewareInstance, err := mw.constructor()
			if err != nil {
				sr.Logger.Error().Err(err).Msgf("Failed to initialize %s middleware", mw.name)
				return nil, fmt.Errorf("failed to initialize %s middleware: %w", mw.name, err)
			}
			middlewares = append(middlewares, middlewareInstance)
			sr.Logger.Info().Str("middleware", mw.name).Msg("Middleware initialized")
		} else {
			sr.Logger.Debug().Str("middleware", mw.name).Msg("Middleware is disabled, skipping")
		}
	}

	// Create and return chained MQTT client
	chainedClient := mqtt_middleware.NewChainedMQTTClient(sr.mqttClient, config.MQTT.OperationTimeout, middlewares)
	if err := chainedClient.Init(nil); err != nil {
		return nil, err
	}
	sr.Logger.Info().Int("middleware_count", len(middlewares)).Msg("Middleware chain initialized")
	return chainedClient, nil
}
