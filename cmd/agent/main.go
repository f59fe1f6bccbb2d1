package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/benmeehan/geofence-agent/internal/service_registry"
	"github.com/benmeehan/geofence-agent/internal/utils"
	"github.com/benmeehan/geofence-agent/pkg/file"
	"github.com/benmeehan/geofence-agent/pkg/mqtt"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// Bootstrap logger until the logging section is known
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	// Initialize file operations handler
	fileClient := file.NewFileService()

	// Load configuration from file
	config, err := utils.LoadConfig(*configPath, fileClient)
	if err != nil {
		logger.Fatal().Err(err).Str("path", *configPath).Msg("Failed to load configuration")
	}
	logger = utils.NewLogger(config.Logging, os.Stdout)

	// Generate a unique MQTT Client ID by appending a UUID
	config.MQTT.ClientID = config.MQTT.ClientID + "-" + uuid.New().String()
	logger = logger.With().Str("client_id", config.MQTT.ClientID).Logger()
	logger.Info().Msg("Using MQTT Client ID")

	// Initialize the shared MQTT connection when a component needs it
	var mqttClient mqtt.MQTTClient
	if config.NeedsBroker() {
		mqttService := mqtt.NewMqttService(fileClient)
		err = mqttService.Initialize(mqtt.Options{
			Broker:         config.MQTT.Broker,
			ClientID:       config.MQTT.ClientID,
			Username:       config.MQTT.Username,
			Password:       config.MQTT.Password,
			CACertificate:  config.MQTT.CACertificate,
			ConnectTimeout: config.MQTT.ConnectTimeout,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to initialize MQTT connection")
		}
		defer mqttService.Disconnect(250)
		mqttClient = mqttService
	}

	// Create a new service registry to manage services
	serviceRegistry := service_registry.NewServiceRegistry(mqttClient, fileClient, logger)

	// Register all services based on the configuration
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	err = serviceRegistry.RegisterServices(ctx, config)
	cancel()
	if err != nil {
		logger.Error().Err(err).Msg("Failed to register services")
		return
	}
	defer serviceRegistry.Close()

	// Start all registered services in the registry
	if err := serviceRegistry.StartServices(); err != nil {
		logger.Error().Err(err).Msg("Failed to start services")
		return
	}
	logger.Info().Msg("All services started successfully")

	// Handle graceful shutdown
	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-stopCh

	logger.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")
	if err := serviceRegistry.StopServices(); err != nil {
		logger.Error().Err(err).Msg("Some services failed to stop")
	}
}
