package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/fleetops/backoffice/internal/auth"
	"github.com/fleetops/backoffice/internal/config"
	"github.com/fleetops/backoffice/internal/db"
	"github.com/fleetops/backoffice/internal/driver"
	"github.com/fleetops/backoffice/internal/events"
	"github.com/fleetops/backoffice/internal/handlers"
	"github.com/fleetops/backoffice/internal/identity"
	"github.com/fleetops/backoffice/internal/ingest"
	"github.com/fleetops/backoffice/internal/metrics"
	"github.com/fleetops/backoffice/internal/middleware"
	"github.com/fleetops/backoffice/internal/models"
	"github.com/fleetops/backoffice/internal/mqttbridge"
)

func main() {
	// .env is optional; real deployments use the environment directly
	_ = godotenv.Load()

	log.SetFormatter(&log.JSONFormatter{})
	log.SetOutput(os.Stdout)

	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	connectCtx, connectCancel := context.WithTimeout(ctx, 15*time.Second)
	defer connectCancel()

	client, err := db.ConnectMongo(connectCtx, cfg.MongoURI)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to MongoDB")
	}
	defer func() {
		if err := client.Disconnect(context.Background()); err != nil {
			log.WithError(err).Error("Failed to disconnect from MongoDB")
		}
	}()

	database := client.Database(cfg.MongoDBName)
	if err := db.EnsureIndexes(connectCtx, database); err != nil {
		log.WithError(err).Fatal("Failed to ensure indexes")
	}
	log.WithField("database", cfg.MongoDBName).Info("Connected to MongoDB")

	// Redis is optional; without it driver lookups and device auth hit the
	// backing stores every time.
	var cache *redis.Client
	if cfg.RedisAddr != "" {
		cache = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := cache.Ping(connectCtx).Err(); err != nil {
			log.WithError(err).Warn("Redis unreachable, continuing without cache")
			cache = nil
		}
	}

	trucks := &db.MongoTruckCollection{Collection: database.Collection(db.CollTrucks)}
	towables := &db.MongoTowableCollection{Collection: database.Collection(db.CollTowables)}
	thermometers := &db.MongoThermometerCollection{Collection: database.Collection(db.CollThermometers)}
	temperatures := &db.MongoTemperatureReadingCollection{Collection: database.Collection(db.CollTemperatureReadings)}
	driveStates := &db.MongoDriveStateCollection{Collection: database.Collection(db.CollTruckDriveStates)}
	odometers := &db.MongoOdometerCollection{Collection: database.Collection(db.CollTruckOdometer)}
	locations := &db.MongoLocationCollection{
		Locations: database.Collection(db.CollTruckLocations),
		Speeds:    database.Collection(db.CollTruckSpeeds),
	}
	credentials := &db.MongoDeviceCredentialCollection{Collection: database.Collection(db.CollDeviceCredentials)}

	drivers := driver.NewClient(
		cfg.DriverAPIBaseURL,
		time.Duration(cfg.DriverAPITimeoutMS)*time.Millisecond,
		cache,
		time.Duration(cfg.DriverCacheTTLSeconds)*time.Second,
	)

	// Work-event publication: MQTT when a broker is configured, logs
	// otherwise.
	var mqttClient mqtt.Client
	var sink events.Sink = events.LogSink{}
	if cfg.MQTTBrokerURL != "" {
		opts := mqtt.NewClientOptions().
			AddBroker(cfg.MQTTBrokerURL).
			SetClientID(cfg.MQTTClientID).
			SetAutoReconnect(true).
			SetConnectTimeout(10 * time.Second)
		mqttClient = mqtt.NewClient(opts)
		if token := mqttClient.Connect(); token.WaitTimeout(15*time.Second) && token.Error() == nil {
			sink = events.NewMQTTSink(mqttClient, cfg.WorkEventTopic, 10*time.Second)
			log.WithField("broker", cfg.MQTTBrokerURL).Info("Connected to MQTT broker")
		} else {
			log.WithError(token.Error()).Warn("MQTT broker unreachable, logging work events instead")
			mqttClient = nil
		}
	}

	bus := events.NewBus(cfg.EventBufferSize, sink)
	go bus.Run(ctx)

	resolver := identity.NewResolver(thermometers, trucks, towables)
	service := ingest.NewService(temperatures, driveStates, odometers, locations, drivers, events.NewDeriver(bus))
	gateway := ingest.NewGateway(trucks, towables, resolver, service)

	authService := auth.NewService(cfg.JWTSecret, 24*time.Hour)
	authMiddleware := middleware.NewAuthMiddleware(authService)
	deviceAuth := middleware.NewDeviceAuthMiddleware(authService, credentials, cache, time.Duration(cfg.AuthCacheTTLSeconds)*time.Second)
	rateLimiter := middleware.NewRateLimitMiddleware()

	telemetryHandler := handlers.NewTelemetryHandler(gateway)
	thermometerHandler := handlers.NewThermometerHandler(thermometers)
	deviceHandler := handlers.NewDeviceHandler(authService, credentials)

	mux := http.NewServeMux()

	// Device uplink routes
	deviceChain := func(h http.HandlerFunc) http.Handler {
		return deviceAuth.Authenticate(rateLimiter.RateLimit(120, 60)(h))
	}
	mux.Handle("/api/v1/telemetry/temperature", deviceChain(telemetryHandler.IngestTemperature))
	mux.Handle("/api/v1/telemetry/odometer", deviceChain(telemetryHandler.IngestOdometer))
	mux.Handle("/api/v1/telemetry/drive-state", deviceChain(telemetryHandler.IngestDriveState))
	mux.Handle("/api/v1/telemetry/location", deviceChain(telemetryHandler.IngestLocation))

	// Back-office routes
	mux.Handle("/api/v1/thermometers", authMiddleware.Authenticate(http.HandlerFunc(thermometerHandler.ListActive)))
	mux.Handle("/api/v1/thermometers/{id}", authMiddleware.Authenticate(
		authMiddleware.RequireRole(models.RoleManager)(http.HandlerFunc(thermometerHandler.Rename)),
	))
	mux.Handle("/api/v1/devices/keys", authMiddleware.Authenticate(
		authMiddleware.RequireRole(models.RoleAdmin)(http.HandlerFunc(deviceHandler.ProvisionKey)),
	))

	mux.HandleFunc("/metrics", metrics.HandleMetrics)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// MQTT uplink bridge shares the gateway with the HTTP routes
	if mqttClient != nil {
		bridge := mqttbridge.New(mqttClient, cfg.UplinkTopic, gateway, 10*time.Second)
		if err := bridge.Start(); err != nil {
			log.WithError(err).Warn("Failed to start MQTT uplink bridge")
		} else {
			defer bridge.Stop()
		}
	}

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.WithField("port", cfg.Port).Info("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("HTTP server shutdown failed")
	}
	cancel()
	if mqttClient != nil {
		mqttClient.Disconnect(250)
	}
}
