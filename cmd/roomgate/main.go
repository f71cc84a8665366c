// Roomgate Core - Access-Gated Room Power Control
//
// This is the main entry point for the Roomgate Core service. It sits
// between the upstream booking platform and the per-room power relays:
//   - Decides door-open eligibility from booking state and time
//   - Schedules durable power-off tasks after each booking's end buffer
//   - Records every decision and relay outcome in an append-only audit trail
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/oakline/roomgate-core/migrations"

	"github.com/oakline/roomgate-core/internal/access"
	"github.com/oakline/roomgate-core/internal/api"
	"github.com/oakline/roomgate-core/internal/audit"
	"github.com/oakline/roomgate-core/internal/booking"
	"github.com/oakline/roomgate-core/internal/infrastructure/config"
	"github.com/oakline/roomgate-core/internal/infrastructure/database"
	"github.com/oakline/roomgate-core/internal/infrastructure/influxdb"
	"github.com/oakline/roomgate-core/internal/infrastructure/logging"
	"github.com/oakline/roomgate-core/internal/infrastructure/mqtt"
	"github.com/oakline/roomgate-core/internal/poweroff"
	"github.com/oakline/roomgate-core/internal/relay"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Cancel on interrupt signals (Ctrl+C, SIGTERM) for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Roomgate Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Connect to MQTT broker
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log)
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// Connect to InfluxDB (optional). A nil client disables metrics
	// writes everywhere downstream.
	influxClient, err := influxdb.Connect(cfg.InfluxDB)
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		influxClient = nil
		log.Info("InfluxDB disabled")
	case err != nil:
		return fmt.Errorf("connecting to InfluxDB: %w", err)
	default:
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	}

	// Repositories
	bookingRepo := booking.NewSQLiteRepository(db.DB)
	taskRepo := poweroff.NewSQLiteRepository(db.DB)
	auditRepo := audit.NewSQLiteRepository(db.DB)

	// Relay controller: power commands over MQTT with ack correlation
	relayController := relay.NewMQTTController(mqttClient, cfg.GetRelayAckTimeout(), log)
	if startErr := relayController.Start(); startErr != nil {
		return fmt.Errorf("starting relay controller: %w", startErr)
	}
	log.Info("relay controller started", "ack_timeout", cfg.GetRelayAckTimeout())

	// Power-off scheduler: durable task queue with startup recovery
	executor := poweroff.NewExecutor(relayController, taskRepo, auditRepo, influxClient, log)
	scheduler := poweroff.NewScheduler(poweroff.SchedulerConfig{
		PollInterval:  cfg.GetPollInterval(),
		RecoverySkew:  cfg.GetRecoverySkew(),
		MaxConcurrent: int64(cfg.Scheduler.MaxConcurrent),
	}, taskRepo, executor, auditRepo, influxClient, log)
	if startErr := scheduler.Start(ctx); startErr != nil {
		return fmt.Errorf("starting power-off scheduler: %w", startErr)
	}
	defer func() {
		log.Info("stopping power-off scheduler")
		if closeErr := scheduler.Close(); closeErr != nil {
			log.Error("error stopping scheduler", "error", closeErr)
		}
	}()

	// Booking event consumer: cancellations and end-time changes from
	// the upstream platform
	eventConsumer := booking.NewEventConsumer(bookingRepo, scheduler, mqttClient, log)
	if startErr := eventConsumer.Start(); startErr != nil {
		return fmt.Errorf("starting booking event consumer: %w", startErr)
	}
	log.Info("booking event consumer started")

	// Access validator: the door-open decision engine
	validator := access.NewValidator(bookingRepo, auditRepo, scheduler, influxClient, log)

	// Management API
	apiServer, err := api.New(api.Deps{
		Config:    cfg.API,
		Security:  cfg.Security,
		Logger:    log,
		Validator: validator,
		Scheduler: scheduler,
		Audits:    auditRepo,
		Bookings:  bookingRepo,
		MQTT:      mqttClient,
		DB:        db,
		Version:   version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := apiServer.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient, apiServer); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server (stop accepting requests)
	// 2. Scheduler (finish in-flight power-offs)
	// 3. InfluxDB (if enabled)
	// 4. MQTT
	// 5. Database

	log.Info("Roomgate Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses ROOMGATE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("ROOMGATE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
// influxClient may be nil when metrics are disabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client, apiServer *api.Server) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	if err := apiServer.HealthCheck(ctx); err != nil {
		return fmt.Errorf("api: %w", err)
	}
	return nil
}
