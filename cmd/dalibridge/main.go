// Lux Grid DALI Bridge
//
// This is the main entry point for the DALI bridge application.
// The bridge connects a DALI lighting bus to the Lux Grid MQTT bus:
//   - Frames received on the bus are published as JSON messages
//   - MQTT commands are transmitted on the bus
//   - Query/reply exchanges run over request/response topics
//   - Short addresses seen in traffic are recorded for commissioning
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/luxgrid/dalibridge/migrations"

	"github.com/luxgrid/dalibridge/internal/bridges/dali"
	"github.com/luxgrid/dalibridge/internal/infrastructure/config"
	"github.com/luxgrid/dalibridge/internal/infrastructure/database"
	"github.com/luxgrid/dalibridge/internal/infrastructure/influxdb"
	"github.com/luxgrid/dalibridge/internal/infrastructure/logging"
	"github.com/luxgrid/dalibridge/internal/infrastructure/mqtt"
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

// telemetryInterval is how often bus counters are written to InfluxDB.
const telemetryInterval = 30 * time.Second

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Run the application
	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting DALI bridge",
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
	db, err := database.Open(database.Config{
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

	// Start the frame recorder for passive address discovery
	recorder := dali.NewRecorder(db.DB)
	recorder.SetLogger(log)
	if startErr := recorder.Start(); startErr != nil {
		return fmt.Errorf("starting frame recorder: %w", startErr)
	}
	defer func() {
		log.Info("stopping frame recorder")
		recorder.Stop()
	}()

	// Open the bus transport
	transport, err := openTransport(cfg, log)
	if err != nil {
		return fmt.Errorf("opening bus transport: %w", err)
	}

	// Bind the interface on top of the transport
	iface := bindInterface(cfg, transport, log)
	defer func() {
		log.Info("closing bus interface")
		if closeErr := iface.Close(); closeErr != nil {
			log.Error("error closing bus interface", "error", closeErr)
		}
	}()
	log.Info("bus interface bound",
		"backend", cfg.Bus.Backend,
		"power_supply", iface.SupportsPower(),
	)

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
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// Set up MQTT logging callbacks
	mqttClient.SetLogger(log)
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		// Set up InfluxDB error callback
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})

		// Periodically write bus counters
		go writeTelemetry(ctx, influxClient, iface, cfg.Bridge.ID)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Create and start the bridge
	bridge, err := dali.NewBridge(dali.BridgeOptions{
		Bus:            cfg.Bridge.ID,
		Version:        version,
		MQTTClient:     &mqttBridgeAdapter{client: mqttClient},
		Interface:      iface,
		HealthInterval: cfg.GetHealthInterval(),
		Logger:         log,
		Recorder:       recorder,
	})
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}
	if startErr := bridge.Start(); startErr != nil {
		return fmt.Errorf("starting bridge: %w", startErr)
	}
	defer func() {
		log.Info("stopping bridge")
		bridge.Stop()
	}()
	log.Info("bridge started", "bus", cfg.Bridge.ID)

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls will run in reverse order:
	// 1. Bridge (stop publishing, unsubscribe)
	// 2. InfluxDB (if enabled)
	// 3. MQTT
	// 4. Bus interface (halts queue, closes transport)
	// 5. Frame recorder
	// 6. Database

	log.Info("DALI bridge stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses DALIBRIDGE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("DALIBRIDGE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// openTransport opens the configured bus transport backend.
//
// Parameters:
//   - cfg: Application configuration
//   - log: Logger instance
//
// Returns:
//   - dali.Transport: Open transport ready for Bind
//   - error: If the backend fails to open
func openTransport(cfg *config.Config, log *logging.Logger) (dali.Transport, error) {
	switch cfg.Bus.Backend {
	case "mock":
		log.Warn("using mock bus transport - no hardware attached")
		return dali.NewMockTransport(), nil
	default:
		log.Info("opening serial dongle",
			"port", cfg.Bus.Serial.Port,
			"baud", cfg.Bus.Serial.Baud,
		)
		return dali.OpenSerial(dali.SerialConfig{
			Port: cfg.Bus.Serial.Port,
			Baud: cfg.Bus.Serial.Baud,
		})
	}
}

// bindInterface binds a bus interface over the transport with options
// derived from config.
func bindInterface(cfg *config.Config, transport dali.Transport, log *logging.Logger) *dali.Interface {
	var opts []dali.Option
	if cfg.Bus.QueueCapacity > 0 {
		opts = append(opts, dali.WithQueueCapacity(cfg.Bus.QueueCapacity))
	}
	if rw := cfg.GetReplyWindow(); rw > 0 {
		opts = append(opts, dali.WithReplyWindow(rw))
	}

	iface := dali.Bind(transport, opts...)
	iface.SetLogger(log)
	return iface
}

// writeTelemetry periodically writes bus counters to InfluxDB until the
// context is cancelled.
func writeTelemetry(ctx context.Context, client *influxdb.Client, iface *dali.Interface, bus string) {
	ticker := time.NewTicker(telemetryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := iface.Stats()
			client.WriteBusStats(bus,
				stats.FramesTx,
				stats.FramesRx,
				stats.FramesDropped,
				stats.Queries,
				stats.QueryTimeouts,
			)
		}
	}
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	// Check database
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	// Check MQTT
	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	// Check InfluxDB (if enabled)
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	// Bus interface health is verified during Bind - the transport is
	// already open and the receive loop running before Start returns.

	return nil
}

// mqttBridgeAdapter adapts the infrastructure MQTT client to the DALI
// bridge's MQTTClient interface. The primary difference is the Subscribe
// handler signature:
//   - Infrastructure mqtt: func(topic string, payload []byte) error
//   - DALI bridge expects: func(topic string, payload []byte)
type mqttBridgeAdapter struct {
	client *mqtt.Client
}

// Publish implements dali.MQTTClient.
func (a *mqttBridgeAdapter) Publish(topic string, payload []byte, qos byte, retained bool) error {
	return a.client.Publish(topic, payload, qos, retained)
}

// Subscribe implements dali.MQTTClient.
func (a *mqttBridgeAdapter) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	// Wrap the void handler to return nil error (bridge handlers don't return errors)
	return a.client.Subscribe(topic, qos, func(t string, p []byte) error {
		handler(t, p)
		return nil
	})
}

// IsConnected implements dali.MQTTClient.
func (a *mqttBridgeAdapter) IsConnected() bool {
	return a.client.IsConnected()
}

// Disconnect implements dali.MQTTClient.
// The MQTT client lifecycle is managed by run's defer chain, so this is
// a no-op.
func (a *mqttBridgeAdapter) Disconnect(_ uint) {}
