package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-syncsign/internal/api"
	"github.com/nerrad567/gray-logic-syncsign/internal/audit"
	"github.com/nerrad567/gray-logic-syncsign/internal/bridges/syncsign"
	"github.com/nerrad567/gray-logic-syncsign/internal/configentry"
	"github.com/nerrad567/gray-logic-syncsign/internal/entity"
	"github.com/nerrad567/gray-logic-syncsign/internal/fleet"
	"github.com/nerrad567/gray-logic-syncsign/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-syncsign/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-syncsign/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-syncsign/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-syncsign/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-syncsign/migrations"
)

// serveCmd runs the bridge
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the bridge until interrupted",
	Long: `Start the SyncSign bridge.

Loads every stored account, connects to MQTT (and InfluxDB when enabled),
polls the fleet on schedule and serves the HTTP API. Stops cleanly on
SIGINT or SIGTERM.

Examples:
  syncsign-bridge serve
  syncsign-bridge serve --config /etc/syncsign/config.yaml`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		return run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// run wires the bridge and blocks until ctx is cancelled. Resources are
// released in reverse order of acquisition.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting SyncSign bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log.Info("configuration loaded", "path", configPath())

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	db, err := database.Open(ctx, cfg.Database)
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

	if migrateErr := db.Migrate(ctx, migrations.FS, migrations.Dir); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	registry := entity.NewRegistry(entity.NewSQLiteRepository(db.DB))
	registry.SetLogger(log)
	if refreshErr := registry.RefreshCache(ctx); refreshErr != nil {
		return fmt.Errorf("loading entity registry: %w", refreshErr)
	}
	log.Info("entity registry initialised", "entities", len(registry.List()))

	entries := configentry.NewSQLiteRepository(db.DB)

	// The reporter must exist before the connect so its will is registered.
	health := syncsign.NewHealthReporter(cfg.Bridge.ID, version)

	mqttClient, err := mqtt.Connect(cfg.MQTT, health.Presence())
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

	influxClient, err := connectInflux(cfg.InfluxDB, log)
	if err != nil {
		return err
	}
	var metrics syncsign.MetricsWriter
	if influxClient != nil {
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		metrics = influxClient
	}

	exec, err := fleet.NewExecutor(cfg.SyncSign.WorkerPoolSize)
	if err != nil {
		return fmt.Errorf("creating worker pool: %w", err)
	}
	defer exec.Release()

	bridge, err := syncsign.NewBridge(syncsign.BridgeOptions{
		Config:     cfg.SyncSign,
		BridgeID:   cfg.Bridge.ID,
		Version:    version,
		MQTTClient: mqttClient,
		Entries:    entries,
		Registry:   registry,
		Factory:    newFactory(cfg.SyncSign),
		Executor:   exec,
		Health:     health,
		Metrics:    metrics,
		Logger:     log.With("component", "syncsign"),
	})
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}

	var apiServer *api.Server
	if cfg.API.Enabled {
		// Created before Start so the first published states reach the hub.
		apiServer, err = api.New(api.Deps{
			Config:   cfg.API,
			WS:       cfg.WebSocket,
			Security: cfg.Security,
			Logger:   log,
			Bridge:   bridge,
			Entries:  entries,
			MQTT:     mqttClient,
			DB:       db,
			Audit:    audit.NewSQLiteRepository(db.DB),
			Version:  version,
		})
		if err != nil {
			return fmt.Errorf("creating API server: %w", err)
		}
	}

	if err := bridge.Start(ctx); err != nil {
		bridge.Stop()
		return fmt.Errorf("starting bridge: %w", err)
	}
	defer func() {
		log.Info("stopping SyncSign bridge")
		bridge.Stop()
	}()

	if apiServer != nil {
		if err := apiServer.Start(ctx); err != nil {
			return fmt.Errorf("starting API server: %w", err)
		}
		defer func() {
			if closeErr := apiServer.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("API server disabled")
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	return nil
}

// connectInflux returns nil without error when telemetry is disabled.
func connectInflux(cfg config.InfluxDBConfig, log *logging.Logger) (*influxdb.Client, error) {
	client, err := influxdb.Connect(cfg)
	if errors.Is(err, influxdb.ErrDisabled) {
		log.Info("InfluxDB disabled")
		return nil, nil //nolint:nilnil // disabled is not an error
	}
	if err != nil {
		return nil, fmt.Errorf("connecting to InfluxDB: %w", err)
	}
	client.SetOnError(func(err error) {
		log.Error("InfluxDB write error", "error", err)
	})
	log.Info("InfluxDB connected",
		"url", cfg.URL,
		"org", cfg.Org,
		"bucket", cfg.Bucket,
	)
	return client, nil
}

// newFactory builds fleet clients against the configured endpoint.
func newFactory(cfg config.SyncSignConfig) fleet.Factory {
	return fleet.NewFactory(
		fleet.WithBaseURL(cfg.BaseURL),
		fleet.WithTimeout(cfg.RequestTimeout),
		fleet.WithUserAgent("syncsign-bridge/"+version),
	)
}

// healthCheck verifies every infrastructure connection. influxClient may be nil.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
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
	return nil
}
