package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-syncsign/internal/audit"
	"github.com/nerrad567/gray-logic-syncsign/internal/configentry"
	"github.com/nerrad567/gray-logic-syncsign/internal/entity"
	"github.com/nerrad567/gray-logic-syncsign/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-syncsign/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-syncsign/migrations"
)

const (
	// defaultConfigPath is used when neither --config nor SYNCSIGN_CONFIG is set.
	defaultConfigPath = "configs/config.yaml"

	// configEnv names the environment variable holding the config path.
	configEnv = config.EnvPrefix + "CONFIG"
)

// configFlag holds the --config value
var configFlag string

// rootCmd is the base command
var rootCmd = &cobra.Command{
	Use:   "syncsign-bridge",
	Short: "SyncSign eInk fleet bridge for Gray Logic",
	Long: `Bridge SyncSign cloud accounts onto the Gray Logic bus.

Every hub and display node of a configured account becomes a connectivity
entity, published over MQTT and served by the HTTP API. Display updates
arrive as MQTT commands or API calls and are forwarded to the cloud.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "",
		"config file (default $"+configEnv+" or "+defaultConfigPath+")")
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// configPath resolves the configuration file: flag, then environment, then default.
func configPath() string {
	if configFlag != "" {
		return configFlag
	}
	if path := os.Getenv(configEnv); path != "" {
		return path
	}
	return defaultConfigPath
}

// loadConfig loads and validates the resolved configuration file.
func loadConfig() (*config.Config, error) {
	path := configPath()
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config %s: %w", path, err)
	}
	return cfg, nil
}

// stores bundles the persistent state used by the offline commands.
type stores struct {
	db       *database.DB
	entries  *configentry.SQLiteRepository
	entities *entity.SQLiteRepository
	audit    *audit.SQLiteRepository
}

// openStores opens the database, applies pending migrations and wraps the
// repositories. The caller closes db.
func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Migrate(ctx, migrations.FS, migrations.Dir); err != nil {
		db.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return &stores{
		db:       db,
		entries:  configentry.NewSQLiteRepository(db.DB),
		entities: entity.NewSQLiteRepository(db.DB),
		audit:    audit.NewSQLiteRepository(db.DB),
	}, nil
}

// record writes an audit record for a CLI action. Failures are reported on
// stderr only; the action itself already happened.
func (st *stores) record(ctx context.Context, action, targetID string, details map[string]any) {
	rec := &audit.Record{
		Action:     action,
		TargetType: audit.TargetEntry,
		TargetID:   targetID,
		Actor:      os.Getenv("USER"),
		Source:     audit.SourceCLI,
		OK:         true,
		Details:    details,
	}
	if err := st.audit.Create(ctx, rec); err != nil {
		fmt.Fprintf(os.Stderr, "warning: audit log write failed: %v\n", err)
	}
}
