package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-syncsign/internal/fleet"
	"github.com/nerrad567/gray-logic-syncsign/internal/infrastructure/config"
)

// apiKeyEnv supplies the API key when no argument is given.
const apiKeyEnv = config.EnvPrefix + "API_KEY"

// validateCmd checks an API key without storing it
var validateCmd = &cobra.Command{
	Use:   "validate [api-key]",
	Short: "Check a SyncSign API key",
	Long: `Validate a SyncSign API key against the cloud and print the account.

The key is taken from the argument or from $` + apiKeyEnv + `. Nothing is stored.
The reported code is one of cannot_connect, invalid_auth or unknown.

Examples:
  syncsign-bridge validate 0123456789abcdef
  SYNCSIGN_API_KEY=0123456789abcdef syncsign-bridge validate`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := apiKeyArg(args)
		if err != nil {
			return err
		}
		return validateCommand(cmd.Context(), cmd.OutOrStdout(), key)
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func validateCommand(ctx context.Context, out io.Writer, apiKey string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	id, err := validateKey(ctx, cfg.SyncSign, apiKey)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "title: %s\n", id.Title)
	fmt.Fprintf(out, "email: %s\n", id.Email)
	fmt.Fprintf(out, "user_id: %s\n", id.UserID)
	return nil
}

// validateKey runs the one-shot credential check on a private pool.
func validateKey(ctx context.Context, cfg config.SyncSignConfig, apiKey string) (fleet.Identity, error) {
	exec, err := fleet.NewExecutor(1)
	if err != nil {
		return fleet.Identity{}, err
	}
	defer exec.Release()

	id, err := fleet.ValidateKey(ctx, apiKey, newFactory(cfg), exec)
	if err != nil {
		return fleet.Identity{}, fmt.Errorf("validation failed (%s): %w", fleet.ErrorCode(err), err)
	}
	return id, nil
}

func apiKeyArg(args []string) (string, error) {
	if len(args) > 0 && args[0] != "" {
		return args[0], nil
	}
	if key := os.Getenv(apiKeyEnv); key != "" {
		return key, nil
	}
	return "", fmt.Errorf("an API key is required (argument or $%s)", apiKeyEnv)
}
