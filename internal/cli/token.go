package cli

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-syncsign/internal/auth"
)

// Command-specific flags
var (
	tokenSubjectFlag string
	tokenRoleFlag    string
	tokenTTLFlag     time.Duration
)

// tokenCmd mints an API access token
var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint an API access token",
	Long: `Sign an access token for the HTTP API with the configured JWT secret.

Roles:
  viewer    read entities and the state stream
  operator  viewer plus display updates
  admin     operator plus config entry management

Examples:
  syncsign-bridge token --subject dashboard --role viewer
  syncsign-bridge token --subject installer --role admin --ttl 2h`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return tokenCommand(cmd.OutOrStdout(), tokenSubjectFlag, auth.Role(tokenRoleFlag), tokenTTLFlag)
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.Flags().StringVar(&tokenSubjectFlag, "subject", "", "Token subject (required)")
	tokenCmd.Flags().StringVar(&tokenRoleFlag, "role", string(auth.RoleViewer), "Role: viewer, operator or admin")
	tokenCmd.Flags().DurationVar(&tokenTTLFlag, "ttl", 0, "Lifetime (default security.jwt.access_token_ttl)")
}

func tokenCommand(out io.Writer, subject string, role auth.Role, ttl time.Duration) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Security.JWT.Secret == "" {
		return errors.New("security.jwt.secret is not configured")
	}
	if ttl <= 0 {
		ttl = cfg.GetAccessTokenTTL()
	}

	token, err := auth.GenerateToken(subject, role, cfg.Security.JWT.Secret, ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, token)
	return nil
}
