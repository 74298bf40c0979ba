package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-syncsign/internal/audit"
	"github.com/nerrad567/gray-logic-syncsign/internal/configentry"
	"github.com/nerrad567/gray-logic-syncsign/internal/infrastructure/logging"
)

// entryCmd groups the config entry commands
var entryCmd = &cobra.Command{
	Use:   "entry",
	Short: "Manage stored SyncSign accounts",
	Long: `Add, list and remove SyncSign accounts in the bridge database.

These commands work on the database directly. A running bridge picks up
changes on its next start; use the HTTP API to change a live bridge.`,
}

var entryAddCmd = &cobra.Command{
	Use:   "add [api-key]",
	Short: "Validate and store an account",
	Long: `Validate a SyncSign API key and store it as a new config entry titled
"SyncSign Account <email>". A key that is already stored is refused.

Examples:
  syncsign-bridge entry add 0123456789abcdef`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := apiKeyArg(args)
		if err != nil {
			return err
		}
		return entryAdd(cmd.Context(), cmd.OutOrStdout(), key)
	},
}

var entryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored accounts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return entryList(cmd.Context(), cmd.OutOrStdout())
	},
}

var entryRemoveCmd = &cobra.Command{
	Use:     "remove <entry-id>",
	Aliases: []string{"rm"},
	Short:   "Remove an account and its entities",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return entryRemove(cmd.Context(), cmd.OutOrStdout(), args[0])
	},
}

func init() {
	entryCmd.AddCommand(entryAddCmd, entryListCmd, entryRemoveCmd)
	rootCmd.AddCommand(entryCmd)
}

func entryAdd(ctx context.Context, out io.Writer, apiKey string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.db.Close()

	if existing, err := st.entries.GetByAPIKey(ctx, apiKey); err == nil {
		return fmt.Errorf("%w: %s", configentry.ErrEntryExists, existing.ID)
	} else if !errors.Is(err, configentry.ErrEntryNotFound) {
		return err
	}

	id, err := validateKey(ctx, cfg.SyncSign, apiKey)
	if err != nil {
		return err
	}

	entry := configentry.New(id.Title, apiKey, id.Email)
	if err := st.entries.Create(ctx, entry); err != nil {
		return fmt.Errorf("storing entry: %w", err)
	}
	st.record(ctx, audit.ActionEntryAdd, entry.ID, map[string]any{"title": entry.Title})
	fmt.Fprintf(out, "added %s (%s)\n", entry.ID, entry.Title)
	return nil
}

func entryList(ctx context.Context, out io.Writer) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.db.Close()

	entries, err := st.entries.List(ctx)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(out, "no entries")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tAPI KEY\tCREATED")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			e.ID, e.Title, logging.RedactKey(e.APIKey), e.CreatedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}

func entryRemove(ctx context.Context, out io.Writer, id string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.db.Close()

	if _, err := st.entries.Get(ctx, id); err != nil {
		return err
	}
	if err := st.entities.DeleteByEntry(ctx, id); err != nil {
		return fmt.Errorf("removing entities: %w", err)
	}
	if err := st.entries.Delete(ctx, id); err != nil {
		return err
	}
	st.record(ctx, audit.ActionEntryRemove, id, nil)
	fmt.Fprintf(out, "removed %s\n", id)
	return nil
}
