package main

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"tollgate-hq/tollgate/pkg/apikey"
	"tollgate-hq/tollgate/pkg/cli"
	"tollgate-hq/tollgate/pkg/config"
)

var keysFlags struct {
	name      string
	output    string
	noConfirm bool
}

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage API keys",
	Long: `Create, inspect, rename and delete API keys directly in the configured
key backend. The service does not need to be running.

Subcommands:
  create - Issue a new key and print its secret
  list   - List keys with masked secrets and usage
  get    - Show one key with a masked secret
  reveal - Print the full secret of a key
  rename - Change the name of a key
  delete - Delete a key

Examples:
  # Issue a key
  tollgate keys create --name "ci pipeline"

  # List keys as CSV
  tollgate keys list --output csv`,
}

var keysCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Issue a new key",
	Args:  cobra.NoArgs,
	RunE:  createKey,
}

var keysListCmd = &cobra.Command{
	Use:   "list",
	Short: "List keys",
	Args:  cobra.NoArgs,
	RunE:  listKeys,
}

var keysGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show a key",
	Args:  cobra.ExactArgs(1),
	RunE:  getKey,
}

var keysRevealCmd = &cobra.Command{
	Use:   "reveal <id>",
	Short: "Print the full secret of a key",
	Args:  cobra.ExactArgs(1),
	RunE:  revealKey,
}

var keysRenameCmd = &cobra.Command{
	Use:   "rename <id>",
	Short: "Rename a key",
	Args:  cobra.ExactArgs(1),
	RunE:  renameKey,
}

var keysDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a key",
	Long: `Delete a key. Its secret stops validating immediately. Usage events
recorded for the key are kept.`,
	Args: cobra.ExactArgs(1),
	RunE: deleteKey,
}

func init() {
	rootCmd.AddCommand(keysCmd)
	keysCmd.AddCommand(keysCreateCmd, keysListCmd, keysGetCmd, keysRevealCmd, keysRenameCmd, keysDeleteCmd)

	keysCreateCmd.Flags().StringVar(&keysFlags.name, "name", "", "key name (required)")
	keysRenameCmd.Flags().StringVar(&keysFlags.name, "name", "", "new key name (required)")
	for _, c := range []*cobra.Command{keysCreateCmd, keysListCmd, keysGetCmd} {
		c.Flags().StringVarP(&keysFlags.output, "output", "o", "text", "output format (text, json, csv)")
	}
	keysDeleteCmd.Flags().BoolVarP(&keysFlags.noConfirm, "yes", "y", false, "skip confirmation prompt")
}

// withKeyStore opens the configured key store for the duration of fn.
func withKeyStore(cmd *cobra.Command, fn func(cfg *config.Config, store *apikey.Store) error) error {
	cfg, err := loadConfig(cmd.Context())
	if err != nil {
		return err
	}
	if cfg.Keys.Backend == "memory" {
		return cli.NewConfigError("keys.backend", "the memory backend does not outlive the process; configure sqlite or redis")
	}

	store, err := openKeyStore(cmd.Context(), &cfg.Keys)
	if err != nil {
		return cli.NewCommandError(cmd.CommandPath(), err)
	}
	defer store.Close()

	if err := fn(cfg, store); err != nil {
		return cli.NewCommandError(cmd.CommandPath(), err)
	}
	return nil
}

func keyTable(keys []*apikey.APIKey, actual map[string]int64) *cli.Table {
	table := &cli.Table{Headers: []string{"ID", "NAME", "SECRET", "USAGE", "REMAINING", "ACTUAL", "CREATED", "LAST_USED"}}
	for _, k := range keys {
		lastUsed := ""
		if k.LastUsedAt != nil {
			lastUsed = k.LastUsedAt.UTC().Format(time.RFC3339)
		}
		table.Append(
			k.ID,
			k.Name,
			apikey.Mask(k.Secret),
			fmt.Sprintf("%d/%d", k.UsageCount, k.MaxUses),
			strconv.FormatInt(k.RemainingUses(), 10),
			strconv.FormatInt(actual[k.ID], 10),
			k.CreatedAt.UTC().Format(time.RFC3339),
			lastUsed,
		)
	}
	return table
}

func createKey(cmd *cobra.Command, _ []string) error {
	if strings.TrimSpace(keysFlags.name) == "" {
		return cli.NewConfigError("name", "--name is required")
	}
	format, err := cli.ParseOutputFormat(keysFlags.output)
	if err != nil {
		return err
	}

	return withKeyStore(cmd, func(_ *config.Config, store *apikey.Store) error {
		key, err := store.Create(cmd.Context(), keysFlags.name)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if format != cli.FormatText {
			table := keyTable([]*apikey.APIKey{key}, nil)
			table.Rows[0][2] = key.Secret
			return cli.NewFormatter(format).FormatTo(out, table)
		}
		fmt.Fprintf(out, "✓ Created key %s (%s)\n", key.ID, key.Name)
		fmt.Fprintf(out, "  Secret:   %s\n", key.Secret)
		fmt.Fprintf(out, "  Max uses: %d\n", key.MaxUses)
		return nil
	})
}

func listKeys(cmd *cobra.Command, _ []string) error {
	format, err := cli.ParseOutputFormat(keysFlags.output)
	if err != nil {
		return err
	}

	return withKeyStore(cmd, func(cfg *config.Config, store *apikey.Store) error {
		keys, err := store.List(cmd.Context())
		if err != nil {
			return err
		}
		return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), keyTable(keys, actualUsage(cmd, cfg)))
	})
}

// actualUsage counts recorded events per key. The listing is still printed
// when the usage log cannot be read.
func actualUsage(cmd *cobra.Command, cfg *config.Config) map[string]int64 {
	events, err := openUsageStorage(&cfg.Usage)
	if err != nil {
		slog.Warn("usage log unavailable, actual usage omitted", "error", err)
		return nil
	}
	defer events.Close()

	counts, err := events.CountByKey(cmd.Context())
	if err != nil {
		slog.Warn("failed to count usage events", "error", err)
		return nil
	}
	return counts
}

func getKey(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(keysFlags.output)
	if err != nil {
		return err
	}

	return withKeyStore(cmd, func(_ *config.Config, store *apikey.Store) error {
		key, err := store.GetByID(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), keyTable([]*apikey.APIKey{key}, nil))
	})
}

func revealKey(cmd *cobra.Command, args []string) error {
	return withKeyStore(cmd, func(_ *config.Config, store *apikey.Store) error {
		key, err := store.Reveal(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), key.Secret)
		return nil
	})
}

func renameKey(cmd *cobra.Command, args []string) error {
	if strings.TrimSpace(keysFlags.name) == "" {
		return cli.NewConfigError("name", "--name is required")
	}

	return withKeyStore(cmd, func(_ *config.Config, store *apikey.Store) error {
		key, err := store.Update(cmd.Context(), args[0], keysFlags.name)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Renamed key %s to %q\n", key.ID, key.Name)
		return nil
	})
}

func deleteKey(cmd *cobra.Command, args []string) error {
	id := args[0]
	if !keysFlags.noConfirm && !confirm(cmd.InOrStdin(), cmd.OutOrStdout(), fmt.Sprintf("Delete key %s?", id)) {
		fmt.Fprintln(cmd.OutOrStdout(), "Aborted")
		return nil
	}

	return withKeyStore(cmd, func(_ *config.Config, store *apikey.Store) error {
		deleted, err := store.Delete(cmd.Context(), id)
		if err != nil {
			return err
		}
		if !deleted {
			return apikey.NotFound("keys.delete", id)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Deleted key %s\n", id)
		return nil
	})
}

func confirm(in io.Reader, out io.Writer, prompt string) bool {
	fmt.Fprintf(out, "%s [y/N]: ", prompt)
	answer, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && answer == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}
