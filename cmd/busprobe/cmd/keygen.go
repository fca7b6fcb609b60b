package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/solatis/busprobe/internal/core/auth"
	"github.com/solatis/busprobe/internal/core/config"
)

var keygenCmd = &cobra.Command{
	Use:   "keygen [secret-id]",
	Short: "Print the ingest API key for a configured secret",
	Long: `Print the x-api-key value clients use against 'busprobe serve'.
Secrets come from BP_INGEST_SECRET / BP_INGEST_SECRET_<N>. With no
argument a key is printed for every configured secret.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runKeygen,
}

func init() {
	rootCmd.AddCommand(keygenCmd)
}

func runKeygen(cmd *cobra.Command, args []string) error {
	secrets, err := config.IngestSecrets()
	if err != nil {
		return fmt.Errorf("failed to load ingest secrets: %w", err)
	}
	if len(secrets) == 0 {
		return fmt.Errorf("no ingest secrets configured (set %s environment variable)", config.EnvIngestSecret)
	}

	if len(args) == 1 {
		secret, ok := secrets[args[0]]
		if !ok {
			return fmt.Errorf("secret id %s is not configured", args[0])
		}
		fmt.Fprintln(cmd.OutOrStdout(), auth.GenerateAPIKey(args[0], secret))
		return nil
	}

	ids := make([]string, 0, len(secrets))
	for id := range secrets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		fmt.Fprintln(cmd.OutOrStdout(), auth.GenerateAPIKey(id, secrets[id]))
	}
	return nil
}
