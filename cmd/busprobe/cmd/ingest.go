package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/solatis/busprobe/internal/core/api"
)

var (
	ingestAddr    string
	ingestAPIKey  string
	ingestTimeout time.Duration
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [file.json]",
	Short: "Push a JSON document into a running 'busprobe serve'",
	Long: `Ingest reads one JSON object from the file (or stdin when omitted) and
publishes it through the ingest gRPC service. The API key defaults to the
BP_INGEST_API_KEY environment variable.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
	ingestCmd.Flags().StringVar(&ingestAddr, "addr", "localhost:50061", "ingest service address")
	ingestCmd.Flags().StringVar(&ingestAPIKey, "api-key", "", "ingest API key (default $BP_INGEST_API_KEY)")
	ingestCmd.Flags().DurationVar(&ingestTimeout, "timeout", 10*time.Second, "request timeout")
}

func runIngest(cmd *cobra.Command, args []string) error {
	var (
		data []byte
		err  error
	)
	if len(args) == 1 {
		data, err = os.ReadFile(args[0])
	} else {
		data, err = io.ReadAll(cmd.InOrStdin())
	}
	if err != nil {
		return fmt.Errorf("failed to read document: %w", err)
	}

	apiKey := ingestAPIKey
	if apiKey == "" {
		apiKey = os.Getenv("BP_INGEST_API_KEY")
	}

	conn, err := grpc.NewClient(ingestAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", ingestAddr, err)
	}
	defer conn.Close()

	client := api.NewClient(conn, apiKey, ingestTimeout)
	if err := client.PublishJSON(cmd.Context(), data); err != nil {
		return err
	}

	size, err := client.Count(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "ingested, %d documents buffered\n", size)
	return nil
}
