package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	ingestPrefix string
	ingestHost   string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Index archived runs into Elasticsearch",
	Long: `Index the events of previously archived runs into Elasticsearch.

Use this command to rebuild the event index from the archive, or to index
runs that were published while elasticsearch was disabled.

Examples:
  # Index a specific run by prefix
  calscrape ingest --prefix runs/example.gov/2025-03-14T17-30-00-a1b2c3d4

  # List and index every run of a host
  calscrape ingest --host example.gov`,
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)

	ingestCmd.Flags().StringVar(&ingestPrefix, "prefix", "", "Run prefix to index")
	ingestCmd.Flags().StringVar(&ingestHost, "host", "", "Index every archived run of this host")
	ingestCmd.MarkFlagsOneRequired("prefix", "host")
	ingestCmd.MarkFlagsMutuallyExclusive("prefix", "host")
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := GetConfig()
	slog.Debug("ingest command starting", "prefix", ingestPrefix, "host", ingestHost)

	storageClient, err := newStorage(ctx, &cfg)
	if err != nil {
		return err
	}

	esClient, err := newIndex(&cfg)
	if err != nil {
		return err
	}
	if err := esClient.CreateIndex(ctx); err != nil {
		return fmt.Errorf("failed to prepare index: %w", err)
	}

	prefixes := []string{ingestPrefix}
	if ingestHost != "" {
		prefixes, err = storageClient.ListRuns(ctx, ingestHost)
		if err != nil {
			return fmt.Errorf("failed to list runs: %w", err)
		}
	}

	total := 0
	var failures []string
	for _, prefix := range prefixes {
		if ctx.Err() != nil {
			failures = append(failures, "context cancelled")
			break
		}

		fmt.Printf("Ingesting: %s\n", prefix)

		meta, err := storageClient.GetMetadata(ctx, prefix)
		if err != nil {
			failures = append(failures, err.Error())
			continue
		}
		evs, err := storageClient.GetEvents(ctx, prefix)
		if err != nil {
			failures = append(failures, err.Error())
			continue
		}

		n, err := esClient.IndexEvents(ctx, meta.RunID, meta.SourceURL, evs)
		total += n
		if err != nil {
			failures = append(failures, err.Error())
		}
		fmt.Printf("  Events indexed: %d of %d\n", n, len(evs))
	}

	// Refresh index to make events searchable immediately
	if err := esClient.Refresh(ctx); err != nil {
		failures = append(failures, err.Error())
	}

	fmt.Printf("\nIngestion complete:\n")
	fmt.Printf("  Runs: %d\n", len(prefixes))
	fmt.Printf("  Events indexed: %d\n", total)

	if len(failures) > 0 {
		fmt.Printf("  Warnings: %d\n", len(failures))
		for _, e := range failures {
			fmt.Printf("    - %s\n", e)
		}
	}

	return nil
}
