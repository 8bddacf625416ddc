package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mfenderov/calscrape/internal/mcp"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server",
	Long: `Start the MCP server for event extraction.

The server communicates via stdio and provides these tools:
  - extract_events: Extract events from a URL or page content
  - search_events: Search indexed events (when elasticsearch is enabled)
  - get_event: Get an indexed event by ID (when elasticsearch is enabled)

Example:
  calscrape serve`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()

	p, err := newPipeline(&cfg)
	if err != nil {
		return err
	}

	var searcher mcp.Searcher
	if cfg.Elasticsearch.Enabled {
		esClient, err := newIndex(&cfg)
		if err != nil {
			return err
		}
		searcher = esClient
	}

	server := mcp.NewServer(cfg.MCP, p, searcher, cfg.RunConfig("", nil))

	fmt.Fprintln(cmd.ErrOrStderr(), "Starting MCP server...")

	return server.ServeStdio()
}
