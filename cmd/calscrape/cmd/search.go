package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mfenderov/calscrape/internal/elasticsearch"
)

var (
	searchLimit  int
	searchFormat string
	searchFrom   string
	searchTo     string
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search extracted events",
	Long: `Search the events indexed by published runs.

Examples:
  # Basic search
  calscrape search "board meeting"

  # Upcoming events in March, chronologically
  calscrape search --from 2025-03-01 --to 2025-03-31

  # JSON output for scripting
  calscrape search "workshop" --format json --limit 5`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)

	searchCmd.Flags().IntVar(&searchLimit, "limit", elasticsearch.DefaultSearchLimit, "Maximum number of results")
	searchCmd.Flags().StringVar(&searchFormat, "format", "text", "Output format: text or json")
	searchCmd.Flags().StringVar(&searchFrom, "from", "", "Earliest start date (YYYY-MM-DD)")
	searchCmd.Flags().StringVar(&searchTo, "to", "", "Latest start date (YYYY-MM-DD)")
}

func runSearch(cmd *cobra.Command, args []string) error {
	// Setup context with signal handling
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := GetConfig()

	q := elasticsearch.Query{Limit: searchLimit}
	if len(args) == 1 {
		q.Text = args[0]
	}
	var err error
	if q.From, err = parseDay(searchFrom); err != nil {
		return fmt.Errorf("invalid --from: %w", err)
	}
	if q.To, err = parseDay(searchTo); err != nil {
		return fmt.Errorf("invalid --to: %w", err)
	}
	if !q.To.IsZero() {
		q.To = q.To.Add(24*time.Hour - time.Second)
	}

	esClient, err := newIndex(&cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to Elasticsearch: %w", err)
	}

	docs, err := esClient.Search(ctx, q)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if len(docs) == 0 {
		fmt.Println("No results found.")
		return nil
	}

	// Output results
	if searchFormat == "json" {
		output, err := json.MarshalIndent(docs, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(output))
		return nil
	}

	fmt.Printf("Found %d results:\n\n", len(docs))
	for i, doc := range docs {
		fmt.Printf("─── Result %d ───\n", i+1)
		fmt.Printf("Title:    %s\n", doc.Title)
		fmt.Printf("When:     %s\n", formatWhen(doc.Start, doc.End, doc.Timezone))
		fmt.Printf("Where:    %s\n", doc.Location)
		if doc.Organizer != "" {
			fmt.Printf("Organizer: %s\n", doc.Organizer)
		}
		fmt.Printf("Source:   %s\n", doc.SourceURL)
		fmt.Printf("ID:       %s\n", doc.ID)

		// Truncate description for display
		description := doc.Description
		if len(description) > 300 {
			description = description[:300] + "..."
		}
		if description != "" {
			fmt.Printf("\n%s\n", description)
		}
		fmt.Println()
	}

	return nil
}

func parseDay(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse("2006-01-02", s)
}

// formatWhen renders a start/end pair in the event's own zone.
func formatWhen(start, end time.Time, tz string) string {
	if loc, err := time.LoadLocation(tz); err == nil && tz != "" {
		start, end = start.In(loc), end.In(loc)
	}
	if start.YearDay() == end.YearDay() && start.Year() == end.Year() {
		return fmt.Sprintf("%s - %s %s", start.Format("Mon Jan 2 2006 15:04"), end.Format("15:04"), tz)
	}
	return fmt.Sprintf("%s - %s %s", start.Format("Mon Jan 2 2006 15:04"), end.Format("Mon Jan 2 2006 15:04"), tz)
}
