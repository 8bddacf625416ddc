package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mfenderov/calscrape/internal/config"
	"github.com/mfenderov/calscrape/internal/events"
	"github.com/mfenderov/calscrape/internal/pipeline"
	"github.com/mfenderov/calscrape/internal/storage"
)

var (
	scrapeURL      string
	scrapeSource   string
	scrapeTimezone string
	scrapeOutput   string
	scrapeMode     string
	scrapeStream   bool
	scrapeFuzzy    bool
	scrapePublish  bool
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Extract events into an iCalendar file",
	Long: `Extract events from configured sources or a specific URL.

Examples:
  # Extract all configured sources, one .ics file per source
  calscrape scrape

  # Extract a specific source by name
  calscrape scrape --source city-council

  # Extract a URL and write the calendar to stdout
  calscrape scrape --url https://example.gov/events --timezone America/Chicago

  # Show progress while extracting, then archive and index the run
  calscrape scrape --url https://example.gov/events --output events.ics --stream --publish`,
	RunE: runScrape,
}

func init() {
	rootCmd.AddCommand(scrapeCmd)

	scrapeCmd.Flags().StringVar(&scrapeURL, "url", "", "URL to extract directly")
	scrapeCmd.Flags().StringVar(&scrapeSource, "source", "", "Source name from config to extract")
	scrapeCmd.Flags().StringVar(&scrapeTimezone, "timezone", "", "IANA timezone for times without one")
	scrapeCmd.Flags().StringVarP(&scrapeOutput, "output", "o", "", "Output .ics file (default stdout for a single target)")
	scrapeCmd.Flags().StringVar(&scrapeMode, "mode", "", "Extraction mode: document or chunks")
	scrapeCmd.Flags().BoolVar(&scrapeStream, "stream", false, "Print events as they are extracted")
	scrapeCmd.Flags().BoolVar(&scrapeFuzzy, "fuzzy", false, "Merge near-duplicate titles on the same day")
	scrapeCmd.Flags().BoolVar(&scrapePublish, "publish", false, "Archive the run and index its events")
}

// target is one page to extract.
type target struct {
	name   string
	url    string
	source *config.Source
}

func runScrape(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := GetConfig()
	slog.Debug("scrape command starting", "verbose", verbose, "publish", scrapePublish)

	targets, err := resolveTargets(&cfg, scrapeURL, scrapeSource)
	if err != nil {
		return err
	}

	p, err := newPipeline(&cfg)
	if err != nil {
		return err
	}

	stderr := cmd.ErrOrStderr()

	var publish chan<- events.ExtractionCompleteEvent
	done := make(chan struct{})
	if scrapePublish {
		engine, err := newIngestion(ctx, &cfg)
		if err != nil {
			return err
		}
		if engine == nil {
			return fmt.Errorf("--publish needs storage.enabled or elasticsearch.enabled")
		}
		ch := make(chan events.ExtractionCompleteEvent)
		publish = ch
		go reportIngestion(stderr, engine.Run(ctx, ch), done)
	} else {
		close(done)
	}

	failed := 0
	for _, t := range targets {
		runCfg := cfg.RunConfig(t.url, t.source)
		applyScrapeFlags(cmd, &runCfg)

		fmt.Fprintf(stderr, "Extracting: %s\n", runCfg.URL)

		var result *pipeline.Result
		if scrapeStream {
			result, err = streamRun(ctx, stderr, p, runCfg)
		} else {
			result, err = p.Run(ctx, runCfg)
		}
		if err != nil {
			fmt.Fprintf(stderr, "  Error: %v\n", err)
			failed++
			continue
		}

		printSummary(stderr, result)

		if err := writeCalendar(cmd.OutOrStdout(), outputPath(t, len(targets)), result.ICSContent); err != nil {
			fmt.Fprintf(stderr, "  Error: %v\n", err)
			failed++
			continue
		}

		if publish != nil {
			select {
			case publish <- completeEvent(t, result, cfg.Storage.ArchivePages):
			case <-ctx.Done():
			}
		}
	}

	if publish != nil {
		close(publish)
	}
	<-done

	if failed == len(targets) {
		return fmt.Errorf("all %d targets failed", failed)
	}
	return nil
}

// resolveTargets picks the pages to extract: the URL when given, else the
// configured sources, optionally narrowed to one by name.
func resolveTargets(cfg *config.Config, pageURL, sourceName string) ([]target, error) {
	if pageURL != "" {
		t := target{name: sourceName, url: pageURL}
		if sourceName != "" {
			src, ok := cfg.FindSource(sourceName)
			if !ok {
				return nil, fmt.Errorf("source %q not found in config", sourceName)
			}
			t.source = src
		}
		return []target{t}, nil
	}

	if len(cfg.Sources) == 0 {
		return nil, fmt.Errorf("no sources configured and no --url provided")
	}

	var targets []target
	for i := range cfg.Sources {
		source := &cfg.Sources[i]
		if sourceName != "" && source.Name != sourceName {
			continue
		}
		if source.URL != "" {
			targets = append(targets, target{name: source.Name, url: source.URL, source: source})
		}
	}

	if len(targets) == 0 {
		if sourceName != "" {
			return nil, fmt.Errorf("source %q not found in config", sourceName)
		}
		return nil, fmt.Errorf("no valid sources found in config")
	}
	return targets, nil
}

func applyScrapeFlags(cmd *cobra.Command, runCfg *pipeline.Config) {
	if scrapeTimezone != "" {
		runCfg.Timezone = scrapeTimezone
	}
	if scrapeMode != "" {
		runCfg.Mode = pipeline.Mode(scrapeMode)
	}
	if cmd.Flags().Changed("fuzzy") {
		runCfg.Fuzzy = scrapeFuzzy
	}
}

// streamRun drains a streamed run, printing events as they arrive.
func streamRun(ctx context.Context, w io.Writer, p *pipeline.Pipeline, runCfg pipeline.Config) (*pipeline.Result, error) {
	var result *pipeline.Result
	var err error
	for progress := range p.Stream(ctx, runCfg) {
		switch progress.Kind {
		case pipeline.ProgressStatus:
			fmt.Fprintf(w, "  ... %s\n", progress.Message)
		case pipeline.ProgressEvent:
			fmt.Fprintf(w, "  + %s (%s)\n", progress.Event.Title, progress.Event.Start.Format("2006-01-02 15:04 MST"))
		case pipeline.ProgressComplete:
			result = progress.Result
		case pipeline.ProgressError:
			err = progress.Err
		}
	}
	return result, err
}

func printSummary(w io.Writer, result *pipeline.Result) {
	meta := result.Metadata
	fmt.Fprintf(w, "  Events: %d (structured: %d, dropped: %d), Duration: %dms\n",
		meta.ProcessedEvents, meta.StructuredEvents, meta.FailedEvents, meta.ProcessingTimeMs)
	if meta.DetectedTimezone != "" {
		fmt.Fprintf(w, "  Timezone: %s\n", meta.DetectedTimezone)
	}
	for _, warning := range meta.Warnings {
		fmt.Fprintf(w, "  Warning: %s\n", warning)
	}
}

// outputPath picks where a target's calendar goes. An empty path means
// stdout.
func outputPath(t target, targets int) string {
	if scrapeOutput != "" && targets == 1 {
		return scrapeOutput
	}
	if t.source != nil && t.source.Output != "" {
		return t.source.Output
	}
	if targets == 1 {
		return ""
	}
	return t.name + ".ics"
}

func writeCalendar(stdout io.Writer, path, content string) error {
	if path == "" || path == "-" {
		_, err := io.WriteString(stdout, content)
		return err
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// completeEvent packages a finished run for the ingestion worker.
func completeEvent(t target, result *pipeline.Result, archivePage bool) events.ExtractionCompleteEvent {
	ev := events.ExtractionCompleteEvent{
		RunID:      storage.NewRunID(),
		SourceName: t.name,
		SourceURL:  result.Metadata.SourceURL,
		PageTitle:  result.Metadata.PageTitle,
		Events:     result.Events,
		ICSContent: result.ICSContent,
		Warnings:   result.Metadata.Warnings,
		Timestamp:  time.Now(),
	}
	if ev.SourceURL == "" {
		ev.SourceURL = t.url
	}
	if archivePage && result.Document != nil {
		ev.PageContent = result.Document.Content
		ev.ContentType = result.Document.ContentType
	}
	return ev
}

// reportIngestion prints ingestion results until the worker exits.
func reportIngestion(w io.Writer, results <-chan events.IngestionCompleteEvent, done chan<- struct{}) {
	defer close(done)

	var indexed int
	var duration time.Duration
	for result := range results {
		indexed += result.EventsIndexed
		duration += result.Duration

		where := result.Prefix
		if where == "" {
			where = result.RunID
		}
		fmt.Fprintf(w, "Published: %s, events indexed: %d\n", where, result.EventsIndexed)
		for _, e := range result.Errors {
			fmt.Fprintf(w, "  Warning: %s\n", strings.TrimSpace(e))
		}
	}

	if indexed > 0 {
		fmt.Fprintf(w, "\nTotal: %d events indexed in %v\n", indexed, duration)
	}
}
