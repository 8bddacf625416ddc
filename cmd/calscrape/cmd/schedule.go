package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mfenderov/calscrape/internal/config"
	"github.com/mfenderov/calscrape/internal/events"
	"github.com/mfenderov/calscrape/internal/pipeline"
	"github.com/mfenderov/calscrape/internal/schedule"
)

var (
	scheduleCron string
	scheduleNow  bool
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Extract configured sources on a cron schedule",
	Long: `Run every configured source on a cron schedule, writing each source's
calendar to its output file and publishing the run when storage or
elasticsearch is enabled.

Examples:
  # Use schedule.cron from the config file
  calscrape schedule

  # Every 30 minutes, starting with an immediate run
  calscrape schedule --cron "*/30 * * * *" --now`,
	RunE: runSchedule,
}

func init() {
	rootCmd.AddCommand(scheduleCmd)

	scheduleCmd.Flags().StringVar(&scheduleCron, "cron", "", "Cron expression (overrides schedule.cron)")
	scheduleCmd.Flags().BoolVar(&scheduleNow, "now", false, "Run once immediately before waiting for the schedule")
}

func runSchedule(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := GetConfig()

	spec := cfg.Schedule.Cron
	if scheduleCron != "" {
		spec = scheduleCron
	}
	scheduler, err := schedule.New(spec)
	if err != nil {
		return err
	}

	targets, err := resolveTargets(&cfg, "", "")
	if err != nil {
		return err
	}

	p, err := newPipeline(&cfg)
	if err != nil {
		return err
	}

	stderr := cmd.ErrOrStderr()

	// Publisher worker (consumer); absent when nothing is enabled.
	var publish chan events.ExtractionCompleteEvent
	done := make(chan struct{})
	engine, err := newIngestion(ctx, &cfg)
	if err != nil {
		return err
	}
	if engine != nil {
		publish = make(chan events.ExtractionCompleteEvent)
		go reportIngestion(stderr, engine.Run(ctx, publish), done)
	} else {
		slog.Warn("storage and elasticsearch disabled, runs are only written to files")
		close(done)
	}

	fmt.Fprintf(stderr, "Scheduling %d sources on %q\n", len(targets), spec)

	err = scheduler.Run(ctx, func(ctx context.Context) {
		runTargets(ctx, stderr, p, &cfg, targets, publish)
	}, scheduleNow || cfg.Schedule.RunOnStart)

	if publish != nil {
		close(publish)
	}
	<-done
	return err
}

// runTargets extracts every target once (producer), handing each result
// to the publisher.
func runTargets(ctx context.Context, w io.Writer, p *pipeline.Pipeline, cfg *config.Config, targets []target, publish chan<- events.ExtractionCompleteEvent) {
	for _, t := range targets {
		if ctx.Err() != nil {
			return
		}

		result, err := p.Run(ctx, cfg.RunConfig(t.url, t.source))
		if err != nil {
			slog.Error("scheduled extraction failed", "source", t.name, "error", err)
			fmt.Fprintf(w, "%s: error: %v\n", t.name, err)
			continue
		}
		fmt.Fprintf(w, "%s: %d events, %d warnings\n", t.name, len(result.Events), len(result.Metadata.Warnings))

		if t.source != nil && t.source.Output != "" {
			if err := writeCalendar(w, t.source.Output, result.ICSContent); err != nil {
				slog.Error("failed to write calendar", "source", t.name, "error", err)
			}
		}

		if publish != nil {
			select {
			case publish <- completeEvent(t, result, cfg.Storage.ArchivePages):
			case <-ctx.Done():
				return
			}
		}
	}
}
