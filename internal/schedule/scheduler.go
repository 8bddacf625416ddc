// Package schedule runs a job on a standard cron expression.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is one scheduled invocation.
type Job func(ctx context.Context)

// Scheduler fires a job on a cron schedule. Invocations never overlap: a
// tick that arrives while the previous run is still going is skipped.
type Scheduler struct {
	spec     string
	schedule cron.Schedule
}

// New parses spec as a standard five-field cron expression or a
// descriptor such as "@hourly" or "@every 30m".
func New(spec string) (*Scheduler, error) {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("failed to parse schedule %q: %w", spec, err)
	}
	return &Scheduler{spec: spec, schedule: schedule}, nil
}

// Next returns the first activation after t.
func (s *Scheduler) Next(t time.Time) time.Time {
	return s.schedule.Next(t)
}

// Run fires job on the schedule until ctx is done, then waits for a
// running job to return. When runNow is set the job also runs once
// immediately.
func (s *Scheduler) Run(ctx context.Context, job Job, runNow bool) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))

	c.Schedule(s.schedule, cron.FuncJob(func() {
		if ctx.Err() != nil {
			return
		}
		slog.Info("scheduled run starting", "schedule", s.spec)
		job(ctx)
		slog.Info("scheduled run finished", "next", s.Next(time.Now()))
	}))

	if runNow {
		job(ctx)
	}

	c.Start()
	slog.Info("scheduler started", "schedule", s.spec, "next", s.Next(time.Now()))

	<-ctx.Done()

	stopped := c.Stop()
	<-stopped.Done()
	slog.Info("scheduler stopped")
	return nil
}
