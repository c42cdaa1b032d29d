// Package cron provides cron-based scheduling for triggering chain runs.
//
// The CronTrigger type executes a callback according to a cron schedule. It is
// designed to be started once and run until the context is cancelled.
//
// Example usage:
//
//	trigger, err := cron.NewCronTrigger("0 2 * * *", func() error {
//	    _, err := runner.Run("cron", "nightly-smoke")
//	    return err
//	}, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	trigger.Start(ctx)  // Returns immediately, runs in background
//	<-ctx.Done()        // Wait for shutdown signal
package cron

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrInvalidCronSpec is returned when the cron specification cannot be parsed.
var ErrInvalidCronSpec = errors.New("invalid cron spec")

// parser accepts the standard five fields and descriptors such as @hourly.
var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// CronTrigger executes a callback according to a cron schedule.
type CronTrigger struct {
	spec     string
	schedule cron.Schedule
	callback func() error
	logger   *slog.Logger
	now      func() time.Time
}

// NewCronTrigger creates a new CronTrigger with the given cron specification.
// The spec follows standard cron format (5 fields: minute, hour, day, month, weekday).
// Returns ErrInvalidCronSpec if the specification cannot be parsed.
func NewCronTrigger(spec string, callback func() error, logger *slog.Logger) (*CronTrigger, error) {
	schedule, err := parser.Parse(spec)
	if err != nil {
		return nil, errors.Join(ErrInvalidCronSpec, err)
	}

	return &CronTrigger{
		spec:     spec,
		schedule: schedule,
		callback: callback,
		logger:   logger.With("schedule", spec),
		now:      time.Now,
	}, nil
}

// Spec returns the cron expression.
func (ct *CronTrigger) Spec() string {
	return ct.spec
}

// Start launches a goroutine that triggers runs according to the cron schedule.
// Returns immediately. The goroutine exits when ctx is cancelled.
func (ct *CronTrigger) Start(ctx context.Context) {
	go ct.loop(ctx)
}

// NextRun returns the next scheduled run time from now.
func (ct *CronTrigger) NextRun() time.Time {
	return ct.schedule.Next(ct.now())
}

func (ct *CronTrigger) loop(ctx context.Context) {
	for {
		nextRun := ct.NextRun()
		wait := nextRun.Sub(ct.now())

		ct.logger.Debug("waiting for next scheduled run",
			"next_run", nextRun,
			"wait_duration", wait,
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			ct.logger.Info("cron trigger shutting down")
			return
		case <-timer.C:
			ct.fire()
		}
	}
}

// fire executes the callback and logs the result.
func (ct *CronTrigger) fire() {
	ct.logger.Info("starting scheduled run")

	if err := ct.callback(); err != nil {
		ct.logger.Warn("scheduled run could not start", "error", err)
	} else {
		ct.logger.Info("scheduled run started")
	}
}
