package cron

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Trigger is the name recorded on runs started by the scheduler.
const Trigger = "cron"

// Runnable is implemented by anything that can be triggered by the cron scheduler.
type Runnable interface {
	Run(trigger string, chains ...string) (string, error)
}

// CronTriggerManager manages one CronTrigger per schedule.
type CronTriggerManager struct {
	triggers []*CronTrigger
	specs    []TriggerSpec
	logger   *slog.Logger
}

// NewCronTriggerManager creates a new CronTriggerManager from a multi-trigger
// specification; see ParseTriggerSpecs for the format.
func NewCronTriggerManager(spec string, runnable Runnable, logger *slog.Logger, available []string) (*CronTriggerManager, error) {
	specs, err := ParseTriggerSpecs(spec, available)
	if err != nil {
		return nil, err
	}
	logger = logger.With("component", "cron")

	triggers := make([]*CronTrigger, 0, len(specs))
	for _, ts := range specs {
		chains := ts.Chains
		callback := func() error {
			id, err := runnable.Run(Trigger, chains...)
			if err == nil {
				logger.Info("scheduled run accepted", "id", id, "chains", chains)
			}
			return err
		}

		trigger, err := NewCronTrigger(ts.CronSpec, callback, logger)
		if err != nil {
			return nil, fmt.Errorf("creating trigger for '%s:%s': %w",
				strings.Join(ts.Chains, chainListSeparator), ts.CronSpec, err)
		}
		triggers = append(triggers, trigger)
	}

	for i, trigger := range triggers {
		logger.Info("trigger registered",
			"index", i,
			"chains", specs[i].Chains,
			"schedule", specs[i].CronSpec,
			"next_run", trigger.NextRun(),
		)
	}

	return &CronTriggerManager{
		triggers: triggers,
		specs:    specs,
		logger:   logger,
	}, nil
}

// Start launches all triggers. Each trigger runs in its own goroutine.
// Returns immediately. All goroutines exit when ctx is cancelled.
func (m *CronTriggerManager) Start(ctx context.Context) {
	for _, trigger := range m.triggers {
		trigger.Start(ctx)
	}
}

// Specs returns the parsed schedules.
func (m *CronTriggerManager) Specs() []TriggerSpec {
	return m.specs
}

// NextRun returns the earliest scheduled run time across all triggers.
// Returns zero time if there are no triggers.
func (m *CronTriggerManager) NextRun() time.Time {
	var earliest time.Time
	for _, trigger := range m.triggers {
		next := trigger.NextRun()
		if earliest.IsZero() || next.Before(earliest) {
			earliest = next
		}
	}
	return earliest
}
