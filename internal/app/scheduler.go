/**
 * @description
 * Cron scheduler wiring for the renewal sweep.
 */
package app

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Scheduler triggers renewal sweeps on a fixed cadence. The sweep itself has
// no timer dependency; this is the only component that knows about schedules.
type Scheduler struct {
	cron     *cron.Cron
	renewer  *Renewer
	logger   *slog.Logger
	schedule string
}

// NewScheduler creates a new scheduler instance.
func NewScheduler(renewer *Renewer, logger *slog.Logger, schedule string) *Scheduler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger)))

	return &Scheduler{
		cron:     c,
		renewer:  renewer,
		logger:   logger,
		schedule: schedule,
	}
}

// Start registers the sweep job and starts the cron scheduler.
func (s *Scheduler) Start() {
	if _, err := s.cron.AddFunc(s.schedule, s.runRenewals); err != nil {
		s.logger.Error("failed to schedule renewal sweep", "error", err)
	} else {
		s.logger.Info("scheduled renewal sweep", "schedule", s.schedule)
	}

	s.cron.Start()
}

// Stop gracefully stops the cron scheduler. The returned context is done once
// any in-flight sweep has finished.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Scheduler) runRenewals() {
	if _, err := s.renewer.RunSweep(context.Background()); err != nil {
		s.logger.Error("scheduled renewal sweep failed", "error", err)
	}
}
