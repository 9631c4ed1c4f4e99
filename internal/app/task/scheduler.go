// internal/app/task/scheduler.go
package task

import (
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Scheduler runs named jobs on cron schedules with seconds precision.
// Every job runs inside the panic-recovery and logging wrappers, and a run
// that is still going when the next one is due delays it.
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger
}

// NewScheduler builds a stopped scheduler logging through logger with a
// fixed system=cron attribute.
func NewScheduler(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("system", "cron")

	c := cron.New(
		cron.WithSeconds(),
		cron.WithChain(
			NewPanicRecoveryWrapper(logger),
			NewLoggingWrapper(logger),
			cron.DelayIfStillRunning(cron.DefaultLogger),
		),
	)
	return &Scheduler{cron: c, logger: logger}
}

// Register adds job under a six-field cron spec ("0 0 3 * * *") or a
// descriptor ("@every 1h").
func (s *Scheduler) Register(spec string, job Job) error {
	if _, err := s.cron.AddJob(spec, job); err != nil {
		return fmt.Errorf("register '%s' with schedule '%s': %w", job.Name(), spec, err)
	}
	s.logger.Info("-> Successfully registered job", slog.String("job_name", job.Name()), slog.String("schedule", spec))
	return nil
}

// Jobs returns how many jobs are registered.
func (s *Scheduler) Jobs() int {
	return len(s.cron.Entries())
}

// Start runs the scheduler in its own goroutine.
func (s *Scheduler) Start() {
	s.logger.Info("Cron scheduler started.")
	s.cron.Start()
}

// Stop stops scheduling and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping cron scheduler...")
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Cron scheduler gracefully stopped.")
}
