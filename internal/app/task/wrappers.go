// internal/app/task/wrappers.go
package task

import (
	"log/slog"
	"reflect"

	"github.com/robfig/cron/v3"

	"github.com/alexclairr/imageguard/internal/pkg/runwrap"
)

// JobWrapper is cron.JobWrapper.
type JobWrapper = cron.JobWrapper

// NewLoggingWrapper logs the start and end of every run with a unique
// execution id.
func NewLoggingWrapper(logger *slog.Logger) JobWrapper {
	return func(j cron.Job) cron.Job {
		unit := runwrap.Unit{Kind: "Job", Key: "job_name", Name: getJobName(j)}
		return cron.FuncJob(func() {
			runwrap.Logged(logger, slog.LevelInfo, unit, func(*slog.Logger) []slog.Attr {
				j.Run()
				return nil
			})
		})
	}
}

// NewPanicRecoveryWrapper logs a panicking job with its stack instead of
// letting it take the process down.
func NewPanicRecoveryWrapper(logger *slog.Logger) JobWrapper {
	return func(j cron.Job) cron.Job {
		jobLogger := logger.With(slog.String("job_name", getJobName(j)))
		return cron.FuncJob(func() {
			_ = runwrap.Recovered(jobLogger, "Job", j.Run)
		})
	}
}

// getJobName prefers the job's own Name method and falls back to its type
// name, e.g. "task.AuditJob".
func getJobName(j cron.Job) string {
	if namedJob, ok := j.(interface{ Name() string }); ok {
		return namedJob.Name()
	}
	jobType := reflect.TypeOf(j)
	if jobType.Kind() == reflect.Ptr {
		return jobType.Elem().String()
	}
	return jobType.String()
}
