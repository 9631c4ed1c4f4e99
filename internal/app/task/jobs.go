// internal/app/task/jobs.go
package task

// Job is a cron.Job with a readable name for the log wrappers.
type Job interface {
	Run()
	Name() string
}
