// Package runwrap is the execution envelope shared by scheduled jobs and
// per-file pipeline runs.
package runwrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
)

// ErrPanicked wraps the value recovered from a panicking run.
var ErrPanicked = errors.New("panicked")

// Unit names what is being run in log lines.
type Unit struct {
	// Kind prefixes messages, e.g. "Job" gives "Job execution started".
	Kind string
	// Key is the attribute carrying Name, e.g. "job_name".
	Key  string
	Name string
}

// Logged runs fn with a logger tagged with the unit name and a fresh
// execution id, so all lines of one run can be queried together. Start and
// finish are logged at level; fn may return attributes for the finish line.
func Logged(logger *slog.Logger, level slog.Level, u Unit, fn func(*slog.Logger) []slog.Attr) {
	runLogger := logger.With(
		slog.String(u.Key, u.Name),
		slog.String("execution_id", uuid.New().String()),
	)

	startTime := time.Now()
	runLogger.Log(context.Background(), level, u.Kind+" execution started")

	attrs := fn(runLogger)

	args := make([]any, 0, len(attrs)+1)
	for _, a := range attrs {
		args = append(args, a)
	}
	args = append(args, slog.Duration("duration", time.Since(startTime)))
	runLogger.Log(context.Background(), level, u.Kind+" execution finished", args...)
}

// Recovered runs fn. A panic is logged with its stack and returned as an
// error wrapping ErrPanicked instead of taking the process down.
func Recovered(logger *slog.Logger, kind string, fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error(kind+" panicked",
				slog.Any("panic", r),
				slog.String("stack_trace", string(debug.Stack())),
			)
			err = fmt.Errorf("%w: %v", ErrPanicked, r)
		}
	}()

	fn()
	return nil
}
