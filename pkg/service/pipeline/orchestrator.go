// pkg/service/pipeline/orchestrator.go
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/alexclairr/imageguard/internal/infra/storage"
	"github.com/alexclairr/imageguard/internal/pkg/runwrap"
	"github.com/alexclairr/imageguard/pkg/constant"
	"github.com/alexclairr/imageguard/pkg/domain/model"
	"github.com/alexclairr/imageguard/pkg/service/format"
	"github.com/alexclairr/imageguard/pkg/service/metadata"
	"github.com/alexclairr/imageguard/pkg/service/skip"
	"github.com/alexclairr/imageguard/pkg/service/watermark"
)

// DefaultTimeout bounds a whole batch.
const DefaultTimeout = 5 * time.Minute

// Config holds the orchestrator's own settings.
type Config struct {
	// Root is the repository root. Report paths and skip lookups are
	// relative to it.
	Root string
	// AssetDir is enumerated when Run receives no paths.
	AssetDir string
	// Workers bounds concurrently processed files; <= 0 means NumCPU.
	Workers int
	// Timeout bounds the batch; <= 0 means DefaultTimeout.
	Timeout time.Duration
	// FailFast abandons the remaining files after the first failure.
	FailFast bool
	// RemoveSource deletes a converted source file in write mode.
	RemoveSource bool
	// Overwrite lets write-mode conversion replace an existing target.
	Overwrite bool
}

// Deps are the services the orchestrator drives.
type Deps struct {
	Store     storage.IAssetStore
	Gate      *format.Gate
	Converter *format.Converter
	Sanitizer *metadata.Sanitizer
	Codec     *watermark.Codec
	Skip      *skip.Policy
	Logger    *slog.Logger
}

// Orchestrator runs the format, metadata and watermark checks over a batch
// of files, in write mode (fix then verify) or audit mode (verify only).
type Orchestrator struct {
	cfg Config
	Deps
}

// New validates the wiring.
func New(cfg Config, deps Deps) (*Orchestrator, error) {
	if deps.Store == nil || deps.Gate == nil || deps.Converter == nil ||
		deps.Sanitizer == nil || deps.Codec == nil || deps.Skip == nil {
		return nil, fmt.Errorf("%w: pipeline is missing a service", constant.ErrInvalidConfig)
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Root == "" {
		cfg.Root = "."
	}
	return &Orchestrator{cfg: cfg, Deps: deps}, nil
}

// WithFailFast returns a copy of o with the fail-fast policy replaced.
func (o *Orchestrator) WithFailFast(failFast bool) *Orchestrator {
	c := *o
	c.cfg.FailFast = failFast
	return &c
}

// Run checks every file reachable from paths. Per-file problems become
// failing rows; only a batch-level infrastructure failure is returned as an
// error.
func (o *Orchestrator) Run(ctx context.Context, paths []string, mode model.Mode) (*model.Report, error) {
	report := &model.Report{
		RunID:   uuid.New().String(),
		Mode:    mode,
		Started: time.Now(),
	}
	logger := o.Logger.With(slog.String("run_id", report.RunID), slog.String("mode", mode.String()))

	files, err := o.Enumerate(ctx, paths)
	if err != nil {
		return nil, err
	}
	logger.Info("Batch started", slog.Int("files", len(files)), slog.Int("workers", o.cfg.Workers))

	if mode == model.ModeWrite {
		if err := o.preflight(ctx, files); err != nil {
			logger.Error("Preflight failed", slog.Any("error", err))
			return nil, err
		}
	}

	targets := newTargetLocks()
	batch := make(map[string]bool, len(files))
	for _, f := range files {
		batch[f] = true
	}

	ctx, cancelTimeout := context.WithTimeoutCause(ctx, o.cfg.Timeout, constant.ErrBatchTimeout)
	defer cancelTimeout()
	ctx, abort := context.WithCancelCause(ctx)
	defer abort(nil)

	perFile := make([][]model.CheckResult, len(files))
	g := new(errgroup.Group)
	g.SetLimit(o.cfg.Workers)
	for i, path := range files {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			rows := o.runFile(ctx, logger, path, mode, batch, targets)
			perFile[i] = rows
			if o.cfg.FailFast && model.Aggregate(rows) == model.VerdictFail {
				abort(constant.ErrNotProcessed)
			}
			return nil
		})
	}
	_ = g.Wait()

	cause := context.Cause(ctx)
	for i, path := range files {
		if perFile[i] != nil {
			continue
		}
		if errors.Is(cause, constant.ErrBatchTimeout) {
			report.TimedOut = true
		}
		perFile[i] = o.abandoned(path, cause)
	}
	for _, rows := range perFile {
		report.Results = append(report.Results, rows...)
	}
	sortResults(report.Results)
	report.Verdict = model.Aggregate(report.Results)
	report.Duration = time.Since(report.Started)

	logger.Info("Batch finished",
		slog.String("verdict", report.Verdict.String()),
		slog.Int("failed", report.Count(model.VerdictFail)),
		slog.Bool("timed_out", report.TimedOut),
		slog.Duration("duration", report.Duration),
	)
	return report, nil
}

// runFile processes one file inside the logging and panic-recovery
// envelope. In write mode it holds the lock of the file's conversion
// target, so x.jpg and x.png never write x.webp at the same time.
func (o *Orchestrator) runFile(ctx context.Context, logger *slog.Logger, path string, mode model.Mode, batch map[string]bool, targets *targetLocks) (rows []model.CheckResult) {
	if mode == model.ModeWrite {
		defer targets.lock(o.Converter.TargetPath(path))()
	}
	unit := runwrap.Unit{Kind: "File", Key: "file", Name: o.rel(path)}
	runwrap.Logged(logger, slog.LevelDebug, unit, func(fileLogger *slog.Logger) []slog.Attr {
		err := runwrap.Recovered(fileLogger, "File", func() {
			run := &fileRun{o: o, ctx: ctx, logger: fileLogger, path: path, mode: mode, batch: batch}
			rows = run.process()
		})
		if err != nil {
			rows = o.failAll(path, fmt.Errorf("internal error: %w", err))
		}
		return []slog.Attr{slog.String("verdict", model.Aggregate(rows).String())}
	})
	return rows
}

// targetLocks serialises the files of one batch that write the same path.
type targetLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newTargetLocks() *targetLocks {
	return &targetLocks{locks: make(map[string]*sync.Mutex)}
}

// lock blocks until path is free and returns the matching unlock.
func (l *targetLocks) lock(path string) func() {
	l.mu.Lock()
	m, ok := l.locks[path]
	if !ok {
		m = new(sync.Mutex)
		l.locks[path] = m
	}
	l.mu.Unlock()
	m.Lock()
	return m.Unlock
}

// preflight aborts a write batch when none of its directories accepts
// writes.
func (o *Orchestrator) preflight(ctx context.Context, files []string) error {
	dirs := make(map[string]bool)
	for _, f := range files {
		dirs[filepath.Dir(f)] = true
	}
	if len(dirs) == 0 {
		return nil
	}
	var errs []error
	for dir := range dirs {
		err := o.Store.CheckWritable(ctx, dir)
		if err == nil {
			return nil
		}
		errs = append(errs, err)
	}
	return fmt.Errorf("%w: no target directory is writable: %v", constant.ErrInfrastructure, errors.Join(errs...))
}

// abandoned reports a file that never finished.
func (o *Orchestrator) abandoned(path string, cause error) []model.CheckResult {
	var err error
	switch {
	case errors.Is(cause, constant.ErrBatchTimeout):
		err = fmt.Errorf("%w: not completed before the batch deadline", constant.ErrBatchTimeout)
	case errors.Is(cause, constant.ErrNotProcessed):
		err = fmt.Errorf("%w: batch stopped after an earlier failure", constant.ErrNotProcessed)
	default:
		err = fmt.Errorf("%w: %v", constant.ErrNotProcessed, cause)
	}
	return o.failAll(path, err)
}

// failAll fails every check of path that is not skip-listed.
func (o *Orchestrator) failAll(path string, err error) []model.CheckResult {
	rel := o.rel(path)
	rows := make([]model.CheckResult, 0, len(model.AllChecks))
	for _, c := range model.AllChecks {
		if o.Skip.IsSkipped(rel, c) {
			rows = append(rows, skippedRow(rel, c))
			continue
		}
		rows = append(rows, model.CheckResult{Path: rel, Check: c, Verdict: model.VerdictFail, Detail: err.Error(), Err: err})
	}
	return rows
}

func skippedRow(rel string, c model.Check) model.CheckResult {
	return model.CheckResult{Path: rel, Check: c, Verdict: model.VerdictSkipped, Detail: "in skip list"}
}

// rel returns the repository-relative slash form of path.
func (o *Orchestrator) rel(path string) string {
	if r, err := filepath.Rel(o.cfg.Root, path); err == nil && !filepath.IsAbs(r) && r != ".." && !startsWithParent(r) {
		return skip.Normalize(r)
	}
	return skip.Normalize(path)
}

func startsWithParent(r string) bool {
	return len(r) >= 3 && r[:3] == ".."+string(filepath.Separator)
}

var checkOrder = map[model.Check]int{
	model.CheckFormat:    0,
	model.CheckMetadata:  1,
	model.CheckWatermark: 2,
}

func sortResults(rows []model.CheckResult) {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Path != rows[j].Path {
			return rows[i].Path < rows[j].Path
		}
		return checkOrder[rows[i].Check] < checkOrder[rows[j].Check]
	})
}
