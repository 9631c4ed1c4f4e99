package guard

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/alexclairr/imageguard/internal/app/task"
	"github.com/alexclairr/imageguard/internal/pkg/version"
	"github.com/alexclairr/imageguard/pkg/config"
	"github.com/alexclairr/imageguard/pkg/constant"
	"github.com/alexclairr/imageguard/pkg/domain/model"
	"github.com/alexclairr/imageguard/pkg/service/format"
	"github.com/alexclairr/imageguard/pkg/service/pipeline"
)

// Process exit codes.
const (
	ExitPass  = 0
	ExitFail  = 1
	ExitUsage = 2
)

type command struct {
	summary string
	run     func(ctx context.Context, a *App, args []string) int
}

var commands = map[string]command{
	"apply":   {"fix and verify files: convert, sanitize metadata, embed the watermark", runApply},
	"verify":  {"check files without changing them", runVerify},
	"convert": {"convert a directory of images to the target format", runConvert},
	"inspect": {"show the metadata and watermark of one file", runInspect},
	"watch":   {"audit the asset directory on a schedule", runWatch},
}

// Main runs the command line and returns the process exit code.
func Main(args []string, stdout, stderr io.Writer) int {
	global := flag.NewFlagSet("imageguard", flag.ContinueOnError)
	global.SetOutput(stderr)
	root := global.String("C", ".", "repository root")
	configPath := global.String("config", config.DefaultPath, "configuration file, relative to the root")
	verbose := global.Bool("v", false, "debug logging")
	global.Usage = func() { usage(global, stderr) }

	if err := global.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return ExitPass
		}
		return ExitUsage
	}
	rest := global.Args()
	if len(rest) == 0 {
		usage(global, stderr)
		return ExitUsage
	}

	name := rest[0]
	if name == "version" {
		fmt.Fprintf(stdout, "imageguard %s (%s)\n", version.GetVersionString(), version.GoVersion)
		return ExitPass
	}
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n", name)
		usage(global, stderr)
		return ExitUsage
	}

	app, cleanup, err := NewApp(Options{Root: *root, ConfigPath: *configPath, Verbose: *verbose, Stdout: stdout, Stderr: stderr})
	if err != nil {
		fmt.Fprintf(stderr, "configuration error: %v\n", err)
		return ExitUsage
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return cmd.run(ctx, app, rest[1:])
}

func usage(global *flag.FlagSet, w io.Writer) {
	fmt.Fprintln(w, "usage: imageguard [-C root] [-config file] [-v] <command> [arguments]")
	fmt.Fprintln(w, "\ncommands:")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-8s %s\n", name, commands[name].summary)
	}
	fmt.Fprintf(w, "  %-8s %s\n", "version", "print the version")
	fmt.Fprintln(w, "\nflags:")
	global.PrintDefaults()
}

func newFlagSet(a *App, name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	return fs
}

func runApply(ctx context.Context, a *App, args []string) int {
	return runPipeline(ctx, a, "apply", model.ModeWrite, args)
}

func runVerify(ctx context.Context, a *App, args []string) int {
	return runPipeline(ctx, a, "verify", model.ModeAudit, args)
}

func runPipeline(ctx context.Context, a *App, name string, mode model.Mode, args []string) int {
	fs := newFlagSet(a, name)
	failFast := fs.Bool("fail-fast", a.cfg.GetBool(constant.KeyRunFailFast), "stop after the first failing file")
	quiet := fs.Bool("quiet", false, "list failing checks only")
	if err := fs.Parse(args); err != nil {
		return ExitUsage
	}

	report, err := a.orchestrator.WithFailFast(*failFast).Run(ctx, a.resolve(fs.Args()), mode)
	if err != nil {
		fmt.Fprintf(a.stderr, "%s: [%s] %v\n", name, constant.Kind(err), err)
		if errors.Is(err, constant.ErrInvalidConfig) {
			return ExitUsage
		}
		return ExitFail
	}
	if err := pipeline.Render(a.stdout, report, *quiet); err != nil {
		return ExitFail
	}
	if report.Verdict != model.VerdictPass {
		return ExitFail
	}
	return ExitPass
}

func runConvert(ctx context.Context, a *App, args []string) int {
	fs := newFlagSet(a, "convert")
	overwrite := fs.Bool("overwrite", false, "replace existing target files")
	removeSource := fs.Bool("remove-source", false, "delete each source after converting it")
	inputDir := fs.String("input-dir", a.assetDir, "directory to convert (not recursive)")
	if err := fs.Parse(args); err != nil {
		return ExitUsage
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(a.stderr, "convert: unexpected arguments %v\n", fs.Args())
		return ExitUsage
	}
	*inputDir = a.resolve([]string{*inputDir})[0]
	exists, err := a.store.IsExist(ctx, *inputDir)
	if err != nil || !exists {
		fmt.Fprintf(a.stderr, "convert: input directory %s does not exist\n", *inputDir)
		return ExitUsage
	}

	opts := format.ConvertOptions{Overwrite: *overwrite, RemoveSource: *removeSource}
	summary, err := a.converter.ConvertDir(ctx, *inputDir, opts, func(res format.ConvertResult, err error) {
		if err != nil {
			fmt.Fprintf(a.stdout, "ERROR: %s: [%s] %v\n", res.Source, constant.Kind(err), err)
			return
		}
		fmt.Fprintln(a.stdout, res)
	})
	fmt.Fprintln(a.stdout, summary)
	if err != nil {
		fmt.Fprintf(a.stderr, "convert: %v\n", err)
		return ExitFail
	}
	if summary.Errors > 0 {
		return ExitFail
	}
	return ExitPass
}

func runInspect(ctx context.Context, a *App, args []string) int {
	fs := newFlagSet(a, "inspect")
	if err := fs.Parse(args); err != nil {
		return ExitUsage
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(a.stderr, "usage: imageguard inspect <file>")
		return ExitUsage
	}
	info, err := a.inspector.Inspect(ctx, a.resolve(fs.Args())[0])
	if err != nil {
		fmt.Fprintf(a.stderr, "inspect: %v\n", err)
		return ExitFail
	}
	if err := info.Render(a.stdout); err != nil {
		return ExitFail
	}
	return ExitPass
}

func runWatch(ctx context.Context, a *App, args []string) int {
	fs := newFlagSet(a, "watch")
	schedule := fs.String("schedule", a.cfg.GetString(constant.KeyRunSchedule), "cron schedule with seconds, or a descriptor such as @hourly")
	once := fs.Bool("once", false, "run a single audit now and exit")
	if err := fs.Parse(args); err != nil {
		return ExitUsage
	}

	job := task.NewAuditJob(a.orchestrator, a.resolve(fs.Args()), a.stdout)
	if *once {
		job.Run()
		if r := job.LastReport(); r == nil || r.Verdict != model.VerdictPass {
			return ExitFail
		}
		return ExitPass
	}

	a.scheduler = task.NewScheduler(a.logger)
	if err := a.scheduler.Register(*schedule, job); err != nil {
		fmt.Fprintf(a.stderr, "watch: %v\n", err)
		return ExitUsage
	}
	a.scheduler.Start()
	<-ctx.Done()
	return ExitPass
}
