// cmd/guard/app.go
package guard

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/alexclairr/imageguard/internal/app/bootstrap"
	"github.com/alexclairr/imageguard/internal/app/task"
	"github.com/alexclairr/imageguard/internal/infra/storage"
	"github.com/alexclairr/imageguard/pkg/config"
	"github.com/alexclairr/imageguard/pkg/constant"
	"github.com/alexclairr/imageguard/pkg/service/format"
	"github.com/alexclairr/imageguard/pkg/service/inspect"
	"github.com/alexclairr/imageguard/pkg/service/metadata"
	"github.com/alexclairr/imageguard/pkg/service/pipeline"
	"github.com/alexclairr/imageguard/pkg/service/watermark"
)

// Options are the process-level inputs of NewApp.
type Options struct {
	Root       string
	ConfigPath string
	Verbose    bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// App holds the wired services of one invocation.
type App struct {
	cfg      *config.Config
	root     string
	boot     *bootstrap.Bootstrapper
	assetDir string
	logger   *slog.Logger
	stdout   io.Writer
	stderr   io.Writer

	store        storage.IAssetStore
	converter    *format.Converter
	orchestrator *pipeline.Orchestrator
	inspector    *inspect.Service
	scheduler    *task.Scheduler
}

// NewApp loads the configuration and wires every service. Any error is a
// configuration error.
func NewApp(opts Options) (*App, func(), error) {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: repository root: %v", constant.ErrInvalidConfig, err)
	}

	// --- Phase 1: configuration ---
	configPath := opts.ConfigPath
	if configPath == "" {
		configPath = config.DefaultPath
	}
	if !filepath.IsAbs(configPath) {
		configPath = filepath.Join(root, configPath)
	}
	cfg, err := config.NewConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	logger, err := newLogger(cfg, opts)
	if err != nil {
		return nil, nil, err
	}
	boot := bootstrap.NewBootstrapper(root, cfg)

	// --- Phase 2: infrastructure ---
	store := storage.NewLocalStore()
	vips := format.FindVips(cfg.GetString(constant.KeyFormatVips))

	// --- Phase 3: services ---
	gate, err := format.NewGate(format.GateConfig{
		Approved:    cfg.GetList(constant.KeyFormatApproved),
		Convertible: cfg.GetList(constant.KeyFormatConvertible),
		Target:      cfg.GetString(constant.KeyFormatTarget),
	}, vips.Available())
	if err != nil {
		return nil, nil, err
	}
	converter := format.NewConverter(gate, vips, store)

	overrides := map[string]string{}
	if v := cfg.GetString(constant.KeyMetadataCopyright); v != "" {
		overrides["Copyright"] = v
	}
	if v := cfg.GetString(constant.KeyMetadataArtist); v != "" {
		overrides["Artist"] = v
	}
	sanitizer, err := metadata.NewSanitizer(metadata.NewPolicy(cfg.GetList(constant.KeyMetadataAllow), overrides))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", constant.ErrInvalidConfig, err)
	}

	codec, err := newCodec(cfg)
	if err != nil {
		return nil, nil, err
	}
	skipPolicy, err := boot.SkipPolicy()
	if err != nil {
		return nil, nil, err
	}

	// --- Phase 4: orchestrator ---
	workers, err := cfg.GetInt(constant.KeyRunWorkers)
	if err != nil {
		return nil, nil, err
	}
	timeout, err := cfg.GetDuration(constant.KeyRunTimeout)
	if err != nil {
		return nil, nil, err
	}
	assetDir := boot.AssetDir()
	orchestrator, err := pipeline.New(pipeline.Config{
		Root:         root,
		AssetDir:     assetDir,
		Workers:      workers,
		Timeout:      timeout,
		FailFast:     cfg.GetBool(constant.KeyRunFailFast),
		RemoveSource: cfg.GetBool(constant.KeyFormatRemoveSource),
		Overwrite:    cfg.GetBool(constant.KeyFormatOverwrite),
	}, pipeline.Deps{
		Store:     store,
		Gate:      gate,
		Converter: converter,
		Sanitizer: sanitizer,
		Codec:     codec,
		Skip:      skipPolicy,
		Logger:    logger,
	})
	if err != nil {
		return nil, nil, err
	}

	app := &App{
		cfg:          cfg,
		root:         root,
		boot:         boot,
		assetDir:     assetDir,
		logger:       logger,
		stdout:       opts.Stdout,
		stderr:       opts.Stderr,
		store:        store,
		converter:    converter,
		orchestrator: orchestrator,
		inspector:    inspect.NewService(gate, sanitizer, codec, vips, store),
	}
	logger.Debug("Services wired",
		slog.String("root", root),
		slog.String("config", cfg.Path()),
		slog.Bool("vips", vips.Available()),
		slog.String("target", gate.Target().String()),
	)
	return app, app.Stop, nil
}

func newLogger(cfg *config.Config, opts Options) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.GetString(constant.KeyRunLogLevel))); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", constant.ErrInvalidConfig, constant.KeyRunLogLevel, err)
	}
	if opts.Verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(opts.Stderr, &slog.HandlerOptions{Level: level})
	return slog.New(handler).With("system", "imageguard"), nil
}

func newCodec(cfg *config.Config) (*watermark.Codec, error) {
	payload, err := watermark.NewPayload(cfg.GetString(constant.KeyWatermarkPayload))
	if err != nil {
		return nil, err
	}
	strength, err := cfg.GetFloat(constant.KeyWatermarkStrength)
	if err != nil {
		return nil, err
	}
	maxBitErrors, err := cfg.GetInt(constant.KeyWatermarkMaxBitErrors)
	if err != nil {
		return nil, err
	}
	passes, err := cfg.GetInt(constant.KeyWatermarkPasses)
	if err != nil {
		return nil, err
	}
	return watermark.NewCodec(payload, watermark.Options{
		Strength:     strength,
		MaxBitErrors: maxBitErrors,
		Passes:       passes,
	})
}

// resolve makes command line paths absolute against the repository root,
// the way git -C does.
func (a *App) resolve(paths []string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = a.boot.Resolve(p)
	}
	return out
}

// Stop stops the scheduler if the watch command started it.
func (a *App) Stop() {
	if a.scheduler != nil {
		a.scheduler.Stop()
		a.scheduler = nil
	}
}
