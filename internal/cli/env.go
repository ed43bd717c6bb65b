package cli

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/forayproject/bout/internal/checkpoint"
	"github.com/forayproject/bout/internal/config"
	"github.com/forayproject/bout/internal/diarize"
	"github.com/forayproject/bout/internal/docwriter"
	"github.com/forayproject/bout/internal/extract"
	"github.com/forayproject/bout/internal/ffmpeg"
	"github.com/forayproject/bout/internal/orchestrator"
	"github.com/forayproject/bout/internal/split"
	"github.com/forayproject/bout/internal/whisper"
)

// Env holds injectable dependencies for CLI commands.
// This is the central injection point for testing CLI commands in isolation.
//
// All fields have sensible defaults via DefaultEnv(). Tests can override
// specific fields using the With* options or by creating a custom Env.
//
// Env must not be nil when passed to command functions. Use DefaultEnv()
// or NewEnv() to create a valid instance.
type Env struct {
	// I/O and environment
	Stderr io.Writer
	Getenv func(string) string
	Now    func() time.Time

	// Factories for domain objects
	FFmpegResolver    FFmpegResolver
	ConfigLoader      ConfigLoader
	CheckpointFactory CheckpointFactory
	OrchestratorFactory OrchestratorFactory
}

// FFmpegResolver resolves the path to the FFmpeg binary.
type FFmpegResolver interface {
	Resolve(ctx context.Context) (string, error)
	CheckVersion(ctx context.Context, ffmpegPath string)
}

// ConfigLoader loads and provides access to configuration.
type ConfigLoader interface {
	Load() (config.Config, error)
}

// CheckpointFactory opens the job store rooted at a jobs directory.
type CheckpointFactory interface {
	NewStore(dir string) (*checkpoint.Store, error)
}

// OrchestratorFactory builds an Orchestrator wired against one
// configuration's chunking, device, and diarization settings.
type OrchestratorFactory interface {
	NewOrchestrator(cfg config.Config, store *checkpoint.Store, ffmpegPath string, enableDiarize bool) *orchestrator.Orchestrator
}

// EnvOption configures an Env.
type EnvOption func(*Env)

// WithStderr sets the stderr writer.
func WithStderr(w io.Writer) EnvOption {
	return func(e *Env) {
		e.Stderr = w
	}
}

// WithGetenv sets the environment variable getter.
func WithGetenv(fn func(string) string) EnvOption {
	return func(e *Env) {
		e.Getenv = fn
	}
}

// WithNow sets the time provider.
func WithNow(fn func() time.Time) EnvOption {
	return func(e *Env) {
		e.Now = fn
	}
}

// WithFFmpegResolver sets the FFmpeg resolver.
func WithFFmpegResolver(r FFmpegResolver) EnvOption {
	return func(e *Env) {
		e.FFmpegResolver = r
	}
}

// WithConfigLoader sets the config loader.
func WithConfigLoader(l ConfigLoader) EnvOption {
	return func(e *Env) {
		e.ConfigLoader = l
	}
}

// WithCheckpointFactory sets the checkpoint store factory.
func WithCheckpointFactory(f CheckpointFactory) EnvOption {
	return func(e *Env) {
		e.CheckpointFactory = f
	}
}

// WithOrchestratorFactory sets the orchestrator factory.
func WithOrchestratorFactory(f OrchestratorFactory) EnvOption {
	return func(e *Env) {
		e.OrchestratorFactory = f
	}
}

// DefaultEnv returns an Env with production defaults.
func DefaultEnv() *Env {
	return &Env{
		Stderr:              os.Stderr,
		Getenv:              os.Getenv,
		Now:                 time.Now,
		FFmpegResolver:      &defaultFFmpegResolver{},
		ConfigLoader:        &defaultConfigLoader{},
		CheckpointFactory:   &defaultCheckpointFactory{},
		OrchestratorFactory: &defaultOrchestratorFactory{},
	}
}

// NewEnv creates an Env with the given options applied to defaults.
func NewEnv(opts ...EnvOption) *Env {
	env := DefaultEnv()
	for _, opt := range opts {
		opt(env)
	}
	return env
}

// ---------------------------------------------------------------------------
// Default implementations - delegate to real packages
// ---------------------------------------------------------------------------

// defaultFFmpegResolver implements FFmpegResolver using the ffmpeg package.
type defaultFFmpegResolver struct{}

func (defaultFFmpegResolver) Resolve(ctx context.Context) (string, error) {
	return ffmpeg.Resolve(ctx)
}

func (defaultFFmpegResolver) CheckVersion(ctx context.Context, ffmpegPath string) {
	ffmpeg.CheckVersion(ctx, ffmpegPath)
}

// defaultConfigLoader implements ConfigLoader using the config package.
type defaultConfigLoader struct{}

func (defaultConfigLoader) Load() (config.Config, error) {
	return config.Load()
}

// defaultCheckpointFactory implements CheckpointFactory using the
// checkpoint package.
type defaultCheckpointFactory struct{}

func (defaultCheckpointFactory) NewStore(dir string) (*checkpoint.Store, error) {
	return checkpoint.New(dir)
}

// defaultOrchestratorFactory wires the real extract/split/whisper/diarize
// collaborators into an orchestrator.Orchestrator.
type defaultOrchestratorFactory struct{}

func (defaultOrchestratorFactory) NewOrchestrator(cfg config.Config, store *checkpoint.Store, ffmpegPath string, enableDiarize bool) *orchestrator.Orchestrator {
	extractor := extract.New(ffmpegPath, "")
	splitter := split.New(ffmpegPath)
	client := whisper.NewClient(cfg.ModelEndpoint)
	worker := whisper.NewWorker(client, whisper.Device(cfg.Device))

	o := orchestrator.New(store, extractor, splitter, worker, docwriter.Markdown{})
	o.TranscribeOpt.Device = whisper.Device(cfg.Device)

	if enableDiarize && cfg.HFToken != "" {
		o.Diarizer = diarize.NewClient(cfg.HFToken)
		o.EnableDiarize = true
	}

	return o
}

// Compile-time interface verification.
var (
	_ FFmpegResolver      = (*defaultFFmpegResolver)(nil)
	_ ConfigLoader        = (*defaultConfigLoader)(nil)
	_ CheckpointFactory   = (*defaultCheckpointFactory)(nil)
	_ OrchestratorFactory = (*defaultOrchestratorFactory)(nil)
)
