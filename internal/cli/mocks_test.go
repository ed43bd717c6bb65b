package cli

import (
	"context"
	"sync"

	"github.com/forayproject/bout/internal/checkpoint"
	"github.com/forayproject/bout/internal/config"
	"github.com/forayproject/bout/internal/orchestrator"
)

// ---------------------------------------------------------------------------
// Mock FFmpegResolver
// ---------------------------------------------------------------------------

type mockFFmpegResolver struct {
	ResolveFunc      func(ctx context.Context) (string, error)
	CheckVersionFunc func(ctx context.Context, ffmpegPath string)

	mu           sync.Mutex
	resolveCalls int
}

func (m *mockFFmpegResolver) Resolve(ctx context.Context) (string, error) {
	m.mu.Lock()
	m.resolveCalls++
	m.mu.Unlock()

	if m.ResolveFunc != nil {
		return m.ResolveFunc(ctx)
	}
	return "/usr/bin/ffmpeg", nil
}

func (m *mockFFmpegResolver) CheckVersion(ctx context.Context, ffmpegPath string) {
	if m.CheckVersionFunc != nil {
		m.CheckVersionFunc(ctx, ffmpegPath)
	}
}

func (m *mockFFmpegResolver) ResolveCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resolveCalls
}

// ---------------------------------------------------------------------------
// Mock ConfigLoader
// ---------------------------------------------------------------------------

type mockConfigLoader struct {
	LoadFunc func() (config.Config, error)

	mu        sync.Mutex
	loadCalls int
}

func (m *mockConfigLoader) Load() (config.Config, error) {
	m.mu.Lock()
	m.loadCalls++
	m.mu.Unlock()

	if m.LoadFunc != nil {
		return m.LoadFunc()
	}
	return config.Config{}, nil
}

func (m *mockConfigLoader) LoadCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadCalls
}

// ---------------------------------------------------------------------------
// Mock CheckpointFactory
// ---------------------------------------------------------------------------

type mockCheckpointFactory struct {
	NewStoreFunc func(dir string) (*checkpoint.Store, error)

	mu            sync.Mutex
	newStoreCalls []string
}

func (m *mockCheckpointFactory) NewStore(dir string) (*checkpoint.Store, error) {
	m.mu.Lock()
	m.newStoreCalls = append(m.newStoreCalls, dir)
	m.mu.Unlock()

	if m.NewStoreFunc != nil {
		return m.NewStoreFunc(dir)
	}
	return checkpoint.New(dir)
}

func (m *mockCheckpointFactory) NewStoreCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.newStoreCalls...)
}

// ---------------------------------------------------------------------------
// Mock OrchestratorFactory
// ---------------------------------------------------------------------------

type mockOrchestratorFactory struct {
	NewOrchestratorFunc func(cfg config.Config, store *checkpoint.Store, ffmpegPath string, enableDiarize bool) *orchestrator.Orchestrator

	mu    sync.Mutex
	calls []orchestratorCall
}

type orchestratorCall struct {
	Config        config.Config
	FFmpegPath    string
	EnableDiarize bool
}

func (m *mockOrchestratorFactory) NewOrchestrator(cfg config.Config, store *checkpoint.Store, ffmpegPath string, enableDiarize bool) *orchestrator.Orchestrator {
	m.mu.Lock()
	m.calls = append(m.calls, orchestratorCall{Config: cfg, FFmpegPath: ffmpegPath, EnableDiarize: enableDiarize})
	m.mu.Unlock()

	if m.NewOrchestratorFunc != nil {
		return m.NewOrchestratorFunc(cfg, store, ffmpegPath, enableDiarize)
	}
	return &orchestrator.Orchestrator{Checkpoint: store}
}

func (m *mockOrchestratorFactory) Calls() []orchestratorCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]orchestratorCall(nil), m.calls...)
}

// ---------------------------------------------------------------------------
// Compile-time interface verification
// ---------------------------------------------------------------------------

var (
	_ FFmpegResolver      = (*mockFFmpegResolver)(nil)
	_ ConfigLoader        = (*mockConfigLoader)(nil)
	_ CheckpointFactory   = (*mockCheckpointFactory)(nil)
	_ OrchestratorFactory = (*mockOrchestratorFactory)(nil)
)
