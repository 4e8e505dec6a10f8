// Package engine holds the explicit context every graph is defined, compiled
// and run against: detected processor features, configuration and logging.
package engine

import (
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/born-ml/graphrt/internal/cpuinfo"
	"github.com/born-ml/graphrt/internal/envconfig"
	"github.com/born-ml/graphrt/internal/logutil"
	"github.com/born-ml/graphrt/internal/parallel"
	"github.com/born-ml/graphrt/internal/status"
)

// Config controls an Engine.
type Config struct {
	NumThreads     int        // Workers in the default pool; 0 uses every CPU.
	LogLevel       slog.Level // Used when Logger is nil.
	CodeBufferSize int        // Initial code cache size per runtime.
	Features       cpuinfo.Features
	Logger         *slog.Logger
}

// DefaultConfig reads the environment and detects the processor.
func DefaultConfig() Config {
	f := cpuinfo.Detect()
	if envconfig.DisableCodeGen {
		f.CodeGen = false
	}
	return Config{
		NumThreads:     envconfig.NumThreads,
		LogLevel:       envconfig.LogLevel,
		CodeBufferSize: envconfig.CodeBufferSize,
		Features:       f,
	}
}

// Engine is created once and passed to every entry point.
type Engine struct {
	id     uuid.UUID
	cfg    Config
	logger *slog.Logger
	pool   *parallel.WorkerPool
	closed atomic.Bool
}

// New creates an engine from cfg.
func New(cfg Config) (*Engine, error) {
	if cfg.NumThreads < 0 {
		return nil, status.New("engine", status.ErrInvalidParameter, "negative thread count %d", cfg.NumThreads)
	}
	if cfg.CodeBufferSize <= 0 {
		cfg.CodeBufferSize = envconfig.DefaultCodeBufferSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logutil.NewLogger(os.Stderr, cfg.LogLevel)
	}

	pc := parallel.DefaultConfig()
	if cfg.NumThreads > 0 {
		pc.NumWorkers = cfg.NumThreads
		pc.Enabled = cfg.NumThreads > 1
	}

	id := uuid.New()
	e := &Engine{
		id:     id,
		cfg:    cfg,
		logger: logger.With("engine", id.String()[:8]),
		pool:   parallel.NewPool(pc),
	}
	f := cfg.Features
	e.logger.Debug("engine initialized", "arch", f.Arch, "variant", f.Variant(), "avx2", f.AVX2, "neon", f.NEON,
		"fp16", f.FP16Arith, "codegen", f.CodeGen, "threads", e.pool.Threads())
	return e, nil
}

// ID identifies the engine in logs.
func (e *Engine) ID() uuid.UUID { return e.id }

// Logger returns the engine's logger.
func (e *Engine) Logger() *slog.Logger { return e.logger }

// Features returns the processor capabilities operators are created against.
func (e *Engine) Features() cpuinfo.Features { return e.cfg.Features }

// CodeBufferSize returns the initial code cache size for new runtimes.
func (e *Engine) CodeBufferSize() int { return e.cfg.CodeBufferSize }

// Pool returns the engine's default worker pool.
func (e *Engine) Pool() parallel.Pool { return e.pool }

// Check returns ErrUninitialized when e is nil or closed.
func (e *Engine) Check(op string) error {
	if e == nil || e.closed.Load() {
		return status.New(op, status.ErrUninitialized, "engine is nil or closed")
	}
	return nil
}

// Close shuts the engine down. Graphs defined against it reject further calls.
func (e *Engine) Close() {
	if e != nil && !e.closed.Swap(true) {
		e.logger.Debug("engine closed")
	}
}
