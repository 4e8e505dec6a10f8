// Package parallel provides the worker-pool capability operators fan work out to.
package parallel

import (
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Pool partitions data-parallel work across workers. Every method blocks
// until all submitted items have completed.
type Pool interface {
	// Threads returns the number of workers, at least 1.
	Threads() int
	// Parallelize1DTile calls f(start, count) over [0, n) in tiles of at most tile items.
	Parallelize1DTile(n, tile int, f func(start, count int))
	// Parallelize2D calls f(i, j) for every i in [0, rows) and j in [0, cols).
	Parallelize2D(rows, cols int, f func(i, j int))
}

// Config controls parallel execution behavior.
type Config struct {
	Enabled      bool // Whether parallel execution is enabled.
	NumWorkers   int  // Number of worker goroutines to use.
	MinChunkSize int  // Minimum items per goroutine to avoid overhead.
}

// DefaultConfig returns sensible defaults based on CPU count.
func DefaultConfig() Config {
	n := runtime.NumCPU()
	return Config{
		Enabled:      n > 1,
		NumWorkers:   n,
		MinChunkSize: 64, // Typical cache line aware chunk.
	}
}

// WorkerPool is the default Pool backed by goroutines.
type WorkerPool struct {
	cfg Config
}

// NewPool creates a WorkerPool. A non-positive worker count uses runtime.NumCPU.
func NewPool(cfg Config) *WorkerPool {
	if cfg.NumWorkers <= 0 {
		cfg.NumWorkers = runtime.NumCPU()
	}
	if cfg.MinChunkSize <= 0 {
		cfg.MinChunkSize = 1
	}
	return &WorkerPool{cfg: cfg}
}

// Threads returns the number of workers.
func (p *WorkerPool) Threads() int {
	if !p.cfg.Enabled {
		return 1
	}
	return p.cfg.NumWorkers
}

// Parallelize1DTile splits [0, n) into tiles and runs them on the pool.
func (p *WorkerPool) Parallelize1DTile(n, tile int, f func(start, count int)) {
	if n <= 0 {
		return
	}
	if tile <= 0 {
		tile = n
	}
	if !p.cfg.Enabled || n <= tile || n < p.cfg.MinChunkSize {
		Sequential{}.Parallelize1DTile(n, tile, f)
		return
	}

	var g errgroup.Group
	g.SetLimit(p.cfg.NumWorkers)
	for start := 0; start < n; start += tile {
		s, c := start, min(tile, n-start)
		g.Go(func() error {
			f(s, c)
			return nil
		})
	}
	_ = g.Wait()
}

// Parallelize2D flattens the rows×cols space, as ForBatch does for batch×channels.
func (p *WorkerPool) Parallelize2D(rows, cols int, f func(i, j int)) {
	if cols <= 0 {
		return
	}
	For(rows*cols, func(k int) {
		f(k/cols, k%cols)
	}, p.cfg)
}

// Sequential runs everything on the calling goroutine.
type Sequential struct{}

// Threads returns 1.
func (Sequential) Threads() int { return 1 }

// Parallelize1DTile runs the tiles in order.
func (Sequential) Parallelize1DTile(n, tile int, f func(start, count int)) {
	if tile <= 0 {
		tile = n
	}
	for start := 0; start < n; start += tile {
		f(start, min(tile, n-start))
	}
}

// Parallelize2D runs the grid in row-major order.
func (Sequential) Parallelize2D(rows, cols int, f func(i, j int)) {
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			f(i, j)
		}
	}
}

// OrSequential returns p, or a Sequential pool when p is nil.
func OrSequential(p Pool) Pool {
	if p == nil {
		return Sequential{}
	}
	return p
}

// For executes f(i) for i in [0, n) with optional parallelism.
// Falls back to sequential execution if parallelism is disabled or n is too small.
func For(n int, f func(i int), cfg Config) {
	if !cfg.Enabled || n < cfg.MinChunkSize || cfg.NumWorkers <= 1 {
		for i := 0; i < n; i++ {
			f(i)
		}
		return
	}

	chunkSize := max((n+cfg.NumWorkers-1)/cfg.NumWorkers, cfg.MinChunkSize)

	var g errgroup.Group
	for start := 0; start < n; start += chunkSize {
		s, e := start, min(start+chunkSize, n)
		g.Go(func() error {
			for i := s; i < e; i++ {
				f(i)
			}
			return nil
		})
	}
	_ = g.Wait()
}
