package executor

import (
	"time"
)

// Option configures one-shot execution behavior.
type Option func(*runConfig)

type runConfig struct {
	timeout time.Duration
}

func defaultRunConfig() runConfig {
	return runConfig{
		timeout: 30 * time.Second,
	}
}

// WithTimeout sets the maximum execution time.
func WithTimeout(d time.Duration) Option {
	return func(c *runConfig) {
		c.timeout = d
	}
}

// ExecutorOption configures the Executor at creation time.
type ExecutorOption func(*executorConfig)

type executorConfig struct {
	diskCache        bool
	cacheDir         string
	precompile       []Language // Languages to precompile at startup
	memoryLimitPages uint32     // Max memory pages (each page = 64KB), 0 = default (4GB)
}

func defaultExecutorConfig() executorConfig {
	return executorConfig{
		diskCache:        false,
		memoryLimitPages: 0, // 0 means use wazero default (65536 pages = 4GB)
	}
}

// WithDiskCache enables persistent compilation cache for faster startup.
// Optionally provide a custom directory; otherwise uses ~/.cache/scratchpad or XDG_CACHE_HOME/scratchpad.
//
// Examples:
//
//	executor.New(executor.WithDiskCache())            // default dir
//	executor.New(executor.WithDiskCache("/tmp/cache")) // custom dir
func WithDiskCache(dir ...string) ExecutorOption {
	return func(c *executorConfig) {
		c.diskCache = true
		if len(dir) > 0 && dir[0] != "" {
			c.cacheDir = dir[0]
		}
	}
}

// WithPrecompile compiles the specified languages at Executor creation time.
// This moves the compilation cost to startup rather than first execution.
func WithPrecompile(langs ...Language) ExecutorOption {
	return func(c *executorConfig) {
		c.precompile = langs
	}
}

// WithMemoryLimit sets the maximum memory available to WASM modules.
// Each page is 64KB. Examples:
//   - WithMemoryLimit(16) = 1MB max
//   - WithMemoryLimit(256) = 16MB max
//   - WithMemoryLimit(4096) = 256MB max
//
// Default is 0 (no limit, up to 4GB).
func WithMemoryLimit(pages uint32) ExecutorOption {
	return func(c *executorConfig) {
		c.memoryLimitPages = pages
	}
}

// Memory limit constants for convenience.
const (
	MemoryLimit1MB   uint32 = 16    // 1 MB
	MemoryLimit16MB  uint32 = 256   // 16 MB
	MemoryLimit64MB  uint32 = 1024  // 64 MB
	MemoryLimit256MB uint32 = 4096  // 256 MB
	MemoryLimit1GB   uint32 = 16384 // 1 GB
)

// ParseMemoryLimit maps a human size ("64mb", "1gb") to a page count.
// Unknown values return 0, which keeps the runtime default.
func ParseMemoryLimit(s string) uint32 {
	switch s {
	case "1mb", "1MB":
		return MemoryLimit1MB
	case "16mb", "16MB":
		return MemoryLimit16MB
	case "64mb", "64MB":
		return MemoryLimit64MB
	case "256mb", "256MB":
		return MemoryLimit256MB
	case "1gb", "1GB":
		return MemoryLimit1GB
	default:
		return 0
	}
}
