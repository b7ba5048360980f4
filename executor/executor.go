package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"github.com/tetratelabs/wazero/sys"
)

var (
	// ErrClosed is returned when running code on a closed Executor.
	ErrClosed = errors.New("executor closed")
	// ErrTimeout is wrapped by results of runs that hit their deadline.
	ErrTimeout = errors.New("timeout")
)

// Result holds the output and metadata from code execution.
type Result struct {
	// Output is everything the guest printed, stdout followed by stray stderr.
	Output string
	// Value is the printable value of a trailing expression, if any.
	Value    string
	Duration time.Duration
	Error    error
}

// Lines splits Output into lines, dropping the final empty line left by a
// trailing newline.
func (r Result) Lines() []string {
	if r.Output == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(r.Output, "\n"), "\n")
}

// Executor manages WASM runtimes and compiled module caching.
type Executor struct {
	runtime  wazero.Runtime
	cache    wazero.CompilationCache
	compiled map[string]wazero.CompiledModule
	mu       sync.RWMutex
	closed   bool
}

// New creates an Executor.
func New(opts ...ExecutorOption) (*Executor, error) {
	cfg := defaultExecutorConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	ctx := context.Background()

	var cache wazero.CompilationCache
	var err error

	if cfg.diskCache {
		cacheDir := cfg.cacheDir
		if cacheDir == "" {
			cacheDir = defaultCacheDir()
		}
		cache, err = wazero.NewCompilationCacheWithDir(cacheDir)
		if err != nil {
			return nil, fmt.Errorf("create disk cache: %w", err)
		}
	}

	rtConfig := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	if cache != nil {
		rtConfig = rtConfig.WithCompilationCache(cache)
	}
	if cfg.memoryLimitPages > 0 {
		rtConfig = rtConfig.WithMemoryLimitPages(cfg.memoryLimitPages)
	}

	rt := wazero.NewRuntimeWithConfig(ctx, rtConfig)
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		if cache != nil {
			cache.Close(ctx)
		}
		rt.Close(ctx)
		return nil, fmt.Errorf("instantiate WASI: %w", err)
	}

	e := &Executor{
		runtime:  rt,
		cache:    cache,
		compiled: make(map[string]wazero.CompiledModule),
	}

	for _, lang := range cfg.precompile {
		if _, err := e.getCompiled(ctx, lang); err != nil {
			e.Close()
			return nil, fmt.Errorf("precompile %s: %w", lang.Name(), err)
		}
	}

	return e, nil
}

// Run executes code once in a fresh module instance. The instance gets no
// filesystem, environment, network or stdin: only stdout and stderr are wired.
func (e *Executor) Run(ctx context.Context, lang Language, code string, opts ...Option) Result {
	start := time.Now()

	cfg := defaultRunConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.timeout)
		defer cancel()
	}

	compiled, err := e.getCompiled(ctx, lang)
	if err != nil {
		return Result{Error: err, Duration: time.Since(start)}
	}

	var stdout bytes.Buffer
	frames := newFrameParser()

	wrappedCode := lang.WrapCode(code)
	args := lang.Args(wrappedCode)

	moduleConfig := wazero.NewModuleConfig().
		WithStdout(&stdout).
		WithStderr(frames).
		WithArgs(args...).
		WithName("")

	errCh := make(chan error, 1)
	go func() {
		mod, err := e.runtime.InstantiateModule(ctx, compiled, moduleConfig)
		if mod != nil {
			mod.Close(context.Background())
		}
		errCh <- err
	}()

	err = <-errCh

	result := Result{
		Output:   stdout.String() + frames.Stderr(),
		Duration: time.Since(start),
	}

	if o, ok := frames.Outcome(); ok {
		result.Value = o.value
		result.Error = o.err
		return result
	}

	if err != nil && !isCleanExit(err) {
		if ctx.Err() == context.DeadlineExceeded {
			result.Error = fmt.Errorf("%w after %v", ErrTimeout, cfg.timeout)
		} else {
			result.Error = fmt.Errorf("execution failed: %w", err)
		}
	}

	return result
}

// isCleanExit reports whether err is the guest calling exit(0).
func isCleanExit(err error) bool {
	var exitErr *sys.ExitError
	return errors.As(err, &exitErr) && exitErr.ExitCode() == 0
}

// getCompiled returns a cached compiled module, compiling if necessary.
func (e *Executor) getCompiled(ctx context.Context, lang Language) (wazero.CompiledModule, error) {
	name := lang.Name()

	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, ErrClosed
	}
	if compiled, ok := e.compiled[name]; ok {
		e.mu.RUnlock()
		return compiled, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	if compiled, ok := e.compiled[name]; ok {
		return compiled, nil
	}

	binary, err := lang.Module(ctx)
	if err != nil {
		return nil, fmt.Errorf("load %s module: %w", name, err)
	}

	compiled, err := e.runtime.CompileModule(ctx, binary)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", name, err)
	}

	e.compiled[name] = compiled
	return compiled, nil
}

// Close releases all resources held by the Executor.
func (e *Executor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true

	ctx := context.Background()

	var errs []error
	if err := e.runtime.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	if e.cache != nil {
		if err := e.cache.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func defaultCacheDir() string {
	if dir := os.Getenv("XDG_CACHE_HOME"); dir != "" {
		return filepath.Join(dir, "scratchpad")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".cache", "scratchpad")
	}
	return filepath.Join(os.TempDir(), "scratchpad-cache")
}
