// Package studio wires the workspace, runtimes, router, preview and
// terminal into one running scratchpad.
package studio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"

	"github.com/caffeineduck/scratchpad/bridge"
	"github.com/caffeineduck/scratchpad/config"
	"github.com/caffeineduck/scratchpad/executor"
	"github.com/caffeineduck/scratchpad/language"
	"github.com/caffeineduck/scratchpad/language/javascript"
	"github.com/caffeineduck/scratchpad/language/python"
	"github.com/caffeineduck/scratchpad/preview"
	"github.com/caffeineduck/scratchpad/router"
	"github.com/caffeineduck/scratchpad/terminal"
	"github.com/caffeineduck/scratchpad/workspace"
)

// Version is reported by the terminal's version command.
var Version = "dev"

// Studio is a fully wired scratchpad.
type Studio struct {
	Config   *config.Config
	Logger   *log.Logger
	Store    *workspace.Store
	Executor *executor.Executor
	Bridge   *bridge.Bridge
	Router   *router.Router
	Preview  *preview.Compositor
	Terminal *terminal.Multiplexer
}

type options struct {
	logger    *log.Logger
	interp    bridge.Interpreter
	eval      router.Evaluator
	artifacts []workspace.Artifact
	active    string
	loaded    bool
}

// Option configures New.
type Option func(*options)

// WithLogger sets the root logger. Components log through sub-loggers
// with their own prefix.
func WithLogger(l *log.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithInterpreter replaces the Python session behind the bridge.
func WithInterpreter(i bridge.Interpreter) Option {
	return func(o *options) {
		o.interp = i
	}
}

// WithEvaluator replaces the isolated JavaScript evaluator.
func WithEvaluator(e router.Evaluator) Option {
	return func(o *options) {
		o.eval = e
	}
}

// WithArtifacts opens artifacts instead of loading the configured workspace.
func WithArtifacts(artifacts []workspace.Artifact, active string) Option {
	return func(o *options) {
		o.artifacts = artifacts
		o.active = active
		o.loaded = true
	}
}

// NewLogger returns a logger writing to w at the named level.
func NewLogger(w io.Writer, level string) (*log.Logger, error) {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	return log.NewWithOptions(w, log.Options{
		Level:           lvl,
		ReportTimestamp: true,
		TimeFormat:      time.TimeOnly,
	}), nil
}

// New builds a studio from cfg. The Python runtime loads in the background
// when cfg.Runtime.Preload is set, and on first use otherwise.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Studio, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = log.New(io.Discard)
	}

	if !o.loaded {
		arts, active, err := LoadWorkspace(cfg.Workspace)
		if err != nil {
			return nil, err
		}
		o.artifacts, o.active = arts, active
	}

	var execOpts []executor.ExecutorOption
	if cfg.Runtime.Cache {
		execOpts = append(execOpts, executor.WithDiskCache())
	}
	if pages := executor.ParseMemoryLimit(cfg.Runtime.Memory); pages > 0 {
		execOpts = append(execOpts, executor.WithMemoryLimit(pages))
	}
	exec, err := executor.New(execOpts...)
	if err != nil {
		return nil, fmt.Errorf("create executor: %w", err)
	}

	interp := o.interp
	if interp == nil {
		src := language.Source{Path: cfg.Runtime.Python.Path, URL: cfg.Runtime.Python.URL}
		sessionOpts := []executor.SessionOption{executor.WithSessionTimeout(cfg.Runtime.Timeout)}
		if dir := packageDir(cfg.Runtime.Packages); dir != "" {
			sessionOpts = append(sessionOpts, executor.WithPackages(dir))
		}
		interp = bridge.NewSessionInterpreter(exec, python.New(src), sessionOpts...)
	}

	eval := o.eval
	if eval == nil {
		src := language.Source{Path: cfg.Runtime.JavaScript.Path, URL: cfg.Runtime.JavaScript.URL}
		eval = router.NewIsolatedEvaluator(exec, javascript.New(src), cfg.Runtime.Timeout)
	}

	s := &Studio{
		Config:   cfg,
		Logger:   o.logger,
		Store:    workspace.NewStore(),
		Executor: exec,
	}
	s.Bridge = bridge.New(interp, bridge.WithName("python"), bridge.WithLogger(o.logger.WithPrefix("bridge")))
	s.Router = router.New(s.Bridge, eval, router.WithLogger(o.logger.WithPrefix("router")))
	s.Store.OpenAll(o.artifacts, o.active)
	s.Preview = preview.NewCompositor(s.Store, preview.WithLogger(o.logger.WithPrefix("preview")))
	s.Terminal = terminal.New(s.Store, s.Router,
		terminal.WithRuntime(s.Bridge),
		terminal.WithVersion(Version),
		terminal.WithLogger(o.logger.WithPrefix("terminal")),
	)

	if cfg.Runtime.Preload {
		s.Bridge.Start(ctx)
	}

	o.logger.Debug("studio ready", "artifacts", len(o.artifacts), "preload", cfg.Runtime.Preload)
	return s, nil
}

// packageDir returns the configured packages directory, or the default one
// when it exists.
func packageDir(configured string) string {
	if configured != "" {
		return configured
	}
	if info, err := os.Stat(config.PackageDir()); err == nil && info.IsDir() {
		return config.PackageDir()
	}
	return ""
}

// LoadWorkspace returns the configured artifacts: the manifest if set,
// else the directory, else the built-in samples.
func LoadWorkspace(cfg config.WorkspaceConfig) ([]workspace.Artifact, string, error) {
	switch {
	case cfg.Manifest != "":
		m, arts, err := workspace.LoadManifest(cfg.Manifest)
		if err != nil {
			return nil, "", err
		}
		return arts, m.Active, nil
	case cfg.Dir != "":
		info, err := os.Stat(cfg.Dir)
		if err != nil {
			return nil, "", fmt.Errorf("workspace: %w", err)
		}
		if !info.IsDir() {
			return nil, "", fmt.Errorf("workspace: %s is not a directory", cfg.Dir)
		}
		arts, err := workspace.LoadDir(cfg.Dir)
		return arts, "", err
	default:
		return workspace.Samples(), "", nil
	}
}

// Close stops the runtimes. Outstanding bridged runs resolve with an error
// before Close returns.
func (s *Studio) Close() error {
	s.Preview.Close()
	errBridge := s.Bridge.Close()
	s.Terminal.Wait()
	return errors.Join(errBridge, s.Executor.Close())
}
