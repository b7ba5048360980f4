package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/tetratelabs/wazero"
)

var (
	ErrSessionClosed = errors.New("session closed")
	ErrSessionStart  = errors.New("session start timeout")
)

// Session is one long-lived interpreter instance. Globals defined by one Run
// are visible to the next; Run calls are serialized.
//
// A Run that times out closes the session: the guest may still be inside
// the abandoned code, and anything it reports later must not be taken as
// the result of the next Run.
type Session struct {
	exec *Executor
	lang Language
	cfg  sessionConfig

	stdin       *io.PipeWriter
	stdinReader *io.PipeReader
	stdout      *sessionOutput
	frames      *frameParser
	cancel      context.CancelFunc
	// exited is closed once the guest has stopped; exitErr is set before.
	exited  chan struct{}
	exitErr error

	mu       sync.Mutex
	execMu   sync.Mutex
	closed   bool
	started  bool
	startErr error
}

type sessionConfig struct {
	timeout      time.Duration
	startTimeout time.Duration
	packagesPath string
	env          map[string]string
}

func defaultSessionConfig() sessionConfig {
	return sessionConfig{
		timeout:      30 * time.Second,
		startTimeout: 30 * time.Second,
		env:          make(map[string]string),
	}
}

type SessionOption func(*sessionConfig)

// WithSessionTimeout bounds each Run call.
func WithSessionTimeout(d time.Duration) SessionOption {
	return func(c *sessionConfig) {
		c.timeout = d
	}
}

// WithSessionStartTimeout bounds how long NewSession waits for the guest to
// report readiness.
func WithSessionStartTimeout(d time.Duration) SessionOption {
	return func(c *sessionConfig) {
		c.startTimeout = d
	}
}

// WithPackages mounts a host directory read-only at /packages and puts it on
// PYTHONPATH. This is the only filesystem access a session ever gets.
func WithPackages(path string) SessionOption {
	return func(c *sessionConfig) {
		c.packagesPath = path
	}
}

// WithSessionEnv sets one environment variable inside the guest.
func WithSessionEnv(key, value string) SessionOption {
	return func(c *sessionConfig) {
		c.env[key] = value
	}
}

// NewSession starts a session and blocks until the guest is ready, ctx is
// done, or the start timeout elapses.
func (e *Executor) NewSession(ctx context.Context, lang Language, opts ...SessionOption) (*Session, error) {
	cfg := defaultSessionConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	cfg.env["PAD_SESSION"] = "1"
	if cfg.packagesPath != "" {
		cfg.env["PYTHONPATH"] = "/packages"
	}

	s := &Session{
		exec: e,
		lang: lang,
		cfg:  cfg,
	}

	if err := s.start(ctx); err != nil {
		s.Close()
		return nil, err
	}

	return s, nil
}

func (s *Session) start(ctx context.Context) error {
	compiled, err := s.exec.getCompiled(ctx, s.lang)
	if err != nil {
		s.setStartErr(err)
		return err
	}

	s.mu.Lock()
	s.stdinReader, s.stdin = io.Pipe()
	s.stdout = newSessionOutput()
	s.frames = newFrameParser()
	s.exited = make(chan struct{})
	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.mu.Unlock()

	initCode := s.lang.SessionInit() + s.lang.WrapCode("")
	args := s.lang.Args(initCode)

	moduleConfig := wazero.NewModuleConfig().
		WithStdout(s.stdout).
		WithStderr(s.frames).
		WithStdin(s.stdinReader).
		WithArgs(args...).
		WithName("")

	if s.cfg.packagesPath != "" {
		moduleConfig = moduleConfig.WithFSConfig(
			wazero.NewFSConfig().WithReadOnlyDirMount(s.cfg.packagesPath, "/packages"),
		)
	}

	for k, v := range s.cfg.env {
		moduleConfig = moduleConfig.WithEnv(k, v)
	}

	// The guest runs its command loop until stdin closes or runCtx is
	// cancelled, so instantiation only returns once the session is over.
	go func() {
		mod, err := s.exec.runtime.InstantiateModule(runCtx, compiled, moduleConfig)
		if mod != nil {
			mod.Close(context.Background())
		}
		s.mu.Lock()
		s.exitErr = err
		s.mu.Unlock()
		// Nobody reads stdin any more; fail writers instead of blocking them.
		s.stdinReader.CloseWithError(ErrSessionClosed)
		close(s.exited)
	}()

	timer := time.NewTimer(s.cfg.startTimeout)
	defer timer.Stop()

	select {
	case <-s.frames.Ready():
		s.mu.Lock()
		s.started = true
		s.mu.Unlock()
		return nil
	case <-s.exited:
		err := s.exitError()
		if err == nil || isCleanExit(err) {
			err = errors.New("interpreter exited before ready")
		}
		s.setStartErr(fmt.Errorf("start session: %w", err))
	case <-timer.C:
		s.setStartErr(ErrSessionStart)
	case <-ctx.Done():
		s.setStartErr(fmt.Errorf("start session: %w", ctx.Err()))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startErr
}

func (s *Session) exitError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exitErr
}

func (s *Session) setStartErr(err error) {
	s.mu.Lock()
	s.startErr = err
	s.mu.Unlock()
}

type execCommand struct {
	Type string `json:"type"`
	Code string `json:"code,omitempty"`
}

// Run executes code against the session's persistent state.
func (s *Session) Run(ctx context.Context, code string) Result {
	s.execMu.Lock()
	defer s.execMu.Unlock()

	start := time.Now()

	s.mu.Lock()
	closed, started, startErr := s.closed, s.started, s.startErr
	s.mu.Unlock()

	if closed {
		return Result{Error: ErrSessionClosed, Duration: time.Since(start)}
	}

	if !started {
		return Result{Error: startErr, Duration: time.Since(start)}
	}

	if s.cfg.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.timeout)
		defer cancel()
	}

	s.stdout.Reset()
	s.frames.ResetExec()
	done := s.frames.Done()

	cmd := execCommand{Type: "exec", Code: code}
	cmdBytes, _ := json.Marshal(cmd)
	cmdBytes = append(cmdBytes, '\n')

	if _, err := s.stdin.Write(cmdBytes); err != nil {
		s.Close()
		if errors.Is(err, ErrSessionClosed) || errors.Is(err, io.ErrClosedPipe) {
			err = ErrSessionClosed
		} else {
			err = fmt.Errorf("write command: %w", err)
		}
		return Result{Error: err, Duration: time.Since(start)}
	}

	settle := func(o outcome) Result {
		return Result{
			Output:   s.stdout.String() + s.frames.Stderr(),
			Value:    o.value,
			Error:    o.err,
			Duration: time.Since(start),
		}
	}

	select {
	case o := <-done:
		return settle(o)
	case <-s.exited:
		// The guest may have settled this run just before exiting.
		select {
		case o := <-done:
			return settle(o)
		default:
		}
		s.Close()
		err := ErrSessionClosed
		if exitErr := s.exitError(); exitErr != nil && !isCleanExit(exitErr) {
			err = fmt.Errorf("%w: %w", ErrSessionClosed, exitErr)
		}
		return settle(outcome{err: err})
	case <-ctx.Done():
		s.Close()
		err := fmt.Errorf("%w after %v", ErrTimeout, s.cfg.timeout)
		if !errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("run interrupted: %w", ctx.Err())
		}
		return settle(outcome{err: err})
	}
}

// Closed reports whether the session has been closed, either explicitly or
// because a Run timed out or the guest exited.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close ends the session and interrupts any code the guest is running.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	// Close pipes directly - the guest may be blocked inside user code.
	// Closing stdinReader gives the guest EOF so its loop exits.
	if s.stdinReader != nil {
		s.stdinReader.Close()
	}
	if s.stdin != nil {
		s.stdin.Close()
	}

	// The runtime closes the module once its context is done, which also
	// interrupts a guest stuck in user code.
	if s.cancel != nil {
		s.cancel()
	}

	return nil
}

type sessionOutput struct {
	buf bytes.Buffer
	mu  sync.Mutex
}

func newSessionOutput() *sessionOutput {
	return &sessionOutput{}
}

func (o *sessionOutput) Write(data []byte) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.buf.Write(data)
}

func (o *sessionOutput) String() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.buf.String()
}

func (o *sessionOutput) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.buf.Reset()
}
