// Package bridge owns the single shared interpreter instance used for
// bridged execution.
//
// The interpreter loads asynchronously. Requests submitted before it is
// ready are queued and released in arrival order; one worker goroutine
// serves the queue, so at most one execution is ever in flight. If loading
// fails, every queued and future request resolves to [ErrUnavailable].
package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/caffeineduck/scratchpad/executor"
)

var (
	// ErrUnavailable is returned for every request once loading has failed.
	ErrUnavailable = errors.New("runtime unavailable")
	// ErrClosed is returned for requests on a closed bridge.
	ErrClosed = errors.New("bridge closed")
)

// Interpreter is the external runtime behind the bridge. Execute is never
// called concurrently and never before Load has returned nil.
type Interpreter interface {
	Load(ctx context.Context) error
	Execute(ctx context.Context, code string) executor.Result
	Close() error
}

type request struct {
	ctx   context.Context
	code  string
	reply chan executor.Result
	at    time.Time
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithLogger sets the logger used for lifecycle events.
func WithLogger(l *log.Logger) Option {
	return func(b *Bridge) {
		b.logger = l
	}
}

// WithName sets the runtime name shown in logs and errors.
func WithName(name string) Option {
	return func(b *Bridge) {
		b.name = name
	}
}

// Bridge serializes requests against one Interpreter.
type Bridge struct {
	interp Interpreter
	logger *log.Logger
	name   string

	state atomic.Int32

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []*request
	loadErr error
	closed  bool

	settled chan struct{}
	done    chan struct{}
}

// New returns a bridge in the Uninitialized state. Loading starts on the
// first Start or Submit.
func New(interp Interpreter, opts ...Option) *Bridge {
	b := &Bridge{
		interp:  interp,
		logger:  log.New(io.Discard),
		name:    "runtime",
		settled: make(chan struct{}),
		done:    make(chan struct{}),
	}
	b.cond = sync.NewCond(&b.mu)
	for _, opt := range opts {
		opt(b)
	}

	go b.worker()
	return b
}

// State returns the current lifecycle state.
func (b *Bridge) State() State {
	return State(b.state.Load())
}

// Settled is closed once the bridge reaches Ready or Failed.
func (b *Bridge) Settled() <-chan struct{} {
	return b.settled
}

// Err returns the load failure, or nil.
func (b *Bridge) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.loadErr
}

// Name returns the runtime name.
func (b *Bridge) Name() string {
	return b.name
}

// Start triggers loading. Only the first call has an effect; loading
// continues even if ctx is cancelled afterwards.
func (b *Bridge) Start(ctx context.Context) {
	if err := b.transition(StateUninitialized, StateLoading); err != nil {
		return
	}

	b.logger.Info("loading runtime", "name", b.name)
	go b.load(context.WithoutCancel(ctx))
}

func (b *Bridge) load(ctx context.Context) {
	start := time.Now()
	err := b.interp.Load(ctx)

	b.mu.Lock()
	if err != nil {
		b.loadErr = fmt.Errorf("%w: %s: %v", ErrUnavailable, b.name, err)
		b.transition(StateLoading, StateFailed)
		pending := b.queue
		b.queue = nil
		for _, req := range pending {
			req.reply <- executor.Result{Error: b.loadErr, Duration: time.Since(req.at)}
		}
		b.logger.Error("runtime failed to load", "name", b.name, "err", err, "dropped", len(pending))
	} else {
		b.transition(StateLoading, StateReady)
		b.logger.Info("runtime ready", "name", b.name, "took", time.Since(start).Round(time.Millisecond), "queued", len(b.queue))
	}
	b.cond.Broadcast()
	b.mu.Unlock()

	close(b.settled)
}

// Submit queues code and returns a channel that receives exactly one
// result. The channel is buffered, so callers may abandon it.
func (b *Bridge) Submit(ctx context.Context, code string) <-chan executor.Result {
	req := &request{
		ctx:   ctx,
		code:  code,
		reply: make(chan executor.Result, 1),
		at:    time.Now(),
	}

	b.Start(ctx)

	b.mu.Lock()
	defer b.mu.Unlock()

	switch {
	case b.closed:
		req.reply <- executor.Result{Error: ErrClosed}
	case b.State() == StateFailed:
		req.reply <- executor.Result{Error: b.loadErr}
	default:
		b.queue = append(b.queue, req)
		b.cond.Signal()
	}

	return req.reply
}

// Execute submits code and waits for its result. Giving up on ctx does not
// cancel an execution that has already started.
func (b *Bridge) Execute(ctx context.Context, code string) executor.Result {
	select {
	case res := <-b.Submit(ctx, code):
		return res
	case <-ctx.Done():
		return executor.Result{Error: ctx.Err()}
	}
}

func (b *Bridge) worker() {
	defer close(b.done)

	for {
		b.mu.Lock()
		for !b.closed && (len(b.queue) == 0 || b.State() != StateReady) {
			b.cond.Wait()
		}
		if b.closed {
			b.mu.Unlock()
			return
		}
		req := b.queue[0]
		b.queue[0] = nil
		b.queue = b.queue[1:]
		b.mu.Unlock()

		// A caller that left before its turn never reaches the interpreter.
		if err := req.ctx.Err(); err != nil {
			req.reply <- executor.Result{Error: err, Duration: time.Since(req.at)}
			continue
		}

		res := b.interp.Execute(context.WithoutCancel(req.ctx), req.code)
		b.logger.Debug("executed", "name", b.name, "took", res.Duration, "waited", time.Since(req.at)-res.Duration)
		req.reply <- res
	}
}

// Close fails pending requests with ErrClosed and releases the interpreter.
func (b *Bridge) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	pending := b.queue
	b.queue = nil
	for _, req := range pending {
		req.reply <- executor.Result{Error: ErrClosed}
	}
	b.cond.Broadcast()
	b.mu.Unlock()

	err := b.interp.Close()
	<-b.done
	return err
}
