package bridge

import (
	"context"
	"fmt"
	"sync"

	"github.com/caffeineduck/scratchpad/executor"
)

// SessionInterpreter runs bridged code on one long-lived executor session,
// so globals persist from one execution to the next.
type SessionInterpreter struct {
	exec *executor.Executor
	lang executor.Language
	opts []executor.SessionOption

	mu      sync.Mutex
	session *executor.Session
	cancel  context.CancelFunc
	closed  bool
}

// NewSessionInterpreter returns an interpreter that starts a session of
// lang on exec when loaded.
func NewSessionInterpreter(exec *executor.Executor, lang executor.Language, opts ...executor.SessionOption) *SessionInterpreter {
	return &SessionInterpreter{exec: exec, lang: lang, opts: opts}
}

// Load compiles the language module and waits for the guest to be ready.
func (i *SessionInterpreter) Load(ctx context.Context) error {
	i.mu.Lock()
	if i.closed {
		i.mu.Unlock()
		return ErrClosed
	}
	ctx, cancel := context.WithCancel(ctx)
	i.cancel = cancel
	i.mu.Unlock()
	defer cancel()

	s, err := i.exec.NewSession(ctx, i.lang, i.opts...)
	if err != nil {
		return err
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		s.Close()
		return ErrClosed
	}
	i.session = s
	return nil
}

// Execute runs code on the session. A session lost to a timeout or a guest
// exit is replaced before the next execution, so later requests never see
// the abandoned run's output; globals start over.
func (i *SessionInterpreter) Execute(ctx context.Context, code string) executor.Result {
	i.mu.Lock()
	s, closed := i.session, i.closed
	i.mu.Unlock()

	switch {
	case closed:
		return executor.Result{Error: ErrClosed}
	case s == nil:
		return executor.Result{Error: ErrUnavailable}
	}

	if s.Closed() {
		fresh, err := i.exec.NewSession(ctx, i.lang, i.opts...)
		if err != nil {
			return executor.Result{Error: fmt.Errorf("restart session: %w", err)}
		}
		i.mu.Lock()
		if i.closed {
			i.mu.Unlock()
			fresh.Close()
			return executor.Result{Error: ErrClosed}
		}
		i.session = fresh
		i.mu.Unlock()
		s = fresh
	}

	res := s.Run(ctx, code)
	if res.Error != nil && s.Closed() {
		res.Error = fmt.Errorf("%w; interpreter state was reset", res.Error)
	}
	return res
}

// Close interrupts a pending load and ends the session.
func (i *SessionInterpreter) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.closed {
		return nil
	}
	i.closed = true
	if i.cancel != nil {
		i.cancel()
	}
	if i.session != nil {
		return i.session.Close()
	}
	return nil
}
