// Package router decides how an artifact runs and turns the outcome into a
// flat sequence of output lines.
//
// Three strategies exist. Bridged kinds go through the shared runtime
// bridge and may wait for it to load. In-process kinds are evaluated in a
// fresh isolated interpreter. Everything else is passive: it is rendered
// by the preview and produces a single notice.
package router

import (
	"context"
	"fmt"
	"io"
	"iter"
	"sync/atomic"

	"github.com/charmbracelet/log"

	"github.com/caffeineduck/scratchpad/executor"
	"github.com/caffeineduck/scratchpad/workspace"
)

// Strategy is how a kind is executed.
type Strategy int

const (
	StrategyPassive Strategy = iota
	StrategyInProcess
	StrategyBridged
)

func (s Strategy) String() string {
	switch s {
	case StrategyPassive:
		return "passive"
	case StrategyInProcess:
		return "in-process"
	case StrategyBridged:
		return "bridged"
	default:
		return fmt.Sprintf("Strategy(%d)", int(s))
	}
}

// StrategyFor maps every kind to its strategy.
func StrategyFor(k workspace.Kind) Strategy {
	switch k {
	case workspace.KindPython:
		return StrategyBridged
	case workspace.KindScript:
		return StrategyInProcess
	case workspace.KindMarkup, workspace.KindStyle, workspace.KindText:
		return StrategyPassive
	default:
		return StrategyPassive
	}
}

// Bridge executes code on the shared runtime, queueing until it is ready.
type Bridge interface {
	Execute(ctx context.Context, code string) executor.Result
}

// Evaluator runs code in an isolated context with no ambient host access.
type Evaluator interface {
	Evaluate(ctx context.Context, code string) executor.Result
}

// Option configures a Router.
type Option func(*Router)

// WithLogger sets the router's logger.
func WithLogger(l *log.Logger) Option {
	return func(r *Router) {
		r.logger = l
	}
}

// Router dispatches run requests. It holds no state of its own.
type Router struct {
	bridge Bridge
	eval   Evaluator
	logger *log.Logger
}

// New returns a Router. Either dependency may be nil, in which case runs of
// that strategy produce one error line.
func New(bridge Bridge, eval Evaluator, opts ...Option) *Router {
	r := &Router{
		bridge: bridge,
		eval:   eval,
		logger: log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Strategy reports how kind would run.
func (r *Router) Strategy(kind workspace.Kind) Strategy {
	return StrategyFor(kind)
}

// Run returns the output of running content as kind. Nothing happens until
// the sequence is iterated, and it can be iterated only once; later
// iterations yield nothing.
func (r *Router) Run(ctx context.Context, kind workspace.Kind, content string) iter.Seq[OutputLine] {
	var consumed atomic.Bool
	return func(yield func(OutputLine) bool) {
		if !consumed.CompareAndSwap(false, true) {
			return
		}
		for _, line := range r.dispatch(ctx, kind, content) {
			if !yield(line) {
				return
			}
		}
	}
}

// Collect runs content and returns all lines.
func (r *Router) Collect(ctx context.Context, kind workspace.Kind, content string) []OutputLine {
	var out []OutputLine
	for line := range r.Run(ctx, kind, content) {
		out = append(out, line)
	}
	return out
}

func (r *Router) dispatch(ctx context.Context, kind workspace.Kind, content string) (lines []OutputLine) {
	strategy := StrategyFor(kind)

	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("run panicked", "kind", kind, "strategy", strategy, "panic", p)
			lines = []OutputLine{Error(fmt.Sprint(p))}
		}
	}()

	switch strategy {
	case StrategyBridged:
		if r.bridge == nil {
			return []OutputLine{Error("no runtime for " + kind.String())}
		}
		return Lines(r.bridge.Execute(ctx, content))
	case StrategyInProcess:
		if r.eval == nil {
			return []OutputLine{Error("no evaluator for " + kind.String())}
		}
		return Lines(r.eval.Evaluate(ctx, content))
	case StrategyPassive:
		return []OutputLine{Result(fmt.Sprintf("%s is rendered by the preview; nothing to run", kind))}
	default:
		return []OutputLine{Error("unknown strategy " + strategy.String())}
	}
}

// Lines converts an execution result: printed lines first, then the value
// of a trailing expression, or one error line for a fault.
func Lines(res executor.Result) []OutputLine {
	var out []OutputLine
	for _, l := range res.Lines() {
		out = append(out, Result(l))
	}
	if res.Error != nil {
		return append(out, Error(res.Error.Error()))
	}
	if res.Value != "" {
		out = append(out, Result(res.Value))
	}
	return out
}
