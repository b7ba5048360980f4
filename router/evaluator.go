package router

import (
	"context"
	"time"

	"github.com/caffeineduck/scratchpad/executor"
)

// IsolatedEvaluator evaluates each request in a fresh module instance with
// no filesystem, network, environment or stdin. Nothing survives between
// evaluations.
type IsolatedEvaluator struct {
	exec    *executor.Executor
	lang    executor.Language
	timeout time.Duration
}

// NewIsolatedEvaluator returns an evaluator running lang on exec. A zero
// timeout keeps the executor default.
func NewIsolatedEvaluator(exec *executor.Executor, lang executor.Language, timeout time.Duration) *IsolatedEvaluator {
	return &IsolatedEvaluator{exec: exec, lang: lang, timeout: timeout}
}

// Evaluate runs code once in a fresh instance.
func (e *IsolatedEvaluator) Evaluate(ctx context.Context, code string) executor.Result {
	var opts []executor.Option
	if e.timeout > 0 {
		opts = append(opts, executor.WithTimeout(e.timeout))
	}
	return e.exec.Run(ctx, e.lang, code, opts...)
}
