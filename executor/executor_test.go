package executor_test

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/caffeineduck/scratchpad/executor"
	"github.com/caffeineduck/scratchpad/language"
	"github.com/caffeineduck/scratchpad/language/javascript"
)

// Shared executor to avoid compiling QuickJS once per test.
// JavaScript tests are integration tests - they verify the full stack works
// against the embedded interpreter.
var (
	sharedExec *executor.Executor
	sharedLang = javascript.New(language.Source{})
)

func TestMain(m *testing.M) {
	var err error
	sharedExec, err = executor.New()
	if err != nil {
		panic("failed to create shared executor: " + err.Error())
	}

	// Warm up - compile QuickJS once
	sharedExec.Run(context.Background(), sharedLang, "1")

	code := m.Run()

	sharedExec.Close()
	os.Exit(code)
}

// =============================================================================
// INTEGRATION TESTS (use shared JavaScript executor)
// =============================================================================

func TestJavaScriptOutput(t *testing.T) {
	result := sharedExec.Run(context.Background(), sharedLang, `console.log("hello")`)
	if result.Error != nil {
		t.Fatalf("unexpected error: %v", result.Error)
	}
	if strings.TrimSpace(result.Output) != "hello" {
		t.Errorf("expected 'hello', got %q", result.Output)
	}
	if result.Value != "" {
		t.Errorf("undefined completion should report no value, got %q", result.Value)
	}
}

func TestJavaScriptValue(t *testing.T) {
	result := sharedExec.Run(context.Background(), sharedLang, `[1, 2, 3].map(x => x * x).reduce((a, b) => a + b)`)
	if result.Error != nil {
		t.Fatalf("unexpected error: %v", result.Error)
	}
	if result.Value != "14" {
		t.Errorf("expected value '14', got %q", result.Value)
	}
}

func TestJavaScriptError(t *testing.T) {
	result := sharedExec.Run(context.Background(), sharedLang, `console.log("before"); throw new Error("boom")`)
	if result.Error == nil || result.Error.Error() != "boom" {
		t.Fatalf("expected error 'boom', got %v", result.Error)
	}
	if strings.TrimSpace(result.Output) != "before" {
		t.Errorf("output before the fault should be kept, got %q", result.Output)
	}
}

func TestJavaScriptIsolatedRuns(t *testing.T) {
	ctx := context.Background()
	if res := sharedExec.Run(ctx, sharedLang, `globalThis.leak = 1`); res.Error != nil {
		t.Fatalf("first run: %v", res.Error)
	}

	res := sharedExec.Run(ctx, sharedLang, `typeof leak`)
	if res.Value != "undefined" {
		t.Errorf("global survived between runs: typeof leak = %q", res.Value)
	}
}

func TestJavaScriptNoHostAccess(t *testing.T) {
	ctx := context.Background()

	res := sharedExec.Run(ctx, sharedLang, `String(std.loadFile("/etc/passwd"))`)
	if res.Value != "null" {
		t.Errorf("filesystem visible: %q %v", res.Value, res.Error)
	}

	res = sharedExec.Run(ctx, sharedLang, `String(std.getenv("HOME"))`)
	if res.Value != "undefined" {
		t.Errorf("environment visible: %q %v", res.Value, res.Error)
	}
}

// =============================================================================
// EXECUTOR BEHAVIOR TESTS
// =============================================================================

func TestExecutorTimeout(t *testing.T) {
	result := sharedExec.Run(context.Background(), sharedLang, `for (;;) {}`, executor.WithTimeout(500*time.Millisecond))

	if !errors.Is(result.Error, executor.ErrTimeout) {
		t.Fatalf("expected timeout error, got %v", result.Error)
	}
	if !strings.Contains(result.Error.Error(), "timeout after 500ms") {
		t.Errorf("error = %v", result.Error)
	}

	// The executor stays usable.
	if res := sharedExec.Run(context.Background(), sharedLang, `2`); res.Value != "2" {
		t.Errorf("run after timeout: %q %v", res.Value, res.Error)
	}
}

func TestExecutorDurationTracked(t *testing.T) {
	result := sharedExec.Run(context.Background(), sharedLang, `1`)
	if result.Duration <= 0 {
		t.Error("expected positive duration")
	}
}

func TestJavaScriptSessionKeepsGlobals(t *testing.T) {
	session, err := sharedExec.NewSession(context.Background(), sharedLang)
	if err != nil {
		t.Fatalf("failed to create session: %v", err)
	}
	defer session.Close()

	ctx := context.Background()
	if res := session.Run(ctx, `var x = 41`); res.Error != nil {
		t.Fatalf("define: %v", res.Error)
	}
	res := session.Run(ctx, `x + 1`)
	if res.Error != nil || res.Value != "42" {
		t.Errorf("x + 1 = %q, %v", res.Value, res.Error)
	}
}
