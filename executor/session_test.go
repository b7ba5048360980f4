package executor_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/caffeineduck/scratchpad/executor"
	"github.com/caffeineduck/scratchpad/executor/executortest"
)

func newMockSession(t *testing.T, opts ...executor.SessionOption) *executor.Session {
	t.Helper()
	exec, lang := newMockExecutor(t)

	session, err := exec.NewSession(context.Background(), lang, opts...)
	if err != nil {
		t.Fatalf("failed to create session: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

func TestSessionBasic(t *testing.T) {
	session := newMockSession(t)

	result := session.Run(context.Background(), "hello")
	if result.Error != nil {
		t.Fatalf("run failed: %v", result.Error)
	}
	if result.Output != "hello\n" || result.Value != "hello" {
		t.Errorf("output, value = %q, %q", result.Output, result.Value)
	}
}

func TestSessionStatePersists(t *testing.T) {
	session := newMockSession(t)

	result := session.Run(context.Background(), "set x=42")
	if result.Error != nil {
		t.Fatalf("first run failed: %v", result.Error)
	}

	result = session.Run(context.Background(), "get x")
	if result.Error != nil {
		t.Fatalf("second run failed: %v", result.Error)
	}
	if result.Value != "42" {
		t.Errorf("expected value '42', got: %q", result.Value)
	}
}

func TestSessionError(t *testing.T) {
	session := newMockSession(t)

	result := session.Run(context.Background(), "fail ValueError: test error")
	if result.Error == nil {
		t.Fatal("expected error, got none")
	}
	if !strings.Contains(result.Error.Error(), "ValueError") {
		t.Errorf("expected error to contain 'ValueError', got: %v", result.Error)
	}

	// A fault does not end the session.
	if res := session.Run(context.Background(), "after"); res.Value != "after" {
		t.Errorf("run after fault: %q %v", res.Value, res.Error)
	}
}

func TestSessionMultipleRuns(t *testing.T) {
	session := newMockSession(t)

	for i := range 5 {
		code := fmt.Sprintf("iteration-%d", i)
		result := session.Run(context.Background(), code)
		if result.Error != nil {
			t.Fatalf("run %d failed: %v", i, result.Error)
		}
		if result.Value != code || result.Output != code+"\n" {
			t.Errorf("run %d: output %q value %q", i, result.Output, result.Value)
		}
	}
}

func TestSessionStrayStderr(t *testing.T) {
	session := newMockSession(t)

	result := session.Run(context.Background(), "stderr careful")
	if result.Error != nil {
		t.Fatalf("run failed: %v", result.Error)
	}
	if result.Output != "careful" {
		t.Errorf("output = %q", result.Output)
	}

	// Stderr from one run does not leak into the next.
	if res := session.Run(context.Background(), "next"); res.Output != "next\n" {
		t.Errorf("output = %q", res.Output)
	}
}

func TestSessionClosedError(t *testing.T) {
	session := newMockSession(t)
	session.Close()

	result := session.Run(context.Background(), "hello")
	if result.Error != executor.ErrSessionClosed {
		t.Errorf("expected ErrSessionClosed, got: %v", result.Error)
	}
	if !session.Closed() {
		t.Error("Closed() = false after Close")
	}
}

func TestSessionTimeout(t *testing.T) {
	session := newMockSession(t, executor.WithSessionTimeout(100*time.Millisecond))

	result := session.Run(context.Background(), "spin")
	if result.Error == nil {
		t.Fatal("expected timeout error, got none")
	}
	if !errors.Is(result.Error, executor.ErrTimeout) {
		t.Errorf("expected timeout error, got: %v", result.Error)
	}
	if !session.Closed() {
		t.Error("session still open after timeout")
	}
}

func TestSessionTimeoutDropsLateResult(t *testing.T) {
	session := newMockSession(t, executor.WithSessionTimeout(200*time.Millisecond))
	ctx := context.Background()

	first := session.Run(ctx, "sleep 800")
	if !errors.Is(first.Error, executor.ErrTimeout) {
		t.Fatalf("first: expected timeout, got %q %v", first.Value, first.Error)
	}

	// The sleeping guest would otherwise answer the next command with its
	// own late frames.
	for _, code := range []string{"B", "C"} {
		res := session.Run(ctx, code)
		if !errors.Is(res.Error, executor.ErrSessionClosed) {
			t.Errorf("%s: expected ErrSessionClosed, got value %q err %v", code, res.Value, res.Error)
		}
	}

	time.Sleep(800 * time.Millisecond)
	if res := session.Run(ctx, "D"); res.Value != "" || !errors.Is(res.Error, executor.ErrSessionClosed) {
		t.Errorf("late result surfaced: value %q err %v", res.Value, res.Error)
	}
}

func TestSessionGuestExit(t *testing.T) {
	tests := []struct {
		name    string
		code    string
		wantErr string
	}{
		{name: "clean", code: "exit 0", wantErr: "session closed"},
		{name: "status", code: "exit 2", wantErr: "exit_code(2)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session := newMockSession(t, executor.WithSessionTimeout(5*time.Second))

			res := session.Run(context.Background(), tt.code)
			if !errors.Is(res.Error, executor.ErrSessionClosed) {
				t.Fatalf("expected ErrSessionClosed, got: %v", res.Error)
			}
			if !strings.Contains(res.Error.Error(), tt.wantErr) {
				t.Errorf("error = %v, want %q", res.Error, tt.wantErr)
			}
			if res.Duration >= 5*time.Second {
				t.Error("run waited for the timeout instead of noticing the exit")
			}

			if res := session.Run(context.Background(), "hello"); !errors.Is(res.Error, executor.ErrSessionClosed) {
				t.Errorf("run after exit: %v", res.Error)
			}
		})
	}
}

// exitingLanguage makes the mock exit from its init code, before it ever
// reports readiness.
type exitingLanguage struct {
	*executortest.Language
}

func (exitingLanguage) SessionInit() string { return "exit 0" }

func TestSessionStartFailsWhenGuestExits(t *testing.T) {
	exec, lang := newMockExecutor(t)

	_, err := exec.NewSession(context.Background(), exitingLanguage{lang})
	if err == nil || !strings.Contains(err.Error(), "exited before ready") {
		t.Errorf("err = %v", err)
	}
}

func TestMultipleSessions(t *testing.T) {
	session1 := newMockSession(t)
	session2 := newMockSession(t)
	ctx := context.Background()

	session1.Run(ctx, "set x=session1")
	session2.Run(ctx, "set x=session2")

	result1 := session1.Run(ctx, "get x")
	result2 := session2.Run(ctx, "get x")

	if result1.Value != "session1" {
		t.Errorf("session1 should have x='session1', got: %q", result1.Value)
	}
	if result2.Value != "session2" {
		t.Errorf("session2 should have x='session2', got: %q", result2.Value)
	}
}
