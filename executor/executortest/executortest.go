// Package executortest provides a mock interpreter for testing executor
// logic without the overhead of real Python or JavaScript runtimes.
//
// The mock is a small Go program in executor/testdata, compiled for wasip1
// on first use. Tests that need it are skipped when no Go toolchain is on
// PATH.
package executortest

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
)

var (
	mockOnce sync.Once
	mockWasm []byte
	mockErr  error
	mockSkip string
)

// Language implements executor.Language over the mock guest.
type Language struct {
	wasm []byte
}

// Name returns "mock".
func (l *Language) Name() string {
	return "mock"
}

func (l *Language) Module(ctx context.Context) ([]byte, error) {
	return l.wasm, nil
}

// WrapCode returns code unchanged; the mock parses commands itself.
func (l *Language) WrapCode(code string) string {
	return code
}

func (l *Language) Args(wrappedCode string) []string {
	return []string{"mock", wrappedCode}
}

// SessionInit returns nothing. The mock enters its command loop when
// PAD_SESSION is set, which every session does.
func (l *Language) SessionInit() string {
	return ""
}

// Mock returns the mock language, building the guest once per test binary.
func Mock(tb testing.TB) *Language {
	tb.Helper()

	mockOnce.Do(build)
	if mockSkip != "" {
		tb.Skip(mockSkip)
	}
	if mockErr != nil {
		tb.Fatalf("build mock guest: %v", mockErr)
	}
	return &Language{wasm: mockWasm}
}

func build() {
	goBin, err := exec.LookPath("go")
	if err != nil {
		mockSkip = "go toolchain not found; mock guest cannot be built"
		return
	}

	_, file, _, _ := runtime.Caller(0)
	src := filepath.Join(filepath.Dir(file), "..", "testdata")

	dir, err := os.MkdirTemp("", "scratchpad-mock-*")
	if err != nil {
		mockErr = err
		return
	}
	defer os.RemoveAll(dir)

	out := filepath.Join(dir, "mock.wasm")
	cmd := exec.Command(goBin, "build", "-o", out, "mock.go")
	cmd.Dir = src
	cmd.Env = append(os.Environ(), "GOOS=wasip1", "GOARCH=wasm", "CGO_ENABLED=0")
	if output, err := cmd.CombinedOutput(); err != nil {
		mockErr = fmt.Errorf("%w\n%s", err, output)
		return
	}

	mockWasm, mockErr = os.ReadFile(out)
}
