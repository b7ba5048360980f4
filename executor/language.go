package executor

import "context"

// Language defines the interface for a WASM-based language runtime.
// Implement this interface to add support for new interpreters.
type Language interface {
	// Name returns a unique identifier for this language (e.g., "python", "javascript").
	// Used as the cache key for compiled modules.
	Name() string

	// Module returns the WASM binary for the language interpreter.
	// Binaries are resolved lazily, so loading may fail or block on a download.
	Module(ctx context.Context) ([]byte, error)

	// WrapCode prepares user code for execution by prepending the frame
	// helpers that report values, faults and completion to the host.
	WrapCode(code string) string

	// Args returns the command-line arguments to pass to the WASM module.
	// For Python: []string{"python", "-c", code}
	// For QuickJS: []string{"qjs", "--std", "-e", code}
	Args(wrappedCode string) []string

	// SessionInit returns code to inject before the helpers for session mode.
	// The helpers check the flag it sets and enter the command loop.
	SessionInit() string
}
