// Package javascript provides the JavaScript language adapter backed by a
// WASI build of QuickJS.
package javascript

import (
	"context"
	_ "embed"
	"encoding/json"

	quickjswasi "github.com/paralin/go-quickjs-wasi"

	"github.com/caffeineduck/scratchpad/language"
)

//go:embed stdlib.js
var stdlib string

// JavaScript implements the executor.Language interface for JavaScript execution.
type JavaScript struct {
	src language.Source
}

// New returns a JavaScript language adapter. A zero src uses the embedded
// QuickJS build; a path or URL overrides it.
func New(src language.Source) *JavaScript {
	return &JavaScript{src: src}
}

// Name returns "javascript".
func (j *JavaScript) Name() string {
	return "javascript"
}

// Module returns the QuickJS WASM binary.
func (j *JavaScript) Module(ctx context.Context) ([]byte, error) {
	if j.src.Path == "" && j.src.URL == "" {
		return quickjswasi.QuickJSWASM, nil
	}
	return j.src.Load(ctx)
}

// WrapCode appends a call that evaluates code as an indirect eval, so the
// completion value of the last statement is reported back.
func (j *JavaScript) WrapCode(code string) string {
	b, _ := json.Marshal(code)
	return stdlib + "\n__padMain(" + string(b) + ");\n"
}

// Args returns the command-line arguments for the QuickJS interpreter.
func (j *JavaScript) Args(wrappedCode string) []string {
	return []string{"qjs", "--std", "-e", wrappedCode}
}

// SessionInit switches the helpers into the stdin command loop.
func (j *JavaScript) SessionInit() string {
	return "globalThis.__padSession = true;\n"
}
