// Package python provides the Python language adapter.
//
// The interpreter is a WASI build of Python (RustPython or CPython) loaded
// from a [language.Source]. The embedded helpers keep one globals dict per
// process, so in session mode definitions persist across runs.
package python

import (
	"context"
	_ "embed"
	"encoding/json"

	"github.com/caffeineduck/scratchpad/language"
)

//go:embed stdlib.py
var stdlib string

// Python implements the executor.Language interface for Python execution.
type Python struct {
	src language.Source
}

// New returns a Python language adapter reading its module from src.
func New(src language.Source) *Python {
	return &Python{src: src}
}

// Name returns "python".
func (p *Python) Name() string {
	return "python"
}

// Module returns the interpreter WASM binary.
func (p *Python) Module(ctx context.Context) ([]byte, error) {
	return p.src.Load(ctx)
}

// WrapCode appends a call that runs code through the frame helpers.
func (p *Python) WrapCode(code string) string {
	return stdlib + "\n_pad_main(" + quote(code) + ")\n"
}

// Args returns the command-line arguments for the Python interpreter.
func (p *Python) Args(wrappedCode string) []string {
	return []string{"python", "-c", wrappedCode}
}

// SessionInit switches the helpers into the stdin command loop.
func (p *Python) SessionInit() string {
	return "_PAD_SESSION = True\n"
}

// quote renders s as a string literal. JSON string syntax is a subset of
// Python's, so the encoder output can be pasted verbatim.
func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
