// Package language holds the interpreter adapters used by the executor and
// the Source type that locates their WASM binaries.
//
// Interpreter binaries are large and are not embedded. A Source points at a
// local file and, optionally, a URL to download it from on first use:
//
//	src := language.Source{
//	    Path: "~/.cache/scratchpad/python.wasm",
//	    URL:  "https://example.com/rustpython.wasm",
//	}
//	py := python.New(src)
//
// See [github.com/caffeineduck/scratchpad/language/python] and
// [github.com/caffeineduck/scratchpad/language/javascript].
package language
