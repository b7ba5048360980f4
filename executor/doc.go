// Package executor provides the WebAssembly execution engine behind the
// scratchpad runtimes.
//
// # Overview
//
// The executor manages WASM module compilation, caching, and execution.
// It supports both stateless execution (single Run call) and stateful
// sessions (multiple Run calls with persistent state).
//
// # Basic Usage
//
//	exec, err := executor.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer exec.Close()
//
//	js := javascript.New(language.Source{}) // embedded QuickJS
//	result := exec.Run(ctx, js, `1 + 2`)
//	fmt.Println(result.Value) // 3
//
// # Sessions
//
// Sessions maintain state across multiple executions:
//
//	session, err := exec.NewSession(ctx, python.New(src))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer session.Close()
//
//	session.Run(ctx, `x = 42`)
//	session.Run(ctx, `print(x)`)  // Output: 42
//
// # Isolation
//
// Guest code gets stdout and stderr and nothing else. One-shot runs have
// no stdin, filesystem, or environment. Sessions read commands from stdin
// and may mount a package directory read-only with [WithPackages].
//
// # Frames
//
// Language helpers report to the host through frames on stderr:
// \x00PAD_READY\x00, \x00PAD_DONE\x00, \x00PAD_VALUE:<text>\x00 and
// \x00PAD_ERROR:<msg>\x00. Everything else on stderr is ordinary output.
//
// # Language Interface
//
// To add support for a new language, implement the [Language] interface.
// See [github.com/caffeineduck/scratchpad/language/python] for an example.
package executor
