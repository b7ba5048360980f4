// Package scratchpad is the execution and session core of a browser code
// scratchpad.
//
// # Overview
//
// A workspace holds named artifacts (markup, style, script and Python
// files). The router decides how an artifact runs: passive kinds produce
// a notice, scripts run one-shot in an isolated QuickJS module, and Python
// goes through a bridge to a long-lived interpreter session. The preview
// compositor folds markup, style and script into one sandboxed document,
// and the terminal multiplexer gives each console session its own ordered
// log.
//
// # Basic Usage
//
//	cfg, _ := config.Load("", nil)
//	st, _ := studio.New(ctx, cfg)
//	defer st.Close()
//
//	for line := range st.Router.Run(ctx, workspace.KindPython, `print(1)`) {
//	    fmt.Println(line.Channel, line.Text)
//	}
//
// # Packages
//
//   - [github.com/caffeineduck/scratchpad/executor]: wazero engine and frames
//   - [github.com/caffeineduck/scratchpad/language]: interpreter sources and adapters
//   - [github.com/caffeineduck/scratchpad/workspace]: artifact store
//   - [github.com/caffeineduck/scratchpad/bridge]: lazily loaded runtime bridge
//   - [github.com/caffeineduck/scratchpad/router]: execution strategies
//   - [github.com/caffeineduck/scratchpad/preview]: document compositor
//   - [github.com/caffeineduck/scratchpad/terminal]: console multiplexer
//   - [github.com/caffeineduck/scratchpad/studio]: wiring of all of the above
package scratchpad
