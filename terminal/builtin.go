package terminal

import (
	"fmt"
	"strings"

	"mvdan.cc/sh/v3/shell"

	"github.com/caffeineduck/scratchpad/bridge"
	"github.com/caffeineduck/scratchpad/router"
	"github.com/caffeineduck/scratchpad/workspace"
)

// Builtin is a terminal command. The set is closed.
type Builtin int

const (
	BuiltinHelp Builtin = iota
	BuiltinClear
	BuiltinList
	BuiltinPwd
	BuiltinVersion
	BuiltinRun
	BuiltinPython
	BuiltinNode
	BuiltinGit
	BuiltinAbout
	BuiltinSessions
)

// WorkDir is what pwd reports.
const WorkDir = "/home/user/scratchpad"

var builtinNames = map[string]Builtin{
	"help":     BuiltinHelp,
	"clear":    BuiltinClear,
	"cls":      BuiltinClear,
	"ls":       BuiltinList,
	"pwd":      BuiltinPwd,
	"version":  BuiltinVersion,
	"run":      BuiltinRun,
	"python":   BuiltinPython,
	"python3":  BuiltinPython,
	"node":     BuiltinNode,
	"git":      BuiltinGit,
	"about":    BuiltinAbout,
	"mkcode":   BuiltinAbout,
	"sessions": BuiltinSessions,
}

func lookupBuiltin(name string) (Builtin, bool) {
	b, ok := builtinNames[strings.ToLower(name)]
	return b, ok
}

func (b Builtin) String() string {
	switch b {
	case BuiltinHelp:
		return "help"
	case BuiltinClear:
		return "clear"
	case BuiltinList:
		return "ls"
	case BuiltinPwd:
		return "pwd"
	case BuiltinVersion:
		return "version"
	case BuiltinRun:
		return "run"
	case BuiltinPython:
		return "python"
	case BuiltinNode:
		return "node"
	case BuiltinGit:
		return "git"
	case BuiltinAbout:
		return "about"
	case BuiltinSessions:
		return "sessions"
	default:
		return fmt.Sprintf("Builtin(%d)", int(b))
	}
}

var helpText = []string{
	"Available commands:",
	"  help              show this help",
	"  clear, cls        clear this session",
	"  ls                list open files",
	"  pwd               show current directory",
	"  run [file]        run the active file or the named one",
	"  python <file>     run a file on the Python runtime",
	"  python --version  show Python runtime state",
	"  node <file>       evaluate a file as isolated JavaScript",
	"  node --version    show JavaScript engine",
	"  git <command>     status, branch, log, diff, add, commit, push, pull",
	"  sessions          list terminal sessions",
	"  version           show versions",
	"  about             about scratchpad",
}

var aboutText = []string{
	"scratchpad - a terminal-style code scratchpad",
	"edit markup, style and script with a live preview",
	"run JavaScript in isolation and Python on a shared runtime",
}

type command struct {
	name string
	args []string
}

// parseCommand splits text into words with shell quoting rules. Variable
// references expand to nothing. Input the shell parser rejects falls back
// to whitespace splitting.
func parseCommand(text string) command {
	words, err := shell.Fields(text, func(string) string { return "" })
	if err != nil || len(words) == 0 {
		words = strings.Fields(text)
	}
	if len(words) == 0 {
		return command{}
	}
	return command{name: words[0], args: words[1:]}
}

func result(lines ...string) []router.OutputLine {
	out := make([]router.OutputLine, 0, len(lines))
	for _, l := range lines {
		out = append(out, router.Result(l))
	}
	return out
}

func errorLine(format string, args ...any) []router.OutputLine {
	return []router.OutputLine{router.Error(fmt.Sprintf(format, args...))}
}

// dispatch runs a built-in and returns its output. A run sets *job instead
// of producing output. mu is held.
func (m *Multiplexer) dispatch(b Builtin, args []string, job **runJob) []router.OutputLine {
	switch b {
	case BuiltinHelp:
		return result(helpText...)
	case BuiltinClear:
		return nil
	case BuiltinList:
		return m.list()
	case BuiltinPwd:
		return result(WorkDir)
	case BuiltinVersion:
		return result(
			"scratchpad "+m.version,
			m.runtimeLine(),
			"javascript: QuickJS, isolated per run",
		)
	case BuiltinRun:
		return m.run(args, job)
	case BuiltinPython:
		if len(args) == 1 && (args[0] == "--version" || args[0] == "-V") {
			return result(m.runtimeLine())
		}
		return m.runAs(b, workspace.KindPython, args, job)
	case BuiltinNode:
		if len(args) == 1 && (args[0] == "--version" || args[0] == "-v") {
			return result("QuickJS (wasm), isolated per run")
		}
		return m.runAs(b, workspace.KindScript, args, job)
	case BuiltinGit:
		return m.git(args)
	case BuiltinAbout:
		return result(aboutText...)
	case BuiltinSessions:
		lines := make([]string, 0, len(m.sessions))
		for _, other := range m.sessions {
			mark := " "
			if other.id == m.active {
				mark = "*"
			}
			lines = append(lines, fmt.Sprintf("%s %d  %s  (%d lines)", mark, other.id, other.label, len(other.log)))
		}
		return result(lines...)
	default:
		return errorLine("command not found: %s", b)
	}
}

func (m *Multiplexer) list() []router.OutputLine {
	arts := m.store.List()
	if len(arts) == 0 {
		return result("(no open files)")
	}
	active := m.store.ActiveID()
	lines := make([]string, 0, len(arts))
	for _, a := range arts {
		mark := " "
		if a.ID == active {
			mark = "*"
		}
		lines = append(lines, fmt.Sprintf("%s %-24s %s", mark, a.Name, a.Kind))
	}
	return result(lines...)
}

func (m *Multiplexer) runtimeLine() string {
	if m.runtime == nil {
		return "python: not configured"
	}
	state := m.runtime.State()
	if state == bridge.StateFailed {
		if err := m.runtime.Err(); err != nil {
			return fmt.Sprintf("%s: %v", m.runtime.Name(), err)
		}
	}
	return fmt.Sprintf("%s: %s", m.runtime.Name(), state)
}

func (m *Multiplexer) run(args []string, job **runJob) []router.OutputLine {
	var a workspace.Artifact
	switch len(args) {
	case 0:
		active, ok := m.store.Active()
		if !ok {
			return errorLine("run: no active file")
		}
		a = active
	case 1:
		named, ok := m.store.FindByName(args[0])
		if !ok {
			return errorLine("run: %s: no such file", args[0])
		}
		a = named
	default:
		return errorLine("usage: run [file]")
	}

	*job = &runJob{kind: a.Kind, name: a.Name, content: a.Content}
	return nil
}

func (m *Multiplexer) runAs(b Builtin, kind workspace.Kind, args []string, job **runJob) []router.OutputLine {
	if len(args) != 1 {
		return errorLine("usage: %s <file> | %s --version", b, b)
	}
	a, ok := m.store.FindByName(args[0])
	if !ok {
		return errorLine("%s: can't open file '%s'", b, args[0])
	}
	*job = &runJob{kind: kind, name: a.Name, content: a.Content}
	return nil
}
