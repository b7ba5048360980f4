package terminal

import (
	"fmt"
	"hash/fnv"
	"slices"
	"strings"

	"github.com/caffeineduck/scratchpad/router"
)

// GitCommand is one of the simulated version-control subcommands.
type GitCommand int

const (
	GitStatus GitCommand = iota
	GitBranch
	GitLog
	GitDiff
	GitAdd
	GitCommit
	GitPush
	GitPull
)

var gitCommands = map[string]GitCommand{
	"status": GitStatus,
	"branch": GitBranch,
	"log":    GitLog,
	"diff":   GitDiff,
	"add":    GitAdd,
	"commit": GitCommit,
	"push":   GitPush,
	"pull":   GitPull,
}

const gitBranch = "main"

// repo is the simulated repository: staged names and commit subjects,
// shared by every session.
type repo struct {
	staged  []string
	commits []gitCommit
}

type gitCommit struct {
	hash    string
	subject string
	files   []string
}

func shortHash(parts ...string) string {
	h := fnv.New32a()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return fmt.Sprintf("%07x", h.Sum32()&0xfffffff)
}

// git runs a simulated subcommand. mu is held.
func (m *Multiplexer) git(args []string) []router.OutputLine {
	if len(args) == 0 {
		return result("usage: git <command> [<args>]", "commands: status branch log diff add commit push pull")
	}

	name := args[0]
	sub, ok := gitCommands[name]
	if !ok {
		return errorLine("git: '%s' is not a git command. See 'git help'.", name)
	}
	args = args[1:]

	switch sub {
	case GitStatus:
		return m.gitStatus()
	case GitBranch:
		return result("* " + gitBranch)
	case GitLog:
		if len(m.repo.commits) == 0 {
			return errorLine("fatal: your current branch '%s' does not have any commits yet", gitBranch)
		}
		var lines []string
		for i := len(m.repo.commits) - 1; i >= 0; i-- {
			c := m.repo.commits[i]
			head := ""
			if i == len(m.repo.commits)-1 {
				head = " (HEAD -> " + gitBranch + ")"
			}
			lines = append(lines, "commit "+c.hash+head, "    "+c.subject)
		}
		return result(lines...)
	case GitDiff:
		if len(args) > 0 {
			if _, ok := m.store.FindByName(args[0]); !ok {
				return errorLine("fatal: ambiguous argument '%s': unknown revision or path", args[0])
			}
		}
		return nil
	case GitAdd:
		return m.gitAdd(args)
	case GitCommit:
		return m.gitCommit(args)
	case GitPush:
		if len(m.repo.commits) == 0 {
			return errorLine("error: src refspec %s does not match any", gitBranch)
		}
		return result("Everything up-to-date")
	case GitPull:
		return result("Already up to date.")
	default:
		return errorLine("git: '%s' is not a git command. See 'git help'.", name)
	}
}

func (m *Multiplexer) gitStatus() []router.OutputLine {
	lines := []string{"On branch " + gitBranch}

	if len(m.repo.staged) > 0 {
		lines = append(lines, "Changes to be committed:")
		for _, name := range m.repo.staged {
			lines = append(lines, "    new file:   "+name)
		}
	}

	var untracked []string
	for _, a := range m.store.List() {
		if !slices.Contains(m.repo.staged, a.Name) && !m.committed(a.Name) {
			untracked = append(untracked, a.Name)
		}
	}
	if len(untracked) > 0 {
		lines = append(lines, "Untracked files:")
		for _, name := range untracked {
			lines = append(lines, "    "+name)
		}
	}

	if len(m.repo.staged) == 0 && len(untracked) == 0 {
		lines = append(lines, "nothing to commit, working tree clean")
	}
	return result(lines...)
}

func (m *Multiplexer) committed(name string) bool {
	for _, c := range m.repo.commits {
		if slices.Contains(c.files, name) {
			return true
		}
	}
	return false
}

func (m *Multiplexer) gitAdd(args []string) []router.OutputLine {
	if len(args) == 0 {
		return result("Nothing specified, nothing added.")
	}

	var names []string
	if args[0] == "." || args[0] == "-A" {
		for _, a := range m.store.List() {
			names = append(names, a.Name)
		}
	} else {
		for _, arg := range args {
			a, ok := m.store.FindByName(arg)
			if !ok {
				return errorLine("fatal: pathspec '%s' did not match any files", arg)
			}
			names = append(names, a.Name)
		}
	}

	for _, name := range names {
		if !slices.Contains(m.repo.staged, name) && !m.committed(name) {
			m.repo.staged = append(m.repo.staged, name)
		}
	}
	return nil
}

func (m *Multiplexer) gitCommit(args []string) []router.OutputLine {
	var subject string
	for i := 0; i < len(args); i++ {
		if args[i] == "-m" && i+1 < len(args) {
			subject = args[i+1]
			break
		}
		if msg, ok := strings.CutPrefix(args[i], "-m"); ok && msg != "" {
			subject = msg
			break
		}
	}
	if subject == "" {
		return errorLine("error: switch `m' requires a value")
	}
	if len(m.repo.staged) == 0 {
		return result("On branch "+gitBranch, "nothing to commit, working tree clean")
	}

	parent := ""
	if n := len(m.repo.commits); n > 0 {
		parent = m.repo.commits[n-1].hash
	}
	c := gitCommit{
		hash:    shortHash(append([]string{parent, subject}, m.repo.staged...)...),
		subject: subject,
		files:   m.repo.staged,
	}
	m.repo.commits = append(m.repo.commits, c)
	m.repo.staged = nil

	return result(
		fmt.Sprintf("[%s %s] %s", gitBranch, c.hash, subject),
		fmt.Sprintf(" %d file(s) changed", len(c.files)),
	)
}
