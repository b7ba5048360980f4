package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/caffeineduck/scratchpad/router"
	"github.com/caffeineduck/scratchpad/studio"
	"github.com/caffeineduck/scratchpad/terminal"
)

var termCmd = &cobra.Command{
	Use:   "term",
	Short: "Interactive terminal sessions over the workspace",
	Long: `Start an interactive terminal on the workspace.

Type "help" for the terminal's own commands (ls, run, python, node, git...).
Lines starting with a dot control the terminal itself:

  .new            open a new session
  .next           switch to the next session
  .close          close the active session
  .sessions       list sessions
  .open <file>    make <file> the active artifact
  .reload         rebuild the preview document
  .quit           leave (also Ctrl+D)

Python runs finish in the background; their output is printed as soon as
it is appended to the session that asked for it.`,
	Args: cobra.NoArgs,
	RunE: runTerm,
}

func init() {
	termCmd.Flags().String("history", "", "History file path (default: ~/.scratchpad_history)")
	rootCmd.AddCommand(termCmd)
}

var (
	resultStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	promptStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
)

func renderLine(line router.OutputLine) string {
	switch line.Channel {
	case router.ChannelError:
		return errorStyle.Render(line.Text)
	case router.ChannelEcho:
		return labelStyle.Render(line.Text)
	default:
		return resultStyle.Render(line.Text)
	}
}

func runTerm(cmd *cobra.Command, args []string) error {
	historyFile, _ := cmd.Flags().GetString("history")
	if historyFile == "" {
		home, _ := os.UserHomeDir()
		historyFile = filepath.Join(home, ".scratchpad_history")
	}

	st, err := openStudio(cmd.Context(), cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:            prompt(st.Terminal),
		HistoryFile:       historyFile,
		HistoryLimit:      1000,
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		return fmt.Errorf("init readline: %w", err)
	}
	defer rl.Close()

	unsubscribe := st.Terminal.Subscribe(printer(rl.Stdout()))
	defer unsubscribe()

	fmt.Fprintf(rl.Stdout(), "scratchpad %s terminal (type 'help' for commands, '.quit' to leave)\n", studio.Version)

	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			if errors.Is(err, io.EOF) {
				fmt.Fprintln(rl.Stdout())
				return nil
			}
			return fmt.Errorf("read input: %w", err)
		}

		text := strings.TrimSpace(line)
		if strings.HasPrefix(text, ".") {
			if quit := control(rl.Stdout(), st, text); quit {
				return nil
			}
			rl.SetPrompt(prompt(st.Terminal))
			continue
		}
		st.Terminal.Submit(cmd.Context(), st.Terminal.Active(), line)
	}
}

func prompt(m *terminal.Multiplexer) string {
	for _, s := range m.Sessions() {
		if s.Active {
			return promptStyle.Render("["+s.Label+"] $") + " "
		}
	}
	return promptStyle.Render("$") + " "
}

// printer writes session events as they are appended. Echo lines are
// skipped since the user just typed them; lines for another session carry
// that session's label.
func printer(w io.Writer) func(terminal.Event) {
	return func(ev terminal.Event) {
		active := ev.Session == ev.Active
		if ev.Cleared {
			if active {
				fmt.Fprint(w, "\033[H\033[2J")
			}
			return
		}
		if ev.Line.Channel == router.ChannelEcho {
			return
		}
		if !active {
			fmt.Fprintf(w, "%s %s\n", labelStyle.Render(fmt.Sprintf("[session %d]", ev.Session)), renderLine(ev.Line))
			return
		}
		fmt.Fprintln(w, renderLine(ev.Line))
	}
}

// control handles one dot command and reports whether to quit.
func control(w io.Writer, st *studio.Studio, text string) bool {
	fields := strings.Fields(text)
	m := st.Terminal

	switch fields[0] {
	case ".quit", ".exit":
		return true
	case ".new":
		m.CreateSession()
	case ".next":
		sessions := m.Sessions()
		for i, s := range sessions {
			if s.Active {
				m.Activate(sessions[(i+1)%len(sessions)].ID)
				break
			}
		}
	case ".close":
		if !m.CloseSession(m.Active()) {
			fmt.Fprintln(w, errorStyle.Render("cannot close the last session"))
		}
	case ".sessions":
		for _, s := range m.Sessions() {
			marker := " "
			if s.Active {
				marker = "*"
			}
			fmt.Fprintf(w, "%s %d %s (%d lines)\n", marker, s.ID, s.Label, len(s.Log))
		}
	case ".open":
		if len(fields) < 2 {
			fmt.Fprintln(w, errorStyle.Render("usage: .open <file>"))
			break
		}
		a, ok := st.Store.FindByName(fields[1])
		if !ok {
			fmt.Fprintln(w, errorStyle.Render(fields[1]+": no such file"))
			break
		}
		st.Store.Activate(a.ID)
		fmt.Fprintf(w, "active: %s\n", a.Name)
	case ".reload":
		b := st.Preview.Reload()
		fmt.Fprintf(w, "preview revision %d (%d bytes)\n", b.Revision, len(b.Document))
	default:
		fmt.Fprintln(w, errorStyle.Render("unknown control "+fields[0]))
	}
	return false
}
