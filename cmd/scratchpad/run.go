package main

import (
	"errors"
	"fmt"
	"io"
	"iter"
	"os"

	"github.com/spf13/cobra"

	"github.com/caffeineduck/scratchpad/router"
	"github.com/caffeineduck/scratchpad/studio"
	"github.com/caffeineduck/scratchpad/workspace"
)

// errReported means the command already printed its failure.
var errReported = errors.New("failed")

var runCmd = &cobra.Command{
	Use:   "run [file]",
	Short: "Run one file or snippet",
	Long: `Run code from a file, an inline string, or stdin.

The kind is taken from --kind or the file extension. Python runs in the
bridged interpreter, JavaScript in a fresh isolated instance. Markup and
style have nothing to run and only report that.

Examples:
  scratchpad run script.py
  scratchpad run -c "1 + 2" --kind python
  echo "console.log(6 * 7)" | scratchpad run --kind js`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringP("code", "c", "", "Code to run")
	runCmd.Flags().StringP("kind", "k", "", "Kind: text, markup, style, script (js), python (default: from extension)")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	code, _ := cmd.Flags().GetString("code")
	kindFlag, _ := cmd.Flags().GetString("kind")

	var filename, source string
	switch {
	case code != "":
		source = code
	case len(args) > 0:
		filename = args[0]
		data, err := os.ReadFile(filename)
		if err != nil {
			return fmt.Errorf("read file: %w", err)
		}
		source = string(data)
	default:
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		source = string(data)
	}

	kind, err := resolveKind(kindFlag, filename)
	if err != nil {
		return err
	}

	st, err := openStudio(cmd.Context(), cmd, studio.WithArtifacts(nil, ""))
	if err != nil {
		return err
	}
	defer st.Close()

	if !printLines(cmd.OutOrStdout(), cmd.ErrOrStderr(), st.Router.Run(cmd.Context(), kind, source)) {
		return errReported
	}
	return nil
}

// resolveKind prefers an explicit kind and falls back to the file
// extension. Snippets without either are an error.
func resolveKind(flag, filename string) (workspace.Kind, error) {
	if flag != "" {
		return workspace.ParseKind(flag)
	}
	if filename == "" {
		return 0, errors.New("kind required: use --kind python or --kind js")
	}
	return workspace.KindForName(filename), nil
}

// printLines writes result lines to out and error lines to errOut. It
// reports whether no error line was seen.
func printLines(out, errOut io.Writer, lines iter.Seq[router.OutputLine]) bool {
	ok := true
	for line := range lines {
		switch line.Channel {
		case router.ChannelError:
			ok = false
			fmt.Fprintf(errOut, "error: %s\n", line.Text)
		default:
			fmt.Fprintln(out, line.Text)
		}
	}
	return ok
}
