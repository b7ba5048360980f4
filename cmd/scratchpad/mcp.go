package main

import (
	"context"
	"fmt"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/caffeineduck/scratchpad/router"
	"github.com/caffeineduck/scratchpad/studio"
	"github.com/caffeineduck/scratchpad/terminal"
	"github.com/caffeineduck/scratchpad/workspace"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the workspace as MCP tools over stdio",
	Long: `Run a Model Context Protocol server on stdin/stdout.

Tools: list_files, read_file, write_file, run, terminal, preview, runtime.
Logs go to stderr so they never mix with the protocol stream.`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, args []string) error {
	st, err := openStudio(cmd.Context(), cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	return newMCPServer(st).Run(cmd.Context(), &sdkmcp.StdioTransport{})
}

type tools struct {
	st *studio.Studio
}

func newMCPServer(st *studio.Studio) *sdkmcp.Server {
	t := &tools{st: st}
	server := sdkmcp.NewServer(&sdkmcp.Implementation{Name: "scratchpad", Version: studio.Version}, nil)

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "list_files",
		Description: "List the open files with their kind and which one is active.",
	}, t.listFiles)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "read_file",
		Description: "Read one open file by name.",
	}, t.readFile)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "write_file",
		Description: "Replace the content of an open file, or open it when no file has that name.",
	}, t.writeFile)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "run",
		Description: "Run a file by name, or a snippet of the given kind. Python keeps its globals between runs; JavaScript starts fresh every time.",
	}, t.run)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "terminal",
		Description: "Submit one command line to a terminal session (help, ls, run <file>, python <file>, git ...) and return the lines it appended.",
	}, t.terminal)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "preview",
		Description: "Return the composed preview document built from the first markup, style and script files.",
	}, t.preview)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "runtime",
		Description: "Report the Python runtime state: uninitialized, loading, ready or failed.",
	}, t.runtime)

	return server
}

// line is an OutputLine with a string channel, so the inferred output
// schema matches what is sent.
type line struct {
	Channel string `json:"channel"`
	Text    string `json:"text"`
}

func toLines(in []router.OutputLine) []line {
	out := make([]line, 0, len(in))
	for _, l := range in {
		out = append(out, line{Channel: l.Channel.String(), Text: l.Text})
	}
	return out
}

type fileInfo struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Kind   string `json:"kind"`
	Active bool   `json:"active"`
}

type listFilesInput struct{}

type listFilesOutput struct {
	Files []fileInfo `json:"files"`
}

func (t *tools) listFiles(ctx context.Context, _ *sdkmcp.CallToolRequest, _ listFilesInput) (*sdkmcp.CallToolResult, listFilesOutput, error) {
	active := t.st.Store.ActiveID()
	out := listFilesOutput{Files: []fileInfo{}}
	for _, a := range t.st.Store.List() {
		out.Files = append(out.Files, fileInfo{
			ID:     string(a.ID),
			Name:   a.Name,
			Kind:   a.Kind.String(),
			Active: a.ID == active,
		})
	}
	return nil, out, nil
}

type readFileInput struct {
	Name string `json:"name" jsonschema:"file name or path, e.g. src/index.html or index.html"`
}

type readFileOutput struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Kind    string `json:"kind"`
	Content string `json:"content"`
}

func (t *tools) readFile(ctx context.Context, _ *sdkmcp.CallToolRequest, in readFileInput) (*sdkmcp.CallToolResult, readFileOutput, error) {
	a, ok := t.st.Store.FindByName(in.Name)
	if !ok {
		return nil, readFileOutput{}, fmt.Errorf("%s: no such file", in.Name)
	}
	return nil, readFileOutput{ID: string(a.ID), Name: a.Name, Kind: a.Kind.String(), Content: a.Content}, nil
}

type writeFileInput struct {
	Name    string `json:"name" jsonschema:"file name; a new file is opened when none matches"`
	Content string `json:"content" jsonschema:"full new content"`
	Kind    string `json:"kind,omitempty" jsonschema:"kind for a new file (text, markup, style, script, python); inferred from the extension when empty"`
}

type writeFileOutput struct {
	ID      string `json:"id"`
	Created bool   `json:"created"`
}

func (t *tools) writeFile(ctx context.Context, _ *sdkmcp.CallToolRequest, in writeFileInput) (*sdkmcp.CallToolResult, writeFileOutput, error) {
	if a, ok := t.st.Store.FindByName(in.Name); ok {
		t.st.Store.Update(a.ID, in.Content)
		return nil, writeFileOutput{ID: string(a.ID)}, nil
	}

	a, err := workspace.Record{Name: in.Name, Kind: in.Kind, Content: in.Content}.Artifact()
	if err != nil {
		return nil, writeFileOutput{}, err
	}
	t.st.Store.Open(a)
	return nil, writeFileOutput{ID: string(a.ID), Created: true}, nil
}

type runInput struct {
	File    string `json:"file,omitempty" jsonschema:"name of an open file to run"`
	Kind    string `json:"kind,omitempty" jsonschema:"kind of the snippet when no file is given (script or python)"`
	Content string `json:"content,omitempty" jsonschema:"snippet to run when no file is given"`
}

type runOutput struct {
	Lines  []line `json:"lines"`
	Failed bool   `json:"failed"`
}

func (t *tools) run(ctx context.Context, _ *sdkmcp.CallToolRequest, in runInput) (*sdkmcp.CallToolResult, runOutput, error) {
	var (
		kind    workspace.Kind
		content string
	)
	switch {
	case in.File != "":
		a, ok := t.st.Store.FindByName(in.File)
		if !ok {
			return nil, runOutput{}, fmt.Errorf("%s: no such file", in.File)
		}
		kind, content = a.Kind, a.Content
	case in.Kind != "":
		k, err := workspace.ParseKind(in.Kind)
		if err != nil {
			return nil, runOutput{}, err
		}
		kind, content = k, in.Content
	default:
		return nil, runOutput{}, fmt.Errorf("file or kind required")
	}

	out := runOutput{Lines: []line{}}
	for l := range t.st.Router.Run(ctx, kind, content) {
		if l.Channel == router.ChannelError {
			out.Failed = true
		}
		out.Lines = append(out.Lines, line{Channel: l.Channel.String(), Text: l.Text})
	}
	return nil, out, nil
}

type terminalInput struct {
	Command string `json:"command" jsonschema:"command line, e.g. run script.js or git status"`
	Session int    `json:"session,omitempty" jsonschema:"session ID; the active session when zero"`
}

type terminalOutput struct {
	Session int    `json:"session"`
	Lines   []line `json:"lines"`
}

func (t *tools) terminal(ctx context.Context, _ *sdkmcp.CallToolRequest, in terminalInput) (*sdkmcp.CallToolResult, terminalOutput, error) {
	m := t.st.Terminal
	id := terminal.SessionID(in.Session)
	if id == 0 {
		id = m.Active()
	}
	if !hasSession(m, id) {
		return nil, terminalOutput{}, fmt.Errorf("session %d not found", id)
	}

	before := len(m.Log(id))
	m.Submit(ctx, id, in.Command)
	m.Wait()

	lines := m.Log(id)
	if len(lines) >= before {
		lines = lines[before:]
	}
	return nil, terminalOutput{Session: int(id), Lines: toLines(lines)}, nil
}

func hasSession(m *terminal.Multiplexer, id terminal.SessionID) bool {
	for _, s := range m.Sessions() {
		if s.ID == id {
			return true
		}
	}
	return false
}

type previewInput struct {
	Reload bool `json:"reload,omitempty" jsonschema:"force a rebuild first"`
}

type previewOutput struct {
	Revision uint64 `json:"revision"`
	ETag     string `json:"etag"`
	Document string `json:"document"`
}

func (t *tools) preview(ctx context.Context, _ *sdkmcp.CallToolRequest, in previewInput) (*sdkmcp.CallToolResult, previewOutput, error) {
	b := t.st.Preview.Current()
	if in.Reload {
		b = t.st.Preview.Reload()
	}
	return nil, previewOutput{Revision: b.Revision, ETag: b.Document.ETag(), Document: string(b.Document)}, nil
}

type runtimeInput struct{}

type runtimeOutput struct {
	Name  string `json:"name"`
	State string `json:"state"`
	Error string `json:"error,omitempty"`
}

func (t *tools) runtime(ctx context.Context, _ *sdkmcp.CallToolRequest, _ runtimeInput) (*sdkmcp.CallToolResult, runtimeOutput, error) {
	out := runtimeOutput{Name: t.st.Bridge.Name(), State: t.st.Bridge.State().String()}
	if err := t.st.Bridge.Err(); err != nil {
		out.Error = err.Error()
	}
	return nil, out, nil
}
