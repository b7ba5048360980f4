package main

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/caffeineduck/scratchpad/config"
	"github.com/caffeineduck/scratchpad/executor"
	"github.com/caffeineduck/scratchpad/router"
	"github.com/caffeineduck/scratchpad/studio"
	"github.com/caffeineduck/scratchpad/terminal"
	"github.com/caffeineduck/scratchpad/workspace"
)

type echoInterpreter struct{}

func (echoInterpreter) Load(ctx context.Context) error { return nil }

func (echoInterpreter) Execute(ctx context.Context, code string) executor.Result {
	return executor.Result{Output: "py: " + code + "\n"}
}

func (echoInterpreter) Close() error { return nil }

type evalFunc func(ctx context.Context, code string) executor.Result

func (f evalFunc) Evaluate(ctx context.Context, code string) executor.Result { return f(ctx, code) }

func setupTestStudio(t *testing.T) *studio.Studio {
	t.Helper()

	cfg := config.Default()
	cfg.Runtime.Cache = false
	cfg.Runtime.Timeout = time.Second

	st, err := studio.New(context.Background(), &cfg,
		studio.WithInterpreter(echoInterpreter{}),
		studio.WithEvaluator(evalFunc(func(ctx context.Context, code string) executor.Result {
			if code == "throw" {
				return executor.Result{Output: "before\n", Error: errString("boom")}
			}
			return executor.Result{Value: "js: " + code}
		})),
		studio.WithArtifacts([]workspace.Artifact{
			{ID: "src/index.html", Name: "src/index.html", Kind: workspace.KindMarkup, Content: "<h1>hi</h1>"},
			{ID: "src/style.css", Name: "src/style.css", Kind: workspace.KindStyle, Content: "h1 { color: red }"},
			{ID: "main.py", Name: "main.py", Kind: workspace.KindPython, Content: "print(1)"},
		}, "src/index.html"),
	)
	if err != nil {
		t.Fatalf("studio.New: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

type errString string

func (e errString) Error() string { return string(e) }

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, w.Body.String())
	}
	return v
}

func TestHealthEndpoint(t *testing.T) {
	h := newHandler(setupTestStudio(t))

	w := do(t, h, http.MethodGet, "/health", "")
	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
	if w.Body.String() != "ok" {
		t.Errorf("expected 'ok', got %q", w.Body.String())
	}
}

func TestFilesEndpoints(t *testing.T) {
	st := setupTestStudio(t)
	h := newHandler(st)

	w := do(t, h, http.MethodGet, "/api/files", "")
	if files := decodeBody[[]workspace.Artifact](t, w); len(files) != 3 {
		t.Fatalf("files = %d, want 3", len(files))
	}

	w = do(t, h, http.MethodGet, "/api/files/src/index.html", "")
	if w.Code != http.StatusOK {
		t.Fatalf("get nested id: status %d", w.Code)
	}
	if a := decodeBody[workspace.Artifact](t, w); a.Kind != workspace.KindMarkup || a.Content != "<h1>hi</h1>" {
		t.Errorf("got %+v", a)
	}

	w = do(t, h, http.MethodPut, "/api/files/src/index.html", `{"content":"<h2>edited</h2>"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("update: status %d", w.Code)
	}
	if a, _ := st.Store.Get("src/index.html"); a.Content != "<h2>edited</h2>" {
		t.Errorf("content after update = %q", a.Content)
	}

	w = do(t, h, http.MethodPost, "/api/files", `{"name":"notes.txt","content":"x"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("open: status %d", w.Code)
	}
	if st.Store.ActiveID() != "notes.txt" {
		t.Errorf("active after open = %q", st.Store.ActiveID())
	}

	w = do(t, h, http.MethodPost, "/api/files", "")
	if a := decodeBody[workspace.Artifact](t, w); a.ID != "untitled-1" || a.Kind != workspace.KindScript {
		t.Errorf("create = %+v", a)
	}

	w = do(t, h, http.MethodDelete, "/api/files/notes.txt", "")
	if w.Code != http.StatusNoContent {
		t.Errorf("delete: status %d", w.Code)
	}

	for _, tc := range []struct{ method, target, body string }{
		{http.MethodGet, "/api/files/missing", ""},
		{http.MethodPut, "/api/files/missing", `{"content":""}`},
		{http.MethodDelete, "/api/files/notes.txt", ""},
		{http.MethodPut, "/api/active", `{"id":"missing"}`},
	} {
		if w := do(t, h, tc.method, tc.target, tc.body); w.Code != http.StatusNotFound {
			t.Errorf("%s %s: status %d, want 404", tc.method, tc.target, w.Code)
		}
	}

	if w := do(t, h, http.MethodPost, "/api/files", `{"name":"x","kind":"cobol"}`); w.Code != http.StatusBadRequest {
		t.Errorf("bad kind: status %d", w.Code)
	}
	if w := do(t, h, http.MethodPost, "/api/files", `{`); w.Code != http.StatusBadRequest {
		t.Errorf("bad json: status %d", w.Code)
	}
}

func TestActiveEndpoints(t *testing.T) {
	st := setupTestStudio(t)
	h := newHandler(st)

	if w := do(t, h, http.MethodPut, "/api/active", `{"id":"main.py"}`); w.Code != http.StatusNoContent {
		t.Fatalf("activate: status %d", w.Code)
	}
	w := do(t, h, http.MethodGet, "/api/active", "")
	if a := decodeBody[workspace.Artifact](t, w); a.ID != "main.py" {
		t.Errorf("active = %q", a.ID)
	}
}

func runLines(t *testing.T, w *httptest.ResponseRecorder) []router.OutputLine {
	t.Helper()
	if ct := w.Header().Get("Content-Type"); ct != "application/x-ndjson" {
		t.Errorf("content type = %q", ct)
	}
	var lines []router.OutputLine
	sc := bufio.NewScanner(w.Body)
	for sc.Scan() {
		var l router.OutputLine
		if err := json.Unmarshal(sc.Bytes(), &l); err != nil {
			t.Fatalf("bad line %q: %v", sc.Text(), err)
		}
		lines = append(lines, l)
	}
	return lines
}

func TestRunEndpoint(t *testing.T) {
	h := newHandler(setupTestStudio(t))

	tests := []struct {
		name string
		body string
		want []router.OutputLine
	}{
		{"script value", `{"kind":"js","content":"1 + 1"}`, []router.OutputLine{router.Result("js: 1 + 1")}},
		{"script fault", `{"kind":"script","content":"throw"}`, []router.OutputLine{router.Result("before"), router.Error("boom")}},
		{"python file", `{"file":"main.py"}`, []router.OutputLine{router.Result("py: print(1)")}},
		{"passive", `{"kind":"css","content":"a{}"}`, []router.OutputLine{router.Result("style is rendered by the preview; nothing to run")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, http.MethodPost, "/api/run", tt.body)
			if w.Code != http.StatusOK {
				t.Fatalf("status %d: %s", w.Code, w.Body.String())
			}
			if diff := cmp.Diff(tt.want, runLines(t, w)); diff != "" {
				t.Errorf("lines mismatch (-want +got):\n%s", diff)
			}
		})
	}

	if w := do(t, h, http.MethodPost, "/api/run", `{}`); w.Code != http.StatusBadRequest {
		t.Errorf("empty run: status %d", w.Code)
	}
	if w := do(t, h, http.MethodPost, "/api/run", `{"file":"nope.py"}`); w.Code != http.StatusNotFound {
		t.Errorf("missing file: status %d", w.Code)
	}
}

func TestSessionEndpoints(t *testing.T) {
	st := setupTestStudio(t)
	h := newHandler(st)

	w := do(t, h, http.MethodPost, "/api/sessions", "")
	created := decodeBody[createSessionResponse](t, w)
	if created.SessionID != 2 {
		t.Fatalf("created session = %d, want 2", created.SessionID)
	}

	w = do(t, h, http.MethodPost, "/api/sessions/2/submit", `{"command":"run main.py","wait":true}`)
	if w.Code != http.StatusOK {
		t.Fatalf("submit: status %d", w.Code)
	}
	want := []router.OutputLine{router.Echo("$ run main.py"), router.Result("py: print(1)")}
	if diff := cmp.Diff(want, decodeBody[[]router.OutputLine](t, w)); diff != "" {
		t.Errorf("log mismatch (-want +got):\n%s", diff)
	}

	if log := st.Terminal.Log(1); len(log) != 0 {
		t.Errorf("session 1 log = %v, want empty", log)
	}

	if w := do(t, h, http.MethodPost, "/api/sessions/2/clear", ""); w.Code != http.StatusNoContent {
		t.Errorf("clear: status %d", w.Code)
	}
	w = do(t, h, http.MethodGet, "/api/sessions/2/log", "")
	if log := decodeBody[[]router.OutputLine](t, w); len(log) != 0 {
		t.Errorf("log after clear = %v", log)
	}

	if w := do(t, h, http.MethodPost, "/api/sessions/2/activate", ""); w.Code != http.StatusNoContent {
		t.Errorf("activate: status %d", w.Code)
	}
	if st.Terminal.Active() != 2 {
		t.Errorf("active session = %d", st.Terminal.Active())
	}

	w = do(t, h, http.MethodGet, "/api/sessions", "")
	if sessions := decodeBody[[]terminal.Session](t, w); len(sessions) != 2 {
		t.Errorf("sessions = %d", len(sessions))
	}

	if w := do(t, h, http.MethodDelete, "/api/sessions/1", ""); w.Code != http.StatusNoContent {
		t.Errorf("close: status %d", w.Code)
	}
	if w := do(t, h, http.MethodDelete, "/api/sessions/2", ""); w.Code != http.StatusConflict {
		t.Errorf("close last: status %d, want 409", w.Code)
	}
	if w := do(t, h, http.MethodGet, "/api/sessions/9/log", ""); w.Code != http.StatusNotFound {
		t.Errorf("unknown session: status %d", w.Code)
	}
	if w := do(t, h, http.MethodGet, "/api/sessions/abc/log", ""); w.Code != http.StatusBadRequest {
		t.Errorf("bad session id: status %d", w.Code)
	}
	if w := do(t, h, http.MethodPost, "/api/sessions/2/submit", `{}`); w.Code != http.StatusBadRequest {
		t.Errorf("empty command: status %d", w.Code)
	}
}

func TestRuntimeEndpoint(t *testing.T) {
	st := setupTestStudio(t)
	h := newHandler(st)

	w := do(t, h, http.MethodGet, "/api/runtime", "")
	if got := decodeBody[runtimeResponse](t, w); got.Name != "python" || got.State != "uninitialized" {
		t.Errorf("runtime = %+v", got)
	}

	do(t, h, http.MethodPost, "/api/run", `{"file":"main.py"}`)
	w = do(t, h, http.MethodGet, "/api/runtime", "")
	if got := decodeBody[runtimeResponse](t, w); got.State != "ready" {
		t.Errorf("runtime after run = %+v", got)
	}
}

func TestPreviewEndpoints(t *testing.T) {
	st := setupTestStudio(t)
	h := newHandler(st)

	w := do(t, h, http.MethodGet, "/preview", "")
	if w.Code != http.StatusOK {
		t.Fatalf("preview: status %d", w.Code)
	}
	if !strings.HasPrefix(w.Header().Get("Content-Security-Policy"), "sandbox allow-scripts") {
		t.Errorf("CSP = %q", w.Header().Get("Content-Security-Policy"))
	}
	if body := w.Body.String(); !strings.Contains(body, "<h1>hi</h1>") || !strings.Contains(body, "h1 { color: red }") {
		t.Errorf("document = %q", body)
	}

	rev := st.Preview.Current().Revision
	w = do(t, h, http.MethodPost, "/preview/reload", "")
	if got := decodeBody[reloadResponse](t, w); got.Revision != rev+1 {
		t.Errorf("reload revision = %d, want %d", got.Revision, rev+1)
	}

	w = do(t, h, http.MethodGet, "/preview/frame", "")
	if body := w.Body.String(); !strings.Contains(body, `sandbox="allow-scripts"`) || !strings.Contains(body, "&lt;h1&gt;hi&lt;/h1&gt;") {
		t.Errorf("frame = %q", body)
	}
}
