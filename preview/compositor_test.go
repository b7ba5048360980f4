package preview

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/caffeineduck/scratchpad/workspace"
)

func newTestStore() *workspace.Store {
	s := workspace.NewStore()
	s.Open(workspace.Artifact{ID: "index.html", Name: "index.html", Kind: workspace.KindMarkup, Content: "<p>hi</p>"})
	s.Open(workspace.Artifact{ID: "style.css", Name: "style.css", Kind: workspace.KindStyle})
	s.Open(workspace.Artifact{ID: "script.js", Name: "script.js", Kind: workspace.KindScript, Content: "console.log(1)"})
	return s
}

func countRebuilds(c *Compositor) *int {
	n := new(int)
	c.OnRebuild(func(Build) { *n++ })
	return n
}

func TestCompositorInitialBuild(t *testing.T) {
	c := NewCompositor(newTestStore())
	defer c.Close()

	b := c.Current()
	if b.Revision != 1 {
		t.Errorf("revision = %d", b.Revision)
	}
	if b.Document != Compose("<p>hi</p>", "", "console.log(1)") {
		t.Error("initial document does not match inputs")
	}
}

func TestOneRebuildPerInputChange(t *testing.T) {
	s := newTestStore()
	c := NewCompositor(s)
	defer c.Close()
	n := countRebuilds(c)

	s.Update("style.css", "p { color: red }")
	if *n != 1 {
		t.Fatalf("rebuilds = %d, want 1", *n)
	}
	if c.Current().Inputs.Style != "p { color: red }" {
		t.Error("style not picked up")
	}

	s.Update("index.html", "<p>bye</p>")
	s.Update("script.js", "console.log(2)")
	if *n != 3 {
		t.Errorf("rebuilds = %d, want 3", *n)
	}
}

func TestUnrelatedChangesIgnored(t *testing.T) {
	s := newTestStore()
	c := NewCompositor(s)
	defer c.Close()
	n := countRebuilds(c)

	s.Open(workspace.Artifact{ID: "a.py", Name: "a.py", Kind: workspace.KindPython})
	s.Update("a.py", "print(1)")
	s.Activate("index.html")
	s.Update("style.css", "")
	// A second script is not an input while the first one is open.
	s.Open(workspace.Artifact{ID: "other.js", Name: "other.js", Kind: workspace.KindScript, Content: "x"})
	s.Update("other.js", "y")

	if *n != 0 {
		t.Errorf("rebuilds = %d, want 0", *n)
	}
	if c.Current().Revision != 1 {
		t.Errorf("revision = %d", c.Current().Revision)
	}
}

func TestClosingInputRebuilds(t *testing.T) {
	s := newTestStore()
	s.Open(workspace.Artifact{ID: "other.js", Name: "other.js", Kind: workspace.KindScript, Content: "second"})
	c := NewCompositor(s)
	defer c.Close()

	s.Close("script.js")
	in := c.Current().Inputs
	if in.ScriptID != "other.js" || in.Script != "second" {
		t.Errorf("inputs after close = %+v", in)
	}
}

func TestReloadForcesRebuild(t *testing.T) {
	c := NewCompositor(newTestStore())
	defer c.Close()

	before := c.Current()
	after := c.Reload()

	if after.Revision != before.Revision+1 || !after.Forced {
		t.Errorf("reload build = %+v", after)
	}
	if after.Document != before.Document {
		t.Error("reload changed document for unchanged inputs")
	}
}

func TestCloseStopsFollowing(t *testing.T) {
	s := newTestStore()
	c := NewCompositor(s)
	n := countRebuilds(c)
	c.Close()

	s.Update("index.html", "<p>x</p>")
	if *n != 0 {
		t.Errorf("rebuilds after close = %d", *n)
	}
}

func TestServeHTTP(t *testing.T) {
	c := NewCompositor(newTestStore())
	defer c.Close()

	w := httptest.NewRecorder()
	c.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/preview", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if csp := w.Header().Get("Content-Security-Policy"); !strings.HasPrefix(csp, "sandbox allow-scripts;") {
		t.Errorf("csp = %q", csp)
	}
	if !strings.Contains(w.Body.String(), "<p>hi</p>") {
		t.Error("body missing markup")
	}

	etag := w.Header().Get("ETag")
	req := httptest.NewRequest(http.MethodGet, "/preview", nil)
	req.Header.Set("If-None-Match", etag)
	w = httptest.NewRecorder()
	c.ServeHTTP(w, req)
	if w.Code != http.StatusNotModified {
		t.Errorf("conditional status = %d", w.Code)
	}

	w = httptest.NewRecorder()
	c.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/preview", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST status = %d", w.Code)
	}
}
