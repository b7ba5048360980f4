package preview

import (
	"io"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/caffeineduck/scratchpad/workspace"
)

// Inputs are the artifacts a document was composed from: the first open
// artifact of each preview kind.
type Inputs struct {
	MarkupID workspace.ID
	Markup   string
	StyleID  workspace.ID
	Style    string
	ScriptID workspace.ID
	Script   string
}

// Build is one composed document.
type Build struct {
	Revision uint64
	Inputs   Inputs
	Document Document
	Forced   bool
	At       time.Time
}

// Option configures a Compositor.
type Option func(*Compositor)

// WithLogger sets the compositor's logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Compositor) {
		c.logger = l
	}
}

// Compositor keeps the preview in step with the store. It rebuilds only
// when one of its inputs changes, or on Reload.
type Compositor struct {
	store  *workspace.Store
	logger *log.Logger

	mu        sync.Mutex
	current   Build
	listeners map[int]func(Build)
	nextID    int

	unsubscribe func()
}

// NewCompositor composes the initial document and subscribes to store.
func NewCompositor(store *workspace.Store, opts ...Option) *Compositor {
	c := &Compositor{
		store:     store,
		logger:    log.New(io.Discard),
		listeners: make(map[int]func(Build)),
	}
	for _, opt := range opts {
		opt(c)
	}

	in := c.inputs()
	c.current = Build{
		Revision: 1,
		Inputs:   in,
		Document: Compose(in.Markup, in.Style, in.Script),
		At:       time.Now(),
	}
	c.unsubscribe = store.Subscribe(c.onChange)
	return c
}

func (c *Compositor) onChange(ch workspace.Change) {
	switch ch.Kind {
	case workspace.KindMarkup, workspace.KindStyle, workspace.KindScript:
		c.rebuild(false)
	case workspace.KindText, workspace.KindPython:
	}
}

func (c *Compositor) inputs() Inputs {
	var in Inputs
	if a, ok := c.store.FirstOfKind(workspace.KindMarkup); ok {
		in.MarkupID, in.Markup = a.ID, a.Content
	}
	if a, ok := c.store.FirstOfKind(workspace.KindStyle); ok {
		in.StyleID, in.Style = a.ID, a.Content
	}
	if a, ok := c.store.FirstOfKind(workspace.KindScript); ok {
		in.ScriptID, in.Script = a.ID, a.Content
	}
	return in
}

func (c *Compositor) rebuild(force bool) (Build, bool) {
	c.mu.Lock()
	in := c.inputs()
	if !force && in == c.current.Inputs {
		b := c.current
		c.mu.Unlock()
		return b, false
	}
	c.current = Build{
		Revision: c.current.Revision + 1,
		Inputs:   in,
		Document: Compose(in.Markup, in.Style, in.Script),
		Forced:   force,
		At:       time.Now(),
	}
	b := c.current
	fns := c.snapshotListeners()
	c.mu.Unlock()

	c.logger.Debug("preview rebuilt", "revision", b.Revision, "forced", force, "bytes", len(b.Document))
	for _, fn := range fns {
		fn(b)
	}
	return b, true
}

func (c *Compositor) snapshotListeners() []func(Build) {
	keys := make([]int, 0, len(c.listeners))
	for k := range c.listeners {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	fns := make([]func(Build), 0, len(keys))
	for _, k := range keys {
		fns = append(fns, c.listeners[k])
	}
	return fns
}

// Reload rebuilds even when the inputs are unchanged, so scripts with
// timers or randomness start over.
func (c *Compositor) Reload() Build {
	b, _ := c.rebuild(true)
	return b
}

// Current returns the latest build.
func (c *Compositor) Current() Build {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// OnRebuild registers fn for every rebuild. The returned func unregisters it.
func (c *Compositor) OnRebuild(fn func(Build)) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// Close stops following the store.
func (c *Compositor) Close() {
	c.mu.Lock()
	unsubscribe := c.unsubscribe
	c.unsubscribe = nil
	c.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

// ServeHTTP writes the current document with headers that sandbox it even
// when opened outside an iframe.
func (c *Compositor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	b := c.Current()
	etag := b.Document.ETag()

	h := w.Header()
	h.Set("Content-Security-Policy", "sandbox "+Sandbox+"; "+Policy)
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("Referrer-Policy", "no-referrer")
	h.Set("Cache-Control", "no-cache")
	h.Set("ETag", etag)

	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	h.Set("Content-Type", "text/html; charset=utf-8")
	if r.Method == http.MethodHead {
		return
	}
	io.WriteString(w, string(b.Document))
}
