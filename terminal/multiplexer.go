// Package terminal multiplexes independent console sessions over the
// router.
//
// Each session is an ordered log of output lines. Built-in commands run
// synchronously. A run is tagged with a ticket from the session that
// requested it, and its lines are appended to that session in ticket order
// once they are available, even if another session is active by then.
// Results for a session closed in the meantime are dropped.
package terminal

import (
	"context"
	"fmt"
	"io"
	"iter"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/caffeineduck/scratchpad/bridge"
	"github.com/caffeineduck/scratchpad/router"
	"github.com/caffeineduck/scratchpad/workspace"
)

// SessionID identifies a terminal session. IDs are never reused.
type SessionID int

// Session is a snapshot of one terminal session.
type Session struct {
	ID     SessionID           `json:"id"`
	Label  string              `json:"label"`
	Active bool                `json:"active"`
	Log    []router.OutputLine `json:"log"`
}

// Event reports a change to a session log.
type Event struct {
	Session SessionID
	// Line is the appended line; zero when Cleared is set.
	Line    router.OutputLine
	Cleared bool
	// Active is the active session at the time of the change.
	Active SessionID
}

// Runner is the execution router.
type Runner interface {
	Run(ctx context.Context, kind workspace.Kind, content string) iter.Seq[router.OutputLine]
	Strategy(kind workspace.Kind) router.Strategy
}

// RuntimeStatus reports the state of the bridged runtime.
type RuntimeStatus interface {
	Name() string
	State() bridge.State
	Err() error
}

// Option configures a Multiplexer.
type Option func(*Multiplexer)

// WithLogger sets the multiplexer's logger.
func WithLogger(l *log.Logger) Option {
	return func(m *Multiplexer) {
		m.logger = l
	}
}

// WithRuntime lets version queries report the bridged runtime's state.
func WithRuntime(rs RuntimeStatus) Option {
	return func(m *Multiplexer) {
		m.runtime = rs
	}
}

// WithVersion sets the version string reported by "version".
func WithVersion(v string) Option {
	return func(m *Multiplexer) {
		m.version = v
	}
}

type session struct {
	id    SessionID
	label string
	log   []router.OutputLine

	// nextTicket is handed to the next run; flushed is the oldest run whose
	// lines have not been appended yet.
	nextTicket uint64
	flushed    uint64
	pending    map[uint64][]router.OutputLine
}

// Multiplexer owns the terminal sessions. There is always at least one.
type Multiplexer struct {
	store   *workspace.Store
	runner  Runner
	runtime RuntimeStatus
	version string
	logger  *log.Logger

	mu       sync.Mutex
	sessions []*session
	active   SessionID
	seq      SessionID

	// Events are queued under mu and delivered by whichever goroutine finds
	// the queue idle, with neither lock held. qmu is never held while taking
	// mu, so listeners may call back into the multiplexer.
	qmu       sync.Mutex
	idle      *sync.Cond
	queue     []Event
	draining  bool
	listeners map[int]func(Event)
	nextSub   int

	repo repo

	wg sync.WaitGroup
}

// New returns a multiplexer with one empty session.
func New(store *workspace.Store, runner Runner, opts ...Option) *Multiplexer {
	m := &Multiplexer{
		store:     store,
		runner:    runner,
		version:   "dev",
		logger:    log.New(io.Discard),
		listeners: make(map[int]func(Event)),
	}
	m.idle = sync.NewCond(&m.qmu)
	for _, opt := range opts {
		opt(m)
	}

	m.mu.Lock()
	m.addSession()
	m.mu.Unlock()
	return m
}

func (m *Multiplexer) addSession() *session {
	m.seq++
	s := &session{
		id:      m.seq,
		label:   fmt.Sprintf("session %d", m.seq),
		pending: make(map[uint64][]router.OutputLine),
	}
	m.sessions = append(m.sessions, s)
	m.active = s.id
	return s
}

func (m *Multiplexer) find(id SessionID) (int, *session) {
	i := slices.IndexFunc(m.sessions, func(s *session) bool { return s.id == id })
	if i == -1 {
		return -1, nil
	}
	return i, m.sessions[i]
}

// CreateSession appends an empty session and activates it.
func (m *Multiplexer) CreateSession() SessionID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addSession().id
}

// CloseSession removes id unless it is the only session. If it was active,
// the session now at its former index, or else the first one, becomes
// active. It reports whether a session was removed.
func (m *Multiplexer) CloseSession(id SessionID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	i, s := m.find(id)
	if s == nil || len(m.sessions) == 1 {
		return false
	}
	m.sessions = slices.Delete(m.sessions, i, i+1)

	if m.active == id {
		if i < len(m.sessions) {
			m.active = m.sessions[i].id
		} else {
			m.active = m.sessions[0].id
		}
	}
	if s.nextTicket > s.flushed {
		m.logger.Debug("closed session with runs outstanding", "session", id, "outstanding", s.nextTicket-s.flushed)
	}
	return true
}

// Activate selects id. Unknown ids are ignored.
func (m *Multiplexer) Activate(id SessionID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, s := m.find(id); s != nil {
		m.active = id
	}
}

// Active returns the active session id.
func (m *Multiplexer) Active() SessionID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Sessions returns a snapshot of every session in order.
func (m *Multiplexer) Sessions() []Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, m.snapshot(s))
	}
	return out
}

func (m *Multiplexer) snapshot(s *session) Session {
	return Session{
		ID:     s.id,
		Label:  s.label,
		Active: s.id == m.active,
		Log:    slices.Clone(s.log),
	}
}

// Log returns a copy of id's log, or nil for an unknown id.
func (m *Multiplexer) Log(id SessionID) []router.OutputLine {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, s := m.find(id); s != nil {
		return slices.Clone(s.log)
	}
	return nil
}

// Clear empties id's log.
func (m *Multiplexer) Clear(id SessionID) {
	m.mu.Lock()
	_, s := m.find(id)
	if s == nil {
		m.mu.Unlock()
		return
	}
	s.log = nil
	m.emit(Event{Session: id, Cleared: true})
}

// Subscribe registers fn for every appended line and every clear. Calls
// arrive in log order, one at a time, with no multiplexer lock held. The
// returned func unregisters fn.
func (m *Multiplexer) Subscribe(fn func(Event)) func() {
	m.qmu.Lock()
	id := m.nextSub
	m.nextSub++
	m.listeners[id] = fn
	m.qmu.Unlock()

	return func() {
		m.qmu.Lock()
		delete(m.listeners, id)
		m.qmu.Unlock()
	}
}

// emit queues events, releases mu and delivers. It must be called with mu
// held.
func (m *Multiplexer) emit(events ...Event) {
	for i := range events {
		events[i].Active = m.active
	}
	m.qmu.Lock()
	m.queue = append(m.queue, events...)
	m.qmu.Unlock()
	m.mu.Unlock()

	m.deliver()
}

// deliver drains the queue unless another goroutine already is; that one
// picks up whatever was queued here.
func (m *Multiplexer) deliver() {
	m.qmu.Lock()
	defer m.qmu.Unlock()
	if m.draining {
		return
	}
	m.draining = true
	for len(m.queue) > 0 {
		batch := m.queue
		m.queue = nil
		keys := slices.Sorted(maps.Keys(m.listeners))
		fns := make([]func(Event), 0, len(keys))
		for _, k := range keys {
			fns = append(fns, m.listeners[k])
		}

		m.qmu.Unlock()
		for _, e := range batch {
			for _, fn := range fns {
				fn(e)
			}
		}
		m.qmu.Lock()
	}
	m.draining = false
	m.idle.Broadcast()
}

// appendLines adds lines to s and returns the matching events. mu must be
// held.
func appendLines(s *session, lines ...router.OutputLine) []Event {
	events := make([]Event, 0, len(lines))
	for _, l := range lines {
		s.log = append(s.log, l)
		events = append(events, Event{Session: s.id, Line: l})
	}
	return events
}

// Submit runs one command line in session id. Blank input and unknown
// sessions are ignored. Runs on the bridged runtime complete in the
// background; use Wait to block until they have been appended.
func (m *Multiplexer) Submit(ctx context.Context, id SessionID, text string) {
	if strings.TrimSpace(text) == "" {
		return
	}

	m.mu.Lock()
	_, s := m.find(id)
	if s == nil {
		m.mu.Unlock()
		return
	}
	events := appendLines(s, router.Echo("$ "+text))

	cmd := parseCommand(text)
	b, ok := lookupBuiltin(cmd.name)
	if !ok {
		events = append(events, appendLines(s, router.Error("command not found: "+cmd.name))...)
		m.emit(events...)
		return
	}

	var job *runJob
	lines := m.dispatch(b, cmd.args, &job)
	if b == BuiltinClear {
		s.log = nil
		events = append(events, Event{Session: id, Cleared: true})
	}
	events = append(events, appendLines(s, lines...)...)
	if job != nil {
		job.ticket = s.nextTicket
		s.nextTicket++
	}
	m.emit(events...)

	if job == nil {
		return
	}
	job.session = id
	if m.runner.Strategy(job.kind) == router.StrategyBridged {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			m.complete(job, m.collect(context.WithoutCancel(ctx), job))
		}()
		return
	}
	m.complete(job, m.collect(ctx, job))
}

type runJob struct {
	session SessionID
	ticket  uint64
	kind    workspace.Kind
	name    string
	content string
}

func (m *Multiplexer) collect(ctx context.Context, job *runJob) []router.OutputLine {
	var lines []router.OutputLine
	for line := range m.runner.Run(ctx, job.kind, job.content) {
		lines = append(lines, line)
	}
	return lines
}

// complete stores a run's lines under its ticket and appends every run
// that is now next in line.
func (m *Multiplexer) complete(job *runJob, lines []router.OutputLine) {
	m.mu.Lock()
	_, s := m.find(job.session)
	if s == nil {
		m.mu.Unlock()
		m.logger.Debug("dropped result for closed session", "session", job.session, "file", job.name, "lines", len(lines))
		return
	}

	s.pending[job.ticket] = lines
	var events []Event
	for {
		ready, ok := s.pending[s.flushed]
		if !ok {
			break
		}
		delete(s.pending, s.flushed)
		s.flushed++
		events = append(events, appendLines(s, ready...)...)
	}
	m.emit(events...)
}

// Wait blocks until every background run has been appended or dropped and
// its events delivered.
func (m *Multiplexer) Wait() {
	m.wg.Wait()

	m.qmu.Lock()
	defer m.qmu.Unlock()
	for m.draining || len(m.queue) > 0 {
		m.idle.Wait()
	}
}
