// Package workspace holds the set of open artifacts and the active
// selection.
package workspace

import (
	"fmt"
	"path"
	"slices"
	"sync"
)

// ID identifies an artifact. IDs are opaque and unique within a store.
type ID string

// Artifact is one editable unit of text and its declared kind.
type Artifact struct {
	ID      ID     `json:"id"`
	Name    string `json:"name"`
	Kind    Kind   `json:"kind"`
	Content string `json:"content"`
}

// Op names the mutation a Change reports.
type Op int

const (
	OpOpen Op = iota
	OpActivate
	OpClose
	OpUpdate
)

func (o Op) String() string {
	switch o {
	case OpOpen:
		return "open"
	case OpActivate:
		return "activate"
	case OpClose:
		return "close"
	case OpUpdate:
		return "update"
	default:
		return fmt.Sprintf("Op(%d)", int(o))
	}
}

// Change describes one effective mutation of the store.
type Change struct {
	Op   Op
	ID   ID
	Kind Kind
}

const placeholder = "// start coding\n"

// Store is the ordered set of open artifacts. All methods are safe to call
// from multiple goroutines; each runs to completion before the next starts.
type Store struct {
	mu     sync.Mutex
	items  []Artifact
	active ID
	seq    uint64
	// seen holds every ID ever opened, so Create never hands out an ID
	// that was used and then closed.
	seen map[ID]struct{}

	subMu  sync.Mutex
	subs   map[int]func(Change)
	nextID int
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		seen: make(map[ID]struct{}),
		subs: make(map[int]func(Change)),
	}
}

func (s *Store) index(id ID) int {
	return slices.IndexFunc(s.items, func(a Artifact) bool { return a.ID == id })
}

// Open appends a if its ID is not present and makes it active. Opening an
// ID that is already present only activates it.
func (s *Store) Open(a Artifact) {
	s.mu.Lock()
	var changes []Change
	if i := s.index(a.ID); i == -1 {
		s.seen[a.ID] = struct{}{}
		s.items = append(s.items, a)
		changes = append(changes, Change{Op: OpOpen, ID: a.ID, Kind: a.Kind})
		s.active = a.ID
		changes = append(changes, Change{Op: OpActivate, ID: a.ID, Kind: a.Kind})
	} else if s.active != a.ID {
		s.active = a.ID
		changes = append(changes, Change{Op: OpActivate, ID: a.ID, Kind: s.items[i].Kind})
	}
	s.mu.Unlock()

	s.publish(changes...)
}

// Activate selects id. Unknown ids are ignored.
func (s *Store) Activate(id ID) {
	s.mu.Lock()
	i := s.index(id)
	if i == -1 || s.active == id {
		s.mu.Unlock()
		return
	}
	s.active = id
	kind := s.items[i].Kind
	s.mu.Unlock()

	s.publish(Change{Op: OpActivate, ID: id, Kind: kind})
}

// Close removes id. If it was active, the last remaining artifact becomes
// active, or none when the store is empty.
func (s *Store) Close(id ID) {
	s.mu.Lock()
	i := s.index(id)
	if i == -1 {
		s.mu.Unlock()
		return
	}
	kind := s.items[i].Kind
	s.items = slices.Delete(s.items, i, i+1)

	changes := []Change{{Op: OpClose, ID: id, Kind: kind}}
	if s.active == id {
		s.active = ""
		if n := len(s.items); n > 0 {
			last := s.items[n-1]
			s.active = last.ID
			changes = append(changes, Change{Op: OpActivate, ID: last.ID, Kind: last.Kind})
		}
	}
	s.mu.Unlock()

	s.publish(changes...)
}

// Update replaces the content of an existing artifact. Unknown ids and
// unchanged content are ignored.
func (s *Store) Update(id ID, content string) {
	s.mu.Lock()
	i := s.index(id)
	if i == -1 || s.items[i].Content == content {
		s.mu.Unlock()
		return
	}
	s.items[i].Content = content
	kind := s.items[i].Kind
	s.mu.Unlock()

	s.publish(Change{Op: OpUpdate, ID: id, Kind: kind})
}

// Create opens and activates a new script artifact with a fresh ID.
func (s *Store) Create() Artifact {
	s.mu.Lock()
	var a Artifact
	for {
		s.seq++
		id := ID(fmt.Sprintf("untitled-%d", s.seq))
		if _, used := s.seen[id]; !used {
			s.seen[id] = struct{}{}
			a = Artifact{
				ID:      id,
				Name:    string(id) + ".js",
				Kind:    KindScript,
				Content: placeholder,
			}
			break
		}
	}
	s.mu.Unlock()

	s.Open(a)
	return a
}

// Active returns the active artifact.
func (s *Store) Active() (Artifact, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.index(s.active); i != -1 {
		return s.items[i], true
	}
	return Artifact{}, false
}

// ActiveID returns the active ID, or "" when nothing is open.
func (s *Store) ActiveID() ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Get returns the open artifact with the given id.
func (s *Store) Get(id ID) (Artifact, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.index(id); i != -1 {
		return s.items[i], true
	}
	return Artifact{}, false
}

// List returns the open artifacts in insertion order.
func (s *Store) List() []Artifact {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.items)
}

// FindByName returns the first artifact whose name or base name matches.
func (s *Store) FindByName(name string) (Artifact, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.items {
		if a.Name == name || path.Base(a.Name) == name {
			return a, true
		}
	}
	return Artifact{}, false
}

// FirstOfKind returns the first open artifact of kind k.
func (s *Store) FirstOfKind(k Kind) (Artifact, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.items {
		if a.Kind == k {
			return a, true
		}
	}
	return Artifact{}, false
}

// Subscribe registers fn for every effective mutation. Callbacks run after
// the mutation completes, outside the store lock, so they may read the
// store. The returned func unregisters fn.
func (s *Store) Subscribe(fn func(Change)) func() {
	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Store) publish(changes ...Change) {
	if len(changes) == 0 {
		return
	}

	s.subMu.Lock()
	keys := make([]int, 0, len(s.subs))
	for k := range s.subs {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	fns := make([]func(Change), 0, len(keys))
	for _, k := range keys {
		fns = append(fns, s.subs[k])
	}
	s.subMu.Unlock()

	for _, c := range changes {
		for _, fn := range fns {
			fn(c)
		}
	}
}
