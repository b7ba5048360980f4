package bridge

import "fmt"

// State is the lifecycle state of the bridged runtime. The only legal
// transitions are Uninitialized -> Loading -> Ready and Loading -> Failed.
type State int32

const (
	// StateUninitialized means loading has not been triggered yet.
	StateUninitialized State = iota
	// StateLoading means the interpreter is being fetched and started.
	StateLoading
	// StateReady means requests are being served.
	StateReady
	// StateFailed is terminal: the interpreter could not be loaded.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// IsSettled reports whether loading has finished one way or the other.
func (s State) IsSettled() bool {
	return s == StateReady || s == StateFailed
}

func allowedTransition(from, to State) bool {
	switch from {
	case StateUninitialized:
		return to == StateLoading
	case StateLoading:
		return to == StateReady || to == StateFailed
	default:
		return false
	}
}

// transition moves the bridge from one state to another. It fails when the
// current state is not from or the move is not allowed.
func (b *Bridge) transition(from, to State) error {
	if !allowedTransition(from, to) {
		return fmt.Errorf("disallowed transition %s -> %s", from, to)
	}
	if !b.state.CompareAndSwap(int32(from), int32(to)) {
		return fmt.Errorf("invalid transition: expected %s, got %s", from, b.State())
	}
	return nil
}
