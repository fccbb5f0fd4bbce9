package introducer

import (
	"sync/atomic"
)

// State captures the state of an introducer Client: Disconnected, Connecting,
// Announced, or Shutdown.
type State uint32

const (
	// Disconnected is the initial state, and the state after a session loss.
	Disconnected State = iota
	// Connecting means a session is being opened.
	Connecting
	// Announced means the session is live and our FURL was published.
	Announced
	// Shutdown is terminal.
	Shutdown
)

// String ...
func (s State) String() string {
	switch s {
	case Disconnected:
		return "Disconnected"
	case Connecting:
		return "Connecting"
	case Announced:
		return "Announced"
	case Shutdown:
		return "Shutdown"
	default:
		return "Unknown"
	}
}

type state struct {
	state State
}

func (s *state) getState() State {
	stateAddr := (*uint32)(&s.state)
	return State(atomic.LoadUint32(stateAddr))
}

func (s *state) setState(st State) {
	stateAddr := (*uint32)(&s.state)
	atomic.StoreUint32(stateAddr, uint32(st))
}

// transition moves from one state to another and reports whether the state
// was still from.
func (s *state) transition(from, to State) bool {
	stateAddr := (*uint32)(&s.state)
	return atomic.CompareAndSwapUint32(stateAddr, uint32(from), uint32(to))
}
