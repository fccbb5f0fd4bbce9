package node

import (
	"sync"
	"sync/atomic"
)

// State is the lifecycle stage of a Node.
type State uint32

const (
	// Initializing is the state of a node until Init completes.
	Initializing State = iota
	// Running means the node is registered and serving.
	Running
	// Shutdown is final.
	Shutdown
)

func (s State) String() string {
	switch s {
	case Initializing:
		return "Initializing"
	case Running:
		return "Running"
	case Shutdown:
		return "Shutdown"
	default:
		return "Unknown"
	}
}

// maxBackground bounds the background tasks started through goFunc. A task
// requested while the limit is reached is dropped; the maintenance timer
// will ask for it again.
const maxBackground = 20

type state struct {
	current uint32

	bgLock     sync.Mutex
	bgClosed   bool
	background sync.WaitGroup
	running    int32
}

func (s *state) getState() State {
	return State(atomic.LoadUint32(&s.current))
}

func (s *state) setState(st State) {
	atomic.StoreUint32(&s.current, uint32(st))
}

// goFunc runs f in the background unless maxBackground tasks are running or
// waitRoutines was called.
func (s *state) goFunc(f func()) {
	s.bgLock.Lock()
	defer s.bgLock.Unlock()

	if s.bgClosed {
		return
	}
	if atomic.AddInt32(&s.running, 1) > maxBackground {
		atomic.AddInt32(&s.running, -1)
		return
	}
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		defer atomic.AddInt32(&s.running, -1)
		f()
	}()
}

// waitRoutines refuses new background tasks and blocks until the running
// ones have returned.
func (s *state) waitRoutines() {
	s.bgLock.Lock()
	s.bgClosed = true
	s.bgLock.Unlock()

	s.background.Wait()
}
