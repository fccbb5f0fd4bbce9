package node

import (
	"time"
)

// ControlTimer is a one-shot timer served by its own goroutine. After a tick
// it stays disarmed until the listener sends a new duration on resetCh, so a
// slow handler never sees ticks pile up.
type ControlTimer struct {
	tickCh     chan struct{}
	resetCh    chan time.Duration
	stopCh     chan struct{}
	shutdownCh chan struct{}
}

// NewFixedControlTimer returns a disarmed ControlTimer. Arming it with a zero
// duration leaves it disarmed.
func NewFixedControlTimer() *ControlTimer {
	return &ControlTimer{
		tickCh:     make(chan struct{}),
		resetCh:    make(chan time.Duration),
		stopCh:     make(chan struct{}),
		shutdownCh: make(chan struct{}),
	}
}

func arm(d time.Duration) <-chan time.Time {
	if d <= 0 {
		return nil
	}
	return time.After(d)
}

// Run arms the timer with init and serves it until Shutdown.
func (c *ControlTimer) Run(init time.Duration) {
	fire := arm(init)
	for {
		select {
		case <-fire:
			fire = nil
			select {
			case c.tickCh <- struct{}{}:
			case <-c.shutdownCh:
				return
			}
		case d := <-c.resetCh:
			fire = arm(d)
		case <-c.stopCh:
			fire = nil
		case <-c.shutdownCh:
			return
		}
	}
}

// Shutdown stops the Run loop.
func (c *ControlTimer) Shutdown() {
	close(c.shutdownCh)
}
