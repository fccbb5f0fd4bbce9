package node

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestGoFuncAfterWaitRoutines(t *testing.T) {
	var s state
	var ran int32

	s.goFunc(func() { atomic.AddInt32(&ran, 1) })
	s.waitRoutines()

	s.goFunc(func() { atomic.AddInt32(&ran, 1) })
	time.Sleep(20 * time.Millisecond)

	if n := atomic.LoadInt32(&ran); n != 1 {
		t.Fatalf("tasks started after waitRoutines should be refused, %d ran", n)
	}
}

func TestGoFuncRacingWaitRoutines(t *testing.T) {
	var s state
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.goFunc(func() { time.Sleep(time.Millisecond) })
		}()
	}
	s.waitRoutines()
	wg.Wait()

	if n := atomic.LoadInt32(&s.running); n != 0 {
		t.Fatalf("every accepted task should be finished once waitRoutines returns, %d running", n)
	}
}

func TestGoFuncLimit(t *testing.T) {
	var s state
	release := make(chan struct{})
	var started int32

	for i := 0; i < maxBackground+5; i++ {
		s.goFunc(func() {
			atomic.AddInt32(&started, 1)
			<-release
		})
	}
	close(release)
	s.waitRoutines()

	if n := atomic.LoadInt32(&started); n != maxBackground {
		t.Fatalf("goFunc should run at most %d tasks at once, ran %d", maxBackground, n)
	}
}
