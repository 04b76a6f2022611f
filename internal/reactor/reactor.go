// Package reactor implements the minimal single-process scheduling
// primitive the rest of the controller is built on: a monotonic clock, a
// sleep/pause helper, and a one-shot/re-arming timer.
//
// The upstream Klipper host software runs every component on one
// greenlet-switched OS thread; Go has no equivalent cooperative-yield
// primitive. Each timer here runs its callback on its own goroutine
// instead, so a long-running callback (the virtual-SD work loop) can call
// Pause to yield without blocking the rest of the controller — the
// ordering and mutual-exclusion guarantees spec.md asks for are instead
// enforced by the dispatcher's mutex and each component's own locking,
// not by literal single-threadedness.
package reactor

import (
	"runtime"
	"sync"
	"time"
)

// Eventtime is seconds since an arbitrary monotonic epoch, mirroring the
// float eventtime values the original reactor passes to callbacks.
type Eventtime float64

const (
	// NOW requests immediate invocation.
	NOW Eventtime = 0
	// NEVER is returned by a TimerFunc to mean "do not reschedule".
	NEVER Eventtime = 1e18
)

// TimerFunc is invoked with the eventtime it fired at and returns the next
// eventtime it wants to fire at, or NEVER to stop.
type TimerFunc func(eventtime Eventtime) Eventtime

// Timer is a handle returned by RegisterTimer, usable with UnregisterTimer.
type Timer struct {
	stop chan struct{}
	once sync.Once
}

// Reactor is a monotonic clock plus a factory for timers.
type Reactor struct {
	start time.Time
}

// New creates a Reactor whose monotonic clock starts at the call time.
func New() *Reactor {
	return &Reactor{start: time.Now()}
}

// Monotonic returns seconds elapsed since the Reactor was created.
func (r *Reactor) Monotonic() Eventtime {
	return Eventtime(time.Since(r.start).Seconds())
}

// Pause blocks the calling goroutine until the reactor's monotonic clock
// reaches waketime. A waketime at or before now returns immediately,
// matching the original's "fairness yield" use of reactor.pause(NOW).
func (r *Reactor) Pause(waketime Eventtime) {
	delta := time.Duration(float64(waketime-r.Monotonic()) * float64(time.Second))
	if delta <= 0 {
		runtime.Gosched()
		return
	}
	time.Sleep(delta)
}

// PauseFor is a convenience wrapper around Pause for relative sleeps —
// the 1ms pause-probe spin and the 100ms dispatcher-mutex retry.
func (r *Reactor) PauseFor(d time.Duration) {
	if d <= 0 {
		runtime.Gosched()
		return
	}
	time.Sleep(d)
}

// RegisterTimer arms cb to run at waketime (NOW meaning immediately) on a
// dedicated goroutine. Each time cb returns a finite eventtime, the timer
// re-arms for that time; returning NEVER stops it. The returned Timer may
// be passed to UnregisterTimer to stop it early, from any goroutine.
func (r *Reactor) RegisterTimer(cb TimerFunc, waketime Eventtime) *Timer {
	t := &Timer{stop: make(chan struct{})}
	if waketime == NOW {
		waketime = r.Monotonic()
	}
	go r.run(t, cb, waketime)
	return t
}

func (r *Reactor) run(t *Timer, cb TimerFunc, waketime Eventtime) {
	for {
		delta := time.Duration(float64(waketime-r.Monotonic()) * float64(time.Second))
		if delta > 0 {
			timer := time.NewTimer(delta)
			select {
			case <-t.stop:
				timer.Stop()
				return
			case <-timer.C:
			}
		} else {
			select {
			case <-t.stop:
				return
			default:
			}
		}

		next := cb(r.Monotonic())
		if next == NEVER {
			return
		}
		waketime = next
	}
}

// UnregisterTimer stops a timer so its callback will not fire again. Safe
// to call more than once and safe to call concurrently with the timer
// firing (the in-flight callback, if any, still completes).
func (r *Reactor) UnregisterTimer(t *Timer) {
	if t == nil {
		return
	}
	t.once.Do(func() { close(t.stop) })
}
