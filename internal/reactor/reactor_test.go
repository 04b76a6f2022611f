package reactor

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestRegisterTimer_FiresOnceThenStops(t *testing.T) {
	r := New()
	var calls int32

	done := make(chan struct{})
	r.RegisterTimer(func(eventtime Eventtime) Eventtime {
		atomic.AddInt32(&calls, 1)
		close(done)
		return NEVER
	}, NOW)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("timer never fired")
	}

	time.Sleep(20 * time.Millisecond)
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected exactly 1 call, got %d", got)
	}
}

func TestRegisterTimer_Rearms(t *testing.T) {
	r := New()
	var calls int32
	done := make(chan struct{})

	r.RegisterTimer(func(eventtime Eventtime) Eventtime {
		n := atomic.AddInt32(&calls, 1)
		if n >= 3 {
			close(done)
			return NEVER
		}
		return r.Monotonic() + 0.01
	}, NOW)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("timer did not re-arm enough times, calls=%d", atomic.LoadInt32(&calls))
	}
}

func TestUnregisterTimer_StopsFutureFires(t *testing.T) {
	r := New()
	var calls int32

	timer := r.RegisterTimer(func(eventtime Eventtime) Eventtime {
		atomic.AddInt32(&calls, 1)
		return r.Monotonic() + 0.01
	}, r.Monotonic()+0.2)

	r.UnregisterTimer(timer)
	time.Sleep(400 * time.Millisecond)

	if got := atomic.LoadInt32(&calls); got != 0 {
		t.Fatalf("expected timer to never fire after unregister, got %d calls", got)
	}
}

func TestMonotonic_Increases(t *testing.T) {
	r := New()
	a := r.Monotonic()
	time.Sleep(5 * time.Millisecond)
	b := r.Monotonic()
	if b <= a {
		t.Fatalf("expected monotonic clock to advance, got a=%v b=%v", a, b)
	}
}
