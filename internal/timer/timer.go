// Package timer provides one-shot timers on a virtual clock. The clock only
// moves when the owner advances it, so expiry runs in the owner's loop and
// never concurrently with audio processing.
package timer

import "time"

// Wheel holds the clock and all timers created from it.
type Wheel struct {
	now    time.Duration
	timers []*Timer
}

// Timer is a one-shot timer. Starting an armed timer re-arms it.
type Timer struct {
	wheel    *Wheel
	fn       func()
	deadline time.Duration
	armed    bool
}

// NewWheel creates a clock at zero.
func NewWheel() *Wheel {
	return &Wheel{}
}

// NewTimer creates a stopped timer that calls fn on expiry.
func (w *Wheel) NewTimer(fn func()) *Timer {
	t := &Timer{wheel: w, fn: fn}
	w.timers = append(w.timers, t)
	return t
}

// Now returns the current virtual time.
func (w *Wheel) Now() time.Duration {
	return w.now
}

// Advance moves the clock forward and fires every timer that became due,
// earliest first. A callback may start timers again; those fire in the same
// call only if their new deadline has also passed.
func (w *Wheel) Advance(d time.Duration) {
	w.now += d
	for {
		next := w.nextDue()
		if next == nil {
			return
		}
		next.armed = false
		next.fn()
	}
}

func (w *Wheel) nextDue() *Timer {
	var due *Timer
	for _, t := range w.timers {
		if !t.armed || t.deadline > w.now {
			continue
		}
		if due == nil || t.deadline < due.deadline {
			due = t
		}
	}
	return due
}

// Start arms the timer to fire after d, cancelling any pending expiry.
func (t *Timer) Start(d time.Duration) {
	t.deadline = t.wheel.now + d
	t.armed = true
}

// Stop cancels a pending expiry.
func (t *Timer) Stop() {
	t.armed = false
}

// Running reports whether the timer is armed.
func (t *Timer) Running() bool {
	return t.armed
}

// Remaining returns the time left until expiry, zero when stopped.
func (t *Timer) Remaining() time.Duration {
	if !t.armed {
		return 0
	}
	return t.deadline - t.wheel.now
}
