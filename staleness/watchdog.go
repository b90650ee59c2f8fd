package staleness

import (
	"sync"
	"time"
)

// Watchdog fires onExpire once when no Arm call happened within timeout.
// Each Arm replaces the pending deadline; a deadline that was replaced never fires.
type Watchdog struct {
	mu        sync.Mutex
	clock     Clock
	timeout   time.Duration
	onExpire  func()
	timer     Timer
	lastFrame time.Time
	armed     uint64
}

// NewWatchdog creates a stopped watchdog.
func NewWatchdog(clock Clock, timeout time.Duration, onExpire func()) *Watchdog {
	if clock == nil {
		clock = RealClock()
	}
	return &Watchdog{clock: clock, timeout: timeout, onExpire: onExpire}
}

// Arm records a frame arrival and restarts the deadline.
func (w *Watchdog) Arm() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.lastFrame = w.clock.Now()
	w.armed++
	gen := w.armed
	w.timer = w.clock.AfterFunc(w.timeout, func() { w.expire(gen) })
}

// Stop cancels the pending deadline.
func (w *Watchdog) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.armed++
}

// LastFrame returns when Arm was last called.
func (w *Watchdog) LastFrame() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastFrame
}

// SinceLastFrame returns the time elapsed since the last Arm.
func (w *Watchdog) SinceLastFrame() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.lastFrame.IsZero() {
		return 0
	}
	return w.clock.Now().Sub(w.lastFrame)
}

// Timeout returns the configured response timeout.
func (w *Watchdog) Timeout() time.Duration {
	return w.timeout
}

func (w *Watchdog) expire(gen uint64) {
	w.mu.Lock()
	if gen != w.armed {
		w.mu.Unlock()
		return
	}
	w.timer = nil
	if !ResponseTimedOut(w.lastFrame, w.clock.Now(), w.timeout) {
		// timer fired exactly at the deadline; the check is strict
		w.rearmLocked(gen)
		w.mu.Unlock()
		return
	}
	fn := w.onExpire
	w.mu.Unlock()

	if fn != nil {
		fn()
	}
}

func (w *Watchdog) rearmLocked(gen uint64) {
	remaining := w.timeout - w.clock.Now().Sub(w.lastFrame) + time.Millisecond
	w.timer = w.clock.AfterFunc(remaining, func() { w.expire(gen) })
}
