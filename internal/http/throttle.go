package http

import (
	"sync"
	"time"
)

// throttle is a fixed-window request counter. Once more than burst requests
// fall into the current window, callers are asked to back off.
type throttle struct {
	window time.Duration
	burst  int
	delay  [2]time.Duration

	mu          sync.Mutex
	windowStart time.Time
	count       int
}

func newThrottle(window time.Duration, burst int, delay [2]time.Duration) *throttle {
	if burst < 1 {
		burst = 2
	}
	if delay == [2]time.Duration{} {
		delay = [2]time.Duration{1500 * time.Millisecond, 3 * time.Second}
	}
	return &throttle{window: window, burst: burst, delay: delay}
}

// reserve records a request wanted at now and returns how long the caller
// must sleep before issuing it: zero, or delay when the window is full. A
// delayed request opens the next window at its real issue time and counts
// as its first request.
func (t *throttle) reserve(now time.Time, delay time.Duration) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.windowStart.IsZero() || now.Sub(t.windowStart) >= t.window {
		t.windowStart = now
		t.count = 0
	}
	t.count++
	if t.count <= t.burst {
		return 0
	}

	t.windowStart = now.Add(delay)
	t.count = 1
	return delay
}
