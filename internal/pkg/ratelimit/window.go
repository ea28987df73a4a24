// Package ratelimit provides a small keyed limiter that grants one permit per
// key per time window. Used wherever a signal should fire at most once per
// window (e.g. "missing symbol rule" metrics) instead of on every occurrence.
package ratelimit

import (
	"sync"
	"time"
)

type Window struct {
	mu     sync.Mutex
	window time.Duration
	last   map[string]time.Time
	nowFn  func() time.Time
}

func NewWindow(window time.Duration) *Window {
	if window <= 0 {
		window = time.Minute
	}
	return &Window{
		window: window,
		last:   make(map[string]time.Time),
		nowFn:  time.Now,
	}
}

// Allow reports whether the key may fire now, consuming the permit if so.
func (w *Window) Allow(key string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	now := w.nowFn()
	if last, ok := w.last[key]; ok && now.Sub(last) < w.window {
		return false
	}
	w.last[key] = now
	return true
}

// Reset forgets a key, letting its next Allow succeed immediately.
func (w *Window) Reset(key string) {
	w.mu.Lock()
	delete(w.last, key)
	w.mu.Unlock()
}
