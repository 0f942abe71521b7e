package hashcat

import (
	"context"
	"sync"
	"time"
)

// flag is a level-triggered boolean. Every change closes the current
// channel and installs a fresh one, so waiters wake on each transition.
type flag struct {
	mu      sync.Mutex
	set     bool
	changed chan struct{}
}

func newFlag() *flag {
	return &flag{changed: make(chan struct{})}
}

// Set raises the flag and returns true if it was previously clear
func (f *flag) Set() bool {
	return f.store(true)
}

// Clear lowers the flag and returns true if it was previously set
func (f *flag) Clear() bool {
	return f.store(false)
}

func (f *flag) store(v bool) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.set == v {
		return false
	}
	f.set = v
	close(f.changed)
	f.changed = make(chan struct{})
	return true
}

// IsSet returns the current level
func (f *flag) IsSet() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.set
}

// Wait blocks until the flag equals want, the timeout elapses, ctx is done
// or abort is closed. It reports whether the wanted level was observed.
func (f *flag) Wait(ctx context.Context, want bool, timeout time.Duration, abort <-chan struct{}) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		f.mu.Lock()
		if f.set == want {
			f.mu.Unlock()
			return true
		}
		changed := f.changed
		f.mu.Unlock()

		select {
		case <-changed:
		case <-timer.C:
			return f.IsSet() == want
		case <-ctx.Done():
			return false
		case <-abort:
			return f.IsSet() == want
		}
	}
}
