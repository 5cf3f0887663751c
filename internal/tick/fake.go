package tick

import (
	"sync"
	"time"
)

// Fake is a Service whose ticks are driven manually by tests.
type Fake struct {
	mu      sync.Mutex
	fn      func()
	Period  time.Duration
	Started int
	Stopped bool
}

// NewFake creates a Fake that has not been started.
func NewFake() *Fake {
	return &Fake{}
}

// Start records period and fn.
func (f *Fake) Start(period time.Duration, fn func()) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fn != nil {
		return ErrRunning
	}
	f.fn = fn
	f.Period = period
	f.Started++
	f.Stopped = false
	return nil
}

// Stop unregisters the callback.
func (f *Fake) Stop() {
	f.mu.Lock()
	f.fn = nil
	f.Stopped = true
	f.mu.Unlock()
}

// Advance fires n ticks synchronously. It is a no-op while stopped.
func (f *Fake) Advance(n int) {
	for i := 0; i < n; i++ {
		f.mu.Lock()
		fn := f.fn
		f.mu.Unlock()
		if fn == nil {
			return
		}
		fn()
	}
}
