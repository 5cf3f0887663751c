// Package tick provides the periodic tick service that drives time-based
// behaviour (LED blinking) with a single registered callback.
package tick

import (
	"errors"
	"sync"
	"time"
)

// DefaultPeriod is the tick period the blink thresholds are calibrated for.
const DefaultPeriod = 100 * time.Millisecond

// ErrRunning is returned by Start when a callback is already registered.
var ErrRunning = errors.New("tick: already running")

// Service invokes one callback per period until stopped.
type Service interface {
	// Start registers fn and begins invoking it every period.
	Start(period time.Duration, fn func()) error

	// Stop disables the service. fn is not invoked after Stop returns.
	Stop()
}

// Ticker is a Service backed by time.Ticker. Callbacks run sequentially on a
// dedicated goroutine.
type Ticker struct {
	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

// NewTicker creates a stopped Ticker.
func NewTicker() *Ticker {
	return &Ticker{}
}

// Start begins invoking fn every period.
func (t *Ticker) Start(period time.Duration, fn func()) error {
	if period <= 0 {
		return errors.New("tick: period must be positive")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stop != nil {
		return ErrRunning
	}
	t.stop = make(chan struct{})
	t.done = make(chan struct{})

	go run(time.NewTicker(period), fn, t.stop, t.done)
	return nil
}

func run(tk *time.Ticker, fn func(), stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer tk.Stop()
	for {
		select {
		case <-stop:
			return
		case <-tk.C:
			// A tick racing with Stop is dropped.
			select {
			case <-stop:
				return
			default:
			}
			fn()
		}
	}
}

// Stop halts the ticker and waits for an in-flight callback to finish.
func (t *Ticker) Stop() {
	t.mu.Lock()
	stop, done := t.stop, t.done
	t.stop, t.done = nil, nil
	t.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}
