package gpio

import (
	"fmt"
	"sync"
)

// Fake is an in-memory Device for tests. It models per-port level, direction,
// pull, interrupt-enable and pending registers.
//
// Raise simulates a hardware edge: it drives the input level, latches the
// pending bit if the edge is enabled, and calls the registered handler
// synchronously on the caller's goroutine.
type Fake struct {
	mu       sync.Mutex
	level    [NumPorts]uint32
	output   [NumPorts]uint32 // direction register: 1 = output
	pullUp   [NumPorts]uint32
	pullDown [NumPorts]uint32
	enabled  [NumPorts][NumEdges]uint32
	pending  [NumPorts][NumEdges]uint32
	stuckHi  [NumPorts]uint32
	stuckLo  [NumPorts]uint32
	handler  func()

	// Writes records every Set/Clear call in order.
	Writes []Write

	// Clears counts ClearInterrupt calls per port/bit for rising edges.
	Clears map[Line]int

	// OnWrite, if set, is called after every Set/Clear with the lock released.
	OnWrite func(w Write)

	// ReadError, if set, is returned by Read.
	ReadError error

	// WriteError, if set, is returned by Set and Clear (the write is dropped).
	WriteError error

	// Closed tracks if Close was called.
	Closed bool
}

// Write is a single recorded output write.
type Write struct {
	Port Port
	Mask uint32
	High bool
}

// NewFake creates a Fake with every pin a floating low input.
func NewFake() *Fake {
	return &Fake{Clears: make(map[Line]int)}
}

// SetPull records the bias. Inputs with pull-up idle high.
func (f *Fake) SetPull(port Port, mask uint32, pull Pull) error {
	if err := checkPort(port); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pullUp[port] &^= mask
	f.pullDown[port] &^= mask
	switch pull {
	case PullUp:
		f.pullUp[port] |= mask
		f.level[port] |= mask &^ f.output[port]
	case PullDown:
		f.pullDown[port] |= mask
		f.level[port] &^= mask &^ f.output[port]
	}
	return nil
}

// SetDirection records the direction of each pin in mask. Pins that become
// outputs start at the level their pull idles at, as the Linux backend does.
func (f *Fake) SetDirection(port Port, mask uint32, dir Direction) error {
	if err := checkPort(port); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if dir == Output {
		f.output[port] |= mask
		f.level[port] = f.level[port]&^mask | f.pullUp[port]&mask
	} else {
		f.output[port] &^= mask
	}
	return nil
}

// Read returns the level register of the port.
func (f *Fake) Read(port Port) (uint32, error) {
	if f.ReadError != nil {
		return 0, f.ReadError
	}
	if err := checkPort(port); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.levelLocked(port), nil
}

// Set drives mask high.
func (f *Fake) Set(port Port, mask uint32) error {
	return f.write(port, mask, true)
}

// Clear drives mask low.
func (f *Fake) Clear(port Port, mask uint32) error {
	return f.write(port, mask, false)
}

func (f *Fake) write(port Port, mask uint32, high bool) error {
	if f.WriteError != nil {
		return f.WriteError
	}
	if err := checkPort(port); err != nil {
		return err
	}
	w := Write{Port: port, Mask: mask, High: high}

	f.mu.Lock()
	if high {
		f.level[port] |= mask & f.output[port]
	} else {
		f.level[port] &^= mask & f.output[port]
	}
	f.Writes = append(f.Writes, w)
	hook := f.OnWrite
	f.mu.Unlock()

	if hook != nil {
		hook(w)
	}
	return nil
}

// EnableInterrupt enables edge detection for mask.
func (f *Fake) EnableInterrupt(port Port, mask uint32, edge Edge) error {
	if err := checkPort(port); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enabled[port][edge] |= mask
	return nil
}

// InterruptStatus reports whether pin is pending.
func (f *Fake) InterruptStatus(port Port, pin uint32, edge Edge) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pending[port][edge]&pin != 0
}

// PendingInterrupts returns the pending register.
func (f *Fake) PendingInterrupts(port Port, edge Edge) uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pending[port][edge]
}

// ClearInterrupt clears pending bits and counts the clear per pin.
func (f *Fake) ClearInterrupt(port Port, mask uint32, edge Edge) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending[port][edge] &^= mask
	if edge == EdgeRising {
		for _, l := range lines(port, mask) {
			f.Clears[l]++
		}
	}
}

// OnInterrupt registers the interrupt handler.
func (f *Fake) OnInterrupt(handler func()) {
	f.mu.Lock()
	f.handler = handler
	f.mu.Unlock()
}

// Close marks the device as closed.
func (f *Fake) Close() error {
	f.Closed = true
	return nil
}

// Raise simulates a rising edge on every input pin in mask. Pins are driven
// high, enabled pins become pending and the handler runs once.
func (f *Fake) Raise(port Port, mask uint32) {
	f.mu.Lock()
	f.level[port] |= mask &^ f.output[port]
	f.pending[port][EdgeRising] |= mask & f.enabled[port][EdgeRising]
	h := f.handler
	f.mu.Unlock()

	if h != nil {
		h()
	}
}

// Release drives every input pin in mask low without raising an interrupt.
func (f *Fake) Release(port Port, mask uint32) {
	f.mu.Lock()
	f.level[port] &^= mask &^ f.output[port]
	f.mu.Unlock()
}

// Latch sets pending bits directly (including bits with no enabled source)
// without invoking the handler.
func (f *Fake) Latch(port Port, mask uint32, edge Edge) {
	f.mu.Lock()
	f.pending[port][edge] |= mask
	f.mu.Unlock()
}

// Fire invokes the registered handler without touching any register.
func (f *Fake) Fire() {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	if h != nil {
		h()
	}
}

// Stick forces the pins in mask to read high (or low) regardless of writes,
// modelling a welded contact or a second driver on the line.
func (f *Fake) Stick(port Port, mask uint32, high bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if high {
		f.stuckHi[port] |= mask
		f.stuckLo[port] &^= mask
	} else {
		f.stuckLo[port] |= mask
		f.stuckHi[port] &^= mask
	}
}

// Level reports the level of pin as Read would see it.
func (f *Fake) Level(port Port, pin uint32) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.levelLocked(port)&pin != 0
}

// IsOutput reports whether every pin in mask is configured as output.
func (f *Fake) IsOutput(port Port, mask uint32) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.output[port]&mask == mask
}

// Enabled returns the interrupt-enable register for edge.
func (f *Fake) Enabled(port Port, edge Edge) uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enabled[port][edge]
}

// PulledDown reports whether every pin in mask has a pull-down.
func (f *Fake) PulledDown(port Port, mask uint32) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pullDown[port]&mask == mask
}

// PulledUp reports whether every pin in mask has a pull-up.
func (f *Fake) PulledUp(port Port, mask uint32) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pullUp[port]&mask == mask
}

// ResetWrites forgets recorded writes and interrupt clears.
func (f *Fake) ResetWrites() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Writes = nil
	f.Clears = make(map[Line]int)
}

func (f *Fake) levelLocked(port Port) uint32 {
	return (f.level[port] | f.stuckHi[port]) &^ f.stuckLo[port]
}

func checkPort(port Port) error {
	if int(port) >= NumPorts {
		return fmt.Errorf("gpio: invalid port %d", port)
	}
	return nil
}
