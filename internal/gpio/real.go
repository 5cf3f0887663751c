//go:build linux

package gpio

import (
	"fmt"
	"sync"

	"github.com/warthog618/go-gpiocdev"
)

// Real drives actual hardware through the Linux GPIO character device.
//
// Input lines are requested with both-edge detection; the interrupt enable
// and pending registers are kept in software and updated from the gpiocdev
// event handler, which then invokes the registered handler.
type Real struct {
	chip     *gpiocdev.Chip
	lineMap  LineMap
	byOffset map[int]Line

	mu      sync.Mutex
	lines   map[Line]*gpiocdev.Line
	dirs    map[Line]Direction
	pulls   map[Line]Pull
	enabled [NumPorts][NumEdges]uint32
	pending [NumPorts][NumEdges]uint32
	handler func()
}

// NewReal opens the named chip (e.g. "gpiochip0"). Lines are requested
// lazily by SetDirection.
func NewReal(chipName string, lineMap LineMap) (*Real, error) {
	chip, err := gpiocdev.NewChip(chipName, gpiocdev.WithConsumer("door-controller"))
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", chipName, err)
	}

	byOffset := make(map[int]Line, len(lineMap))
	for l, off := range lineMap {
		if prev, dup := byOffset[off]; dup {
			chip.Close()
			return nil, fmt.Errorf("line offset %d mapped twice (P%d.%d and P%d.%d)", off, prev.Port, prev.Bit, l.Port, l.Bit)
		}
		byOffset[off] = l
	}

	return &Real{
		chip:     chip,
		lineMap:  lineMap,
		byOffset: byOffset,
		lines:    make(map[Line]*gpiocdev.Line),
		dirs:     make(map[Line]Direction),
		pulls:    make(map[Line]Pull),
	}, nil
}

func biasOption(p Pull) gpiocdev.LineBias {
	switch p {
	case PullUp:
		return gpiocdev.WithPullUp
	case PullDown:
		return gpiocdev.WithPullDown
	default:
		return gpiocdev.WithBiasDisabled
	}
}

// SetPull records the bias and applies it to lines already requested as input.
// Bias on outputs is recorded only; the kernel ignores it for driven lines.
func (r *Real) SetPull(port Port, mask uint32, pull Pull) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range lines(port, mask) {
		if _, ok := r.lineMap[l]; !ok {
			return fmt.Errorf("P%d.%d: no line mapped", l.Port, l.Bit)
		}
		r.pulls[l] = pull
		if line, ok := r.lines[l]; ok && r.dirs[l] == Input {
			if err := line.Reconfigure(gpiocdev.AsInput, biasOption(pull), gpiocdev.WithBothEdges); err != nil {
				return fmt.Errorf("reconfigure P%d.%d: %w", l.Port, l.Bit, err)
			}
		}
	}
	return nil
}

// SetDirection requests each line in mask as input (with edge events) or as
// output. Outputs start at the level their recorded pull idles at, so an
// active-low relay pulled up is not energized by the request itself.
func (r *Real) SetDirection(port Port, mask uint32, dir Direction) error {
	var stale []*gpiocdev.Line
	// Closing a line waits for its watcher, which may be blocked on r.mu.
	defer func() {
		for _, line := range stale {
			line.Close()
		}
	}()

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range lines(port, mask) {
		off, ok := r.lineMap[l]
		if !ok {
			return fmt.Errorf("P%d.%d: no line mapped", l.Port, l.Bit)
		}
		if old, ok := r.lines[l]; ok {
			stale = append(stale, old)
			delete(r.lines, l)
		}

		var (
			line *gpiocdev.Line
			err  error
		)
		if dir == Input {
			line, err = r.chip.RequestLine(off, gpiocdev.AsInput, biasOption(r.pulls[l]),
				gpiocdev.WithBothEdges, gpiocdev.WithEventHandler(r.onEvent))
		} else {
			initial := 0
			if r.pulls[l] == PullUp {
				initial = 1
			}
			line, err = r.chip.RequestLine(off, gpiocdev.AsOutput(initial))
		}
		if err != nil {
			return fmt.Errorf("request P%d.%d (line %d): %w", l.Port, l.Bit, off, err)
		}
		r.lines[l] = line
		r.dirs[l] = dir
	}
	return nil
}

// Read assembles the port bitmask from every requested line of the port.
func (r *Real) Read(port Port) (uint32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var v uint32
	for l, line := range r.lines {
		if l.Port != port {
			continue
		}
		raw, err := line.Value()
		if err != nil {
			return 0, fmt.Errorf("read P%d.%d: %w", l.Port, l.Bit, err)
		}
		if raw != 0 {
			v |= 1 << l.Bit
		}
	}
	return v, nil
}

// Set drives mask high.
func (r *Real) Set(port Port, mask uint32) error {
	return r.write(port, mask, 1)
}

// Clear drives mask low.
func (r *Real) Clear(port Port, mask uint32) error {
	return r.write(port, mask, 0)
}

func (r *Real) write(port Port, mask uint32, value int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range lines(port, mask) {
		line, ok := r.lines[l]
		if !ok || r.dirs[l] != Output {
			return fmt.Errorf("P%d.%d: not configured as output", l.Port, l.Bit)
		}
		if err := line.SetValue(value); err != nil {
			return fmt.Errorf("write P%d.%d: %w", l.Port, l.Bit, err)
		}
	}
	return nil
}

// EnableInterrupt enables edge interrupts for mask.
func (r *Real) EnableInterrupt(port Port, mask uint32, edge Edge) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range lines(port, mask) {
		if r.dirs[l] != Input || r.lines[l] == nil {
			return fmt.Errorf("P%d.%d: interrupts need an input line", l.Port, l.Bit)
		}
	}
	r.enabled[port][edge] |= mask
	return nil
}

// InterruptStatus reports whether pin is pending.
func (r *Real) InterruptStatus(port Port, pin uint32, edge Edge) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pending[port][edge]&pin != 0
}

// PendingInterrupts returns the pending register.
func (r *Real) PendingInterrupts(port Port, edge Edge) uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pending[port][edge]
}

// ClearInterrupt clears pending bits.
func (r *Real) ClearInterrupt(port Port, mask uint32, edge Edge) {
	r.mu.Lock()
	r.pending[port][edge] &^= mask
	r.mu.Unlock()
}

// OnInterrupt registers the interrupt handler.
func (r *Real) OnInterrupt(handler func()) {
	r.mu.Lock()
	r.handler = handler
	r.mu.Unlock()
}

// onEvent runs on the gpiocdev watcher goroutine.
func (r *Real) onEvent(evt gpiocdev.LineEvent) {
	l, ok := r.byOffset[evt.Offset]
	if !ok {
		return
	}
	edge := EdgeRising
	if evt.Type == gpiocdev.LineEventFallingEdge {
		edge = EdgeFalling
	}

	r.mu.Lock()
	bit := uint32(1) << l.Bit
	latched := r.enabled[l.Port][edge]&bit != 0
	if latched {
		r.pending[l.Port][edge] |= bit
	}
	h := r.handler
	r.mu.Unlock()

	if latched && h != nil {
		h()
	}
}

// Close releases all lines and the chip.
// Input lines are reconfigured to input with pull-down (Pi boot default)
// before release. Outputs keep their last driven level.
func (r *Real) Close() error {
	r.mu.Lock()
	held := r.lines
	dirs := r.dirs
	chip := r.chip
	r.lines = make(map[Line]*gpiocdev.Line)
	r.dirs = make(map[Line]Direction)
	r.chip = nil
	r.handler = nil
	r.mu.Unlock()

	var errs []error
	for l, line := range held {
		if dirs[l] == Input {
			if err := line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
				errs = append(errs, fmt.Errorf("reconfigure P%d.%d: %w", l.Port, l.Bit, err))
			}
		}
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close P%d.%d: %w", l.Port, l.Bit, err))
		}
	}
	if chip != nil {
		if err := chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
