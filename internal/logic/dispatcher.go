package logic

import (
	"fmt"

	"github.com/sweeney/door-controller/internal/gpio"
)

// InterruptSnapshot is the pending-interrupt status of every watched input,
// taken once at the start of a dispatch pass.
type InterruptSnapshot struct {
	DoorButton bool
	Endstop1   bool
	Endstop2   bool
	BatteryLow bool
	BatteryMid bool
	BatteryMax bool

	// Stray holds pending bits, per port, with no watched source behind them.
	Stray [gpio.NumPorts]uint32
}

// Any reports whether anything is pending.
func (s InterruptSnapshot) Any() bool {
	for _, m := range s.Stray {
		if m != 0 {
			return true
		}
	}
	return s.DoorButton || s.Endstop1 || s.Endstop2 || s.BatteryLow || s.BatteryMid || s.BatteryMax
}

// ReadInterrupts samples the rising-edge pending status of every input.
func ReadInterrupts(io gpio.Device) InterruptSnapshot {
	status := func(pin uint32) bool {
		return io.InterruptStatus(gpio.InputPort, pin, gpio.EdgeRising)
	}
	s := InterruptSnapshot{
		DoorButton: status(gpio.DoorButton),
		Endstop1:   status(gpio.Endstop1),
		Endstop2:   status(gpio.Endstop2),
		BatteryLow: status(gpio.BatteryLow),
		BatteryMid: status(gpio.BatteryMid),
		BatteryMax: status(gpio.BatteryMax),
	}
	for p := gpio.Port(0); p < gpio.NumPorts; p++ {
		watched := uint32(0)
		if p == gpio.InputPort {
			watched = gpio.WatchedInputs
		}
		s.Stray[p] = io.PendingInterrupts(p, gpio.EdgeRising) &^ watched
	}
	return s
}

// HandleInterrupt is the GPIO interrupt entry point. It samples the pending
// status and dispatches it.
func (c *Controller) HandleInterrupt() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dispatchLocked(ReadInterrupts(c.io))
}

// Dispatch services every asserted source in s.
func (c *Controller) Dispatch(s InterruptSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dispatchLocked(s)
}

// dispatchLocked checks each source independently in priority order: door
// button, end-stops, battery selects. Coincident events are all serviced.
// Each serviced pin has its pending bit cleared exactly once.
func (c *Controller) dispatchLocked(s InterruptSnapshot) {
	if s.DoorButton {
		c.toggleLocked(SourceDoorButton)
		c.ack(gpio.InputPort, gpio.DoorButton)
	}
	if s.Endstop1 {
		c.stopLocked(SourceEndstop1)
		c.ack(gpio.InputPort, gpio.Endstop1)
	}
	if s.Endstop2 {
		c.stopLocked(SourceEndstop2)
		c.ack(gpio.InputPort, gpio.Endstop2)
	}
	if s.BatteryLow {
		c.setLevelLocked(BatteryLow, SourceBatteryLow)
		c.ack(gpio.InputPort, gpio.BatteryLow)
	}
	if s.BatteryMid {
		c.setLevelLocked(BatteryMid, SourceBatteryMid)
		c.ack(gpio.InputPort, gpio.BatteryMid)
	}
	if s.BatteryMax {
		c.setLevelLocked(BatteryMax, SourceBatteryMax)
		c.ack(gpio.InputPort, gpio.BatteryMax)
	}
	for p, stray := range s.Stray {
		if stray == 0 {
			continue
		}
		c.ack(gpio.Port(p), stray)
		c.counts.Spurious++
		c.emit(Event{Type: EventSpurious, Detail: fmt.Sprintf("port %d mask %#08x", p, stray)})
	}
}

func (c *Controller) ack(port gpio.Port, mask uint32) {
	c.io.ClearInterrupt(port, mask, gpio.EdgeRising)
}
