package logic

import (
	"fmt"

	"github.com/sweeney/door-controller/internal/gpio"
)

// Actuator owns the door state and the two relay lines.
//
// Door position is optimistic: a toggle asserts the relay and records the
// target state immediately. Only the end-stops report ground truth, and they
// do so by stopping the motor.
type Actuator struct {
	io        gpio.Device
	activeLow bool
	state     DoorState
}

func newActuator(io gpio.Device, activeLow bool) *Actuator {
	return &Actuator{io: io, activeLow: activeLow, state: DoorClosed}
}

// State returns the current door state.
func (a *Actuator) State() DoorState {
	return a.state
}

// Toggle starts the door moving towards the opposite stable state.
// It reports false, with no GPIO access, when the door is moving or stopped.
func (a *Actuator) Toggle() (bool, error) {
	switch a.state {
	case DoorClosed:
		a.state = DoorMovingOpen
		if err := a.drive(gpio.RelayOpen, gpio.RelayClose); err != nil {
			return true, err
		}
		a.state = DoorOpen
	case DoorOpen:
		a.state = DoorMovingClosed
		if err := a.drive(gpio.RelayClose, gpio.RelayOpen); err != nil {
			return true, err
		}
		a.state = DoorClosed
	default:
		return false, nil
	}
	return true, nil
}

// Stop deactivates both relays and leaves the door STOPPED. It is valid from
// any state and idempotent.
func (a *Actuator) Stop() error {
	a.state = DoorStopped
	return a.release()
}

// release deactivates both relays without touching the door state.
func (a *Actuator) release() error {
	return a.deactivate(gpio.RelayOpen | gpio.RelayClose)
}

// drive activates on. off is deactivated first so the two lines are never
// active together.
func (a *Actuator) drive(on, off uint32) error {
	if err := a.deactivate(off); err != nil {
		return fmt.Errorf("deactivate relay: %w", err)
	}
	if err := a.activate(on); err != nil {
		return fmt.Errorf("activate relay: %w", err)
	}
	return nil
}

func (a *Actuator) activate(mask uint32) error {
	if a.activeLow {
		return a.io.Clear(gpio.RelayPort, mask)
	}
	return a.io.Set(gpio.RelayPort, mask)
}

func (a *Actuator) deactivate(mask uint32) error {
	if a.activeLow {
		return a.io.Set(gpio.RelayPort, mask)
	}
	return a.io.Clear(gpio.RelayPort, mask)
}

// Relays reads the relay lines back from hardware.
func (a *Actuator) Relays() (Relays, error) {
	v, err := a.io.Read(gpio.RelayPort)
	if err != nil {
		return Relays{}, fmt.Errorf("read relays: %w", err)
	}
	active := func(mask uint32) bool {
		return (v&mask != 0) != a.activeLow
	}
	return Relays{Open: active(gpio.RelayOpen), Close: active(gpio.RelayClose)}, nil
}

// idlePull is the bias that keeps the relay lines inactive while undriven.
func (a *Actuator) idlePull() gpio.Pull {
	if a.activeLow {
		return gpio.PullUp
	}
	return gpio.PullDown
}
