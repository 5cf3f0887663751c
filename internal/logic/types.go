// Package logic contains the door and battery-indicator control logic.
// It touches hardware only through gpio.Device and never blocks or sleeps.
// Time is injectable via the controller's clock.
package logic

import "time"

// DoorState is the state of the door actuator.
type DoorState string

const (
	DoorOpen         DoorState = "OPEN"
	DoorClosed       DoorState = "CLOSED"
	DoorMovingOpen   DoorState = "MOVING_OPEN"
	DoorMovingClosed DoorState = "MOVING_CLOSED"
	DoorStopped      DoorState = "STOPPED"
)

// Stable reports whether toggling is allowed from s.
func (s DoorState) Stable() bool {
	return s == DoorOpen || s == DoorClosed
}

// BatteryLevel is the simulated battery level, ordered low to max.
type BatteryLevel int

const (
	BatteryLow BatteryLevel = iota
	BatteryMid
	BatteryMax
)

func (l BatteryLevel) String() string {
	switch l {
	case BatteryLow:
		return "LOW"
	case BatteryMid:
		return "MID"
	case BatteryMax:
		return "MAX"
	}
	return "UNKNOWN"
}

// BlinkThreshold returns the number of ticks between LED flips at l.
// Zero means the LED does not blink.
func (l BatteryLevel) BlinkThreshold() uint8 {
	switch l {
	case BatteryMid:
		return 10
	case BatteryLow:
		return 4
	}
	return 0
}

// EventType identifies a notification emitted by the controller.
type EventType string

const (
	EventDoorOpen      EventType = "DOOR_OPEN"
	EventDoorClosed    EventType = "DOOR_CLOSED"
	EventDoorStopped   EventType = "DOOR_STOPPED"
	EventToggleIgnored EventType = "TOGGLE_IGNORED"
	EventBatteryLevel  EventType = "BATTERY_LEVEL"
	EventSpurious      EventType = "SPURIOUS_INTERRUPT"
	EventRelayFault    EventType = "RELAY_FAULT"
	EventGPIOError     EventType = "GPIO_ERROR"
)

// Event is a notification of something the controller did or detected.
// Door and Battery are the states after the event was handled.
type Event struct {
	Timestamp time.Time
	Type      EventType
	Door      DoorState
	Battery   BatteryLevel
	Source    string // input that caused the event, e.g. "endstop1"
	Detail    string
}

// Counts tracks controller activity since boot.
type Counts struct {
	Toggles        int
	Stops          int
	IgnoredToggles int
	LevelSets      int
	Spurious       int
	RelayFaults    int
	GPIOErrors     int
	Ticks          int
	Dropped        int
}

// Relays is the logical drive state of the two relay lines.
type Relays struct {
	Open  bool
	Close bool
}

// Snapshot is a point-in-time copy of controller state.
type Snapshot struct {
	Door       DoorState
	Battery    BatteryLevel
	BlinkPhase uint8
	Relays     Relays
	LED        bool
	Counts     Counts
}
