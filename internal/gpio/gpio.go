// Package gpio provides a port/bitmask GPIO abstraction with edge interrupts.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// Port identifies a GPIO port. Pins within a port are addressed by bitmask.
type Port uint8

const (
	Port0 Port = 0
	Port1 Port = 1
)

// NumPorts is the number of ports the abstraction models.
const NumPorts = 2

// Direction is the data direction of a pin.
type Direction uint8

const (
	Input Direction = iota
	Output
)

// Pull is the bias applied to a pin.
type Pull uint8

const (
	PullNone Pull = iota
	PullUp
	PullDown
)

// Edge selects which transition raises an interrupt.
type Edge uint8

const (
	EdgeRising Edge = iota
	EdgeFalling
)

// NumEdges is the number of edge kinds tracked per port.
const NumEdges = 2

// Device is the hardware abstraction the door controller drives.
//
// Interrupt status behaves like a latch: an enabled edge sets its bit in the
// pending register and invokes the registered handler. The bit stays set
// until ClearInterrupt is called for it.
type Device interface {
	// SetPull configures the bias for every pin in mask.
	SetPull(port Port, mask uint32, pull Pull) error

	// SetDirection configures every pin in mask as input or output.
	SetDirection(port Port, mask uint32, dir Direction) error

	// Read returns the current level of every configured pin of the port.
	// Output pins report the level they are driven to.
	Read(port Port) (uint32, error)

	// Set drives every output pin in mask high.
	Set(port Port, mask uint32) error

	// Clear drives every output pin in mask low.
	Clear(port Port, mask uint32) error

	// EnableInterrupt enables edge interrupts for every pin in mask.
	EnableInterrupt(port Port, mask uint32, edge Edge) error

	// InterruptStatus reports whether pin (a single-bit mask) has a pending
	// interrupt for edge.
	InterruptStatus(port Port, pin uint32, edge Edge) bool

	// PendingInterrupts returns the whole pending register for edge.
	PendingInterrupts(port Port, edge Edge) uint32

	// ClearInterrupt clears the pending bits in mask for edge.
	ClearInterrupt(port Port, mask uint32, edge Edge)

	// OnInterrupt registers the single interrupt handler. It replaces any
	// previously registered handler.
	OnInterrupt(handler func())

	// Close releases GPIO resources.
	Close() error
}

// Pin assignments (port/bit, fixed by the hardware wiring).
const (
	DoorButton uint32 = 1 << 3  // P0.3
	Endstop1   uint32 = 1 << 4  // P0.4
	Endstop2   uint32 = 1 << 5  // P0.5
	StatusLED  uint32 = 1 << 6  // P0.6
	BatteryLow uint32 = 1 << 28 // P0.28
	BatteryMid uint32 = 1 << 29 // P0.29
	BatteryMax uint32 = 1 << 30 // P0.30
	RelayClose uint32 = 1 << 0  // P1.0
	RelayOpen  uint32 = 1 << 1  // P1.1

	WatchedInputs = DoorButton | Endstop1 | Endstop2 | BatteryLow | BatteryMid | BatteryMax
)

// Ports the pins above live on.
const (
	InputPort = Port0
	LEDPort   = Port0
	RelayPort = Port1
)

// Line identifies a single pin by port and bit number.
type Line struct {
	Port Port
	Bit  uint
}

// LineMap maps logical pins to line offsets on a GPIO chip.
type LineMap map[Line]int

// DefaultLineMap is the wiring on the Raspberry Pi carrier board (BCM numbering).
var DefaultLineMap = LineMap{
	{Port0, 3}:  17, // door button
	{Port0, 4}:  27, // end-stop 1
	{Port0, 5}:  22, // end-stop 2
	{Port0, 6}:  23, // status LED
	{Port0, 28}: 5,  // battery low
	{Port0, 29}: 6,  // battery mid
	{Port0, 30}: 13, // battery max
	{Port1, 0}:  20, // relay close
	{Port1, 1}:  21, // relay open
}

// lines expands mask into the lines it covers, lowest bit first.
func lines(port Port, mask uint32) []Line {
	var out []Line
	for b := uint(0); b < 32; b++ {
		if mask&(1<<b) != 0 {
			out = append(out, Line{Port: port, Bit: b})
		}
	}
	return out
}
