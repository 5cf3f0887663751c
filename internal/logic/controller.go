package logic

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sweeney/door-controller/internal/gpio"
	"github.com/sweeney/door-controller/internal/tick"
)

// Input names used as event sources.
const (
	SourceDoorButton = "door_button"
	SourceEndstop1   = "endstop1"
	SourceEndstop2   = "endstop2"
	SourceBatteryLow = "battery_low"
	SourceBatteryMid = "battery_mid"
	SourceBatteryMax = "battery_max"
	SourceTick       = "tick"
)

// DefaultEventBuffer is the notification queue capacity.
const DefaultEventBuffer = 64

// ErrAlreadyInitialized is returned by a second call to Init.
var ErrAlreadyInitialized = errors.New("controller already initialized")

// Config holds controller settings.
type Config struct {
	TickPeriod     time.Duration    // 0 means tick.DefaultPeriod
	RelayActiveLow bool             // relay lines are driven through an inverting stage
	EventBuffer    int              // 0 means DefaultEventBuffer
	Now            func() time.Time // nil means time.Now
}

// Controller is the single owned context for the door actuator, the battery
// indicator and the interrupt dispatcher.
//
// mu stands in for interrupt masking: every dispatch pass and every tick runs
// with it held, so a level change never interleaves with a tick and a stop
// that arrives during a toggle is applied after it.
type Controller struct {
	mu      sync.Mutex
	io      gpio.Device
	ticks   tick.Service
	period  time.Duration
	now     func() time.Time
	door    *Actuator
	battery *Indicator
	counts  Counts
	events  chan Event
	booted  bool
}

// New creates a controller in the boot state: door CLOSED, battery MAX.
// Nothing touches hardware until Init.
func New(io gpio.Device, ticks tick.Service, cfg Config) *Controller {
	if cfg.TickPeriod <= 0 {
		cfg.TickPeriod = tick.DefaultPeriod
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = DefaultEventBuffer
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Controller{
		io:      io,
		ticks:   ticks,
		period:  cfg.TickPeriod,
		now:     cfg.Now,
		door:    newActuator(io, cfg.RelayActiveLow),
		battery: newIndicator(io),
		events:  make(chan Event, cfg.EventBuffer),
	}
}

// Init configures pins, drives the outputs to their safe state, registers the
// interrupt handler, enables rising-edge interrupts and starts the tick
// service. It runs once; later calls return ErrAlreadyInitialized.
func (c *Controller) Init() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.booted {
		return ErrAlreadyInitialized
	}
	c.booted = true

	relays := gpio.RelayOpen | gpio.RelayClose
	steps := []struct {
		name string
		fn   func() error
	}{
		{"pull inputs", func() error { return c.io.SetPull(gpio.InputPort, gpio.WatchedInputs, gpio.PullDown) }},
		{"pull relays", func() error { return c.io.SetPull(gpio.RelayPort, relays, c.door.idlePull()) }},
		{"input direction", func() error { return c.io.SetDirection(gpio.InputPort, gpio.WatchedInputs, gpio.Input) }},
		{"led direction", func() error { return c.io.SetDirection(gpio.LEDPort, gpio.StatusLED, gpio.Output) }},
		{"relay direction", func() error { return c.io.SetDirection(gpio.RelayPort, relays, gpio.Output) }},
		{"release relays", c.door.release},
		{"led off", func() error { return c.io.Clear(gpio.LEDPort, gpio.StatusLED) }},
		// The LED pull is applied once the line is driven low, so the
		// output request does not start it lit.
		{"pull led", func() error { return c.io.SetPull(gpio.LEDPort, gpio.StatusLED, gpio.PullUp) }},
		{"register handler", func() error { c.io.OnInterrupt(c.HandleInterrupt); return nil }},
		{"enable interrupts", func() error { return c.io.EnableInterrupt(gpio.InputPort, gpio.WatchedInputs, gpio.EdgeRising) }},
		{"start ticks", func() error { return c.ticks.Start(c.period, c.OnTick) }},
	}
	for _, s := range steps {
		if err := s.fn(); err != nil {
			return fmt.Errorf("init %s: %w", s.name, err)
		}
	}
	return nil
}

// OnTick is the tick service callback.
func (c *Controller) OnTick() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts.Ticks++
	if _, err := c.battery.OnTick(); err != nil {
		c.gpioErrorLocked(SourceTick, err)
	}
}

// Shutdown stops the tick service, unregisters the interrupt handler and
// deactivates both relays. The door is left STOPPED.
func (c *Controller) Shutdown() error {
	// Stop waits for an in-flight tick, which needs mu.
	c.ticks.Stop()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.io.OnInterrupt(nil)
	if err := c.door.Stop(); err != nil {
		return fmt.Errorf("stop door: %w", err)
	}
	if err := c.io.Clear(gpio.LEDPort, gpio.StatusLED); err != nil {
		return fmt.Errorf("led off: %w", err)
	}
	return nil
}

// Events returns the notification queue. Sends never block; notifications
// are dropped (and counted) when the queue is full.
func (c *Controller) Events() <-chan Event {
	return c.events
}

// Snapshot returns a copy of the controller state with relay and LED levels
// read back from hardware.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Snapshot{
		Door:       c.door.State(),
		Battery:    c.battery.Level(),
		BlinkPhase: c.battery.Phase(),
		Counts:     c.counts,
	}
	if r, err := c.door.Relays(); err == nil {
		s.Relays = r
	}
	if led, err := c.battery.LED(); err == nil {
		s.LED = led
	}
	return s
}

func (c *Controller) toggleLocked(src string) {
	applied, err := c.door.Toggle()
	if !applied {
		c.counts.IgnoredToggles++
		c.emit(Event{Type: EventToggleIgnored, Source: src, Detail: fmt.Sprintf("door is %s", c.door.State())})
		return
	}
	c.counts.Toggles++
	if err != nil {
		c.gpioErrorLocked(src, err)
		// Never leave a half-driven motor.
		if err := c.door.Stop(); err != nil {
			c.gpioErrorLocked(src, err)
		}
		c.emit(Event{Type: EventDoorStopped, Source: src, Detail: "toggle failed"})
		return
	}
	if c.checkRelaysLocked(src) {
		return
	}
	typ := EventDoorOpen
	if c.door.State() == DoorClosed {
		typ = EventDoorClosed
	}
	c.emit(Event{Type: typ, Source: src})
}

func (c *Controller) stopLocked(src string) {
	c.counts.Stops++
	if err := c.door.Stop(); err != nil {
		c.gpioErrorLocked(src, err)
	}
	c.emit(Event{Type: EventDoorStopped, Source: src})
	c.checkRelaysLocked(src)
}

func (c *Controller) setLevelLocked(l BatteryLevel, src string) {
	c.counts.LevelSets++
	c.battery.SetLevel(l)
	c.emit(Event{Type: EventBatteryLevel, Source: src})
}

// checkRelaysLocked reads the relays back and handles a conflict: fatal in
// doordebug builds, otherwise a forced stop. It reports whether a conflict
// was found.
func (c *Controller) checkRelaysLocked(src string) bool {
	r, err := c.door.Relays()
	if err != nil {
		c.gpioErrorLocked(src, err)
		return false
	}
	if !r.Open || !r.Close {
		return false
	}
	if assertRelays {
		panic(fmt.Sprintf("logic: relay-open and relay-close both active after %s (door %s)", src, c.door.State()))
	}
	c.counts.RelayFaults++
	if err := c.door.Stop(); err != nil {
		c.gpioErrorLocked(src, err)
	}
	c.emit(Event{Type: EventRelayFault, Source: src, Detail: "relay-open and relay-close both active"})
	return true
}

func (c *Controller) gpioErrorLocked(src string, err error) {
	c.counts.GPIOErrors++
	c.emit(Event{Type: EventGPIOError, Source: src, Detail: err.Error()})
}

// emit stamps e with the current time and states and queues it without
// blocking.
func (c *Controller) emit(e Event) {
	e.Timestamp = c.now()
	e.Door = c.door.State()
	e.Battery = c.battery.Level()
	select {
	case c.events <- e:
	default:
		c.counts.Dropped++
	}
}
