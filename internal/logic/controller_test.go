package logic

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/door-controller/internal/gpio"
	"github.com/sweeney/door-controller/internal/tick"
)

var bootTime = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

// newBooted returns an initialized controller wired to fakes, with
// active-low relays as on the real board.
func newBooted(t *testing.T) (*Controller, *gpio.Fake, *tick.Fake) {
	t.Helper()
	return newBootedWith(t, Config{RelayActiveLow: true})
}

func newBootedWith(t *testing.T, cfg Config) (*Controller, *gpio.Fake, *tick.Fake) {
	t.Helper()
	io := gpio.NewFake()
	ticks := tick.NewFake()
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return bootTime }
	}
	c := New(io, ticks, cfg)
	require.NoError(t, c.Init())
	return c, io, ticks
}

// drain returns every queued event without blocking.
func drain(c *Controller) []Event {
	var out []Event
	for {
		select {
		case e := <-c.Events():
			out = append(out, e)
		default:
			return out
		}
	}
}

func eventTypes(events []Event) []EventType {
	out := make([]EventType, len(events))
	for i, e := range events {
		out[i] = e.Type
	}
	return out
}

func requireRelaysExclusive(t *testing.T, c *Controller) Relays {
	t.Helper()
	r, err := c.door.Relays()
	require.NoError(t, err)
	require.False(t, r.Open && r.Close, "relay-open and relay-close both active")
	return r
}

func TestBootState(t *testing.T) {
	c, io, ticks := newBooted(t)

	snap := c.Snapshot()
	assert.Equal(t, DoorClosed, snap.Door)
	assert.Equal(t, BatteryMax, snap.Battery)
	assert.False(t, snap.LED, "LED should be off at boot")
	assert.Equal(t, Relays{}, snap.Relays, "relays should be inactive at boot")

	// Active-low relays idle high.
	assert.True(t, io.Level(gpio.RelayPort, gpio.RelayOpen))
	assert.True(t, io.Level(gpio.RelayPort, gpio.RelayClose))

	assert.True(t, io.PulledDown(gpio.InputPort, gpio.WatchedInputs))
	assert.True(t, io.PulledUp(gpio.LEDPort, gpio.StatusLED))
	assert.True(t, io.PulledUp(gpio.RelayPort, gpio.RelayOpen|gpio.RelayClose))
	assert.False(t, io.IsOutput(gpio.InputPort, gpio.DoorButton))
	assert.True(t, io.IsOutput(gpio.LEDPort, gpio.StatusLED))
	assert.True(t, io.IsOutput(gpio.RelayPort, gpio.RelayOpen|gpio.RelayClose))
	assert.Equal(t, gpio.WatchedInputs, io.Enabled(gpio.InputPort, gpio.EdgeRising))
	assert.Zero(t, io.Enabled(gpio.InputPort, gpio.EdgeFalling))

	assert.Equal(t, tick.DefaultPeriod, ticks.Period)
	assert.Equal(t, 1, ticks.Started)
	assert.Empty(t, drain(c))
}

func TestBootActiveHighRelays(t *testing.T) {
	c, io, _ := newBootedWith(t, Config{RelayActiveLow: false})

	assert.False(t, io.Level(gpio.RelayPort, gpio.RelayOpen))
	assert.False(t, io.Level(gpio.RelayPort, gpio.RelayClose))
	assert.True(t, io.PulledDown(gpio.RelayPort, gpio.RelayOpen|gpio.RelayClose))

	io.Raise(gpio.InputPort, gpio.DoorButton)
	assert.True(t, io.Level(gpio.RelayPort, gpio.RelayOpen), "active-high relay-open should be driven high")
	assert.Equal(t, Relays{Open: true}, c.Snapshot().Relays)
}

// ledWatch records the status LED level after every direction change.
type ledWatch struct {
	*gpio.Fake
	levels []bool
}

func (w *ledWatch) SetDirection(port gpio.Port, mask uint32, dir gpio.Direction) error {
	err := w.Fake.SetDirection(port, mask, dir)
	w.levels = append(w.levels, w.Fake.Level(gpio.LEDPort, gpio.StatusLED))
	return err
}

func TestBootNeverLightsLED(t *testing.T) {
	io := &ledWatch{Fake: gpio.NewFake()}
	c := New(io, tick.NewFake(), Config{RelayActiveLow: true})
	require.NoError(t, c.Init())

	assert.NotContains(t, io.levels, true, "LED lit while lines were being requested")
	for _, w := range io.Writes {
		if w.Port == gpio.LEDPort && w.Mask&gpio.StatusLED != 0 {
			assert.False(t, w.High, "LED driven high during boot")
		}
	}
	assert.True(t, io.PulledUp(gpio.LEDPort, gpio.StatusLED))
	assert.False(t, c.Snapshot().LED)
}

func TestInitRunsOnce(t *testing.T) {
	c, _, ticks := newBooted(t)
	assert.ErrorIs(t, c.Init(), ErrAlreadyInitialized)
	assert.Equal(t, 1, ticks.Started)
}

func TestInitErrorNamesStep(t *testing.T) {
	io := gpio.NewFake()
	io.WriteError = assert.AnError
	c := New(io, tick.NewFake(), Config{RelayActiveLow: true})

	err := c.Init()
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Contains(t, err.Error(), "init release relays")
}

func TestConfigDefaults(t *testing.T) {
	c := New(gpio.NewFake(), tick.NewFake(), Config{})
	assert.Equal(t, tick.DefaultPeriod, c.period)
	assert.Equal(t, DefaultEventBuffer, cap(c.events))
	assert.NotNil(t, c.now)
}

func TestToggleAlternates(t *testing.T) {
	c, io, _ := newBooted(t)

	want := []DoorState{DoorOpen, DoorClosed, DoorOpen, DoorClosed, DoorOpen}
	for i, w := range want {
		io.Raise(gpio.InputPort, gpio.DoorButton)
		assert.Equal(t, w, c.Snapshot().Door, "toggle %d", i)

		r := requireRelaysExclusive(t, c)
		assert.Equal(t, w == DoorOpen, r.Open, "toggle %d: relay-open", i)
		assert.Equal(t, w == DoorClosed, r.Close, "toggle %d: relay-close", i)
	}

	assert.Equal(t,
		[]EventType{EventDoorOpen, EventDoorClosed, EventDoorOpen, EventDoorClosed, EventDoorOpen},
		eventTypes(drain(c)))
	assert.Equal(t, 5, c.Snapshot().Counts.Toggles)
}

func TestToggleBreaksBeforeMake(t *testing.T) {
	c, io, _ := newBooted(t)
	io.ResetWrites()

	io.Raise(gpio.InputPort, gpio.DoorButton)
	require.Equal(t, DoorOpen, c.Snapshot().Door)

	// Active-low: deactivate = Set, activate = Clear.
	require.Len(t, io.Writes, 2)
	assert.Equal(t, gpio.Write{Port: gpio.RelayPort, Mask: gpio.RelayClose, High: true}, io.Writes[0])
	assert.Equal(t, gpio.Write{Port: gpio.RelayPort, Mask: gpio.RelayOpen, High: false}, io.Writes[1])
}

func TestToggleIgnoredUnlessStable(t *testing.T) {
	for _, st := range []DoorState{DoorMovingOpen, DoorMovingClosed, DoorStopped} {
		t.Run(string(st), func(t *testing.T) {
			c, io, _ := newBooted(t)
			c.door.state = st
			io.ResetWrites()

			io.Raise(gpio.InputPort, gpio.DoorButton)

			assert.Equal(t, st, c.Snapshot().Door)
			assert.Empty(t, io.Writes, "ignored toggle must not touch the relays")
			events := drain(c)
			require.Len(t, events, 1)
			assert.Equal(t, EventToggleIgnored, events[0].Type)
			assert.Equal(t, SourceDoorButton, events[0].Source)
			assert.Equal(t, 1, c.Snapshot().Counts.IgnoredToggles)
			assert.Zero(t, c.Snapshot().Counts.Toggles)
		})
	}
}

func TestStopFromAnyState(t *testing.T) {
	states := []DoorState{DoorOpen, DoorClosed, DoorMovingOpen, DoorMovingClosed, DoorStopped}
	for _, pin := range []uint32{gpio.Endstop1, gpio.Endstop2} {
		for _, st := range states {
			t.Run(string(st), func(t *testing.T) {
				c, io, _ := newBooted(t)
				c.door.state = st
				// Leave a relay active to prove stop clears it.
				io.Clear(gpio.RelayPort, gpio.RelayOpen)

				io.Raise(gpio.InputPort, pin)

				snap := c.Snapshot()
				assert.Equal(t, DoorStopped, snap.Door)
				assert.Equal(t, Relays{}, snap.Relays)
				assert.Equal(t, 1, snap.Counts.Stops)
			})
		}
	}
}

func TestStopIdempotent(t *testing.T) {
	c, io, _ := newBooted(t)
	io.Raise(gpio.InputPort, gpio.DoorButton)

	for i := 0; i < 3; i++ {
		io.Raise(gpio.InputPort, gpio.Endstop1)
		assert.Equal(t, DoorStopped, c.Snapshot().Door)
		assert.Equal(t, Relays{}, c.Snapshot().Relays)
	}
	assert.Equal(t, 3, c.Snapshot().Counts.Stops)
}

func TestStopWinsOverToggleInProgress(t *testing.T) {
	c, io, _ := newBooted(t)

	var wg sync.WaitGroup
	var once sync.Once
	io.OnWrite = func(w gpio.Write) {
		once.Do(func() {
			// An end-stop edge arrives while the toggle is driving the relays.
			wg.Add(1)
			go func() {
				defer wg.Done()
				io.Raise(gpio.InputPort, gpio.Endstop1)
			}()
		})
	}

	io.Raise(gpio.InputPort, gpio.DoorButton)
	wg.Wait()

	snap := c.Snapshot()
	assert.Equal(t, DoorStopped, snap.Door)
	assert.Equal(t, Relays{}, snap.Relays)
	assert.Equal(t, []EventType{EventDoorOpen, EventDoorStopped}, eventTypes(drain(c)))
}

func TestToggleWriteErrorStopsDoor(t *testing.T) {
	c, io, _ := newBooted(t)
	io.WriteError = assert.AnError

	io.Raise(gpio.InputPort, gpio.DoorButton)

	snap := c.Snapshot()
	assert.Equal(t, DoorStopped, snap.Door)
	assert.Equal(t, 2, snap.Counts.GPIOErrors, "toggle and fail-safe stop both fail")
	types := eventTypes(drain(c))
	assert.Equal(t, []EventType{EventGPIOError, EventGPIOError, EventDoorStopped}, types)
}

func TestEventsCarryStateAndTime(t *testing.T) {
	c, io, _ := newBooted(t)
	io.Raise(gpio.InputPort, gpio.BatteryMid)

	events := drain(c)
	require.Len(t, events, 1)
	e := events[0]
	assert.Equal(t, EventBatteryLevel, e.Type)
	assert.Equal(t, BatteryMid, e.Battery)
	assert.Equal(t, DoorClosed, e.Door)
	assert.Equal(t, SourceBatteryMid, e.Source)
	assert.True(t, e.Timestamp.Equal(bootTime))
}

func TestEventsDroppedWhenQueueFull(t *testing.T) {
	c, io, _ := newBootedWith(t, Config{RelayActiveLow: true, EventBuffer: 1})

	io.Raise(gpio.InputPort, gpio.DoorButton)
	io.Raise(gpio.InputPort, gpio.DoorButton)
	io.Raise(gpio.InputPort, gpio.DoorButton)

	assert.Len(t, drain(c), 1)
	assert.Equal(t, 2, c.Snapshot().Counts.Dropped)
	assert.Equal(t, DoorOpen, c.Snapshot().Door, "dropped notifications must not affect control")
}

func TestShutdown(t *testing.T) {
	c, io, ticks := newBooted(t)
	io.Raise(gpio.InputPort, gpio.DoorButton)
	io.Raise(gpio.InputPort, gpio.BatteryLow)
	ticks.Advance(4)
	require.True(t, c.Snapshot().LED)
	drain(c)

	require.NoError(t, c.Shutdown())

	assert.True(t, ticks.Stopped)
	snap := c.Snapshot()
	assert.Equal(t, DoorStopped, snap.Door)
	assert.Equal(t, Relays{}, snap.Relays)
	assert.False(t, snap.LED)

	io.Raise(gpio.InputPort, gpio.BatteryMid)
	assert.Equal(t, BatteryLow, c.Snapshot().Battery, "handler must be unregistered")
	assert.Empty(t, drain(c))
}

// Scenario: boot, door button, end-stop, battery low, four ticks.
func TestScenarioBootToLowBattery(t *testing.T) {
	c, io, ticks := newBooted(t)

	snap := c.Snapshot()
	require.Equal(t, DoorClosed, snap.Door)
	require.Equal(t, BatteryMax, snap.Battery)
	require.False(t, snap.LED)

	io.Raise(gpio.InputPort, gpio.DoorButton)
	snap = c.Snapshot()
	assert.Equal(t, DoorOpen, snap.Door)
	assert.Equal(t, Relays{Open: true, Close: false}, snap.Relays)

	io.Raise(gpio.InputPort, gpio.Endstop1)
	snap = c.Snapshot()
	assert.Equal(t, DoorStopped, snap.Door)
	assert.Equal(t, Relays{}, snap.Relays)

	io.Raise(gpio.InputPort, gpio.BatteryLow)
	snap = c.Snapshot()
	assert.Equal(t, BatteryLow, snap.Battery)
	assert.Zero(t, snap.BlinkPhase)

	flips := 0
	prev := snap.LED
	for i := 0; i < 4; i++ {
		ticks.Advance(1)
		led := c.Snapshot().LED
		if led != prev {
			flips++
		}
		prev = led
	}
	assert.Equal(t, 1, flips)

	assert.Equal(t,
		[]EventType{EventDoorOpen, EventDoorStopped, EventBatteryLevel},
		eventTypes(drain(c)))
}
