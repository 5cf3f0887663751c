package logic

import (
	"fmt"

	"github.com/sweeney/door-controller/internal/gpio"
)

// Indicator owns the battery level and the blink phase, and drives the
// status LED once per tick.
type Indicator struct {
	io    gpio.Device
	level BatteryLevel
	phase uint8
}

func newIndicator(io gpio.Device) *Indicator {
	return &Indicator{io: io, level: BatteryMax}
}

// Level returns the current battery level.
func (b *Indicator) Level() BatteryLevel {
	return b.level
}

// Phase returns the ticks counted since the last flip or level change.
func (b *Indicator) Phase() uint8 {
	return b.phase
}

// SetLevel overwrites the level and restarts the blink phase.
func (b *Indicator) SetLevel(l BatteryLevel) {
	b.level = l
	b.phase = 0
}

// OnTick advances the blink phase. At MAX the LED is forced off; at MID and
// LOW it flips once the phase reaches the level's threshold.
func (b *Indicator) OnTick() (flipped bool, err error) {
	b.phase++
	threshold := b.level.BlinkThreshold()
	if threshold == 0 {
		b.phase = 0
		return false, b.io.Clear(gpio.LEDPort, gpio.StatusLED)
	}
	if b.phase < threshold {
		return false, nil
	}
	b.phase = 0
	return true, b.flip()
}

// flip reads the LED pin and writes its complement.
func (b *Indicator) flip() error {
	v, err := b.io.Read(gpio.LEDPort)
	if err != nil {
		return fmt.Errorf("read led: %w", err)
	}
	if v&gpio.StatusLED != 0 {
		return b.io.Clear(gpio.LEDPort, gpio.StatusLED)
	}
	return b.io.Set(gpio.LEDPort, gpio.StatusLED)
}

// LED reads the LED pin.
func (b *Indicator) LED() (bool, error) {
	v, err := b.io.Read(gpio.LEDPort)
	if err != nil {
		return false, fmt.Errorf("read led: %w", err)
	}
	return v&gpio.StatusLED != 0, nil
}
