//go:build doordebug

package logic

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sweeney/door-controller/internal/gpio"
)

func TestRelayConflictPanics(t *testing.T) {
	_, io, _ := newBooted(t)
	io.Stick(gpio.RelayPort, gpio.RelayClose, false)

	assert.Panics(t, func() {
		io.Raise(gpio.InputPort, gpio.DoorButton)
	})
}
