//go:build !linux

package gpio

import "errors"

var errUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// Real is not available on non-Linux platforms.
type Real struct{}

// NewReal returns an error on non-Linux platforms.
func NewReal(chipName string, lineMap LineMap) (*Real, error) {
	return nil, errUnsupported
}

func (r *Real) SetPull(Port, uint32, Pull) error           { return errUnsupported }
func (r *Real) SetDirection(Port, uint32, Direction) error { return errUnsupported }
func (r *Real) Read(Port) (uint32, error)                  { return 0, errUnsupported }
func (r *Real) Set(Port, uint32) error                     { return errUnsupported }
func (r *Real) Clear(Port, uint32) error                   { return errUnsupported }
func (r *Real) EnableInterrupt(Port, uint32, Edge) error   { return errUnsupported }
func (r *Real) InterruptStatus(Port, uint32, Edge) bool    { return false }
func (r *Real) PendingInterrupts(Port, Edge) uint32        { return 0 }
func (r *Real) ClearInterrupt(Port, uint32, Edge)          {}
func (r *Real) OnInterrupt(func())                         {}

// Close is a no-op on non-Linux platforms.
func (r *Real) Close() error {
	return nil
}
