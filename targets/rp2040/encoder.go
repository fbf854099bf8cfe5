//go:build rp2040

package main

import (
	"machine"

	"tinygo.org/x/drivers/encoders"

	"bldc/motor"
)

// encoderPins are the A/B inputs of each axis' quadrature encoder.
var encoderPins = [motor.NumAxes][2]machine.Pin{
	{machine.GPIO14, machine.GPIO15},
	{machine.GPIO16, machine.GPIO17},
}

// QuadratureEncoders implements core.EncoderDriver with pin-change
// interrupts.
type QuadratureEncoders struct {
	dev [motor.NumAxes]*encoders.QuadratureDevice
}

func NewQuadratureEncoders() *QuadratureEncoders {
	q := &QuadratureEncoders{}
	for axis, pins := range encoderPins {
		q.dev[axis] = encoders.NewQuadratureViaInterrupt(pins[0], pins[1])
		q.dev[axis].Configure(encoders.QuadratureConfig{Precision: 4})
	}
	return q
}

// Count returns the position truncated to the 16-bit counter the
// estimator expects.
func (q *QuadratureEncoders) Count(axis int) uint16 {
	return uint16(q.dev[axis].Position())
}
