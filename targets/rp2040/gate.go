//go:build rp2040

package main

import (
	"machine"

	"bldc/motor"
)

// Amplifier gain strapped on the gate drivers
const shuntGain = 40

var dcCalPins = [motor.NumAxes]machine.Pin{machine.GPIO18, machine.GPIO19}

// GateDriver implements core.GateDriver over the DC-calibration pins.
type GateDriver struct{}

func NewGateDriver() *GateDriver {
	for _, pin := range dcCalPins {
		pin.Configure(machine.PinConfig{Mode: machine.PinOutput})
		pin.Low()
	}
	return &GateDriver{}
}

func (g *GateDriver) ShuntGain(axis int) int {
	return shuntGain
}

func (g *GateDriver) SetDCCal(axis int, on bool) {
	dcCalPins[axis].Set(on)
}
