//go:build rp2040

package main

import (
	"machine"

	"bldc/core"
	"bldc/motor"
)

// pwmPeripheral is an interface for PWM hardware peripherals
// This abstracts over TinyGo's unexported *pwmGroup type
type pwmPeripheral interface {
	Configure(config machine.PWMConfig) error
	Channel(pin machine.Pin) (uint8, error)
	Top() uint32
	Set(channel uint8, value uint32)
	Counter() uint32
}

// PWM period matching the drive's 24 kHz switching frequency
const pwmPeriodNS = 2 * core.PeriodClocks * 1000000000 / core.TimerFreq

// phasePins are the high-side gate inputs of phases A, B and C per axis.
// The gate driver generates the low side and dead time.
var phasePins = [motor.NumAxes][3]machine.Pin{
	{machine.GPIO0, machine.GPIO2, machine.GPIO4},
	{machine.GPIO6, machine.GPIO8, machine.GPIO10},
}

// enablePins drive the gate driver enable of each axis.
var enablePins = [motor.NumAxes]machine.Pin{machine.GPIO12, machine.GPIO13}

type phaseOutput struct {
	pwm     pwmPeripheral
	channel uint8
}

// RP2040Inverter implements core.InverterDriver on three PWM slices per axis.
// Slices of one axis are started together so their counters stay aligned.
type RP2040Inverter struct {
	phases [motor.NumAxes][3]phaseOutput
}

// NewRP2040Inverter configures every phase slice at the switching period.
func NewRP2040Inverter() (*RP2040Inverter, error) {
	inv := &RP2040Inverter{}
	for axis := range phasePins {
		for ph, pin := range phasePins[axis] {
			pwm := getPWMPeripheral(uint8((uint32(pin) >> 1) & 0x7))
			if err := pwm.Configure(machine.PWMConfig{Period: pwmPeriodNS}); err != nil {
				return nil, err
			}
			ch, err := pwm.Channel(pin)
			if err != nil {
				return nil, err
			}
			inv.phases[axis][ph] = phaseOutput{pwm: pwm, channel: ch}
		}
		enablePins[axis].Configure(machine.PinConfig{Mode: machine.PinOutput})
		enablePins[axis].Low()
	}
	inv.LoadTimings(0, core.Timings{core.PeriodClocks / 2, core.PeriodClocks / 2, core.PeriodClocks / 2})
	inv.LoadTimings(1, core.Timings{core.PeriodClocks / 2, core.PeriodClocks / 2, core.PeriodClocks / 2})
	return inv, nil
}

// LoadTimings scales compare values from drive clocks to the slice's top.
// The hardware latches them at the next wrap.
func (inv *RP2040Inverter) LoadTimings(axis int, t core.Timings) {
	for ph, out := range inv.phases[axis] {
		top := out.pwm.Top()
		// Inverted compare: the high side conducts above the compare value
		out.pwm.Set(out.channel, top-uint32(t[ph])*top/core.PeriodClocks)
	}
}

// Counter reports the phase A slice counter in drive clocks. The slices
// count up only.
func (inv *RP2040Inverter) Counter(axis int) (uint16, bool) {
	out := inv.phases[axis][0]
	top := out.pwm.Top()
	if top == 0 {
		return 0, false
	}
	return uint16(out.pwm.Counter() * core.PeriodClocks / top), false
}

// SetOutputs switches the gate driver enable.
func (inv *RP2040Inverter) SetOutputs(axis int, enabled bool) {
	enablePins[axis].Set(enabled)
}

// getPWMPeripheral returns the PWM peripheral for a given slice number
func getPWMPeripheral(sliceNum uint8) pwmPeripheral {
	switch sliceNum {
	case 0:
		return machine.PWM0
	case 1:
		return machine.PWM1
	case 2:
		return machine.PWM2
	case 3:
		return machine.PWM3
	case 4:
		return machine.PWM4
	case 5:
		return machine.PWM5
	case 6:
		return machine.PWM6
	default:
		return machine.PWM7
	}
}
