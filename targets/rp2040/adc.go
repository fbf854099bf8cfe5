//go:build rp2040

package main

import (
	"device/rp"
	"machine"

	"bldc/core"
)

// The RP2040 has one ADC without hardware triggers. Conversions are started
// from the PWM wrap interrupt: each sequencer event maps to the wrap of one
// axis' phase A slice, and both "units" are converted back to back.

// currentInputs maps drive channels to ADC inputs.
var currentInputs = map[core.ADCChannel]machine.Pin{
	10: machine.ADC0, // axis0 phase B
	11: machine.ADC1, // axis0 phase C
	13: machine.ADC2, // axis1 phase B
	12: machine.ADC3, // axis1 phase C
}

type armedConversion struct {
	trig core.ADCTrigger
	adc  machine.ADC
}

// RP2040CurrentADC implements core.ADCDriver with software triggers.
type RP2040CurrentADC struct {
	armed [4]armedConversion
	ready [4]bool

	onConversion func(unit core.ADCUnit, trig core.ADCTrigger, raw uint16)
}

// NewRP2040CurrentADC configures the shunt inputs.
func NewRP2040CurrentADC() *RP2040CurrentADC {
	machine.InitADC()
	for _, pin := range currentInputs {
		adc := machine.ADC{Pin: pin}
		adc.Configure(machine.ADCConfig{})
	}
	return &RP2040CurrentADC{}
}

// SetHandler registers the completion callback, normally the sequencer.
func (d *RP2040CurrentADC) SetHandler(fn func(unit core.ADCUnit, trig core.ADCTrigger, raw uint16)) {
	d.onConversion = fn
}

// Arm implements core.ADCDriver. Called from the completion callback.
func (d *RP2040CurrentADC) Arm(unit core.ADCUnit, trig core.ADCTrigger, ch core.ADCChannel) {
	pin, ok := currentInputs[ch]
	if !ok {
		d.ready[unit] = false
		return
	}
	d.armed[unit] = armedConversion{trig: trig, adc: machine.ADC{Pin: pin}}
	d.ready[unit] = true
}

// fire converts every unit armed for trig. Runs in interrupt context.
func (d *RP2040CurrentADC) fire(trig core.ADCTrigger) {
	var raw [4]uint16
	var hit [4]bool
	for _, unit := range []core.ADCUnit{core.ADCUnitB, core.ADCUnitC} {
		if d.ready[unit] && d.armed[unit].trig == trig {
			// machine.ADC returns 16-bit scaled samples
			raw[unit] = d.armed[unit].adc.Get() >> 4
			hit[unit] = true
			d.ready[unit] = false
		}
	}
	if d.onConversion == nil {
		return
	}
	for _, unit := range []core.ADCUnit{core.ADCUnitB, core.ADCUnitC} {
		if hit[unit] {
			d.onConversion(unit, trig, raw[unit])
		}
	}
}

// vbusADC reads the bus voltage divider.
var vbusADC = machine.ADC{Pin: machine.GPIO29}

func readVbus() uint16 {
	return vbusADC.Get() >> 4
}

// Slices whose wrap starts the current conversions
const (
	axis0Slice = 0
	axis1Slice = 3
)

// pwmWrapHandler dispatches slice wraps to sequencer events. Each control
// period spans three wraps of an axis slice; the first carries the current
// sample and the second the DC offset sample.
type pwmWrapHandler struct {
	adc   *RP2040CurrentADC
	wraps [2]uint8
}

func (h *pwmWrapHandler) handle() {
	status := rp.PWM.INTS.Get()
	rp.PWM.INTR.Set(status)

	if status&(1<<axis0Slice) != 0 {
		h.step(0, core.TrigAxis0Current, core.TrigAxis0DCCal)
	}
	if status&(1<<axis1Slice) != 0 {
		h.step(1, core.TrigAxis1Current, core.TrigAxis1DCCal)
	}
}

func (h *pwmWrapHandler) step(axis int, current, dcCal core.ADCTrigger) {
	switch h.wraps[axis] {
	case 0:
		h.adc.fire(current)
	case 1:
		h.adc.fire(dcCal)
	}
	h.wraps[axis]++
	if h.wraps[axis] > core.PWMRepetitions {
		h.wraps[axis] = 0
	}
}

// enableWrapInterrupts unmasks the wrap interrupt of both trigger slices.
func enableWrapInterrupts() {
	rp.PWM.INTE.SetBits(1<<axis0Slice | 1<<axis1Slice)
}
