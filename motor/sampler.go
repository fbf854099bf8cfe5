package motor

import (
	"sync/atomic"

	"bldc/core"
)

// Current-sense ADC geometry
const (
	adcFullScale   = 4096.0
	adcMidpoint    = 2048
	adcVoltageMid  = 3.3 / 2
	adcVoltsPerLSB = 3.3 / adcFullScale
)

// Analog inputs of the phase shunts
const (
	chAxis0PhB core.ADCChannel = 10
	chAxis0PhC core.ADCChannel = 11
	chAxis1PhC core.ADCChannel = 12
	chAxis1PhB core.ADCChannel = 13
)

func validShuntGain(gain int) bool {
	switch gain {
	case 10, 20, 40, 80:
		return true
	}
	return false
}

// Sequencer time-multiplexes the two current-sense ADCs over both axes.
// Each period produces, in order, a current and a DC-offset sample per
// axis; both ADC units convert simultaneously, unit B on phase B and unit
// C on phase C.
//
// OnConversion runs in interrupt context. It never blocks or allocates.
type Sequencer struct {
	axes     [NumAxes]*Axis
	adc      core.ADCDriver
	inverter core.InverterDriver
	gate     core.GateDriver

	calibK float32 // DC offset filter gain, T/tau

	conversions atomic.Uint32
}

// NewSequencer wires the sequencer to both axes.
func NewSequencer(axes [NumAxes]*Axis, adc core.ADCDriver, inverter core.InverterDriver, gate core.GateDriver, cfg BoardConfig) *Sequencer {
	tau := cfg.DCCalTau
	if tau <= 0 {
		tau = 0.2
	}
	return &Sequencer{
		axes:     axes,
		adc:      adc,
		inverter: inverter,
		gate:     gate,
		calibK:   core.ControlPeriod / tau,
	}
}

// Start arms both units for the first current sample of axis 0.
func (s *Sequencer) Start() {
	s.adc.Arm(core.ADCUnitB, core.TrigAxis0Current, chAxis0PhB)
	s.adc.Arm(core.ADCUnitC, core.TrigAxis0Current, chAxis0PhC)
}

// Conversions returns the number of conversions handled.
func (s *Sequencer) Conversions() uint32 {
	return s.conversions.Load()
}

func channelFor(unit core.ADCUnit, axis int) core.ADCChannel {
	if axis == 0 {
		if unit == core.ADCUnitB {
			return chAxis0PhB
		}
		return chAxis0PhC
	}
	if unit == core.ADCUnitB {
		return chAxis1PhB
	}
	return chAxis1PhC
}

// OnConversion handles one completed conversion. trig is the source that
// started it, raw the 12-bit result.
func (s *Sequencer) OnConversion(unit core.ADCUnit, trig core.ADCTrigger, raw uint16) {
	s.conversions.Add(1)

	// Ensure units are expected ones to simplify the logic below
	if unit != core.ADCUnitB && unit != core.ADCUnitC {
		s.fail(ErrADCFailed, uint32(unit), uint32(trig))
		return
	}

	var axis int
	var current bool
	switch trig {
	case core.TrigAxis1DCCal:
		// Axis 1 DC offset, next on this unit is axis 0 current
		axis, current = 1, false
		s.gate.SetDCCal(1, false)
		s.adc.Arm(unit, core.TrigAxis0Current, channelFor(unit, 0))
		// Load next timings for axis 0 (only once is sufficient)
		if unit == core.ADCUnitB {
			s.inverter.LoadTimings(0, s.axes[0].NextTimings())
		}
	case core.TrigAxis0Current:
		// Axis 0 current, next on this unit is axis 1 current
		axis, current = 0, true
		s.gate.SetDCCal(0, true)
		s.adc.Arm(unit, core.TrigAxis1Current, channelFor(unit, 1))
		if unit == core.ADCUnitB {
			s.inverter.LoadTimings(1, s.axes[1].NextTimings())
		}
	case core.TrigAxis1Current:
		// Axis 1 current, next on this unit is axis 0 DC offset
		axis, current = 1, true
		s.gate.SetDCCal(1, true)
		s.adc.Arm(unit, core.TrigAxis0DCCal, channelFor(unit, 0))
	case core.TrigAxis0DCCal:
		// Axis 0 DC offset, next on this unit is axis 1 DC offset
		axis, current = 0, false
		s.gate.SetDCCal(0, false)
		s.adc.Arm(unit, core.TrigAxis1DCCal, channelFor(unit, 1))
	default:
		s.fail(ErrPWMSrcFail, uint32(unit), uint32(trig))
		return
	}

	a := s.axes[axis]
	a.checkTiming()

	i, ok := a.phaseCurrent(raw)
	if !ok {
		return
	}

	phase := 0
	if unit == core.ADCUnitC {
		phase = 1
	}
	if !current {
		dc := a.dcOffset(phase)
		a.setDCOffset(phase, dc+(i-dc)*s.calibK)
		return
	}

	// Both units convert on the same edge and unit B is always delivered
	// first: keep phase B and publish the pair with phase C.
	if unit == core.ADCUnitB {
		a.isrPhB = i - a.dcOffset(0)
		return
	}
	a.publishSample(a.isrPhB, i-a.dcOffset(1))
}

// phaseCurrent converts a raw sample to amps. An amplifier gain outside the
// supported set disables the axis and invalidates its calibration.
func (a *Axis) phaseCurrent(raw uint16) (float32, bool) {
	gain := a.drv.Gate.ShuntGain(a.ID)
	if !validShuntGain(gain) {
		a.SetError(ErrGateDriverInvalidGain)
		a.selftestOK.Store(false)
		a.Disable()
		core.RecordTiming(core.EvtGainFault, uint8(a.ID), core.GetTime(), uint32(gain), 0)
		return 0, false
	}
	adcCounts := int(raw) - adcMidpoint
	ampOut := float32(adcCounts) * adcVoltsPerLSB
	return ampOut / float32(gain) * a.ShuntConductance(), true
}

// fail raises a board-wide sequencing fault: every axis is stopped.
func (s *Sequencer) fail(e Error, unit, trig uint32) {
	for _, a := range s.axes {
		a.SetError(e)
		a.Disable()
	}
	core.RecordTiming(core.EvtSeqFault, 0xFF, core.GetTime(), unit, trig)
	core.TryShutdown("sequencer fault " + e.String())
}
