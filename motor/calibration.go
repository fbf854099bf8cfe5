package motor

import (
	"math"

	"bldc/core"
)

// CalibrationStage identifies the running calibration routine.
type CalibrationStage uint8

const (
	StageIdle CalibrationStage = iota
	StageResistance
	StageInductance
	StageEncoderOffset
	StageDone
)

var stageNames = [...]string{"idle", "resistance", "inductance", "encoder_offset", "done"}

func (s CalibrationStage) String() string {
	if int(s) < len(stageNames) {
		return stageNames[s]
	}
	return "unknown"
}

// CalibrationSession is the progress of the self-test, readable while it
// runs.
type CalibrationSession struct {
	Stage   CalibrationStage
	Step    int
	Voltage float32 // last commanded test voltage [V]
	Result  Error
}

// Calibration constants
const (
	resistanceKI       = 10.0 // [(V/s)/A]
	resistanceDuration = 3.0  // [s]
	resistanceMin      = 0.01 // [ohm]
	resistanceMax      = 0.2  // [ohm]

	inductanceCycles = 5000
	inductanceMax    = 23e-3 // [H]

	encoderLockDuration = 1.0       // [s]
	encoderStepDuration = 1.0 / 500 // [s]
	encoderSteps        = 1024
	encoderScanRange    = 4 * math.Pi // [electrical rad]
)

// ResistanceInRange reports whether r is an accepted phase resistance.
func ResistanceInRange(r float32) bool {
	return r >= resistanceMin && r <= resistanceMax
}

// InductanceInRange reports whether l is an accepted phase inductance.
func InductanceInRange(l float32) bool {
	return l > 0 && l <= inductanceMax
}

// failCalibration records a calibration result and leaves the bridge at zero volts.
func (a *Axis) failCalibration(e Error) Error {
	a.SetError(e)
	a.Calib.Result |= e
	a.queueVoltage(0, 0)
	core.RecordTiming(core.EvtCalibration, uint8(a.ID), core.GetTime(), uint32(a.Calib.Stage), uint32(e))
	return e
}

// MeasureResistance drives a constant alpha-axis current with an integral
// voltage controller and derives the phase resistance from the settled
// voltage.
func (a *Axis) MeasureResistance(testCurrent, maxVoltage float32) Error {
	a.Calib = CalibrationSession{Stage: StageResistance}
	a.PhaseResistance = 0
	cycles := int(resistanceDuration/a.period + 0.5)

	var v float32
	for i := 0; i < cycles; i++ {
		a.Calib.Step = i
		if !a.waitSample() {
			return a.failCalibration(ErrPhaseResistanceMeasurementTimeout)
		}
		phB, phC := a.Sample()
		ialpha := -(phB + phC)
		v += float32(resistanceKI*a.period) * (testCurrent - ialpha)
		if v > maxVoltage {
			v = maxVoltage
		}
		if v < -maxVoltage {
			v = -maxVoltage
		}
		a.Calib.Voltage = v

		// Test voltage along phase A
		a.queueVoltage(v, 0)

		// Check we meet deadlines after queueing
		if e := a.checkDeadline(ErrPhaseResistanceTiming); e != ErrNone {
			a.Calib.Result |= e
			a.queueVoltage(0, 0)
			return e
		}
	}

	// De-energize motor
	a.queueVoltage(0, 0)

	r := v / testCurrent
	if !ResistanceInRange(r) {
		return a.failCalibration(ErrPhaseResistanceOutOfRange)
	}
	a.PhaseResistance = r
	return ErrNone
}

// MeasureInductance alternates two test voltages every cycle and derives
// the inductance from the mean current slope.
func (a *Axis) MeasureInductance(vLow, vHigh float32) Error {
	a.Calib = CalibrationSession{Stage: StageInductance}
	a.PhaseInductance = 0
	testVoltages := [2]float32{vLow, vHigh}
	var ialphas [2]float32

	for t := 0; t < inductanceCycles; t++ {
		a.Calib.Step = t
		for i := 0; i < 2; i++ {
			if !a.waitSample() {
				return a.failCalibration(ErrPhaseInductanceMeasurementTimeout)
			}
			phB, phC := a.Sample()
			ialphas[i] += -phB - phC

			a.Calib.Voltage = testVoltages[i]
			a.queueVoltage(testVoltages[i], 0)

			if e := a.checkDeadline(ErrPhaseInductanceTiming); e != ErrNone {
				a.Calib.Result |= e
				a.queueVoltage(0, 0)
				return e
			}
		}
	}

	// De-energize motor
	a.queueVoltage(0, 0)

	vL := 0.5 * (vHigh - vLow)
	// Note: this is the inverse of dI/dt
	dtdi := (a.period * inductanceCycles) / (ialphas[1] - ialphas[0])
	l := vL * dtdi
	if !InductanceInRange(l) {
		return a.failCalibration(ErrPhaseInductanceOutOfRange)
	}
	a.PhaseInductance = l
	return ErrNone
}

// CalibrateEncoderOffset locks the rotor to electrical phase zero, then
// scans one full electrical sweep forward and back, averaging the counter
// to find the encoder count at phase zero.
func (a *Axis) CalibrateEncoderOffset(voltage float32) Error {
	a.Calib = CalibrationSession{Stage: StageEncoderOffset, Voltage: voltage}
	lockCycles := int(encoderLockDuration/a.period + 0.5)
	stepCycles := int(encoderStepDuration/a.period + 0.5)
	const stepSize = encoderScanRange / encoderSteps

	// Go to rotor zero phase for a while to settle
	for i := 0; i < lockCycles; i++ {
		if !a.waitSample() {
			return a.failCalibration(ErrEncoderMeasurementTimeout)
		}
		a.queueVoltage(voltage, 0)
	}

	var sum int32
	scan := func(start, dir float32) bool {
		for k := 0; k < encoderSteps; k++ {
			a.Calib.Step = k
			ph := start + dir*float32(k)*stepSize
			s, c := sincos(ph)
			for i := 0; i < stepCycles; i++ {
				if !a.waitSample() {
					return false
				}
				a.queueVoltage(voltage*c, voltage*s)
			}
			sum += int32(int16(a.drv.Encoder.Count(a.ID)))
		}
		return true
	}

	// Scan forwards
	if !scan(-encoderScanRange/2, 1) {
		return a.failCalibration(ErrEncoderMeasurementTimeout)
	}

	// Check direction
	if !(int16(a.drv.Encoder.Count(a.ID)) > 0) {
		return a.failCalibration(ErrEncoderDirection)
	}

	// Scan backwards
	if !scan(encoderScanRange/2, -1) {
		return a.failCalibration(ErrEncoderMeasurementTimeout)
	}

	a.queueVoltage(0, 0)
	a.Rotor.Offset = sum / (2 * encoderSteps)
	a.Config.Encoder.Offset = a.Rotor.Offset
	return ErrNone
}

// SelfTest measures the motor and encoder and derives the loop gains. On
// success the axis may be armed for closed-loop control.
func (a *Axis) SelfTest() Error {
	a.selftestOK.Store(false)
	a.ClearErrors()
	a.Current.Reset()

	// Results of an earlier run must not outlive a failure of this one
	a.PhaseResistance = 0
	a.PhaseInductance = 0
	a.Rotor.Offset = 0
	a.Config.Motor.PhaseResistance = 0
	a.Config.Motor.PhaseInductance = 0
	a.Config.Encoder.Offset = 0

	current := a.Config.Motor.SelftestCurrent
	if e := a.MeasureResistance(current, 1.0); e != ErrNone {
		return e
	}
	if e := a.MeasureInductance(-1.0, 1.0); e != ErrNone {
		return e
	}
	if e := a.CalibrateEncoderOffset(current * a.PhaseResistance); e != ErrNone {
		return e
	}

	// Calculate current control gains
	a.applyCurrentGains()

	// Encoder PLL gains from the configured bandwidth
	kp, ki, e := PLLGains(a.Config.Encoder.PLLBandwidth, a.period)
	if e != ErrNone {
		a.Calib.Stage = StageDone
		return a.failCalibration(e)
	}
	a.Rotor.PLLKp = kp
	a.Rotor.PLLKi = ki

	a.Config.Motor.PhaseResistance = a.PhaseResistance
	a.Config.Motor.PhaseInductance = a.PhaseInductance
	a.Calib = CalibrationSession{Stage: StageDone}
	core.RecordTiming(core.EvtCalibration, uint8(a.ID), core.GetTime(), uint32(StageDone), 0)
	core.DebugPrintln("[AXIS" + core.FormatInt(a.ID) + "] selftest ok R=" +
		core.FormatFloat(a.PhaseResistance, 4) + " L=" + core.FormatFloat(a.PhaseInductance*1e6, 1) + "uH" +
		" offset=" + core.FormatInt(int(a.Rotor.Offset)))

	a.selftestOK.Store(true)
	return ErrNone
}
