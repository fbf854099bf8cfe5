package motor

// ScanMotor spins an open-loop voltage vector at omega [electrical rad/s].
// It runs for cycles control periods, or until the axis is disabled when
// cycles is zero.
func (a *Axis) ScanMotor(omega, voltage float32, cycles int) Error {
	var ph float32
	for n := 0; cycles == 0 || n < cycles; n++ {
		if cycles == 0 && !a.enabled.Load() {
			break
		}
		if !a.waitSample() {
			a.SetError(ErrFOCMeasurementTimeout)
			a.queueVoltage(0, 0)
			return ErrFOCMeasurementTimeout
		}
		s, c := sincos(ph)
		a.queueVoltage(voltage*c, voltage*s)

		if e := a.checkDeadline(ErrScanMotorTiming); e != ErrNone {
			a.queueVoltage(0, 0)
			return e
		}

		ph = wrapPhase(ph + omega*a.period)
	}
	a.queueVoltage(0, 0)
	return ErrNone
}

// FOCVoltage holds a rotating-frame voltage aligned to the encoder phase.
// Used to check the encoder offset: positive vq should turn the rotor
// forward without drawing d-axis current.
func (a *Axis) FOCVoltage(vd, vq float32, cycles int) Error {
	for n := 0; cycles == 0 || n < cycles; n++ {
		if cycles == 0 && !a.enabled.Load() {
			break
		}
		if !a.waitSample() {
			a.SetError(ErrFOCMeasurementTimeout)
			a.queueVoltage(0, 0)
			return ErrFOCMeasurementTimeout
		}
		a.Rotor.Update()

		s, c := sincos(a.Rotor.Phase)
		vAlpha := c*vd - s*vq
		vBeta := c*vq + s*vd
		a.queueVoltage(vAlpha, vBeta)

		if e := a.checkDeadline(ErrFOCVoltageTiming); e != ErrNone {
			a.queueVoltage(0, 0)
			return e
		}
	}
	a.queueVoltage(0, 0)
	return ErrNone
}
