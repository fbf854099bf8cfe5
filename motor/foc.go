package motor

import (
	"math"

	"bldc/core"
)

// Integrator decay applied while the output saturates
const integratorDecay = 0.99

// CurrentControl is the d/q current loop state of one axis.
type CurrentControl struct {
	PGain     float32 // [V/A]
	IGain     float32 // [V/As]
	IntegralD float32 // [V]
	IntegralQ float32 // [V]
	Ibus      float32 // estimated DC bus current contribution [A]

	// Last measured rotating-frame currents
	Id float32
	Iq float32

	MaxModulation     float32 // fraction of the linear SVM limit
	MaxAllowedCurrent float32 // measurable by the shunt amplifiers [A]
}

// Reset clears the integrators.
func (c *CurrentControl) Reset() {
	c.IntegralD = 0
	c.IntegralQ = 0
	c.Ibus = 0
}

// FOCCurrent runs one current-control cycle on the latest sample and queues
// the next PWM timings. It fails with ErrFOCTiming if the timings were
// committed too late for the next period.
func (a *Axis) FOCCurrent(idDes, iqDes float32) Error {
	ictrl := &a.Current
	phB, phC := a.Sample()

	// Clarke transform
	ialpha := -phB - phC
	ibeta := oneBySqrt3 * (phB - phC)

	// Park transform
	s, c := sincos(a.Rotor.Phase)
	id := c*ialpha + s*ibeta
	iq := c*ibeta - s*ialpha
	ictrl.Id = id
	ictrl.Iq = iq

	// Current error
	errD := idDes - id
	errQ := iqDes - iq

	// Apply PI control
	vd := ictrl.IntegralD + errD*ictrl.PGain
	vq := ictrl.IntegralQ + errQ*ictrl.PGain

	vfactor := 1.0 / ((2.0 / 3.0) * a.bus.Voltage())
	modD := vfactor * vd
	modQ := vfactor * vq

	// Vector modulation saturation, lock integrator if saturated
	scale := ictrl.MaxModulation * sqrt3By2 / float32(math.Sqrt(float64(modD*modD+modQ*modQ)))
	if scale < 1.0 {
		modD *= scale
		modQ *= scale
		ictrl.IntegralD *= integratorDecay
		ictrl.IntegralQ *= integratorDecay
	} else {
		ictrl.IntegralD += errD * float32(ictrl.IGain*a.period)
		ictrl.IntegralQ += errQ * float32(ictrl.IGain*a.period)
	}

	// Estimated bus current, aggregated across axes for the brake
	ictrl.Ibus = modD*id + modQ*iq
	a.bus.Report(a.ID, ictrl.Ibus)

	// Inverse park transform
	modAlpha := c*modD - s*modQ
	modBeta := c*modQ + s*modD

	a.queueModulation(modAlpha, modBeta)

	// Check we meet deadlines after queueing
	return a.checkDeadline(ErrFOCTiming)
}

// queueModulation converts a modulation vector to timings and publishes
// them for the sequencer to load.
func (a *Axis) queueModulation(alpha, beta float32) {
	tA, tB, tC := SVM(alpha, beta)
	a.nextTimings.Store(packTimings(core.Timings{
		toClocks(tA), toClocks(tB), toClocks(tC),
	}))
}

// queueVoltage queues a stationary-frame voltage vector.
func (a *Axis) queueVoltage(vAlpha, vBeta float32) {
	vfactor := 1.0 / ((2.0 / 3.0) * a.bus.Voltage())
	a.queueModulation(vfactor*vAlpha, vfactor*vBeta)
}

// NextTimings returns the timings queued for the next period.
func (a *Axis) NextTimings() core.Timings {
	return unpackTimings(a.nextTimings.Load())
}

func toClocks(t float32) uint16 {
	if !(t > 0) {
		return 0
	}
	if t > 1 {
		t = 1
	}
	return uint16(t * core.PeriodClocks)
}

func packTimings(t core.Timings) uint64 {
	return uint64(t[0]) | uint64(t[1])<<16 | uint64(t[2])<<32
}

func unpackTimings(v uint64) core.Timings {
	return core.Timings{uint16(v), uint16(v >> 16), uint16(v >> 32)}
}

func sincos(ph float32) (s, c float32) {
	s64, c64 := math.Sincos(float64(ph))
	return float32(s64), float32(c64)
}
