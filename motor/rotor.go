package motor

import (
	"math"

	"bldc/core"
)

const twoPi = 2 * math.Pi

// Rotor tracks the encoder and estimates position and velocity with a PLL.
// Positions are in encoder counts, the phase in electrical radians.
type Rotor struct {
	EncoderState int32   // unwrapped encoder position [counts]
	Offset       int32   // encoder count at electrical phase zero
	Phase        float32 // electrical phase, always in [0, 2pi)
	PLLPos       float32 // [counts]
	PLLVel       float32 // [counts/s]
	PLLKp        float32 // [counts/s / count]
	PLLKi        float32 // [counts/s^2 / count]

	cpr           int32
	elecRadPerEnc float32
	period        float32

	axis int
	enc  core.EncoderDriver
}

// NewRotor creates the estimator for an axis' encoder.
func NewRotor(axis int, enc core.EncoderDriver, cfg EncoderConfig, period float32) *Rotor {
	r := &Rotor{
		axis:   axis,
		enc:    enc,
		period: period,
		Offset: cfg.Offset,
	}
	r.configure(cfg.CPR, cfg.PolePairs)
	return r
}

func (r *Rotor) configure(cpr, polePairs int32) {
	r.cpr = cpr
	r.elecRadPerEnc = float32(float64(polePairs) * twoPi / float64(cpr))
}

// CPR returns the encoder counts per revolution.
func (r *Rotor) CPR() int32 {
	return r.cpr
}

// ElecRadPerEnc returns electrical radians per encoder count.
func (r *Rotor) ElecRadPerEnc() float32 {
	return r.elecRadPerEnc
}

// Sync aligns the unwrapped state and the PLL with the current counter.
func (r *Rotor) Sync() {
	cnt := r.enc.Count(r.axis)
	r.EncoderState = int32(int16(cnt))
	r.PLLPos = float32(r.EncoderState)
	r.PLLVel = 0
	r.Phase = r.electricalPhase()
}

// Update reads the counter and runs one estimator cycle.
func (r *Rotor) Update() {
	r.Step(r.enc.Count(r.axis))
}

// Step runs one estimator cycle on a raw 16-bit counter value.
func (r *Rotor) Step(cnt uint16) {
	// Signed 16-bit difference is exact for moves up to +/-32767 counts per cycle
	delta := int16(cnt) - int16(uint16(r.EncoderState))
	r.EncoderState += int32(delta)

	r.Phase = r.electricalPhase()

	// Predict current pos
	r.PLLPos += r.period * r.PLLVel
	// Discrete phase detector
	deltaPos := float32(r.EncoderState - int32(math.Floor(float64(r.PLLPos))))
	// PLL feedback
	r.PLLPos += r.period * r.PLLKp * deltaPos
	r.PLLVel += r.period * r.PLLKi * deltaPos
}

func (r *Rotor) electricalPhase() float32 {
	ph := r.elecRadPerEnc * float32(modInt32(r.EncoderState, r.cpr)-r.Offset)
	return wrapPhase(ph)
}

// PosCPR returns the PLL position wrapped into [0, CPR).
func (r *Rotor) PosCPR() float32 {
	return fmodPos(r.PLLPos, float32(r.cpr))
}

// PLLGains returns the critically damped gain pair for a bandwidth in rad/s.
// The discrete update is only stable for period*kp < 1.
func PLLGains(bandwidth, period float32) (kp, ki float32, err Error) {
	kp = 2.0 * bandwidth
	if !(period*kp < 1.0) {
		return 0, 0, ErrSelftestTiming
	}
	ki = 0.25 * (kp * kp)
	return kp, ki, ErrNone
}

// wrapPhase maps any angle into [0, 2pi).
func wrapPhase(ph float32) float32 {
	w := fmodPos(ph, twoPi)
	if w >= twoPi {
		w = 0
	}
	return w
}

// fmodPos is the floored remainder, in [0, y) for y > 0.
func fmodPos(x, y float32) float32 {
	r := float32(math.Mod(float64(x), float64(y)))
	if r < 0 {
		r += y
	}
	if r >= y {
		r = 0
	}
	return r
}

// wrapPM maps x into [-pmRange, pmRange).
func wrapPM(x, pmRange float32) float32 {
	return fmodPos(x+pmRange, 2*pmRange) - pmRange
}

func modInt32(x, y int32) int32 {
	m := x % y
	if m < 0 {
		m += y
	}
	return m
}
