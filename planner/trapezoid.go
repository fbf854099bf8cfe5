// Package planner generates trapezoidal position profiles for the
// trajectory control mode.
package planner

import "math"

// Step is the profile evaluated at one instant.
type Step struct {
	Y   float32 // position [counts]
	Yd  float32 // velocity [counts/s]
	Ydd float32 // acceleration [counts/s^2]
}

// Trapezoid is a planned move from Xi to Xf.
type Trapezoid struct {
	Xi, Xf float32 // start and goal position
	Vi     float32 // initial velocity

	Ar, Vr, Dr float32 // signed accel, cruise velocity and decel
	Ta, Tv, Td float32 // phase durations
	Tf         float32 // total duration

	yAccel float32 // position at the end of the accel phase
}

// Plan computes the profile to goal starting at (start, startVel) under the
// given limits, all in positive units.
func (p *Trapezoid) Plan(goal, start, startVel, velLimit, accelLimit, decelLimit float32) {
	dX := goal - start

	// Distance needed to stop from the initial velocity
	stopDist := (startVel * startVel) / (2.0 * decelLimit)
	dXstop := copysign(stopDist, startVel)

	// Travel direction is set by where we would end up after braking
	s := signHard(dX - dXstop)
	p.Ar = s * accelLimit
	p.Dr = -s * decelLimit
	p.Vr = s * velLimit

	// Already faster than the cruise velocity: decelerate towards it
	if s*startVel > s*p.Vr {
		p.Ar = -s * accelLimit
	}

	// Time to reach cruise speed and to stop from it
	p.Ta = (p.Vr - startVel) / p.Ar
	p.Td = -p.Vr / p.Dr

	// Minimum distance covered with no cruise phase
	dXmin := 0.5*p.Ta*(p.Vr+startVel) + 0.5*p.Td*p.Vr

	if s*dX < s*dXmin {
		// Short move: triangle profile, peak velocity below the limit
		v := (p.Dr*startVel*startVel + 2*p.Ar*p.Dr*dX) / (p.Dr - p.Ar)
		if v < 0 {
			v = 0
		}
		p.Vr = s * sqrt32(v)
		p.Ta = max32(0, (p.Vr-startVel)/p.Ar)
		p.Td = max32(0, -p.Vr/p.Dr)
		p.Tv = 0
	} else {
		p.Tv = (dX - dXmin) / p.Vr
	}

	p.Tf = p.Ta + p.Tv + p.Td
	p.Xi = start
	p.Xf = goal
	p.Vi = startVel
	p.yAccel = start + startVel*p.Ta + 0.5*p.Ar*p.Ta*p.Ta
}

// Eval returns the profile at t seconds after the start of the move.
func (p *Trapezoid) Eval(t float32) Step {
	switch {
	case t < 0:
		return Step{Y: p.Xi, Yd: p.Vi}

	case t < p.Ta:
		// Accelerating
		return Step{
			Y:   p.Xi + p.Vi*t + 0.5*p.Ar*t*t,
			Yd:  p.Vi + p.Ar*t,
			Ydd: p.Ar,
		}

	case t < p.Ta+p.Tv:
		// Cruising
		return Step{
			Y:  p.yAccel + p.Vr*(t-p.Ta),
			Yd: p.Vr,
		}

	case t < p.Tf:
		// Decelerating, measured back from the end
		td := t - p.Tf
		return Step{
			Y:   p.Xf + 0.5*p.Dr*td*td,
			Yd:  p.Dr * td,
			Ydd: p.Dr,
		}

	default:
		return Step{Y: p.Xf}
	}
}

// signHard is -1 for negative numbers (including -0) and 1 otherwise.
func signHard(x float32) float32 {
	if math.Signbit(float64(x)) {
		return -1
	}
	return 1
}

func copysign(mag, sign float32) float32 {
	return float32(math.Copysign(float64(mag), float64(sign)))
}

func sqrt32(x float32) float32 {
	return float32(math.Sqrt(float64(x)))
}

func max32(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}
