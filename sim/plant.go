package sim

import "math"

// MotorParams describe one simulated motor and its encoder.
type MotorParams struct {
	R            float64 // phase resistance [ohm]
	L            float64 // phase inductance [H]
	FluxLinkage  float64 // [Wb]
	PolePairs    int
	Inertia      float64 // [kg m^2]
	Friction     float64 // viscous [N m s/rad]
	CPR          int
	MagnetOffset float64 // electrical angle at encoder zero [rad]

	// Cogging torque amplitude [N m] and cycles per mechanical revolution.
	CoggingTorque float64
	CoggingCycles int

	// Amplifier offsets of phase B and C, in ADC counts.
	BiasB, BiasC int
}

// DefaultMotorParams returns a small hobby outrunner.
func DefaultMotorParams() MotorParams {
	return MotorParams{
		R:            0.08,
		L:            30e-6,
		FluxLinkage:  0.004,
		PolePairs:    7,
		Inertia:      2e-4,
		Friction:     1e-4,
		CPR:          8192,
		MagnetOffset: 1.0,
		BiasB:        12,
		BiasC:        -7,
	}
}

// PlantState is a snapshot of a motor's physical state.
type PlantState struct {
	Theta  float64 // mechanical angle [rad]
	Omega  float64 // mechanical speed [rad/s]
	IAlpha float64 // [A]
	IBeta  float64 // [A]
}

// Velocity returns the speed in encoder counts per second.
func (s PlantState) Velocity(cpr int) float64 {
	return s.Omega * float64(cpr) / (2 * math.Pi)
}

type plant struct {
	p MotorParams
	PlantState
}

// Number of mechanical substeps per electrical step
const mechSubsteps = 4

// electricalAngle is the rotor flux angle the drive has to find.
func (m *plant) electricalAngle() float64 {
	return float64(m.p.PolePairs)*m.Theta - m.p.MagnetOffset
}

// step advances the plant by dt with a constant stationary-frame voltage.
// energized false models an open bridge: the current collapses.
func (m *plant) step(vAlpha, vBeta, dt float64, energized bool) {
	p := m.p
	th := m.electricalAngle()
	s, c := math.Sincos(th)

	if energized {
		// Exact RL response with the back-EMF held over the step
		we := m.Omega * float64(p.PolePairs)
		eAlpha := -we * p.FluxLinkage * s
		eBeta := we * p.FluxLinkage * c
		decay := math.Exp(-dt * p.R / p.L)
		m.IAlpha = m.IAlpha*decay + (vAlpha-eAlpha)/p.R*(1-decay)
		m.IBeta = m.IBeta*decay + (vBeta-eBeta)/p.R*(1-decay)
	} else {
		m.IAlpha, m.IBeta = 0, 0
	}

	iq := c*m.IBeta - s*m.IAlpha
	torque := 1.5 * float64(p.PolePairs) * p.FluxLinkage * iq

	h := dt / mechSubsteps
	for k := 0; k < mechSubsteps; k++ {
		load := p.Friction * m.Omega
		if p.CoggingTorque != 0 {
			load += p.CoggingTorque * math.Sin(float64(p.CoggingCycles)*m.Theta)
		}
		m.Omega += (torque - load) / p.Inertia * h
		m.Theta += m.Omega * h
	}
}

// count is the 16-bit quadrature counter.
func (m *plant) count() uint16 {
	c := math.Floor(m.Theta / (2 * math.Pi) * float64(m.p.CPR))
	return uint16(int64(c))
}

// phaseCurrents returns the phase B and C currents.
func (m *plant) phaseCurrents() (b, c float64) {
	const sqrt3By2 = 0.8660254037844386
	b = -0.5*m.IAlpha + sqrt3By2*m.IBeta
	c = -0.5*m.IAlpha - sqrt3By2*m.IBeta
	return b, c
}
