package core

// Timings are the three phase compare values of one axis, in timer clocks.
type Timings [3]uint16

// InverterDriver is the abstract three-phase PWM interface that core code uses.
// Platform-specific implementations handle actual hardware control.
type InverterDriver interface {
	// LoadTimings writes the compare registers of an axis. The values take
	// effect at the timer's next update event (preload).
	LoadTimings(axis int, t Timings)

	// Counter returns the axis timer's count and whether it is counting down.
	Counter(axis int) (cnt uint16, down bool)

	// SetOutputs enables or disables the gate outputs (main output enable).
	SetOutputs(axis int, enabled bool)
}

// BrakeDriver drives the brake-resistor chopper.
type BrakeDriver interface {
	// SetBrake writes the low-side off and high-side on compare values.
	SetBrake(lowOff, highOn uint16)
}

// GateDriver is the local view of the gate-driver registers.
type GateDriver interface {
	// ShuntGain returns the configured current-sense amplifier gain in V/V.
	ShuntGain(axis int) int

	// SetDCCal shorts (true) or releases (false) the amplifier inputs.
	SetDCCal(axis int, on bool)
}

// Global singletons used by core code.
var (
	inverterDriver InverterDriver
	brakeDriver    BrakeDriver
	gateDriver     GateDriver
)

// SetInverterDriver is called by target-specific code to register its driver.
func SetInverterDriver(d InverterDriver) {
	inverterDriver = d
}

// MustInverter returns the configured driver or panics if missing.
func MustInverter() InverterDriver {
	if inverterDriver == nil {
		panic("inverter driver not configured")
	}
	return inverterDriver
}

// SetBrakeDriver registers the brake chopper driver.
func SetBrakeDriver(d BrakeDriver) {
	brakeDriver = d
}

// MustBrake returns the configured driver or panics if missing.
func MustBrake() BrakeDriver {
	if brakeDriver == nil {
		panic("brake driver not configured")
	}
	return brakeDriver
}

// SetGateDriver registers the gate driver view.
func SetGateDriver(d GateDriver) {
	gateDriver = d
}

// MustGate returns the configured driver or panics if missing.
func MustGate() GateDriver {
	if gateDriver == nil {
		panic("gate driver not configured")
	}
	return gateDriver
}
