package core

// ADCUnit identifies one converter of the current-sense pair.
type ADCUnit uint8

const (
	ADCUnitB ADCUnit = 2 // phase B shunts of both axes
	ADCUnitC ADCUnit = 3 // phase C shunts of both axes
)

// ADCTrigger identifies the PWM event that started a conversion.
type ADCTrigger uint8

// Trigger sources, one per sequencer state.
const (
	TrigNone ADCTrigger = iota
	TrigAxis0Current    // axis0 timer CC4, SVM vector 0
	TrigAxis1DCCal      // axis1 update event, regular conversion
	TrigAxis1Current    // axis1 timer CC4
	TrigAxis0DCCal      // axis0 timer TRGO, SVM vector 7
)

// ADCChannel is the analog input selected for the next conversion.
type ADCChannel uint8

// ADCDriver is the abstract current-sense ADC interface that core code uses.
// Completed conversions are delivered by the platform ISR to the sequencer;
// the sequencer re-arms each unit for the next trigger from inside that ISR.
type ADCDriver interface {
	// Arm selects the trigger source and channel of the unit's next conversion.
	Arm(unit ADCUnit, trig ADCTrigger, ch ADCChannel)
}

// Global singleton used by core code.
var adcDriver ADCDriver

// SetADCDriver is called by target-specific code to register its driver.
func SetADCDriver(d ADCDriver) {
	adcDriver = d
}

// MustADC returns the configured driver or panics if missing.
func MustADC() ADCDriver {
	if adcDriver == nil {
		panic("ADC driver not configured")
	}
	return adcDriver
}
