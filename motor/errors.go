package motor

// Error is a set of axis fault flags. Flags are OR-combined; an axis keeps
// every flag raised since its errors were last cleared.
type Error uint32

const ErrNone Error = 0

const (
	ErrPhaseResistanceMeasurementTimeout Error = 1 << iota
	ErrPhaseResistanceTiming
	ErrPhaseResistanceOutOfRange
	ErrPhaseInductanceMeasurementTimeout
	ErrPhaseInductanceTiming
	ErrPhaseInductanceOutOfRange
	ErrEncoderMeasurementTimeout
	ErrEncoderDirection
	ErrADCFailed
	ErrPWMSrcFail
	ErrFOCTiming
	ErrFOCMeasurementTimeout
	ErrScanMotorTiming
	ErrFOCVoltageTiming
	ErrGateDriverInvalidGain
	ErrSelftestTiming
	ErrOverspeed
	ErrDCBusUnderVoltage
	ErrDCBusOverVoltage
)

var errorNames = [...]string{
	"PHASE_RESISTANCE_MEASUREMENT_TIMEOUT",
	"PHASE_RESISTANCE_TIMING",
	"PHASE_RESISTANCE_OUT_OF_RANGE",
	"PHASE_INDUCTANCE_MEASUREMENT_TIMEOUT",
	"PHASE_INDUCTANCE_TIMING",
	"PHASE_INDUCTANCE_OUT_OF_RANGE",
	"ENCODER_MEASUREMENT_TIMEOUT",
	"ENCODER_DIRECTION",
	"ADC_FAILED",
	"PWM_SRC_FAIL",
	"FOC_TIMING",
	"FOC_MEASUREMENT_TIMEOUT",
	"SCAN_MOTOR_TIMING",
	"FOC_VOLTAGE_TIMING",
	"GATEDRIVER_INVALID_GAIN",
	"SELFTEST_TIMING",
	"OVERSPEED",
	"DC_BUS_UNDER_VOLTAGE",
	"DC_BUS_OVER_VOLTAGE",
}

// Has reports whether every flag of f is set in e.
func (e Error) Has(f Error) bool {
	return f != 0 && e&f == f
}

// Error implements error.
func (e Error) Error() string {
	return e.String()
}

func (e Error) String() string {
	if e == ErrNone {
		return "NONE"
	}
	s := ""
	for i, name := range errorNames {
		if e&(1<<uint(i)) == 0 {
			continue
		}
		if s != "" {
			s += "|"
		}
		s += name
	}
	if rest := e &^ (1<<uint(len(errorNames)) - 1); rest != 0 {
		if s != "" {
			s += "|"
		}
		s += "0x" + hex32(uint32(rest))
	}
	return s
}

func hex32(v uint32) string {
	const digits = "0123456789abcdef"
	var buf [8]byte
	for i := 7; i >= 0; i-- {
		buf[i] = digits[v&0xF]
		v >>= 4
	}
	return string(buf[:])
}
