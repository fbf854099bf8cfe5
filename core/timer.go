package core

// Timer frequencies of the motor-control timers
const (
	TimerFreq = 168000000 // PWM timer clock

	// PeriodClocks is half of one up/down count of the PWM timers.
	PeriodClocks = 3500

	// PWMRepetitions is the repetition counter: one update every
	// (PWMRepetitions+1) half periods.
	PWMRepetitions = 2

	// ControlHz is the current-measurement and control rate.
	ControlHz = TimerFreq / (2 * PeriodClocks * (PWMRepetitions + 1))

	// BrakePeriodClocks and BrakeDeadtimeClocks configure the chopper timer.
	BrakePeriodClocks   = 4096
	BrakeDeadtimeClocks = 40
)

// ControlPeriod is the control period in seconds.
const ControlPeriod float32 = 1.0 / float32(ControlHz)

var systemTicks uint32

// GetTime returns the current system time in timer ticks
func GetTime() uint32 {
	return getSystemTicks()
}

// SetTime sets the current system time (for testing/hardware integration)
func SetTime(ticks uint32) {
	setSystemTicks(ticks)
}

// TimerFromUS converts microseconds to timer ticks
func TimerFromUS(us uint32) uint32 {
	return uint32(uint64(us) * TimerFreq / 1000000)
}

// ProcessTimers processes scheduled timers
func ProcessTimers() {
	currentTime = GetTime()
	TimerDispatch()
}
