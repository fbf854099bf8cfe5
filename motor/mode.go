package motor

// ControlMode selects which cascade stages run. The modes are ordered:
// each one runs every stage of the modes below it plus one more.
//
//	CURRENT     current setpoint (+ anti-cogging, + integrator reset)
//	VELOCITY    + velocity feedback, ramp, integrator
//	POSITION    + position feedback
//	TRAJECTORY  + trapezoidal setpoint generation
type ControlMode uint8

const (
	ModeCurrent ControlMode = iota
	ModeVelocity
	ModePosition
	ModeTrajectory
)

// Includes reports whether mode m runs the stage that defines mode stage.
func (m ControlMode) Includes(stage ControlMode) bool {
	switch stage {
	case ModeCurrent:
		return m.Valid()
	case ModeVelocity:
		switch m {
		case ModeVelocity, ModePosition, ModeTrajectory:
			return true
		}
	case ModePosition:
		switch m {
		case ModePosition, ModeTrajectory:
			return true
		}
	case ModeTrajectory:
		return m == ModeTrajectory
	}
	return false
}

// Valid reports whether m is one of the defined modes.
func (m ControlMode) Valid() bool {
	switch m {
	case ModeCurrent, ModeVelocity, ModePosition, ModeTrajectory:
		return true
	}
	return false
}

func (m ControlMode) String() string {
	switch m {
	case ModeCurrent:
		return "CURRENT"
	case ModeVelocity:
		return "VELOCITY"
	case ModePosition:
		return "POSITION"
	case ModeTrajectory:
		return "TRAJECTORY"
	}
	return "INVALID"
}
