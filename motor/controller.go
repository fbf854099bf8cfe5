package motor

import (
	"math"

	"bldc/anticogging"
	"bldc/planner"
)

// Controller is the position/velocity cascade producing a q-axis current.
// It runs on the axis thread; setpoint commands arrive through Axis.Post.
type Controller struct {
	Config *ControllerConfig
	Trap   *TrapConfig

	Mode            ControlMode
	PosSetpoint     float32 // [counts]
	VelSetpoint     float32 // [counts/s]
	CurrentSetpoint float32 // [A]

	VelIntegratorCurrent float32 // [A]
	VelRampTarget        float32 // [counts/s]
	VelRampEnable        bool

	Traj      planner.Trapezoid
	TrajDone  bool
	trajStart uint32

	Anticogging *anticogging.Map

	// Limited is set when the last output was clipped.
	Limited bool

	cycles uint32
	cpr    int32
	period float32
}

// NewController creates a cascade in current mode with zero setpoints.
func NewController(cfg *ControllerConfig, trap *TrapConfig, ac *anticogging.Map, cpr int32, period float32) *Controller {
	mode := cfg.ControlMode
	if !mode.Valid() {
		mode = ModeCurrent
	}
	return &Controller{
		Config:      cfg,
		Trap:        trap,
		Mode:        mode,
		Anticogging: ac,
		TrajDone:    true,
		cpr:         cpr,
		period:      period,
	}
}

// Cycles returns the number of completed updates.
func (c *Controller) Cycles() uint32 {
	return c.cycles
}

// SetPosSetpoint switches to position control.
func (c *Controller) SetPosSetpoint(pos, velFF, currentFF float32) {
	c.PosSetpoint = pos
	c.VelSetpoint = velFF
	c.CurrentSetpoint = currentFF
	c.Mode = ModePosition
}

// SetVelSetpoint switches to velocity control.
func (c *Controller) SetVelSetpoint(vel, currentFF float32) {
	c.VelSetpoint = vel
	c.CurrentSetpoint = currentFF
	c.Mode = ModeVelocity
}

// SetCurrentSetpoint switches to current control.
func (c *Controller) SetCurrentSetpoint(current float32) {
	c.CurrentSetpoint = current
	c.Mode = ModeCurrent
}

// SetVelRamp switches to velocity control and ramps toward target at the
// configured rate.
func (c *Controller) SetVelRamp(target float32) {
	c.VelRampTarget = target
	c.VelRampEnable = true
	c.Mode = ModeVelocity
}

// MoveTo plans a trapezoidal move from the current setpoints to goal.
func (c *Controller) MoveTo(goal float32) {
	c.Traj.Plan(goal, c.PosSetpoint, c.VelSetpoint,
		c.Trap.VelLimit, c.Trap.AccelLimit, c.Trap.DecelLimit)
	c.trajStart = c.cycles
	c.TrajDone = false
	c.Mode = ModeTrajectory
}

// StartAnticoggingCalibration begins the cogging sweep. The caller checks
// that the axis is fault free.
func (c *Controller) StartAnticoggingCalibration() bool {
	if c.Anticogging == nil {
		return false
	}
	c.Anticogging.StartCalibration()
	return true
}

// Update runs one cascade cycle and returns the q-axis current command.
// posEst and velEst come from the PLL, posCPR is posEst wrapped to one
// revolution, ilim is the current the motor may draw.
func (c *Controller) Update(posEst, velEst, posCPR, ilim float32) (float32, Error) {
	c.cycles++

	// Anti-cogging calibration sweep holds the rotor at each count in turn
	if c.Anticogging != nil && c.Anticogging.Calibrating {
		sp, _ := c.Anticogging.CalibrationStep(posEst, velEst, c.VelIntegratorCurrent)
		c.SetPosSetpoint(sp, 0, 0)
	}

	acPos := posEst

	// Trajectory control
	if c.Mode == ModeTrajectory {
		t := float32(c.cycles-1-c.trajStart) * c.period
		if t > c.Traj.Tf {
			// Drop into position control at the goal
			c.Mode = ModePosition
			c.PosSetpoint = c.Traj.Xf
			c.VelSetpoint = 0
			c.CurrentSetpoint = 0
			c.TrajDone = true
		} else {
			step := c.Traj.Eval(t)
			c.PosSetpoint = step.Y
			c.VelSetpoint = step.Yd
			c.CurrentSetpoint = step.Ydd * c.Trap.APerCSS
		}
		// Compensate cogging where the trajectory is, including on the
		// cycle it hands over to position control
		acPos = c.PosSetpoint
	}

	// Ramp rate limited velocity setpoint
	if c.Mode == ModeVelocity && c.VelRampEnable {
		maxStep := float32(c.period * c.Config.VelRampRate)
		fullStep := c.VelRampTarget - c.VelSetpoint
		step := fullStep
		if abs32(fullStep) > maxStep {
			step = copysign32(maxStep, fullStep)
		}
		c.VelSetpoint += step
	}

	// Position control
	velDes := c.VelSetpoint
	if c.Mode.Includes(ModePosition) {
		var posErr float32
		if c.Config.SetpointsInCPR {
			cpr := float32(c.cpr)
			c.PosSetpoint = fmodPos(c.PosSetpoint, cpr)
			posErr = wrapPM(c.PosSetpoint-posCPR, 0.5*cpr)
		} else {
			posErr = c.PosSetpoint - posEst
		}
		velDes += c.Config.PosGain * posErr
	}

	// Velocity limiting
	velLim := c.Config.VelLimit
	if velDes > velLim {
		velDes = velLim
	}
	if velDes < -velLim {
		velDes = -velLim
	}

	// Check for overspeed fault
	if c.Config.VelLimitTolerance > 0 && abs32(velEst) > c.Config.VelLimitTolerance*velLim {
		return 0, ErrOverspeed
	}

	// Velocity control
	iq := c.CurrentSetpoint

	if c.Anticogging != nil && c.Anticogging.Use {
		iq += c.Anticogging.Lookup(acPos)
	}

	vErr := velDes - velEst
	if c.Mode.Includes(ModeVelocity) {
		iq += c.Config.VelGain * vErr
	}

	// Velocity integral action before limiting
	iq += c.VelIntegratorCurrent

	// Current limiting
	c.Limited = false
	if iq > ilim {
		c.Limited = true
		iq = ilim
	}
	if iq < -ilim {
		c.Limited = true
		iq = -ilim
	}

	// Velocity integrator (behaviour dependent on limiting)
	if !c.Mode.Includes(ModeVelocity) {
		// Reset integral if not in use
		c.VelIntegratorCurrent = 0
	} else if c.Limited {
		// Decay integral if limiting
		c.VelIntegratorCurrent *= integratorDecay
	} else {
		c.VelIntegratorCurrent += float32(c.Config.VelIntegratorGain*c.period) * vErr
	}

	return iq, ErrNone
}

func copysign32(mag, sign float32) float32 {
	return float32(math.Copysign(float64(mag), float64(sign)))
}

func abs32(x float32) float32 {
	if x < 0 {
		return -x
	}
	return x
}

// StartAnticoggingCalibration begins the cogging sweep on a fault-free
// axis. Must run on the axis thread, see Post.
func (a *Axis) StartAnticoggingCalibration() bool {
	if a.Errors() != ErrNone {
		return false
	}
	return a.Ctrl.StartAnticoggingCalibration()
}
