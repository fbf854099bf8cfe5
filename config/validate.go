package config

import (
	"fmt"

	"go.uber.org/multierr"

	"bldc/anticogging"
	"bldc/core"
	"bldc/motor"
)

// Validate checks cfg and reports every problem found.
func Validate(cfg motor.BoardConfig) error {
	var err error
	check := func(ok bool, format string, args ...interface{}) {
		if !ok {
			err = multierr.Append(err, fmt.Errorf(format, args...))
		}
	}

	check(cfg.BrakeResistance > 0, "brake_resistance must be positive, got %v", cfg.BrakeResistance)
	check(cfg.UnderVoltageTrip < cfg.OverVoltageTrip,
		"undervoltage trip %v must be below overvoltage trip %v", cfg.UnderVoltageTrip, cfg.OverVoltageTrip)
	check(cfg.DCCalTau > 0, "dc_cal_tau must be positive, got %v", cfg.DCCalTau)
	check(cfg.SampleTimeoutMS > 0, "sample_timeout_ms must be positive, got %v", cfg.SampleTimeoutMS)
	check(len(cfg.Axes) == motor.NumAxes, "expected %d axes, got %d", motor.NumAxes, len(cfg.Axes))

	for i, ax := range cfg.Axes {
		err = multierr.Append(err, validateAxis(i, ax))
	}
	return err
}

func validateAxis(i int, ax motor.AxisConfig) error {
	var err error
	check := func(ok bool, format string, args ...interface{}) {
		if !ok {
			err = multierr.Append(err, fmt.Errorf("axis%d: "+format, append([]interface{}{i}, args...)...))
		}
	}

	c := ax.Controller
	check(c.ControlMode.Valid(), "unknown control_mode %d", c.ControlMode)
	check(c.VelLimit > 0, "vel_limit must be positive, got %v", c.VelLimit)
	check(c.VelLimitTolerance >= 0, "vel_limit_tolerance must not be negative, got %v", c.VelLimitTolerance)
	check(c.VelRampRate >= 0, "vel_ramp_rate must not be negative, got %v", c.VelRampRate)

	m := ax.Motor
	check(m.CurrentLim > 0, "current_lim must be positive, got %v", m.CurrentLim)
	check(m.ShuntConductance > 0, "shunt_conductance must be positive, got %v", m.ShuntConductance)
	check(m.MaxModulation > 0 && m.MaxModulation <= 1, "max_modulation must be in (0, 1], got %v", m.MaxModulation)
	check(m.ControlDeadline > 0 && m.ControlDeadline <= 2*core.PeriodClocks,
		"control_deadline must be in (0, %d], got %d", 2*core.PeriodClocks, m.ControlDeadline)
	// Zero means not calibrated
	check(m.PhaseResistance == 0 || motor.ResistanceInRange(m.PhaseResistance),
		"phase_resistance %v outside the accepted range", m.PhaseResistance)
	check(m.PhaseInductance == 0 || motor.InductanceInRange(m.PhaseInductance),
		"phase_inductance %v outside the accepted range", m.PhaseInductance)

	e := ax.Encoder
	check(e.CPR > 0, "encoder cpr must be positive, got %d", e.CPR)
	check(e.PolePairs > 0, "pole_pairs must be positive, got %d", e.PolePairs)
	if _, _, perr := motor.PLLGains(e.PLLBandwidth, core.ControlPeriod); perr != motor.ErrNone {
		check(false, "pll_bandwidth %v is unstable at the control rate", e.PLLBandwidth)
	}

	t := ax.Trap
	check(t.VelLimit > 0 && t.AccelLimit > 0 && t.DecelLimit > 0, "trap limits must be positive")

	a := ax.Anticogging
	check(len(a.Harmonics) <= anticogging.NumHarmonics,
		"at most %d harmonics, got %d", anticogging.NumHarmonics, len(a.Harmonics))
	for _, h := range a.Harmonics {
		check(h.Index >= 0 && h.Index < e.CPR/2, "harmonic index %d outside [0, %d)", h.Index, e.CPR/2)
	}
	return err
}
