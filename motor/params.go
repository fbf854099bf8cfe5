package motor

import (
	"go.uber.org/multierr"

	"bldc/core"
)

// registerParams exposes the board and axis state by name.
func (b *Board) registerParams() error {
	r := b.Params
	var err error
	add := func(p core.Param) {
		_, e := r.Add(p)
		err = multierr.Append(err, e)
	}

	add(core.FuncParam("vbus_voltage", core.ParamFloat,
		func() core.Value { return core.Float(b.Bus.Voltage()) }, nil))
	add(core.FuncParam("ibus", core.ParamFloat,
		func() core.Value { return core.Float(b.Bus.Sum()) }, nil))
	add(core.FloatParam("brake_resistance", &b.Bus.resistance, core.ReadWrite))

	for _, a := range b.Axes {
		a := a
		n := axisPrefix(a.ID)
		c := a.Ctrl
		cfg := &a.Config

		// Controller
		add(core.FuncParam(n+"control_mode", core.ParamInt,
			func() core.Value { return core.Int(int32(c.Mode)) },
			func(v core.Value) error {
				m := ControlMode(v.I)
				if !m.Valid() {
					return core.ErrParamRange
				}
				c.Mode = m
				return nil
			}))
		add(core.FloatParam(n+"pos_setpoint", &c.PosSetpoint, core.ReadWrite))
		add(core.FloatParam(n+"vel_setpoint", &c.VelSetpoint, core.ReadWrite))
		add(core.FloatParam(n+"current_setpoint", &c.CurrentSetpoint, core.ReadWrite))
		add(core.FloatParam(n+"vel_integrator_current", &c.VelIntegratorCurrent, core.ReadWrite))
		add(core.FloatParam(n+"vel_ramp_target", &c.VelRampTarget, core.ReadWrite))
		add(core.BoolParam(n+"vel_ramp_enable", &c.VelRampEnable, core.ReadWrite))
		add(core.FloatParam(n+"pos_gain", &cfg.Controller.PosGain, core.ReadWrite))
		add(core.FloatParam(n+"vel_gain", &cfg.Controller.VelGain, core.ReadWrite))
		add(core.FloatParam(n+"vel_integrator_gain", &cfg.Controller.VelIntegratorGain, core.ReadWrite))
		add(core.FloatParam(n+"vel_limit", &cfg.Controller.VelLimit, core.ReadWrite))
		add(core.FloatParam(n+"vel_limit_tolerance", &cfg.Controller.VelLimitTolerance, core.ReadWrite))
		add(core.FloatParam(n+"vel_ramp_rate", &cfg.Controller.VelRampRate, core.ReadWrite))
		add(core.BoolParam(n+"setpoints_in_cpr", &cfg.Controller.SetpointsInCPR, core.ReadWrite))

		// Current control
		add(core.FloatParam(n+"current_lim", &cfg.Motor.CurrentLim, core.ReadWrite))
		add(core.FloatParam(n+"selftest_current", &cfg.Motor.SelftestCurrent, core.ReadWrite))
		add(core.FuncParam(n+"shunt_conductance", core.ParamFloat,
			func() core.Value { return core.Float(a.ShuntConductance()) },
			func(v core.Value) error {
				if !(v.F > 0) {
					return core.ErrParamRange
				}
				a.SetShuntConductance(v.F)
				return nil
			}))
		add(core.FloatParam(n+"p_gain", &a.Current.PGain, core.ReadWrite))
		add(core.FloatParam(n+"i_gain", &a.Current.IGain, core.ReadWrite))
		add(core.FloatParam(n+"integral_d", &a.Current.IntegralD, core.ReadWrite))
		add(core.FloatParam(n+"integral_q", &a.Current.IntegralQ, core.ReadWrite))
		add(core.FloatParam(n+"Id", &a.Current.Id, core.ReadOnly))
		add(core.FloatParam(n+"Iq", &a.Current.Iq, core.ReadOnly))
		add(core.FloatParam(n+"Ibus", &a.Current.Ibus, core.ReadOnly))
		add(core.FloatParam(n+"max_allowed_current", &a.Current.MaxAllowedCurrent, core.ReadOnly))
		add(core.FloatParam(n+"phase_resistance", &a.PhaseResistance, core.ReadOnly))
		add(core.FloatParam(n+"phase_inductance", &a.PhaseInductance, core.ReadOnly))
		add(core.FuncParam(n+"current_meas.phB", core.ParamFloat,
			func() core.Value { phB, _ := a.Sample(); return core.Float(phB) }, nil))
		add(core.FuncParam(n+"current_meas.phC", core.ParamFloat,
			func() core.Value { _, phC := a.Sample(); return core.Float(phC) }, nil))
		add(core.FuncParam(n+"DC_calib.phB", core.ParamFloat,
			func() core.Value { return core.Float(a.dcOffset(0)) }, nil))
		add(core.FuncParam(n+"DC_calib.phC", core.ParamFloat,
			func() core.Value { return core.Float(a.dcOffset(1)) }, nil))

		// Rotor
		add(core.IntParam(n+"encoder_offset", &a.Rotor.Offset, core.ReadWrite))
		add(core.IntParam(n+"encoder_state", &a.Rotor.EncoderState, core.ReadOnly))
		add(core.FloatParam(n+"phase", &a.Rotor.Phase, core.ReadOnly))
		add(core.FloatParam(n+"pll_pos", &a.Rotor.PLLPos, core.ReadWrite))
		add(core.FloatParam(n+"pll_vel", &a.Rotor.PLLVel, core.ReadWrite))
		add(core.FloatParam(n+"pll_kp", &a.Rotor.PLLKp, core.ReadWrite))
		add(core.FloatParam(n+"pll_ki", &a.Rotor.PLLKi, core.ReadWrite))
		add(core.FuncParam(n+"elec_rad_per_enc", core.ParamFloat,
			func() core.Value { return core.Float(a.Rotor.ElecRadPerEnc()) }, nil))

		// State
		add(core.FuncParam(n+"error", core.ParamInt,
			func() core.Value { return core.Int(int32(a.Errors())) },
			func(v core.Value) error {
				// Errors can only be cleared
				if v.I != 0 {
					return core.ErrParamRange
				}
				a.ClearErrors()
				return nil
			}))
		add(core.FuncParam(n+"thread_ready", core.ParamBool,
			func() core.Value { return core.Bool(a.Running()) }, nil))
		add(core.FuncParam(n+"enable_control", core.ParamBool,
			func() core.Value { return core.Bool(a.Enabled()) },
			func(v core.Value) error {
				if v.B {
					a.Enable()
				} else {
					a.Disable()
				}
				return nil
			}))
		add(core.FuncParam(n+"do_selftest", core.ParamBool,
			func() core.Value { return core.Bool(a.doSelftest.Load()) },
			func(v core.Value) error {
				a.doSelftest.Store(v.B)
				return nil
			}))
		add(core.FuncParam(n+"selftest_ok", core.ParamBool,
			func() core.Value { return core.Bool(a.SelftestOK()) }, nil))
		add(core.FuncParam(n+"timing_log", core.ParamInt,
			func() core.Value { return core.Int(int32(a.LastTiming())) }, nil))

		if m := a.Anticogging; m != nil {
			add(core.BoolParam(n+"anticogging.use", &m.Use, core.ReadWrite))
			add(core.FuncParam(n+"anticogging.calibrating", core.ParamBool,
				func() core.Value { return core.Bool(m.Calibrating) }, nil))
			add(core.FuncParam(n+"anticogging.index", core.ParamInt,
				func() core.Value { return core.Int(int32(m.Index)) }, nil))
		}
	}
	return err
}
