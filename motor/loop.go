package motor

import (
	"context"
	"time"

	"bldc/core"
)

// currentLimit is the q-axis command bound: the configured limit, capped
// by what the shunts can measure.
func (a *Axis) currentLimit() float32 {
	ilim := a.Config.Motor.CurrentLim
	if a.Current.MaxAllowedCurrent < ilim {
		ilim = a.Current.MaxAllowedCurrent
	}
	return ilim
}

// ControlLoop runs closed-loop control until the axis is disabled, ctx is
// done or a fault occurs. Every cycle waits for a fresh sample, updates the estimator and the
// cascade, then commits new timings.
func (a *Axis) ControlLoop(ctx context.Context) Error {
	a.bus.Activate(a.ID)
	defer a.bus.Deactivate(a.ID)

	a.Rotor.Sync()
	a.Current.Reset()

	for a.enabled.Load() && ctx.Err() == nil {
		a.drainMailbox()

		if !a.waitSample() {
			a.SetError(ErrFOCMeasurementTimeout)
			return ErrFOCMeasurementTimeout
		}
		if e := a.bus.CheckVoltage(); e != ErrNone {
			a.SetError(e)
			return e
		}

		a.Rotor.Update()

		iq, e := a.Ctrl.Update(a.Rotor.PLLPos, a.Rotor.PLLVel, a.Rotor.PosCPR(), a.currentLimit())
		if e != ErrNone {
			a.SetError(e)
			return e
		}

		if e := a.FOCCurrent(0, iq); e != ErrNone {
			return e
		}
	}

	// Leaving control: our bus share is dropped by Deactivate
	a.Current.Ibus = 0
	a.queueVoltage(0, 0)
	return ErrNone
}

// Run is the axis thread. It serves self-test requests and runs the control
// loop whenever the axis is calibrated and enabled. A fault disarms the axis
// until it is enabled again.
func (a *Axis) Run(ctx context.Context) {
	a.running.Store(true)
	defer a.running.Store(false)

	a.drv.Inverter.SetOutputs(a.ID, false)
	for ctx.Err() == nil {
		a.drainMailbox()

		if a.doSelftest.Load() {
			a.drv.Inverter.SetOutputs(a.ID, true)
			sleep(ctx, a.armDelay)
			if e := a.SelfTest(); e != ErrNone {
				a.drv.Inverter.SetOutputs(a.ID, false)
				core.DebugPrintln("[AXIS" + core.FormatInt(a.ID) + "] selftest failed: " + e.String())
			}
			a.doSelftest.Store(false)
		}

		if a.selftestOK.Load() && a.enabled.Load() && !core.IsShutdown() {
			a.drv.Inverter.SetOutputs(a.ID, true)
			core.RecordTiming(core.EvtArm, uint8(a.ID), core.GetTime(), 1, 0)
			sleep(ctx, a.armDelay)

			e := a.ControlLoop(ctx)

			a.drv.Inverter.SetOutputs(a.ID, false)
			core.RecordTiming(core.EvtArm, uint8(a.ID), core.GetTime(), 0, uint32(e))
			if e != ErrNone {
				a.enabled.Store(false)
				core.DebugPrintln("[AXIS" + core.FormatInt(a.ID) + "] control stopped: " + e.String())
			}
		}

		sleep(ctx, a.idleDelay)
	}
	a.drv.Inverter.SetOutputs(a.ID, false)
}

func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
