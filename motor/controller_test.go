package motor

import (
	"testing"

	"bldc/anticogging"
	"bldc/core"
)

func newTestController(cfg ControllerConfig) *Controller {
	trap := TrapConfig{VelLimit: 2000, AccelLimit: 1000, DecelLimit: 1000}
	return NewController(&cfg, &trap, nil, 8192, core.ControlPeriod)
}

func TestVelocityRampReachesTarget(t *testing.T) {
	c := newTestController(ControllerConfig{
		VelLimit:    20000,
		VelRampRate: 5000,
	})
	c.SetVelRamp(10000)

	cycles := 0
	for c.VelSetpoint != 10000 && cycles < 20000 {
		if _, e := c.Update(0, 0, 0, 10); e != ErrNone {
			t.Fatalf("cycle %d: %v", cycles, e)
		}
		cycles++
		if cycles == 15999 && c.VelSetpoint >= 10000 {
			t.Fatalf("target reached early at %f", c.VelSetpoint)
		}
	}
	if cycles != 16000 {
		t.Errorf("target reached after %d cycles, want 16000", cycles)
	}

	// Further updates hold the target
	c.Update(0, 0, 0, 10)
	if c.VelSetpoint != 10000 {
		t.Errorf("setpoint moved past target: %f", c.VelSetpoint)
	}
}

func TestCircularSetpointError(t *testing.T) {
	c := newTestController(ControllerConfig{
		PosGain:        1,
		VelGain:        1,
		VelLimit:       20000,
		SetpointsInCPR: true,
	})
	c.SetPosSetpoint(100, 0, 0)

	iq, e := c.Update(8090, 0, 8090, 1e6)
	if e != ErrNone {
		t.Fatal(e)
	}
	if iq != 202 {
		t.Errorf("iq = %v, want 202 (shortest way forward)", iq)
	}

	c.SetPosSetpoint(8292, 0, 0)
	c.Update(100, 0, 100, 1e6)
	if c.PosSetpoint != 100 {
		t.Errorf("setpoint not wrapped: %v", c.PosSetpoint)
	}
}

func TestVelocityIntegratorBranches(t *testing.T) {
	cfg := ControllerConfig{
		VelGain:           0.01,
		VelIntegratorGain: 0.1,
		VelLimit:          20000,
	}

	tests := []struct {
		name  string
		setup func(c *Controller)
		ilim  float32
		want  float32
	}{
		{
			name:  "current mode resets",
			setup: func(c *Controller) { c.SetCurrentSetpoint(1) },
			ilim:  10,
			want:  0,
		},
		{
			name:  "limited decays",
			setup: func(c *Controller) { c.SetVelSetpoint(10000, 0) },
			ilim:  10,
			want:  2 * 0.99,
		},
		{
			name:  "unlimited integrates",
			setup: func(c *Controller) { c.SetVelSetpoint(100, 0) },
			ilim:  10,
			want:  2 + 0.1*float32(core.ControlPeriod)*100,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestController(cfg)
			tt.setup(c)
			c.VelIntegratorCurrent = 2
			if _, e := c.Update(0, 0, 0, tt.ilim); e != ErrNone {
				t.Fatal(e)
			}
			if !approx(c.VelIntegratorCurrent, tt.want, 1e-6) {
				t.Errorf("integrator = %v, want %v", c.VelIntegratorCurrent, tt.want)
			}
		})
	}
}

func TestOverspeedStopsCascade(t *testing.T) {
	c := newTestController(ControllerConfig{
		VelGain:           0.01,
		VelIntegratorGain: 0.1,
		VelLimit:          20000,
		VelLimitTolerance: 1.2,
	})
	c.SetVelSetpoint(0, 0)
	c.VelIntegratorCurrent = 1

	iq, e := c.Update(0, 24001, 0, 10)
	if e != ErrOverspeed {
		t.Fatalf("err = %v, want OVERSPEED", e)
	}
	if iq != 0 || c.VelIntegratorCurrent != 1 {
		t.Errorf("state changed: iq %v integrator %v", iq, c.VelIntegratorCurrent)
	}

	// Zero tolerance disables the check
	c.Config.VelLimitTolerance = 0
	if _, e := c.Update(0, 24001, 0, 10); e != ErrNone {
		t.Errorf("err = %v with check disabled", e)
	}
}

func TestTrajectoryEndsInPositionMode(t *testing.T) {
	c := newTestController(ControllerConfig{
		PosGain:  20,
		VelGain:  0.001,
		VelLimit: 20000,
	})
	c.Trap.APerCSS = 0.001
	c.MoveTo(1000)
	if c.Mode != ModeTrajectory {
		t.Fatalf("mode = %v", c.Mode)
	}

	// Triangle profile: peaks at 1000 counts/s, 2 s total
	limit := int(5 / core.ControlPeriod)
	n := 0
	for c.Mode == ModeTrajectory && n < limit {
		c.Update(c.PosSetpoint, c.VelSetpoint, 0, 10)
		n++
		if c.VelSetpoint > 2000+1 {
			t.Fatalf("cycle %d: velocity %v over limit", n, c.VelSetpoint)
		}
	}
	if c.Mode != ModePosition || !c.TrajDone {
		t.Fatalf("trajectory did not finish after %d cycles", n)
	}
	if c.PosSetpoint != 1000 || c.VelSetpoint != 0 || c.CurrentSetpoint != 0 {
		t.Errorf("final setpoints %v %v %v", c.PosSetpoint, c.VelSetpoint, c.CurrentSetpoint)
	}
	want := c.Traj.Tf / core.ControlPeriod
	if !approx(float32(n), want, 3) {
		t.Errorf("took %d cycles, want about %v", n, want)
	}
}

func TestAnticoggingFeedForward(t *testing.T) {
	m, err := anticogging.New(8192)
	if err != nil {
		t.Fatal(err)
	}
	m.Values[42] = 0.5
	m.Use = true

	c := newTestController(ControllerConfig{VelLimit: 20000})
	c.Anticogging = m
	c.SetCurrentSetpoint(1)

	iq, _ := c.Update(42.7, 0, 42.7, 10)
	if !approx(iq, 1.5, 1e-6) {
		t.Errorf("iq = %v, want 1.5", iq)
	}
}

func TestVelocityIntegratorDecaysWhileLimited(t *testing.T) {
	c := newTestController(ControllerConfig{
		VelGain:           0.01,
		VelIntegratorGain: 0.1,
		VelLimit:          20000,
	})
	c.SetVelSetpoint(10000, 0)
	c.VelIntegratorCurrent = 2

	want := float32(2)
	prev := c.VelIntegratorCurrent
	for n := 1; n <= 200; n++ {
		iq, e := c.Update(0, 0, 0, 10)
		if e != ErrNone {
			t.Fatal(e)
		}
		if !c.Limited || iq != 10 {
			t.Fatalf("cycle %d: not clipped, iq = %v", n, iq)
		}
		want *= integratorDecay
		if c.VelIntegratorCurrent != want {
			t.Fatalf("cycle %d: integrator = %v, want %v", n, c.VelIntegratorCurrent, want)
		}
		if !(c.VelIntegratorCurrent < prev) {
			t.Fatalf("cycle %d: integrator %v did not decrease from %v", n, c.VelIntegratorCurrent, prev)
		}
		prev = c.VelIntegratorCurrent
	}
}

func TestAnticoggingFollowsTrajectoryToTheGoal(t *testing.T) {
	m, err := anticogging.New(8192)
	if err != nil {
		t.Fatal(err)
	}
	m.Values[1000] = 0.5
	m.Use = true

	c := newTestController(ControllerConfig{VelLimit: 20000})
	c.Anticogging = m
	c.MoveTo(1000)

	// The rotor is held far from the goal, so only a lookup at the
	// setpoint can reach the goal's entry
	var iq float32
	limit := int(5 / core.ControlPeriod)
	for n := 0; c.Mode == ModeTrajectory && n < limit; n++ {
		iq, _ = c.Update(500, 0, 500, 10)
	}
	if c.Mode != ModePosition {
		t.Fatal("trajectory did not finish")
	}
	if iq != 0.5 {
		t.Errorf("iq on the hand-over cycle = %v, want the goal's feed-forward 0.5", iq)
	}

	// Position control compensates at the estimate again
	if iq, _ = c.Update(500, 0, 500, 10); iq != 0 {
		t.Errorf("iq after hand-over = %v, want 0", iq)
	}
}
