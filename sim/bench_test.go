package sim

import (
	"context"
	"math"
	"testing"
	"time"

	"bldc/motor"
)

func newSimBoard(t *testing.T) (*Bench, *motor.Board) {
	t.Helper()
	bench := DefaultBench()
	board, err := motor.NewBoard(motor.DefaultBoardConfig(), bench.Hardware())
	if err != nil {
		t.Fatalf("NewBoard: %v", err)
	}
	bench.Attach(board)
	return bench, board
}

// Amps read by the sequencer for an amplifier offset of one ADC count
const ampsPerCount = 3.3 / 4096 / 40 * 2000

func TestDCCalibrationSettles(t *testing.T) {
	bench, board := newSimBoard(t)
	bench.Run(time.Second)

	p := DefaultMotorParams()
	for _, a := range board.Axes {
		phB, phC := a.DCOffsets()
		wantB := float64(p.BiasB) * ampsPerCount
		wantC := float64(p.BiasC) * ampsPerCount
		if math.Abs(float64(phB)-wantB) > 0.02 || math.Abs(float64(phC)-wantC) > 0.02 {
			t.Errorf("axis%d offsets = %.4f, %.4f, want %.4f, %.4f", a.ID, phB, phC, wantB, wantC)
		}
	}
	if got := board.Bus.Voltage(); math.Abs(float64(got)-24) > 0.05 {
		t.Errorf("bus voltage = %v, want 24", got)
	}
}

func TestSelfTestMeasuresMotor(t *testing.T) {
	bench, board := newSimBoard(t)
	bench.Run(time.Second)

	a := board.Axes[0]
	bench.SetOutputs(0, true)
	if e := a.SelfTest(); e != motor.ErrNone {
		t.Fatalf("SelfTest: %v", e)
	}

	p := DefaultMotorParams()
	if r := float64(a.PhaseResistance); math.Abs(r-p.R)/p.R > 0.05 {
		t.Errorf("resistance = %v, want %v", r, p.R)
	}
	if l := float64(a.PhaseInductance); math.Abs(l-p.L)/p.L > 0.10 {
		t.Errorf("inductance = %v, want %v", l, p.L)
	}

	// Encoder count where the electrical angle is zero
	wantOffset := p.MagnetOffset / float64(p.PolePairs) / (2 * math.Pi) * float64(p.CPR)
	if off := float64(a.Rotor.Offset); math.Abs(off-wantOffset) > 5 {
		t.Errorf("encoder offset = %v, want %.1f", off, wantOffset)
	}
	if !a.SelftestOK() {
		t.Error("selftest_ok not set")
	}
	if a.Errors() != motor.ErrNone {
		t.Errorf("errors = %v", a.Errors())
	}
	t.Logf("R=%.4f L=%.2fuH offset=%d", a.PhaseResistance, a.PhaseInductance*1e6, a.Rotor.Offset)
}

func TestVelocityControl(t *testing.T) {
	bench, board := newSimBoard(t)
	bench.Run(time.Second)

	a := board.Axes[0]
	bench.SetOutputs(0, true)
	if e := a.SelfTest(); e != motor.ErrNone {
		t.Fatalf("SelfTest: %v", e)
	}

	a.Config.Controller.VelGain = 5.0 / 10000.0
	a.Config.Controller.VelIntegratorGain = 10.0 / 10000.0
	a.Ctrl.SetVelSetpoint(1000, 0)
	a.Enable()

	var theta0, theta1 float64
	bench.After(500*time.Millisecond, func() { theta0 = bench.plants[0].Theta })
	bench.After(time.Second, func() {
		theta1 = bench.plants[0].Theta
		a.Disable()
	})

	if e := a.ControlLoop(context.Background()); e != motor.ErrNone {
		t.Fatalf("ControlLoop: %v", e)
	}

	cpr := float64(DefaultMotorParams().CPR)
	vel := (theta1 - theta0) / 0.5 * cpr / (2 * math.Pi)
	if math.Abs(vel-1000) > 100 {
		t.Errorf("velocity = %.1f counts/s, want 1000", vel)
	}
	if a.Errors() != motor.ErrNone {
		t.Errorf("errors = %v", a.Errors())
	}
	t.Logf("velocity %.1f counts/s, pll %.1f", vel, a.Rotor.PLLVel)
}

func TestLateCommitStopsControl(t *testing.T) {
	bench, board := newSimBoard(t)
	bench.Run(10 * time.Millisecond)

	a := board.Axes[0]
	bench.SetOutputs(0, true)
	bench.SetCounter(0, 3600, false)
	a.Enable()

	e := a.ControlLoop(context.Background())
	if !e.Has(motor.ErrFOCTiming) {
		t.Fatalf("ControlLoop = %v, want FOC timing error", e)
	}
	if !a.Errors().Has(motor.ErrFOCTiming) {
		t.Errorf("errors = %v", a.Errors())
	}
	if got := a.LastTiming(); got != 3600 {
		t.Errorf("last timing = %d, want 3600", got)
	}
}

func TestInvalidGainStopsSampling(t *testing.T) {
	bench, board := newSimBoard(t)
	bench.Run(10 * time.Millisecond)

	a := board.Axes[1]
	bench.SetGain(1, 30)
	a.Enable()
	bench.Run(time.Millisecond)

	if !a.Errors().Has(motor.ErrGateDriverInvalidGain) {
		t.Errorf("errors = %v, want invalid gain", a.Errors())
	}
	if a.Enabled() || a.SelftestOK() {
		t.Error("axis still enabled or calibrated")
	}
	a.Ready().Clear()
	bench.Run(time.Millisecond)
	if a.Ready().TryWait() {
		t.Error("samples still published")
	}
	if board.Axes[0].Errors() != motor.ErrNone {
		t.Errorf("axis0 errors = %v", board.Axes[0].Errors())
	}
}

func TestPlantRLStep(t *testing.T) {
	m := &plant{p: DefaultMotorParams()}
	// Lock the rotor by aligning the voltage with the d axis
	m.Theta = m.p.MagnetOffset / float64(m.p.PolePairs)
	s, c := math.Sincos(m.electricalAngle())
	for i := 0; i < 200; i++ {
		m.step(0.8*c, 0.8*s, dt, true)
	}
	if got := math.Hypot(m.IAlpha, m.IBeta); math.Abs(got-10) > 1e-3 {
		t.Errorf("steady current = %v, want 10", got)
	}

	m.step(0, 0, dt, false)
	if m.IAlpha != 0 || m.IBeta != 0 {
		t.Error("current remains with bridge off")
	}
}
