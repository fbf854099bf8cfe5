package motor

import (
	"math"
	"testing"
)

func TestMeasureResistance(t *testing.T) {
	tests := []struct {
		name       string
		r          float32
		maxVoltage float32
		want       Error
	}{
		{"nominal", 0.05, 1, ErrNone},
		{"out of range", 0.5, 10, ErrPhaseResistanceOutOfRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, _ := newTestBoard(t)
			a := b.Axes[0]
			a.SetWaiter(&rlPlant{a: a, r: tt.r, l: 30e-6})

			e := a.MeasureResistance(10, tt.maxVoltage)
			if e != tt.want {
				t.Fatalf("MeasureResistance = %v, want %v", e, tt.want)
			}
			switch {
			case tt.want != ErrNone && a.PhaseResistance != 0:
				t.Errorf("rejected R = %v kept", a.PhaseResistance)
			case tt.want == ErrNone && !approx(a.PhaseResistance, tt.r, tt.r*0.05):
				t.Errorf("R = %v, want %v", a.PhaseResistance, tt.r)
			}
			if got := a.NextTimings(); got[0] != got[1] || got[1] != got[2] {
				t.Errorf("motor left energized: %v", got)
			}
		})
	}
}

func TestMeasureResistanceTimeout(t *testing.T) {
	b, _ := newTestBoard(t)
	a := b.Axes[0]
	a.SetWaiter(&countingWaiter{ok: false})

	if e := a.MeasureResistance(10, 1); e != ErrPhaseResistanceMeasurementTimeout {
		t.Errorf("err = %v", e)
	}
	if !a.Errors().Has(ErrPhaseResistanceMeasurementTimeout) {
		t.Errorf("errors = %v", a.Errors())
	}
}

func TestMeasureResistanceDeadline(t *testing.T) {
	b, hw := newTestBoard(t)
	a := b.Axes[1]
	w := &countingWaiter{ok: true}
	a.SetWaiter(w)
	hw.setCounter(1, 100, true)

	if e := a.MeasureResistance(10, 1); e != ErrPhaseResistanceTiming {
		t.Errorf("err = %v", e)
	}
	if w.count() != 1 {
		t.Errorf("ran %d cycles after the miss", w.count())
	}
}

func TestMeasureInductance(t *testing.T) {
	tests := []struct {
		name string
		l    float32
		want Error
	}{
		{"nominal", 30e-6, ErrNone},
		{"large motor", 500e-6, ErrNone},
		{"out of range", 50e-3, ErrPhaseInductanceOutOfRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, _ := newTestBoard(t)
			a := b.Axes[0]
			a.SetWaiter(&rlPlant{a: a, r: 0.05, l: tt.l})

			if e := a.MeasureInductance(-1, 1); e != tt.want {
				t.Fatalf("MeasureInductance = %v, want %v", e, tt.want)
			}
			switch {
			case tt.want != ErrNone && a.PhaseInductance != 0:
				t.Errorf("rejected L = %v kept", a.PhaseInductance)
			case tt.want == ErrNone && !approx(a.PhaseInductance, tt.l, tt.l*0.05):
				t.Errorf("L = %v, want %v", a.PhaseInductance, tt.l)
			}
		})
	}
}

func TestEncoderOffsetDirection(t *testing.T) {
	b, _ := newTestBoard(t)
	a := b.Axes[0]
	w := &countingWaiter{ok: true}
	a.SetWaiter(w)

	// The encoder never moves
	if e := a.CalibrateEncoderOffset(1); e != ErrEncoderDirection {
		t.Fatalf("err = %v, want ENCODER_DIRECTION", e)
	}
	lock := 8000
	scan := 1024 * 16
	if n := w.count(); n != lock+scan {
		t.Errorf("waited %d cycles, want %d", n, lock+scan)
	}
}

func TestSelfTestFailureKeepsAxisUnarmed(t *testing.T) {
	b, _ := newTestBoard(t)
	a := b.Axes[0]
	a.selftestOK.Store(true)
	a.SetWaiter(&countingWaiter{ok: false})

	if e := a.SelfTest(); e != ErrPhaseResistanceMeasurementTimeout {
		t.Fatalf("SelfTest = %v", e)
	}
	if a.SelftestOK() {
		t.Error("selftest_ok set after failure")
	}
	if a.Calib.Stage != StageResistance || !a.Calib.Result.Has(ErrPhaseResistanceMeasurementTimeout) {
		t.Errorf("session = %+v", a.Calib)
	}
}

func TestSelfTestFailureClearsPreviousResults(t *testing.T) {
	b, _ := newTestBoard(t)
	a := b.Axes[0]
	a.PhaseResistance = 0.05
	a.PhaseInductance = 1e-4
	a.Rotor.Offset = 1234
	a.Config.Motor.PhaseResistance = 0.05
	a.Config.Motor.PhaseInductance = 1e-4
	a.Config.Encoder.Offset = 1234
	a.SetWaiter(&countingWaiter{ok: false})

	if e := a.SelfTest(); e != ErrPhaseResistanceMeasurementTimeout {
		t.Fatalf("SelfTest = %v", e)
	}
	if a.PhaseResistance != 0 || a.PhaseInductance != 0 || a.Rotor.Offset != 0 {
		t.Errorf("R=%v L=%v offset=%d survived a failed run", a.PhaseResistance, a.PhaseInductance, a.Rotor.Offset)
	}

	cfg := b.Snapshot()
	if m := cfg.Axes[0].Motor; m.PhaseResistance != 0 || m.PhaseInductance != 0 || cfg.Axes[0].Encoder.Offset != 0 {
		t.Errorf("snapshot carries stale calibration: %+v offset %d", m, cfg.Axes[0].Encoder.Offset)
	}
	b2, err := NewBoard(cfg, newFakeHW().hardware())
	if err != nil {
		t.Fatal(err)
	}
	if b2.Axes[0].SelftestOK() {
		t.Error("reloaded axis armed after a failed self-test")
	}
}

func TestRejectedInductanceDoesNotArmOnReload(t *testing.T) {
	b, _ := newTestBoard(t)
	a := b.Axes[0]
	a.PhaseResistance = 0.05

	// No current ever flows: the slope is zero and the estimate infinite
	a.SetWaiter(&countingWaiter{ok: true})
	if e := a.MeasureInductance(-1, 1); e != ErrPhaseInductanceOutOfRange {
		t.Fatalf("MeasureInductance = %v", e)
	}
	if a.PhaseInductance != 0 {
		t.Errorf("L = %v kept after rejection", a.PhaseInductance)
	}

	b2, err := NewBoard(b.Snapshot(), newFakeHW().hardware())
	if err != nil {
		t.Fatal(err)
	}
	if b2.Axes[0].SelftestOK() {
		t.Errorf("reloaded axis armed with R=%v L=%v", b2.Axes[0].PhaseResistance, b2.Axes[0].PhaseInductance)
	}
}

func TestNewAxisArmsOnlyInRangeCalibration(t *testing.T) {
	tests := []struct {
		name string
		r, l float32
		want bool
	}{
		{"calibrated", 0.05, 1e-4, true},
		{"uncalibrated", 0, 0, false},
		{"infinite inductance", 0.05, float32(math.Inf(1)), false},
		{"inductance too high", 0.05, 50e-3, false},
		{"resistance too high", 0.5, 1e-4, false},
		{"resistance too low", 0.001, 1e-4, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultBoardConfig()
			cfg.Axes[0].Motor.PhaseResistance = tt.r
			cfg.Axes[0].Motor.PhaseInductance = tt.l
			b, err := NewBoard(cfg, newFakeHW().hardware())
			if err != nil {
				t.Fatal(err)
			}
			if got := b.Axes[0].SelftestOK(); got != tt.want {
				t.Errorf("SelftestOK = %v, want %v", got, tt.want)
			}
		})
	}
}
