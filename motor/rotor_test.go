package motor

import (
	"math"
	"math/rand"
	"testing"

	"bldc/core"
)

type stubEncoder struct{ cnt uint16 }

func (e *stubEncoder) Count(int) uint16 { return e.cnt }

func newTestRotor() (*Rotor, *stubEncoder) {
	enc := &stubEncoder{}
	r := NewRotor(0, enc, EncoderConfig{CPR: 8192, PolePairs: 7, PLLBandwidth: 1000}, core.ControlPeriod)
	return r, enc
}

func TestRotorUnwrapsCounterOverflow(t *testing.T) {
	r, _ := newTestRotor()
	rng := rand.New(rand.NewSource(1))

	var raw uint16
	var want int32
	for i := 0; i < 10000; i++ {
		d := int32(rng.Intn(65535) - 32767)
		raw += uint16(d)
		want += d
		r.Step(raw)
		if r.EncoderState != want {
			t.Fatalf("step %d: state = %d, want %d", i, r.EncoderState, want)
		}
		if r.Phase < 0 || r.Phase >= 2*math.Pi {
			t.Fatalf("step %d: phase %f out of range", i, r.Phase)
		}
	}
}

func TestRotorPhaseUsesOffset(t *testing.T) {
	r, enc := newTestRotor()
	r.Offset = 100

	tests := []struct {
		cnt  uint16
		want float32
	}{
		{100, 0},
		{100 + 8192/28, math.Pi / 2},
		{uint16(65536 - 8192 + 100), 0},
	}
	for _, tt := range tests {
		enc.cnt = tt.cnt
		r.Sync()
		ph := r.Phase
		if ph > math.Pi {
			ph -= 2 * math.Pi
		}
		if !approx(ph, tt.want, 0.02) {
			t.Errorf("count %d: phase = %f, want %f", tt.cnt, r.Phase, tt.want)
		}
	}
}

func TestPLLTracksConstantVelocity(t *testing.T) {
	r, _ := newTestRotor()
	kp, ki, e := PLLGains(1000, core.ControlPeriod)
	if e != ErrNone {
		t.Fatalf("PLLGains: %v", e)
	}
	r.PLLKp, r.PLLKi = kp, ki

	// One count per cycle: 8000 counts/s
	const cycles = 8000
	var velSum float64
	for k := 1; k <= cycles; k++ {
		r.Step(uint16(k))
		if k > cycles/2 {
			velSum += float64(r.PLLVel)
		}
	}
	mean := float32(velSum / (cycles / 2))
	if !approx(mean, 8000, 80) {
		t.Errorf("mean velocity = %f, want 8000", mean)
	}
	if !approx(r.PLLPos, cycles, 5) {
		t.Errorf("position = %f, want %d", r.PLLPos, cycles)
	}
}

func TestPLLRejectsSingleCountGlitch(t *testing.T) {
	r, enc := newTestRotor()
	r.PLLKp, r.PLLKi, _ = PLLGains(1000, core.ControlPeriod)
	enc.cnt = 50
	r.Sync()

	for k := 0; k < 100; k++ {
		r.Step(50)
	}
	r.Step(51)
	r.Step(50)
	if math.Abs(float64(r.PLLVel)) > 300 {
		t.Errorf("velocity after glitch = %f", r.PLLVel)
	}
	for k := 0; k < 2000; k++ {
		r.Step(50)
	}
	if !approx(r.PLLVel, 0, 1) || !approx(r.PLLPos, 50, 1) {
		t.Errorf("settled at pos %f vel %f", r.PLLPos, r.PLLVel)
	}
}

func TestPLLGains(t *testing.T) {
	tests := []struct {
		bw     float32
		kp, ki float32
		err    Error
	}{
		{1000, 2000, 1e6, ErrNone},
		{100, 200, 1e4, ErrNone},
		{4000, 0, 0, ErrSelftestTiming},
		{5000, 0, 0, ErrSelftestTiming},
	}
	for _, tt := range tests {
		kp, ki, err := PLLGains(tt.bw, core.ControlPeriod)
		if err != tt.err || !approx(kp, tt.kp, 1e-3) || !approx(ki, tt.ki, 1) {
			t.Errorf("PLLGains(%v) = %v, %v, %v; want %v, %v, %v", tt.bw, kp, ki, err, tt.kp, tt.ki, tt.err)
		}
	}
}

func TestWrapHelpers(t *testing.T) {
	tests := []struct {
		x, r, want float32
	}{
		{100 - 8090, 4096, 202},
		{8090 - 100, 4096, -202},
		{4096, 4096, -4096},
		{-4096, 4096, -4096},
		{0, 4096, 0},
	}
	for _, tt := range tests {
		if got := wrapPM(tt.x, tt.r); got != tt.want {
			t.Errorf("wrapPM(%v, %v) = %v, want %v", tt.x, tt.r, got, tt.want)
		}
	}

	if got := fmodPos(-1, 8192); got != 8191 {
		t.Errorf("fmodPos(-1) = %v", got)
	}
	if got := fmodPos(8292, 8192); got != 100 {
		t.Errorf("fmodPos(8292) = %v", got)
	}
}
