package motor

import (
	"math"
	"sync"
	"testing"
	"time"

	"bldc/core"
)

type armCall struct {
	unit core.ADCUnit
	trig core.ADCTrigger
	ch   core.ADCChannel
}

type loadCall struct {
	axis int
	t    core.Timings
}

// fakeHW records every driver call.
type fakeHW struct {
	mu      sync.Mutex
	counter [NumAxes]uint16
	down    [NumAxes]bool
	outputs [NumAxes]bool
	dcCal   [NumAxes]bool
	gain    [NumAxes]int
	enc     [NumAxes]uint16
	arms    []armCall
	loads   []loadCall
	brake   [][2]uint16
}

func newFakeHW() *fakeHW {
	f := &fakeHW{}
	for i := range f.gain {
		f.gain[i] = 40
		f.counter[i] = 1000
	}
	return f
}

func (f *fakeHW) hardware() Hardware {
	return Hardware{ADC: f, Inverter: f, Brake: f, Encoder: f, Gate: f}
}

func (f *fakeHW) Arm(unit core.ADCUnit, trig core.ADCTrigger, ch core.ADCChannel) {
	f.mu.Lock()
	f.arms = append(f.arms, armCall{unit, trig, ch})
	f.mu.Unlock()
}

func (f *fakeHW) LoadTimings(axis int, t core.Timings) {
	f.mu.Lock()
	f.loads = append(f.loads, loadCall{axis, t})
	f.mu.Unlock()
}

func (f *fakeHW) Counter(axis int) (uint16, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counter[axis], f.down[axis]
}

func (f *fakeHW) SetOutputs(axis int, enabled bool) {
	f.mu.Lock()
	f.outputs[axis] = enabled
	f.mu.Unlock()
}

func (f *fakeHW) SetBrake(lowOff, highOn uint16) {
	f.mu.Lock()
	f.brake = append(f.brake, [2]uint16{lowOff, highOn})
	f.mu.Unlock()
}

func (f *fakeHW) ShuntGain(axis int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gain[axis]
}

func (f *fakeHW) SetDCCal(axis int, on bool) {
	f.mu.Lock()
	f.dcCal[axis] = on
	f.mu.Unlock()
}

func (f *fakeHW) Count(axis int) uint16 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enc[axis]
}

func (f *fakeHW) setCounter(axis int, cnt uint16, down bool) {
	f.mu.Lock()
	f.counter[axis] = cnt
	f.down[axis] = down
	f.mu.Unlock()
}

// countingWaiter returns a fixed answer and counts calls.
type countingWaiter struct {
	mu    sync.Mutex
	calls int
	ok    bool
	hook  func()
}

func (w *countingWaiter) WaitSample(int, time.Duration) bool {
	w.mu.Lock()
	w.calls++
	w.mu.Unlock()
	if w.hook != nil {
		w.hook()
	}
	return w.ok
}

func (w *countingWaiter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.calls
}

// rlPlant is a single-phase RL load on the alpha axis. Timings queued
// after a sample shape the current seen two samples later, as with the
// preloaded compare registers.
type rlPlant struct {
	a    *Axis
	r, l float32
	i    float32
	prev core.Timings
}

func (p *rlPlant) WaitSample(int, time.Duration) bool {
	applied := p.prev
	p.prev = p.a.NextTimings()

	vbus := p.a.bus.Voltage()
	tA := float32(applied[0]) / core.PeriodClocks
	tB := float32(applied[1]) / core.PeriodClocks
	tC := float32(applied[2]) / core.PeriodClocks
	vAlpha := (2.0 / 3.0) * ((tB+tC)/2 - tA) * vbus

	// Exact step response over one period
	decay := float32(math.Exp(-float64(core.ControlPeriod * p.r / p.l)))
	p.i = p.i*decay + vAlpha/p.r*(1-decay)

	p.a.publishSample(-p.i/2, -p.i/2)
	p.a.ready.Clear()
	return true
}

func newTestBoard(t *testing.T) (*Board, *fakeHW) {
	t.Helper()
	hw := newFakeHW()
	b, err := NewBoard(DefaultBoardConfig(), hw.hardware())
	if err != nil {
		t.Fatalf("NewBoard: %v", err)
	}
	b.Bus.SetVoltage(24)
	return b, hw
}

func approx(a, b, tol float32) bool {
	return float32(math.Abs(float64(a-b))) <= tol
}
