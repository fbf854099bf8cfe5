// Package sim is a host-side bench for the motor core: it implements every
// hardware driver against a simulated two-axis inverter with motors,
// current-sense amplifiers and encoders, and replays the PWM timer events
// that drive the sampling sequencer.
//
// The bench advances simulated time only when an axis waits for a sample,
// so control code runs deterministically and as fast as the host allows.
// Events are dispatched through the core timer list, which makes the bench
// the owner of the process-wide core clock: only one Bench may run at a time.
package sim

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"bldc/core"
	"bldc/motor"
)

const (
	// Clocks of one control period and the spacing of the four sequencer
	// events within it.
	periodTicks = core.TimerFreq / core.ControlHz
	eventTicks  = periodTicks / 4

	dt = 1.0 / float64(core.ControlHz)

	// Commit position reported by Counter unless overridden
	defaultCounter = 1200

	adcRef      = 3.3
	adcCounts   = 4096
	vbusDivider = 11.0
)

// Channel map of the current-sense inputs
var channelMap = map[core.ADCChannel]struct {
	axis  int
	phase int // 0 = B, 1 = C
}{
	10: {0, 0},
	11: {0, 1},
	13: {1, 0},
	12: {1, 1},
}

type armed struct {
	trig core.ADCTrigger
	ch   core.ADCChannel
}

type counterOverride struct {
	set  bool
	cnt  uint16
	down bool
}

// Bench is the simulated board.
type Bench struct {
	stepMu sync.Mutex // serializes time advance

	mu      sync.Mutex // guards the hardware state below
	plants  [motor.NumAxes]*plant
	shadow  [motor.NumAxes]core.Timings
	active  [motor.NumAxes]core.Timings
	outputs [motor.NumAxes]bool
	dcCal   [motor.NumAxes]bool
	gain    [motor.NumAxes]int
	counter [motor.NumAxes]counterOverride
	adc     [4]armed
	brake   [2]uint16
	vbus    float64
	shuntG  float64

	events [4]core.Timer
	now    uint32
	steps  atomic.Uint64

	board *motor.Board
}

// NewBench creates a bench with one motor per axis at 24 V.
func NewBench(params [motor.NumAxes]MotorParams) *Bench {
	b := &Bench{
		vbus:   24.0,
		shuntG: 1.0 / 0.0005,
	}
	for i := range b.plants {
		b.plants[i] = &plant{p: params[i]}
		b.gain[i] = 40
		b.active[i] = core.Timings{core.PeriodClocks / 2, core.PeriodClocks / 2, core.PeriodClocks / 2}
		b.shadow[i] = b.active[i]
	}

	core.ResetTimers()
	core.SetTime(0)
	trigs := [4]core.ADCTrigger{
		core.TrigAxis0Current,
		core.TrigAxis1Current,
		core.TrigAxis0DCCal,
		core.TrigAxis1DCCal,
	}
	for i := range b.events {
		trig := trigs[i]
		b.events[i] = core.Timer{
			WakeTime: uint32(i+1) * eventTicks,
			Handler: func(t *core.Timer) uint8 {
				b.fire(trig)
				t.WakeTime += periodTicks
				return core.SF_RESCHEDULE
			},
		}
		core.ScheduleTimer(&b.events[i])
	}
	return b
}

// DefaultBench creates a bench with two default motors.
func DefaultBench() *Bench {
	return NewBench([motor.NumAxes]MotorParams{DefaultMotorParams(), DefaultMotorParams()})
}

// Hardware returns the bench as the board's driver set.
func (b *Bench) Hardware() motor.Hardware {
	return motor.Hardware{ADC: b, Inverter: b, Brake: b, Encoder: b, Gate: b}
}

// Register installs the bench as the core driver singletons.
func (b *Bench) Register() {
	core.SetADCDriver(b)
	core.SetInverterDriver(b)
	core.SetBrakeDriver(b)
	core.SetEncoderDriver(b)
	core.SetGateDriver(b)
}

// Attach connects a board built on this bench: the bench becomes every
// axis' sample waiter and the sequencer is armed.
func (b *Bench) Attach(board *motor.Board) {
	b.board = board
	b.shuntG = float64(board.Axes[0].ShuntConductance())
	for _, a := range board.Axes {
		a.SetWaiter(b)
		a.SetDelays(0, time.Millisecond)
	}
	board.Bus.UpdateBrake(0)
	board.Sequencer.Start()
}

// Now returns the simulated time since the bench was created.
func (b *Bench) Now() time.Duration {
	return time.Duration(b.steps.Load()) * time.Second / (4 * core.ControlHz)
}

// Step advances the simulation by one sequencer event.
func (b *Bench) Step() {
	b.stepMu.Lock()
	b.step()
	b.stepMu.Unlock()
}

func (b *Bench) step() {
	b.now += eventTicks
	b.steps.Add(1)
	core.SetTime(b.now)
	core.ProcessTimers()
}

// Run advances the simulation by d.
func (b *Bench) Run(d time.Duration) {
	b.stepMu.Lock()
	defer b.stepMu.Unlock()
	for n := eventsIn(d); n > 0; n-- {
		b.step()
	}
}

// After schedules fn d of simulated time from now. fn runs on the goroutine
// that is advancing the simulation and must not call Step, Run or After.
func (b *Bench) After(d time.Duration, fn func()) {
	b.stepMu.Lock()
	defer b.stepMu.Unlock()
	t := &core.Timer{
		WakeTime: b.now + uint32(eventsIn(d))*eventTicks,
		Handler: func(*core.Timer) uint8 {
			fn()
			return core.SF_DONE
		},
	}
	core.ScheduleTimer(t)
}

func eventsIn(d time.Duration) int {
	return int(d * 4 * core.ControlHz / time.Second)
}

// WaitSample advances the simulation until the axis has a fresh sample or
// the timeout has elapsed in simulated time.
func (b *Bench) WaitSample(axis int, timeout time.Duration) bool {
	sig := b.board.Axes[axis].Ready()
	if sig.TryWait() {
		return true
	}
	b.stepMu.Lock()
	defer b.stepMu.Unlock()
	for n := eventsIn(timeout); n > 0; n-- {
		b.step()
		if sig.TryWait() {
			return true
		}
	}
	return false
}

// fire runs the plant of the event's axis and delivers the conversions of
// every ADC unit armed for this trigger.
func (b *Bench) fire(trig core.ADCTrigger) {
	switch trig {
	case core.TrigAxis0Current:
		b.advancePlant(0)
		if b.board != nil {
			b.board.Bus.SenseVoltage(b.vbusRaw())
		}
	case core.TrigAxis1Current:
		b.advancePlant(1)
	}

	if b.board == nil {
		return
	}
	var results [2]struct {
		unit core.ADCUnit
		raw  uint16
		ok   bool
	}
	b.mu.Lock()
	for i, unit := range []core.ADCUnit{core.ADCUnitB, core.ADCUnitC} {
		arm := b.adc[unit]
		if arm.trig != trig {
			continue
		}
		results[i].unit = unit
		results[i].raw = b.convert(arm.ch)
		results[i].ok = true
	}
	b.mu.Unlock()

	// Unit B completes first
	for _, r := range results {
		if r.ok {
			b.board.Sequencer.OnConversion(r.unit, trig, r.raw)
		}
	}
}

// advancePlant integrates one control period with the timings that were
// active over it, then latches the preloaded ones.
func (b *Bench) advancePlant(axis int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	vAlpha, vBeta := b.phaseVoltages(b.active[axis])
	b.plants[axis].step(vAlpha, vBeta, dt, b.outputs[axis])
	b.active[axis] = b.shadow[axis]
}

// phaseVoltages converts compare values to stationary-frame voltages.
// A phase's high side conducts while the counter is above its compare.
func (b *Bench) phaseVoltages(t core.Timings) (vAlpha, vBeta float64) {
	var v [3]float64
	for i := range v {
		v[i] = (1 - float64(t[i])/core.PeriodClocks) * b.vbus
	}
	vAlpha = (2*v[0] - v[1] - v[2]) / 3
	vBeta = (v[1] - v[2]) / math.Sqrt(3)
	return vAlpha, vBeta
}

// convert samples one channel. Caller holds mu.
func (b *Bench) convert(ch core.ADCChannel) uint16 {
	m, ok := channelMap[ch]
	if !ok {
		return adcCounts / 2
	}
	p := b.plants[m.axis]
	bias := p.p.BiasB
	if m.phase == 1 {
		bias = p.p.BiasC
	}

	volts := 0.0
	if !b.dcCal[m.axis] {
		iB, iC := p.phaseCurrents()
		i := iB
		if m.phase == 1 {
			i = iC
		}
		volts = i / b.shuntG * float64(b.gain[m.axis])
	}
	raw := math.Round(adcCounts/2+volts/adcRef*adcCounts) + float64(bias)
	return uint16(math.Max(0, math.Min(adcCounts-1, raw)))
}

func (b *Bench) vbusRaw() uint16 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return uint16(math.Round(b.vbus / (adcRef * vbusDivider) * adcCounts))
}

// Arm implements core.ADCDriver.
func (b *Bench) Arm(unit core.ADCUnit, trig core.ADCTrigger, ch core.ADCChannel) {
	b.mu.Lock()
	b.adc[unit] = armed{trig: trig, ch: ch}
	b.mu.Unlock()
}

// LoadTimings implements core.InverterDriver. The values become active at
// the axis' next current sample.
func (b *Bench) LoadTimings(axis int, t core.Timings) {
	b.mu.Lock()
	b.shadow[axis] = t
	b.mu.Unlock()
}

// Counter implements core.InverterDriver.
func (b *Bench) Counter(axis int) (uint16, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if o := b.counter[axis]; o.set {
		return o.cnt, o.down
	}
	return defaultCounter, false
}

// SetOutputs implements core.InverterDriver.
func (b *Bench) SetOutputs(axis int, enabled bool) {
	b.mu.Lock()
	b.outputs[axis] = enabled
	b.mu.Unlock()
}

// SetBrake implements core.BrakeDriver.
func (b *Bench) SetBrake(lowOff, highOn uint16) {
	b.mu.Lock()
	b.brake = [2]uint16{lowOff, highOn}
	b.mu.Unlock()
}

// Brake returns the last chopper compare values.
func (b *Bench) Brake() (lowOff, highOn uint16) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.brake[0], b.brake[1]
}

// Count implements core.EncoderDriver.
func (b *Bench) Count(axis int) uint16 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.plants[axis].count()
}

// ShuntGain implements core.GateDriver.
func (b *Bench) ShuntGain(axis int) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.gain[axis]
}

// SetDCCal implements core.GateDriver.
func (b *Bench) SetDCCal(axis int, on bool) {
	b.mu.Lock()
	b.dcCal[axis] = on
	b.mu.Unlock()
}

// SetGain changes the amplifier gain the gate driver reports.
func (b *Bench) SetGain(axis, gain int) {
	b.mu.Lock()
	b.gain[axis] = gain
	b.mu.Unlock()
}

// SetCounter makes Counter report a fixed commit position, for example one
// past the deadline. ClearCounter restores the default.
func (b *Bench) SetCounter(axis int, cnt uint16, down bool) {
	b.mu.Lock()
	b.counter[axis] = counterOverride{set: true, cnt: cnt, down: down}
	b.mu.Unlock()
}

// ClearCounter drops a SetCounter override.
func (b *Bench) ClearCounter(axis int) {
	b.mu.Lock()
	b.counter[axis] = counterOverride{}
	b.mu.Unlock()
}

// SetVbus changes the supply voltage.
func (b *Bench) SetVbus(v float64) {
	b.mu.Lock()
	b.vbus = v
	b.mu.Unlock()
}

// Plant returns the physical state of an axis' motor.
func (b *Bench) Plant(axis int) PlantState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.plants[axis].PlantState
}
