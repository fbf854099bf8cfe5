package motor

import (
	"errors"
	"math"
	"sync/atomic"
	"time"

	"bldc/anticogging"
	"bldc/core"
)

// TimingLogSize is the number of completion times kept per axis.
const TimingLogSize = 128

// SampleWaiter blocks the axis thread until its next current sample is
// published. Boards wire the sequencer signal; the simulator advances its
// plant instead.
type SampleWaiter interface {
	WaitSample(axis int, timeout time.Duration) bool
}

// Drivers are the hardware interfaces one axis uses.
type Drivers struct {
	Inverter core.InverterDriver
	Encoder  core.EncoderDriver
	Gate     core.GateDriver
}

// Axis is one motor channel. Fields are partitioned between the sampling
// interrupt and the axis thread: the interrupt only touches the atomics
// below, the thread owns everything else.
type Axis struct {
	ID     int
	Config AxisConfig

	Rotor       *Rotor
	Current     CurrentControl
	Ctrl        *Controller
	Anticogging *anticogging.Map
	Calib       CalibrationSession

	PhaseResistance float32 // [ohm]
	PhaseInductance float32 // [H]

	// Interrupt -> thread
	sample    atomic.Uint64 // phase B and C currents, float32 bits
	dcCal     [2]atomic.Uint32
	isrPhB    float32
	ready     *core.Signal
	timingLog timingLog
	shuntCond atomic.Uint32

	// Thread -> interrupt
	nextTimings atomic.Uint64

	err        atomic.Uint32
	enabled    atomic.Bool
	selftestOK atomic.Bool
	doSelftest atomic.Bool
	running    atomic.Bool

	waiter   SampleWaiter
	timeout  time.Duration
	mailbox  chan func(*Axis)
	bus      *Bus
	drv      Drivers
	period   float32
	deadline uint16

	armDelay  time.Duration
	idleDelay time.Duration
}

// NewAxis builds an axis from its configuration. The configured calibration
// results are applied so a calibrated axis can skip the self-test.
func NewAxis(id int, cfg AxisConfig, board BoardConfig, drv Drivers, bus *Bus) (*Axis, error) {
	if id < 0 || id >= NumAxes {
		return nil, errors.New("motor: axis index out of range")
	}
	a := &Axis{
		ID:        id,
		Config:    cfg,
		ready:     core.NewSignal(),
		mailbox:   make(chan func(*Axis), 16),
		bus:       bus,
		drv:       drv,
		period:    core.ControlPeriod,
		deadline:  uint16(cfg.Motor.ControlDeadline),
		timeout:   time.Duration(board.SampleTimeoutMS * float32(time.Millisecond)),
		armDelay:  10 * time.Millisecond,
		idleDelay: 100 * time.Millisecond,
	}
	a.waiter = signalWaiter{a}
	if a.timeout <= 0 {
		a.timeout = 2 * time.Millisecond
	}
	a.SetShuntConductance(cfg.Motor.ShuntConductance)

	a.Rotor = NewRotor(id, drv.Encoder, cfg.Encoder, a.period)
	a.Current.MaxModulation = cfg.Motor.MaxModulation
	a.updateMaxAllowedCurrent()

	m, err := anticogging.New(int(cfg.Encoder.CPR))
	if err != nil {
		// Anti-cogging needs a power-of-two CPR; the axis runs without it
		core.DebugPrintln("[AXIS" + core.FormatInt(id) + "] anticogging unavailable: " + err.Error())
		m = nil
	}
	if m != nil {
		m.PosThreshold = cfg.Anticogging.PosThreshold
		m.VelThreshold = cfg.Anticogging.VelThreshold
		m.Harmonics = make([]anticogging.Harmonic, anticogging.NumHarmonics)
		copy(m.Harmonics, cfg.Anticogging.Harmonics)
		if hasHarmonics(m.Harmonics) {
			m.Decompress(m.Harmonics)
		}
		a.Anticogging = m
	}

	a.Ctrl = NewController(&a.Config.Controller, &a.Config.Trap, a.Anticogging, cfg.Encoder.CPR, a.period)

	if ResistanceInRange(cfg.Motor.PhaseResistance) && InductanceInRange(cfg.Motor.PhaseInductance) {
		a.PhaseResistance = cfg.Motor.PhaseResistance
		a.PhaseInductance = cfg.Motor.PhaseInductance
		a.applyCurrentGains()
		if kp, ki, e := PLLGains(cfg.Encoder.PLLBandwidth, a.period); e == ErrNone {
			a.Rotor.PLLKp, a.Rotor.PLLKi = kp, ki
			a.selftestOK.Store(true)
		}
	}
	return a, nil
}

func hasHarmonics(h []anticogging.Harmonic) bool {
	for _, x := range h {
		if x.Index > 0 {
			return true
		}
	}
	return false
}

// SetWaiter replaces the sample waiter. Must be called before Run.
func (a *Axis) SetWaiter(w SampleWaiter) {
	a.waiter = w
}

// SetDelays overrides the arming and idle sleeps of the axis thread.
func (a *Axis) SetDelays(arm, idle time.Duration) {
	a.armDelay = arm
	a.idleDelay = idle
}

type signalWaiter struct{ a *Axis }

func (w signalWaiter) WaitSample(_ int, timeout time.Duration) bool {
	return w.a.ready.Wait(timeout)
}

func (a *Axis) waitSample() bool {
	return a.waiter.WaitSample(a.ID, a.timeout)
}

// Ready returns the signal raised when a new sample is published.
func (a *Axis) Ready() *core.Signal {
	return a.ready
}

// Sample returns the latest published phase currents.
func (a *Axis) Sample() (phB, phC float32) {
	v := a.sample.Load()
	return math.Float32frombits(uint32(v)), math.Float32frombits(uint32(v >> 32))
}

// publishSample stores a complete sample pair and wakes the thread.
func (a *Axis) publishSample(phB, phC float32) {
	a.sample.Store(uint64(math.Float32bits(phB)) | uint64(math.Float32bits(phC))<<32)
	a.ready.Raise()
}

// Published returns the number of samples handed to the axis thread.
func (a *Axis) Published() uint32 {
	return a.ready.Raised()
}

// DCOffsets returns the filtered zero-current readings of phase B and C.
func (a *Axis) DCOffsets() (phB, phC float32) {
	return math.Float32frombits(a.dcCal[0].Load()), math.Float32frombits(a.dcCal[1].Load())
}

func (a *Axis) dcOffset(phase int) float32 {
	return math.Float32frombits(a.dcCal[phase].Load())
}

func (a *Axis) setDCOffset(phase int, v float32) {
	a.dcCal[phase].Store(math.Float32bits(v))
}

// ShuntConductance returns the shunt conductance [1/ohm].
func (a *Axis) ShuntConductance() float32 {
	return math.Float32frombits(a.shuntCond.Load())
}

// SetShuntConductance updates the conductance used to scale samples.
func (a *Axis) SetShuntConductance(g float32) {
	a.shuntCond.Store(math.Float32bits(g))
	a.Config.Motor.ShuntConductance = g
	a.updateMaxAllowedCurrent()
}

// updateMaxAllowedCurrent derives the measurable current from the amplifier
// range, keeping some margin to the rails.
func (a *Axis) updateMaxAllowedCurrent() {
	if a.drv.Gate == nil {
		return
	}
	gain := a.drv.Gate.ShuntGain(a.ID)
	if !validShuntGain(gain) {
		a.Current.MaxAllowedCurrent = 0
		return
	}
	fullScale := adcVoltageMid / float32(gain) * a.ShuntConductance()
	a.Current.MaxAllowedCurrent = 0.98 * fullScale
}

func (a *Axis) applyCurrentGains() {
	bw := a.Config.Motor.CurrentControlBandwidth
	a.Current.PGain = bw * a.PhaseInductance
	a.Current.IGain = (a.PhaseResistance / a.PhaseInductance) * a.Current.PGain
}

// Errors returns every fault raised since the last clear.
func (a *Axis) Errors() Error {
	return Error(a.err.Load())
}

// SetError raises fault flags. Safe from any context.
func (a *Axis) SetError(e Error) {
	if e == ErrNone {
		return
	}
	a.err.Or(uint32(e))
	core.RecordTiming(core.EvtAxisFault, uint8(a.ID), core.GetTime(), uint32(e), 0)
}

// ClearErrors drops every fault flag.
func (a *Axis) ClearErrors() {
	a.err.Store(0)
}

// Enabled reports whether closed-loop control is requested.
func (a *Axis) Enabled() bool {
	return a.enabled.Load()
}

// Enable requests closed-loop control. The thread arms once the self-test
// has passed.
func (a *Axis) Enable() {
	a.enabled.Store(true)
}

// Disable stops control and turns the bridge off. Safe from any context.
func (a *Axis) Disable() {
	a.enabled.Store(false)
	if a.drv.Inverter != nil {
		a.drv.Inverter.SetOutputs(a.ID, false)
	}
}

// SelftestOK reports whether calibration has passed.
func (a *Axis) SelftestOK() bool {
	return a.selftestOK.Load()
}

// RequestSelfTest asks the axis thread to run calibration.
func (a *Axis) RequestSelfTest() {
	a.doSelftest.Store(true)
}

// Running reports whether the axis thread is alive.
func (a *Axis) Running() bool {
	return a.running.Load()
}

// Post queues fn to run on the axis thread at the start of its next cycle.
// It returns false if the mailbox is full.
func (a *Axis) Post(fn func(*Axis)) bool {
	select {
	case a.mailbox <- fn:
		return true
	default:
		return false
	}
}

func (a *Axis) drainMailbox() {
	for {
		select {
		case fn := <-a.mailbox:
			fn(a)
		default:
			return
		}
	}
}

// checkTiming returns how far into the control period the timings were
// committed, counting the down-phase as the second half.
func (a *Axis) checkTiming() uint16 {
	cnt, down := a.drv.Inverter.Counter(a.ID)
	timing := cnt
	if down {
		timing = core.PeriodClocks + (core.PeriodClocks - cnt)
	}
	a.timingLog.record(timing)
	return timing
}

// checkDeadline raises fault if the commit came too late.
func (a *Axis) checkDeadline(fault Error) Error {
	timing := a.checkTiming()
	if !(timing < a.deadline) {
		a.SetError(fault)
		core.RecordTiming(core.EvtDeadlineMiss, uint8(a.ID), core.GetTime(), uint32(timing), uint32(a.deadline))
		return fault
	}
	return ErrNone
}

// TimingLog returns the logged counter readings, oldest first.
func (a *Axis) TimingLog() []uint16 {
	return a.timingLog.snapshot()
}

// LastTiming returns the most recent counter reading.
func (a *Axis) LastTiming() uint16 {
	return a.timingLog.last()
}

type timingLog struct {
	next    atomic.Uint32
	entries [TimingLogSize]atomic.Uint32
}

func (l *timingLog) record(t uint16) {
	i := l.next.Add(1) - 1
	l.entries[i%TimingLogSize].Store(uint32(t))
}

func (l *timingLog) last() uint16 {
	n := l.next.Load()
	if n == 0 {
		return 0
	}
	return uint16(l.entries[(n-1)%TimingLogSize].Load())
}

func (l *timingLog) snapshot() []uint16 {
	n := l.next.Load()
	count := n
	if count > TimingLogSize {
		count = TimingLogSize
	}
	out := make([]uint16, 0, count)
	for i := n - count; i != n; i++ {
		out = append(out, uint16(l.entries[i%TimingLogSize].Load()))
	}
	return out
}
