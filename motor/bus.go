package motor

import (
	"math"
	"sync/atomic"

	"bldc/core"
)

// Vbus sense divider: 3.3 V reference, 1:11 divider, 12-bit ADC
const vbusVoltageScale = 3.3 * 11.0 / 4096.0

// Bus is the shared DC bus: the sensed bus voltage and the brake chopper
// driven from the sum of every active axis' bus current.
//
// Aggregation does not depend on which axis finishes its cycle last: each
// axis writes its own slot and sets its bit in a pending mask; the report
// that completes the mask of active axes claims the cycle and computes the
// sum exactly once.
type Bus struct {
	vbus    atomic.Uint32 // float32 bits, written by the vbus ADC ISR
	ibus    [NumAxes]atomic.Uint32
	pending atomic.Uint32
	active  atomic.Uint32
	sum     atomic.Uint32 // last aggregated sum, float32 bits
	writing atomic.Bool

	brake       core.BrakeDriver
	resistance  float32
	period      uint16
	deadtime    uint16
	underVolt   float32
	overVolt    float32
	updateCount atomic.Uint32
}

// NewBus creates the bus with a nominal voltage until the first sample.
func NewBus(brake core.BrakeDriver, cfg BoardConfig) *Bus {
	b := &Bus{
		brake:      brake,
		resistance: cfg.BrakeResistance,
		period:     core.BrakePeriodClocks,
		deadtime:   core.BrakeDeadtimeClocks,
		underVolt:  cfg.UnderVoltageTrip,
		overVolt:   cfg.OverVoltageTrip,
	}
	// Arbitrary non-zero initial value to avoid division by zero if the ADC is late
	b.SetVoltage(12.0)
	return b
}

// SenseVoltage is the vbus ADC completion callback.
func (b *Bus) SenseVoltage(raw uint16) {
	b.SetVoltage(float32(raw) * vbusVoltageScale)
}

// SetVoltage stores the bus voltage.
func (b *Bus) SetVoltage(v float32) {
	b.vbus.Store(math.Float32bits(v))
}

// Voltage returns the last sensed bus voltage.
func (b *Bus) Voltage() float32 {
	return math.Float32frombits(b.vbus.Load())
}

// CheckVoltage returns the trip error for the current bus voltage.
func (b *Bus) CheckVoltage() Error {
	v := b.Voltage()
	if v < b.underVolt {
		return ErrDCBusUnderVoltage
	}
	if v > b.overVolt {
		return ErrDCBusOverVoltage
	}
	return ErrNone
}

// Activate adds an axis to the set whose bus current is aggregated.
func (b *Bus) Activate(axis int) {
	bit := uint32(1) << uint(axis)
	b.ibus[axis].Store(0)
	b.active.Or(bit)
}

// Deactivate removes an axis from the aggregate and zeroes its share.
func (b *Bus) Deactivate(axis int) {
	bit := uint32(1) << uint(axis)
	b.active.And(^bit)
	b.pending.And(^bit)
	b.ibus[axis].Store(0)
}

// Report records an axis' bus current for this cycle. When every active axis
// has reported, exactly one caller aggregates and updates the brake.
func (b *Bus) Report(axis int, ibus float32) {
	bit := uint32(1) << uint(axis)
	b.ibus[axis].Store(math.Float32bits(ibus))

	p := b.pending.Or(bit) | bit
	act := b.active.Load()
	if act == 0 || p&act != act {
		return
	}
	if !b.pending.CompareAndSwap(p, 0) {
		// Another axis claimed the cycle
		return
	}

	var sum float32
	for i := 0; i < NumAxes; i++ {
		if act&(1<<uint(i)) != 0 {
			sum += math.Float32frombits(b.ibus[i].Load())
		}
	}
	b.sum.Store(math.Float32bits(sum))
	b.updateCount.Add(1)
	b.UpdateBrake(-sum)
}

// Sum returns the last aggregated bus current.
func (b *Bus) Sum() float32 {
	return math.Float32frombits(b.sum.Load())
}

// Updates returns how many aggregated brake updates have been made.
func (b *Bus) Updates() uint32 {
	return b.updateCount.Load()
}

// BrakeTimings converts a brake current to chopper compare values.
func (b *Bus) BrakeTimings(brakeCurrent float32) (lowOff, highOn uint16) {
	if brakeCurrent < 0 {
		brakeCurrent = 0
	}
	duty := brakeCurrent * b.resistance / b.Voltage()

	// Duty limit at 90% to allow bootstrap caps to charge
	if duty > 0.9 {
		duty = 0.9
	}
	high := int(float32(b.period) * (1.0 - duty))
	low := high - int(b.deadtime)
	if low < 0 {
		low = 0
	}
	return uint16(low), uint16(high)
}

// UpdateBrake drives the chopper for a brake current. Negative values are
// clipped to zero. Only one writer updates the chopper at a time; a
// concurrent update is skipped and the next cycle catches up.
func (b *Bus) UpdateBrake(brakeCurrent float32) {
	lowOff, highOn := b.BrakeTimings(brakeCurrent)

	if !b.writing.CompareAndSwap(false, true) {
		return
	}
	state := core.DisableInterrupts()
	// Reset to the safe state first so no instant has both switches on
	b.brake.SetBrake(0, b.period+1)
	b.brake.SetBrake(lowOff, highOn)
	core.RestoreInterrupts(state)
	b.writing.Store(false)
}
