//go:build rp2040

package main

import (
	"machine"

	rp2pio "github.com/tinygo-org/pio/rp2-pio"

	"bldc/core"
)

// Brake chopper PIO program
// Command word format:
//
//	Bits 0-15:  high-side on time, in PIO cycles
//	Bits 16-31: off time, in PIO cycles
//
// Program flow:
//  1. Pull the next command, or reuse X when the FIFO is empty
//  2. Keep the command in X for the next period
//  3. Hold the brake switch on for the on time, then off for the off time
func buildBrakeProgram() []uint16 {
	asm := rp2pio.AssemblerV0{SidesetBits: 0}
	return []uint16{
		// .wrap_target
		asm.Pull(false, false).Encode(),                     // 0: pull noblock
		asm.Mov(rp2pio.MovDestX, rp2pio.MovSrcOSR).Encode(), // 1: mov x, osr
		asm.Out(rp2pio.OutDestY, 16).Encode(),               // 2: out y, 16 (on time)
		asm.Set(rp2pio.SetDestPins, 1).Encode(),             // 3: set pins, 1
		asm.Jmp(4, rp2pio.JmpYNZeroDec).Encode(),            // 4: jmp y--, 4
		asm.Set(rp2pio.SetDestPins, 0).Encode(),             // 5: set pins, 0
		asm.Out(rp2pio.OutDestY, 16).Encode(),               // 6: out y, 16 (off time)
		asm.Jmp(7, rp2pio.JmpYNZeroDec).Encode(),            // 7: jmp y--, 7
		// .wrap
	}
}

const brakePIOOrigin = 0

// PIO clock divider: one loop iteration per chopper clock
const brakeClkDiv = 4

// PIOBrake implements core.BrakeDriver: the resistor switch conducts from
// highOn to the end of the period.
type PIOBrake struct {
	pio     *rp2pio.PIO
	sm      rp2pio.StateMachine
	pin     machine.Pin
	offset  uint8
	running bool
}

// NewPIOBrake loads the chopper program on a state machine.
func NewPIOBrake(pioNum, smNum uint8, pin machine.Pin) (*PIOBrake, error) {
	pioHW := rp2pio.PIO0
	if pioNum != 0 {
		pioHW = rp2pio.PIO1
	}
	b := &PIOBrake{pio: pioHW, sm: pioHW.StateMachine(smNum), pin: pin}

	b.sm.TryClaim()
	program := buildBrakeProgram()
	offset, err := b.pio.AddProgram(program, brakePIOOrigin)
	if err != nil {
		return nil, err
	}
	b.offset = offset

	b.pin.Configure(machine.PinConfig{Mode: b.pio.PinMode()})

	cfg := rp2pio.DefaultStateMachineConfig()
	cfg.SetSetPins(b.pin, 1)
	cfg.SetOutShift(true, false, 32)
	cfg.SetWrap(offset+uint8(len(program))-1, offset)
	cfg.SetClkDivIntFrac(brakeClkDiv, 0)

	b.sm.Init(offset, cfg)
	b.sm.SetPindirsConsecutive(b.pin, 1, true)
	b.sm.SetPinsConsecutive(b.pin, 1, false)
	return b, nil
}

// SetBrake implements core.BrakeDriver. A high-side compare at or past the
// period stops the chopper with the switch open.
func (b *PIOBrake) SetBrake(lowOff, highOn uint16) {
	if highOn >= core.BrakePeriodClocks {
		b.sm.SetEnabled(false)
		b.sm.SetPinsConsecutive(b.pin, 1, false)
		b.running = false
		return
	}

	on := uint32(core.BrakePeriodClocks - highOn)
	off := uint32(highOn)
	if off == 0 {
		off = 1
	}
	if !b.sm.IsTxFIFOFull() {
		b.sm.TxPut(on | off<<16)
	}
	if !b.running {
		b.sm.SetEnabled(true)
		b.running = true
	}
}
