//go:build rp2040

package main

import (
	"context"
	"device/rp"
	"machine"
	"runtime/interrupt"
	"time"

	"bldc/core"
	"bldc/motor"
)

var (
	board       *motor.Board
	wrapHandler pwmWrapHandler

	vbusTimer    core.Timer
	monitorTimer core.Timer
)

// encoderCPR is the count of the 256-line encoders fitted to this board.
// The anti-cogging transform scratch grows with it (about 70 KB at 1024
// counts during a sweep), which bounds it on 264 KB of SRAM.
const encoderCPR = 1024

// Sampling intervals of the background tasks, in microseconds
const (
	vbusIntervalUS    = 1000
	monitorIntervalUS = 100000
)

func main() {
	// Disable watchdog on boot to clear any previous state
	if err := machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 0}); err != nil {
		return
	}

	machine.Serial.Configure(machine.UARTConfig{BaudRate: 115200})
	core.SetDebugWriter(func(s string) {
		machine.Serial.Write([]byte(s))
		machine.Serial.Write([]byte("\r\n"))
	})
	core.SetDebugEnabled(true)
	core.InitAsyncDebug()

	InitClock()

	inverter, err := NewRP2040Inverter()
	if err != nil {
		halt("inverter: " + err.Error())
	}
	brake, err := NewPIOBrake(0, 0, machine.GPIO20)
	if err != nil {
		halt("brake: " + err.Error())
	}
	adc := NewRP2040CurrentADC()
	vbusADC.Configure(machine.ADCConfig{})

	core.SetADCDriver(adc)
	core.SetInverterDriver(inverter)
	core.SetBrakeDriver(brake)
	core.SetEncoderDriver(NewQuadratureEncoders())
	core.SetGateDriver(NewGateDriver())

	cfg := motor.DefaultBoardConfig()
	for i := range cfg.Axes {
		cfg.Axes[i].Encoder.CPR = encoderCPR
	}
	board, err = motor.NewBoard(cfg, motor.RegisteredHardware())
	if err != nil {
		halt("board: " + err.Error())
	}
	adc.SetHandler(board.Sequencer.OnConversion)
	core.OnShutdown(func(reason string) {
		board.DisableAll()
	})

	wrapHandler.adc = adc
	interrupt.New(rp.IRQ_PWM_IRQ_WRAP, onPWMWrap).Enable()
	enableWrapInterrupts()

	setupMonitor()
	scheduleBackground()

	board.Start(context.Background())

	dumped := false
	for {
		UpdateSystemTime()
		core.ProcessTimers()

		if core.IsShutdown() && !dumped {
			core.DumpTimingRing()
			dumped = true
		}
		time.Sleep(100 * time.Microsecond)
	}
}

func onPWMWrap(interrupt.Interrupt) {
	wrapHandler.handle()
}

// scheduleBackground starts the bus voltage sampler and the monitor line.
func scheduleBackground() {
	now := core.GetTime()

	vbusTimer = core.Timer{
		WakeTime: now + core.TimerFromUS(vbusIntervalUS),
		Handler: func(t *core.Timer) uint8 {
			// The current conversions share the ADC
			state := core.DisableInterrupts()
			raw := readVbus()
			core.RestoreInterrupts(state)

			board.Bus.SenseVoltage(raw)
			t.WakeTime += core.TimerFromUS(vbusIntervalUS)
			return core.SF_RESCHEDULE
		},
	}
	core.ScheduleTimer(&vbusTimer)

	monitorTimer = core.Timer{
		WakeTime: now + core.TimerFromUS(monitorIntervalUS),
		Handler: func(t *core.Timer) uint8 {
			board.Params.WriteMonitor(core.MonitorSlots)
			t.WakeTime += core.TimerFromUS(monitorIntervalUS)
			return core.SF_RESCHEDULE
		},
	}
	core.ScheduleTimer(&monitorTimer)
}

// Default monitor columns
var monitorParams = []string{
	"vbus_voltage",
	"ibus",
	"axis0.error",
	"axis0.Iq",
	"axis0.pll_vel",
	"axis1.error",
	"axis1.Iq",
	"axis1.pll_vel",
}

func setupMonitor() {
	for slot, name := range monitorParams {
		idx, ok := board.Params.Lookup(name)
		if !ok {
			continue
		}
		board.Params.SetMonitor(slot, idx)
	}
}

func halt(msg string) {
	core.DebugPrintln("[HALT] " + msg)
	for {
		time.Sleep(time.Second)
	}
}
