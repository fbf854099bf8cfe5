package motor

import (
	"testing"

	"bldc/core"
)

// convert delivers one simultaneous conversion of both units.
func convert(s *Sequencer, trig core.ADCTrigger, rawB, rawC uint16) {
	s.OnConversion(core.ADCUnitB, trig, rawB)
	s.OnConversion(core.ADCUnitC, trig, rawC)
}

func expectedCurrent(raw uint16) float32 {
	return float32(int(raw)-adcMidpoint) * adcVoltsPerLSB / 40 * 2000
}

func TestSequencerPublishesOncePerCycle(t *testing.T) {
	b, hw := newTestBoard(t)
	s := b.Sequencer

	period := []core.ADCTrigger{
		core.TrigAxis0Current,
		core.TrigAxis1Current,
		core.TrigAxis0DCCal,
		core.TrigAxis1DCCal,
	}
	// Samples each trigger hands to axis 0 and axis 1
	gives := map[core.ADCTrigger][NumAxes]uint32{
		core.TrigAxis0Current: {1, 0},
		core.TrigAxis1Current: {0, 1},
		core.TrigAxis0DCCal:   {0, 0},
		core.TrigAxis1DCCal:   {0, 0},
	}
	for cycle := 0; cycle < 3; cycle++ {
		for _, trig := range period {
			var before [NumAxes]uint32
			for i, a := range b.Axes {
				before[i] = a.Published()
			}
			convert(s, trig, 2148, 1948)
			for i, a := range b.Axes {
				if got := a.Published() - before[i]; got != gives[trig][i] {
					t.Fatalf("cycle %d trigger %d: axis %d got %d samples, want %d",
						cycle, trig, i, got, gives[trig][i])
				}
			}
		}
		for _, a := range b.Axes {
			if n := a.Published(); n != uint32(cycle+1) {
				t.Fatalf("cycle %d: axis %d published %d samples", cycle, a.ID, n)
			}
			if !a.Ready().TryWait() {
				t.Fatalf("cycle %d: axis %d not signalled", cycle, a.ID)
			}
		}
	}

	for _, a := range b.Axes {
		if e := a.Errors(); e != ErrNone {
			t.Errorf("axis %d errors: %v", a.ID, e)
		}
	}
	if n := s.Conversions(); n != 24 {
		t.Errorf("conversions = %d", n)
	}

	// Only unit B loads timings: two axes, three periods
	hw.mu.Lock()
	defer hw.mu.Unlock()
	if len(hw.loads) != 6 {
		t.Errorf("timing loads = %d, want 6", len(hw.loads))
	}
	if hw.loads[0].axis != 1 || hw.loads[1].axis != 0 {
		t.Errorf("load order %v", hw.loads[:2])
	}
}

func TestSequencerSubtractsDCOffset(t *testing.T) {
	b, _ := newTestBoard(t)
	s := b.Sequencer
	a := b.Axes[0]

	// One DC conversion moves the offset by T/tau of the error
	convert(s, core.TrigAxis0DCCal, 2148, 1948)
	k := core.ControlPeriod / b.Config.DCCalTau
	dcB, dcC := a.DCOffsets()
	if !approx(dcB, expectedCurrent(2148)*k, 1e-6) || !approx(dcC, expectedCurrent(1948)*k, 1e-6) {
		t.Fatalf("offsets = %v, %v", dcB, dcC)
	}

	convert(s, core.TrigAxis0Current, 2148, 1948)
	phB, phC := a.Sample()
	if !approx(phB, expectedCurrent(2148)-dcB, 1e-5) || !approx(phC, expectedCurrent(1948)-dcC, 1e-5) {
		t.Errorf("sample = %v, %v", phB, phC)
	}
	if b.Axes[1].Ready().TryWait() {
		t.Error("axis 1 signalled by axis 0 sample")
	}
}

func TestSequencerRearmsUnits(t *testing.T) {
	b, hw := newTestBoard(t)
	s := b.Sequencer

	tests := []struct {
		trig core.ADCTrigger
		next core.ADCTrigger
		chB  core.ADCChannel
		chC  core.ADCChannel
		dc   [NumAxes]bool
	}{
		{core.TrigAxis0Current, core.TrigAxis1Current, 13, 12, [NumAxes]bool{true, false}},
		{core.TrigAxis1Current, core.TrigAxis0DCCal, 10, 11, [NumAxes]bool{true, true}},
		{core.TrigAxis0DCCal, core.TrigAxis1DCCal, 13, 12, [NumAxes]bool{false, true}},
		{core.TrigAxis1DCCal, core.TrigAxis0Current, 10, 11, [NumAxes]bool{false, false}},
	}
	for _, tt := range tests {
		hw.mu.Lock()
		hw.arms = nil
		hw.mu.Unlock()

		convert(s, tt.trig, adcMidpoint, adcMidpoint)

		hw.mu.Lock()
		want := []armCall{
			{core.ADCUnitB, tt.next, tt.chB},
			{core.ADCUnitC, tt.next, tt.chC},
		}
		if len(hw.arms) != 2 || hw.arms[0] != want[0] || hw.arms[1] != want[1] {
			t.Errorf("trigger %d: arms %v, want %v", tt.trig, hw.arms, want)
		}
		if hw.dcCal != tt.dc {
			t.Errorf("trigger %d: DC cal switches %v, want %v", tt.trig, hw.dcCal, tt.dc)
		}
		hw.mu.Unlock()
	}
}

func TestSequencerInvalidGain(t *testing.T) {
	b, hw := newTestBoard(t)
	a := b.Axes[1]
	a.selftestOK.Store(true)
	a.Enable()
	hw.gain[1] = 30

	convert(b.Sequencer, core.TrigAxis1Current, 2148, 1948)

	if !a.Errors().Has(ErrGateDriverInvalidGain) {
		t.Errorf("errors = %v", a.Errors())
	}
	if a.Enabled() || a.SelftestOK() {
		t.Error("axis still armed")
	}
	if a.Ready().TryWait() {
		t.Error("sample published with invalid gain")
	}
	if b.Axes[0].Errors() != ErrNone {
		t.Error("fault leaked to axis 0")
	}
}

func TestSequencerFaults(t *testing.T) {
	tests := []struct {
		name string
		unit core.ADCUnit
		trig core.ADCTrigger
		want Error
	}{
		{"unknown unit", 1, core.TrigAxis0Current, ErrADCFailed},
		{"unknown trigger", core.ADCUnitB, core.TrigNone, ErrPWMSrcFail},
		{"trigger out of range", core.ADCUnitC, 9, ErrPWMSrcFail},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer core.ClearShutdown()
			b, hw := newTestBoard(t)
			for _, a := range b.Axes {
				a.Enable()
			}

			b.Sequencer.OnConversion(tt.unit, tt.trig, adcMidpoint)

			for _, a := range b.Axes {
				if !a.Errors().Has(tt.want) {
					t.Errorf("axis %d errors = %v, want %v", a.ID, a.Errors(), tt.want)
				}
				if a.Enabled() {
					t.Errorf("axis %d still enabled", a.ID)
				}
			}
			if !core.IsShutdown() {
				t.Error("no shutdown")
			}
			hw.mu.Lock()
			if len(hw.arms) != 0 {
				t.Errorf("units re-armed after fault: %v", hw.arms)
			}
			hw.mu.Unlock()
		})
	}
}
