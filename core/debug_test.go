package core

import (
	"strings"
	"testing"
)

func TestTimingRingKeepsLatest(t *testing.T) {
	ClearTimingRing()
	defer ClearTimingRing()

	for i := 0; i < TimingRingSize+5; i++ {
		RecordTiming(EvtDeadlineMiss, 0, uint32(i), uint32(i), 3500)
	}
	evts := TimingEvents()
	if len(evts) != TimingRingSize {
		t.Fatalf("got %d events, want %d", len(evts), TimingRingSize)
	}
	if evts[0].Clock != 5 || evts[len(evts)-1].Clock != TimingRingSize+4 {
		t.Errorf("ring spans clocks %d..%d", evts[0].Clock, evts[len(evts)-1].Clock)
	}
}

func TestDumpTimingRing(t *testing.T) {
	ClearTimingRing()
	defer ClearTimingRing()

	var lines []string
	SetDebugWriter(func(s string) { lines = append(lines, s) })
	defer SetDebugWriter(func(string) {})

	RecordTiming(EvtGainFault, 1, 42, 30, 0)
	DumpTimingRing()

	if len(lines) != 3 {
		t.Fatalf("dump = %q", lines)
	}
	if want := "[TIMING] GAIN_FAULT oid=1 clock=42 v1=30 v2=0"; lines[1] != want {
		t.Errorf("event line = %q, want %q", lines[1], want)
	}
}

func TestDebugPrintlnGated(t *testing.T) {
	var got []string
	SetDebugWriter(func(s string) { got = append(got, s) })
	defer SetDebugWriter(func(string) {})
	defer SetDebugEnabled(IsDebugEnabled())

	SetDebugEnabled(false)
	DebugPrintln("hidden")
	SetDebugEnabled(true)
	DebugPrintln("shown")

	if strings.Join(got, ",") != "shown" {
		t.Errorf("printed %v", got)
	}
}
