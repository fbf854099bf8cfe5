package core

import "testing"

func TestTimerDispatchOrder(t *testing.T) {
	ResetTimers()
	SetTime(0)
	defer ResetTimers()

	var fired []int
	mk := func(id int, wake uint32) *Timer {
		return &Timer{
			WakeTime: wake,
			Handler: func(*Timer) uint8 {
				fired = append(fired, id)
				return SF_DONE
			},
		}
	}
	ScheduleTimer(mk(3, 300))
	ScheduleTimer(mk(1, 100))
	ScheduleTimer(mk(2, 200))
	ScheduleTimer(mk(4, 200)) // same wake time fires after 2

	SetTime(250)
	ProcessTimers()
	want := []int{1, 2, 4}
	if len(fired) != len(want) {
		t.Fatalf("fired %v, want %v", fired, want)
	}
	for i := range want {
		if fired[i] != want[i] {
			t.Errorf("fired %v, want %v", fired, want)
			break
		}
	}

	SetTime(300)
	ProcessTimers()
	if len(fired) != 4 || fired[3] != 3 {
		t.Errorf("fired %v after 300", fired)
	}
}

func TestTimerReschedule(t *testing.T) {
	ResetTimers()
	SetTime(0)
	defer ResetTimers()

	count := 0
	timer := &Timer{
		WakeTime: 10,
		Handler: func(tm *Timer) uint8 {
			count++
			tm.WakeTime += 10
			return SF_RESCHEDULE
		},
	}
	ScheduleTimer(timer)

	for now := uint32(0); now <= 100; now += 5 {
		SetTime(now)
		ProcessTimers()
	}
	if count != 10 {
		t.Errorf("periodic timer fired %d times, want 10", count)
	}
}

func TestTimerWrap(t *testing.T) {
	ResetTimers()
	defer ResetTimers()

	fired := false
	start := uint32(0xFFFFFF00)
	SetTime(start)
	ScheduleTimer(&Timer{
		WakeTime: start + 0x200, // past the wrap
		Handler: func(*Timer) uint8 {
			fired = true
			return SF_DONE
		},
	})

	SetTime(start + 0x100)
	ProcessTimers()
	if fired {
		t.Fatal("timer fired early across the wrap")
	}
	SetTime(start + 0x200)
	ProcessTimers()
	if !fired {
		t.Error("timer did not fire after the wrap")
	}
}

func TestTimerFromUS(t *testing.T) {
	if got := TimerFromUS(1000); got != TimerFreq/1000 {
		t.Errorf("TimerFromUS(1000) = %d", got)
	}
	if ControlHz != 8000 {
		t.Errorf("ControlHz = %d, want 8000", ControlHz)
	}
}
