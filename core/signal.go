package core

import (
	"sync/atomic"
	"time"
)

// Signal is a binary "ready" flag raised from interrupt context and consumed
// by exactly one thread. Raising an already-raised flag is a no-op, so a
// consumer that falls behind sees one event, not a backlog.
type Signal struct {
	ch     chan struct{}
	timer  *time.Timer
	raised atomic.Uint32
}

// NewSignal allocates the flag and its wait timer up front so that waiting
// does not allocate on the control path.
func NewSignal() *Signal {
	t := time.NewTimer(time.Hour)
	t.Stop()
	return &Signal{
		ch:    make(chan struct{}, 1),
		timer: t,
	}
}

// Raise sets the flag. It never blocks.
func (s *Signal) Raise() {
	s.raised.Add(1)
	select {
	case s.ch <- struct{}{}:
	default:
		// Already pending
	}
}

// Raised returns how many times the flag has been raised, coalesced or not.
func (s *Signal) Raised() uint32 {
	return s.raised.Load()
}

// TryWait consumes the flag if it is set.
func (s *Signal) TryWait() bool {
	select {
	case <-s.ch:
		return true
	default:
		return false
	}
}

// Clear drops a pending flag.
func (s *Signal) Clear() {
	s.TryWait()
}

// Wait blocks until the flag is raised or the timeout expires.
// Only the consuming thread may call Wait.
func (s *Signal) Wait(timeout time.Duration) bool {
	if s.TryWait() {
		return true
	}

	s.timer.Reset(timeout)
	select {
	case <-s.ch:
		s.timer.Stop()
		return true
	case <-s.timer.C:
		return false
	}
}
