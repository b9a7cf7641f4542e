// Package control arbitrates between the independent sources that can end a
// recording: manual stop, cancel, silence timeout and the hard cap timer.
package control

import (
	"context"
	"sync"
	"time"
)

// Reason says why a recording stopped. Larger values take precedence when
// several reasons are offered in the same resolution.
type Reason int

const (
	None Reason = iota
	HardCap
	SilenceTimeout
	ManualStop
	Cancel
)

func (r Reason) String() string {
	switch r {
	case None:
		return "none"
	case HardCap:
		return "hard_cap"
	case SilenceTimeout:
		return "silence_timeout"
	case ManualStop:
		return "manual_stop"
	case Cancel:
		return "cancel"
	default:
		return "unknown"
	}
}

// Signal is a single-assignment stop reason. The first resolution wins and
// every later attempt is a no-op. Safe for concurrent use.
type Signal struct {
	mu     sync.Mutex
	reason Reason
	done   chan struct{}
	timers []*time.Timer
}

// New returns an unresolved Signal.
func New() *Signal {
	return &Signal{done: make(chan struct{})}
}

// Fire offers a single reason. It reports whether this call set the reason.
func (s *Signal) Fire(r Reason) bool {
	_, won := s.Resolve(r)
	return won
}

// Resolve offers every reason that became true in one evaluation. The
// highest-precedence candidate is recorded if nothing has won yet. It returns
// the reason now in effect and whether this call set it.
func (s *Signal) Resolve(candidates ...Reason) (Reason, bool) {
	best := None
	for _, c := range candidates {
		if c > best {
			best = c
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.reason != None || best == None {
		return s.reason, false
	}
	s.reason = best
	close(s.done)
	s.stopTimersLocked()
	return best, true
}

// After registers a timer that fires r once d has elapsed. Timers are
// released as soon as any reason wins.
func (s *Signal) After(d time.Duration, r Reason) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.reason != None {
		return
	}
	s.timers = append(s.timers, time.AfterFunc(d, func() { s.Fire(r) }))
}

// Done is closed once a reason has been set.
func (s *Signal) Done() <-chan struct{} {
	return s.done
}

// Reason returns the winning reason, or None.
func (s *Signal) Reason() Reason {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

// Fired reports whether a reason has been set.
func (s *Signal) Fired() bool {
	return s.Reason() != None
}

// Wait blocks until a reason is set or ctx ends.
func (s *Signal) Wait(ctx context.Context) (Reason, error) {
	select {
	case <-s.done:
		return s.Reason(), nil
	case <-ctx.Done():
		return None, ctx.Err()
	}
}

// Close stops pending timers without setting a reason.
func (s *Signal) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopTimersLocked()
}

func (s *Signal) stopTimersLocked() {
	for _, t := range s.timers {
		t.Stop()
	}
	s.timers = nil
}
