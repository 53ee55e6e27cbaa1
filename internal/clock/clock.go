package clock

import (
	"sort"
	"sync"
	"time"
)

// Scheduler runs callbacks after a delay. It exists so sidebar timers can be
// driven deterministically in tests.
type Scheduler interface {
	// AfterFunc calls fn once d has elapsed, on a goroutine of the
	// scheduler's choosing.
	AfterFunc(d time.Duration, fn func()) Timer
}

// Timer is a pending callback.
type Timer interface {
	// Stop prevents the callback from firing. It reports whether the call
	// stopped the timer, false if it already fired or was stopped.
	Stop() bool
}

// RealScheduler implements Scheduler with time.AfterFunc.
type RealScheduler struct{}

// AfterFunc wraps time.AfterFunc.
func (RealScheduler) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

// FakeScheduler fires callbacks only when Advance moves its clock past their
// deadline. Callbacks run synchronously inside Advance.
type FakeScheduler struct {
	mu      sync.Mutex
	now     time.Time
	pending []*fakeTimer
	seq     int
}

// NewFakeScheduler creates a FakeScheduler starting at t.
func NewFakeScheduler(t time.Time) *FakeScheduler {
	return &FakeScheduler{now: t}
}

type fakeTimer struct {
	s        *FakeScheduler
	deadline time.Time
	order    int
	fn       func()
	done     bool
}

// AfterFunc registers fn to run at now+d.
func (s *FakeScheduler) AfterFunc(d time.Duration, fn func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	t := &fakeTimer{s: s, deadline: s.now.Add(d), order: s.seq, fn: fn}
	s.pending = append(s.pending, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	return true
}

// Now returns the fake current time.
func (s *FakeScheduler) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

// Pending returns the number of timers that have neither fired nor stopped.
func (s *FakeScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.pending {
		if !t.done {
			n++
		}
	}
	return n
}

// Advance moves the clock forward by d and fires every due timer in
// deadline order.
func (s *FakeScheduler) Advance(d time.Duration) {
	s.mu.Lock()
	s.now = s.now.Add(d)
	var due, rest []*fakeTimer
	for _, t := range s.pending {
		switch {
		case t.done:
		case !t.deadline.After(s.now):
			t.done = true
			due = append(due, t)
		default:
			rest = append(rest, t)
		}
	}
	s.pending = rest
	s.mu.Unlock()

	sort.Slice(due, func(i, j int) bool {
		if due[i].deadline.Equal(due[j].deadline) {
			return due[i].order < due[j].order
		}
		return due[i].deadline.Before(due[j].deadline)
	})
	for _, t := range due {
		t.fn()
	}
}
