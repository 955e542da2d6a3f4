package loop

import (
	"sort"
	"sync"
	"time"
)

// Manual is a Loop driven by a virtual clock. Nothing runs until the caller
// invokes RunPending or Advance, which makes timing behaviour deterministic.
type Manual struct {
	mu     sync.Mutex
	now    time.Time
	seq    uint64
	posted []func()
	timers []*manualTimer
}

// NewManual creates a virtual loop whose clock starts at start.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

// Now returns the virtual time.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Post queues fn for the next RunPending or Advance.
func (m *Manual) Post(fn func()) {
	m.mu.Lock()
	m.posted = append(m.posted, fn)
	m.mu.Unlock()
}

// AfterFunc schedules fn at Now()+d.
func (m *Manual) AfterFunc(d time.Duration, fn func()) Timer {
	return m.add(d, 0, fn)
}

// Every schedules fn at each multiple of d from Now().
func (m *Manual) Every(d time.Duration, fn func()) Timer {
	if d <= 0 {
		d = time.Nanosecond
	}
	return m.add(d, d, fn)
}

func (m *Manual) add(d, period time.Duration, fn func()) *manualTimer {
	if d < 0 {
		d = 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	t := &manualTimer{m: m, due: m.now.Add(d), period: period, seq: m.seq, fn: fn}
	m.timers = append(m.timers, t)
	return t
}

// Pending returns the number of active timers.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}

// RunPending runs posted callbacks and timers that are already due, without
// moving the clock.
func (m *Manual) RunPending() {
	m.Advance(0)
}

// Advance moves the clock forward by d, running every posted callback and
// every timer that falls due along the way in deadline order.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()

	for {
		m.drainPosted()

		m.mu.Lock()
		t := m.nextDue(target)
		if t == nil {
			m.now = target
			m.mu.Unlock()
			if m.hasPosted() {
				continue
			}
			return
		}
		m.now = t.due
		if t.period > 0 {
			m.seq++
			t.due = t.due.Add(t.period)
			t.seq = m.seq
		} else {
			m.remove(t)
		}
		m.mu.Unlock()

		t.fn()
	}
}

func (m *Manual) hasPosted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.posted) > 0
}

func (m *Manual) drainPosted() {
	for {
		m.mu.Lock()
		if len(m.posted) == 0 {
			m.mu.Unlock()
			return
		}
		fn := m.posted[0]
		m.posted = m.posted[1:]
		m.mu.Unlock()
		fn()
	}
}

// nextDue returns the earliest timer due at or before target. Must be called with mu held.
func (m *Manual) nextDue(target time.Time) *manualTimer {
	if len(m.timers) == 0 {
		return nil
	}
	sort.SliceStable(m.timers, func(i, j int) bool {
		a, b := m.timers[i], m.timers[j]
		if a.due.Equal(b.due) {
			return a.seq < b.seq
		}
		return a.due.Before(b.due)
	})
	if t := m.timers[0]; !t.due.After(target) {
		return t
	}
	return nil
}

// remove drops t from the active set. Must be called with mu held.
func (m *Manual) remove(t *manualTimer) bool {
	for i, other := range m.timers {
		if other == t {
			m.timers = append(m.timers[:i], m.timers[i+1:]...)
			return true
		}
	}
	return false
}

type manualTimer struct {
	m      *Manual
	due    time.Time
	period time.Duration
	seq    uint64
	fn     func()
}

func (t *manualTimer) Stop() bool {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	return t.m.remove(t)
}
