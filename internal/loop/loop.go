// Package loop provides a single-threaded event loop with cancellable timers.
//
// Every callback handed to a Loop runs on the loop's own goroutine, one at a
// time, so state owned by those callbacks needs no locking.
package loop

import (
	"context"
	"sync"
	"time"
)

// Loop runs posted work and timer callbacks sequentially.
type Loop interface {
	// Now returns the loop's notion of the current time.
	Now() time.Time
	// Post queues fn to run on the loop as soon as possible.
	Post(fn func())
	// AfterFunc runs fn on the loop once d has elapsed.
	AfterFunc(d time.Duration, fn func()) Timer
	// Every runs fn on the loop each time d elapses until the timer is stopped.
	Every(d time.Duration, fn func()) Timer
}

// Timer is a handle to a pending callback.
type Timer interface {
	// Stop cancels the timer. It reports whether the timer was still active.
	// A stopped timer never runs its callback afterwards, even if it was due.
	Stop() bool
}

// RealLoop is a Loop backed by the runtime's monotonic clock.
type RealLoop struct {
	queue chan func()
	done  chan struct{}
	once  sync.Once
}

// New creates a loop. Callbacks only run while Run is active.
func New() *RealLoop {
	return &RealLoop{
		queue: make(chan func(), 256),
		done:  make(chan struct{}),
	}
}

// Now returns time.Now, which carries a monotonic reading.
func (l *RealLoop) Now() time.Time {
	return time.Now()
}

// Post queues fn. Posting after Run has returned drops fn.
func (l *RealLoop) Post(fn func()) {
	select {
	case l.queue <- fn:
	case <-l.done:
	}
}

// AfterFunc schedules fn after d.
func (l *RealLoop) AfterFunc(d time.Duration, fn func()) Timer {
	t := &realTimer{loop: l}
	t.timer = time.AfterFunc(d, func() {
		l.Post(func() {
			if t.fire() {
				fn()
			}
		})
	})
	return t
}

// Every schedules fn every d.
func (l *RealLoop) Every(d time.Duration, fn func()) Timer {
	t := &realTicker{ticker: time.NewTicker(d), stop: make(chan struct{})}
	go func() {
		for {
			select {
			case <-t.stop:
				return
			case <-l.done:
				return
			case <-t.ticker.C:
				l.Post(func() {
					if t.active() {
						fn()
					}
				})
			}
		}
	}()
	return t
}

// Run executes queued callbacks until ctx is cancelled.
func (l *RealLoop) Run(ctx context.Context) {
	defer l.once.Do(func() { close(l.done) })
	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-l.queue:
			fn()
		}
	}
}

type realTimer struct {
	loop    *RealLoop
	timer   *time.Timer
	mu      sync.Mutex
	stopped bool
	fired   bool
}

// fire marks the timer as fired and reports whether the callback may run.
func (t *realTimer) fire() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.fired = true
	return true
}

func (t *realTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	wasActive := !t.stopped && !t.fired
	t.stopped = true
	t.timer.Stop()
	return wasActive
}

type realTicker struct {
	ticker  *time.Ticker
	stop    chan struct{}
	mu      sync.Mutex
	stopped bool
}

func (t *realTicker) active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.stopped
}

func (t *realTicker) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return false
	}
	t.stopped = true
	t.ticker.Stop()
	close(t.stop)
	return true
}
