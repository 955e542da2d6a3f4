// Package enginetest provides a scriptable engine whose sounds advance with
// a supplied clock, for testing code that drives an engine.Engine.
package enginetest

import (
	"sync"
	"time"

	"github.com/satindergrewal/panelcast/internal/engine"
)

// Op names a recorded engine call.
type Op string

const (
	OpCreate      Op = "create"
	OpPlay        Op = "play"
	OpSetPosition Op = "seek"
	OpStopAll     Op = "stopall"
)

// Call is one recorded engine call. URL and Pos are set where they apply.
type Call struct {
	Op  Op
	URL string
	Pos time.Duration
}

// Engine is a virtual engine. Sounds start out Loading unless AutoLoad is
// set; tests complete or fail loads explicitly.
type Engine struct {
	// AutoLoad makes new sounds Ready immediately.
	AutoLoad bool

	now func() time.Time

	mu        sync.Mutex
	ready     bool
	readyFns  []func()
	durations map[string]time.Duration
	sounds    map[string]*Sound
	order     []*Sound
	calls     []Call
}

// New creates an engine whose sounds read time from now.
func New(now func() time.Time) *Engine {
	return &Engine{
		now:       now,
		durations: make(map[string]time.Duration),
		sounds:    make(map[string]*Sound),
	}
}

// SetDuration sets the length of the sound that will be created for url.
func (e *Engine) SetDuration(url string, d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.durations[url] = d
}

// Init marks the engine initialized and runs OnReady subscribers.
func (e *Engine) Init() {
	e.mu.Lock()
	e.ready = true
	fns := e.readyFns
	e.readyFns = nil
	e.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (e *Engine) OnReady(fn func()) {
	e.mu.Lock()
	if !e.ready {
		e.readyFns = append(e.readyFns, fn)
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()
	fn()
}

func (e *Engine) CreateSound(id, url string) engine.Sound {
	e.mu.Lock()
	defer e.mu.Unlock()
	state := engine.Loading
	if e.AutoLoad {
		state = engine.Ready
	}
	s := &Sound{e: e, id: id, url: url, state: state, duration: e.durations[url]}
	e.sounds[url] = s
	e.order = append(e.order, s)
	e.calls = append(e.calls, Call{Op: OpCreate, URL: url})
	return s
}

func (e *Engine) StopAll() {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.now()
	for _, s := range e.order {
		s.advance(now)
		s.playing = false
	}
	e.calls = append(e.calls, Call{Op: OpStopAll})
}

// Sound returns the sound created for url, or nil.
func (e *Engine) Sound(url string) *Sound {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sounds[url]
}

// Calls returns a copy of the recorded calls.
func (e *Engine) Calls() []Call {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Call(nil), e.calls...)
}

// CallsOf returns the recorded calls with the given op.
func (e *Engine) CallsOf(op Op) []Call {
	var out []Call
	for _, c := range e.Calls() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// ResetCalls clears the call log.
func (e *Engine) ResetCalls() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = nil
}

// Sound is a virtual sound. While playing its position advances with the
// engine clock; reaching the duration stops it.
type Sound struct {
	e        *Engine
	id, url  string
	state    engine.ReadyState
	duration time.Duration

	playing   bool
	base      time.Duration
	startedAt time.Time
}

// Finish completes loading.
func (s *Sound) Finish() { s.setState(engine.Ready) }

// Fail marks loading as failed.
func (s *Sound) Fail() { s.setState(engine.Failed) }

// Halt stops playback as if the engine gave up on its own.
func (s *Sound) Halt() {
	s.e.mu.Lock()
	defer s.e.mu.Unlock()
	s.advance(s.e.now())
	s.playing = false
}

func (s *Sound) setState(state engine.ReadyState) {
	s.e.mu.Lock()
	defer s.e.mu.Unlock()
	s.state = state
}

// advance folds elapsed play time into base. Must be called with e.mu held.
func (s *Sound) advance(now time.Time) {
	if !s.playing {
		return
	}
	s.base += now.Sub(s.startedAt)
	s.startedAt = now
	if s.base >= s.duration {
		s.base = s.duration
		s.playing = false
	}
}

func (s *Sound) ID() string { return s.id }

func (s *Sound) ReadyState() engine.ReadyState {
	s.e.mu.Lock()
	defer s.e.mu.Unlock()
	return s.state
}

func (s *Sound) Play() {
	s.e.mu.Lock()
	defer s.e.mu.Unlock()
	s.e.calls = append(s.e.calls, Call{Op: OpPlay, URL: s.url})
	if s.state != engine.Ready || s.playing {
		return
	}
	s.playing = s.base < s.duration
	s.startedAt = s.e.now()
}

func (s *Sound) SetPosition(pos time.Duration) {
	s.e.mu.Lock()
	defer s.e.mu.Unlock()
	s.e.calls = append(s.e.calls, Call{Op: OpSetPosition, URL: s.url, Pos: pos})
	now := s.e.now()
	s.advance(now)
	s.base = min(max(pos, 0), s.duration)
	s.startedAt = now
}

func (s *Sound) IsPlaying() bool {
	s.e.mu.Lock()
	defer s.e.mu.Unlock()
	s.advance(s.e.now())
	return s.playing
}

func (s *Sound) Position() time.Duration {
	s.e.mu.Lock()
	defer s.e.mu.Unlock()
	s.advance(s.e.now())
	return s.base
}

func (s *Sound) Duration() time.Duration {
	return s.duration
}

var _ engine.Engine = (*Engine)(nil)
