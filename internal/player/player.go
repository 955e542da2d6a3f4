// Package player sequences playback of frames drawn from a small set of audio
// tracks and reports frame changes as playback progresses.
//
// All state is owned by a single loop.Loop: the exported methods only post
// work onto the loop, and every transition runs there.
package player

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"

	"github.com/satindergrewal/panelcast/internal/engine"
	"github.com/satindergrewal/panelcast/internal/frames"
	"github.com/satindergrewal/panelcast/internal/loop"
)

// Idle is the frame index reported when nothing is playing.
const Idle = -1

const (
	DefaultFallbackInterval = 100 * time.Millisecond
	DefaultLoadPollInterval = 50 * time.Millisecond
	DefaultPlayRetryDelay   = 100 * time.Millisecond
)

var (
	// ErrLoadFailed is reported once any track failed to load. It is sticky.
	ErrLoadFailed = errors.New("audio track failed to load")
	// ErrNoFrames is reported when the player has no frames to play.
	ErrNoFrames = errors.New("no frames")
	// ErrRangeClamped is reported when a requested range had to be adjusted.
	ErrRangeClamped = errors.New("frame range clamped")
)

// Options tunes a Player. Zero durations select the defaults.
type Options struct {
	// FallbackInterval is the period of the safety-net re-check and the
	// ceiling for any predicted wake-up.
	FallbackInterval time.Duration
	// LoadPollInterval is how often track readiness is re-checked.
	LoadPollInterval time.Duration
	// PlayRetryDelay is how long a Play issued before the tracks are ready
	// waits before trying again.
	PlayRetryDelay time.Duration
	// OnFrameChange receives the new frame index, or Idle. It runs on the
	// loop goroutine and must not block.
	OnFrameChange func(frame int)
	// NewID generates track ids. Nil means random UUIDs.
	NewID func() string
}

func (o Options) withDefaults() Options {
	if o.FallbackInterval <= 0 {
		o.FallbackInterval = DefaultFallbackInterval
	}
	if o.LoadPollInterval <= 0 {
		o.LoadPollInterval = DefaultLoadPollInterval
	}
	if o.PlayRetryDelay <= 0 {
		o.PlayRetryDelay = DefaultPlayRetryDelay
	}
	return o
}

// Player plays ranges of frames.
type Player struct {
	loop   loop.Loop
	engine engine.Engine
	opts   Options
	frames []frames.Frame
	tracks []*track

	// loop-owned state
	gateDone      bool
	errorsLoading bool
	from, to      int
	current       int
	pendingPlay   loop.Timer
	precise       loop.Timer
	preciseDue    time.Time
	fallback      loop.Timer

	mu   sync.RWMutex // guards snap and track sound bindings
	snap Status
}

// New normalizes raw and creates a player. Tracks start loading as soon as
// the engine reports it is initialized.
func New(lp loop.Loop, eng engine.Engine, raw []frames.Raw, opts Options) *Player {
	opts = opts.withDefaults()
	fs, ts := frames.Normalize(raw, opts.NewID)

	p := &Player{
		loop:    lp,
		engine:  eng,
		opts:    opts,
		frames:  fs,
		tracks:  newRegistry(ts),
		current: Idle,
	}
	p.publish()

	log.WithFields(log.Fields{
		"frames": len(fs),
		"tracks": len(ts),
	}).Debug("Player created")

	eng.OnReady(func() {
		lp.Post(p.ensureLoading)
	})
	return p
}

// Play starts playing frames from..to. Calling Play while a session is
// audibly playing stops it instead.
func (p *Player) Play(from, to int) {
	p.loop.Post(func() { p.play(from, to, false) })
}

// Restart starts playing frames from..to, replacing any current session.
func (p *Player) Restart(from, to int) {
	p.loop.Post(func() { p.play(from, to, true) })
}

// Stop stops playback. No frame change is reported.
func (p *Player) Stop() {
	p.loop.Post(p.stop)
}

// Frames returns the normalized frames.
func (p *Player) Frames() []frames.Frame {
	return append([]frames.Frame(nil), p.frames...)
}

// Tracks returns the deduplicated tracks.
func (p *Player) Tracks() []frames.Track {
	return lo.Map(p.tracks, func(t *track, _ int) frames.Track { return t.Track })
}

// Err returns ErrLoadFailed once a track failed to load.
func (p *Player) Err() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.snap.LoadFailed {
		return ErrLoadFailed
	}
	return nil
}

// Validate reports how Play would treat the range from..to. It returns the
// effective range and an error describing anything Play would silently do
// instead of playing the range as given.
func (p *Player) Validate(from, to int) (int, int, error) {
	if err := p.Err(); err != nil {
		return 0, 0, err
	}
	if len(p.frames) == 0 {
		return 0, 0, ErrNoFrames
	}
	f, t := p.clamp(from, to)
	if f != from || t != to {
		return f, t, fmt.Errorf("%w: %d..%d -> %d..%d", ErrRangeClamped, from, to, f, t)
	}
	return f, t, nil
}

func (p *Player) clamp(from, to int) (int, int) {
	if from > to {
		from, to = to, from
	}
	last := len(p.frames) - 1
	return lo.Clamp(from, 0, last), lo.Clamp(to, 0, last)
}

func (p *Player) play(from, to int, force bool) {
	if p.errorsLoading {
		log.Debug("Play ignored: tracks failed to load")
		return
	}
	if !p.gateDone {
		// Latest request wins while waiting for the tracks.
		if p.pendingPlay != nil {
			p.pendingPlay.Stop()
		}
		p.pendingPlay = p.loop.AfterFunc(p.opts.PlayRetryDelay, func() {
			p.pendingPlay = nil
			p.play(from, to, force)
		})
		return
	}
	if len(p.frames) == 0 {
		return
	}

	from, to = p.clamp(from, to)

	if p.current != Idle && p.soundAt(p.current).IsPlaying() && !force {
		log.WithField("frame", p.current).Info("Playback toggled off")
		p.cancelWakeups()
		p.engine.StopAll()
		p.current = Idle
	} else {
		p.from, p.to = from, to
		p.current = from
		p.restartAt(from)
		log.WithFields(log.Fields{"from": from, "to": to}).Info("Playback started")
	}

	p.notify()
	p.schedule(0)
}

func (p *Player) stop() {
	if p.pendingPlay != nil {
		p.pendingPlay.Stop()
		p.pendingPlay = nil
	}
	p.cancelWakeups()
	p.engine.StopAll()
	if p.current != Idle {
		log.WithField("frame", p.current).Info("Playback stopped")
	}
	p.current = Idle
	p.publish()
}

// restartAt stops all playback, seeks frame i's track to the frame start and
// plays it.
func (p *Player) restartAt(i int) {
	f := p.frames[i]
	s := p.soundAt(i)
	p.engine.StopAll()
	s.SetPosition(f.Start())
	s.Play()
	log.WithFields(log.Fields{
		"frame":    i,
		"track":    p.tracks[f.Track].ID,
		"position": f.Start(),
	}).Debug("Seeked")
}

func (p *Player) soundAt(frame int) engine.Sound {
	return p.tracks[p.frames[frame].Track].sound
}
