package player

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/satindergrewal/panelcast/internal/engine"
	"github.com/satindergrewal/panelcast/internal/frames"
)

const (
	// leadIn is how far before a frame's begin the engine may report and
	// still count as inside the frame.
	leadIn = 200 * time.Millisecond
	// minDelay is the shortest wake-up the scheduler asks for, and the
	// re-check delay right after a frame change.
	minDelay = 10 * time.Millisecond
)

// schedule requests a precise wake-up after delay, capped at the fallback
// interval. The earliest pending wake-up wins: a request due later than the
// pending one is dropped, an earlier one replaces it.
func (p *Player) schedule(delay time.Duration) {
	delay = max(min(delay, p.opts.FallbackInterval), 0)
	due := p.loop.Now().Add(delay)

	if p.precise != nil {
		if !p.preciseDue.After(due) {
			return
		}
		p.precise.Stop()
	}
	p.preciseDue = due
	p.precise = p.loop.AfterFunc(delay, p.wake)
}

func (p *Player) wake() {
	p.precise = nil
	if p.fallback == nil && p.active() {
		p.fallback = p.loop.Every(p.opts.FallbackInterval, p.tick)
	}
	p.tick()
}

func (p *Player) active() bool {
	return !p.errorsLoading && p.current != Idle && p.current >= p.from && p.current <= p.to
}

func (p *Player) cancelWakeups() {
	if p.precise != nil {
		p.precise.Stop()
		p.precise = nil
	}
	if p.fallback != nil {
		p.fallback.Stop()
		p.fallback = nil
	}
}

// tick checks the active frame against the engine and advances the session.
func (p *Player) tick() {
	if !p.active() {
		p.endSession()
		return
	}

	f := p.frames[p.current]
	s := p.soundAt(p.current)

	if s.ReadyState() == engine.Failed {
		log.WithField("track", p.tracks[f.Track].ID).Error("Track failed during playback")
		p.errorsLoading = true
		p.endSession()
		return
	}

	playing := s.IsPlaying()
	pos := s.Position()

	if playing && f.Begin <= pos+leadIn && (f.End == frames.Unbounded || pos <= f.End) {
		target := f.End
		if target == frames.Unbounded {
			target = s.Duration()
		}
		log.WithFields(log.Fields{"frame": p.current, "position": pos}).Trace("Within frame")
		p.schedule(max(target-pos, minDelay))
		return
	}

	if p.current >= p.to {
		p.endSession()
		return
	}

	next := p.current + 1
	nf := p.frames[next]
	p.current = next

	if playing && nf.Track == f.Track && nf.Contains(pos) {
		log.WithFields(log.Fields{"frame": next, "position": pos}).Debug("Continued into next frame")
	} else {
		p.restartAt(next)
	}

	p.notify()
	p.schedule(minDelay)
}

// endSession cancels wake-ups and, if a frame was active, stops playback and
// reports Idle.
func (p *Player) endSession() {
	p.cancelWakeups()
	if p.current == Idle {
		p.publish()
		return
	}
	log.WithField("frame", p.current).Info("Playback finished")
	p.engine.StopAll()
	p.current = Idle
	p.notify()
}
