package player

import (
	"time"

	"github.com/satindergrewal/panelcast/internal/engine"
)

// Status is a snapshot of the player.
type Status struct {
	Frame      int
	From, To   int
	Ready      bool
	LoadFailed bool
	Tracks     []TrackStatus
}

// TrackStatus describes one track as reported by the engine.
type TrackStatus struct {
	ID       string
	URL      string
	State    engine.ReadyState
	Playing  bool
	Position time.Duration
	Duration time.Duration
}

// Status returns the current snapshot. Safe for concurrent use.
func (p *Player) Status() Status {
	p.mu.RLock()
	st := p.snap
	st.Tracks = make([]TrackStatus, len(p.tracks))
	sounds := make([]engine.Sound, len(p.tracks))
	for i, t := range p.tracks {
		st.Tracks[i] = TrackStatus{ID: t.ID, URL: t.URL}
		sounds[i] = t.sound
	}
	p.mu.RUnlock()

	for i, s := range sounds {
		if s == nil {
			continue
		}
		st.Tracks[i].State = s.ReadyState()
		st.Tracks[i].Playing = s.IsPlaying()
		st.Tracks[i].Position = s.Position()
		st.Tracks[i].Duration = s.Duration()
	}
	return st
}

// publish copies loop-owned state into the snapshot.
func (p *Player) publish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snap = Status{
		Frame:      p.current,
		From:       p.from,
		To:         p.to,
		Ready:      p.gateDone,
		LoadFailed: p.errorsLoading,
	}
}

// notify publishes the snapshot and reports the current frame.
func (p *Player) notify() {
	p.publish()
	if p.opts.OnFrameChange != nil {
		p.opts.OnFrameChange(p.current)
	}
}
