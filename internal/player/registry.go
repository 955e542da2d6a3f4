package player

import (
	log "github.com/sirupsen/logrus"

	"github.com/satindergrewal/panelcast/internal/engine"
	"github.com/satindergrewal/panelcast/internal/frames"
)

// track binds a normalized track to its engine sound once loading starts.
type track struct {
	frames.Track
	sound engine.Sound
}

func newRegistry(ts []frames.Track) []*track {
	out := make([]*track, len(ts))
	for i, t := range ts {
		out[i] = &track{Track: t}
	}
	return out
}

// ensureLoading creates missing sounds and checks readiness. It re-polls until
// every track is ready or one has failed, then hands over to the scheduler.
func (p *Player) ensureLoading() {
	if p.gateDone || p.errorsLoading {
		return
	}

	done := true
	for _, t := range p.tracks {
		if t.sound == nil {
			s := p.engine.CreateSound(t.ID, t.URL)
			p.mu.Lock()
			t.sound = s
			p.mu.Unlock()
		}

		switch t.sound.ReadyState() {
		case engine.Ready:
		case engine.Failed:
			if !p.errorsLoading {
				log.WithFields(log.Fields{"track": t.ID, "url": t.URL}).Error("Track failed to load")
			}
			p.errorsLoading = true
			done = false
		default:
			done = false
		}
	}

	if p.errorsLoading {
		p.publish()
		return
	}
	if !done {
		p.loop.AfterFunc(p.opts.LoadPollInterval, p.ensureLoading)
		return
	}

	p.gateDone = true
	p.publish()
	log.WithField("tracks", len(p.tracks)).Info("All tracks loaded")
	p.schedule(0)
}
