package audio

import (
	"time"

	"github.com/satindergrewal/panelcast/internal/engine"
)

// Sound is one track owned by a Pipeline. Its state is guarded by the
// pipeline's mutex.
type Sound struct {
	p   *Pipeline
	id  string
	url string

	state   engine.ReadyState
	samples []int16 // interleaved stereo at SampleRate
	pos     int     // per-channel sample offset
	playing bool
}

func (s *Sound) ID() string { return s.id }

func (s *Sound) ReadyState() engine.ReadyState {
	s.p.mu.Lock()
	defer s.p.mu.Unlock()
	return s.state
}

// Play makes s the active voice. Playing a sound that has not finished
// loading does nothing; playing one that reached its end starts it over.
func (s *Sound) Play() {
	s.p.play(s)
}

func (s *Sound) SetPosition(pos time.Duration) {
	s.p.seek(s, pos)
}

func (s *Sound) IsPlaying() bool {
	s.p.mu.Lock()
	defer s.p.mu.Unlock()
	return s.playing
}

func (s *Sound) Position() time.Duration {
	s.p.mu.Lock()
	defer s.p.mu.Unlock()
	return samplesToDuration(s.pos)
}

func (s *Sound) Duration() time.Duration {
	s.p.mu.Lock()
	defer s.p.mu.Unlock()
	return samplesToDuration(s.length())
}

// length returns the per-channel sample count. Must be called with p.mu held.
func (s *Sound) length() int {
	return len(s.samples) / Channels
}

// frame copies the frame starting at pos, zero-padded at the end of the
// track. Must be called with p.mu held.
func (s *Sound) frame(pos int) []int16 {
	return frameAt(s.samples, pos)
}

func frameAt(samples []int16, pos int) []int16 {
	out := make([]int16, FrameSamples)
	start := pos * Channels
	if start < len(samples) {
		copy(out, samples[start:])
	}
	return out
}

var _ engine.Sound = (*Sound)(nil)
