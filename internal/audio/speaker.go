package audio

import (
	"context"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/speaker"
)

// PlayLocal plays pipeline frames on the default output device until ctx is
// cancelled or frames is closed.
func PlayLocal(ctx context.Context, frames <-chan []int16) error {
	sr := beep.SampleRate(SampleRate)
	if err := speaker.Init(sr, sr.N(time.Second/10)); err != nil {
		return err
	}
	defer speaker.Close()

	st := &frameStreamer{frames: frames, done: make(chan struct{})}
	speaker.Play(st)
	defer speaker.Clear()

	select {
	case <-ctx.Done():
	case <-st.done:
	}
	return nil
}

// frameStreamer adapts a channel of interleaved frames to beep. An empty
// channel yields silence rather than blocking the speaker.
type frameStreamer struct {
	frames <-chan []int16
	buf    []int16
	done   chan struct{}
	once   sync.Once
}

func (s *frameStreamer) Stream(samples [][2]float64) (n int, ok bool) {
	for n < len(samples) {
		if len(s.buf) < Channels {
			select {
			case f, open := <-s.frames:
				if !open {
					s.once.Do(func() { close(s.done) })
					return n, n > 0
				}
				s.buf = f
				continue
			default:
			}
			for ; n < len(samples); n++ {
				samples[n] = [2]float64{}
			}
			break
		}
		samples[n][0] = sampleToFloat(s.buf[0])
		samples[n][1] = sampleToFloat(s.buf[1])
		s.buf = s.buf[Channels:]
		n++
	}
	return n, true
}

func (s *frameStreamer) Err() error { return nil }

var _ beep.Streamer = (*frameStreamer)(nil)
