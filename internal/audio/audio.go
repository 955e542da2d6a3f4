// Package audio is the sound engine: it loads and decodes tracks and renders
// the active one as real-time PCM frames.
package audio

import "time"

const (
	SampleRate    = 48000
	Channels      = 2
	BitDepth      = 16
	FrameDuration = 20 * time.Millisecond
	FrameSize     = 960                  // samples per channel per 20ms frame
	FrameSamples  = FrameSize * Channels // total interleaved samples per frame
	FrameBytes    = FrameSamples * 2     // bytes per frame (int16 = 2 bytes)
)

// samplesToDuration converts a per-channel sample count to time.
func samplesToDuration(n int) time.Duration {
	return time.Duration(n) * time.Second / SampleRate
}

// durationToSamples converts time to a per-channel sample count.
func durationToSamples(d time.Duration) int {
	return int(d * SampleRate / time.Second)
}
