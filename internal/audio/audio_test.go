package audio

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/wav"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satindergrewal/panelcast/internal/engine"
)

// --- Constants ---

func TestConstants(t *testing.T) {
	// 48kHz * 20ms = 960 samples per channel
	if got := SampleRate * int(FrameDuration/time.Millisecond) / 1000; got != FrameSize {
		t.Errorf("FrameSize mismatch: want %d, got %d", got, FrameSize)
	}
	if FrameSamples != FrameSize*Channels {
		t.Errorf("FrameSamples = %d, want %d", FrameSamples, FrameSize*Channels)
	}
	if samplesToDuration(FrameSize) != FrameDuration {
		t.Errorf("samplesToDuration(FrameSize) = %v", samplesToDuration(FrameSize))
	}
	if durationToSamples(time.Second) != SampleRate {
		t.Errorf("durationToSamples(1s) = %d", durationToSamples(time.Second))
	}
}

// --- Smoothstep ---

func TestSmoothstepBoundaries(t *testing.T) {
	tests := []struct {
		input float64
		want  float64
	}{
		{-0.5, 0},
		{0, 0},
		{0.5, 0.5},
		{1, 1},
		{1.5, 1},
	}
	for _, tt := range tests {
		if got := Smoothstep(tt.input); got != tt.want {
			t.Errorf("Smoothstep(%v) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestSmoothstepMonotonic(t *testing.T) {
	prev := 0.0
	for i := 1; i <= 100; i++ {
		val := Smoothstep(float64(i) / 100.0)
		if val < prev {
			t.Fatalf("Smoothstep not monotonic at step %d", i)
		}
		prev = val
	}
}

// --- CrossfadeFrames ---

func TestCrossfadeConstantProgress(t *testing.T) {
	out := []int16{1000, -1000, 500, -500}
	in := []int16{3000, -3000, 1500, -1500}

	assert.Equal(t, out, CrossfadeFrames(out, in, 0, 0))
	assert.Equal(t, in, CrossfadeFrames(out, in, 1, 1))
	assert.Equal(t, []int16{2000, -2000, 1000, -1000}, CrossfadeFrames(out, in, 0.5, 0.5))
}

func TestCrossfadeRamp(t *testing.T) {
	out := []int16{1000, 1000, 1000, 1000, 1000, 1000}
	in := []int16{3000, 3000, 3000, 3000, 3000, 3000}

	got := CrossfadeFrames(out, in, 0, 1)
	assert.Equal(t, []int16{1000, 1000, 2000, 2000, 3000, 3000}, got)
}

func TestCrossfadeSilence(t *testing.T) {
	in := []int16{3000, 3000, 3000, 3000}
	assert.Equal(t, []int16{0, 0, 3000, 3000}, CrossfadeFrames(nil, in, 0, 1), "fade in")

	out := []int16{3000, 3000, 3000, 3000}
	assert.Equal(t, []int16{3000, 3000, 0, 0}, CrossfadeFrames(out, nil, 0, 1), "fade out")
}

func TestCrossfadeClipping(t *testing.T) {
	out := []int16{32767, -32768}
	in := []int16{32767, -32768}
	got := CrossfadeFrames(out, in, 0.5, 0.5)
	assert.Equal(t, []int16{32767, -32768}, got)
}

// --- SamplesToBytes / round-trip ---

func TestSamplesToBytes(t *testing.T) {
	samples := []int16{0, 1, -1, 32767, -32768, 256}
	buf := SamplesToBytes(samples)
	require.Len(t, buf, len(samples)*2)

	// 256 = 0x0100 -> bytes [0x00, 0x01]
	assert.Equal(t, []byte{0x00, 0x01}, buf[10:12])
	assert.Equal(t, samples, BytesToSamples(buf))
}

func TestBytesToSamplesDropsOddByte(t *testing.T) {
	assert.Equal(t, []int16{1}, BytesToSamples([]byte{0x01, 0x00, 0xff}))
}

// --- Decode ---

func encodeWAV(t *testing.T, fs afero.Fs, name string, rate beep.SampleRate, d time.Duration, level float64) {
	t.Helper()
	f, err := fs.Create(name)
	require.NoError(t, err)
	src := beep.Take(rate.N(d), beep.StreamerFunc(func(s [][2]float64) (int, bool) {
		for i := range s {
			s[i] = [2]float64{level, level}
		}
		return len(s), true
	}))
	require.NoError(t, wav.Encode(f, src, beep.Format{SampleRate: rate, NumChannels: 2, Precision: 2}))
	require.NoError(t, f.Close())
}

func TestDecodeWAV(t *testing.T) {
	fs := afero.NewMemMapFs()
	encodeWAV(t, fs, "/a.wav", SampleRate, 100*time.Millisecond, 0.5)

	f, err := fs.Open("/a.wav")
	require.NoError(t, err)
	defer f.Close()

	samples, err := Decode(context.Background(), "", "/a.wav", f)
	require.NoError(t, err)
	require.Len(t, samples, 4800*Channels)
	assert.InDelta(t, 16383, samples[100], 3)
}

func TestDecodeWAVResamples(t *testing.T) {
	fs := afero.NewMemMapFs()
	encodeWAV(t, fs, "/a.wav", 24000, 100*time.Millisecond, 0.25)

	f, err := fs.Open("/a.wav")
	require.NoError(t, err)
	defer f.Close()

	samples, err := Decode(context.Background(), "", "/a.wav", f)
	require.NoError(t, err)
	assert.InDelta(t, 4800, len(samples)/Channels, 16)
}

func TestDecodeUnsupportedWithoutFFmpeg(t *testing.T) {
	_, err := Decode(context.Background(), "", "track.flac", bytes.NewReader(nil))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestDecodeInvalidWAV(t *testing.T) {
	_, err := Decode(context.Background(), "", "broken.wav", bytes.NewReader([]byte("not a wav file")))
	assert.Error(t, err)
}

// --- Pipeline ---

func newTestPipeline(t *testing.T, declick time.Duration) (*Pipeline, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	encodeWAV(t, fs, "/tracks/a.wav", SampleRate, 100*time.Millisecond, 0.5)
	encodeWAV(t, fs, "/tracks/b.wav", SampleRate, 200*time.Millisecond, 0.25)
	return NewPipeline(Options{Fs: fs, Declick: declick}), fs
}

func waitState(t *testing.T, s engine.Sound, want engine.ReadyState) {
	t.Helper()
	require.Eventually(t, func() bool { return s.ReadyState() == want },
		5*time.Second, 5*time.Millisecond, "sound %s never reached %s", s.ID(), want)
}

func TestPipelineLoadsTrack(t *testing.T) {
	p, _ := newTestPipeline(t, 0)

	s := p.CreateSound("a", "/tracks/a.wav")
	waitState(t, s, engine.Ready)

	assert.Equal(t, "a", s.ID())
	assert.Equal(t, 100*time.Millisecond, s.Duration())
	assert.False(t, s.IsPlaying())
	assert.Same(t, s, p.CreateSound("a", "/tracks/other.wav"), "ids are reused")
}

func TestPipelineMissingTrackFails(t *testing.T) {
	p, _ := newTestPipeline(t, 0)

	s := p.CreateSound("x", "/tracks/missing.wav")
	waitState(t, s, engine.Failed)

	s.Play()
	assert.False(t, s.IsPlaying())
}

func TestPipelinePlaysToEnd(t *testing.T) {
	p, _ := newTestPipeline(t, 0)
	s := p.CreateSound("a", "/tracks/a.wav")
	waitState(t, s, engine.Ready)

	s.Play()
	require.True(t, s.IsPlaying())

	frame := p.render()
	require.Len(t, frame, FrameSamples)
	assert.InDelta(t, 16383, frame[0], 3)
	assert.Equal(t, FrameDuration, s.Position())

	for range 4 {
		p.render()
	}
	assert.False(t, s.IsPlaying())
	assert.Equal(t, 100*time.Millisecond, s.Position())

	id, _, _ := p.Status()
	assert.Empty(t, id)
	assert.Equal(t, make([]int16, FrameSamples), p.render(), "idle renders silence")

	s.Play()
	assert.True(t, s.IsPlaying(), "play after the end starts over")
	assert.Equal(t, time.Duration(0), s.Position())
}

func TestPipelineSeekClamps(t *testing.T) {
	p, _ := newTestPipeline(t, 0)
	s := p.CreateSound("a", "/tracks/a.wav")
	waitState(t, s, engine.Ready)

	s.SetPosition(40 * time.Millisecond)
	assert.Equal(t, 40*time.Millisecond, s.Position())

	s.SetPosition(time.Hour)
	assert.Equal(t, 100*time.Millisecond, s.Position())

	s.SetPosition(-time.Second)
	assert.Equal(t, time.Duration(0), s.Position())
}

func TestPipelineSwitchesTracks(t *testing.T) {
	p, _ := newTestPipeline(t, 0)
	a := p.CreateSound("a", "/tracks/a.wav")
	b := p.CreateSound("b", "/tracks/b.wav")
	waitState(t, a, engine.Ready)
	waitState(t, b, engine.Ready)

	a.Play()
	p.render()
	b.Play()
	assert.False(t, a.IsPlaying())
	assert.True(t, b.IsPlaying())

	id, pos, dur := p.Status()
	assert.Equal(t, "b", id)
	assert.Equal(t, time.Duration(0), pos)
	assert.Equal(t, 200*time.Millisecond, dur)

	p.StopAll()
	assert.False(t, b.IsPlaying())
	assert.Equal(t, time.Duration(0), b.Position(), "stop keeps the position")
}

func TestPipelineDeclick(t *testing.T) {
	p, _ := newTestPipeline(t, 40*time.Millisecond)
	s := p.CreateSound("a", "/tracks/a.wav")
	waitState(t, s, engine.Ready)

	s.Play()
	first := p.render()
	assert.Equal(t, int16(0), first[0], "fade in starts from silence")
	assert.Less(t, first[FrameSamples-2], int16(16383))

	p.render()
	third := p.render()
	assert.InDelta(t, 16383, third[0], 3, "fade finished")

	p.StopAll()
	out := p.render()
	assert.InDelta(t, 16383, out[0], 3, "fade out starts from the stopped track")
	p.render()
	assert.Equal(t, make([]int16, FrameSamples), p.render())
}

func TestPipelineRunFiresReady(t *testing.T) {
	p, _ := newTestPipeline(t, 0)

	ready := make(chan struct{})
	p.OnReady(func() { close(ready) })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	select {
	case <-ready:
	case <-time.After(5 * time.Second):
		t.Fatal("OnReady callback never fired")
	}

	select {
	case frame := <-p.Frames():
		assert.Len(t, frame, FrameSamples)
	case <-time.After(5 * time.Second):
		t.Fatal("no frame rendered")
	}

	called := false
	p.OnReady(func() { called = true })
	assert.True(t, called, "late subscribers are called immediately")

	cancel()
	<-done
}

// --- frameStreamer ---

func TestFrameStreamerPadsWithSilence(t *testing.T) {
	frames := make(chan []int16, 1)
	frame := make([]int16, FrameSamples)
	for i := range frame {
		frame[i] = 16384
	}
	frames <- frame

	st := &frameStreamer{frames: frames, done: make(chan struct{})}
	buf := make([][2]float64, FrameSize+10)
	n, ok := st.Stream(buf)
	assert.True(t, ok)
	assert.Equal(t, len(buf), n)
	assert.Equal(t, 0.5, buf[0][0])
	assert.Equal(t, 0.5, buf[FrameSize-1][1])
	assert.Equal(t, [2]float64{}, buf[FrameSize])

	close(frames)
	n, ok = st.Stream(buf)
	assert.False(t, ok)
	assert.Zero(t, n)
	select {
	case <-st.done:
	default:
		t.Fatal("done not closed after the frame channel closed")
	}
}
