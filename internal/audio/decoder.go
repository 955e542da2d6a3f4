package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"path"
	"strings"

	"github.com/faiface/beep"
	"github.com/faiface/beep/wav"
	"github.com/hajimehoshi/go-mp3"
)

// ErrUnsupportedFormat is returned when a file needs ffmpeg and no ffmpeg
// binary is configured.
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// resampleQuality is the beep resampler quality (1-64).
const resampleQuality = 4

// Decode reads an encoded audio stream and returns interleaved stereo int16
// samples at SampleRate. name picks the decoder by extension: MP3 and WAV are
// decoded natively, anything else through ffmpeg.
func Decode(ctx context.Context, ffmpeg, name string, r io.Reader) ([]int16, error) {
	switch strings.ToLower(path.Ext(name)) {
	case ".mp3":
		return decodeMP3(r)
	case ".wav", ".wave":
		return decodeWAV(r)
	default:
		if ffmpeg == "" {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, name)
		}
		return decodeFFmpeg(ctx, ffmpeg, r)
	}
}

func decodeMP3(r io.Reader) ([]int16, error) {
	d, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("mp3 decode: %w", err)
	}
	// go-mp3 always yields 16-bit little-endian stereo.
	raw, err := io.ReadAll(d)
	if err != nil {
		return nil, fmt.Errorf("mp3 decode: %w", err)
	}
	samples := BytesToSamples(raw)
	if d.SampleRate() == SampleRate {
		return samples, nil
	}
	return resample(samples, beep.SampleRate(d.SampleRate()))
}

func decodeWAV(r io.Reader) ([]int16, error) {
	s, format, err := wav.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("wav decode: %w", err)
	}
	defer s.Close()

	var src beep.Streamer = s
	if format.SampleRate != SampleRate {
		src = beep.Resample(resampleQuality, format.SampleRate, SampleRate, s)
	}
	return collect(src)
}

// decodeFFmpeg runs ffmpeg to decode an audio stream to raw PCM int16 samples.
func decodeFFmpeg(ctx context.Context, bin string, r io.Reader) ([]int16, error) {
	cmd := exec.CommandContext(ctx, bin,
		"-i", "pipe:0",
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ar", "48000",
		"-ac", "2",
		"-loglevel", "error",
		"pipe:1",
	)
	cmd.Stdin = r
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg decode: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return BytesToSamples(out), nil
}

// resample converts interleaved stereo samples from rate to SampleRate.
func resample(samples []int16, rate beep.SampleRate) ([]int16, error) {
	src := &pcmStreamer{samples: samples}
	return collect(beep.Resample(resampleQuality, rate, SampleRate, src))
}

// collect drains a streamer into interleaved int16 samples.
func collect(s beep.Streamer) ([]int16, error) {
	buf := make([][2]float64, 1024)
	var out []int16
	for {
		n, ok := s.Stream(buf)
		for _, frame := range buf[:n] {
			out = append(out, floatToSample(frame[0]), floatToSample(frame[1]))
		}
		if !ok {
			break
		}
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// pcmStreamer exposes interleaved stereo int16 samples as a beep.Streamer.
type pcmStreamer struct {
	samples []int16
	pos     int
}

func (s *pcmStreamer) Stream(buf [][2]float64) (n int, ok bool) {
	for n < len(buf) && s.pos+1 < len(s.samples) {
		buf[n][0] = sampleToFloat(s.samples[s.pos])
		buf[n][1] = sampleToFloat(s.samples[s.pos+1])
		s.pos += Channels
		n++
	}
	return n, n > 0
}

func (s *pcmStreamer) Err() error { return nil }

func sampleToFloat(v int16) float64 {
	return float64(v) / 32768
}

func floatToSample(v float64) int16 {
	v *= 32767
	if v > 32767 {
		v = 32767
	} else if v < -32768 {
		v = -32768
	}
	return int16(v)
}

// SamplesToBytes converts int16 samples to little-endian bytes.
func SamplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

// BytesToSamples converts little-endian bytes to int16 samples, dropping a
// trailing odd byte.
func BytesToSamples(b []byte) []int16 {
	samples := make([]int16, len(b)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(b[i*2 : i*2+2]))
	}
	return samples
}

var _ beep.Streamer = (*pcmStreamer)(nil)
