package stream

import (
	"context"
	"io"
	"net/http"
	"os/exec"

	log "github.com/sirupsen/logrus"

	"github.com/satindergrewal/panelcast/internal/audio"
)

// pcmBuffer is the per-listener PCM buffer, about 3 seconds at 20ms/frame.
const pcmBuffer = 150

// NewPCMBroadcaster returns a broadcaster sized for rendered PCM frames.
func NewPCMBroadcaster() *Broadcaster[[]int16] {
	return NewBroadcaster[[]int16](pcmBuffer)
}

// HTTPHandler serves a chunked MP3 audio stream via HTTP.
// Each connection spawns an FFmpeg process to encode PCM -> MP3 in real-time.
type HTTPHandler struct {
	broadcaster *Broadcaster[[]int16]
	ffmpeg      string
	bitrate     string
}

// NewHTTPHandler creates an HTTP stream handler encoding with the given
// ffmpeg binary at bitrate (e.g. "192k").
func NewHTTPHandler(b *Broadcaster[[]int16], ffmpeg, bitrate string) *HTTPHandler {
	return &HTTPHandler{broadcaster: b, ffmpeg: ffmpeg, bitrate: bitrate}
}

func (h *HTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// FFmpeg: PCM stdin -> MP3 stdout
	cmd := exec.CommandContext(ctx, h.ffmpeg,
		"-f", "s16le",
		"-ar", "48000",
		"-ac", "2",
		"-i", "pipe:0",
		"-codec:a", "libmp3lame",
		"-b:a", h.bitrate,
		"-f", "mp3",
		"-fflags", "nobuffer",
		"-flush_packets", "1",
		"-loglevel", "error",
		"pipe:1",
	)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		log.WithError(err).Error("HTTP stream: stdin pipe")
		http.Error(w, "encoder unavailable", http.StatusServiceUnavailable)
		return
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		log.WithError(err).Error("HTTP stream: stdout pipe")
		http.Error(w, "encoder unavailable", http.StatusServiceUnavailable)
		return
	}
	if err := cmd.Start(); err != nil {
		log.WithError(err).Error("HTTP stream: ffmpeg start")
		http.Error(w, "encoder unavailable", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Cache-Control", "no-cache, no-store")
	w.Header().Set("Connection", "close")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("ICY-Name", "panelcast")

	listener := h.broadcaster.Subscribe()
	defer h.broadcaster.Unsubscribe(listener)

	log.WithField("listeners", h.broadcaster.ListenerCount()).Info("HTTP listener connected")
	defer log.Info("HTTP listener disconnected")

	// Feed PCM frames to FFmpeg
	go func() {
		defer stdin.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case <-listener.Done():
				return
			case frame := <-listener.C:
				if _, err := stdin.Write(audio.SamplesToBytes(frame)); err != nil {
					return
				}
			}
		}
	}()

	// Read MP3 from FFmpeg and write to HTTP response
	buf := make([]byte, 4096)
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			if _, writeErr := w.Write(buf[:n]); writeErr != nil {
				break
			}
			flusher.Flush()
		}
		if err != nil {
			if err != io.EOF {
				log.WithError(err).Warn("HTTP stream: ffmpeg read")
			}
			break
		}
	}

	cancel()
	cmd.Wait()
}
