package stream

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	log "github.com/sirupsen/logrus"
	"gopkg.in/hraban/opus.v2"

	"github.com/satindergrewal/panelcast/internal/audio"
)

// FramesChannel is the data channel label on which peers receive
// frame-change events.
const FramesChannel = "frames"

// WebRTCHandler serves WebRTC SDP negotiation for low-latency Opus streaming.
// A peer that opens a "frames" data channel also receives frame-change
// events on it, in step with the audio.
type WebRTCHandler struct {
	audio   *Broadcaster[[]int16]
	events  *Broadcaster[int]
	bitrate int

	mu    sync.Mutex
	peers []*webrtc.PeerConnection
}

// NewWebRTCHandler creates a WebRTC stream handler.
func NewWebRTCHandler(pcm *Broadcaster[[]int16], events *Broadcaster[int], bitrate int) *WebRTCHandler {
	return &WebRTCHandler{
		audio:   pcm,
		events:  events,
		bitrate: bitrate,
	}
}

// PeerCount returns the number of active WebRTC peers.
func (h *WebRTCHandler) PeerCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.peers)
}

func (h *WebRTCHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.WriteHeader(http.StatusOK)
		return
	}

	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}

	var offer webrtc.SessionDescription
	if err := json.NewDecoder(r.Body).Decode(&offer); err != nil {
		http.Error(w, "invalid SDP offer", http.StatusBadRequest)
		return
	}

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		http.Error(w, "create peer connection failed", http.StatusInternalServerError)
		return
	}

	audioTrack, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
		"audio",
		"panelcast",
	)
	if err != nil {
		pc.Close()
		http.Error(w, "create audio track failed", http.StatusInternalServerError)
		return
	}

	if _, err := pc.AddTrack(audioTrack); err != nil {
		pc.Close()
		http.Error(w, "add track failed", http.StatusInternalServerError)
		return
	}

	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() != FramesChannel {
			return
		}
		dc.OnOpen(func() { h.streamEvents(dc) })
	})

	if err := pc.SetRemoteDescription(offer); err != nil {
		pc.Close()
		http.Error(w, "set remote description failed", http.StatusBadRequest)
		return
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		pc.Close()
		http.Error(w, "create answer failed", http.StatusInternalServerError)
		return
	}

	if err := pc.SetLocalDescription(answer); err != nil {
		pc.Close()
		http.Error(w, "set local description failed", http.StatusInternalServerError)
		return
	}

	// Wait for ICE gathering to complete
	<-webrtc.GatheringCompletePromise(pc)

	h.mu.Lock()
	h.peers = append(h.peers, pc)
	h.mu.Unlock()

	log.WithField("peers", h.PeerCount()).Info("WebRTC peer connected")

	done := make(chan struct{})
	var once sync.Once
	go h.streamToPeer(audioTrack, done)

	// Clean up on disconnect
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		if s == webrtc.PeerConnectionStateFailed ||
			s == webrtc.PeerConnectionStateClosed ||
			s == webrtc.PeerConnectionStateDisconnected {
			once.Do(func() {
				close(done)
				h.removePeer(pc)
				pc.Close()
				log.WithField("peers", h.PeerCount()).Info("WebRTC peer disconnected")
			})
		}
	})

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	json.NewEncoder(w).Encode(pc.LocalDescription())
}

func (h *WebRTCHandler) streamToPeer(track *webrtc.TrackLocalStaticSample, done <-chan struct{}) {
	listener := h.audio.Subscribe()
	defer h.audio.Unsubscribe(listener)

	enc, err := opus.NewEncoder(audio.SampleRate, audio.Channels, opus.AppAudio)
	if err != nil {
		log.WithError(err).Error("WebRTC: opus encoder")
		return
	}
	if err := enc.SetBitrate(h.bitrate); err != nil {
		log.WithError(err).WithField("bitrate", h.bitrate).Warn("WebRTC: opus bitrate rejected")
	}

	opusBuf := make([]byte, 4000)

	for {
		select {
		case <-done:
			return
		case frame := <-listener.C:
			n, err := enc.Encode(frame, opusBuf)
			if err != nil {
				log.WithError(err).Warn("WebRTC: opus encode")
				continue
			}
			if err := track.WriteSample(media.Sample{
				Data:     opusBuf[:n],
				Duration: audio.FrameDuration,
			}); err != nil {
				return
			}
		}
	}
}

// streamEvents forwards frame-change events to dc until it closes.
func (h *WebRTCHandler) streamEvents(dc *webrtc.DataChannel) {
	listener := h.events.Subscribe()
	closed := make(chan struct{})
	dc.OnClose(func() { close(closed) })

	go func() {
		defer h.events.Unsubscribe(listener)
		for {
			select {
			case <-closed:
				return
			case frame := <-listener.C:
				if err := dc.SendText(strconv.Itoa(frame)); err != nil {
					log.WithError(err).Debug("WebRTC: frames channel send")
					return
				}
			}
		}
	}()
}

func (h *WebRTCHandler) removePeer(pc *webrtc.PeerConnection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, p := range h.peers {
		if p == pc {
			h.peers = append(h.peers[:i], h.peers[i+1:]...)
			return
		}
	}
}
