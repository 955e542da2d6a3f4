package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"

	"github.com/satindergrewal/panelcast/internal/frames"
	"github.com/satindergrewal/panelcast/internal/player"
)

// api serves the player's JSON control surface.
type api struct {
	player *player.Player
	// nowPlaying reports what the engine is rendering. Optional.
	nowPlaying func() (id string, position, duration time.Duration)
	// listeners counts stream clients. Optional.
	listeners func() int
}

func (a *api) register(mux *http.ServeMux) {
	mux.HandleFunc("/api/status", a.status)
	mux.HandleFunc("/api/frames", a.listFrames)
	mux.HandleFunc("/api/play", a.play)
	mux.HandleFunc("/api/stop", a.stop)
}

func isClamp(err error) bool {
	return errors.Is(err, player.ErrRangeClamped)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Debug("Write response")
	}
}

func millis(d time.Duration) int64 {
	if d == frames.Unbounded {
		return -1
	}
	return d.Milliseconds()
}

func (a *api) status(w http.ResponseWriter, r *http.Request) {
	st := a.player.Status()

	tracks := lo.Map(st.Tracks, func(t player.TrackStatus, _ int) map[string]any {
		return map[string]any{
			"id":       t.ID,
			"url":      t.URL,
			"state":    t.State.String(),
			"playing":  t.Playing,
			"position": t.Position.Seconds(),
			"duration": t.Duration.Seconds(),
		}
	})

	resp := map[string]any{
		"frame":       st.Frame,
		"from":        st.From,
		"to":          st.To,
		"ready":       st.Ready,
		"load_failed": st.LoadFailed,
		"tracks":      tracks,
	}
	if a.nowPlaying != nil {
		id, pos, dur := a.nowPlaying()
		resp["track_id"] = id
		resp["position"] = pos.Seconds()
		resp["duration"] = dur.Seconds()
	}
	if a.listeners != nil {
		resp["listeners"] = a.listeners()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *api) listFrames(w http.ResponseWriter, r *http.Request) {
	tracks := a.player.Tracks()
	resp := lo.Map(a.player.Frames(), func(f frames.Frame, i int) map[string]any {
		return map[string]any{
			"index": i,
			"track": tracks[f.Track].ID,
			"url":   tracks[f.Track].URL,
			"begin": millis(f.Begin),
			"end":   millis(f.End),
		}
	})
	writeJSON(w, http.StatusOK, resp)
}

func (a *api) play(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}
	req := struct {
		From  int  `json:"from"`
		To    *int `json:"to"`
		Force bool `json:"force"`
	}{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	to := len(a.player.Frames()) - 1
	if req.To != nil {
		to = *req.To
	}

	from, to, err := a.player.Validate(req.From, to)
	if err != nil && !isClamp(err) {
		writeJSON(w, http.StatusConflict, map[string]any{"ok": false, "error": err.Error()})
		return
	}

	if req.Force {
		a.player.Restart(from, to)
	} else {
		a.player.Play(from, to)
	}

	resp := map[string]any{"ok": true, "from": from, "to": to}
	if err != nil {
		resp["warning"] = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *api) stop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}
	a.player.Stop()
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}
