package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satindergrewal/panelcast/internal/engine/enginetest"
	"github.com/satindergrewal/panelcast/internal/frames"
	"github.com/satindergrewal/panelcast/internal/loop"
	"github.com/satindergrewal/panelcast/internal/player"
)

var comic = []frames.Raw{
	{URL: "A", Begin: mo.Some[float64](0), End: mo.Some[float64](5000)},
	{URL: "A", Begin: mo.Some[float64](5000), End: mo.Some[float64](10000)},
	{URL: "B", Begin: mo.Some[float64](2000)},
}

type apiHarness struct {
	loop   *loop.Manual
	engine *enginetest.Engine
	player *player.Player
	mux    *http.ServeMux
}

func newAPIHarness(t *testing.T, autoLoad bool) *apiHarness {
	t.Helper()
	h := &apiHarness{loop: loop.NewManual(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))}
	h.engine = enginetest.New(h.loop.Now)
	h.engine.AutoLoad = autoLoad
	h.engine.SetDuration("A", 20*time.Second)
	h.engine.SetDuration("B", 20*time.Second)
	h.player = player.New(h.loop, h.engine, comic, player.Options{NewID: trackIDs()})

	h.mux = http.NewServeMux()
	(&api{player: h.player, listeners: func() int { return 3 }}).register(h.mux)

	h.engine.Init()
	h.loop.RunPending()
	return h
}

func (h *apiHarness) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.mux.ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))
	var resp map[string]any
	if rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec, resp
}

func TestAPIStatus(t *testing.T) {
	h := newAPIHarness(t, true)

	rec, resp := h.do(t, http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, player.Idle, resp["frame"])
	assert.Equal(t, true, resp["ready"])
	assert.Equal(t, false, resp["load_failed"])
	assert.EqualValues(t, 3, resp["listeners"])

	tracks := resp["tracks"].([]any)
	require.Len(t, tracks, 2)
	first := tracks[0].(map[string]any)
	assert.Equal(t, "t0", first["id"])
	assert.Equal(t, "A", first["url"])
	assert.Equal(t, "ready", first["state"])
}

func TestAPIFrames(t *testing.T) {
	h := newAPIHarness(t, true)

	rec := httptest.NewRecorder()
	h.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/frames", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 3)
	assert.Equal(t, "t0", got[1]["track"])
	assert.EqualValues(t, 5000, got[1]["begin"])
	assert.EqualValues(t, 10000, got[1]["end"])
	assert.Equal(t, "t1", got[2]["track"])
	assert.EqualValues(t, -1, got[2]["end"], "open end")
	assert.EqualValues(t, -1, got[0]["begin"], "zero begin is unbounded")
}

func TestAPIPlayAndStop(t *testing.T) {
	h := newAPIHarness(t, true)

	rec, resp := h.do(t, http.MethodPost, "/api/play", `{"from":1,"to":2}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, resp["ok"])
	assert.NotContains(t, resp, "warning")

	h.loop.RunPending()
	assert.Equal(t, 1, h.player.Status().Frame)
	assert.True(t, h.engine.Sound("A").IsPlaying())

	rec, _ = h.do(t, http.MethodPost, "/api/stop", "")
	require.Equal(t, http.StatusOK, rec.Code)
	h.loop.RunPending()
	assert.Equal(t, player.Idle, h.player.Status().Frame)
	assert.False(t, h.engine.Sound("A").IsPlaying())
}

func TestAPIPlayDefaultsToWholeRange(t *testing.T) {
	h := newAPIHarness(t, true)

	_, resp := h.do(t, http.MethodPost, "/api/play", `{}`)
	assert.EqualValues(t, 0, resp["from"])
	assert.EqualValues(t, 2, resp["to"])
}

func TestAPIPlayClampsRange(t *testing.T) {
	h := newAPIHarness(t, true)

	rec, resp := h.do(t, http.MethodPost, "/api/play", `{"from":9,"to":-4,"force":true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 0, resp["from"])
	assert.EqualValues(t, 2, resp["to"])
	assert.Contains(t, resp["warning"], "clamped")

	h.loop.RunPending()
	assert.Equal(t, 0, h.player.Status().Frame)
}

func TestAPIPlayRejectsAfterLoadFailure(t *testing.T) {
	h := newAPIHarness(t, false)
	h.engine.Sound("B").Fail()
	h.loop.Advance(player.DefaultLoadPollInterval)
	require.ErrorIs(t, h.player.Err(), player.ErrLoadFailed)

	rec, resp := h.do(t, http.MethodPost, "/api/play", `{"from":0,"to":1}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, false, resp["ok"])
}

func TestAPIPlayBadRequests(t *testing.T) {
	h := newAPIHarness(t, true)

	rec, _ := h.do(t, http.MethodGet, "/api/play", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec, _ = h.do(t, http.MethodPost, "/api/play", "{")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = h.do(t, http.MethodGet, "/api/stop", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestFrameTable(t *testing.T) {
	fs, ts := frames.Normalize(comic, trackIDs())
	out := frameTable(fs, ts).String()
	assert.Contains(t, out, "TRACK")
	assert.Contains(t, out, "5s")
	assert.Contains(t, out, "10s")
}

func TestPrintManifestRoundTrips(t *testing.T) {
	fs, ts := frames.Normalize(comic, trackIDs())

	var buf strings.Builder
	require.NoError(t, printManifest(&buf, fs, ts))

	assert.Contains(t, buf.String(), `"end": 10000`, "bounds are written in milliseconds")
	assert.NotContains(t, buf.String(), "10000000000")

	var raw []frames.Raw
	require.NoError(t, json.Unmarshal([]byte(buf.String()), &raw))
	again, _ := frames.Normalize(raw, trackIDs())
	assert.Equal(t, fs, again)
}
