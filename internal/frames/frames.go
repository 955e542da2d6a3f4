// Package frames turns a narration manifest into an ordered list of frames
// that reference a deduplicated set of audio tracks.
package frames

import (
	"bytes"
	"encoding/json"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/samber/mo"
)

// Unbounded marks a frame bound that is open: an unbounded begin starts at the
// beginning of the track, an unbounded end runs to the end of the track.
const Unbounded time.Duration = -1

// Raw is one manifest entry. Begin and End are in milliseconds and may be
// fractional.
type Raw struct {
	URL   string             `json:"url"`
	Begin mo.Option[float64] `json:"begin"`
	End   mo.Option[float64] `json:"end"`
}

// UnmarshalJSON decodes an entry. A bound that is not a JSON number (null,
// false, "" and so on) is treated as absent rather than rejected.
func (r *Raw) UnmarshalJSON(data []byte) error {
	var entry struct {
		URL   string          `json:"url"`
		Begin json.RawMessage `json:"begin"`
		End   json.RawMessage `json:"end"`
	}
	if err := json.Unmarshal(data, &entry); err != nil {
		return err
	}
	*r = Raw{URL: entry.URL, Begin: lenientMillis(entry.Begin), End: lenientMillis(entry.End)}
	return nil
}

func lenientMillis(data json.RawMessage) mo.Option[float64] {
	var v float64
	if len(data) == 0 || bytes.Equal(data, []byte("null")) || json.Unmarshal(data, &v) != nil {
		return mo.None[float64]()
	}
	return mo.Some(v)
}

// Track is one distinct audio asset.
type Track struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Frame is a sub-range of one track.
type Frame struct {
	Track int // index into the track list
	Begin time.Duration
	End   time.Duration
}

// Contains reports whether pos lies within the frame bounds.
func (f Frame) Contains(pos time.Duration) bool {
	return f.Begin <= pos && (f.End == Unbounded || pos <= f.End)
}

// Start is the position playback of the frame begins at. Position zero is
// never used because some engines treat a seek to 0 as a no-op.
func (f Frame) Start() time.Duration {
	return max(f.Begin, time.Millisecond)
}

// Raw converts the frame back into its manifest form.
func (f Frame) Raw(tracks []Track) Raw {
	r := Raw{URL: tracks[f.Track].URL}
	if f.Begin != Unbounded {
		r.Begin = mo.Some(toMillis(f.Begin))
	}
	if f.End != Unbounded {
		r.End = mo.Some(toMillis(f.End))
	}
	return r
}

// Normalize validates and canonicalizes raw entries. Malformed bounds are
// repaired rather than rejected: missing, zero or negative bounds become
// Unbounded, and an inverted range is swapped. Tracks are created in order of
// first appearance of their URL. newID generates track ids; nil means random
// UUIDs.
func Normalize(raw []Raw, newID func() string) ([]Frame, []Track) {
	if newID == nil {
		newID = uuid.NewString
	}

	frames := make([]Frame, 0, len(raw))
	var tracks []Track
	byURL := make(map[string]int)

	for _, r := range raw {
		begin := bound(r.Begin)
		end := bound(r.End)
		if begin != Unbounded && end != Unbounded && end < begin {
			begin, end = end, begin
		}

		idx, ok := byURL[r.URL]
		if !ok {
			idx = len(tracks)
			tracks = append(tracks, Track{ID: newID(), URL: r.URL})
			byURL[r.URL] = idx
		}

		frames = append(frames, Frame{Track: idx, Begin: begin, End: end})
	}

	return frames, tracks
}

func bound(v mo.Option[float64]) time.Duration {
	ms, ok := v.Get()
	if !ok || ms <= 0 {
		return Unbounded
	}
	if ms >= float64(math.MaxInt64)/float64(time.Millisecond) {
		return math.MaxInt64
	}
	if d := time.Duration(ms * float64(time.Millisecond)); d > 0 {
		return d
	}
	return Unbounded
}

func toMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
