// Package engine defines the audio engine capability the player drives.
package engine

import "time"

// ReadyState is the load state of a sound.
type ReadyState int

const (
	Unloaded ReadyState = iota
	Loading
	Ready
	Failed
)

func (s ReadyState) String() string {
	switch s {
	case Unloaded:
		return "unloaded"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state by name.
func (s ReadyState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Engine creates sounds and controls global playback.
// Implementations must be safe for use from multiple goroutines.
type Engine interface {
	// OnReady registers fn to be called once the engine is initialized.
	// If the engine is already initialized fn is called right away.
	OnReady(fn func())
	// CreateSound creates a sound for url and starts loading it.
	CreateSound(id, url string) Sound
	// StopAll stops every playing sound.
	StopAll()
}

// Sound is one loaded (or loading) audio asset.
type Sound interface {
	ID() string
	ReadyState() ReadyState
	// Play starts playback from the current position.
	Play()
	SetPosition(pos time.Duration)
	IsPlaying() bool
	Position() time.Duration
	Duration() time.Duration
}
