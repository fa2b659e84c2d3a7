// Package playback provides the playback session controller: the single owner
// of the decoded-audio handle and the source of truth for transport and buffer
// state.
package playback

import (
	"time"

	"github.com/osa030/trackbox/internal/domain/track"
)

// State represents the derived playback state.
type State int

const (
	StateIdle      State = iota // No track loaded
	StateLoading                // Load in flight, not yet ready
	StateBuffering              // Loaded, waiting for the look-ahead buffer
	StatePlaying                // Audible playback
	StatePaused                 // Loaded and paused
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateBuffering:
		return "buffering"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	default:
		return "unknown"
	}
}

// Snapshot is a copy of the session state.
type Snapshot struct {
	ActiveTrack    *track.Track
	Loaded         bool // Handle created and primed
	IsPlaying      bool
	IsBuffering    bool
	BufferProgress float64 // Percent of the buffer threshold available ahead of the playhead
	Position       time.Duration
	Duration       time.Duration
	IsLooping      bool
}

// State derives the playback state from the snapshot.
func (s Snapshot) State() State {
	switch {
	case s.ActiveTrack == nil:
		return StateIdle
	case !s.Loaded:
		return StateLoading
	case s.IsPlaying:
		return StatePlaying
	case s.IsBuffering:
		return StateBuffering
	default:
		return StatePaused
	}
}

// HasTrack reports whether a track is active.
func (s Snapshot) HasTrack() bool {
	return s.ActiveTrack != nil
}

// IsActive reports whether t is the active track.
func (s Snapshot) IsActive(t track.Track) bool {
	return s.ActiveTrack != nil && s.ActiveTrack.SameAs(t)
}

// Fraction returns the playhead position as a fraction of the duration.
func (s Snapshot) Fraction() float64 {
	if s.Duration <= 0 {
		return 0
	}
	f := float64(s.Position) / float64(s.Duration)
	if f > 1 {
		return 1
	}
	return f
}

func (s Snapshot) clone() Snapshot {
	if s.ActiveTrack != nil {
		t := *s.ActiveTrack
		s.ActiveTrack = &t
	}
	return s
}
