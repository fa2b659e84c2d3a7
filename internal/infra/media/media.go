// Package media provides the audio resource primitive the playback core is
// built on: an engine that creates decoded-audio handles and reports their
// status asynchronously.
package media

import (
	"context"
	"time"
)

// Status is a point-in-time report of a handle.
type Status struct {
	IsLoaded      bool
	IsPlaying     bool
	IsLooping     bool
	Position      time.Duration
	Duration      time.Duration
	Playable      time.Duration // Amount of audio available for decoding from the start
	Buffered      bool          // The whole media is available locally
	DidJustFinish bool
}

// Ahead returns how much decodable audio lies past the playhead.
func (s Status) Ahead() time.Duration {
	ahead := s.Playable - s.Position
	if ahead < 0 {
		return 0
	}
	return ahead
}

// StatusFunc receives status updates. It is called from engine goroutines.
type StatusFunc func(Status)

// Options configures a new handle.
type Options struct {
	ShouldPlay     bool
	Position       time.Duration
	IsLooping      bool
	UpdateInterval time.Duration
	DurationHint   time.Duration // Duration from the catalog, used until the decoder knows better
}

// AudioMode configures the process-wide output session.
type AudioMode struct {
	StaysActiveInBackground bool `yaml:"stays_active_in_background" default:"true"`
	PlaysInSilentMode       bool `yaml:"plays_in_silent_mode" default:"true"`
	DuckOthers              bool `yaml:"duck_others" default:"true"`
}

// Engine creates handles.
type Engine interface {
	SetAudioMode(ctx context.Context, mode AudioMode) error
	Create(ctx context.Context, ref string, opts Options, onStatus StatusFunc) (Handle, error)
}

// Handle is a single decoded-audio resource.
type Handle interface {
	Play(ctx context.Context) error
	Pause(ctx context.Context) error
	SetPosition(ctx context.Context, pos time.Duration) error
	SetLooping(ctx context.Context, looping bool) error
	Status(ctx context.Context) (Status, error)
	Unload(ctx context.Context) error
}

// Preloader is implemented by handles that can start buffering without
// producing output.
type Preloader interface {
	Preload(ctx context.Context) error
}
