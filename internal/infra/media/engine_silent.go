//go:build !((linux && cgo) || windows || darwin)

package media

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

// AudioAvailable indicates whether audio output is supported in this build.
// Speaker output requires cgo on linux.
const AudioAvailable = false

// ErrHandleReleased is returned by operations on an unloaded handle.
var ErrHandleReleased = errors.New("media handle released")

// silentEngine downloads media and advances a wall clock instead of
// producing output.
type silentEngine struct {
	resolver *Resolver
}

// NewEngine creates the clock-driven engine.
func NewEngine(resolver *Resolver) Engine {
	return &silentEngine{resolver: resolver}
}

// SetAudioMode implements Engine.
func (e *silentEngine) SetAudioMode(context.Context, AudioMode) error {
	return nil
}

// Create implements Engine.
func (e *silentEngine) Create(ctx context.Context, ref string, opts Options, onStatus StatusFunc) (Handle, error) {
	rc, size, err := e.resolver.Open(ctx, ref)
	if err != nil {
		return nil, err
	}

	h := &silentHandle{
		ref:      ref,
		onStatus: onStatus,
		looping:  opts.IsLooping,
		base:     opts.Position,
		duration: opts.DurationHint,
		stopCh:   make(chan struct{}),
	}
	h.dl = startDownload(rc, size, func(data []byte, err error) {
		if err == nil {
			e.resolver.Store(ref, data)
		}
	})
	if opts.ShouldPlay {
		h.playing = true
		h.startedAt = time.Now()
	}

	interval := opts.UpdateInterval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	go h.statusLoop(interval)

	zlog.Debug().Msgf("media: silent handle created: ref=%s size=%d", ref, size)
	return h, nil
}

type silentHandle struct {
	ref      string
	onStatus StatusFunc
	dl       *download
	stopCh   chan struct{}

	mu           sync.Mutex
	playing      bool
	looping      bool
	base         time.Duration // Position when playback last started or was set
	startedAt    time.Time
	duration     time.Duration
	justFinished bool
	unloaded     bool
}

// positionLocked advances the clock, wrapping or stopping at the end.
func (h *silentHandle) positionLocked() time.Duration {
	pos := h.base
	if h.playing {
		pos += time.Since(h.startedAt)
	}
	if h.duration <= 0 || pos < h.duration {
		return pos
	}
	if h.looping {
		pos %= h.duration
		h.base = pos
		h.startedAt = time.Now()
		return pos
	}
	h.playing = false
	h.base = h.duration
	h.justFinished = true
	return h.duration
}

// Play implements Handle.
func (h *silentHandle) Play(context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.unloaded {
		return ErrHandleReleased
	}
	if err := h.dl.failed(); err != nil {
		return err
	}
	if h.playing {
		return nil
	}
	if h.duration > 0 && h.base >= h.duration {
		h.base = 0
	}
	h.playing = true
	h.startedAt = time.Now()
	return nil
}

// Pause implements Handle.
func (h *silentHandle) Pause(context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.unloaded {
		return ErrHandleReleased
	}
	h.base = h.positionLocked()
	h.playing = false
	return nil
}

// Preload implements Preloader.
func (h *silentHandle) Preload(context.Context) error {
	return h.dl.failed()
}

// SetPosition implements Handle.
func (h *silentHandle) SetPosition(_ context.Context, pos time.Duration) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.unloaded {
		return ErrHandleReleased
	}
	h.base = pos
	h.startedAt = time.Now()
	return nil
}

// SetLooping implements Handle.
func (h *silentHandle) SetLooping(_ context.Context, looping bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.unloaded {
		return ErrHandleReleased
	}
	h.looping = looping
	return nil
}

// Status implements Handle.
func (h *silentHandle) Status(context.Context) (Status, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.unloaded {
		return Status{}, ErrHandleReleased
	}
	return h.statusLocked(), nil
}

func (h *silentHandle) statusLocked() Status {
	pos := h.positionLocked()
	st := Status{
		IsLoaded:      h.dl.failed() == nil,
		IsPlaying:     h.playing,
		IsLooping:     h.looping,
		Position:      pos,
		Duration:      h.duration,
		Playable:      time.Duration(h.dl.fraction() * float64(h.duration)),
		Buffered:      h.dl.finished(),
		DidJustFinish: h.justFinished,
	}
	h.justFinished = false
	return st
}

// Unload implements Handle.
func (h *silentHandle) Unload(context.Context) error {
	h.mu.Lock()
	if h.unloaded {
		h.mu.Unlock()
		return nil
	}
	h.unloaded = true
	close(h.stopCh)
	h.mu.Unlock()

	h.dl.stop()
	return nil
}

func (h *silentHandle) statusLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-h.stopCh:
			return
		case <-ticker.C:
			h.mu.Lock()
			if h.unloaded {
				h.mu.Unlock()
				return
			}
			st := h.statusLocked()
			h.mu.Unlock()

			if h.onStatus != nil {
				h.onStatus(st)
			}
		}
	}
}
