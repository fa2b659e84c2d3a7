// Package mediatest provides an in-memory media engine for tests.
package mediatest

import (
	"context"
	"sync"
	"time"

	"github.com/osa030/trackbox/internal/infra/media"
)

// Engine is a media.Engine that records every handle it creates.
type Engine struct {
	mu sync.Mutex

	CreateErr    error         // Returned by Create when set
	AudioModeErr error         // Returned by SetAudioMode when set
	Preloading   bool          // Create returns handles implementing media.Preloader
	Playable     time.Duration // Initial playable duration of new handles
	OnCreate     func(h *Handle)

	handles    []*Handle
	audioModes []media.AudioMode
}

// NewEngine creates a new fake engine.
func NewEngine() *Engine {
	return &Engine{}
}

// SetAudioMode implements media.Engine.
func (e *Engine) SetAudioMode(_ context.Context, mode media.AudioMode) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.AudioModeErr != nil {
		return e.AudioModeErr
	}
	e.audioModes = append(e.audioModes, mode)
	return nil
}

// Create implements media.Engine.
func (e *Engine) Create(_ context.Context, ref string, opts media.Options, onStatus media.StatusFunc) (media.Handle, error) {
	e.mu.Lock()
	if e.CreateErr != nil {
		err := e.CreateErr
		e.mu.Unlock()
		return nil, err
	}
	h := &Handle{
		Ref:      ref,
		Opts:     opts,
		onStatus: onStatus,
		status: media.Status{
			IsLoaded:  true,
			IsLooping: opts.IsLooping,
			Position:  opts.Position,
			Duration:  opts.DurationHint,
			Playable:  e.Playable,
		},
	}
	preloading := e.Preloading
	hook := e.OnCreate
	e.mu.Unlock()

	// The hook observes the engine as it was before this handle existed.
	if hook != nil {
		hook(h)
	}
	e.mu.Lock()
	e.handles = append(e.handles, h)
	e.mu.Unlock()

	if preloading {
		return &PreloadingHandle{Handle: h}, nil
	}
	return h, nil
}

// Handles returns every handle created so far.
func (e *Engine) Handles() []*Handle {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*Handle, len(e.handles))
	copy(out, e.handles)
	return out
}

// Last returns the most recently created handle, or nil.
func (e *Engine) Last() *Handle {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.handles) == 0 {
		return nil
	}
	return e.handles[len(e.handles)-1]
}

// Live returns the number of handles that have not been unloaded.
func (e *Engine) Live() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, h := range e.handles {
		if !h.Unloaded() {
			n++
		}
	}
	return n
}

// AudioModes returns every audio mode applied.
func (e *Engine) AudioModes() []media.AudioMode {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]media.AudioMode, len(e.audioModes))
	copy(out, e.audioModes)
	return out
}

// Handle is a media.Handle with scripted failures and recorded calls.
type Handle struct {
	mu sync.Mutex

	Ref  string
	Opts media.Options

	PlayErr, PauseErr, SeekErr, LoopErr, StatusErr, UnloadErr error

	// AfterCall runs after every transport call, outside the handle lock.
	AfterCall func(name string)

	onStatus media.StatusFunc
	status   media.Status
	unloaded bool
	calls    []string
	seeks    []time.Duration
}

// Play implements media.Handle.
func (h *Handle) Play(context.Context) error {
	return h.transition("play", h.PlayErr, func(s *media.Status) { s.IsPlaying = true })
}

// Pause implements media.Handle.
func (h *Handle) Pause(context.Context) error {
	return h.transition("pause", h.PauseErr, func(s *media.Status) { s.IsPlaying = false })
}

// SetPosition implements media.Handle.
func (h *Handle) SetPosition(_ context.Context, pos time.Duration) error {
	h.mu.Lock()
	h.seeks = append(h.seeks, pos)
	h.mu.Unlock()
	return h.transition("seek", h.SeekErr, func(s *media.Status) { s.Position = pos })
}

// SetLooping implements media.Handle.
func (h *Handle) SetLooping(_ context.Context, looping bool) error {
	return h.transition("set_looping", h.LoopErr, func(s *media.Status) { s.IsLooping = looping })
}

// Status implements media.Handle.
func (h *Handle) Status(context.Context) (media.Status, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.StatusErr != nil {
		return media.Status{}, h.StatusErr
	}
	return h.status, nil
}

// Unload implements media.Handle.
func (h *Handle) Unload(context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, "unload")
	h.unloaded = true
	h.status = media.Status{}
	return h.UnloadErr
}

func (h *Handle) transition(name string, err error, fn func(s *media.Status)) error {
	h.mu.Lock()
	h.calls = append(h.calls, name)
	if err != nil {
		h.mu.Unlock()
		return err
	}
	fn(&h.status)
	hook := h.AfterCall
	h.mu.Unlock()
	if hook != nil {
		hook(name)
	}
	return nil
}

// Emit merges fn into the handle status and delivers it to the status callback.
func (h *Handle) Emit(fn func(s *media.Status)) {
	h.mu.Lock()
	fn(&h.status)
	st := h.status
	cb := h.onStatus
	h.mu.Unlock()
	if cb != nil {
		cb(st)
	}
}

// SetStatus replaces the status without notifying.
func (h *Handle) SetStatus(fn func(s *media.Status)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	fn(&h.status)
}

// Calls returns the recorded method calls in order.
func (h *Handle) Calls() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.calls))
	copy(out, h.calls)
	return out
}

// Count returns how many times the named call was made.
func (h *Handle) Count(name string) int {
	n := 0
	for _, c := range h.Calls() {
		if c == name {
			n++
		}
	}
	return n
}

// Seeks returns the recorded seek positions.
func (h *Handle) Seeks() []time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]time.Duration, len(h.seeks))
	copy(out, h.seeks)
	return out
}

// Unloaded reports whether Unload was called.
func (h *Handle) Unloaded() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.unloaded
}

// PreloadingHandle adds media.Preloader to Handle.
type PreloadingHandle struct {
	*Handle
}

// Preload implements media.Preloader.
func (p *PreloadingHandle) Preload(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, "preload")
	return nil
}
