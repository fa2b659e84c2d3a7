package playback

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/osa030/trackbox/internal/app/notification"
	"github.com/osa030/trackbox/internal/domain/track"
	"github.com/osa030/trackbox/internal/infra/media"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// Default configuration values.
const (
	DefaultBufferThreshold = 5000 * time.Millisecond
	DefaultUpdateInterval  = 100 * time.Millisecond
)

// Config holds controller configuration.
type Config struct {
	BufferThreshold time.Duration   // Look-ahead required before audible playback
	UpdateInterval  time.Duration   // Status callback interval requested from the engine
	AudioMode       media.AudioMode // Output session mode applied before every load
}

// DefaultConfig returns the default controller configuration.
func DefaultConfig() Config {
	return Config{
		BufferThreshold: DefaultBufferThreshold,
		UpdateInterval:  DefaultUpdateInterval,
		AudioMode: media.AudioMode{
			StaysActiveInBackground: true,
			PlaysInSilentMode:       true,
			DuckOthers:              true,
		},
	}
}

// Controller owns at most one media handle and broadcasts every change of
// the session state to its subscribers.
type Controller struct {
	engine media.Engine
	config Config

	// opMu serializes mutating operations so a second load or unload waits
	// for the first to settle.
	opMu   sync.Mutex
	flight singleflight.Group

	mu         sync.RWMutex
	handle     media.Handle
	generation uint64 // Incremented whenever the handle is replaced or released
	priming    bool   // Play/pause kick in progress; IsPlaying is not mirrored
	snap       Snapshot

	events *notification.Manager[Event]
}

// NewController creates a new playback controller.
func NewController(engine media.Engine, config Config) *Controller {
	if config.BufferThreshold <= 0 {
		config.BufferThreshold = DefaultBufferThreshold
	}
	if config.UpdateInterval <= 0 {
		config.UpdateInterval = DefaultUpdateInterval
	}
	return &Controller{
		engine: engine,
		config: config,
		events: notification.NewManager[Event](),
	}
}

// Subscribe registers listener for every event and returns a function that
// removes it. Listeners run synchronously and must not call mutating
// controller operations.
func (c *Controller) Subscribe(listener func(Event)) func() {
	id := c.events.Subscribe(listener)
	return func() { c.events.Unsubscribe(id) }
}

// Snapshot returns a copy of the current session state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap.clone()
}

// BufferThreshold returns the configured look-ahead threshold.
func (c *Controller) BufferThreshold() time.Duration {
	return c.config.BufferThreshold
}

// Load releases any active handle and loads t paused at position 0.
// Concurrent loads of the same track with the same looping flag share one
// attempt. On failure the session is reset and a *LoadError is returned.
func (c *Controller) Load(ctx context.Context, t track.Track, loop bool) error {
	key := fmt.Sprintf("%s|loop=%t", t.Key(), loop)
	_, err, shared := c.flight.Do(key, func() (any, error) {
		return nil, c.load(ctx, t, loop)
	})
	if shared {
		zlog.Debug().Msgf("playback: joined in-flight load: track=%s loop=%t", t.Key(), loop)
	}
	return err
}

func (c *Controller) load(ctx context.Context, t track.Track, loop bool) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.releaseLocked(ctx)

	if !t.HasMedia() {
		return c.failLoadLocked(ctx, t, ErrMissingMediaRef)
	}

	if err := c.engine.SetAudioMode(ctx, c.config.AudioMode); err != nil {
		return c.failLoadLocked(ctx, t, errors.Wrap(err, "failed to set audio mode"))
	}

	c.mu.Lock()
	c.generation++
	gen := c.generation
	active := t
	c.snap = Snapshot{
		ActiveTrack: &active,
		IsBuffering: true,
		Duration:    t.Duration,
		IsLooping:   loop,
	}
	snap := c.snap.clone()
	c.mu.Unlock()

	zlog.Info().Msgf("playback: loading track: track=%s name=%s", t.Key(), t.Name)
	c.broadcast(Event{Type: EventTrackLoading, Snapshot: snap})

	h, err := c.engine.Create(ctx, t.MediaRef, media.Options{
		ShouldPlay:     false,
		IsLooping:      loop,
		UpdateInterval: c.config.UpdateInterval,
		DurationHint:   t.Duration,
	}, func(st media.Status) {
		c.onStatus(gen, st)
	})
	if err != nil {
		return c.failLoadLocked(ctx, t, errors.Wrap(err, "failed to create media handle"))
	}

	c.mu.Lock()
	c.handle = h
	c.mu.Unlock()

	if err := c.kick(ctx, h); err != nil {
		return c.failLoadLocked(ctx, t, errors.Wrap(err, "failed to prime media handle"))
	}

	c.mu.Lock()
	c.snap.Loaded = true
	c.snap.IsPlaying = false
	snap = c.snap.clone()
	c.mu.Unlock()

	zlog.Info().Msgf("playback: track loaded: track=%s", t.Key())
	c.broadcast(Event{Type: EventTrackLoaded, Snapshot: snap})
	return nil
}

// failLoadLocked resets the session after a failed load and returns the
// LoadError for the caller. Must be called with opMu held.
func (c *Controller) failLoadLocked(ctx context.Context, t track.Track, cause error) error {
	c.mu.Lock()
	h := c.handle
	c.handle = nil
	c.generation++
	c.priming = false
	c.snap = Snapshot{}
	snap := c.snap.clone()
	c.mu.Unlock()

	if h != nil {
		if err := h.Unload(ctx); err != nil {
			zlog.Warn().Err(err).Msgf("playback: failed to release handle after load failure: track=%s", t.Key())
		}
	}

	loadErr := &LoadError{Track: t, Cause: cause}
	zlog.Error().Err(cause).Msgf("playback: load failed: track=%s", t.Key())
	c.broadcast(Event{Type: EventLoadFailed, Snapshot: snap, Err: loadErr})
	return loadErr
}

// Unload releases the handle and resets the session. The state is reset even
// when the release fails.
func (c *Controller) Unload(ctx context.Context) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.releaseLocked(ctx)
}

// releaseLocked must be called with opMu held.
func (c *Controller) releaseLocked(ctx context.Context) {
	c.mu.Lock()
	h := c.handle
	had := h != nil || c.snap.ActiveTrack != nil
	var key string
	if c.snap.ActiveTrack != nil {
		key = c.snap.ActiveTrack.Key().String()
	}
	c.handle = nil
	c.generation++
	c.priming = false
	c.snap = Snapshot{}
	snap := c.snap.clone()
	c.mu.Unlock()

	if !had {
		return
	}

	if h != nil {
		if err := h.Unload(ctx); err != nil {
			c.transportError("unload", err)
		}
	}

	zlog.Info().Msgf("playback: track unloaded: track=%s", key)
	c.broadcast(Event{Type: EventTrackUnloaded, Snapshot: snap})
}

// TogglePlayPause pauses a playing handle, or resumes a paused one when at
// least the buffer threshold of audio lies ahead of the playhead. Otherwise
// the session enters buffering and the handle is kicked to keep filling.
func (c *Controller) TogglePlayPause(ctx context.Context) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.RLock()
	h := c.handle
	playing := c.snap.IsPlaying
	c.mu.RUnlock()

	if h == nil {
		return
	}

	if playing {
		if err := h.Pause(ctx); err != nil {
			c.transportError("pause", err)
			return
		}
		c.update(func(s *Snapshot) { s.IsPlaying = false })
		return
	}

	st, err := h.Status(ctx)
	if err != nil {
		c.transportError("status", err)
		return
	}

	if c.canPlay(st) {
		if err := h.Play(ctx); err != nil {
			c.transportError("play", err)
			return
		}
		c.update(func(s *Snapshot) {
			s.IsPlaying = true
			s.IsBuffering = false
		})
		return
	}

	zlog.Debug().Msgf("playback: buffer below threshold, kicking: ahead=%v threshold=%v", st.Ahead(), c.config.BufferThreshold)
	c.update(func(s *Snapshot) {
		s.IsBuffering = true
		s.BufferProgress = c.progress(st)
	})
	if err := c.kick(ctx, h); err != nil {
		c.transportError("kick", err)
	}
}

// Seek moves the playhead. Failures are reported as transport errors.
func (c *Controller) Seek(ctx context.Context, pos time.Duration) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.RLock()
	h := c.handle
	c.mu.RUnlock()

	if h == nil {
		return
	}
	if pos < 0 {
		pos = 0
	}

	if err := h.SetPosition(ctx, pos); err != nil {
		c.transportError("seek", err)
		return
	}
	c.update(func(s *Snapshot) { s.Position = pos })
}

// SetLooping sets the loop flag on a fully loaded handle.
func (c *Controller) SetLooping(ctx context.Context, looping bool) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.RLock()
	h := c.handle
	c.mu.RUnlock()

	if h == nil {
		return
	}

	st, err := h.Status(ctx)
	if err != nil {
		c.transportError("status", err)
		return
	}
	if !st.IsLoaded {
		return
	}

	if err := h.SetLooping(ctx, looping); err != nil {
		c.transportError("set_looping", err)
		return
	}
	c.update(func(s *Snapshot) { s.IsLooping = looping })
}

// Close unloads the session and drops all subscribers.
func (c *Controller) Close() {
	c.Unload(context.Background())
	c.events.Close()
}

// kick starts buffering without audible output: a direct preload when the
// handle supports it, otherwise play immediately followed by pause.
func (c *Controller) kick(ctx context.Context, h media.Handle) error {
	if p, ok := h.(media.Preloader); ok {
		return p.Preload(ctx)
	}

	c.mu.Lock()
	c.priming = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.priming = false
		c.mu.Unlock()
	}()

	if err := h.Play(ctx); err != nil {
		return err
	}
	return h.Pause(ctx)
}

func (c *Controller) onStatus(gen uint64, st media.Status) {
	c.mu.Lock()
	if gen != c.generation || c.snap.ActiveTrack == nil {
		c.mu.Unlock()
		return
	}

	wasBuffering := c.snap.IsBuffering
	c.snap.Position = st.Position
	if st.Duration > 0 {
		c.snap.Duration = st.Duration
	}
	c.snap.BufferProgress = c.progress(st)
	if c.snap.IsBuffering && c.canPlay(st) {
		c.snap.IsBuffering = false
	}
	if !c.priming {
		c.snap.IsPlaying = st.IsPlaying
	}
	if st.IsLoaded {
		c.snap.IsLooping = st.IsLooping
	}
	snap := c.snap.clone()
	c.mu.Unlock()

	c.broadcast(Event{Type: EventStatusUpdated, Snapshot: snap})
	if wasBuffering != snap.IsBuffering {
		c.broadcast(Event{Type: EventBufferingChanged, Snapshot: snap})
	}
}

// canPlay reports whether the look-ahead buffer allows audible playback.
// A fully buffered track can always play, even when its duration is unknown.
func (c *Controller) canPlay(st media.Status) bool {
	if st.Buffered || st.Ahead() >= c.config.BufferThreshold {
		return true
	}
	return st.Duration > 0 && st.Playable >= st.Duration
}

func (c *Controller) progress(st media.Status) float64 {
	if st.Buffered {
		return 100
	}
	p := float64(st.Ahead()) / float64(c.config.BufferThreshold) * 100
	return math.Max(0, math.Min(100, p))
}

// update applies fn to the snapshot and broadcasts the result.
func (c *Controller) update(fn func(s *Snapshot)) {
	c.mu.Lock()
	wasBuffering := c.snap.IsBuffering
	fn(&c.snap)
	snap := c.snap.clone()
	c.mu.Unlock()

	c.broadcast(Event{Type: EventStatusUpdated, Snapshot: snap})
	if wasBuffering != snap.IsBuffering {
		c.broadcast(Event{Type: EventBufferingChanged, Snapshot: snap})
	}
}

func (c *Controller) transportError(op string, cause error) {
	err := &TransportError{Op: op, Cause: cause}
	zlog.Warn().Err(cause).Msgf("playback: transport error suppressed: op=%s", op)
	c.broadcast(Event{Type: EventTransportError, Snapshot: c.Snapshot(), Err: err})
}

func (c *Controller) broadcast(e Event) {
	c.events.Broadcast(e)
}
