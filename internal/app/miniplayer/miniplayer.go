// Package miniplayer provides the persistent compact player: visibility
// rules, the swipe-to-dismiss gesture, and skipping within the active
// track's module.
package miniplayer

import (
	"context"
	"math"
	"sync"

	"github.com/osa030/trackbox/internal/app/playback"
	"github.com/osa030/trackbox/internal/domain/module"
	"github.com/osa030/trackbox/internal/domain/track"
	zlog "github.com/rs/zerolog/log"
)

// Config holds gesture configuration in points.
type Config struct {
	DismissThreshold float64 // Release displacement beyond which the view is dismissed
	FadeDistance     float64 // Displacement at which opacity reaches 0
	DirectionRatio   float64 // Horizontal displacement must exceed vertical by this factor
}

// DefaultConfig returns the default gesture configuration.
func DefaultConfig() Config {
	return Config{
		DismissThreshold: 100,
		FadeDistance:     200,
		DirectionRatio:   2,
	}
}

// Transport is the playback session the mini-player drives.
type Transport interface {
	Load(ctx context.Context, t track.Track, loop bool) error
	Unload(ctx context.Context)
	TogglePlayPause(ctx context.Context)
	Snapshot() playback.Snapshot
	Subscribe(listener func(playback.Event)) func()
}

// Catalog resolves the active track's module.
type Catalog interface {
	Find(moduleID string) (*module.Module, error)
}

// View is a render-ready copy of the mini-player state.
type View struct {
	Visible        bool
	Track          *track.Track
	IsPlaying      bool
	IsBuffering    bool
	BufferProgress float64
	Progress       float64
	Offset         float64
	Opacity        float64
	Dismissing     bool
}

// MiniPlayer is the compact player overlay.
type MiniPlayer struct {
	transport       Transport
	catalog         Catalog
	isPlayerFocused func() bool
	animator        Animator
	config          Config

	mu          sync.Mutex
	offset      float64
	opacity     float64
	dismissing  bool
	animation   uint64 // Incremented on reset so stale animation frames are dropped
	unsubscribe func()
}

// New creates a mini-player. isPlayerFocused reports whether the full
// player is the focused route.
func New(transport Transport, catalog Catalog, isPlayerFocused func() bool, animator Animator, config Config) *MiniPlayer {
	if animator == nil {
		animator = NewTween()
	}
	if isPlayerFocused == nil {
		isPlayerFocused = func() bool { return false }
	}
	m := &MiniPlayer{
		transport:       transport,
		catalog:         catalog,
		isPlayerFocused: isPlayerFocused,
		animator:        animator,
		config:          config,
		opacity:         1,
	}
	m.unsubscribe = transport.Subscribe(m.onPlayback)
	return m
}

// Visible reports whether the view should render: a track is active, the
// full player is not focused, and no dismissal is in progress.
func (m *MiniPlayer) Visible() bool {
	if !m.transport.Snapshot().HasTrack() || m.isPlayerFocused() {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.dismissing
}

// ShouldCapture reports whether a pan with the given displacement is a
// horizontal swipe this view should handle.
func (m *MiniPlayer) ShouldCapture(dx, dy float64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dismissing {
		return false
	}
	return math.Abs(dx) > math.Abs(dy)*m.config.DirectionRatio
}

// Move tracks the pan displacement.
func (m *MiniPlayer) Move(dx float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dismissing {
		return
	}
	m.offset = dx
	m.opacity = m.opacityAt(dx)
}

// Release ends the pan. Past the dismiss threshold the session is paused,
// unloaded and the view slides out; otherwise it springs back. It reports
// whether the view was dismissed.
func (m *MiniPlayer) Release(ctx context.Context, dx float64) bool {
	m.mu.Lock()
	if m.dismissing {
		m.mu.Unlock()
		return false
	}
	from := Frame{Offset: dx, Opacity: m.opacityAt(dx)}
	gen := m.animation

	if math.Abs(dx) <= m.config.DismissThreshold {
		m.mu.Unlock()
		m.animator.SpringBack(from, m.applier(gen), nil)
		return false
	}

	m.dismissing = true
	m.mu.Unlock()

	snap := m.transport.Snapshot()
	zlog.Info().Msgf("miniplayer: dismissed: dx=%.0f playing=%v", dx, snap.IsPlaying)
	if snap.IsPlaying {
		m.transport.TogglePlayPause(ctx)
	}
	m.transport.Unload(ctx)

	m.animator.SlideOut(from, math.Copysign(1, dx), m.applier(gen), func() {
		zlog.Debug().Msg("miniplayer: slide out finished")
	})
	return true
}

// Next loads the track after the active one in its module.
func (m *MiniPlayer) Next(ctx context.Context) (bool, error) {
	return m.skip(ctx, 1)
}

// Previous loads the track before the active one in its module.
func (m *MiniPlayer) Previous(ctx context.Context) (bool, error) {
	return m.skip(ctx, -1)
}

// skip loads the adjacent track directly and resumes playback when the
// session was playing before the skip.
func (m *MiniPlayer) skip(ctx context.Context, delta int) (bool, error) {
	snap := m.transport.Snapshot()
	if !snap.HasTrack() {
		return false, nil
	}
	active := *snap.ActiveTrack

	mod, err := m.catalog.Find(active.ModuleID)
	if err != nil {
		zlog.Warn().Err(err).Msgf("miniplayer: module lookup failed: track=%s", active.Key())
		return false, err
	}
	target, ok := mod.Adjacent(active.ID, delta)
	if !ok {
		return false, nil
	}

	if err := m.transport.Load(ctx, target, snap.IsLooping); err != nil {
		return false, err
	}
	if snap.IsPlaying {
		m.transport.TogglePlayPause(ctx)
	}
	return true, nil
}

// Reset clears gesture and animation state.
func (m *MiniPlayer) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offset = 0
	m.opacity = 1
	m.dismissing = false
	m.animation++
}

// Offset returns the horizontal view offset.
func (m *MiniPlayer) Offset() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.offset
}

// Opacity returns the view opacity.
func (m *MiniPlayer) Opacity() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opacity
}

// View returns the current mini-player state.
func (m *MiniPlayer) View() View {
	snap := m.transport.Snapshot()
	visible := m.Visible()

	m.mu.Lock()
	defer m.mu.Unlock()
	return View{
		Visible:        visible,
		Track:          snap.ActiveTrack,
		IsPlaying:      snap.IsPlaying,
		IsBuffering:    snap.IsBuffering,
		BufferProgress: snap.BufferProgress,
		Progress:       snap.Fraction(),
		Offset:         m.offset,
		Opacity:        m.opacity,
		Dismissing:     m.dismissing,
	}
}

// Close detaches the mini-player from the session.
func (m *MiniPlayer) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
}

func (m *MiniPlayer) onPlayback(e playback.Event) {
	if e.Type == playback.EventTrackLoaded {
		m.Reset()
	}
}

func (m *MiniPlayer) applier(gen uint64) func(Frame) {
	return func(f Frame) {
		m.mu.Lock()
		defer m.mu.Unlock()
		if gen != m.animation {
			return
		}
		m.offset = f.Offset
		m.opacity = f.Opacity
	}
}

func (m *MiniPlayer) opacityAt(dx float64) float64 {
	if m.config.FadeDistance <= 0 {
		return 1
	}
	return math.Max(0, 1-math.Abs(dx)/m.config.FadeDistance)
}
