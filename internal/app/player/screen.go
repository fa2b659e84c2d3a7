package player

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/osa030/trackbox/internal/app/nav"
	"github.com/osa030/trackbox/internal/app/playback"
	"github.com/osa030/trackbox/internal/domain/module"
	"github.com/osa030/trackbox/internal/domain/track"
	zlog "github.com/rs/zerolog/log"
)

// RouteName is the route name of the player screen. The router reports it
// as focused while the full player is shown.
const RouteName = "player"

// DefaultSeekBarWidth is the seek bar width used when none is configured.
const DefaultSeekBarWidth = 300

// ErrNotMounted is returned by operations on a screen without a queue.
var ErrNotMounted = errors.New("player screen not mounted")

// Transport is the playback session the screen drives.
type Transport interface {
	Load(ctx context.Context, t track.Track, loop bool) error
	TogglePlayPause(ctx context.Context)
	Seek(ctx context.Context, pos time.Duration)
	SetLooping(ctx context.Context, looping bool)
	Snapshot() playback.Snapshot
	Subscribe(listener func(playback.Event)) func()
}

// Navigator receives the route of the track to show next.
type Navigator interface {
	Replace(route nav.Route)
}

// Prefetcher warms media ahead of use.
type Prefetcher interface {
	Prefetch(ctx context.Context, ref string) error
}

// Catalog resolves module-scoped track ids.
type Catalog interface {
	FindTrack(moduleID, trackID string) (*module.Module, track.Track, error)
}

// Config holds screen configuration.
type Config struct {
	PrefetchNext bool
	SeekBarWidth float64
}

// View is a render-ready copy of the screen state.
type View struct {
	ModuleID       string
	ModuleName     string
	Track          *track.Track
	Index          int
	Len            int
	IsLoading      bool
	Err            error // *module.LookupError or *playback.LoadError
	CanRetry       bool  // Load failed; Retry re-invokes the load
	CanGoBack      bool  // Lookup failed; the route is stale
	Position       time.Duration
	Duration       time.Duration
	Progress       float64 // Seek bar value
	IsPlaying      bool
	IsBuffering    bool
	BufferProgress float64
	IsRandom       bool
	IsLooping      bool
	IsDragging     bool
	HasNext        bool
	HasPrevious    bool
}

// Screen is one mounted full player.
type Screen struct {
	transport  Transport
	navigator  Navigator
	prefetcher Prefetcher
	catalog    Catalog
	config     Config
	rng        *rand.Rand

	seekBar *SeekBar

	mu          sync.Mutex
	route       nav.Route
	module      *module.Module
	queue       *Queue
	isLoading   bool
	loadErr     error
	isLooping   bool
	position    time.Duration
	duration    time.Duration
	unsubscribe func()

	prefetchCtx    context.Context
	prefetchCancel context.CancelFunc
	prefetchWG     sync.WaitGroup
}

// NewScreen creates an unmounted screen. prefetcher may be nil.
func NewScreen(transport Transport, navigator Navigator, catalog Catalog, prefetcher Prefetcher, config Config, rng *rand.Rand) *Screen {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if config.SeekBarWidth <= 0 {
		config.SeekBarWidth = DefaultSeekBarWidth
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Screen{
		transport:      transport,
		navigator:      navigator,
		prefetcher:     prefetcher,
		catalog:        catalog,
		config:         config,
		rng:            rng,
		seekBar:        NewSeekBar(transport, config.SeekBarWidth),
		prefetchCtx:    ctx,
		prefetchCancel: cancel,
	}
}

// IsFocusedRoute reports whether route shows this screen.
func IsFocusedRoute(route nav.Route) bool {
	return route.Name == RouteName
}

// Mount builds the queue for route and loads its track.
func (s *Screen) Mount(ctx context.Context, route nav.Route) error {
	s.mu.Lock()
	if s.unsubscribe == nil {
		s.unsubscribe = s.transport.Subscribe(s.onPlayback)
	}
	s.mu.Unlock()

	return s.mount(ctx, route)
}

func (s *Screen) mount(ctx context.Context, route nav.Route) error {
	m, _, err := s.catalog.FindTrack(route.ModuleID, route.ContentID)

	s.mu.Lock()
	s.route = route
	if err != nil {
		s.module = nil
		s.queue = nil
		s.loadErr = err
		s.isLoading = false
		s.mu.Unlock()
		zlog.Warn().Err(err).Msgf("player: lookup failed: module_id=%s content_id=%s", route.ModuleID, route.ContentID)
		return err
	}
	s.module = m
	s.queue = NewQueue(m.Tracks, route.ContentID)
	s.loadErr = nil
	s.mu.Unlock()

	zlog.Info().Msgf("player: mounted: module_id=%s content_id=%s tracks=%d", route.ModuleID, route.ContentID, len(m.Tracks))
	return s.syncLoad(ctx)
}

// SetRoute applies a navigation change to the mounted screen. A route in
// another module rebuilds the queue; otherwise the queue is moved to the
// track and loaded unless it is already active.
func (s *Screen) SetRoute(ctx context.Context, route nav.Route) error {
	s.mu.Lock()
	q := s.queue
	sameModule := s.module != nil && s.module.ID == route.ModuleID
	s.mu.Unlock()

	if q == nil || !sameModule {
		return s.mount(ctx, route)
	}

	s.mu.Lock()
	s.route = route
	if !q.Focus(route.ContentID) {
		err := &module.LookupError{ModuleID: route.ModuleID, TrackID: route.ContentID}
		s.loadErr = err
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	return s.syncLoad(ctx)
}

// syncLoad loads the queue's current track unless it is already active.
func (s *Screen) syncLoad(ctx context.Context) error {
	s.mu.Lock()
	if s.queue == nil {
		s.mu.Unlock()
		return ErrNotMounted
	}
	cur, ok := s.queue.Current()
	loop := s.isLooping
	s.mu.Unlock()

	if !ok {
		return nil
	}

	if s.transport.Snapshot().IsActive(cur) {
		zlog.Debug().Msgf("player: track already active, skipping load: track=%s", cur.Key())
		return nil
	}

	s.mu.Lock()
	s.isLoading = true
	s.loadErr = nil
	s.mu.Unlock()

	err := s.transport.Load(ctx, cur, loop)

	s.mu.Lock()
	s.isLoading = false
	s.loadErr = err
	s.mu.Unlock()

	if err != nil {
		return err
	}

	s.prefetchNext()
	return nil
}

// prefetchNext warms the next track's media in the background.
func (s *Screen) prefetchNext() {
	if !s.config.PrefetchNext || s.prefetcher == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.prefetchCtx.Err() != nil {
		return
	}
	next, ok := s.queue.Peek()
	if !ok || !next.HasMedia() {
		return
	}

	// Added under mu so Unmount never waits on a group that is still growing.
	s.prefetchWG.Add(1)
	go func() {
		defer s.prefetchWG.Done()
		if err := s.prefetcher.Prefetch(s.prefetchCtx, next.MediaRef); err != nil {
			zlog.Warn().Err(err).Msgf("player: prefetch failed: track=%s", next.Key())
			return
		}
		zlog.Debug().Msgf("player: prefetched next track: track=%s", next.Key())
	}()
}

// Retry re-invokes the failed load.
func (s *Screen) Retry(ctx context.Context) error {
	s.mu.Lock()
	route := s.route
	mounted := s.queue != nil
	s.mu.Unlock()

	if !mounted {
		return s.mount(ctx, route)
	}
	return s.syncLoad(ctx)
}

// Next navigates to the following track. It reports whether navigation
// happened.
func (s *Screen) Next() bool {
	s.mu.Lock()
	if s.queue == nil {
		s.mu.Unlock()
		return false
	}
	next, ok := s.queue.Advance()
	moduleID := s.route.ModuleID
	s.mu.Unlock()

	if !ok {
		return false
	}
	s.navigator.Replace(nav.Route{Name: RouteName, ModuleID: moduleID, ContentID: next.ID})
	return true
}

// Previous navigates back through history, or to the preceding track.
func (s *Screen) Previous() bool {
	s.mu.Lock()
	if s.queue == nil {
		s.mu.Unlock()
		return false
	}
	prev, ok := s.queue.Back()
	moduleID := s.route.ModuleID
	s.mu.Unlock()

	if !ok {
		return false
	}
	s.navigator.Replace(nav.Route{Name: RouteName, ModuleID: moduleID, ContentID: prev.ID})
	return true
}

// ToggleShuffle switches the queue between shuffled and module order.
func (s *Screen) ToggleShuffle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queue == nil {
		return false
	}
	s.queue.SetShuffled(!s.queue.Shuffled(), s.rng)
	zlog.Debug().Msgf("player: shuffle toggled: shuffled=%v", s.queue.Shuffled())
	return s.queue.Shuffled()
}

// ToggleLoop flips the loop flag of the screen and the session.
func (s *Screen) ToggleLoop(ctx context.Context) bool {
	s.mu.Lock()
	s.isLooping = !s.isLooping
	looping := s.isLooping
	s.mu.Unlock()

	s.transport.SetLooping(ctx, looping)
	return looping
}

// TogglePlayPause toggles the session transport.
func (s *Screen) TogglePlayPause(ctx context.Context) {
	s.transport.TogglePlayPause(ctx)
}

// SeekBar returns the screen's seek bar.
func (s *Screen) SeekBar() *SeekBar {
	return s.seekBar
}

// BeginDrag starts a seek bar drag.
func (s *Screen) BeginDrag(ctx context.Context) {
	s.seekBar.BeginDrag(ctx)
}

// DragTo moves the seek bar thumb.
func (s *Screen) DragTo(x float64) {
	s.seekBar.DragTo(x)
}

// EndDrag commits the seek bar drag.
func (s *Screen) EndDrag(ctx context.Context) {
	s.seekBar.EndDrag(ctx)
}

// Tap seeks to x on the seek bar.
func (s *Screen) Tap(ctx context.Context, x float64) {
	s.seekBar.Tap(ctx, x)
}

// Queue returns a copy of the queue tracks and the current index.
func (s *Screen) Queue() ([]track.Track, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queue == nil {
		return nil, -1
	}
	return s.queue.Tracks(), s.queue.Index()
}

// Route returns the route the screen shows.
func (s *Screen) Route() nav.Route {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.route
}

// View returns the current screen state.
func (s *Screen) View() View {
	snap := s.transport.Snapshot()
	progress := s.seekBar.Value()
	dragging := s.seekBar.Dragging()

	s.mu.Lock()
	defer s.mu.Unlock()

	v := View{
		ModuleID:       s.route.ModuleID,
		IsLoading:      s.isLoading,
		Err:            s.loadErr,
		Position:       s.position,
		Duration:       s.duration,
		Progress:       progress,
		IsBuffering:    snap.IsBuffering,
		BufferProgress: snap.BufferProgress,
		IsLooping:      s.isLooping,
		IsDragging:     dragging,
		Index:          -1,
	}

	var lookupErr *module.LookupError
	var loadErr *playback.LoadError
	v.CanGoBack = errors.As(s.loadErr, &lookupErr)
	v.CanRetry = errors.As(s.loadErr, &loadErr)

	if s.module != nil {
		v.ModuleName = s.module.Name
	}
	if s.queue != nil {
		v.Index = s.queue.Index()
		v.Len = s.queue.Len()
		v.IsRandom = s.queue.Shuffled()
		v.HasNext = s.queue.HasNext()
		v.HasPrevious = s.queue.HasPrevious()
		if cur, ok := s.queue.Current(); ok {
			v.Track = &cur
			v.IsPlaying = snap.IsActive(cur) && snap.IsPlaying
		}
	}
	return v
}

// Unmount detaches the screen from the session and stops prefetching.
func (s *Screen) Unmount() {
	s.mu.Lock()
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.prefetchCancel()
	s.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	s.prefetchWG.Wait()
}

func (s *Screen) onPlayback(e playback.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		cur track.Track
		ok  bool
	)
	if s.queue != nil {
		cur, ok = s.queue.Current()
	}
	if !ok || !e.Snapshot.IsActive(cur) {
		if e.Type == playback.EventTrackUnloaded {
			s.position, s.duration = 0, 0
		}
		return
	}

	s.position = e.Snapshot.Position
	s.duration = e.Snapshot.Duration
}
