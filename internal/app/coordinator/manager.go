// Package coordinator wires the playback session, the player screens and
// the catalog into one application session.
package coordinator

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/trackbox/internal/app/access"
	"github.com/osa030/trackbox/internal/app/billing"
	"github.com/osa030/trackbox/internal/app/catalog"
	"github.com/osa030/trackbox/internal/app/miniplayer"
	"github.com/osa030/trackbox/internal/app/nav"
	"github.com/osa030/trackbox/internal/app/playback"
	"github.com/osa030/trackbox/internal/app/player"
	"github.com/osa030/trackbox/internal/domain/module"
	"github.com/osa030/trackbox/internal/domain/track"
	"github.com/osa030/trackbox/internal/infra/config"
	"github.com/osa030/trackbox/internal/infra/media"
)

var (
	ErrNotStarted     = errors.New("session is not started")
	ErrAlreadyStarted = errors.New("session is already started")
	ErrPlayerClosed   = errors.New("player is not open")
	ErrNoBilling      = errors.New("billing is not configured")
)

// AccessError is returned by Open when an access filter rejects the track.
type AccessError struct {
	ModuleID string
	TrackID  string
	Code     string
}

func (e *AccessError) Error() string {
	return fmt.Sprintf("access denied: module_id=%s track_id=%s code=%s", e.ModuleID, e.TrackID, e.Code)
}

// Settings is the persisted settings collaborator.
type Settings interface {
	Language(ctx context.Context) (string, error)
	Region(ctx context.Context) (string, error)
	HasSelectedLanguage(ctx context.Context) (bool, error)
}

// Options holds the collaborators of a Manager. Settings, Billing,
// Prefetcher and Animator may be nil.
type Options struct {
	Engine     media.Engine
	Source     catalog.Source
	Prefetcher player.Prefetcher
	Settings   Settings
	Billing    billing.Client
	Animator   miniplayer.Animator
	Rand       *rand.Rand
}

// Status is a snapshot of the application session.
type Status struct {
	Started       bool
	CatalogFailed bool
	CatalogErr    string
	Modules       int
	Route         nav.Route
	PlayerOpen    bool
	MiniVisible   bool
	Playback      playback.Snapshot
	State         playback.State
	Language      string
	Region        string
}

// Manager manages the application session.
type Manager struct {
	mu sync.RWMutex

	// Configuration
	config *config.Config
	opts   Options

	// Components
	controller *playback.Controller
	router     *nav.Router
	mini       *miniplayer.MiniPlayer
	screen     *player.Screen
	access     *access.Chain
	premium    *access.PremiumFilter
	loader     *catalog.Loader

	// Session state
	started       bool
	catalog       *module.Catalog
	catalogFailed bool
	catalogErr    error
	language      string
	region        string

	unsubscribes []func()

	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// NewManager creates a new session manager.
func NewManager(cfg *config.Config, opts Options) (*Manager, error) {
	if opts.Engine == nil {
		return nil, errors.New("media engine is required")
	}
	if opts.Source == nil {
		return nil, errors.New("catalog source is required")
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(rand.Int63()))
	}

	ctx, cancel := context.WithCancel(context.Background())

	m := &Manager{
		config: cfg,
		opts:   opts,
		controller: playback.NewController(opts.Engine, playback.Config{
			BufferThreshold: cfg.Playback.BufferThreshold,
			UpdateInterval:  cfg.Playback.UpdateInterval,
			AudioMode:       cfg.Playback.AudioMode,
		}),
		router:  nav.NewRouter(nav.Route{Name: nav.RouteHome}),
		access:  access.NewChain(),
		loader:  catalog.NewLoader(opts.Source),
		catalog: module.NewCatalog(nil),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	m.mini = miniplayer.New(m.controller, catalogRef{m}, m.router.FocusPredicate(player.RouteName), opts.Animator, miniplayer.Config{
		DismissThreshold: cfg.MiniPlayer.DismissThreshold,
		FadeDistance:     cfg.MiniPlayer.FadeDistance,
		DirectionRatio:   cfg.MiniPlayer.DirectionRatio,
	})
	m.unsubscribes = append(m.unsubscribes, m.router.Subscribe(m.onRouteChange))

	m.setupFilters()

	return m, nil
}

// setupFilters initializes the access filter chain.
func (m *Manager) setupFilters() {
	cfg := m.config

	// MediaRefFilter
	m.access.Add(&access.MediaRefFilter{})

	// PremiumFilter
	if cfg.IsFilterEnabled("premium_filter") {
		var client access.CustomerInfoGetter
		if m.opts.Billing != nil {
			client = m.opts.Billing
		}
		f := access.NewPremiumFilter(client, nil)
		if err := f.ValidateConfig(cfg.FilterSettings("premium_filter")); err != nil {
			zlog.Error().Msgf("failed to validate premium filter config: %v", err)
		} else {
			m.access.Add(f)
			m.premium = f
		}
	}
}

// Start loads the persisted settings and the catalog. A catalog failure does
// not fail Start; it is reported through Status and can be retried with
// ReloadCatalog.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}
	m.started = true
	m.mu.Unlock()

	m.loadSettings(ctx)
	res := m.ReloadCatalog(ctx)

	zlog.Info().Msgf("session started: modules=%d catalog_failed=%v", res.Catalog.Len(), res.Failed)
	return nil
}

func (m *Manager) loadSettings(ctx context.Context) {
	if m.opts.Settings == nil {
		return
	}
	lang, err := m.opts.Settings.Language(ctx)
	if err != nil {
		zlog.Warn().Msgf("failed to read language setting: %v", err)
	}
	region, err := m.opts.Settings.Region(ctx)
	if err != nil {
		zlog.Warn().Msgf("failed to read region setting: %v", err)
	}
	selected, _ := m.opts.Settings.HasSelectedLanguage(ctx)

	m.mu.Lock()
	m.language = lang
	m.region = region
	m.mu.Unlock()

	zlog.Info().Msgf("settings loaded: language=%s region=%s language_selected=%v", lang, region, selected)
}

// ReloadCatalog fetches the catalog again and replaces the current one.
func (m *Manager) ReloadCatalog(ctx context.Context) catalog.Result {
	res := m.loader.Load(ctx)

	m.mu.Lock()
	m.catalog = res.Catalog
	m.catalogFailed = res.Failed
	m.catalogErr = res.Err
	m.mu.Unlock()

	return res
}

// Catalog returns the current catalog. It is empty until Start.
func (m *Manager) Catalog() *module.Catalog {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.catalog
}

// Open opens the full player on a track. If the player is already open the
// focused route is replaced; otherwise a new player route is pushed.
func (m *Manager) Open(ctx context.Context, moduleID, trackID string) error {
	m.mu.RLock()
	started := m.started
	cat := m.catalog
	m.mu.RUnlock()
	if !started {
		return ErrNotStarted
	}

	mod, t, err := cat.FindTrack(moduleID, trackID)
	if err != nil {
		return err
	}

	if res := m.access.Execute(ctx, mod, t); !res.Accepted {
		zlog.Info().Msgf("open rejected: track=%s code=%s", t.Key(), res.Code)
		return &AccessError{ModuleID: moduleID, TrackID: trackID, Code: res.Code}
	}

	route := nav.Route{Name: player.RouteName, ModuleID: moduleID, ContentID: trackID}

	m.mu.Lock()
	screen := m.screen
	if screen == nil {
		screen = player.NewScreen(m.controller, m.router, catalogRef{m}, m.opts.Prefetcher, player.Config{
			PrefetchNext: m.config.Player.PrefetchNext,
			SeekBarWidth: m.config.Player.SeekBarWidth,
		}, m.opts.Rand)
		m.screen = screen
	}
	m.mu.Unlock()

	if m.router.IsFocused(player.RouteName) {
		err := screen.SetRoute(ctx, route)
		m.router.Replace(route)
		return err
	}
	m.router.Push(route)
	return screen.Mount(ctx, route)
}

// ClosePlayer dismisses the full player. Playback continues and the
// mini-player becomes visible.
func (m *Manager) ClosePlayer() error {
	if !m.router.IsFocused(player.RouteName) {
		return ErrPlayerClosed
	}

	m.mu.Lock()
	screen := m.screen
	m.screen = nil
	m.mu.Unlock()

	m.router.Pop()
	if screen != nil {
		screen.Unmount()
	}
	return nil
}

// Player returns the open player screen.
func (m *Manager) Player() (*player.Screen, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.screen, m.screen != nil
}

// MiniPlayer returns the mini-player.
func (m *Manager) MiniPlayer() *miniplayer.MiniPlayer {
	return m.mini
}

// Playback returns the playback session controller.
func (m *Manager) Playback() *playback.Controller {
	return m.controller
}

// Router returns the navigation router.
func (m *Manager) Router() *nav.Router {
	return m.router
}

// Offerings returns the billing offerings.
func (m *Manager) Offerings(ctx context.Context) (*billing.Offerings, error) {
	if m.opts.Billing == nil {
		return nil, ErrNoBilling
	}
	return m.opts.Billing.GetOfferings(ctx)
}

// Purchase buys the package and refreshes premium access.
func (m *Manager) Purchase(ctx context.Context, packageID string) (*billing.CustomerInfo, error) {
	offerings, err := m.Offerings(ctx)
	if err != nil {
		return nil, err
	}
	pkg, err := offerings.FindPackage(packageID)
	if err != nil {
		return nil, err
	}
	info, err := m.opts.Billing.PurchasePackage(ctx, pkg)
	if err != nil {
		return nil, err
	}
	m.invalidatePremium()
	return info, nil
}

// Restore restores previous purchases and refreshes premium access.
func (m *Manager) Restore(ctx context.Context) (*billing.CustomerInfo, error) {
	if m.opts.Billing == nil {
		return nil, ErrNoBilling
	}
	info, err := m.opts.Billing.RestorePurchases(ctx)
	if err != nil {
		return nil, err
	}
	m.invalidatePremium()
	return info, nil
}

func (m *Manager) invalidatePremium() {
	if m.premium != nil {
		m.premium.Invalidate()
	}
}

// Status returns the current session status.
func (m *Manager) Status() *Status {
	snap := m.controller.Snapshot()
	route := m.router.Focused()
	visible := m.mini.Visible()

	m.mu.RLock()
	defer m.mu.RUnlock()

	st := &Status{
		Started:       m.started,
		CatalogFailed: m.catalogFailed,
		Modules:       m.catalog.Len(),
		Route:         route,
		PlayerOpen:    m.screen != nil,
		MiniVisible:   visible,
		Playback:      snap,
		State:         snap.State(),
		Language:      m.language,
		Region:        m.region,
	}
	if m.catalogErr != nil {
		st.CatalogErr = m.catalogErr.Error()
	}
	return st
}

// Done returns a channel that is closed when the session is closed.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// Close releases the session. The active track is unloaded.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		m.cancel()

		m.mu.Lock()
		screen := m.screen
		m.screen = nil
		unsubscribes := m.unsubscribes
		m.unsubscribes = nil
		m.mu.Unlock()

		for _, unsubscribe := range unsubscribes {
			unsubscribe()
		}
		if screen != nil {
			screen.Unmount()
		}
		m.mini.Close()
		m.controller.Unload(context.Background())
		m.controller.Close()

		close(m.done)
		zlog.Info().Msg("session closed")
	})
}

// onRouteChange forwards player navigation to the mounted screen. Pushes
// are applied by Open itself.
func (m *Manager) onRouteChange(change nav.Change) {
	m.mini.Reset()

	if change.Kind != nav.ChangeReplace || !player.IsFocusedRoute(change.Focused) {
		return
	}

	m.mu.RLock()
	screen := m.screen
	m.mu.RUnlock()
	if screen == nil || screen.Route() == change.Focused {
		return
	}

	if err := screen.SetRoute(m.ctx, change.Focused); err != nil {
		zlog.Warn().Msgf("player navigation failed: module_id=%s content_id=%s error=%v",
			change.Focused.ModuleID, change.Focused.ContentID, err)
	}
}

// catalogRef resolves lookups against the manager's current catalog.
type catalogRef struct {
	m *Manager
}

func (c catalogRef) Find(moduleID string) (*module.Module, error) {
	return c.m.Catalog().Find(moduleID)
}

func (c catalogRef) FindTrack(moduleID, trackID string) (*module.Module, track.Track, error) {
	return c.m.Catalog().FindTrack(moduleID, trackID)
}
