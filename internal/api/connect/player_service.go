package connect

import (
	"context"
	"net/http"
	"time"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/osa030/trackbox/internal/app/billing"
	"github.com/osa030/trackbox/internal/app/coordinator"
	"github.com/osa030/trackbox/internal/app/nav"
	"github.com/osa030/trackbox/internal/app/playback"
	"github.com/osa030/trackbox/internal/domain/module"
	"github.com/osa030/trackbox/internal/domain/track"
	"github.com/osa030/trackbox/internal/infra/config"
)

// PlayerService implements the PlayerService RPC.
type PlayerService struct {
	session *coordinator.Manager
	config  *config.Config
}

// NewPlayerService creates a new PlayerService.
func NewPlayerService(session *coordinator.Manager, cfg *config.Config) *PlayerService {
	return &PlayerService{
		session: session,
		config:  cfg,
	}
}

// NewPlayerServiceHandler builds the HTTP handler serving every procedure
// of svc and returns the path it should be mounted on.
func NewPlayerServiceHandler(svc *PlayerService, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{WithJSON()}, opts...)

	mux := http.NewServeMux()
	mux.Handle(ListModulesProcedure, connect.NewUnaryHandler(ListModulesProcedure, svc.ListModules, opts...))
	mux.Handle(ReloadCatalogProcedure, connect.NewUnaryHandler(ReloadCatalogProcedure, svc.ReloadCatalog, opts...))
	mux.Handle(GetStateProcedure, connect.NewUnaryHandler(GetStateProcedure, svc.GetState, opts...))
	mux.Handle(WatchStateProcedure, connect.NewServerStreamHandler(WatchStateProcedure, svc.WatchState, opts...))
	mux.Handle(OpenProcedure, connect.NewUnaryHandler(OpenProcedure, svc.Open, opts...))
	mux.Handle(ClosePlayerProcedure, connect.NewUnaryHandler(ClosePlayerProcedure, svc.ClosePlayer, opts...))
	mux.Handle(TogglePlayPauseProcedure, connect.NewUnaryHandler(TogglePlayPauseProcedure, svc.TogglePlayPause, opts...))
	mux.Handle(SeekProcedure, connect.NewUnaryHandler(SeekProcedure, svc.Seek, opts...))
	mux.Handle(NextProcedure, connect.NewUnaryHandler(NextProcedure, svc.Next, opts...))
	mux.Handle(PreviousProcedure, connect.NewUnaryHandler(PreviousProcedure, svc.Previous, opts...))
	mux.Handle(ToggleShuffleProcedure, connect.NewUnaryHandler(ToggleShuffleProcedure, svc.ToggleShuffle, opts...))
	mux.Handle(SetLoopingProcedure, connect.NewUnaryHandler(SetLoopingProcedure, svc.SetLooping, opts...))
	mux.Handle(SwipeMiniPlayerProcedure, connect.NewUnaryHandler(SwipeMiniPlayerProcedure, svc.SwipeMiniPlayer, opts...))
	mux.Handle(GetOfferingsProcedure, connect.NewUnaryHandler(GetOfferingsProcedure, svc.GetOfferings, opts...))
	mux.Handle(PurchaseProcedure, connect.NewUnaryHandler(PurchaseProcedure, svc.Purchase, opts...))
	mux.Handle(RestoreProcedure, connect.NewUnaryHandler(RestoreProcedure, svc.Restore, opts...))

	return "/" + ServiceName + "/", mux
}

// ListModules returns the catalog.
func (s *PlayerService) ListModules(
	ctx context.Context,
	req *connect.Request[Empty],
) (*connect.Response[ListModulesResponse], error) {
	return connect.NewResponse(s.listModules()), nil
}

// ReloadCatalog fetches the catalog again and returns it.
func (s *PlayerService) ReloadCatalog(
	ctx context.Context,
	req *connect.Request[Empty],
) (*connect.Response[ListModulesResponse], error) {
	s.session.ReloadCatalog(ctx)
	return connect.NewResponse(s.listModules()), nil
}

func (s *PlayerService) listModules() *ListModulesResponse {
	status := s.session.Status()
	cat := s.session.Catalog()

	resp := &ListModulesResponse{
		Modules:       lo.Map(cat.Modules, func(m module.Module, _ int) ModuleInfo { return toModuleInfo(m) }),
		CatalogFailed: status.CatalogFailed,
		Error:         status.CatalogErr,
	}
	return resp
}

// GetState returns the current player state.
func (s *PlayerService) GetState(
	ctx context.Context,
	req *connect.Request[Empty],
) (*connect.Response[PlayerState], error) {
	return connect.NewResponse(s.state()), nil
}

// WatchState streams the player state: the current state first, then a new
// state after every playback or navigation change.
func (s *PlayerService) WatchState(
	ctx context.Context,
	req *connect.Request[Empty],
	stream *connect.ServerStream[PlayerState],
) error {
	// Listeners run synchronously on the session; they only mark the state dirty.
	dirty := make(chan struct{}, 1)
	mark := func() {
		select {
		case dirty <- struct{}{}:
		default:
		}
	}
	unsubscribePlayback := s.session.Playback().Subscribe(func(playback.Event) { mark() })
	defer unsubscribePlayback()
	unsubscribeRoutes := s.session.Router().Subscribe(func(nav.Change) { mark() })
	defer unsubscribeRoutes()

	streamID := uuid.NewString()
	zlog.Info().Msgf("api: watch stream opened: stream_id=%s", streamID)
	defer func() {
		zlog.Info().Msgf("api: watch stream closed: stream_id=%s", streamID)
	}()

	if err := stream.Send(s.state()); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.session.Done():
			return nil
		case <-dirty:
			if err := stream.Send(s.state()); err != nil {
				zlog.Debug().Msgf("api: watch stream send failed: stream_id=%s error=%v", streamID, err)
				return err
			}
		}
	}
}

// Open opens the full player on a track. Access rejections are reported in
// the response rather than as errors.
func (s *PlayerService) Open(
	ctx context.Context,
	req *connect.Request[OpenRequest],
) (*connect.Response[OpenResponse], error) {
	err := s.session.Open(ctx, req.Msg.ModuleID, req.Msg.TrackID)

	var accessErr *coordinator.AccessError
	switch {
	case err == nil:
		return connect.NewResponse(&OpenResponse{Success: true}), nil
	case errors.As(err, &accessErr):
		return connect.NewResponse(&OpenResponse{
			Success: false,
			Code:    accessErr.Code,
			Message: accessErr.Error(),
		}), nil
	default:
		return nil, toConnectError(err)
	}
}

// ClosePlayer dismisses the full player.
func (s *PlayerService) ClosePlayer(
	ctx context.Context,
	req *connect.Request[Empty],
) (*connect.Response[Empty], error) {
	if err := s.session.ClosePlayer(); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&Empty{}), nil
}

// TogglePlayPause toggles the session transport.
func (s *PlayerService) TogglePlayPause(
	ctx context.Context,
	req *connect.Request[Empty],
) (*connect.Response[PlayerState], error) {
	if screen, ok := s.session.Player(); ok {
		screen.TogglePlayPause(ctx)
	} else {
		s.session.Playback().TogglePlayPause(ctx)
	}
	return connect.NewResponse(s.state()), nil
}

// Seek moves the playhead of the active track.
func (s *PlayerService) Seek(
	ctx context.Context,
	req *connect.Request[SeekRequest],
) (*connect.Response[PlayerState], error) {
	if req.Msg.PositionMs < 0 {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("position must not be negative"))
	}
	s.session.Playback().Seek(ctx, time.Duration(req.Msg.PositionMs)*time.Millisecond)
	return connect.NewResponse(s.state()), nil
}

// Next moves to the following track: through the player queue when the
// full player is open, otherwise through the mini-player.
func (s *PlayerService) Next(
	ctx context.Context,
	req *connect.Request[Empty],
) (*connect.Response[SkipResponse], error) {
	if screen, ok := s.session.Player(); ok {
		return connect.NewResponse(&SkipResponse{Moved: screen.Next()}), nil
	}
	moved, err := s.session.MiniPlayer().Next(ctx)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&SkipResponse{Moved: moved}), nil
}

// Previous moves to the preceding track.
func (s *PlayerService) Previous(
	ctx context.Context,
	req *connect.Request[Empty],
) (*connect.Response[SkipResponse], error) {
	if screen, ok := s.session.Player(); ok {
		return connect.NewResponse(&SkipResponse{Moved: screen.Previous()}), nil
	}
	moved, err := s.session.MiniPlayer().Previous(ctx)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&SkipResponse{Moved: moved}), nil
}

// ToggleShuffle switches the player queue order.
func (s *PlayerService) ToggleShuffle(
	ctx context.Context,
	req *connect.Request[Empty],
) (*connect.Response[ToggleShuffleResponse], error) {
	screen, ok := s.session.Player()
	if !ok {
		return nil, toConnectError(coordinator.ErrPlayerClosed)
	}
	return connect.NewResponse(&ToggleShuffleResponse{IsRandom: screen.ToggleShuffle()}), nil
}

// SetLooping sets the loop flag.
func (s *PlayerService) SetLooping(
	ctx context.Context,
	req *connect.Request[SetLoopingRequest],
) (*connect.Response[PlayerState], error) {
	if screen, ok := s.session.Player(); ok {
		if screen.View().IsLooping != req.Msg.Looping {
			screen.ToggleLoop(ctx)
		}
	} else {
		s.session.Playback().SetLooping(ctx, req.Msg.Looping)
	}
	return connect.NewResponse(s.state()), nil
}

// SwipeMiniPlayer replays a horizontal swipe on the mini-player.
func (s *PlayerService) SwipeMiniPlayer(
	ctx context.Context,
	req *connect.Request[SwipeMiniPlayerRequest],
) (*connect.Response[SwipeMiniPlayerResponse], error) {
	mini := s.session.MiniPlayer()
	if !mini.Visible() {
		return nil, connect.NewError(connect.CodeFailedPrecondition, errors.New("mini-player is not visible"))
	}
	mini.Move(req.Msg.Offset)
	dismissed := mini.Release(ctx, req.Msg.Offset)
	return connect.NewResponse(&SwipeMiniPlayerResponse{Dismissed: dismissed}), nil
}

// GetOfferings returns the packages of the current offering.
func (s *PlayerService) GetOfferings(
	ctx context.Context,
	req *connect.Request[Empty],
) (*connect.Response[GetOfferingsResponse], error) {
	offerings, err := s.session.Offerings(ctx)
	if err != nil {
		return nil, toConnectError(err)
	}

	resp := &GetOfferingsResponse{CurrentID: offerings.CurrentID}
	if current, ok := offerings.Current(); ok {
		resp.Packages = lo.Map(current.Packages, func(p billing.Package, _ int) PackageInfo {
			return PackageInfo{ID: p.ID, Type: p.Type, ProductID: p.ProductID, PriceString: p.PriceString}
		})
	}
	return connect.NewResponse(resp), nil
}

// Purchase buys a package of the current offering.
func (s *PlayerService) Purchase(
	ctx context.Context,
	req *connect.Request[PurchaseRequest],
) (*connect.Response[EntitlementResponse], error) {
	info, err := s.session.Purchase(ctx, req.Msg.PackageID)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(s.entitlement(info)), nil
}

// Restore restores previous purchases.
func (s *PlayerService) Restore(
	ctx context.Context,
	req *connect.Request[Empty],
) (*connect.Response[EntitlementResponse], error) {
	info, err := s.session.Restore(ctx)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(s.entitlement(info)), nil
}

func (s *PlayerService) entitlement(info *billing.CustomerInfo) *EntitlementResponse {
	return &EntitlementResponse{
		Premium: billing.IsPremium(info, s.config.Billing.EntitlementID, time.Now()),
	}
}

func (s *PlayerService) state() *PlayerState {
	status := s.session.Status()
	snap := status.Playback

	st := &PlayerState{
		Route:          status.Route.Name,
		PlayerOpen:     status.PlayerOpen,
		MiniVisible:    status.MiniVisible,
		State:          status.State.String(),
		IsPlaying:      snap.IsPlaying,
		IsBuffering:    snap.IsBuffering,
		BufferProgress: snap.BufferProgress,
		PositionMs:     snap.Position.Milliseconds(),
		DurationMs:     snap.Duration.Milliseconds(),
		IsLooping:      snap.IsLooping,
		QueueIndex:     -1,
		CatalogFailed:  status.CatalogFailed,
		Language:       status.Language,
		Region:         status.Region,
	}
	if snap.ActiveTrack != nil {
		info := toTrackInfo(*snap.ActiveTrack)
		st.Track = &info
	}

	if screen, ok := s.session.Player(); ok {
		view := screen.View()
		st.IsRandom = view.IsRandom
		st.IsLooping = view.IsLooping
		st.HasNext = view.HasNext
		st.HasPrevious = view.HasPrevious
		st.QueueIndex = view.Index
		st.QueueLen = view.Len
		if view.Err != nil {
			st.PlayerError = view.Err.Error()
		}
	}
	return st
}

func toModuleInfo(m module.Module) ModuleInfo {
	return ModuleInfo{
		ID:      m.ID,
		Name:    m.Name,
		Image:   m.ImageRef,
		Premium: m.Premium,
		Tracks:  lo.Map(m.Tracks, func(t track.Track, _ int) TrackInfo { return toTrackInfo(t) }),
	}
}

func toTrackInfo(t track.Track) TrackInfo {
	return TrackInfo{
		ID:         t.ID,
		ModuleID:   t.ModuleID,
		Name:       t.Name,
		DurationMs: t.Duration.Milliseconds(),
		Thumbnail:  t.ThumbnailRef,
		HasMedia:   t.HasMedia(),
	}
}

// toConnectError maps session errors to Connect codes.
func toConnectError(err error) error {
	var (
		lookupErr *module.LookupError
		loadErr   *playback.LoadError
	)
	switch {
	case errors.Is(err, coordinator.ErrNotStarted):
		return connect.NewError(connect.CodeUnavailable, err)
	case errors.Is(err, coordinator.ErrPlayerClosed):
		return connect.NewError(connect.CodeFailedPrecondition, err)
	case errors.Is(err, coordinator.ErrNoBilling):
		return connect.NewError(connect.CodeUnimplemented, err)
	case errors.Is(err, billing.ErrPackageNotFound), errors.As(err, &lookupErr):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.Is(err, billing.ErrPurchaseCancelled):
		return connect.NewError(connect.CodeCanceled, err)
	case errors.As(err, &loadErr):
		return connect.NewError(connect.CodeUnavailable, err)
	default:
		return connect.NewError(connect.CodeInternal, err)
	}
}
