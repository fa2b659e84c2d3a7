package connect

import (
	"context"
	"strings"

	"connectrpc.com/connect"
)

// Client is a typed client for the player service.
type Client struct {
	listModules     *connect.Client[Empty, ListModulesResponse]
	reloadCatalog   *connect.Client[Empty, ListModulesResponse]
	getState        *connect.Client[Empty, PlayerState]
	watchState      *connect.Client[Empty, PlayerState]
	open            *connect.Client[OpenRequest, OpenResponse]
	closePlayer     *connect.Client[Empty, Empty]
	togglePlayPause *connect.Client[Empty, PlayerState]
	seek            *connect.Client[SeekRequest, PlayerState]
	next            *connect.Client[Empty, SkipResponse]
	previous        *connect.Client[Empty, SkipResponse]
	toggleShuffle   *connect.Client[Empty, ToggleShuffleResponse]
	setLooping      *connect.Client[SetLoopingRequest, PlayerState]
	swipeMiniPlayer *connect.Client[SwipeMiniPlayerRequest, SwipeMiniPlayerResponse]
	getOfferings    *connect.Client[Empty, GetOfferingsResponse]
	purchase        *connect.Client[PurchaseRequest, EntitlementResponse]
	restore         *connect.Client[Empty, EntitlementResponse]
}

// NewClient creates a client for the service at baseURL. A non-empty token
// is sent with every call.
func NewClient(httpClient connect.HTTPClient, baseURL, token string, opts ...connect.ClientOption) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{
		WithJSON(),
		connect.WithInterceptors(&tokenInterceptor{token: token}),
	}, opts...)

	return &Client{
		listModules:     connect.NewClient[Empty, ListModulesResponse](httpClient, baseURL+ListModulesProcedure, opts...),
		reloadCatalog:   connect.NewClient[Empty, ListModulesResponse](httpClient, baseURL+ReloadCatalogProcedure, opts...),
		getState:        connect.NewClient[Empty, PlayerState](httpClient, baseURL+GetStateProcedure, opts...),
		watchState:      connect.NewClient[Empty, PlayerState](httpClient, baseURL+WatchStateProcedure, opts...),
		open:            connect.NewClient[OpenRequest, OpenResponse](httpClient, baseURL+OpenProcedure, opts...),
		closePlayer:     connect.NewClient[Empty, Empty](httpClient, baseURL+ClosePlayerProcedure, opts...),
		togglePlayPause: connect.NewClient[Empty, PlayerState](httpClient, baseURL+TogglePlayPauseProcedure, opts...),
		seek:            connect.NewClient[SeekRequest, PlayerState](httpClient, baseURL+SeekProcedure, opts...),
		next:            connect.NewClient[Empty, SkipResponse](httpClient, baseURL+NextProcedure, opts...),
		previous:        connect.NewClient[Empty, SkipResponse](httpClient, baseURL+PreviousProcedure, opts...),
		toggleShuffle:   connect.NewClient[Empty, ToggleShuffleResponse](httpClient, baseURL+ToggleShuffleProcedure, opts...),
		setLooping:      connect.NewClient[SetLoopingRequest, PlayerState](httpClient, baseURL+SetLoopingProcedure, opts...),
		swipeMiniPlayer: connect.NewClient[SwipeMiniPlayerRequest, SwipeMiniPlayerResponse](httpClient, baseURL+SwipeMiniPlayerProcedure, opts...),
		getOfferings:    connect.NewClient[Empty, GetOfferingsResponse](httpClient, baseURL+GetOfferingsProcedure, opts...),
		purchase:        connect.NewClient[PurchaseRequest, EntitlementResponse](httpClient, baseURL+PurchaseProcedure, opts...),
		restore:         connect.NewClient[Empty, EntitlementResponse](httpClient, baseURL+RestoreProcedure, opts...),
	}
}

func call[Req, Res any](ctx context.Context, c *connect.Client[Req, Res], msg *Req) (*Res, error) {
	resp, err := c.CallUnary(ctx, connect.NewRequest(msg))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

func (c *Client) ListModules(ctx context.Context) (*ListModulesResponse, error) {
	return call(ctx, c.listModules, &Empty{})
}

func (c *Client) ReloadCatalog(ctx context.Context) (*ListModulesResponse, error) {
	return call(ctx, c.reloadCatalog, &Empty{})
}

func (c *Client) GetState(ctx context.Context) (*PlayerState, error) {
	return call(ctx, c.getState, &Empty{})
}

// WatchState calls fn for every streamed state until ctx is done, the
// stream ends, or fn returns false.
func (c *Client) WatchState(ctx context.Context, fn func(*PlayerState) bool) error {
	stream, err := c.watchState.CallServerStream(ctx, connect.NewRequest(&Empty{}))
	if err != nil {
		return err
	}
	defer stream.Close()

	for stream.Receive() {
		if !fn(stream.Msg()) {
			return nil
		}
	}
	if err := stream.Err(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func (c *Client) Open(ctx context.Context, moduleID, trackID string) (*OpenResponse, error) {
	return call(ctx, c.open, &OpenRequest{ModuleID: moduleID, TrackID: trackID})
}

func (c *Client) ClosePlayer(ctx context.Context) error {
	_, err := call(ctx, c.closePlayer, &Empty{})
	return err
}

func (c *Client) TogglePlayPause(ctx context.Context) (*PlayerState, error) {
	return call(ctx, c.togglePlayPause, &Empty{})
}

func (c *Client) Seek(ctx context.Context, positionMs int64) (*PlayerState, error) {
	return call(ctx, c.seek, &SeekRequest{PositionMs: positionMs})
}

func (c *Client) Next(ctx context.Context) (bool, error) {
	resp, err := call(ctx, c.next, &Empty{})
	if err != nil {
		return false, err
	}
	return resp.Moved, nil
}

func (c *Client) Previous(ctx context.Context) (bool, error) {
	resp, err := call(ctx, c.previous, &Empty{})
	if err != nil {
		return false, err
	}
	return resp.Moved, nil
}

func (c *Client) ToggleShuffle(ctx context.Context) (bool, error) {
	resp, err := call(ctx, c.toggleShuffle, &Empty{})
	if err != nil {
		return false, err
	}
	return resp.IsRandom, nil
}

func (c *Client) SetLooping(ctx context.Context, looping bool) (*PlayerState, error) {
	return call(ctx, c.setLooping, &SetLoopingRequest{Looping: looping})
}

func (c *Client) SwipeMiniPlayer(ctx context.Context, offset float64) (bool, error) {
	resp, err := call(ctx, c.swipeMiniPlayer, &SwipeMiniPlayerRequest{Offset: offset})
	if err != nil {
		return false, err
	}
	return resp.Dismissed, nil
}

func (c *Client) GetOfferings(ctx context.Context) (*GetOfferingsResponse, error) {
	return call(ctx, c.getOfferings, &Empty{})
}

func (c *Client) Purchase(ctx context.Context, packageID string) (bool, error) {
	resp, err := call(ctx, c.purchase, &PurchaseRequest{PackageID: packageID})
	if err != nil {
		return false, err
	}
	return resp.Premium, nil
}

func (c *Client) Restore(ctx context.Context) (bool, error) {
	resp, err := call(ctx, c.restore, &Empty{})
	if err != nil {
		return false, err
	}
	return resp.Premium, nil
}
