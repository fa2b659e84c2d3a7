package connect

// ServiceName is the fully-qualified name of the player service.
const ServiceName = "trackbox.v1.PlayerService"

// Procedure paths.
const (
	ListModulesProcedure     = "/" + ServiceName + "/ListModules"
	ReloadCatalogProcedure   = "/" + ServiceName + "/ReloadCatalog"
	GetStateProcedure        = "/" + ServiceName + "/GetState"
	WatchStateProcedure      = "/" + ServiceName + "/WatchState"
	OpenProcedure            = "/" + ServiceName + "/Open"
	ClosePlayerProcedure     = "/" + ServiceName + "/ClosePlayer"
	TogglePlayPauseProcedure = "/" + ServiceName + "/TogglePlayPause"
	SeekProcedure            = "/" + ServiceName + "/Seek"
	NextProcedure            = "/" + ServiceName + "/Next"
	PreviousProcedure        = "/" + ServiceName + "/Previous"
	ToggleShuffleProcedure   = "/" + ServiceName + "/ToggleShuffle"
	SetLoopingProcedure      = "/" + ServiceName + "/SetLooping"
	SwipeMiniPlayerProcedure = "/" + ServiceName + "/SwipeMiniPlayer"
	GetOfferingsProcedure    = "/" + ServiceName + "/GetOfferings"
	PurchaseProcedure        = "/" + ServiceName + "/Purchase"
	RestoreProcedure         = "/" + ServiceName + "/Restore"
)

// Empty is the request or response of procedures without parameters.
type Empty struct{}

type TrackInfo struct {
	ID         string `json:"id"`
	ModuleID   string `json:"module_id"`
	Name       string `json:"name"`
	DurationMs int64  `json:"duration_ms"`
	Thumbnail  string `json:"thumbnail,omitempty"`
	HasMedia   bool   `json:"has_media"`
}

type ModuleInfo struct {
	ID      string      `json:"id"`
	Name    string      `json:"name"`
	Image   string      `json:"image,omitempty"`
	Premium bool        `json:"premium"`
	Tracks  []TrackInfo `json:"tracks"`
}

type ListModulesResponse struct {
	Modules       []ModuleInfo `json:"modules"`
	CatalogFailed bool         `json:"catalog_failed"`
	Error         string       `json:"error,omitempty"`
}

// PlayerState is the combined state of the session, the full player and
// the mini-player.
type PlayerState struct {
	Route          string     `json:"route"`
	PlayerOpen     bool       `json:"player_open"`
	MiniVisible    bool       `json:"mini_visible"`
	State          string     `json:"state"`
	Track          *TrackInfo `json:"track,omitempty"`
	IsPlaying      bool       `json:"is_playing"`
	IsBuffering    bool       `json:"is_buffering"`
	BufferProgress float64    `json:"buffer_progress"`
	PositionMs     int64      `json:"position_ms"`
	DurationMs     int64      `json:"duration_ms"`
	IsLooping      bool       `json:"is_looping"`
	IsRandom       bool       `json:"is_random"`
	HasNext        bool       `json:"has_next"`
	HasPrevious    bool       `json:"has_previous"`
	QueueIndex     int        `json:"queue_index"`
	QueueLen       int        `json:"queue_len"`
	PlayerError    string     `json:"player_error,omitempty"`
	CatalogFailed  bool       `json:"catalog_failed"`
	Language       string     `json:"language,omitempty"`
	Region         string     `json:"region,omitempty"`
}

type OpenRequest struct {
	ModuleID string `json:"module_id"`
	TrackID  string `json:"track_id"`
}

type OpenResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

type SeekRequest struct {
	PositionMs int64 `json:"position_ms"`
}

type SkipResponse struct {
	Moved bool `json:"moved"`
}

type ToggleShuffleResponse struct {
	IsRandom bool `json:"is_random"`
}

type SetLoopingRequest struct {
	Looping bool `json:"looping"`
}

// SwipeMiniPlayerRequest replays a horizontal swipe on the mini-player:
// the pan ends at Offset points from the resting position.
type SwipeMiniPlayerRequest struct {
	Offset float64 `json:"offset"`
}

type SwipeMiniPlayerResponse struct {
	Dismissed bool `json:"dismissed"`
}

type PackageInfo struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	ProductID   string `json:"product_id"`
	PriceString string `json:"price_string,omitempty"`
}

type GetOfferingsResponse struct {
	CurrentID string        `json:"current_id"`
	Packages  []PackageInfo `json:"packages"`
}

type PurchaseRequest struct {
	PackageID string `json:"package_id"`
}

type EntitlementResponse struct {
	Premium bool `json:"premium"`
}
