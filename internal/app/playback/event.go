package playback

// EventType represents a playback event type.
type EventType int

const (
	EventTrackLoading     EventType = iota // Load started, track set, buffer cleared
	EventTrackLoaded                       // Handle created and primed
	EventLoadFailed                        // Load failed, session reset
	EventTrackUnloaded                     // Handle released, session reset
	EventStatusUpdated                     // Position, buffer or transport state changed
	EventBufferingChanged                  // Buffering flag flipped
	EventTransportError                    // Swallowed play/pause/seek/loop/unload failure
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventTrackLoading:
		return "track_loading"
	case EventTrackLoaded:
		return "track_loaded"
	case EventLoadFailed:
		return "load_failed"
	case EventTrackUnloaded:
		return "track_unloaded"
	case EventStatusUpdated:
		return "status_updated"
	case EventBufferingChanged:
		return "buffering_changed"
	case EventTransportError:
		return "transport_error"
	default:
		return "unknown"
	}
}

// Event represents a playback event.
type Event struct {
	Type     EventType
	Snapshot Snapshot // Session state after the change
	Err      error    // *LoadError or *TransportError for failure events
}
