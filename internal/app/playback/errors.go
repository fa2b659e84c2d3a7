package playback

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/osa030/trackbox/internal/domain/track"
)

// ErrMissingMediaRef is the cause of a LoadError for a track without media.
var ErrMissingMediaRef = errors.New("track has no media reference")

// LoadError is returned by Load after the session has been reset.
type LoadError struct {
	Track track.Track
	Cause error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load track %s: %v", e.Track.Key(), e.Cause)
}

func (e *LoadError) Unwrap() error {
	return e.Cause
}

// TransportError reports a failed operation on an established handle.
// It is never returned to callers; it is published as EventTransportError.
type TransportError struct {
	Op    string
	Cause error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Cause)
}

func (e *TransportError) Unwrap() error {
	return e.Cause
}
