// Package track provides the Track domain entity.
package track

import (
	"fmt"
	"time"
)

// Track represents a single playable audio item belonging to a module.
// Track IDs are only unique inside their module, so identity is the
// (ModuleID, ID) pair.
type Track struct {
	ID           string        // Track ID (unique within its module)
	ModuleID     string        // Owning module ID
	Name         string        // Display name
	MediaRef     string        // Media reference (path, file://, http(s)://, s3://)
	Duration     time.Duration // Track duration as reported by the data source
	ThumbnailRef string        // Artwork reference
}

// Key identifies a track across modules.
type Key struct {
	ModuleID string
	TrackID  string
}

// String returns the "module/track" form of the key.
func (k Key) String() string {
	return fmt.Sprintf("%s/%s", k.ModuleID, k.TrackID)
}

// Key returns the module-scoped identity of the track.
func (t Track) Key() Key {
	return Key{ModuleID: t.ModuleID, TrackID: t.ID}
}

// SameAs reports whether both tracks refer to the same module entry.
func (t Track) SameAs(other Track) bool {
	return t.Key() == other.Key()
}

// HasMedia reports whether the track carries a media reference.
func (t Track) HasMedia() bool {
	return t.MediaRef != ""
}
