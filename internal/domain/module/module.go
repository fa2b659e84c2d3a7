// Package module provides the Module domain entity and catalog lookups.
package module

import (
	"fmt"
	"time"

	"github.com/samber/lo"

	"github.com/osa030/trackbox/internal/domain/track"
)

// Module represents a named, ordered collection of tracks.
// Track order defines next/previous semantics.
type Module struct {
	ID       string        // Module ID
	Name     string        // Display name
	ImageRef string        // Artwork reference
	Premium  bool          // Requires a premium entitlement
	Tracks   []track.Track // Tracks in play order
}

// TrackIDs returns all track IDs in the module.
func (m *Module) TrackIDs() []string {
	return lo.Map(m.Tracks, func(t track.Track, _ int) string {
		return t.ID
	})
}

// TotalDuration returns the total duration of all tracks.
func (m *Module) TotalDuration() time.Duration {
	return lo.SumBy(m.Tracks, func(t track.Track) time.Duration {
		return t.Duration
	})
}

// IndexOf returns the position of the track in the module, or -1.
func (m *Module) IndexOf(trackID string) int {
	_, idx, ok := lo.FindIndexOf(m.Tracks, func(t track.Track) bool {
		return t.ID == trackID
	})
	if !ok {
		return -1
	}
	return idx
}

// TrackAt returns the track at index i.
func (m *Module) TrackAt(i int) (track.Track, bool) {
	if i < 0 || i >= len(m.Tracks) {
		return track.Track{}, false
	}
	return m.Tracks[i], true
}

// Adjacent returns the track delta positions away from trackID.
// ok is false when trackID is unknown or the target is out of range.
func (m *Module) Adjacent(trackID string, delta int) (track.Track, bool) {
	idx := m.IndexOf(trackID)
	if idx < 0 {
		return track.Track{}, false
	}
	return m.TrackAt(idx + delta)
}

// Normalize stamps the module ID on every track.
func (m *Module) Normalize() {
	for i := range m.Tracks {
		m.Tracks[i].ModuleID = m.ID
	}
}

// LookupError reports a module or track that could not be found.
// It carries the identifiers so the UI can show them.
type LookupError struct {
	ModuleID string
	TrackID  string
}

func (e *LookupError) Error() string {
	if e.TrackID == "" {
		return fmt.Sprintf("module not found: module_id=%s", e.ModuleID)
	}
	return fmt.Sprintf("track not found: module_id=%s track_id=%s", e.ModuleID, e.TrackID)
}

// Catalog is the ordered set of modules fetched from the data source.
type Catalog struct {
	Modules []Module
}

// NewCatalog creates a catalog and normalizes track ownership.
func NewCatalog(modules []Module) *Catalog {
	c := &Catalog{Modules: make([]Module, len(modules))}
	copy(c.Modules, modules)
	for i := range c.Modules {
		c.Modules[i].Normalize()
	}
	return c
}

// Len returns the number of modules.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Modules)
}

// Find returns the module with the given ID.
func (c *Catalog) Find(moduleID string) (*Module, error) {
	if c != nil {
		for i := range c.Modules {
			if c.Modules[i].ID == moduleID {
				return &c.Modules[i], nil
			}
		}
	}
	return nil, &LookupError{ModuleID: moduleID}
}

// FindTrack returns the track, scoped by module.
func (c *Catalog) FindTrack(moduleID, trackID string) (*Module, track.Track, error) {
	m, err := c.Find(moduleID)
	if err != nil {
		return nil, track.Track{}, err
	}
	idx := m.IndexOf(trackID)
	if idx < 0 {
		return m, track.Track{}, &LookupError{ModuleID: moduleID, TrackID: trackID}
	}
	return m, m.Tracks[idx], nil
}
