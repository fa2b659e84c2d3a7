package module

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/trackbox/internal/domain/track"
)

func TestModule_TrackIDs(t *testing.T) {
	tests := []struct {
		name     string
		tracks   []track.Track
		expected []string
	}{
		{
			name:     "empty module",
			tracks:   []track.Track{},
			expected: []string{},
		},
		{
			name:     "single track",
			tracks:   []track.Track{{ID: "track-1"}},
			expected: []string{"track-1"},
		},
		{
			name: "multiple tracks",
			tracks: []track.Track{
				{ID: "track-1"},
				{ID: "track-2"},
				{ID: "track-3"},
			},
			expected: []string{"track-1", "track-2", "track-3"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &Module{ID: "module-1", Tracks: tt.tracks}
			assert.Equal(t, tt.expected, m.TrackIDs())
		})
	}
}

func TestModule_TotalDuration(t *testing.T) {
	m := &Module{
		ID: "module-1",
		Tracks: []track.Track{
			{ID: "track-1", Duration: 2 * time.Minute},
			{ID: "track-2", Duration: 3*time.Minute + 30*time.Second},
			{ID: "track-3", Duration: 4 * time.Minute},
		},
	}

	assert.Equal(t, 9*time.Minute+30*time.Second, m.TotalDuration())
	assert.Equal(t, time.Duration(0), (&Module{}).TotalDuration())
}

func TestModule_Adjacent(t *testing.T) {
	m := &Module{
		ID: "module-1",
		Tracks: []track.Track{
			{ID: "a"}, {ID: "b"}, {ID: "c"},
		},
	}

	tests := []struct {
		name    string
		trackID string
		delta   int
		wantID  string
		wantOK  bool
	}{
		{name: "next from first", trackID: "a", delta: 1, wantID: "b", wantOK: true},
		{name: "previous from last", trackID: "c", delta: -1, wantID: "b", wantOK: true},
		{name: "next from last", trackID: "c", delta: 1, wantOK: false},
		{name: "previous from first", trackID: "a", delta: -1, wantOK: false},
		{name: "unknown track", trackID: "zzz", delta: 1, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := m.Adjacent(tt.trackID, tt.delta)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.wantID, got.ID)
			}
		})
	}
}

func TestCatalog_FindTrack(t *testing.T) {
	c := NewCatalog([]Module{
		{ID: "calm", Tracks: []track.Track{{ID: "1", Name: "Calm One"}}},
		{ID: "focus", Tracks: []track.Track{{ID: "1", Name: "Focus One"}}},
	})

	m, trk, err := c.FindTrack("focus", "1")
	require.NoError(t, err)
	assert.Equal(t, "focus", m.ID)
	assert.Equal(t, "Focus One", trk.Name)
	assert.Equal(t, "focus", trk.ModuleID, "catalog should stamp the owning module")

	_, _, err = c.FindTrack("focus", "2")
	var lookupErr *LookupError
	require.ErrorAs(t, err, &lookupErr)
	assert.Equal(t, "focus", lookupErr.ModuleID)
	assert.Equal(t, "2", lookupErr.TrackID)
	assert.Contains(t, err.Error(), "track_id=2")

	_, _, err = c.FindTrack("sleep", "1")
	require.ErrorAs(t, err, &lookupErr)
	assert.Equal(t, "sleep", lookupErr.ModuleID)
	assert.Empty(t, lookupErr.TrackID)
}

func TestCatalog_NilSafe(t *testing.T) {
	var c *Catalog
	assert.Equal(t, 0, c.Len())
	_, err := c.Find("x")
	assert.Error(t, err)
}
