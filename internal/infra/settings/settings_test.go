package settings

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_GetSetDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "theme")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "theme", "dark"))
	v, ok, err := s.Get(ctx, "theme")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "dark", v)

	require.NoError(t, s.Set(ctx, "theme", "light"))
	v, _, err = s.Get(ctx, "theme")
	require.NoError(t, err)
	assert.Equal(t, "light", v)

	require.NoError(t, s.Delete(ctx, "theme"))
	_, ok, err = s.Get(ctx, "theme")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, s.Delete(ctx, "theme"), "deleting twice is fine")
}

func TestStore_Language(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	lang, err := s.Language(ctx)
	require.NoError(t, err)
	assert.Equal(t, DefaultLanguage, lang)

	selected, err := s.HasSelectedLanguage(ctx)
	require.NoError(t, err)
	assert.False(t, selected)

	require.NoError(t, s.SetLanguage(ctx, "ja"))

	lang, err = s.Language(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ja", lang)

	selected, err = s.HasSelectedLanguage(ctx)
	require.NoError(t, err)
	assert.True(t, selected)

	assert.Error(t, s.SetLanguage(ctx, ""))
}

func TestStore_Region(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	region, err := s.Region(ctx)
	require.NoError(t, err)
	assert.Equal(t, DefaultRegion, region)

	require.NoError(t, s.SetRegion(ctx, "JP"))
	region, err = s.Region(ctx)
	require.NoError(t, err)
	assert.Equal(t, "JP", region)

	all, err := s.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{KeyRegion: "JP"}, all)

	assert.Error(t, s.SetRegion(ctx, ""))
}

func TestStore_Persists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.db")
	ctx := context.Background()

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.SetLanguage(ctx, "de"))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	lang, err := s.Language(ctx)
	require.NoError(t, err)
	assert.Equal(t, "de", lang)
}

func TestStore_InvalidFlag(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, KeyHasSelectedLanguage, "maybe"))
	_, err := s.HasSelectedLanguage(ctx)
	assert.Error(t, err)
}
