package catalog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/trackbox/internal/domain/module"
	"github.com/osa030/trackbox/internal/domain/track"
	"github.com/osa030/trackbox/internal/infra/config"
)

type stubSource struct {
	name    string
	modules []module.Module
	err     error
	calls   int
	closed  bool
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) FetchModules(context.Context) ([]module.Module, error) {
	s.calls++
	return s.modules, s.err
}

func (s *stubSource) Close() error {
	s.closed = true
	return nil
}

const catalogYAML = `
modules:
  - id: calm
    name: Calm
    image: art/calm.png
    tracks:
      - id: A
        name: Rain
        media: audio/rain.mp3
        duration: 2m30s
      - id: B
        name: Waves
        media: https://cdn.example.com/waves.mp3
        duration: 3m
  - id: focus
    name: Focus
    premium: true
    tracks:
      - id: F1
        name: Deep
        media: /srv/media/deep.mp3
`

func writeCatalog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "modules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestFileSource_FetchModules(t *testing.T) {
	path := writeCatalog(t, catalogYAML)
	src, err := NewFileSource(map[string]any{"path": path})
	require.NoError(t, err)

	modules, err := src.FetchModules(context.Background())
	require.NoError(t, err)
	require.Len(t, modules, 2)

	dir := filepath.Dir(path)
	calm := modules[0]
	assert.Equal(t, filepath.Join(dir, "art", "calm.png"), calm.ImageRef)
	require.Len(t, calm.Tracks, 2)
	assert.Equal(t, filepath.Join(dir, "audio", "rain.mp3"), calm.Tracks[0].MediaRef)
	assert.Equal(t, 150*time.Second, calm.Tracks[0].Duration)
	assert.Equal(t, "calm", calm.Tracks[0].ModuleID)
	assert.Equal(t, "https://cdn.example.com/waves.mp3", calm.Tracks[1].MediaRef)

	assert.True(t, modules[1].Premium)
	assert.Equal(t, "/srv/media/deep.mp3", modules[1].Tracks[0].MediaRef)
}

func TestFileSource_Errors(t *testing.T) {
	_, err := NewFileSource(map[string]any{})
	assert.Error(t, err, "path is required")

	src, err := NewFileSource(map[string]any{"path": filepath.Join(t.TempDir(), "missing.yaml")})
	require.NoError(t, err)
	_, err = src.FetchModules(context.Background())
	assert.Error(t, err)

	src, err = NewFileSource(map[string]any{"path": writeCatalog(t, "modules: [unterminated")})
	require.NoError(t, err)
	_, err = src.FetchModules(context.Background())
	assert.Error(t, err)
}

func TestChain_FallsBackInOrder(t *testing.T) {
	failing := &stubSource{name: "supabase", err: errors.New("offline")}
	empty := &stubSource{name: "database"}
	backup := &stubSource{name: "file", modules: []module.Module{{ID: "calm"}}}
	unused := &stubSource{name: "file", modules: []module.Module{{ID: "other"}}}

	chain := NewChain([]SourceWithMetadata{
		{Source: failing, DisplayName: "remote"},
		{Source: empty, DisplayName: "db"},
		{Source: backup, DisplayName: "bundled"},
		{Source: unused, DisplayName: "spare"},
	})

	modules, err := chain.FetchModules(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "calm", modules[0].ID)
	assert.Equal(t, 1, failing.calls)
	assert.Equal(t, 1, empty.calls)
	assert.Equal(t, 0, unused.calls)
}

func TestChain_AllFailed(t *testing.T) {
	chain := NewChain([]SourceWithMetadata{
		{Source: &stubSource{name: "a", err: errors.New("first")}, DisplayName: "a"},
		{Source: &stubSource{name: "b", err: errors.New("second")}, DisplayName: "b"},
	})

	_, err := chain.FetchModules(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "second")
}

func TestChain_EmptySuccess(t *testing.T) {
	chain := NewChain([]SourceWithMetadata{
		{Source: &stubSource{name: "a", err: errors.New("down")}, DisplayName: "a"},
		{Source: &stubSource{name: "b"}, DisplayName: "b"},
	})

	modules, err := chain.FetchModules(context.Background())
	require.NoError(t, err)
	assert.Empty(t, modules)
}

func TestChain_CloseReleasesSources(t *testing.T) {
	a := &stubSource{name: "a"}
	b := &stubSource{name: "b"}
	require.NoError(t, NewChain([]SourceWithMetadata{{Source: a}, {Source: b}}).Close())
	assert.True(t, a.closed)
	assert.True(t, b.closed)
}

func TestLoader_Failure(t *testing.T) {
	l := NewLoader(&stubSource{name: "a", err: errors.New("network down")})

	res := l.Load(context.Background())

	assert.True(t, res.Failed)
	assert.Error(t, res.Err)
	require.NotNil(t, res.Catalog)
	assert.Equal(t, 0, res.Catalog.Len())
}

func TestLoader_Sanitizes(t *testing.T) {
	l := NewLoader(&stubSource{name: "a", modules: []module.Module{
		{ID: "calm", Name: "Calm", Tracks: []track.Track{{ID: "A"}, {ID: "B"}, {ID: "A", Name: "dup"}}},
		{ID: "", Name: "Broken"},
		{ID: "calm", Name: "Calm again"},
		{ID: "focus", Name: "Focus"},
	}})

	res := l.Load(context.Background())

	require.False(t, res.Failed)
	require.NoError(t, res.Err)
	require.Equal(t, 2, res.Catalog.Len())
	calm, err := res.Catalog.Find("calm")
	require.NoError(t, err)
	assert.Equal(t, "Calm", calm.Name)
	assert.Equal(t, []string{"A", "B"}, calm.TrackIDs())
	assert.Empty(t, calm.Tracks[0].Name)
	assert.Equal(t, "calm", calm.Tracks[1].ModuleID)
}

func TestNewChainFromConfig(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	path := writeCatalog(t, catalogYAML)
	cfg := &config.Config{Catalog: config.CatalogConfig{Sources: []config.SourceConfig{
		{Type: "supabase", DisplayName: "Cloud", Settings: map[string]any{
			"url": server.URL, "api_key": "anon", "max_retries": 1, "timeout": "2s",
		}},
		{Type: "file", DisplayName: "Bundled", Settings: map[string]any{"path": path}},
	}}}

	chain, err := NewChainFromConfig(context.Background(), cfg)
	require.NoError(t, err)
	defer chain.Close()

	sources := chain.Sources()
	require.Len(t, sources, 2)
	assert.Equal(t, "Cloud", sources[0].DisplayName)
	assert.Equal(t, "file", sources[1].Source.Name())

	res := NewLoader(chain).Load(context.Background())
	require.False(t, res.Failed)
	assert.Equal(t, 2, res.Catalog.Len(), "falls back to the bundled file")
}

func TestNewChainFromConfig_Errors(t *testing.T) {
	tests := []struct {
		name    string
		sources []config.SourceConfig
	}{
		{name: "no sources"},
		{name: "unknown type", sources: []config.SourceConfig{{Type: "ftp"}}},
		{name: "invalid supabase url", sources: []config.SourceConfig{
			{Type: "supabase", Settings: map[string]any{"url": "not a url", "api_key": "k"}},
		}},
		{name: "missing dsn", sources: []config.SourceConfig{{Type: "database", Settings: map[string]any{}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{Catalog: config.CatalogConfig{Sources: tt.sources}}
			_, err := NewChainFromConfig(context.Background(), cfg)
			assert.Error(t, err)
		})
	}
}
