//go:build cgo

package catalog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/trackbox/internal/infra/config"
)

// The database source opens sqlite, which needs cgo.
func TestNewChainFromConfig_Database(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	path := writeCatalog(t, catalogYAML)
	cfg := &config.Config{Catalog: config.CatalogConfig{Sources: []config.SourceConfig{
		{Type: "supabase", DisplayName: "Cloud", Settings: map[string]any{
			"url": server.URL, "api_key": "anon", "max_retries": 1, "timeout": "2s",
		}},
		{Type: "database", Settings: map[string]any{
			"backend": "sqlite", "dsn": "file:factory?mode=memory&cache=shared", "auto_migrate": true,
		}},
		{Type: "file", DisplayName: "Bundled", Settings: map[string]any{"path": path}},
	}}}

	chain, err := NewChainFromConfig(context.Background(), cfg)
	require.NoError(t, err)
	defer chain.Close()

	sources := chain.Sources()
	require.Len(t, sources, 3)
	assert.Equal(t, "Cloud", sources[0].DisplayName)
	assert.Equal(t, "supabase", sources[0].Source.Name())
	assert.Equal(t, "database", sources[1].DisplayName)
	assert.Equal(t, "file", sources[2].Source.Name())

	res := NewLoader(chain).Load(context.Background())
	require.False(t, res.Failed)
	assert.Equal(t, 2, res.Catalog.Len(), "falls back to the bundled file")
}
