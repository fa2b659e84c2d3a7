//go:build !((linux && cgo) || windows || darwin)

package media

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSilentEngine_BufferedWithoutDuration(t *testing.T) {
	p := filepath.Join(t.TempDir(), "intro.mp3")
	require.NoError(t, os.WriteFile(p, []byte("ID3audio"), 0o644))

	engine := NewEngine(newTestResolver(t))
	h, err := engine.Create(context.Background(), p, Options{UpdateInterval: 10 * time.Millisecond}, func(Status) {})
	require.NoError(t, err)
	defer h.Unload(context.Background())

	require.Eventually(t, func() bool {
		st, err := h.Status(context.Background())
		return err == nil && st.Buffered
	}, time.Second, 10*time.Millisecond)

	st, err := h.Status(context.Background())
	require.NoError(t, err)
	assert.True(t, st.IsLoaded)
	assert.Zero(t, st.Duration)
	assert.Zero(t, st.Playable)
}
