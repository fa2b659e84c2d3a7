package supabase

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	client, err := New(context.Background(), Config{URL: url, APIKey: "anon-key"})
	require.NoError(t, err)
	client.retryDelay = time.Millisecond
	return client
}

func TestFetchModules(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/v1/modules", r.URL.Path)
		assert.Equal(t, "position.asc", r.URL.Query().Get("order"))
		assert.Contains(t, r.URL.Query().Get("select"), "tracks(")
		assert.Equal(t, "anon-key", r.Header.Get("apikey"))
		assert.Equal(t, "Bearer anon-key", r.Header.Get("Authorization"))

		response := `[
			{"id": "calm", "name": "Calm", "image_url": "https://cdn/calm.png", "is_premium": false, "position": 1,
			 "tracks": [
				{"id": "B", "title": "Second", "audio_url": "https://cdn/b.mp3", "duration_seconds": 90.5, "position": 2},
				{"id": "A", "title": "First", "audio_url": "https://cdn/a.mp3", "duration_seconds": 120, "thumbnail_url": "https://cdn/a.png", "position": 1}
			 ]},
			{"id": "focus", "name": "Focus", "is_premium": true, "position": 2, "tracks": []}
		]`
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, response)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL+"/")
	modules, err := client.FetchModules(context.Background())
	require.NoError(t, err)
	require.Len(t, modules, 2)

	calm := modules[0]
	assert.Equal(t, "calm", calm.ID)
	assert.Equal(t, "https://cdn/calm.png", calm.ImageRef)
	assert.Equal(t, []string{"A", "B"}, calm.TrackIDs())
	assert.Equal(t, "calm", calm.Tracks[0].ModuleID)
	assert.Equal(t, "First", calm.Tracks[0].Name)
	assert.Equal(t, "https://cdn/a.mp3", calm.Tracks[0].MediaRef)
	assert.Equal(t, "https://cdn/a.png", calm.Tracks[0].ThumbnailRef)
	assert.Equal(t, 120*time.Second, calm.Tracks[0].Duration)
	assert.Equal(t, 90500*time.Millisecond, calm.Tracks[1].Duration)

	assert.True(t, modules[1].Premium)
	assert.Empty(t, modules[1].Tracks)
}

func TestFetchModules_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `[{"id": "calm", "name": "Calm", "tracks": []}]`)
	}))
	defer server.Close()

	modules, err := newTestClient(t, server.URL).FetchModules(context.Background())
	require.NoError(t, err)
	assert.Len(t, modules, 1)
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetchModules_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"message": "Invalid API key", "code": "401"}`)
	}))
	defer server.Close()

	_, err := newTestClient(t, server.URL).FetchModules(context.Background())
	require.Error(t, err)

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusUnauthorized, se.StatusCode)
	assert.Equal(t, "Invalid API key", se.Message)
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetchModules_MalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"not": "an array"}`)
	}))
	defer server.Close()

	_, err := newTestClient(t, server.URL).FetchModules(context.Background())
	assert.Error(t, err)
}

func TestNew_RequiresCredentials(t *testing.T) {
	_, err := New(context.Background(), Config{APIKey: "k"})
	assert.Error(t, err)
	_, err = New(context.Background(), Config{URL: "https://x.supabase.co"})
	assert.Error(t, err)
}
