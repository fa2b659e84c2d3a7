package playback

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/osa030/trackbox/internal/domain/track"
	"github.com/osa030/trackbox/internal/infra/media"
	"github.com/osa030/trackbox/internal/infra/media/mediatest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTrack(id string) track.Track {
	return track.Track{
		ID:       id,
		ModuleID: "calm",
		Name:     "Track " + id,
		MediaRef: "file:///audio/" + id + ".mp3",
		Duration: 200 * time.Second,
	}
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) listen(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) types() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

func (r *recorder) ofType(t EventType) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func newController(t *testing.T) (*Controller, *mediatest.Engine, *recorder) {
	t.Helper()
	engine := mediatest.NewEngine()
	c := NewController(engine, DefaultConfig())
	rec := &recorder{}
	c.Subscribe(rec.listen)
	t.Cleanup(c.Close)
	return c, engine, rec
}

func TestController_Load(t *testing.T) {
	c, engine, rec := newController(t)
	ctx := context.Background()

	require.NoError(t, c.Load(ctx, newTrack("a"), true))

	snap := c.Snapshot()
	require.NotNil(t, snap.ActiveTrack)
	assert.Equal(t, "a", snap.ActiveTrack.ID)
	assert.True(t, snap.Loaded)
	assert.True(t, snap.IsBuffering)
	assert.False(t, snap.IsPlaying)
	assert.True(t, snap.IsLooping)
	assert.Equal(t, 0.0, snap.BufferProgress)
	assert.Equal(t, StateBuffering, snap.State())

	h := engine.Last()
	require.NotNil(t, h)
	assert.Equal(t, "file:///audio/a.mp3", h.Ref)
	assert.False(t, h.Opts.ShouldPlay)
	assert.True(t, h.Opts.IsLooping)
	assert.Equal(t, 100*time.Millisecond, h.Opts.UpdateInterval)
	assert.Equal(t, []string{"play", "pause"}, h.Calls())
	assert.Len(t, engine.AudioModes(), 1)
	assert.True(t, engine.AudioModes()[0].StaysActiveInBackground)

	assert.Equal(t, []EventType{EventTrackLoading, EventTrackLoaded}, rec.types())
}

func TestController_LoadReleasesBeforeAcquire(t *testing.T) {
	c, engine, _ := newController(t)
	ctx := context.Background()

	engine.OnCreate = func(*mediatest.Handle) {
		assert.Equal(t, 0, engine.Live(), "previous handle must be released before a new one is created")
	}

	require.NoError(t, c.Load(ctx, newTrack("a"), false))
	first := engine.Last()
	require.NoError(t, c.Load(ctx, newTrack("b"), false))

	assert.True(t, first.Unloaded())
	assert.Equal(t, 1, engine.Live())
	assert.Equal(t, "b", c.Snapshot().ActiveTrack.ID)
}

func TestController_AtMostOneHandle(t *testing.T) {
	c, engine, _ := newController(t)
	ctx := context.Background()

	steps := []string{"a", "b", "unload", "unload", "c", "c", "d", "unload", "e"}
	for _, step := range steps {
		if step == "unload" {
			c.Unload(ctx)
		} else {
			require.NoError(t, c.Load(ctx, newTrack(step), false))
		}
		assert.LessOrEqual(t, engine.Live(), 1, "after %s", step)
		if step == "unload" {
			assert.Equal(t, 0, engine.Live())
			assert.Nil(t, c.Snapshot().ActiveTrack)
		} else {
			assert.Equal(t, 1, engine.Live())
		}
	}
}

func TestController_ConcurrentLoadsNeverOverlap(t *testing.T) {
	c, engine, _ := newController(t)
	ctx := context.Background()

	var mu sync.Mutex
	maxLive := 0
	engine.OnCreate = func(*mediatest.Handle) {
		mu.Lock()
		defer mu.Unlock()
		if n := engine.Live(); n > maxLive {
			maxLive = n
		}
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = c.Load(ctx, newTrack(fmt.Sprintf("t%d", i%4)), false)
		}(i)
	}
	wg.Wait()

	// The hook runs before the new handle is registered.
	assert.Zero(t, maxLive)
	assert.Equal(t, 1, engine.Live())
}

func TestController_LoadDifferentLoopingNotShared(t *testing.T) {
	c, engine, _ := newController(t)
	ctx := context.Background()

	created := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	engine.OnCreate = func(*mediatest.Handle) {
		once.Do(func() {
			close(created)
			<-release
		})
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		assert.NoError(t, c.Load(ctx, newTrack("a"), false))
	}()
	<-created
	go func() {
		defer wg.Done()
		assert.NoError(t, c.Load(ctx, newTrack("a"), true))
	}()
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	require.Len(t, engine.Handles(), 2)
	assert.True(t, engine.Last().Opts.IsLooping)
	assert.True(t, c.Snapshot().IsLooping)
	assert.Equal(t, 1, engine.Live())
}

func TestController_LoadMissingMediaRef(t *testing.T) {
	c, engine, rec := newController(t)
	ctx := context.Background()

	require.NoError(t, c.Load(ctx, newTrack("a"), false))

	trk := newTrack("b")
	trk.MediaRef = ""
	err := c.Load(ctx, trk, false)

	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, "b", loadErr.Track.ID)
	assert.True(t, errors.Is(err, ErrMissingMediaRef))

	snap := c.Snapshot()
	assert.Nil(t, snap.ActiveTrack)
	assert.False(t, snap.IsBuffering)
	assert.Equal(t, 0.0, snap.BufferProgress)
	assert.Equal(t, 0, engine.Live())

	failed := rec.ofType(EventLoadFailed)
	require.Len(t, failed, 1)
	assert.ErrorAs(t, failed[0].Err, &loadErr)
}

func TestController_LoadCreateFailure(t *testing.T) {
	c, engine, _ := newController(t)
	ctx := context.Background()

	boom := errors.New("decoder unavailable")
	engine.CreateErr = boom

	err := c.Load(ctx, newTrack("a"), false)

	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.True(t, errors.Is(err, boom))
	assert.Equal(t, StateIdle, c.Snapshot().State())
	assert.Equal(t, 0, engine.Live())
}

func TestController_LoadPrimeFailureReleasesHandle(t *testing.T) {
	c, engine, _ := newController(t)
	ctx := context.Background()

	engine.OnCreate = func(h *mediatest.Handle) {
		h.PlayErr = errors.New("busy")
	}

	err := c.Load(ctx, newTrack("a"), false)

	require.Error(t, err)
	assert.True(t, engine.Last().Unloaded())
	assert.Nil(t, c.Snapshot().ActiveTrack)
}

func TestController_LoadAudioModeFailure(t *testing.T) {
	c, engine, _ := newController(t)

	engine.AudioModeErr = errors.New("session denied")

	err := c.Load(context.Background(), newTrack("a"), false)

	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Empty(t, engine.Handles())
}

func TestController_LoadUsesPreloader(t *testing.T) {
	c, engine, _ := newController(t)
	engine.Preloading = true

	require.NoError(t, c.Load(context.Background(), newTrack("a"), false))

	assert.Equal(t, []string{"preload"}, engine.Last().Calls())
}

func TestController_PrimingDoesNotLeakPlayingState(t *testing.T) {
	c, engine, rec := newController(t)

	engine.OnCreate = func(h *mediatest.Handle) {
		h.AfterCall = func(name string) {
			if name == "play" {
				// A status update landing between play and pause.
				h.Emit(func(*media.Status) {})
			}
		}
	}

	require.NoError(t, c.Load(context.Background(), newTrack("a"), false))

	for _, e := range rec.ofType(EventStatusUpdated) {
		assert.False(t, e.Snapshot.IsPlaying)
	}
	assert.False(t, c.Snapshot().IsPlaying)
}

func TestController_TogglePlayPause_BufferGated(t *testing.T) {
	c, engine, _ := newController(t)
	ctx := context.Background()
	engine.Playable = 3 * time.Second

	require.NoError(t, c.Load(ctx, newTrack("a"), false))
	h := engine.Last()

	c.TogglePlayPause(ctx)

	snap := c.Snapshot()
	assert.False(t, snap.IsPlaying)
	assert.True(t, snap.IsBuffering)
	assert.InDelta(t, 60.0, snap.BufferProgress, 0.001)

	st, err := h.Status(ctx)
	require.NoError(t, err)
	assert.False(t, st.IsPlaying, "resource must be left paused")
	assert.Equal(t, []string{"play", "pause", "play", "pause"}, h.Calls())
}

func TestController_ThresholdRelease(t *testing.T) {
	c, engine, rec := newController(t)
	ctx := context.Background()
	engine.Playable = time.Second

	require.NoError(t, c.Load(ctx, newTrack("a"), false))
	c.TogglePlayPause(ctx)
	require.True(t, c.Snapshot().IsBuffering)

	engine.Last().Emit(func(s *media.Status) {
		s.Position = 2 * time.Second
		s.Playable = 7 * time.Second
	})

	snap := c.Snapshot()
	assert.False(t, snap.IsBuffering)
	assert.False(t, snap.IsPlaying)
	assert.Equal(t, 100.0, snap.BufferProgress)
	assert.Equal(t, 2*time.Second, snap.Position)
	assert.NotEmpty(t, rec.ofType(EventBufferingChanged))
}

func TestController_TogglePlayPause_PlaysAndPauses(t *testing.T) {
	c, engine, _ := newController(t)
	ctx := context.Background()
	engine.Playable = 10 * time.Second

	require.NoError(t, c.Load(ctx, newTrack("a"), false))

	c.TogglePlayPause(ctx)
	snap := c.Snapshot()
	assert.True(t, snap.IsPlaying)
	assert.False(t, snap.IsBuffering)
	assert.Equal(t, StatePlaying, snap.State())

	c.TogglePlayPause(ctx)
	assert.False(t, c.Snapshot().IsPlaying)
	assert.Equal(t, StatePaused, c.Snapshot().State())
}

func TestController_TogglePlayPause_FullyBufferedTail(t *testing.T) {
	c, engine, _ := newController(t)
	ctx := context.Background()

	require.NoError(t, c.Load(ctx, newTrack("a"), false))
	engine.Last().SetStatus(func(s *media.Status) {
		s.Position = 198 * time.Second
		s.Playable = 200 * time.Second
	})

	c.TogglePlayPause(ctx)

	assert.True(t, c.Snapshot().IsPlaying)
}

func TestController_TogglePlayPause_BufferedWithoutDuration(t *testing.T) {
	c, engine, _ := newController(t)
	ctx := context.Background()

	require.NoError(t, c.Load(ctx, newTrack("a"), false))
	c.TogglePlayPause(ctx)
	require.True(t, c.Snapshot().IsBuffering)

	engine.Last().Emit(func(s *media.Status) {
		s.Duration = 0
		s.Playable = 0
		s.Buffered = true
	})
	assert.False(t, c.Snapshot().IsBuffering)
	assert.Equal(t, 100.0, c.Snapshot().BufferProgress)

	c.TogglePlayPause(ctx)
	assert.True(t, c.Snapshot().IsPlaying)
}

func TestController_TogglePlayPause_NoHandle(t *testing.T) {
	c, _, rec := newController(t)

	c.TogglePlayPause(context.Background())

	assert.Empty(t, rec.types())
}

func TestController_StatusMirrorsExternalInterruption(t *testing.T) {
	c, engine, _ := newController(t)
	ctx := context.Background()
	engine.Playable = 10 * time.Second

	require.NoError(t, c.Load(ctx, newTrack("a"), false))
	c.TogglePlayPause(ctx)
	require.True(t, c.Snapshot().IsPlaying)

	engine.Last().Emit(func(s *media.Status) { s.IsPlaying = false })

	assert.False(t, c.Snapshot().IsPlaying)
}

func TestController_StaleStatusIgnored(t *testing.T) {
	c, engine, _ := newController(t)
	ctx := context.Background()

	require.NoError(t, c.Load(ctx, newTrack("a"), false))
	old := engine.Last()
	require.NoError(t, c.Load(ctx, newTrack("b"), false))

	old.Emit(func(s *media.Status) { s.Position = 42 * time.Second })

	assert.Equal(t, time.Duration(0), c.Snapshot().Position)
}

func TestController_SeekFailureIsSwallowed(t *testing.T) {
	c, engine, rec := newController(t)
	ctx := context.Background()

	require.NoError(t, c.Load(ctx, newTrack("a"), false))
	engine.Last().SeekErr = errors.New("busy")

	assert.NotPanics(t, func() { c.Seek(ctx, 30*time.Second) })

	transportErrs := rec.ofType(EventTransportError)
	require.Len(t, transportErrs, 1)
	var te *TransportError
	require.ErrorAs(t, transportErrs[0].Err, &te)
	assert.Equal(t, "seek", te.Op)
	assert.Equal(t, time.Duration(0), c.Snapshot().Position)
}

func TestController_Seek(t *testing.T) {
	c, engine, _ := newController(t)
	ctx := context.Background()

	c.Seek(ctx, time.Second)
	require.NoError(t, c.Load(ctx, newTrack("a"), false))
	c.Seek(ctx, 100*time.Second)

	assert.Equal(t, []time.Duration{100 * time.Second}, engine.Last().Seeks())
	assert.Equal(t, 100*time.Second, c.Snapshot().Position)
}

func TestController_SetLooping(t *testing.T) {
	c, engine, _ := newController(t)
	ctx := context.Background()

	require.NoError(t, c.Load(ctx, newTrack("a"), false))
	h := engine.Last()

	c.SetLooping(ctx, true)
	assert.True(t, c.Snapshot().IsLooping)
	assert.Equal(t, 1, h.Count("set_looping"))

	h.SetStatus(func(s *media.Status) { s.IsLoaded = false })
	c.SetLooping(ctx, false)
	assert.True(t, c.Snapshot().IsLooping)
	assert.Equal(t, 1, h.Count("set_looping"))
}

func TestController_UnloadResetsEvenOnFailure(t *testing.T) {
	c, engine, rec := newController(t)
	ctx := context.Background()
	engine.Playable = 10 * time.Second

	require.NoError(t, c.Load(ctx, newTrack("a"), false))
	c.TogglePlayPause(ctx)
	engine.Last().UnloadErr = errors.New("already gone")

	c.Unload(ctx)

	snap := c.Snapshot()
	assert.Nil(t, snap.ActiveTrack)
	assert.False(t, snap.IsPlaying)
	assert.Equal(t, 0.0, snap.BufferProgress)
	assert.Len(t, rec.ofType(EventTransportError), 1)
	assert.Len(t, rec.ofType(EventTrackUnloaded), 1)
}

func TestBufferProgressClamp(t *testing.T) {
	c := NewController(mediatest.NewEngine(), DefaultConfig())

	tests := []struct {
		name     string
		status   media.Status
		expected float64
	}{
		{name: "empty", status: media.Status{}, expected: 0},
		{name: "half", status: media.Status{Playable: 2500 * time.Millisecond}, expected: 50},
		{name: "over threshold", status: media.Status{Playable: 20 * time.Second}, expected: 100},
		{name: "playhead past playable", status: media.Status{Position: 3 * time.Second, Playable: time.Second}, expected: 0},
		{name: "buffered without duration", status: media.Status{Buffered: true}, expected: 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, c.progress(tt.status), 0.001)
		})
	}
}
