//go:build (linux && cgo) || windows || darwin

package media

import (
	"bytes"
	"context"
	"path"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/gopxl/beep/v2/wav"
	zlog "github.com/rs/zerolog/log"
)

// AudioAvailable indicates whether audio output is supported in this build.
const AudioAvailable = true

// ErrHandleReleased is returned by operations on an unloaded handle.
var ErrHandleReleased = errors.New("media handle released")

// beepEngine plays media through the system speaker.
type beepEngine struct {
	resolver   *Resolver
	sampleRate beep.SampleRate

	initOnce sync.Once
	initErr  error

	mu   sync.Mutex
	mode AudioMode
}

// NewEngine creates the speaker-backed engine.
func NewEngine(resolver *Resolver) Engine {
	return &beepEngine{
		resolver:   resolver,
		sampleRate: beep.SampleRate(44100),
	}
}

func (e *beepEngine) initSpeaker() error {
	e.initOnce.Do(func() {
		e.initErr = speaker.Init(e.sampleRate, e.sampleRate.N(time.Second/10))
		if e.initErr == nil {
			zlog.Info().Msgf("media: speaker initialized: sample_rate=%d", e.sampleRate)
		}
	})
	return e.initErr
}

// SetAudioMode implements Engine. The desktop output has no session
// categories, so the mode is only recorded.
func (e *beepEngine) SetAudioMode(_ context.Context, mode AudioMode) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.mode = mode
	zlog.Debug().Msgf("media: audio mode set: background=%v silent_mode=%v duck_others=%v",
		mode.StaysActiveInBackground, mode.PlaysInSilentMode, mode.DuckOthers)
	return nil
}

// Create implements Engine.
func (e *beepEngine) Create(ctx context.Context, ref string, opts Options, onStatus StatusFunc) (Handle, error) {
	if err := e.initSpeaker(); err != nil {
		return nil, errors.Wrap(err, "failed to initialize speaker")
	}

	rc, size, err := e.resolver.Open(ctx, ref)
	if err != nil {
		return nil, err
	}

	h := &beepHandle{
		engine:   e,
		ref:      ref,
		onStatus: onStatus,
		playing:  opts.ShouldPlay,
		looping:  opts.IsLooping,
		pending:  opts.Position,
		duration: opts.DurationHint,
		stopCh:   make(chan struct{}),
	}
	h.dl = startDownload(rc, size, h.onDownloaded)

	interval := opts.UpdateInterval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	go h.statusLoop(interval)

	zlog.Debug().Msgf("media: handle created: ref=%s size=%d", ref, size)
	return h, nil
}

// beepHandle decodes a track once its bytes are complete and streams it to
// the speaker through a pause control.
type beepHandle struct {
	engine   *beepEngine
	ref      string
	onStatus StatusFunc
	dl       *download
	stopCh   chan struct{}

	mu           sync.Mutex
	streamer     beep.StreamSeekCloser
	format       beep.Format
	loop         *loopStreamer
	ctrl         *beep.Ctrl
	attached     bool
	playing      bool
	looping      bool
	pending      time.Duration // Position to apply once decoded
	duration     time.Duration
	justFinished bool
	unloaded     bool
	err          error
}

func (h *beepHandle) onDownloaded(data []byte, err error) {
	if err != nil {
		h.mu.Lock()
		if !h.unloaded {
			h.err = err
			zlog.Error().Err(err).Msgf("media: download failed: ref=%s", h.ref)
		}
		h.mu.Unlock()
		return
	}

	h.engine.resolver.Store(h.ref, data)

	streamer, format, err := decode(h.ref, data)
	if err != nil {
		h.mu.Lock()
		h.err = err
		h.mu.Unlock()
		zlog.Error().Err(err).Msgf("media: decode failed: ref=%s", h.ref)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.unloaded {
		streamer.Close()
		return
	}

	if h.pending > 0 {
		if err := streamer.Seek(clampSamples(format.SampleRate.N(h.pending), streamer.Len())); err != nil {
			zlog.Warn().Err(err).Msgf("media: failed to apply start position: ref=%s", h.ref)
		}
	}

	h.streamer = streamer
	h.format = format
	h.duration = format.SampleRate.D(streamer.Len())
	h.loop = &loopStreamer{s: streamer}
	h.loop.looping.Store(h.looping)
	h.ctrl = &beep.Ctrl{
		Streamer: beep.Resample(4, format.SampleRate, h.engine.sampleRate, h.loop),
		Paused:   !h.playing,
	}
	if h.playing {
		h.attachLocked()
	}
	zlog.Debug().Msgf("media: decoded: ref=%s duration=%v", h.ref, h.duration)
}

// attachLocked hands the control to the speaker mixer. Must be called with
// mu held.
func (h *beepHandle) attachLocked() {
	if h.attached || h.ctrl == nil {
		return
	}
	h.attached = true
	speaker.Play(beep.Seq(h.ctrl, beep.Callback(func() {
		// Runs on the speaker goroutine with the speaker locked.
		go h.finished()
	})))
}

func (h *beepHandle) finished() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.attached = false
	if h.unloaded {
		return
	}
	h.playing = false
	h.justFinished = true
}

// Play implements Handle.
func (h *beepHandle) Play(context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.usableLocked(); err != nil {
		return err
	}

	h.playing = true
	if h.ctrl == nil {
		return nil
	}

	speaker.Lock()
	if h.streamer.Position() >= h.streamer.Len() {
		_ = h.streamer.Seek(0)
	}
	h.ctrl.Paused = false
	speaker.Unlock()

	h.attachLocked()
	return nil
}

// Pause implements Handle.
func (h *beepHandle) Pause(context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.usableLocked(); err != nil {
		return err
	}

	h.playing = false
	if h.ctrl != nil {
		speaker.Lock()
		h.ctrl.Paused = true
		speaker.Unlock()
	}
	return nil
}

// Preload implements Preloader. Download starts with the handle, so this only
// reports a failed download.
func (h *beepHandle) Preload(context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.usableLocked()
}

// SetPosition implements Handle.
func (h *beepHandle) SetPosition(_ context.Context, pos time.Duration) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.usableLocked(); err != nil {
		return err
	}

	if h.streamer == nil {
		h.pending = pos
		return nil
	}

	speaker.Lock()
	defer speaker.Unlock()
	return h.streamer.Seek(clampSamples(h.format.SampleRate.N(pos), h.streamer.Len()))
}

// SetLooping implements Handle.
func (h *beepHandle) SetLooping(_ context.Context, looping bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.usableLocked(); err != nil {
		return err
	}

	h.looping = looping
	if h.loop != nil {
		h.loop.looping.Store(looping)
	}
	return nil
}

// Status implements Handle.
func (h *beepHandle) Status(context.Context) (Status, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.unloaded {
		return Status{}, ErrHandleReleased
	}
	return h.statusLocked(), nil
}

func (h *beepHandle) statusLocked() Status {
	st := Status{
		IsLoaded:  h.err == nil && !h.unloaded,
		IsPlaying: h.playing,
		IsLooping: h.looping,
		Duration:  h.duration,
		Position:  h.pending,
	}
	if h.streamer != nil {
		speaker.Lock()
		st.Position = h.format.SampleRate.D(h.streamer.Position())
		speaker.Unlock()
	}
	st.Playable = time.Duration(h.dl.fraction() * float64(st.Duration))
	st.Buffered = h.dl.finished()
	st.DidJustFinish = h.justFinished
	h.justFinished = false
	return st
}

// Unload implements Handle.
func (h *beepHandle) Unload(context.Context) error {
	h.mu.Lock()
	if h.unloaded {
		h.mu.Unlock()
		return nil
	}
	h.unloaded = true
	close(h.stopCh)

	if h.ctrl != nil {
		speaker.Lock()
		h.ctrl.Streamer = nil
		h.ctrl.Paused = true
		speaker.Unlock()
	}
	streamer := h.streamer
	h.streamer = nil
	h.ctrl = nil
	h.loop = nil
	h.mu.Unlock()

	// The download callback takes mu, so stop it unlocked.
	h.dl.stop()

	if streamer != nil {
		if err := streamer.Close(); err != nil {
			return errors.Wrapf(err, "failed to close decoder: ref=%s", h.ref)
		}
	}
	zlog.Debug().Msgf("media: handle released: ref=%s", h.ref)
	return nil
}

func (h *beepHandle) usableLocked() error {
	if h.unloaded {
		return ErrHandleReleased
	}
	if h.err != nil {
		return h.err
	}
	if err := h.dl.failed(); err != nil {
		return err
	}
	return nil
}

func (h *beepHandle) statusLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-h.stopCh:
			return
		case <-ticker.C:
			h.mu.Lock()
			if h.unloaded {
				h.mu.Unlock()
				return
			}
			st := h.statusLocked()
			h.mu.Unlock()

			if h.onStatus != nil {
				h.onStatus(st)
			}
		}
	}
}

// loopStreamer restarts the underlying streamer when it drains while looping
// is enabled. The flag can be flipped while streaming.
type loopStreamer struct {
	s       beep.StreamSeeker
	looping atomic.Bool
}

func (l *loopStreamer) Stream(samples [][2]float64) (n int, ok bool) {
	for n < len(samples) {
		sn, sok := l.s.Stream(samples[n:])
		n += sn
		if sok {
			if sn == 0 {
				break
			}
			continue
		}
		if !l.looping.Load() || l.s.Len() == 0 {
			break
		}
		if err := l.s.Seek(0); err != nil {
			break
		}
	}
	return n, n > 0
}

func (l *loopStreamer) Err() error {
	return l.s.Err()
}

func decode(ref string, data []byte) (beep.StreamSeekCloser, beep.Format, error) {
	ext := strings.ToLower(path.Ext(strings.SplitN(ref, "?", 2)[0]))
	reader := nopCloser{bytes.NewReader(data)}

	var (
		streamer beep.StreamSeekCloser
		format   beep.Format
		err      error
	)
	switch ext {
	case ".wav":
		streamer, format, err = wav.Decode(reader)
	default:
		streamer, format, err = mp3.Decode(reader)
	}
	if err != nil {
		return nil, beep.Format{}, errors.Wrapf(err, "failed to decode media: ref=%s", ref)
	}
	return streamer, format, nil
}

func clampSamples(n, length int) int {
	if n < 0 {
		return 0
	}
	if length > 0 && n > length {
		return length
	}
	return n
}

// nopCloser wraps a bytes.Reader to implement io.ReadCloser.
type nopCloser struct {
	*bytes.Reader
}

func (nopCloser) Close() error { return nil }
