package player

import (
	"context"
	"sync"
	"time"
)

// SeekBar turns drag and tap gestures on a horizontal bar into seeks.
// Dragging only moves the displayed value; the position is committed once
// on release.
type SeekBar struct {
	transport Transport
	width     float64

	mu         sync.Mutex
	dragging   bool
	fraction   float64 // Displayed value while dragging
	wasPlaying bool
}

// NewSeekBar creates a seek bar of the given width in points.
func NewSeekBar(transport Transport, width float64) *SeekBar {
	if width <= 0 {
		width = 1
	}
	return &SeekBar{
		transport: transport,
		width:     width,
	}
}

// BeginDrag grabs the thumb. Playback is paused while dragging.
func (b *SeekBar) BeginDrag(ctx context.Context) {
	snap := b.transport.Snapshot()
	if !snap.HasTrack() {
		return
	}

	b.mu.Lock()
	if b.dragging {
		b.mu.Unlock()
		return
	}
	b.dragging = true
	b.wasPlaying = snap.IsPlaying
	b.fraction = snap.Fraction()
	b.mu.Unlock()

	if snap.IsPlaying {
		b.transport.TogglePlayPause(ctx)
	}
}

// DragTo moves the displayed value to x without seeking.
func (b *SeekBar) DragTo(x float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.dragging {
		return
	}
	b.fraction = b.fractionAt(x)
}

// EndDrag commits the dragged position and restores the pre-drag play state.
func (b *SeekBar) EndDrag(ctx context.Context) {
	b.mu.Lock()
	if !b.dragging {
		b.mu.Unlock()
		return
	}
	b.dragging = false
	fraction := b.fraction
	resume := b.wasPlaying
	b.wasPlaying = false
	b.mu.Unlock()

	b.transport.Seek(ctx, b.positionAt(fraction))
	if resume {
		b.transport.TogglePlayPause(ctx)
	}
}

// Tap seeks directly to x.
func (b *SeekBar) Tap(ctx context.Context, x float64) {
	b.mu.Lock()
	dragging := b.dragging
	b.mu.Unlock()
	if dragging {
		return
	}
	b.transport.Seek(ctx, b.positionAt(b.fractionAt(x)))
}

// Dragging reports whether a drag is in progress.
func (b *SeekBar) Dragging() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dragging
}

// Value returns the displayed fraction: the drag value while dragging,
// otherwise the playhead.
func (b *SeekBar) Value() float64 {
	b.mu.Lock()
	dragging, fraction := b.dragging, b.fraction
	b.mu.Unlock()
	if dragging {
		return fraction
	}
	return b.transport.Snapshot().Fraction()
}

func (b *SeekBar) fractionAt(x float64) float64 {
	f := x / b.width
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	default:
		return f
	}
}

func (b *SeekBar) positionAt(fraction float64) time.Duration {
	return time.Duration(fraction * float64(b.transport.Snapshot().Duration))
}
