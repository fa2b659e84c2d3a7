package miniplayer

import (
	"math"
	"time"
)

// Frame is the visual state of the mini-player view.
type Frame struct {
	Offset  float64
	Opacity float64
}

// Animator drives the release animations of the swipe gesture.
type Animator interface {
	// SlideOut moves the view off-screen in direction (-1 or 1) and fades it
	// out, then calls done.
	SlideOut(from Frame, direction float64, apply func(Frame), done func())
	// SpringBack returns the view to the centered, opaque frame.
	SpringBack(from Frame, apply func(Frame), done func())
}

// Tween animates frames on a ticker with ease-out interpolation.
type Tween struct {
	Duration          time.Duration
	Interval          time.Duration
	OffscreenDistance float64
}

// NewTween creates a tween animator with default timings.
func NewTween() *Tween {
	return &Tween{
		Duration:          250 * time.Millisecond,
		Interval:          16 * time.Millisecond,
		OffscreenDistance: 500,
	}
}

// SlideOut implements Animator.
func (t *Tween) SlideOut(from Frame, direction float64, apply func(Frame), done func()) {
	to := Frame{Offset: math.Copysign(t.OffscreenDistance, direction), Opacity: 0}
	go t.run(from, to, apply, done)
}

// SpringBack implements Animator.
func (t *Tween) SpringBack(from Frame, apply func(Frame), done func()) {
	go t.run(from, Frame{Offset: 0, Opacity: 1}, apply, done)
}

func (t *Tween) run(from, to Frame, apply func(Frame), done func()) {
	steps := 1
	if t.Interval > 0 && t.Duration > t.Interval {
		steps = int(t.Duration / t.Interval)
	}

	ticker := time.NewTicker(max(t.Interval, time.Millisecond))
	defer ticker.Stop()

	for i := 1; i <= steps; i++ {
		<-ticker.C
		p := float64(i) / float64(steps)
		eased := 1 - (1-p)*(1-p)
		apply(Frame{
			Offset:  from.Offset + (to.Offset-from.Offset)*eased,
			Opacity: from.Opacity + (to.Opacity-from.Opacity)*eased,
		})
	}
	if done != nil {
		done()
	}
}
