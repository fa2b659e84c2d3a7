// Package player provides the full player screen: the per-screen play queue
// with shuffle and history, load-on-index-change, and the seek bar.
package player

import (
	"math/rand"

	"github.com/osa030/trackbox/internal/domain/track"
	"github.com/samber/lo"
)

// Queue is the ordered track list of one player screen.
type Queue struct {
	original []track.Track // Module order, restored when shuffle is turned off
	tracks   []track.Track
	index    int
	history  []int // Visited indices, most recent last
	shuffled bool
}

// NewQueue creates a queue in module order positioned at currentID.
// The queue starts at index 0 when currentID is not found.
func NewQueue(tracks []track.Track, currentID string) *Queue {
	original := make([]track.Track, len(tracks))
	copy(original, tracks)
	ordered := make([]track.Track, len(tracks))
	copy(ordered, tracks)

	_, index, ok := lo.FindIndexOf(ordered, func(t track.Track) bool { return t.ID == currentID })
	if !ok {
		index = 0
	}

	return &Queue{
		original: original,
		tracks:   ordered,
		index:    index,
	}
}

// Current returns the track at the current index.
func (q *Queue) Current() (track.Track, bool) {
	if q.index < 0 || q.index >= len(q.tracks) {
		return track.Track{}, false
	}
	return q.tracks[q.index], true
}

// Index returns the current index.
func (q *Queue) Index() int {
	return q.index
}

// Len returns the number of tracks.
func (q *Queue) Len() int {
	return len(q.tracks)
}

// Shuffled reports whether the queue is in shuffled order.
func (q *Queue) Shuffled() bool {
	return q.shuffled
}

// HasNext reports whether there is a track after the current one.
func (q *Queue) HasNext() bool {
	return q.index < len(q.tracks)-1
}

// HasPrevious reports whether Back would move.
func (q *Queue) HasPrevious() bool {
	return len(q.history) > 0 || q.index > 0
}

// Peek returns the track after the current one without moving.
func (q *Queue) Peek() (track.Track, bool) {
	if !q.HasNext() {
		return track.Track{}, false
	}
	return q.tracks[q.index+1], true
}

// Advance records the current index in history and moves to the next track.
func (q *Queue) Advance() (track.Track, bool) {
	if !q.HasNext() {
		return track.Track{}, false
	}
	q.history = append(q.history, q.index)
	q.index++
	return q.tracks[q.index], true
}

// Back returns to the most recently visited index, or to the previous track
// when there is no history.
func (q *Queue) Back() (track.Track, bool) {
	if n := len(q.history); n > 0 {
		q.index = q.history[n-1]
		q.history = q.history[:n-1]
		return q.tracks[q.index], true
	}
	if q.index > 0 {
		q.index--
		return q.tracks[q.index], true
	}
	return track.Track{}, false
}

// Focus moves to trackID without touching history. It reports whether the
// track is in the queue.
func (q *Queue) Focus(trackID string) bool {
	_, index, ok := lo.FindIndexOf(q.tracks, func(t track.Track) bool { return t.ID == trackID })
	if !ok {
		return false
	}
	q.index = index
	return true
}

// SetShuffled switches between shuffled and module order. Shuffling keeps
// the current track first and permutes the rest with rng. Unshuffling
// restores module order at the current track. History is cleared either way.
func (q *Queue) SetShuffled(shuffled bool, rng *rand.Rand) {
	if shuffled == q.shuffled {
		return
	}

	current, ok := q.Current()
	q.history = nil
	q.shuffled = shuffled

	if !shuffled {
		q.tracks = make([]track.Track, len(q.original))
		copy(q.tracks, q.original)
		q.index = 0
		if ok {
			_, index, found := lo.FindIndexOf(q.tracks, func(t track.Track) bool { return t.SameAs(current) })
			if found {
				q.index = index
			}
		}
		return
	}

	if !ok {
		return
	}

	rest := make([]track.Track, 0, len(q.tracks)-1)
	for i, t := range q.tracks {
		if i != q.index {
			rest = append(rest, t)
		}
	}
	// Fisher-Yates
	for i := len(rest) - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		rest[i], rest[j] = rest[j], rest[i]
	}

	q.tracks = append([]track.Track{current}, rest...)
	q.index = 0
}

// Tracks returns a copy of the tracks in queue order.
func (q *Queue) Tracks() []track.Track {
	out := make([]track.Track, len(q.tracks))
	copy(out, q.tracks)
	return out
}

// History returns a copy of the visited indices.
func (q *Queue) History() []int {
	out := make([]int, len(q.history))
	copy(out, q.history)
	return out
}
