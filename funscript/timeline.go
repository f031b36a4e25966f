package funscript

import (
	"sort"
	"time"
)

// Action is a normalized keyframe: where the axis should be (0.0 to 1.0
// full scale) at a given offset from the start of the video.
type Action struct {
	At  time.Duration
	Pos float64
}

// Timeline is an immutable, strictly increasing sequence of actions for one
// axis. Build one with Normalize. It is safe for concurrent use.
type Timeline struct {
	actions []Action
}

// Len returns the number of keyframes.
func (tl Timeline) Len() int { return len(tl.actions) }

// Actions returns a copy of the keyframes.
func (tl Timeline) Actions() []Action {
	return append([]Action(nil), tl.actions...)
}

// Start returns the timestamp of the first keyframe.
func (tl Timeline) Start() time.Duration {
	if len(tl.actions) == 0 {
		return 0
	}
	return tl.actions[0].At
}

// End returns the timestamp of the last keyframe.
func (tl Timeline) End() time.Duration {
	if len(tl.actions) == 0 {
		return 0
	}
	return tl.actions[len(tl.actions)-1].At
}

// ValueAt returns the target position at t.
//
// Before the first keyframe it holds the first value, after the last it holds
// the last value; in between it linearly interpolates the bracketing pair.
// The zero Timeline yields 0.5.
func (tl Timeline) ValueAt(t time.Duration) float64 {
	n := len(tl.actions)
	if n == 0 {
		return 0.5
	}

	// i is the first keyframe strictly after t.
	i := sort.Search(n, func(i int) bool { return tl.actions[i].At > t })
	if i == 0 {
		return tl.actions[0].Pos
	}
	if i == n {
		return tl.actions[n-1].Pos
	}

	a0, a1 := tl.actions[i-1], tl.actions[i]
	if a1.At == a0.At {
		return a0.Pos
	}
	frac := float64(t-a0.At) / float64(a1.At-a0.At)
	return a0.Pos + (a1.Pos-a0.Pos)*frac
}
