package funscript

import (
	"math"
	"sort"
	"time"
)

// Normalize applies the fixups to raw actions and returns a Timeline:
//
//  1. sort by timestamp (stable, so the first-seen duplicate stays first)
//  2. drop negative timestamps and duplicate timestamps, keeping the earliest
//  3. rescale positions from the observed [min, max] to [0, 1]
//     (all positions become 0.5 when min == max)
//  4. clamp into [0, 1]
//
// inverted flips the normalized positions.
func Normalize(raw []RawAction, inverted bool) (Timeline, error) {
	actions := make([]Action, 0, len(raw))
	for _, r := range raw {
		if math.IsNaN(r.At) || math.IsNaN(r.Pos) || math.IsInf(r.Pos, 0) {
			continue
		}
		actions = append(actions, Action{
			At:  msToDuration(r.At),
			Pos: r.Pos,
		})
	}

	sort.SliceStable(actions, func(i, j int) bool { return actions[i].At < actions[j].At })

	kept := actions[:0]
	for _, a := range actions {
		if a.At < 0 {
			continue
		}
		if len(kept) > 0 && kept[len(kept)-1].At == a.At {
			continue
		}
		kept = append(kept, a)
	}
	if len(kept) == 0 {
		return Timeline{}, ErrEmptyScript
	}

	minSeen, maxSeen := kept[0].Pos, kept[0].Pos
	for _, a := range kept[1:] {
		minSeen = math.Min(minSeen, a.Pos)
		maxSeen = math.Max(maxSeen, a.Pos)
	}

	span := maxSeen - minSeen
	for i := range kept {
		v := 0.5
		if span > 0 {
			v = (kept[i].Pos - minSeen) / span
		}
		if inverted {
			v = 1 - v
		}
		kept[i].Pos = clamp01(v)
	}

	return Timeline{actions: kept}, nil
}

// msToDuration rounds ms to the nearest nanosecond, saturating instead of
// overflowing.
func msToDuration(ms float64) time.Duration {
	ns := math.Round(ms * float64(time.Millisecond))
	switch {
	case ns >= math.MaxInt64:
		return time.Duration(math.MaxInt64)
	case ns <= math.MinInt64:
		return time.Duration(math.MinInt64)
	}
	return time.Duration(ns)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
