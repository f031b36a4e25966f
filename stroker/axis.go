// Package stroker defines the motion axes of a stroker device and the
// capability interface every device backend implements.
package stroker

import (
	"fmt"
	"sort"
	"strings"
)

// Axis identifies one independently controllable motion or intensity
// dimension of a stroker.
type Axis string

const (
	Stroke    Axis = "stroke"    // up/down
	Surge     Axis = "surge"     // forward/backward
	Sway      Axis = "sway"      // left/right
	Twist     Axis = "twist"
	Roll      Axis = "roll"
	Pitch     Axis = "pitch"
	Vibration Axis = "vibration"
	Valve     Axis = "valve"
	Suction   Axis = "suction"
	Lubricant Axis = "lubricant"
)

// AllAxes returns every known axis in canonical order.
func AllAxes() []Axis {
	return []Axis{
		Stroke,
		Surge,
		Sway,
		Twist,
		Roll,
		Pitch,
		Vibration,
		Valve,
		Suction,
		Lubricant,
	}
}

// Valid reports whether a is one of the known axes.
func (a Axis) Valid() bool {
	for _, known := range AllAxes() {
		if a == known {
			return true
		}
	}
	return false
}

func (a Axis) String() string { return string(a) }

// ParseAxis converts a case-insensitive axis name into an Axis.
func ParseAxis(s string) (Axis, error) {
	a := Axis(strings.ToLower(strings.TrimSpace(s)))
	if !a.Valid() {
		return "", fmt.Errorf("unknown axis: %q", s)
	}
	return a, nil
}

// SortAxes orders axes in place by their position in AllAxes.
// Unknown axes sort last, in lexical order.
func SortAxes(axes []Axis) {
	rank := func(a Axis) int {
		for i, known := range AllAxes() {
			if a == known {
				return i
			}
		}
		return len(AllAxes())
	}
	sort.SliceStable(axes, func(i, j int) bool {
		ri, rj := rank(axes[i]), rank(axes[j])
		if ri != rj {
			return ri < rj
		}
		return axes[i] < axes[j]
	})
}
