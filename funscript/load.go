package funscript

import (
	"fmt"
	"os"

	"strokesync/stroker"
	"strokesync/tcode"
)

// FromScript normalizes the script's main actions for axis, plus every
// embedded axis that names a known axis and has usable actions.
func FromScript(s *Script, axis stroker.Axis) (map[stroker.Axis]Timeline, error) {
	main, err := Normalize(s.Actions, s.Inverted)
	if err != nil {
		return nil, err
	}

	out := map[stroker.Axis]Timeline{axis: main}
	for _, ea := range s.Axes {
		extra, ok := embeddedAxis(ea.ID)
		if !ok || extra == axis {
			continue
		}
		tl, err := Normalize(ea.Actions, s.Inverted)
		if err != nil {
			continue
		}
		out[extra] = tl
	}
	return out, nil
}

// LoadFile reads, parses and normalizes the script at path, which drives axis.
func LoadFile(path string, axis stroker.Axis) (map[stroker.Axis]Timeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	tls, err := FromScript(s, axis)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return tls, nil
}

func embeddedAxis(id string) (stroker.Axis, bool) {
	if a, ok := tcode.AxisFor(tcode.Channel(id)); ok {
		return a, true
	}
	if a, err := stroker.ParseAxis(id); err == nil {
		return a, true
	}
	return "", false
}
