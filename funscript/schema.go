// Package funscript loads funscript files and turns them into normalized,
// interpolatable per-axis timelines.
package funscript

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrMalformedScript is returned when input is not a structurally valid funscript.
	ErrMalformedScript = errors.New("malformed funscript")

	// ErrEmptyScript is returned when no usable action survives the fixups.
	ErrEmptyScript = errors.New("funscript has no usable actions")
)

// Script is the decoded JSON document. Unknown keys are ignored.
type Script struct {
	Actions  []RawAction
	Inverted bool
	Range    int

	// Axes holds additional axes embedded in a multi-axis script.
	Axes []EmbeddedAxis
}

// RawAction is one point of the script curve as found in the file.
// At is in milliseconds since the start of the video; Pos is in whatever
// range the author used (typically 0-100).
type RawAction struct {
	At  float64 `json:"at"`
	Pos float64 `json:"pos"`
}

// EmbeddedAxis is an extra axis inside a multi-axis script.
// ID is either a T-Code channel ("R0") or an axis name ("twist").
type EmbeddedAxis struct {
	ID      string      `json:"id"`
	Actions []RawAction `json:"actions"`
}

type scriptJSON struct {
	Actions  *[]RawAction   `json:"actions"`
	Inverted bool           `json:"inverted"`
	Range    int            `json:"range"`
	Axes     []EmbeddedAxis `json:"axes"`
}

// Parse decodes a funscript document.
func Parse(data []byte) (*Script, error) {
	var raw scriptJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedScript, err)
	}
	if raw.Actions == nil {
		return nil, fmt.Errorf("%w: missing \"actions\"", ErrMalformedScript)
	}
	return &Script{
		Actions:  *raw.Actions,
		Inverted: raw.Inverted,
		Range:    raw.Range,
		Axes:     raw.Axes,
	}, nil
}
