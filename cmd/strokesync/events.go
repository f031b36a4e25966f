package main

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"strokesync/funscript"
	"strokesync/limits"
	"strokesync/stroker"
)

// ============================================================================
// Events
// ============================================================================
// Events are everything the session loop reacts to: playback notifications
// and limit changes from the host (usually over IPC), plus internal results
// from script loaders and state snapshot requests.
// ============================================================================

// Event is a marker interface for all session inputs.
type Event interface {
	eventMarker()
}

// VideoStarting announces a new video. Any in-flight load is cancelled, the
// current scripts stop driving, and scripts for the new video are discovered
// and loaded in the background. FunscriptPath, if set, names the script to
// discover from instead of the video.
type VideoStarting struct {
	VideoPath     string `json:"video_path"`
	FunscriptPath string `json:"funscript_path,omitempty"`
}

// LoadFunscript loads one script file for one axis, replacing whatever
// drove that axis. Axis defaults to the one implied by the file name.
type LoadFunscript struct {
	Path string `json:"path"`
	Axis string `json:"axis,omitempty"`
}

// TimeChange reports the playback position. Each delivery is a tick.
type TimeChange struct {
	Ms float64 `json:"ms"`
}

// Seek reports a discontinuous jump in playback position.
type Seek struct {
	Ms float64 `json:"ms"`
}

// PauseChange reports the player pausing or resuming.
type PauseChange struct {
	Paused bool `json:"paused"`
}

// AxisLimit adjusts the live limits of one axis.
type AxisLimit struct {
	limits.Request
}

// Shutdown ends the session cleanly.
type Shutdown struct{}

func (VideoStarting) eventMarker() {}
func (LoadFunscript) eventMarker() {}
func (TimeChange) eventMarker()    {}
func (Seek) eventMarker()          {}
func (PauseChange) eventMarker()   {}
func (AxisLimit) eventMarker()     {}
func (Shutdown) eventMarker()      {}

// ============================================================================
// Internal events (never on the wire)
// ============================================================================

// TimelineLoaded carries normalized timelines from a loader goroutine.
// Loads from a superseded generation are ignored.
type TimelineLoaded struct {
	Gen       uint64
	Source    string
	Timelines map[stroker.Axis]funscript.Timeline

	// Replace drops every current timeline first (new video).
	Replace bool

	// Alternatives lists alternative script sets found next to the video.
	Alternatives []string
}

// LoadFailed reports a loader error.
type LoadFailed struct {
	Gen    uint64
	Source string
	Err    error
}

// RequestStateSnapshot asks the session loop for a snapshot on Reply.
type RequestStateSnapshot struct {
	Reply chan<- SessionSnapshot
}

func (TimelineLoaded) eventMarker()       {}
func (LoadFailed) eventMarker()           {}
func (RequestStateSnapshot) eventMarker() {}

// SessionSnapshot is a read-only copy of session state for observers.
type SessionSnapshot struct {
	Connected    bool
	Paused       bool
	Device       string
	Position     time.Duration
	Axes         []stroker.Axis
	Outputs      map[stroker.Axis]float64
	Limits       map[stroker.Axis]limits.Config
	LoadedFrom   string
	Alternatives []string
}

// ============================================================================
// JSON Encoding/Decoding Support
// ============================================================================

// EventEnvelope wraps an event with a type discriminator for JSON marshaling.
type EventEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

const (
	eventVideoStarting = "video_starting"
	eventLoadFunscript = "load_funscript"
	eventTimeChange    = "time_change"
	eventSeek          = "seek"
	eventPauseChange   = "pause_change"
	eventAxisLimit     = "axis_limit"
	eventShutdown      = "shutdown"
)

// UnmarshalEvent decodes a wire envelope into a concrete Event.
func UnmarshalEvent(data []byte) (Event, error) {
	var env EventEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}

	decode := func(name string, v any) error {
		if len(env.Data) == 0 {
			return fmt.Errorf("%s: missing data", name)
		}
		if err := json.Unmarshal(env.Data, v); err != nil {
			return fmt.Errorf("unmarshal %s: %w", name, err)
		}
		return nil
	}

	switch env.Type {
	case eventVideoStarting:
		var e VideoStarting
		if err := decode("VideoStarting", &e); err != nil {
			return nil, err
		}
		if e.VideoPath == "" && e.FunscriptPath == "" {
			return nil, fmt.Errorf("VideoStarting: video_path or funscript_path required")
		}
		return e, nil

	case eventLoadFunscript:
		var e LoadFunscript
		if err := decode("LoadFunscript", &e); err != nil {
			return nil, err
		}
		if e.Path == "" {
			return nil, fmt.Errorf("LoadFunscript: path required")
		}
		return e, nil

	case eventTimeChange:
		var e TimeChange
		if err := decode("TimeChange", &e); err != nil {
			return nil, err
		}
		return e, nil

	case eventSeek:
		var e Seek
		if err := decode("Seek", &e); err != nil {
			return nil, err
		}
		return e, nil

	case eventPauseChange:
		var e PauseChange
		if err := decode("PauseChange", &e); err != nil {
			return nil, err
		}
		return e, nil

	case eventAxisLimit:
		var e AxisLimit
		if err := decode("AxisLimit", &e); err != nil {
			return nil, err
		}
		axis, err := stroker.ParseAxis(string(e.Axis))
		if err != nil {
			return nil, fmt.Errorf("AxisLimit: %w", err)
		}
		e.Axis = axis
		return e, nil

	case eventShutdown:
		return Shutdown{}, nil

	default:
		return nil, fmt.Errorf("unknown event type: %q", env.Type)
	}
}

// MarshalEvent encodes a wire event into its envelope.
func MarshalEvent(ev Event) ([]byte, error) {
	var typ string
	switch ev.(type) {
	case VideoStarting:
		typ = eventVideoStarting
	case LoadFunscript:
		typ = eventLoadFunscript
	case TimeChange:
		typ = eventTimeChange
	case Seek:
		typ = eventSeek
	case PauseChange:
		typ = eventPauseChange
	case AxisLimit:
		typ = eventAxisLimit
	case Shutdown:
		return json.Marshal(EventEnvelope{Type: eventShutdown})
	default:
		return nil, fmt.Errorf("event %T cannot be marshaled", ev)
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", typ, err)
	}
	return json.Marshal(EventEnvelope{Type: typ, Data: data})
}

// msToDuration converts a host position to a Duration, clamped to
// [0, math.MaxInt64] nanoseconds.
func msToDuration(ms float64) time.Duration {
	if !(ms > 0) {
		return 0
	}
	ns := ms * float64(time.Millisecond)
	if ns >= math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(ns)
}
