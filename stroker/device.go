package stroker

import (
	"context"
	"fmt"
)

// Command is the latest bounded value for one axis, produced once per tick.
// Value is normalized to [0, 1].
type Command struct {
	Axis  Axis
	Value float64
}

func (c Command) String() string {
	return fmt.Sprintf("%s=%.4f", c.Axis, c.Value)
}

// Device is the capability set shared by every stroker backend.
//
// Connect either fully connects or leaves the device disconnected.
// Send dispatches one batch of commands (at most one per axis) and never
// retries; the caller decides what a failure means for the session.
// Disconnect is idempotent and best-effort.
type Device interface {
	Connect(ctx context.Context) error
	Send(ctx context.Context, cmds []Command) error
	Disconnect()

	// Axes lists the axes the device accepts. For devices that discover
	// their channels during Connect this is only meaningful afterwards.
	Axes() []Axis

	// Description is a human-readable identification of the device.
	Description() string
}

// Stopper is implemented by devices that can halt motion immediately,
// e.g. when playback pauses.
type Stopper interface {
	Stop(ctx context.Context) error
}

// Supports reports whether dev declares axis a.
func Supports(dev Device, a Axis) bool {
	for _, have := range dev.Axes() {
		if have == a {
			return true
		}
	}
	return false
}
