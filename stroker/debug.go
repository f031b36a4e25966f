package stroker

import (
	"context"
	"io"
	"log/slog"
	"sync"
)

// debugAxes is the fixed axis set of the debug device (an SR6-like layout).
var debugAxes = []Axis{Stroke, Surge, Sway, Twist, Roll, Pitch}

// DebugDevice does not drive any hardware. It logs every call and keeps the
// commands it received so they can be inspected.
type DebugDevice struct {
	logger *slog.Logger

	mu        sync.Mutex
	connected bool
	sent      [][]Command
	stops     int
}

// NewDebugDevice returns a disconnected debug device. A nil logger discards output.
func NewDebugDevice(logger *slog.Logger) *DebugDevice {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &DebugDevice{logger: logger}
}

func (d *DebugDevice) Connect(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connected = true
	d.logger.Debug("debug device connect()")
	return nil
}

func (d *DebugDevice) Send(ctx context.Context, cmds []Command) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.connected {
		return &SendError{Kind: ErrDisconnected}
	}
	for _, c := range cmds {
		if !containsAxis(debugAxes, c.Axis) {
			d.logger.Error("debug device send(BAD AXIS)", "axis", c.Axis, "value", c.Value)
			return &SendError{Kind: ErrMalformed}
		}
	}

	batch := append([]Command(nil), cmds...)
	d.sent = append(d.sent, batch)
	d.logger.Debug("debug device send()", "commands", batch)
	return nil
}

func (d *DebugDevice) Stop(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stops++
	d.logger.Debug("debug device stop()")
	return nil
}

func (d *DebugDevice) Disconnect() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.connected {
		d.logger.Debug("debug device disconnect()")
	}
	d.connected = false
}

func (d *DebugDevice) Axes() []Axis {
	return append([]Axis(nil), debugAxes...)
}

func (d *DebugDevice) Description() string { return "DebugDevice" }

// Sent returns a copy of every batch received so far.
func (d *DebugDevice) Sent() [][]Command {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([][]Command, len(d.sent))
	for i, b := range d.sent {
		out[i] = append([]Command(nil), b...)
	}
	return out
}

// Connected reports whether Connect has been called without a later Disconnect.
func (d *DebugDevice) Connected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connected
}

// Stops returns how many times Stop was called.
func (d *DebugDevice) Stops() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stops
}

func containsAxis(axes []Axis, a Axis) bool {
	for _, have := range axes {
		if have == a {
			return true
		}
	}
	return false
}
