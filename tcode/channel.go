// Package tcode drives stroker hardware speaking the T-Code text protocol
// over a serial line.
package tcode

import (
	"fmt"
	"strconv"
	"strings"

	"strokesync/stroker"
)

// Channel is a T-Code channel name such as "L0" or "R2".
type Channel string

var channelByAxis = map[stroker.Axis]Channel{
	stroker.Stroke:    "L0",
	stroker.Surge:     "L1",
	stroker.Sway:      "L2",
	stroker.Twist:     "R0",
	stroker.Roll:      "R1",
	stroker.Pitch:     "R2",
	stroker.Vibration: "V0",
	stroker.Valve:     "A0",
	stroker.Suction:   "A1",
	stroker.Lubricant: "A2",
}

// ChannelFor returns the channel that carries axis a.
func ChannelFor(a stroker.Axis) (Channel, bool) {
	c, ok := channelByAxis[a]
	return c, ok
}

// AxisFor is the inverse of ChannelFor. Channel names are case-insensitive.
func AxisFor(c Channel) (stroker.Axis, bool) {
	want := Channel(strings.ToUpper(strings.TrimSpace(string(c))))
	for a, have := range channelByAxis {
		if have == want {
			return a, true
		}
	}
	return "", false
}

// DefaultChannels lists every known channel in axis order.
func DefaultChannels() []Channel {
	out := make([]Channel, 0, len(channelByAxis))
	for _, a := range stroker.AllAxes() {
		out = append(out, channelByAxis[a])
	}
	return out
}

// AxisInfo is one line of a D2 axis listing, e.g. "L0 0 9999 Up".
type AxisInfo struct {
	Channel Channel
	Min     int
	Max     int
	Name    string
}

// ParseAxisInfo parses one D2 response line.
func ParseAxisInfo(line string) (AxisInfo, error) {
	fields := strings.Fields(line)
	if len(fields) < 4 {
		return AxisInfo{}, fmt.Errorf("axis info %q: want 4 fields, got %d", line, len(fields))
	}
	lo, err := strconv.Atoi(fields[1])
	if err != nil {
		return AxisInfo{}, fmt.Errorf("axis info %q: min: %w", line, err)
	}
	hi, err := strconv.Atoi(fields[2])
	if err != nil {
		return AxisInfo{}, fmt.Errorf("axis info %q: max: %w", line, err)
	}
	return AxisInfo{
		Channel: Channel(strings.ToUpper(fields[0])),
		Min:     lo,
		Max:     hi,
		Name:    strings.Join(fields[3:], " "),
	}, nil
}
