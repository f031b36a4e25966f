package tcode

import (
	"fmt"
	"math"
	"strings"
	"time"

	"strokesync/stroker"
)

// MaxValue is the largest position a T-Code channel accepts at four digits.
const MaxValue = 9999

// MaxInterval is the longest "I" suffix that fits in four digits.
const MaxInterval = 9999 * time.Millisecond

// Scale maps v in [0, 1] to the fixed-point range [0, MaxValue].
func Scale(v float64) int {
	n := int(v * 10000)
	if n > MaxValue {
		return MaxValue
	}
	if n < 0 {
		return 0
	}
	return n
}

// Encoder turns command batches into T-Code lines for a fixed channel set.
type Encoder struct {
	channels map[stroker.Axis]Channel
	// Interval, when positive, is appended to every update as "I<ms>" so the
	// firmware spreads the move over that time.
	Interval time.Duration
}

// NewEncoder builds an encoder for the given channels. Channels without a
// known axis are ignored.
func NewEncoder(channels []Channel, interval time.Duration) *Encoder {
	e := &Encoder{channels: make(map[stroker.Axis]Channel, len(channels)), Interval: interval}
	for _, c := range channels {
		if a, ok := AxisFor(c); ok {
			e.channels[a] = channelByAxis[a]
		}
	}
	return e
}

// Axes lists the axes the encoder can address, in canonical order.
func (e *Encoder) Axes() []stroker.Axis {
	out := make([]stroker.Axis, 0, len(e.channels))
	for a := range e.channels {
		out = append(out, a)
	}
	stroker.SortAxes(out)
	return out
}

// Encode renders cmds as one newline-terminated line, updates separated by
// spaces. Commands for axes the encoder does not carry are dropped; if none
// remain the result is empty. Values outside [0, 1], NaN and repeated axes
// fail with stroker.ErrMalformed.
func (e *Encoder) Encode(cmds []stroker.Command) ([]byte, error) {
	seen := make(map[stroker.Axis]bool, len(cmds))
	parts := make([]string, 0, len(cmds))

	for _, cmd := range cmds {
		if seen[cmd.Axis] {
			return nil, fmt.Errorf("%w: axis %s repeated", stroker.ErrMalformed, cmd.Axis)
		}
		seen[cmd.Axis] = true

		if math.IsNaN(cmd.Value) || cmd.Value < 0 || cmd.Value > 1 {
			return nil, fmt.Errorf("%w: %s out of range", stroker.ErrMalformed, cmd)
		}
		ch, ok := e.channels[cmd.Axis]
		if !ok {
			continue
		}

		part := fmt.Sprintf("%s%04d", ch, Scale(cmd.Value))
		if e.Interval > MaxInterval {
			return nil, fmt.Errorf("%w: interval %s exceeds %s", stroker.ErrMalformed, e.Interval, MaxInterval)
		}
		if e.Interval > 0 {
			part += fmt.Sprintf("I%04d", e.Interval.Milliseconds())
		}
		parts = append(parts, part)
	}

	if len(parts) == 0 {
		return nil, nil
	}
	return []byte(strings.Join(parts, " ") + "\n"), nil
}
