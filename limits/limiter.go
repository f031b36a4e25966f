// Package limits bounds per-axis output: the range/speed limiter applied on
// every tick, and the shared, live-adjustable table of limits it reads.
package limits

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Config is the live limit for one axis.
//
// Min and Max bound the output in [0, 1]. Speed is the largest change the
// output may make, in full scales per second. Min == Max disables the axis.
type Config struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Speed float64 `json:"speed"`
}

// Enabled reports whether the axis should be driven at all.
func (c Config) Enabled() bool { return c.Min != c.Max }

// Validate checks 0 <= Min <= Max <= 1 and Speed > 0.
func (c Config) Validate() error {
	if !inUnit(c.Min) || !inUnit(c.Max) {
		return fmt.Errorf("%w: bounds must be within [0, 1] (min=%v max=%v)", ErrInvalidLimit, c.Min, c.Max)
	}
	if c.Min > c.Max {
		return fmt.Errorf("%w: min %v > max %v", ErrInvalidLimit, c.Min, c.Max)
	}
	if !(c.Speed > 0) || math.IsInf(c.Speed, 0) {
		return fmt.Errorf("%w: speed must be > 0 (speed=%v)", ErrInvalidLimit, c.Speed)
	}
	return nil
}

// Midpoint is the centre of the allowed range; used to seed the carried output.
func (c Config) Midpoint() float64 { return (c.Min + c.Max) / 2 }

func (c Config) String() string {
	return fmt.Sprintf("%.4f <= x <= %.4f @ %.3f/s", c.Min, c.Max, c.Speed)
}

// ErrInvalidLimit is returned for limits or limit changes that would break
// 0 <= min <= max <= 1.
var ErrInvalidLimit = errors.New("invalid axis limit")

// Step moves prev toward target under cfg and returns the new output.
//
// The target is clamped into [Min, Max] first, then the move is capped at
// Speed * elapsed, so the output never jumps faster than the speed limit even
// when the bounds themselves just moved. emit is false for a disabled axis
// (Min == Max): out is then Min, and callers neither dispatch it nor carry
// it, since the device never received it.
func Step(prev, target float64, elapsed time.Duration, cfg Config) (out float64, emit bool) {
	if !cfg.Enabled() {
		return cfg.Min, false
	}

	clamped := math.Min(math.Max(target, cfg.Min), cfg.Max)

	maxStep := cfg.Speed * elapsed.Seconds()
	if maxStep < 0 || math.IsNaN(maxStep) {
		maxStep = 0
	}

	delta := clamped - prev
	switch {
	case math.Abs(delta) <= maxStep:
		out = clamped
	case delta > 0:
		out = prev + maxStep
	default:
		out = prev - maxStep
	}

	return math.Min(math.Max(out, 0), 1), true
}

func inUnit(v float64) bool { return v >= 0 && v <= 1 }
