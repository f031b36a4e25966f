package limits

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"

	"strokesync/stroker"
)

// ErrUnknownAxis is returned when a request names an axis without limits.
var ErrUnknownAxis = errors.New("axis has no limits")

// Request is one limit adjustment for one axis. For each bound at most one
// of the relative (By) and absolute (New) fields may be set.
type Request struct {
	Axis   stroker.Axis `json:"axis"`
	MinBy  *float64     `json:"min_by,omitempty"`
	MaxBy  *float64     `json:"max_by,omitempty"`
	MinNew *float64     `json:"min_new,omitempty"`
	MaxNew *float64     `json:"max_new,omitempty"`
}

func MinBy(axis stroker.Axis, delta float64) Request {
	return Request{Axis: axis, MinBy: &delta}
}

func MaxBy(axis stroker.Axis, delta float64) Request {
	return Request{Axis: axis, MaxBy: &delta}
}

func MinNew(axis stroker.Axis, v float64) Request {
	return Request{Axis: axis, MinNew: &v}
}

func MaxNew(axis stroker.Axis, v float64) Request {
	return Request{Axis: axis, MaxNew: &v}
}

func BothNew(axis stroker.Axis, minV, maxV float64) Request {
	return Request{Axis: axis, MinNew: &minV, MaxNew: &maxV}
}

func (r Request) String() string {
	parts := []string{string(r.Axis)}
	add := func(name string, v *float64) {
		if v != nil {
			parts = append(parts, fmt.Sprintf("%s=%g", name, *v))
		}
	}
	add("min_by", r.MinBy)
	add("max_by", r.MaxBy)
	add("min_new", r.MinNew)
	add("max_new", r.MaxNew)
	return strings.Join(parts, " ")
}

// apply computes the config resulting from r without touching cfg.
func (r Request) apply(cfg Config) (Config, error) {
	minV, err := adjust("min", cfg.Min, r.MinBy, r.MinNew)
	if err != nil {
		return cfg, err
	}
	maxV, err := adjust("max", cfg.Max, r.MaxBy, r.MaxNew)
	if err != nil {
		return cfg, err
	}
	if minV > maxV {
		return cfg, fmt.Errorf("%w: min %.4f would exceed max %.4f", ErrInvalidLimit, minV, maxV)
	}
	next := cfg
	next.Min, next.Max = minV, maxV
	return next, nil
}

func adjust(name string, cur float64, by, abs *float64) (float64, error) {
	switch {
	case by != nil && abs != nil:
		return cur, fmt.Errorf("%w: conflicting %s_by and %s_new", ErrInvalidLimit, name, name)
	case by != nil:
		if math.IsNaN(*by) {
			return cur, fmt.Errorf("%w: %s_by is NaN", ErrInvalidLimit, name)
		}
		return math.Min(math.Max(cur+*by, 0), 1), nil
	case abs != nil:
		if !inUnit(*abs) {
			return cur, fmt.Errorf("%w: %s_new %v out of range", ErrInvalidLimit, name, *abs)
		}
		return *abs, nil
	default:
		return cur, nil
	}
}

// Table holds the live limits of every axis in a session. All access goes
// through one mutex, so readers only ever see fully applied requests.
type Table struct {
	mu   sync.Mutex
	axes map[stroker.Axis]Config
}

// NewTable returns a table seeded with initial (which may be nil).
// Invalid initial entries are rejected.
func NewTable(initial map[stroker.Axis]Config) (*Table, error) {
	t := &Table{axes: make(map[stroker.Axis]Config, len(initial))}
	for a, c := range initial {
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("limits for %s: %w", a, err)
		}
		t.axes[a] = c
	}
	return t, nil
}

// Set installs or replaces the limits for axis.
func (t *Table) Set(axis stroker.Axis, c Config) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("limits for %s: %w", axis, err)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.axes[axis] = c
	return nil
}

// Ensure installs c for axis only if the axis has no limits yet, and returns
// whichever config is in effect afterwards.
func (t *Table) Ensure(axis stroker.Axis, c Config) (Config, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if cur, ok := t.axes[axis]; ok {
		return cur, nil
	}
	if err := c.Validate(); err != nil {
		return c, fmt.Errorf("limits for %s: %w", axis, err)
	}
	t.axes[axis] = c
	return c, nil
}

// Snapshot returns a copy of the current limits for axis.
func (t *Table) Snapshot(axis stroker.Axis) (Config, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.axes[axis]
	return c, ok
}

// All returns a copy of every axis' limits.
func (t *Table) All() map[stroker.Axis]Config {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[stroker.Axis]Config, len(t.axes))
	for a, c := range t.axes {
		out[a] = c
	}
	return out
}

// Apply atomically applies r and returns the new limits. On error nothing
// changes. Relative adjustments clamp into [0, 1]; a result with min > max is
// rejected with ErrInvalidLimit rather than reordered.
func (t *Table) Apply(r Request) (Config, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	cur, ok := t.axes[r.Axis]
	if !ok {
		return Config{}, fmt.Errorf("%w: %s", ErrUnknownAxis, r.Axis)
	}
	next, err := r.apply(cur)
	if err != nil {
		return cur, err
	}
	t.axes[r.Axis] = next
	return next, nil
}
