package limits

import (
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"strokesync/stroker"
)

const eps = 1e-9

func approx(a, b float64) bool { return math.Abs(a-b) < eps }

func TestStep_SpeedCapped(t *testing.T) {
	cfg := Config{Min: 0, Max: 1, Speed: 0.5}
	out, emit := Step(0.45, 0.55, 100*time.Millisecond, cfg)
	if !emit {
		t.Fatalf("expected output for enabled axis")
	}
	if !approx(out, 0.50) {
		t.Errorf("Step=%v, want 0.50", out)
	}
}

func TestStep_ReachesTargetWithinBudget(t *testing.T) {
	cfg := Config{Min: 0, Max: 1, Speed: 2}
	out, _ := Step(0.40, 0.45, 100*time.Millisecond, cfg)
	if !approx(out, 0.45) {
		t.Errorf("Step=%v, want target 0.45", out)
	}
}

func TestStep_ClampsIntoRange(t *testing.T) {
	cfg := Config{Min: 0.4, Max: 0.6, Speed: 100}
	if out, _ := Step(0.5, 1.0, time.Second, cfg); !approx(out, 0.6) {
		t.Errorf("Step above max=%v, want 0.6", out)
	}
	if out, _ := Step(0.5, 0.0, time.Second, cfg); !approx(out, 0.4) {
		t.Errorf("Step below min=%v, want 0.4", out)
	}
}

func TestStep_NarrowedRangeRampsInsteadOfJumping(t *testing.T) {
	// Output sits at 0.9 when max drops to 0.5: it walks down at the speed
	// limit rather than snapping.
	cfg := Config{Min: 0, Max: 0.5, Speed: 1}
	out, _ := Step(0.9, 0.9, 100*time.Millisecond, cfg)
	if !approx(out, 0.8) {
		t.Errorf("Step=%v, want 0.8", out)
	}
}

func TestStep_Bounded(t *testing.T) {
	cfgs := []Config{
		{Min: 0, Max: 1, Speed: 0.25},
		{Min: 0.2, Max: 0.3, Speed: 3},
		{Min: 0.4, Max: 0.6, Speed: 0.01},
	}
	elapsed := []time.Duration{0, time.Millisecond, 20 * time.Millisecond, time.Second}
	points := []float64{0, 0.1, 0.35, 0.5, 0.77, 1}

	for _, cfg := range cfgs {
		for _, dt := range elapsed {
			for _, prev := range points {
				for _, target := range points {
					out, emit := Step(prev, target, dt, cfg)
					if !emit {
						t.Fatalf("enabled config %v did not emit", cfg)
					}
					if out < 0 || out > 1 {
						t.Errorf("Step(%v,%v,%v,%v)=%v out of [0,1]", prev, target, dt, cfg, out)
					}
					if math.Abs(out-prev) > cfg.Speed*dt.Seconds()+eps {
						t.Errorf("Step(%v,%v,%v,%v)=%v moved more than the speed allows", prev, target, dt, cfg, out)
					}
				}
			}
		}
	}
}

func TestStep_Disabled(t *testing.T) {
	cfg := Config{Min: 0.3, Max: 0.3, Speed: 1}
	out, emit := Step(0.9, 0.1, time.Second, cfg)
	if emit {
		t.Errorf("disabled axis must not emit")
	}
	if out != 0.3 {
		t.Errorf("disabled axis output=%v, want min 0.3", out)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		ok   bool
	}{
		{"full range", Config{Min: 0, Max: 1, Speed: 1}, true},
		{"disabled", Config{Min: 0.5, Max: 0.5, Speed: 1}, true},
		{"min above max", Config{Min: 0.6, Max: 0.4, Speed: 1}, false},
		{"negative min", Config{Min: -0.1, Max: 0.4, Speed: 1}, false},
		{"max above one", Config{Min: 0, Max: 1.1, Speed: 1}, false},
		{"zero speed", Config{Min: 0, Max: 1, Speed: 0}, false},
		{"nan speed", Config{Min: 0, Max: 1, Speed: math.NaN()}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.ok && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrInvalidLimit) {
				t.Errorf("expected ErrInvalidLimit, got %v", err)
			}
		})
	}
}

func newTestTable(t *testing.T) *Table {
	t.Helper()
	tbl, err := NewTable(map[stroker.Axis]Config{
		stroker.Stroke: {Min: 0.45, Max: 0.55, Speed: 1},
		stroker.Twist:  {Min: 0, Max: 1, Speed: 0.5},
	})
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}
	return tbl
}

func TestTable_ApplyRelative(t *testing.T) {
	tbl := newTestTable(t)

	got, err := tbl.Apply(MinBy(stroker.Stroke, -0.05))
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !approx(got.Min, 0.40) || !approx(got.Max, 0.55) || got.Speed != 1 {
		t.Errorf("Apply result=%v, want min 0.40 max 0.55", got)
	}
	snap, _ := tbl.Snapshot(stroker.Stroke)
	if snap != got {
		t.Errorf("snapshot %v does not match applied %v", snap, got)
	}
}

func TestTable_ApplyRelativeClamps(t *testing.T) {
	tbl := newTestTable(t)
	got, err := tbl.Apply(MaxBy(stroker.Twist, 0.5))
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if got.Max != 1 {
		t.Errorf("max=%v, want clamped to 1", got.Max)
	}
}

func TestTable_ApplyRejectsCrossing(t *testing.T) {
	tbl := newTestTable(t)
	before, _ := tbl.Snapshot(stroker.Stroke)

	_, err := tbl.Apply(MinBy(stroker.Stroke, 0.2))
	if !errors.Is(err, ErrInvalidLimit) {
		t.Fatalf("expected ErrInvalidLimit, got %v", err)
	}
	after, _ := tbl.Snapshot(stroker.Stroke)
	if after != before {
		t.Errorf("rejected request changed limits: %v -> %v", before, after)
	}
}

func TestTable_ApplyAbsolute(t *testing.T) {
	tbl := newTestTable(t)

	got, err := tbl.Apply(BothNew(stroker.Twist, 0.2, 0.2))
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if got.Enabled() {
		t.Errorf("min == max must disable the axis, got %v", got)
	}

	if _, err := tbl.Apply(MaxNew(stroker.Twist, 1.5)); !errors.Is(err, ErrInvalidLimit) {
		t.Errorf("expected ErrInvalidLimit for max_new out of range, got %v", err)
	}
	if _, err := tbl.Apply(MinNew(stroker.Twist, 0.7)); !errors.Is(err, ErrInvalidLimit) {
		t.Errorf("expected ErrInvalidLimit for min_new above max, got %v", err)
	}
}

func TestTable_ApplyConflicting(t *testing.T) {
	tbl := newTestTable(t)
	by, abs := 0.1, 0.3
	req := Request{Axis: stroker.Twist, MinBy: &by, MinNew: &abs}
	if _, err := tbl.Apply(req); !errors.Is(err, ErrInvalidLimit) {
		t.Errorf("expected ErrInvalidLimit for conflicting request, got %v", err)
	}
}

func TestTable_ApplyUnknownAxis(t *testing.T) {
	tbl := newTestTable(t)
	if _, err := tbl.Apply(MinBy(stroker.Pitch, 0.1)); !errors.Is(err, ErrUnknownAxis) {
		t.Errorf("expected ErrUnknownAxis, got %v", err)
	}
}

func TestTable_Ensure(t *testing.T) {
	tbl := newTestTable(t)

	got, err := tbl.Ensure(stroker.Stroke, Config{Min: 0, Max: 1, Speed: 9})
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if got.Speed != 1 {
		t.Errorf("Ensure replaced existing limits: %v", got)
	}

	got, err = tbl.Ensure(stroker.Roll, Config{Min: 0.4, Max: 0.6, Speed: 0.25})
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if snap, ok := tbl.Snapshot(stroker.Roll); !ok || snap != got {
		t.Errorf("Ensure did not install limits for roll: %v %v", snap, ok)
	}
}

func TestTable_ConcurrentApply(t *testing.T) {
	tbl, err := NewTable(map[stroker.Axis]Config{
		stroker.Stroke: {Min: 0.5, Max: 0.5, Speed: 1},
	})
	if err != nil {
		t.Fatal(err)
	}

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if _, err := tbl.Apply(MinBy(stroker.Stroke, -0.001)); err != nil {
				t.Errorf("Apply min: %v", err)
			}
		}()
		go func() {
			defer wg.Done()
			if _, err := tbl.Apply(MaxBy(stroker.Stroke, 0.001)); err != nil {
				t.Errorf("Apply max: %v", err)
			}
		}()
	}
	wg.Wait()

	got, _ := tbl.Snapshot(stroker.Stroke)
	if math.Abs(got.Min-0.45) > 1e-6 || math.Abs(got.Max-0.55) > 1e-6 {
		t.Errorf("after concurrent applies got %v, want 0.45..0.55", got)
	}
}
