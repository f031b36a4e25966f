package funscript

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"strokesync/stroker"
)

const eps = 1e-9

func approx(a, b float64) bool { return math.Abs(a-b) < eps }

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

func TestNormalize_RescalesObservedRange(t *testing.T) {
	tl, err := Normalize([]RawAction{{At: 0, Pos: 10}, {At: 1000, Pos: 90}}, false)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}

	got := tl.Actions()
	want := []Action{{At: 0, Pos: 0}, {At: ms(1000), Pos: 1}}
	if len(got) != len(want) {
		t.Fatalf("got %d actions, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].At != want[i].At || !approx(got[i].Pos, want[i].Pos) {
			t.Errorf("action %d = %+v, want %+v", i, got[i], want[i])
		}
	}

	if v := tl.ValueAt(ms(500)); !approx(v, 0.5) {
		t.Errorf("ValueAt(500ms)=%v, want 0.5", v)
	}
}

func TestNormalize_SortsAndDedupes(t *testing.T) {
	raw := []RawAction{
		{At: 200, Pos: 100},
		{At: -50, Pos: 0},
		{At: 100, Pos: 50},
		{At: 0, Pos: 0},
		{At: 100, Pos: 0}, // duplicate timestamp, later in input: dropped
	}
	tl, err := Normalize(raw, false)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}

	got := tl.Actions()
	if len(got) != 3 {
		t.Fatalf("expected 3 actions, got %d: %+v", len(got), got)
	}
	if got[1].At != ms(100) || !approx(got[1].Pos, 0.5) {
		t.Errorf("expected first-seen duplicate (pos 50 -> 0.5) kept, got %+v", got[1])
	}
	for i := 1; i < len(got); i++ {
		if got[i].At <= got[i-1].At {
			t.Errorf("timestamps not strictly increasing at %d: %+v", i, got)
		}
	}
	for _, a := range got {
		if a.Pos < 0 || a.Pos > 1 {
			t.Errorf("position out of range: %+v", a)
		}
	}
}

func TestNormalize_HugeTimestampsSaturate(t *testing.T) {
	raw := []RawAction{
		{At: 0, Pos: 0},
		{At: 1e300, Pos: 100},
		{At: -1e300, Pos: 50},
	}
	tl, err := Normalize(raw, false)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}

	got := tl.Actions()
	if len(got) != 2 {
		t.Fatalf("expected 2 actions, got %d: %+v", len(got), got)
	}
	if got[1].At != time.Duration(math.MaxInt64) || !approx(got[1].Pos, 1) {
		t.Errorf("expected far action at saturated max, got %+v", got[1])
	}
}

func TestNormalize_DegenerateRange(t *testing.T) {
	tl, err := Normalize([]RawAction{{At: 0, Pos: 42}, {At: 10, Pos: 42}}, false)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	for _, a := range tl.Actions() {
		if a.Pos != 0.5 {
			t.Errorf("expected 0.5 for degenerate range, got %v", a.Pos)
		}
	}
}

func TestNormalize_Inverted(t *testing.T) {
	tl, err := Normalize([]RawAction{{At: 0, Pos: 0}, {At: 10, Pos: 25}, {At: 20, Pos: 100}}, true)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	got := tl.Actions()
	if !approx(got[0].Pos, 1) || !approx(got[1].Pos, 0.75) || !approx(got[2].Pos, 0) {
		t.Errorf("unexpected inverted positions: %+v", got)
	}
}

func TestNormalize_Empty(t *testing.T) {
	if _, err := Normalize(nil, false); !errors.Is(err, ErrEmptyScript) {
		t.Errorf("expected ErrEmptyScript for no actions, got %v", err)
	}
	if _, err := Normalize([]RawAction{{At: -1, Pos: 10}}, false); !errors.Is(err, ErrEmptyScript) {
		t.Errorf("expected ErrEmptyScript when every action is dropped, got %v", err)
	}
}

func TestTimeline_ValueAt(t *testing.T) {
	tl, err := Normalize([]RawAction{
		{At: 1000, Pos: 0},
		{At: 2000, Pos: 100},
		{At: 3000, Pos: 50},
	}, false)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}

	tests := []struct {
		name string
		at   time.Duration
		want float64
	}{
		{"before first holds first", 0, 0},
		{"at first keyframe", ms(1000), 0},
		{"between first and second", ms(1250), 0.25},
		{"at second keyframe", ms(2000), 1},
		{"between second and third", ms(2500), 0.75},
		{"at last keyframe", ms(3000), 0.5},
		{"after last holds last", ms(10000), 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tl.ValueAt(tt.at); !approx(got, tt.want) {
				t.Errorf("ValueAt(%v)=%v, want %v", tt.at, got, tt.want)
			}
		})
	}
}

func TestTimeline_ValueAtKeyframesIsExact(t *testing.T) {
	tl, err := Normalize([]RawAction{
		{At: 0, Pos: 3}, {At: 17, Pos: 88}, {At: 35, Pos: 12}, {At: 90, Pos: 61}, {At: 91, Pos: 97},
	}, false)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	for _, a := range tl.Actions() {
		if got := tl.ValueAt(a.At); got != a.Pos {
			t.Errorf("ValueAt(%v)=%v, want keyframe value %v", a.At, got, a.Pos)
		}
	}
}

func TestTimeline_ZeroValue(t *testing.T) {
	var tl Timeline
	if got := tl.ValueAt(time.Second); got != 0.5 {
		t.Errorf("zero Timeline ValueAt=%v, want 0.5", got)
	}
}

func TestParse(t *testing.T) {
	s, err := Parse([]byte(`{"version":"1.0","inverted":true,"range":90,"actions":[{"at":0,"pos":10},{"at":500.5,"pos":90}]}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !s.Inverted || s.Range != 90 || len(s.Actions) != 2 || s.Actions[1].At != 500.5 {
		t.Errorf("unexpected script: %+v", s)
	}

	for _, bad := range []string{`not json`, `{"inverted":false}`, `{"actions":"nope"}`, `[]`} {
		if _, err := Parse([]byte(bad)); !errors.Is(err, ErrMalformedScript) {
			t.Errorf("Parse(%q): expected ErrMalformedScript, got %v", bad, err)
		}
	}
}

func TestFromScript_EmbeddedAxes(t *testing.T) {
	s, err := Parse([]byte(`{
		"actions": [{"at": 0, "pos": 0}, {"at": 100, "pos": 100}],
		"axes": [
			{"id": "R0", "actions": [{"at": 0, "pos": 20}, {"at": 100, "pos": 80}]},
			{"id": "roll", "actions": [{"at": 0, "pos": 50}]},
			{"id": "X9", "actions": [{"at": 0, "pos": 50}]},
			{"id": "L1", "actions": []}
		]
	}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	tls, err := FromScript(s, stroker.Stroke)
	if err != nil {
		t.Fatalf("FromScript: %v", err)
	}
	if len(tls) != 3 {
		t.Fatalf("expected stroke, twist and roll timelines, got %d", len(tls))
	}
	for _, a := range []stroker.Axis{stroker.Stroke, stroker.Twist, stroker.Roll} {
		if _, ok := tls[a]; !ok {
			t.Errorf("missing timeline for %s", a)
		}
	}
	if v := tls[stroker.Twist].ValueAt(ms(50)); !approx(v, 0.5) {
		t.Errorf("twist ValueAt(50ms)=%v, want 0.5", v)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "clip.twist.funscript")
	if err := os.WriteFile(good, []byte(`{"actions":[{"at":0,"pos":0},{"at":1000,"pos":100}]}`), 0o644); err != nil {
		t.Fatal(err)
	}
	empty := filepath.Join(dir, "clip.funscript")
	if err := os.WriteFile(empty, []byte(`{"actions":[]}`), 0o644); err != nil {
		t.Fatal(err)
	}

	tls, err := LoadFile(good, stroker.Twist)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if tls[stroker.Twist].Len() != 2 {
		t.Errorf("expected 2 twist actions, got %d", tls[stroker.Twist].Len())
	}

	if _, err := LoadFile(empty, stroker.Stroke); !errors.Is(err, ErrEmptyScript) {
		t.Errorf("expected ErrEmptyScript, got %v", err)
	}
	if _, err := LoadFile(filepath.Join(dir, "missing.funscript"), stroker.Stroke); err == nil {
		t.Errorf("expected error for missing file")
	}
}

func TestDiscover(t *testing.T) {
	files := []string{
		"movie.mp4",
		"movie.funscript",
		"movie.twist.funscript",
		"movie.roll.funscript",
		"movie.lube.funscript",
		"movie.soft.funscript",
		"movie.soft.pitch.funscript",
		"movie2.funscript",
		"other.funscript",
		"movie.srt",
	}

	scan := Discover("/videos/movie.mp4", files)

	wantMain := Cluster{
		stroker.Stroke:    "movie.funscript",
		stroker.Twist:     "movie.twist.funscript",
		stroker.Roll:      "movie.roll.funscript",
		stroker.Lubricant: "movie.lube.funscript",
	}
	if len(scan.Main) != len(wantMain) {
		t.Fatalf("main cluster=%v, want %v", scan.Main, wantMain)
	}
	for a, f := range wantMain {
		if scan.Main[a] != f {
			t.Errorf("main[%s]=%q, want %q", a, scan.Main[a], f)
		}
	}

	if len(scan.Alternatives) != 1 {
		t.Fatalf("expected one alternative, got %v", scan.Alternatives)
	}
	soft := scan.Alternatives["soft"]
	if soft[stroker.Stroke] != "movie.soft.funscript" || soft[stroker.Pitch] != "movie.soft.pitch.funscript" {
		t.Errorf("unexpected alternative cluster: %v", soft)
	}

	cands := scan.Candidates(stroker.Stroke)
	if len(cands) != 2 {
		t.Fatalf("expected 2 stroke candidates, got %+v", cands)
	}
	if cands[0].Alternative != "" || cands[1].Alternative != "soft" {
		t.Errorf("expected main candidate before alternative, got %+v", cands)
	}
}

func TestDiscover_FromFunscriptName(t *testing.T) {
	scan := Discover("movie.twist.funscript", []string{"movie.funscript", "movie.twist.funscript"})
	if scan.Main[stroker.Stroke] != "movie.funscript" || scan.Main[stroker.Twist] != "movie.twist.funscript" {
		t.Errorf("unexpected scan: %+v", scan)
	}
}

func TestAxisFromName(t *testing.T) {
	tests := map[string]stroker.Axis{
		"clip.funscript":            stroker.Stroke,
		"/a/b/clip.pitch.funscript": stroker.Pitch,
		"clip.soft.suck.funscript":  stroker.Suction,
		"clip.soft.funscript":       stroker.Stroke,
		"clip.vib.funscript":        stroker.Vibration,
		"clip.twisted.funscript":    stroker.Stroke,
	}
	for name, want := range tests {
		if got := AxisFromName(name); got != want {
			t.Errorf("AxisFromName(%q)=%s, want %s", name, got, want)
		}
	}
}

func TestDiscoverDir(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"clip.mkv", "clip.funscript", "clip.surge.funscript"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("{}"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "clip.sway.funscript"), 0o755); err != nil {
		t.Fatal(err)
	}

	scan, err := DiscoverDir(filepath.Join(dir, "clip.mkv"))
	if err != nil {
		t.Fatalf("DiscoverDir: %v", err)
	}
	if scan.Main[stroker.Surge] != filepath.Join(dir, "clip.surge.funscript") {
		t.Errorf("unexpected surge path: %q", scan.Main[stroker.Surge])
	}
	if _, ok := scan.Main[stroker.Sway]; ok {
		t.Errorf("directories must not be discovered")
	}
}
