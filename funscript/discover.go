package funscript

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"strokesync/stroker"
)

const extension = ".funscript"

// axisSuffixes maps the filename segment before ".funscript" to the axis the
// file drives. A file without one of these segments drives Stroke.
var axisSuffixes = []struct {
	suffix string
	axis   stroker.Axis
}{
	{".surge", stroker.Surge},
	{".sway", stroker.Sway},
	{".twist", stroker.Twist},
	{".roll", stroker.Roll},
	{".pitch", stroker.Pitch},
	{".vib", stroker.Vibration},
	{".valve", stroker.Valve},
	{".suck", stroker.Suction},
	{".lube", stroker.Lubricant},
}

// Cluster maps each axis to the script file that drives it.
type Cluster map[stroker.Axis]string

// Scan is every funscript found for one video: the main cluster plus any
// alternative clusters ("video.alt.funscript", "video.alt.twist.funscript"),
// keyed by the alternative name. Nothing is selected; callers decide.
type Scan struct {
	Main         Cluster
	Alternatives map[string]Cluster
}

// Candidate is one discovered script file.
type Candidate struct {
	Path        string
	Axis        stroker.Axis
	Alternative string // empty for the main cluster
}

// Discover matches filenames against the base name of videoName.
// videoName may also be the name of a funscript, whose base is used instead.
func Discover(videoName string, filenames []string) Scan {
	base := baseName(filepath.Base(videoName))

	scan := Scan{
		Main:         Cluster{},
		Alternatives: map[string]Cluster{},
	}

	for _, file := range filenames {
		rest, ok := strings.CutPrefix(file, base)
		if !ok {
			continue
		}
		rest, ok = strings.CutSuffix(rest, extension)
		if !ok {
			continue
		}

		axis := stroker.Stroke
		for _, s := range axisSuffixes {
			if trimmed, found := strings.CutSuffix(rest, s.suffix); found {
				axis = s.axis
				rest = trimmed
				break
			}
		}

		if rest == "" {
			scan.Main[axis] = file
			continue
		}
		// Anything else must be a ".name" segment; "video2.funscript" does
		// not belong to "video.mp4".
		alt, ok := strings.CutPrefix(rest, ".")
		if !ok || alt == "" {
			continue
		}
		cluster, ok := scan.Alternatives[alt]
		if !ok {
			cluster = Cluster{}
			scan.Alternatives[alt] = cluster
		}
		cluster[axis] = file
	}

	return scan
}

// DiscoverDir lists the directory containing path and runs Discover over
// its regular files. Returned file names are joined with that directory.
func DiscoverDir(path string) (Scan, error) {
	dir := filepath.Dir(path)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Scan{}, fmt.Errorf("read dir %s: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}

	scan := Discover(path, names)
	join := func(c Cluster) {
		for axis, name := range c {
			c[axis] = filepath.Join(dir, name)
		}
	}
	join(scan.Main)
	for _, c := range scan.Alternatives {
		join(c)
	}
	return scan, nil
}

// Candidates flattens the scan into a list restricted to the given axes
// (all axes when none are given). Main cluster entries come first, then
// alternatives in name order.
func (s Scan) Candidates(axes ...stroker.Axis) []Candidate {
	want := func(a stroker.Axis) bool {
		if len(axes) == 0 {
			return true
		}
		for _, w := range axes {
			if w == a {
				return true
			}
		}
		return false
	}

	var out []Candidate
	add := func(alt string, c Cluster) {
		for _, axis := range c.axes() {
			if want(axis) {
				out = append(out, Candidate{Path: c[axis], Axis: axis, Alternative: alt})
			}
		}
	}

	add("", s.Main)
	names := make([]string, 0, len(s.Alternatives))
	for name := range s.Alternatives {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		add(name, s.Alternatives[name])
	}
	return out
}

func (c Cluster) axes() []stroker.Axis {
	out := make([]stroker.Axis, 0, len(c))
	for a := range c {
		out = append(out, a)
	}
	stroker.SortAxes(out)
	return out
}

// AxisFromName returns the axis a script file drives according to its name:
// "video.twist.funscript" drives Twist, anything without a known axis
// segment drives Stroke.
func AxisFromName(name string) stroker.Axis {
	trimmed := strings.TrimSuffix(filepath.Base(name), extension)
	for _, s := range axisSuffixes {
		if strings.HasSuffix(trimmed, s.suffix) {
			return s.axis
		}
	}
	return stroker.Stroke
}

func baseName(name string) string {
	if trimmed, ok := strings.CutSuffix(name, extension); ok {
		// Strip an axis suffix too, so "video.twist.funscript" scans as "video".
		for _, s := range axisSuffixes {
			if t, found := strings.CutSuffix(trimmed, s.suffix); found {
				return t
			}
		}
		return trimmed
	}
	return strings.TrimSuffix(name, filepath.Ext(name))
}
