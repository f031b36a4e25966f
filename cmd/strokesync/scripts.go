package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"strokesync/funscript"
	"strokesync/stroker"
)

// loadVideoScripts discovers the scripts next to path (a video or a
// funscript) and loads the main cluster. Alternatives are only reported.
//
// A companion file that fails to load is skipped with a warning; the load
// fails only if nothing usable remains.
func loadVideoScripts(ctx context.Context, path string, gen uint64, logger *slog.Logger) Event {
	scan, err := funscript.DiscoverDir(path)
	if err != nil {
		return LoadFailed{Gen: gen, Source: path, Err: err}
	}
	if len(scan.Main) == 0 {
		return LoadFailed{Gen: gen, Source: path, Err: fmt.Errorf("no funscript found for %s", path)}
	}

	timelines := make(map[stroker.Axis]funscript.Timeline)
	dedicated := make(map[stroker.Axis]bool)
	var firstErr error

	for _, c := range scan.Candidates() {
		if c.Alternative != "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return LoadFailed{Gen: gen, Source: path, Err: err}
		}

		loaded, err := funscript.LoadFile(c.Path, c.Axis)
		if err != nil {
			logger.Warn("skipping funscript", "path", c.Path, "axis", c.Axis, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		logger.Debug("funscript loaded", "path", c.Path, "axis", c.Axis, "axes", len(loaded))

		// A dedicated file beats an axis embedded in another file.
		for axis, tl := range loaded {
			if axis == c.Axis {
				timelines[axis] = tl
				dedicated[axis] = true
				continue
			}
			if !dedicated[axis] {
				if _, have := timelines[axis]; !have {
					timelines[axis] = tl
				}
			}
		}
	}

	if len(timelines) == 0 {
		if firstErr == nil {
			firstErr = errors.New("no usable funscript")
		}
		return LoadFailed{Gen: gen, Source: path, Err: firstErr}
	}

	alts := make([]string, 0, len(scan.Alternatives))
	for name := range scan.Alternatives {
		alts = append(alts, name)
	}
	sort.Strings(alts)

	return TimelineLoaded{
		Gen:          gen,
		Source:       path,
		Timelines:    timelines,
		Replace:      true,
		Alternatives: alts,
	}
}

// loadScriptFile loads a single script. axisName overrides the axis implied
// by the file name.
func loadScriptFile(ctx context.Context, path, axisName string, gen uint64) Event {
	axis := funscript.AxisFromName(path)
	if axisName != "" {
		a, err := stroker.ParseAxis(axisName)
		if err != nil {
			return LoadFailed{Gen: gen, Source: path, Err: err}
		}
		axis = a
	}
	if err := ctx.Err(); err != nil {
		return LoadFailed{Gen: gen, Source: path, Err: err}
	}

	timelines, err := funscript.LoadFile(path, axis)
	if err != nil {
		return LoadFailed{Gen: gen, Source: path, Err: err}
	}
	return TimelineLoaded{Gen: gen, Source: path, Timelines: timelines}
}
