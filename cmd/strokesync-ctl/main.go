package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"
)

// strokesync-ctl sends control events to the strokesync daemon over its
// Unix socket, one event per invocation.
//
//   strokesync-ctl video ~/Videos/scene.mp4
//   strokesync-ctl time 12345
//   strokesync-ctl limit stroke --max-by -0.05

const defaultSocketPath = "/tmp/strokesync.sock"

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	var socketPath string

	root := &cobra.Command{
		Use:          "strokesync-ctl",
		Short:        "Control a running strokesync daemon",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&socketPath, "socket", defaultSocketPath, "daemon IPC socket")
	root.SetOut(out)

	// emit sends one event and prints "ok".
	emit := func(typ string, data any) error {
		if _, err := send(socketPath, typ, data); err != nil {
			return err
		}
		fmt.Fprintln(out, "ok")
		return nil
	}

	root.AddCommand(
		newVideoCmd(emit),
		newLoadCmd(emit),
		newMsCmd("time <ms>", "Report the playback position", "time_change", emit),
		newMsCmd("seek <ms>", "Report a jump in playback position", "seek", emit),
		&cobra.Command{
			Use:   "pause",
			Short: "Report playback paused",
			Args:  cobra.NoArgs,
			RunE: func(*cobra.Command, []string) error {
				return emit("pause_change", map[string]bool{"paused": true})
			},
		},
		&cobra.Command{
			Use:   "resume",
			Short: "Report playback resumed",
			Args:  cobra.NoArgs,
			RunE: func(*cobra.Command, []string) error {
				return emit("pause_change", map[string]bool{"paused": false})
			},
		},
		newLimitCmd(&socketPath, out),
		&cobra.Command{
			Use:   "shutdown",
			Short: "Stop the daemon",
			Args:  cobra.NoArgs,
			RunE: func(*cobra.Command, []string) error {
				return emit("shutdown", nil)
			},
		},
	)
	return root
}

type emitFunc func(typ string, data any) error

func newVideoCmd(emit emitFunc) *cobra.Command {
	var funscript string
	cmd := &cobra.Command{
		Use:   "video <path>",
		Short: "Announce a new video; its funscripts are discovered next to it",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			data := map[string]string{"video_path": absPath(args[0])}
			if funscript != "" {
				data["funscript_path"] = absPath(funscript)
			}
			return emit("video_starting", data)
		},
	}
	cmd.Flags().StringVar(&funscript, "funscript", "", "discover scripts from this funscript instead of the video")
	return cmd
}

func newLoadCmd(emit emitFunc) *cobra.Command {
	var axis string
	cmd := &cobra.Command{
		Use:   "load <file.funscript>",
		Short: "Load one script, replacing the script of its axis",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			data := map[string]string{"path": absPath(args[0])}
			if axis != "" {
				data["axis"] = axis
			}
			return emit("load_funscript", data)
		},
	}
	cmd.Flags().StringVar(&axis, "axis", "", "axis to drive (default: from the file name)")
	return cmd
}

func newMsCmd(use, short, typ string, emit emitFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			ms, err := strconv.ParseFloat(args[0], 64)
			if err != nil {
				return fmt.Errorf("invalid milliseconds %q: %w", args[0], err)
			}
			return emit(typ, map[string]float64{"ms": ms})
		},
	}
}

func newLimitCmd(socketPath *string, out io.Writer) *cobra.Command {
	var minBy, maxBy, minNew, maxNew float64
	cmd := &cobra.Command{
		Use:   "limit <axis>",
		Short: "Adjust the live range of an axis and print the result",
		Example: "  strokesync-ctl limit stroke --max-by -0.05\n" +
			"  strokesync-ctl limit twist --min 0.3 --max 0.7\n" +
			"  strokesync-ctl limit vibration --min 0 --max 0   # disable",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := limitRequest{Axis: args[0]}
			flags := cmd.Flags()
			if flags.Changed("min-by") {
				req.MinBy = &minBy
			}
			if flags.Changed("max-by") {
				req.MaxBy = &maxBy
			}
			if flags.Changed("min") {
				req.MinNew = &minNew
			}
			if flags.Changed("max") {
				req.MaxNew = &maxNew
			}
			if req.MinBy == nil && req.MaxBy == nil && req.MinNew == nil && req.MaxNew == nil {
				return fmt.Errorf("nothing to change: use --min-by, --max-by, --min or --max")
			}

			resp, err := send(*socketPath, "axis_limit", req)
			if err != nil {
				return err
			}
			if resp.Limits != nil {
				fmt.Fprintf(out, "%s: min=%.3f max=%.3f speed=%.3f\n", args[0], resp.Limits.Min, resp.Limits.Max, resp.Limits.Speed)
				return nil
			}
			fmt.Fprintln(out, "ok")
			return nil
		},
	}
	cmd.Flags().Float64Var(&minBy, "min-by", 0, "move the lower bound by this amount")
	cmd.Flags().Float64Var(&maxBy, "max-by", 0, "move the upper bound by this amount")
	cmd.Flags().Float64Var(&minNew, "min", 0, "set the lower bound")
	cmd.Flags().Float64Var(&maxNew, "max", 0, "set the upper bound")
	return cmd
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}
