package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"strokesync/stroker"
	"strokesync/tcode"
)

// tcode-axis-test connects to a T-Code device and moves every axis it
// reports through its full range, one axis at a time. Use it to check
// wiring and channel mapping before running the daemon.

func main() {
	var (
		port      = flag.String("port", "/dev/ttyUSB0", "Serial port of the T-Code device")
		baud      = flag.Int("baud", tcode.DefaultBaud, "Serial baud rate")
		handshake = flag.Bool("handshake", true, "Query the device (D0/D1/D2) for its axes")
		moveMs    = flag.Int("move-ms", 2000, "Duration of each move in milliseconds (sent as the I suffix)")
		only      = flag.String("axis", "", "Test only this axis (e.g. stroke, twist)")
		verbose   = flag.Bool("v", false, "Log serial traffic")
	)
	flag.Parse()

	move := time.Duration(*moveMs) * time.Millisecond
	if move <= 0 || move > tcode.MaxInterval {
		log.Fatalf("-move-ms must be between 1 and %d", tcode.MaxInterval.Milliseconds())
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	dev := tcode.New(tcode.Config{
		Port:      *port,
		Baud:      *baud,
		Handshake: *handshake,
		Interval:  move,
	}, logger)

	err := run(ctx, dev, *only, move, log.Printf)
	stop()
	if err != nil {
		log.Fatalf("%v", err)
	}
	log.Printf("done")
}

// run connects dev, sweeps the selected axes and always disconnects, which
// stops the device, before returning.
func run(ctx context.Context, dev stroker.Device, only string, move time.Duration, logf func(string, ...any)) error {
	logf("connecting to %s...", dev.Description())
	if err := dev.Connect(ctx); err != nil {
		return fmt.Errorf("connect failed: %w", err)
	}
	defer dev.Disconnect()

	logf("connected: %s", dev.Description())
	if td, ok := dev.(*tcode.Device); ok {
		for _, info := range td.AxisInfo() {
			logf("  %s %-10s range %d..%d", info.Channel, info.Name, info.Min, info.Max)
		}
	}

	axes := dev.Axes()
	if only != "" {
		axis, err := stroker.ParseAxis(only)
		if err != nil {
			return err
		}
		if !stroker.Supports(dev, axis) {
			return fmt.Errorf("device has no %s axis (has %v)", axis, axes)
		}
		axes = []stroker.Axis{axis}
	}

	return sweep(ctx, dev, axes, move, logf)
}

// sweepPath is the sequence of targets for each axis: center, both ends,
// back to center.
var sweepPath = []float64{0.5, 0, 1, 0.5}

// sweep moves each axis along sweepPath, waiting move between targets.
func sweep(ctx context.Context, dev stroker.Device, axes []stroker.Axis, move time.Duration, logf func(string, ...any)) error {
	for _, axis := range axes {
		logf("sweeping %s", axis)
		for _, v := range sweepPath {
			if err := dev.Send(ctx, []stroker.Command{{Axis: axis, Value: v}}); err != nil {
				return fmt.Errorf("send %s=%.2f: %w", axis, v, err)
			}
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(move):
			}
		}
	}
	return nil
}
