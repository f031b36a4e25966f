package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"strokesync/stroker"
)

func TestSweepVisitsBothEndsOfEveryAxis(t *testing.T) {
	dev := stroker.NewDebugDevice(nil)
	if err := dev.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	axes := []stroker.Axis{stroker.Stroke, stroker.Twist}
	if err := sweep(context.Background(), dev, axes, time.Millisecond, t.Logf); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	sent := dev.Sent()
	if len(sent) != len(axes)*len(sweepPath) {
		t.Fatalf("sent %d batches, want %d", len(sent), len(axes)*len(sweepPath))
	}
	for i, batch := range sent {
		axis := axes[i/len(sweepPath)]
		want := sweepPath[i%len(sweepPath)]
		if len(batch) != 1 || batch[0].Axis != axis || batch[0].Value != want {
			t.Fatalf("batch %d = %v, want %s=%v", i, batch, axis, want)
		}
	}
}

func TestSweepStopsOnSendError(t *testing.T) {
	dev := stroker.NewDebugDevice(nil) // never connected
	err := sweep(context.Background(), dev, []stroker.Axis{stroker.Stroke}, time.Millisecond, t.Logf)
	if err == nil {
		t.Fatalf("expected send error on disconnected device")
	}
}

func TestSweepHonorsCancel(t *testing.T) {
	dev := stroker.NewDebugDevice(nil)
	_ = dev.Connect(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sweep(ctx, dev, []stroker.Axis{stroker.Stroke, stroker.Roll}, time.Hour, t.Logf); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n := len(dev.Sent()); n != 1 {
		t.Fatalf("sent %d batches after cancel, want 1", n)
	}
}

type failingSendDevice struct {
	*stroker.DebugDevice
}

func (d failingSendDevice) Send(context.Context, []stroker.Command) error {
	return errors.New("port gone")
}

func TestRunDisconnectsOnError(t *testing.T) {
	tests := []struct {
		name string
		dev  func(*stroker.DebugDevice) stroker.Device
		only string
	}{
		{"unknown axis", func(d *stroker.DebugDevice) stroker.Device { return d }, "tail"},
		{"send error", func(d *stroker.DebugDevice) stroker.Device { return failingSendDevice{d} }, "stroke"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			debug := stroker.NewDebugDevice(nil)
			err := run(context.Background(), tt.dev(debug), tt.only, time.Millisecond, t.Logf)
			if err == nil {
				t.Fatalf("run: expected error")
			}
			if debug.Connected() {
				t.Fatalf("device still connected after %v", err)
			}
		})
	}
}

func TestRunSweepsSelectedAxis(t *testing.T) {
	dev := stroker.NewDebugDevice(nil)
	if err := run(context.Background(), dev, "twist", time.Millisecond, t.Logf); err != nil {
		t.Fatalf("run: %v", err)
	}
	sent := dev.Sent()
	if len(sent) != len(sweepPath) {
		t.Fatalf("sent %d batches, want %d", len(sent), len(sweepPath))
	}
	for i, batch := range sent {
		if batch[0].Axis != stroker.Twist {
			t.Fatalf("batch %d drives %s, want twist", i, batch[0].Axis)
		}
	}
	if dev.Connected() {
		t.Fatalf("device still connected after run")
	}
}
