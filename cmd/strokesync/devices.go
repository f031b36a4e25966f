package main

import (
	"fmt"
	"log/slog"

	"strokesync/stroker"
	"strokesync/tcode"
)

// openDevice builds the configured device. Nothing is opened until the
// session connects.
func openDevice(cfg *Config, logger *slog.Logger) (stroker.Device, error) {
	switch cfg.Device.Type {
	case deviceTypeTCodeSerial:
		return tcode.New(cfg.ToTCodeConfig(), logger.With("device", "tcode")), nil
	case deviceTypeDebug:
		return stroker.NewDebugDevice(logger.With("device", "debug")), nil
	default:
		return nil, fmt.Errorf("unknown device type %q", cfg.Device.Type)
	}
}
