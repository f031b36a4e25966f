package tcode

import (
	"fmt"
	"io"
	"time"

	"github.com/tarm/serial"
)

// Port is the transport a Device talks through. The serial implementation
// comes from OpenSerial; tests substitute in-memory fakes.
type Port interface {
	io.ReadWriteCloser
}

// SerialConfig holds serial port parameters.
type SerialConfig struct {
	// Device path (e.g. "/dev/ttyUSB0", "COM3")
	Name string

	Baud int

	// Read timeout (0 = blocking). Reads that time out return no data.
	ReadTimeout time.Duration
}

// Opener opens a Port. OpenSerial is the default.
type Opener func(SerialConfig) (Port, error)

// OpenSerial opens a native serial port. Errors wrap
// stroker.ErrPermissionDenied or stroker.ErrUnavailable when the path can be
// classified up front.
func OpenSerial(cfg SerialConfig) (Port, error) {
	if err := probeAccess(cfg.Name); err != nil {
		return nil, err
	}

	port, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Name,
		Baud:        cfg.Baud,
		ReadTimeout: cfg.ReadTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", cfg.Name, err)
	}
	return port, nil
}
