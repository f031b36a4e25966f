package main

import "time"

// Session loop defaults
const (
	defaultUpdateHz = 50 // Internal tick rate between host position updates (Hz)

	// Limits for axes the config does not mention. Narrow and slow on purpose.
	fallbackSpeed = 0.25
	fallbackMin   = 0.4
	fallbackMax   = 0.6
)

// Device defaults
const (
	deviceTypeTCodeSerial = "tcode_serial"
	deviceTypeDebug       = "debug"

	defaultSerialPort     = "/dev/ttyUSB0"
	defaultWriteTimeoutMS = 100
)

// Endpoints
const (
	defaultSocketPath = "/tmp/strokesync.sock"
	defaultHTTPListen = "127.0.0.1:3002"

	configEnvVar = "STROKESYNC_CONFIG"
)

// wsPositionCoalesceWindow is the maximum rate at which output positions
// are pushed to WebSocket clients.
const wsPositionCoalesceWindow = 50 * time.Millisecond

// snapshotTimeout bounds the state_init round-trip through the session loop.
const snapshotTimeout = time.Second
