package tcode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"strings"
	"sync"
	"time"

	"strokesync/stroker"
)

const (
	DefaultBaud             = 115200
	DefaultWriteTimeout     = 100 * time.Millisecond
	DefaultHandshakeTimeout = 2 * time.Second

	// D2 has no terminator; the listing ends when the device goes quiet.
	axisListGap = 200 * time.Millisecond

	readTimeout = 100 * time.Millisecond
	readPoll    = 5 * time.Millisecond
)

var (
	errReadTimeout  = errors.New("read timed out")
	errWriteTimeout = errors.New("write timed out")
)

// Config configures a serial T-Code device.
type Config struct {
	Port string
	Baud int

	// WriteTimeout bounds every write; exceeding it marks the port unusable.
	WriteTimeout time.Duration

	// Handshake runs the D0/D1/D2 identification on connect and restricts
	// the channel set to what D2 declares. Without it every default
	// channel is assumed.
	Handshake        bool
	HandshakeTimeout time.Duration

	// Interval, when positive, is sent as the "I" suffix on every update.
	Interval time.Duration
}

func (c Config) withDefaults() Config {
	if c.Baud <= 0 {
		c.Baud = DefaultBaud
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}
	return c
}

// Device is a stroker.Device for T-Code hardware on a serial port.
// The port is owned exclusively by the Device.
type Device struct {
	cfg    Config
	logger *slog.Logger
	open   Opener

	axisGap time.Duration

	mu          sync.Mutex
	port        Port
	broken      bool
	enc         *Encoder
	info        []AxisInfo
	description string
}

var (
	_ stroker.Device  = (*Device)(nil)
	_ stroker.Stopper = (*Device)(nil)
)

// New returns a disconnected device using the native serial port.
func New(cfg Config, logger *slog.Logger) *Device {
	return NewWithOpener(cfg, logger, OpenSerial)
}

// NewWithOpener is New with a custom port opener.
func NewWithOpener(cfg Config, logger *slog.Logger, open Opener) *Device {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	cfg = cfg.withDefaults()
	return &Device{
		cfg:     cfg,
		logger:  logger,
		open:    open,
		axisGap: axisListGap,
		enc:     NewEncoder(DefaultChannels(), cfg.Interval),
	}
}

// Connect opens the port and, if configured, identifies the device.
// On any failure the port is closed again and the device stays disconnected.
func (d *Device) Connect(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.port != nil && !d.broken {
		return nil
	}
	d.closeLocked()

	port, err := d.open(SerialConfig{
		Name:        d.cfg.Port,
		Baud:        d.cfg.Baud,
		ReadTimeout: readTimeout,
	})
	if err != nil {
		kind := stroker.ErrUnavailable
		if errors.Is(err, stroker.ErrPermissionDenied) || errors.Is(err, fs.ErrPermission) {
			kind = stroker.ErrPermissionDenied
		}
		return &stroker.ConnectError{Kind: kind, Device: d.cfg.Port, Err: err}
	}

	enc := NewEncoder(DefaultChannels(), d.cfg.Interval)
	desc := "T-Code serial " + d.cfg.Port
	var info []AxisInfo

	if d.cfg.Handshake {
		desc, info, err = d.handshake(ctx, port)
		if err != nil {
			_ = port.Close()
			return err
		}
		channels := make([]Channel, 0, len(info))
		for _, ai := range info {
			channels = append(channels, ai.Channel)
		}
		enc = NewEncoder(channels, d.cfg.Interval)
		if len(enc.Axes()) == 0 {
			_ = port.Close()
			return &stroker.ConnectError{
				Kind:   stroker.ErrProtocolMismatch,
				Device: d.cfg.Port,
				Err:    errors.New("no usable axes declared"),
			}
		}
	}

	d.port = port
	d.broken = false
	d.enc = enc
	d.info = info
	d.description = desc

	d.logger.Info("T-Code device connected",
		"port", d.cfg.Port,
		"baud", d.cfg.Baud,
		"description", desc,
		"axes", enc.Axes())
	return nil
}

func (d *Device) handshake(ctx context.Context, port Port) (string, []AxisInfo, error) {
	connectErr := func(kind, err error) error {
		return &stroker.ConnectError{Kind: kind, Device: d.cfg.Port, Err: err}
	}
	readErr := func(cmd string, err error) error {
		if errors.Is(err, errReadTimeout) || errors.Is(err, context.DeadlineExceeded) {
			return connectErr(stroker.ErrConnectTimeout, fmt.Errorf("%s: %w", cmd, err))
		}
		return connectErr(stroker.ErrUnavailable, fmt.Errorf("%s: %w", cmd, err))
	}

	lr := &lineReader{r: port}
	deadline := time.Now().Add(d.cfg.HandshakeTimeout)

	query := func(cmd string) (string, error) {
		if err := d.writeWithTimeout(port, []byte(cmd+"\n")); err != nil {
			return "", connectErr(stroker.ErrUnavailable, fmt.Errorf("%s: %w", cmd, err))
		}
		line, err := lr.readLine(ctx, deadline)
		if err != nil {
			return "", readErr(cmd, err)
		}
		d.logger.Debug("T-Code handshake", "command", cmd, "response", line)
		return line, nil
	}

	d0, err := query("D0")
	if err != nil {
		return "", nil, err
	}
	d1, err := query("D1")
	if err != nil {
		return "", nil, err
	}
	if !strings.Contains(strings.ToLower(d1), "tcode") {
		return "", nil, connectErr(stroker.ErrProtocolMismatch, fmt.Errorf("D1 reported %q", d1))
	}

	if err := d.writeWithTimeout(port, []byte("D2\n")); err != nil {
		return "", nil, connectErr(stroker.ErrUnavailable, fmt.Errorf("D2: %w", err))
	}
	var info []AxisInfo
	for {
		line, err := lr.readLine(ctx, time.Now().Add(d.axisGap))
		if errors.Is(err, errReadTimeout) {
			break
		}
		if err != nil {
			return "", nil, readErr("D2", err)
		}
		ai, err := ParseAxisInfo(line)
		if err != nil {
			d.logger.Warn("ignoring D2 line", "line", line, "error", err)
			continue
		}
		if _, ok := AxisFor(ai.Channel); !ok {
			d.logger.Warn("unrecognised T-Code channel; ignoring", "channel", ai.Channel, "name", ai.Name)
			continue
		}
		info = append(info, ai)
	}

	return fmt.Sprintf("%s (%s)", d0, d1), info, nil
}

// Send writes one T-Code line for cmds. A write that exceeds the write
// timeout or fails leaves the device unusable until reconnected.
func (d *Device) Send(ctx context.Context, cmds []stroker.Command) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.port == nil || d.broken {
		return &stroker.SendError{Kind: stroker.ErrDisconnected}
	}

	line, err := d.enc.Encode(cmds)
	if err != nil {
		return &stroker.SendError{Kind: stroker.ErrMalformed, Err: err}
	}
	if len(line) == 0 {
		return nil
	}
	return d.writeLocked(line)
}

// Stop sends DSTOP, halting motion without disconnecting.
func (d *Device) Stop(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.port == nil || d.broken {
		return &stroker.SendError{Kind: stroker.ErrDisconnected}
	}
	return d.writeLocked([]byte("DSTOP\n"))
}

// Disconnect stops the device (best effort) and closes the port.
func (d *Device) Disconnect() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.port == nil {
		return
	}
	if !d.broken {
		if err := d.writeWithTimeout(d.port, []byte("DSTOP\n")); err != nil {
			d.logger.Debug("DSTOP on disconnect failed", "error", err)
		}
	}
	d.closeLocked()
	d.logger.Info("T-Code device disconnected", "port", d.cfg.Port)
}

func (d *Device) Axes() []stroker.Axis {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.enc.Axes()
}

func (d *Device) Description() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.description == "" {
		return "T-Code serial " + d.cfg.Port
	}
	return d.description
}

// AxisInfo returns the D2 listing from the last handshake, if any.
func (d *Device) AxisInfo() []AxisInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]AxisInfo(nil), d.info...)
}

func (d *Device) writeLocked(data []byte) error {
	err := d.writeWithTimeout(d.port, data)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, errWriteTimeout):
		d.broken = true
		return &stroker.SendError{Kind: stroker.ErrSendTimeout, Err: err}
	default:
		d.broken = true
		return &stroker.SendError{Kind: stroker.ErrDisconnected, Err: err}
	}
}

// writeWithTimeout issues one Write and waits at most WriteTimeout for it.
// A timed-out write keeps running until the port is closed.
func (d *Device) writeWithTimeout(port Port, data []byte) error {
	done := make(chan error, 1)
	go func() {
		n, err := port.Write(data)
		if err == nil && n < len(data) {
			err = io.ErrShortWrite
		}
		done <- err
	}()

	timer := time.NewTimer(d.cfg.WriteTimeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return errWriteTimeout
	}
}

func (d *Device) closeLocked() {
	if d.port == nil {
		return
	}
	if err := d.port.Close(); err != nil {
		d.logger.Debug("closing serial port", "error", err)
	}
	d.port = nil
	d.broken = false
}

// lineReader assembles newline-terminated lines from a port whose reads may
// time out and return no data.
type lineReader struct {
	r   io.Reader
	buf []byte
}

func (lr *lineReader) readLine(ctx context.Context, deadline time.Time) (string, error) {
	chunk := make([]byte, 128)
	for {
		for {
			i := bytes.IndexByte(lr.buf, '\n')
			if i < 0 {
				break
			}
			line := strings.TrimRight(string(lr.buf[:i]), "\r")
			lr.buf = lr.buf[i+1:]
			if strings.TrimSpace(line) != "" {
				return line, nil
			}
		}

		if err := ctx.Err(); err != nil {
			return "", err
		}
		if !time.Now().Before(deadline) {
			return "", errReadTimeout
		}

		n, err := lr.r.Read(chunk)
		lr.buf = append(lr.buf, chunk[:n]...)
		if err != nil && !errors.Is(err, io.EOF) {
			return "", err
		}
		if n == 0 {
			time.Sleep(readPoll)
		}
	}
}
