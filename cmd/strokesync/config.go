package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"strokesync/limits"
	"strokesync/stroker"
	"strokesync/tcode"
)

// Config is the top-level YAML configuration for the strokesync daemon.
//
// Defaults and validation live here so the rest of the daemon can assume a
// well-formed config.
type Config struct {
	Device  DeviceConfig                   `yaml:"device"`
	Limits  map[string]AxisLimitFileConfig `yaml:"limits"`
	Session SessionConfig                  `yaml:"session"`
	IPC     IPCConfig                      `yaml:"ipc"`
	HTTP    HTTPConfig                     `yaml:"http"`
	Logging LoggingConfig                  `yaml:"logging"`
}

type DeviceConfig struct {
	Type               string `yaml:"type"` // "tcode_serial" or "debug"
	SerialPort         string `yaml:"serial_port"`
	Baud               int    `yaml:"baud"`
	WriteTimeoutMS     int    `yaml:"write_timeout_ms"`
	Handshake          bool   `yaml:"handshake"`
	HandshakeTimeoutMS int    `yaml:"handshake_timeout_ms,omitempty"`
	IntervalMS         int    `yaml:"interval_ms,omitempty"` // optional T-Code "I" suffix
}

// AxisLimitFileConfig is the starting limit for one axis, keyed by axis name
// (stroke, surge, ... lubricant).
type AxisLimitFileConfig struct {
	Speed      float64 `yaml:"speed"`
	DefaultMin float64 `yaml:"default_min"`
	DefaultMax float64 `yaml:"default_max"`
}

type SessionConfig struct {
	UpdateHz int `yaml:"update_hz"`

	// ConnectOnLoad defers the device connection until a script is loaded.
	// When false the daemon connects at startup and exits if that fails.
	ConnectOnLoad bool `yaml:"connect_on_load"`
}

type IPCConfig struct {
	SocketPath string `yaml:"socket_path"`
}

type HTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns a fully-populated Config with defaults.
func DefaultConfig() Config {
	return Config{
		Device: DeviceConfig{
			Type:           deviceTypeTCodeSerial,
			SerialPort:     defaultSerialPort,
			Baud:           tcode.DefaultBaud,
			WriteTimeoutMS: defaultWriteTimeoutMS,
		},
		Limits: map[string]AxisLimitFileConfig{},
		Session: SessionConfig{
			UpdateHz:      defaultUpdateHz,
			ConnectOnLoad: true,
		},
		IPC: IPCConfig{
			SocketPath: defaultSocketPath,
		},
		HTTP: HTTPConfig{
			Enabled: true,
			Listen:  defaultHTTPListen,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfigFile reads and parses a YAML config file on top of the defaults.
// Unknown fields and trailing documents are rejected.
func LoadConfigFile(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path is empty")
	}
	b, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	cfg := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config yaml: %w", err)
	}
	if err := dec.Decode(&struct{}{}); err == nil {
		return Config{}, fmt.Errorf("decode config yaml: unexpected trailing document")
	}

	return cfg, nil
}

// ResolveConfigPath picks the config file to load: the flag value, then
// $STROKESYNC_CONFIG, then ~/.config/strokesync.yaml if it exists.
// An empty result means "defaults only".
func ResolveConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := os.Getenv(configEnvVar); env != "" {
		return env
	}
	p := ExpandPath("~/.config/strokesync.yaml")
	if _, err := os.Stat(p); err == nil {
		return p
	}
	return ""
}

// FlagOverrides holds flag values to apply on top of a loaded config.
// Only non-nil pointers are applied, so main decides which flags were set.
type FlagOverrides struct {
	DeviceType     *string
	SerialPort     *string
	Baud           *int
	Handshake      *bool
	UpdateHz       *int
	IPCSocketPath  *string
	HTTPListen     *string
	HTTPEnabled    *bool
	ConnectOnStart *bool
	LogLevel       *string
}

// Apply merges the overrides into cfg.
func (o FlagOverrides) Apply(cfg *Config) {
	if cfg == nil {
		return
	}
	if o.DeviceType != nil {
		cfg.Device.Type = *o.DeviceType
	}
	if o.SerialPort != nil {
		cfg.Device.SerialPort = *o.SerialPort
	}
	if o.Baud != nil {
		cfg.Device.Baud = *o.Baud
	}
	if o.Handshake != nil {
		cfg.Device.Handshake = *o.Handshake
	}
	if o.UpdateHz != nil {
		cfg.Session.UpdateHz = *o.UpdateHz
	}
	if o.ConnectOnStart != nil {
		cfg.Session.ConnectOnLoad = !*o.ConnectOnStart
	}
	if o.IPCSocketPath != nil {
		cfg.IPC.SocketPath = *o.IPCSocketPath
	}
	if o.HTTPListen != nil {
		cfg.HTTP.Listen = *o.HTTPListen
	}
	if o.HTTPEnabled != nil {
		cfg.HTTP.Enabled = *o.HTTPEnabled
	}
	if o.LogLevel != nil {
		cfg.Logging.Level = *o.LogLevel
	}
}

// Validate checks config invariants and returns a user-friendly error.
// Call it after defaults, file and overrides are applied.
func (c *Config) Validate() error {
	switch c.Device.Type {
	case deviceTypeTCodeSerial:
		if c.Device.SerialPort == "" {
			return errors.New("device.serial_port must not be empty")
		}
		if c.Device.Baud <= 0 {
			return errors.New("device.baud must be > 0")
		}
		if c.Device.WriteTimeoutMS <= 0 {
			return errors.New("device.write_timeout_ms must be > 0")
		}
		if c.Device.HandshakeTimeoutMS < 0 {
			return errors.New("device.handshake_timeout_ms must be >= 0")
		}
		if c.Device.IntervalMS < 0 || c.Device.IntervalMS > int(tcode.MaxInterval/time.Millisecond) {
			return fmt.Errorf("device.interval_ms must be between 0 and %d", tcode.MaxInterval.Milliseconds())
		}
	case deviceTypeDebug:
	default:
		return fmt.Errorf("device.type must be %q or %q", deviceTypeTCodeSerial, deviceTypeDebug)
	}

	if _, err := c.AxisLimits(); err != nil {
		return err
	}

	if c.Session.UpdateHz <= 0 || c.Session.UpdateHz > 1000 {
		return errors.New("session.update_hz must be between 1 and 1000")
	}

	if c.IPC.SocketPath == "" {
		return errors.New("ipc.socket_path must not be empty")
	}
	if c.HTTP.Enabled && c.HTTP.Listen == "" {
		return errors.New("http.enabled is true but http.listen is empty")
	}

	if c.Logging.Level == "" {
		return errors.New("logging.level must not be empty")
	}
	if _, err := parseLogLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}

	return nil
}

// AxisLimits converts the limits section into limiter configs.
func (c *Config) AxisLimits() (map[stroker.Axis]limits.Config, error) {
	names := make([]string, 0, len(c.Limits))
	for name := range c.Limits {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make(map[stroker.Axis]limits.Config, len(names))
	for _, name := range names {
		axis, err := stroker.ParseAxis(name)
		if err != nil {
			return nil, fmt.Errorf("limits: %w", err)
		}
		l := c.Limits[name]
		lc := limits.Config{Min: l.DefaultMin, Max: l.DefaultMax, Speed: l.Speed}
		if err := lc.Validate(); err != nil {
			return nil, fmt.Errorf("limits.%s: %w", name, err)
		}
		if _, dup := out[axis]; dup {
			return nil, fmt.Errorf("limits.%s: axis %s configured twice", name, axis)
		}
		out[axis] = lc
	}
	return out, nil
}

// ToTCodeConfig maps the device section onto the serial device config.
func (c *Config) ToTCodeConfig() tcode.Config {
	return tcode.Config{
		Port:             ExpandPath(c.Device.SerialPort),
		Baud:             c.Device.Baud,
		WriteTimeout:     time.Duration(c.Device.WriteTimeoutMS) * time.Millisecond,
		Handshake:        c.Device.Handshake,
		HandshakeTimeout: time.Duration(c.Device.HandshakeTimeoutMS) * time.Millisecond,
		Interval:         time.Duration(c.Device.IntervalMS) * time.Millisecond,
	}
}

func fallbackLimits() limits.Config {
	return limits.Config{Min: fallbackMin, Max: fallbackMax, Speed: fallbackSpeed}
}

// ExpandPath expands a leading "~" in a path using $HOME.
func ExpandPath(p string) string {
	if p == "" || p[0] != '~' {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	if p == "~" {
		return home
	}
	if len(p) >= 2 && (p[1] == '/' || p[1] == '\\') {
		return filepath.Join(home, p[2:])
	}
	return p
}
