package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"strokesync/limits"
)

const version = "0.3.0"

func printVersion() {
	fmt.Printf("strokesync v%s\n", version)
	fmt.Println("Funscript playback sync daemon for T-Code strokers")
}

func printUsage() {
	printVersion()
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  strokesync [OPTIONS]")
	fmt.Println()
	fmt.Println("DESCRIPTION:")
	fmt.Println("  Daemon that follows video playback reported over a Unix socket and")
	fmt.Println("  drives a stroker from the matching funscripts. Every axis is bounded")
	fmt.Println("  by a live-adjustable range and speed limit.")
	fmt.Println()
	fmt.Println("OPTIONS:")
	fmt.Println("  -config string")
	fmt.Printf("        YAML config file (default $%s, then ~/.config/strokesync.yaml)\n", configEnvVar)
	fmt.Println()
	fmt.Println("  -device string")
	fmt.Printf("        Device type: %s|%s (default %q)\n", deviceTypeTCodeSerial, deviceTypeDebug, deviceTypeTCodeSerial)
	fmt.Println()
	fmt.Println("  -serial-port string")
	fmt.Printf("        Serial port of the T-Code device (default %q)\n", defaultSerialPort)
	fmt.Println()
	fmt.Println("  -baud int")
	fmt.Println("        Serial baud rate (default 115200)")
	fmt.Println()
	fmt.Println("  -handshake")
	fmt.Println("        Query the device (D0/D1/D2) for its axes on connect")
	fmt.Println()
	fmt.Println("  -update-hz int")
	fmt.Printf("        Internal tick rate between host position updates (default %d)\n", defaultUpdateHz)
	fmt.Println()
	fmt.Println("  -connect-on-start")
	fmt.Println("        Connect the device at startup instead of on first script load")
	fmt.Println()
	fmt.Println("  -ipc-socket string")
	fmt.Printf("        Unix domain socket path for IPC (default %q)\n", defaultSocketPath)
	fmt.Println()
	fmt.Println("  -http-listen string")
	fmt.Printf("        Address for /metrics and /ws/state (default %q)\n", defaultHTTPListen)
	fmt.Println()
	fmt.Println("  -http")
	fmt.Println("        Enable the observer HTTP server (default true)")
	fmt.Println()
	fmt.Println("  -log-level string")
	fmt.Println("        Log level: error, warn, info, debug (default \"info\")")
	fmt.Println()
	fmt.Println("  -version")
	fmt.Println("        Print version and exit")
	fmt.Println()
	fmt.Println("  -help")
	fmt.Println("        Print this help message")
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("  # Dry run without hardware")
	fmt.Println("  strokesync -device debug -log-level debug")
	fmt.Println()
	fmt.Println("  # OSR2 on a USB serial adapter")
	fmt.Println("  strokesync -serial-port /dev/ttyACM0 -handshake")
	fmt.Println()
	fmt.Println("  # Tell the daemon a video is starting")
	fmt.Println("  strokesync-ctl video ~/Videos/scene.mp4")
	fmt.Println()
	fmt.Println("NOTES:")
	fmt.Println("  - Requires read/write access to the serial port (add user to 'dialout' or 'uucp')")
	fmt.Printf("  - Axes without configured limits use min=%.2f max=%.2f speed=%.2f\n", fallbackMin, fallbackMax, fallbackSpeed)
	fmt.Println()
}

func main() {
	os.Exit(run())
}

func run() int {
	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" {
			printVersion()
			return 0
		}
		if arg == "-help" || arg == "--help" || arg == "-h" {
			printUsage()
			return 0
		}
	}

	var (
		configPath     = flag.String("config", "", "YAML config file")
		deviceType     = flag.String("device", deviceTypeTCodeSerial, "Device type: tcode_serial|debug")
		serialPort     = flag.String("serial-port", defaultSerialPort, "Serial port of the T-Code device")
		baud           = flag.Int("baud", 115200, "Serial baud rate")
		handshake      = flag.Bool("handshake", false, "Query the device for its axes on connect")
		updateHz       = flag.Int("update-hz", defaultUpdateHz, "Internal tick rate in Hz")
		connectOnStart = flag.Bool("connect-on-start", false, "Connect the device at startup")
		ipcSocketPath  = flag.String("ipc-socket", defaultSocketPath, "Unix domain socket path for IPC")
		httpListen     = flag.String("http-listen", defaultHTTPListen, "Address for /metrics and /ws/state")
		httpEnabled    = flag.Bool("http", true, "Enable the observer HTTP server")
		logLevelStr    = flag.String("log-level", "info", "Log level: error, warn, info, debug")
		_              = flag.Bool("version", false, "Print version and exit")
		_              = flag.Bool("help", false, "Print help message")
	)

	flag.Usage = printUsage
	flag.Parse()

	cfg := DefaultConfig()
	if path := ResolveConfigPath(*configPath); path != "" {
		loaded, err := LoadConfigFile(path)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			return 1
		}
		cfg = loaded
	}

	// Only flags given on the command line override the file.
	var o FlagOverrides
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "device":
			o.DeviceType = deviceType
		case "serial-port":
			o.SerialPort = serialPort
		case "baud":
			o.Baud = baud
		case "handshake":
			o.Handshake = handshake
		case "update-hz":
			o.UpdateHz = updateHz
		case "connect-on-start":
			o.ConnectOnStart = connectOnStart
		case "ipc-socket":
			o.IPCSocketPath = ipcSocketPath
		case "http-listen":
			o.HTTPListen = httpListen
		case "http":
			o.HTTPEnabled = httpEnabled
		case "log-level":
			o.LogLevel = logLevelStr
		}
	})
	o.Apply(&cfg)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}

	logLevel, _ := parseLogLevel(cfg.Logging.Level)
	logger := setupLogger(logLevel, os.Stderr)

	initial, _ := cfg.AxisLimits()
	table, err := limits.NewTable(initial)
	if err != nil {
		logger.Error("invalid limits", "error", err)
		return 1
	}

	dev, err := openDevice(&cfg, logger)
	if err != nil {
		logger.Error("device setup failed", "error", err)
		return 1
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := NewMetrics(reg)

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stopSignals()
	ctx, cancel := context.WithCancel(sigCtx)
	defer cancel()

	// Central event bus into the session loop.
	events := make(chan Event, 64)

	var broadcasts chan StateBroadcast
	if cfg.HTTP.Enabled {
		broadcasts = make(chan StateBroadcast, 256)
	}

	session := NewSession(dev, table, SessionOptions{
		UpdateHz:      cfg.Session.UpdateHz,
		ConnectOnLoad: cfg.Session.ConnectOnLoad,
		Logger:        logger,
		Metrics:       metrics,
		Broadcasts:    broadcasts,
	})

	var (
		wg         sync.WaitGroup
		failMu     sync.Mutex
		serviceErr error
	)
	service := func(name string, fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(); err != nil {
				logger.Error(name+" failed", "error", err)
				failMu.Lock()
				serviceErr = errors.Join(serviceErr, err)
				failMu.Unlock()
				cancel()
			}
		}()
	}

	service("IPC server", func() error {
		return runIPCServer(ctx, cfg.IPC.SocketPath, events, session, logger)
	})

	if cfg.HTTP.Enabled {
		state := NewServer(logger, events, HubConfig{})
		wg.Add(2)
		go func() {
			defer wg.Done()
			state.Hub().Run(ctx)
		}()
		go func() {
			defer wg.Done()
			RunBroadcaster(ctx, state.Hub(), broadcasts, logger)
		}()
		mux := newHTTPMux(reg, state)
		service("HTTP server", func() error {
			return runHTTPServer(ctx, cfg.HTTP.Listen, mux, logger)
		})
	}

	logger.Debug("configuration",
		"device_type", cfg.Device.Type,
		"serial_port", cfg.Device.SerialPort,
		"baud", cfg.Device.Baud,
		"handshake", cfg.Device.Handshake,
		"update_hz", cfg.Session.UpdateHz,
		"connect_on_load", cfg.Session.ConnectOnLoad,
		"limits", table.All())
	listenInfo := []any{"version", version, "device", dev.Description(), "ipc", cfg.IPC.SocketPath}
	if cfg.HTTP.Enabled {
		listenInfo = append(listenInfo, "http", cfg.HTTP.Listen)
	}
	logger.Info("strokesync starting", listenInfo...)

	runErr := session.Run(ctx, events)
	if runErr != nil {
		logger.Error("session ended", "error", runErr)
	} else {
		logger.Info("shutting down")
	}

	cancel()
	wg.Wait()

	if runErr != nil || serviceErr != nil {
		return 1
	}
	return 0
}

