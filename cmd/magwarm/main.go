package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/chaz8081/magwarm/internal/ble"
	"github.com/chaz8081/magwarm/internal/command"
	"github.com/chaz8081/magwarm/internal/config"
	"github.com/chaz8081/magwarm/internal/controller"
	"github.com/chaz8081/magwarm/internal/locator"
	"github.com/chaz8081/magwarm/internal/metrics"
	"github.com/chaz8081/magwarm/internal/payload"
	"github.com/chaz8081/magwarm/internal/permission"
	"github.com/chaz8081/magwarm/internal/session"
	"github.com/chaz8081/magwarm/internal/status"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "path to config file (default: ~/.config/magwarm/config.yaml)")
	deviceFlag := flag.String("device", "", "device identifier to connect to (overrides device_id)")
	qrFlag := flag.String("qr", "", `QR payload carrying the identifier, e.g. {"deviceId":"AA:BB:CC:DD:EE:FF"}`)
	qrStdin := flag.Bool("qr-stdin", false, "read QR payloads from stdin (one per line) until one carries a deviceId")
	scanFlag := flag.Bool("scan", false, "list nearby BLE devices and exit")
	initFlag := flag.Bool("init", false, "write a default config file and exit")
	flag.Parse()

	if *initFlag {
		path, err := config.WriteDefault()
		if err != nil {
			log.Fatalf("config: %v", err)
		}
		if path == "" {
			log.Printf("Config already exists at %s", config.DefaultConfigPath())
		} else {
			log.Printf("Wrote default config to %s", path)
		}
		return
	}

	// Load configuration
	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("config validation: %v", err)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: config.ParseLogLevel(cfg.LogLevel),
	})))

	codec, err := payload.ParseCodec(cfg.BLE.PayloadEncoding)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	policy, err := controller.ParsePolicy(cfg.Commands.OnFailure)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	printBanner(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Permission gate
	platform := permission.Platform{OS: cfg.Platform.OS, APILevel: cfg.Platform.APILevel}
	if platform.OS == "" {
		platform.OS = runtime.GOOS
	}
	gate := permission.NewGate(platform, nil)
	if err := gate.Require(ctx); err != nil {
		log.Fatalf("%v\n\nGrant Bluetooth access to this process and try again.", err)
	}
	if platform.OS == "linux" {
		if err := (permission.BlueZ{}).Check(ctx); err != nil {
			slog.Warn("[PERM] bluetoothd not ready, enabling the adapter may fail", "error", err)
		}
	}

	// Initialize the radio
	adapter := ble.NewTinyGoAdapter()
	if err := adapter.Enable(); err != nil {
		log.Fatalf("Failed to enable Bluetooth adapter: %v", err)
	}
	log.Println("Bluetooth adapter ready")

	if *scanFlag {
		if err := listDevices(ctx, adapter, cfg.BLE.ScanWindow); err != nil && !errors.Is(err, context.Canceled) {
			log.Fatalf("scan: %v", err)
		}
		return
	}

	// stdin carries QR payloads first (with -qr-stdin), then console commands.
	lines := locator.LinePayloads(ctx, os.Stdin)

	deviceID, err := resolveDevice(ctx, cfg.DeviceID, *deviceFlag, *qrFlag, *qrStdin, lines)
	if err != nil {
		log.Fatalf("No device: %v\n\nPass -device, -qr or -qr-stdin, set device_id in the config, or run with -scan to list devices.", err)
	}

	m := metrics.New()
	var srv *http.Server
	if cfg.Metrics.Listen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		srv = &http.Server{Addr: cfg.Metrics.Listen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server stopped", "error", err)
			}
		}()
		log.Printf("Metrics on http://%s/metrics", cfg.Metrics.Listen)
	}

	// Session
	mgr := session.NewManager(adapter, session.Options{
		ServiceUUID:        cfg.BLE.ServiceUUID,
		CharacteristicUUID: cfg.BLE.CharacteristicUUID,
		ConnectTimeout:     cfg.BLE.ConnectTimeout,
		ReconnectAttempts:  cfg.BLE.ReconnectAttempts,
	})
	mgr.Watch(m.ObserveSession)
	mgr.Watch(printSession)

	if _, err := mgr.Connect(ctx, deviceID); err != nil {
		log.Fatalf("connect: %v", err)
	}
	log.Printf("Connecting to %s...", deviceID)

	// Commands
	writer := command.NewWriter(mgr, codec, m.ObserveCommand)
	ctrl := controller.New(writer, controller.Options{
		TargetMin: cfg.Commands.TargetMin,
		TargetMax: cfg.Commands.TargetMax,
		OnFailure: policy,
	})

	// Status poller
	poller := status.NewPoller(mgr, cfg.Poll.Interval, codec)
	poller.OnUpdate(m.ObserveStatus)
	poller.OnUpdate(printStatus)
	poller.OnUpdate(func(s status.Snapshot) {
		if s.HasRecord && s.Record.Has(status.FieldHeater) {
			ctrl.SetChannels(s.Record.Channels())
		}
	})
	pollDone := make(chan struct{})
	go func() {
		defer close(pollDone)
		poller.Run(ctx)
	}()

	log.Println("Ready! Commands: temp N, temp +/-, heater I, power, status, quit. Ctrl+C to quit.")

	// Main event loop
	for running := true; running; {
		select {
		case <-ctx.Done():
			log.Println("Received signal, shutting down...")
			running = false

		case line, ok := <-lines:
			if !ok {
				log.Println("stdin closed, shutting down...")
				running = false
				break
			}
			if quit := runConsole(ctx, line, ctrl, poller); quit {
				running = false
			}
		}
	}

	// Teardown: no read or write may fire after this point.
	stop()
	<-pollDone
	if err := mgr.Close(); err != nil {
		slog.Warn("session close", "error", err)
	}
	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = srv.Shutdown(shutdownCtx)
		cancel()
	}
	log.Println("Goodbye!")
}

// loadConfig loads the config from the specified path, or falls back to
// the default config path, or uses built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	// Try default config path
	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		cfg, err := config.Load(defaultPath)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		log.Printf("Config loaded from %s", defaultPath)
		return cfg, nil
	}

	// No config file, use defaults
	log.Println("No config file found, using defaults")
	return config.Default(), nil
}

// resolveDevice picks the identifier to connect to. Precedence: -device,
// -qr, -qr-stdin, then device_id from the config.
func resolveDevice(ctx context.Context, configured, flagID, qr string, qrStdin bool, lines <-chan string) (string, error) {
	if id := strings.TrimSpace(flagID); id != "" {
		return id, nil
	}
	if qr != "" {
		id, ok := locator.ParseQRPayload(qr)
		if !ok {
			return "", fmt.Errorf("QR payload %q has no deviceId", qr)
		}
		return id, nil
	}
	if qrStdin {
		log.Println("Waiting for a QR payload on stdin...")
		return locator.ScanPayloads(ctx, lines)
	}
	if configured != "" {
		return configured, nil
	}
	return "", session.ErrNoIdentifier
}

// listDevices prints every distinct device seen during one scan window.
func listDevices(ctx context.Context, adapter ble.Adapter, window time.Duration) error {
	fmt.Printf("Scanning for %s...\n", window)
	found := 0
	err := locator.NewScanner(adapter, window).Scan(ctx, func(d locator.Discovered) {
		found++
		name := d.Name
		if name == "" {
			name = "(unnamed)"
		}
		fmt.Printf("  %-36s  %-24s  %d dBm\n", d.ID, name, d.RSSI)
	})
	fmt.Printf("%d device(s) found\n", found)
	if errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

// runConsole executes one console line. It reports whether the user asked
// to quit.
func runConsole(ctx context.Context, line string, ctrl *controller.Controller, poller *status.Poller) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}

	var err error
	switch strings.ToLower(fields[0]) {
	case "quit", "exit", "q":
		return true

	case "status", "s":
		printStatus(poller.Snapshot())
		st := ctrl.State()
		fmt.Printf("  Requested: target %d°C, power %s, heaters off %v\n", st.TargetTemp, onOff(st.PowerOn), st.HeaterOff)
		return false

	case "temp", "t":
		if len(fields) != 2 {
			lo, hi := ctrl.Bounds()
			fmt.Printf("usage: temp N (%d..%d) | temp + | temp -\n", lo, hi)
			return false
		}
		switch fields[1] {
		case "+":
			err = ctrl.StepTargetTemp(ctx, 1)
		case "-":
			err = ctrl.StepTargetTemp(ctx, -1)
		default:
			n, convErr := strconv.Atoi(fields[1])
			if convErr != nil {
				fmt.Printf("not a number: %q\n", fields[1])
				return false
			}
			err = ctrl.SetTargetTemp(ctx, n)
		}

	case "heater", "h":
		if len(fields) != 2 {
			fmt.Println("usage: heater I")
			return false
		}
		i, convErr := strconv.Atoi(fields[1])
		if convErr != nil {
			fmt.Printf("not a channel: %q\n", fields[1])
			return false
		}
		err = ctrl.ToggleHeater(ctx, i)

	case "power", "p":
		err = ctrl.TogglePower(ctx)

	default:
		fmt.Printf("unknown command %q\n", fields[0])
		return false
	}

	switch {
	case err == nil:
		fmt.Println("ok")
	case errors.Is(err, command.ErrNoDevice):
		fmt.Println("No device connected. Wait for the session to connect and try again.")
	default:
		fmt.Printf("error: %v\n", err)
	}
	return false
}

func printSession(s session.Snapshot) {
	switch s.State {
	case session.Connected:
		log.Printf("Connected to %s", s.DeviceID)
	case session.Failed:
		log.Printf("Connection to %s failed: %v", s.DeviceID, s.Err)
	case session.Disconnected:
		if s.Reconnecting {
			log.Printf("Lost %s, reconnecting...", s.DeviceID)
		} else {
			log.Printf("Disconnected from %s", s.DeviceID)
		}
	}
}

// printStatus renders one poller snapshot.
func printStatus(snap status.Snapshot) {
	if !snap.HasRecord {
		if snap.Err != nil {
			fmt.Printf("Status unavailable: %v\n", snap.Err)
		} else {
			fmt.Println("No status received yet")
		}
		return
	}

	rec := snap.Record
	var b strings.Builder
	fmt.Fprintf(&b, "[%s]", snap.UpdatedAt.Format("15:04:05"))
	if rec.Has(status.FieldVoltage) {
		fmt.Fprintf(&b, " %.2fV", rec.Voltage)
	}
	if rec.Has(status.FieldPower) {
		fmt.Fprintf(&b, " power %s", onOff(rec.Power))
	}
	if rec.Has(status.FieldTargetTemp) {
		fmt.Fprintf(&b, " target %d°C", rec.TargetTemp)
	}
	for i := 0; i < rec.Channels(); i++ {
		fmt.Fprintf(&b, " | ch%d", i)
		if i < len(rec.Heater) {
			fmt.Fprintf(&b, " %s", onOff(rec.Heater[i]))
		}
		if t, ok := rec.ChannelTemp(i); ok {
			fmt.Fprintf(&b, " %.1f°C", t)
		}
	}
	if snap.Stale() {
		fmt.Fprintf(&b, " (stale: %v)", snap.Err)
	}
	fmt.Println(b.String())
}

func onOff(b bool) string {
	if b {
		return "ON"
	}
	return "OFF"
}

// printBanner displays the startup configuration summary.
func printBanner(cfg *config.Config) {
	device := cfg.DeviceID
	if device == "" {
		device = "(not set)"
	}
	fmt.Println("=== magwarm ===")
	fmt.Printf("  Device:    %s\n", device)
	fmt.Printf("  Service:   %s\n", cfg.BLE.ServiceUUID)
	fmt.Printf("  Char:      %s (%s)\n", cfg.BLE.CharacteristicUUID, cfg.BLE.PayloadEncoding)
	fmt.Printf("  Connect:   %s timeout, %d reconnect(s)\n", cfg.BLE.ConnectTimeout, cfg.BLE.ReconnectAttempts)
	fmt.Printf("  Poll:      every %s\n", cfg.Poll.Interval)
	fmt.Printf("  Target:    %d..%d°C, on failure %s\n", cfg.Commands.TargetMin, cfg.Commands.TargetMax, cfg.Commands.OnFailure)
	fmt.Printf("  Log:       %s\n", cfg.LogLevel)
	fmt.Println("===============")
}
