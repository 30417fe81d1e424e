// Package locator finds the identifier of the warmer to connect to, either
// from BLE advertisements or from a scanned QR code.
package locator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chaz8081/magwarm/internal/ble"
)

// DefaultScanWindow is how long an advertisement scan runs.
const DefaultScanWindow = time.Second

// Discovered is a peripheral seen during a scan.
type Discovered struct {
	ID   string
	Name string // empty when the device does not advertise one
	RSSI int
}

// Scanner runs time-bounded, unfiltered advertisement scans.
type Scanner struct {
	adapter ble.Adapter
	window  time.Duration
}

// NewScanner creates a Scanner over adapter.
func NewScanner(adapter ble.Adapter, window time.Duration) *Scanner {
	if window <= 0 {
		window = DefaultScanWindow
	}
	return &Scanner{adapter: adapter, window: window}
}

// Scan waits for the adapter to power on, scans for the configured window
// and calls yield once per distinct identifier. The adapter subscription
// and the scan are both released before Scan returns.
func (s *Scanner) Scan(ctx context.Context, yield func(Discovered)) error {
	powered := make(chan struct{})
	var once sync.Once
	unsubscribe := s.adapter.OnStateChange(func(st ble.AdapterState) {
		if st == ble.StatePoweredOn {
			once.Do(func() { close(powered) })
			return
		}
		slog.Debug("[SCAN] adapter state", "state", st)
	})
	defer unsubscribe()

	select {
	case <-powered:
	case <-ctx.Done():
		return ctx.Err()
	}

	scanCtx, stop := context.WithTimeout(ctx, s.window)
	defer stop()

	var mu sync.Mutex
	seen := make(map[string]bool)

	slog.Info("[SCAN] scanning", "window", s.window)
	err := s.adapter.Scan(scanCtx, func(d ble.Device) {
		if d.ID == "" {
			return
		}
		mu.Lock()
		if seen[d.ID] {
			mu.Unlock()
			return
		}
		seen[d.ID] = true
		mu.Unlock()

		slog.Debug("[SCAN] discovered", "id", d.ID, "name", d.Name, "rssi", d.RSSI)
		yield(Discovered{ID: d.ID, Name: d.Name, RSSI: d.RSSI})
	})
	if err != nil {
		return fmt.Errorf("locator: %w", err)
	}
	slog.Info("[SCAN] scan stopped", "found", len(seen))
	return ctx.Err()
}

// Collect runs Scan and returns every distinct device in discovery order.
func (s *Scanner) Collect(ctx context.Context) ([]Discovered, error) {
	var mu sync.Mutex
	var out []Discovered
	err := s.Scan(ctx, func(d Discovered) {
		mu.Lock()
		out = append(out, d)
		mu.Unlock()
	})
	return out, err
}
