// Command test-scan is a manual test for the advertisement scanner.
// It scans for the given window and prints each device once.
// Press Ctrl+C to stop early.
//
// Usage:
//
//	go run ./cmd/test-scan [--window 10s]
package main

import (
	"context"
	"flag"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/chaz8081/magwarm/internal/ble"
	"github.com/chaz8081/magwarm/internal/locator"
)

func main() {
	window := flag.Duration("window", 10*time.Second, "how long to scan")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	adapter := ble.NewTinyGoAdapter()
	if err := adapter.Enable(); err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	fmt.Printf("Scanning for %s...\n", *window)
	fmt.Println("Press Ctrl+C to stop.")

	start := time.Now()
	err := locator.NewScanner(adapter, *window).Scan(ctx, func(d locator.Discovered) {
		fmt.Printf("+%-6s %s  %q  %d dBm\n", time.Since(start).Round(100*time.Millisecond), d.ID, d.Name, d.RSSI)
	})
	if err != nil {
		fmt.Printf("\nScan ended: %v\n", err)
		return
	}

	fmt.Println("\nDone.")
}
