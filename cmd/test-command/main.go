// Command test-command is a manual test for the command writer.
// It connects to a warmer, reads one status value, sends a single
// command and reads the status again.
//
// Usage:
//
//	go run ./cmd/test-command --device AA:BB:CC:DD:EE:FF [--cmd targetTemp:45] [--encoding raw|base64]
package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/chaz8081/magwarm/internal/ble"
	"github.com/chaz8081/magwarm/internal/command"
	"github.com/chaz8081/magwarm/internal/payload"
	"github.com/chaz8081/magwarm/internal/session"
	"github.com/chaz8081/magwarm/internal/status"
)

func main() {
	device := flag.String("device", "", "device identifier")
	text := flag.String("cmd", "powerON", "command to send, e.g. targetTemp:45, heaterOFF:0, powerOFF")
	encoding := flag.String("encoding", "raw", "payload encoding: raw or base64")
	flag.Parse()

	cmd, err := command.Parse(*text)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	codec, err := payload.ParseCodec(*encoding)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	adapter := ble.NewTinyGoAdapter()
	if err := adapter.Enable(); err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	mgr := session.NewManager(adapter, session.DefaultOptions())
	defer mgr.Close()

	s, err := mgr.Connect(context.Background(), *device)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	fmt.Printf("Connecting to %s...\n", *device)
	if err := s.WaitConnected(ctx); err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	readStatus := func(label string) {
		char := mgr.Handle()
		if char == nil {
			fmt.Printf("%s: not connected\n", label)
			return
		}
		value, err := char.Read()
		if err != nil {
			fmt.Printf("%s: read error: %v\n", label, err)
			return
		}
		rec, err := status.Decode(value, codec)
		if err != nil {
			fmt.Printf("%s: %q (%v)\n", label, value, err)
			return
		}
		fmt.Printf("%s: %+v\n", label, rec)
	}

	readStatus("Before")

	fmt.Printf("Sending %q...\n", cmd)
	if err := command.NewWriter(mgr, codec, nil).Write(ctx, cmd); err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	// Give the firmware a moment to apply the change.
	time.Sleep(time.Second)
	readStatus("After")

	fmt.Println("\nDone!")
}
