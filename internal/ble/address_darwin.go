//go:build darwin

package ble

import (
	"fmt"
	"strings"

	"tinygo.org/x/bluetooth"
)

// parseAddress turns a CoreBluetooth peripheral UUID into an address.
// Case is ignored.
func parseAddress(id string) (bluetooth.Address, error) {
	u, err := bluetooth.ParseUUID(strings.ToLower(strings.TrimSpace(id)))
	if err != nil {
		return bluetooth.Address{}, fmt.Errorf("ble: device identifier %q is not a peripheral UUID: %w", id, err)
	}
	return bluetooth.Address{UUID: u}, nil
}
