//go:build !darwin

package ble

import (
	"fmt"
	"strings"

	"tinygo.org/x/bluetooth"
)

// parseAddress turns a MAC address such as aa:bb:cc:dd:ee:ff into an
// address. Case is ignored.
func parseAddress(id string) (bluetooth.Address, error) {
	mac, err := bluetooth.ParseMAC(strings.ToUpper(strings.TrimSpace(id)))
	if err != nil {
		return bluetooth.Address{}, fmt.Errorf("ble: device identifier %q is not a MAC address: %w", id, err)
	}
	return bluetooth.Address{MACAddress: bluetooth.MACAddress{MAC: mac}}, nil
}
