//go:build !linux

package ble

import "tinygo.org/x/bluetooth"

// newCharacteristic wraps char. CoreBluetooth and WinRT expose
// write-with-response directly.
func newCharacteristic(_ string, char *bluetooth.DeviceCharacteristic, _ bluetooth.UUID) (Characteristic, error) {
	return &tinyGoCharacteristic{
		char: char,
		write: func(p []byte) error {
			_, err := char.Write(p)
			return err
		},
	}, nil
}
