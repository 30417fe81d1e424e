// Package ble abstracts the Bluetooth Low Energy radio used to talk to the
// magazine warmer. The rest of magwarm only sees the Adapter, Connection and
// Characteristic interfaces; TinyGoAdapter backs them with
// tinygo.org/x/bluetooth and tests swap in fakes from package bletest.
package ble

import "context"

// Default warmer GATT UUIDs. Status reads and command writes share one
// characteristic.
const (
	ServiceUUID        = "2aae64b6-8f24-4643-9302-0ba146f8d9f2"
	CharacteristicUUID = "c94b7467-2490-46a2-b5e7-6a16752e13d3"
)

// AdapterState is the power state of the local radio.
type AdapterState int

const (
	StateUnknown AdapterState = iota
	StatePoweredOff
	StatePoweredOn
	StateUnauthorized
	StateUnsupported
)

func (s AdapterState) String() string {
	switch s {
	case StatePoweredOff:
		return "PoweredOff"
	case StatePoweredOn:
		return "PoweredOn"
	case StateUnauthorized:
		return "Unauthorized"
	case StateUnsupported:
		return "Unsupported"
	default:
		return "Unknown"
	}
}

// Characteristic represents a BLE GATT characteristic.
type Characteristic interface {
	// Read returns the current value of the characteristic.
	Read() ([]byte, error)
	// Write sends data and waits for the peripheral's acknowledgment.
	Write(data []byte) error
	// Subscribe registers a callback for notifications on this characteristic.
	Subscribe(callback func(data []byte)) error
}

// Device represents a discovered BLE peripheral.
type Device struct {
	Name string
	ID   string // MAC on Linux/Windows, CoreBluetooth UUID on macOS
	RSSI int
}

// Connection represents an active BLE connection to a peripheral.
type Connection interface {
	// DiscoverAll performs full service and characteristic discovery.
	DiscoverAll() error
	// DiscoverCharacteristic finds a characteristic by UUID within a service.
	DiscoverCharacteristic(serviceUUID, charUUID string) (Characteristic, error)
	// Reconnect re-establishes a dropped link to the same peripheral.
	Reconnect(ctx context.Context) error
	// Disconnect terminates the connection.
	Disconnect() error
	// OnDisconnect registers a callback invoked when the connection drops.
	// err is nil for a clean disconnect.
	OnDisconnect(callback func(err error))
}

// Adapter abstracts the BLE hardware adapter for testing.
type Adapter interface {
	// Enable powers on the BLE adapter.
	Enable() error
	// State reports the current power state.
	State() AdapterState
	// OnStateChange registers fn for power-state changes. fn is called once
	// with the current state before OnStateChange returns. The returned
	// function removes the subscription and is safe to call more than once.
	OnStateChange(fn func(AdapterState)) (cancel func())
	// Scan reports every advertisement seen, unfiltered, until ctx is done.
	Scan(ctx context.Context, found func(Device)) error
	// Connect establishes a connection to the device with the given identifier.
	Connect(ctx context.Context, id string) (Connection, error)
}
