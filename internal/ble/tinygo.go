package ble

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"tinygo.org/x/bluetooth"
)

// maxValueLen is the largest attribute value the ATT protocol allows.
const maxValueLen = 512

// TinyGoAdapter wraps tinygo-org/bluetooth. Build exactly one per process
// and pass it to whatever needs the radio.
// On macOS, BLE device addresses are CoreBluetooth UUIDs (not MAC addresses);
// the identifier strings used here carry whichever form the platform uses.
type TinyGoAdapter struct {
	adapter *bluetooth.Adapter

	mu          sync.Mutex
	state       AdapterState
	nextSub     int
	subscribers map[int]func(AdapterState)
	connections map[string]*tinyGoConnection // keyed by parsed address
}

// NewTinyGoAdapter creates an adapter over the platform default radio.
func NewTinyGoAdapter() *TinyGoAdapter {
	return &TinyGoAdapter{
		adapter:     bluetooth.DefaultAdapter,
		subscribers: make(map[int]func(AdapterState)),
		connections: make(map[string]*tinyGoConnection),
	}
}

// Enable powers on the radio. tinygo/bluetooth blocks in Enable until the
// stack reports powered on (or fails), so the outcome is translated into a
// single state change for subscribers.
func (a *TinyGoAdapter) Enable() error {
	if err := a.adapter.Enable(); err != nil {
		a.setState(StatePoweredOff)
		return fmt.Errorf("ble: enable adapter: %w", err)
	}

	// Adapter-level connect/disconnect handler. tinygo/bluetooth fires this
	// with connected=false when a peripheral drops.
	a.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		if connected {
			return
		}
		id := device.Address.String()
		a.mu.Lock()
		conn, ok := a.connections[id]
		a.mu.Unlock()
		if ok {
			conn.fireDisconnect(nil)
		}
	})

	a.setState(StatePoweredOn)
	return nil
}

func (a *TinyGoAdapter) State() AdapterState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *TinyGoAdapter) OnStateChange(fn func(AdapterState)) func() {
	a.mu.Lock()
	id := a.nextSub
	a.nextSub++
	a.subscribers[id] = fn
	current := a.state
	a.mu.Unlock()

	fn(current)

	var once sync.Once
	return func() {
		once.Do(func() {
			a.mu.Lock()
			delete(a.subscribers, id)
			a.mu.Unlock()
		})
	}
}

func (a *TinyGoAdapter) setState(s AdapterState) {
	a.mu.Lock()
	if a.state == s {
		a.mu.Unlock()
		return
	}
	a.state = s
	subs := make([]func(AdapterState), 0, len(a.subscribers))
	for _, fn := range a.subscribers {
		subs = append(subs, fn)
	}
	a.mu.Unlock()

	slog.Debug("[BLE] adapter state", "state", s)
	for _, fn := range subs {
		fn(s)
	}
}

func (a *TinyGoAdapter) Scan(ctx context.Context, found func(Device)) error {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = a.adapter.StopScan()
		case <-done:
		}
	}()

	err := a.adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
		found(Device{
			Name: result.LocalName(),
			ID:   result.Address.String(),
			RSSI: int(result.RSSI),
		})
	})
	close(done)

	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("ble: scan: %w", err)
	}
	return nil
}

func (a *TinyGoAdapter) Connect(ctx context.Context, id string) (Connection, error) {
	addr, err := parseAddress(id)
	if err != nil {
		return nil, err
	}
	device, err := a.dial(ctx, addr)
	if err != nil {
		return nil, err
	}
	// Keyed by the canonical form so the connect handler, which only sees
	// the platform's rendering of the address, finds it.
	key := addr.String()
	conn := &tinyGoConnection{adapter: a, id: key, addr: addr, device: device}

	// Track this connection so the adapter-level disconnect handler
	// can find it and fire its OnDisconnect callback.
	a.mu.Lock()
	a.connections[key] = conn
	a.mu.Unlock()

	return conn, nil
}

// dial wraps the blocking tinygo Connect so ctx cancellation and deadlines
// are honoured.
func (a *TinyGoAdapter) dial(ctx context.Context, addr bluetooth.Address) (bluetooth.Device, error) {
	id := addr.String()
	params := bluetooth.ConnectionParams{}
	if deadline, ok := ctx.Deadline(); ok {
		params.ConnectionTimeout = bluetooth.NewDuration(time.Until(deadline))
	}

	type connectResult struct {
		device bluetooth.Device
		err    error
	}
	ch := make(chan connectResult, 1)
	go func() {
		device, err := a.adapter.Connect(addr, params)
		ch <- connectResult{device, err}
	}()

	select {
	case <-ctx.Done():
		// The underlying Connect cannot be cancelled. If it later succeeds,
		// drop the link so it does not linger.
		go func() {
			if r := <-ch; r.err == nil {
				_ = r.device.Disconnect()
			}
		}()
		return bluetooth.Device{}, fmt.Errorf("ble: connect to %s: %w", id, ctx.Err())
	case r := <-ch:
		if r.err != nil {
			return bluetooth.Device{}, fmt.Errorf("ble: connect to %s: %w", id, r.err)
		}
		return r.device, nil
	}
}

func (a *TinyGoAdapter) forget(id string) {
	a.mu.Lock()
	delete(a.connections, id)
	a.mu.Unlock()
}

// Compile-time check that TinyGoAdapter implements Adapter.
var _ Adapter = (*TinyGoAdapter)(nil)

type tinyGoConnection struct {
	adapter *TinyGoAdapter
	id      string
	addr    bluetooth.Address

	mu           sync.Mutex
	device       bluetooth.Device
	services     []bluetooth.DeviceService
	disconnectCb func(error)
}

func (c *tinyGoConnection) DiscoverAll() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	svcs, err := c.device.DiscoverServices(nil)
	if err != nil {
		return fmt.Errorf("ble: discover services: %w", err)
	}
	for _, svc := range svcs {
		if _, err := svc.DiscoverCharacteristics(nil); err != nil {
			return fmt.Errorf("ble: discover characteristics of %s: %w", svc.UUID().String(), err)
		}
	}
	c.services = svcs
	return nil
}

func (c *tinyGoConnection) DiscoverCharacteristic(serviceUUID, charUUID string) (Characteristic, error) {
	svcUUID, err := bluetooth.ParseUUID(serviceUUID)
	if err != nil {
		return nil, err
	}
	charUUIDParsed, err := bluetooth.ParseUUID(charUUID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	device := c.device
	c.mu.Unlock()

	svcs, err := device.DiscoverServices([]bluetooth.UUID{svcUUID})
	if err != nil {
		return nil, fmt.Errorf("ble: discover services: %w", err)
	}
	if len(svcs) == 0 {
		return nil, fmt.Errorf("ble: service %s not found", serviceUUID)
	}

	chars, err := svcs[0].DiscoverCharacteristics([]bluetooth.UUID{charUUIDParsed})
	if err != nil {
		return nil, fmt.Errorf("ble: discover characteristics: %w", err)
	}
	if len(chars) == 0 {
		return nil, fmt.Errorf("ble: characteristic %s not found", charUUID)
	}

	return newCharacteristic(c.id, &chars[0], charUUIDParsed)
}

func (c *tinyGoConnection) Reconnect(ctx context.Context) error {
	device, err := c.adapter.dial(ctx, c.addr)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.device = device
	c.services = nil
	c.mu.Unlock()

	c.adapter.mu.Lock()
	c.adapter.connections[c.id] = c
	c.adapter.mu.Unlock()
	return nil
}

func (c *tinyGoConnection) Disconnect() error {
	c.adapter.forget(c.id)
	c.mu.Lock()
	device := c.device
	c.mu.Unlock()
	return device.Disconnect()
}

func (c *tinyGoConnection) OnDisconnect(cb func(error)) {
	c.mu.Lock()
	c.disconnectCb = cb
	c.mu.Unlock()
}

func (c *tinyGoConnection) fireDisconnect(err error) {
	c.mu.Lock()
	cb := c.disconnectCb
	c.mu.Unlock()
	if cb != nil {
		cb(err)
	}
}

// tinyGoCharacteristic reads and subscribes through tinygo. write is
// platform specific (see tinygo_linux.go and tinygo_other.go).
type tinyGoCharacteristic struct {
	char  *bluetooth.DeviceCharacteristic
	write func([]byte) error
}

func (c *tinyGoCharacteristic) Read() ([]byte, error) {
	buf := make([]byte, maxValueLen)
	n, err := c.char.Read(buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

func (c *tinyGoCharacteristic) Write(data []byte) error {
	return c.write(data)
}

func (c *tinyGoCharacteristic) Subscribe(cb func([]byte)) error {
	return c.char.EnableNotifications(func(buf []byte) {
		cb(buf)
	})
}
