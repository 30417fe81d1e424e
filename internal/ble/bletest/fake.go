// Package bletest provides in-memory fakes of the ble interfaces for tests.
package bletest

import (
	"context"
	"errors"
	"sync"

	"github.com/chaz8081/magwarm/internal/ble"
)

// Characteristic records writes and serves a programmable value.
type Characteristic struct {
	mu        sync.Mutex
	value     []byte
	readErr   error
	writeErr  error
	writes    [][]byte
	reads     int
	readGate  chan struct{}
	callback  func([]byte)
	readStart chan struct{}
}

// NewCharacteristic returns a characteristic holding value.
func NewCharacteristic(value []byte) *Characteristic {
	return &Characteristic{value: value}
}

// SetValue replaces the value returned by Read.
func (c *Characteristic) SetValue(v []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = v
}

// SetReadErr makes Read fail with err (nil clears it).
func (c *Characteristic) SetReadErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readErr = err
}

// SetWriteErr makes Write fail with err (nil clears it).
func (c *Characteristic) SetWriteErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeErr = err
}

// HoldReads makes every Read block until ReleaseReads is called. The
// returned channel receives once per Read that starts blocking.
func (c *Characteristic) HoldReads() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readGate = make(chan struct{})
	c.readStart = make(chan struct{}, 16)
	return c.readStart
}

// ReleaseReads unblocks held reads.
func (c *Characteristic) ReleaseReads() {
	c.mu.Lock()
	gate := c.readGate
	c.readGate = nil
	c.mu.Unlock()
	if gate != nil {
		close(gate)
	}
}

func (c *Characteristic) Read() ([]byte, error) {
	c.mu.Lock()
	c.reads++
	gate, started := c.readGate, c.readStart
	c.mu.Unlock()

	if gate != nil {
		select {
		case started <- struct{}{}:
		default:
		}
		<-gate
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readErr != nil {
		return nil, c.readErr
	}
	cp := make([]byte, len(c.value))
	copy(cp, c.value)
	return cp, nil
}

func (c *Characteristic) Write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	c.writes = append(c.writes, cp)
	return nil
}

func (c *Characteristic) Subscribe(cb func([]byte)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callback = cb
	return nil
}

// Reads returns how many times Read was called.
func (c *Characteristic) Reads() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reads
}

// Writes returns a copy of every successful write.
func (c *Characteristic) Writes() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.writes))
	copy(out, c.writes)
	return out
}

// Connection simulates a BLE connection.
type Connection struct {
	mu            sync.Mutex
	char          *Characteristic
	discoverErr   error
	charErr       error
	reconnectErr  error
	reconnects    int
	disconnectCb  func(error)
	disconnected  bool
	discoverCalls int
}

// NewConnection returns a connection exposing char for the warmer UUIDs.
func NewConnection(char *Characteristic) *Connection {
	return &Connection{char: char}
}

// Char returns the characteristic served by this connection.
func (c *Connection) Char() *Characteristic { return c.char }

// SetDiscoverErr makes DiscoverAll fail.
func (c *Connection) SetDiscoverErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.discoverErr = err
}

// SetReconnectErr makes Reconnect fail.
func (c *Connection) SetReconnectErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reconnectErr = err
}

func (c *Connection) DiscoverAll() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.discoverCalls++
	return c.discoverErr
}

func (c *Connection) DiscoverCharacteristic(serviceUUID, charUUID string) (ble.Characteristic, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.charErr != nil {
		return nil, c.charErr
	}
	if c.char == nil {
		return nil, errors.New("bletest: no characteristic")
	}
	return c.char, nil
}

func (c *Connection) Reconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reconnects++
	if c.reconnectErr != nil {
		return c.reconnectErr
	}
	c.disconnected = false
	return nil
}

func (c *Connection) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnected = true
	return nil
}

func (c *Connection) OnDisconnect(cb func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnectCb = cb
}

// SimulateDisconnect triggers the disconnect callback.
func (c *Connection) SimulateDisconnect(err error) {
	c.mu.Lock()
	cb := c.disconnectCb
	c.mu.Unlock()
	if cb != nil {
		cb(err)
	}
}

// Disconnected reports whether Disconnect was called since the last
// successful reconnect.
func (c *Connection) Disconnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnected
}

// Reconnects returns how many times Reconnect was called.
func (c *Connection) Reconnects() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reconnects
}

// DiscoverCalls returns how many times DiscoverAll was called.
func (c *Connection) DiscoverCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.discoverCalls
}

// Adapter simulates the BLE adapter.
type Adapter struct {
	mu          sync.Mutex
	state       ble.AdapterState
	subs        map[int]func(ble.AdapterState)
	nextSub     int
	adverts     []ble.Device
	conn        *Connection
	connectErr  error
	connectHold bool
	connectIDs  []string
	enableErr   error
}

// NewAdapter returns an adapter in state that hands out conn on Connect.
func NewAdapter(state ble.AdapterState, conn *Connection) *Adapter {
	return &Adapter{
		state: state,
		subs:  make(map[int]func(ble.AdapterState)),
		conn:  conn,
	}
}

// SetAdverts sets the advertisements replayed by Scan.
func (a *Adapter) SetAdverts(devices []ble.Device) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.adverts = devices
}

// SetConnectErr makes Connect fail with err.
func (a *Adapter) SetConnectErr(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.connectErr = err
}

// HoldConnect makes Connect block until its ctx is done.
func (a *Adapter) HoldConnect() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.connectHold = true
}

// SetEnableErr makes Enable fail.
func (a *Adapter) SetEnableErr(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.enableErr = err
}

// SetState changes the power state and notifies subscribers, even when the
// state is unchanged (radios do repeat themselves).
func (a *Adapter) SetState(s ble.AdapterState) {
	a.mu.Lock()
	a.state = s
	subs := make([]func(ble.AdapterState), 0, len(a.subs))
	for _, fn := range a.subs {
		subs = append(subs, fn)
	}
	a.mu.Unlock()
	for _, fn := range subs {
		fn(s)
	}
}

// Subscribers returns the number of live state subscriptions.
func (a *Adapter) Subscribers() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.subs)
}

// ConnectIDs returns every identifier passed to Connect.
func (a *Adapter) ConnectIDs() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.connectIDs))
	copy(out, a.connectIDs)
	return out
}

func (a *Adapter) Enable() error {
	a.mu.Lock()
	err := a.enableErr
	a.mu.Unlock()
	if err != nil {
		return err
	}
	a.SetState(ble.StatePoweredOn)
	return nil
}

func (a *Adapter) State() ble.AdapterState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *Adapter) OnStateChange(fn func(ble.AdapterState)) func() {
	a.mu.Lock()
	id := a.nextSub
	a.nextSub++
	a.subs[id] = fn
	current := a.state
	a.mu.Unlock()

	fn(current)

	return func() {
		a.mu.Lock()
		delete(a.subs, id)
		a.mu.Unlock()
	}
}

func (a *Adapter) Scan(ctx context.Context, found func(ble.Device)) error {
	a.mu.Lock()
	adverts := append([]ble.Device(nil), a.adverts...)
	a.mu.Unlock()
	for _, d := range adverts {
		if ctx.Err() != nil {
			return nil
		}
		found(d)
	}
	<-ctx.Done()
	return nil
}

func (a *Adapter) Connect(ctx context.Context, id string) (ble.Connection, error) {
	a.mu.Lock()
	a.connectIDs = append(a.connectIDs, id)
	err, hold, conn := a.connectErr, a.connectHold, a.conn
	a.mu.Unlock()

	if hold {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	return conn, nil
}

var (
	_ ble.Adapter        = (*Adapter)(nil)
	_ ble.Connection     = (*Connection)(nil)
	_ ble.Characteristic = (*Characteristic)(nil)
)
