package session

import (
	"context"
	"strings"
	"sync"

	"github.com/chaz8081/magwarm/internal/ble"
)

// Manager owns the single active Session. It is given the process-wide
// adapter at construction.
type Manager struct {
	adapter ble.Adapter
	opts    Options

	connectMu sync.Mutex // serializes Connect/Close

	mu       sync.Mutex
	current  *Session
	watchers []func(Snapshot)
}

// NewManager creates a Manager using adapter for every session.
func NewManager(adapter ble.Adapter, opts Options) *Manager {
	def := DefaultOptions()
	if opts.ServiceUUID == "" {
		opts.ServiceUUID = def.ServiceUUID
	}
	if opts.CharacteristicUUID == "" {
		opts.CharacteristicUUID = def.CharacteristicUUID
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = def.ConnectTimeout
	}
	if opts.ReconnectAttempts < 0 {
		opts.ReconnectAttempts = 0
	}
	return &Manager{adapter: adapter, opts: opts}
}

// Connect starts a session for deviceID, replacing (and closing) any
// previous one. The attempt is deferred until the adapter is powered on
// and then issued once; progress is observed through the returned
// Session. ctx bounds the session's lifetime.
func (m *Manager) Connect(ctx context.Context, deviceID string) (*Session, error) {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return nil, ErrNoIdentifier
	}

	m.connectMu.Lock()
	defer m.connectMu.Unlock()

	m.mu.Lock()
	prev := m.current
	m.current = nil
	m.mu.Unlock()
	if prev != nil {
		_ = prev.Close()
	}

	s := newSession(ctx, m.adapter, deviceID, m.opts)
	m.mu.Lock()
	m.current = s
	for _, fn := range m.watchers {
		s.Watch(fn)
	}
	m.mu.Unlock()
	s.start()
	return s, nil
}

// Watch registers fn on every session started after the call, before the
// session leaves Idle. The same rules as Session.Watch apply to fn.
func (m *Manager) Watch(fn func(Snapshot)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.watchers = append(m.watchers, fn)
}

// Current returns the active session, or nil.
func (m *Manager) Current() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Handle returns the characteristic of the active session while it is
// connected.
func (m *Manager) Handle() ble.Characteristic {
	return m.Current().Handle()
}

// Close tears down the active session.
func (m *Manager) Close() error {
	m.connectMu.Lock()
	defer m.connectMu.Unlock()

	m.mu.Lock()
	s := m.current
	m.current = nil
	m.mu.Unlock()
	if s != nil {
		return s.Close()
	}
	return nil
}
