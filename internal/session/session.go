package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chaz8081/magwarm/internal/ble"
)

var (
	// ErrNoIdentifier is returned by Connect for an empty device identifier.
	ErrNoIdentifier = errors.New("session: empty device identifier")
	// ErrConnectTimeout wraps a connect attempt that ran out of time.
	ErrConnectTimeout = errors.New("session: connect timed out")
	// ErrDisconnected is reported when the link dropped and no reconnect
	// is pending.
	ErrDisconnected = errors.New("session: disconnected")
	// ErrClosed is reported after Close.
	ErrClosed = errors.New("session: closed")
)

// Options configures connection behavior.
type Options struct {
	ServiceUUID        string
	CharacteristicUUID string
	ConnectTimeout     time.Duration
	// ReconnectAttempts is how many times a dropped link is re-dialed
	// through the same handle before the session gives up. 0 disables
	// reconnection.
	ReconnectAttempts int
}

// DefaultOptions returns the warmer defaults.
func DefaultOptions() Options {
	return Options{
		ServiceUUID:        ble.ServiceUUID,
		CharacteristicUUID: ble.CharacteristicUUID,
		ConnectTimeout:     20 * time.Second,
		ReconnectAttempts:  1,
	}
}

// Snapshot is a point-in-time view of a Session.
type Snapshot struct {
	ID              string // per-session UUID, used to correlate logs
	DeviceID        string
	State           State
	Err             error
	Reconnecting    bool // Disconnected with a reconnect about to start
	ConnectAttempts int
	Reconnects      int
	Since           time.Time
}

type event struct {
	kind      EventKind
	conn      ble.Connection
	char      ble.Characteristic
	err       error
	reconnect bool // outcome of a reconnect rather than the first dial
}

// Session is one connect-discover-ready lifecycle for a device identifier.
// All state changes are made by a single goroutine that consumes events
// from the radio, the dialer and Close.
type Session struct {
	id       string
	deviceID string
	adapter  ble.Adapter
	opts     Options

	events chan event
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	dials  sync.WaitGroup

	unsubOnce   sync.Once
	unsubscribe func()

	mu           sync.Mutex
	state        State
	err          error
	closed       bool
	reconnecting bool
	conn         ble.Connection
	char         ble.Characteristic
	attempts     int
	reconnects   int
	since        time.Time
	changed      chan struct{}
	watchers     map[int]func(Snapshot)
	nextWatch    int
}

func newSession(ctx context.Context, adapter ble.Adapter, deviceID string, opts Options) *Session {
	ctx, cancel := context.WithCancel(ctx)
	return &Session{
		id:       uuid.New().String(),
		deviceID: deviceID,
		adapter:  adapter,
		opts:     opts,
		events:   make(chan event, 16),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
		state:    Idle,
		since:    time.Now(),
		changed:  make(chan struct{}),
		watchers: make(map[int]func(Snapshot)),
	}
}

// ID returns the session's UUID.
func (s *Session) ID() string { return s.id }

// DeviceID returns the identifier this session connects to.
func (s *Session) DeviceID() string { return s.deviceID }

// Snapshot returns the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	return Snapshot{
		ID:              s.id,
		DeviceID:        s.deviceID,
		State:           s.state,
		Err:             s.err,
		Reconnecting:    s.reconnecting,
		ConnectAttempts: s.attempts,
		Reconnects:      s.reconnects,
		Since:           s.since,
	}
}

// Handle returns the status/command characteristic while Connected and
// nil otherwise. Callers borrow it for one operation and must not keep it.
func (s *Session) Handle() ble.Characteristic {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Connected {
		return nil
	}
	return s.char
}

// Watch registers fn for every state change. fn runs on the session's
// event goroutine; it must not block or call Close.
func (s *Session) Watch(fn func(Snapshot)) (cancel func()) {
	s.mu.Lock()
	id := s.nextWatch
	s.nextWatch++
	s.watchers[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.watchers, id)
		s.mu.Unlock()
	}
}

// WaitConnected blocks until the session is Connected, fails, drops
// without a pending reconnect, is closed, or ctx is done.
func (s *Session) WaitConnected(ctx context.Context) error {
	for {
		s.mu.Lock()
		state, err, closed, reconnecting, changed := s.state, s.err, s.closed, s.reconnecting, s.changed
		s.mu.Unlock()

		switch {
		case closed:
			return ErrClosed
		case state == Connected:
			return nil
		case state == Failed:
			return err
		case state == Disconnected && !reconnecting:
			if err != nil {
				return fmt.Errorf("%w: %w", ErrDisconnected, err)
			}
			return ErrDisconnected
		}

		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close tears the session down: it releases the adapter subscription,
// cancels any in-flight connect and disconnects. Safe to call repeatedly.
func (s *Session) Close() error {
	s.cancel()
	<-s.done
	return nil
}

// Done is closed once the session has been torn down.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) start() {
	s.apply(event{kind: EvConnectRequested})
	s.unsubscribe = s.adapter.OnStateChange(func(st ble.AdapterState) {
		if st == ble.StatePoweredOn {
			s.post(event{kind: EvPowerOn})
			return
		}
		slog.Debug("[SESSION] adapter state", "session", s.id, "state", st)
	})
	go s.run()
}

func (s *Session) releaseSubscription() {
	s.unsubOnce.Do(func() {
		if s.unsubscribe != nil {
			s.unsubscribe()
		}
	})
}

func (s *Session) run() {
	defer close(s.done)

	dialed := false
	reconnectsLeft := 0

	for {
		select {
		case <-s.ctx.Done():
			s.teardown()
			return

		case ev := <-s.events:
			switch ev.kind {
			case EvPowerOn:
				if dialed {
					continue
				}
				dialed = true
				s.releaseSubscription()
				s.apply(ev)
				s.dials.Add(1)
				go s.dial()

			case EvConnectSucceeded:
				reconnectsLeft = s.opts.ReconnectAttempts
				conn := ev.conn
				conn.OnDisconnect(func(err error) {
					s.post(event{kind: EvDisconnected, conn: conn, err: err})
				})
				s.apply(ev)

			case EvConnectFailed:
				if ev.reconnect && reconnectsLeft > 0 {
					reconnectsLeft--
					s.startReconnect(ev.conn, ev.err)
					continue
				}
				s.apply(ev)

			case EvDisconnected:
				s.mu.Lock()
				current, state := s.conn, s.state
				s.mu.Unlock()
				if ev.conn != current || state != Connected {
					continue
				}
				if ev.err != nil {
					slog.Warn("[SESSION] disconnected", "session", s.id, "device", s.deviceID, "error", ev.err)
				}
				ev.reconnect = reconnectsLeft > 0
				s.apply(ev)
				if ev.reconnect {
					reconnectsLeft--
					s.apply(event{kind: EvReconnectStarted})
					s.startReconnect(ev.conn, nil)
				}
			}
		}
	}
}

func (s *Session) startReconnect(conn ble.Connection, prevErr error) {
	s.mu.Lock()
	s.reconnects++
	n := s.reconnects
	s.mu.Unlock()
	slog.Info("[SESSION] reconnecting", "session", s.id, "device", s.deviceID, "reconnect", n, "previous_error", prevErr)
	s.dials.Add(1)
	go s.redial(conn)
}

func (s *Session) teardown() {
	s.releaseSubscription()
	s.dials.Wait()

	// A dial may have finished between cancellation and the loop exiting.
	for {
		select {
		case ev := <-s.events:
			if ev.kind == EvConnectSucceeded && ev.conn != nil {
				_ = ev.conn.Disconnect()
			}
			continue
		default:
		}
		break
	}

	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn != nil {
		if err := conn.Disconnect(); err != nil {
			slog.Warn("[SESSION] disconnect failed", "session", s.id, "error", err)
		}
	}
	s.apply(event{kind: EvClosed})
	slog.Info("[SESSION] closed", "session", s.id, "device", s.deviceID)
}

// post delivers ev to the event loop. It returns false once the session
// is torn down.
func (s *Session) post(ev event) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.ctx.Done():
		return false
	}
}

func (s *Session) dial() {
	defer s.dials.Done()

	s.mu.Lock()
	s.attempts++
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(s.ctx, s.opts.ConnectTimeout)
	defer cancel()

	slog.Info("[SESSION] connecting", "session", s.id, "device", s.deviceID, "timeout", s.opts.ConnectTimeout)
	conn, err := s.adapter.Connect(ctx, s.deviceID)
	if err != nil {
		s.post(event{kind: EvConnectFailed, err: s.dialError(ctx, err)})
		return
	}

	char, err := s.prepare(conn)
	if err != nil {
		_ = conn.Disconnect()
		s.post(event{kind: EvConnectFailed, err: err})
		return
	}

	if !s.post(event{kind: EvConnectSucceeded, conn: conn, char: char}) {
		_ = conn.Disconnect()
	}
}

func (s *Session) redial(conn ble.Connection) {
	defer s.dials.Done()

	ctx, cancel := context.WithTimeout(s.ctx, s.opts.ConnectTimeout)
	defer cancel()

	if err := conn.Reconnect(ctx); err != nil {
		s.post(event{kind: EvConnectFailed, conn: conn, err: s.dialError(ctx, err), reconnect: true})
		return
	}

	char, err := s.prepare(conn)
	if err != nil {
		s.post(event{kind: EvConnectFailed, conn: conn, err: err, reconnect: true})
		return
	}

	if !s.post(event{kind: EvConnectSucceeded, conn: conn, char: char}) {
		_ = conn.Disconnect()
	}
}

// prepare runs full discovery and looks up the warmer characteristic.
func (s *Session) prepare(conn ble.Connection) (ble.Characteristic, error) {
	if err := conn.DiscoverAll(); err != nil {
		return nil, fmt.Errorf("session: discovery: %w", err)
	}
	char, err := conn.DiscoverCharacteristic(s.opts.ServiceUUID, s.opts.CharacteristicUUID)
	if err != nil {
		return nil, fmt.Errorf("session: characteristic: %w", err)
	}
	return char, nil
}

func (s *Session) dialError(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) && s.ctx.Err() == nil {
		return fmt.Errorf("%w after %s: %w", ErrConnectTimeout, s.opts.ConnectTimeout, err)
	}
	return fmt.Errorf("session: connect %s: %w", s.deviceID, err)
}

// apply feeds ev through Transition and records its side effects.
func (s *Session) apply(ev event) {
	s.mu.Lock()
	prev := s.state
	next, ok := Transition(prev, ev.kind)
	if !ok {
		s.mu.Unlock()
		slog.Debug("[SESSION] ignored event", "session", s.id, "state", prev, "event", ev.kind)
		return
	}

	s.state = next
	switch ev.kind {
	case EvConnectSucceeded:
		s.conn, s.char, s.err = ev.conn, ev.char, nil
	case EvConnectFailed:
		s.char, s.err = nil, ev.err
	case EvDisconnected:
		s.char, s.err = nil, ev.err
		s.reconnecting = ev.reconnect
	case EvReconnectStarted:
		s.reconnecting = false
	case EvClosed:
		s.char, s.closed, s.reconnecting = nil, true, false
	}
	if next == prev {
		s.mu.Unlock()
		return
	}

	s.since = time.Now()
	close(s.changed)
	s.changed = make(chan struct{})
	snap := s.snapshotLocked()
	watchers := make([]func(Snapshot), 0, len(s.watchers))
	for _, fn := range s.watchers {
		watchers = append(watchers, fn)
	}
	s.mu.Unlock()

	if next == Failed {
		slog.Error("[SESSION] connect failed", "session", s.id, "device", s.deviceID, "error", snap.Err)
	} else {
		slog.Info("[SESSION] state", "session", s.id, "device", s.deviceID, "from", prev, "to", next)
	}
	for _, fn := range watchers {
		fn(snap)
	}
}
