package status

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/chaz8081/magwarm/internal/ble"
	"github.com/chaz8081/magwarm/internal/payload"
)

// DefaultInterval is the poll period used when none is configured.
const DefaultInterval = 5 * time.Second

// Source hands out the characteristic of the live session, or nil when no
// device is connected.
type Source interface {
	Handle() ble.Characteristic
}

// Snapshot is the poller's view of the device.
type Snapshot struct {
	Record    Record
	HasRecord bool // false until the first successful read
	UpdatedAt time.Time
	Err       error // last read failure, cleared by the next success
	ErrAt     time.Time
}

// Stale reports whether the record is older than the last failure.
func (s Snapshot) Stale() bool {
	return s.HasRecord && s.Err != nil
}

// Poller reads the status characteristic on a fixed period.
type Poller struct {
	interval time.Duration
	codec    payload.Codec

	mu        sync.Mutex
	src       Source
	snap      Snapshot
	listeners []func(Snapshot)
	resetCh   chan struct{}

	inflight atomic.Bool
	reads    sync.WaitGroup
	errLog   rate.Sometimes
}

// NewPoller creates a poller reading from src every interval.
func NewPoller(src Source, interval time.Duration, codec payload.Codec) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{
		interval: interval,
		codec:    codec,
		src:      src,
		resetCh:  make(chan struct{}, 1),
		errLog:   rate.Sometimes{First: 1, Interval: time.Minute},
	}
}

// OnUpdate registers fn to receive every new snapshot. fn runs on the
// poller's goroutine and must not block.
func (p *Poller) OnUpdate(fn func(Snapshot)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, fn)
}

// SetSource swaps the session the poller reads from and restarts the
// period so the first read on the new session happens a full interval
// after the swap.
func (p *Poller) SetSource(src Source) {
	p.mu.Lock()
	p.src = src
	p.mu.Unlock()
	select {
	case p.resetCh <- struct{}{}:
	default:
	}
}

// Snapshot returns the latest state.
func (p *Poller) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.snap
	s.Record = s.Record.Clone()
	return s
}

// Run polls until ctx is cancelled. No read is started after Run returns,
// and Run waits for an in-flight read to finish before returning.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer func() {
		ticker.Stop()
		p.reads.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.resetCh:
			ticker.Reset(p.interval)
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			p.Poll(ctx)
		}
	}
}

// Poll issues one read unless there is no live session or the previous
// read is still outstanding. It returns false when the tick was skipped.
// The read itself runs asynchronously.
func (p *Poller) Poll(ctx context.Context) bool {
	p.mu.Lock()
	src := p.src
	p.mu.Unlock()
	if src == nil {
		return false
	}
	char := src.Handle()
	if char == nil {
		return false
	}
	if !p.inflight.CompareAndSwap(false, true) {
		slog.Debug("[POLL] previous read still in flight, skipping tick")
		return false
	}

	p.reads.Add(1)
	go func() {
		defer p.reads.Done()
		p.read(ctx, char)
	}()
	return true
}

func (p *Poller) read(ctx context.Context, char ble.Characteristic) {
	value, err := char.Read()
	p.inflight.Store(false)
	if ctx.Err() != nil {
		// Torn down while the read was outstanding; drop the result.
		return
	}

	var rec Record
	if err == nil {
		rec, err = Decode(value, p.codec)
	}

	now := time.Now()
	p.mu.Lock()
	if err != nil {
		p.snap.Err = err
		p.snap.ErrAt = now
	} else {
		p.snap = Snapshot{Record: rec, HasRecord: true, UpdatedAt: now}
	}
	snap := p.snap
	snap.Record = snap.Record.Clone()
	listeners := slices.Clone(p.listeners)
	p.mu.Unlock()

	if err != nil {
		p.errLog.Do(func() {
			slog.Warn("[POLL] read failed", "error", err)
		})
	} else {
		slog.Debug("[POLL] status", "voltage", rec.Voltage, "target", rec.TargetTemp, "channels", rec.Channels())
	}

	for _, fn := range listeners {
		fn(snap)
	}
}
