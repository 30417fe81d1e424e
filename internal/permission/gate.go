// Package permission decides whether the process may use the Bluetooth
// radio before any scan or connect is attempted.
package permission

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrDenied is returned by Require when the gate is not granted.
var ErrDenied = errors.New("permission: bluetooth access denied")

// State is the outcome of the last permission check.
type State int

const (
	Unknown State = iota
	Granted
	Denied
)

func (s State) String() string {
	switch s {
	case Granted:
		return "granted"
	case Denied:
		return "denied"
	default:
		return "unknown"
	}
}

// Permission names one runtime grant.
type Permission string

const (
	FineLocation     Permission = "android.permission.ACCESS_FINE_LOCATION"
	BluetoothScan    Permission = "android.permission.BLUETOOTH_SCAN"
	BluetoothConnect Permission = "android.permission.BLUETOOTH_CONNECT"
)

// Platform describes the host for the purpose of runtime grants.
type Platform struct {
	OS       string // GOOS-style name: "android", "linux", "darwin", ...
	APILevel int    // Android API level; ignored elsewhere
}

// Required lists the grants the platform needs before BLE use. An empty
// list means no runtime grant is required, which covers every desktop OS.
func Required(p Platform) []Permission {
	switch p.OS {
	case "android":
		if p.APILevel < 31 {
			return []Permission{FineLocation}
		}
		return []Permission{BluetoothScan, BluetoothConnect, FineLocation}
	default:
		return nil
	}
}

// Requester asks the platform for grants, possibly showing a dialog, and
// reports which were granted.
type Requester interface {
	Request(ctx context.Context, perms []Permission) (map[Permission]bool, error)
}

// Gate holds the process-wide permission state.
type Gate struct {
	platform  Platform
	requester Requester

	mu    sync.Mutex
	state State
}

// NewGate creates a gate for platform. requester may be nil on platforms
// with no runtime grants.
func NewGate(platform Platform, requester Requester) *Gate {
	return &Gate{platform: platform, requester: requester}
}

// CheckOrRequest requests every required grant and returns Granted only if
// all of them were granted. There is no retry: a denial stands until the
// caller invokes the gate again.
func (g *Gate) CheckOrRequest(ctx context.Context) State {
	state := g.evaluate(ctx)
	g.mu.Lock()
	g.state = state
	g.mu.Unlock()
	return state
}

func (g *Gate) evaluate(ctx context.Context) State {
	perms := Required(g.platform)
	if len(perms) == 0 {
		return Granted
	}
	if g.requester == nil {
		slog.Warn("[PERM] no requester for platform", "os", g.platform.OS)
		return Denied
	}

	result, err := g.requester.Request(ctx, perms)
	if err != nil {
		slog.Error("[PERM] request failed", "error", err)
		return Denied
	}
	for _, p := range perms {
		if !result[p] {
			slog.Warn("[PERM] permission denied", "permission", p)
			return Denied
		}
	}
	slog.Debug("[PERM] granted", "permissions", perms)
	return Granted
}

// State returns the outcome of the last CheckOrRequest.
func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Ready reports whether the last check granted access.
func (g *Gate) Ready() bool {
	return g.State() == Granted
}

// Require runs the check and converts a denial into ErrDenied.
func (g *Gate) Require(ctx context.Context) error {
	if g.CheckOrRequest(ctx) != Granted {
		return ErrDenied
	}
	return nil
}
