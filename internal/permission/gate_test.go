package permission

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/godbus/dbus/v5"
)

type fakeRequester struct {
	grant map[Permission]bool
	err   error
	calls int
	perms []Permission
}

func (f *fakeRequester) Request(_ context.Context, perms []Permission) (map[Permission]bool, error) {
	f.calls++
	f.perms = perms
	return f.grant, f.err
}

func TestRequired(t *testing.T) {
	tests := []struct {
		platform Platform
		want     []Permission
	}{
		{Platform{OS: "android", APILevel: 30}, []Permission{FineLocation}},
		{Platform{OS: "android", APILevel: 31}, []Permission{BluetoothScan, BluetoothConnect, FineLocation}},
		{Platform{OS: "android", APILevel: 34}, []Permission{BluetoothScan, BluetoothConnect, FineLocation}},
		{Platform{OS: "linux"}, nil},
		{Platform{OS: "darwin"}, nil},
		{Platform{OS: "ios"}, nil},
		{Platform{OS: "windows"}, nil},
	}
	for _, tt := range tests {
		if got := Required(tt.platform); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Required(%+v) = %v, want %v", tt.platform, got, tt.want)
		}
	}
}

func TestGateNoRuntimeGrants(t *testing.T) {
	for _, os := range []string{"darwin", "linux", "windows"} {
		t.Run(os, func(t *testing.T) {
			g := NewGate(Platform{OS: os}, nil)
			if g.State() != Unknown {
				t.Errorf("initial State() = %v, want unknown", g.State())
			}
			if got := g.CheckOrRequest(context.Background()); got != Granted {
				t.Errorf("CheckOrRequest() = %v, want granted", got)
			}
			if !g.Ready() {
				t.Error("Ready() = false after grant")
			}
		})
	}
}

func TestGateIgnoresRequesterWithoutRuntimeGrants(t *testing.T) {
	req := &fakeRequester{err: errors.New("bus down")}
	g := NewGate(Platform{OS: "linux"}, req)
	if got := g.CheckOrRequest(context.Background()); got != Granted {
		t.Errorf("CheckOrRequest() = %v, want granted", got)
	}
	if req.calls != 0 {
		t.Errorf("requester calls = %d, want 0", req.calls)
	}
}

func TestGateAllMustBeGranted(t *testing.T) {
	req := &fakeRequester{grant: map[Permission]bool{
		BluetoothScan:    true,
		BluetoothConnect: true,
		FineLocation:     false,
	}}
	g := NewGate(Platform{OS: "android", APILevel: 33}, req)

	if got := g.CheckOrRequest(context.Background()); got != Denied {
		t.Errorf("CheckOrRequest() = %v, want denied", got)
	}
	if len(req.perms) != 3 {
		t.Errorf("requested %v, want scan+connect+location", req.perms)
	}
	if err := g.Require(context.Background()); !errors.Is(err, ErrDenied) {
		t.Errorf("Require() error = %v, want ErrDenied", err)
	}

	// Re-invoking after the user changes settings picks up the grant.
	req.grant[FineLocation] = true
	if got := g.CheckOrRequest(context.Background()); got != Granted {
		t.Errorf("CheckOrRequest() after grant = %v, want granted", got)
	}
}

func TestGateOldAndroidOnlyLocation(t *testing.T) {
	req := &fakeRequester{grant: map[Permission]bool{FineLocation: true}}
	g := NewGate(Platform{OS: "android", APILevel: 29}, req)
	if got := g.CheckOrRequest(context.Background()); got != Granted {
		t.Errorf("CheckOrRequest() = %v, want granted", got)
	}
}

func TestGateRequesterError(t *testing.T) {
	req := &fakeRequester{err: errors.New("activity gone")}
	g := NewGate(Platform{OS: "android", APILevel: 33}, req)
	if got := g.CheckOrRequest(context.Background()); got != Denied {
		t.Errorf("CheckOrRequest() = %v, want denied", got)
	}
	if req.calls != 1 {
		t.Errorf("requester calls = %d, want 1 (no retry)", req.calls)
	}
}

func TestGateMissingRequester(t *testing.T) {
	g := NewGate(Platform{OS: "android", APILevel: 33}, nil)
	if got := g.CheckOrRequest(context.Background()); got != Denied {
		t.Errorf("CheckOrRequest() = %v, want denied", got)
	}
}

func TestIsAccessDenied(t *testing.T) {
	denied := dbus.Error{Name: dbusAccessDenied, Body: []any{"not allowed"}}
	if !isAccessDenied(denied) {
		t.Error("isAccessDenied(AccessDenied) = false")
	}
	other := dbus.Error{Name: "org.freedesktop.DBus.Error.ServiceUnknown"}
	if isAccessDenied(other) {
		t.Error("isAccessDenied(ServiceUnknown) = true")
	}
	if isAccessDenied(errors.New("plain")) {
		t.Error("isAccessDenied(plain error) = true")
	}
}

func TestBlueZCheckDialFailure(t *testing.T) {
	tests := []struct {
		name            string
		dialErr         error
		wantUnavailable bool
	}{
		{"access denied", dbus.Error{Name: dbusAccessDenied}, true},
		{"no bus socket", errors.New("no such file or directory"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			check := BlueZ{Dial: func(context.Context) (*dbus.Conn, error) {
				return nil, tt.dialErr
			}}
			err := check.Check(context.Background())
			if err == nil {
				t.Fatal("Check() error = nil")
			}
			if got := errors.Is(err, ErrBlueZUnavailable); got != tt.wantUnavailable {
				t.Errorf("errors.Is(%v, ErrBlueZUnavailable) = %v, want %v", err, got, tt.wantUnavailable)
			}

			// The gate stays granted whatever the daemon says.
			if got := NewGate(Platform{OS: "linux"}, nil).CheckOrRequest(context.Background()); got != Granted {
				t.Errorf("linux gate = %v, want granted", got)
			}
		})
	}
}
