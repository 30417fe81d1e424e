package permission

import (
	"context"
	"errors"
	"fmt"

	"github.com/godbus/dbus/v5"
)

const (
	bluezService     = "org.bluez"
	dbusAccessDenied = "org.freedesktop.DBus.Error.AccessDenied"
	dbusNameHasOwner = "org.freedesktop.DBus.NameHasOwner"
)

// ErrBlueZUnavailable is returned by BlueZ.Check when bluetoothd cannot be
// reached on the system bus.
var ErrBlueZUnavailable = errors.New("permission: bluez not reachable on the system bus")

// BlueZ checks that the BlueZ daemon is reachable. Linux has no runtime
// grant, so the result is advisory and never changes the gate state.
type BlueZ struct {
	// Dial opens the system bus; defaults to dbus.ConnectSystemBus.
	Dial func(ctx context.Context) (*dbus.Conn, error)
}

// Check returns nil when org.bluez has an owner on the system bus. A bus
// policy that refuses the connection or the call is reported as
// ErrBlueZUnavailable.
func (b BlueZ) Check(ctx context.Context) error {
	dial := b.Dial
	if dial == nil {
		dial = func(ctx context.Context) (*dbus.Conn, error) {
			return dbus.ConnectSystemBus(dbus.WithContext(ctx))
		}
	}

	conn, err := dial(ctx)
	if err != nil {
		if isAccessDenied(err) {
			return fmt.Errorf("%w: %v", ErrBlueZUnavailable, err)
		}
		return fmt.Errorf("permission: connect system bus: %w", err)
	}
	defer conn.Close()

	var owned bool
	call := conn.BusObject().CallWithContext(ctx, dbusNameHasOwner, 0, bluezService)
	if err := call.Store(&owned); err != nil {
		if isAccessDenied(err) {
			return fmt.Errorf("%w: %v", ErrBlueZUnavailable, err)
		}
		return fmt.Errorf("permission: query %s: %w", bluezService, err)
	}
	if !owned {
		return fmt.Errorf("%w: no owner for %s", ErrBlueZUnavailable, bluezService)
	}
	return nil
}

func isAccessDenied(err error) bool {
	var derr dbus.Error
	return errors.As(err, &derr) && derr.Name == dbusAccessDenied
}
