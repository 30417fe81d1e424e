//go:build linux

package ble

import (
	"fmt"
	"sort"
	"strings"

	"github.com/godbus/dbus/v5"
	"tinygo.org/x/bluetooth"
)

const (
	bluezService            = "org.bluez"
	gattCharacteristicIface = "org.bluez.GattCharacteristic1"
	getManagedObjects       = "org.freedesktop.DBus.ObjectManager.GetManagedObjects"
)

// writeRequestOptions asks BlueZ for an ATT Write Request, so WriteValue
// returns only after the peripheral acknowledged it.
var writeRequestOptions = map[string]dbus.Variant{"type": dbus.MakeVariant("request")}

type managedObjects = map[dbus.ObjectPath]map[string]map[string]dbus.Variant

// newCharacteristic wraps char. tinygo's BlueZ backend only offers
// WriteWithoutResponse, so writes go to the characteristic's D-Bus object.
func newCharacteristic(deviceID string, char *bluetooth.DeviceCharacteristic, uuid bluetooth.UUID) (Characteristic, error) {
	bus, err := dbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("ble: connect system bus: %w", err)
	}

	var objects managedObjects
	if err := bus.Object(bluezService, "/").Call(getManagedObjects, 0).Store(&objects); err != nil {
		return nil, fmt.Errorf("ble: list %s objects: %w", bluezService, err)
	}
	path, ok := findCharacteristicPath(objects, deviceID, uuid.String())
	if !ok {
		return nil, fmt.Errorf("ble: characteristic %s of %s not found on the bus", uuid.String(), deviceID)
	}

	obj := bus.Object(bluezService, path)
	return &tinyGoCharacteristic{
		char: char,
		write: func(p []byte) error {
			if err := obj.Call(gattCharacteristicIface+".WriteValue", 0, p, writeRequestOptions).Err; err != nil {
				return fmt.Errorf("ble: write %s: %w", path, err)
			}
			return nil
		},
	}, nil
}

// findCharacteristicPath returns the first characteristic object, in path
// order, that belongs to deviceID and carries uuid.
func findCharacteristicPath(objects managedObjects, deviceID, uuid string) (dbus.ObjectPath, bool) {
	segment := "/dev_" + strings.ReplaceAll(strings.ToUpper(deviceID), ":", "_") + "/"

	paths := make([]string, 0, len(objects))
	for p := range objects {
		paths = append(paths, string(p))
	}
	sort.Strings(paths)

	for _, p := range paths {
		if !strings.Contains(p, segment) {
			continue
		}
		props, ok := objects[dbus.ObjectPath(p)][gattCharacteristicIface]
		if !ok {
			continue
		}
		v, ok := props["UUID"].Value().(string)
		if ok && strings.EqualFold(v, uuid) {
			return dbus.ObjectPath(p), true
		}
	}
	return "", false
}
