// Package ble abstracts the Bluetooth Low Energy transport the watch
// session runs on: scanning for a compatible peripheral, connecting,
// and exchanging bytes over GATT characteristics. The session never
// touches the radio directly, which keeps it testable against mock and
// synthetic adapters.
package ble

import (
	"context"
	"errors"
	"strings"
)

// GATT UUIDs of the watch interaction protocol. The interaction
// service is what compatible watches advertise; the protobuf output
// characteristic streams length-delimited updates and the input
// characteristic accepts client info and haptics commands.
const (
	InteractionServiceUUID = "008e74d0-7bb3-4ac5-8baf-e5e372cced76"
	ProtobufServiceUUID    = "f9d60370-5325-4c64-b874-a68c7c555bad"
	ProtobufOutputUUID     = "f9d60371-5325-4c64-b874-a68c7c555bad"
	ProtobufInputUUID      = "f9d60372-5325-4c64-b874-a68c7c555bad"
)

// ErrNoDeviceFound is returned by Scan when no matching peripheral
// appeared before the context expired.
var ErrNoDeviceFound = errors.New("ble: no matching device found")

// Device describes a discovered peripheral. ID is the platform address
// (a MAC on Linux, a CoreBluetooth UUID on macOS).
type Device struct {
	ID   string
	Name string
	RSSI int
}

// Characteristic is a BLE GATT characteristic.
type Characteristic interface {
	// Write sends data to the characteristic.
	Write(data []byte) error
	// Subscribe registers a callback for notifications on this
	// characteristic. The callback must not retain the slice.
	Subscribe(callback func(data []byte)) error
}

// Connection is an active link to a peripheral.
type Connection interface {
	// DiscoverCharacteristic finds a characteristic by UUID within a service.
	DiscoverCharacteristic(serviceUUID, charUUID string) (Characteristic, error)
	// Disconnect terminates the connection.
	Disconnect() error
	// OnDisconnect registers a callback invoked when the connection drops.
	OnDisconnect(callback func())
}

// Adapter abstracts the BLE hardware adapter.
type Adapter interface {
	// Enable powers on the BLE adapter.
	Enable() error
	// Scan looks for peripherals advertising serviceUUID whose name
	// contains nameFilter (case-insensitive; empty matches anything)
	// and returns the first match. Which of several matching devices
	// comes first depends on the radio, not on any stable ordering.
	// Returns ErrNoDeviceFound when ctx expires first.
	Scan(ctx context.Context, serviceUUID, nameFilter string) (Device, error)
	// Connect establishes a connection to the device with the given ID.
	Connect(ctx context.Context, id string) (Connection, error)
}

// MatchesName reports whether a device's advertised name passes a
// case-insensitive substring filter. An empty filter matches anything;
// an unnamed device only matches the empty filter.
func MatchesName(name, filter string) bool {
	if filter == "" {
		return true
	}
	return strings.Contains(strings.ToLower(name), strings.ToLower(filter))
}
