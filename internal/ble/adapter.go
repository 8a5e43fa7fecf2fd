// Package ble owns the link to the iStrip+ LED strip: the hardware adapter
// abstraction, the bounded command queue, and the connection manager that
// serializes encrypted frames onto the single connection the strip tolerates.
package ble

import "context"

// GATT UUIDs used by the manager. The control characteristic carries the
// encrypted command frames; the Generic Access device-name characteristic is
// readable on every peripheral and doubles as a health probe.
const (
	GenericAccessServiceUUID = "00001800-0000-1000-8000-00805f9b34fb"
	DeviceNameCharUUID       = "00002a00-0000-1000-8000-00805f9b34fb"
)

// Characteristic represents a BLE GATT characteristic.
type Characteristic interface {
	// Write sends data to the characteristic without response.
	Write(data []byte) error
	// Read reads the characteristic's current value.
	Read() ([]byte, error)
}

// Device represents a discovered BLE peripheral.
type Device struct {
	Name    string
	Address string
	RSSI    int
}

// Connection represents an active BLE connection to a peripheral.
type Connection interface {
	// DiscoverCharacteristic finds a characteristic by UUID. An empty
	// serviceUUID searches all primary services.
	DiscoverCharacteristic(serviceUUID, charUUID string) (Characteristic, error)
	// Disconnect terminates the connection.
	Disconnect() error
	// OnDisconnect registers a callback invoked when the connection drops.
	OnDisconnect(callback func())
}

// Adapter abstracts the BLE hardware adapter for testing.
type Adapter interface {
	// Enable powers on the BLE adapter.
	Enable() error
	// Scan discovers advertising peripherals until ctx is cancelled.
	Scan(ctx context.Context) ([]Device, error)
	// Connect establishes a connection to the device with the given address.
	Connect(ctx context.Context, address string) (Connection, error)
}
