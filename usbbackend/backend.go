// Package usbbackend abstracts the external, rule-based USB authorization
// engine: list/get/allow-ephemeral/revoke as a small capability interface,
// plus the atomic rule-file replacement + reload path used by persistent
// baseline application.
package usbbackend

import "context"

// DeviceInfo is the backend's view of one device.
type DeviceInfo struct {
	ID          string `json:"id"`
	VendorID    string `json:"vendor_id"`
	ProductID   string `json:"product_id"`
	Serial      string `json:"serial"`
	Fingerprint string `json:"fingerprint"`
	DeviceType  string `json:"device_type"`
	Allowed     bool   `json:"allowed"`
	Persistent  bool   `json:"persistent"`
}

// Backend is the capability the daemon drives; it is the one piece of
// dynamic dispatch substitutable at runtime, letting tests use MemoryBackend
// in place of the real subprocess-driven engine.
type Backend interface {
	ListDevices(ctx context.Context) ([]DeviceInfo, error)
	GetDevice(ctx context.Context, deviceID string) (DeviceInfo, bool, error)
	AllowEphemeral(ctx context.Context, deviceID string, ttlSecs uint32) bool
	Revoke(ctx context.Context, deviceID string) bool
	// ApplyRulesAtomically replaces the backend's persisted rule set with
	// text, applying it as close to atomically as the backend can manage
	// and reporting any failure to do so.
	ApplyRulesAtomically(ctx context.Context, text string) error
}
