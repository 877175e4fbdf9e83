package daemon

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/MK2112/lusby/usbbackend"
	"golang.org/x/crypto/ed25519"
)

// ObjectPath is where the daemon is exported on the system bus.
const ObjectPath = dbus.ObjectPath("/org/lusby/Daemon")

// InterfaceName is the D-Bus interface the daemon's methods and signals
// live under.
const InterfaceName = "org.lusby.Daemon"

// BusName is the well-known name the daemon requests on the system bus.
const BusName = "org.lusby.Daemon"

// Export registers d's methods on conn at ObjectPath/InterfaceName, plus a
// minimal Introspectable implementation, and records conn on d for signal
// emission and caller authorization.
func Export(conn *dbus.Conn, d *State) error {
	d.conn = conn
	if err := conn.Export(d, ObjectPath, InterfaceName); err != nil {
		return err
	}
	return conn.Export(introspectable(), ObjectPath, "org.freedesktop.DBus.Introspectable")
}

func introspectable() *introspect {
	return &introspect{}
}

type introspect struct{}

func (introspect) Introspect() (string, *dbus.Error) {
	return `<node><interface name="` + InterfaceName + `"/></node>`, nil
}

// GetPolicyStatus reports whether unknown (non-baseline) devices are
// denied by default.
func (d *State) GetPolicyStatus() (bool, *dbus.Error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.denyUnknown, nil
}

// GetPolicyStatusString is a convenience string form of GetPolicyStatus,
// handy for manual `dbus-send` testing.
func (d *State) GetPolicyStatusString() (string, *dbus.Error) {
	d.mu.Lock()
	deny := d.denyUnknown
	d.mu.Unlock()
	return fmt.Sprintf("deny_unknown=%t", deny), nil
}

// ListDevices returns every device the backend currently knows about.
func (d *State) ListDevices() ([]usbbackend.DeviceInfo, *dbus.Error) {
	devices, err := d.Backend.ListDevices(context.Background())
	if err != nil {
		return nil, dbus.MakeFailedError(err)
	}
	return devices, nil
}

// GetDeviceInfo returns one device's info, or a zero-value DeviceInfo if
// it is not known to the backend.
func (d *State) GetDeviceInfo(deviceID string) (usbbackend.DeviceInfo, *dbus.Error) {
	info, ok, err := d.Backend.GetDevice(context.Background(), deviceID)
	if err != nil {
		return usbbackend.DeviceInfo{}, dbus.MakeFailedError(err)
	}
	if !ok {
		return usbbackend.DeviceInfo{}, nil
	}
	return info, nil
}

// RequestEphemeralAllow grants a time-bounded allow for deviceID, subject
// to input validation and a per-requester rate limit.
func (d *State) RequestEphemeralAllow(deviceID string, ttl uint32, requesterUID uint32) (bool, *dbus.Error) {
	if !validateDeviceID(deviceID) || !validateTTL(ttl) || !validateUID(requesterUID) {
		d.Audit.Log("ephemeral_allow_reject", &deviceID, "invalid_input", &requesterUID)
		return false, nil
	}
	if !d.limiterFor(requesterUID).Allow() {
		d.Audit.Log("ephemeral_allow_reject", &deviceID, "rate_limited", &requesterUID)
		return false, nil
	}

	ok := d.Backend.AllowEphemeral(context.Background(), deviceID, ttl)
	action := "allow_fail"
	if ok {
		action = "allow_ok"
	}
	d.Audit.Log("ephemeral_allow", &deviceID, action, &requesterUID)

	if ok {
		d.mu.Lock()
		d.ephemeral[deviceID] = grant{expiresAt: time.Now().Add(time.Duration(ttl) * time.Second)}
		d.mu.Unlock()
	}
	return ok, nil
}

// RevokeDevice revokes a device's current authorization, ephemeral or
// persistent.
func (d *State) RevokeDevice(deviceID string) (bool, *dbus.Error) {
	if !validateDeviceID(deviceID) {
		d.Audit.Log("revoke_reject", &deviceID, "invalid_input", nil)
		return false, nil
	}
	ok := d.Backend.Revoke(context.Background(), deviceID)
	action := "revoke_fail"
	if ok {
		action = "revoke_ok"
	}
	d.Audit.Log("revoke", &deviceID, action, nil)
	if ok {
		d.mu.Lock()
		delete(d.ephemeral, deviceID)
		d.mu.Unlock()
	}
	return ok, nil
}

// ApplyPersistentAllow verifies a signed baseline file against the trusted
// key store, copies it into the baselines directory, regenerates backend
// rules from it, and applies them atomically. The caller must hold the
// org.lusby.manage polkit action.
func (d *State) ApplyPersistentAllow(baselinePath string, signerID string, sender dbus.Sender) (bool, *dbus.Error) {
	_ = signerID // kept for wire compatibility; verification is by key match, not claimed identity
	if !d.authorizeManage(d.conn, sender) {
		return false, nil
	}

	if strings.Contains(baselinePath, "..") {
		d.Audit.Log("security", nil, "baseline_path_traversal_attempt", nil)
		return false, nil
	}

	data, err := os.ReadFile(baselinePath)
	if err != nil {
		d.Audit.Log("security", nil, "baseline_read_failed: "+err.Error(), nil)
		return false, nil
	}

	b, err := baselineFromBytes(data)
	if err != nil {
		return false, nil
	}

	if !d.TrustedKeys.AnyVerifies(&b) {
		d.Audit.Log("security", nil, "baseline_verification_failed", nil)
		return false, nil
	}

	if err := os.MkdirAll(d.BaselinesDir, 0700); err != nil {
		d.Audit.Log("security", nil, "baseline_dir_create_failed: "+err.Error(), nil)
		return false, nil
	}
	destName := fmt.Sprintf("baseline_%s.json", time.Now().UTC().Format("20060102T150405Z"))
	dest := filepath.Join(d.BaselinesDir, destName)
	if err := os.WriteFile(dest, data, 0600); err != nil {
		d.Audit.Log("persistent_allow", nil, "baseline_apply_failed", nil)
		return false, nil
	}
	d.Audit.Log("persistent_allow", nil, "baseline_applied", nil)

	rules := usbbackend.GenerateRules(b)
	if err := d.Backend.ApplyRulesAtomically(context.Background(), rules); err != nil {
		d.Audit.Log("persistent_allow", nil, "rules_apply_failed", nil)
		return false, nil
	}
	return true, nil
}

// ListTrustedPubkeys lists the trusted-key store's file names. The caller
// must hold the org.lusby.manage polkit action.
func (d *State) ListTrustedPubkeys(sender dbus.Sender) ([]string, *dbus.Error) {
	if !d.authorizeManage(d.conn, sender) {
		return nil, nil
	}
	names, err := d.TrustedKeys.List()
	if err != nil {
		return nil, dbus.MakeFailedError(err)
	}
	return names, nil
}

// AddTrustedPubkey adds a base64-encoded 32-byte Ed25519 public key under
// the given name. The caller must hold the org.lusby.manage polkit action.
func (d *State) AddTrustedPubkey(name string, keyBytesB64 string, sender dbus.Sender) (bool, *dbus.Error) {
	if !d.authorizeManage(d.conn, sender) {
		return false, nil
	}
	raw, err := base64.StdEncoding.DecodeString(keyBytesB64)
	if err != nil || len(raw) != ed25519.PublicKeySize {
		return false, nil
	}
	return d.TrustedKeys.Add(name, ed25519.PublicKey(raw)) == nil, nil
}

// RemoveTrustedPubkey removes a trusted key by name. The caller must hold
// the org.lusby.manage polkit action.
func (d *State) RemoveTrustedPubkey(name string, sender dbus.Sender) (bool, *dbus.Error) {
	if !d.authorizeManage(d.conn, sender) {
		return false, nil
	}
	return d.TrustedKeys.Remove(name), nil
}

// EmitUnknownDeviceInserted fires the unknown_device_inserted signal for a
// newly seen, not-yet-authorized device.
func (d *State) EmitUnknownDeviceInserted(device usbbackend.DeviceInfo) error {
	return d.conn.Emit(ObjectPath, InterfaceName+".UnknownDeviceInserted", device)
}

// EmitDeviceRemoved fires the device_removed signal.
func (d *State) EmitDeviceRemoved(deviceID string) error {
	return d.conn.Emit(ObjectPath, InterfaceName+".DeviceRemoved", deviceID)
}
