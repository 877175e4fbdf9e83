package daemon

import (
	"github.com/godbus/dbus/v5"

	"github.com/MK2112/lusby/polkit"
)

// polkitCheckAuthorization is a package-level var wrapping polkit's own
// swappable CheckAuthorization, so daemon tests can stub authorization
// decisions without touching the polkit package's global (and without a
// real polkitd) — the same pattern the teacher uses for its own
// polkitCheckAuthorization test seam.
var polkitCheckAuthorization = polkit.CheckAuthorization

// resolveSender is a package-level var (default resolveSenderViaBus) so
// tests can drive authorizeManage without a real system bus connection.
var resolveSender = resolveSenderViaBus

// resolveSenderViaBus queries org.freedesktop.DBus for the pid and uid
// behind a unique bus name, the information polkit's CheckAuthorization
// needs.
func resolveSenderViaBus(conn *dbus.Conn, sender dbus.Sender) (pid int32, uid uint32, err error) {
	busObj := conn.BusObject()

	var rawPid uint32
	if err := busObj.Call("org.freedesktop.DBus.GetConnectionUnixProcessID", 0, string(sender)).Store(&rawPid); err != nil {
		return 0, 0, err
	}
	var rawUID uint32
	if err := busObj.Call("org.freedesktop.DBus.GetConnectionUnixUser", 0, string(sender)).Store(&rawUID); err != nil {
		return 0, 0, err
	}
	return int32(rawPid), rawUID, nil
}

// authorizeManage checks whether the D-Bus caller behind sender holds the
// org.lusby.manage polkit action, auditing and denying on any failure to
// resolve or query rather than failing open.
func (d *State) authorizeManage(conn *dbus.Conn, sender dbus.Sender) bool {
	pid, uid, err := resolveSender(conn, sender)
	if err != nil {
		d.Audit.Log("policy_denied", nil, "sender_resolution_failed", nil)
		return false
	}
	ok, err := polkitCheckAuthorization(pid, uid, "org.lusby.manage", nil, polkit.CheckAllowInteraction)
	if err != nil || !ok {
		d.Audit.Log("policy_denied", nil, "polkit_denied", &uid)
		return false
	}
	return true
}
