// Package polkit implements the daemon's authorization check: a thin
// wrapper around the org.freedesktop.PolicyKit1.Authority D-Bus service,
// following the same CheckAuthorization(pid, uid, actionId, details, flags)
// shape used throughout the wider snapd/Ubuntu desktop stack.
package polkit

import (
	"errors"

	"github.com/godbus/dbus/v5"

	"github.com/MK2112/lusby/internal/errkind"
)

const (
	dbusName      = "org.freedesktop.PolicyKit1"
	dbusPath      = "/org/freedesktop/PolicyKit1/Authority"
	dbusInterface = "org.freedesktop.PolicyKit1.Authority"
)

// CheckFlags are the polkit CheckAuthorizationFlags bits.
type CheckFlags uint32

const (
	// CheckAllowInteraction permits polkit to pop an interactive
	// authentication dialog rather than failing immediately.
	CheckAllowInteraction CheckFlags = 1
)

// ErrDismissed is returned when the user dismisses an interactive
// authentication dialog rather than completing or explicitly denying it.
var ErrDismissed = errors.New("polkit: authentication dialog dismissed")

// subject is the (unix-process, details) pair polkit expects: a tagged
// union encoded as (s, a{sv}).
type subject struct {
	Kind    string
	Details map[string]dbus.Variant
}

// CheckAuthorization asks polkitd whether the process identified by pid/uid
// is authorized for actionID, with the supplied detail strings shown to the
// user in any interactive prompt. It is a package-level var, not a plain
// func, so callers (daemon) can substitute a fake during tests without a
// real polkitd running.
var CheckAuthorization = checkAuthorization

func checkAuthorization(pid int32, uid uint32, actionID string, details map[string]string, flags CheckFlags) (bool, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return false, errkind.Wrap(errkind.IO, "polkit: connect to system bus", err)
	}

	subj := subject{
		Kind: "unix-process",
		Details: map[string]dbus.Variant{
			"pid":        dbus.MakeVariant(uint32(pid)),
			"start-time": dbus.MakeVariant(uint64(0)),
		},
	}
	_ = uid // uid is resolved by polkitd from the pid; kept for callers/logging symmetry

	dvariants := make(map[string]dbus.Variant, len(details))
	for k, v := range details {
		dvariants[k] = dbus.MakeVariant(v)
	}

	obj := conn.Object(dbusName, dbus.ObjectPath(dbusPath))
	call := obj.Call(dbusInterface+".CheckAuthorization", 0,
		subj, actionID, dvariants, uint32(flags), "")

	if call.Err != nil {
		if isDismissed(call.Err) {
			return false, ErrDismissed
		}
		return false, errkind.Wrap(errkind.Unauthorized, "polkit: CheckAuthorization call failed", call.Err)
	}

	var isAuthorized, isChallenge bool
	var retDetails map[string]dbus.Variant
	if err := call.Store(&isAuthorized, &isChallenge, &retDetails); err != nil {
		return false, errkind.Wrap(errkind.Serialization, "polkit: decode CheckAuthorization reply", err)
	}
	return isAuthorized, nil
}

func isDismissed(err error) bool {
	dbusErr, ok := err.(dbus.Error)
	if !ok {
		return false
	}
	return dbusErr.Name == "org.freedesktop.PolicyKit1.Error.Cancelled"
}
