package daemon

import (
	"context"

	"github.com/godbus/dbus/v5"

	"github.com/MK2112/lusby/internal/errkind"
	"github.com/MK2112/lusby/internal/logging"
)

const (
	login1Interface = "org.freedesktop.login1.Manager"
	login1Path      = "/org/freedesktop/login1"
)

// RunSessionListener subscribes to logind's PrepareForSleep signal and
// revokes every ephemeral grant the instant the system is about to suspend.
// It blocks until ctx is cancelled or the signal channel closes.
func RunSessionListener(ctx context.Context, conn *dbus.Conn, d *State) error {
	if err := conn.AddMatchSignal(
		dbus.WithMatchObjectPath(login1Path),
		dbus.WithMatchInterface(login1Interface),
		dbus.WithMatchMember("PrepareForSleep"),
	); err != nil {
		return errkind.Wrap(errkind.IO, "daemon: subscribe to PrepareForSleep", err)
	}

	signals := make(chan *dbus.Signal, 16)
	conn.Signal(signals)
	defer conn.RemoveSignal(signals)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sig, ok := <-signals:
			if !ok {
				return nil
			}
			if sig.Name != login1Interface+".PrepareForSleep" {
				continue
			}
			if len(sig.Body) != 1 {
				continue
			}
			goingToSleep, ok := sig.Body[0].(bool)
			if !ok || !goingToSleep {
				continue
			}
			logging.Noticef("system preparing for sleep, revoking ephemeral grants")
			d.RevokeAllEphemeral(ctx)
		}
	}
}
