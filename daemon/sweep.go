package daemon

import (
	"context"
	"time"

	"gopkg.in/tomb.v2"
)

// sweepInterval is how often the background sweeper checks for expired
// ephemeral grants.
const sweepInterval = time.Second

// RunExpirySweeper runs d.sweepExpired once per sweepInterval until t is
// killed, supervised by a tomb so the daemon's main loop can Wait() on it
// alongside the other background listeners and learn why it stopped.
func RunExpirySweeper(t *tomb.Tomb, d *State) {
	t.Go(func() error {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-t.Dying():
				return nil
			case <-ticker.C:
				d.sweepExpired(context.Background(), time.Now())
			}
		}
	})
}
