// Package daemon is the core of lusbyd: the in-memory ephemeral-grant
// table, the D-Bus service surface exported at org.lusby.Daemon, the
// session-lifecycle listener that revokes ephemeral grants on suspend, and
// the background expiry sweep.
package daemon

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
	"golang.org/x/time/rate"

	"github.com/MK2112/lusby/audit"
	"github.com/MK2112/lusby/baseline"
	"github.com/MK2112/lusby/internal/errkind"
	"github.com/MK2112/lusby/trustedkeys"
	"github.com/MK2112/lusby/usbbackend"
)

// grant tracks one ephemeral allow: the instant it is due to be revoked.
type grant struct {
	expiresAt time.Time
}

// State is the daemon's aggregate: everything its D-Bus methods read or
// mutate. It is safe for concurrent use.
type State struct {
	mu          sync.Mutex
	denyUnknown bool
	ephemeral   map[string]grant

	limiters   map[uint32]*rate.Limiter
	limitersMu sync.Mutex

	Backend      usbbackend.Backend
	Audit        *audit.Logger
	TrustedKeys  *trustedkeys.Store
	BaselinesDir string

	conn *dbus.Conn
}

// NewState builds a State with deny-unknown policy on by default, matching
// the upstream project's default posture of refusing anything not in the
// baseline.
func NewState(backend usbbackend.Backend, auditLogger *audit.Logger, trustedKeys *trustedkeys.Store, baselinesDir string) *State {
	return &State{
		denyUnknown:  true,
		ephemeral:    make(map[string]grant),
		limiters:     make(map[uint32]*rate.Limiter),
		Backend:      backend,
		Audit:        auditLogger,
		TrustedKeys:  trustedKeys,
		BaselinesDir: baselinesDir,
	}
}

// EphemeralCount reports the number of currently tracked ephemeral grants.
func (d *State) EphemeralCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.ephemeral)
}

// RevokeAllEphemeral revokes every ephemeral grant immediately; the session
// listener calls it on suspend.
func (d *State) RevokeAllEphemeral(ctx context.Context) {
	d.mu.Lock()
	ids := make([]string, 0, len(d.ephemeral))
	for id := range d.ephemeral {
		ids = append(ids, id)
	}
	d.mu.Unlock()

	for _, id := range ids {
		d.Backend.Revoke(ctx, id)
		d.Audit.Log("auto_revoke", &id, "revoke_on_lock_or_sleep", nil)
		d.mu.Lock()
		delete(d.ephemeral, id)
		d.mu.Unlock()
	}
}

// sweepExpired revokes any ephemeral grant whose TTL has passed as of now,
// returning how many were revoked. Called on a 1Hz tick by the background
// sweeper (sweep.go); it takes now as a parameter so tests can drive it
// directly without waiting on a real timer.
func (d *State) sweepExpired(ctx context.Context, now time.Time) int {
	d.mu.Lock()
	var expired []string
	for id, g := range d.ephemeral {
		if !now.Before(g.expiresAt) {
			expired = append(expired, id)
		}
	}
	d.mu.Unlock()

	for _, id := range expired {
		d.Backend.Revoke(ctx, id)
		d.Audit.Log("auto_revoke", &id, "revoke_on_expiry", nil)
		d.mu.Lock()
		delete(d.ephemeral, id)
		d.mu.Unlock()
	}
	return len(expired)
}

// limiterFor returns the per-UID token-bucket limiter for requesterUID,
// creating one on first use. Each UID is allowed one request per second
// with a burst of 5, generous enough for legitimate retry behavior while
// bounding abuse of request_ephemeral_allow.
func (d *State) limiterFor(requesterUID uint32) *rate.Limiter {
	d.limitersMu.Lock()
	defer d.limitersMu.Unlock()
	lim, ok := d.limiters[requesterUID]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(1), 5)
		d.limiters[requesterUID] = lim
	}
	return lim
}

func baselineFromBytes(data []byte) (baseline.Baseline, error) {
	var b baseline.Baseline
	if err := json.Unmarshal(data, &b); err != nil {
		return baseline.Baseline{}, errkind.Wrap(errkind.Serialization, "daemon: decode baseline", err)
	}
	return b, nil
}
