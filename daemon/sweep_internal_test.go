package daemon

import (
	"context"
	"time"

	. "gopkg.in/check.v1"

	"github.com/MK2112/lusby/trustedkeys"
	"github.com/MK2112/lusby/usbbackend"
)

type sweepSuite struct{}

var _ = Suite(&sweepSuite{})

func (s *sweepSuite) TestSweepExpiredRevokesPastTTL(c *C) {
	backend := usbbackend.NewMemoryBackend()
	backend.Seed(usbbackend.DeviceInfo{ID: "dev1"})
	auditLg, cleanup := openTestAuditLogger(c)
	defer cleanup()

	st := NewState(backend, auditLg, trustedkeys.New(c.MkDir()), c.MkDir())
	st.RequestEphemeralAllow("dev1", 1, 1000)
	c.Check(st.EphemeralCount(), Equals, 1)

	revoked := st.sweepExpired(context.Background(), time.Now().Add(2*time.Second))
	c.Check(revoked, Equals, 1)
	c.Check(st.EphemeralCount(), Equals, 0)
}

func (s *sweepSuite) TestSweepExpiredIgnoresFreshGrants(c *C) {
	backend := usbbackend.NewMemoryBackend()
	backend.Seed(usbbackend.DeviceInfo{ID: "dev1"})
	auditLg, cleanup := openTestAuditLogger(c)
	defer cleanup()

	st := NewState(backend, auditLg, trustedkeys.New(c.MkDir()), c.MkDir())
	st.RequestEphemeralAllow("dev1", 3600, 1000)

	revoked := st.sweepExpired(context.Background(), time.Now())
	c.Check(revoked, Equals, 0)
	c.Check(st.EphemeralCount(), Equals, 1)
}
