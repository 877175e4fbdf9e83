package usbbackend_test

import (
	"context"

	. "gopkg.in/check.v1"

	"github.com/MK2112/lusby/usbbackend"
)

type memorySuite struct{}

var _ = Suite(&memorySuite{})

func (s *memorySuite) TestSeedListGet(c *C) {
	backend := usbbackend.NewMemoryBackend()
	backend.Seed(usbbackend.DeviceInfo{ID: "1d6b:0002", VendorID: "0x1d6b", ProductID: "0x0002"})

	devices, err := backend.ListDevices(context.Background())
	c.Assert(err, IsNil)
	c.Check(devices, HasLen, 1)

	d, ok, err := backend.GetDevice(context.Background(), "1d6b:0002")
	c.Assert(err, IsNil)
	c.Check(ok, Equals, true)
	c.Check(d.VendorID, Equals, "0x1d6b")

	_, ok, err = backend.GetDevice(context.Background(), "missing")
	c.Assert(err, IsNil)
	c.Check(ok, Equals, false)
}

func (s *memorySuite) TestForgetRemovesDevice(c *C) {
	backend := usbbackend.NewMemoryBackend()
	backend.Seed(usbbackend.DeviceInfo{ID: "x"})
	backend.Forget("x")

	devices, err := backend.ListDevices(context.Background())
	c.Assert(err, IsNil)
	c.Check(devices, HasLen, 0)
}

func (s *memorySuite) TestAllowEphemeralAndRevoke(c *C) {
	backend := usbbackend.NewMemoryBackend()
	backend.Seed(usbbackend.DeviceInfo{ID: "x"})

	c.Check(backend.AllowEphemeral(context.Background(), "x", 60), Equals, true)
	d, _, _ := backend.GetDevice(context.Background(), "x")
	c.Check(d.Allowed, Equals, true)

	c.Check(backend.Revoke(context.Background(), "x"), Equals, true)
	d, _, _ = backend.GetDevice(context.Background(), "x")
	c.Check(d.Allowed, Equals, false)

	c.Check(backend.AllowEphemeral(context.Background(), "missing", 60), Equals, false)
	c.Check(backend.Revoke(context.Background(), "missing"), Equals, false)
}

func (s *memorySuite) TestApplyRulesAtomicallyRecordsTextAndMarksDevices(c *C) {
	backend := usbbackend.NewMemoryBackend()
	backend.Seed(usbbackend.DeviceInfo{ID: "d1", VendorID: "0x1d6b", ProductID: "0x0002"})

	rules := "allow id 1d6b:0002\n"
	c.Assert(backend.ApplyRulesAtomically(context.Background(), rules), IsNil)
	c.Check(backend.LastAppliedRules(), Equals, rules)

	d, ok, err := backend.GetDevice(context.Background(), "d1")
	c.Assert(err, IsNil)
	c.Check(ok, Equals, true)
	c.Check(d.Allowed, Equals, true)
	c.Check(d.Persistent, Equals, true)
}
