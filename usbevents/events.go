// Package usbevents bridges the kernel's udev netlink socket, a blocking
// source, onto a buffered Go channel of decoded Event values. The blocking
// receive loop runs on its own goroutine; everything downstream (the
// daemon's dispatch loop) only ever reads from the channel, never touches
// udev directly.
package usbevents

import (
	"context"
	"strings"

	"github.com/pilebones/go-udev/netlink"

	"github.com/MK2112/lusby/cryptoutil"
	"github.com/MK2112/lusby/internal/errkind"
)

// Kind distinguishes the two hotplug transitions the daemon reacts to.
type Kind string

const (
	// KindInserted corresponds to udev "add"/"bind" actions.
	KindInserted Kind = "unknown_device_inserted"
	// KindRemoved corresponds to udev "remove"/"unbind" actions.
	KindRemoved Kind = "device_removed"
)

// Event is the decoded, backend-agnostic shape an ingestion source emits.
// DeviceID is the uevent's kernel object path (e.g.
// "/devices/pci0000:00/usb1/1-1"), used as the stable key callers key
// ephemeral grants and audit entries on.
type Event struct {
	Kind        Kind
	DeviceID    string
	VendorID    string
	ProductID   string
	Serial      string
	Manufacturer string
	Product     string
	DeviceType  string
	Fingerprint string
}

// Source reads udev USB subsystem events from the kernel and decodes them
// onto a bounded channel. When the channel is full, Watch blocks on send,
// so a slow consumer throttles ingestion rather than silently losing events.
type Source struct {
	matcher netlink.Matcher
}

// NewSource returns a Source restricted to the "usb" subsystem.
func NewSource() *Source {
	rules := netlink.RuleDefinitions{Rules: []netlink.RuleDefinition{
		{Env: map[string]string{"SUBSYSTEM": "usb"}},
	}}
	return &Source{matcher: &rules}
}

// Watch starts the blocking netlink reader on its own goroutine and returns
// a channel of decoded events; it closes the channel and stops the reader
// when ctx is cancelled.
func (s *Source) Watch(ctx context.Context, bufSize int) (<-chan Event, error) {
	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		return nil, errkind.Wrap(errkind.IO, "usbevents: connect to udev netlink socket", err)
	}

	kernelEvents := make(chan netlink.UEvent)
	errs := make(chan error)
	quit := conn.Monitor(kernelEvents, errs, s.matcher)

	out := make(chan Event, bufSize)
	go func() {
		defer close(out)
		defer conn.Close()
		for {
			select {
			case <-ctx.Done():
				close(quit)
				return
			case raw, ok := <-kernelEvents:
				if !ok {
					return
				}
				evt, ok := decode(raw)
				if !ok {
					continue
				}
				select {
				case out <- evt:
				case <-ctx.Done():
					close(quit)
					return
				}
			case <-errs:
				// transient netlink decode errors are not fatal to the
				// watch loop; the next event may decode fine.
			}
		}
	}()
	return out, nil
}

func decode(raw netlink.UEvent) (Event, bool) {
	var kind Kind
	switch raw.Action {
	case netlink.ADD, netlink.BIND:
		kind = KindInserted
	case netlink.REMOVE, netlink.UNBIND:
		kind = KindRemoved
	default:
		return Event{}, false
	}

	env := raw.Env
	vendor := withHexPrefix(env["ID_VENDOR_ID"])
	product := withHexPrefix(env["ID_MODEL_ID"])
	serial := env["ID_SERIAL_SHORT"]
	manufacturer := env["ID_VENDOR"]
	product_ := env["ID_MODEL"]
	deviceType := env["ID_USB_DRIVER"]

	in := cryptoutil.FingerprintInput{VendorID: vendor, ProductID: product}
	if serial != "" {
		in.Serial, in.HasSerial = serial, true
	}
	if manufacturer != "" {
		in.Manufacturer, in.HasManufacturer = manufacturer, true
	}
	if product_ != "" {
		in.Product, in.HasProduct = product_, true
	}

	return Event{
		Kind:         kind,
		DeviceID:     raw.KObj,
		VendorID:     vendor,
		ProductID:    product,
		Serial:       serial,
		Manufacturer: manufacturer,
		Product:      product_,
		DeviceType:   deviceType,
		Fingerprint:  cryptoutil.Fingerprint(in),
	}, true
}

func withHexPrefix(id string) string {
	if id == "" {
		return ""
	}
	if strings.HasPrefix(id, "0x") || strings.HasPrefix(id, "0X") {
		return id
	}
	return "0x" + id
}
