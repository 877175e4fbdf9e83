// Package baseline implements the signed baseline document: the typed list
// of devices that constitutes the persistent allow-list. A baseline is only
// ever mutated by replacement — the daemon never edits one in place — and
// is only accepted once a trusted key verifies its signature (see
// trustedkeys.Store.AnyVerifies).
package baseline

import (
	"time"

	"golang.org/x/crypto/ed25519"

	"github.com/MK2112/lusby/cryptoutil"
)

// DeviceEntry is one baseline element.
type DeviceEntry struct {
	VendorID        string  `json:"vendor_id"`
	ProductID       string  `json:"product_id"`
	Serial          *string `json:"serial,omitempty"`
	BusPath         *string `json:"bus_path,omitempty"`
	DescriptorsHash string  `json:"descriptors_hash"`
	DeviceType      string  `json:"device_type"`
	Comment         *string `json:"comment,omitempty"`
}

// Baseline is the typed, optionally-signed allow-list document. JSON
// marshaling includes the signature when one is attached and omits the
// field when it is nil; signing instead goes
// through the unsigned view and cryptoutil.CanonicalJSON so the field is
// genuinely absent (not present-as-null) from the bytes under signature.
type Baseline struct {
	Version   uint32        `json:"version"`
	CreatedBy string        `json:"created_by"`
	CreatedAt time.Time     `json:"created_at"`
	Devices   []DeviceEntry `json:"devices"`
	Signature *string       `json:"signature,omitempty"`
}

// unsignedView is marshaled in place of Baseline when computing the bytes a
// signature covers: its signature field is omitted from the struct
// definition itself, so encoding/json never emits it at all, keeping it
// genuinely absent rather than present-as-null.
type unsignedView struct {
	Version   uint32        `json:"version"`
	CreatedBy string        `json:"created_by"`
	CreatedAt time.Time     `json:"created_at"`
	Devices   []DeviceEntry `json:"devices"`
}

func (b *Baseline) unsigned() unsignedView {
	return unsignedView{
		Version:   b.Version,
		CreatedBy: b.CreatedBy,
		CreatedAt: b.CreatedAt,
		Devices:   b.Devices,
	}
}

// SignAttach sets b.Signature to the base64 Ed25519 signature over the
// canonical-JSON form of b with the signature field absent.
func (b *Baseline) SignAttach(sk ed25519.PrivateKey) error {
	sig, err := cryptoutil.Sign(sk, b.unsigned())
	if err != nil {
		return err
	}
	b.Signature = &sig
	return nil
}

// VerifySignature reports whether vk verifies b's signature. A baseline
// with no signature attached is never considered valid, regardless of key.
func (b *Baseline) VerifySignature(vk ed25519.PublicKey) (bool, error) {
	if b.Signature == nil {
		return false, nil
	}
	return cryptoutil.Verify(vk, b.unsigned(), *b.Signature)
}
