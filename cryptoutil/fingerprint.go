package cryptoutil

import (
	"crypto/sha256"
	"encoding/hex"
)

// FingerprintInput is the set of device attributes folded into a device
// fingerprint. Optional fields contribute their bytes when present and
// nothing (not even a separator placeholder) when absent; the "|" separator
// itself is always emitted between fields.
type FingerprintInput struct {
	VendorID       string
	ProductID      string
	Serial         string
	HasSerial      bool
	Manufacturer   string
	HasManufacturer bool
	Product        string
	HasProduct     bool
	RawDescriptors []byte
}

// Fingerprint computes the "sha256:<hex>" device fingerprint: SHA-256 over
// vendor_id | "|" | product_id | "|" | serial? | "|" | manufacturer? | "|" |
// product? | "|" | raw_descriptors?.
func Fingerprint(in FingerprintInput) string {
	h := sha256.New()
	h.Write([]byte(in.VendorID))
	h.Write([]byte("|"))
	h.Write([]byte(in.ProductID))
	h.Write([]byte("|"))
	if in.HasSerial {
		h.Write([]byte(in.Serial))
	}
	h.Write([]byte("|"))
	if in.HasManufacturer {
		h.Write([]byte(in.Manufacturer))
	}
	h.Write([]byte("|"))
	if in.HasProduct {
		h.Write([]byte(in.Product))
	}
	h.Write([]byte("|"))
	if len(in.RawDescriptors) > 0 {
		h.Write(in.RawDescriptors)
	}
	return "sha256:" + hex.EncodeToString(h.Sum(nil))
}

// ShortFingerprint returns the first 8 hex characters after the "sha256:"
// prefix, for compact display in logs/audit summaries; it degrades
// gracefully (first 8 bytes of the input) if the prefix is missing.
func ShortFingerprint(full string) string {
	const prefix = "sha256:"
	if len(full) > len(prefix) && full[:len(prefix)] == prefix {
		hexPart := full[len(prefix):]
		if len(hexPart) > 8 {
			return hexPart[:8]
		}
		return hexPart
	}
	if len(full) > 8 {
		return full[:8]
	}
	return full
}
