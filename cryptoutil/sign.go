package cryptoutil

import (
	"encoding/base64"

	"golang.org/x/crypto/ed25519"

	"github.com/MK2112/lusby/internal/errkind"
)

// Sign signs the canonical-JSON form of value with sk, returning the
// standard-base64 encoding of the raw 64-byte Ed25519 signature.
func Sign(sk ed25519.PrivateKey, value interface{}) (string, error) {
	msg, err := CanonicalJSON(value)
	if err != nil {
		return "", errkind.Wrap(errkind.Serialization, "canonicalize value to sign", err)
	}
	sig := ed25519.Sign(sk, msg)
	return base64.StdEncoding.EncodeToString(sig), nil
}

// Verify checks a base64-encoded Ed25519 signature over the canonical-JSON
// form of value. It returns an error only for malformed input (bad base64,
// wrong signature length); a well-formed but non-matching signature simply
// yields (false, nil).
func Verify(vk ed25519.PublicKey, value interface{}, b64sig string) (bool, error) {
	sig, err := base64.StdEncoding.DecodeString(b64sig)
	if err != nil {
		return false, errkind.Wrap(errkind.Serialization, "malformed base64 signature", err)
	}
	if len(sig) != ed25519.SignatureSize {
		return false, errkind.New(errkind.Serialization, "signature has wrong length")
	}
	msg, err := CanonicalJSON(value)
	if err != nil {
		return false, errkind.Wrap(errkind.Serialization, "canonicalize value to verify", err)
	}
	return ed25519.Verify(vk, msg, sig), nil
}

// GenerateKey wraps ed25519.GenerateKey for callers (tests, key-provisioning
// tooling) that need a fresh keypair; it is not otherwise used by the daemon
// itself, which only ever handles public keys.
func GenerateKey() (ed25519.PublicKey, ed25519.PrivateKey, error) {
	return ed25519.GenerateKey(nil)
}
