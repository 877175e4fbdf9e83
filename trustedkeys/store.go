// Package trustedkeys implements the file-backed trusted-key store: a
// directory of <name>.pub files, each holding exactly 32 raw Ed25519
// public-key bytes. A baseline is accepted if any stored key verifies it.
package trustedkeys

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/crypto/ed25519"

	"github.com/MK2112/lusby/internal/errkind"
)

const suffix = ".pub"

// Verifiable is implemented by baseline.Baseline; kept minimal here so this
// package does not need to import baseline (which would be a needless
// cyclic-looking dependency for what is really just "anything with a
// VerifySignature method").
type Verifiable interface {
	VerifySignature(vk ed25519.PublicKey) (bool, error)
}

// Store wraps a directory of trusted public keys.
type Store struct {
	dir string
}

// New returns a Store rooted at dir. The directory is not required to exist
// yet; Add creates it on demand.
func New(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) fileName(name string) string {
	if strings.HasSuffix(name, suffix) {
		return name
	}
	return name + suffix
}

// Add writes a raw 32-byte Ed25519 public key to <name>.pub, failing
// (rather than overwriting) if that file already exists.
func (s *Store) Add(name string, key ed25519.PublicKey) error {
	if len(key) != ed25519.PublicKeySize {
		return errkind.New(errkind.InvalidInput, "trustedkeys: key has wrong length")
	}
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return errkind.Wrap(errkind.IO, "trustedkeys: create store directory", err)
	}
	path := filepath.Join(s.dir, s.fileName(name))
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return errkind.Wrap(errkind.IO, "trustedkeys: create key file", err)
	}
	defer f.Close()
	if _, err := f.Write(key); err != nil {
		return errkind.Wrap(errkind.IO, "trustedkeys: write key file", err)
	}
	return nil
}

// List returns the sorted file names of every *.pub entry in the store.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errkind.Wrap(errkind.IO, "trustedkeys: read store directory", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(e.Name(), suffix) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Remove deletes <name>.pub, reporting success iff the unlink succeeded.
func (s *Store) Remove(name string) bool {
	path := filepath.Join(s.dir, s.fileName(name))
	return os.Remove(path) == nil
}

// AnyVerifies iterates every stored key of the correct length and returns
// true on the first one that verifies target, short-circuiting further
// checks.
func (s *Store) AnyVerifies(target Verifiable) bool {
	names, err := s.List()
	if err != nil {
		return false
	}
	for _, name := range names {
		key, err := os.ReadFile(filepath.Join(s.dir, name))
		if err != nil || len(key) != ed25519.PublicKeySize {
			continue
		}
		ok, err := target.VerifySignature(ed25519.PublicKey(key))
		if err == nil && ok {
			return true
		}
	}
	return false
}
