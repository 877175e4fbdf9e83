// Package audit implements the hash-chained, append-only audit log: every
// entry's hash covers the previous entry's hash plus its own canonical
// payload, so truncation, reordering or tampering with any single line
// breaks the chain from that point on.
//
// Writing is deliberately best-effort: a disk failure must never block or
// fail the request that triggered the log call, so Log never returns an
// error. The in-memory chain still advances on a write failure, which means
// the chain becomes unverifiable against the file from the point of
// divergence onward — that is the specified, not an accidental, behavior.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/MK2112/lusby/dirs"
	"github.com/MK2112/lusby/internal/errkind"
)

// EntryPayload is the data an audit entry commits to.
type EntryPayload struct {
	Timestamp         time.Time `json:"timestamp"`
	EventType         string    `json:"event_type"`
	DeviceFingerprint *string   `json:"device_fingerprint,omitempty"`
	Action            string    `json:"action"`
	RequesterUID      *uint32   `json:"requester_uid,omitempty"`
}

// Entry is one line of the audit log.
type Entry struct {
	Payload    EntryPayload `json:"payload"`
	PrevHash   *string      `json:"prev_hash,omitempty"`
	EntryHash  string       `json:"entry_hash"`
}

// computeHash implements entry_hash = sha256(prev_hash_bytes_or_empty ||
// canonical_payload_bytes), formatted as "sha256:<hex>". The payload is
// serialized with the standard library's stable struct-field order, which
// is already deterministic for a fixed Go type (unlike the baseline's
// free-form JSON document, a payload has a fixed schema so no
// sorted-canonicalization pass is needed here).
func computeHash(prevHash *string, payload EntryPayload) (string, error) {
	h := sha256.New()
	if prevHash != nil {
		h.Write([]byte(*prevHash))
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return "", errkind.Wrap(errkind.Serialization, "audit: marshal payload", err)
	}
	h.Write(payloadBytes)
	return "sha256:" + hex.EncodeToString(h.Sum(nil)), nil
}

// NewEntry builds the entry that would be appended next, given the previous
// entry's hash (nil for the first entry in a chain).
func NewEntry(prevHash *string, payload EntryPayload) (Entry, error) {
	hash, err := computeHash(prevHash, payload)
	if err != nil {
		return Entry{}, err
	}
	return Entry{Payload: payload, PrevHash: prevHash, EntryHash: hash}, nil
}

// VerifyChain checks invariants I1-I3 end-to-end: the first entry has no
// prev_hash, every later entry's prev_hash equals its predecessor's
// entry_hash, and every entry_hash is exactly what computeHash yields for
// that entry's own (prev_hash, payload).
func VerifyChain(entries []Entry) bool {
	var lastHash *string
	for _, e := range entries {
		expected, err := computeHash(lastHash, e.Payload)
		if err != nil || expected != e.EntryHash {
			return false
		}
		switch {
		case lastHash == nil && e.PrevHash == nil:
			// first entry, I1 satisfied
		case lastHash != nil && e.PrevHash != nil && *lastHash == *e.PrevHash:
			// I2 satisfied
		default:
			return false
		}
		hash := e.EntryHash
		lastHash = &hash
	}
	return true
}

// Logger is the daemon's single audit-log writer. log holds an exclusive
// lock across "compute next hash" and "append the line" so last_hash is
// never observed stale by a concurrent logger.
type Logger struct {
	mu       sync.Mutex
	path     string
	file     *os.File
	lastHash *string
}

// Open ensures the log's parent directory exists with mode 0700, opens the
// file for appending, and starts a fresh in-memory chain (last_hash = nil).
// It only fails (IO) if the parent directory cannot be created or the file
// cannot be opened — both are startup-fatal for the daemon.
func Open(path string) (*Logger, error) {
	dir := filepath.Dir(path)
	if err := dirs.EnsureDirWithMode(dir, 0700); err != nil {
		return nil, errkind.Wrap(errkind.IO, "audit: create log directory", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return nil, errkind.Wrap(errkind.IO, "audit: open log file", err)
	}
	return &Logger{path: path, file: f}, nil
}

// Close releases the underlying file handle.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

// Log builds the payload with the current UTC time, computes the next
// chained entry, and appends one JSON line — all inside a single critical
// section so the chain can never fork under concurrent callers. Write
// failures are swallowed by design (see the package doc comment); last_hash
// still advances.
func (l *Logger) Log(eventType string, deviceFingerprint *string, action string, requesterUID *uint32) {
	l.mu.Lock()
	defer l.mu.Unlock()

	payload := EntryPayload{
		Timestamp:         time.Now().UTC(),
		EventType:         eventType,
		DeviceFingerprint: deviceFingerprint,
		Action:            action,
		RequesterUID:      requesterUID,
	}
	entry, err := NewEntry(l.lastHash, payload)
	if err != nil {
		// Serialization can only fail here if EntryPayload itself became
		// unmarshalable, which never happens for this fixed, JSON-safe
		// struct; advancing nothing is the only sane fallback.
		return
	}
	hash := entry.EntryHash
	l.lastHash = &hash

	line, err := json.Marshal(entry)
	if err != nil {
		return
	}
	line = append(line, '\n')
	_, _ = l.file.Write(line)
}

// LastHash reports the in-memory chain tip, mainly for tests.
func (l *Logger) LastHash() *string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastHash
}
