package usbbackend

import (
	"context"
	"strings"
	"sync"
)

// MemoryBackend is an in-memory Backend fake, grounded on the upstream
// project's own mock backend crate: devices live in a map keyed by ID,
// Allow/Revoke just flip a bool. It exists so the daemon's own tests never
// have to shell out to a real engine binary.
type MemoryBackend struct {
	mu          sync.Mutex
	devices     map[string]DeviceInfo
	lastApplied string
}

// NewMemoryBackend returns an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{devices: make(map[string]DeviceInfo)}
}

// Seed inserts or replaces a device record, as if it had just been
// enumerated off the bus.
func (m *MemoryBackend) Seed(d DeviceInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.devices[d.ID] = d
}

// Forget removes a device record, as if it had just been unplugged.
func (m *MemoryBackend) Forget(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.devices, id)
}

func (m *MemoryBackend) ListDevices(ctx context.Context) ([]DeviceInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]DeviceInfo, 0, len(m.devices))
	for _, d := range m.devices {
		out = append(out, d)
	}
	return out, nil
}

func (m *MemoryBackend) GetDevice(ctx context.Context, deviceID string) (DeviceInfo, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[deviceID]
	return d, ok, nil
}

func (m *MemoryBackend) AllowEphemeral(ctx context.Context, deviceID string, _ uint32) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[deviceID]
	if !ok {
		return false
	}
	d.Allowed = true
	m.devices[deviceID] = d
	return true
}

func (m *MemoryBackend) Revoke(ctx context.Context, deviceID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[deviceID]
	if !ok {
		return false
	}
	d.Allowed = false
	d.Persistent = false
	m.devices[deviceID] = d
	return true
}

// ApplyRulesAtomically records text as the last rule set applied, and marks
// every device named in it (by "allow id <vid>:<pid>" lines) persistent, so
// tests can assert on both the generated rule text and its effect.
func (m *MemoryBackend) ApplyRulesAtomically(ctx context.Context, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastApplied = text
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "allow id ") {
			continue
		}
		fields := strings.Fields(strings.TrimPrefix(line, "allow id "))
		if len(fields) == 0 {
			continue
		}
		pair := fields[0]
		for id, d := range m.devices {
			if vidPidMatches(id, d, pair) {
				d.Allowed = true
				d.Persistent = true
				m.devices[id] = d
			}
		}
	}
	return nil
}

// LastAppliedRules returns the most recent rule text passed to
// ApplyRulesAtomically, mainly for tests.
func (m *MemoryBackend) LastAppliedRules() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastApplied
}

func vidPidMatches(id string, d DeviceInfo, pair string) bool {
	want := normalizeID(d.VendorID) + ":" + normalizeID(d.ProductID)
	return pair == want || id == pair
}
