package usbbackend

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/MK2112/lusby/internal/errkind"
)

// EngineBackend drives the external rule engine as a subprocess: a
// configured binary (defaulting to "usbguard", the engine the upstream
// project targets) invoked with textual subcommands, plus atomic rules-file
// replacement. Every subprocess call is expected to be run from a goroutine
// the caller has already off-loaded from its event loop; this type does not
// itself spawn goroutines, callers (daemon) do.
type EngineBackend struct {
	// Binary is the engine executable name or path; defaults to
	// "usbguard" if empty.
	Binary string
	// RulesDir is the directory the live rules file, its .tmp staging
	// file, and its .bak rollback sibling all live in (atomicity requires
	// all three be on one filesystem).
	RulesDir string
	// RulesFile is the live rules file name within RulesDir; defaults to
	// "rules.conf".
	RulesFile string
}

func (e *EngineBackend) binary() string {
	if e.Binary != "" {
		return e.Binary
	}
	return "usbguard"
}

func (e *EngineBackend) rulesFileName() string {
	if e.RulesFile != "" {
		return e.RulesFile
	}
	return "rules.conf"
}

func (e *EngineBackend) rulesPath() string {
	return filepath.Join(e.RulesDir, e.rulesFileName())
}

func (e *EngineBackend) tmpPath() string {
	return e.rulesPath() + ".tmp"
}

func (e *EngineBackend) bakPath() string {
	return e.rulesPath() + ".bak"
}

func (e *EngineBackend) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, e.binary(), args...)
	out, err := cmd.Output()
	if err != nil {
		if ee, ok := err.(*exec.ExitError); ok {
			return "", errkind.Wrap(errkind.BackendFailure, fmt.Sprintf("usbbackend: %s %s: %s", e.binary(), strings.Join(args, " "), string(ee.Stderr)), err)
		}
		return "", errkind.Wrap(errkind.BackendFailure, fmt.Sprintf("usbbackend: %s %s", e.binary(), strings.Join(args, " ")), err)
	}
	return string(out), nil
}

// ListDevices runs `<binary> list-devices` and parses its textual output.
func (e *EngineBackend) ListDevices(ctx context.Context) ([]DeviceInfo, error) {
	out, err := e.run(ctx, "list-devices")
	if err != nil {
		return nil, err
	}
	return parseListDevices(out), nil
}

// GetDevice finds a device by id within the current device list.
func (e *EngineBackend) GetDevice(ctx context.Context, deviceID string) (DeviceInfo, bool, error) {
	devices, err := e.ListDevices(ctx)
	if err != nil {
		return DeviceInfo{}, false, err
	}
	for _, d := range devices {
		if d.ID == deviceID {
			return d, true, nil
		}
	}
	return DeviceInfo{}, false, nil
}

// AllowEphemeral requests temporary authorization from the engine. The TTL
// is advisory to the engine; the daemon is responsible for enforcing it as
// a ceiling via its own ephemeral-grant bookkeeping.
func (e *EngineBackend) AllowEphemeral(ctx context.Context, deviceID string, _ uint32) bool {
	_, err := e.run(ctx, "allow-device", deviceID)
	return err == nil
}

// Revoke rejects a previously allowed device.
func (e *EngineBackend) Revoke(ctx context.Context, deviceID string) bool {
	_, err := e.run(ctx, "reject-device", deviceID)
	return err == nil
}

// ApplyRulesAtomically writes text to a sibling .tmp file with mode 0600,
// fsyncs it, backs up any existing live rules file to .bak, renames .tmp
// into place, then reloads the engine. On reload failure, the .bak file is
// renamed back over the live file and the engine is reloaded again; the
// original reload error is returned either way so callers can audit/log it.
func (e *EngineBackend) ApplyRulesAtomically(ctx context.Context, text string) error {
	rulesPath := e.rulesPath()
	tmpPath := e.tmpPath()
	bakPath := e.bakPath()

	if err := os.MkdirAll(e.RulesDir, 0700); err != nil {
		return errkind.Wrap(errkind.IO, "usbbackend: create rules directory", err)
	}

	if err := writeRulesFile(tmpPath, text); err != nil {
		return err
	}

	hadExisting := false
	if _, err := os.Stat(rulesPath); err == nil {
		hadExisting = true
		if err := copyFile(rulesPath, bakPath); err != nil {
			return errkind.Wrap(errkind.IO, "usbbackend: back up existing rules", err)
		}
	}

	if err := os.Rename(tmpPath, rulesPath); err != nil {
		return errkind.Wrap(errkind.IO, "usbbackend: rename rules into place", err)
	}

	if _, err := e.run(ctx, "reload"); err != nil {
		if hadExisting {
			_ = os.Rename(bakPath, rulesPath)
			_, _ = e.run(ctx, "reload")
		}
		return errkind.Wrap(errkind.BackendFailure, "usbbackend: reload failed, rolled back", err)
	}
	return nil
}

func writeRulesFile(path, text string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return errkind.Wrap(errkind.IO, "usbbackend: create staged rules file", err)
	}
	defer f.Close()
	if _, err := f.WriteString(text); err != nil {
		return errkind.Wrap(errkind.IO, "usbbackend: write staged rules file", err)
	}
	return f.Sync()
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0600)
}

// parseListDevices parses the engine's `list-devices` textual output, in
// the conservative, line-oriented way original_source's Rust backend does:
// extract "id <vid>:<pid>", an optional `serial "..."` field, and guess a
// device_type from with-interface tokens.
func parseListDevices(output string) []DeviceInfo {
	var devices []DeviceInfo
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		idIdx := strings.Index(line, " id ")
		if idIdx < 0 {
			continue
		}
		// The rule target ("allow", "block", "reject") is the last word
		// before " id ", after any leading "<n>:" device number.
		target := ""
		if f := strings.Fields(line[:idIdx]); len(f) > 0 {
			target = f[len(f)-1]
		}
		rest := line[idIdx+4:]
		spaceIdx := strings.IndexByte(rest, ' ')
		var pair string
		if spaceIdx >= 0 {
			pair = rest[:spaceIdx]
		} else {
			pair = rest
		}
		colonIdx := strings.IndexByte(pair, ':')
		if colonIdx < 0 {
			continue
		}
		vendor := "0x" + pair[:colonIdx]
		product := "0x" + pair[colonIdx+1:]

		serial := ""
		if sIdx := strings.Index(line, ` serial "`); sIdx >= 0 {
			after := line[sIdx+len(` serial "`):]
			if endQ := strings.IndexByte(after, '"'); endQ >= 0 {
				serial = after[:endQ]
			}
		}

		deviceType := ""
		switch {
		case strings.Contains(line, "with-interface +hid"):
			deviceType = "hid"
		case strings.Contains(line, "with-interface +mass-storage"):
			deviceType = "storage"
		}

		devices = append(devices, DeviceInfo{
			ID:         pair,
			VendorID:   vendor,
			ProductID:  product,
			Serial:     serial,
			DeviceType: deviceType,
			Allowed:    target == "allow",
			Persistent: strings.Contains(line, "allow "),
		})
	}
	return devices
}
