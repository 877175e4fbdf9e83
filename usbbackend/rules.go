package usbbackend

import (
	"strings"

	"github.com/MK2112/lusby/baseline"
)

// GenerateRules is the deterministic rule-text generator: for each
// DeviceEntry, lowercase vendor/product ids with any "0x" prefix stripped,
// one line `allow id <vid>:<pid>` optionally followed by
// ` serial "<escaped>"`, in the baseline's device order.
func GenerateRules(b baseline.Baseline) string {
	var sb strings.Builder
	for _, d := range b.Devices {
		vid := normalizeID(d.VendorID)
		pid := normalizeID(d.ProductID)
		sb.WriteString("allow id ")
		sb.WriteString(vid)
		sb.WriteString(":")
		sb.WriteString(pid)
		if d.Serial != nil {
			sb.WriteString(" serial \"")
			sb.WriteString(escapeSerial(*d.Serial))
			sb.WriteString("\"")
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func normalizeID(id string) string {
	id = strings.ToLower(id)
	return strings.TrimPrefix(id, "0x")
}

func escapeSerial(serial string) string {
	return strings.ReplaceAll(serial, `"`, `\"`)
}
