package audit

import (
	"bufio"
	"encoding/json"
	"os"

	"github.com/MK2112/lusby/internal/errkind"
)

// ReadEntries reads the newline-delimited JSON audit log at path and
// decodes each line into an Entry, in file order. It is used by offline
// verification tooling and by this package's own tests; the daemon itself
// never needs to read its own log back.
func ReadEntries(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errkind.Wrap(errkind.IO, "audit: open log for reading", err)
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, errkind.Wrap(errkind.Serialization, "audit: decode entry", err)
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, errkind.Wrap(errkind.IO, "audit: scan log", err)
	}
	return entries, nil
}
