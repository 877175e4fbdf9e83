// Package logging is lusby's small structured-logging shim: Debugf writes
// only when verbose logging is enabled, Noticef always writes, Panicf logs
// then panics. Every line goes to stderr and, when the journal is available,
// is also sent to the journal with a matching priority.
package logging

import (
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/coreos/go-systemd/journal"
)

var (
	mu         sync.Mutex
	debug      bool
	std        = log.New(os.Stderr, "", log.LstdFlags)
	useJournal bool
)

func init() {
	debug = os.Getenv("LUSBY_DEBUG") != ""
	useJournal = journal.Enabled()
}

// SetDebug toggles whether Debugf actually writes. Tests use this to
// silence or enable debug output deterministically regardless of the
// process environment.
func SetDebug(on bool) {
	mu.Lock()
	defer mu.Unlock()
	debug = on
}

// Debugf logs a formatted message only when debug logging is enabled.
func Debugf(format string, args ...interface{}) {
	mu.Lock()
	on := debug
	mu.Unlock()
	if !on {
		return
	}
	write(journal.PriDebug, format, args...)
}

// Noticef logs a formatted message unconditionally.
func Noticef(format string, args ...interface{}) {
	write(journal.PriInfo, format, args...)
}

// Panicf logs a formatted message then panics with it.
func Panicf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	write(journal.PriErr, "%s", msg)
	panic(msg)
}

func write(priority journal.Priority, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	std.Print(msg)
	if useJournal {
		_ = journal.Send(msg, priority, nil)
	}
}
