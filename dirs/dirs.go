// Package dirs centralizes every filesystem path lusbyd touches, the way
// snapd's own dirs package centralizes snap mount points. Tests redirect
// everything under an alternate root via SetRootDir so nothing ever has to
// touch the real /etc or /var/log of the machine running the test suite.
package dirs

import (
	"os"
	"path/filepath"
	"strings"
)

var (
	rootDir string

	// BaselinesDir holds archived, administrator-signed baseline documents.
	BaselinesDir string

	// TrustedPubkeysDir holds the <name>.pub raw-key files that make up the
	// trusted-key store.
	TrustedPubkeysDir string

	// AuditLogDir is the parent of the audit log file; it is created with
	// mode 0700 (see audit.Open).
	AuditLogDir string

	// AuditLogPath is the append-only, hash-chained audit log.
	AuditLogPath string

	// EngineRulesDir is the directory the configured USB rule engine reads
	// its rule file from; .bak/.tmp siblings of EngineRulesFile live here.
	EngineRulesDir string

	// EngineRulesFile is the rule-engine's live rules file.
	EngineRulesFile string
)

func init() {
	SetRootDir("/")
}

// SetRootDir re-bases every path in this package under root. Root defaults
// to "/" (or the empty string, equivalently) at process start and in
// production; tests pass a temporary directory.
func SetRootDir(root string) {
	if root == "" {
		root = "/"
	}
	rootDir = filepath.Clean(root)

	BaselinesDir = filepath.Join(rootDir, "etc/lusby/baselines")
	TrustedPubkeysDir = filepath.Join(rootDir, "etc/lusby/trusted_pubkeys")
	AuditLogDir = filepath.Join(rootDir, "var/log/lusby")
	AuditLogPath = filepath.Join(AuditLogDir, "audit.log")
	EngineRulesDir = filepath.Join(rootDir, "etc/usbguard")
	EngineRulesFile = filepath.Join(EngineRulesDir, "rules.conf")
}

// RootDir returns the currently configured root, "/" by default.
func RootDir() string {
	return rootDir
}

// StripRootDir removes the configured root prefix from an absolute path,
// returning the path as it would appear on the real filesystem. It panics if
// path is not absolute or not under the current root, mirroring the
// teacher's own dirs.StripRootDir behavior.
func StripRootDir(path string) string {
	if !filepath.IsAbs(path) {
		panic("supplied path is not absolute " + quote(path))
	}
	if rootDir == "/" || rootDir == "" {
		return path
	}
	rel, err := filepath.Rel(rootDir, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, "../") {
		panic("supplied path is not related to global root " + quote(path))
	}
	return filepath.Join("/", rel)
}

func quote(s string) string {
	return "\"" + s + "\""
}

// EnsureDirWithMode creates dir (and parents) if missing and then forces its
// mode explicitly, since os.MkdirAll applies the process umask to newly
// created components and callers here need a hard guarantee (0700 for the
// audit log directory in particular).
func EnsureDirWithMode(dir string, mode os.FileMode) error {
	if err := os.MkdirAll(dir, mode); err != nil {
		return err
	}
	return os.Chmod(dir, mode)
}
